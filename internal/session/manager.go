package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// idBytes is the number of random bytes in a session identifier and in a
// CSRF token (32 bytes = 64 hex chars).
const idBytes = 32

// Manager loads, rotates and destroys sessions and keeps the client cookie
// in sync with the store.
type Manager struct {
	store      Store
	cookieName string
	ttl        time.Duration

	// randomToken is swapped in tests.
	randomToken func() (string, error)
}

// NewManager creates a Manager. ttl is the sliding idle timeout applied on
// every request that carries a valid session.
func NewManager(store Store, cookieName string, ttl time.Duration) *Manager {
	return &Manager{
		store:       store,
		cookieName:  cookieName,
		ttl:         ttl,
		randomToken: generateToken,
	}
}

// Middleware loads the request's session (or starts an anonymous one) and
// stores it in the Echo context. Pending changes are persisted from a
// response hook so they land before the client sees any redirect.
func (m *Manager) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, err := m.load(c)
			if err != nil {
				return err
			}
			c.Set(contextKey, s)

			c.Response().Before(func() {
				if err := m.commit(c, s); err != nil {
					slog.Error("failed to persist session",
						slog.String("path", c.Request().URL.Path),
						slog.Any("error", err),
					)
				}
			})

			return next(c)
		}
	}
}

// Establish binds userID to the request's session under a brand new
// identifier. The previous identifier is deleted from the store so a fixated
// or leaked pre-login id can never resolve to the authenticated session.
// Other session data (CSRF token, pending flashes) carries over.
func (m *Manager) Establish(c echo.Context, userID int64) error {
	s := FromContext(c)
	if s == nil {
		return fmt.Errorf("session middleware not loaded")
	}
	ctx := c.Request().Context()

	if !s.isNew {
		if err := m.store.Delete(ctx, s.id); err != nil {
			return err
		}
	}

	id, err := m.randomToken()
	if err != nil {
		return fmt.Errorf("generating session id: %w", err)
	}
	s.id = id
	s.isNew = true
	s.data.UserID = userID
	s.data.CreatedAt = time.Now().UTC()
	s.dirty = true

	return m.commit(c, s)
}

// Destroy deletes the session from the store and clears the cookie. The
// request continues with a fresh anonymous session so a flash can still be
// queued for the next page.
func (m *Manager) Destroy(c echo.Context) error {
	s := FromContext(c)
	if s == nil {
		return fmt.Errorf("session middleware not loaded")
	}

	if !s.isNew {
		if err := m.store.Delete(c.Request().Context(), s.id); err != nil {
			return err
		}
	}

	fresh, err := m.newSession()
	if err != nil {
		return err
	}
	fresh.staleCookie = true
	*s = *fresh
	return nil
}

// load resolves the cookie to stored data. Unknown, expired or malformed
// identifiers yield a new anonymous session.
func (m *Manager) load(c echo.Context) (*Session, error) {
	cookie, err := c.Cookie(m.cookieName)
	hadCookie := err == nil && cookie.Value != ""
	if hadCookie && validID(cookie.Value) {
		data, err := m.store.Load(c.Request().Context(), cookie.Value)
		if err != nil {
			return nil, err
		}
		if data != nil {
			return &Session{id: cookie.Value, data: *data, tokenGen: m.randomToken}, nil
		}
	}

	s, err := m.newSession()
	if err != nil {
		return nil, err
	}
	s.staleCookie = hadCookie
	return s, nil
}

// newSession creates an unsaved anonymous session with a random identifier.
func (m *Manager) newSession() (*Session, error) {
	id, err := m.randomToken()
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}
	return &Session{
		id:       id,
		data:     Data{CreatedAt: time.Now().UTC()},
		isNew:    true,
		tokenGen: m.randomToken,
	}, nil
}

// commit writes pending changes. Anonymous sessions that never stored
// anything are not persisted; established ones have their idle timeout
// pushed forward.
func (m *Manager) commit(c echo.Context, s *Session) error {
	ctx := c.Request().Context()

	switch {
	case s.dirty:
		if err := m.store.Save(ctx, s.id, &s.data, m.ttl); err != nil {
			return err
		}
		if s.isNew {
			m.setCookie(c, s.id)
			s.isNew = false
			s.staleCookie = false
		}
		s.dirty = false
	case s.isNew:
		if s.staleCookie {
			m.clearCookie(c)
			s.staleCookie = false
		}
	default:
		return m.store.Touch(ctx, s.id, m.ttl)
	}
	return nil
}

// setCookie writes the session cookie. HttpOnly keeps it away from scripts;
// Secure is set when the request arrived over TLS.
func (m *Manager) setCookie(c echo.Context, id string) {
	req := c.Request()
	c.SetCookie(&http.Cookie{
		Name:     m.cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

// clearCookie expires the session cookie on the client.
func (m *Manager) clearCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// validID reports whether v looks like an identifier this package issued.
func validID(v string) bool {
	if len(v) != idBytes*2 {
		return false
	}
	_, err := hex.DecodeString(v)
	return err == nil
}

// generateToken creates a cryptographically random hex-encoded token.
func generateToken() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
