// Package session implements server-side sessions for the web UI. Session
// state lives in Redis under an opaque, random identifier; the browser only
// ever holds that identifier in an HttpOnly cookie.
//
// A request-scoped *Session handle is loaded by Manager.Middleware and read
// by downstream handlers through FromContext. Changes made through the handle
// are written back just before the response headers are sent.
package session

import (
	"time"

	"github.com/labstack/echo/v4"
)

// contextKey is the Echo context key holding the request's *Session.
const contextKey = "session"

// Flash levels used by the layout to pick alert styling.
const (
	FlashSuccess = "success"
	FlashWarning = "warning"
	FlashDanger  = "danger"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Data is the persisted session payload.
type Data struct {
	UserID    int64     `json:"user_id,omitempty"`
	CSRFToken string    `json:"csrf_token,omitempty"`
	Flashes   []Flash   `json:"flashes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the request-scoped view of one session. It is not safe for
// concurrent use; each request gets its own handle.
type Session struct {
	id   string
	data Data

	// isNew is true until the identifier has been written to the client.
	isNew bool

	// dirty is true when data differs from what the store holds.
	dirty bool

	// staleCookie is true when the request carried a cookie that no longer
	// resolves to a stored session.
	staleCookie bool

	// tokenGen is injected so tests can control CSRF token generation.
	tokenGen func() (string, error)
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// UserID returns the authenticated user id, or 0 for an anonymous session.
func (s *Session) UserID() int64 {
	return s.data.UserID
}

// ClearUser drops the authenticated user id while keeping the rest of the
// session (CSRF token, pending flashes).
func (s *Session) ClearUser() {
	if s.data.UserID == 0 {
		return
	}
	s.data.UserID = 0
	s.dirty = true
}

// CSRFToken returns the session's anti-forgery token, generating it on first
// use. The same token is returned for the rest of the session's lifetime.
func (s *Session) CSRFToken() (string, error) {
	if s.data.CSRFToken != "" {
		return s.data.CSRFToken, nil
	}
	token, err := s.tokenGen()
	if err != nil {
		return "", err
	}
	s.data.CSRFToken = token
	s.dirty = true
	return token, nil
}

// StoredCSRFToken returns the token without generating one. Empty means the
// session has never issued a token.
func (s *Session) StoredCSRFToken() string {
	return s.data.CSRFToken
}

// AddFlash queues a message for the next rendered page.
func (s *Session) AddFlash(flashType, message string) {
	s.data.Flashes = append(s.data.Flashes, Flash{Type: flashType, Message: message})
	s.dirty = true
}

// Flashes returns and clears all pending flash messages.
func (s *Session) Flashes() []Flash {
	if len(s.data.Flashes) == 0 {
		return nil
	}
	flashes := s.data.Flashes
	s.data.Flashes = nil
	s.dirty = true
	return flashes
}

// FromContext returns the request's session, or nil when the session
// middleware has not run.
func FromContext(c echo.Context) *Session {
	s, ok := c.Get(contextKey).(*Session)
	if !ok {
		return nil
	}
	return s
}

// AddFlash is a convenience wrapper that queues a flash on the request's
// session. It is a no-op when no session is loaded.
func AddFlash(c echo.Context, flashType, message string) {
	if s := FromContext(c); s != nil {
		s.AddFlash(flashType, message)
	}
}
