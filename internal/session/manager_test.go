package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

const testCookie = "ams_session"

// newTestManager creates a Manager backed by an in-process Redis.
func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewManager(NewRedisStore(client), testCookie, time.Hour), mr
}

// serve runs h behind the session middleware and returns the recorder.
func serve(t *testing.T, m *Manager, cookie *http.Cookie, h echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := m.Middleware()(h)(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

// sessionCookie returns the session cookie set on the response, or nil.
func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == testCookie {
			return ck
		}
	}
	return nil
}

func ok(c echo.Context) error { return c.NoContent(http.StatusOK) }

func TestMiddleware_AnonymousSessionNotPersisted(t *testing.T) {
	m, mr := newTestManager(t)

	rec := serve(t, m, nil, ok)

	if ck := sessionCookie(rec); ck != nil {
		t.Errorf("expected no cookie for untouched anonymous session, got %q", ck.Value)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Errorf("expected empty store, got %v", keys)
	}
}

func TestMiddleware_FlashRoundTrip(t *testing.T) {
	m, mr := newTestManager(t)

	rec := serve(t, m, nil, func(c echo.Context) error {
		AddFlash(c, FlashSuccess, "Saved.")
		return c.NoContent(http.StatusSeeOther)
	})
	ck := sessionCookie(rec)
	if ck == nil {
		t.Fatal("expected session cookie after storing a flash")
	}
	if !ck.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
	if !mr.Exists(keyPrefix + ck.Value) {
		t.Fatal("expected session key in Redis")
	}

	var got []Flash
	serve(t, m, ck, func(c echo.Context) error {
		got = FromContext(c).Flashes()
		return ok(c)
	})
	if len(got) != 1 || got[0].Message != "Saved." || got[0].Type != FlashSuccess {
		t.Fatalf("unexpected flashes: %+v", got)
	}

	// Flashes are one-shot.
	serve(t, m, ck, func(c echo.Context) error {
		got = FromContext(c).Flashes()
		return ok(c)
	})
	if len(got) != 0 {
		t.Errorf("expected flashes consumed, got %+v", got)
	}
}

func TestEstablish_RotatesIdentifier(t *testing.T) {
	m, mr := newTestManager(t)

	// Pre-login session holding a CSRF token.
	var token string
	rec := serve(t, m, nil, func(c echo.Context) error {
		var err error
		token, err = FromContext(c).CSRFToken()
		if err != nil {
			return err
		}
		return ok(c)
	})
	before := sessionCookie(rec)
	if before == nil {
		t.Fatal("expected pre-login cookie")
	}

	rec = serve(t, m, before, func(c echo.Context) error {
		if err := m.Establish(c, 42); err != nil {
			return err
		}
		return c.NoContent(http.StatusSeeOther)
	})
	after := sessionCookie(rec)
	if after == nil {
		t.Fatal("expected new cookie after login")
	}
	if after.Value == before.Value {
		t.Fatal("session identifier was not rotated")
	}
	if mr.Exists(keyPrefix + before.Value) {
		t.Error("pre-login session must be deleted")
	}

	serve(t, m, after, func(c echo.Context) error {
		s := FromContext(c)
		if s.UserID() != 42 {
			t.Errorf("expected user 42, got %d", s.UserID())
		}
		if s.StoredCSRFToken() != token {
			t.Error("CSRF token should survive rotation")
		}
		return ok(c)
	})

	// The old identifier resolves to nothing.
	serve(t, m, before, func(c echo.Context) error {
		if uid := FromContext(c).UserID(); uid != 0 {
			t.Errorf("old identifier still authenticated as %d", uid)
		}
		return ok(c)
	})
}

func TestDestroy_InvalidatesSession(t *testing.T) {
	m, mr := newTestManager(t)

	rec := serve(t, m, nil, func(c echo.Context) error {
		if err := m.Establish(c, 7); err != nil {
			return err
		}
		return ok(c)
	})
	ck := sessionCookie(rec)

	rec = serve(t, m, ck, func(c echo.Context) error {
		if err := m.Destroy(c); err != nil {
			return err
		}
		return ok(c)
	})
	if mr.Exists(keyPrefix + ck.Value) {
		t.Error("destroyed session still stored")
	}
	cleared := sessionCookie(rec)
	if cleared == nil || cleared.MaxAge >= 0 {
		t.Errorf("expected expired cookie, got %+v", cleared)
	}
}

func TestDestroy_FlashOnFreshSession(t *testing.T) {
	m, _ := newTestManager(t)

	rec := serve(t, m, nil, func(c echo.Context) error {
		if err := m.Establish(c, 7); err != nil {
			return err
		}
		return ok(c)
	})
	old := sessionCookie(rec)

	rec = serve(t, m, old, func(c echo.Context) error {
		if err := m.Destroy(c); err != nil {
			return err
		}
		AddFlash(c, FlashSuccess, "You have been logged out.")
		return c.NoContent(http.StatusSeeOther)
	})
	fresh := sessionCookie(rec)
	if fresh == nil || fresh.Value == old.Value || fresh.MaxAge < 0 {
		t.Fatalf("expected a fresh session cookie, got %+v", fresh)
	}

	serve(t, m, fresh, func(c echo.Context) error {
		s := FromContext(c)
		if s.UserID() != 0 {
			t.Error("fresh session must be anonymous")
		}
		if f := s.Flashes(); len(f) != 1 {
			t.Errorf("expected logout flash, got %+v", f)
		}
		return ok(c)
	})
}

func TestMiddleware_IdleTimeoutSlides(t *testing.T) {
	m, mr := newTestManager(t)

	rec := serve(t, m, nil, func(c echo.Context) error {
		if err := m.Establish(c, 1); err != nil {
			return err
		}
		return ok(c)
	})
	ck := sessionCookie(rec)
	key := keyPrefix + ck.Value

	mr.FastForward(50 * time.Minute)
	serve(t, m, ck, ok)
	if ttl := mr.TTL(key); ttl != time.Hour {
		t.Errorf("expected TTL reset to 1h, got %v", ttl)
	}

	mr.FastForward(61 * time.Minute)
	rec = serve(t, m, ck, func(c echo.Context) error {
		if FromContext(c).UserID() != 0 {
			t.Error("expired session still authenticated")
		}
		return ok(c)
	})
	if cleared := sessionCookie(rec); cleared == nil || cleared.MaxAge >= 0 {
		t.Error("expected stale cookie to be cleared")
	}
}

func TestMiddleware_MalformedCookieIgnored(t *testing.T) {
	m, mr := newTestManager(t)
	mr.Set(keyPrefix+"evil", `{"user_id":1}`)

	serve(t, m, &http.Cookie{Name: testCookie, Value: "evil"}, func(c echo.Context) error {
		if FromContext(c).UserID() != 0 {
			t.Error("malformed identifier must not resolve")
		}
		return ok(c)
	})
}

func TestSession_CSRFTokenStable(t *testing.T) {
	calls := 0
	s := &Session{tokenGen: func() (string, error) {
		calls++
		return "tok", nil
	}}

	first, _ := s.CSRFToken()
	second, _ := s.CSRFToken()
	if first != "tok" || second != "tok" {
		t.Errorf("unexpected tokens %q %q", first, second)
	}
	if calls != 1 {
		t.Errorf("expected one generation, got %d", calls)
	}
	if !s.dirty {
		t.Error("new token must mark the session dirty")
	}
}

func TestSession_ClearUser(t *testing.T) {
	s := &Session{data: Data{UserID: 5}}
	s.ClearUser()
	if s.UserID() != 0 || !s.dirty {
		t.Errorf("expected cleared user and dirty session, got uid=%d dirty=%v", s.UserID(), s.dirty)
	}
}
