package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/glassyams/ams/internal/apperror"
	"github.com/glassyams/ams/internal/session"
)

const testCookieName = "ams_session"

// csrfHarness wires the session middleware in front of CSRF, the same order
// used by the application.
type csrfHarness struct {
	t       *testing.T
	e       *echo.Echo
	mgr     *session.Manager
	calls   int
	cookie  *http.Cookie
	handler echo.HandlerFunc
}

func newCSRFHarness(t *testing.T) *csrfHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	h := &csrfHarness{
		t:   t,
		e:   echo.New(),
		mgr: session.NewManager(session.NewRedisStore(client), testCookieName, time.Hour),
	}
	h.handler = func(c echo.Context) error {
		h.calls++
		return c.NoContent(http.StatusOK)
	}
	return h
}

// fetchToken performs a GET that renders a form and returns the token.
func (h *csrfHarness) fetchToken() string {
	h.t.Helper()
	var token string
	req := httptest.NewRequest(http.MethodGet, "/form", nil)
	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}
	rec := httptest.NewRecorder()
	c := h.e.NewContext(req, rec)
	err := h.mgr.Middleware()(CSRF()(func(c echo.Context) error {
		token = GetCSRFToken(c)
		return c.NoContent(http.StatusOK)
	}))(c)
	if err != nil {
		h.t.Fatalf("GET failed: %v", err)
	}
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == testCookieName {
			h.cookie = ck
		}
	}
	return token
}

// post submits a form with the given token (empty means omitted).
func (h *csrfHarness) post(token string) error {
	form := url.Values{"name": {"x"}}
	if token != "" {
		form.Set(CSRFFormField, token)
	}
	req := httptest.NewRequest(http.MethodPost, "/form", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}
	rec := httptest.NewRecorder()
	c := h.e.NewContext(req, rec)
	return h.mgr.Middleware()(CSRF()(h.handler))(c)
}

func assertCSRFRejected(t *testing.T, err error) {
	t.Helper()
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Code != apperror.StatusCSRFFailure {
		t.Errorf("expected 419, got %d", appErr.Code)
	}
}

func TestCSRF_ValidTokenPasses(t *testing.T) {
	h := newCSRFHarness(t)
	token := h.fetchToken()
	if token == "" {
		t.Fatal("expected a token")
	}
	if err := h.post(token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.calls != 1 {
		t.Errorf("expected handler to run once, ran %d", h.calls)
	}
}

func TestCSRF_MissingTokenRejected(t *testing.T) {
	h := newCSRFHarness(t)
	h.fetchToken()

	assertCSRFRejected(t, h.post(""))
	if h.calls != 0 {
		t.Error("handler must not run when the token is missing")
	}
}

func TestCSRF_MismatchedTokenRejected(t *testing.T) {
	h := newCSRFHarness(t)
	token := h.fetchToken()

	last := "0"
	if strings.HasSuffix(token, "0") {
		last = "1"
	}
	assertCSRFRejected(t, h.post(token[:len(token)-1]+last))
	if h.calls != 0 {
		t.Error("handler must not run on mismatch")
	}
}

func TestCSRF_NoSessionTokenRejected(t *testing.T) {
	h := newCSRFHarness(t)

	// No GET first: the session has never issued a token.
	assertCSRFRejected(t, h.post("anything"))
	if h.calls != 0 {
		t.Error("handler must not run")
	}
}

func TestCSRF_ResubmitWithFreshTokenSucceedsOnce(t *testing.T) {
	h := newCSRFHarness(t)
	h.fetchToken()

	assertCSRFRejected(t, h.post("stale"))

	token := h.fetchToken()
	if err := h.post(token); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.calls != 1 {
		t.Errorf("expected exactly one successful execution, got %d", h.calls)
	}
}

func TestCSRF_TokenStableAcrossRequests(t *testing.T) {
	h := newCSRFHarness(t)
	first := h.fetchToken()
	second := h.fetchToken()
	if first != second {
		t.Error("token must be reused for the session's lifetime")
	}
}

func TestCSRF_HeaderAccepted(t *testing.T) {
	h := newCSRFHarness(t)
	token := h.fetchToken()

	req := httptest.NewRequest(http.MethodPost, "/form", nil)
	req.Header.Set(csrfHeaderName, token)
	req.AddCookie(h.cookie)
	c := h.e.NewContext(req, httptest.NewRecorder())
	if err := h.mgr.Middleware()(CSRF()(h.handler))(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCSRF_SafeMethodsSkipVerification(t *testing.T) {
	h := newCSRFHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/form", nil)
	c := h.e.NewContext(req, httptest.NewRecorder())
	if err := h.mgr.Middleware()(CSRF()(h.handler))(c); err != nil {
		t.Fatalf("GET must not be verified: %v", err)
	}
}
