package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/glassyams/ams/internal/apperror"
	"github.com/glassyams/ams/internal/session"
)

// csrfHeaderName is the header scripted clients send the CSRF token in.
const csrfHeaderName = "X-CSRF-Token"

// CSRFFormField is the hidden form field name carrying the token.
const CSRFFormField = "csrf_token"

// CSRF returns middleware that rejects state-changing requests (POST, PUT,
// PATCH, DELETE) unless they carry the token stored in the caller's session.
//
// The token is issued lazily by GetCSRFToken when a form is rendered and
// lives as long as the session. A missing or mismatched token aborts the
// request with a 419 before the handler, and therefore any store, runs.
//
// Must be registered after the session middleware.
func CSRF() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			// Skip validation for safe (non-mutating) HTTP methods.
			if isSafeMethod(req.Method) {
				return next(c)
			}

			s := session.FromContext(c)
			if s == nil {
				return apperror.NewMissingContext()
			}

			// Check header first, then form field (traditional forms).
			submitted := req.Header.Get(csrfHeaderName)
			if submitted == "" {
				submitted = req.FormValue(CSRFFormField)
			}

			if !VerifyCSRF(s, submitted) {
				slog.Warn("csrf token rejected",
					slog.String("method", req.Method),
					slog.String("path", req.URL.Path),
					slog.String("remote_ip", c.RealIP()),
					slog.Bool("token_present", submitted != ""),
				)
				return apperror.NewCSRF()
			}

			return next(c)
		}
	}
}

// VerifyCSRF reports whether supplied matches the token held by s. A session
// that never issued a token rejects everything.
func VerifyCSRF(s *session.Session, supplied string) bool {
	stored := s.StoredCSRFToken()
	if stored == "" || supplied == "" {
		return false
	}
	// Constant-time comparison prevents deducing the token byte-by-byte.
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(stored)) == 1
}

// isSafeMethod returns true for HTTP methods that should not change state.
func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

// GetCSRFToken returns the session's CSRF token, issuing one if needed.
// Templates embed it in every mutating form.
func GetCSRFToken(c echo.Context) string {
	s := session.FromContext(c)
	if s == nil {
		return ""
	}
	token, err := s.CSRFToken()
	if err != nil {
		slog.Error("failed to issue csrf token", slog.Any("error", err))
		return ""
	}
	return token
}
