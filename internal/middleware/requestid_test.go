package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func TestRequestID(t *testing.T) {
	upstream := uuid.NewString()

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated when absent", "", false},
		{"reused when valid", upstream, true},
		{"replaced when garbage", "not-a-uuid\r\ninjected", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(requestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			var seen string
			err := RequestID()(func(c echo.Context) error {
				seen = GetRequestID(c)
				return c.NoContent(http.StatusOK)
			})(c)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if _, err := uuid.Parse(seen); err != nil {
				t.Fatalf("request id %q is not a UUID", seen)
			}
			if tt.keep && seen != tt.incoming {
				t.Errorf("expected upstream id %q, got %q", tt.incoming, seen)
			}
			if !tt.keep && seen == tt.incoming {
				t.Error("expected a fresh id")
			}
			if got := rec.Header().Get(requestIDHeader); got != seen {
				t.Errorf("response header %q != context id %q", got, seen)
			}
		})
	}
}
