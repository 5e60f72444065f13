package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// requestIDHeader is echoed back on every response and accepted from a
// trusted upstream proxy.
const requestIDHeader = "X-Request-ID"

// contextKeyRequestID is the Echo context key holding the request ID.
const contextKeyRequestID = "request_id"

// RequestID returns middleware that tags each request with a UUID. An
// incoming X-Request-ID is reused when it parses as a UUID so log lines can
// be correlated with the proxy's.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(requestIDHeader)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}

			c.Set(contextKeyRequestID, id)
			c.Response().Header().Set(requestIDHeader, id)
			return next(c)
		}
	}
}

// GetRequestID returns the current request's ID, or "" outside RequestID.
func GetRequestID(c echo.Context) string {
	id, _ := c.Get(contextKeyRequestID).(string)
	return id
}
