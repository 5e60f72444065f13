package middleware

import (
	"log/slog"
	"net"

	"github.com/labstack/echo/v4"
)

// TrustedProxies makes c.RealIP() see through the reverse proxies in cidrs.
// The login rate limiter keys on that address and password change records
// store it, so only X-Forwarded-For hops added by a listed proxy are
// believed. Walking the header from the right, the first address outside
// the trusted ranges is the client; a spoofed leftmost entry is ignored.
//
// Loopback, link-local and private ranges are trusted only when listed.
func TrustedProxies(e *echo.Echo, cidrs []string) {
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			slog.Warn("ignoring invalid trusted proxy range", slog.String("cidr", cidr))
			continue
		}
		opts = append(opts, echo.TrustIPRange(network))
	}
	e.IPExtractor = echo.ExtractIPFromXFFHeader(opts...)
}
