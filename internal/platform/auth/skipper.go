package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication. Devices probe /api/health to decide
// whether they are online before they hold any credential.
var publicPaths = map[string]bool{
	"/api/health":    true,
	"/api/health/db": true,
}

// AuthSkipper reports whether the matched route skips authentication.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
