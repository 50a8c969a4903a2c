package auth

import "github.com/labstack/echo/v4"

// publicPaths are reachable without a token: liveness, metrics scrapes, and
// the two endpoints that bootstrap a session.
var publicPaths = map[string]bool{
	"/health":       true,
	"/metrics":      true,
	"/auth/login":   true,
	"/auth/refresh": true,
}

// Skipper exempts public paths from the Authenticate middleware.
func Skipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}
