package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/carevault/carevault/internal/domain/actor"
)

const actorContextKey = "auth_actor"

// ActorFromContext returns the authenticated actor attached by the
// Authenticate middleware, or nil on an unauthenticated request.
func ActorFromContext(c echo.Context) *actor.Actor {
	a, _ := c.Get(actorContextKey).(*actor.Actor)
	return a
}

func setActor(c echo.Context, a *actor.Actor) {
	c.Set(actorContextKey, a)
}
