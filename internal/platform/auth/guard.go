package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carevault/carevault/internal/domain/actor"
	"github.com/carevault/carevault/internal/platform/audit"
)

// RequireRole allows only actors whose role is in the given set. A denial
// records an access_denied entry and returns 403.
func RequireRole(writer *audit.Writer, roles ...actor.Role) echo.MiddlewareFunc {
	allowed := make(map[actor.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			a := ActorFromContext(c)
			if a == nil || !allowed[a.Role] {
				recordDenial(c, writer, a, audit.SeverityHigh, ErrInsufficientRole)
				return echo.NewHTTPError(http.StatusForbidden, ErrInsufficientRole.Error())
			}
			return next(c)
		}
	}
}

// RequireTraining blocks actors who have not completed compliance training.
func RequireTraining(writer *audit.Writer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			a := ActorFromContext(c)
			if a == nil || !a.TrainingCompleted {
				recordDenial(c, writer, a, audit.SeverityHigh, ErrTrainingRequired)
				return echo.NewHTTPError(http.StatusForbidden, ErrTrainingRequired.Error())
			}
			return next(c)
		}
	}
}

// RequireTier blocks actors below the given access tier under the order
// readonly < limited < full.
func RequireTier(writer *audit.Writer, min actor.AccessTier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			a := ActorFromContext(c)
			if a == nil || !a.AccessTier.Covers(min) {
				recordDenial(c, writer, a, audit.SeverityMedium, ErrInsufficientAccessTier)
				return echo.NewHTTPError(http.StatusForbidden, ErrInsufficientAccessTier.Error())
			}
			return next(c)
		}
	}
}
