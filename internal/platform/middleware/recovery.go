package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carevault/carevault/internal/platform/audit"
)

// Recovery converts panics into 500 responses, logs the stack, and records
// a critical system_error audit entry. It sits outermost so a panicking
// handler still leaves a trace in the audit trail.
func Recovery(logger zerolog.Logger, writer *audit.Writer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				stack := make([]byte, 4<<10)
				stack = stack[:runtime.Stack(stack, false)]
				logger.Error().
					Interface("panic", r).
					Bytes("stack", stack).
					Str("path", c.Request().URL.Path).
					Msg("handler panicked")

				req := c.Request()
				msg := fmt.Sprintf("panic: %v", r)
				e := audit.Entry{
					OriginIP:     c.RealIP(),
					UserAgent:    req.UserAgent(),
					Action:       req.Method + " " + req.URL.Path,
					ResourcePath: req.URL.Path,
					ResourceType: audit.ResourceSystem,
					EventType:    audit.EventSystemError,
					Severity:     audit.SeverityCritical,
					Outcome:      audit.OutcomeFailure,
					ErrorMessage: &msg,
				}
				writer.Enqueue(e)
				c.Set(audit.HandledContextKey, true)

				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}
