package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/carevault/carevault/internal/platform/audit"
	"github.com/carevault/carevault/internal/platform/auth"
)

// maxBodySnapshot bounds how much of a request body the capture middleware
// inspects for PHI field detection. Larger bodies are still streamed to the
// handler untouched.
const maxBodySnapshot = 64 * 1024

// AuditCapture observes every non-exempt request and enqueues one classified
// audit entry after the handler runs. Handlers that record their own entry
// set the handled flag and are skipped, so each request yields exactly one
// entry.
func AuditCapture(writer *audit.Writer, exemptPaths []string) echo.MiddlewareFunc {
	exempt := make(map[string]bool, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if exempt[req.URL.Path] {
				return next(c)
			}

			payload := snapshotBody(c)
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			if handled, _ := c.Get(audit.HandledContextKey).(bool); handled {
				return err
			}

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}

			e := audit.Classify(req.Method, req.URL.Path, status, payload)
			e.OriginIP = c.RealIP()
			e.UserAgent = req.UserAgent()
			e.Duration = duration
			if a := auth.ActorFromContext(c); a != nil {
				id := a.ID
				e.ActorID = &id
			}
			if err != nil {
				msg := err.Error()
				e.ErrorMessage = &msg
			}
			writer.Enqueue(e)
			return err
		}
	}
}

// snapshotBody reads up to maxBodySnapshot bytes of a JSON request body for
// classification and puts the full body back for the handler. Non-JSON and
// oversized bodies yield no payload.
func snapshotBody(c echo.Context) map[string]any {
	req := c.Request()
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}
	ct := req.Header.Get(echo.HeaderContentType)
	if ct != "" && !strings.HasPrefix(ct, echo.MIMEApplicationJSON) {
		return nil
	}

	buf, err := io.ReadAll(io.LimitReader(req.Body, maxBodySnapshot+1))
	if err != nil {
		return nil
	}
	rest, _ := io.ReadAll(req.Body)
	req.Body = io.NopCloser(io.MultiReader(bytes.NewReader(buf), bytes.NewReader(rest)))

	if len(buf) > maxBodySnapshot {
		return nil
	}
	var payload map[string]any
	if json.Unmarshal(buf, &payload) != nil {
		return nil
	}
	return payload
}
