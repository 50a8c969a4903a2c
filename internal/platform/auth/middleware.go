package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carevault/carevault/internal/domain/actor"
	"github.com/carevault/carevault/internal/platform/audit"
	"github.com/carevault/carevault/internal/platform/metrics"
)

// Directory is the narrow actor lookup the middleware needs.
type Directory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*actor.Actor, error)
}

// Middleware authenticates requests with bearer access tokens and attaches
// the resolved actor to the request context.
type Middleware struct {
	issuer    *TokenIssuer
	directory Directory
	writer    *audit.Writer
}

func NewMiddleware(issuer *TokenIssuer, directory Directory, writer *audit.Writer) *Middleware {
	return &Middleware{issuer: issuer, directory: directory, writer: writer}
}

// Authenticate verifies the bearer token, resolves the actor, and rejects
// stale tokens issued before the actor's last credential change. Every
// rejection records an access_denied audit entry before returning 401.
func (m *Middleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if Skipper(c) {
			return next(c)
		}

		token, err := bearerToken(c)
		if err != nil {
			return m.deny(c, nil, "missing_credential", err)
		}

		claims, err := m.issuer.Verify(token, TokenUseAccess)
		if err != nil {
			reason := "invalid_credential"
			if errors.Is(err, ErrExpiredCredential) {
				reason = "expired_credential"
			}
			return m.deny(c, nil, reason, err)
		}

		a, err := m.directory.GetByID(c.Request().Context(), claims.SubjectID())
		if err != nil {
			if errors.Is(err, actor.ErrNotFound) {
				return m.deny(c, nil, "unknown_actor", ErrUnknownActor)
			}
			return echo.NewHTTPError(http.StatusInternalServerError, "actor lookup failed")
		}
		if !a.Active {
			return m.deny(c, a, "inactive_actor", ErrUnknownActor)
		}

		// Tokens carry issued-at at second granularity, so truncate the
		// credential timestamp before comparing or a same-second change
		// would reject its own fresh tokens.
		if claims.IssuedAt.Time.Before(a.CredentialChangedAt.Truncate(time.Second)) {
			return m.deny(c, a, "stale_credential", ErrStaleCredential)
		}

		setActor(c, a)
		return next(c)
	}
}

func (m *Middleware) deny(c echo.Context, a *actor.Actor, reason string, err error) error {
	metrics.AuthFailures.WithLabelValues(reason).Inc()
	recordDenial(c, m.writer, a, audit.SeverityHigh, err)
	return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
}

// recordDenial enqueues an access_denied entry for a rejected request and
// flags the request as audited so the capture middleware stays quiet.
func recordDenial(c echo.Context, w *audit.Writer, a *actor.Actor, severity audit.Severity, cause error) {
	req := c.Request()
	e := audit.Classify(req.Method, req.URL.Path, http.StatusForbidden, nil)
	e.EventType = audit.EventAccessDenied
	e.Severity = severity
	e.Outcome = audit.OutcomeFailure
	e.OriginIP = c.RealIP()
	e.UserAgent = req.UserAgent()
	if a != nil {
		id := a.ID
		e.ActorID = &id
	}
	msg := cause.Error()
	e.ErrorMessage = &msg
	w.Enqueue(e)
	c.Set(audit.HandledContextKey, true)
}

func bearerToken(c echo.Context) (string, error) {
	const prefix = "Bearer "
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return "", ErrMissingCredential
	}
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return "", ErrInvalidCredential
	}
	return header[len(prefix):], nil
}
