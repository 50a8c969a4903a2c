package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/carevault/carevault/internal/domain/actor"
	"github.com/carevault/carevault/internal/platform/audit"
)

// Handler serves the session lifecycle endpoints. Each endpoint records its
// own audit entry with the precise auth event type, which the generic capture
// middleware cannot derive from the request shape alone.
type Handler struct {
	actors *actor.Service
	issuer *TokenIssuer
	writer *audit.Writer
}

func NewHandler(actors *actor.Service, issuer *TokenIssuer, writer *audit.Writer) *Handler {
	return &Handler{actors: actors, issuer: issuer, writer: writer}
}

// RegisterRoutes mounts the session endpoints on the given group, expected
// to be rooted at /auth.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/login", h.Login)
	g.POST("/logout", h.Logout)
	g.POST("/refresh", h.Refresh)
	g.POST("/change-password", h.ChangePassword)
	g.POST("/complete-training", h.CompleteTraining)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	Actor        *actor.Actor `json:"actor,omitempty"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	a, err := h.actors.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		var locked *actor.LockedError
		switch {
		case errors.As(err, &locked):
			h.recordAuth(c, nil, audit.EventFailedLogin, audit.SeverityHigh, audit.OutcomeFailure, err)
			return echo.NewHTTPError(http.StatusUnauthorized, locked.Error())
		case errors.Is(err, actor.ErrInvalidCredentials):
			h.recordAuth(c, nil, audit.EventFailedLogin, audit.SeverityHigh, audit.OutcomeFailure, err)
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "authentication failed")
		}
	}

	access, err := h.issuer.Issue(a, TokenUseAccess)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "token issuance failed")
	}
	refresh, err := h.issuer.Issue(a, TokenUseRefresh)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "token issuance failed")
	}

	h.recordAuth(c, a, audit.EventLogin, audit.SeverityMedium, audit.OutcomeSuccess, nil)
	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		Actor:        a,
	})
}

func (h *Handler) Logout(c echo.Context) error {
	a := ActorFromContext(c)
	if a == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, ErrMissingCredential.Error())
	}
	h.recordAuth(c, a, audit.EventLogout, audit.SeverityLow, audit.OutcomeSuccess, nil)
	return c.NoContent(http.StatusNoContent)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a valid refresh token for a new token pair. The same
// staleness rule as the middleware applies: a refresh token issued before a
// credential change is dead.
func (h *Handler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "refresh_token is required")
	}

	claims, err := h.issuer.Verify(req.RefreshToken, TokenUseRefresh)
	if err != nil {
		h.recordAuth(c, nil, audit.EventFailedLogin, audit.SeverityHigh, audit.OutcomeFailure, err)
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}

	a, err := h.actors.Get(c.Request().Context(), claims.SubjectID())
	if err != nil || !a.Active {
		h.recordAuth(c, nil, audit.EventFailedLogin, audit.SeverityHigh, audit.OutcomeFailure, ErrUnknownActor)
		return echo.NewHTTPError(http.StatusUnauthorized, ErrUnknownActor.Error())
	}
	if claims.IssuedAt.Time.Before(a.CredentialChangedAt.Truncate(time.Second)) {
		h.recordAuth(c, a, audit.EventFailedLogin, audit.SeverityHigh, audit.OutcomeFailure, ErrStaleCredential)
		return echo.NewHTTPError(http.StatusUnauthorized, ErrStaleCredential.Error())
	}

	access, err := h.issuer.Issue(a, TokenUseAccess)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "token issuance failed")
	}
	refresh, err := h.issuer.Issue(a, TokenUseRefresh)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "token issuance failed")
	}

	h.recordAuth(c, a, audit.EventLogin, audit.SeverityMedium, audit.OutcomeSuccess, nil)
	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
	})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) ChangePassword(c echo.Context) error {
	a := ActorFromContext(c)
	if a == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, ErrMissingCredential.Error())
	}

	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	err := h.actors.ChangePassword(c.Request().Context(), a.ID, req.OldPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, actor.ErrInvalidCredentials):
			h.recordAuth(c, a, audit.EventCredentialChange, audit.SeverityHigh, audit.OutcomeFailure, err)
			return echo.NewHTTPError(http.StatusUnauthorized, "current password is incorrect")
		case errors.Is(err, actor.ErrWeakPassword):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "password change failed")
		}
	}

	h.recordAuth(c, a, audit.EventCredentialChange, audit.SeverityHigh, audit.OutcomeSuccess, nil)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CompleteTraining(c echo.Context) error {
	a := ActorFromContext(c)
	if a == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, ErrMissingCredential.Error())
	}
	if err := h.actors.CompleteTraining(c.Request().Context(), a.ID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "training completion failed")
	}
	h.recordAuth(c, a, audit.EventUpdate, audit.SeverityMedium, audit.OutcomeSuccess, nil)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) recordAuth(c echo.Context, a *actor.Actor, event audit.EventType, severity audit.Severity, outcome audit.Outcome, cause error) {
	req := c.Request()
	e := audit.Entry{
		OriginIP:     c.RealIP(),
		UserAgent:    req.UserAgent(),
		Action:       req.Method + " " + req.URL.Path,
		ResourcePath: req.URL.Path,
		ResourceType: audit.ResourceAuth,
		EventType:    event,
		Severity:     severity,
		Outcome:      outcome,
	}
	if a != nil {
		id := a.ID
		e.ActorID = &id
	}
	if cause != nil {
		msg := cause.Error()
		e.ErrorMessage = &msg
	}
	h.writer.Enqueue(e)
	c.Set(audit.HandledContextKey, true)
}
