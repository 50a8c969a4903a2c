package actor

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Handler serves actor administration. Routes are admin-gated at
// registration; session endpoints live with the auth platform.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Deactivate)
}

type createRequest struct {
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	Password   string     `json:"password"`
	Role       Role       `json:"role"`
	AccessTier AccessTier `json:"access_tier"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	a, err := h.svc.Register(c.Request().Context(), req.Email, req.Name, req.Password, req.Role, req.AccessTier)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicate):
			return echo.NewHTTPError(http.StatusConflict, "actor with this email already exists")
		case errors.Is(err, ErrWeakPassword):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrIdentifierExhausted):
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid actor id")
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "actor not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "actor lookup failed")
	}
	return c.JSON(http.StatusOK, a)
}

type updateRequest struct {
	Name       string     `json:"name"`
	Role       Role       `json:"role"`
	AccessTier AccessTier `json:"access_tier"`
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid actor id")
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" || !ValidRole(req.Role) || !ValidTier(req.AccessTier) {
		return echo.NewHTTPError(http.StatusBadRequest, "name, role, and access_tier are required")
	}

	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "actor not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "actor lookup failed")
	}

	a.Name = req.Name
	a.Role = req.Role
	a.AccessTier = req.AccessTier
	if err := h.svc.Update(c.Request().Context(), a); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "actor not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "actor update failed")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Deactivate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid actor id")
	}
	if err := h.svc.Deactivate(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "actor not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "actor deactivation failed")
	}
	return c.NoContent(http.StatusNoContent)
}
