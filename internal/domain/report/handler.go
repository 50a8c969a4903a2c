package report

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carevault/carevault/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/generate", h.Generate)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
}

type generateRequest struct {
	ReportType Type   `json:"report_type"`
	Title      string `json:"title"`
	From       string `json:"from"`
	To         string `json:"to"`
}

func (h *Handler) Generate(c echo.Context) error {
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if !ValidType(req.ReportType) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown report_type")
	}

	from, err := parseOptionalTime(req.From)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid from timestamp")
	}
	to, err := parseOptionalTime(req.To)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid to timestamp")
	}

	a := auth.ActorFromContext(c)
	if a == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	rep, err := h.svc.Generate(c.Request().Context(), req.ReportType, req.Title, from, to, a.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "report generation failed")
	}
	return c.JSON(http.StatusCreated, rep)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid report id")
	}
	rep, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "report not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "report lookup failed")
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	reports, total, err := h.svc.List(c.Request().Context(), limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "report list failed")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"reports": reports,
		"total":   total,
	})
}

func parseOptionalTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
