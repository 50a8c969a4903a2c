package patient

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carevault/carevault/internal/platform/audit"
	"github.com/carevault/carevault/internal/platform/auth"
)

// Handler serves the patient CRUD surface. Reads and creates are audited by
// the capture middleware; updates record their own entry so the trail carries
// before/after value snapshots.
type Handler struct {
	svc    *Service
	writer *audit.Writer
}

func NewHandler(svc *Service, writer *audit.Writer) *Handler {
	return &Handler{svc: svc, writer: writer}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Deactivate)
}

func (h *Handler) Create(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.Create(c.Request().Context(), &p); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return echo.NewHTTPError(http.StatusConflict, "patient with this mrn already exists")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "patient lookup failed")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	patients, total, err := h.svc.List(c.Request().Context(), limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "patient list failed")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"patients": patients,
		"total":    total,
	})
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	old, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "patient lookup failed")
	}

	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p.ID = id
	p.MRN = old.MRN
	p.Active = old.Active
	p.CreatedAt = old.CreatedAt
	if err := h.svc.Update(c.Request().Context(), &p); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	h.recordUpdate(c, old, &p)
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Deactivate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	if err := h.svc.Deactivate(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "patient deactivation failed")
	}
	return c.NoContent(http.StatusNoContent)
}

// recordUpdate writes an update entry carrying before/after snapshots, which
// the generic capture middleware cannot reconstruct from the request alone.
func (h *Handler) recordUpdate(c echo.Context, old, updated *Patient) {
	req := c.Request()
	rid := updated.ID.String()
	e := audit.Entry{
		OriginIP:     c.RealIP(),
		UserAgent:    req.UserAgent(),
		Action:       req.Method + " " + req.URL.Path,
		ResourcePath: req.URL.Path,
		ResourceID:   &rid,
		ResourceType: audit.ResourcePatient,
		EventType:    audit.EventUpdate,
		Severity:     audit.SeverityHigh,
		Outcome:      audit.OutcomeSuccess,
		PHIAccessed:  true,
		PHIFields:    changedPHIFields(old, updated),
		OldValues:    snapshot(old),
		NewValues:    snapshot(updated),
	}
	if a := auth.ActorFromContext(c); a != nil {
		actorID := a.ID
		e.ActorID = &actorID
	}
	h.writer.Enqueue(e)
	c.Set(audit.HandledContextKey, true)
}

func changedPHIFields(old, updated *Patient) []string {
	var fields []string
	if old.FirstName != updated.FirstName || old.LastName != updated.LastName {
		fields = append(fields, "name")
	}
	if !equalDates(old, updated) {
		fields = append(fields, "date_of_birth")
	}
	if old.Phone != updated.Phone {
		fields = append(fields, "phone")
	}
	if old.Email != updated.Email {
		fields = append(fields, "email")
	}
	if old.Address != updated.Address {
		fields = append(fields, "address")
	}
	if old.MedicalHistory != updated.MedicalHistory {
		fields = append(fields, "medical_history")
	}
	if len(fields) == 0 {
		fields = []string{audit.JustificationUnspecifiedPHI}
	}
	return fields
}

func equalDates(old, updated *Patient) bool {
	if old.DateOfBirth == nil || updated.DateOfBirth == nil {
		return old.DateOfBirth == updated.DateOfBirth
	}
	return old.DateOfBirth.Equal(*updated.DateOfBirth)
}

func snapshot(p *Patient) map[string]any {
	m := map[string]any{
		"first_name": p.FirstName,
		"last_name":  p.LastName,
		"phone":      p.Phone,
		"email":      p.Email,
		"address":    p.Address,
	}
	if p.DateOfBirth != nil {
		m["date_of_birth"] = p.DateOfBirth.Format("2006-01-02")
	}
	return m
}
