package auditlog

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carevault/carevault/internal/platform/audit"
)

// Handler serves the compliance query and export surface over the audit
// trail. All routes are read-only and admin-gated at registration; reads of
// the trail do not generate further audit entries.
type Handler struct {
	reader audit.Reader
}

func NewHandler(reader audit.Reader) *Handler {
	return &Handler{reader: reader}
}

// RegisterRoutes mounts the audit query routes on the given group. The caller
// attaches the admin guard.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.Search)
	g.GET("/export", h.Export)
	g.GET("/phi-access", h.PHIAccess)
	g.GET("/security-events", h.SecurityEvents)
	g.GET("/stats/overview", h.StatsOverview)
	g.GET("/user/:id/activity", h.UserActivity)
	g.GET("/:id", h.GetByID)
}

type searchResponse struct {
	Entries []*audit.Entry `json:"entries"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// Search lists entries matching the query filters, newest first.
func (h *Handler) Search(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.respond(c, f)
}

func (h *Handler) GetByID(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid entry id")
	}
	e, err := h.reader.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "audit entry not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "audit lookup failed")
	}
	return c.JSON(http.StatusOK, e)
}

// PHIAccess lists entries that touched protected health information.
func (h *Handler) PHIAccess(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	phi := true
	f.PHIAccessed = &phi
	return h.respond(c, f)
}

// SecurityEvents lists authentication and authorization events.
func (h *Handler) SecurityEvents(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(f.EventTypes) == 0 {
		f.EventTypes = audit.SecurityEventTypes
	}
	return h.respond(c, f)
}

// UserActivity lists entries attributed to one actor.
func (h *Handler) UserActivity(c echo.Context) error {
	actorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid actor id")
	}
	f, err := parseFilter(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f.ActorID = &actorID
	return h.respond(c, f)
}

type statsOverview struct {
	ByEventType map[string]int `json:"by_event_type"`
	BySeverity  map[string]int `json:"by_severity"`
	From        *time.Time     `json:"from,omitempty"`
	To          *time.Time     `json:"to,omitempty"`
}

// StatsOverview aggregates entry counts by event type and severity over an
// optional time window.
func (h *Handler) StatsOverview(c echo.Context) error {
	from, to, err := parseWindow(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	byType, err := h.reader.CountByEventType(ctx, from, to)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "audit stats failed")
	}
	bySeverity, err := h.reader.CountBySeverity(ctx, from, to)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "audit stats failed")
	}

	return c.JSON(http.StatusOK, statsOverview{
		ByEventType: byType,
		BySeverity:  bySeverity,
		From:        from,
		To:          to,
	})
}

// exportPageSize is the page size used when walking the full filtered set
// for export. It matches the search cap so each page is one store round trip.
const exportPageSize = 1000

// Export streams the complete filtered set as a CSV attachment. Unlike
// Search, export ignores pagination parameters: a compliance export must
// contain every matching entry, so the handler pages through the store until
// the reported total is exhausted.
func (h *Handler) Export(c echo.Context) error {
	f, err := parseFilter(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f.Limit = exportPageSize
	f.Offset = 0

	var entries []*audit.Entry
	for {
		page, total, err := h.reader.Search(c.Request().Context(), f)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "audit export failed")
		}
		entries = append(entries, page...)
		if len(entries) >= total || len(page) == 0 {
			break
		}
		f.Offset += len(page)
	}

	filename := fmt.Sprintf("audit-export-%s.csv", time.Now().UTC().Format("20060102-150405"))
	c.Response().Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	c.Response().WriteHeader(http.StatusOK)
	return audit.ExportCSV(c.Response(), entries)
}

func (h *Handler) respond(c echo.Context, f audit.Filter) error {
	f.Normalize()
	entries, total, err := h.reader.Search(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "audit search failed")
	}
	return c.JSON(http.StatusOK, searchResponse{
		Entries: entries,
		Total:   total,
		Limit:   f.Limit,
		Offset:  f.Offset,
	})
}

// parseFilter builds an audit filter from query parameters, rejecting
// malformed values instead of silently ignoring them.
func parseFilter(c echo.Context) (audit.Filter, error) {
	var f audit.Filter

	from, to, err := parseWindow(c)
	if err != nil {
		return f, err
	}
	f.From, f.To = from, to

	if v := c.QueryParam("actor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, fmt.Errorf("invalid actor_id %q", v)
		}
		f.ActorID = &id
	}
	if v := c.QueryParam("event_type"); v != "" {
		for _, part := range strings.Split(v, ",") {
			et := audit.EventType(strings.TrimSpace(part))
			if et.Validate() != nil {
				return f, fmt.Errorf("invalid event_type %q", part)
			}
			f.EventTypes = append(f.EventTypes, et)
		}
	}
	if v := c.QueryParam("severity"); v != "" {
		s := audit.Severity(v)
		if s.Validate() != nil {
			return f, fmt.Errorf("invalid severity %q", v)
		}
		f.Severity = s
	}
	if v := c.QueryParam("outcome"); v != "" {
		o := audit.Outcome(v)
		if o.Validate() != nil {
			return f, fmt.Errorf("invalid outcome %q", v)
		}
		f.Outcome = o
	}
	if v := c.QueryParam("resource_type"); v != "" {
		rt := audit.ResourceType(v)
		if rt.Validate() != nil {
			return f, fmt.Errorf("invalid resource_type %q", v)
		}
		f.ResourceType = rt
	}
	if v := c.QueryParam("phi"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid phi %q", v)
		}
		f.PHIAccessed = &b
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid offset %q", v)
		}
		f.Offset = n
	}
	return f, nil
}

func parseWindow(c echo.Context) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid from timestamp %q", v)
		}
		from = &t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid to timestamp %q", v)
		}
		to = &t
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, fmt.Errorf("time window is inverted")
	}
	return from, to, nil
}
