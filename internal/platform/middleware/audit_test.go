package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carevault/carevault/internal/platform/audit"
)

func captureRequest(t *testing.T, method, path, body string, handler echo.HandlerFunc) []*audit.Entry {
	t.Helper()
	store := audit.NewRepoMem()
	writer := audit.NewWriter(store, zerolog.Nop(), 16, time.Second)

	e := echo.New()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	mw := AuditCapture(writer, []string{"/health", "/metrics"})
	if err := mw(handler)(c); err != nil {
		c.Error(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := writer.Close(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	return store.All()
}

func TestCaptureRecordsOneEntry(t *testing.T) {
	entries := captureRequest(t, http.MethodGet, "/patients/41dbd0a6", "", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want exactly 1", len(entries))
	}

	e := entries[0]
	if e.EventType != audit.EventRead {
		t.Errorf("event type = %s, want read", e.EventType)
	}
	if e.ResourceType != audit.ResourcePatient {
		t.Errorf("resource type = %s, want patient", e.ResourceType)
	}
	if e.Severity != audit.SeverityHigh {
		t.Errorf("severity = %s, want high", e.Severity)
	}
	if e.Outcome != audit.OutcomeSuccess {
		t.Errorf("outcome = %s, want success", e.Outcome)
	}
	if !e.PHIAccessed {
		t.Error("patient read should be flagged as PHI access")
	}
	if e.ResourceID == nil || *e.ResourceID != "41dbd0a6" {
		t.Errorf("resource id = %v, want 41dbd0a6", e.ResourceID)
	}
}

func TestCaptureDetectsPHIFieldsFromBody(t *testing.T) {
	body := `{"first_name":"Ada","last_name":"L","mrn":"X1","note":"ok"}`
	sawBody := ""
	entries := captureRequest(t, http.MethodPost, "/patients", body, func(c echo.Context) error {
		b, _ := io.ReadAll(c.Request().Body)
		sawBody = string(b)
		return c.NoContent(http.StatusCreated)
	})

	if sawBody != body {
		t.Errorf("handler did not receive the full body: %q", sawBody)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	want := []string{"identifier_number", "name"}
	if !reflect.DeepEqual(entries[0].PHIFields, want) {
		t.Errorf("phi fields = %v, want %v", entries[0].PHIFields, want)
	}
}

func TestCaptureDerivesStatusFromHandlerError(t *testing.T) {
	entries := captureRequest(t, http.MethodGet, "/patients/1", "", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	})
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Outcome != audit.OutcomeFailure {
		t.Errorf("outcome = %s, want failure", entries[0].Outcome)
	}
	if entries[0].ErrorMessage == nil {
		t.Error("handler error message was not recorded")
	}
}

func TestCaptureSkipsExemptPaths(t *testing.T) {
	entries := captureRequest(t, http.MethodGet, "/health", "", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if len(entries) != 0 {
		t.Errorf("exempt path recorded %d entries", len(entries))
	}
}

func TestCaptureSkipsHandledRequests(t *testing.T) {
	entries := captureRequest(t, http.MethodPost, "/auth/login", "", func(c echo.Context) error {
		c.Set(audit.HandledContextKey, true)
		return c.NoContent(http.StatusOK)
	})
	if len(entries) != 0 {
		t.Errorf("handled request recorded %d duplicate entries", len(entries))
	}
}

func TestCaptureIgnoresOversizedBody(t *testing.T) {
	big := `{"first_name":"` + strings.Repeat("x", maxBodySnapshot) + `"}`
	entries := captureRequest(t, http.MethodPost, "/patients", big, func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	})
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	// Oversized payloads are not inspected, so the minimum classification
	// applies.
	want := []string{audit.JustificationUnspecifiedPHI}
	if !reflect.DeepEqual(entries[0].PHIFields, want) {
		t.Errorf("phi fields = %v, want %v", entries[0].PHIFields, want)
	}
}
