package audit

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestExportCSV(t *testing.T) {
	actorID := uuid.New()
	errMsg := `bad, "quoted" value`
	entries := []*Entry{
		{
			ActorID:      &actorID,
			OriginIP:     "10.0.0.1",
			Action:       "GET /patients/1",
			ResourcePath: "/patients/1",
			EventType:    EventRead,
			Severity:     SeverityHigh,
			Outcome:      OutcomeSuccess,
			PHIAccessed:  true,
			OccurredAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Detail:       map[string]any{"note": "routine"},
		},
		{
			Action:       "POST /auth/login",
			ResourcePath: "/auth/login",
			EventType:    EventFailedLogin,
			Severity:     SeverityHigh,
			Outcome:      OutcomeFailure,
			ErrorMessage: &errMsg,
			OccurredAt:   time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	if err := ExportCSV(&buf, entries); err != nil {
		t.Fatalf("export: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("exported file does not parse as csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d rows, want header plus 2", len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(ExportHeader, ",") {
		t.Errorf("header = %v, want %v", records[0], ExportHeader)
	}

	first := records[1]
	if first[1] != actorID.String() {
		t.Errorf("actor_id = %q, want %q", first[1], actorID)
	}
	if first[8] != "true" {
		t.Errorf("phi_accessed = %q, want true", first[8])
	}
	if !strings.Contains(first[10], "routine") {
		t.Errorf("context column lost the detail payload: %q", first[10])
	}

	second := records[2]
	if second[9] != errMsg {
		t.Errorf("error message did not survive quoting: %q", second[9])
	}
	if second[1] != "" {
		t.Errorf("unattributed entry has actor_id %q", second[1])
	}
}

func TestExportCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportCSV(&buf, nil); err != nil {
		t.Fatalf("export: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("empty export should still carry the header row, got %d rows", len(records))
	}
}
