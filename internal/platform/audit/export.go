package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// ExportHeader is the fixed column order of the flat-file export.
var ExportHeader = []string{
	"timestamp", "actor_id", "origin_ip", "action", "resource",
	"event_type", "severity", "outcome", "phi_accessed", "error_message", "context",
}

// ExportCSV writes the given entries as UTF-8 delimited text: one header row
// followed by one row per entry. encoding/csv quotes fields containing the
// delimiter or quotes and doubles embedded quotes per RFC 4180, so the file
// round-trips through any compliant reader.
func ExportCSV(w io.Writer, entries []*Entry) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(ExportHeader); err != nil {
		return fmt.Errorf("audit export: write header: %w", err)
	}

	for _, e := range entries {
		actorID := ""
		if e.ActorID != nil {
			actorID = e.ActorID.String()
		}
		errMsg := ""
		if e.ErrorMessage != nil {
			errMsg = *e.ErrorMessage
		}
		detail := ""
		if len(e.Detail) > 0 {
			b, err := json.Marshal(e.Detail)
			if err != nil {
				return fmt.Errorf("audit export: marshal detail: %w", err)
			}
			detail = string(b)
		}

		record := []string{
			e.OccurredAt.UTC().Format(time.RFC3339Nano),
			actorID,
			e.OriginIP,
			e.Action,
			e.ResourcePath,
			string(e.EventType),
			string(e.Severity),
			string(e.Outcome),
			strconv.FormatBool(e.PHIAccessed),
			errMsg,
			detail,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("audit export: write record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
