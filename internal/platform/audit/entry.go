package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType is the closed set of compliance event types.
type EventType string

const (
	EventCreate           EventType = "create"
	EventRead             EventType = "read"
	EventUpdate           EventType = "update"
	EventDelete           EventType = "delete"
	EventLogin            EventType = "login"
	EventLogout           EventType = "logout"
	EventFailedLogin      EventType = "failed_login"
	EventCredentialChange EventType = "credential_change"
	EventExport           EventType = "export"
	EventImport           EventType = "import"
	EventUpload           EventType = "upload"
	EventDownload         EventType = "download"
	EventReportGeneration EventType = "report_generation"
	EventAccessDenied     EventType = "access_denied"
	EventSystemError      EventType = "system_error"
)

// Severity grades the compliance impact of an event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Outcome is the closed set of event outcomes. Warning is never auto-derived;
// it is reserved for manual entries.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeWarning Outcome = "warning"
)

// ResourceType is the closed set of resource families an event can touch.
type ResourceType string

const (
	ResourceActor    ResourceType = "actor"
	ResourcePatient  ResourceType = "patient"
	ResourceDocument ResourceType = "document"
	ResourceReport   ResourceType = "report"
	ResourceAuth     ResourceType = "auth"
	ResourceSystem   ResourceType = "system"
)

// HandledContextKey is set on the request context by handlers and guards
// that record their own audit entry, so the capture middleware does not
// record a second one for the same request.
const HandledContextKey = "audit_handled"

// JustificationUnspecifiedPHI marks a PHI access where no individual field
// could be identified from the request shape. Field detection inspects
// top-level body/query keys only, so this tag keeps the
// phiAccessed => non-empty field list invariant honest instead of silently
// claiming full coverage.
const JustificationUnspecifiedPHI = "unspecified-phi"

// SecurityEventTypes are the event types surfaced by the security-events view.
var SecurityEventTypes = []EventType{
	EventLogin, EventLogout, EventFailedLogin, EventCredentialChange, EventAccessDenied,
}

// Entry is an immutable record of one compliance-relevant action.
// Entries are created once by the Writer and never mutated afterwards.
type Entry struct {
	ID           uuid.UUID      `json:"id"`
	ActorID      *uuid.UUID     `json:"actor_id,omitempty"`
	OriginIP     string         `json:"origin_ip"`
	UserAgent    string         `json:"user_agent"`
	Action       string         `json:"action"`
	ResourcePath string         `json:"resource_path"`
	ResourceID   *string        `json:"resource_id,omitempty"`
	ResourceType ResourceType   `json:"resource_type"`
	EventType    EventType      `json:"event_type"`
	Severity     Severity       `json:"severity"`
	Outcome      Outcome        `json:"outcome"`
	PHIAccessed  bool           `json:"phi_accessed"`
	PHIFields    []string       `json:"phi_fields,omitempty"`
	Detail       map[string]any `json:"detail,omitempty"`
	OldValues    map[string]any `json:"old_values,omitempty"`
	NewValues    map[string]any `json:"new_values,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
	Duration     time.Duration  `json:"duration"`
	CreatedAt    time.Time      `json:"created_at"`
}

var validEventTypes = map[EventType]bool{
	EventCreate: true, EventRead: true, EventUpdate: true, EventDelete: true,
	EventLogin: true, EventLogout: true, EventFailedLogin: true,
	EventCredentialChange: true, EventExport: true, EventImport: true,
	EventUpload: true, EventDownload: true, EventReportGeneration: true,
	EventAccessDenied: true, EventSystemError: true,
}

var validSeverities = map[Severity]bool{
	SeverityLow: true, SeverityMedium: true, SeverityHigh: true, SeverityCritical: true,
}

var validOutcomes = map[Outcome]bool{
	OutcomeSuccess: true, OutcomeFailure: true, OutcomeWarning: true,
}

var validResourceTypes = map[ResourceType]bool{
	ResourceActor: true, ResourcePatient: true, ResourceDocument: true,
	ResourceReport: true, ResourceAuth: true, ResourceSystem: true,
}

// secretKeys are value-snapshot keys that must never be persisted verbatim.
var secretKeys = map[string]bool{
	"password":      true,
	"password_hash": true,
	"new_password":  true,
	"old_password":  true,
	"token":         true,
	"refresh_token": true,
	"access_token":  true,
	"secret":        true,
	"authorization": true,
}

// Validate reports whether the event type is a member of the closed set.
func (t EventType) Validate() error {
	if !validEventTypes[t] {
		return fmt.Errorf("invalid event type %q", t)
	}
	return nil
}

// Validate reports whether the severity is a member of the closed set.
func (s Severity) Validate() error {
	if !validSeverities[s] {
		return fmt.Errorf("invalid severity %q", s)
	}
	return nil
}

// Validate reports whether the outcome is a member of the closed set.
func (o Outcome) Validate() error {
	if !validOutcomes[o] {
		return fmt.Errorf("invalid outcome %q", o)
	}
	return nil
}

// Validate reports whether the resource type is a member of the closed set.
func (r ResourceType) Validate() error {
	if !validResourceTypes[r] {
		return fmt.Errorf("invalid resource type %q", r)
	}
	return nil
}

// Validate checks the Entry against its invariants: exactly one event type
// and outcome from the closed sets, and a non-empty PHI field list whenever
// phi_accessed is set.
func (e *Entry) Validate() error {
	if !validEventTypes[e.EventType] {
		return fmt.Errorf("audit entry: invalid event type %q", e.EventType)
	}
	if !validSeverities[e.Severity] {
		return fmt.Errorf("audit entry: invalid severity %q", e.Severity)
	}
	if !validOutcomes[e.Outcome] {
		return fmt.Errorf("audit entry: invalid outcome %q", e.Outcome)
	}
	if !validResourceTypes[e.ResourceType] {
		return fmt.Errorf("audit entry: invalid resource type %q", e.ResourceType)
	}
	if e.PHIAccessed && len(e.PHIFields) == 0 {
		return fmt.Errorf("audit entry: phi_accessed requires a non-empty phi field list")
	}
	if e.Action == "" {
		return fmt.Errorf("audit entry: action is required")
	}
	return nil
}

// Redact replaces secret values in the old/new snapshots so that credentials
// never reach the audit store. It mutates the entry in place and is called by
// the Writer before persistence.
func (e *Entry) Redact() {
	e.OldValues = redactMap(e.OldValues)
	e.NewValues = redactMap(e.NewValues)
}

func redactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if secretKeys[strings.ToLower(k)] {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = v
	}
	return out
}
