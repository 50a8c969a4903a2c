package report

import (
	"time"

	"github.com/google/uuid"
)

// Type is the closed set of report generators.
type Type string

const (
	// TypeComplianceSummary aggregates audit entry counts by event type and
	// severity over a time window.
	TypeComplianceSummary Type = "compliance_summary"
	// TypePHIAccess summarizes protected-information access over a window.
	TypePHIAccess Type = "phi_access"
	// TypeSecurityActivity summarizes authentication and authorization
	// events over a window.
	TypeSecurityActivity Type = "security_activity"
)

func ValidType(t Type) bool {
	switch t {
	case TypeComplianceSummary, TypePHIAccess, TypeSecurityActivity:
		return true
	}
	return false
}

// Report is a persisted generation result. Parameters echo the request;
// Result holds the generator output.
type Report struct {
	ID          uuid.UUID      `json:"id"`
	Title       string         `json:"title"`
	ReportType  Type           `json:"report_type"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	GeneratedBy *uuid.UUID     `json:"generated_by,omitempty"`
	GeneratedAt *time.Time     `json:"generated_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
