package audit

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// phiFieldLabels maps known sensitive request keys to the canonical PHI field
// label recorded on the entry. Detection inspects top-level keys only; nested
// or aliased fields are not found, so the resulting list is a minimum
// classification, not an exhaustive one.
var phiFieldLabels = map[string]string{
	"name":            "name",
	"first_name":      "name",
	"last_name":       "name",
	"date_of_birth":   "date_of_birth",
	"dob":             "date_of_birth",
	"mrn":             "identifier_number",
	"ssn":             "identifier_number",
	"identifier":      "identifier_number",
	"phone":           "phone",
	"email":           "email",
	"address":         "address",
	"medical_history": "medical_history",
}

// phiResourceTypes are the resource families whose access always counts as
// PHI exposure.
var phiResourceTypes = map[ResourceType]bool{
	ResourcePatient:  true,
	ResourceDocument: true,
	ResourceReport:   true,
}

// Classify maps a request/response shape to an audit entry draft. It is total
// and deterministic: any (method, path, status, payload) quadruple yields the
// same draft on every invocation, and no input causes a panic. The caller
// enriches the draft with actor identity, origin address, and timing before
// handing it to the Writer.
func Classify(method, path string, status int, payload map[string]any) Entry {
	e := Entry{
		Action:       fmt.Sprintf("%s %s", method, path),
		ResourcePath: path,
		ResourceType: classifyResourceType(path),
		EventType:    classifyEventType(method, path),
	}

	// Severity defaults by resource family.
	switch e.ResourceType {
	case ResourcePatient, ResourceDocument:
		e.Severity = SeverityHigh
	case ResourceActor, ResourceAuth:
		e.Severity = SeverityMedium
	default:
		e.Severity = SeverityLow
	}

	// 401/403 raise severity and force a failure outcome; severity is only
	// ever raised here, never lowered.
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		if severityRank(e.Severity) < severityRank(SeverityHigh) {
			e.Severity = SeverityHigh
		}
	}

	if status >= 400 {
		e.Outcome = OutcomeFailure
	} else {
		e.Outcome = OutcomeSuccess
	}

	if phiResourceTypes[e.ResourceType] {
		e.PHIAccessed = true
		e.PHIFields = detectPHIFields(payload)
		if len(e.PHIFields) == 0 {
			e.PHIFields = []string{JustificationUnspecifiedPHI}
		}
	}

	if id := extractResourceID(path); id != "" {
		e.ResourceID = &id
	}

	return e
}

// classifyEventType applies the priority rules: auth markers first, then the
// HTTP method with create-verb sub-path refinements.
func classifyEventType(method, path string) EventType {
	lower := strings.ToLower(path)

	switch {
	case strings.Contains(lower, "/auth/login"), strings.Contains(lower, "/auth/refresh"):
		return EventLogin
	case strings.Contains(lower, "/auth/logout"):
		return EventLogout
	}

	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead:
		if strings.Contains(lower, "/export") {
			return EventExport
		}
		if strings.Contains(lower, "/download") {
			return EventDownload
		}
		return EventRead
	case http.MethodPost:
		switch {
		case strings.Contains(lower, "/upload"):
			return EventUpload
		case strings.Contains(lower, "/export"):
			return EventExport
		case strings.Contains(lower, "/import"):
			return EventImport
		case classifyResourceType(path) == ResourceReport:
			return EventReportGeneration
		}
		return EventCreate
	case http.MethodPut, http.MethodPatch:
		return EventUpdate
	case http.MethodDelete:
		return EventDelete
	default:
		return EventRead
	}
}

// classifyResourceType derives the resource family from the first meaningful
// path segment. Unmatched paths classify as system.
func classifyResourceType(path string) ResourceType {
	seg := firstSegment(path)
	switch {
	case strings.HasPrefix(seg, "patient"):
		return ResourcePatient
	case strings.HasPrefix(seg, "document"):
		return ResourceDocument
	case strings.HasPrefix(seg, "report"):
		return ResourceReport
	case strings.HasPrefix(seg, "actor"), strings.HasPrefix(seg, "user"):
		return ResourceActor
	case seg == "auth":
		return ResourceAuth
	default:
		return ResourceSystem
	}
}

// firstSegment returns the first path segment after an optional /api/v1 prefix.
func firstSegment(path string) string {
	p := strings.ToLower(strings.TrimPrefix(path, "/api/v1"))
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return p
}

// extractResourceID returns the second path segment when it looks like an
// identifier (i.e. the request addresses a single resource).
func extractResourceID(path string) string {
	p := strings.TrimPrefix(path, "/api/v1")
	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	if len(segments) < 2 || segments[1] == "" {
		return ""
	}
	// Sub-collection verbs (upload, export, generate) are not identifiers.
	switch segments[1] {
	case "upload", "export", "import", "download", "generate", "search", "stats":
		return ""
	}
	return segments[1]
}

// detectPHIFields inspects top-level payload keys against the known
// sensitive-field set and returns the sorted, de-duplicated labels.
func detectPHIFields(payload map[string]any) []string {
	if len(payload) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	for k := range payload {
		if label, ok := phiFieldLabels[strings.ToLower(k)]; ok {
			seen[label] = true
		}
	}
	if len(seen) == 0 {
		return nil
	}
	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func severityRank(s Severity) int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}
