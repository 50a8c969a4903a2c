package audit

import "testing"

func TestEntryValidate(t *testing.T) {
	valid := Entry{
		Action:       "GET /patients/1",
		ResourceType: ResourcePatient,
		EventType:    EventRead,
		Severity:     SeverityHigh,
		Outcome:      OutcomeSuccess,
		PHIAccessed:  true,
		PHIFields:    []string{"name"},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid entry rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Entry)
	}{
		{"unknown event type", func(e *Entry) { e.EventType = "coffee_break" }},
		{"unknown severity", func(e *Entry) { e.Severity = "extreme" }},
		{"unknown outcome", func(e *Entry) { e.Outcome = "maybe" }},
		{"unknown resource type", func(e *Entry) { e.ResourceType = "spaceship" }},
		{"phi without fields", func(e *Entry) { e.PHIFields = nil }},
		{"missing action", func(e *Entry) { e.Action = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			if err := e.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestEntryRedact(t *testing.T) {
	e := Entry{
		OldValues: map[string]any{"password": "hunter2", "name": "A"},
		NewValues: map[string]any{"Refresh_Token": "tok", "email": "a@b.c"},
	}
	e.Redact()

	if e.OldValues["password"] != "[REDACTED]" {
		t.Errorf("password not redacted: %v", e.OldValues["password"])
	}
	if e.OldValues["name"] != "A" {
		t.Errorf("non-secret value mangled: %v", e.OldValues["name"])
	}
	if e.NewValues["Refresh_Token"] != "[REDACTED]" {
		t.Errorf("secret key matching should be case-insensitive: %v", e.NewValues["Refresh_Token"])
	}
	if e.NewValues["email"] != "a@b.c" {
		t.Errorf("non-secret value mangled: %v", e.NewValues["email"])
	}
}
