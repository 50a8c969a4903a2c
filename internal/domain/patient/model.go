package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient is a clinical subject record. Every field below the identifiers is
// protected health information; access flows through the audited HTTP surface
// only.
type Patient struct {
	ID             uuid.UUID  `json:"id"`
	MRN            string     `json:"mrn"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	DateOfBirth    *time.Time `json:"date_of_birth,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	Email          string     `json:"email,omitempty"`
	Address        string     `json:"address,omitempty"`
	MedicalHistory string     `json:"medical_history,omitempty"`
	Active         bool       `json:"active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
