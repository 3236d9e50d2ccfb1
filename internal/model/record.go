package model

import "time"

// RawRecord is one imported registration observation, not yet resolved to an
// identity. Rows are written by ingestion and immutable here except for the
// CanonicalID back-reference, which the matching engine sets exactly once.
type RawRecord struct {
	ID          int64     `json:"id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DateOfBirth time.Time `json:"date_of_birth"` // zero when missing or unparseable
	Sex         string    `json:"sex"`
	Category    string    `json:"category"`
	City        string    `json:"city"`
	Country     string    `json:"country"`
	PostalCode  string    `json:"postal_code"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`

	RegisteredAt time.Time `json:"registered_at"`
	SourceID     string    `json:"source_id"`

	// CanonicalID is the linked canonical entity, nil while unprocessed.
	CanonicalID *int64 `json:"canonical_id,omitempty"`
}

// HasIdentity reports whether the record carries the fields required for
// matching: a name and a validatable date of birth. Records failing this are
// counted as skipped and excluded from the run.
func (r RawRecord) HasIdentity() bool {
	return r.FirstName != "" && r.LastName != "" && !r.DateOfBirth.IsZero()
}

// CanonicalEntity is the persisted, deduplicated representation of one
// physical person. Owned exclusively by the matching engine.
type CanonicalEntity struct {
	ID          int64     `json:"id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DateOfBirth time.Time `json:"date_of_birth"`
	Sex         string    `json:"sex"`
	City        string    `json:"city"`
	Country     string    `json:"country"`
	PostalCode  string    `json:"postal_code"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`

	// Cohort is the earliest registration period seen for this person.
	// It only ever moves earlier, never later.
	Cohort Period `json:"cohort"`

	// LastRegistrationPeriod is the most recent period a linked registration
	// was observed in; LastRegisteredAt is the exact timestamp backing it and
	// is what the update recency guard compares against.
	LastRegistrationPeriod Period    `json:"last_registration_period"`
	LastRegisteredAt       time.Time `json:"last_registered_at"`
}
