package claims

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hims/hims/internal/domain/dha"
)

// Status is the local lifecycle state of a claim. Transitions run
// SUBMITTED to APPROVED or REJECTED, then PAID, and are only ever driven
// by fresh payer answers.
type Status string

const (
	StatusSubmitted Status = "SUBMITTED"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusPaid      Status = "PAID"
)

// ParseStatus maps a client-supplied value onto a known lifecycle state.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToUpper(s)); st {
	case StatusSubmitted, StatusApproved, StatusRejected, StatusPaid:
		return st, true
	default:
		return "", false
	}
}

// FromWire maps a payer-side claim status onto the local state machine.
// Pending and in-review are reported as still SUBMITTED; an unrecognized
// wire value also maps to SUBMITTED so a bad enum never corrupts a record.
func FromWire(ws dha.WireClaimStatus) Status {
	switch ws {
	case dha.WireApproved, dha.WirePartiallyApproved:
		return StatusApproved
	case dha.WireRejected:
		return StatusRejected
	case dha.WirePaid:
		return StatusPaid
	default:
		return StatusSubmitted
	}
}

// ClaimRecord tracks one claim against one payer for one invoice. The
// (invoice, payer) pair is unique; resubmission updates in place.
type ClaimRecord struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	InvoiceID      uuid.UUID  `db:"invoice_id" json:"invoice_id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	PayerID        string     `db:"payer_id" json:"payer_id"`
	ClaimReference string     `db:"claim_reference" json:"claim_reference"`
	Status         Status     `db:"status" json:"status"`
	GrossAmount    float64    `db:"gross_amount" json:"gross_amount"`
	ApprovedAmount *float64   `db:"approved_amount" json:"approved_amount,omitempty"`
	DenialReason   *string    `db:"denial_reason" json:"denial_reason,omitempty"`
	RemittanceID   *string    `db:"remittance_id" json:"remittance_id,omitempty"`
	SubmittedAt    *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	StatusAt       *time.Time `db:"status_at" json:"status_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
