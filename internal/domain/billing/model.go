package billing

import (
	"time"

	"github.com/google/uuid"
)

// Invoice is the billed encounter a claim is raised from. Invoicing itself
// is owned by the billing module; claims only read these.
type Invoice struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	InvoiceNumber      string     `db:"invoice_number" json:"invoice_number"`
	PayerID            string     `db:"payer_id" json:"payer_id"`
	MemberID           string     `db:"member_id" json:"member_id"`
	EncounterType      string     `db:"encounter_type" json:"encounter_type,omitempty"`
	EncounterStart     *time.Time `db:"encounter_start" json:"encounter_start,omitempty"`
	EncounterEnd       *time.Time `db:"encounter_end" json:"encounter_end,omitempty"`
	PrimaryDiagnosis   string     `db:"primary_diagnosis" json:"primary_diagnosis,omitempty"`
	SecondaryDiagnoses []string   `db:"secondary_diagnoses" json:"secondary_diagnoses,omitempty"`
	TotalAmount        float64    `db:"total_amount" json:"total_amount"`
	Currency           string     `db:"currency" json:"currency"`
	Status             string     `db:"status" json:"status"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
}

// InvoiceLineItem is one billed service line. Each line becomes one claim
// activity on submission.
type InvoiceLineItem struct {
	ID          uuid.UUID `db:"id" json:"id"`
	InvoiceID   uuid.UUID `db:"invoice_id" json:"invoice_id"`
	Code        string    `db:"code" json:"code"`
	Description string    `db:"description" json:"description,omitempty"`
	Quantity    float64   `db:"quantity" json:"quantity"`
	UnitPrice   float64   `db:"unit_price" json:"unit_price"`
	NetAmount   float64   `db:"net_amount" json:"net_amount"`
	ServiceDate time.Time `db:"service_date" json:"service_date"`
}

// CopayPayment is a copay collected from the patient at the desk. Summed
// per fiscal year these drive deductible accumulation.
type CopayPayment struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	InvoiceID uuid.UUID `db:"invoice_id" json:"invoice_id"`
	Amount    float64   `db:"amount" json:"amount"`
	Method    string    `db:"method" json:"method,omitempty"`
	PaidAt    time.Time `db:"paid_at" json:"paid_at"`
}
