package insurance

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RecordRepository persists insurance records within the tenant schema.
// Lookups that find nothing return (nil, nil).
type RecordRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*InsuranceRecord, error)
	GetActivePrimary(ctx context.Context, patientID uuid.UUID) (*InsuranceRecord, error)
	GetByPolicyNumber(ctx context.Context, patientID uuid.UUID, policyNumber string) (*InsuranceRecord, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*InsuranceRecord, int, error)
	Create(ctx context.Context, rec *InsuranceRecord) error
	Update(ctx context.Context, rec *InsuranceRecord) error
	// DemotePrimary clears the primary flag on every record of the patient
	// so a newly synced record can take over as sole primary.
	DemotePrimary(ctx context.Context, patientID uuid.UUID) error
}

// PatientInfo is the slice of the patient chart the engine needs.
type PatientInfo struct {
	ID         uuid.UUID
	MRN        string
	FullName   string
	EmiratesID string
	Active     bool
}

// PatientDirectory resolves patients by id or by normalized insurance
// identifier (Emirates ID or member id). Not-found returns (nil, nil).
type PatientDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*PatientInfo, error)
	GetByIdentifier(ctx context.Context, normalizedID string) (*PatientInfo, error)
}

// PaymentHistory reports copay amounts collected from a patient inside a
// window, used to accumulate deductible and copay-cap usage.
type PaymentHistory interface {
	CopayTotalBetween(ctx context.Context, patientID uuid.UUID, from, to time.Time) (float64, error)
}
