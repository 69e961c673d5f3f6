package patient

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists patients in the tenant schema. Lookups that find
// nothing return (nil, nil).
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByEmiratesID(ctx context.Context, normalizedID string) (*Patient, error)
	GetByMRN(ctx context.Context, mrn string) (*Patient, error)
	Create(ctx context.Context, p *Patient) error
	Update(ctx context.Context, p *Patient) error
}
