package claims

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hims/hims/internal/domain/billing"
)

// Repository persists claim records. Lookups that find nothing return
// (nil, nil).
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*ClaimRecord, error)
	GetByInvoiceAndPayer(ctx context.Context, invoiceID uuid.UUID, payerID string) (*ClaimRecord, error)
	ListByReference(ctx context.Context, claimReference string) ([]*ClaimRecord, error)
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*ClaimRecord, error)
	ListByStatus(ctx context.Context, status Status) ([]*ClaimRecord, error)
	// ListStale returns records still SUBMITTED whose submission date falls
	// inside the age window, oldest first, bounded by limit.
	ListStale(ctx context.Context, since time.Time, limit int) ([]*ClaimRecord, error)
	Create(ctx context.Context, rec *ClaimRecord) error
	Update(ctx context.Context, rec *ClaimRecord) error
}

// InvoiceSource reads the billed invoice a claim is built from.
type InvoiceSource interface {
	GetInvoice(ctx context.Context, id uuid.UUID) (*billing.Invoice, error)
	GetLineItems(ctx context.Context, invoiceID uuid.UUID) ([]*billing.InvoiceLineItem, error)
}
