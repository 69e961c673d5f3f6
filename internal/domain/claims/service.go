package claims

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hims/hims/internal/domain/dha"
	"github.com/hims/hims/internal/platform/db"
	"github.com/hims/hims/internal/platform/events"
)

// Bulk refresh defaults. Payer status is pull-based, so stale SUBMITTED
// claims are re-polled in bounded sweeps.
const (
	DefaultMaxAge     = 30 * 24 * time.Hour
	DefaultBatchLimit = 50
)

// ClaimGateway is the slice of the DHA gateway the tracker depends on.
type ClaimGateway interface {
	SubmitClaim(ctx context.Context, sub dha.ClaimSubmission) dha.ClaimSubmissionResponse
	GetClaimStatus(ctx context.Context, claimReference string) dha.ClaimStatusResponse
	GetRemittanceAdvice(ctx context.Context, remittanceID string) (*dha.RemittanceAdvice, error)
}

// Service drives a claim from submission through status known to paid,
// keeping the local record consistent with the payer's view.
type Service struct {
	repo     Repository
	invoices InvoiceSource
	gateway  ClaimGateway
	emitter  *events.Emitter
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, invoices InvoiceSource, gateway ClaimGateway,
	emitter *events.Emitter, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		invoices: invoices,
		gateway:  gateway,
		emitter:  emitter,
		logger:   logger.With().Str("component", "claims").Logger(),
		now:      time.Now,
	}
}

// Submit builds a claim from the invoice's line items, one activity per
// line, and sends it to the payer. The local record is only touched when
// the payer accepted the submission.
func (s *Service) Submit(ctx context.Context, invoiceID uuid.UUID) (*dha.ClaimSubmissionResponse, error) {
	invoice, err := s.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("invoice lookup: %w", err)
	}
	if invoice == nil {
		return nil, fmt.Errorf("invoice %s not found", invoiceID)
	}
	if invoice.PayerID == "" {
		return nil, fmt.Errorf("invoice %s has no payer", invoiceID)
	}

	lines, err := s.invoices.GetLineItems(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("line item lookup: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("invoice %s has no line items", invoiceID)
	}

	activities := make([]dha.ClaimActivity, 0, len(lines))
	var lineTotal float64
	for _, line := range lines {
		activities = append(activities, dha.ClaimActivity{
			Code:        line.Code,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Net:         line.NetAmount,
			ServiceDate: line.ServiceDate,
		})
		lineTotal += line.NetAmount
	}
	if math.Abs(lineTotal-invoice.TotalAmount) > 0.01 {
		s.logger.Warn().
			Str("invoice_id", invoiceID.String()).
			Float64("line_total", lineTotal).
			Float64("invoice_total", invoice.TotalAmount).
			Msg("line item total differs from invoice total")
	}

	currency := invoice.Currency
	if currency == "" {
		currency = "AED"
	}
	resp := s.gateway.SubmitClaim(ctx, dha.ClaimSubmission{
		ClaimID:            invoice.InvoiceNumber,
		MemberID:           invoice.MemberID,
		PayerID:            invoice.PayerID,
		EncounterType:      invoice.EncounterType,
		EncounterStart:     invoice.EncounterStart,
		EncounterEnd:       invoice.EncounterEnd,
		PrimaryDiagnosis:   invoice.PrimaryDiagnosis,
		SecondaryDiagnoses: invoice.SecondaryDiagnoses,
		GrossAmount:        invoice.TotalAmount,
		Currency:           currency,
		Activities:         activities,
	})
	if !resp.Success {
		return &resp, nil
	}

	if err := s.upsertSubmitted(ctx, invoice.ID, invoice.PatientID, invoice.PayerID,
		resp.ClaimReference, invoice.TotalAmount); err != nil {
		return nil, err
	}
	return &resp, nil
}

// upsertSubmitted records a successful submission, keyed by the invoice
// and payer pair. Resubmission overwrites the previous attempt.
func (s *Service) upsertSubmitted(ctx context.Context, invoiceID, patientID uuid.UUID,
	payerID, claimReference string, amount float64) error {
	now := s.now()

	existing, err := s.repo.GetByInvoiceAndPayer(ctx, invoiceID, payerID)
	if err != nil {
		return fmt.Errorf("claim record lookup: %w", err)
	}
	if existing != nil {
		existing.ClaimReference = claimReference
		existing.Status = StatusSubmitted
		existing.GrossAmount = amount
		existing.SubmittedAt = &now
		if err := s.repo.Update(ctx, existing); err != nil {
			return fmt.Errorf("claim record update: %w", err)
		}
		s.emit(ctx, events.TypeClaimSubmitted, existing)
		return nil
	}

	rec := &ClaimRecord{
		ID:             uuid.New(),
		InvoiceID:      invoiceID,
		PatientID:      patientID,
		PayerID:        payerID,
		ClaimReference: claimReference,
		Status:         StatusSubmitted,
		GrossAmount:    amount,
		SubmittedAt:    &now,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return fmt.Errorf("claim record insert: %w", err)
	}
	s.emit(ctx, events.TypeClaimSubmitted, rec)
	return nil
}

// RefreshStatus pulls the payer's current view of a claim and applies it
// to every local record carrying that reference. Gateway failures and
// still-pending payer statuses leave the local records untouched, so a
// known status is never downgraded.
func (s *Service) RefreshStatus(ctx context.Context, claimReference string) (dha.ClaimStatusResponse, int, error) {
	resp := s.gateway.GetClaimStatus(ctx, claimReference)
	if resp.ErrorCode != "" || !resp.Found {
		return resp, 0, nil
	}

	var target Status
	switch resp.Status {
	case dha.WireApproved, dha.WirePartiallyApproved, dha.WireRejected, dha.WirePaid:
		target = FromWire(resp.Status)
	default:
		return resp, 0, nil
	}

	recs, err := s.repo.ListByReference(ctx, claimReference)
	if err != nil {
		return resp, 0, fmt.Errorf("claim record lookup: %w", err)
	}

	now := s.now()
	updated := 0
	for _, rec := range recs {
		changed := rec.Status != target
		rec.Status = target
		rec.StatusAt = &now
		if resp.ApprovedAmount != nil {
			rec.ApprovedAmount = resp.ApprovedAmount
		}
		if resp.DenialReason != "" {
			reason := resp.DenialReason
			rec.DenialReason = &reason
		}
		if resp.RemittanceAdviceID != "" {
			id := resp.RemittanceAdviceID
			rec.RemittanceID = &id
		}
		if err := s.repo.Update(ctx, rec); err != nil {
			s.logger.Error().Err(err).Str("claim_reference", claimReference).Msg("claim status update failed")
			continue
		}
		updated++
		if changed {
			s.emit(ctx, events.TypeClaimStatusChanged, rec)
		}
	}
	return resp, updated, nil
}

// SweepResult reports one bulk refresh run.
type SweepResult struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
}

// BulkRefresh re-polls claims still SUBMITTED inside the age window.
func (s *Service) BulkRefresh(ctx context.Context, maxAge time.Duration, batchLimit int) (*SweepResult, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if batchLimit <= 0 || batchLimit > DefaultBatchLimit {
		batchLimit = DefaultBatchLimit
	}

	since := s.now().Add(-maxAge)
	recs, err := s.repo.ListStale(ctx, since, batchLimit)
	if err != nil {
		return nil, fmt.Errorf("stale claim lookup: %w", err)
	}

	result := &SweepResult{}
	seen := make(map[string]bool)
	for _, rec := range recs {
		if rec.ClaimReference == "" || seen[rec.ClaimReference] {
			continue
		}
		seen[rec.ClaimReference] = true
		result.Checked++

		_, updated, err := s.RefreshStatus(ctx, rec.ClaimReference)
		if err != nil {
			s.logger.Warn().Err(err).Str("claim_reference", rec.ClaimReference).Msg("bulk refresh skipped claim")
			continue
		}
		result.Updated += updated
	}

	s.logger.Info().
		Int("checked", result.Checked).
		Int("updated", result.Updated).
		Msg("claim status sweep finished")
	return result, nil
}

// Remittance fetches the payment advice for a paid claim from the payer.
func (s *Service) Remittance(ctx context.Context, remittanceID string) (*dha.RemittanceAdvice, error) {
	return s.gateway.GetRemittanceAdvice(ctx, remittanceID)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ClaimRecord, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*ClaimRecord, error) {
	return s.repo.ListByInvoice(ctx, invoiceID)
}

func (s *Service) ListByStatus(ctx context.Context, status Status) ([]*ClaimRecord, error) {
	return s.repo.ListByStatus(ctx, status)
}

func (s *Service) emit(ctx context.Context, eventType string, rec *ClaimRecord) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(events.Event{
		Type:     eventType,
		TenantID: db.TenantFromContext(ctx),
		Resource: "claim_record",
		Payload: map[string]interface{}{
			"claim_id":        rec.ID.String(),
			"invoice_id":      rec.InvoiceID.String(),
			"payer_id":        rec.PayerID,
			"claim_reference": rec.ClaimReference,
			"status":          string(rec.Status),
		},
	})
}
