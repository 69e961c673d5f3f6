package insurance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hims/hims/internal/domain/dha"
	"github.com/hims/hims/internal/platform/db"
	"github.com/hims/hims/internal/platform/events"
)

// Cross-verification thresholds. A coverage drop of more than 5 percentage
// points, or a copay rise of more than 10 currency units, raises an alert.
const (
	coverageDropThreshold = 5.0
	copayRiseThreshold    = 10.0
)

const (
	sourcePayer = "dha-eclaim"
	sourceLocal = "local-records"
)

// PayerGateway is the slice of the DHA gateway the engine depends on.
type PayerGateway interface {
	IsConfigured(ctx context.Context) bool
	VerifyEligibility(ctx context.Context, req dha.EligibilityRequest) dha.EligibilityResponse
}

// Service reconciles the locally cached insurance record against the
// payer's fresh answer and decides which value wins.
type Service struct {
	records  RecordRepository
	patients PatientDirectory
	payments PaymentHistory
	gateway  PayerGateway
	emitter  *events.Emitter
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(records RecordRepository, patients PatientDirectory, payments PaymentHistory,
	gateway PayerGateway, emitter *events.Emitter, logger zerolog.Logger) *Service {
	return &Service{
		records:  records,
		patients: patients,
		payments: payments,
		gateway:  gateway,
		emitter:  emitter,
		logger:   logger.With().Str("component", "insurance").Logger(),
		now:      time.Now,
	}
}

// NormalizeMemberID strips separators and uppercases an Emirates ID or
// member number so lookups and payer calls see one canonical form.
func NormalizeMemberID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	id = strings.ReplaceAll(id, " ", "")
	return strings.ToUpper(id)
}

// VerifyByMemberID is the primary verification path: fresh payer answer
// cross-checked against the cached record, with cached-data fallback.
func (s *Service) VerifyByMemberID(ctx context.Context, memberID string, serviceDate *time.Time) (*Verdict, error) {
	normalized := NormalizeMemberID(memberID)
	if normalized == "" {
		return nil, fmt.Errorf("member id is required")
	}

	patient, err := s.patients.GetByIdentifier(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("patient lookup: %w", err)
	}

	var local *InsuranceRecord
	if patient != nil {
		local, err = s.records.GetActivePrimary(ctx, patient.ID)
		if err != nil {
			return nil, fmt.Errorf("insurance record lookup: %w", err)
		}
	}

	var alerts []Alert
	if s.gateway.IsConfigured(ctx) {
		fresh := s.gateway.VerifyEligibility(ctx, dha.EligibilityRequest{
			MemberID:    normalized,
			ServiceDate: serviceDate,
		})
		switch fresh.ErrorCode {
		case "":
			if local != nil {
				return s.crossVerify(ctx, patient, local, fresh), nil
			}
			if fresh.Eligible && patient != nil {
				s.syncFromFreshVerdict(ctx, patient.ID, fresh)
				return verdictFromFresh(fresh), nil
			}
			if patient != nil {
				// Payer answered but found nothing and we hold no
				// record either: the fresh answer stands.
				return verdictFromFresh(fresh), nil
			}
		case dha.CodeConnectionError, dha.CodeParseError:
			s.logger.Warn().
				Str("member_id", normalized).
				Str("error_code", fresh.ErrorCode).
				Msg("fresh eligibility verification failed, falling back to cached data")
			alerts = append(alerts, Alert{
				Type:     AlertPolicyChanged,
				Severity: SeverityWarning,
				Message:  "fresh verification unavailable, using cached data",
				Actions:  []SuggestedAction{{Label: "Re-verify later", Action: ActionReVerify}},
			})
		}
	}

	return s.cachedVerdict(ctx, patient, local, alerts)
}

// VerifyByPatientID verifies through the stored national identifier when
// one exists. Skipping the identifier, or having none on file, degrades to
// the cached record plus an advisory flag so front-desk staff know the
// answer was not verified against a national ID.
func (s *Service) VerifyByPatientID(ctx context.Context, patientID uuid.UUID, skipIdentifierVerification bool) (*Verdict, error) {
	patient, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("patient lookup: %w", err)
	}
	if patient == nil {
		return nil, fmt.Errorf("patient %s not found", patientID)
	}

	if patient.EmiratesID != "" && !skipIdentifierVerification {
		return s.VerifyByMemberID(ctx, patient.EmiratesID, nil)
	}

	var alerts []Alert
	if patient.EmiratesID != "" {
		alerts = append(alerts, Alert{
			Type:     AlertEIDNeeded,
			Severity: SeverityInfo,
			Message:  "identifier verification was skipped; re-verify with the patient's Emirates ID",
			Actions:  []SuggestedAction{{Label: "Verify with Emirates ID", Action: ActionReVerify}},
		})
	} else {
		alerts = append(alerts, Alert{
			Type:     AlertEIDNeeded,
			Severity: SeverityWarning,
			Message:  "no national identifier on file; eligibility cannot be verified against the payer",
			Actions:  []SuggestedAction{{Label: "Capture Emirates ID", Action: ActionUpdateInsurance}},
		})
	}

	local, err := s.records.GetActivePrimary(ctx, patient.ID)
	if err != nil {
		return nil, fmt.Errorf("insurance record lookup: %w", err)
	}

	verdict, err := s.cachedVerdict(ctx, patient, local, alerts)
	if err != nil {
		return nil, err
	}
	verdict.RequiresIdentifierVerification = true
	return verdict, nil
}

// crossVerify resolves a local record against a fresh payer verdict. The
// scenarios are checked in priority order and the first match wins.
func (s *Service) crossVerify(ctx context.Context, patient *PatientInfo, local *InsuranceRecord, fresh dha.EligibilityResponse) *Verdict {
	now := s.now()

	// Mismatch: the payer contradicts an active cached record. Never
	// silently treat the patient as covered.
	if !fresh.Eligible || fresh.PolicyStatus == dha.PolicyNotFound {
		v := verdictFromFresh(fresh)
		v.Eligible = false
		v.PolicyStatus = dha.PolicyInactive
		v.ProviderName = local.ProviderName
		v.PolicyNumber = local.PolicyNumber
		v.HasMismatch = true
		v.Alerts = append(v.Alerts, Alert{
			Type:     AlertMismatch,
			Severity: SeverityError,
			Message: fmt.Sprintf("payer reports policy %s as %s but an active local record exists",
				local.PolicyNumber, fresh.PolicyStatus),
			Before: string(dha.PolicyActive),
			After:  string(fresh.PolicyStatus),
			Actions: []SuggestedAction{
				{Label: "Use cached coverage", Action: ActionUseCached},
				{Label: "Treat as self-pay", Action: ActionTreatAsSelfPay},
				{Label: "Update insurance details", Action: ActionUpdateInsurance},
			},
		})
		return v
	}

	// Policy renewed: the cached record lapsed but the payer shows live
	// coverage again.
	if local.Expired(now) {
		s.syncFromFreshVerdict(ctx, patient.ID, fresh)
		v := verdictFromFresh(fresh)
		v.PolicyWasRenewed = true
		v.Alerts = append(v.Alerts, Alert{
			Type:     AlertPolicyRenewed,
			Severity: SeverityInfo,
			Message:  "expired local policy was renewed; record updated from payer data",
			Before:   local.PolicyNumber,
			After:    fresh.PolicyNumber,
		})
		return v
	}

	v := verdictFromFresh(fresh)
	if fresh.ProviderName != "" && local.ProviderName != "" &&
		!strings.EqualFold(fresh.ProviderName, local.ProviderName) {
		v.CoverageChanged = true
		v.Alerts = append(v.Alerts, Alert{
			Type:     AlertProviderChanged,
			Severity: SeverityWarning,
			Message:  "insurance provider differs from the record on file",
			Before:   local.ProviderName,
			After:    fresh.ProviderName,
			Actions:  []SuggestedAction{{Label: "Use fresh data", Action: ActionUseFresh}},
		})
	}
	if local.CoveragePercentage-fresh.CoveragePercentage > coverageDropThreshold {
		v.CoverageChanged = true
		v.Alerts = append(v.Alerts, Alert{
			Type:     AlertCoverageReduced,
			Severity: SeverityWarning,
			Message:  "coverage percentage is lower than the record on file",
			Before:   fmt.Sprintf("%.0f%%", local.CoveragePercentage),
			After:    fmt.Sprintf("%.0f%%", fresh.CoveragePercentage),
			Actions:  []SuggestedAction{{Label: "Use fresh data", Action: ActionUseFresh}},
		})
	}
	if fresh.CopayAmount-local.CopayAmount > copayRiseThreshold {
		v.CoverageChanged = true
		v.Alerts = append(v.Alerts, Alert{
			Type:     AlertCopayIncreased,
			Severity: SeverityWarning,
			Message:  "copay amount is higher than the record on file",
			Before:   fmt.Sprintf("%.2f", local.CopayAmount),
			After:    fmt.Sprintf("%.2f", fresh.CopayAmount),
			Actions:  []SuggestedAction{{Label: "Use fresh data", Action: ActionUseFresh}},
		})
	}

	// Sync runs in every non-mismatch scenario; it is idempotent when
	// nothing changed.
	s.syncFromFreshVerdict(ctx, patient.ID, fresh)
	return v
}

// cachedVerdict answers from local data only, with deductible and copay
// cap usage accumulated from the fiscal year's payment history.
func (s *Service) cachedVerdict(ctx context.Context, patient *PatientInfo, local *InsuranceRecord, alerts []Alert) (*Verdict, error) {
	if patient == nil {
		return &Verdict{
			Eligible:           false,
			PolicyStatus:       dha.PolicyNotFound,
			NetworkStatus:      dha.NetworkUnknown,
			Alerts:             alerts,
			VerificationSource: sourceLocal,
			DataSource:         dha.DataSourceCached,
			Message:            "no patient on file for this identifier; register the patient first",
		}, nil
	}

	if local == nil {
		return &Verdict{
			Eligible:           false,
			PolicyStatus:       dha.PolicyNotFound,
			NetworkStatus:      dha.NetworkUnknown,
			Alerts:             alerts,
			VerificationSource: sourceLocal,
			DataSource:         dha.DataSourceCached,
			Message:            "no insurance record on file; patient is self-pay",
		}, nil
	}

	now := s.now()
	if local.Expired(now) {
		alerts = append(alerts, Alert{
			Type:     AlertPolicyChanged,
			Severity: SeverityWarning,
			Message:  "insurance record on file has expired",
			Actions: []SuggestedAction{
				{Label: "Re-verify with payer", Action: ActionReVerify},
				{Label: "Treat as self-pay", Action: ActionTreatAsSelfPay},
			},
		})
		v := verdictFromRecord(local)
		v.Eligible = false
		v.PolicyStatus = dha.PolicyExpired
		v.Alerts = alerts
		v.Message = "policy on file expired " + local.ExpiryDate.Format("2006-01-02")
		return v, nil
	}

	v := verdictFromRecord(local)
	v.Alerts = alerts

	yearStart := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	paid, err := s.payments.CopayTotalBetween(ctx, patient.ID, yearStart, now)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("patient_id", patient.ID.String()).
			Msg("copay history unavailable, reporting deductible without usage")
		paid = 0
	}

	if local.AnnualDeductible != nil {
		used := paid
		if used > *local.AnnualDeductible {
			used = *local.AnnualDeductible
		}
		v.AnnualDeductible = *local.AnnualDeductible
		v.DeductibleUsed = used
		v.DeductibleRemaining = *local.AnnualDeductible - used
	}
	if local.AnnualCopayCap != nil {
		used := paid
		if used > *local.AnnualCopayCap {
			used = *local.AnnualCopayCap
		}
		v.AnnualCopayCap = *local.AnnualCopayCap
		v.CopayCapUsed = used
		v.CopayCapRemaining = *local.AnnualCopayCap - used
	}
	return v, nil
}

// syncFromFreshVerdict writes a fresh eligible verdict back into the local
// store. Records are updated in place when the policy number matches;
// otherwise the previous primary is demoted and a new record inserted.
// Sync failures are logged and never block the verdict.
func (s *Service) syncFromFreshVerdict(ctx context.Context, patientID uuid.UUID, fresh dha.EligibilityResponse) {
	if !fresh.Eligible || fresh.ProviderName == "" {
		return
	}

	now := s.now()
	source := sourcePayer

	existing, err := s.records.GetByPolicyNumber(ctx, patientID, fresh.PolicyNumber)
	if err != nil {
		s.logger.Error().Err(err).Str("patient_id", patientID.String()).Msg("record sync lookup failed")
		return
	}

	if existing != nil {
		existing.ProviderName = fresh.ProviderName
		existing.CoverageType = optional(fresh.CoverageType)
		existing.PlanName = optional(fresh.PlanName)
		existing.NetworkTier = optional(fresh.NetworkTier)
		existing.EffectiveDate = fresh.EffectiveDate
		existing.ExpiryDate = fresh.ExpiryDate
		existing.CoveragePercentage = fresh.CoveragePercentage
		existing.CopayAmount = fresh.CopayAmount
		if fresh.AnnualDeductible > 0 {
			d := fresh.AnnualDeductible
			existing.AnnualDeductible = &d
		}
		if fresh.AnnualCopayCap > 0 {
			c := fresh.AnnualCopayCap
			existing.AnnualCopayCap = &c
		}
		existing.IsActive = true
		existing.VerificationSource = &source
		existing.VerifiedAt = &now
		if err := s.records.Update(ctx, existing); err != nil {
			s.logger.Error().Err(err).Str("record_id", existing.ID.String()).Msg("record sync update failed")
			return
		}
		s.emit(ctx, events.TypeInsuranceSynced, existing)
		return
	}

	if err := s.records.DemotePrimary(ctx, patientID); err != nil {
		s.logger.Error().Err(err).Str("patient_id", patientID.String()).Msg("primary demotion failed")
		return
	}

	rec := &InsuranceRecord{
		ID:                 uuid.New(),
		PatientID:          patientID,
		ProviderName:       fresh.ProviderName,
		PolicyNumber:       fresh.PolicyNumber,
		CoverageType:       optional(fresh.CoverageType),
		PlanName:           optional(fresh.PlanName),
		NetworkTier:        optional(fresh.NetworkTier),
		EffectiveDate:      fresh.EffectiveDate,
		ExpiryDate:         fresh.ExpiryDate,
		CoveragePercentage: fresh.CoveragePercentage,
		CopayAmount:        fresh.CopayAmount,
		IsActive:           true,
		IsPrimary:          true,
		VerificationSource: &source,
		VerifiedAt:         &now,
	}
	if fresh.AnnualDeductible > 0 {
		d := fresh.AnnualDeductible
		rec.AnnualDeductible = &d
	}
	if fresh.AnnualCopayCap > 0 {
		c := fresh.AnnualCopayCap
		rec.AnnualCopayCap = &c
	}
	if err := s.records.Create(ctx, rec); err != nil {
		s.logger.Error().Err(err).Str("patient_id", patientID.String()).Msg("record sync insert failed")
		return
	}
	s.emit(ctx, events.TypeInsuranceSuperseded, rec)
}

func (s *Service) emit(ctx context.Context, eventType string, rec *InsuranceRecord) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(events.Event{
		Type:     eventType,
		TenantID: db.TenantFromContext(ctx),
		Resource: "insurance_record",
		Payload: map[string]interface{}{
			"record_id":     rec.ID.String(),
			"patient_id":    rec.PatientID.String(),
			"policy_number": rec.PolicyNumber,
			"provider_name": rec.ProviderName,
		},
	})
}

// GetRecord and ListRecords back the read-side routes.

func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*InsuranceRecord, error) {
	return s.records.GetByID(ctx, id)
}

func (s *Service) ListRecords(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*InsuranceRecord, int, error) {
	return s.records.ListByPatient(ctx, patientID, limit, offset)
}

func verdictFromFresh(fresh dha.EligibilityResponse) *Verdict {
	return &Verdict{
		Eligible:            fresh.Eligible,
		PolicyStatus:        fresh.PolicyStatus,
		NetworkStatus:       fresh.NetworkStatus,
		ProviderName:        fresh.ProviderName,
		PolicyNumber:        fresh.PolicyNumber,
		PlanName:            fresh.PlanName,
		CoverageType:        fresh.CoverageType,
		NetworkTier:         fresh.NetworkTier,
		EffectiveDate:       fresh.EffectiveDate,
		ExpiryDate:          fresh.ExpiryDate,
		CoveragePercentage:  fresh.CoveragePercentage,
		CopayAmount:         fresh.CopayAmount,
		AnnualDeductible:    fresh.AnnualDeductible,
		DeductibleUsed:      fresh.DeductibleUsed,
		DeductibleRemaining: fresh.DeductibleRemaining,
		AnnualCopayCap:      fresh.AnnualCopayCap,
		RemainingBenefit:    fresh.RemainingBenefit,
		VerificationSource:  sourcePayer,
		DataSource:          fresh.DataSource,
		Message:             fresh.ErrorMessage,
	}
}

func verdictFromRecord(rec *InsuranceRecord) *Verdict {
	v := &Verdict{
		Eligible:           true,
		PolicyStatus:       dha.PolicyActive,
		NetworkStatus:      dha.NetworkUnknown,
		ProviderName:       rec.ProviderName,
		PolicyNumber:       rec.PolicyNumber,
		EffectiveDate:      rec.EffectiveDate,
		ExpiryDate:         rec.ExpiryDate,
		CoveragePercentage: rec.CoveragePercentage,
		CopayAmount:        rec.CopayAmount,
		VerificationSource: sourceLocal,
		DataSource:         dha.DataSourceCached,
	}
	if rec.PlanName != nil {
		v.PlanName = *rec.PlanName
	}
	if rec.CoverageType != nil {
		v.CoverageType = *rec.CoverageType
	}
	if rec.NetworkTier != nil {
		v.NetworkTier = *rec.NetworkTier
	}
	return v
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
