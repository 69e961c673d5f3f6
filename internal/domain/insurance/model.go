package insurance

import (
	"time"

	"github.com/google/uuid"

	"github.com/hims/hims/internal/domain/dha"
)

// InsuranceRecord is the locally cached coverage record for a patient. Old
// records are superseded (deactivated / demoted from primary), never deleted.
type InsuranceRecord struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	ProviderName       string     `db:"provider_name" json:"provider_name"`
	PolicyNumber       string     `db:"policy_number" json:"policy_number"`
	CoverageType       *string    `db:"coverage_type" json:"coverage_type,omitempty"`
	PlanName           *string    `db:"plan_name" json:"plan_name,omitempty"`
	NetworkTier        *string    `db:"network_tier" json:"network_tier,omitempty"`
	EffectiveDate      *time.Time `db:"effective_date" json:"effective_date,omitempty"`
	ExpiryDate         *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	CoveragePercentage float64    `db:"coverage_percentage" json:"coverage_percentage"`
	CopayAmount        float64    `db:"copay_amount" json:"copay_amount"`
	AnnualDeductible   *float64   `db:"annual_deductible" json:"annual_deductible,omitempty"`
	AnnualCopayCap     *float64   `db:"annual_copay_cap" json:"annual_copay_cap,omitempty"`
	IsActive           bool       `db:"is_active" json:"is_active"`
	IsPrimary          bool       `db:"is_primary" json:"is_primary"`
	VerificationSource *string    `db:"verification_source" json:"verification_source,omitempty"`
	VerifiedAt         *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// Expired reports whether the record's expiry date has passed.
func (r *InsuranceRecord) Expired(now time.Time) bool {
	return r.ExpiryDate != nil && r.ExpiryDate.Before(now)
}

// AlertType classifies a discrepancy or advisory found during verification.
type AlertType string

const (
	AlertMismatch         AlertType = "mismatch"
	AlertPolicyRenewed    AlertType = "policy-renewed"
	AlertPolicyChanged    AlertType = "policy-changed"
	AlertEIDNeeded        AlertType = "eid-verification-needed"
	AlertProviderChanged  AlertType = "provider-changed"
	AlertCoverageReduced  AlertType = "coverage-reduced"
	AlertCopayIncreased   AlertType = "copay-increased"
)

type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// ActionType is an operator choice offered alongside an alert.
type ActionType string

const (
	ActionUseCached       ActionType = "use-cached"
	ActionUseFresh        ActionType = "use-fresh"
	ActionTreatAsSelfPay  ActionType = "treat-as-self-pay"
	ActionUpdateInsurance ActionType = "update-insurance"
	ActionReVerify        ActionType = "re-verify"
)

type SuggestedAction struct {
	Label  string     `json:"label"`
	Action ActionType `json:"action"`
}

// Alert is advisory only: the system never auto-resolves ambiguous cases
// beyond the two safe sync scenarios (renewal, coverage change).
type Alert struct {
	Type     AlertType         `json:"type"`
	Severity Severity          `json:"severity"`
	Message  string            `json:"message"`
	Before   string            `json:"before,omitempty"`
	After    string            `json:"after,omitempty"`
	Actions  []SuggestedAction `json:"actions,omitempty"`
}

// Verdict is the point-in-time answer to "is this patient covered right
// now". It is returned per call and never persisted.
type Verdict struct {
	Eligible      bool              `json:"eligible"`
	PolicyStatus  dha.PolicyStatus  `json:"policy_status"`
	NetworkStatus dha.NetworkStatus `json:"network_status"`

	ProviderName  string     `json:"provider_name,omitempty"`
	PolicyNumber  string     `json:"policy_number,omitempty"`
	PlanName      string     `json:"plan_name,omitempty"`
	CoverageType  string     `json:"coverage_type,omitempty"`
	NetworkTier   string     `json:"network_tier,omitempty"`
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
	ExpiryDate    *time.Time `json:"expiry_date,omitempty"`

	CoveragePercentage  float64 `json:"coverage_percentage"`
	CopayAmount         float64 `json:"copay_amount"`
	AnnualDeductible    float64 `json:"annual_deductible,omitempty"`
	DeductibleUsed      float64 `json:"deductible_used,omitempty"`
	DeductibleRemaining float64 `json:"deductible_remaining,omitempty"`
	AnnualCopayCap      float64 `json:"annual_copay_cap,omitempty"`
	CopayCapUsed        float64 `json:"copay_cap_used,omitempty"`
	CopayCapRemaining   float64 `json:"copay_cap_remaining,omitempty"`
	RemainingBenefit    float64 `json:"remaining_benefit,omitempty"`

	Alerts             []Alert        `json:"alerts,omitempty"`
	VerificationSource string         `json:"verification_source"`
	DataSource         dha.DataSource `json:"data_source"`
	Message            string         `json:"message,omitempty"`

	HasMismatch                    bool `json:"has_mismatch,omitempty"`
	PolicyWasRenewed               bool `json:"policy_was_renewed,omitempty"`
	CoverageChanged                bool `json:"coverage_changed,omitempty"`
	RequiresIdentifierVerification bool `json:"requires_identifier_verification,omitempty"`
}
