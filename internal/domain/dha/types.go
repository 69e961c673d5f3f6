package dha

import (
	"time"
)

// Mode is the tenant-selected integration mode. Sandbox never reaches the
// real payer network, even when credentials are present.
type Mode string

const (
	ModeSandbox    Mode = "sandbox"
	ModeProduction Mode = "production"
)

// DataSource tags where an eligibility answer came from.
type DataSource string

const (
	DataSourceLive          DataSource = "DHA_LIVE"
	DataSourceSandbox       DataSource = "DHA_SANDBOX"
	DataSourceMock          DataSource = "MOCK_DATA"
	DataSourceCached        DataSource = "CACHED_DATA"
	DataSourceNotConfigured DataSource = "NOT_CONFIGURED"
)

// Gateway error codes. These travel inside response values; the gateway
// never surfaces a transport or parse failure as a Go error.
const (
	CodeNotConfigured   = "NOT_CONFIGURED"
	CodeConnectionError = "CONNECTION_ERROR"
	CodeParseError      = "PARSE_ERROR"
)

// PolicyStatus is the payer's view of a policy.
type PolicyStatus string

const (
	PolicyActive    PolicyStatus = "ACTIVE"
	PolicyInactive  PolicyStatus = "INACTIVE"
	PolicyExpired   PolicyStatus = "EXPIRED"
	PolicySuspended PolicyStatus = "SUSPENDED"
	PolicyNotFound  PolicyStatus = "NOT_FOUND"
)

// NetworkStatus reports whether this facility is in the member's network.
type NetworkStatus string

const (
	InNetwork      NetworkStatus = "IN_NETWORK"
	OutOfNetwork   NetworkStatus = "OUT_OF_NETWORK"
	NetworkUnknown NetworkStatus = "UNKNOWN"
)

// TenantConfig holds the per-tenant DHA integration settings.
type TenantConfig struct {
	TenantID        string    `db:"tenant_id" json:"tenant_id"`
	Enabled         bool      `db:"enabled" json:"enabled"`
	FacilityID      string    `db:"facility_id" json:"facility_id"`
	FacilityLicense string    `db:"facility_license" json:"facility_license"`
	APIKey          string    `db:"api_key" json:"api_key,omitempty"`
	APISecret       string    `db:"api_secret" json:"api_secret,omitempty"`
	Mode            Mode      `db:"mode" json:"mode"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Configured reports whether the tenant can talk to the payer at all:
// integration enabled plus facility id, license and API key present.
func (c *TenantConfig) Configured() bool {
	return c != nil && c.Enabled &&
		c.FacilityID != "" && c.FacilityLicense != "" && c.APIKey != ""
}

// EligibilityRequest asks the payer whether a member is covered.
type EligibilityRequest struct {
	MemberID    string     `json:"member_id"`
	PayerID     string     `json:"payer_id,omitempty"`
	ServiceDate *time.Time `json:"service_date,omitempty"`
}

// EligibilityResponse is the adapter's typed view of the payer's answer.
type EligibilityResponse struct {
	Eligible      bool          `json:"eligible"`
	PolicyStatus  PolicyStatus  `json:"policy_status"`
	NetworkStatus NetworkStatus `json:"network_status"`

	ProviderName  string     `json:"provider_name,omitempty"`
	PolicyNumber  string     `json:"policy_number,omitempty"`
	PlanName      string     `json:"plan_name,omitempty"`
	CoverageType  string     `json:"coverage_type,omitempty"`
	NetworkTier   string     `json:"network_tier,omitempty"`
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
	ExpiryDate    *time.Time `json:"expiry_date,omitempty"`

	CoveragePercentage  float64 `json:"coverage_percentage"`
	CopayAmount         float64 `json:"copay_amount"`
	AnnualDeductible    float64 `json:"annual_deductible"`
	DeductibleUsed      float64 `json:"deductible_used"`
	DeductibleRemaining float64 `json:"deductible_remaining"`
	AnnualCopayCap      float64 `json:"annual_copay_cap,omitempty"`
	RemainingBenefit    float64 `json:"remaining_benefit,omitempty"`

	DataSource   DataSource `json:"data_source"`
	ErrorCode    string     `json:"error_code,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// ClaimActivity is one billed line item inside a claim submission.
type ClaimActivity struct {
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
	Quantity    float64   `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	Net         float64   `json:"net"`
	ServiceDate time.Time `json:"service_date"`
}

// ClaimSubmission is the header + activities sent to the payer.
type ClaimSubmission struct {
	ClaimID            string          `json:"claim_id"`
	MemberID           string          `json:"member_id"`
	PayerID            string          `json:"payer_id"`
	ProviderID         string          `json:"provider_id"`
	EncounterType      string          `json:"encounter_type,omitempty"`
	EncounterStart     *time.Time      `json:"encounter_start,omitempty"`
	EncounterEnd       *time.Time      `json:"encounter_end,omitempty"`
	PrimaryDiagnosis   string          `json:"primary_diagnosis,omitempty"`
	SecondaryDiagnoses []string        `json:"secondary_diagnoses,omitempty"`
	GrossAmount        float64         `json:"gross_amount"`
	Currency           string          `json:"currency"`
	Activities         []ClaimActivity `json:"activities"`
}

// SubmissionStatus is the payer's immediate answer to a claim submission.
type SubmissionStatus string

const (
	SubmissionAccepted SubmissionStatus = "ACCEPTED"
	SubmissionRejected SubmissionStatus = "REJECTED"
	SubmissionPending  SubmissionStatus = "PENDING"
	SubmissionError    SubmissionStatus = "ERROR"
)

// ValidationError is a field-level rejection reason from the payer.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type ClaimSubmissionResponse struct {
	Success          bool              `json:"success"`
	TransactionID    string            `json:"transaction_id,omitempty"`
	ClaimReference   string            `json:"claim_reference,omitempty"`
	Status           SubmissionStatus  `json:"status"`
	ValidationErrors []ValidationError `json:"validation_errors,omitempty"`
	ErrorCode        string            `json:"error_code,omitempty"`
	ErrorMessage     string            `json:"error_message,omitempty"`
}

// WireClaimStatus is the payer-side lifecycle status of a submitted claim.
type WireClaimStatus string

const (
	WirePending           WireClaimStatus = "PENDING"
	WireInReview          WireClaimStatus = "IN_REVIEW"
	WireApproved          WireClaimStatus = "APPROVED"
	WirePartiallyApproved WireClaimStatus = "PARTIALLY_APPROVED"
	WireRejected          WireClaimStatus = "REJECTED"
	WirePaid              WireClaimStatus = "PAID"
)

type ClaimStatusResponse struct {
	Found              bool            `json:"found"`
	Status             WireClaimStatus `json:"status,omitempty"`
	ApprovedAmount     *float64        `json:"approved_amount,omitempty"`
	RejectedAmount     *float64        `json:"rejected_amount,omitempty"`
	DenialReason       string          `json:"denial_reason,omitempty"`
	RemittanceAdviceID string          `json:"remittance_advice_id,omitempty"`
	ErrorCode          string          `json:"error_code,omitempty"`
	ErrorMessage       string          `json:"error_message,omitempty"`
}

// RemittanceAdvice details how much of a claim the payer actually paid.
type RemittanceAdvice struct {
	ID               string     `json:"id"`
	ClaimReference   string     `json:"claim_reference"`
	PaymentReference string     `json:"payment_reference,omitempty"`
	PaymentDate      *time.Time `json:"payment_date,omitempty"`
	TotalClaimed     float64    `json:"total_claimed"`
	TotalPaid        float64    `json:"total_paid"`
	DenialCode       string     `json:"denial_code,omitempty"`
}

type PreAuthRequest struct {
	PatientID     string `json:"patient_id"`
	ProcedureCode string `json:"procedure_code"`
	DiagnosisCode string `json:"diagnosis_code,omitempty"`
	Urgency       string `json:"urgency,omitempty"`
}

// PreAuthResponse carries the pre-authorization outcome. NotImplemented is
// set when the production path is exercised: the live pre-auth flow is not
// built yet, and callers must not confuse that with a genuine pending state.
type PreAuthResponse struct {
	Approved            bool   `json:"approved"`
	Pending             bool   `json:"pending"`
	NotImplemented      bool   `json:"not_implemented,omitempty"`
	AuthorizationNumber string `json:"authorization_number,omitempty"`
	DenialReason        string `json:"denial_reason,omitempty"`
}
