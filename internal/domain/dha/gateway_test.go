package dha

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// -- Mock settings repository --

type mockSettingsRepo struct {
	cfg *TenantConfig
	err error
}

func (m *mockSettingsRepo) Get(_ context.Context) (*TenantConfig, error) {
	return m.cfg, m.err
}

func (m *mockSettingsRepo) Upsert(_ context.Context, cfg *TenantConfig) error {
	m.cfg = cfg
	return nil
}

func configuredTenant(mode Mode) *TenantConfig {
	return &TenantConfig{
		TenantID:        "default",
		Enabled:         true,
		FacilityID:      "DHA-F-0001",
		FacilityLicense: "LIC-7001",
		APIKey:          "key",
		Mode:            mode,
	}
}

func newGateway(cfg *TenantConfig, production bool) *Gateway {
	return NewGateway(&mockSettingsRepo{cfg: cfg}, Options{
		ProductionEnv: production,
		Logger:        zerolog.New(os.Stderr),
	})
}

// -- Mock scenario table --

func TestMockEligibility_LastDigitZero_NotFound(t *testing.T) {
	g := newGateway(nil, false)
	resp := g.VerifyEligibility(context.Background(), EligibilityRequest{MemberID: "784-1990-1234560"})
	if resp.Eligible {
		t.Error("expected not eligible")
	}
	if resp.PolicyStatus != PolicyNotFound {
		t.Errorf("expected NOT_FOUND, got %s", resp.PolicyStatus)
	}
	if resp.DataSource != DataSourceMock {
		t.Errorf("expected MOCK_DATA tag, got %s", resp.DataSource)
	}
}

func TestMockEligibility_LastDigitOne_Expired(t *testing.T) {
	g := newGateway(nil, false)
	resp := g.VerifyEligibility(context.Background(), EligibilityRequest{MemberID: "784-1990-1234561"})
	if resp.PolicyStatus != PolicyExpired {
		t.Errorf("expected EXPIRED, got %s", resp.PolicyStatus)
	}
	if resp.Eligible {
		t.Error("expired policy must not be eligible")
	}
	if resp.ExpiryDate == nil || !resp.ExpiryDate.Before(time.Now()) {
		t.Error("expected expiry date in the past")
	}
}

func TestMockEligibility_LastDigitTwo_OutOfNetwork(t *testing.T) {
	g := newGateway(nil, false)
	resp := g.VerifyEligibility(context.Background(), EligibilityRequest{MemberID: "784-1990-1234562"})
	if resp.NetworkStatus != OutOfNetwork {
		t.Errorf("expected OUT_OF_NETWORK, got %s", resp.NetworkStatus)
	}
	if resp.CoveragePercentage != 50 {
		t.Errorf("expected 50%% coverage, got %v", resp.CoveragePercentage)
	}
}

func TestMockEligibility_Default_ActiveInNetwork(t *testing.T) {
	g := newGateway(nil, false)
	for _, memberID := range []string{"784-1990-1234563", "784-1990-1234567", "784-1990-1234569"} {
		resp := g.VerifyEligibility(context.Background(), EligibilityRequest{MemberID: memberID})
		if !resp.Eligible {
			t.Errorf("%s: expected eligible", memberID)
		}
		if resp.NetworkStatus != InNetwork {
			t.Errorf("%s: expected IN_NETWORK, got %s", memberID, resp.NetworkStatus)
		}
		if resp.AnnualDeductible != 500 || resp.DeductibleUsed != 200 || resp.DeductibleRemaining != 300 {
			t.Errorf("%s: unexpected deductible breakdown %v/%v/%v",
				memberID, resp.AnnualDeductible, resp.DeductibleUsed, resp.DeductibleRemaining)
		}
	}
}

func TestMockEligibility_Deterministic(t *testing.T) {
	g := newGateway(nil, false)
	a := g.VerifyEligibility(context.Background(), EligibilityRequest{MemberID: "784-1990-1234567"})
	b := g.VerifyEligibility(context.Background(), EligibilityRequest{MemberID: "784-1990-1234567"})
	if a.PolicyNumber != b.PolicyNumber || a.ProviderName != b.ProviderName {
		t.Error("mock responses must be deterministic per member id")
	}
}

// -- Eligible-iff-active invariant --

func TestEligibleOnlyWhenActive(t *testing.T) {
	g := newGateway(nil, false)
	for _, memberID := range []string{"10", "11", "12", "15"} {
		resp := g.VerifyEligibility(context.Background(), EligibilityRequest{MemberID: memberID})
		if resp.Eligible && resp.PolicyStatus != PolicyActive {
			t.Errorf("%s: eligible=true with status %s", memberID, resp.PolicyStatus)
		}
	}
}

// -- Production fail-closed --

func TestProduction_NotConfigured_FailsClosed(t *testing.T) {
	g := newGateway(nil, true)
	resp := g.VerifyEligibility(context.Background(), EligibilityRequest{MemberID: "784-1990-1234567"})
	if resp.Eligible {
		t.Error("unconfigured production tenant must never be eligible")
	}
	if resp.DataSource != DataSourceNotConfigured {
		t.Errorf("expected NOT_CONFIGURED data source, got %s", resp.DataSource)
	}
	if resp.ErrorCode != CodeNotConfigured {
		t.Errorf("expected NOT_CONFIGURED error code, got %s", resp.ErrorCode)
	}
	if resp.AnnualDeductible != 0 || resp.CoveragePercentage != 0 {
		t.Error("fail-closed response must not carry mock benefit data")
	}
}

func TestProduction_NotConfigured_ClaimSubmissionFails(t *testing.T) {
	g := newGateway(nil, true)
	resp := g.SubmitClaim(context.Background(), ClaimSubmission{ClaimID: "C1"})
	if resp.Success {
		t.Error("expected submission failure")
	}
	if resp.ErrorCode != CodeNotConfigured {
		t.Errorf("expected NOT_CONFIGURED, got %s", resp.ErrorCode)
	}
}

func TestProduction_DisabledConfig_FailsClosed(t *testing.T) {
	cfg := configuredTenant(ModeProduction)
	cfg.Enabled = false
	g := newGateway(cfg, true)
	resp := g.VerifyEligibility(context.Background(), EligibilityRequest{MemberID: "784-1990-1234567"})
	if resp.ErrorCode != CodeNotConfigured {
		t.Errorf("disabled integration must fail closed, got %s", resp.ErrorCode)
	}
}

// -- Sandbox mode --

func TestSandbox_ConfiguredTenant_NeverCallsNetwork(t *testing.T) {
	// No endpoint URLs configured: a real call would fail loudly.
	g := newGateway(configuredTenant(ModeSandbox), true)
	resp := g.VerifyEligibility(context.Background(), EligibilityRequest{MemberID: "784-1990-1234567"})
	if !resp.Eligible {
		t.Error("expected eligible sandbox response")
	}
	if resp.DataSource != DataSourceSandbox {
		t.Errorf("expected DHA_SANDBOX tag, got %s", resp.DataSource)
	}
}

func TestSandbox_ClaimSubmissionAccepted(t *testing.T) {
	g := newGateway(configuredTenant(ModeSandbox), false)
	resp := g.SubmitClaim(context.Background(), ClaimSubmission{ClaimID: "inv42", GrossAmount: 900})
	if !resp.Success || resp.Status != SubmissionAccepted {
		t.Errorf("expected synthesized acceptance, got %+v", resp)
	}
	if resp.ClaimReference == "" {
		t.Error("expected a claim reference")
	}
}

func TestIsConfigured(t *testing.T) {
	if newGateway(nil, false).IsConfigured(context.Background()) {
		t.Error("nil settings must not be configured")
	}
	if !newGateway(configuredTenant(ModeSandbox), false).IsConfigured(context.Background()) {
		t.Error("expected configured tenant")
	}
	partial := configuredTenant(ModeSandbox)
	partial.APIKey = ""
	if newGateway(partial, false).IsConfigured(context.Background()) {
		t.Error("missing api key must not be configured")
	}
}

func TestModeFor(t *testing.T) {
	if got := newGateway(configuredTenant(ModeProduction), false).ModeFor(context.Background()); got != ModeProduction {
		t.Errorf("expected production mode, got %s", got)
	}
	if got := newGateway(nil, false).ModeFor(context.Background()); got != ModeSandbox {
		t.Errorf("expected sandbox default, got %s", got)
	}
}

// -- Pre-authorization --

func TestPreAuth_SandboxApproves(t *testing.T) {
	g := newGateway(configuredTenant(ModeSandbox), false)
	resp := g.SubmitPreAuth(context.Background(), "pa-1", PreAuthRequest{PatientID: "p1", ProcedureCode: "47562"})
	if !resp.Approved {
		t.Errorf("expected approval, got %+v", resp)
	}
	if resp.AuthorizationNumber == "" {
		t.Error("expected an authorization number")
	}
}

func TestPreAuth_SandboxDenyList(t *testing.T) {
	g := newGateway(configuredTenant(ModeSandbox), false)
	resp := g.SubmitPreAuth(context.Background(), "pa-2", PreAuthRequest{PatientID: "p1", ProcedureCode: "0042T"})
	if resp.Approved {
		t.Error("blocklisted procedure must be denied")
	}
	if resp.DenialReason == "" {
		t.Error("expected a denial reason")
	}
}

func TestPreAuth_ProductionNotImplemented(t *testing.T) {
	g := newGateway(configuredTenant(ModeProduction), true)
	resp := g.SubmitPreAuth(context.Background(), "pa-3", PreAuthRequest{PatientID: "p1", ProcedureCode: "47562"})
	if !resp.NotImplemented {
		t.Error("live pre-auth must report not-implemented")
	}
	if resp.Approved {
		t.Error("live pre-auth must not approve")
	}
}

// -- Helpers --

func TestLastDigit(t *testing.T) {
	cases := []struct {
		in    string
		digit byte
		ok    bool
	}{
		{"784-1990-1234560", '0', true},
		{"ABC7", '7', true},
		{"12X", '2', true},
		{"NO-DIGITS", 0, false},
	}
	for _, tc := range cases {
		d, ok := lastDigit(tc.in)
		if ok != tc.ok || d != tc.digit {
			t.Errorf("lastDigit(%q) = %q,%v; want %q,%v", tc.in, d, ok, tc.digit, tc.ok)
		}
	}
}
