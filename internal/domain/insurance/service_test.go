package insurance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hims/hims/internal/domain/dha"
)

type mockRecords struct {
	records []*InsuranceRecord
	updates int
	creates int
}

func (m *mockRecords) GetByID(_ context.Context, id uuid.UUID) (*InsuranceRecord, error) {
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (m *mockRecords) GetActivePrimary(_ context.Context, patientID uuid.UUID) (*InsuranceRecord, error) {
	for _, r := range m.records {
		if r.PatientID == patientID && r.IsActive && r.IsPrimary {
			return r, nil
		}
	}
	return nil, nil
}

func (m *mockRecords) GetByPolicyNumber(_ context.Context, patientID uuid.UUID, policyNumber string) (*InsuranceRecord, error) {
	for _, r := range m.records {
		if r.PatientID == patientID && r.PolicyNumber == policyNumber {
			return r, nil
		}
	}
	return nil, nil
}

func (m *mockRecords) ListByPatient(_ context.Context, patientID uuid.UUID, _, _ int) ([]*InsuranceRecord, int, error) {
	var out []*InsuranceRecord
	for _, r := range m.records {
		if r.PatientID == patientID {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func (m *mockRecords) Create(_ context.Context, rec *InsuranceRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	m.records = append(m.records, rec)
	m.creates++
	return nil
}

func (m *mockRecords) Update(_ context.Context, rec *InsuranceRecord) error {
	for i, r := range m.records {
		if r.ID == rec.ID {
			m.records[i] = rec
		}
	}
	m.updates++
	return nil
}

func (m *mockRecords) DemotePrimary(_ context.Context, patientID uuid.UUID) error {
	for _, r := range m.records {
		if r.PatientID == patientID {
			r.IsPrimary = false
		}
	}
	return nil
}

type mockPatients struct {
	patients []*PatientInfo
}

func (m *mockPatients) GetByID(_ context.Context, id uuid.UUID) (*PatientInfo, error) {
	for _, p := range m.patients {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockPatients) GetByIdentifier(_ context.Context, normalizedID string) (*PatientInfo, error) {
	for _, p := range m.patients {
		if NormalizeMemberID(p.EmiratesID) == normalizedID {
			return p, nil
		}
	}
	return nil, nil
}

type mockPayments struct{ total float64 }

func (m *mockPayments) CopayTotalBetween(_ context.Context, _ uuid.UUID, _, _ time.Time) (float64, error) {
	return m.total, nil
}

type mockGateway struct {
	configured bool
	resp       dha.EligibilityResponse
	calls      int
}

func (m *mockGateway) IsConfigured(_ context.Context) bool { return m.configured }

func (m *mockGateway) VerifyEligibility(_ context.Context, _ dha.EligibilityRequest) dha.EligibilityResponse {
	m.calls++
	return m.resp
}

type fixture struct {
	svc      *Service
	records  *mockRecords
	patients *mockPatients
	payments *mockPayments
	gateway  *mockGateway
	patient  *PatientInfo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		records:  &mockRecords{},
		payments: &mockPayments{},
		gateway:  &mockGateway{configured: true},
	}
	f.patient = &PatientInfo{
		ID:         uuid.New(),
		MRN:        "MRN-1001",
		FullName:   "Fatima Al Mansouri",
		EmiratesID: "784-1990-1234567-8",
		Active:     true,
	}
	f.patients = &mockPatients{patients: []*PatientInfo{f.patient}}
	f.svc = NewService(f.records, f.patients, f.payments, f.gateway, nil, zerolog.Nop())
	return f
}

func (f *fixture) withLocalRecord(policyNumber string, coverage, copay float64, expiry *time.Time) *InsuranceRecord {
	rec := &InsuranceRecord{
		ID:                 uuid.New(),
		PatientID:          f.patient.ID,
		ProviderName:       "Daman National Health Insurance",
		PolicyNumber:       policyNumber,
		CoveragePercentage: coverage,
		CopayAmount:        copay,
		ExpiryDate:         expiry,
		IsActive:           true,
		IsPrimary:          true,
	}
	f.records.records = append(f.records.records, rec)
	return rec
}

func eligibleResponse(policyNumber string, coverage, copay float64) dha.EligibilityResponse {
	return dha.EligibilityResponse{
		Eligible:           true,
		PolicyStatus:       dha.PolicyActive,
		NetworkStatus:      dha.InNetwork,
		ProviderName:       "Daman National Health Insurance",
		PolicyNumber:       policyNumber,
		CoveragePercentage: coverage,
		CopayAmount:        copay,
		DataSource:         dha.DataSourceLive,
	}
}

func hasAlert(alerts []Alert, typ AlertType) *Alert {
	for i := range alerts {
		if alerts[i].Type == typ {
			return &alerts[i]
		}
	}
	return nil
}

func TestVerifyMismatchForcesInactive(t *testing.T) {
	f := newFixture(t)
	f.withLocalRecord("POL-123", 80, 50, nil)
	f.gateway.resp = dha.EligibilityResponse{
		Eligible:      false,
		PolicyStatus:  dha.PolicyNotFound,
		NetworkStatus: dha.NetworkUnknown,
		DataSource:    dha.DataSourceLive,
	}

	v, err := f.svc.VerifyByMemberID(context.Background(), f.patient.EmiratesID, nil)
	if err != nil {
		t.Fatalf("VerifyByMemberID: %v", err)
	}
	if v.Eligible {
		t.Error("mismatch verdict must not be eligible")
	}
	if v.PolicyStatus != dha.PolicyInactive {
		t.Errorf("policy status = %s, want INACTIVE", v.PolicyStatus)
	}
	if !v.HasMismatch {
		t.Error("expected HasMismatch flag")
	}
	if v.ProviderName != "Daman National Health Insurance" || v.PolicyNumber != "POL-123" {
		t.Errorf("verdict must echo local provider/policy, got %q / %q", v.ProviderName, v.PolicyNumber)
	}
	alert := hasAlert(v.Alerts, AlertMismatch)
	if alert == nil {
		t.Fatal("expected mismatch alert")
	}
	if alert.Severity != SeverityError {
		t.Errorf("mismatch severity = %s, want ERROR", alert.Severity)
	}
	if len(alert.Actions) != 3 {
		t.Errorf("expected 3 suggested actions, got %d", len(alert.Actions))
	}
	if f.records.updates != 0 || f.records.creates != 0 {
		t.Error("mismatch must not sync the local record")
	}
}

func TestVerifyPolicyRenewed(t *testing.T) {
	f := newFixture(t)
	past := time.Now().AddDate(0, -2, 0)
	f.withLocalRecord("POL-123", 80, 50, &past)
	f.gateway.resp = eligibleResponse("POL-123", 80, 50)

	v, err := f.svc.VerifyByMemberID(context.Background(), f.patient.EmiratesID, nil)
	if err != nil {
		t.Fatalf("VerifyByMemberID: %v", err)
	}
	if !v.Eligible || !v.PolicyWasRenewed {
		t.Errorf("eligible=%v renewed=%v, want true/true", v.Eligible, v.PolicyWasRenewed)
	}
	alert := hasAlert(v.Alerts, AlertPolicyRenewed)
	if alert == nil || alert.Severity != SeverityInfo {
		t.Fatalf("expected INFO policy-renewed alert, got %+v", alert)
	}
	if f.records.updates != 1 {
		t.Errorf("renewal must sync the existing record, updates = %d", f.records.updates)
	}
}

func TestCoverageDropThreshold(t *testing.T) {
	cases := []struct {
		name      string
		fresh     float64
		wantAlert bool
	}{
		{"exactly five points lower", 75, false},
		{"six points lower", 74, true},
		{"unchanged", 80, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.withLocalRecord("POL-123", 80, 50, nil)
			f.gateway.resp = eligibleResponse("POL-123", tc.fresh, 50)

			v, err := f.svc.VerifyByMemberID(context.Background(), f.patient.EmiratesID, nil)
			if err != nil {
				t.Fatalf("VerifyByMemberID: %v", err)
			}
			alert := hasAlert(v.Alerts, AlertCoverageReduced)
			if tc.wantAlert && alert == nil {
				t.Error("expected coverage-reduced alert")
			}
			if !tc.wantAlert && alert != nil {
				t.Errorf("unexpected coverage-reduced alert: %+v", alert)
			}
			if v.CoverageChanged != tc.wantAlert {
				t.Errorf("CoverageChanged = %v, want %v", v.CoverageChanged, tc.wantAlert)
			}
		})
	}
}

func TestCopayRiseThreshold(t *testing.T) {
	cases := []struct {
		name      string
		fresh     float64
		wantAlert bool
	}{
		{"exactly ten more", 60, false},
		{"eleven more", 61, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.withLocalRecord("POL-123", 80, 50, nil)
			f.gateway.resp = eligibleResponse("POL-123", 80, tc.fresh)

			v, err := f.svc.VerifyByMemberID(context.Background(), f.patient.EmiratesID, nil)
			if err != nil {
				t.Fatalf("VerifyByMemberID: %v", err)
			}
			alert := hasAlert(v.Alerts, AlertCopayIncreased)
			if tc.wantAlert && alert == nil {
				t.Error("expected copay-increased alert")
			}
			if !tc.wantAlert && alert != nil {
				t.Errorf("unexpected copay-increased alert: %+v", alert)
			}
		})
	}
}

func TestProviderComparisonIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	f.withLocalRecord("POL-123", 80, 50, nil)
	resp := eligibleResponse("POL-123", 80, 50)
	resp.ProviderName = "DAMAN NATIONAL HEALTH INSURANCE"
	f.gateway.resp = resp

	v, err := f.svc.VerifyByMemberID(context.Background(), f.patient.EmiratesID, nil)
	if err != nil {
		t.Fatalf("VerifyByMemberID: %v", err)
	}
	if hasAlert(v.Alerts, AlertProviderChanged) != nil {
		t.Error("case-only provider difference must not raise an alert")
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.withLocalRecord("POL-123", 80, 50, nil)
	f.gateway.resp = eligibleResponse("POL-123", 80, 50)

	for i := 0; i < 2; i++ {
		if _, err := f.svc.VerifyByMemberID(context.Background(), f.patient.EmiratesID, nil); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if len(f.records.records) != 1 {
		t.Fatalf("expected a single record after repeated sync, got %d", len(f.records.records))
	}
	rec := f.records.records[0]
	if !rec.IsPrimary || !rec.IsActive {
		t.Error("synced record must stay active primary")
	}
	if f.records.creates != 0 {
		t.Errorf("matching policy must never insert, creates = %d", f.records.creates)
	}
}

func TestSyncNewPolicySupersedesPrimary(t *testing.T) {
	f := newFixture(t)
	old := f.withLocalRecord("POL-OLD", 80, 50, nil)
	f.gateway.resp = eligibleResponse("POL-NEW", 90, 30)

	v, err := f.svc.VerifyByMemberID(context.Background(), f.patient.EmiratesID, nil)
	if err != nil {
		t.Fatalf("VerifyByMemberID: %v", err)
	}
	if !v.Eligible {
		t.Error("fresh eligible verdict expected")
	}
	if len(f.records.records) != 2 {
		t.Fatalf("expected old record kept plus new one, got %d", len(f.records.records))
	}
	if old.IsPrimary {
		t.Error("old record must be demoted from primary")
	}
	newRec, _ := f.records.GetActivePrimary(context.Background(), f.patient.ID)
	if newRec == nil || newRec.PolicyNumber != "POL-NEW" {
		t.Fatalf("new primary = %+v, want POL-NEW", newRec)
	}
	if newRec.VerificationSource == nil || *newRec.VerificationSource != sourcePayer {
		t.Error("new record must carry payer verification source")
	}
}

func TestHardFailureFallsBackToCachedData(t *testing.T) {
	f := newFixture(t)
	ann := 1500.0
	rec := f.withLocalRecord("POL-123", 80, 50, nil)
	rec.AnnualDeductible = &ann
	f.payments.total = 600
	f.gateway.resp = dha.EligibilityResponse{
		ErrorCode:  dha.CodeConnectionError,
		DataSource: dha.DataSourceLive,
	}

	v, err := f.svc.VerifyByMemberID(context.Background(), f.patient.EmiratesID, nil)
	if err != nil {
		t.Fatalf("VerifyByMemberID: %v", err)
	}
	if !v.Eligible {
		t.Error("valid cached record should report eligible")
	}
	if v.DataSource != dha.DataSourceCached || v.VerificationSource != sourceLocal {
		t.Errorf("provenance = %s/%s, want cached/local", v.DataSource, v.VerificationSource)
	}
	if hasAlert(v.Alerts, AlertPolicyChanged) == nil {
		t.Error("expected fallback WARNING alert")
	}
	if v.DeductibleUsed != 600 || v.DeductibleRemaining != 900 {
		t.Errorf("deductible used/remaining = %.0f/%.0f, want 600/900", v.DeductibleUsed, v.DeductibleRemaining)
	}
}

func TestDeductibleUsageIsCapped(t *testing.T) {
	f := newFixture(t)
	f.gateway.configured = false
	ann := 1000.0
	copayCap := 2000.0
	rec := f.withLocalRecord("POL-123", 80, 50, nil)
	rec.AnnualDeductible = &ann
	rec.AnnualCopayCap = &copayCap
	f.payments.total = 5000

	v, err := f.svc.VerifyByMemberID(context.Background(), f.patient.EmiratesID, nil)
	if err != nil {
		t.Fatalf("VerifyByMemberID: %v", err)
	}
	if v.DeductibleUsed != 1000 || v.DeductibleRemaining != 0 {
		t.Errorf("deductible used/remaining = %.0f/%.0f, want 1000/0", v.DeductibleUsed, v.DeductibleRemaining)
	}
	if v.CopayCapUsed != 2000 || v.CopayCapRemaining != 0 {
		t.Errorf("copay cap used/remaining = %.0f/%.0f, want 2000/0", v.CopayCapUsed, v.CopayCapRemaining)
	}
}

func TestCachedExpiredRecord(t *testing.T) {
	f := newFixture(t)
	f.gateway.configured = false
	past := time.Now().AddDate(-1, 0, 0)
	f.withLocalRecord("POL-123", 80, 50, &past)

	v, err := f.svc.VerifyByMemberID(context.Background(), f.patient.EmiratesID, nil)
	if err != nil {
		t.Fatalf("VerifyByMemberID: %v", err)
	}
	if v.Eligible {
		t.Error("expired cached record must not report eligible")
	}
	if v.PolicyStatus != dha.PolicyExpired {
		t.Errorf("policy status = %s, want EXPIRED", v.PolicyStatus)
	}
	alert := hasAlert(v.Alerts, AlertPolicyChanged)
	if alert == nil || alert.Severity != SeverityWarning {
		t.Fatalf("expected WARNING expired alert, got %+v", alert)
	}
}

func TestUnknownIdentifierWithoutPatient(t *testing.T) {
	f := newFixture(t)
	f.gateway.configured = false

	v, err := f.svc.VerifyByMemberID(context.Background(), "784-0000-0000000-0", nil)
	if err != nil {
		t.Fatalf("VerifyByMemberID: %v", err)
	}
	if v.Eligible {
		t.Error("unknown identifier must not be eligible")
	}
	if v.Message == "" {
		t.Error("expected a register-patient message")
	}
}

func TestVerifyByPatientDelegatesToIdentifier(t *testing.T) {
	f := newFixture(t)
	f.withLocalRecord("POL-123", 80, 50, nil)
	f.gateway.resp = eligibleResponse("POL-123", 80, 50)

	v, err := f.svc.VerifyByPatientID(context.Background(), f.patient.ID, false)
	if err != nil {
		t.Fatalf("VerifyByPatientID: %v", err)
	}
	if f.gateway.calls != 1 {
		t.Errorf("expected one payer call, got %d", f.gateway.calls)
	}
	if v.RequiresIdentifierVerification {
		t.Error("identifier path must not set RequiresIdentifierVerification")
	}
}

func TestVerifyByPatientSkippedIdentifier(t *testing.T) {
	f := newFixture(t)
	f.withLocalRecord("POL-123", 80, 50, nil)

	v, err := f.svc.VerifyByPatientID(context.Background(), f.patient.ID, true)
	if err != nil {
		t.Fatalf("VerifyByPatientID: %v", err)
	}
	if f.gateway.calls != 0 {
		t.Errorf("skipped verification must not call the payer, calls = %d", f.gateway.calls)
	}
	if !v.RequiresIdentifierVerification {
		t.Error("expected RequiresIdentifierVerification flag")
	}
	alert := hasAlert(v.Alerts, AlertEIDNeeded)
	if alert == nil || alert.Severity != SeverityInfo {
		t.Fatalf("expected INFO eid alert when identifier exists but was skipped, got %+v", alert)
	}
}

func TestVerifyByPatientWithoutIdentifier(t *testing.T) {
	f := newFixture(t)
	f.patient.EmiratesID = ""
	f.withLocalRecord("POL-123", 80, 50, nil)

	v, err := f.svc.VerifyByPatientID(context.Background(), f.patient.ID, false)
	if err != nil {
		t.Fatalf("VerifyByPatientID: %v", err)
	}
	if !v.RequiresIdentifierVerification {
		t.Error("expected RequiresIdentifierVerification flag")
	}
	alert := hasAlert(v.Alerts, AlertEIDNeeded)
	if alert == nil || alert.Severity != SeverityWarning {
		t.Fatalf("expected WARNING eid alert when no identifier is on file, got %+v", alert)
	}
}

func TestNormalizeMemberID(t *testing.T) {
	cases := []struct{ in, want string }{
		{"784-1990-1234567-8", "784199012345678"},
		{"pol 123 abc", "POL123ABC"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeMemberID(tc.in); got != tc.want {
			t.Errorf("NormalizeMemberID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
