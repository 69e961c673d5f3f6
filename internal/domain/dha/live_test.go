package dha

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func liveGateway(cfg *TenantConfig, eligibilityURL, claimsURL string) *Gateway {
	return NewGateway(&mockSettingsRepo{cfg: cfg}, Options{
		EligibilityURL: eligibilityURL,
		ClaimsURL:      claimsURL,
		Timeout:        2 * time.Second,
		ProductionEnv:  true,
		Logger:         zerolog.New(os.Stderr),
	})
}

func TestLiveEligibility_Success(t *testing.T) {
	var gotAuth authBlock
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req wireEligibilityRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotAuth = req.Auth
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":             "ACTIVE",
			"network":            "IN_NETWORK",
			"providerName":       "Daman National Health Insurance",
			"policyNumber":       "POL-881",
			"coveragePercentage": 80,
			"copayAmount":        20,
			"deductible":         map[string]float64{"annual": 500, "used": 200, "remaining": 300},
		})
	}))
	defer srv.Close()

	g := liveGateway(configuredTenant(ModeProduction), srv.URL, srv.URL)
	resp := g.VerifyEligibility(context.Background(), EligibilityRequest{MemberID: "784-1990-1234567"})

	if !resp.Eligible || resp.PolicyStatus != PolicyActive {
		t.Errorf("expected active eligible response, got %+v", resp)
	}
	if resp.DataSource != DataSourceLive {
		t.Errorf("expected DHA_LIVE tag, got %s", resp.DataSource)
	}
	if resp.DeductibleRemaining != 300 {
		t.Errorf("expected deductible remaining 300, got %v", resp.DeductibleRemaining)
	}
	if gotAuth.FacilityID != "DHA-F-0001" || gotAuth.APIKey != "key" {
		t.Errorf("expected auth envelope with tenant credentials, got %+v", gotAuth)
	}
	if gotAuth.Timestamp == "" {
		t.Error("expected auth envelope timestamp")
	}
}

func TestLiveEligibility_TransportFailure(t *testing.T) {
	// Closed server: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	g := liveGateway(configuredTenant(ModeProduction), srv.URL, srv.URL)
	resp := g.VerifyEligibility(context.Background(), EligibilityRequest{MemberID: "784-1990-1234567"})

	if resp.Eligible {
		t.Error("transport failure must not be eligible")
	}
	if resp.ErrorCode != CodeConnectionError {
		t.Errorf("expected CONNECTION_ERROR, got %s", resp.ErrorCode)
	}
}

func TestLiveEligibility_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := liveGateway(configuredTenant(ModeProduction), srv.URL, srv.URL)
	resp := g.VerifyEligibility(context.Background(), EligibilityRequest{MemberID: "784-1990-1234567"})
	if resp.ErrorCode != CodeConnectionError {
		t.Errorf("expected CONNECTION_ERROR for 502, got %s", resp.ErrorCode)
	}
}

func TestLiveEligibility_ParseFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"network": "IN_NETWORK"}`)) // missing status
	}))
	defer srv.Close()

	g := liveGateway(configuredTenant(ModeProduction), srv.URL, srv.URL)
	resp := g.VerifyEligibility(context.Background(), EligibilityRequest{MemberID: "784-1990-1234567"})
	if resp.ErrorCode != CodeParseError {
		t.Errorf("expected PARSE_ERROR for missing status, got %s", resp.ErrorCode)
	}
}

func TestLiveEligibility_UnknownStatusIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "MAYBE"}`))
	}))
	defer srv.Close()

	g := liveGateway(configuredTenant(ModeProduction), srv.URL, srv.URL)
	resp := g.VerifyEligibility(context.Background(), EligibilityRequest{MemberID: "784-1990-1234567"})
	if resp.ErrorCode != CodeParseError {
		t.Errorf("expected PARSE_ERROR for unknown status enum, got %s", resp.ErrorCode)
	}
}

func TestLiveSubmitClaim_ValidationErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"accepted": false,
			"status":   "REJECTED",
			"validationErrors": []map[string]string{
				{"code": "E-1002", "message": "invalid diagnosis code", "field": "primary_diagnosis"},
			},
		})
	}))
	defer srv.Close()

	g := liveGateway(configuredTenant(ModeProduction), srv.URL, srv.URL)
	resp := g.SubmitClaim(context.Background(), ClaimSubmission{ClaimID: "C-9"})

	if resp.Success {
		t.Error("expected rejected submission")
	}
	if resp.Status != SubmissionRejected {
		t.Errorf("expected REJECTED, got %s", resp.Status)
	}
	if len(resp.ValidationErrors) != 1 || resp.ValidationErrors[0].Code != "E-1002" {
		t.Errorf("expected structured validation errors, got %+v", resp.ValidationErrors)
	}
}

func TestLiveSubmitClaim_Accepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"accepted":       true,
			"status":         "ACCEPTED",
			"transactionId":  "TXN-1",
			"claimReference": "DHA123",
		})
	}))
	defer srv.Close()

	g := liveGateway(configuredTenant(ModeProduction), srv.URL, srv.URL)
	resp := g.SubmitClaim(context.Background(), ClaimSubmission{ClaimID: "C-10"})
	if !resp.Success || resp.ClaimReference != "DHA123" {
		t.Errorf("expected accepted submission with reference, got %+v", resp)
	}
}

func TestLiveClaimStatus_Approved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":             "APPROVED",
			"approvedAmount":     500.0,
			"remittanceAdviceId": "RA-77",
		})
	}))
	defer srv.Close()

	g := liveGateway(configuredTenant(ModeProduction), srv.URL, srv.URL)
	resp := g.GetClaimStatus(context.Background(), "DHA123")
	if !resp.Found || resp.Status != WireApproved {
		t.Errorf("expected approved status, got %+v", resp)
	}
	if resp.ApprovedAmount == nil || *resp.ApprovedAmount != 500 {
		t.Error("expected approved amount 500")
	}
}

func TestLiveClaimStatus_SoftFailureOnTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	g := liveGateway(configuredTenant(ModeProduction), srv.URL, srv.URL)
	resp := g.GetClaimStatus(context.Background(), "DHA123")
	if resp.Found {
		t.Error("expected not-found result on transport failure")
	}
	if resp.ErrorCode != CodeConnectionError {
		t.Errorf("expected CONNECTION_ERROR, got %s", resp.ErrorCode)
	}
}

func TestDecodeEligibility_MissingStatus(t *testing.T) {
	if _, err := decodeEligibility([]byte(`{}`)); err == nil {
		t.Error("expected error for missing status")
	}
}

func TestParseWireDate(t *testing.T) {
	if d := parseWireDate("2026-01-15"); d == nil || d.Year() != 2026 {
		t.Errorf("expected parsed date, got %v", d)
	}
	if d := parseWireDate(""); d != nil {
		t.Error("expected nil for empty date")
	}
	if d := parseWireDate("garbage"); d != nil {
		t.Error("expected nil for unparseable date")
	}
}
