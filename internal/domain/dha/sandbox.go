package dha

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// The sandbox generator is deterministic: the last digit of the member id
// selects the scenario, so test beds can exercise every branch without a
// payer connection.
//
//	0 -> member not found
//	1 -> policy expired
//	2 -> out of network, 50% coverage
//	other -> active, in network, full benefit breakdown

func lastDigit(s string) (byte, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] >= '0' && s[i] <= '9' {
			return s[i], true
		}
	}
	return 0, false
}

func mockPolicyNumber(memberID string) string {
	trimmed := strings.NewReplacer("-", "", " ", "").Replace(memberID)
	if len(trimmed) > 8 {
		trimmed = trimmed[len(trimmed)-8:]
	}
	return "POL-" + strings.ToUpper(trimmed)
}

func mockEligibility(req EligibilityRequest, source DataSource) EligibilityResponse {
	now := time.Now().UTC()
	digit, _ := lastDigit(req.MemberID)

	switch digit {
	case '0':
		return EligibilityResponse{
			Eligible:      false,
			PolicyStatus:  PolicyNotFound,
			NetworkStatus: NetworkUnknown,
			DataSource:    source,
			ErrorMessage:  "member not found with this payer",
		}
	case '1':
		effective := now.AddDate(-1, 0, 0)
		expired := now.AddDate(0, -2, 0)
		return EligibilityResponse{
			Eligible:      false,
			PolicyStatus:  PolicyExpired,
			NetworkStatus: NetworkUnknown,
			ProviderName:  "Daman National Health Insurance",
			PolicyNumber:  mockPolicyNumber(req.MemberID),
			PlanName:      "Essential Benefits Plan",
			CoverageType:  "comprehensive",
			EffectiveDate: &effective,
			ExpiryDate:    &expired,
			DataSource:    source,
		}
	case '2':
		effective := now.AddDate(0, -6, 0)
		expiry := now.AddDate(0, 6, 0)
		return EligibilityResponse{
			Eligible:            true,
			PolicyStatus:        PolicyActive,
			NetworkStatus:       OutOfNetwork,
			ProviderName:        "Oman Insurance Company",
			PolicyNumber:        mockPolicyNumber(req.MemberID),
			PlanName:            "Silver Plan",
			CoverageType:        "basic",
			NetworkTier:         "RN3",
			EffectiveDate:       &effective,
			ExpiryDate:          &expiry,
			CoveragePercentage:  50,
			CopayAmount:         50,
			AnnualDeductible:    1000,
			DeductibleUsed:      0,
			DeductibleRemaining: 1000,
			DataSource:          source,
		}
	default:
		effective := now.AddDate(0, -3, 0)
		expiry := now.AddDate(1, 0, 0)
		return EligibilityResponse{
			Eligible:            true,
			PolicyStatus:        PolicyActive,
			NetworkStatus:       InNetwork,
			ProviderName:        "Daman National Health Insurance",
			PolicyNumber:        mockPolicyNumber(req.MemberID),
			PlanName:            "Enhanced Benefits Plan",
			CoverageType:        "comprehensive",
			NetworkTier:         "RN2",
			EffectiveDate:       &effective,
			ExpiryDate:          &expiry,
			CoveragePercentage:  80,
			CopayAmount:         20,
			AnnualDeductible:    500,
			DeductibleUsed:      200,
			DeductibleRemaining: 300,
			AnnualCopayCap:      1500,
			RemainingBenefit:    150000,
			DataSource:          source,
		}
	}
}

// mockClaimAcceptance synthesises a successful submission; the sandbox does
// not replay the eligibility scenario table here.
func mockClaimAcceptance(sub ClaimSubmission) ClaimSubmissionResponse {
	ref := sub.ClaimID
	if ref == "" {
		ref = uuid.New().String()[:8]
	}
	return ClaimSubmissionResponse{
		Success:        true,
		TransactionID:  "TXN-" + uuid.New().String()[:12],
		ClaimReference: fmt.Sprintf("DHA-%s", strings.ToUpper(ref)),
		Status:         SubmissionAccepted,
	}
}

// mockClaimStatus keys the synthetic lifecycle on the reference's last digit:
// 0 rejects, 1 stays pending, everything else approves in full.
func mockClaimStatus(claimReference string) ClaimStatusResponse {
	digit, _ := lastDigit(claimReference)
	switch digit {
	case '0':
		return ClaimStatusResponse{
			Found:        true,
			Status:       WireRejected,
			DenialReason: "service not covered under member plan",
		}
	case '1':
		return ClaimStatusResponse{Found: true, Status: WirePending}
	default:
		amount := 500.0
		return ClaimStatusResponse{
			Found:              true,
			Status:             WireApproved,
			ApprovedAmount:     &amount,
			RemittanceAdviceID: "RA-" + strings.ToUpper(claimReference),
		}
	}
}

func mockRemittance(remittanceID string) *RemittanceAdvice {
	paid := time.Now().UTC().AddDate(0, 0, -3)
	return &RemittanceAdvice{
		ID:               remittanceID,
		ClaimReference:   strings.TrimPrefix(remittanceID, "RA-"),
		PaymentReference: "PAY-" + uuid.New().String()[:8],
		PaymentDate:      &paid,
		TotalClaimed:     500,
		TotalPaid:        400,
	}
}

// Procedure codes the sandbox always denies, so rejection handling can be
// exercised end to end.
var preAuthDenyList = map[string]string{
	"99199": "unlisted procedure requires medical review",
	"0042T": "experimental procedure not covered",
	"S2900": "robotic assistance requires prior medical board approval",
}

func mockPreAuth(preAuthID string, req PreAuthRequest) PreAuthResponse {
	if reason, denied := preAuthDenyList[req.ProcedureCode]; denied {
		return PreAuthResponse{Approved: false, DenialReason: reason}
	}
	return PreAuthResponse{
		Approved:            true,
		AuthorizationNumber: "AUTH-" + strings.ToUpper(preAuthID),
	}
}
