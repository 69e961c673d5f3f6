package dha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// liveStrategy sends authenticated requests to the real eClaim endpoints.
// Every failure is folded into a typed soft-failure response; the raw payload
// of an undecodable response is logged for diagnostics.
type liveStrategy struct {
	gateway *Gateway
	cfg     *TenantConfig
}

type authBlock struct {
	FacilityID      string `json:"facilityId"`
	FacilityLicense string `json:"facilityLicense"`
	APIKey          string `json:"apiKey"`
	Timestamp       string `json:"timestamp"`
}

func (s *liveStrategy) auth() authBlock {
	return authBlock{
		FacilityID:      s.cfg.FacilityID,
		FacilityLicense: s.cfg.FacilityLicense,
		APIKey:          s.cfg.APIKey,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}
}

func (s *liveStrategy) post(ctx context.Context, url string, body interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.gateway.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return raw, nil
}

// -- Eligibility --

type wireEligibilityRequest struct {
	Auth        authBlock `json:"auth"`
	MemberID    string    `json:"memberId"`
	PayerID     string    `json:"payerId,omitempty"`
	ServiceDate string    `json:"serviceDate,omitempty"`
}

// Wire responses decode through pointer fields so a missing required field is
// a parse failure, never a silently-zero value inside business logic.
type wireEligibilityResponse struct {
	Status        *string  `json:"status"`
	Network       *string  `json:"network"`
	ProviderName  string   `json:"providerName"`
	PolicyNumber  string   `json:"policyNumber"`
	PlanName      string   `json:"planName"`
	CoverageType  string   `json:"coverageType"`
	NetworkTier   string   `json:"networkTier"`
	EffectiveDate string   `json:"effectiveDate"`
	ExpiryDate    string   `json:"expiryDate"`
	Coverage      *float64 `json:"coveragePercentage"`
	CopayAmount   float64  `json:"copayAmount"`
	Deductible    struct {
		Annual    float64 `json:"annual"`
		Used      float64 `json:"used"`
		Remaining float64 `json:"remaining"`
	} `json:"deductible"`
	AnnualCopayCap   float64 `json:"annualCopayCap"`
	RemainingBenefit float64 `json:"remainingBenefit"`
}

func parseWireDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func decodeEligibility(raw []byte) (EligibilityResponse, error) {
	var wire wireEligibilityResponse
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&wire); err != nil {
		return EligibilityResponse{}, fmt.Errorf("decode eligibility response: %w", err)
	}
	if wire.Status == nil {
		return EligibilityResponse{}, fmt.Errorf("eligibility response missing status field")
	}

	status := PolicyStatus(*wire.Status)
	switch status {
	case PolicyActive, PolicyInactive, PolicyExpired, PolicySuspended, PolicyNotFound:
	default:
		return EligibilityResponse{}, fmt.Errorf("eligibility response has unknown status %q", *wire.Status)
	}

	network := NetworkUnknown
	if wire.Network != nil {
		switch NetworkStatus(*wire.Network) {
		case InNetwork:
			network = InNetwork
		case OutOfNetwork:
			network = OutOfNetwork
		}
	}

	resp := EligibilityResponse{
		Eligible:            status == PolicyActive,
		PolicyStatus:        status,
		NetworkStatus:       network,
		ProviderName:        wire.ProviderName,
		PolicyNumber:        wire.PolicyNumber,
		PlanName:            wire.PlanName,
		CoverageType:        wire.CoverageType,
		NetworkTier:         wire.NetworkTier,
		EffectiveDate:       parseWireDate(wire.EffectiveDate),
		ExpiryDate:          parseWireDate(wire.ExpiryDate),
		CopayAmount:         wire.CopayAmount,
		AnnualDeductible:    wire.Deductible.Annual,
		DeductibleUsed:      wire.Deductible.Used,
		DeductibleRemaining: wire.Deductible.Remaining,
		AnnualCopayCap:      wire.AnnualCopayCap,
		RemainingBenefit:    wire.RemainingBenefit,
		DataSource:          DataSourceLive,
	}
	if wire.Coverage != nil {
		resp.CoveragePercentage = *wire.Coverage
	}
	return resp, nil
}

func (s *liveStrategy) verifyEligibility(ctx context.Context, req EligibilityRequest) EligibilityResponse {
	wireReq := wireEligibilityRequest{
		Auth:     s.auth(),
		MemberID: req.MemberID,
		PayerID:  req.PayerID,
	}
	if req.ServiceDate != nil {
		wireReq.ServiceDate = req.ServiceDate.Format("2006-01-02")
	}

	raw, err := s.post(ctx, s.gateway.eligibilityURL+"/verify", wireReq)
	if err != nil {
		s.gateway.logger.Warn().Err(err).Str("member_id", req.MemberID).Msg("eligibility call failed")
		return EligibilityResponse{
			Eligible:      false,
			PolicyStatus:  PolicyNotFound,
			NetworkStatus: NetworkUnknown,
			DataSource:    DataSourceLive,
			ErrorCode:     CodeConnectionError,
			ErrorMessage:  err.Error(),
		}
	}

	resp, err := decodeEligibility(raw)
	if err != nil {
		s.gateway.logger.Error().Err(err).
			Str("member_id", req.MemberID).
			Str("raw_payload", string(raw)).
			Msg("eligibility response unparseable")
		return EligibilityResponse{
			Eligible:      false,
			PolicyStatus:  PolicyNotFound,
			NetworkStatus: NetworkUnknown,
			DataSource:    DataSourceLive,
			ErrorCode:     CodeParseError,
			ErrorMessage:  err.Error(),
		}
	}
	return resp
}

// -- Claim submission --

type wireClaimRequest struct {
	Auth  authBlock       `json:"auth"`
	Claim ClaimSubmission `json:"claim"`
}

type wireClaimResponse struct {
	Accepted         *bool             `json:"accepted"`
	TransactionID    string            `json:"transactionId"`
	ClaimReference   string            `json:"claimReference"`
	Status           string            `json:"status"`
	ValidationErrors []ValidationError `json:"validationErrors"`
}

func decodeClaimSubmission(raw []byte) (ClaimSubmissionResponse, error) {
	var wire wireClaimResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return ClaimSubmissionResponse{}, fmt.Errorf("decode claim response: %w", err)
	}
	if wire.Accepted == nil {
		return ClaimSubmissionResponse{}, fmt.Errorf("claim response missing accepted field")
	}

	status := SubmissionStatus(wire.Status)
	switch status {
	case SubmissionAccepted, SubmissionRejected, SubmissionPending:
	default:
		if *wire.Accepted {
			status = SubmissionAccepted
		} else {
			status = SubmissionRejected
		}
	}

	return ClaimSubmissionResponse{
		Success:          *wire.Accepted,
		TransactionID:    wire.TransactionID,
		ClaimReference:   wire.ClaimReference,
		Status:           status,
		ValidationErrors: wire.ValidationErrors,
	}, nil
}

func (s *liveStrategy) submitClaim(ctx context.Context, sub ClaimSubmission) ClaimSubmissionResponse {
	raw, err := s.post(ctx, s.gateway.claimsURL+"/submit", wireClaimRequest{Auth: s.auth(), Claim: sub})
	if err != nil {
		s.gateway.logger.Warn().Err(err).Str("claim_id", sub.ClaimID).Msg("claim submission failed")
		return ClaimSubmissionResponse{
			Success:      false,
			Status:       SubmissionError,
			ErrorCode:    CodeConnectionError,
			ErrorMessage: err.Error(),
		}
	}

	resp, err := decodeClaimSubmission(raw)
	if err != nil {
		s.gateway.logger.Error().Err(err).
			Str("claim_id", sub.ClaimID).
			Str("raw_payload", string(raw)).
			Msg("claim response unparseable")
		return ClaimSubmissionResponse{
			Success:      false,
			Status:       SubmissionError,
			ErrorCode:    CodeParseError,
			ErrorMessage: err.Error(),
		}
	}
	return resp
}

// -- Claim status --

type wireStatusRequest struct {
	Auth           authBlock `json:"auth"`
	ClaimReference string    `json:"claimReference"`
}

type wireStatusResponse struct {
	Status             *string  `json:"status"`
	ApprovedAmount     *float64 `json:"approvedAmount"`
	RejectedAmount     *float64 `json:"rejectedAmount"`
	DenialReason       string   `json:"denialReason"`
	RemittanceAdviceID string   `json:"remittanceAdviceId"`
}

func decodeClaimStatus(raw []byte) (ClaimStatusResponse, error) {
	var wire wireStatusResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return ClaimStatusResponse{}, fmt.Errorf("decode status response: %w", err)
	}
	if wire.Status == nil {
		return ClaimStatusResponse{}, fmt.Errorf("status response missing status field")
	}
	return ClaimStatusResponse{
		Found:              true,
		Status:             WireClaimStatus(*wire.Status),
		ApprovedAmount:     wire.ApprovedAmount,
		RejectedAmount:     wire.RejectedAmount,
		DenialReason:       wire.DenialReason,
		RemittanceAdviceID: wire.RemittanceAdviceID,
	}, nil
}

func (s *liveStrategy) claimStatus(ctx context.Context, claimReference string) ClaimStatusResponse {
	raw, err := s.post(ctx, s.gateway.claimsURL+"/status", wireStatusRequest{Auth: s.auth(), ClaimReference: claimReference})
	if err != nil {
		s.gateway.logger.Warn().Err(err).Str("claim_reference", claimReference).Msg("claim status call failed")
		return ClaimStatusResponse{Found: false, ErrorCode: CodeConnectionError, ErrorMessage: err.Error()}
	}

	resp, err := decodeClaimStatus(raw)
	if err != nil {
		s.gateway.logger.Error().Err(err).
			Str("claim_reference", claimReference).
			Str("raw_payload", string(raw)).
			Msg("status response unparseable")
		return ClaimStatusResponse{Found: false, ErrorCode: CodeParseError, ErrorMessage: err.Error()}
	}
	return resp
}

// -- Remittance --

type wireRemittanceRequest struct {
	Auth         authBlock `json:"auth"`
	RemittanceID string    `json:"remittanceId"`
}

func (s *liveStrategy) remittanceAdvice(ctx context.Context, remittanceID string) (*RemittanceAdvice, error) {
	raw, err := s.post(ctx, s.gateway.claimsURL+"/remittance", wireRemittanceRequest{Auth: s.auth(), RemittanceID: remittanceID})
	if err != nil {
		return nil, fmt.Errorf("fetch remittance advice: %w", err)
	}

	var advice RemittanceAdvice
	if err := json.Unmarshal(raw, &advice); err != nil {
		return nil, fmt.Errorf("decode remittance advice: %w", err)
	}
	if advice.ID == "" {
		return nil, nil
	}
	return &advice, nil
}

// The live pre-authorization flow is not built yet. Callers see an explicit
// not-implemented marker rather than a fabricated pending state.
func (s *liveStrategy) preAuth(_ context.Context, _ string, _ PreAuthRequest) PreAuthResponse {
	return PreAuthResponse{Pending: true, NotImplemented: true}
}
