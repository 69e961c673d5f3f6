// Package dha talks to the Dubai Health Authority eClaim gateway. It owns
// mode selection (sandbox vs production vs not configured), deterministic
// sandbox responses, and translation between the payer wire format and the
// typed shapes the rest of the system consumes. Network and parse failures
// are returned as typed soft failures so callers can apply fallback policy.
package dha

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/hims/hims/internal/platform/db"
)

const DefaultTimeout = 30 * time.Second

// Options are the process-wide gateway settings; per-tenant credentials live
// in the SettingsRepository and are fetched on every call.
type Options struct {
	EligibilityURL string
	ClaimsURL      string
	Timeout        time.Duration
	// ProductionEnv selects the fail-closed branch for unconfigured tenants.
	ProductionEnv bool
	Logger        zerolog.Logger
}

type Gateway struct {
	settings       SettingsRepository
	client         *http.Client
	eligibilityURL string
	claimsURL      string
	production     bool
	logger         zerolog.Logger
}

func NewGateway(settings SettingsRepository, opts Options) *Gateway {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{
		settings:       settings,
		client:         &http.Client{Timeout: timeout},
		eligibilityURL: opts.EligibilityURL,
		claimsURL:      opts.ClaimsURL,
		production:     opts.ProductionEnv,
		logger:         opts.Logger.With().Str("component", "dha_gateway").Logger(),
	}
}

// IsConfigured reports whether the tenant has usable gateway credentials.
func (g *Gateway) IsConfigured(ctx context.Context) bool {
	cfg, err := g.settings.Get(ctx)
	if err != nil {
		g.logger.Error().Err(err).Str("tenant", db.TenantFromContext(ctx)).Msg("read dha settings")
		return false
	}
	return cfg.Configured()
}

// ModeFor returns the tenant's integration mode, defaulting to sandbox.
func (g *Gateway) ModeFor(ctx context.Context) Mode {
	cfg, err := g.settings.Get(ctx)
	if err != nil || !cfg.Configured() || cfg.Mode != ModeProduction {
		return ModeSandbox
	}
	return ModeProduction
}

// strategy is resolved once per call so the fail-closed-in-production rule
// stays auditable in one place.
type strategy interface {
	verifyEligibility(ctx context.Context, req EligibilityRequest) EligibilityResponse
	submitClaim(ctx context.Context, sub ClaimSubmission) ClaimSubmissionResponse
	claimStatus(ctx context.Context, claimReference string) ClaimStatusResponse
	remittanceAdvice(ctx context.Context, remittanceID string) (*RemittanceAdvice, error)
	preAuth(ctx context.Context, preAuthID string, req PreAuthRequest) PreAuthResponse
}

func (g *Gateway) resolve(ctx context.Context) strategy {
	cfg, err := g.settings.Get(ctx)
	if err != nil {
		g.logger.Error().Err(err).Str("tenant", db.TenantFromContext(ctx)).Msg("read dha settings")
		cfg = nil
	}
	switch {
	case !cfg.Configured():
		return &notConfiguredStrategy{production: g.production}
	case cfg.Mode != ModeProduction:
		// Credentials may exist, but sandbox mode never sends real calls.
		return &sandboxStrategy{source: DataSourceSandbox}
	default:
		return &liveStrategy{gateway: g, cfg: cfg}
	}
}

func (g *Gateway) VerifyEligibility(ctx context.Context, req EligibilityRequest) EligibilityResponse {
	return g.resolve(ctx).verifyEligibility(ctx, req)
}

func (g *Gateway) SubmitClaim(ctx context.Context, sub ClaimSubmission) ClaimSubmissionResponse {
	return g.resolve(ctx).submitClaim(ctx, sub)
}

func (g *Gateway) GetClaimStatus(ctx context.Context, claimReference string) ClaimStatusResponse {
	return g.resolve(ctx).claimStatus(ctx, claimReference)
}

func (g *Gateway) GetRemittanceAdvice(ctx context.Context, remittanceID string) (*RemittanceAdvice, error) {
	return g.resolve(ctx).remittanceAdvice(ctx, remittanceID)
}

func (g *Gateway) SubmitPreAuth(ctx context.Context, preAuthID string, req PreAuthRequest) PreAuthResponse {
	return g.resolve(ctx).preAuth(ctx, preAuthID, req)
}

// notConfiguredStrategy serves tenants without gateway credentials. Outside
// production it degrades to deterministic mock data so development and demo
// environments keep working; in production it fails closed and forces the
// manual / self-pay path.
type notConfiguredStrategy struct {
	production bool
}

func (s *notConfiguredStrategy) verifyEligibility(_ context.Context, req EligibilityRequest) EligibilityResponse {
	if s.production {
		return EligibilityResponse{
			Eligible:      false,
			PolicyStatus:  PolicyNotFound,
			NetworkStatus: NetworkUnknown,
			DataSource:    DataSourceNotConfigured,
			ErrorCode:     CodeNotConfigured,
			ErrorMessage:  "DHA integration is not configured for this facility",
		}
	}
	return mockEligibility(req, DataSourceMock)
}

func (s *notConfiguredStrategy) submitClaim(_ context.Context, sub ClaimSubmission) ClaimSubmissionResponse {
	if s.production {
		return ClaimSubmissionResponse{
			Success:      false,
			Status:       SubmissionError,
			ErrorCode:    CodeNotConfigured,
			ErrorMessage: "DHA integration is not configured for this facility",
		}
	}
	return mockClaimAcceptance(sub)
}

func (s *notConfiguredStrategy) claimStatus(_ context.Context, claimReference string) ClaimStatusResponse {
	if s.production {
		return ClaimStatusResponse{
			Found:        false,
			ErrorCode:    CodeNotConfigured,
			ErrorMessage: "DHA integration is not configured for this facility",
		}
	}
	return mockClaimStatus(claimReference)
}

func (s *notConfiguredStrategy) remittanceAdvice(_ context.Context, remittanceID string) (*RemittanceAdvice, error) {
	if s.production {
		return nil, nil
	}
	return mockRemittance(remittanceID), nil
}

func (s *notConfiguredStrategy) preAuth(_ context.Context, preAuthID string, req PreAuthRequest) PreAuthResponse {
	if s.production {
		return PreAuthResponse{Pending: true, NotImplemented: true}
	}
	return mockPreAuth(preAuthID, req)
}

// sandboxStrategy serves configured tenants in sandbox mode with the same
// deterministic generator, tagged as sandbox data.
type sandboxStrategy struct {
	source DataSource
}

func (s *sandboxStrategy) verifyEligibility(_ context.Context, req EligibilityRequest) EligibilityResponse {
	return mockEligibility(req, s.source)
}

func (s *sandboxStrategy) submitClaim(_ context.Context, sub ClaimSubmission) ClaimSubmissionResponse {
	return mockClaimAcceptance(sub)
}

func (s *sandboxStrategy) claimStatus(_ context.Context, claimReference string) ClaimStatusResponse {
	return mockClaimStatus(claimReference)
}

func (s *sandboxStrategy) remittanceAdvice(_ context.Context, remittanceID string) (*RemittanceAdvice, error) {
	return mockRemittance(remittanceID), nil
}

func (s *sandboxStrategy) preAuth(_ context.Context, preAuthID string, req PreAuthRequest) PreAuthResponse {
	return mockPreAuth(preAuthID, req)
}
