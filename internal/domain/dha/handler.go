package dha

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hims/hims/internal/platform/auth"
	"github.com/hims/hims/internal/platform/db"
)

type Handler struct {
	gateway  *Gateway
	settings SettingsRepository
}

func NewHandler(gateway *Gateway, settings SettingsRepository) *Handler {
	return &Handler{gateway: gateway, settings: settings}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	adminGroup := api.Group("/integrations/dha", auth.RequireRole("admin"))
	adminGroup.GET("", h.GetSettings)
	adminGroup.PUT("", h.UpdateSettings)

	billingGroup := api.Group("/integrations/dha", auth.RequireRole("admin", "billing"))
	billingGroup.POST("/preauth", h.SubmitPreAuth)
}

func (h *Handler) GetSettings(c echo.Context) error {
	cfg, err := h.settings.Get(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load settings")
	}
	if cfg == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"configured": false,
			"mode":       ModeSandbox,
		})
	}
	// Evaluate before blanking: Configured() depends on the API key.
	configured := cfg.Configured()
	// Never echo credentials back to the client.
	cfg.APIKey = ""
	cfg.APISecret = ""
	return c.JSON(http.StatusOK, map[string]interface{}{
		"configured": configured,
		"settings":   cfg,
	})
}

func (h *Handler) UpdateSettings(c echo.Context) error {
	var cfg TenantConfig
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if cfg.Mode != ModeSandbox && cfg.Mode != ModeProduction {
		return echo.NewHTTPError(http.StatusBadRequest, "mode must be sandbox or production")
	}
	cfg.TenantID = db.TenantFromContext(c.Request().Context())

	// GetSettings never returns credentials, so a read-modify-write cycle
	// arrives with empty key fields. Keep the stored credentials in that
	// case instead of wiping them.
	if cfg.APIKey == "" || cfg.APISecret == "" {
		existing, err := h.settings.Get(c.Request().Context())
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to load settings")
		}
		if existing != nil {
			if cfg.APIKey == "" {
				cfg.APIKey = existing.APIKey
			}
			if cfg.APISecret == "" {
				cfg.APISecret = existing.APISecret
			}
		}
	}

	if err := h.settings.Upsert(c.Request().Context(), &cfg); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save settings")
	}
	return c.JSON(http.StatusOK, map[string]bool{"saved": true})
}

type preAuthBody struct {
	PreAuthID     string `json:"preauth_id"`
	PatientID     string `json:"patient_id"`
	ProcedureCode string `json:"procedure_code"`
	DiagnosisCode string `json:"diagnosis_code,omitempty"`
	Urgency       string `json:"urgency,omitempty"`
}

func (h *Handler) SubmitPreAuth(c echo.Context) error {
	var body preAuthBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.ProcedureCode == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "procedure_code is required")
	}

	resp := h.gateway.SubmitPreAuth(c.Request().Context(), body.PreAuthID, PreAuthRequest{
		PatientID:     body.PatientID,
		ProcedureCode: body.ProcedureCode,
		DiagnosisCode: body.DiagnosisCode,
		Urgency:       body.Urgency,
	})
	if resp.NotImplemented {
		return echo.NewHTTPError(http.StatusNotImplemented, "live pre-authorization is not available yet")
	}
	return c.JSON(http.StatusOK, resp)
}
