package claims

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hims/hims/internal/platform/auth"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/claims", auth.RequireRole("admin", "billing"))
	g.POST("/submit", h.Submit)
	g.POST("/:reference/refresh", h.Refresh)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.GET("/remittance/:id", h.Remittance)

	// The sweep walks every stale claim in the tenant, so it is reserved
	// for operators rather than billing staff.
	ops := api.Group("/claims", auth.RequireRole("admin"))
	ops.POST("/refresh-all", h.BulkRefresh)
}

type submitBody struct {
	InvoiceID uuid.UUID `json:"invoice_id"`
}

func (h *Handler) Submit(c echo.Context) error {
	var body submitBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.InvoiceID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invoice_id is required")
	}

	resp, err := h.service.Submit(c.Request().Context(), body.InvoiceID)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	if !resp.Success {
		return c.JSON(http.StatusBadGateway, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) Refresh(c echo.Context) error {
	ref := c.Param("reference")
	if ref == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "claim reference is required")
	}

	resp, updated, err := h.service.RefreshStatus(c.Request().Context(), ref)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "claim refresh failed")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"payer":   resp,
		"updated": updated,
	})
}

func (h *Handler) BulkRefresh(c echo.Context) error {
	maxAge := DefaultMaxAge
	if days, err := strconv.Atoi(c.QueryParam("max_age_days")); err == nil && days > 0 {
		maxAge = time.Duration(days) * 24 * time.Hour
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	result, err := h.service.BulkRefresh(c.Request().Context(), maxAge, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "bulk refresh failed")
	}
	return c.JSON(http.StatusOK, result)
}

// List filters claims by invoice_id or by lifecycle status.
func (h *Handler) List(c echo.Context) error {
	var (
		recs []*ClaimRecord
		err  error
	)
	switch {
	case c.QueryParam("invoice_id") != "":
		invoiceID, perr := uuid.Parse(c.QueryParam("invoice_id"))
		if perr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid invoice_id")
		}
		recs, err = h.service.ListByInvoice(c.Request().Context(), invoiceID)
	case c.QueryParam("status") != "":
		status, ok := ParseStatus(c.QueryParam("status"))
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown claim status")
		}
		recs, err = h.service.ListByStatus(c.Request().Context(), status)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invoice_id or status query parameter is required")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list claims")
	}
	return c.JSON(http.StatusOK, recs)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid claim id")
	}
	rec, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load claim")
	}
	if rec == nil {
		return echo.NewHTTPError(http.StatusNotFound, "claim not found")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) Remittance(c echo.Context) error {
	advice, err := h.service.Remittance(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "remittance lookup failed")
	}
	if advice == nil {
		return echo.NewHTTPError(http.StatusNotFound, "remittance advice not found")
	}
	return c.JSON(http.StatusOK, advice)
}
