package insurance

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hims/hims/internal/platform/auth"
	"github.com/hims/hims/pkg/pagination"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	verify := api.Group("/insurance/eligibility", auth.RequireRole("admin", "billing", "frontdesk"))
	verify.POST("/verify", h.VerifyByMemberID)
	verify.POST("/verify-patient/:id", h.VerifyByPatientID)

	records := api.Group("/insurance/records", auth.RequireRole("admin", "billing"))
	records.GET("", h.ListRecords)
	records.GET("/:id", h.GetRecord)
}

type verifyBody struct {
	MemberID    string     `json:"member_id"`
	ServiceDate *time.Time `json:"service_date,omitempty"`
}

func (h *Handler) VerifyByMemberID(c echo.Context) error {
	var body verifyBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.MemberID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "member_id is required")
	}

	verdict, err := h.service.VerifyByMemberID(c.Request().Context(), body.MemberID, body.ServiceDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "eligibility verification failed")
	}
	return c.JSON(http.StatusOK, verdict)
}

func (h *Handler) VerifyByPatientID(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	skip := c.QueryParam("skip_identifier") == "true"

	verdict, err := h.service.VerifyByPatientID(c.Request().Context(), patientID, skip)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, verdict)
}

func (h *Handler) ListRecords(c echo.Context) error {
	patientID, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id query parameter is required")
	}
	params := pagination.FromContext(c)

	recs, total, err := h.service.ListRecords(c.Request().Context(), patientID, params.Limit, params.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list insurance records")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(recs, total, params.Limit, params.Offset))
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid record id")
	}
	rec, err := h.service.GetRecord(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load insurance record")
	}
	if rec == nil {
		return echo.NewHTTPError(http.StatusNotFound, "insurance record not found")
	}
	return c.JSON(http.StatusOK, rec)
}
