package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-rota-api/internal/dto"
	"github.com/noah-isme/clinic-rota-api/internal/middleware"
	"github.com/noah-isme/clinic-rota-api/internal/models"
	"github.com/noah-isme/clinic-rota-api/internal/service"
	appErrors "github.com/noah-isme/clinic-rota-api/pkg/errors"
	"github.com/noah-isme/clinic-rota-api/pkg/response"
)

const maxRosterSize = 256

type rotaRunService interface {
	CreateRun(ctx context.Context, req dto.CreateRunRequest, createdBy *string) (*dto.RunResponse, error)
	GetStatus(ctx context.Context, id string) (*dto.RunStatusResponse, error)
	GetResult(ctx context.Context, id string) (*dto.RunResultResponse, bool, error)
	List(ctx context.Context, status string, page, perPage int) ([]dto.RunStatusResponse, int, error)
	Preview(people []models.Person) (*dto.PreviewResponse, error)
	Defaults() *dto.DefaultsResponse
}

type rosterValidator interface {
	ValidateRoster(people []models.Person) dto.ValidateRosterResponse
	ValidateField(level, field, value string) dto.ValidateFieldResponse
}

// RotaHandler exposes schedule run endpoints.
type RotaHandler struct {
	service   rotaRunService
	validator rosterValidator
}

// NewRotaHandler constructs the handler.
func NewRotaHandler(svc *service.RotaService, validator *service.ValidationService) *RotaHandler {
	return &RotaHandler{service: svc, validator: validator}
}

// CreateRun godoc
// @Summary Create a schedule generation run
// @Description Validates the roster and enqueues an asynchronous run. An identical request within the dedup window returns the existing run instead of scheduling a new one.
// @Tags Schedule
// @Accept json
// @Produce json
// @Param payload body dto.CreateRunRequest true "Roster, engine overrides and R1 pins"
// @Success 202 {object} response.Envelope
// @Success 200 {object} response.Envelope "Identical recent run reused"
// @Router /schedule/runs [post]
func (h *RotaHandler) CreateRun(c *gin.Context) {
	var req dto.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid run payload"))
		return
	}
	if len(req.Personnel) > maxRosterSize {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "personnel exceeds supported roster size"))
		return
	}
	var createdBy *string
	if claims := claimsFromContext(c); claims != nil {
		createdBy = &claims.Email
	}
	resp, err := h.service.CreateRun(c.Request.Context(), req, createdBy)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusAccepted
	if resp.Reused {
		status = http.StatusOK
	}
	response.JSON(c, status, resp, nil)
}

// ListRuns godoc
// @Summary List schedule runs
// @Tags Schedule
// @Produce json
// @Param status query string false "Filter by status (QUEUED, PROCESSING, FINISHED, FAILED)"
// @Param page query int false "Page number, starting at 1"
// @Param perPage query int false "Page size, max 100"
// @Success 200 {object} response.Envelope
// @Router /schedule/runs [get]
func (h *RotaHandler) ListRuns(c *gin.Context) {
	page := intQuery(c, "page", 1)
	perPage := intQuery(c, "perPage", 20)
	items, total, err := h.service.List(c.Request.Context(), strings.TrimSpace(c.Query("status")), page, perPage)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &models.Pagination{Page: page, PageSize: perPage, TotalCount: total}
	response.JSON(c, http.StatusOK, items, pagination)
}

// GetRun godoc
// @Summary Get run status and artifact links
// @Tags Schedule
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /schedule/runs/{id} [get]
func (h *RotaHandler) GetRun(c *gin.Context) {
	resp, err := h.service.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// GetRunResult godoc
// @Summary Get the full result of a finished run
// @Description Returns the generated schedule, statistics and violation report. Responds 409 while the run is still queued or processing.
// @Tags Schedule
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /schedule/runs/{id}/result [get]
func (h *RotaHandler) GetRunResult(c *gin.Context) {
	start := time.Now()
	resp, cacheHit, err := h.service.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, resp, nil, meta)
}

// Preview godoc
// @Summary Preview the deterministic pre-schedule
// @Description Resolves R1 clinic picks, the health-checkup rota and fixed senior placements without running the engine.
// @Tags Schedule
// @Accept json
// @Produce json
// @Param payload body dto.PreviewRequest true "Roster to preview"
// @Success 200 {object} response.Envelope
// @Router /schedule/preview [post]
func (h *RotaHandler) Preview(c *gin.Context) {
	var req dto.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid preview payload"))
		return
	}
	resp, err := h.service.Preview(req.People())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// ValidateRoster godoc
// @Summary Validate a full roster
// @Description Returns the complete verdict with errors, warnings and a difficulty score instead of rejecting invalid input.
// @Tags Schedule
// @Accept json
// @Produce json
// @Param payload body dto.ValidateRosterRequest true "Roster to validate"
// @Success 200 {object} response.Envelope
// @Router /schedule/validate [post]
func (h *RotaHandler) ValidateRoster(c *gin.Context) {
	var req dto.ValidateRosterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid validate payload"))
		return
	}
	people := make([]models.Person, 0, len(req.Personnel))
	for _, p := range req.Personnel {
		people = append(people, p.ToModel())
	}
	response.JSON(c, http.StatusOK, h.validator.ValidateRoster(people), nil)
}

// ValidateField godoc
// @Summary Validate a single roster field
// @Tags Schedule
// @Accept json
// @Produce json
// @Param payload body dto.ValidateFieldRequest true "Field to validate"
// @Success 200 {object} response.Envelope
// @Router /schedule/validate-field [post]
func (h *RotaHandler) ValidateField(c *gin.Context) {
	var req dto.ValidateFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid validate-field payload"))
		return
	}
	response.JSON(c, http.StatusOK, h.validator.ValidateField(req.Level, req.Field, req.Value), nil)
}

// Defaults godoc
// @Summary Describe schedulable levels, units, rooms and engine defaults
// @Tags Schedule
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /schedule/defaults [get]
func (h *RotaHandler) Defaults(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Defaults(), nil)
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
