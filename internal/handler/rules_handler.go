package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-rota-api/internal/models"
	"github.com/noah-isme/clinic-rota-api/internal/service"
	appErrors "github.com/noah-isme/clinic-rota-api/pkg/errors"
	"github.com/noah-isme/clinic-rota-api/pkg/response"
)

type rulesManager interface {
	Document() models.RulesDocument
	Replace(doc models.RulesDocument) (models.RulesDocument, error)
}

type dedupInvalidator interface {
	InvalidateDedup(ctx context.Context)
}

// RulesHandler serves and replaces the unit-constraint rules document.
type RulesHandler struct {
	rules rulesManager
	runs  dedupInvalidator
}

// NewRulesHandler constructs the handler.
func NewRulesHandler(rules *service.RulesService, runs *service.RotaService) *RulesHandler {
	return &RulesHandler{rules: rules, runs: runs}
}

// Get godoc
// @Summary Get the active rules document
// @Tags Rules
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /rules [get]
func (h *RulesHandler) Get(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.rules.Document(), nil)
}

// Replace godoc
// @Summary Replace the rules document
// @Description Validates and persists the new document. Cached run lookups are invalidated so the next request schedules against the new rules.
// @Tags Rules
// @Accept json
// @Produce json
// @Param payload body models.RulesDocument true "Replacement rules document"
// @Success 200 {object} response.Envelope
// @Router /rules [put]
func (h *RulesHandler) Replace(c *gin.Context) {
	var doc models.RulesDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rules payload"))
		return
	}
	stored, err := h.rules.Replace(doc)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.runs != nil {
		h.runs.InvalidateDedup(c.Request.Context())
	}
	response.JSON(c, http.StatusOK, stored, nil)
}
