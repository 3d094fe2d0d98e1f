package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-rota-api/internal/models"
	"github.com/noah-isme/clinic-rota-api/internal/service"
	appErrors "github.com/noah-isme/clinic-rota-api/pkg/errors"
	"github.com/noah-isme/clinic-rota-api/pkg/response"
)

type downloadResolver interface {
	ResolveDownload(ctx context.Context, token string) (*service.RunDownload, error)
}

// ExportHandler streams signed artifact downloads.
type ExportHandler struct {
	service downloadResolver
}

// NewExportHandler constructs the handler.
func NewExportHandler(svc *service.RotaService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Download godoc
// @Summary Download a run artifact via signed token
// @Description Streams the CSV, PDF or ZIP artifact the token points at. Tokens expire; expired links respond 410.
// @Tags Export
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /export/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.service.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, result.SizeBytes, contentTypeFor(result.Kind), result.File, nil)
}

func contentTypeFor(kind models.ArtifactKind) string {
	switch kind {
	case models.ArtifactGridCSV, models.ArtifactPersonalCSV, models.ArtifactStatisticsCSV:
		return "text/csv; charset=utf-8"
	case models.ArtifactSchedulePDF:
		return "application/pdf"
	case models.ArtifactBundleZIP:
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}
