package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-leave-api/internal/dto"
	"github.com/noah-isme/campus-leave-api/internal/models"
	"github.com/noah-isme/campus-leave-api/internal/service"
	appErrors "github.com/noah-isme/campus-leave-api/pkg/errors"
	"github.com/noah-isme/campus-leave-api/pkg/response"
)

type slipService interface {
	Request(ctx context.Context, leaveID string) (*models.LeaveSlipJob, error)
	Status(ctx context.Context, id string) (*models.LeaveSlipJob, error)
	ResolveDownload(ctx context.Context, token string) (*service.SlipDownload, error)
	Verify(ctx context.Context, token string) (*models.LeaveSlipClaims, error)
}

// SlipHandler exposes printable leave slip endpoints.
type SlipHandler struct {
	slips slipService
}

// NewSlipHandler constructs the handler.
func NewSlipHandler(slips slipService) *SlipHandler {
	return &SlipHandler{slips: slips}
}

// Create godoc
// @Summary Request a leave slip
// @Description Queues PDF rendering for an approved leave.
// @Tags Slips
// @Produce json
// @Param id path string true "Leave ID"
// @Success 202 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /leaves/{id}/slip [post]
func (h *SlipHandler) Create(c *gin.Context) {
	job, err := h.slips.Request(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, dto.NewSlipJobResponse(job))
}

// Status godoc
// @Summary Leave slip job status
// @Tags Slips
// @Produce json
// @Param jobId path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /slips/{jobId} [get]
func (h *SlipHandler) Status(c *gin.Context) {
	job, err := h.slips.Status(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewSlipJobResponse(job), nil)
}

// Download godoc
// @Summary Download a leave slip
// @Tags Slips
// @Produce application/pdf
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /slips/download [get]
func (h *SlipHandler) Download(c *gin.Context) {
	token, ok := requireToken(c)
	if !ok {
		return
	}
	download, err := h.slips.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck
	var size int64 = -1
	if info, err := download.File.Stat(); err == nil {
		size = info.Size()
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", download.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, size, "application/pdf", download.File, nil)
}

// Verify godoc
// @Summary Verify a scanned leave slip
// @Tags Slips
// @Produce json
// @Param token query string true "Token from the slip QR code"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /slips/verify [get]
func (h *SlipHandler) Verify(c *gin.Context) {
	token, ok := requireToken(c)
	if !ok {
		return
	}
	claims, err := h.slips.Verify(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.SlipVerification{Valid: true, Slip: claims}, nil)
}

func requireToken(c *gin.Context) (string, bool) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return "", false
	}
	return token, true
}
