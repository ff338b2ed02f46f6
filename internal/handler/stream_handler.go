package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-leave-api/internal/models"
	appErrors "github.com/noah-isme/campus-leave-api/pkg/errors"
	"github.com/noah-isme/campus-leave-api/pkg/response"
)

type streamServer interface {
	Serve(w http.ResponseWriter, r *http.Request, hello *models.LeaveRefreshEvent) error
}

type snapshotSummarizer interface {
	CurrentEvent() models.LeaveRefreshEvent
}

// StreamHandler upgrades dashboard connections to the refresh event feed.
type StreamHandler struct {
	hub     streamServer
	summary snapshotSummarizer
	logger  *zap.Logger
}

// NewStreamHandler constructs the handler. A nil hub disables the endpoint.
func NewStreamHandler(hub streamServer, summary snapshotSummarizer, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{hub: hub, summary: summary, logger: logger}
}

// Subscribe godoc
// @Summary Subscribe to refresh events
// @Description WebSocket feed. The first message summarises the current snapshot; later messages follow each applied refresh.
// @Tags Stream
// @Success 101
// @Failure 404 {object} response.Envelope
// @Router /stream [get]
func (h *StreamHandler) Subscribe(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrFeatureDisabled, "stream disabled"))
		return
	}
	var hello *models.LeaveRefreshEvent
	if h.summary != nil {
		event := h.summary.CurrentEvent()
		hello = &event
	}
	if err := h.hub.Serve(c.Writer, c.Request, hello); err != nil {
		// the upgrader has already answered the client
		h.logger.Sugar().Debugw("stream upgrade failed", "error", err)
	}
}
