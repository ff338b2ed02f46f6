package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-leave-api/internal/dto"
	"github.com/noah-isme/campus-leave-api/internal/models"
	"github.com/noah-isme/campus-leave-api/internal/service"
	appErrors "github.com/noah-isme/campus-leave-api/pkg/errors"
	"github.com/noah-isme/campus-leave-api/pkg/response"
)

type viewSessions interface {
	Create(ctx context.Context, patch *models.CriteriaPatch) (*service.LeaveViewSession, models.LeaveViewModel, error)
	View(ctx context.Context, id string) (models.LeaveViewModel, error)
	UpdateCriteria(ctx context.Context, id string, patch models.CriteriaPatch) (models.LeaveViewModel, error)
	NextPage(ctx context.Context, id string) (models.LeaveViewModel, error)
	PrevPage(ctx context.Context, id string) (models.LeaveViewModel, error)
	Delete(ctx context.Context, id string) error
}

// ViewHandler exposes dashboard view sessions that keep criteria between
// refreshes.
type ViewHandler struct {
	sessions viewSessions
}

// NewViewHandler constructs the handler.
func NewViewHandler(sessions viewSessions) *ViewHandler {
	return &ViewHandler{sessions: sessions}
}

// Create godoc
// @Summary Open a view session
// @Tags Views
// @Accept json
// @Produce json
// @Param payload body models.CriteriaPatch false "Initial criteria"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /views [post]
func (h *ViewHandler) Create(c *gin.Context) {
	var patch *models.CriteriaPatch
	if c.Request.ContentLength != 0 {
		patch = &models.CriteriaPatch{}
		if err := c.ShouldBindJSON(patch); err != nil {
			if !errors.Is(err, io.EOF) {
				response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid criteria payload"))
				return
			}
			patch = nil
		}
	}
	session, view, err := h.sessions.Create(c.Request.Context(), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondView(c, http.StatusCreated, dto.ViewSessionResponse{ID: session.ID(), View: view}, view)
}

// Get godoc
// @Summary Render a view session
// @Description Re-renders the session criteria against the latest records.
// @Tags Views
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /views/{id} [get]
func (h *ViewHandler) Get(c *gin.Context) {
	h.respond(c, func(ctx context.Context, id string) (models.LeaveViewModel, error) {
		return h.sessions.View(ctx, id)
	})
}

// UpdateCriteria godoc
// @Summary Change view criteria
// @Description Omitted fields keep their value, empty strings clear a filter. Changing a filter resets the page to 1.
// @Tags Views
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body models.CriteriaPatch true "Criteria patch"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /views/{id}/criteria [patch]
func (h *ViewHandler) UpdateCriteria(c *gin.Context) {
	var patch models.CriteriaPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid criteria payload"))
		return
	}
	h.respond(c, func(ctx context.Context, id string) (models.LeaveViewModel, error) {
		return h.sessions.UpdateCriteria(ctx, id, patch)
	})
}

// NextPage godoc
// @Summary Next page
// @Tags Views
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /views/{id}/next [post]
func (h *ViewHandler) NextPage(c *gin.Context) {
	h.respond(c, h.sessions.NextPage)
}

// PrevPage godoc
// @Summary Previous page
// @Tags Views
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /views/{id}/prev [post]
func (h *ViewHandler) PrevPage(c *gin.Context) {
	h.respond(c, h.sessions.PrevPage)
}

// Delete godoc
// @Summary Close a view session
// @Tags Views
// @Param id path string true "Session ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /views/{id} [delete]
func (h *ViewHandler) Delete(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *ViewHandler) respond(c *gin.Context, fn func(ctx context.Context, id string) (models.LeaveViewModel, error)) {
	view, err := fn(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondView(c, http.StatusOK, view, view)
}
