package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	internalmiddleware "github.com/noah-isme/campus-leave-api/internal/middleware"
	"github.com/noah-isme/campus-leave-api/internal/models"
	"github.com/noah-isme/campus-leave-api/internal/service"
	appErrors "github.com/noah-isme/campus-leave-api/pkg/errors"
	"github.com/noah-isme/campus-leave-api/pkg/response"
)

type leaveQueryService interface {
	List(ctx context.Context, query models.CriteriaPatch) (models.LeaveViewModel, error)
	Criteria(query models.CriteriaPatch) (models.FilterCriteria, error)
	Statistics(ctx context.Context, scope string) (models.LeaveStatistics, error)
	Grades(ctx context.Context) []string
	Get(ctx context.Context, leaveID string) (*models.LeaveRecord, error)
	Refresh(ctx context.Context) (models.LeaveRefreshResult, error)
}

type leaveExporter interface {
	Export(ctx context.Context, criteria models.FilterCriteria, format string) (*service.LeaveExport, error)
}

// LeaveHandler exposes stateless leave record endpoints.
type LeaveHandler struct {
	leaves  leaveQueryService
	exports leaveExporter
}

// NewLeaveHandler constructs the handler.
func NewLeaveHandler(leaves leaveQueryService, exports leaveExporter) *LeaveHandler {
	return &LeaveHandler{leaves: leaves, exports: exports}
}

// List godoc
// @Summary List leave records
// @Description Filters, sorts (newest start first) and paginates the current record set. Counts cover the full set.
// @Tags Leaves
// @Produce json
// @Param status query string false "all, 待审批, 已批准, 已驳回 (or pending/approved/rejected)"
// @Param search query string false "Name or student id substring"
// @Param grade query string false "Student id prefix, e.g. 2021"
// @Param leave_type query string false "Leave type"
// @Param from query string false "Range start (YYYY-MM-DD or RFC3339)"
// @Param to query string false "Range end (YYYY-MM-DD or RFC3339)"
// @Param page query int false "Page (1-based)"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /leaves [get]
func (h *LeaveHandler) List(c *gin.Context) {
	query, ok := bindCriteriaQuery(c)
	if !ok {
		return
	}
	view, err := h.leaves.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondView(c, http.StatusOK, view, view)
}

// Statistics godoc
// @Summary Leave statistics
// @Description Counts by status, type and month over the full set or one status.
// @Tags Leaves
// @Produce json
// @Param status query string false "Restrict to one status"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /leaves/statistics [get]
func (h *LeaveHandler) Statistics(c *gin.Context) {
	stats, err := h.leaves.Statistics(c.Request.Context(), c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil, internalmiddleware.ExtractMeta(c))
}

// Grades godoc
// @Summary Grade prefixes
// @Tags Leaves
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /leaves/grades [get]
func (h *LeaveHandler) Grades(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.leaves.Grades(c.Request.Context()), nil)
}

// Get godoc
// @Summary Get a leave record
// @Tags Leaves
// @Produce json
// @Param id path string true "Leave ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /leaves/{id} [get]
func (h *LeaveHandler) Get(c *gin.Context) {
	record, err := h.leaves.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Refresh godoc
// @Summary Refresh leave records now
// @Description Concurrent calls share one upstream fetch.
// @Tags Leaves
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /leaves/refresh [post]
func (h *LeaveHandler) Refresh(c *gin.Context) {
	result, err := h.leaves.Refresh(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export filtered leave records
// @Description Every matching record in display order, ignoring pagination.
// @Tags Leaves
// @Produce octet-stream
// @Param format query string false "csv (default) or xlsx"
// @Param status query string false "Status filter"
// @Param search query string false "Name or student id substring"
// @Param grade query string false "Student id prefix"
// @Param leave_type query string false "Leave type"
// @Param from query string false "Range start"
// @Param to query string false "Range end"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /leaves/export [get]
func (h *LeaveHandler) Export(c *gin.Context) {
	query, ok := bindCriteriaQuery(c)
	if !ok {
		return
	}
	criteria, err := h.leaves.Criteria(query)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exports.Export(c.Request.Context(), criteria, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Header("X-Leave-Sequence", fmt.Sprintf("%d", file.Sequence))
	c.Data(http.StatusOK, file.ContentType, file.Body)
}

func bindCriteriaQuery(c *gin.Context) (models.CriteriaPatch, bool) {
	var query models.CriteriaPatch
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query parameters"))
		return query, false
	}
	return query, true
}

// respondView writes a view model with its pagination and snapshot metadata.
func respondView(c *gin.Context, status int, data interface{}, view models.LeaveViewModel) {
	internalmiddleware.SetMeta(c, "sequence", view.Sequence)
	if view.Unavailable {
		internalmiddleware.SetMeta(c, "unavailable", true)
	}
	response.JSON(c, status, data, &models.Pagination{
		Page:       view.CurrentPage,
		PageSize:   view.PageSize,
		TotalCount: view.TotalCount,
		TotalPages: view.TotalPages,
	}, internalmiddleware.ExtractMeta(c))
}
