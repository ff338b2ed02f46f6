package service

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/noah-isme/campus-leave-api/internal/models"
)

// LeaveFilterEngine applies FilterCriteria to a record set and returns the
// requested page. It keeps no state between calls and never mutates its
// input, so one engine is shared by every view.
type LeaveFilterEngine struct {
	defaultPageSize int
}

// NewLeaveFilterEngine constructs the engine with the page size used when a
// criteria carries none.
func NewLeaveFilterEngine(defaultPageSize int) *LeaveFilterEngine {
	return &LeaveFilterEngine{defaultPageSize: models.NormalizePageSize(defaultPageSize)}
}

// Apply filters, sorts and paginates. Out of range pages are clamped to
// [1, totalPages]; an empty result is page 1 of zero pages.
func (e *LeaveFilterEngine) Apply(records []models.LeaveRecord, criteria models.FilterCriteria) models.LeaveFilterResult {
	filtered := e.Filter(records, criteria)
	size := e.pageSize(criteria.PageSize)

	total := len(filtered)
	totalPages := TotalPages(total, size)
	page := ClampPage(criteria.Page, totalPages)

	start := (page - 1) * size
	end := start + size
	if end > total {
		end = total
	}
	rows := make([]models.LeaveRecord, 0, end-start)
	if start < end {
		rows = append(rows, filtered[start:end]...)
	}

	return models.LeaveFilterResult{
		Rows:       rows,
		TotalCount: total,
		TotalPages: totalPages,
		Page:       page,
		PageSize:   size,
	}
}

// Filter returns every matching record ordered by start time, newest first.
// Records sharing a start time keep their fetch order.
func (e *LeaveFilterEngine) Filter(records []models.LeaveRecord, criteria models.FilterCriteria) []models.LeaveRecord {
	match := newLeaveMatcher(criteria)
	out := make([]models.LeaveRecord, 0, len(records))
	for _, record := range records {
		if match.matches(record) {
			out = append(out, record)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}

func (e *LeaveFilterEngine) pageSize(requested int) int {
	if requested <= 0 {
		return e.defaultPageSize
	}
	return models.NormalizePageSize(requested)
}

// TotalPages is ceil(count/size).
func TotalPages(count, size int) int {
	if count <= 0 || size <= 0 {
		return 0
	}
	return (count + size - 1) / size
}

// ClampPage keeps a 1-based page inside [1, totalPages].
func ClampPage(page, totalPages int) int {
	if page < 1 {
		page = 1
	}
	if totalPages < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}

type leaveMatcher struct {
	status    string
	anyStatus bool
	search    string
	grade     string
	leaveType string
	criteria  models.FilterCriteria
	fold      cases.Caser
}

func newLeaveMatcher(criteria models.FilterCriteria) *leaveMatcher {
	m := &leaveMatcher{criteria: criteria, fold: cases.Fold()}
	status, ok := models.NormalizeStatusFilter(criteria.Status)
	switch {
	case !ok:
		// unknown statuses select nothing
		m.status = "\x00"
	case status == models.StatusAll:
		m.anyStatus = true
	default:
		m.status = status
	}
	if term := strings.TrimSpace(criteria.Search); term != "" {
		m.search = m.fold.String(term)
	}
	m.grade = strings.TrimSpace(criteria.Grade)
	if raw := strings.TrimSpace(criteria.LeaveType); raw != "" {
		m.leaveType = models.NormalizeLeaveType(raw)
	}
	return m
}

func (m *leaveMatcher) matches(r models.LeaveRecord) bool {
	if !m.anyStatus && string(r.ApprovalStatus) != m.status {
		return false
	}
	if m.search != "" &&
		!strings.Contains(m.fold.String(r.StudentName), m.search) &&
		!strings.Contains(m.fold.String(r.StudentID), m.search) {
		return false
	}
	if m.grade != "" && !strings.HasPrefix(r.StudentID, m.grade) {
		return false
	}
	if m.leaveType != "" && models.NormalizeLeaveType(r.LeaveType) != m.leaveType {
		return false
	}
	if from := m.criteria.From; from != nil && r.EndTime.Before(*from) {
		return false
	}
	if to := m.criteria.To; to != nil && r.StartTime.After(*to) {
		return false
	}
	return true
}
