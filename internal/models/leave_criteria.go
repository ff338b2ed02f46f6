package models

import "time"

// Page size bounds for leave listings.
const (
	DefaultLeavePageSize = 10
	MaxLeavePageSize     = 100
)

// FilterCriteria is the active filter, sort and page selection of a view.
type FilterCriteria struct {
	Status    string     `json:"status"`
	Search    string     `json:"search,omitempty"`
	Grade     string     `json:"grade,omitempty"`
	LeaveType string     `json:"leave_type,omitempty"`
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
	Page      int        `json:"page"`
	PageSize  int        `json:"page_size"`
}

// DefaultFilterCriteria returns "all records, first page".
func DefaultFilterCriteria(pageSize int) FilterCriteria {
	return FilterCriteria{Status: StatusAll, Page: 1, PageSize: NormalizePageSize(pageSize)}
}

// NormalizePageSize clamps a page size into [1, MaxLeavePageSize], falling
// back to the default for non-positive values.
func NormalizePageSize(size int) int {
	switch {
	case size <= 0:
		return DefaultLeavePageSize
	case size > MaxLeavePageSize:
		return MaxLeavePageSize
	default:
		return size
	}
}

// SameFilter reports whether two criteria select the same records,
// ignoring the page position.
func (c FilterCriteria) SameFilter(other FilterCriteria) bool {
	return c.Status == other.Status &&
		c.Search == other.Search &&
		c.Grade == other.Grade &&
		c.LeaveType == other.LeaveType &&
		c.PageSize == other.PageSize &&
		sameTime(c.From, other.From) &&
		sameTime(c.To, other.To)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// CriteriaPatch is a partial criteria update. Nil fields are left untouched;
// an empty string clears the corresponding filter.
type CriteriaPatch struct {
	Status    *string `json:"status" form:"status" validate:"omitempty,leave_status"`
	Search    *string `json:"search" form:"search" validate:"omitempty,max=64"`
	Grade     *string `json:"grade" form:"grade" validate:"omitempty,max=4"`
	LeaveType *string `json:"leave_type" form:"leave_type" validate:"omitempty,max=32"`
	From      *string `json:"from" form:"from" validate:"omitempty,leave_date"`
	To        *string `json:"to" form:"to" validate:"omitempty,leave_date"`
	Page      *int    `json:"page" form:"page"`
	PageSize  *int    `json:"page_size" form:"page_size"`
}

// LeaveFilterResult is the engine output for one page.
type LeaveFilterResult struct {
	Rows       []LeaveRecord `json:"rows"`
	TotalCount int           `json:"total_count"`
	TotalPages int           `json:"total_pages"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}
