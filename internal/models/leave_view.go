package models

import "time"

// LeaveStatistics are dashboard counts derived from a record set, independent
// of pagination.
type LeaveStatistics struct {
	ByStatus map[ApprovalStatus]int `json:"by_status"`
	ByType   map[string]int         `json:"by_type"`
	ByMonth  map[string]int         `json:"by_month"`
	Total    int                    `json:"total"`
}

// LeaveSnapshot is an immutable view of the record store at one refresh.
type LeaveSnapshot struct {
	Records     []LeaveRecord
	Sequence    uint64
	FetchedAt   time.Time
	Unavailable bool
	Error       string
	Fingerprint string
}

// LeaveViewModel is everything a dashboard needs to render one page.
type LeaveViewModel struct {
	Rows        []LeaveRecord   `json:"rows"`
	TotalCount  int             `json:"total_count"`
	TotalPages  int             `json:"total_pages"`
	CurrentPage int             `json:"current_page"`
	PageSize    int             `json:"page_size"`
	Counts      LeaveStatistics `json:"counts"`
	Criteria    FilterCriteria  `json:"criteria"`
	Sequence    uint64          `json:"sequence"`
	FetchedAt   *time.Time      `json:"fetched_at,omitempty"`
	Unavailable bool            `json:"unavailable"`
	Error       string          `json:"error,omitempty"`
}

// Stream event types.
const (
	EventLeavesRefreshed = "leaves.refreshed"
	EventLeavesSnapshot  = "leaves.snapshot"
)

// LeaveRefreshEvent is pushed to stream subscribers after an applied refresh.
type LeaveRefreshEvent struct {
	Type        string                 `json:"type"`
	Sequence    uint64                 `json:"sequence"`
	Total       int                    `json:"total"`
	ByStatus    map[ApprovalStatus]int `json:"by_status"`
	Unavailable bool                   `json:"unavailable"`
	FetchedAt   time.Time              `json:"fetched_at"`
}

// Refresh outcomes reported by the refresher.
const (
	RefreshApplied     = "applied"
	RefreshStale       = "stale"
	RefreshUnavailable = "unavailable"
)

// LeaveRefreshResult summarises one refresh attempt.
type LeaveRefreshResult struct {
	Sequence uint64 `json:"sequence"`
	Outcome  string `json:"outcome"`
	Records  int    `json:"records"`
	Dropped  int    `json:"dropped"`
	Changed  bool   `json:"changed"`
	Error    string `json:"error,omitempty"`
}
