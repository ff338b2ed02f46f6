package service

import (
	"sync"
	"time"

	"github.com/noah-isme/campus-leave-api/internal/models"
)

type leaveSnapshotReader interface {
	Snapshot() models.LeaveSnapshot
}

// LeaveViewBuilder turns a snapshot and criteria into a view model. It is
// shared by the stateless listing endpoint and every session.
type LeaveViewBuilder struct {
	engine *LeaveFilterEngine
	stats  *LeaveStatisticsAggregator
}

// NewLeaveViewBuilder constructs a builder.
func NewLeaveViewBuilder(engine *LeaveFilterEngine, stats *LeaveStatisticsAggregator) *LeaveViewBuilder {
	return &LeaveViewBuilder{engine: engine, stats: stats}
}

// Build applies criteria to the snapshot. Counts always cover the full
// record set, and the returned criteria carry the clamped page.
func (b *LeaveViewBuilder) Build(snap models.LeaveSnapshot, criteria models.FilterCriteria) models.LeaveViewModel {
	result := b.engine.Apply(snap.Records, criteria)
	criteria.Page = result.Page
	criteria.PageSize = result.PageSize

	vm := models.LeaveViewModel{
		Rows:        result.Rows,
		TotalCount:  result.TotalCount,
		TotalPages:  result.TotalPages,
		CurrentPage: result.Page,
		PageSize:    result.PageSize,
		Counts:      b.stats.Aggregate(snap.Records),
		Criteria:    criteria,
		Sequence:    snap.Sequence,
		Unavailable: snap.Unavailable,
		Error:       snap.Error,
	}
	if !snap.FetchedAt.IsZero() {
		fetched := snap.FetchedAt
		vm.FetchedAt = &fetched
	}
	return vm
}

// LeaveViewSession is one dashboard's view over the shared record store:
// its own criteria, applied to whatever snapshot is current.
type LeaveViewSession struct {
	mu       sync.Mutex
	id       string
	criteria models.FilterCriteria
	lastSeen time.Time

	store   leaveSnapshotReader
	builder *LeaveViewBuilder
	now     func() time.Time
}

// NewLeaveViewSession starts a session with the given criteria.
func NewLeaveViewSession(id string, criteria models.FilterCriteria, store leaveSnapshotReader, builder *LeaveViewBuilder) *LeaveViewSession {
	if criteria.Page < 1 {
		criteria.Page = 1
	}
	return &LeaveViewSession{
		id:       id,
		criteria: criteria,
		store:    store,
		builder:  builder,
		now:      time.Now,
		lastSeen: time.Now(),
	}
}

// ID returns the session identifier.
func (s *LeaveViewSession) ID() string {
	return s.id
}

// Criteria returns a copy of the active criteria.
func (s *LeaveViewSession) Criteria() models.FilterCriteria {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.criteria
}

// LastSeen reports when the session was last used.
func (s *LeaveViewSession) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// SetCriteria replaces the criteria. The page resets to 1 unless only the
// page changed.
func (s *LeaveViewSession) SetCriteria(next models.FilterCriteria) models.LeaveViewModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !next.SameFilter(s.criteria) {
		next.Page = 1
	}
	s.criteria = next
	return s.viewLocked()
}

// Patch derives new criteria from the current ones under the session lock,
// so concurrent patches are applied one after the other. On error the
// criteria are left unchanged.
func (s *LeaveViewSession) Patch(fn func(current models.FilterCriteria) (models.FilterCriteria, error)) (models.LeaveViewModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.criteria)
	if err != nil {
		return models.LeaveViewModel{}, err
	}
	if !next.SameFilter(s.criteria) {
		next.Page = 1
	}
	s.criteria = next
	return s.viewLocked(), nil
}

// ViewModel renders the current page against the latest snapshot.
func (s *LeaveViewSession) ViewModel() models.LeaveViewModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// NextPage moves forward one page, stopping at the last page.
func (s *LeaveViewSession) NextPage() models.LeaveViewModel {
	return s.step(1)
}

// PrevPage moves back one page, stopping at page 1.
func (s *LeaveViewSession) PrevPage() models.LeaveViewModel {
	return s.step(-1)
}

func (s *LeaveViewSession) step(delta int) models.LeaveViewModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.viewLocked()
	s.criteria.Page = ClampPage(current.CurrentPage+delta, current.TotalPages)
	return s.viewLocked()
}

func (s *LeaveViewSession) viewLocked() models.LeaveViewModel {
	s.lastSeen = s.now()
	vm := s.builder.Build(s.store.Snapshot(), s.criteria)
	s.criteria.Page = vm.CurrentPage
	return vm
}
