package repository

import (
	"encoding/hex"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/noah-isme/campus-leave-api/internal/models"
)

// LeaveRecordStore holds the full, unfiltered record set of the last applied
// refresh. Writers swap a whole snapshot; readers never see a partial set.
type LeaveRecordStore struct {
	mu       sync.RWMutex
	snapshot models.LeaveSnapshot
	issued   atomic.Uint64
	now      func() time.Time
}

// NewLeaveRecordStore returns an empty store at sequence zero.
func NewLeaveRecordStore() *LeaveRecordStore {
	return &LeaveRecordStore{
		snapshot: models.LeaveSnapshot{Records: []models.LeaveRecord{}, Fingerprint: fingerprint(nil)},
		now:      time.Now,
	}
}

// NextSequence issues the tag for a refresh that is about to start.
func (s *LeaveRecordStore) NextSequence() uint64 {
	return s.issued.Add(1)
}

// Replace installs records fetched by refresh seq. Completions older than the
// applied snapshot are rejected. changed reports whether the record content
// or availability differs from the previous snapshot.
func (s *LeaveRecordStore) Replace(seq uint64, records []models.LeaveRecord) (applied bool, changed bool) {
	owned := make([]models.LeaveRecord, len(records))
	copy(owned, records)
	sum := fingerprint(owned)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.snapshot.Sequence {
		return false, false
	}
	changed = s.snapshot.Unavailable || s.snapshot.Fingerprint != sum
	s.snapshot = models.LeaveSnapshot{
		Records:     owned,
		Sequence:    seq,
		FetchedAt:   s.now(),
		Fingerprint: sum,
	}
	return true, changed
}

// MarkUnavailable records a failed refresh: the set becomes empty and the
// error is exposed to every view.
func (s *LeaveRecordStore) MarkUnavailable(seq uint64, cause error) bool {
	message := "leave data unavailable"
	if cause != nil {
		message = cause.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.snapshot.Sequence {
		return false
	}
	s.snapshot = models.LeaveSnapshot{
		Records:     []models.LeaveRecord{},
		Sequence:    seq,
		FetchedAt:   s.now(),
		Unavailable: true,
		Error:       message,
		Fingerprint: fingerprint(nil),
	}
	return true
}

// Snapshot returns the current snapshot. Callers must treat Records as read-only.
func (s *LeaveRecordStore) Snapshot() models.LeaveSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Find looks up one record of the current snapshot by id.
func (s *LeaveRecordStore) Find(leaveID string) (models.LeaveRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, record := range s.snapshot.Records {
		if record.LeaveID == leaveID {
			return record, true
		}
	}
	return models.LeaveRecord{}, false
}

func fingerprint(records []models.LeaveRecord) string {
	if records == nil {
		records = []models.LeaveRecord{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
