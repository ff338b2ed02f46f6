package repository

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-leave-api/internal/models"
)

func storeRecords(ids ...string) []models.LeaveRecord {
	start := time.Date(2024, 9, 2, 8, 0, 0, 0, time.UTC)
	records := make([]models.LeaveRecord, 0, len(ids))
	for i, id := range ids {
		records = append(records, models.LeaveRecord{
			LeaveID:        id,
			StudentID:      "2021000" + id,
			StudentName:    "学生" + id,
			ApprovalStatus: models.LeaveStatusPending,
			LeaveType:      models.DefaultLeaveType,
			StartTime:      start.Add(time.Duration(i) * time.Hour),
			EndTime:        start.Add(time.Duration(i+2) * time.Hour),
		})
	}
	return records
}

func TestLeaveRecordStoreStartsEmpty(t *testing.T) {
	store := NewLeaveRecordStore()
	snap := store.Snapshot()

	assert.Zero(t, snap.Sequence)
	assert.Empty(t, snap.Records)
	assert.False(t, snap.Unavailable)
}

func TestLeaveRecordStoreReplace(t *testing.T) {
	store := NewLeaveRecordStore()
	fixed := time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	input := storeRecords("1", "2")
	applied, changed := store.Replace(store.NextSequence(), input)
	require.True(t, applied)
	assert.True(t, changed)

	input[0].StudentName = "mutated"
	snap := store.Snapshot()
	assert.Equal(t, uint64(1), snap.Sequence)
	assert.Equal(t, fixed, snap.FetchedAt)
	assert.Equal(t, "学生1", snap.Records[0].StudentName)

	record, ok := store.Find("2")
	require.True(t, ok)
	assert.Equal(t, "学生2", record.StudentName)
	_, ok = store.Find("99")
	assert.False(t, ok)
}

func TestLeaveRecordStoreRejectsStaleCompletion(t *testing.T) {
	store := NewLeaveRecordStore()
	older := store.NextSequence()
	newer := store.NextSequence()

	applied, _ := store.Replace(newer, storeRecords("new"))
	require.True(t, applied)

	applied, changed := store.Replace(older, storeRecords("old"))
	assert.False(t, applied)
	assert.False(t, changed)
	assert.False(t, store.MarkUnavailable(older, errors.New("late failure")))

	snap := store.Snapshot()
	assert.Equal(t, newer, snap.Sequence)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "new", snap.Records[0].LeaveID)
}

func TestLeaveRecordStoreDetectsUnchangedContent(t *testing.T) {
	store := NewLeaveRecordStore()
	_, changed := store.Replace(store.NextSequence(), storeRecords("1", "2"))
	assert.True(t, changed)

	applied, changed := store.Replace(store.NextSequence(), storeRecords("1", "2"))
	assert.True(t, applied)
	assert.False(t, changed)

	_, changed = store.Replace(store.NextSequence(), storeRecords("1", "3"))
	assert.True(t, changed)
}

func TestLeaveRecordStoreMarkUnavailable(t *testing.T) {
	store := NewLeaveRecordStore()
	store.Replace(store.NextSequence(), storeRecords("1"))

	require.True(t, store.MarkUnavailable(store.NextSequence(), errors.New("upstream 503")))
	snap := store.Snapshot()
	assert.True(t, snap.Unavailable)
	assert.Equal(t, "upstream 503", snap.Error)
	assert.Empty(t, snap.Records)

	// recovering with identical content still counts as a change
	_, changed := store.Replace(store.NextSequence(), nil)
	assert.True(t, changed)
	assert.False(t, store.Snapshot().Unavailable)
}

func TestLeaveRecordStoreConcurrentReaders(t *testing.T) {
	store := NewLeaveRecordStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.Replace(store.NextSequence(), storeRecords("1", "2", "3"))
		}()
		go func() {
			defer wg.Done()
			snap := store.Snapshot()
			assert.True(t, len(snap.Records) == 0 || len(snap.Records) == 3)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, store.Snapshot().Sequence, uint64(8))
}
