package service

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-leave-api/internal/models"
)

var testLoc = time.FixedZone("CST", 8*3600)

func leaveAt(id, studentID, name string, status models.ApprovalStatus, start time.Time) models.LeaveRecord {
	return models.LeaveRecord{
		LeaveID:        id,
		StudentID:      studentID,
		StudentName:    name,
		ApprovalStatus: status,
		LeaveType:      models.DefaultLeaveType,
		StartTime:      start,
		EndTime:        start.Add(4 * time.Hour),
	}
}

func day(d int) time.Time {
	return time.Date(2024, 9, d, 8, 0, 0, 0, testLoc)
}

// twelveRecords holds 5 pending, 4 approved and 3 rejected leaves.
func twelveRecords() []models.LeaveRecord {
	statuses := []models.ApprovalStatus{
		models.LeaveStatusPending, models.LeaveStatusApproved, models.LeaveStatusPending,
		models.LeaveStatusRejected, models.LeaveStatusPending, models.LeaveStatusApproved,
		models.LeaveStatusApproved, models.LeaveStatusRejected, models.LeaveStatusPending,
		models.LeaveStatusApproved, models.LeaveStatusRejected, models.LeaveStatusPending,
	}
	// start days are deliberately out of order
	days := []int{3, 11, 7, 1, 12, 5, 9, 2, 10, 4, 6, 8}
	records := make([]models.LeaveRecord, len(statuses))
	for i, status := range statuses {
		records[i] = leaveAt(fmt.Sprintf("L%02d", i+1), fmt.Sprintf("2021%04d", i+1), fmt.Sprintf("学生%d", i+1), status, day(days[i]))
	}
	return records
}

func TestLeaveFilterEngineStatusScenario(t *testing.T) {
	engine := NewLeaveFilterEngine(10)
	criteria := models.FilterCriteria{Status: string(models.LeaveStatusPending), Page: 1, PageSize: 10}

	result := engine.Apply(twelveRecords(), criteria)

	assert.Equal(t, 5, result.TotalCount)
	assert.Equal(t, 1, result.TotalPages)
	assert.Equal(t, 1, result.Page)
	require.Len(t, result.Rows, 5)
	ids := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		assert.Equal(t, models.LeaveStatusPending, row.ApprovalStatus)
		ids = append(ids, row.LeaveID)
	}
	// pending days: L01=3, L03=7, L05=12, L09=10, L12=8
	assert.Equal(t, []string{"L05", "L09", "L12", "L03", "L01"}, ids)
}

func TestLeaveFilterEngineClampsOutOfRangePage(t *testing.T) {
	engine := NewLeaveFilterEngine(10)
	records := twelveRecords()
	pending := models.FilterCriteria{Status: string(models.LeaveStatusPending), PageSize: 10}

	pending.Page = 1
	first := engine.Apply(records, pending)
	pending.Page = 3
	clamped := engine.Apply(records, pending)

	assert.Equal(t, 1, clamped.Page)
	assert.Equal(t, first.Rows, clamped.Rows)

	pending.Page = -4
	negative := engine.Apply(records, pending)
	assert.Equal(t, 1, negative.Page)
	assert.Equal(t, first.Rows, negative.Rows)
}

func TestLeaveFilterEngineSecondPage(t *testing.T) {
	engine := NewLeaveFilterEngine(10)
	result := engine.Apply(twelveRecords(), models.FilterCriteria{Status: models.StatusAll, Page: 2, PageSize: 10})

	assert.Equal(t, 12, result.TotalCount)
	assert.Equal(t, 2, result.TotalPages)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, day(2), result.Rows[0].StartTime)
	assert.Equal(t, day(1), result.Rows[1].StartTime)
}

func TestLeaveFilterEngineEmptySet(t *testing.T) {
	engine := NewLeaveFilterEngine(10)
	result := engine.Apply(nil, models.FilterCriteria{Status: models.StatusAll, Page: 5})

	assert.Equal(t, 0, result.TotalCount)
	assert.Equal(t, 0, result.TotalPages)
	assert.Equal(t, 1, result.Page)
	assert.Empty(t, result.Rows)
	assert.NotNil(t, result.Rows)
}

func TestLeaveFilterEngineSearchAndGrade(t *testing.T) {
	records := []models.LeaveRecord{
		leaveAt("1", "20210001", "张三", models.LeaveStatusPending, day(1)),
		leaveAt("2", "2021张05", "王五", models.LeaveStatusPending, day(2)),
		leaveAt("3", "20220003", "张伟", models.LeaveStatusApproved, day(3)),
		leaveAt("4", "20210004", "李四", models.LeaveStatusPending, day(4)),
	}
	engine := NewLeaveFilterEngine(10)

	search := engine.Apply(records, models.FilterCriteria{Status: models.StatusAll, Search: "张", Page: 1})
	assert.Equal(t, 3, search.TotalCount)

	graded := engine.Apply(records, models.FilterCriteria{Status: models.StatusAll, Search: "张", Grade: "2021", Page: 1})
	require.Equal(t, 2, graded.TotalCount)
	assert.Equal(t, "2", graded.Rows[0].LeaveID)
	assert.Equal(t, "1", graded.Rows[1].LeaveID)
}

func TestLeaveFilterEngineSearchIsCaseInsensitive(t *testing.T) {
	records := []models.LeaveRecord{
		leaveAt("1", "S2021AB", "Alice", models.LeaveStatusPending, day(1)),
		leaveAt("2", "20210002", "Bob", models.LeaveStatusPending, day(2)),
	}
	engine := NewLeaveFilterEngine(10)

	byName := engine.Apply(records, models.FilterCriteria{Search: "ALI", Page: 1})
	require.Equal(t, 1, byName.TotalCount)
	assert.Equal(t, "1", byName.Rows[0].LeaveID)

	byID := engine.Apply(records, models.FilterCriteria{Search: "s2021ab", Page: 1})
	require.Equal(t, 1, byID.TotalCount)
	assert.Equal(t, "1", byID.Rows[0].LeaveID)
}

func TestLeaveFilterEngineTypeFilterUsesDefault(t *testing.T) {
	untyped := leaveAt("1", "20210001", "张三", models.LeaveStatusPending, day(1))
	untyped.LeaveType = ""
	sick := leaveAt("2", "20210002", "李四", models.LeaveStatusPending, day(2))
	sick.LeaveType = "病假"
	engine := NewLeaveFilterEngine(10)

	personal := engine.Apply([]models.LeaveRecord{untyped, sick}, models.FilterCriteria{LeaveType: models.DefaultLeaveType, Page: 1})
	require.Equal(t, 1, personal.TotalCount)
	assert.Equal(t, "1", personal.Rows[0].LeaveID)
}

func TestLeaveFilterEngineTimeRangeOverlap(t *testing.T) {
	records := []models.LeaveRecord{
		leaveAt("1", "20210001", "A", models.LeaveStatusPending, day(1)),
		leaveAt("2", "20210002", "B", models.LeaveStatusPending, day(5)),
		leaveAt("3", "20210003", "C", models.LeaveStatusPending, day(9)),
	}
	from := day(1).Add(2 * time.Hour) // overlaps the tail of record 1
	to := day(5)
	engine := NewLeaveFilterEngine(10)

	result := engine.Apply(records, models.FilterCriteria{From: &from, To: &to, Page: 1})
	require.Equal(t, 2, result.TotalCount)
	assert.Equal(t, "2", result.Rows[0].LeaveID)
	assert.Equal(t, "1", result.Rows[1].LeaveID)
}

func TestLeaveFilterEngineUnknownStatusSelectsNothing(t *testing.T) {
	engine := NewLeaveFilterEngine(10)
	result := engine.Apply(twelveRecords(), models.FilterCriteria{Status: "cancelled", Page: 1})
	assert.Equal(t, 0, result.TotalCount)
}

func TestLeaveFilterEngineStableOnTies(t *testing.T) {
	same := day(3)
	records := []models.LeaveRecord{
		leaveAt("first", "20210001", "A", models.LeaveStatusPending, same),
		leaveAt("newer", "20210002", "B", models.LeaveStatusPending, day(4)),
		leaveAt("second", "20210003", "C", models.LeaveStatusPending, same),
		leaveAt("third", "20210004", "D", models.LeaveStatusPending, same),
	}
	engine := NewLeaveFilterEngine(10)

	result := engine.Apply(records, models.FilterCriteria{Page: 1})
	ids := []string{}
	for _, row := range result.Rows {
		ids = append(ids, row.LeaveID)
	}
	assert.Equal(t, []string{"newer", "first", "second", "third"}, ids)
}

func TestLeaveFilterEngineProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	names := []string{"张三", "李四", "王五", "Alice", "bob"}
	statuses := append([]models.ApprovalStatus{}, models.LeaveStatuses...)
	grades := []string{"2020", "2021", "2022"}

	records := make([]models.LeaveRecord, 0, 57)
	for i := 0; i < 57; i++ {
		start := day(1).Add(time.Duration(rng.Intn(30*24)) * time.Hour)
		records = append(records, leaveAt(
			fmt.Sprintf("%d", i),
			fmt.Sprintf("%s%04d", grades[rng.Intn(len(grades))], i),
			names[rng.Intn(len(names))],
			statuses[rng.Intn(len(statuses))],
			start,
		))
	}
	original := append([]models.LeaveRecord(nil), records...)
	engine := NewLeaveFilterEngine(10)

	statusOptions := []string{models.StatusAll, string(models.LeaveStatusPending), string(models.LeaveStatusApproved), string(models.LeaveStatusRejected)}
	searchOptions := []string{"", "张", "ALICE", "00", "李"}
	gradeOptions := []string{"", "2021", "2022"}
	for _, status := range statusOptions {
		for _, search := range searchOptions {
			for _, grade := range gradeOptions {
				for _, size := range []int{1, 7, 10} {
					for _, page := range []int{-1, 1, 2, 9, 100} {
						criteria := models.FilterCriteria{Status: status, Search: search, Grade: grade, Page: page, PageSize: size}
						result := engine.Apply(records, criteria)

						assert.LessOrEqual(t, len(result.Rows), size)
						assert.Equal(t, bruteForceCount(records, criteria), result.TotalCount)
						assert.Equal(t, TotalPages(result.TotalCount, size), result.TotalPages)
						for i := 1; i < len(result.Rows); i++ {
							assert.False(t, result.Rows[i].StartTime.After(result.Rows[i-1].StartTime))
						}
						assert.Equal(t, result, engine.Apply(records, criteria))
					}
				}
			}
		}
	}
	assert.Equal(t, original, records)
}

func bruteForceCount(records []models.LeaveRecord, c models.FilterCriteria) int {
	count := 0
	for _, r := range records {
		if c.Status != models.StatusAll && string(r.ApprovalStatus) != c.Status {
			continue
		}
		if c.Search != "" && !containsFold(r.StudentName, c.Search) && !containsFold(r.StudentID, c.Search) {
			continue
		}
		if c.Grade != "" && (len(r.StudentID) < len(c.Grade) || r.StudentID[:len(c.Grade)] != c.Grade) {
			continue
		}
		count++
	}
	return count
}

func containsFold(haystack, needle string) bool {
	return len(needle) == 0 || indexFold(haystack, needle) >= 0
}

func indexFold(haystack, needle string) int {
	h := []rune(haystack)
	n := []rune(needle)
	for i := 0; i+len(n) <= len(h); i++ {
		match := true
		for j := range n {
			if lower(h[i+j]) != lower(n[j]) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func lower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

func TestClampPage(t *testing.T) {
	assert.Equal(t, 1, ClampPage(0, 0))
	assert.Equal(t, 1, ClampPage(3, 0))
	assert.Equal(t, 2, ClampPage(5, 2))
	assert.Equal(t, 2, ClampPage(2, 4))
}
