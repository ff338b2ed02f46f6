package service

import (
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/campus-leave-api/internal/models"
)

// LeaveStatisticsAggregator derives dashboard counters from a record set. It
// never applies search or grade filters itself.
type LeaveStatisticsAggregator struct {
	loc *time.Location
}

// NewLeaveStatisticsAggregator builds an aggregator bucketing months in loc.
func NewLeaveStatisticsAggregator(loc *time.Location) *LeaveStatisticsAggregator {
	if loc == nil {
		loc = time.Local
	}
	return &LeaveStatisticsAggregator{loc: loc}
}

// Aggregate counts records by status, leave type and start month. Every
// status key is present, zero when absent.
func (a *LeaveStatisticsAggregator) Aggregate(records []models.LeaveRecord) models.LeaveStatistics {
	stats := models.LeaveStatistics{
		ByStatus: make(map[models.ApprovalStatus]int, len(models.LeaveStatuses)),
		ByType:   make(map[string]int),
		ByMonth:  make(map[string]int),
		Total:    len(records),
	}
	for _, status := range models.LeaveStatuses {
		stats.ByStatus[status] = 0
	}
	for _, record := range records {
		stats.ByStatus[statusBucket(record.ApprovalStatus)]++
		stats.ByType[models.NormalizeLeaveType(record.LeaveType)]++
		stats.ByMonth[record.StartTime.In(a.loc).Format("2006-01")]++
	}
	return stats
}

// AggregateScope aggregates either the full set ("all") or the subset with
// one status. An unrecognised scope yields empty counters.
func (a *LeaveStatisticsAggregator) AggregateScope(records []models.LeaveRecord, scope string) models.LeaveStatistics {
	status, ok := models.NormalizeStatusFilter(scope)
	if !ok {
		return a.Aggregate(nil)
	}
	if status == models.StatusAll {
		return a.Aggregate(records)
	}
	subset := make([]models.LeaveRecord, 0, len(records))
	for _, record := range records {
		if string(record.ApprovalStatus) == status {
			subset = append(subset, record)
		}
	}
	return a.Aggregate(subset)
}

// Grades lists the distinct grade prefixes present in the records, sorted.
func (a *LeaveStatisticsAggregator) Grades(records []models.LeaveRecord) []string {
	seen := make(map[string]struct{})
	grades := make([]string, 0)
	for _, record := range records {
		grade := record.Grade()
		if strings.TrimSpace(grade) == "" {
			continue
		}
		if _, ok := seen[grade]; ok {
			continue
		}
		seen[grade] = struct{}{}
		grades = append(grades, grade)
	}
	sort.Strings(grades)
	return grades
}

// statusBucket keeps sum(ByStatus) == Total for hand-built records that
// bypassed NewLeaveRecord; they count as pending like an empty source status.
func statusBucket(status models.ApprovalStatus) models.ApprovalStatus {
	switch status {
	case models.LeaveStatusApproved, models.LeaveStatusRejected:
		return status
	default:
		return models.LeaveStatusPending
	}
}
