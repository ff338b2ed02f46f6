package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/campus-leave-api/pkg/errors"
)

var shanghai = time.FixedZone("CST", 8*3600)

func TestLeavePayloadDecodesUpstreamShape(t *testing.T) {
	body := `[
		{"leave_id": 17, "student_id": "20210101", "student_name": "张三", "approval_status": "已批准",
		 "sort": null, "start_time": "Mon, 02 Sep 2024 08:00:00 GMT", "end_time": "2024-09-02 17:30:00", "times": 3},
		{"leave_id": "A-9", "student_id": "20220202", "student_name": "李四", "approval_status": "",
		 "sort": "病假", "start_time": "2024-09-03T08:00:00+08:00", "end_time": "2024-09-03T12:00:00+08:00"}
	]`
	var payloads []LeaveRecordPayload
	require.NoError(t, json.Unmarshal([]byte(body), &payloads))
	require.Len(t, payloads, 2)

	first, err := NewLeaveRecord(payloads[0], shanghai)
	require.NoError(t, err)
	assert.Equal(t, "17", first.LeaveID)
	assert.Equal(t, LeaveStatusApproved, first.ApprovalStatus)
	assert.Equal(t, DefaultLeaveType, first.LeaveType)
	assert.Equal(t, time.Date(2024, 9, 2, 8, 0, 0, 0, shanghai), first.StartTime)
	assert.Equal(t, "2021", first.Grade())
	assert.Equal(t, 3, first.Times)

	second, err := NewLeaveRecord(payloads[1], shanghai)
	require.NoError(t, err)
	assert.Equal(t, "A-9", second.LeaveID)
	assert.Equal(t, LeaveStatusPending, second.ApprovalStatus)
	assert.Equal(t, "病假", second.LeaveType)
}

func TestNewLeaveRecordRejectsMalformed(t *testing.T) {
	start := NewSourceTime(time.Date(2024, 9, 2, 8, 0, 0, 0, shanghai))
	end := NewSourceTime(time.Date(2024, 9, 2, 18, 0, 0, 0, shanghai))
	bad := ParseSourceTime("yesterday")

	cases := map[string]LeaveRecordPayload{
		"missing id":     {StartTime: start, EndTime: end},
		"missing start":  {LeaveID: "1", EndTime: end},
		"unparsed end":   {LeaveID: "1", StartTime: start, EndTime: &bad},
		"end before":     {LeaveID: "1", StartTime: end, EndTime: start},
		"unknown status": {LeaveID: "1", StartTime: start, EndTime: end, ApprovalStatus: "cancelled"},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewLeaveRecord(payload, shanghai)
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrMalformedRecord))
		})
	}
}

func TestNormalizeLeaveType(t *testing.T) {
	assert.Equal(t, DefaultLeaveType, NormalizeLeaveType(""))
	assert.Equal(t, DefaultLeaveType, NormalizeLeaveType("   "))
	assert.Equal(t, "病假", NormalizeLeaveType(" 病假 "))
}

func TestNormalizeStatusFilter(t *testing.T) {
	status, ok := NormalizeStatusFilter("")
	assert.True(t, ok)
	assert.Equal(t, StatusAll, status)

	status, ok = NormalizeStatusFilter("Pending")
	assert.True(t, ok)
	assert.Equal(t, string(LeaveStatusPending), status)

	status, ok = NormalizeStatusFilter("已驳回")
	assert.True(t, ok)
	assert.Equal(t, string(LeaveStatusRejected), status)

	_, ok = NormalizeStatusFilter("cancelled")
	assert.False(t, ok)
}

func TestGradeOf(t *testing.T) {
	assert.Equal(t, "2021", GradeOf("2021001"))
	assert.Equal(t, "202", GradeOf("202"))
}

func TestCriteriaSameFilterIgnoresPage(t *testing.T) {
	a := DefaultFilterCriteria(10)
	b := a
	b.Page = 4
	assert.True(t, a.SameFilter(b))

	b.Grade = "2021"
	assert.False(t, a.SameFilter(b))
}

func TestNormalizePageSize(t *testing.T) {
	assert.Equal(t, DefaultLeavePageSize, NormalizePageSize(0))
	assert.Equal(t, MaxLeavePageSize, NormalizePageSize(1000))
	assert.Equal(t, 25, NormalizePageSize(25))
}
