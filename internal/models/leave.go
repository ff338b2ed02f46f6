package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	appErrors "github.com/noah-isme/campus-leave-api/pkg/errors"
)

// ApprovalStatus is the lifecycle state of a leave request. Values are the
// literal strings stored by the upstream backend.
type ApprovalStatus string

const (
	LeaveStatusPending  ApprovalStatus = "待审批"
	LeaveStatusApproved ApprovalStatus = "已批准"
	LeaveStatusRejected ApprovalStatus = "已驳回"
)

// StatusAll disables status filtering.
const StatusAll = "all"

// DefaultLeaveType is applied whenever a record carries no leave type.
const DefaultLeaveType = "事假"

// LeaveStatuses lists every status in display order.
var LeaveStatuses = []ApprovalStatus{LeaveStatusPending, LeaveStatusApproved, LeaveStatusRejected}

var statusAliases = map[string]ApprovalStatus{
	string(LeaveStatusPending):  LeaveStatusPending,
	string(LeaveStatusApproved): LeaveStatusApproved,
	string(LeaveStatusRejected): LeaveStatusRejected,
	"pending":                   LeaveStatusPending,
	"approved":                  LeaveStatusApproved,
	"rejected":                  LeaveStatusRejected,
}

// ParseApprovalStatus maps a stored status or its English alias to the enum.
func ParseApprovalStatus(raw string) (ApprovalStatus, bool) {
	status, ok := statusAliases[strings.ToLower(strings.TrimSpace(raw))]
	return status, ok
}

// NormalizeStatusFilter resolves a criteria status into "all" or an enum value.
// The boolean is false for strings that are neither.
func NormalizeStatusFilter(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, StatusAll) {
		return StatusAll, true
	}
	status, ok := ParseApprovalStatus(trimmed)
	if !ok {
		return "", false
	}
	return string(status), true
}

// NormalizeLeaveType is the single place where the default leave type is
// applied. Filtering, statistics and exports all go through it.
func NormalizeLeaveType(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return DefaultLeaveType
	}
	return trimmed
}

// GradeOf returns the grade prefix encoded in a student id.
func GradeOf(studentID string) string {
	runes := []rune(studentID)
	if len(runes) <= 4 {
		return studentID
	}
	return string(runes[:4])
}

// LeaveID is an opaque identifier; the upstream emits numbers or strings.
type LeaveID string

// UnmarshalJSON accepts JSON strings and numbers.
func (id *LeaveID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch {
	case raw == "null":
		*id = ""
	case strings.HasPrefix(raw, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = LeaveID(strings.TrimSpace(s))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("leave_id: unsupported value %s", raw)
		}
		*id = LeaveID(n.String())
	}
	return nil
}

// LeaveRecordPayload is the wire shape of a leave record as delivered by a
// record source. It is validated into a LeaveRecord by NewLeaveRecord.
type LeaveRecordPayload struct {
	LeaveID         LeaveID     `json:"leave_id"`
	StudentID       string      `json:"student_id"`
	StudentName     string      `json:"student_name"`
	StudentClass    string      `json:"student_class"`
	ApprovalStatus  string      `json:"approval_status"`
	Sort            *string     `json:"sort"`
	StartTime       *SourceTime `json:"start_time"`
	EndTime         *SourceTime `json:"end_time"`
	LeaveReason     string      `json:"leave_reason"`
	Times           int         `json:"times"`
	ApprovalComment *string     `json:"approval_comment"`
	ApproverName    *string     `json:"approver_name"`
	ApprovalTime    *SourceTime `json:"approval_time"`
	CourseCode      *string     `json:"course_code"`

	// DecodeErr is set by a source that could not decode this element; the
	// record is then rejected by NewLeaveRecord.
	DecodeErr error `json:"-"`
}

// LeaveRecord is one validated leave application. Records are treated as
// immutable values once constructed.
type LeaveRecord struct {
	LeaveID         string         `json:"leave_id"`
	StudentID       string         `json:"student_id"`
	StudentName     string         `json:"student_name"`
	StudentClass    string         `json:"student_class"`
	ApprovalStatus  ApprovalStatus `json:"approval_status"`
	LeaveType       string         `json:"sort"`
	StartTime       time.Time      `json:"start_time"`
	EndTime         time.Time      `json:"end_time"`
	LeaveReason     string         `json:"leave_reason"`
	Times           int            `json:"times"`
	ApprovalComment string         `json:"approval_comment,omitempty"`
	ApproverName    string         `json:"approver_name,omitempty"`
	ApprovalTime    *time.Time     `json:"approval_time,omitempty"`
	CourseCode      string         `json:"course_code,omitempty"`
}

// Grade returns the cohort prefix of the record's student id.
func (r LeaveRecord) Grade() string {
	return GradeOf(r.StudentID)
}

// NewLeaveRecord validates a payload. Missing or unparseable times, an end
// before the start, an empty id or an unknown status reject the record.
func NewLeaveRecord(p LeaveRecordPayload, loc *time.Location) (LeaveRecord, error) {
	if loc == nil {
		loc = time.Local
	}
	id := strings.TrimSpace(string(p.LeaveID))
	if p.DecodeErr != nil {
		if id == "" {
			id = "?"
		}
		return LeaveRecord{}, malformed(id, "undecodable: "+p.DecodeErr.Error())
	}
	if id == "" {
		return LeaveRecord{}, malformed("?", "leave_id missing")
	}

	status := LeaveStatusPending
	if raw := strings.TrimSpace(p.ApprovalStatus); raw != "" {
		parsed, ok := ParseApprovalStatus(raw)
		if !ok {
			return LeaveRecord{}, malformed(id, fmt.Sprintf("unknown approval_status %q", raw))
		}
		status = parsed
	}

	start, err := p.StartTime.resolve(loc)
	if err != nil {
		return LeaveRecord{}, malformed(id, "start_time "+err.Error())
	}
	end, err := p.EndTime.resolve(loc)
	if err != nil {
		return LeaveRecord{}, malformed(id, "end_time "+err.Error())
	}
	if end.Before(start) {
		return LeaveRecord{}, malformed(id, "end_time before start_time")
	}

	record := LeaveRecord{
		LeaveID:         id,
		StudentID:       strings.TrimSpace(p.StudentID),
		StudentName:     p.StudentName,
		StudentClass:    p.StudentClass,
		ApprovalStatus:  status,
		LeaveType:       NormalizeLeaveType(deref(p.Sort)),
		StartTime:       start,
		EndTime:         end,
		LeaveReason:     p.LeaveReason,
		Times:           p.Times,
		ApprovalComment: deref(p.ApprovalComment),
		ApproverName:    deref(p.ApproverName),
		CourseCode:      deref(p.CourseCode),
	}
	if approvedAt, err := p.ApprovalTime.resolve(loc); err == nil {
		record.ApprovalTime = &approvedAt
	}
	return record, nil
}

func malformed(id, reason string) error {
	return appErrors.Clone(appErrors.ErrMalformedRecord, fmt.Sprintf("leave %s: %s", id, reason))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
