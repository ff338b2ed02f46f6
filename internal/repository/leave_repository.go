package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-leave-api/internal/models"
	appErrors "github.com/noah-isme/campus-leave-api/pkg/errors"
)

const leaveSelect = `SELECT sl.leave_id, sl.student_id, sl.student_name, COALESCE(si.dept_name, '') AS student_class,
        sl.approval_status, sl.start_time, sl.end_time, COALESCE(sl.leave_reason, '') AS leave_reason,
        COALESCE(si.times, 0) AS times, sl.approver_name, sl.approval_time, sl.course_code
        FROM student_leave sl
        LEFT JOIN student_info si ON si.student_id = sl.student_id`

type leaveRow struct {
	LeaveID        string         `db:"leave_id"`
	StudentID      string         `db:"student_id"`
	StudentName    string         `db:"student_name"`
	StudentClass   string         `db:"student_class"`
	ApprovalStatus string         `db:"approval_status"`
	StartTime      sql.NullTime   `db:"start_time"`
	EndTime        sql.NullTime   `db:"end_time"`
	LeaveReason    string         `db:"leave_reason"`
	Times          int            `db:"times"`
	ApproverName   sql.NullString `db:"approver_name"`
	ApprovalTime   sql.NullTime   `db:"approval_time"`
	CourseCode     sql.NullString `db:"course_code"`
}

// SQLLeaveSource reads leave records straight from the leave database.
type SQLLeaveSource struct {
	db         *sqlx.DB
	gradeScope string
}

// NewSQLLeaveSource constructs the source. A non-empty gradeScope limits the
// set to one cohort, as a counselor only sees their own grade.
func NewSQLLeaveSource(db *sqlx.DB, gradeScope string) *SQLLeaveSource {
	return &SQLLeaveSource{db: db, gradeScope: gradeScope}
}

// Name identifies the source in logs and metrics.
func (s *SQLLeaveSource) Name() string {
	return "sql"
}

// Fetch loads every record in scope, newest first.
func (s *SQLLeaveSource) Fetch(ctx context.Context) ([]models.LeaveRecordPayload, error) {
	query := leaveSelect
	args := []interface{}{}
	if s.gradeScope != "" {
		query += " WHERE LEFT(sl.student_id, 4) = ?"
		args = append(args, s.gradeScope)
	}
	query = s.db.Rebind(query + " ORDER BY sl.start_time DESC")

	var rows []leaveRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, appErrors.CloneWrap(appErrors.ErrDataUnavailable, err, "query leave records")
	}

	payloads := make([]models.LeaveRecordPayload, 0, len(rows))
	for _, row := range rows {
		payloads = append(payloads, row.payload())
	}
	return payloads, nil
}

func (r leaveRow) payload() models.LeaveRecordPayload {
	return models.LeaveRecordPayload{
		LeaveID:        models.LeaveID(r.LeaveID),
		StudentID:      r.StudentID,
		StudentName:    r.StudentName,
		StudentClass:   r.StudentClass,
		ApprovalStatus: r.ApprovalStatus,
		StartTime:      wallTime(r.StartTime),
		EndTime:        wallTime(r.EndTime),
		LeaveReason:    r.LeaveReason,
		Times:          r.Times,
		ApproverName:   nullString(r.ApproverName),
		ApprovalTime:   wallTime(r.ApprovalTime),
		CourseCode:     nullString(r.CourseCode),
	}
}

// DATETIME columns carry no zone.
func wallTime(t sql.NullTime) *models.SourceTime {
	if !t.Valid {
		return nil
	}
	return models.NewWallSourceTime(t.Time)
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

// Ping reports whether the database is reachable.
func (s *SQLLeaveSource) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}
