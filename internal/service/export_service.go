package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-leave-api/internal/models"
	appErrors "github.com/noah-isme/campus-leave-api/pkg/errors"
	"github.com/noah-isme/campus-leave-api/pkg/export"
)

// Supported export formats.
const (
	ExportFormatCSV  = "csv"
	ExportFormatXLSX = "xlsx"
)

const exportTimeLayout = "2006-01-02 15:04"

var leaveExportHeaders = []string{"请假编号", "学号", "姓名", "班级", "请假类型", "开始时间", "结束时间", "请假原因", "审批状态", "审批意见", "请假次数"}

type leaveFilterer interface {
	Filtered(ctx context.Context, criteria models.FilterCriteria) ([]models.LeaveRecord, models.LeaveSnapshot)
}

type datasetRenderer interface {
	ContentType() string
	Extension() string
	Render(data export.Dataset) ([]byte, error)
}

// LeaveExport is a rendered file ready to be streamed to a client.
type LeaveExport struct {
	Filename    string
	ContentType string
	Body        []byte
	Rows        int
	Sequence    uint64
}

// ExportService renders the filtered record set as a downloadable table.
type ExportService struct {
	records   leaveFilterer
	renderers map[string]datasetRenderer
	loc       *time.Location
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to
// the default CSV (with BOM) and XLSX exporters.
func NewExportService(records leaveFilterer, loc *time.Location, logger *zap.Logger, csv, xlsx datasetRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	if csv == nil {
		csv = export.NewCSVExporter(true)
	}
	if xlsx == nil {
		xlsx = export.NewXLSXExporter()
	}
	return &ExportService{
		records: records,
		renderers: map[string]datasetRenderer{
			ExportFormatCSV:  csv,
			ExportFormatXLSX: xlsx,
		},
		loc:    loc,
		logger: logger,
		now:    time.Now,
	}
}

// Export renders every record matching criteria, ignoring pagination.
func (s *ExportService) Export(ctx context.Context, criteria models.FilterCriteria, format string) (*LeaveExport, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedInput, fmt.Sprintf("unsupported export format %q", format))
	}

	records, snap := s.records.Filtered(ctx, criteria)
	payload, err := renderer.Render(s.Dataset(records))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Sugar().Infow("leave export rendered", "format", format, "rows", len(records), "sequence", snap.Sequence)

	return &LeaveExport{
		Filename:    fmt.Sprintf("leaves_%s.%s", s.now().In(s.loc).Format("20060102_150405"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        payload,
		Rows:        len(records),
		Sequence:    snap.Sequence,
	}, nil
}

// Dataset flattens records into export rows in their given order.
func (s *ExportService) Dataset(records []models.LeaveRecord) export.Dataset {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.LeaveID,
			r.StudentID,
			r.StudentName,
			r.StudentClass,
			models.NormalizeLeaveType(r.LeaveType),
			r.StartTime.In(s.loc).Format(exportTimeLayout),
			r.EndTime.In(s.loc).Format(exportTimeLayout),
			r.LeaveReason,
			string(r.ApprovalStatus),
			r.ApprovalComment,
			strconv.Itoa(r.Times),
		})
	}
	return export.Dataset{
		Title:   "请假记录",
		Headers: leaveExportHeaders,
		Rows:    rows,
	}
}
