package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-leave-api/internal/models"
	appErrors "github.com/noah-isme/campus-leave-api/pkg/errors"
	"github.com/noah-isme/campus-leave-api/pkg/export"
)

type filteredStub struct {
	records  []models.LeaveRecord
	criteria models.FilterCriteria
}

func (f *filteredStub) Filtered(ctx context.Context, criteria models.FilterCriteria) ([]models.LeaveRecord, models.LeaveSnapshot) {
	f.criteria = criteria
	return f.records, models.LeaveSnapshot{Records: f.records, Sequence: 7}
}

type failingRenderer struct{}

func (failingRenderer) ContentType() string { return "text/plain" }
func (failingRenderer) Extension() string   { return "txt" }
func (failingRenderer) Render(export.Dataset) ([]byte, error) {
	return nil, errors.New("disk full")
}

func newExportServiceForTest(records []models.LeaveRecord) (*ExportService, *filteredStub) {
	stub := &filteredStub{records: records}
	svc := NewExportService(stub, testLoc, zap.NewNop(), nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 9, 2, 9, 30, 0, 0, testLoc) }
	return svc, stub
}

func TestExportServiceCSV(t *testing.T) {
	record := leaveAt("L01", "20210001", "张三", models.LeaveStatusApproved, day(1))
	record.LeaveType = ""
	record.LeaveReason = "看病, 复诊"
	svc, stub := newExportServiceForTest([]models.LeaveRecord{record})

	criteria := models.DefaultFilterCriteria(10)
	criteria.Page = 3
	out, err := svc.Export(context.Background(), criteria, "CSV")
	require.NoError(t, err)

	assert.Equal(t, 3, stub.criteria.Page)
	assert.Equal(t, "leaves_20240902_093000.csv", out.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", out.ContentType)
	assert.Equal(t, 1, out.Rows)
	assert.Equal(t, uint64(7), out.Sequence)

	body := string(bytes.TrimPrefix(out.Body, []byte{0xEF, 0xBB, 0xBF}))
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "请假编号,学号,姓名"))
	assert.Contains(t, lines[1], "L01,20210001,张三")
	assert.Contains(t, lines[1], models.DefaultLeaveType)
	assert.Contains(t, lines[1], "2024-09-01 08:00")
	assert.Contains(t, lines[1], `"看病, 复诊"`)
}

func TestExportServiceXLSX(t *testing.T) {
	svc, _ := newExportServiceForTest(twelveRecords())
	out, err := svc.Export(context.Background(), models.DefaultFilterCriteria(10), "xlsx")
	require.NoError(t, err)
	assert.Equal(t, 12, out.Rows)
	assert.True(t, strings.HasSuffix(out.Filename, ".xlsx"))
	assert.True(t, bytes.HasPrefix(out.Body, []byte("PK")))
}

func TestExportServiceErrors(t *testing.T) {
	svc, _ := newExportServiceForTest(nil)
	_, err := svc.Export(context.Background(), models.DefaultFilterCriteria(10), "pdf")
	assert.ErrorIs(t, err, appErrors.ErrUnsupportedInput)

	broken := NewExportService(&filteredStub{}, testLoc, nil, failingRenderer{}, nil)
	_, err = broken.Export(context.Background(), models.DefaultFilterCriteria(10), "")
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}
