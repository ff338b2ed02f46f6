package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "leaves",
		Headers: []string{"leave_id", "student_name", "status"},
		Rows: [][]string{
			{"1", "张三", "待审批"},
			{"2", "Li, Si", "已批准"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter(true).Render(sampleDataset())
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, utf8BOM))

	body := string(out[len(utf8BOM):])
	assert.Equal(t, "leave_id,student_name,status\n1,张三,待审批\n2,\"Li, Si\",已批准\n", body)
}

func TestCSVExporterRejectsRaggedRows(t *testing.T) {
	data := sampleDataset()
	data.Rows = append(data.Rows, []string{"3"})
	_, err := NewCSVExporter(false).Render(data)
	assert.Error(t, err)

	_, err = NewCSVExporter(false).Render(Dataset{})
	assert.Error(t, err)
}

func TestXLSXExporterRender(t *testing.T) {
	out, err := NewXLSXExporter().Render(sampleDataset())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	rows, err := f.GetRows("leaves")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"leave_id", "student_name", "status"}, rows[0])
	assert.Equal(t, []string{"1", "张三", "待审批"}, rows[1])
}

func TestQRCodePNG(t *testing.T) {
	png, err := QRCodePNG("https://campus.example/api/v1/slips/verify?token=abc", 128)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = QRCodePNG("", 128)
	assert.Error(t, err)
}

func TestPDFExporterRenderSlip(t *testing.T) {
	exporter, err := NewPDFExporter("")
	require.NoError(t, err)
	qr, err := QRCodePNG("verify-token", 128)
	require.NoError(t, err)

	out, err := exporter.RenderSlip(SlipDocument{
		Title:  "Leave Slip",
		Fields: []SlipField{{Label: "Student", Value: "Zhang San (20210001)"}, {Label: "Reason", Value: "Medical appointment"}},
		QRCode: qr,
		QRNote: "scan to verify",
		Footer: "issued 2024-09-02",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestPDFExporterMissingFont(t *testing.T) {
	_, err := NewPDFExporter("/nonexistent/font.ttf")
	assert.Error(t, err)
}
