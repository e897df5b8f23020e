package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"resumatch/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleApplications() ([]types.Application, types.ApplicationStats) {
	apps := []types.Application{
		{
			ID:          1,
			Company:     "Acme",
			Position:    "Go Engineer",
			Status:      types.StatusInterview,
			JobURL:      "https://acme.example/jobs/1",
			AnalysisID:  42,
			AppliedDate: "2026-09-01",
			UpdatedAt:   time.Date(2026, 9, 3, 10, 30, 0, 0, time.UTC),
		},
		{
			ID:       2,
			Company:  "Globex",
			Position: "Platform Engineer",
			Status:   types.StatusSaved,
			Notes:    "referral from Sam",
		},
	}
	stats := types.ApplicationStats{
		Total: 2,
		ByStatus: map[types.ApplicationStatus]int{
			types.StatusSaved:     1,
			types.StatusInterview: 1,
		},
		ResponseRate:  50,
		InterviewRate: 50,
	}
	return apps, stats
}

func TestExportApplicationsAddsExtension(t *testing.T) {
	apps, stats := sampleApplications()
	out := filepath.Join(t.TempDir(), "pipeline")

	written, err := ExportApplications(out, apps, stats, time.Now())
	require.NoError(t, err)
	assert.Equal(t, out+".xlsx", written)

	_, err = os.Stat(written)
	require.NoError(t, err)
}

func TestExportApplicationsKeepsExtension(t *testing.T) {
	apps, stats := sampleApplications()
	out := filepath.Join(t.TempDir(), "pipeline.XLSX")

	written, err := ExportApplications(out, apps, stats, time.Now())
	require.NoError(t, err)
	assert.Equal(t, out, written)
}

func TestWorkbookContents(t *testing.T) {
	apps, stats := sampleApplications()

	var buf bytes.Buffer
	require.NoError(t, WriteApplications(&buf, apps, stats, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{ApplicationsSheet, SummarySheet}, f.GetSheetList())

	rows, err := f.GetRows(ApplicationsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, applicationHeaders, rows[0])
	assert.Equal(t, "Acme", rows[1][1])
	assert.Equal(t, "interview", rows[1][3])
	assert.Equal(t, "42", rows[1][8])
	assert.Equal(t, "2026-09-03 10:30", rows[1][10])
	assert.Equal(t, "Globex", rows[2][1])

	linked, target, err := f.GetCellHyperLink(ApplicationsSheet, "H2")
	require.NoError(t, err)
	assert.True(t, linked)
	assert.Equal(t, "https://acme.example/jobs/1", target)

	summary, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	values := map[string]string{}
	for _, row := range summary {
		if len(row) == 2 {
			values[row[0]] = row[1]
		}
	}
	assert.Equal(t, "2", values["Total applications"])
	assert.Equal(t, "1", values["interview"])
	assert.Equal(t, "0", values["offer"])
	assert.Equal(t, "2026-10-01 00:00:00 UTC", values["Generated"])
	assert.Equal(t, "50.00%", values["Response rate"])
}

func TestWorkbookWithoutApplications(t *testing.T) {
	f, err := NewWorkbook(nil, types.ApplicationStats{}, time.Now())
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(ApplicationsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "header only")
}
