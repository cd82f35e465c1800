package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"faceguard/internal/attendance"
)

func TestFilename(t *testing.T) {
	now := time.Date(2026, 3, 2, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "Attendance_Report_2026-03-02.xlsx", Filename(now))
}

func TestWriteXLSX(t *testing.T) {
	conf := 0.9
	records := []attendance.Record{
		{ID: "b", IdentityName: "Bob", Timestamp: time.Date(2026, 3, 2, 10, 15, 30, 0, time.UTC), Status: attendance.StatusPresent, Confidence: &conf},
		{ID: "a", IdentityName: "Ann", Timestamp: time.Date(2026, 3, 2, 9, 0, 5, 0, time.UTC)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, records, time.UTC))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"ID", "Name", "Date", "Time", "Status"}, rows[0])
	assert.Equal(t, []string{"b", "Bob", "2026-03-02", "10:15:30", "Present"}, rows[1])
	assert.Equal(t, []string{"a", "Ann", "2026-03-02", "09:00:05", "Present"}, rows[2])

	width, err := f.GetColWidth(SheetName, "A")
	require.NoError(t, err)
	assert.InDelta(t, 36, width, 0.01)
	width, err = f.GetColWidth(SheetName, "E")
	require.NoError(t, err)
	assert.InDelta(t, 12, width, 0.01)
}

func TestWriteXLSXUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	records := []attendance.Record{
		{ID: "x", IdentityName: "Zed", Timestamp: time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, records, loc))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-03", rows[1][2])
	assert.Equal(t, "01:30:00", rows[1][3])
}
