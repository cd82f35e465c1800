package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	now := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC) // Wednesday
	records := []Record{
		{IdentityName: "Alice", Timestamp: now.Add(-time.Hour)},
		{IdentityName: "Alice", Timestamp: now.Add(-3 * time.Hour)},
		{IdentityName: "Bob", Timestamp: now.Add(-2 * time.Hour)},
		{IdentityName: "Bob", Timestamp: now.AddDate(0, 0, -1)},
		{IdentityName: "Carol", Timestamp: now.AddDate(0, 0, -10)},
	}

	s := Summarize(records, 4, now)

	assert.Equal(t, 4, s.TotalEnrolled)
	assert.Equal(t, 5, s.TotalRecords)
	assert.Equal(t, 2, s.PresentToday)
	assert.Equal(t, 2, s.AbsentToday)
	assert.Equal(t, 50, s.AttendanceRate)

	require.Len(t, s.LastSevenDays, 7)
	assert.Equal(t, "Thu", s.LastSevenDays[0].Day)
	assert.Equal(t, "Wed", s.LastSevenDays[6].Day)
	assert.Equal(t, "2026-03-04", s.LastSevenDays[6].Date)
	assert.Equal(t, 3, s.LastSevenDays[6].Count)
	assert.Equal(t, 1, s.LastSevenDays[5].Count)
	assert.Equal(t, 0, s.LastSevenDays[0].Count)
}

func TestSummarizeNoEnrollments(t *testing.T) {
	now := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	s := Summarize([]Record{{IdentityName: "Ghost", Timestamp: now}}, 0, now)

	assert.Equal(t, 1, s.PresentToday)
	assert.Equal(t, 0, s.AbsentToday)
	assert.Equal(t, 0, s.AttendanceRate)
}
