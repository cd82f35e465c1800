package attendance

import (
	"math"
	"time"
)

// DayCount is the number of records on one calendar day.
type DayCount struct {
	Day   string `json:"day"`
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Stats summarises the ledger for the kiosk dashboard.
type Stats struct {
	TotalEnrolled  int        `json:"total_enrolled"`
	TotalRecords   int        `json:"total_records"`
	PresentToday   int        `json:"present_today"`
	AbsentToday    int        `json:"absent_today"`
	AttendanceRate int        `json:"attendance_rate"`
	LastSevenDays  []DayCount `json:"last_seven_days"`
}

// Summarize computes dashboard stats. Calendar days are taken in now's location.
func Summarize(records []Record, enrolled int, now time.Time) Stats {
	loc := now.Location()
	today := dayKey(now)

	present := make(map[string]struct{})
	for _, r := range records {
		if dayKey(r.Timestamp.In(loc)) == today {
			present[r.IdentityName] = struct{}{}
		}
	}

	days := make([]DayCount, 7)
	index := make(map[string]int, 7)
	for i := 0; i < 7; i++ {
		d := now.AddDate(0, 0, i-6)
		days[i] = DayCount{Day: d.Format("Mon"), Date: dayKey(d)}
		index[days[i].Date] = i
	}
	for _, r := range records {
		if i, ok := index[dayKey(r.Timestamp.In(loc))]; ok {
			days[i].Count++
		}
	}

	s := Stats{
		TotalEnrolled: enrolled,
		TotalRecords:  len(records),
		PresentToday:  len(present),
		AbsentToday:   max(0, enrolled-len(present)),
		LastSevenDays: days,
	}
	if enrolled > 0 {
		s.AttendanceRate = int(math.Round(float64(s.PresentToday) / float64(enrolled) * 100))
	}
	return s
}

func dayKey(t time.Time) string { return t.Format(time.DateOnly) }
