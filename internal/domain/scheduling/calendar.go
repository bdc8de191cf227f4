package scheduling

import (
	"cmp"
	"slices"
	"time"
)

// DefaultUpcomingHorizonDays is how far ahead the dashboard looks for
// upcoming appointments.
const DefaultUpcomingHorizonDays = 7

// civil truncates t to midnight UTC of its wall-clock calendar date so date
// arithmetic never crosses a DST boundary.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StartOfWeek returns the Sunday on or before date.
func StartOfWeek(date time.Time) time.Time {
	d := civil(date)
	return d.AddDate(0, 0, -int(d.Weekday()))
}

// EndOfWeek returns the Saturday on or after date.
func EndOfWeek(date time.Time) time.Time {
	return StartOfWeek(date).AddDate(0, 0, 6)
}

// FilterForDay keeps the appointments dated exactly on date.
func FilterForDay(appts []Appointment, date time.Time) []Appointment {
	day := FormatDate(date)
	out := []Appointment{}
	for _, a := range appts {
		if a.Date == day {
			out = append(out, a)
		}
	}
	return out
}

// FilterForWeek keeps the appointments whose date falls in the Sunday-based
// week containing date, bounds inclusive. Unparseable dates are dropped.
func FilterForWeek(appts []Appointment, date time.Time) []Appointment {
	start, end := StartOfWeek(date), EndOfWeek(date)
	out := []Appointment{}
	for _, a := range appts {
		d, err := ParseDate(a.Date)
		if err != nil {
			continue
		}
		if !d.Before(start) && !d.After(end) {
			out = append(out, a)
		}
	}
	return out
}

// DayColumn is one day of a week grid.
type DayColumn struct {
	Date         string        `json:"date"`
	Appointments []Appointment `json:"appointments"`
}

// WeekGrid holds the seven consecutive days of a calendar week.
type WeekGrid [7]DayColumn

// ByDate returns the grid as a date-keyed map; all seven keys are present.
func (g WeekGrid) ByDate() map[string][]Appointment {
	m := make(map[string][]Appointment, len(g))
	for _, col := range g {
		m[col.Date] = col.Appointments
	}
	return m
}

// GroupByDayOfWeek buckets appts into the seven days beginning at weekStart.
// Appointments outside those days are ignored. Each column is sorted by
// start time.
func GroupByDayOfWeek(appts []Appointment, weekStart time.Time) WeekGrid {
	var g WeekGrid
	idx := make(map[string]int, len(g))
	start := civil(weekStart)
	for i := range g {
		day := FormatDate(start.AddDate(0, 0, i))
		g[i] = DayColumn{Date: day, Appointments: []Appointment{}}
		idx[day] = i
	}
	for _, a := range appts {
		if i, ok := idx[a.Date]; ok {
			g[i].Appointments = append(g[i].Appointments, a)
		}
	}
	for i := range g {
		SortByStartTime(g[i].Appointments)
	}
	return g
}

// Stats summarises a set of appointments by status.
type Stats struct {
	Total          int `json:"total"`
	Scheduled      int `json:"scheduled"`
	Completed      int `json:"completed"`
	Cancelled      int `json:"cancelled"`
	NoShow         int `json:"noShow"`
	CompletionRate int `json:"completionRate"`
}

// PartitionByStatus counts appts per status.
func PartitionByStatus(appts []Appointment) Stats {
	s := Stats{Total: len(appts)}
	for _, a := range appts {
		switch a.Status {
		case StatusScheduled:
			s.Scheduled++
		case StatusCompleted:
			s.Completed++
		case StatusCancelled:
			s.Cancelled++
		case StatusNoShow:
			s.NoShow++
		}
	}
	s.CompletionRate = CompletionRate(s.Completed, s.Total)
	return s
}

// CompletionRate returns completed/total as a percentage rounded half up,
// or 0 when total is 0.
func CompletionRate(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*completed + total) / (2 * total)
}

// TodayAndUpcoming splits appts into those dated today and the scheduled
// ones dated strictly after today and at most horizonDays ahead. Completed,
// cancelled and no-show appointments are never upcoming.
func TodayAndUpcoming(appts []Appointment, today time.Time, horizonDays int) (todayList, upcoming []Appointment) {
	todayList = SortByStartTime(FilterForDay(appts, today))

	t0 := civil(today)
	limit := t0.AddDate(0, 0, horizonDays)
	upcoming = []Appointment{}
	for _, a := range appts {
		if a.Status != StatusScheduled {
			continue
		}
		d, err := ParseDate(a.Date)
		if err != nil {
			continue
		}
		if d.After(t0) && !d.After(limit) {
			upcoming = append(upcoming, a)
		}
	}
	return todayList, SortByDateTime(upcoming)
}

// SortByStartTime orders a single-day list by start time, in place, and
// returns it.
func SortByStartTime(appts []Appointment) []Appointment {
	slices.SortStableFunc(appts, func(a, b Appointment) int {
		return cmp.Compare(a.StartTime, b.StartTime)
	})
	return appts
}

// SortByDateTime orders a multi-day list by date then start time, in place,
// and returns it.
func SortByDateTime(appts []Appointment) []Appointment {
	slices.SortStableFunc(appts, func(a, b Appointment) int {
		if c := cmp.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.StartTime, b.StartTime)
	})
	return appts
}
