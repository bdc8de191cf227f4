package scheduling

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date encoding used for Appointment.Date.
const DateLayout = "2006-01-02"

// Appointment is a time block between the doctor and one of their patients.
// Date is a calendar date (YYYY-MM-DD); StartTime and EndTime are zero-padded
// HH:MM strings, so lexical comparison orders them correctly.
type Appointment struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patientId"`
	DoctorID  string    `json:"doctorId"`
	Date      string    `json:"date"`
	StartTime string    `json:"startTime"`
	EndTime   string    `json:"endTime"`
	Status    Status    `json:"status"`
	Notes     *string   `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AppointmentDraft is the user-submitted form for a new appointment.
// Status may be left zero; it defaults to StatusScheduled.
type AppointmentDraft struct {
	PatientID string  `json:"patientId"`
	Date      string  `json:"date"`
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`
	Status    Status  `json:"status,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

// AppointmentUpdate carries the fields an edit changes. Nil fields are left
// untouched by the repository.
type AppointmentUpdate struct {
	PatientID *string `json:"patientId,omitempty"`
	Date      *string `json:"date,omitempty"`
	StartTime *string `json:"startTime,omitempty"`
	EndTime   *string `json:"endTime,omitempty"`
	Status    *Status `json:"status,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u AppointmentUpdate) Empty() bool {
	return u.PatientID == nil && u.Date == nil && u.StartTime == nil &&
		u.EndTime == nil && u.Status == nil && u.Notes == nil
}

// Apply returns a copy of a with the non-nil fields of u applied.
func (u AppointmentUpdate) Apply(a Appointment) Appointment {
	if u.PatientID != nil {
		a.PatientID = *u.PatientID
	}
	if u.Date != nil {
		a.Date = *u.Date
	}
	if u.StartTime != nil {
		a.StartTime = *u.StartTime
	}
	if u.EndTime != nil {
		a.EndTime = *u.EndTime
	}
	if u.Status != nil {
		a.Status = *u.Status
	}
	if u.Notes != nil {
		n := *u.Notes
		a.Notes = &n
	}
	return a
}

// ViewType selects the calendar partition.
type ViewType string

const (
	ViewDay  ViewType = "day"
	ViewWeek ViewType = "week"
)

// ParseViewType accepts "day" or "week"; an empty string means day.
func ParseViewType(s string) (ViewType, error) {
	switch ViewType(s) {
	case "", ViewDay:
		return ViewDay, nil
	case ViewWeek:
		return ViewWeek, nil
	}
	return "", fmt.Errorf("invalid view type: %q", s)
}

// FormatDate renders the calendar date of t in its own location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD string as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
