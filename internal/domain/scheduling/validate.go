package scheduling

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingField     = errors.New("missing required field")
	ErrInvalidTimeRange = errors.New("start time must be before end time")
	ErrInvalidStatus    = errors.New("invalid appointment status")
)

// ValidationError reports which field of a draft or update was rejected.
// errors.Is matches it against ErrMissingField, ErrInvalidTimeRange and
// ErrInvalidStatus.
type ValidationError struct {
	Err   error
	Field string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func missing(field string) error {
	return &ValidationError{Err: ErrMissingField, Field: field}
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// ValidateAppointmentInput checks a new appointment and returns the record to
// persist for doctorID. Status defaults to scheduled when unset.
func ValidateAppointmentInput(d AppointmentDraft, doctorID string) (Appointment, error) {
	switch {
	case blank(d.PatientID):
		return Appointment{}, missing("patientId")
	case blank(d.Date):
		return Appointment{}, missing("date")
	case blank(d.StartTime):
		return Appointment{}, missing("startTime")
	case blank(d.EndTime):
		return Appointment{}, missing("endTime")
	}
	if d.StartTime >= d.EndTime {
		return Appointment{}, &ValidationError{Err: ErrInvalidTimeRange, Field: "endTime"}
	}

	status := d.Status
	if status == 0 {
		status = StatusScheduled
	}
	if !status.Valid() {
		return Appointment{}, &ValidationError{Err: ErrInvalidStatus, Field: "status"}
	}

	a := Appointment{
		PatientID: d.PatientID,
		DoctorID:  doctorID,
		Date:      d.Date,
		StartTime: d.StartTime,
		EndTime:   d.EndTime,
		Status:    status,
	}
	if d.Notes != nil {
		n := *d.Notes
		a.Notes = &n
	}
	return a, nil
}

// ValidateAppointmentUpdate checks the fields present in an edit. Mandatory
// fields may be omitted but never blanked. The time ordering is checked only
// when both StartTime and EndTime are supplied: an edit moving a single bound
// is not re-validated against the stored counterpart. Any status in the
// closed set is accepted, from any current status.
func ValidateAppointmentUpdate(u AppointmentUpdate) error {
	for _, f := range []struct {
		name string
		v    *string
	}{
		{"patientId", u.PatientID},
		{"date", u.Date},
		{"startTime", u.StartTime},
		{"endTime", u.EndTime},
	} {
		if f.v != nil && blank(*f.v) {
			return missing(f.name)
		}
	}
	if u.StartTime != nil && u.EndTime != nil && *u.StartTime >= *u.EndTime {
		return &ValidationError{Err: ErrInvalidTimeRange, Field: "endTime"}
	}
	if u.Status != nil && !u.Status.Valid() {
		return &ValidationError{Err: ErrInvalidStatus, Field: "status"}
	}
	return nil
}
