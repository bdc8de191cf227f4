package scheduling

import (
	"database/sql/driver"
	"fmt"
)

// Status is the closed vocabulary of appointment states. The zero value is
// not a valid status; use ParseStatus or one of the constants.
type Status uint8

const (
	StatusScheduled Status = iota + 1
	StatusCompleted
	StatusCancelled
	StatusNoShow

	statusEnd // sentinel, keep last
)

// StatusClass is the visual category a presentation layer attaches to a status.
type StatusClass string

const (
	ClassInfo    StatusClass = "info"
	ClassSuccess StatusClass = "success"
	ClassDanger  StatusClass = "danger"
	ClassWarning StatusClass = "warning"
)

type statusMeta struct {
	code  string
	label string
	class StatusClass
}

// statusTable must hold exactly one entry per status, in declaration order.
var statusTable = [...]statusMeta{
	{code: "scheduled", label: "Scheduled", class: ClassInfo},
	{code: "completed", label: "Completed", class: ClassSuccess},
	{code: "cancelled", label: "Cancelled", class: ClassDanger},
	{code: "no-show", label: "No-show", class: ClassWarning},
}

// Adding a status constant without a table entry (or the reverse) breaks the build.
var (
	_ [len(statusTable) - int(statusEnd-1)]struct{}
	_ [int(statusEnd-1) - len(statusTable)]struct{}
)

// Statuses returns every status in declaration order.
func Statuses() []Status {
	out := make([]Status, 0, len(statusTable))
	for s := StatusScheduled; s < statusEnd; s++ {
		out = append(out, s)
	}
	return out
}

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	return s >= StatusScheduled && s < statusEnd
}

func (s Status) meta() statusMeta {
	if !s.Valid() {
		return statusMeta{}
	}
	return statusTable[s-1]
}

// String returns the persisted code ("scheduled", "no-show", ...).
func (s Status) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
	return s.meta().code
}

// Label returns the display text for the status.
func (s Status) Label() string { return s.meta().label }

// Class returns the visual category for the status.
func (s Status) Class() StatusClass { return s.meta().class }

// ParseStatus converts a persisted code into a Status.
func ParseStatus(code string) (Status, error) {
	for i, m := range statusTable {
		if m.code == code {
			return Status(i + 1), nil
		}
	}
	return 0, fmt.Errorf("invalid appointment status: %q", code)
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid appointment status: %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Value implements driver.Valuer so pgx stores the textual code.
func (s Status) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid appointment status: %d", uint8(s))
	}
	return s.String(), nil
}

// Scan implements sql.Scanner.
func (s *Status) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	case nil:
		return fmt.Errorf("appointment status is null")
	default:
		return fmt.Errorf("cannot scan %T into Status", src)
	}
}
