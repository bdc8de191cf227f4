package scheduling

import (
	"context"
	"errors"

	"github.com/ehr/appointments/internal/domain/identity"
)

var (
	ErrNotFound       = errors.New("appointment not found")
	ErrUnknownPatient = errors.New("patient does not belong to this doctor")
)

// AppointmentRepository persists appointments. Every call is scoped to one
// doctor; appointments of other doctors are invisible to it.
type AppointmentRepository interface {
	// List returns all of the doctor's appointments ordered by date then
	// start time.
	List(ctx context.Context, doctorID string) ([]Appointment, error)
	// ListRange is List restricted to dates in [from, to], both YYYY-MM-DD.
	ListRange(ctx context.Context, doctorID, from, to string) ([]Appointment, error)
	// Create stores a and returns it with ID and CreatedAt assigned.
	Create(ctx context.Context, a Appointment) (Appointment, error)
	// Update applies the non-nil fields of u and returns the full record.
	Update(ctx context.Context, doctorID, id string, u AppointmentUpdate) (Appointment, error)
	Delete(ctx context.Context, doctorID, id string) error
}

// PatientLister is the part of the patient repository a workspace reads.
type PatientLister interface {
	ListByDoctor(ctx context.Context, doctorID string, limit, offset int) ([]*identity.Patient, int, error)
}
