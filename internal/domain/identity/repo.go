package identity

import (
	"context"
	"errors"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrEmailTaken = errors.New("email already registered")
)

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id string) (*Doctor, error)
	GetByEmail(ctx context.Context, email string) (*Doctor, error)
}

// PatientRepository is scoped by doctor on every call; a patient owned by
// another doctor behaves as if it did not exist.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, doctorID, id string) (*Patient, error)
	Update(ctx context.Context, doctorID, id string, u PatientUpdate) (*Patient, error)
	Delete(ctx context.Context, doctorID, id string) error
	// ListByDoctor returns patients ordered by name. A limit <= 0 returns all.
	ListByDoctor(ctx context.Context, doctorID string, limit, offset int) ([]*Patient, int, error)
}
