package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/ehr/appointments/internal/platform/auth"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrDoctorReassignment = errors.New("a patient cannot be moved to another doctor")
	ErrNotAuthenticated   = errors.New("not authenticated")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

type Service struct {
	doctors     DoctorRepository
	patients    PatientRepository
	tokens      *auth.TokenManager
	revocations auth.RevocationStore
}

func NewService(doctors DoctorRepository, patients PatientRepository, tokens *auth.TokenManager, revocations auth.RevocationStore) *Service {
	return &Service{doctors: doctors, patients: patients, tokens: tokens, revocations: revocations}
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Doctor    *Doctor   `json:"doctor"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// -- Doctor --

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) RegisterDoctor(ctx context.Context, r Registration) (*Doctor, error) {
	d := &Doctor{
		Name:      strings.TrimSpace(r.Name),
		Email:     normalizeEmail(r.Email),
		Specialty: strings.TrimSpace(r.Specialty),
	}
	switch {
	case d.Name == "":
		return nil, invalid("name is required")
	case d.Email == "":
		return nil, invalid("email is required")
	case d.Specialty == "":
		return nil, invalid("specialty is required")
	case r.Password == "":
		return nil, invalid("password is required")
	}
	if _, err := mail.ParseAddress(d.Email); err != nil {
		return nil, invalid("email is not a valid address")
	}

	hash, err := auth.HashPassword(r.Password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		return nil, invalid("%s", err)
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	d.PasswordHash = hash

	if err := s.doctors.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Login verifies the credentials and issues a session token. Unknown email
// and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	d, err := s.doctors.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(d.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	token, claims, err := s.tokens.Issue(d.ID, d.Name)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Doctor: d, Token: token, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Logout revokes the token carried by ctx until it would have expired.
func (s *Service) Logout(ctx context.Context) error {
	claims := auth.ClaimsFromContext(ctx)
	if claims == nil {
		return ErrNotAuthenticated
	}
	if s.revocations == nil {
		return nil
	}
	return s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

// CurrentSession resolves the signed-in doctor. A missing or deleted doctor
// yields an unauthenticated session, not an error.
func (s *Service) CurrentSession(ctx context.Context) (Session, error) {
	id := auth.DoctorIDFromContext(ctx)
	if id == "" {
		return Session{}, nil
	}
	d, err := s.doctors.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, err
	}
	return Session{Doctor: d}, nil
}

// -- Patient --

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// blankToNil turns a present but empty optional field into an absent one.
func blankToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

func (s *Service) CreatePatient(ctx context.Context, doctorID string, p *Patient) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return invalid("name is required")
	}
	if p.Gender != nil && !p.Gender.Valid() {
		return invalid("gender must be male, female or other")
	}
	p.Email = blankToNil(p.Email)
	p.Phone = blankToNil(p.Phone)
	p.DateOfBirth = blankToNil(p.DateOfBirth)
	if p.DateOfBirth != nil && !validDate(*p.DateOfBirth) {
		return invalid("dateOfBirth must be YYYY-MM-DD")
	}
	p.DoctorID = doctorID
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, doctorID, id string) (*Patient, error) {
	return s.patients.GetByID(ctx, doctorID, id)
}

func (s *Service) UpdatePatient(ctx context.Context, doctorID, id string, u PatientUpdate) (*Patient, error) {
	if u.DoctorID != nil && *u.DoctorID != doctorID {
		return nil, ErrDoctorReassignment
	}
	u.DoctorID = nil
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return nil, invalid("name cannot be blank")
	}
	if u.Gender != nil && !u.Gender.Valid() {
		return nil, invalid("gender must be male, female or other")
	}
	if u.DateOfBirth != nil && !validDate(*u.DateOfBirth) {
		return nil, invalid("dateOfBirth must be YYYY-MM-DD")
	}
	return s.patients.Update(ctx, doctorID, id, u)
}

func (s *Service) DeletePatient(ctx context.Context, doctorID, id string) error {
	return s.patients.Delete(ctx, doctorID, id)
}

// ListPatients returns the doctor's patients ordered by name.
func (s *Service) ListPatients(ctx context.Context, doctorID string, limit, offset int) ([]*Patient, int, error) {
	return s.patients.ListByDoctor(ctx, doctorID, limit, offset)
}
