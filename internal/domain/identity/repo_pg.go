package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ehr/appointments/internal/platform/db"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// -- Doctor Repository --

type doctorRepoPG struct {
	db db.DBTX
}

func NewDoctorRepo(conn db.DBTX) DoctorRepository {
	return &doctorRepoPG{db: conn}
}

const doctorCols = `id::text, name, email, password_hash, specialty, phone, address, created_at`

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	id := uuid.NewString()
	err := r.db.QueryRow(ctx, `
		INSERT INTO doctors (id, name, email, password_hash, specialty, phone, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		id, d.Name, d.Email, d.PasswordHash, d.Specialty, d.Phone, d.Address,
	).Scan(&d.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return ErrEmailTaken
		}
		return fmt.Errorf("doctor create: %w", err)
	}
	d.ID = id
	return nil
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id string) (*Doctor, error) {
	if !isUUID(id) {
		return nil, ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+doctorCols+` FROM doctors WHERE id = $1`, id)
}

func (r *doctorRepoPG) GetByEmail(ctx context.Context, email string) (*Doctor, error) {
	return r.getOne(ctx, `SELECT `+doctorCols+` FROM doctors WHERE lower(email) = lower($1)`, email)
}

func (r *doctorRepoPG) getOne(ctx context.Context, query string, arg string) (*Doctor, error) {
	d, err := scanDoctor(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("doctor get: %w", err)
	}
	return d, nil
}

func scanDoctor(row rowScanner) (*Doctor, error) {
	var d Doctor
	if err := row.Scan(&d.ID, &d.Name, &d.Email, &d.PasswordHash, &d.Specialty, &d.Phone, &d.Address, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// -- Patient Repository --

type patientRepoPG struct {
	db db.DBTX
}

func NewPatientRepo(conn db.DBTX) PatientRepository {
	return &patientRepoPG{db: conn}
}

// patientRow mirrors the patients table. It is the only place the
// underscored column names meet the domain type.
type patientRow struct {
	ID             string
	DoctorID       string
	Name           string
	Email          *string
	Phone          *string
	DateOfBirth    *string
	Gender         *string
	Address        *string
	MedicalHistory *string
	CreatedAt      time.Time
}

const patientCols = `id::text, doctor_id::text, name, email, phone,
	to_char(date_of_birth, 'YYYY-MM-DD'), gender, address, medical_history, created_at`

func (row patientRow) toDomain() *Patient {
	p := &Patient{
		ID:             row.ID,
		DoctorID:       row.DoctorID,
		Name:           row.Name,
		Email:          row.Email,
		Phone:          row.Phone,
		DateOfBirth:    row.DateOfBirth,
		Address:        row.Address,
		MedicalHistory: row.MedicalHistory,
		CreatedAt:      row.CreatedAt,
	}
	if row.Gender != nil {
		g := Gender(*row.Gender)
		p.Gender = &g
	}
	return p
}

func scanPatient(s rowScanner) (*Patient, error) {
	var row patientRow
	err := s.Scan(&row.ID, &row.DoctorID, &row.Name, &row.Email, &row.Phone,
		&row.DateOfBirth, &row.Gender, &row.Address, &row.MedicalHistory, &row.CreatedAt)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func genderArg(g *Gender) *string {
	if g == nil {
		return nil
	}
	s := string(*g)
	return &s
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	id := uuid.NewString()
	err := r.db.QueryRow(ctx, `
		INSERT INTO patients (id, doctor_id, name, email, phone, date_of_birth, gender, address, medical_history)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		id, p.DoctorID, p.Name, p.Email, p.Phone, p.DateOfBirth, genderArg(p.Gender), p.Address, p.MedicalHistory,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("patient create: %w", err)
	}
	p.ID = id
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, doctorID, id string) (*Patient, error) {
	if !isUUID(id) {
		return nil, ErrNotFound
	}
	p, err := scanPatient(r.db.QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id = $1 AND doctor_id = $2`, id, doctorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("patient get: %w", err)
	}
	return p, nil
}

// Update writes only the non-nil fields of u. DoctorID is never written.
func (r *patientRepoPG) Update(ctx context.Context, doctorID, id string, u PatientUpdate) (*Patient, error) {
	if !isUUID(id) {
		return nil, ErrNotFound
	}
	var sets []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Email != nil {
		add("email", *u.Email)
	}
	if u.Phone != nil {
		add("phone", *u.Phone)
	}
	if u.DateOfBirth != nil {
		add("date_of_birth", *u.DateOfBirth)
	}
	if u.Gender != nil {
		add("gender", string(*u.Gender))
	}
	if u.Address != nil {
		add("address", *u.Address)
	}
	if u.MedicalHistory != nil {
		add("medical_history", *u.MedicalHistory)
	}
	if len(sets) == 0 {
		return r.GetByID(ctx, doctorID, id)
	}

	args = append(args, id, doctorID)
	query := fmt.Sprintf(`UPDATE patients SET %s WHERE id = $%d AND doctor_id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args)-1, len(args), patientCols)

	p, err := scanPatient(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("patient update: %w", err)
	}
	return p, nil
}

func (r *patientRepoPG) Delete(ctx context.Context, doctorID, id string) error {
	if !isUUID(id) {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM patients WHERE id = $1 AND doctor_id = $2`, id, doctorID)
	if err != nil {
		return fmt.Errorf("patient delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *patientRepoPG) ListByDoctor(ctx context.Context, doctorID string, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE doctor_id = $1`, doctorID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("patient count: %w", err)
	}

	query := `SELECT ` + patientCols + ` FROM patients WHERE doctor_id = $1 ORDER BY name, id`
	args := []any{doctorID}
	if limit > 0 {
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("patient list: %w", err)
	}
	defer rows.Close()

	patients := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("patient list: %w", err)
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("patient list: %w", err)
	}
	return patients, total, nil
}
