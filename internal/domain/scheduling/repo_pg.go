package scheduling

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

type appointmentRepoPG struct {
	db db.DBTX
}

func NewAppointmentRepoPG(conn db.DBTX) AppointmentRepository {
	return &appointmentRepoPG{db: conn}
}

// appointmentRow is the storage shape of an appointment. The underscored
// column names never leave this file.
type appointmentRow struct {
	ID        string
	PatientID string
	DoctorID  string
	Date      string
	StartTime string
	EndTime   string
	Status    string
	Notes     *string
	CreatedAt time.Time
}

const apptCols = `id::text, patient_id::text, doctor_id::text, to_char(date, 'YYYY-MM-DD'),
	start_time, end_time, status, notes, created_at`

const apptOrder = ` ORDER BY date, start_time, id`

func scanAppointment(s interface{ Scan(dest ...any) error }) (Appointment, error) {
	var row appointmentRow
	if err := s.Scan(&row.ID, &row.PatientID, &row.DoctorID, &row.Date,
		&row.StartTime, &row.EndTime, &row.Status, &row.Notes, &row.CreatedAt); err != nil {
		return Appointment{}, err
	}
	return row.toDomain()
}

func (row appointmentRow) toDomain() (Appointment, error) {
	status, err := ParseStatus(row.Status)
	if err != nil {
		return Appointment{}, err
	}
	return Appointment{
		ID:        row.ID,
		PatientID: row.PatientID,
		DoctorID:  row.DoctorID,
		Date:      row.Date,
		StartTime: row.StartTime,
		EndTime:   row.EndTime,
		Status:    status,
		Notes:     row.Notes,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (r *appointmentRepoPG) list(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *appointmentRepoPG) List(ctx context.Context, doctorID string) ([]Appointment, error) {
	out, err := r.list(ctx, `SELECT `+apptCols+` FROM appointments WHERE doctor_id = $1`+apptOrder, doctorID)
	if err != nil {
		return nil, fmt.Errorf("appointment list: %w", err)
	}
	return out, nil
}

func (r *appointmentRepoPG) ListRange(ctx context.Context, doctorID, from, to string) ([]Appointment, error) {
	out, err := r.list(ctx, `SELECT `+apptCols+` FROM appointments
		WHERE doctor_id = $1 AND date BETWEEN $2 AND $3`+apptOrder, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointment list range: %w", err)
	}
	return out, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a Appointment) (Appointment, error) {
	if !isUUID(a.PatientID) {
		return Appointment{}, ErrUnknownPatient
	}
	a.ID = uuid.NewString()
	err := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, date, start_time, end_time, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		a.ID, a.PatientID, a.DoctorID, a.Date, a.StartTime, a.EndTime, a.Status.String(), a.Notes,
	).Scan(&a.CreatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Appointment{}, ErrUnknownPatient
		}
		return Appointment{}, fmt.Errorf("appointment create: %w", err)
	}
	return a, nil
}

// isUUID guards id lookups and patient references: a malformed id can match
// no row, and Postgres would reject it with a cast error instead.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (r *appointmentRepoPG) get(ctx context.Context, doctorID, id string) (Appointment, error) {
	if !isUUID(id) {
		return Appointment{}, ErrNotFound
	}
	a, err := scanAppointment(r.db.QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments WHERE id = $1 AND doctor_id = $2`, id, doctorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, ErrNotFound
	}
	if err != nil {
		return Appointment{}, fmt.Errorf("appointment get: %w", err)
	}
	return a, nil
}

func (r *appointmentRepoPG) Update(ctx context.Context, doctorID, id string, u AppointmentUpdate) (Appointment, error) {
	if !isUUID(id) {
		return Appointment{}, ErrNotFound
	}
	if u.PatientID != nil && !isUUID(*u.PatientID) {
		return Appointment{}, ErrUnknownPatient
	}
	var sets []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if u.PatientID != nil {
		add("patient_id", *u.PatientID)
	}
	if u.Date != nil {
		add("date", *u.Date)
	}
	if u.StartTime != nil {
		add("start_time", *u.StartTime)
	}
	if u.EndTime != nil {
		add("end_time", *u.EndTime)
	}
	if u.Status != nil {
		add("status", u.Status.String())
	}
	if u.Notes != nil {
		add("notes", *u.Notes)
	}
	if len(sets) == 0 {
		return r.get(ctx, doctorID, id)
	}

	args = append(args, id, doctorID)
	query := fmt.Sprintf(`UPDATE appointments SET %s WHERE id = $%d AND doctor_id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args)-1, len(args), apptCols)

	a, err := scanAppointment(r.db.QueryRow(ctx, query, args...))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Appointment{}, ErrNotFound
	case db.IsForeignKeyViolation(err):
		return Appointment{}, ErrUnknownPatient
	case err != nil:
		return Appointment{}, fmt.Errorf("appointment update: %w", err)
	}
	return a, nil
}

func (r *appointmentRepoPG) Delete(ctx context.Context, doctorID, id string) error {
	if !isUUID(id) {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM appointments WHERE id = $1 AND doctor_id = $2`, id, doctorID)
	if err != nil {
		return fmt.Errorf("appointment delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
