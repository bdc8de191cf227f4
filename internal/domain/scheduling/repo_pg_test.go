package scheduling

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	apptID1 = "6b1f3c2d-8e4a-4f5b-9c6d-7e8f9a0b1c01"
	apptID2 = "6b1f3c2d-8e4a-4f5b-9c6d-7e8f9a0b1c02"
	docID   = "0a1b2c3d-4e5f-4a6b-8c7d-9e0f1a2b3c4d"
	patID   = "1b2c3d4e-5f6a-4b7c-8d9e-0f1a2b3c4d5e"
)

var apptColumns = []string{"id", "patient_id", "doctor_id", "date", "start_time", "end_time", "status", "notes", "created_at"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestAppointmentRepoPG_List(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepoPG(mock)
	notes := "bring x-rays"
	created := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM appointments WHERE doctor_id = $1 ORDER BY date, start_time, id")).
		WithArgs(docID).
		WillReturnRows(pgxmock.NewRows(apptColumns).
			AddRow(apptID1, patID, docID, "2024-06-10", "08:00", "08:30", "completed", &notes, created).
			AddRow(apptID2, patID, docID, "2024-06-10", "09:00", "09:30", "no-show", (*string)(nil), created))

	got, err := repo.List(context.Background(), docID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Appointment{
		ID: apptID1, PatientID: patID, DoctorID: docID, Date: "2024-06-10",
		StartTime: "08:00", EndTime: "08:30", Status: StatusCompleted, Notes: &notes, CreatedAt: created,
	}, got[0])
	assert.Equal(t, StatusNoShow, got[1].Status)
	assert.Nil(t, got[1].Notes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepoPG_List_Empty(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepoPG(mock)

	mock.ExpectQuery("FROM appointments").WithArgs(docID).WillReturnRows(pgxmock.NewRows(apptColumns))

	got, err := repo.List(context.Background(), docID)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAppointmentRepoPG_List_UnknownStatus(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepoPG(mock)

	mock.ExpectQuery("FROM appointments").WithArgs(docID).
		WillReturnRows(pgxmock.NewRows(apptColumns).
			AddRow(apptID1, patID, docID, "2024-06-10", "08:00", "08:30", "archived", (*string)(nil), time.Now()))

	_, err := repo.List(context.Background(), docID)
	assert.Error(t, err)
}

func TestAppointmentRepoPG_ListRange(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepoPG(mock)

	mock.ExpectQuery(regexp.QuoteMeta("date BETWEEN $2 AND $3")).
		WithArgs(docID, "2024-06-09", "2024-06-15").
		WillReturnRows(pgxmock.NewRows(apptColumns).
			AddRow(apptID1, patID, docID, "2024-06-10", "08:00", "08:30", "scheduled", (*string)(nil), time.Now()))

	got, err := repo.ListRange(context.Background(), docID, "2024-06-09", "2024-06-15")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, StatusScheduled, got[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepoPG_List_Error(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepoPG(mock)
	boom := errors.New("connection reset")

	mock.ExpectQuery("FROM appointments").WithArgs(docID).WillReturnError(boom)

	_, err := repo.List(context.Background(), docID)
	assert.ErrorIs(t, err, boom)
}

func TestAppointmentRepoPG_Create(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepoPG(mock)
	created := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO appointments (id, patient_id, doctor_id, date, start_time, end_time, status, notes)")).
		WithArgs(pgxmock.AnyArg(), patID, docID, "2024-06-10", "09:00", "09:30", "scheduled", (*string)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(created))

	a, err := repo.Create(context.Background(), Appointment{
		PatientID: patID, DoctorID: docID, Date: "2024-06-10", StartTime: "09:00", EndTime: "09:30", Status: StatusScheduled,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, created, a.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepoPG_Create_ForeignPatient(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepoPG(mock)

	mock.ExpectQuery("INSERT INTO appointments").
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "appointments_patient_fkey"})

	_, err := repo.Create(context.Background(), Appointment{
		PatientID: patID, DoctorID: docID, Date: "2024-06-10", StartTime: "09:00", EndTime: "09:30", Status: StatusScheduled,
	})
	assert.ErrorIs(t, err, ErrUnknownPatient)
}

func TestAppointmentRepoPG_MalformedPatientID(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepoPG(mock)
	ctx := context.Background()

	_, err := repo.Create(ctx, Appointment{
		PatientID: "patient-42", DoctorID: docID, Date: "2024-06-10", StartTime: "09:00", EndTime: "09:30", Status: StatusScheduled,
	})
	assert.ErrorIs(t, err, ErrUnknownPatient)

	bad := "patient-42"
	_, err = repo.Update(ctx, docID, apptID1, AppointmentUpdate{PatientID: &bad})
	assert.ErrorIs(t, err, ErrUnknownPatient)

	// Rejected before any statement reaches the database.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepoPG_Update_OnlyPresentFields(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepoPG(mock)
	start, end := "10:00", "10:45"
	status := StatusCancelled

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE appointments SET start_time = $1, end_time = $2, status = $3 WHERE id = $4 AND doctor_id = $5 RETURNING")).
		WithArgs(start, end, "cancelled", apptID1, docID).
		WillReturnRows(pgxmock.NewRows(apptColumns).
			AddRow(apptID1, patID, docID, "2024-06-10", start, end, "cancelled", (*string)(nil), time.Now()))

	a, err := repo.Update(context.Background(), docID, apptID1, AppointmentUpdate{StartTime: &start, EndTime: &end, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, "10:00", a.StartTime)
	assert.Equal(t, StatusCancelled, a.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepoPG_Update_EmptyRereads(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepoPG(mock)

	mock.ExpectQuery(regexp.QuoteMeta("FROM appointments WHERE id = $1 AND doctor_id = $2")).
		WithArgs(apptID1, docID).
		WillReturnRows(pgxmock.NewRows(apptColumns).
			AddRow(apptID1, patID, docID, "2024-06-10", "09:00", "09:30", "scheduled", (*string)(nil), time.Now()))

	a, err := repo.Update(context.Background(), docID, apptID1, AppointmentUpdate{})
	require.NoError(t, err)
	assert.Equal(t, apptID1, a.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepoPG_Update_NotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepoPG(mock)
	notes := "x"

	mock.ExpectQuery("UPDATE appointments").WillReturnError(pgx.ErrNoRows)

	_, err := repo.Update(context.Background(), docID, apptID2, AppointmentUpdate{Notes: &notes})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Update(context.Background(), docID, "not-a-uuid", AppointmentUpdate{Notes: &notes})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppointmentRepoPG_Delete(t *testing.T) {
	mock := newMock(t)
	repo := NewAppointmentRepoPG(mock)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM appointments WHERE id = $1 AND doctor_id = $2")).
		WithArgs(apptID1, docID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM appointments").
		WithArgs(apptID2, docID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.NoError(t, repo.Delete(context.Background(), docID, apptID1))
	assert.ErrorIs(t, repo.Delete(context.Background(), docID, apptID2), ErrNotFound)
	assert.ErrorIs(t, repo.Delete(context.Background(), docID, "ghost"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
