package scheduling

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/appointments/internal/domain/identity"
)

var tracer = otel.Tracer("appointments/scheduling")

// UnknownPatientName is shown for appointments whose patient is not loaded.
const UnknownPatientName = "unknown"

var (
	ErrNoSession         = errors.New("no doctor is signed in")
	ErrInvalidTransition = errors.New("invalid mode transition")
	ErrBusy              = errors.New("another change is still in progress")
	ErrRepositoryFailure = errors.New("repository failure")
)

// RepositoryError wraps a failed repository call. errors.Is matches both
// ErrRepositoryFailure and the underlying error.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

func (e *RepositoryError) Is(target error) bool { return target == ErrRepositoryFailure }

// ModeKind enumerates the workspace modes. Exactly one is active at a time.
type ModeKind uint8

const (
	ModeIdle ModeKind = iota
	ModeCreating
	ModeEditing
	ModeViewingDetails
)

func (k ModeKind) String() string {
	switch k {
	case ModeIdle:
		return "idle"
	case ModeCreating:
		return "creating"
	case ModeEditing:
		return "editing"
	case ModeViewingDetails:
		return "viewing"
	}
	return fmt.Sprintf("ModeKind(%d)", uint8(k))
}

func (k ModeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Mode is the active mode. Appointment is set for Editing and
// ViewingDetails only.
type Mode struct {
	Kind        ModeKind     `json:"kind"`
	Appointment *Appointment `json:"appointment,omitempty"`
}

func idle() Mode { return Mode{Kind: ModeIdle} }

func modeFor(kind ModeKind, a Appointment) Mode {
	return Mode{Kind: kind, Appointment: &a}
}

// FailureRecorder receives one call per failed repository operation.
type FailureRecorder interface {
	RepositoryFailure(op string)
}

// Options tune an Orchestrator. The zero value is usable.
type Options struct {
	Logger      zerolog.Logger
	Failures    FailureRecorder
	Now         func() time.Time
	HorizonDays int
}

// Orchestrator is one doctor's scheduling workspace: the loaded patients and
// appointments, the selected calendar date and view, and the active mode.
// Local state changes only after the repository confirms a write. Safe for
// concurrent use; at most one mutation runs at a time.
type Orchestrator struct {
	session  identity.Session
	appts    AppointmentRepository
	patients PatientLister
	log      zerolog.Logger
	failures FailureRecorder
	now      func() time.Time
	horizon  int

	mu           sync.RWMutex
	appointments []Appointment
	patientNames map[string]string
	mode         Mode
	loading      int
	loaded       bool
	inflight     bool
	errMsg       string
	selectedDate time.Time
	viewType     ViewType
}

// NewOrchestrator binds a workspace to sess. It fails with ErrNoSession when
// no doctor is signed in. Call Load before reading state.
func NewOrchestrator(sess identity.Session, appts AppointmentRepository, patients PatientLister, opts Options) (*Orchestrator, error) {
	if !sess.Authenticated() {
		return nil, ErrNoSession
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HorizonDays <= 0 {
		opts.HorizonDays = DefaultUpcomingHorizonDays
	}
	return &Orchestrator{
		session:      sess,
		appts:        appts,
		patients:     patients,
		log:          opts.Logger.With().Str("doctor_id", sess.DoctorID()).Logger(),
		failures:     opts.Failures,
		now:          opts.Now,
		horizon:      opts.HorizonDays,
		appointments: []Appointment{},
		patientNames: map[string]string{},
		mode:         idle(),
		selectedDate: civil(opts.Now()),
		viewType:     ViewDay,
	}, nil
}

func (o *Orchestrator) DoctorID() string { return o.session.DoctorID() }

// fail records a repository failure: it is logged, counted and kept as the
// banner message. Callers must hold o.mu.
func (o *Orchestrator) fail(op, appointmentID string, err error) error {
	rerr := &RepositoryError{Op: op, Err: err}
	evt := o.log.Error().Err(err).Str("op", op)
	if appointmentID != "" {
		evt = evt.Str("appointment_id", appointmentID)
	}
	evt.Msg("repository call failed")
	if o.failures != nil {
		o.failures.RepositoryFailure(op)
	}
	o.errMsg = rerr.Error()
	return rerr
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Load fetches the doctor's patients and appointments concurrently. The
// loading flag is raised for the duration and cleared whatever the outcome.
// On failure the previously loaded state is kept.
func (o *Orchestrator) Load(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "scheduling.load")
	span.SetAttributes(attribute.String("doctor_id", o.DoctorID()))

	o.mu.Lock()
	o.loading++
	o.mu.Unlock()

	var (
		appts    []Appointment
		patients []*identity.Patient
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		patients, _, err = o.patients.ListByDoctor(gctx, o.DoctorID(), 0, 0)
		if err != nil {
			return fmt.Errorf("list patients: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		appts, err = o.appts.List(gctx, o.DoctorID())
		if err != nil {
			return fmt.Errorf("list appointments: %w", err)
		}
		return nil
	})
	err := g.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.loading--
	if err != nil {
		err = o.fail("load", "", err)
		endSpan(span, err)
		return err
	}

	names := make(map[string]string, len(patients))
	for _, p := range patients {
		names[p.ID] = p.Name
	}
	o.patientNames = names
	o.appointments = appts
	o.loaded = true
	o.errMsg = ""
	span.SetAttributes(attribute.Int("appointments", len(appts)), attribute.Int("patients", len(patients)))
	endSpan(span, nil)
	return nil
}

// Loaded reports whether a Load has ever succeeded.
func (o *Orchestrator) Loaded() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.loaded
}

func (o *Orchestrator) find(id string) (Appointment, bool) {
	i := slices.IndexFunc(o.appointments, func(a Appointment) bool { return a.ID == id })
	if i < 0 {
		return Appointment{}, false
	}
	return o.appointments[i], true
}

// -- Mode transitions --

// StartCreate moves Idle to Creating.
func (o *Orchestrator) StartCreate() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.mode.Kind != ModeIdle {
		return fmt.Errorf("%w: add from %s", ErrInvalidTransition, o.mode.Kind)
	}
	o.mode = Mode{Kind: ModeCreating}
	return nil
}

// StartEdit moves Idle or ViewingDetails to Editing the appointment id.
func (o *Orchestrator) StartEdit(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.mode.Kind != ModeIdle && o.mode.Kind != ModeViewingDetails {
		return fmt.Errorf("%w: edit from %s", ErrInvalidTransition, o.mode.Kind)
	}
	a, ok := o.find(id)
	if !ok {
		return ErrNotFound
	}
	o.mode = modeFor(ModeEditing, a)
	return nil
}

// ViewDetails moves Idle or Editing to ViewingDetails of the appointment id.
func (o *Orchestrator) ViewDetails(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.mode.Kind != ModeIdle && o.mode.Kind != ModeEditing {
		return fmt.Errorf("%w: view from %s", ErrInvalidTransition, o.mode.Kind)
	}
	a, ok := o.find(id)
	if !ok {
		return ErrNotFound
	}
	o.mode = modeFor(ModeViewingDetails, a)
	return nil
}

// Close returns to Idle from any mode.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mode = idle()
}

func (o *Orchestrator) Mode() Mode {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.mode
}

// -- Calendar selection --

func (o *Orchestrator) ChangeSelectedDate(date time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.selectedDate = civil(date)
}

func (o *Orchestrator) ChangeViewType(v ViewType) error {
	if v != ViewDay && v != ViewWeek {
		return fmt.Errorf("invalid view type: %q", v)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.viewType = v
	return nil
}

// ClearError dismisses the banner message.
func (o *Orchestrator) ClearError() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errMsg = ""
}

// -- Mutations --

// begin claims the single mutation slot after validation has passed and
// switches to mode. It returns ErrBusy while another mutation is in flight.
func (o *Orchestrator) begin(mode *Mode) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight {
		return ErrBusy
	}
	o.inflight = true
	if mode != nil {
		o.mode = *mode
	}
	return nil
}

// AddAppointment validates d and creates it. The workspace is in Creating
// while the call runs; it returns to Idle on success and stays in Creating
// on failure. A validation error changes nothing.
func (o *Orchestrator) AddAppointment(ctx context.Context, d AppointmentDraft) (Appointment, error) {
	a, err := ValidateAppointmentInput(d, o.DoctorID())
	if err != nil {
		return Appointment{}, err
	}
	if err := o.begin(&Mode{Kind: ModeCreating}); err != nil {
		return Appointment{}, err
	}

	ctx, span := tracer.Start(ctx, "scheduling.create")
	created, err := o.appts.Create(ctx, a)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.inflight = false
	if err != nil {
		err = o.fail("create", "", err)
		endSpan(span, err)
		return Appointment{}, err
	}
	span.SetAttributes(attribute.String("appointment_id", created.ID))
	endSpan(span, nil)

	o.appointments = append(o.appointments, created)
	o.mode = idle()
	o.errMsg = ""
	return created, nil
}

// UpdateAppointment applies u to the appointment id. The workspace is in
// Editing while the call runs; on success the local copy is replaced and the
// mode returns to Idle, on failure it stays in Editing. A validation error
// changes nothing.
func (o *Orchestrator) UpdateAppointment(ctx context.Context, id string, u AppointmentUpdate) (Appointment, error) {
	if err := ValidateAppointmentUpdate(u); err != nil {
		return Appointment{}, err
	}

	o.mu.RLock()
	current, ok := o.find(id)
	o.mu.RUnlock()
	if !ok {
		current = Appointment{ID: id}
	}
	editing := modeFor(ModeEditing, current)
	if err := o.begin(&editing); err != nil {
		return Appointment{}, err
	}

	ctx, span := tracer.Start(ctx, "scheduling.update")
	span.SetAttributes(attribute.String("appointment_id", id))
	updated, err := o.appts.Update(ctx, o.DoctorID(), id, u)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.inflight = false
	if err != nil {
		err = o.fail("update", id, err)
		endSpan(span, err)
		return Appointment{}, err
	}
	endSpan(span, nil)

	if i := slices.IndexFunc(o.appointments, func(a Appointment) bool { return a.ID == id }); i >= 0 {
		o.appointments[i] = updated
	}
	o.mode = idle()
	o.errMsg = ""
	return updated, nil
}

// DeleteAppointment deletes the appointment id whether or not it is loaded
// locally. On success the local copy, if any, is dropped and the mode returns
// to Idle. On failure nothing changes apart from the banner message.
func (o *Orchestrator) DeleteAppointment(ctx context.Context, id string) error {
	if err := o.begin(nil); err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "scheduling.delete")
	span.SetAttributes(attribute.String("appointment_id", id))
	err := o.appts.Delete(ctx, o.DoctorID(), id)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.inflight = false
	if err != nil {
		err = o.fail("delete", id, err)
		endSpan(span, err)
		return err
	}
	endSpan(span, nil)

	o.appointments = slices.DeleteFunc(o.appointments, func(a Appointment) bool { return a.ID == id })
	o.mode = idle()
	o.errMsg = ""
	return nil
}

// -- Reads --

// LookupPatientName returns the loaded patient's name, or
// UnknownPatientName.
func (o *Orchestrator) LookupPatientName(patientID string) string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.patientName(patientID)
}

func (o *Orchestrator) patientName(patientID string) string {
	if name, ok := o.patientNames[patientID]; ok {
		return name
	}
	return UnknownPatientName
}

// Appointments returns a copy of every loaded appointment ordered by date
// then start time.
func (o *Orchestrator) Appointments() []Appointment {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return SortByDateTime(slices.Clone(o.appointments))
}

// ManagementList is Appointments with patient names resolved.
func (o *Orchestrator) ManagementList() []AppointmentDetails {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.detailList(SortByDateTime(slices.Clone(o.appointments)))
}

// AppointmentDetails is an appointment with its patient's display name.
type AppointmentDetails struct {
	Appointment
	PatientName string      `json:"patientName"`
	StatusLabel string      `json:"statusLabel"`
	StatusClass StatusClass `json:"statusClass"`
}

func (o *Orchestrator) details(a Appointment) AppointmentDetails {
	return AppointmentDetails{
		Appointment: a,
		PatientName: o.patientName(a.PatientID),
		StatusLabel: a.Status.Label(),
		StatusClass: a.Status.Class(),
	}
}

func (o *Orchestrator) detailList(appts []Appointment) []AppointmentDetails {
	out := make([]AppointmentDetails, 0, len(appts))
	for _, a := range appts {
		out = append(out, o.details(a))
	}
	return out
}

// Appointment returns the loaded appointment id with its patient name.
func (o *Orchestrator) Appointment(id string) (AppointmentDetails, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	a, ok := o.find(id)
	if !ok {
		return AppointmentDetails{}, ErrNotFound
	}
	return o.details(a), nil
}

// DayColumnDetails is a week-grid column with patient names resolved.
type DayColumnDetails struct {
	Date         string               `json:"date"`
	Appointments []AppointmentDetails `json:"appointments"`
}

// Snapshot is the read-only state a presentation layer renders.
type Snapshot struct {
	DoctorID      string               `json:"doctorId"`
	Mode          Mode                 `json:"mode"`
	Loading       bool                 `json:"loading"`
	Error         string               `json:"error,omitempty"`
	SelectedDate  string               `json:"selectedDate"`
	ViewType      ViewType             `json:"viewType"`
	Today         []AppointmentDetails `json:"today"`
	Upcoming      []AppointmentDetails `json:"upcoming"`
	View          []AppointmentDetails `json:"view"`
	Week          []DayColumnDetails   `json:"week,omitempty"`
	Stats         Stats                `json:"stats"`
	TotalPatients int                  `json:"totalPatients"`
}

// Snapshot derives every view from the loaded appointments. The active view
// is the selected day sorted by start time, or the selected week sorted by
// date then start time together with its seven-column grid.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	appts := slices.Clone(o.appointments)
	today, upcoming := TodayAndUpcoming(appts, o.now(), o.horizon)

	s := Snapshot{
		DoctorID:      o.DoctorID(),
		Mode:          o.mode,
		Loading:       o.loading > 0,
		Error:         o.errMsg,
		SelectedDate:  FormatDate(o.selectedDate),
		ViewType:      o.viewType,
		Today:         o.detailList(today),
		Upcoming:      o.detailList(upcoming),
		Stats:         PartitionByStatus(appts),
		TotalPatients: len(o.patientNames),
	}

	switch o.viewType {
	case ViewWeek:
		s.View = o.detailList(SortByDateTime(FilterForWeek(appts, o.selectedDate)))
		grid := GroupByDayOfWeek(appts, StartOfWeek(o.selectedDate))
		s.Week = make([]DayColumnDetails, 0, len(grid))
		for _, col := range grid {
			s.Week = append(s.Week, DayColumnDetails{Date: col.Date, Appointments: o.detailList(col.Appointments)})
		}
	default:
		s.View = o.detailList(SortByStartTime(FilterForDay(appts, o.selectedDate)))
	}
	return s
}
