package scheduling

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ehr/appointments/internal/domain/identity"
)

// WorkspaceObserver is told when a doctor's workspace is opened or dropped.
type WorkspaceObserver interface {
	WorkspaceOpened()
	WorkspaceClosed()
}

// Sessions holds one Orchestrator per signed-in doctor. A workspace is
// created and loaded on first use and lives until Drop.
type Sessions struct {
	appts    AppointmentRepository
	patients PatientLister
	opts     Options
	observer WorkspaceObserver

	mu         sync.RWMutex
	workspaces map[string]*Orchestrator
	group      singleflight.Group
}

func NewSessions(appts AppointmentRepository, patients PatientLister, opts Options, observer WorkspaceObserver) *Sessions {
	return &Sessions{
		appts:      appts,
		patients:   patients,
		opts:       opts,
		observer:   observer,
		workspaces: make(map[string]*Orchestrator),
	}
}

// Get returns the workspace for the session's doctor, opening it if needed.
// A workspace that has never loaded successfully retries its load; one whose
// load failed is still returned, carrying the error banner, with the load
// error alongside it. The load is not tied to the caller's cancellation since
// its result is shared by every later request.
func (s *Sessions) Get(ctx context.Context, sess identity.Session) (*Orchestrator, error) {
	if !sess.Authenticated() {
		return nil, ErrNoSession
	}
	id := sess.DoctorID()

	s.mu.RLock()
	o, ok := s.workspaces[id]
	s.mu.RUnlock()
	if ok && o.Loaded() {
		return o, nil
	}

	v, err, _ := s.group.Do(id, func() (interface{}, error) {
		s.mu.RLock()
		o, ok := s.workspaces[id]
		s.mu.RUnlock()
		if !ok {
			var err error
			o, err = NewOrchestrator(sess, s.appts, s.patients, s.opts)
			if err != nil {
				return nil, err
			}
			s.mu.Lock()
			s.workspaces[id] = o
			s.mu.Unlock()
			if s.observer != nil {
				s.observer.WorkspaceOpened()
			}
		}
		if o.Loaded() {
			return opened{o: o}, nil
		}
		return opened{o: o, err: o.Load(context.WithoutCancel(ctx))}, nil
	})
	if err != nil {
		return nil, err
	}
	r := v.(opened)
	return r.o, r.err
}

type opened struct {
	o   *Orchestrator
	err error
}

// Refresh reloads the doctor's workspace, if one is open, after a change
// made outside it such as a patient edit.
func (s *Sessions) Refresh(ctx context.Context, doctorID string) error {
	s.mu.RLock()
	o, ok := s.workspaces[doctorID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return o.Load(context.WithoutCancel(ctx))
}

// Drop forgets the doctor's workspace. The next Get reloads from the
// repository.
func (s *Sessions) Drop(doctorID string) {
	s.mu.Lock()
	_, ok := s.workspaces[doctorID]
	delete(s.workspaces, doctorID)
	s.mu.Unlock()
	if ok && s.observer != nil {
		s.observer.WorkspaceClosed()
	}
}

// Len returns the number of open workspaces.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workspaces)
}
