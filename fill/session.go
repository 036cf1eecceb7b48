// Package fill holds the ephemeral per-viewer answer sessions of published
// forms. A session is a mutable map of answers plus the visibility derived
// from it; it lives only in memory and is dropped on submit or after the
// idle timeout.
package fill

import (
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/ptarchi/gridforms/form"
	"github.com/ptarchi/gridforms/metrics"
	"github.com/ptarchi/gridforms/model"
)

// State is the observable snapshot of a session after an edit.
type State struct {
	SessionID  string            `json:"sessionId"`
	Visibility []string          `json:"visibility"`
	Errors     map[string]string `json:"errors"`
}

type Session struct {
	ID     string
	FormID string

	mu      sync.Mutex
	values  map[string]any
	touched time.Time
}

// SetValue commits one field edit and recomputes visibility from scratch.
// A nil value clears the answer, reverting the field to unanswered.
func (s *Session) SetValue(fieldID string, value any, fields []model.FieldDef, rules []model.Rule) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value == nil {
		delete(s.values, fieldID)
	} else {
		s.values[fieldID] = value
	}
	s.touched = time.Now()
	return s.state(fields, rules)
}

// Snapshot recomputes and returns the current state without mutating answers.
func (s *Session) Snapshot(fields []model.FieldDef, rules []model.Rule) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = time.Now()
	return s.state(fields, rules)
}

// Values returns a copy of the committed answers.
func (s *Session) Values() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make(map[string]any, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}
	return values
}

func (s *Session) state(fields []model.FieldDef, rules []model.Rule) State {
	visible := form.ComputeVisibility(fields, rules, s.values)
	return State{
		SessionID:  s.ID,
		Visibility: visible.FieldIDs(fields),
		Errors:     form.Validate(fields, visible, s.values),
	}
}

// Store keeps open sessions in memory and sweeps the abandoned ones.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
}

func NewStore(ttl time.Duration) *Store {
	store := &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
	go func() {
		for range time.Tick(ttl / 2) {
			store.sweep(time.Now())
		}
	}()
	return store
}

func (st *Store) Open(formID string) (*Session, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, errors.Wrap(err, "fill.session_id")
	}

	session := &Session{
		ID:      id.String(),
		FormID:  formID,
		values:  make(map[string]any),
		touched: time.Now(),
	}

	st.mu.Lock()
	st.sessions[session.ID] = session
	st.mu.Unlock()
	metrics.FillSessionsOpen.Inc()
	return session, nil
}

func (st *Store) Get(sessionID string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	session, ok := st.sessions[sessionID]
	return session, ok
}

func (st *Store) Drop(sessionID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[sessionID]; ok {
		delete(st.sessions, sessionID)
		metrics.FillSessionsOpen.Dec()
	}
}

func (st *Store) sweep(now time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for id, session := range st.sessions {
		session.mu.Lock()
		idle := now.Sub(session.touched)
		session.mu.Unlock()
		if idle > st.ttl {
			delete(st.sessions, id)
			metrics.FillSessionsOpen.Dec()
		}
	}
}
