package session

import (
	"sort"
	"sync"
	"time"

	"github.com/enem-redacao/essay-form/internal/form"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultMaxSessions limits concurrent forms to bound memory and upload disk use
const DefaultMaxSessions = 500

// Factory builds the form for a new session.
type Factory func(id string) *form.SubmissionForm

// Manager maps browser sessions to their submission forms.
type Manager struct {
	sessions    map[string]*SessionState
	mu          sync.RWMutex
	newForm     Factory
	maxSessions int
}

// SessionState holds a form and its keep-alive bookkeeping.
type SessionState struct {
	Form         *form.SubmissionForm
	CreatedAt    time.Time
	LastAccessed time.Time
}

// NewManager creates a session manager. maxSessions <= 0 uses DefaultMaxSessions.
func NewManager(newForm Factory, maxSessions int) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Manager{
		sessions:    make(map[string]*SessionState),
		newForm:     newForm,
		maxSessions: maxSessions,
	}
}

// Create mounts a fresh form under a new session ID.
func (m *Manager) Create() (string, *form.SubmissionForm) {
	id := uuid.New().String()
	f := m.newForm(id)
	now := time.Now()

	m.mu.Lock()
	evicted := m.evictIfFullLocked()
	m.sessions[id] = &SessionState{Form: f, CreatedAt: now, LastAccessed: now}
	m.mu.Unlock()

	for _, old := range evicted {
		old.Close()
	}

	log.Debug().Str("session", id).Msg("session created")
	return id, f
}

// Get returns the form for id and refreshes its keep-alive.
func (m *Manager) Get(id string) (*form.SubmissionForm, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	state.LastAccessed = time.Now()
	return state.Form, true
}

// Touch refreshes a session's keep-alive without returning it.
func (m *Manager) Touch(id string) bool {
	_, ok := m.Get(id)
	return ok
}

// GetOrCreate returns the form for id, or mounts a new one when id is unknown.
// The returned ID is the one the caller should keep using.
func (m *Manager) GetOrCreate(id string) (string, *form.SubmissionForm) {
	if id != "" {
		if f, ok := m.Get(id); ok {
			return id, f
		}
	}
	return m.Create()
}

// Remove unmounts a session, aborting its in-flight request.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	state, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return false
	}
	state.Form.Close()
	log.Debug().Str("session", id).Msg("session removed")
	return true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupOldSessions closes sessions idle for longer than maxAge.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var expired []*SessionState
	for id, state := range m.sessions {
		if state.LastAccessed.Before(cutoff) {
			expired = append(expired, state)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, state := range expired {
		state.Form.Close()
	}
	if len(expired) > 0 {
		log.Info().Int("count", len(expired)).Msg("cleaned up idle sessions")
	}
	return len(expired)
}

// CloseAll unmounts every session. Used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*SessionState)
	m.mu.Unlock()

	for _, state := range all {
		state.Form.Close()
	}
}

// evictIfFullLocked drops the least recently used sessions so one more fits.
// Caller holds m.mu; the returned forms must be closed after unlocking.
func (m *Manager) evictIfFullLocked() []*form.SubmissionForm {
	if len(m.sessions) < m.maxSessions {
		return nil
	}

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return m.sessions[ids[i]].LastAccessed.Before(m.sessions[ids[j]].LastAccessed)
	})

	toFree := len(m.sessions) - m.maxSessions + 1
	evicted := make([]*form.SubmissionForm, 0, toFree)
	for _, id := range ids[:toFree] {
		evicted = append(evicted, m.sessions[id].Form)
		delete(m.sessions, id)
		log.Info().Str("session", id).Msg("evicted least recently used session")
	}
	return evicted
}
