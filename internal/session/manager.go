package session

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultMaxTurns       = 20
	DefaultTTL            = 2 * time.Hour
	DefaultSweepThreshold = 100
)

// Options configures a Manager. Zero values fall back to the defaults above.
type Options struct {
	MaxTurns int
	TTL      time.Duration
	// SweepThreshold triggers an idle sweep whenever a new session pushes the
	// session count above it. Negative disables opportunistic sweeps.
	SweepThreshold int
	// Now is the clock used to stamp turns. Defaults to time.Now.
	Now func() time.Time
}

// Manager owns every conversation held by the process. All access goes
// through its methods; callers only ever see copies.
type Manager struct {
	mu             sync.RWMutex
	sessions       map[string]*Session
	maxTurns       int
	ttl            time.Duration
	sweepThreshold int
	now            func() time.Time
	onExpire       func(Session)
}

func NewManager(opts Options) *Manager {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SweepThreshold == 0 {
		opts.SweepThreshold = DefaultSweepThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		sessions:       make(map[string]*Session),
		maxTurns:       opts.MaxTurns,
		ttl:            opts.TTL,
		sweepThreshold: opts.SweepThreshold,
		now:            opts.Now,
	}
}

// SetExpireHook registers a callback invoked for each session removed by an
// idle sweep. It runs outside the manager lock.
func (m *Manager) SetExpireHook(hook func(Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// MaxTurns reports the per-session turn cap.
func (m *Manager) MaxTurns() int { return m.maxTurns }

// TTL reports the idle timeout.
func (m *Manager) TTL() time.Duration { return m.ttl }

// GetOrCreate returns the session for id, creating an empty one if absent.
// It does not refresh LastActivity of an existing session. Whenever the
// session count is above SweepThreshold, idle sessions are swept first; a
// requested session that was itself idle comes back empty.
func (m *Manager) GetOrCreate(id string) Session {
	var expired []Session

	m.mu.Lock()
	now := m.now()
	if m.sweepThreshold > 0 && len(m.sessions) > m.sweepThreshold {
		expired = m.sweepLocked(now)
	}
	s, ok := m.sessions[id]
	if !ok {
		s = &Session{ID: id, LastActivity: now}
		m.sessions[id] = s
		if m.sweepThreshold > 0 && len(m.sessions) > m.sweepThreshold {
			expired = append(expired, m.sweepLocked(now)...)
		}
	}
	out := clone(s)
	hook := m.onExpire
	m.mu.Unlock()

	notify(hook, expired)
	return out
}

// Get returns the session for id without creating it.
func (m *Manager) Get(id string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	return clone(s), true
}

// AppendTurn records one turn stamped with the current instant, refreshes
// LastActivity and keeps only the most recent MaxTurns entries.
func (m *Manager) AppendTurn(id string, role Role, content string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.appendLocked(id, Turn{Role: role, Content: content, Timestamp: m.now()})
	return clone(s)
}

// AppendExchange records a user message and the assistant reply under a
// single lock so readers never observe half of an exchange.
func (m *Manager) AppendExchange(id, userMessage, reply string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(id, Turn{Role: RoleUser, Content: userMessage, Timestamp: m.now()})
	s := m.appendLocked(id, Turn{Role: RoleAssistant, Content: reply, Timestamp: m.now()})
	return clone(s)
}

// Clear removes the session and reports whether it existed. Clearing an
// absent session is a no-op.
func (m *Manager) Clear(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// SweepIdle removes every session whose last activity is more than TTL
// before now and returns how many were removed.
func (m *Manager) SweepIdle(now time.Time) int {
	m.mu.Lock()
	expired := m.sweepLocked(now)
	hook := m.onExpire
	m.mu.Unlock()

	notify(hook, expired)
	return len(expired)
}

// StartJanitor sweeps idle sessions every interval until ctx is done.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.SweepIdle(m.now())
			}
		}
	}()
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) appendLocked(id string, turn Turn) *Session {
	s, ok := m.sessions[id]
	if !ok {
		// Evicted between GetOrCreate and append; start over.
		s = &Session{ID: id}
		m.sessions[id] = s
	}
	s.Turns = append(s.Turns, turn)
	if over := len(s.Turns) - m.maxTurns; over > 0 {
		kept := make([]Turn, m.maxTurns)
		copy(kept, s.Turns[over:])
		s.Turns = kept
	}
	s.LastActivity = turn.Timestamp
	return s
}

func (m *Manager) sweepLocked(now time.Time) []Session {
	var expired []Session
	for id, s := range m.sessions {
		if now.Sub(s.LastActivity) <= m.ttl {
			continue
		}
		expired = append(expired, clone(s))
		delete(m.sessions, id)
	}
	return expired
}

func notify(hook func(Session), expired []Session) {
	if hook == nil {
		return
	}
	for _, s := range expired {
		hook(s)
	}
}

func clone(s *Session) Session {
	c := *s
	if s.Turns != nil {
		c.Turns = make([]Turn, len(s.Turns))
		copy(c.Turns, s.Turns)
	}
	return c
}
