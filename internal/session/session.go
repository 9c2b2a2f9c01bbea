// Package session implements the per-user registration state machine:
// Idle → AwaitingDetails → AwaitingRecipients → Idle. State is ephemeral
// and process-local; a restart loses in-flight registrations, which is
// acceptable for a short interactive flow.
package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Yamamotonasu/remindbot/internal/domain"
)

// Stage of a user's registration flow.
type Stage int

const (
	StageIdle Stage = iota
	StageAwaitingDetails
	StageAwaitingRecipients
)

// Registration is the state collected across interaction turns.
type Registration struct {
	ChannelID      string
	Message        string
	ScheduledLocal time.Time
	ScheduledUTC   time.Time
}

type entry struct {
	stage Stage
	reg   Registration
	timer *time.Timer
	gen   uint64
}

// ExpireFunc is called when a pending registration times out before being
// finalized. It runs outside the manager lock.
type ExpireFunc func(userID string, reg Registration)

// Manager owns the registration map. At most one entry exists per user;
// starting a new registration replaces the old one and restarts its timer.
type Manager struct {
	mu       sync.Mutex
	ttl      time.Duration
	log      *zap.Logger
	onExpire ExpireFunc
	entries  map[string]*entry
	gen      uint64
}

// NewManager builds a Manager with the given idle timeout for the
// recipient-selection step.
func NewManager(ttl time.Duration, log *zap.Logger, onExpire ExpireFunc) *Manager {
	return &Manager{
		ttl:      ttl,
		log:      log,
		onExpire: onExpire,
		entries:  make(map[string]*entry),
	}
}

// Stage returns the user's current stage.
func (m *Manager) Stage(userID string) Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	if !ok {
		return StageIdle
	}
	return e.stage
}

// BeginDetails moves the user to AwaitingDetails. An in-flight registration
// is replaced silently.
func (m *Manager) BeginDetails(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.entries[userID]; ok {
		m.stopTimerLocked(old)
		m.log.Debug("replacing in-flight registration", zap.String("user", userID))
	}
	m.entries[userID] = &entry{stage: StageAwaitingDetails}
}

// AwaitRecipients stores the collected details and moves the user to
// AwaitingRecipients, starting (or restarting) the idle timer.
func (m *Manager) AwaitRecipients(userID string, reg Registration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.entries[userID]; ok {
		m.stopTimerLocked(old)
	}

	m.gen++
	e := &entry{stage: StageAwaitingRecipients, reg: reg, gen: m.gen}
	gen := m.gen
	e.timer = time.AfterFunc(m.ttl, func() { m.expire(userID, gen) })
	m.entries[userID] = e
}

// Registration returns the pending registration without consuming it.
// domain.ErrNoSession is returned if the user is not awaiting recipients.
func (m *Manager) Registration(userID string) (Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	if !ok || e.stage != StageAwaitingRecipients {
		return Registration{}, domain.ErrNoSession
	}
	return e.reg, nil
}

// Claim removes and returns the pending registration, stopping its timer in
// the same critical section. Once claimed, the idle timeout can no longer
// fire, so a finalizing caller never races the cancellation notice.
// domain.ErrNoSession is returned if the user is not awaiting recipients.
func (m *Manager) Claim(userID string) (Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	if !ok || e.stage != StageAwaitingRecipients {
		return Registration{}, domain.ErrNoSession
	}
	m.stopTimerLocked(e)
	delete(m.entries, userID)
	return e.reg, nil
}

// Clear removes the user's entry and stops its timer. Used on finalization
// so the timer cannot fire after the entry is gone.
func (m *Manager) Clear(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[userID]; ok {
		m.stopTimerLocked(e)
		delete(m.entries, userID)
	}
}

// expire is the timer callback. The generation check makes a stale timer
// (one whose entry was replaced or cleared) a no-op.
func (m *Manager) expire(userID string, gen uint64) {
	m.mu.Lock()
	e, ok := m.entries[userID]
	if !ok || e.stage != StageAwaitingRecipients || e.gen != gen {
		m.mu.Unlock()
		return
	}
	delete(m.entries, userID)
	reg := e.reg
	m.mu.Unlock()

	m.log.Info("registration timed out", zap.String("user", userID))
	if m.onExpire != nil {
		m.onExpire(userID, reg)
	}
}

func (m *Manager) stopTimerLocked(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}
