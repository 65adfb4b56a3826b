// Package session manages conversation sessions: opaque bearer tokens,
// per-session source selection, expiry, and graceful drain.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/versevox/versevox/pkg/core"
	"github.com/versevox/versevox/pkg/store"
)

// Mode selects which query engine a session is driving.
type Mode string

const (
	ModeSingle  Mode = "single"
	ModeCompare Mode = "compare"
)

const (
	MinCompareSources = 2
	MaxCompareSources = 4
)

// Session is a snapshot of one conversation's server-side state.
type Session struct {
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time

	Mode Mode
	// SourceIDs preserves selection order; it drives comparison column order.
	SourceIDs []string
}

func (s *Session) snapshot() *Session {
	out := *s
	out.SourceIDs = append([]string(nil), s.SourceIDs...)
	return &out
}

// Manager owns all live sessions for a single process.
type Manager struct {
	ttl     time.Duration
	chunks  store.ChunkStore
	logger  *slog.Logger
	tracker *Tracker

	mu       sync.Mutex
	sessions map[string]*Session
	unreg    map[string]func()
}

func NewManager(chunks store.ChunkStore, ttl time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		ttl:      ttl,
		chunks:   chunks,
		logger:   logger,
		tracker:  NewTracker(),
		sessions: make(map[string]*Session),
		unreg:    make(map[string]func()),
	}
}

// Create opens a new session and returns its snapshot. The token is the only
// credential; clients present it as a Bearer header on every later call.
func (m *Manager) Create() *Session {
	now := time.Now()
	sess := &Session{
		Token:     "sess_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	m.mu.Lock()
	m.sessions[sess.Token] = sess
	m.unreg[sess.Token] = m.tracker.Register(sess.Token, Handle{
		Cancel: func() { m.End(sess.Token) },
	})
	m.mu.Unlock()

	m.logger.Info("session created", "expires_at", sess.ExpiresAt)
	return sess.snapshot()
}

// Get resolves a token to its session. Unknown and expired tokens are
// indistinguishable to the caller.
func (m *Manager) Get(token string) (*Session, error) {
	m.mu.Lock()
	sess, ok := m.sessions[token]
	if ok && time.Now().After(sess.ExpiresAt) {
		m.evictLocked(token)
		ok = false
	}
	if !ok {
		m.mu.Unlock()
		return nil, core.NewAuthenticationError("invalid or expired session token")
	}
	out := sess.snapshot()
	m.mu.Unlock()
	return out, nil
}

// SelectSources sets the session's mode and source selection. Source order is
// preserved exactly as given.
func (m *Manager) SelectSources(ctx context.Context, token string, mode Mode, sourceIDs []string) (*Session, error) {
	switch mode {
	case ModeSingle:
		if len(sourceIDs) != 1 {
			return nil, core.NewInvalidRequestErrorWithParam("single mode requires exactly one source", "source_ids")
		}
	case ModeCompare:
		if len(sourceIDs) < MinCompareSources || len(sourceIDs) > MaxCompareSources {
			return nil, core.NewInvalidRequestErrorWithParam(
				fmt.Sprintf("compare mode requires between %d and %d sources", MinCompareSources, MaxCompareSources),
				"source_ids")
		}
	default:
		return nil, core.NewInvalidRequestErrorWithParam("mode must be \"single\" or \"compare\"", "mode")
	}

	seen := make(map[string]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		if strings.TrimSpace(id) == "" {
			return nil, core.NewInvalidRequestErrorWithParam("source id must not be empty", "source_ids")
		}
		if _, dup := seen[id]; dup {
			return nil, core.NewInvalidRequestErrorWithParam("source ids must be unique", "source_ids")
		}
		seen[id] = struct{}{}

		if _, err := m.chunks.GetSource(ctx, id); err != nil {
			if errors.Is(err, store.ErrSourceNotFound) {
				return nil, core.NewNotFoundError(fmt.Sprintf("source %q not found", id))
			}
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[token]
	if !ok || time.Now().After(sess.ExpiresAt) {
		if ok {
			m.evictLocked(token)
		}
		return nil, core.NewAuthenticationError("invalid or expired session token")
	}

	sess.Mode = mode
	sess.SourceIDs = append([]string(nil), sourceIDs...)
	return sess.snapshot(), nil
}

// End invalidates a token immediately. Ending an unknown token is a no-op.
func (m *Manager) End(token string) {
	m.mu.Lock()
	_, ok := m.sessions[token]
	if ok {
		m.evictLocked(token)
	}
	m.mu.Unlock()
	if ok {
		m.logger.Info("session ended")
	}
}

// evictLocked removes a session and releases its tracker slot.
func (m *Manager) evictLocked(token string) {
	delete(m.sessions, token)
	if unreg := m.unreg[token]; unreg != nil {
		delete(m.unreg, token)
		// The tracker takes its own lock and never calls back into the manager.
		unreg()
	}
}

// ActiveCount reports live (unexpired) sessions.
func (m *Manager) ActiveCount() int {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, sess := range m.sessions {
		if now.Before(sess.ExpiresAt) {
			n++
		}
	}
	return n
}

// Sweep evicts expired sessions and reports how many were removed.
func (m *Manager) Sweep() int {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for token, sess := range m.sessions {
		if now.After(sess.ExpiresAt) {
			m.evictLocked(token)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on a ticker until ctx is done.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := m.Sweep(); n > 0 {
					m.logger.Info("expired sessions swept", "count", n)
				}
			}
		}
	}()
}

// Drain ends every live session and waits for the tracker to empty, or for
// ctx. Used on shutdown.
func (m *Manager) Drain(ctx context.Context) bool {
	m.tracker.CancelAll()
	return m.tracker.Wait(ctx)
}
