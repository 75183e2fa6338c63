package api

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/duckmesh/duckviz/internal/chart"
	"github.com/duckmesh/duckviz/internal/conversation"
	"github.com/duckmesh/duckviz/internal/dataset"
	"github.com/duckmesh/duckviz/internal/observability"
	"github.com/duckmesh/duckviz/internal/sandbox"
)

var ErrSessionNotFound = errors.New("session not found")

const (
	removedIdle     = "idle"
	removedCapacity = "capacity"
	removedDeleted  = "deleted"
)

type SessionOptions struct {
	Generator    conversation.Generator
	Runner       Runner
	Conversation conversation.Options
	IdleTTL      time.Duration
	// MaxSessions caps the registry; the least recently used session is
	// dropped to make room. Zero means unbounded.
	MaxSessions int
	Logger      *slog.Logger
}

// SessionRegistry holds conversation sessions in memory. Questions within a
// session are serialized; different sessions proceed in parallel.
type SessionRegistry struct {
	opts SessionOptions
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

type Session struct {
	ID        string
	Datasets  []string
	CreatedAt time.Time

	mu         sync.Mutex
	lastUsed   time.Time
	controller *conversation.Controller
	recorder   *recordingExecutor
}

type SessionView struct {
	ID        string              `json:"session_id"`
	Datasets  []string            `json:"datasets"`
	CreatedAt time.Time           `json:"created_at"`
	LastUsed  time.Time           `json:"last_used"`
	History   []conversation.Turn `json:"history"`
}

// Answer is one answered question together with the execution that
// produced it.
type Answer struct {
	Exchange  conversation.Exchange
	Execution *sandbox.Execution
	History   []conversation.Turn
}

func NewSessionRegistry(opts SessionOptions) *SessionRegistry {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &SessionRegistry{opts: opts, now: time.Now, sessions: make(map[string]*Session)}
}

func (r *SessionRegistry) Create(datasets []string) SessionView {
	recorder := &recordingExecutor{runner: r.opts.Runner}
	now := r.now()
	session := &Session{
		ID:         uuid.NewString(),
		Datasets:   append([]string(nil), datasets...),
		CreatedAt:  now,
		lastUsed:   now,
		controller: conversation.NewController(r.opts.Generator, recorder, r.opts.Conversation, r.opts.Logger),
		recorder:   recorder,
	}

	r.mu.Lock()
	if r.opts.MaxSessions > 0 {
		for len(r.sessions) >= r.opts.MaxSessions {
			r.removeLocked(r.leastRecentlyUsedLocked(), removedCapacity)
		}
	}
	r.sessions[session.ID] = session
	observability.SetActiveSessions(len(r.sessions))
	r.mu.Unlock()

	r.opts.Logger.Info("session created", slog.String("session_id", session.ID))
	return session.view()
}

func (r *SessionRegistry) Get(id string) (SessionView, error) {
	session, err := r.lookup(id)
	if err != nil {
		return SessionView{}, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.view(), nil
}

// Ask answers question within the session. Datasets overrides the session's
// selection for this question only when non-empty.
func (r *SessionRegistry) Ask(ctx context.Context, id, question string, tables dataset.Set) (Answer, error) {
	session, err := r.lookup(id)
	if err != nil {
		return Answer{}, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()

	session.recorder.last = nil
	exchange, err := session.controller.Ask(ctx, question, tables)
	session.lastUsed = r.now()
	answer := Answer{Exchange: exchange, Execution: session.recorder.last, History: session.controller.History()}
	return answer, err
}

func (r *SessionRegistry) Reset(id string) error {
	session, err := r.lookup(id)
	if err != nil {
		return err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	session.controller.Reset()
	session.lastUsed = r.now()
	return nil
}

func (r *SessionRegistry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	r.removeLocked(id, removedDeleted)
	return nil
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes sessions idle for longer than the configured TTL and
// reports how many were removed.
func (r *SessionRegistry) Sweep() int {
	if r.opts.IdleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.opts.IdleTTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, session := range r.sessions {
		if !session.mu.TryLock() {
			continue
		}
		idle := session.lastUsed.Before(cutoff)
		session.mu.Unlock()
		if idle {
			r.removeLocked(id, removedIdle)
			removed++
		}
	}
	return removed
}

// Run sweeps idle sessions every interval until ctx is done.
func (r *SessionRegistry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.opts.Logger.Info("idle sessions evicted", slog.Int("count", n))
			}
		}
	}
}

func (r *SessionRegistry) lookup(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (r *SessionRegistry) leastRecentlyUsedLocked() string {
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	now := r.now()
	seen := make(map[string]time.Time, len(ids))
	for _, id := range ids {
		seen[id] = r.sessions[id].lastSeen(now)
	}
	sort.Slice(ids, func(i, j int) bool {
		return seen[ids[i]].Before(seen[ids[j]])
	})
	return ids[0]
}

func (r *SessionRegistry) removeLocked(id, reason string) {
	delete(r.sessions, id)
	observability.SetActiveSessions(len(r.sessions))
	observability.ObserveSessionRemoved(reason)
	r.opts.Logger.Info("session removed", slog.String("session_id", id), slog.String("reason", reason))
}

// lastSeen reads lastUsed without waiting on a question in flight; a busy
// session counts as used at now.
func (s *Session) lastSeen(now time.Time) time.Time {
	if !s.mu.TryLock() {
		return now
	}
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Session) view() SessionView {
	return SessionView{
		ID:        s.ID,
		Datasets:  append([]string(nil), s.Datasets...),
		CreatedAt: s.CreatedAt,
		LastUsed:  s.lastUsed,
		History:   s.controller.History(),
	}
}

// recordingExecutor adapts a Runner to conversation.Executor and keeps the
// last execution so callers can report its id, output and timing.
type recordingExecutor struct {
	runner Runner
	last   *sandbox.Execution
}

func (e *recordingExecutor) Execute(ctx context.Context, code string, tables dataset.Set) (chart.Result, error) {
	execution := e.runner.Run(ctx, code, tables)
	e.last = execution
	if execution.Err != nil {
		return chart.Result{}, execution.Err
	}
	return execution.Result, nil
}
