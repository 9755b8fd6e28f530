package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/farm-protest-map/internal/domain"
	"github.com/couchcryptid/farm-protest-map/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTooManySessions is returned when the session cap is reached.
	ErrTooManySessions = errors.New("too many sessions")
	// ErrShutdown is returned by Create after Shutdown.
	ErrShutdown = errors.New("session manager shut down")
)

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	PlayInterval time.Duration
	IdleTimeout  time.Duration
	MaxSessions  int

	// PublishQueueSize bounds the transitions waiting for the Sink.
	PublishQueueSize int
	// PublishTimeout bounds each Sink.Publish call.
	PublishTimeout time.Duration

	Clock   clockwork.Clock
	Sink    Sink
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

const (
	defaultPlayInterval = time.Second
	defaultIdleTimeout  = 30 * time.Minute
	defaultMaxSessions  = 1000

	defaultPublishQueueSize = 1024
	defaultPublishTimeout   = 5 * time.Second
)

// Manager is the application context shared by all handlers: the immutable
// dataset plus the live viewer sessions keyed by ID.
type Manager struct {
	table *domain.Table
	opts  Options
	pub   *publisher // nil without a Sink

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*managed
	closed   bool
	wg       sync.WaitGroup
}

type managed struct {
	session *Session
	cancel  context.CancelFunc
}

// NewManager creates a Manager over table.
func NewManager(table *domain.Table, opts Options) *Manager {
	if opts.PlayInterval <= 0 {
		opts.PlayInterval = defaultPlayInterval
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = defaultMaxSessions
	}
	if opts.PublishQueueSize <= 0 {
		opts.PublishQueueSize = defaultPublishQueueSize
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetricsForTesting()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	var pub *publisher
	if opts.Sink != nil {
		pub = newPublisher(opts.Sink, opts.PublishQueueSize, opts.PublishTimeout, opts.Metrics, opts.Logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		table:    table,
		opts:     opts,
		pub:      pub,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*managed),
	}
}

// Table returns the shared dataset.
func (m *Manager) Table() *domain.Table { return m.table }

// Scene filters and renders without touching any session.
func (m *Manager) Scene(timeIndex int, category string) (domain.Scene, error) {
	subset, err := m.table.Filter(timeIndex, category)
	if err != nil {
		m.opts.Metrics.FilterErrors.Inc()
		return domain.Scene{}, err
	}
	scene := domain.Render(subset)
	m.opts.Metrics.ScenesRendered.Inc()
	m.opts.Metrics.SceneMarkers.Observe(float64(len(scene.Markers)))
	return scene, nil
}

// Create starts a new paused session at week 1 with all protests selected.
func (m *Manager) Create() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrShutdown
	}
	if len(m.sessions) >= m.opts.MaxSessions {
		return nil, ErrTooManySessions
	}

	id := uuid.NewString()
	s := newSession(id, m.table, m.opts.Clock, m.opts.PlayInterval, m.pub, m.opts.Metrics, m.opts.Logger)
	ctx, cancel := context.WithCancel(m.ctx)
	m.sessions[id] = &managed{session: s, cancel: cancel}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		s.run(ctx)
	}()

	m.opts.Metrics.SessionsCreated.Inc()
	m.opts.Metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.opts.Logger.Info("session created", "session_id", id)
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return entry.session, nil
}

// Close stops a session and forgets it.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	entry, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		m.opts.Metrics.ActiveSessions.Set(float64(len(m.sessions)))
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	entry.cancel()
	<-entry.session.Done()
	m.opts.Logger.Info("session closed", "session_id", id)
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run reaps idle sessions until ctx is cancelled. A session with an open
// stream subscriber is never idle.
func (m *Manager) Run(ctx context.Context) {
	interval := m.opts.IdleTimeout / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := m.opts.Clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.ctx.Done():
			return
		case <-ticker.Chan():
			m.reap()
		}
	}
}

func (m *Manager) reap() {
	now := m.opts.Clock.Now()

	m.mu.Lock()
	var expired []*managed
	for id, entry := range m.sessions {
		if entry.session.subscribers() > 0 {
			continue
		}
		if now.Sub(entry.session.idleSince()) >= m.opts.IdleTimeout {
			delete(m.sessions, id)
			expired = append(expired, entry)
		}
	}
	m.opts.Metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	for _, entry := range expired {
		entry.cancel()
		m.opts.Metrics.SessionsExpired.Inc()
		m.opts.Logger.Info("session expired", "session_id", entry.session.ID())
	}
}

// CheckReadiness reports whether the manager accepts new sessions.
func (m *Manager) CheckReadiness(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrShutdown
	}
	return nil
}

// Shutdown stops every session, waits for their goroutines to exit, then
// flushes queued transitions to the Sink.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	n := len(m.sessions)
	m.sessions = make(map[string]*managed)
	m.opts.Metrics.ActiveSessions.Set(0)
	m.mu.Unlock()

	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.opts.Logger.Info("sessions stopped", "count", n)
	case <-ctx.Done():
		return ctx.Err()
	}

	if m.pub != nil {
		return m.pub.close(ctx)
	}
	return nil
}
