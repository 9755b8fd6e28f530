package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/farm-protest-map/internal/domain"
	"github.com/couchcryptid/farm-protest-map/internal/observability"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrClosed is returned for requests to a session that has shut down.
	ErrClosed = errors.New("session closed")
	// ErrTimeIndexOutOfRange is returned when a scrub targets a week outside [1, T].
	ErrTimeIndexOutOfRange = errors.New("time index out of range")
)

// Event names used in transitions and metrics.
const (
	EventPress    = string(domain.EventPress)
	EventTick     = string(domain.EventTick)
	EventScrub    = string(domain.EventScrub)
	EventCategory = "category"
)

// View is everything a viewer needs to draw the dashboard after a transition.
type View struct {
	SessionID     string       `json:"session_id"`
	Mode          domain.Mode  `json:"mode"`
	ButtonLabel   string       `json:"button_label"`
	TimerEnabled  bool         `json:"timer_enabled"`
	TimeIndex     int          `json:"time_index"`
	WeekLabel     string       `json:"week_label"`
	Steps         int          `json:"steps"`
	Presses       int          `json:"presses"`
	Category      string       `json:"category"`
	CategoryLabel string       `json:"category_label"`
	Scene         domain.Scene `json:"scene"`
}

// Transition is the record handed to the Sink after every state change.
type Transition struct {
	SessionID string      `json:"session_id"`
	Event     string      `json:"event"`
	Mode      domain.Mode `json:"mode"`
	TimeIndex int         `json:"time_index"`
	WeekLabel string      `json:"week_label"`
	Category  string      `json:"category"`
	Presses   int         `json:"presses"`
	Markers   int         `json:"markers"`
	At        time.Time   `json:"at"`
}

// Sink receives transitions, e.g. for an analytics topic. Publish is called
// from the manager's publish goroutine, never from a session loop, with a
// context bounded by Options.PublishTimeout.
type Sink interface {
	Publish(ctx context.Context, t Transition) error
}

type request struct {
	event    string
	value    int
	category string
	reply    chan reply
}

type reply struct {
	view View
	err  error
}

// Session owns one viewer's animation state. All mutations run on a single
// goroutine that consumes requests and play ticks from one select loop, so
// presses, scrubs and ticks never interleave.
type Session struct {
	id       string
	table    *domain.Table
	clock    clockwork.Clock
	interval time.Duration
	pub      *publisher
	metrics  *observability.Metrics
	logger   *slog.Logger

	requests chan request
	done     chan struct{}

	lastActive atomic.Int64 // clock.Now().UnixNano() of the last request

	subMu sync.Mutex
	subs  map[chan View]struct{}

	// Owned by the run goroutine.
	anim     domain.Animation
	category string
}

func newSession(id string, table *domain.Table, clock clockwork.Clock, interval time.Duration, pub *publisher, metrics *observability.Metrics, logger *slog.Logger) *Session {
	s := &Session{
		id:       id,
		table:    table,
		clock:    clock,
		interval: interval,
		pub:      pub,
		metrics:  metrics,
		logger:   logger.With("session_id", id),
		requests: make(chan request),
		done:     make(chan struct{}),
		subs:     make(map[chan View]struct{}),
		anim:     domain.NewAnimation(table.Steps()),
		category: domain.AllProtests,
	}
	s.touch()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Done is closed once the session goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Press toggles play/pause.
func (s *Session) Press(ctx context.Context) (View, error) {
	return s.send(ctx, request{event: EventPress})
}

// Scrub jumps to a time index without changing play/pause.
func (s *Session) Scrub(ctx context.Context, timeIndex int) (View, error) {
	return s.send(ctx, request{event: EventScrub, value: timeIndex})
}

// SelectCategory changes the category filter.
func (s *Session) SelectCategory(ctx context.Context, category string) (View, error) {
	return s.send(ctx, request{event: EventCategory, category: category})
}

// View returns the current view without changing state.
func (s *Session) View(ctx context.Context) (View, error) {
	return s.send(ctx, request{})
}

// Subscribe returns a channel that receives the view after every transition,
// including ticks. Slow readers only see the latest view. The channel is
// closed by the returned cancel func or when the session ends.
func (s *Session) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 1)

	s.subMu.Lock()
	select {
	case <-s.done:
		s.subMu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
}

func (s *Session) subscribers() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs)
}

func (s *Session) touch() {
	s.lastActive.Store(s.clock.Now().UnixNano())
}

func (s *Session) idleSince() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) send(ctx context.Context, req request) (View, error) {
	req.reply = make(chan reply, 1)
	select {
	case s.requests <- req:
	case <-s.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.view, r.err
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// run is the session's event loop. It exits when ctx is cancelled.
func (s *Session) run(ctx context.Context) {
	var (
		ticker clockwork.Ticker
		ticks  <-chan time.Time
	)
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, ticks = nil, nil
		}
	}
	defer func() {
		stopTicker()
		close(s.done)
		s.closeSubscribers()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case req := <-s.requests:
			s.touch()
			view, err := s.handle(req)

			// The timer follows the mode after every request.
			switch {
			case s.anim.Playing() && ticker == nil:
				ticker = s.clock.NewTicker(s.interval)
				ticks = ticker.Chan()
				s.logger.Debug("play timer enabled", "interval", s.interval)
			case !s.anim.Playing() && ticker != nil:
				stopTicker()
				s.logger.Debug("play timer disabled")
			}
			req.reply <- reply{view: view, err: err}

		case <-ticks:
			// A tick already buffered when the timer was disabled is dropped.
			if !s.anim.Playing() {
				continue
			}
			s.anim, _ = domain.Reduce(s.anim, domain.Tick())
			s.commit(EventTick)
		}
	}
}

func (s *Session) handle(req request) (View, error) {
	switch req.event {
	case "":
		return s.view(), nil
	case EventPress:
		s.anim, _ = domain.Reduce(s.anim, domain.Press())
	case EventScrub:
		if req.value < 1 || req.value > s.anim.Steps {
			return View{}, fmt.Errorf("%w: %d not in [1, %d]", ErrTimeIndexOutOfRange, req.value, s.anim.Steps)
		}
		s.anim, _ = domain.Reduce(s.anim, domain.Scrub(req.value))
	case EventCategory:
		if !domain.IsCategory(req.category) {
			s.metrics.FilterErrors.Inc()
			return View{}, fmt.Errorf("%w: %q", domain.ErrInvalidCategory, req.category)
		}
		s.category = req.category
	default:
		return View{}, fmt.Errorf("unknown session event %q", req.event)
	}
	return s.commit(req.event), nil
}

// commit renders the new view, fans it out, and reports the transition.
func (s *Session) commit(event string) View {
	view := s.view()
	s.metrics.Transitions.WithLabelValues(event).Inc()
	s.logger.Debug("transition",
		"event", event,
		"mode", view.Mode,
		"time_index", view.TimeIndex,
		"category", view.Category,
		"markers", len(view.Scene.Markers),
	)
	s.broadcast(view)
	s.publish(Transition{
		SessionID: s.id,
		Event:     event,
		Mode:      view.Mode,
		TimeIndex: view.TimeIndex,
		WeekLabel: view.WeekLabel,
		Category:  view.Category,
		Presses:   view.Presses,
		Markers:   len(view.Scene.Markers),
		At:        s.clock.Now().UTC(),
	})
	return view
}

func (s *Session) view() View {
	// The category is validated before it is stored, so Filter cannot fail here.
	subset, _ := s.table.Filter(s.anim.TimeIndex, s.category)
	scene := domain.Render(subset)
	s.metrics.ScenesRendered.Inc()
	s.metrics.SceneMarkers.Observe(float64(len(scene.Markers)))

	out := s.anim.Output()
	week, _ := s.table.Week(s.anim.TimeIndex)
	return View{
		SessionID:     s.id,
		Mode:          out.Mode,
		ButtonLabel:   out.ButtonLabel,
		TimerEnabled:  out.TimerEnabled,
		TimeIndex:     out.TimeIndex,
		WeekLabel:     week.Label,
		Steps:         s.anim.Steps,
		Presses:       s.anim.Presses,
		Category:      s.category,
		CategoryLabel: domain.CategoryLabel(s.category),
		Scene:         scene,
	}
}

func (s *Session) broadcast(v View) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- v:
		default:
			// Replace the stale view the reader has not picked up yet.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}

func (s *Session) closeSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
}

func (s *Session) publish(t Transition) {
	if s.pub == nil {
		return
	}
	s.pub.enqueue(t)
}
