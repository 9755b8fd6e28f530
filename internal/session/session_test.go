package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/farm-protest-map/internal/domain"
	"github.com/couchcryptid/farm-protest-map/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInterval = time.Second

func testRecord(timeIndex int, label string, lat, lon float64, note string, categories ...string) domain.Record {
	flags := map[string]bool{domain.AllProtests: true}
	for _, c := range categories {
		flags[c] = true
	}
	return domain.Record{TimeIndex: timeIndex, WeekLabel: label, Flags: flags, Geo: domain.Geo{Lat: lat, Lon: lon}, Note: note}
}

// testTable has three weeks; week 1 has two protests, one about subsidy cuts.
func testTable(t *testing.T) *domain.Table {
	t.Helper()
	tbl, err := domain.NewTable([]domain.Record{
		testRecord(1, "2023-50", 48.85, 2.35, "Paris tractors", "Subsidy_Cuts"),
		testRecord(1, "2023-50", 50.85, 4.35, "Brussels blockade"),
		testRecord(2, "2023-51", 52.52, 13.40, "Berlin rally", "Rising_Production_Costs"),
		testRecord(3, "2024-01", 40.42, -3.70, "Madrid march"),
	}, []domain.Week{
		{Index: 1, Label: "2023-50"},
		{Index: 2, Label: "2023-51"},
		{Index: 3, Label: "2024-01"},
	})
	require.NoError(t, err)
	return tbl
}

type recordingSink struct {
	mu          sync.Mutex
	transitions []Transition
	err         error
}

func (r *recordingSink) Publish(_ context.Context, t Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
	return r.err
}

func (r *recordingSink) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.transitions))
	for i, t := range r.transitions {
		out[i] = t.Event
	}
	return out
}

type fixture struct {
	manager *Manager
	clock   *clockwork.FakeClock
	metrics *observability.Metrics
	sink    *recordingSink
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, time.February, 1, 12, 0, 0, 0, time.UTC))
	metrics := observability.NewMetricsForTesting()
	sink := &recordingSink{}
	opts.Clock = clock
	opts.Metrics = metrics
	if opts.Sink == nil {
		opts.Sink = sink
	}
	if opts.PlayInterval == 0 {
		opts.PlayInterval = testInterval
	}
	m := NewManager(testTable(t), opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return fixture{manager: m, clock: clock, metrics: metrics, sink: sink}
}

func nextView(t *testing.T, ch <-chan View) View {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for view")
	}
	return View{}
}

func TestSession_InitialView(t *testing.T) {
	f := newFixture(t, Options{})
	s, err := f.manager.Create()
	require.NoError(t, err)

	v, err := s.View(context.Background())
	require.NoError(t, err)

	assert.Equal(t, s.ID(), v.SessionID)
	assert.Equal(t, domain.ModePaused, v.Mode)
	assert.Equal(t, domain.LabelPlay, v.ButtonLabel)
	assert.False(t, v.TimerEnabled)
	assert.Equal(t, 1, v.TimeIndex)
	assert.Equal(t, "2023-50", v.WeekLabel)
	assert.Equal(t, 3, v.Steps)
	assert.Equal(t, domain.AllProtests, v.Category)
	assert.Equal(t, "All Protests", v.CategoryLabel)
	assert.Len(t, v.Scene.Markers, 2)
	assert.Empty(t, f.sink.events(), "reading the view is not a transition")
}

func TestSession_PlayAdvancesAndWraps(t *testing.T) {
	f := newFixture(t, Options{})
	s, err := f.manager.Create()
	require.NoError(t, err)
	ctx := context.Background()

	views, cancel := s.Subscribe()
	defer cancel()

	v, err := s.Press(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ModePlaying, v.Mode)
	assert.Equal(t, domain.LabelPause, v.ButtonLabel)
	assert.True(t, v.TimerEnabled)
	assert.Equal(t, 1, nextView(t, views).TimeIndex)

	for _, want := range []int{2, 3, 1, 2} {
		f.clock.Advance(testInterval)
		got := nextView(t, views)
		assert.Equal(t, want, got.TimeIndex)
		assert.Equal(t, domain.ModePlaying, got.Mode)
	}
	assert.InDelta(t, 4, testutil.ToFloat64(f.metrics.Transitions.WithLabelValues(EventTick)), 0)
}

func TestSession_SecondPressStopsTimer(t *testing.T) {
	f := newFixture(t, Options{})
	s, err := f.manager.Create()
	require.NoError(t, err)
	ctx := context.Background()

	views, cancel := s.Subscribe()
	defer cancel()

	_, err = s.Press(ctx)
	require.NoError(t, err)
	nextView(t, views)
	f.clock.Advance(testInterval)
	assert.Equal(t, 2, nextView(t, views).TimeIndex)

	v, err := s.Press(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ModePaused, v.Mode)
	assert.Equal(t, domain.LabelPlay, v.ButtonLabel)
	assert.False(t, v.TimerEnabled)
	assert.Equal(t, 2, v.Presses)
	nextView(t, views)

	f.clock.Advance(5 * testInterval)
	v, err = s.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v.TimeIndex, "paused animation must not advance")

	// Third press resumes from where it stopped.
	v, err = s.Press(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ModePlaying, v.Mode)
	nextView(t, views)
	f.clock.Advance(testInterval)
	assert.Equal(t, 3, nextView(t, views).TimeIndex)
}

func TestSession_ScrubKeepsMode(t *testing.T) {
	t.Run("while playing", func(t *testing.T) {
		f := newFixture(t, Options{})
		s, err := f.manager.Create()
		require.NoError(t, err)
		ctx := context.Background()

		views, cancel := s.Subscribe()
		defer cancel()

		_, err = s.Press(ctx)
		require.NoError(t, err)
		nextView(t, views)

		v, err := s.Scrub(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, 3, v.TimeIndex)
		assert.Equal(t, domain.ModePlaying, v.Mode)
		assert.Equal(t, "2024-01", v.WeekLabel)
		nextView(t, views)

		f.clock.Advance(testInterval)
		assert.Equal(t, 1, nextView(t, views).TimeIndex)
	})

	t.Run("while paused", func(t *testing.T) {
		f := newFixture(t, Options{})
		s, err := f.manager.Create()
		require.NoError(t, err)

		v, err := s.Scrub(context.Background(), 2)
		require.NoError(t, err)
		assert.Equal(t, 2, v.TimeIndex)
		assert.Equal(t, domain.ModePaused, v.Mode)
		assert.Equal(t, 0, v.Presses)
		require.Len(t, v.Scene.Markers, 1)
		assert.Equal(t, "Berlin rally", v.Scene.Markers[0].HoverText)
	})
}

func TestSession_ScrubOutOfRange(t *testing.T) {
	f := newFixture(t, Options{})
	s, err := f.manager.Create()
	require.NoError(t, err)
	ctx := context.Background()

	for _, idx := range []int{0, -1, 4} {
		_, err := s.Scrub(ctx, idx)
		require.ErrorIs(t, err, ErrTimeIndexOutOfRange, "index %d", idx)
	}

	v, err := s.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v.TimeIndex)
}

func TestSession_SelectCategory(t *testing.T) {
	f := newFixture(t, Options{})
	s, err := f.manager.Create()
	require.NoError(t, err)
	ctx := context.Background()

	v, err := s.SelectCategory(ctx, "Subsidy_Cuts")
	require.NoError(t, err)
	assert.Equal(t, "Subsidy_Cuts", v.Category)
	assert.Equal(t, "Subsidy Cuts", v.CategoryLabel)
	require.Len(t, v.Scene.Markers, 1)
	assert.Equal(t, "Paris tractors", v.Scene.Markers[0].HoverText)

	_, err = s.SelectCategory(ctx, "Tractor_Parades")
	require.ErrorIs(t, err, domain.ErrInvalidCategory)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.FilterErrors), 0)

	v, err = s.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Subsidy_Cuts", v.Category, "invalid selection keeps the previous category")

	// Category survives week changes.
	v, err = s.Scrub(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Subsidy_Cuts", v.Category)
	assert.Empty(t, v.Scene.Markers)
}

func TestSession_PublishesTransitions(t *testing.T) {
	f := newFixture(t, Options{})
	s, err := f.manager.Create()
	require.NoError(t, err)
	ctx := context.Background()

	views, cancel := s.Subscribe()
	defer cancel()

	_, err = s.Press(ctx)
	require.NoError(t, err)
	nextView(t, views)
	f.clock.Advance(testInterval)
	nextView(t, views)
	_, err = s.Scrub(ctx, 3)
	require.NoError(t, err)
	_, err = s.SelectCategory(ctx, "Solidarity_Movements")
	require.NoError(t, err)

	want := []string{EventPress, EventTick, EventScrub, EventCategory}
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, f.sink.events())
	}, 2*time.Second, 5*time.Millisecond)

	f.sink.mu.Lock()
	tick := f.sink.transitions[1]
	f.sink.mu.Unlock()
	assert.Equal(t, s.ID(), tick.SessionID)
	assert.Equal(t, 2, tick.TimeIndex)
	assert.Equal(t, "2023-51", tick.WeekLabel)
	assert.Equal(t, 1, tick.Markers)
	assert.Equal(t, domain.ModePlaying, tick.Mode)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.TransitionsPublished) == 4
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSession_PublishErrorDoesNotFailTransition(t *testing.T) {
	f := newFixture(t, Options{})
	f.sink.err = assert.AnError
	s, err := f.manager.Create()
	require.NoError(t, err)

	v, err := s.Press(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ModePlaying, v.Mode)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.PublishErrors) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, testutil.ToFloat64(f.metrics.TransitionsPublished))
}

// blockingSink holds every Publish call until release is closed.
type blockingSink struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingSink() *blockingSink {
	return &blockingSink{entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingSink) Publish(ctx context.Context, _ Transition) error {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestSession_BlockedSinkDoesNotDelayTransitions(t *testing.T) {
	sink := newBlockingSink()
	f := newFixture(t, Options{Sink: sink, PublishQueueSize: 1, PublishTimeout: time.Minute})
	s, err := f.manager.Create()
	require.NoError(t, err)

	press := func() View {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		v, err := s.Press(ctx)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, domain.ModePlaying, press().Mode)
	select {
	case <-sink.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("sink never called")
	}

	// The sink is stuck on the first transition: the second fills the
	// queue and the third is dropped.
	assert.Equal(t, domain.ModePaused, press().Mode)
	assert.Equal(t, domain.ModePlaying, press().Mode)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.TransitionsDropped), 0)

	close(sink.release)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.TransitionsPublished) == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSession_PublishTimeoutCountsAsError(t *testing.T) {
	sink := newBlockingSink()
	f := newFixture(t, Options{Sink: sink, PublishTimeout: 10 * time.Millisecond})
	s, err := f.manager.Create()
	require.NoError(t, err)

	_, err = s.Press(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.PublishErrors) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, testutil.ToFloat64(f.metrics.TransitionsDropped))
}

func TestManager_ShutdownFlushesQueuedTransitions(t *testing.T) {
	f := newFixture(t, Options{})
	s, err := f.manager.Create()
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Press(ctx)
	require.NoError(t, err)
	_, err = s.Scrub(ctx, 2)
	require.NoError(t, err)

	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, f.manager.Shutdown(sctx))
	assert.Equal(t, []string{EventPress, EventScrub}, f.sink.events())
	require.NoError(t, f.manager.Shutdown(sctx), "second shutdown is a no-op")
}

func TestSession_LatestViewWins(t *testing.T) {
	f := newFixture(t, Options{})
	s, err := f.manager.Create()
	require.NoError(t, err)
	ctx := context.Background()

	views, cancel := s.Subscribe()
	defer cancel()

	for _, idx := range []int{2, 3, 2} {
		_, err := s.Scrub(ctx, idx)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, nextView(t, views).TimeIndex)
	select {
	case v := <-views:
		t.Fatalf("unexpected extra view %+v", v)
	default:
	}
}

func TestSession_ClosedSession(t *testing.T) {
	f := newFixture(t, Options{})
	s, err := f.manager.Create()
	require.NoError(t, err)

	views, _ := s.Subscribe()
	require.NoError(t, f.manager.Close(s.ID()))

	_, ok := <-views
	assert.False(t, ok, "subscription closes with the session")

	_, err = s.Press(context.Background())
	require.ErrorIs(t, err, ErrClosed)

	late, _ := s.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}

func TestSession_RequestContextCancelled(t *testing.T) {
	f := newFixture(t, Options{})
	s, err := f.manager.Create()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.View(ctx)
	if err != nil {
		require.ErrorIs(t, err, context.Canceled)
	}
}

func TestSession_EmptyDataset(t *testing.T) {
	tbl, err := domain.NewTable(nil, nil)
	require.NoError(t, err)
	clock := clockwork.NewFakeClock()
	m := NewManager(tbl, Options{Clock: clock, PlayInterval: testInterval})
	defer func() { _ = m.Shutdown(context.Background()) }()

	s, err := m.Create()
	require.NoError(t, err)
	views, cancel := s.Subscribe()
	defer cancel()

	v, err := s.Press(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, v.Steps)
	assert.Empty(t, v.WeekLabel)
	nextView(t, views)

	clock.Advance(testInterval)
	v = nextView(t, views)
	assert.Equal(t, 1, v.TimeIndex)
	assert.Empty(t, v.Scene.Markers)
	assert.Equal(t, domain.BasemapStyle, v.Scene.Basemap.Style)
}
