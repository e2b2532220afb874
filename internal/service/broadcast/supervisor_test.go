package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sharetube/studio/internal/encoder"
	"github.com/sharetube/studio/internal/events"
	"github.com/sharetube/studio/internal/fault"
	"github.com/sharetube/studio/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWorker struct {
	preset   media.Preset
	done     chan struct{}
	once     sync.Once
	exit     atomic.Pointer[encoder.ExitInfo]
	frames   atomic.Int64
	blocks   atomic.Int64
	stalled  atomic.Bool
	degraded atomic.Bool
	stops    atomic.Int32
}

func newFakeWorker(p media.Preset) *fakeWorker {
	return &fakeWorker{preset: p, done: make(chan struct{})}
}

func (w *fakeWorker) exitWith(info *encoder.ExitInfo) {
	w.once.Do(func() {
		info.At = time.Now()
		w.exit.Store(info)
		close(w.done)
	})
}

func (w *fakeWorker) kill() {
	w.exitWith(&encoder.ExitInfo{Code: -1, Reason: fault.WorkerExited, Error: "signal: killed"})
}

func (w *fakeWorker) FeedVideo(*media.Frame)     { w.frames.Add(1) }
func (w *fakeWorker) FeedAudio(media.AudioBlock) { w.blocks.Add(1) }

func (w *fakeWorker) Stop(time.Duration) error {
	w.stops.Add(1)
	w.exitWith(&encoder.ExitInfo{Reason: fault.WorkerExited, Requested: true})
	return nil
}

func (w *fakeWorker) Abort(reason *fault.Error) {
	w.exitWith(&encoder.ExitInfo{Code: -1, Reason: reason.Code})
}

func (w *fakeWorker) Done() <-chan struct{}       { return w.done }
func (w *fakeWorker) ExitInfo() *encoder.ExitInfo { return w.exit.Load() }
func (w *fakeWorker) Degraded() bool              { return w.degraded.Load() }
func (w *fakeWorker) Stalled(time.Duration) bool  { return w.stalled.Load() }
func (w *fakeWorker) Health() encoder.Health      { return encoder.Health{Running: w.ExitInfo() == nil} }

type fakeSpawner struct {
	mu      sync.Mutex
	workers map[string][]*fakeWorker
	// failAfter makes every spawn past the n-th for a tag fail; zero never fails.
	failAfter  int
	dieOnStart bool
	// gate, when set, holds every spawn until it is closed.
	gate    chan struct{}
	entered chan string
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{workers: map[string][]*fakeWorker{}}
}

func (f *fakeSpawner) Spawn(_ context.Context, target encoder.Target, preset media.Preset) (Worker, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		f.entered <- target.Platform
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failAfter > 0 && len(f.workers[target.Platform]) >= f.failAfter {
		return nil, fault.WithMessage(encoder.ErrSpawnFailed, "exec: no such file")
	}
	w := newFakeWorker(preset)
	if f.dieOnStart {
		w.kill()
	}
	f.workers[target.Platform] = append(f.workers[target.Platform], w)
	return w, nil
}

func (f *fakeSpawner) hold() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan string, 8)
	return f.gate
}

func (f *fakeSpawner) last(tag string) *fakeWorker {
	f.mu.Lock()
	defer f.mu.Unlock()
	ws := f.workers[tag]
	if len(ws) == 0 {
		return nil
	}
	return ws[len(ws)-1]
}

func (f *fakeSpawner) count(tag string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.workers[tag])
}

type recorder struct {
	mu      sync.Mutex
	changes []StatusChange
	kinds   []events.Kind
}

func (r *recorder) Publish(_ context.Context, kind events.Kind, payload any) events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	if c, ok := payload.(StatusChange); ok {
		r.changes = append(r.changes, c)
	}
	return events.Event{Kind: kind, Payload: payload}
}

func (r *recorder) states(tag string) []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []State
	for _, c := range r.changes {
		if c.Tag == tag {
			out = append(out, c.To)
		}
	}
	return out
}

func (r *recorder) terminal(tag string) []StatusChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []StatusChange
	for _, c := range r.changes {
		if c.Tag == tag && c.Terminal {
			out = append(out, c)
		}
	}
	return out
}

func (r *recorder) has(kind events.Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func testConfig() Config {
	return Config{
		Retries:         3,
		Backoff:         20 * time.Millisecond,
		StopGrace:       time.Second,
		LiveGrace:       10 * time.Millisecond,
		MonitorInterval: 5 * time.Millisecond,
		StallTimeout:    time.Second,
	}
}

func platform(tag string) PlatformConfig {
	return PlatformConfig{
		Tag:         tag,
		IngestURL:   "rtmp://ingest.example.com/live",
		Secret:      "secret-" + tag,
		AutoRestart: true,
	}
}

func newTestSupervisor(t *testing.T, spawner Spawner) (*Supervisor, *recorder) {
	t.Helper()

	rec := &recorder{}
	s := NewSupervisor(testConfig(), spawner, rec, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		s.StopAll(context.Background())
		cancel()
		<-done
	})

	return s, rec
}

func stateOf(s *Supervisor, tag string) (BindingStatus, bool) {
	for _, b := range s.Status().Bindings {
		if b.Tag == tag {
			return b, true
		}
	}
	return BindingStatus{}, false
}

func waitState(t *testing.T, s *Supervisor, tag string, want State) BindingStatus {
	t.Helper()
	var got BindingStatus
	require.Eventually(t, func() bool {
		b, ok := stateOf(s, tag)
		got = b
		return ok && b.State == want
	}, 2*time.Second, 5*time.Millisecond, "platform %s never reached %s", tag, want)
	return got
}

func TestRestartWithinBudget(t *testing.T) {
	spawner := newFakeSpawner()
	s, rec := newTestSupervisor(t, spawner)

	_, err := s.StartPlatform(context.Background(), platform("P1"))
	require.NoError(t, err)
	waitState(t, s, "P1", StateLive)

	spawner.last("P1").kill()

	require.Eventually(t, func() bool { return spawner.count("P1") == 2 }, 2*time.Second, 5*time.Millisecond)
	b := waitState(t, s, "P1", StateLive)

	assert.Equal(t, 1, b.Retries)
	assert.NotEmpty(t, b.LastError)
	require.NotNil(t, b.LastExit)
	assert.Equal(t, fault.WorkerExited, b.LastExit.Reason)
	assert.Equal(t, []State{StateStarting, StateLive, StateFailed, StateStarting, StateLive}, rec.states("P1"))
	assert.Empty(t, rec.terminal("P1"))
	assert.True(t, rec.has(events.BroadcastStatus))
}

func TestRestartBudgetExhausted(t *testing.T) {
	spawner := newFakeSpawner()
	spawner.dieOnStart = true
	s, rec := newTestSupervisor(t, spawner)

	_, err := s.StartPlatform(context.Background(), platform("P1"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(rec.terminal("P1")) == 1 }, 2*time.Second, 5*time.Millisecond)

	_, ok := stateOf(s, "P1")
	assert.False(t, ok, "terminal binding is removed")
	assert.Equal(t, 4, spawner.count("P1"))

	var failures int
	for _, st := range rec.states("P1") {
		if st == StateFailed {
			failures++
		}
	}
	assert.Equal(t, 4, failures, "three retried failures then the terminal one")
	assert.Equal(t, 3, rec.terminal("P1")[0].Retries)
}

func TestSpawnFailureDuringRestartConsumesRetry(t *testing.T) {
	spawner := newFakeSpawner()
	spawner.failAfter = 1
	s, rec := newTestSupervisor(t, spawner)

	_, err := s.StartPlatform(context.Background(), platform("P1"))
	require.NoError(t, err)
	waitState(t, s, "P1", StateLive)
	spawner.last("P1").kill()

	require.Eventually(t, func() bool { return len(rec.terminal("P1")) == 1 }, 2*time.Second, 5*time.Millisecond)
	term := rec.terminal("P1")[0]
	assert.Equal(t, 3, term.Retries)
	assert.Contains(t, term.Error, string(fault.SpawnFailed))
}

func TestNoAutoRestartIsTerminal(t *testing.T) {
	spawner := newFakeSpawner()
	s, rec := newTestSupervisor(t, spawner)

	cfg := platform("P1")
	cfg.AutoRestart = false
	_, err := s.StartPlatform(context.Background(), cfg)
	require.NoError(t, err)
	waitState(t, s, "P1", StateLive)

	spawner.last("P1").kill()
	require.Eventually(t, func() bool { return len(rec.terminal("P1")) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, spawner.count("P1"))
	assert.Equal(t, []State{StateStarting, StateLive, StateFailed}, rec.states("P1"))
}

func TestQualitySwapPreservesBindings(t *testing.T) {
	spawner := newFakeSpawner()
	s, rec := newTestSupervisor(t, spawner)
	ctx := context.Background()

	var applied []string
	s.OnPresetChange(func(p media.Preset) { applied = append(applied, p.Name) })
	require.NoError(t, s.Initialize(media.Preset720p))

	for _, tag := range []string{"P1", "P2"} {
		_, err := s.StartPlatform(ctx, platform(tag))
		require.NoError(t, err)
		waitState(t, s, tag, StateLive)
	}
	old := map[string]*fakeWorker{"P1": spawner.last("P1"), "P2": spawner.last("P2")}

	change, err := s.ChangeQuality(ctx, media.Preset1080p)
	require.NoError(t, err)
	assert.True(t, change.Changed)
	assert.Equal(t, "720p", change.From)
	require.Len(t, change.Results, 2)
	for _, res := range change.Results {
		assert.True(t, res.Success, res.Tag)
	}

	for tag, w := range old {
		assert.EqualValues(t, 1, w.stops.Load(), tag)
		assert.True(t, w.ExitInfo().Requested)
		waitState(t, s, tag, StateLive)
		assert.Equal(t, "1080p", spawner.last(tag).preset.Name)
	}
	assert.Equal(t, "1080p", s.Preset().Name)
	assert.Equal(t, []string{"720p", "1080p"}, applied)
	assert.True(t, rec.has(events.QualityChanged))
	assert.Empty(t, rec.terminal("P1"))
}

func TestQualityRoundTrip(t *testing.T) {
	spawner := newFakeSpawner()
	s, _ := newTestSupervisor(t, spawner)
	ctx := context.Background()

	for _, tag := range []string{"a", "b", "c"} {
		_, err := s.StartPlatform(ctx, platform(tag))
		require.NoError(t, err)
	}

	_, err := s.ChangeQuality(ctx, media.Preset480p)
	require.NoError(t, err)
	_, err = s.ChangeQuality(ctx, media.Preset720p)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, s.Tags())
	for _, tag := range s.Tags() {
		assert.Equal(t, 3, spawner.count(tag))
	}

	same, err := s.ChangeQuality(ctx, media.Preset720p)
	require.NoError(t, err)
	assert.False(t, same.Changed)
	assert.Equal(t, 3, spawner.count("a"), "same preset does not restart")
}

func TestQualityWithoutBindings(t *testing.T) {
	s, rec := newTestSupervisor(t, newFakeSpawner())

	change, err := s.ChangeQuality(context.Background(), media.Preset360p)
	require.NoError(t, err)
	assert.True(t, change.Changed)
	assert.Empty(t, change.Results)
	assert.Equal(t, "360p", s.Preset().Name)
	assert.True(t, rec.has(events.QualityChanged))
}

func TestStopIsIdempotent(t *testing.T) {
	spawner := newFakeSpawner()
	s, rec := newTestSupervisor(t, spawner)
	ctx := context.Background()

	_, err := s.StartPlatform(ctx, platform("P1"))
	require.NoError(t, err)
	before := s.Tags()

	_, err = s.StopPlatform(ctx, "nope")
	require.ErrorIs(t, err, ErrNotActive)
	fe, ok := fault.As(err)
	require.True(t, ok)
	assert.NotNil(t, fe.State)
	assert.Equal(t, before, s.Tags())

	res, err := s.StopPlatform(ctx, "P1")
	require.NoError(t, err)
	require.NotNil(t, res.Exit)
	assert.True(t, res.Exit.Requested)
	states := rec.states("P1")
	require.NotEmpty(t, states)
	assert.Equal(t, StateStopped, states[len(states)-1])
	assert.Empty(t, rec.terminal("P1"), "a requested stop is not terminal")

	_, err = s.StopPlatform(ctx, "P1")
	assert.ErrorIs(t, err, ErrNotActive)
	assert.Empty(t, s.Tags())
}

func TestStartValidationAndUniqueness(t *testing.T) {
	spawner := newFakeSpawner()
	s, _ := newTestSupervisor(t, spawner)
	ctx := context.Background()

	cfg := platform("P1")
	cfg.Secret = ""
	_, err := s.StartPlatform(ctx, cfg)
	assert.ErrorIs(t, err, encoder.ErrMissingSecret)

	cfg = platform("P1")
	cfg.IngestURL = "http://example.com"
	_, err = s.StartPlatform(ctx, cfg)
	assert.ErrorIs(t, err, encoder.ErrInvalidURL)

	_, err = s.StartPlatform(ctx, PlatformConfig{IngestURL: "rtmp://a/b", Secret: "x"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = s.StartPlatform(ctx, platform("P1"))
	require.NoError(t, err)
	_, err = s.StartPlatform(ctx, platform("P1"))
	require.ErrorIs(t, err, ErrAlreadyActive)
	fe, _ := fault.As(err)
	st, ok := fe.State.(BindingStatus)
	require.True(t, ok)
	assert.Equal(t, "P1", st.Tag)
	assert.Equal(t, 1, spawner.count("P1"))

	require.ErrorIs(t, s.Initialize(media.Preset1080p), ErrAlreadyActive)
}

func TestStartSpawnFailureLeavesNoBinding(t *testing.T) {
	s, rec := newTestSupervisor(t, SpawnerFunc(func(context.Context, encoder.Target, media.Preset) (Worker, error) {
		return nil, encoder.ErrCodecUnavailable
	}))

	_, err := s.StartPlatform(context.Background(), platform("P1"))
	require.ErrorIs(t, err, encoder.ErrCodecUnavailable)
	assert.Empty(t, s.Status().Bindings)
	assert.Empty(t, rec.states("P1"))
}

func TestStallAbortsAndRestarts(t *testing.T) {
	spawner := newFakeSpawner()
	s, _ := newTestSupervisor(t, spawner)

	_, err := s.StartPlatform(context.Background(), platform("P1"))
	require.NoError(t, err)
	waitState(t, s, "P1", StateLive)

	spawner.last("P1").stalled.Store(true)
	require.Eventually(t, func() bool { return spawner.count("P1") == 2 }, 2*time.Second, 5*time.Millisecond)

	b := waitState(t, s, "P1", StateLive)
	require.NotNil(t, b.LastExit)
	assert.Equal(t, fault.QueueOverflowTerminal, b.LastExit.Reason)
	assert.True(t, errors.Is(b.LastExit.Err(), encoder.ErrQueueOverflowTerminal))
}

func TestDegradedAndDistribute(t *testing.T) {
	spawner := newFakeSpawner()
	s, rec := newTestSupervisor(t, spawner)
	ctx := context.Background()

	for _, tag := range []string{"P1", "P2"} {
		_, err := s.StartPlatform(ctx, platform(tag))
		require.NoError(t, err)
	}

	frame := &media.Frame{Width: 2, Height: 2, Data: make([]byte, 12)}
	block := media.Silence(media.DefaultAudioFormat)
	for i := 0; i < 5; i++ {
		s.Distribute(frame, block)
	}
	assert.EqualValues(t, 5, spawner.last("P1").frames.Load())
	assert.EqualValues(t, 5, spawner.last("P2").blocks.Load())

	waitState(t, s, "P1", StateLive)
	spawner.last("P1").degraded.Store(true)
	waitState(t, s, "P1", StateDegraded)
	assert.Contains(t, rec.states("P1"), StateDegraded)
	assert.True(t, s.Status().Live())
}

func TestStopAll(t *testing.T) {
	spawner := newFakeSpawner()
	s, _ := newTestSupervisor(t, spawner)
	ctx := context.Background()

	for _, tag := range []string{"x", "y", "z"} {
		_, err := s.StartPlatform(ctx, platform(tag))
		require.NoError(t, err)
	}

	results := s.StopAll(ctx)
	require.Len(t, results, 3)
	for _, res := range results {
		require.NotNil(t, res.Exit, res.Tag)
		assert.True(t, res.Exit.Requested)
	}
	assert.Empty(t, s.Status().Bindings)
}

func TestStopDuringBackoffCancelsRestart(t *testing.T) {
	spawner := newFakeSpawner()
	rec := &recorder{}
	cfg := testConfig()
	cfg.Backoff = time.Hour
	s := NewSupervisor(cfg, spawner, rec, slog.Default())
	ctx := context.Background()

	_, err := s.StartPlatform(ctx, platform("P1"))
	require.NoError(t, err)
	spawner.last("P1").kill()
	s.check(ctx)

	b, ok := stateOf(s, "P1")
	require.True(t, ok)
	assert.Equal(t, StateFailed, b.State)
	assert.NotNil(t, b.NextAttemptAt)

	_, err = s.StopPlatform(ctx, "P1")
	require.NoError(t, err)
	assert.Empty(t, s.Tags())
	assert.Equal(t, 1, spawner.count("P1"))
}

func TestStopWaitsForSpawnInFlight(t *testing.T) {
	spawner := newFakeSpawner()
	gate := spawner.hold()
	s, _ := newTestSupervisor(t, spawner)

	started := make(chan error, 1)
	go func() {
		_, err := s.StartPlatform(context.Background(), platform("P1"))
		started <- err
	}()
	<-spawner.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	stopped := make(chan StopResult, 1)
	go func() {
		res, err := s.StopPlatform(ctx, "P1")
		assert.NoError(t, err)
		stopped <- res
	}()

	<-ctx.Done()
	_, ok := stateOf(s, "P1")
	assert.True(t, ok, "binding stays until the exit is observed")
	close(gate)

	res := <-stopped
	require.NotNil(t, res.Exit)
	assert.True(t, res.Exit.Requested)
	assert.ErrorIs(t, <-started, ErrNotActive)

	w := spawner.last("P1")
	require.NotNil(t, w)
	assert.EqualValues(t, 1, w.stops.Load())
	assert.Empty(t, s.Status().Bindings)
}

func TestAbandonedSpawnStopsItsOwnWorker(t *testing.T) {
	spawner := newFakeSpawner()
	gate := spawner.hold()
	rec := &recorder{}
	cfg := testConfig()
	cfg.StopGrace = 20 * time.Millisecond
	s := NewSupervisor(cfg, spawner, rec, slog.Default())

	started := make(chan error, 1)
	go func() {
		_, err := s.StartPlatform(context.Background(), platform("P1"))
		started <- err
	}()
	<-spawner.entered

	res, err := s.StopPlatform(context.Background(), "P1")
	require.NoError(t, err)
	assert.Nil(t, res.Exit)
	assert.Empty(t, s.Status().Bindings)

	close(gate)
	assert.ErrorIs(t, <-started, ErrNotActive)

	w := spawner.last("P1")
	require.NotNil(t, w)
	assert.EqualValues(t, 1, w.stops.Load())
	assert.NotNil(t, w.ExitInfo())
	assert.Empty(t, s.Status().Bindings)
}
