package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"cratebench/internal/logger"
	"cratebench/internal/models"
)

// ---- Test doubles ----

type scriptCrate struct {
	ids     []string
	reports map[string]models.CardReport

	// rampStep, when non-zero, raises rampCh's temperature by rampStep on
	// every report so a channel can be made to never settle.
	rampCh   int
	rampStep float64

	// blockUntilCancel makes every report hang on the bus until the
	// context is cancelled, like a real card poll caught by an interrupt.
	blockUntilCancel bool

	reportCalls    int
	lastShutdownOT bool
	shutdownCalls  int
}

func (c *scriptCrate) CardIDs() []string { return c.ids }

func (c *scriptCrate) ReportAll(ctx context.Context, shutdownOnOT bool, serials []string) ([]models.CardReport, error) {
	c.reportCalls++
	c.lastShutdownOT = shutdownOnOT
	if c.blockUntilCancel {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	out := make([]models.CardReport, 0, len(serials))
	for _, id := range serials {
		rep := c.reports[id]
		if c.rampStep != 0 {
			chs := make([]models.ChannelReport, len(rep.Channels))
			copy(chs, rep.Channels)
			chs[c.rampCh].Temperature += c.rampStep * float64(c.reportCalls)
			rep.Channels = chs
		}
		out = append(out, rep)
	}
	return out, nil
}

func (c *scriptCrate) ShutdownAllLoads(ctx context.Context) error {
	c.shutdownCalls++
	return nil
}

func flatReport(serial string, temps ...float64) models.CardReport {
	chs := make([]models.ChannelReport, len(temps))
	for i, tc := range temps {
		chs[i] = models.ChannelReport{Temperature: tc, LoadPower: 2, OTShutdown: 85, Hysteresis: 80}
	}
	return models.CardReport{CardSerial: serial, Voltage: 12, Current: 1.5, Channels: chs}
}

type memSink struct {
	rows    []models.Measurement
	appends int
	err     error
}

func (s *memSink) Append(rows []models.Measurement) error {
	if s.err != nil {
		return s.err
	}
	s.appends++
	s.rows = append(s.rows, rows...)
	return nil
}

type memEvents struct {
	events []models.CrateEvent
}

func (e *memEvents) Append(ctx context.Context, ev models.CrateEvent) error {
	e.events = append(e.events, ev)
	return nil
}

func (e *memEvents) types() []string {
	out := make([]string, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Type
	}
	return out
}

func hasEvent(e *memEvents, typ string) bool {
	for _, ev := range e.events {
		if ev.Type == typ {
			return true
		}
	}
	return false
}

func newTestSession(t *testing.T, crate Crate, sink Sink, events EventAppender, opts Options) *Session {
	t.Helper()
	s, err := NewSession("test", crate, sink, events, logger.Get(logger.ErrorLevel), opts)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	s.perCard = 0.001 // bus cost irrelevant on fakes
	return s
}

// ---- Tests ----

func TestNewSession_Validation(t *testing.T) {
	crate := &scriptCrate{}
	if _, err := NewSession("x", crate, &memSink{}, nil, logger.Get(logger.ErrorLevel),
		Options{Duration: time.Second}); !errors.Is(err, ErrNoInterval) {
		t.Fatalf("expected ErrNoInterval, got %v", err)
	}
	if _, err := NewSession("x", crate, &memSink{}, nil, logger.Get(logger.ErrorLevel),
		Options{Interval: time.Second}); !errors.Is(err, ErrNoDuration) {
		t.Fatalf("expected ErrNoDuration, got %v", err)
	}

	s := newTestSession(t, crate, &memSink{}, nil, Options{Duration: time.Second, Interval: time.Second})
	if _, err := s.Run(context.Background()); !errors.Is(err, ErrNoCards) {
		t.Fatalf("expected ErrNoCards on empty crate, got %v", err)
	}
}

func TestSession_DurationStopWritesOrderedTicks(t *testing.T) {
	crate := &scriptCrate{
		ids:     []string{"DT0"},
		reports: map[string]models.CardReport{"DT0": flatReport("DT0", 40, 41, 42)},
	}
	sink := &memSink{}
	s := newTestSession(t, crate, sink, nil, Options{
		Duration:      80 * time.Millisecond,
		Interval:      20 * time.Millisecond,
		SaveEveryTick: true,
		ShutdownAtEnd: true,
	})

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if crate.shutdownCalls != 1 {
		t.Fatalf("shutdown at end calls = %d, want 1", crate.shutdownCalls)
	}
	if crate.reportCalls < 2 {
		t.Fatalf("expected multiple ticks, got %d", crate.reportCalls)
	}
	if len(sink.rows) != crate.reportCalls*3 {
		t.Fatalf("rows = %d, want 3 per tick over %d ticks", len(sink.rows), crate.reportCalls)
	}

	// All rows of a tick share one stamp; stamps strictly increase across
	// ticks; the first tick fires immediately.
	prevStamp := -1.0
	for i := 0; i < len(sink.rows); i += 3 {
		stamp := sink.rows[i].ElapsedTime
		if sink.rows[i+1].ElapsedTime != stamp || sink.rows[i+2].ElapsedTime != stamp {
			t.Fatalf("tick at %v has mixed stamps", stamp)
		}
		if stamp <= prevStamp {
			t.Fatalf("stamps not strictly increasing: %v after %v", stamp, prevStamp)
		}
		prevStamp = stamp
	}
	if sink.rows[0].ElapsedTime > 0.01 {
		t.Fatalf("first tick delayed: stamp %v", sink.rows[0].ElapsedTime)
	}
}

func TestSession_StopOnOT(t *testing.T) {
	rep := flatReport("DT0", 40, 90)
	rep.Channels[1].OTEvent = true
	crate := &scriptCrate{ids: []string{"DT0"}, reports: map[string]models.CardReport{"DT0": rep}}
	sink := &memSink{}
	events := &memEvents{}
	s := newTestSession(t, crate, sink, events, Options{
		Duration:         10 * time.Second,
		Interval:         10 * time.Millisecond,
		SaveEveryTick:    true,
		StopOnOT:         true,
		ShutdownCardOnOT: true,
	})

	start := time.Now()
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("OT stop took %v", time.Since(start))
	}
	if !s.OTDetected() {
		t.Fatalf("OTDetected must be true")
	}
	if !crate.lastShutdownOT {
		t.Fatalf("shutdown-on-OT flag must reach the crate")
	}
	if !sink.rows[1].OTEvent || sink.rows[0].OTEvent {
		t.Fatalf("OT flags not carried into rows: %+v", sink.rows[:2])
	}
	if !hasEvent(events, models.EventOT) || !hasEvent(events, models.EventSessionEnd) {
		t.Fatalf("missing events, got %v", events.types())
	}
}

func TestSession_StopOnSteadyState(t *testing.T) {
	crate := &scriptCrate{
		ids: []string{"DT0", "DT1"},
		reports: map[string]models.CardReport{
			"DT0": flatReport("DT0", 50, 51),
			"DT1": flatReport("DT1", 48, 49),
		},
	}
	sink := &memSink{}
	events := &memEvents{}
	s := newTestSession(t, crate, sink, events, Options{
		Duration:      10 * time.Second,
		Interval:      10 * time.Millisecond,
		SteadyWindow:  50 * time.Millisecond,
		SaveEveryTick: true,
		StopOnSteady:  true,
	})

	elapsed, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !s.AllSteady() {
		t.Fatalf("expected all cards steady")
	}
	if elapsed >= 10 {
		t.Fatalf("steady stop did not fire, elapsed %v", elapsed)
	}

	summary := s.Summary()
	for _, id := range []string{"DT0", "DT1"} {
		entry, ok := summary[id]
		if !ok || !entry.Steady {
			t.Fatalf("summary missing steady entry for %s: %+v", id, summary)
		}
	}
	if !hasEvent(events, models.EventSteadyState) {
		t.Fatalf("missing STEADY_STATE event, got %v", events.types())
	}

	// Steady rows carry a rate; pre-window rows do not.
	var sawNoRate, sawSteady bool
	for _, row := range sink.rows {
		if row.TempRatePerMin == nil {
			sawNoRate = true
			if row.SteadyState {
				t.Fatalf("steady without a rate: %+v", row)
			}
		} else if row.SteadyState {
			sawSteady = true
		}
	}
	if !sawNoRate || !sawSteady {
		t.Fatalf("expected both pre-window and steady rows (noRate=%v steady=%v)", sawNoRate, sawSteady)
	}
}

func TestSession_MonitoredChannelCutoff(t *testing.T) {
	// Channel 1 never settles, but with the cutoff at 1 it is excluded
	// from the card verdict while still being sampled and written.
	crate := &scriptCrate{
		ids:      []string{"DT0"},
		reports:  map[string]models.CardReport{"DT0": flatReport("DT0", 50, 40)},
		rampCh:   1,
		rampStep: 5,
	}
	sink := &memSink{}
	s := newTestSession(t, crate, sink, nil, Options{
		Duration:          10 * time.Second,
		Interval:          10 * time.Millisecond,
		SteadyWindow:      50 * time.Millisecond,
		SaveEveryTick:     true,
		StopOnSteady:      true,
		MonitoredChannels: 1,
	})

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !s.AllSteady() {
		t.Fatalf("card must be steady with sensor channel excluded")
	}
	// Channel 1 rows still present.
	var ch1 int
	for _, row := range sink.rows {
		if row.Channel == 1 {
			ch1++
		}
	}
	if ch1 == 0 {
		t.Fatalf("excluded channel must still be persisted")
	}
}

func TestSession_InterruptRunsFinalize(t *testing.T) {
	crate := &scriptCrate{
		ids:     []string{"DT0"},
		reports: map[string]models.CardReport{"DT0": flatReport("DT0", 40)},
	}
	sink := &memSink{}
	s := newTestSession(t, crate, sink, nil, Options{
		Duration:      10 * time.Second,
		Interval:      10 * time.Millisecond,
		SaveEveryTick: false, // batch mode: rows land in the finalize step
		ShutdownAtEnd: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	if _, err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if crate.shutdownCalls != 1 {
		t.Fatalf("loads must be shut down on interrupt, calls = %d", crate.shutdownCalls)
	}
	if sink.appends != 1 || len(sink.rows) == 0 {
		t.Fatalf("batch mode must flush once in finalize: appends=%d rows=%d", sink.appends, len(sink.rows))
	}
}

func TestSession_CancelDuringReportFinalizes(t *testing.T) {
	// With the real bus a cancellation usually lands while a report is in
	// flight, not in the sleep slice. That is still an interrupt: no error,
	// and the finalize step runs.
	crate := &scriptCrate{
		ids:              []string{"DT0"},
		reports:          map[string]models.CardReport{"DT0": flatReport("DT0", 40)},
		blockUntilCancel: true,
	}
	events := &memEvents{}
	s := newTestSession(t, crate, &memSink{}, events, Options{
		Duration:      10 * time.Second,
		Interval:      10 * time.Millisecond,
		SaveEveryTick: true,
		ShutdownAtEnd: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	if _, err := s.Run(ctx); err != nil {
		t.Fatalf("cancellation mid-report must not be an error, got %v", err)
	}
	if crate.shutdownCalls != 1 {
		t.Fatalf("loads must be shut down on interrupt, calls = %d", crate.shutdownCalls)
	}
	if !hasEvent(events, models.EventSessionEnd) {
		t.Fatalf("finalize must record the session end, got %v", events.types())
	}
}

func TestSession_ConcurrentStatusReads(t *testing.T) {
	crate := &scriptCrate{
		ids: []string{"DT0", "DT1"},
		reports: map[string]models.CardReport{
			"DT0": flatReport("DT0", 50, 51),
			"DT1": flatReport("DT1", 48, 49),
		},
	}
	s := newTestSession(t, crate, &memSink{}, nil, Options{
		Duration:      10 * time.Second,
		Interval:      5 * time.Millisecond,
		SteadyWindow:  50 * time.Millisecond,
		SaveEveryTick: true,
		StopOnSteady:  true,
	})

	// Hammer the status accessors while the loop runs; the race detector
	// flags any unsynchronized access to the published state.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_ = s.AllSteady()
			_ = s.OTDetected()
			if sum := s.Summary(); len(sum) == 2 {
				return
			}
		}
	}()

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("status reader never observed both cards in the summary")
	}
	if !s.AllSteady() {
		t.Fatalf("expected all cards steady")
	}
}

func TestSession_SinkFailureAbortsButFinalizes(t *testing.T) {
	crate := &scriptCrate{
		ids:     []string{"DT0"},
		reports: map[string]models.CardReport{"DT0": flatReport("DT0", 40)},
	}
	sink := &memSink{err: errors.New("disk full")}
	s := newTestSession(t, crate, sink, nil, Options{
		Duration:      10 * time.Second,
		Interval:      10 * time.Millisecond,
		SaveEveryTick: true,
		ShutdownAtEnd: true,
	})

	if _, err := s.Run(context.Background()); err == nil {
		t.Fatalf("expected error from failing sink")
	}
	if crate.shutdownCalls != 1 {
		t.Fatalf("finalize must still shut down loads, calls = %d", crate.shutdownCalls)
	}
}

func TestSession_CooldownOffsetContinuesClock(t *testing.T) {
	crate := &scriptCrate{
		ids:     []string{"DT0"},
		reports: map[string]models.CardReport{"DT0": flatReport("DT0", 40)},
	}
	sink := &memSink{}
	s := newTestSession(t, crate, sink, nil, Options{
		Duration:      40 * time.Millisecond,
		Interval:      10 * time.Millisecond,
		SaveEveryTick: true,
		StartOffset:   600,
	})

	elapsed, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sink.rows[0].ElapsedTime < 600 {
		t.Fatalf("offset not applied: first stamp %v", sink.rows[0].ElapsedTime)
	}
	if elapsed < 600 {
		t.Fatalf("returned elapsed %v must include the offset", elapsed)
	}
}
