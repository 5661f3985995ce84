package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cratebench/internal/logger"
	"cratebench/internal/models"
)

const (
	// Sleep slice while waiting for the next tick boundary. Short so a
	// cancelled context is noticed promptly and the loop re-reads the
	// monotonic clock often enough not to drift.
	sleepSlice = 100 * time.Millisecond

	// Observed cost of polling one card over the bench bus. Stretches the
	// effective sampling interval when several cards share a tick.
	defaultPerCardCost = 1200 * time.Millisecond
)

// Configuration errors returned before the loop starts.
var (
	ErrNoInterval = errors.New("sampling interval must be positive")
	ErrNoDuration = errors.New("session duration must be positive")
	ErrNoWindow   = errors.New("steady-state window must be positive")
	ErrNoCards    = errors.New("no cards to monitor")
)

// Crate is the slice of the crate registry the session consumes. The
// session never talks to a card directly; every read and every safety
// action goes through this interface.
type Crate interface {
	CardIDs() []string
	ReportAll(ctx context.Context, shutdownOnOT bool, serials []string) ([]models.CardReport, error)
	ShutdownAllLoads(ctx context.Context) error
}

// Sink receives each tick's measurement rows. Appends must be durable when
// they return: the session treats a failed append as fatal.
type Sink interface {
	Append(rows []models.Measurement) error
}

// EventAppender records session events. May be nil.
type EventAppender interface {
	Append(ctx context.Context, e models.CrateEvent) error
}

// Options configures one monitoring session.
type Options struct {
	Duration time.Duration
	Interval time.Duration

	SteadyThreshold float64       // °C/min, default 1.0
	SteadyWindow    time.Duration // default 90 s

	ShutdownCardOnOT bool
	StopOnOT         bool
	StopOnSteady     bool
	ShutdownAtEnd    bool

	// SaveEveryTick appends rows to the sink as each tick completes.
	// When false, all rows are written once in the finalize step.
	SaveEveryTick bool

	// Serials restricts monitoring to a subset of cards. Empty = all.
	Serials []string

	// MonitoredChannels is the channel-index cutoff for the card-level
	// steady verdict: channels with index >= cutoff (aux/backplane
	// sensors, per configuration) are sampled and persisted but excluded
	// from the verdict. <= 0 means all channels participate.
	MonitoredChannels int

	// StartOffset shifts the elapsed-time base, letting a cooldown session
	// continue the clock of the session it follows.
	StartOffset float64

	// PerCardCost is the expected bus time to poll one card, used to size
	// the history buffers and to pad the returned elapsed time. Defaults
	// to the observed hardware cost.
	PerCardCost time.Duration
}

func (o *Options) normalize() error {
	if o.Interval <= 0 {
		return ErrNoInterval
	}
	if o.Duration <= 0 {
		return ErrNoDuration
	}
	if o.SteadyThreshold == 0 {
		o.SteadyThreshold = 1.0
	}
	if o.SteadyWindow == 0 {
		o.SteadyWindow = 90 * time.Second
	}
	if o.SteadyWindow < 0 {
		return ErrNoWindow
	}
	if o.PerCardCost <= 0 {
		o.PerCardCost = defaultPerCardCost
	}
	return nil
}

// Session runs one monitoring pass over the crate. Construct per run; the
// history arena and steady registry are created at Run and discarded with
// the session.
type Session struct {
	name   string
	crate  Crate
	sink   Sink
	events EventAppender
	log    *logger.Logger
	opts   Options

	detector Detector
	perCard  float64 // seconds of bus time per card report

	// mu guards the state published to other goroutines: a live status
	// read may land on any of these while the loop is mid-tick.
	mu        sync.Mutex
	steady    *SteadyRegistry
	elapsed   float64
	otEvent   bool
	allSteady bool
}

// NewSession validates options eagerly and prepares a session.
func NewSession(name string, crate Crate, sink Sink, events EventAppender, log *logger.Logger, opts Options) (*Session, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	return &Session{
		name:     name,
		crate:    crate,
		sink:     sink,
		events:   events,
		log:      log,
		opts:     opts,
		detector: Detector{Threshold: opts.SteadyThreshold},
		perCard:  opts.PerCardCost.Seconds(),
	}, nil
}

// Summary returns the steady-state transitions observed so far.
func (s *Session) Summary() map[string]models.SteadyEntry {
	s.mu.Lock()
	steady := s.steady
	s.mu.Unlock()
	if steady == nil {
		return nil
	}
	return steady.Snapshot()
}

// AllSteady reports whether every monitored card was steady on the last
// completed tick.
func (s *Session) AllSteady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allSteady
}

// OTDetected reports whether any OT event was observed during the run.
func (s *Session) OTDetected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.otEvent
}

// markOT records an OT observation, reporting whether it is the first.
func (s *Session) markOT() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	first := !s.otEvent
	s.otEvent = true
	return first
}

func (s *Session) setAllSteady(v bool) {
	s.mu.Lock()
	s.allSteady = v
	s.mu.Unlock()
}

func (s *Session) setElapsed(v float64) {
	s.mu.Lock()
	s.elapsed = v
	s.mu.Unlock()
}

func (s *Session) emit(typ, desc string, meta map[string]any) {
	if s.events == nil {
		return
	}
	ev := models.CrateEvent{
		OccurredAt:  time.Now().UTC(),
		Type:        typ,
		Description: desc,
		Metadata:    meta,
	}
	// Finalize runs with a possibly-cancelled loop context, so events use
	// their own.
	if err := s.events.Append(context.Background(), ev); err != nil {
		s.log.Warnw("event append failed", "type", typ, "err", err)
	}
}

// Run executes the sampling loop until a stop condition fires or ctx is
// cancelled. Whatever the exit path, the finalize step runs: unwritten
// rows are flushed, loads are shut down when configured, and the steady
// summary is logged. The returned elapsed time includes the expected cost
// of one more polling pass, so a follow-up session can continue the clock.
func (s *Session) Run(ctx context.Context) (elapsed float64, err error) {
	serials := s.opts.Serials
	if len(serials) == 0 {
		serials = s.crate.CardIDs()
	}
	if len(serials) == 0 {
		return 0, ErrNoCards
	}

	window := s.opts.SteadyWindow.Seconds()
	depth := HistoryDepth(window, s.opts.Interval.Seconds(), s.perCard, len(serials))
	hist := NewHistory(window, depth)
	s.mu.Lock()
	s.steady = NewSteadyRegistry(s.log)
	s.allSteady = false
	s.otEvent = false
	s.mu.Unlock()

	s.log.Infow("monitoring session started",
		"session", s.name,
		"serials", serials,
		"duration_s", s.opts.Duration.Seconds(),
		"interval_s", s.opts.Interval.Seconds(),
		"steady_threshold_c_per_min", s.opts.SteadyThreshold,
		"steady_window_s", window,
		"history_depth", depth,
		"shutdown_card_on_ot", s.opts.ShutdownCardOnOT,
		"stop_on_ot", s.opts.StopOnOT,
		"stop_on_steady", s.opts.StopOnSteady,
		"shutdown_at_end", s.opts.ShutdownAtEnd,
	)
	s.emit(models.EventSessionStart, fmt.Sprintf("session %s started", s.name),
		map[string]any{"session": s.name, "serials": serials})

	var pending []models.Measurement
	stop := "duration"

	defer func() {
		if !s.opts.SaveEveryTick && len(pending) > 0 {
			if werr := s.sink.Append(pending); werr != nil {
				s.log.Errorw("final measurement write failed", "err", werr)
				if err == nil {
					err = werr
				}
			}
		}
		if s.opts.ShutdownAtEnd {
			s.log.Infow("shutting down all loads at session end")
			// ctx may already be cancelled on the interrupt path; the
			// shutdown must still go out.
			if serr := s.crate.ShutdownAllLoads(context.Background()); serr != nil {
				s.log.Errorw("load shutdown at session end failed", "err", serr)
				if err == nil {
					err = serr
				}
			}
		}
		s.logSummary(stop)
		s.emit(models.EventSessionEnd, fmt.Sprintf("session %s finished", s.name),
			map[string]any{"session": s.name, "stop": stop, "elapsed_s": s.elapsed})
	}()

	stateInfo := make(map[string]bool, len(serials))
	t0 := time.Now()
	prev := t0
	first := true

	for {
		if ctx.Err() != nil {
			stop = "interrupt"
			s.log.Infow("monitoring interrupted", "session", s.name)
			break
		}
		now := time.Now()
		if now.Sub(t0) >= s.opts.Duration {
			stop = "duration"
			break
		}

		sincePrev := now.Sub(prev)
		if !first && sincePrev < s.opts.Interval {
			sleep := s.opts.Interval - sincePrev
			if sleep > sleepSlice {
				sleep = sleepSlice
			}
			select {
			case <-ctx.Done():
			case <-time.After(sleep):
			}
			continue
		}

		elapsedS := now.Sub(t0).Seconds() + s.opts.StartOffset
		s.setElapsed(elapsedS)

		reports, rerr := s.crate.ReportAll(ctx, s.opts.ShutdownCardOnOT, serials)
		if rerr != nil {
			// A cancellation landing mid-report is the interrupt path, not a
			// failure: take the normal finalize route.
			if errors.Is(rerr, context.Canceled) || errors.Is(rerr, context.DeadlineExceeded) {
				stop = "interrupt"
				s.log.Infow("monitoring interrupted", "session", s.name)
				break
			}
			stop = "error"
			return elapsedS, fmt.Errorf("report cards: %w", rerr)
		}

		rows := make([]models.Measurement, 0, len(reports)*20)
		for _, rep := range reports {
			cardRows, cardSteady := s.processReport(hist, rep, elapsedS)
			rows = append(rows, cardRows...)
			stateInfo[rep.CardSerial] = cardSteady
		}

		if s.opts.SaveEveryTick {
			if werr := s.sink.Append(rows); werr != nil {
				// Durability is part of the contract; a sink that cannot
				// append aborts the session through the finalize path.
				stop = "error"
				return elapsedS, fmt.Errorf("write measurements: %w", werr)
			}
		} else {
			pending = append(pending, rows...)
		}

		all := len(stateInfo) > 0
		for _, steady := range stateInfo {
			if !steady {
				all = false
				break
			}
		}
		s.setAllSteady(all)
		if all {
			s.log.Infow("all cards steady", "elapsed_s", elapsedS)
		}

		if s.opts.StopOnOT && s.OTDetected() {
			stop = "ot"
			s.log.Warnw("OT event detected, stopping monitoring", "elapsed_s", elapsedS)
			break
		}
		if all && s.opts.StopOnSteady {
			stop = "steady"
			s.log.Infow("all cards steady, stopping monitoring", "elapsed_s", elapsedS)
			break
		}

		prev = now
		first = false
	}

	return s.elapsed + s.perCard*float64(len(serials)), nil
}

// processReport folds one card report into the tick: updates history,
// computes per-channel rates and verdicts, assembles rows, and updates the
// steady registry. The window start is located before this tick's samples
// are appended; the rate then uses the fresh sample as its endpoint.
func (s *Session) processReport(hist *History, rep models.CardReport, elapsed float64) ([]models.Measurement, bool) {
	cardID := rep.CardSerial
	startIdx, hasWindow := hist.WindowStart(cardID)

	cutoff := s.opts.MonitoredChannels
	if cutoff <= 0 || cutoff > len(rep.Channels) {
		cutoff = len(rep.Channels)
	}

	rows := make([]models.Measurement, 0, len(rep.Channels))
	verdicts := make([]bool, 0, cutoff)
	cardOT := false

	for chIdx, ch := range rep.Channels {
		hist.Record(cardID, chIdx, elapsed, ch.Temperature)

		rate, hasRate, chSteady := s.detector.ChannelVerdict(hist, cardID, chIdx, startIdx, hasWindow)
		if chIdx < cutoff {
			verdicts = append(verdicts, chSteady)
		}

		row := models.Measurement{
			ElapsedTime: elapsed,
			CardSerial:  cardID,
			Channel:     chIdx,
			Temperature: ch.Temperature,
			LoadPower:   ch.LoadPower,
			OTShutdown:  ch.OTShutdown,
			OTEvent:     ch.OTEvent,
			Voltage:     rep.Voltage,
			Current:     rep.Current,
			SteadyState: chSteady,
		}
		if hasRate {
			r := rate
			row.TempRatePerMin = &r
		}
		rows = append(rows, row)

		if ch.OTEvent {
			cardOT = true
		}
	}

	if cardOT && s.markOT() {
		s.emit(models.EventOT, fmt.Sprintf("OT event on card %s", cardID),
			map[string]any{"serial": cardID, "elapsed_s": elapsed})
	}

	cardSteady := s.detector.CardVerdict(verdicts)
	if s.steady.Update(cardID, cardSteady, elapsed) {
		s.emit(models.EventSteadyState, fmt.Sprintf("card %s reached steady state", cardID),
			map[string]any{"serial": cardID, "elapsed_s": elapsed})
	}

	return rows, cardSteady
}

func (s *Session) logSummary(stop string) {
	s.log.Infow("monitoring session finished",
		"session", s.name, "stop", stop, "elapsed_s", s.elapsed)
	if s.steady == nil {
		return
	}
	for cardID, entry := range s.steady.Snapshot() {
		if entry.Steady {
			s.log.Infow("steady state reached", "serial", cardID, "after_s", entry.SinceElapsed)
		} else {
			s.log.Infow("steady state not reached", "serial", cardID)
		}
	}
}
