package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cratebench/internal/crate"
	"cratebench/internal/logger"
	"cratebench/internal/monitor"
	"cratebench/internal/repository"
)

const (
	defaultStepDuration = 20 * time.Minute
	defaultStepInterval = time.Second
	defaultFanCurrent   = 2.0 // A
)

var (
	ErrSessionActive = errors.New("a monitoring session is already running")
	ErrNoSession     = errors.New("no monitoring session")
)

// runningSession tracks one session from start to the end of its goroutine.
type runningSession struct {
	name      string
	startedAt time.Time
	path      string

	session *monitor.Session
	sink    *repository.CSVSink
	cancel  context.CancelFunc
	done    chan struct{}

	// set before done closes
	elapsed float64
	runErr  error
}

type BenchService struct {
	reg    *crate.Registry
	events repository.EventRepo
	fan    FanSupply
	log    *logger.Logger

	resultsDir string
	fanChannel int
	fanCurrent float64
	pollCost   time.Duration

	mu      sync.Mutex
	current *runningSession // nil until the first session
	running bool
}

func NewBenchService(reg *crate.Registry, events repository.EventRepo, fan FanSupply, cfg BenchConfig, log *logger.Logger) *BenchService {
	dir := cfg.ResultsDir
	if dir == "" {
		dir = "results"
	}
	ch := cfg.FanChannel
	if ch == 0 {
		ch = 1
	}
	cur := cfg.FanCurrent
	if cur == 0 {
		cur = defaultFanCurrent
	}
	return &BenchService{
		reg:        reg,
		events:     events,
		fan:        fan,
		log:        log,
		resultsDir: dir,
		fanChannel: ch,
		fanCurrent: cur,
		pollCost:   cfg.CardPollCost,
	}
}

var _ Bench = (*BenchService)(nil)

// StartSession launches a monitoring session in the background. Only one
// session runs at a time.
func (s *BenchService) StartSession(ctx context.Context, p SessionParams) (SessionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return s.statusLocked(), ErrSessionActive
	}

	opts := monitor.Options{
		Duration:          p.Duration,
		Interval:          p.Interval,
		SteadyThreshold:   p.SteadyThreshold,
		SteadyWindow:      p.SteadyWindow,
		ShutdownCardOnOT:  p.ShutdownCardOnOT,
		StopOnOT:          p.StopOnOT,
		StopOnSteady:      p.StopOnSteady,
		ShutdownAtEnd:     p.ShutdownAtEnd,
		SaveEveryTick:     p.SaveEveryTick,
		Serials:           p.Serials,
		MonitoredChannels: p.MonitoredChannels,
	}
	if _, err := s.launchLocked(p.Name, opts); err != nil {
		return SessionStatus{}, err
	}
	return s.statusLocked(), nil
}

// launchLocked builds the sink and session and starts the run goroutine.
// Caller holds s.mu.
func (s *BenchService) launchLocked(name string, opts monitor.Options) (*runningSession, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "monitoring"
	}
	name = fmt.Sprintf("%s_%s", name, time.Now().Format("20060102_150405"))

	if err := os.MkdirAll(s.resultsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}
	path := filepath.Join(s.resultsDir, name+".csv")
	sink, err := repository.NewCSVSink(path)
	if err != nil {
		return nil, err
	}

	if opts.PerCardCost == 0 {
		opts.PerCardCost = s.pollCost
	}

	sess, err := monitor.NewSession(name, s.reg, sink, s.events, s.log, opts)
	if err != nil {
		_ = sink.Close()
		_ = os.Remove(path)
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	rs := &runningSession{
		name:      name,
		startedAt: time.Now(),
		path:      path,
		session:   sess,
		sink:      sink,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.current = rs
	s.running = true

	go func() {
		elapsed, runErr := sess.Run(runCtx)
		if cerr := sink.Close(); cerr != nil && runErr == nil {
			runErr = cerr
		}
		cancel()

		s.mu.Lock()
		rs.elapsed = elapsed
		rs.runErr = runErr
		s.running = false
		close(rs.done)
		s.mu.Unlock()

		if runErr != nil {
			s.log.Errorw("monitoring session failed", "session", rs.name, "err", runErr)
		}
	}()

	s.log.Infow("monitoring session launched", "session", name, "file", path)
	return rs, nil
}

// StopSession cancels the running session and waits for it to finalize.
func (s *BenchService) StopSession(ctx context.Context) (SessionStatus, error) {
	s.mu.Lock()
	if !s.running || s.current == nil {
		st := s.statusLocked()
		s.mu.Unlock()
		return st, ErrNoSession
	}
	rs := s.current
	s.mu.Unlock()

	rs.cancel()
	select {
	case <-rs.done:
	case <-ctx.Done():
		return SessionStatus{}, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked(), rs.runErr
}

// Status reports the running session, or the last finished one.
func (s *BenchService) Status(ctx context.Context) (SessionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return SessionStatus{}, ErrNoSession
	}
	return s.statusLocked(), nil
}

// statusLocked snapshots the current session state. Caller holds s.mu.
func (s *BenchService) statusLocked() SessionStatus {
	rs := s.current
	if rs == nil {
		return SessionStatus{}
	}
	st := SessionStatus{
		Name:       rs.name,
		Running:    s.running,
		StartedAt:  rs.startedAt,
		ResultFile: rs.path,
		AllSteady:  rs.session.AllSteady(),
		OTDetected: rs.session.OTDetected(),
		Summary:    rs.session.Summary(),
	}
	if s.running {
		st.ElapsedS = time.Since(rs.startedAt).Seconds()
	} else {
		st.ElapsedS = rs.elapsed
		if rs.runErr != nil {
			st.Error = rs.runErr.Error()
		}
	}
	return st
}

// RunStep executes one scenario step synchronously: set the fan voltage,
// zero every load, apply the step power to the selected cards, then monitor
// until steady state, OT, or the step deadline. A step that never settles
// shuts all loads down. With Cooldown set, a zero-power session follows,
// continuing the step's elapsed clock.
func (s *BenchService) RunStep(ctx context.Context, p StepParams) (StepResult, error) {
	if p.MaxDuration <= 0 {
		p.MaxDuration = defaultStepDuration
	}
	if p.Interval <= 0 {
		p.Interval = defaultStepInterval
	}

	s.log.Infow("scenario step",
		"step", p.StepNo,
		"power_w", p.Power,
		"fan_voltage_v", p.FanVoltage,
		"serials", p.Serials,
		"max_duration_s", p.MaxDuration.Seconds(),
	)

	s.setFanVoltage(ctx, p.FanVoltage)

	// Zero everything, then power only the selected cards.
	if err := s.reg.SetLoadPower(ctx, nil, []float64{0}); err != nil {
		return StepResult{}, fmt.Errorf("zero loads: %w", err)
	}
	if p.Power > 0 {
		if err := s.reg.SetLoadPower(ctx, p.Serials, []float64{p.Power}); err != nil {
			return StepResult{}, fmt.Errorf("set step power: %w", err)
		}
	}

	powerStr := strings.ReplaceAll(fmt.Sprintf("%g", p.Power), ".", "W")
	name := fmt.Sprintf("step_%d_%s", p.StepNo, powerStr)

	elapsed, status, err := s.runStepSession(ctx, name, monitor.Options{
		Duration:         p.MaxDuration,
		Interval:         p.Interval,
		SteadyThreshold:  p.SteadyThreshold,
		SteadyWindow:     p.SteadyWindow,
		ShutdownCardOnOT: true,
		StopOnOT:         true,
		StopOnSteady:     true,
		SaveEveryTick:    true,
	})
	if err != nil {
		_ = s.reg.ShutdownAllLoads(context.Background())
		return StepResult{}, err
	}

	result := StepResult{
		Steady:      status.AllSteady,
		OTDetected:  status.OTDetected,
		ElapsedS:    elapsed,
		ResultFiles: []string{status.ResultFile},
	}

	if !status.AllSteady {
		s.log.Warnw("step did not reach steady state", "step", p.StepNo)
		if err := s.reg.ShutdownAllLoads(ctx); err != nil {
			return result, err
		}
	}

	if p.Cooldown > 0 {
		if err := s.reg.SetLoadPower(ctx, nil, []float64{0}); err != nil {
			return result, fmt.Errorf("zero loads for cooldown: %w", err)
		}
		coolElapsed, coolStatus, err := s.runStepSession(ctx, name+"_cooldown", monitor.Options{
			Duration:        p.Cooldown,
			Interval:        p.Interval,
			SteadyThreshold: p.SteadyThreshold,
			SteadyWindow:    p.SteadyWindow,
			StopOnSteady:    true,
			SaveEveryTick:   true,
			StartOffset:     elapsed,
		})
		if err != nil {
			return result, err
		}
		result.ElapsedS = coolElapsed
		result.ResultFiles = append(result.ResultFiles, coolStatus.ResultFile)
	}

	return result, nil
}

// runStepSession runs one session in the foreground, reusing the background
// machinery so Status keeps working during a step.
func (s *BenchService) runStepSession(ctx context.Context, name string, opts monitor.Options) (float64, SessionStatus, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return 0, SessionStatus{}, ErrSessionActive
	}
	rs, err := s.launchLocked(name, opts)
	if err != nil {
		s.mu.Unlock()
		return 0, SessionStatus{}, err
	}
	s.mu.Unlock()

	select {
	case <-rs.done:
	case <-ctx.Done():
		rs.cancel()
		<-rs.done
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return rs.elapsed, s.statusLocked(), rs.runErr
}

// setFanVoltage applies the step's fan setting. A missing or failing supply
// is logged and the step continues; the crate itself stays controllable.
func (s *BenchService) setFanVoltage(ctx context.Context, volts float64) {
	if s.fan == nil {
		if volts != 0 {
			s.log.Warnw("no fan supply configured, skipping fan setting", "voltage_v", volts)
		}
		return
	}
	err := s.fan.SelectChannel(ctx, s.fanChannel)
	if err == nil {
		err = s.fan.SetVoltage(ctx, volts)
	}
	if err == nil {
		err = s.fan.SetCurrent(ctx, s.fanCurrent)
	}
	if err == nil {
		err = s.fan.SetOutputState(ctx, volts > 0)
	}
	if err != nil {
		s.log.Errorw("setting fan voltage failed", "voltage_v", volts, "err", err)
		return
	}
	s.log.Infow("fan voltage set", "voltage_v", volts, "current_limit_a", s.fanCurrent)
}
