package crate

import (
	"context"
	"errors"
	"testing"

	"cratebench/internal/logger"
	"cratebench/internal/models"
)

// ---- Test doubles ----

// fakeCard is a scriptable Card for registry tests.
type fakeCard struct {
	serial    string
	regular   int
	maxTotal  float64
	report    models.CardReport
	reportErr error

	shutdownCalls int
	shutdownErr   error
	lastPerCh     float64
	setAllCalls   int
}

func (f *fakeCard) Serial() string        { return f.serial }
func (f *fakeCard) RegularChannels() int  { return f.regular }
func (f *fakeCard) MaxLoadPower() float64 { return f.maxTotal }

func (f *fakeCard) Report(ctx context.Context) (models.CardReport, error) {
	return f.report, f.reportErr
}

func (f *fakeCard) SetLoadPower(ctx context.Context, channel int, watts float64) error {
	return nil
}

func (f *fakeCard) SetAllLoadPower(ctx context.Context, watts float64) error {
	f.setAllCalls++
	f.lastPerCh = watts
	return nil
}

func (f *fakeCard) ShutdownAllLoads(ctx context.Context) error {
	f.shutdownCalls++
	if f.shutdownErr != nil {
		return f.shutdownErr
	}
	for i := range f.report.Channels {
		f.report.Channels[i].LoadPower = 0
	}
	return nil
}

func newFakeCard(serial string, ot bool) *fakeCard {
	return &fakeCard{
		serial:   serial,
		regular:  16,
		maxTotal: 80,
		report: models.CardReport{
			CardSerial: serial,
			Voltage:    12,
			Current:    1,
			Channels: []models.ChannelReport{
				{Temperature: 40, LoadPower: 2, OTShutdown: 85},
				{Temperature: 42, LoadPower: 2, OTShutdown: 85, OTEvent: ot},
			},
		},
	}
}

func connectTo(card Card) Connector {
	return func(string) (Card, error) { return card, nil }
}

func testRegistry(t *testing.T, cards ...*fakeCard) *Registry {
	t.Helper()
	r := NewRegistry(logger.Get(logger.ErrorLevel))
	for _, c := range cards {
		if err := r.AddCard(c.serial, connectTo(c)); err != nil {
			t.Fatalf("AddCard(%s): %v", c.serial, err)
		}
	}
	return r
}

// ---- Tests ----

func TestValidateSerial(t *testing.T) {
	for _, ok := range []string{"DT0", "DT8", "DT15"} {
		if err := ValidateSerial(ok); err != nil {
			t.Fatalf("ValidateSerial(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "DT", "XX1", "DT99", "DT-1", "dt1"} {
		if err := ValidateSerial(bad); !errors.Is(err, ErrInvalidSerial) {
			t.Fatalf("ValidateSerial(%q): expected ErrInvalidSerial, got %v", bad, err)
		}
	}
}

func TestAddCard_ConnectionFailureIsNonFatal(t *testing.T) {
	r := NewRegistry(logger.Get(logger.ErrorLevel))
	var events []models.CrateEvent
	r.SetEventFunc(func(e models.CrateEvent) { events = append(events, e) })

	err := r.AddCard("DT3", func(string) (Card, error) {
		return nil, errors.New("bus timeout")
	})
	if err != nil {
		t.Fatalf("connection failure must be non-fatal, got %v", err)
	}
	if len(r.CardIDs()) != 0 {
		t.Fatalf("card must be absent after failed connect, got %v", r.CardIDs())
	}
	if len(events) != 1 || events[0].Type != models.EventCardError {
		t.Fatalf("expected one CARD_ERROR event, got %+v", events)
	}

	// A malformed serial is a configuration error and is returned.
	if err := r.AddCard("bogus", connectTo(newFakeCard("bogus", false))); !errors.Is(err, ErrInvalidSerial) {
		t.Fatalf("expected ErrInvalidSerial, got %v", err)
	}
}

func TestReportAll_FixedOrderAndUnknownSerial(t *testing.T) {
	a := newFakeCard("DT0", false)
	b := newFakeCard("DT1", false)
	r := testRegistry(t, a, b)

	reports, err := r.ReportAll(context.Background(), false, nil)
	if err != nil {
		t.Fatalf("ReportAll: %v", err)
	}
	if len(reports) != 2 || reports[0].CardSerial != "DT0" || reports[1].CardSerial != "DT1" {
		t.Fatalf("wrong order: %+v", reports)
	}

	if _, err := r.ReportAll(context.Background(), false, []string{"DT7"}); !errors.Is(err, ErrCardNotFound) {
		t.Fatalf("expected ErrCardNotFound, got %v", err)
	}
}

func TestReportAll_OTShutsDownOnlyThatCard(t *testing.T) {
	hot := newFakeCard("DT0", true)
	cold := newFakeCard("DT1", false)
	r := testRegistry(t, hot, cold)
	var events []models.CrateEvent
	r.SetEventFunc(func(e models.CrateEvent) { events = append(events, e) })

	reports, err := r.ReportAll(context.Background(), true, nil)
	if err != nil {
		t.Fatalf("ReportAll: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected both reports, got %d", len(reports))
	}
	if hot.shutdownCalls != 1 {
		t.Fatalf("hot card shutdown calls = %d, want 1", hot.shutdownCalls)
	}
	if cold.shutdownCalls != 0 {
		t.Fatalf("cold card must not be shut down, calls = %d", cold.shutdownCalls)
	}
	if len(events) != 1 || events[0].Type != models.EventOT {
		t.Fatalf("expected one OT_EVENT, got %+v", events)
	}

	// Disabled safety policy: no shutdown even with OT flagged.
	hot.shutdownCalls = 0
	hot.report.Channels[1].OTEvent = true
	if _, err := r.ReportAll(context.Background(), false, nil); err != nil {
		t.Fatalf("ReportAll: %v", err)
	}
	if hot.shutdownCalls != 0 {
		t.Fatalf("shutdown must not run when policy disabled")
	}
}

func TestReportAll_FailedCardIsSkipped(t *testing.T) {
	broken := newFakeCard("DT0", false)
	broken.reportErr = errors.New("nack")
	ok := newFakeCard("DT1", false)
	r := testRegistry(t, broken, ok)
	var events []models.CrateEvent
	r.SetEventFunc(func(e models.CrateEvent) { events = append(events, e) })

	reports, err := r.ReportAll(context.Background(), true, nil)
	if err != nil {
		t.Fatalf("ReportAll: %v", err)
	}
	if len(reports) != 1 || reports[0].CardSerial != "DT1" {
		t.Fatalf("expected only DT1, got %+v", reports)
	}
	if len(events) != 1 || events[0].Type != models.EventCardError {
		t.Fatalf("expected CARD_ERROR event, got %+v", events)
	}
}

func TestSetLoadPower_DistributesAndClamps(t *testing.T) {
	a := newFakeCard("DT0", false)
	b := newFakeCard("DT1", false)
	r := testRegistry(t, a, b)
	var events []models.CrateEvent
	r.SetEventFunc(func(e models.CrateEvent) { events = append(events, e) })

	// 32 W over 16 regular channels → 2 W each.
	if err := r.SetLoadPower(context.Background(), []string{"DT0"}, []float64{32}); err != nil {
		t.Fatalf("SetLoadPower: %v", err)
	}
	if a.lastPerCh != 2 {
		t.Fatalf("per-channel = %.2f, want 2", a.lastPerCh)
	}

	// 999 W is clamped to each card's 80 W max, and each clamp is recorded.
	events = nil
	if err := r.SetLoadPower(context.Background(), []string{"DT0", "DT1"}, []float64{999}); err != nil {
		t.Fatalf("SetLoadPower: %v", err)
	}
	if a.lastPerCh != 5 || b.lastPerCh != 5 {
		t.Fatalf("clamped per-channel = %.2f/%.2f, want 5/5", a.lastPerCh, b.lastPerCh)
	}
	if len(events) != 2 || events[0].Type != models.EventClamp || events[1].Type != models.EventClamp {
		t.Fatalf("expected two CLAMP events, got %+v", events)
	}

	// Clamping is idempotent: same request lands on the same value.
	if err := r.SetLoadPower(context.Background(), []string{"DT0"}, []float64{999}); err != nil {
		t.Fatalf("SetLoadPower: %v", err)
	}
	if a.lastPerCh != 5 {
		t.Fatalf("repeated clamp changed value: %.2f", a.lastPerCh)
	}

	// Mismatched list lengths and negative power are configuration errors.
	if err := r.SetLoadPower(context.Background(), []string{"DT0", "DT1"}, []float64{1, 2, 3}); !errors.Is(err, ErrPowerListLength) {
		t.Fatalf("expected ErrPowerListLength, got %v", err)
	}
	if err := r.SetLoadPower(context.Background(), nil, []float64{-1}); !errors.Is(err, ErrPowerOutOfRange) {
		t.Fatalf("expected ErrPowerOutOfRange, got %v", err)
	}
}

func TestShutdownAllLoads_BestEffort(t *testing.T) {
	bad := newFakeCard("DT0", false)
	bad.shutdownErr = errors.New("bus gone")
	good := newFakeCard("DT1", false)
	r := testRegistry(t, bad, good)

	err := r.ShutdownAllLoads(context.Background())
	if err == nil {
		t.Fatalf("expected joined error from failed card")
	}
	if good.shutdownCalls != 1 {
		t.Fatalf("good card must still be shut down, calls = %d", good.shutdownCalls)
	}

	// Idempotent on healthy cards.
	if err := testRegistry(t, newFakeCard("DT2", false)).ShutdownAllLoads(context.Background()); err != nil {
		t.Fatalf("ShutdownAllLoads: %v", err)
	}
}
