package monitor

import (
	"math"
	"testing"
)

func TestChannelVerdict_RateFormula(t *testing.T) {
	h := NewHistory(60, 100)
	// 2 °C over 80 s → 1.5 °C/min.
	h.Record("DT0", 0, 0, 40)
	h.Record("DT0", 0, 80, 42)

	d := Detector{Threshold: 1.0}
	rate, hasRate, steady := d.ChannelVerdict(h, "DT0", 0, 0, true)
	if !hasRate {
		t.Fatalf("expected a rate")
	}
	want := (42.0 - 40.0) * 60.0 / 80.0
	if math.Abs(rate-want) > 1e-12 {
		t.Fatalf("rate = %v, want %v", rate, want)
	}
	if steady {
		t.Fatalf("1.5 °C/min must not be steady at 1.0 threshold")
	}

	// Cooling at the same magnitude is equally non-steady.
	h2 := NewHistory(60, 100)
	h2.Record("DT0", 0, 0, 42)
	h2.Record("DT0", 0, 80, 40)
	rate, _, steady = d.ChannelVerdict(h2, "DT0", 0, 0, true)
	if rate >= 0 || steady {
		t.Fatalf("cooling rate = %v steady = %v", rate, steady)
	}

	// Within threshold → steady.
	h3 := NewHistory(60, 100)
	h3.Record("DT0", 0, 0, 40)
	h3.Record("DT0", 0, 120, 41)
	if _, _, steady := d.ChannelVerdict(h3, "DT0", 0, 0, true); !steady {
		t.Fatalf("0.5 °C/min must be steady at 1.0 threshold")
	}
}

func TestChannelVerdict_NoWindowAndDegenerate(t *testing.T) {
	d := Detector{Threshold: 1.0}
	h := NewHistory(60, 100)
	h.Record("DT0", 0, 10, 40)

	// No window yet: benign not-steady, no rate, no error.
	if rate, hasRate, steady := d.ChannelVerdict(h, "DT0", 0, 0, false); hasRate || steady || rate != 0 {
		t.Fatalf("no-window verdict: rate=%v hasRate=%v steady=%v", rate, hasRate, steady)
	}

	// Degenerate window: single sample, dt == 0.
	if _, hasRate, steady := d.ChannelVerdict(h, "DT0", 0, 0, true); hasRate || steady {
		t.Fatalf("degenerate window must be not-steady with no rate")
	}
}

func TestCardVerdict(t *testing.T) {
	d := Detector{Threshold: 1.0}

	if d.CardVerdict(nil) {
		t.Fatalf("zero monitored channels must not be steady")
	}
	if !d.CardVerdict([]bool{true, true, true}) {
		t.Fatalf("all-steady card must be steady")
	}
	if d.CardVerdict([]bool{true, false, true}) {
		t.Fatalf("one non-steady channel must fail the card")
	}
}

// Rising 0.5 °C per 5 s sample for 15 samples, then flat: the verdict must
// stay not-steady until the flat tail alone spans the 60 s window.
func TestSteadyOnlyAfterFlatWindow(t *testing.T) {
	const (
		window    = 60.0
		interval  = 5.0
		threshold = 1.0
	)
	h := NewHistory(window, 200)
	d := Detector{Threshold: threshold}

	// Same tick shape as the session: locate the window before appending,
	// then judge with the fresh sample as endpoint.
	verdictAt := func(ts, temp float64) bool {
		idx, ok := h.WindowStart("DT0")
		h.Record("DT0", 0, ts, temp)
		_, _, steady := d.ChannelVerdict(h, "DT0", 0, idx, ok)
		return steady
	}

	temp := 25.0
	ts := 0.0
	for i := 0; i < 15; i++ {
		if verdictAt(ts, temp) {
			t.Fatalf("steady while ramping at t=%.0f", ts)
		}
		temp += 0.5
		ts += interval
	}

	// Flat at 32.5 °C from t=75 on. The window still reaches back into the
	// ramp; the measured rate decays as the flat tail grows and crosses
	// the threshold between t=125 and t=130.
	for ; ts <= 125; ts += interval {
		if verdictAt(ts, 32.5) {
			t.Fatalf("steady at t=%.0f with ramp still inside the window", ts)
		}
	}
	for ; ts <= 180; ts += interval {
		if !verdictAt(ts, 32.5) {
			t.Fatalf("expected steady at t=%.0f", ts)
		}
	}
}
