// Package monitor implements the sampling loop: bounded temperature
// history, steady-state detection and the session scheduler that ties the
// crate, the detector and the measurement sink together.
package monitor

import "math"

// Sample is one (elapsed time, temperature) point.
type Sample struct {
	Time float64 // s, session elapsed time
	Temp float64 // °C
}

// buffer is a fixed-capacity, insertion-ordered series. Appending at
// capacity slides the window: the oldest sample is evicted. Samples are
// never reordered.
type buffer struct {
	samples []Sample
	cap     int
}

func (b *buffer) push(s Sample) {
	if len(b.samples) >= b.cap {
		copy(b.samples, b.samples[1:])
		b.samples[len(b.samples)-1] = s
	} else {
		b.samples = append(b.samples, s)
	}
}

// History is the per-(card, channel) sample arena for one session. Each
// session owns its own instance; nothing here is process-global, so
// chained sessions never contaminate each other.
type History struct {
	window float64 // s
	depth  int
	data   map[string]map[int]*buffer
}

// HistoryDepth sizes the buffers: enough samples to span the window at the
// effective sampling interval, which stretches with card count because
// cards are polled serially within one tick.
func HistoryDepth(windowSeconds, intervalSeconds, perCardSeconds float64, nCards int) int {
	effective := math.Max(intervalSeconds, perCardSeconds*float64(nCards))
	return int(math.Ceil(windowSeconds/effective)) + 1
}

// NewHistory builds an empty arena for the given window duration and
// buffer depth.
func NewHistory(windowSeconds float64, depth int) *History {
	return &History{
		window: windowSeconds,
		depth:  depth,
		data:   make(map[string]map[int]*buffer),
	}
}

// Record appends one sample, evicting the oldest at capacity.
func (h *History) Record(cardID string, channel int, t, temp float64) {
	card, ok := h.data[cardID]
	if !ok {
		card = make(map[int]*buffer)
		h.data[cardID] = card
	}
	buf, ok := card[channel]
	if !ok {
		buf = &buffer{cap: h.depth}
		card[channel] = buf
	}
	buf.push(Sample{Time: t, Temp: temp})
}

// WindowStart returns the index of the oldest sample inside the trailing
// window for the card, judged on channel 0 since all of a card's channels
// share each tick's timestamp. ok is false while the accumulated span is
// shorter than the window.
func (h *History) WindowStart(cardID string) (int, bool) {
	card, ok := h.data[cardID]
	if !ok {
		return 0, false
	}
	buf, ok := card[0]
	if !ok || len(buf.samples) < 2 {
		return 0, false
	}

	oldest := buf.samples[0].Time
	newest := buf.samples[len(buf.samples)-1].Time
	if newest-oldest < h.window {
		return 0, false
	}

	start := newest - h.window
	for i, s := range buf.samples {
		if s.Time >= start {
			return i, true
		}
	}
	return 0, true
}

// Bounds returns the samples at startIdx and at the end of the channel's
// buffer. ok is false when the channel has no samples or startIdx is out of
// range.
func (h *History) Bounds(cardID string, channel, startIdx int) (first, last Sample, ok bool) {
	card, found := h.data[cardID]
	if !found {
		return Sample{}, Sample{}, false
	}
	buf, found := card[channel]
	if !found || len(buf.samples) == 0 || startIdx < 0 || startIdx >= len(buf.samples) {
		return Sample{}, Sample{}, false
	}
	return buf.samples[startIdx], buf.samples[len(buf.samples)-1], true
}

// Len reports the number of stored samples for one channel.
func (h *History) Len(cardID string, channel int) int {
	if card, ok := h.data[cardID]; ok {
		if buf, ok := card[channel]; ok {
			return len(buf.samples)
		}
	}
	return 0
}
