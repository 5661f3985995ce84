package monitor

import "math"

// Detector turns history into a temperature rate and a steady/not-steady
// verdict. A channel is steady when the absolute rate over the trailing
// window is within Threshold.
type Detector struct {
	Threshold float64 // °C/min
}

// ChannelVerdict computes the channel's rate over [startIdx, latest] and
// its verdict. With no window yet (hasWindow false) or a degenerate window
// (elapsed ≤ 0) the channel is reported not steady with no rate; neither
// case is an error.
func (d Detector) ChannelVerdict(h *History, cardID string, channel, startIdx int, hasWindow bool) (rate float64, hasRate, steady bool) {
	if !hasWindow {
		return 0, false, false
	}
	first, last, ok := h.Bounds(cardID, channel, startIdx)
	if !ok {
		return 0, false, false
	}
	dt := last.Time - first.Time
	if dt <= 0 {
		return 0, false, false
	}
	rate = (last.Temp - first.Temp) * 60.0 / dt
	return rate, true, math.Abs(rate) <= d.Threshold
}

// CardVerdict folds channel verdicts: a card is steady iff every monitored
// channel is steady. A card with no monitored channels is not steady:
// vacuous success with zero data is rejected.
func (d Detector) CardVerdict(channelSteady []bool) bool {
	if len(channelSteady) == 0 {
		return false
	}
	for _, s := range channelSteady {
		if !s {
			return false
		}
	}
	return true
}
