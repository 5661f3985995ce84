package models

// ChannelReport is the per-channel slice of a card report. OTEvent is the
// software-side over-temperature flag: true when the latest temperature is
// at or above the configured shutdown threshold.
type ChannelReport struct {
	Temperature float64 `json:"temperature"`   // °C
	LoadPower   float64 `json:"load_power"`    // W
	Hysteresis  float64 `json:"hysteresis"`    // °C
	OTShutdown  float64 `json:"ot_shutdown_t"` // °C
	OTEvent     bool    `json:"ot_ev"`
}

// CardReport is one card's snapshot taken in a single bus transaction.
// Channels are ordered: regular load channels first, then the auxiliary
// load channel, then sensor-only channels.
type CardReport struct {
	CardSerial string          `json:"card_serial"`
	Voltage    float64         `json:"voltage"` // V
	Current    float64         `json:"current"` // A
	Channels   []ChannelReport `json:"channels"`
}

// AnyChannelOT reports whether any channel of the report flags an OT event.
func (r CardReport) AnyChannelOT() bool {
	for _, ch := range r.Channels {
		if ch.OTEvent {
			return true
		}
	}
	return false
}
