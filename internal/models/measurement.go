package models

// Measurement is one persisted row: a single (card, channel) sample taken
// during one sampling tick. All rows of a tick share the same ElapsedTime.
// TempRatePerMin is nil until the channel's history spans the steady-state
// window.
type Measurement struct {
	ElapsedTime    float64  `json:"elapsed_time"` // s since session start (plus offset)
	CardSerial     string   `json:"card_serial"`
	Channel        int      `json:"channel"`
	Temperature    float64  `json:"temperature"`   // °C
	LoadPower      float64  `json:"load_power"`    // W
	OTShutdown     float64  `json:"ot_shutdown_t"` // °C
	OTEvent        bool     `json:"ot_ev"`
	Voltage        float64  `json:"voltage"` // V, card-level
	Current        float64  `json:"current"` // A, card-level
	SteadyState    bool     `json:"steady_state"`
	TempRatePerMin *float64 `json:"temp_rate_per_min,omitempty"` // °C/min
}

// SteadyEntry is the last-known steady-state verdict for a card and the
// elapsed time at which it took effect. Reporting only; never gates control.
type SteadyEntry struct {
	Steady       bool    `json:"steady"`
	SinceElapsed float64 `json:"since_elapsed"` // s
}
