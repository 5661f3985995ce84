package service

import (
	"time"

	"cratebench/internal/models"
)

// SessionParams configures one monitoring session started over the API.
type SessionParams struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Interval time.Duration `json:"interval"`

	SteadyThreshold float64       `json:"steady_threshold"` // °C/min
	SteadyWindow    time.Duration `json:"steady_window"`

	ShutdownCardOnOT bool `json:"shutdown_card_on_ot"`
	StopOnOT         bool `json:"stop_on_ot"`
	StopOnSteady     bool `json:"stop_on_steady"`
	ShutdownAtEnd    bool `json:"shutdown_at_end"`
	SaveEveryTick    bool `json:"save_every_tick"`

	Serials           []string `json:"serials"` // empty = every registered card
	MonitoredChannels int      `json:"monitored_channels"`
}

// StepParams describes one bench scenario step: fan setting, load power,
// then a monitoring session that runs until steady state or OT.
type StepParams struct {
	StepNo     int     `json:"step_no"`
	Power      float64 `json:"power"`       // W per card
	FanVoltage float64 `json:"fan_voltage"` // V

	// Serials selects the cards that receive Power; all other cards are
	// zeroed first. Empty = all cards.
	Serials []string `json:"serials"`

	MaxDuration time.Duration `json:"max_duration"` // default 20 min
	Interval    time.Duration `json:"interval"`     // default 1 s

	SteadyThreshold float64       `json:"steady_threshold"` // °C/min
	SteadyWindow    time.Duration `json:"steady_window"`

	// Cooldown, when positive, chains a zero-power session after the step
	// that continues the step's elapsed-time clock.
	Cooldown time.Duration `json:"cooldown"`
}

// StepResult is what a finished scenario step reports back.
type StepResult struct {
	Steady      bool     `json:"steady"`
	OTDetected  bool     `json:"ot_detected"`
	ElapsedS    float64  `json:"elapsed_s"`
	ResultFiles []string `json:"result_files"`
}

// SessionStatus is the externally visible state of the bench: the running
// session, or the last finished one.
type SessionStatus struct {
	Name       string                       `json:"name"`
	Running    bool                         `json:"running"`
	StartedAt  time.Time                    `json:"started_at"`
	ResultFile string                       `json:"result_file"`
	ElapsedS   float64                      `json:"elapsed_s"`
	AllSteady  bool                         `json:"all_steady"`
	OTDetected bool                         `json:"ot_detected"`
	Error      string                       `json:"error,omitempty"`
	Summary    map[string]models.SteadyEntry `json:"summary,omitempty"`
}

// LogFilter supports event history filtering by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "", "SESSION_START", "SESSION_END", "OT_EVENT", "STEADY_STATE", "CLAMP", "CARD_ERROR"
}
