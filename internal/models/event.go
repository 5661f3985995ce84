package models

import "time"

// Event types recorded in the crate event log.
const (
	EventSessionStart = "SESSION_START"
	EventSessionEnd   = "SESSION_END"
	EventOT           = "OT_EVENT"
	EventSteadyState  = "STEADY_STATE"
	EventClamp        = "CLAMP"
	EventCardError    = "CARD_ERROR"
)

// CrateEvent is a single append-only log entry.
type CrateEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Metadata    any       `json:"metadata,omitempty"`
}
