package crate

import (
	"context"

	"cratebench/internal/models"
)

// Card is the capability contract of one physical test card. Implementations
// talk to hardware over a shared serial bus, so calls may be slow and may
// fail; none of them are safe for concurrent use from multiple goroutines
// unless the implementation says otherwise.
//
// Channel layout: indices [0, RegularChannels) are regular load channels,
// index RegularChannels is the auxiliary load channel (own power ceiling),
// and any further indices are sensor-only channels with no controllable
// load.
type Card interface {
	Serial() string

	// Report reads a full snapshot: per-channel temperature, load power,
	// thresholds and OT flag, plus card-level bus voltage and current.
	Report(ctx context.Context) (models.CardReport, error)

	// SetLoadPower sets one channel's load power in watts. Values above the
	// channel's ceiling or below zero are rejected, not clamped.
	SetLoadPower(ctx context.Context, channel int, watts float64) error

	// SetAllLoadPower sets every regular load channel (aux excluded) to the
	// given per-channel power.
	SetAllLoadPower(ctx context.Context, watts float64) error

	// ShutdownAllLoads zeroes every load channel, aux included. Idempotent.
	ShutdownAllLoads(ctx context.Context) error

	// RegularChannels is the number of regular load channels, i.e. the
	// channels that participate in even power distribution.
	RegularChannels() int

	// MaxLoadPower is the card's maximum total load power: the sum of the
	// regular channels' ceilings (aux excluded).
	MaxLoadPower() float64
}

// Connector dials the card with the given serial and returns a handle to
// it. Injected so the registry can be built against fakes in tests and
// against the simulator in demos.
type Connector func(serial string) (Card, error)
