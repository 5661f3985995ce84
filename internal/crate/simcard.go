package crate

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"cratebench/internal/models"
)

// Simulation defaults, matching the card geometry of the bench hardware:
// 16 regular load channels at 5 W, one auxiliary 3 W channel, two
// sensor-only connector channels. Card total is the sum of the regular
// ceilings (80 W).
const (
	DefaultRegularChannels = 16
	DefaultRegularMaxW     = 5.0
	DefaultAuxMaxW         = 3.0
	DefaultSensorChannels  = 2

	DefaultAmbientC    = 25.0
	DefaultOTShutdownC = 85.0
	DefaultHysteresisC = 80.0

	defaultGainCPerW     = 8.0   // equilibrium rise per watt on a channel
	defaultCouplingCPerW = 0.15  // rise per watt of total card power
	defaultTimeConstS    = 90.0  // first-order thermal time constant
	defaultSupplyV       = 12.0
)

// SimConfig parameterizes a simulated card.
type SimConfig struct {
	RegularChannels int
	RegularMaxW     float64
	AuxMaxW         float64
	SensorChannels  int

	AmbientC    float64
	OTShutdownC float64
	HysteresisC float64

	GainCPerW     float64
	CouplingCPerW float64
	TimeConstS    float64
	SupplyV       float64
}

func (c SimConfig) withDefaults() SimConfig {
	if c.RegularChannels == 0 {
		c.RegularChannels = DefaultRegularChannels
	}
	if c.RegularMaxW == 0 {
		c.RegularMaxW = DefaultRegularMaxW
	}
	if c.AuxMaxW == 0 {
		c.AuxMaxW = DefaultAuxMaxW
	}
	if c.SensorChannels == 0 {
		c.SensorChannels = DefaultSensorChannels
	}
	if c.AmbientC == 0 {
		c.AmbientC = DefaultAmbientC
	}
	if c.OTShutdownC == 0 {
		c.OTShutdownC = DefaultOTShutdownC
	}
	if c.HysteresisC == 0 {
		c.HysteresisC = DefaultHysteresisC
	}
	if c.GainCPerW == 0 {
		c.GainCPerW = defaultGainCPerW
	}
	if c.CouplingCPerW == 0 {
		c.CouplingCPerW = defaultCouplingCPerW
	}
	if c.TimeConstS == 0 {
		c.TimeConstS = defaultTimeConstS
	}
	if c.SupplyV == 0 {
		c.SupplyV = defaultSupplyV
	}
	return c
}

type simChannel struct {
	maxPower float64 // 0 for sensor-only channels
	power    float64
	tempC    float64
}

func (ch *simChannel) isLoad() bool { return ch.maxPower > 0 }

// SimCard is a software stand-in for one test card: each channel's
// temperature relaxes first-order toward ambient plus a power-proportional
// rise. It implements Card and is safe for concurrent use.
type SimCard struct {
	serial string
	cfg    SimConfig

	mu       sync.Mutex
	channels []simChannel
	lastStep time.Time
	now      func() time.Time
}

// NewSimCard builds a simulated card at ambient temperature with all loads
// off. Zero-valued SimConfig fields fall back to bench defaults.
func NewSimCard(serial string, cfg SimConfig) *SimCard {
	cfg = cfg.withDefaults()
	c := &SimCard{
		serial: serial,
		cfg:    cfg,
		now:    time.Now,
	}
	n := cfg.RegularChannels + 1 + cfg.SensorChannels
	c.channels = make([]simChannel, n)
	for i := range c.channels {
		c.channels[i].tempC = cfg.AmbientC
		switch {
		case i < cfg.RegularChannels:
			c.channels[i].maxPower = cfg.RegularMaxW
		case i == cfg.RegularChannels:
			c.channels[i].maxPower = cfg.AuxMaxW
		}
	}
	c.lastStep = c.now()
	return c
}

func (c *SimCard) Serial() string { return c.serial }

func (c *SimCard) RegularChannels() int { return c.cfg.RegularChannels }

func (c *SimCard) MaxLoadPower() float64 {
	return float64(c.cfg.RegularChannels) * c.cfg.RegularMaxW
}

// step advances every channel's temperature to the current time. Caller
// holds c.mu.
func (c *SimCard) step() {
	now := c.now()
	dt := now.Sub(c.lastStep).Seconds()
	c.lastStep = now
	if dt <= 0 {
		return
	}

	total := 0.0
	for i := range c.channels {
		total += c.channels[i].power
	}

	// First-order relaxation toward the equilibrium temperature.
	alpha := 1 - math.Exp(-dt/c.cfg.TimeConstS)
	for i := range c.channels {
		ch := &c.channels[i]
		eq := c.cfg.AmbientC + c.cfg.GainCPerW*ch.power + c.cfg.CouplingCPerW*total
		ch.tempC += (eq - ch.tempC) * alpha
	}
}

func (c *SimCard) Report(ctx context.Context) (models.CardReport, error) {
	if err := ctx.Err(); err != nil {
		return models.CardReport{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step()

	total := 0.0
	channels := make([]models.ChannelReport, len(c.channels))
	for i := range c.channels {
		ch := &c.channels[i]
		total += ch.power
		channels[i] = models.ChannelReport{
			Temperature: ch.tempC,
			LoadPower:   ch.power,
			Hysteresis:  c.cfg.HysteresisC,
			OTShutdown:  c.cfg.OTShutdownC,
			OTEvent:     ch.tempC >= c.cfg.OTShutdownC,
		}
	}

	return models.CardReport{
		CardSerial: c.serial,
		Voltage:    c.cfg.SupplyV,
		Current:    total / c.cfg.SupplyV,
		Channels:   channels,
	}, nil
}

func (c *SimCard) SetLoadPower(ctx context.Context, channel int, watts float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if channel < 0 || channel >= len(c.channels) {
		return fmt.Errorf("%w: channel %d not in [0, %d)", ErrNoSuchChannel, channel, len(c.channels))
	}
	ch := &c.channels[channel]
	if !ch.isLoad() {
		return fmt.Errorf("%w: channel %d is sensor-only", ErrNoSuchChannel, channel)
	}
	if watts < 0 || watts > ch.maxPower {
		return fmt.Errorf("%w: %.2f W on channel %d (max %.2f W)",
			ErrPowerOutOfRange, watts, channel, ch.maxPower)
	}
	c.step()
	ch.power = watts
	return nil
}

func (c *SimCard) SetAllLoadPower(ctx context.Context, watts float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if watts < 0 || watts > c.cfg.RegularMaxW {
		return fmt.Errorf("%w: %.2f W per channel (max %.2f W)",
			ErrPowerOutOfRange, watts, c.cfg.RegularMaxW)
	}
	c.step()
	for i := 0; i < c.cfg.RegularChannels; i++ {
		c.channels[i].power = watts
	}
	return nil
}

func (c *SimCard) ShutdownAllLoads(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step()
	for i := range c.channels {
		if c.channels[i].isLoad() {
			c.channels[i].power = 0
		}
	}
	return nil
}
