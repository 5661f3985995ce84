package crate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"cratebench/internal/logger"
	"cratebench/internal/models"
)

// Configuration errors, rejected eagerly at the call site. Runtime/hardware
// failures are logged, recorded as events and carried in-band instead.
var (
	ErrInvalidSerial   = errors.New("invalid card serial")
	ErrCardNotFound    = errors.New("card not found")
	ErrNoSuchChannel   = errors.New("no such load channel")
	ErrPowerOutOfRange = errors.New("load power out of range")
	ErrPowerListLength = errors.New("power list length does not match serial list")
)

// Card serials are "DT" plus a slot number. Slots are bounded by the crate
// backplane.
var serialPattern = regexp.MustCompile(`^DT([0-9]{1,2})$`)

const maxCrateSlot = 15

// ValidateSerial checks the "DT<slot>" format and the slot bound.
func ValidateSerial(serial string) error {
	m := serialPattern.FindStringSubmatch(serial)
	if m == nil {
		return fmt.Errorf("%w: %q must match DT<slot>", ErrInvalidSerial, serial)
	}
	slot, _ := strconv.Atoi(m[1])
	if slot > maxCrateSlot {
		return fmt.Errorf("%w: slot %d exceeds %d", ErrInvalidSerial, slot, maxCrateSlot)
	}
	return nil
}

// EventFunc receives safety-relevant registry events (clamps, card
// failures, OT shutdowns) for persistence. May be nil.
type EventFunc func(e models.CrateEvent)

// Registry owns the session's Card handles. It is the only component that
// issues power or shutdown commands, so the OT safety action lives in
// exactly one place. Cards are reported in insertion order; polling is
// strictly sequential because the underlying bus tolerates one talker.
type Registry struct {
	log     *logger.Logger
	cards   map[string]Card
	order   []string
	onEvent EventFunc
}

func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		log:   log,
		cards: make(map[string]Card),
	}
}

// SetEventFunc installs the event hook. Call before the registry is shared.
func (r *Registry) SetEventFunc(fn EventFunc) { r.onEvent = fn }

func (r *Registry) emit(typ, desc string, meta map[string]any) {
	if r.onEvent == nil {
		return
	}
	r.onEvent(models.CrateEvent{
		OccurredAt:  time.Now().UTC(),
		Type:        typ,
		Description: desc,
		Metadata:    meta,
	})
}

// AddCard validates the serial and connects the card. A malformed serial is
// a configuration error and is returned. A connection failure is not: the
// card is logged, recorded and left out of the registry, and the session
// proceeds with the remaining cards.
func (r *Registry) AddCard(serial string, connect Connector) error {
	if err := ValidateSerial(serial); err != nil {
		return err
	}
	if _, ok := r.cards[serial]; ok {
		return fmt.Errorf("%w: %q already registered", ErrInvalidSerial, serial)
	}

	card, err := connect(serial)
	if err != nil {
		r.log.Warnw("card connection failed, excluding from crate", "serial", serial, "err", err)
		r.emit(models.EventCardError, fmt.Sprintf("card %s failed to connect", serial),
			map[string]any{"serial": serial, "err": err.Error()})
		return nil
	}

	r.cards[serial] = card
	r.order = append(r.order, serial)
	r.log.Infow("card connected", "serial", serial)
	return nil
}

// CardIDs returns the registered serials in report order.
func (r *Registry) CardIDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Card looks up a handle by serial.
func (r *Registry) Card(serial string) (Card, error) {
	card, ok := r.cards[serial]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCardNotFound, serial)
	}
	return card, nil
}

func (r *Registry) resolve(serials []string) ([]string, error) {
	if len(serials) == 0 {
		return r.CardIDs(), nil
	}
	for _, s := range serials {
		if _, ok := r.cards[s]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrCardNotFound, s)
		}
	}
	return serials, nil
}

// ReportAll collects a report from each requested card (default: all), in
// fixed order. A card whose report fails is skipped for this tick with a
// warning and a CARD_ERROR event; the tick proceeds with the remaining
// cards. When shutdownOnOT is set and a report flags an OT event on any
// channel, that card's loads are shut down immediately; only that card's.
func (r *Registry) ReportAll(ctx context.Context, shutdownOnOT bool, serials []string) ([]models.CardReport, error) {
	ids, err := r.resolve(serials)
	if err != nil {
		return nil, err
	}

	reports := make([]models.CardReport, 0, len(ids))
	for _, id := range ids {
		card := r.cards[id]
		rep, err := card.Report(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return reports, ctx.Err()
			}
			r.log.Warnw("card report failed, skipping for this tick", "serial", id, "err", err)
			r.emit(models.EventCardError, fmt.Sprintf("card %s report failed", id),
				map[string]any{"serial": id, "err": err.Error()})
			continue
		}

		if shutdownOnOT && rep.AnyChannelOT() {
			r.log.Warnw("OT event, shutting down card loads", "serial", id)
			if err := card.ShutdownAllLoads(ctx); err != nil {
				// A failed safety shutdown is never swallowed.
				r.log.Errorw("OT shutdown failed", "serial", id, "err", err)
				r.emit(models.EventCardError, fmt.Sprintf("card %s OT shutdown failed", id),
					map[string]any{"serial": id, "err": err.Error()})
			} else {
				r.emit(models.EventOT, fmt.Sprintf("card %s shut down on OT", id),
					map[string]any{"serial": id})
			}
		}

		reports = append(reports, rep)
	}
	return reports, nil
}

// SetLoadPower applies a per-card total power to one or more cards. powers
// holds either a single value applied to every card or one value per
// serial. The total is distributed evenly across the card's regular load
// channels (aux excluded); a request above the card's maximum is clamped to
// the maximum, logged and recorded.
func (r *Registry) SetLoadPower(ctx context.Context, serials []string, powers []float64) error {
	ids, err := r.resolve(serials)
	if err != nil {
		return err
	}
	if len(powers) != 1 && len(powers) != len(ids) {
		return fmt.Errorf("%w: %d powers for %d cards", ErrPowerListLength, len(powers), len(ids))
	}
	for _, p := range powers {
		if p < 0 {
			return fmt.Errorf("%w: %.2f W", ErrPowerOutOfRange, p)
		}
	}

	for i, id := range ids {
		card := r.cards[id]
		total := powers[0]
		if len(powers) > 1 {
			total = powers[i]
		}

		if max := card.MaxLoadPower(); total > max {
			r.log.Warnw("requested power clamped to card maximum",
				"serial", id, "requested_w", total, "max_w", max)
			r.emit(models.EventClamp, fmt.Sprintf("card %s power clamped", id),
				map[string]any{"serial": id, "requested_w": total, "max_w": max})
			total = max
		}

		perChannel := total / float64(card.RegularChannels())
		if err := card.SetAllLoadPower(ctx, perChannel); err != nil {
			return fmt.Errorf("set load power on %s: %w", id, err)
		}
		r.log.Infow("card load power set", "serial", id, "total_w", total, "per_channel_w", perChannel)
	}
	return nil
}

// ShutdownAllLoads zeroes every load channel on every registered card.
// Idempotent and best-effort: it keeps going past per-card failures and
// reports them joined, so it is safe to call from error and interrupt
// paths.
func (r *Registry) ShutdownAllLoads(ctx context.Context) error {
	var errs []error
	for _, id := range r.order {
		if err := r.cards[id].ShutdownAllLoads(ctx); err != nil {
			r.log.Errorw("load shutdown failed", "serial", id, "err", err)
			r.emit(models.EventCardError, fmt.Sprintf("card %s load shutdown failed", id),
				map[string]any{"serial": id, "err": err.Error()})
			errs = append(errs, fmt.Errorf("shutdown %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
