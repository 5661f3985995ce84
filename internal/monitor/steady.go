package monitor

import (
	"sync"

	"cratebench/internal/logger"
	"cratebench/internal/models"
)

// SteadyRegistry tracks when each card reaches or leaves steady state
// across ticks. Purely observational: callers use the first-reached signal
// to avoid duplicate verbose logging, never to alter control flow. Updates
// come from the session loop while Snapshot serves concurrent status reads,
// so the entries are mutex-guarded.
type SteadyRegistry struct {
	log *logger.Logger

	mu      sync.Mutex
	entries map[string]models.SteadyEntry
}

func NewSteadyRegistry(log *logger.Logger) *SteadyRegistry {
	return &SteadyRegistry{
		log:     log,
		entries: make(map[string]models.SteadyEntry),
	}
}

// Update records a card's verdict for this tick and returns true only when
// the card reached steady state for the first time in this session.
func (r *SteadyRegistry) Update(cardID string, steady bool, elapsed float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, known := r.entries[cardID]

	if steady && !known {
		r.entries[cardID] = models.SteadyEntry{Steady: true, SinceElapsed: elapsed}
		r.log.Infow("card first reached steady state", "serial", cardID, "elapsed_s", elapsed)
		return true
	}
	if !known {
		return false
	}

	switch {
	case steady && !entry.Steady:
		r.entries[cardID] = models.SteadyEntry{Steady: true, SinceElapsed: elapsed}
		r.log.Infow("card reached steady state again", "serial", cardID, "elapsed_s", elapsed)
	case !steady && entry.Steady:
		r.entries[cardID] = models.SteadyEntry{Steady: false, SinceElapsed: elapsed}
		r.log.Warnw("card left steady state", "serial", cardID, "elapsed_s", elapsed)
	}
	return false
}

// Snapshot copies the current entries for reporting.
func (r *SteadyRegistry) Snapshot() map[string]models.SteadyEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]models.SteadyEntry, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}
