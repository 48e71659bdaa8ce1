// Package quota wraps batched persistence in a storage budget. When a batch
// would exceed the configured ceiling it drops data one tier at a time,
// least critical first, and emits a warning for every truncation so quota
// exhaustion is never silently indistinguishable from data loss.
package quota

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Tier orders data by how much it hurts to lose. Lower values are dropped
// first.
type Tier int

const (
	// TierTransient holds regenerable data: form drafts, UI scratch state.
	TierTransient Tier = iota
	// TierQueued holds lower-priority queued items: synced cache copies,
	// media references the server already has.
	TierQueued
	// TierCritical holds unsynced primary records. Dropped only when even
	// this tier alone cannot fit under the ceiling.
	TierCritical
)

func (t Tier) String() string {
	switch t {
	case TierTransient:
		return "transient"
	case TierQueued:
		return "queued"
	case TierCritical:
		return "critical"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// Item is one unit of a batch write with an assigned priority tier.
type Item struct {
	Key  string          `json:"key"`
	Tier Tier            `json:"tier"`
	Data json.RawMessage `json:"data"`
}

// Warning describes one truncation decision.
type Warning struct {
	Tier    Tier
	Dropped int
	Reason  string
}

// Guard enforces a serialized-size ceiling over batched writes.
type Guard struct {
	// CeilingBytes is the storage budget. Zero means unlimited.
	CeilingBytes int
	// OnWarning observes every truncation; optional.
	OnWarning func(Warning)
}

// New returns a Guard with the given ceiling in bytes.
func New(ceilingBytes int) *Guard {
	return &Guard{CeilingBytes: ceilingBytes}
}

// EstimateSize returns the serialized size of a batch in bytes.
func EstimateSize(items []Item) int {
	total := 0
	for _, item := range items {
		total += itemSize(item)
	}
	return total
}

func itemSize(item Item) int {
	b, err := json.Marshal(item)
	if err != nil {
		// Unserializable items are counted by their raw payload
		return len(item.Data)
	}
	return len(b)
}

// Fit shrinks a batch until its serialized size fits under the ceiling,
// dropping whole tiers in priority order before touching anything above
// them. Within the final surviving tier, items are dropped from the end
// until the remainder fits. The returned batch always serializes to at most
// CeilingBytes; what was dropped is reported through warnings.
func (g *Guard) Fit(items []Item) ([]Item, []Warning) {
	if g.CeilingBytes <= 0 || EstimateSize(items) <= g.CeilingBytes {
		return items, nil
	}

	var warnings []Warning
	kept := items

	for _, tier := range []Tier{TierTransient, TierQueued} {
		if EstimateSize(kept) <= g.CeilingBytes {
			break
		}
		var next []Item
		dropped := 0
		for _, item := range kept {
			if item.Tier == tier {
				dropped++
				continue
			}
			next = append(next, item)
		}
		if dropped > 0 {
			warnings = append(warnings, g.warn(Warning{
				Tier:    tier,
				Dropped: dropped,
				Reason:  fmt.Sprintf("batch over %d byte ceiling, dropped %s tier", g.CeilingBytes, tier),
			}))
		}
		kept = next
	}

	// Critical tier alone still too large: shed newest-first until it fits.
	if EstimateSize(kept) > g.CeilingBytes {
		dropped := 0
		for len(kept) > 0 && EstimateSize(kept) > g.CeilingBytes {
			kept = kept[:len(kept)-1]
			dropped++
		}
		warnings = append(warnings, g.warn(Warning{
			Tier:    TierCritical,
			Dropped: dropped,
			Reason:  fmt.Sprintf("critical tier alone exceeds %d byte ceiling", g.CeilingBytes),
		}))
	}

	return kept, warnings
}

// Persist fits the batch under the ceiling and hands the survivors to the
// write function. The write only sees a batch that fits.
func (g *Guard) Persist(items []Item, write func([]Item) error) ([]Warning, error) {
	kept, warnings := g.Fit(items)
	if err := write(kept); err != nil {
		return warnings, fmt.Errorf("persist rescued batch: %w", err)
	}
	return warnings, nil
}

func (g *Guard) warn(w Warning) Warning {
	slog.Warn("quota rescue truncated data",
		"tier", w.Tier.String(), "dropped", w.Dropped, "reason", w.Reason)
	if g.OnWarning != nil {
		g.OnWarning(w)
	}
	return w
}
