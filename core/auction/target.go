package auction

import (
	"fmt"
	"sync"

	"github.com/kilianp07/gridmarket/core/model"
)

// TargetMode selects how the clearing target of a commodity is chosen.
type TargetMode string

const (
	// ModeBalance clears against a configured net demand, zero by default.
	ModeBalance TargetMode = "balance"
	// ModeReference clears against the aggregate demand at a reference price,
	// i.e. the grid-connected equilibrium, and relies on the congestion
	// constraint to bound it.
	ModeReference TargetMode = "reference"
)

// ParseTargetMode validates s. An empty string selects ModeBalance.
func ParseTargetMode(s string) (TargetMode, error) {
	switch TargetMode(s) {
	case "", ModeBalance:
		return ModeBalance, nil
	case ModeReference:
		return ModeReference, nil
	}
	return "", fmt.Errorf("%w: unknown target mode %q", ErrConfiguration, s)
}

// Override replaces the mode and/or target of one commodity for one interval.
type Override struct {
	Mode   TargetMode `json:"ctrl_mode,omitempty"`
	Target *float64   `json:"target,omitempty"`
}

// TargetSource supplies external overrides, e.g. from a home-automation
// system. TakeOverride consumes the pending override of c.
type TargetSource interface {
	TakeOverride(c model.Commodity) (Override, bool)
}

// OverrideBox is an in-memory TargetSource.
type OverrideBox struct {
	mu      sync.Mutex
	pending map[model.Commodity]Override
}

// NewOverrideBox returns an empty box.
func NewOverrideBox() *OverrideBox {
	return &OverrideBox{pending: make(map[model.Commodity]Override)}
}

// Set stores an override for the next interval, merging with a pending one.
func (b *OverrideBox) Set(c model.Commodity, o Override) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.pending[c]
	if o.Mode != "" {
		cur.Mode = o.Mode
	}
	if o.Target != nil {
		v := *o.Target
		cur.Target = &v
	}
	b.pending[c] = cur
}

// TakeOverride returns and clears the pending override of c.
func (b *OverrideBox) TakeOverride(c model.Commodity) (Override, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.pending[c]
	if ok {
		delete(b.pending, c)
	}
	return o, ok
}
