package auction

import (
	"fmt"
	"time"

	"github.com/kilianp07/gridmarket/core/model"
)

// Config holds the market settings of a Clearer.
type Config struct {
	Domain      Domain            `json:"domain"`
	Commodities []model.Commodity `json:"commodities"`
	// IntervalSeconds is the auction interval; it must be a multiple of the
	// simulation tick.
	IntervalSeconds int `json:"interval_seconds"`
	TickSeconds     int `json:"tick_seconds"`

	Mode            TargetMode                  `json:"mode"`
	Targets         map[model.Commodity]float64 `json:"targets"`
	ReferencePrices map[model.Commodity]float64 `json:"reference_prices"`

	// Islanding clears against IslandTargets instead of the network target.
	Islanding     bool                        `json:"islanding"`
	IslandTargets map[model.Commodity]float64 `json:"island_targets"`

	StrictComfort bool `json:"strict_comfort"`
	// DiscreteStep > 0 enables discrete bids: prices snap to
	// MinPrice + k*DiscreteStep.
	DiscreteStep float64 `json:"discrete_step"`
	// Parallel collects and dispatches sibling subtrees concurrently.
	Parallel bool `json:"parallel"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	c.Domain.SetDefaults()
	if len(c.Commodities) == 0 {
		c.Commodities = []model.Commodity{model.Electricity}
	}
	if c.TickSeconds == 0 {
		c.TickSeconds = 60
	}
	if c.IntervalSeconds == 0 {
		c.IntervalSeconds = 15 * c.TickSeconds
	}
	if c.Mode == "" {
		c.Mode = ModeBalance
	}
}

// Interval returns the auction interval.
func (c Config) Interval() time.Duration { return time.Duration(c.IntervalSeconds) * time.Second }

// Tick returns the base simulation tick.
func (c Config) Tick() time.Duration { return time.Duration(c.TickSeconds) * time.Second }

// Validate checks the settings against the congestion constraint. Every error
// wraps ErrConfiguration.
func (c Config) Validate(cc *CongestionConstraint) error {
	if err := c.Domain.Validate(); err != nil {
		return err
	}
	if len(c.Commodities) == 0 {
		return fmt.Errorf("%w: no market commodities", ErrConfiguration)
	}
	seen := make(map[model.Commodity]bool)
	for _, com := range c.Commodities {
		if seen[com] {
			return fmt.Errorf("%w: commodity %s listed twice", ErrConfiguration, com)
		}
		seen[com] = true
	}
	if c.TickSeconds <= 0 || c.IntervalSeconds <= 0 || c.IntervalSeconds%c.TickSeconds != 0 {
		return fmt.Errorf("%w: interval %ds is not a positive multiple of tick %ds",
			ErrConfiguration, c.IntervalSeconds, c.TickSeconds)
	}
	if _, err := ParseTargetMode(string(c.Mode)); err != nil {
		return err
	}
	if c.DiscreteStep < 0 {
		return fmt.Errorf("%w: negative discrete step", ErrConfiguration)
	}
	if c.Mode == ModeReference {
		for _, com := range c.Commodities {
			if _, ok := cc.Limits(com); !ok {
				return fmt.Errorf("%w: reference mode requires a congestion limit for %s", ErrConfiguration, com)
			}
		}
	}
	return nil
}

func (c Config) has(com model.Commodity) bool {
	for _, x := range c.Commodities {
		if x == com {
			return true
		}
	}
	return false
}
