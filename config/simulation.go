package config

import (
	"fmt"
	"time"
)

// SimulationConfig drives the simulate command.
type SimulationConfig struct {
	// Steps is the number of intervals to clear.
	Steps int `json:"steps"`
	// Start is the RFC 3339 start time of the first interval.
	Start string `json:"start"`
	// Scenario is an optional file of scheduled ctrl_mode/target overrides.
	Scenario string `json:"scenario"`
}

// SetDefaults applies default values.
func (c *SimulationConfig) SetDefaults() {
	if c.Steps == 0 {
		c.Steps = 96
	}
	if c.Start == "" {
		c.Start = "2026-01-01T00:00:00Z"
	}
}

// Validate checks the step count and start time.
func (c SimulationConfig) Validate() error {
	if c.Steps < 0 {
		return fmt.Errorf("simulation: negative steps %d", c.Steps)
	}
	if _, err := c.StartTime(); err != nil {
		return err
	}
	return nil
}

// StartTime parses Start.
func (c SimulationConfig) StartTime() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, c.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("simulation: start: %w", err)
	}
	return t, nil
}
