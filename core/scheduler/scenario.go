package scheduler

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/gridmarket/core/auction"
	"github.com/kilianp07/gridmarket/core/model"
)

// ScenarioStep is one external override taking effect at At.
type ScenarioStep struct {
	At        time.Time       `json:"at" yaml:"at"`
	Commodity model.Commodity `json:"commodity" yaml:"commodity"`
	Mode      string          `json:"ctrl_mode" yaml:"ctrl_mode"`
	Target    *float64        `json:"target" yaml:"target"`
}

// Scenario is an ordered list of overrides replayed during a simulation.
type Scenario struct {
	Steps []ScenarioStep `json:"steps" yaml:"steps"`
}

// LoadScenario loads a Scenario from a JSON or YAML file.
func LoadScenario(path string) (Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return Scenario{}, err
	}
	defer func() { _ = f.Close() }()
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return DecodeScenario(f, ext)
}

// DecodeScenario reads a Scenario in the given format ("yaml", "yml" or "json").
func DecodeScenario(r io.Reader, format string) (Scenario, error) {
	var sc Scenario
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&sc); err != nil {
			return sc, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&sc); err != nil {
			return sc, err
		}
	default:
		return sc, fmt.Errorf("unsupported format: %s", format)
	}
	return sc, sc.validate()
}

func (sc *Scenario) validate() error {
	for i, st := range sc.Steps {
		if st.At.IsZero() {
			return fmt.Errorf("scenario step %d: missing time", i)
		}
		c, err := model.ParseCommodity(string(st.Commodity))
		if err != nil {
			return fmt.Errorf("scenario step %d: %w", i, err)
		}
		sc.Steps[i].Commodity = c
		if _, err := auction.ParseTargetMode(st.Mode); err != nil && st.Mode != "" {
			return fmt.Errorf("scenario step %d: %w", i, err)
		}
	}
	sort.SliceStable(sc.Steps, func(i, j int) bool { return sc.Steps[i].At.Before(sc.Steps[j].At) })
	return nil
}

// Replayer feeds scenario steps into an override box as time passes.
type Replayer struct {
	steps []ScenarioStep
	next  int
	box   *auction.OverrideBox
}

// NewReplayer returns a replayer writing into box.
func NewReplayer(sc Scenario, box *auction.OverrideBox) *Replayer {
	return &Replayer{steps: append([]ScenarioStep(nil), sc.Steps...), box: box}
}

// Apply queues every step due at or before now and returns how many were
// applied.
func (r *Replayer) Apply(now time.Time) int {
	n := 0
	for r.next < len(r.steps) && !r.steps[r.next].At.After(now) {
		st := r.steps[r.next]
		r.box.Set(st.Commodity, auction.Override{Mode: auction.TargetMode(st.Mode), Target: st.Target})
		r.next++
		n++
	}
	return n
}
