package scheduler

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilianp07/gridmarket/core/auction"
	"github.com/kilianp07/gridmarket/core/model"
)

func TestDecodeScenarioYAML(t *testing.T) {
	data := `steps:
  - at: 2025-01-02T10:00:00Z
    commodity: electricity
    target: 1500
  - at: 2025-01-02T09:00:00Z
    commodity: HEAT
    ctrl_mode: balance
`
	sc, err := DecodeScenario(bytes.NewBufferString(data), "yaml")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sc.Steps) != 2 || sc.Steps[0].Commodity != model.Heat {
		t.Fatalf("steps not sorted: %#v", sc.Steps)
	}
	if sc.Steps[1].Commodity != model.Electricity || sc.Steps[1].Target == nil || *sc.Steps[1].Target != 1500 {
		t.Fatalf("bad step %#v", sc.Steps[1])
	}
}

func TestLoadScenarioFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.json")
	data := `{"steps":[{"at":"2025-01-02T10:00:00Z","commodity":"ELECTRICITY","ctrl_mode":"reference"}]}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	sc, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sc.Steps[0].Mode != "reference" {
		t.Fatalf("bad mode %q", sc.Steps[0].Mode)
	}
	if _, err := LoadScenario(path + ".txt"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDecodeScenarioInvalid(t *testing.T) {
	cases := map[string]string{
		"commodity": `{"steps":[{"at":"2025-01-02T10:00:00Z","commodity":"WATER"}]}`,
		"mode":      `{"steps":[{"at":"2025-01-02T10:00:00Z","commodity":"HEAT","ctrl_mode":"greedy"}]}`,
		"time":      `{"steps":[{"commodity":"HEAT"}]}`,
	}
	for name, data := range cases {
		if _, err := DecodeScenario(bytes.NewBufferString(data), "json"); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := DecodeScenario(bytes.NewBufferString(""), "toml"); err == nil {
		t.Fatalf("expected format error")
	}
}

func TestReplayerApply(t *testing.T) {
	target := 800.0
	base := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	sc := Scenario{Steps: []ScenarioStep{
		{At: base, Commodity: model.Electricity, Target: &target},
		{At: base.Add(time.Hour), Commodity: model.Electricity, Mode: "reference"},
	}}
	box := auction.NewOverrideBox()
	r := NewReplayer(sc, box)

	if n := r.Apply(base.Add(-time.Minute)); n != 0 {
		t.Fatalf("applied %d steps early", n)
	}
	if n := r.Apply(base.Add(30 * time.Minute)); n != 1 {
		t.Fatalf("expected 1 step got %d", n)
	}
	o, ok := box.TakeOverride(model.Electricity)
	if !ok || o.Target == nil || *o.Target != 800 {
		t.Fatalf("unexpected override %#v", o)
	}
	if n := r.Apply(base.Add(2 * time.Hour)); n != 1 {
		t.Fatalf("expected 1 step got %d", n)
	}
	o, _ = box.TakeOverride(model.Electricity)
	if o.Mode != auction.ModeReference {
		t.Fatalf("unexpected mode %q", o.Mode)
	}
}
