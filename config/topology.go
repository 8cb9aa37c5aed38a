package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/gridmarket/core/auction"
	"github.com/kilianp07/gridmarket/core/factory"
	"github.com/kilianp07/gridmarket/core/model"
)

// Device backends.
const (
	DeviceMemory = "memory"
	DeviceMQTT   = "mqtt"
)

// Stage names accepted in NodeConfig.Stages.
const (
	StageTick        = "tick"
	StageLocalTarget = "local_target"
)

// NodeConfig describes one participant of the market tree. A node without a
// contract only aggregates its children.
type NodeConfig struct {
	Name     string                `json:"name" yaml:"name"`
	Contract *factory.ModuleConfig `json:"contract" yaml:"contract"`
	Device   DeviceConfig          `json:"device" yaml:"device"`
	// Stages run in order before the node bids.
	Stages      []string     `json:"stages" yaml:"stages"`
	LocalMarket *LocalConfig `json:"local_market" yaml:"local_market"`
	Children    []NodeConfig `json:"children" yaml:"children"`
}

// DeviceConfig selects the state accessor of a node.
type DeviceConfig struct {
	// Type is "memory" (default) or "mqtt".
	Type string `json:"type" yaml:"type"`
	// ID is the remote device identifier; defaults to the node name.
	ID string `json:"id" yaml:"id"`

	// Initial state of memory devices.
	Consumption map[string]float64      `json:"consumption" yaml:"consumption"`
	Limits      map[string]model.Limits `json:"limits" yaml:"limits"`
	CapacityWh  float64                 `json:"capacity_wh" yaml:"capacity_wh"`
	EnergyWh    float64                 `json:"energy_wh" yaml:"energy_wh"`
}

// LocalConfig turns a node into an islanded sub-market.
type LocalConfig struct {
	Targets      map[string]float64 `json:"targets" yaml:"targets"`
	DiscreteStep float64            `json:"discrete_step" yaml:"discrete_step"`
}

// LoadTopology reads a participant tree from a yaml or json file.
func LoadTopology(path string) (NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return NodeConfig{}, err
	}
	var n NodeConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &n)
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&n)
	default:
		return NodeConfig{}, fmt.Errorf("unsupported topology format: %s", path)
	}
	if err != nil {
		return NodeConfig{}, fmt.Errorf("topology %s: %w", path, err)
	}
	return n, nil
}

func (n *NodeConfig) setDefaults() {
	if n.Name == "" && n.Contract == nil && len(n.Children) == 0 {
		return
	}
	if n.Device.Type == "" {
		n.Device.Type = DeviceMemory
	}
	if n.Device.ID == "" {
		n.Device.ID = n.Name
	}
	for i := range n.Children {
		n.Children[i].setDefaults()
	}
}

// Empty reports whether no topology was configured.
func (n NodeConfig) Empty() bool {
	return n.Name == "" && n.Contract == nil && len(n.Children) == 0
}

func (n NodeConfig) validate(market []model.Commodity, names map[string]bool) error {
	if n.Empty() {
		return errors.New("no participants configured")
	}
	if n.Name == "" {
		return errors.New("node without name")
	}
	if names[n.Name] {
		return fmt.Errorf("duplicate node name %q", n.Name)
	}
	names[n.Name] = true
	if n.Contract != nil && !slices.Contains(auction.ContractTypes(), n.Contract.Type) {
		return fmt.Errorf("node %s: unknown contract type %q (known: %s)",
			n.Name, n.Contract.Type, strings.Join(auction.ContractTypes(), ", "))
	}
	switch n.Device.Type {
	case DeviceMemory, DeviceMQTT:
	default:
		return fmt.Errorf("node %s: unknown device type %q", n.Name, n.Device.Type)
	}
	for c := range n.Device.Consumption {
		if _, err := model.ParseCommodity(c); err != nil {
			return fmt.Errorf("node %s: consumption: %w", n.Name, err)
		}
	}
	for c, l := range n.Device.Limits {
		if _, err := model.ParseCommodity(c); err != nil {
			return fmt.Errorf("node %s: limits: %w", n.Name, err)
		}
		if l.Min > l.Max {
			return fmt.Errorf("node %s: limits of %s: min above max", n.Name, c)
		}
	}
	if n.Device.EnergyWh < 0 || n.Device.CapacityWh < 0 || (n.Device.CapacityWh > 0 && n.Device.EnergyWh > n.Device.CapacityWh) {
		return fmt.Errorf("node %s: energy %.1f Wh outside capacity %.1f Wh", n.Name, n.Device.EnergyWh, n.Device.CapacityWh)
	}
	for _, s := range n.Stages {
		switch s {
		case StageTick:
			if n.Contract == nil || n.Device.Type != DeviceMemory {
				return fmt.Errorf("node %s: stage tick needs a contract on a memory device", n.Name)
			}
		case StageLocalTarget:
			if n.LocalMarket == nil {
				return fmt.Errorf("node %s: stage local_target needs a local market", n.Name)
			}
		default:
			return fmt.Errorf("node %s: unknown stage %q", n.Name, s)
		}
	}
	if n.LocalMarket != nil {
		if len(n.LocalMarket.Targets) == 0 {
			return fmt.Errorf("node %s: local market without targets", n.Name)
		}
		for c := range n.LocalMarket.Targets {
			com, err := model.ParseCommodity(c)
			if err != nil {
				return fmt.Errorf("node %s: local market: %w", n.Name, err)
			}
			if !slices.Contains(market, com) {
				return fmt.Errorf("node %s: local market commodity %s not traded", n.Name, com)
			}
		}
		if n.LocalMarket.DiscreteStep < 0 {
			return fmt.Errorf("node %s: negative discrete step", n.Name)
		}
	}
	for _, ch := range n.Children {
		if err := ch.validate(market, names); err != nil {
			return err
		}
	}
	return nil
}

func (n NodeConfig) usesMQTT() bool {
	if n.Device.Type == DeviceMQTT && n.Contract != nil {
		return true
	}
	for _, ch := range n.Children {
		if ch.usesMQTT() {
			return true
		}
	}
	return false
}

// Walk visits n and its descendants depth first.
func (n NodeConfig) Walk(fn func(NodeConfig)) {
	fn(n)
	for _, ch := range n.Children {
		ch.Walk(fn)
	}
}

// State builds the initial memory device state, normalizing commodity names.
func (d DeviceConfig) State() (model.DeviceState, error) {
	s := model.DeviceState{
		Consumption: make(map[model.Commodity]complex128, len(d.Consumption)),
		Limits:      make(map[model.Commodity]model.Limits, len(d.Limits)),
		Capacity:    d.CapacityWh,
		Energy:      d.EnergyWh,
	}
	for name, w := range d.Consumption {
		c, err := model.ParseCommodity(name)
		if err != nil {
			return model.DeviceState{}, err
		}
		s.Consumption[c] = complex(w, 0)
	}
	for name, l := range d.Limits {
		c, err := model.ParseCommodity(name)
		if err != nil {
			return model.DeviceState{}, err
		}
		s.Limits[c] = l
	}
	return s, nil
}

// CommodityTargets returns the local market targets keyed by commodity.
func (l LocalConfig) CommodityTargets() (map[model.Commodity]float64, error) {
	out := make(map[model.Commodity]float64, len(l.Targets))
	for name, v := range l.Targets {
		c, err := model.ParseCommodity(name)
		if err != nil {
			return nil, err
		}
		out[c] = v
	}
	return out, nil
}
