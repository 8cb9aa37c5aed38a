package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/gridmarket/api"
	"github.com/kilianp07/gridmarket/core/auction"
	"github.com/kilianp07/gridmarket/core/clearinglog"
	"github.com/kilianp07/gridmarket/core/metrics"
	"github.com/kilianp07/gridmarket/core/model"
	"github.com/kilianp07/gridmarket/infra/mqtt"
)

// Config is the complete service configuration.
type Config struct {
	Market     auction.Config            `json:"market"`
	Congestion map[string]auction.Bounds `json:"congestion"`
	Topology   NodeConfig                `json:"topology"`
	// TopologyFile, when set, replaces Topology with the tree read from a
	// separate yaml or json file.
	TopologyFile string             `json:"topology_file"`
	MQTT         mqtt.Config        `json:"mqtt"`
	Metrics      metrics.Config     `json:"metrics"`
	ClearingLog  clearinglog.Config `json:"clearing_log"`
	Simulation   SimulationConfig   `json:"simulation"`
	API          api.Config         `json:"api"`

	congestion *auction.CongestionConstraint
}

// Load reads the configuration file at path, applies K_ prefixed environment
// overrides (K_MARKET__INTERVAL_SECONDS=900 sets market.interval_seconds),
// fills defaults and validates every section.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, configErr(err)
	}
	if cfg.TopologyFile != "" {
		tf := cfg.TopologyFile
		if !filepath.IsAbs(tf) {
			tf = filepath.Join(filepath.Dir(path), tf)
		}
		top, err := LoadTopology(tf)
		if err != nil {
			return nil, configErr(err)
		}
		cfg.Topology = top
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.Market.SetDefaults()
	c.MQTT.SetDefaults()
	c.ClearingLog.SetDefaults()
	c.Simulation.SetDefaults()
	c.Topology.setDefaults()
}

// Validate normalizes commodity names and checks every section. All errors
// wrap auction.ErrConfiguration.
func (c *Config) Validate() error {
	if err := c.normalize(); err != nil {
		return configErr(err)
	}
	congestion := make(map[model.Commodity]auction.Bounds, len(c.Congestion))
	for name, b := range c.Congestion {
		com, err := model.ParseCommodity(name)
		if err != nil {
			return configErr(fmt.Errorf("congestion: %w", err))
		}
		congestion[com] = b
	}
	cc, err := auction.NewCongestionConstraint(congestion)
	if err != nil {
		return err
	}
	if err := c.Market.Validate(cc); err != nil {
		return err
	}
	if err := c.Topology.validate(c.Market.Commodities, make(map[string]bool)); err != nil {
		return configErr(fmt.Errorf("topology: %w", err))
	}
	if c.MQTT.Broker != "" || c.Topology.usesMQTT() {
		if err := c.MQTT.Validate(); err != nil {
			return configErr(err)
		}
	}
	if err := c.ClearingLog.Validate(); err != nil {
		return configErr(err)
	}
	if err := c.Simulation.Validate(); err != nil {
		return configErr(err)
	}
	c.congestion = cc
	return nil
}

// CongestionConstraint returns the constraint built by Validate.
func (c *Config) CongestionConstraint() *auction.CongestionConstraint {
	return c.congestion
}

func (c *Config) normalize() error {
	m := &c.Market
	for i, com := range m.Commodities {
		n, err := model.ParseCommodity(string(com))
		if err != nil {
			return fmt.Errorf("market.commodities: %w", err)
		}
		m.Commodities[i] = n
	}
	var err error
	if m.Targets, err = normalizeKeys(m.Targets); err != nil {
		return fmt.Errorf("market.targets: %w", err)
	}
	if m.ReferencePrices, err = normalizeKeys(m.ReferencePrices); err != nil {
		return fmt.Errorf("market.reference_prices: %w", err)
	}
	if m.IslandTargets, err = normalizeKeys(m.IslandTargets); err != nil {
		return fmt.Errorf("market.island_targets: %w", err)
	}
	return nil
}

func normalizeKeys(in map[model.Commodity]float64) (map[model.Commodity]float64, error) {
	if in == nil {
		return nil, nil
	}
	out := make(map[model.Commodity]float64, len(in))
	for k, v := range in {
		c, err := model.ParseCommodity(string(k))
		if err != nil {
			return nil, err
		}
		out[c] = v
	}
	return out, nil
}

func configErr(err error) error {
	if errors.Is(err, auction.ErrConfiguration) {
		return err
	}
	return fmt.Errorf("%w: %v", auction.ErrConfiguration, err)
}
