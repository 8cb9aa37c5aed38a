package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/gridmarket/api"
	"github.com/kilianp07/gridmarket/config"
	"github.com/kilianp07/gridmarket/core/auction"
	"github.com/kilianp07/gridmarket/core/clearinglog"
	"github.com/kilianp07/gridmarket/core/device"
	coremetrics "github.com/kilianp07/gridmarket/core/metrics"
	"github.com/kilianp07/gridmarket/core/model"
	"github.com/kilianp07/gridmarket/core/scheduler"
	"github.com/kilianp07/gridmarket/infra/logger"
	"github.com/kilianp07/gridmarket/infra/metrics"
	"github.com/kilianp07/gridmarket/infra/mqtt"
	"github.com/kilianp07/gridmarket/internal/eventbus"
)

// Options tune how a Service is assembled.
type Options struct {
	// Clock drives the scheduler; nil selects the wall clock.
	Clock scheduler.Clock
	// Offline skips the MQTT connection. Remote devices are then simulated
	// in memory from their configured state.
	Offline bool
	// Scenario is replayed into the override box before each interval.
	Scenario *scheduler.Scenario
	// Logger replaces the zerolog service logger.
	Logger logger.Logger
	// Gatherer serves /metrics; nil uses the default Prometheus registry.
	Gatherer prometheus.Gatherer
}

// Service wires the configuration into a running market: participant tree,
// clearer, scheduler, sinks and the MQTT transport.
type Service struct {
	Clearer   *auction.Clearer
	Scheduler *scheduler.Scheduler

	cfg       *config.Config
	bus       *eventbus.Bus
	sink      coremetrics.Sink
	store     clearinglog.Store
	client    *mqtt.PahoClient
	overrides *auction.OverrideBox
	replayer  *scheduler.Replayer
	memory    map[string]*device.MemoryDevice
	local     map[string]*auction.OverrideBox
	gatherer  prometheus.Gatherer
	log       logger.Logger

	mu       sync.Mutex
	onResult func(model.ClearingResult)
}

// New builds a Service from a validated configuration.
func New(cfg *config.Config, opts Options) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", auction.ErrConfiguration)
	}
	log := opts.Logger
	if log == nil {
		log = logger.New("service")
	}
	clock := opts.Clock
	if clock == nil {
		clock = scheduler.WallClock{}
	}

	s := &Service{
		cfg:       cfg,
		overrides: auction.NewOverrideBox(),
		memory:    make(map[string]*device.MemoryDevice),
		local:     make(map[string]*auction.OverrideBox),
		gatherer:  opts.Gatherer,
		log:       log,
	}
	if opts.Scenario != nil {
		s.replayer = scheduler.NewReplayer(*opts.Scenario, s.overrides)
	}

	var err error
	if s.sink, err = coremetrics.NewSink(cfg.Metrics.Sinks); err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	if s.store, err = clearinglog.Open(cfg.ClearingLog); err != nil {
		return nil, fmt.Errorf("clearing log: %w", err)
	}
	if cfg.MQTT.Broker != "" && !opts.Offline {
		if s.client, err = mqtt.NewPahoClient(cfg.MQTT); err != nil {
			_ = s.release()
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
	}

	b := &treeBuilder{
		market:     cfg.Market,
		congestion: cfg.CongestionConstraint(),
		client:     s.client,
		memory:     s.memory,
		local:      s.local,
		warn:       log.Warnf,
	}
	root, err := b.build(cfg.Topology)
	if err != nil {
		_ = s.release()
		return nil, err
	}
	s.bus = eventbus.NewWithBuffer(busBuffer(root, len(cfg.Market.Commodities)))
	if s.Clearer, err = auction.NewClearer(cfg.Market, root, cfg.CongestionConstraint(), log); err != nil {
		_ = s.release()
		return nil, err
	}

	sources := targetSources{s.overrides}
	if s.client != nil {
		ctl, err := mqtt.NewControlListener(s.client, cfg.Market.Commodities)
		if err != nil {
			_ = s.release()
			return nil, fmt.Errorf("control listener: %w", err)
		}
		sources = append(sources, ctl)
	}
	s.Clearer.SetSink(s.sink)
	s.Clearer.SetBus(s.bus)
	s.Clearer.SetLogStore(s.store)
	s.Clearer.SetTargetSource(sources)

	if s.Scheduler, err = scheduler.New(cfg.Market.Interval(), cfg.Market.Tick(), clock, s.clear, log); err != nil {
		_ = s.release()
		return nil, fmt.Errorf("%w: %v", auction.ErrConfiguration, err)
	}
	return s, nil
}

// busBuffer holds every event of one interval: a dispatch per commodity plus
// a fallback and a skip for each node, and the closing ClearingEvent.
func busBuffer(root *auction.Node, commodities int) int {
	nodes := 0
	root.Walk(func(*auction.Node) { nodes++ })
	n := nodes*(commodities+2) + 1
	if n < eventbus.DefaultBuffer {
		return eventbus.DefaultBuffer
	}
	return n
}

func (s *Service) clear(ctx context.Context, start time.Time) error {
	if s.replayer != nil {
		if n := s.replayer.Apply(start); n > 0 {
			s.log.Infof("scenario: %d override(s) queued at %s", n, start.Format(time.RFC3339))
		}
	}
	res, err := s.Clearer.ClearMarket(ctx, start)
	if err != nil {
		return err
	}
	s.mu.Lock()
	fn := s.onResult
	s.mu.Unlock()
	if fn != nil {
		fn(res)
	}
	return nil
}

// SetResultHandler registers fn to receive every cleared result.
func (s *Service) SetResultHandler(fn func(model.ClearingResult)) {
	s.mu.Lock()
	s.onResult = fn
	s.mu.Unlock()
}

// Override queues a ctrl_mode/target override for the next interval.
func (s *Service) Override(c model.Commodity, o auction.Override) {
	s.overrides.Set(c, o)
}

// LocalOverride returns the override box feeding the local_target stage of
// an islanded node when no MQTT connection is used.
func (s *Service) LocalOverride(node string) (*auction.OverrideBox, bool) {
	b, ok := s.local[node]
	return b, ok
}

// Device returns the in-memory device of a node.
func (s *Service) Device(node string) (*device.MemoryDevice, bool) {
	d, ok := s.memory[node]
	return d, ok
}

// Bus exposes the market event bus.
func (s *Service) Bus() eventbus.EventBus { return s.bus }

// Handler returns the HTTP API of the service.
func (s *Service) Handler() http.Handler {
	return api.NewRouter(s.Clearer, s.store, s.cfg.API.Token)
}

// Run starts collectors, the result publisher, the optional Prometheus
// endpoint and HTTP API, then clears intervals until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := s.start(ctx)

	if port := s.cfg.Metrics.PrometheusPort; port != "" {
		addr := port
		if !strings.Contains(addr, ":") {
			addr = ":" + addr
		}
		go func() {
			if err := metrics.StartPromServer(ctx, addr, s.gatherer); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	if addr := s.cfg.API.Addr; addr != "" {
		go func() {
			if err := api.Serve(ctx, addr, s.Handler()); err != nil {
				s.log.Errorf("api server: %v", err)
			}
		}()
	}

	err := s.Scheduler.Run(ctx)
	cancel()
	for _, d := range done {
		<-d
	}
	return err
}

// RunN clears the next n intervals and returns.
func (s *Service) RunN(ctx context.Context, n int) error {
	ctx, cancel := context.WithCancel(ctx)
	done := s.start(ctx)
	err := s.Scheduler.RunN(ctx, n)
	cancel()
	for _, d := range done {
		<-d
	}
	return err
}

func (s *Service) start(ctx context.Context) []<-chan struct{} {
	done := []<-chan struct{}{
		metrics.StartEventCollector(ctx, s.bus, s.sink, logger.New("collector")),
	}
	if s.client != nil {
		done = append(done, mqtt.StartResultPublisher(ctx, s.bus, s.client, s.client.Topics()))
	}
	return done
}

// Close releases the bus, the clearing log and the MQTT connection.
func (s *Service) Close() error {
	return s.release()
}

func (s *Service) release() error {
	var errs []error
	if s.bus != nil {
		s.bus.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clearing log: %w", err))
		}
	}
	if closer, ok := s.sink.(interface{ Close() }); ok {
		closer.Close()
	}
	if s.client != nil {
		s.client.Disconnect()
	}
	return errors.Join(errs...)
}
