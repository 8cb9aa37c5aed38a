package app

import (
	"fmt"

	"github.com/kilianp07/gridmarket/config"
	"github.com/kilianp07/gridmarket/core/auction"
	"github.com/kilianp07/gridmarket/core/device"
	"github.com/kilianp07/gridmarket/core/model"
	"github.com/kilianp07/gridmarket/infra/mqtt"
)

// treeBuilder turns a topology into a participant tree. Memory devices are
// recorded by node name so the simulator and tests can inspect them.
type treeBuilder struct {
	market     auction.Config
	congestion *auction.CongestionConstraint
	client     *mqtt.PahoClient
	memory     map[string]*device.MemoryDevice
	// local holds one override box per islanded node when no MQTT client is
	// available.
	local map[string]*auction.OverrideBox
	warn  func(format string, args ...any)
}

func (b *treeBuilder) build(nc config.NodeConfig) (*auction.Node, error) {
	var contract auction.BidDispatchContract
	var mem *device.MemoryDevice
	if nc.Contract != nil {
		dev, m, err := b.device(nc)
		if err != nil {
			return nil, err
		}
		mem = m
		builder, err := auction.NewBuilder(*nc.Contract)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", nc.Name, err)
		}
		contract, err = builder(auction.Env{Device: dev, Domain: b.market.Domain, StrictComfort: b.market.StrictComfort})
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", nc.Name, err)
		}
	}
	node := auction.NewNode(nc.Name, contract)

	var lm *auction.LocalMarket
	if nc.LocalMarket != nil {
		targets, err := nc.LocalMarket.CommodityTargets()
		if err != nil {
			return nil, fmt.Errorf("%w: node %s: %v", auction.ErrConfiguration, nc.Name, err)
		}
		lm = auction.NewLocalMarket(targets, b.congestion, nc.LocalMarket.DiscreteStep)
		node.SetLocalMarket(lm)
	}

	for _, s := range nc.Stages {
		switch s {
		case config.StageTick:
			if mem == nil {
				return nil, fmt.Errorf("%w: node %s: tick stage needs a memory device", auction.ErrConfiguration, nc.Name)
			}
			node.AddStage(auction.NewTickStage(mem, contract.Commodity()))
		case config.StageLocalTarget:
			if lm == nil {
				return nil, fmt.Errorf("%w: node %s: local_target stage needs a local market", auction.ErrConfiguration, nc.Name)
			}
			src, err := b.localSource(nc.Name, lm.Commodities())
			if err != nil {
				return nil, err
			}
			node.AddStage(auction.NewLocalTargetStage(src, lm))
		default:
			return nil, fmt.Errorf("%w: node %s: unknown stage %q", auction.ErrConfiguration, nc.Name, s)
		}
	}

	for _, cc := range nc.Children {
		child, err := b.build(cc)
		if err != nil {
			return nil, err
		}
		node.AddChild(child)
	}
	return node, nil
}

func (b *treeBuilder) device(nc config.NodeConfig) (device.StateAccessor, *device.MemoryDevice, error) {
	if nc.Device.Type == config.DeviceMQTT {
		if b.client != nil {
			d, err := mqtt.NewRemoteDevice(b.client, nc.Device.ID)
			if err != nil {
				return nil, nil, fmt.Errorf("node %s: %w", nc.Name, err)
			}
			return d, nil, nil
		}
		b.warn("node %s: no MQTT connection, simulating device %s in memory", nc.Name, nc.Device.ID)
	}
	st, err := nc.Device.State()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: node %s: %v", auction.ErrConfiguration, nc.Name, err)
	}
	mem := device.NewMemoryDevice(st)
	b.memory[nc.Name] = mem
	return mem, mem, nil
}

func (b *treeBuilder) localSource(node string, commodities []model.Commodity) (auction.TargetSource, error) {
	if b.client != nil {
		return mqtt.NewNodeControlListener(b.client, node, commodities)
	}
	box := auction.NewOverrideBox()
	b.local[node] = box
	return box, nil
}
