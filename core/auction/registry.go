package auction

import (
	"fmt"

	"github.com/kilianp07/gridmarket/core/factory"
)

// Builder finishes a contract once its device and market settings are known.
type Builder func(env Env) (BidDispatchContract, error)

var contracts = factory.NewRegistry[Builder]()

// RegisterContract registers a contract type for configuration-driven trees.
func RegisterContract(name string, f factory.Factory[Builder]) error {
	return contracts.Register(name, f)
}

// NewBuilder decodes cfg into a Builder. Decoding errors wrap ErrConfiguration.
func NewBuilder(cfg factory.ModuleConfig) (Builder, error) {
	b, err := contracts.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return b, nil
}

// ContractTypes lists the registered contract types.
func ContractTypes() []string { return contracts.Names() }

func decoded[C any, T BidDispatchContract](build func(C, Env) (T, error)) factory.Factory[Builder] {
	return func(conf map[string]any) (Builder, error) {
		var cfg C
		if err := factory.Decode(conf, &cfg); err != nil {
			return nil, err
		}
		return func(env Env) (BidDispatchContract, error) {
			c, err := build(cfg, env)
			if err != nil {
				return nil, err
			}
			return c, nil
		}, nil
	}
}

func init() {
	_ = RegisterContract("fixed", decoded(NewFixedLoad))
	_ = RegisterContract("buffer", decoded(NewBuffer))
	_ = RegisterContract("converter", decoded(NewConverter))
}
