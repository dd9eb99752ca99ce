// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package batchmultiplex

import (
	"fmt"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/erc20"
	"github.com/luxfi/exchangeproxy/modules"
	"github.com/luxfi/exchangeproxy/precompileconfig"
	"github.com/luxfi/geth/common"
)

var _ contract.Configurator = (*configurator)(nil)

const ConfigKey = "batchMultiplexConfig"

var (
	FeatureAddress = common.HexToAddress("0x0000000000000000000000000000000000009008")

	BatchMultiplexFeature = New(FeatureAddress, erc20.Spender{}, nil)

	Module = modules.Module{
		ConfigKey:    ConfigKey,
		Address:      FeatureAddress,
		Contract:     BatchMultiplexFeature,
		Configurator: &configurator{},
	}
)

type configurator struct{}

func init() {
	if err := modules.RegisterModule(Module); err != nil {
		panic(err)
	}
}

func (*configurator) MakeConfig() precompileconfig.Config {
	return &Config{}
}

func (*configurator) Configure(
	chainConfig precompileconfig.ChainConfig,
	cfg precompileconfig.Config,
	state contract.StateDB,
	blockContext contract.ConfigurationBlockContext,
) error {
	if _, ok := cfg.(*Config); !ok {
		return fmt.Errorf("expected config type %T, got %T", &Config{}, cfg)
	}
	return nil
}

// Config enables batch multiplex calls.
type Config struct {
	Upgrade precompileconfig.Upgrade `json:"upgrade,omitempty" yaml:"upgrade,omitempty"`
}

func (*Config) Key() string { return ConfigKey }

func (c *Config) Timestamp() *uint64 { return c.Upgrade.Timestamp() }

func (c *Config) IsDisabled() bool { return c.Upgrade.Disable }

func (c *Config) Equal(cfg precompileconfig.Config) bool {
	other, ok := cfg.(*Config)
	return ok && c.Upgrade.Equal(&other.Upgrade)
}

func (*Config) Verify(precompileconfig.ChainConfig) error { return nil }
