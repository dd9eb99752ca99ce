// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package otcorders

import (
	"fmt"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/erc20"
	"github.com/luxfi/exchangeproxy/modules"
	"github.com/luxfi/exchangeproxy/precompileconfig"
	"github.com/luxfi/geth/common"
)

var _ contract.Configurator = (*configurator)(nil)

const ConfigKey = "otcOrdersConfig"

var (
	FeatureAddress = common.HexToAddress("0x0000000000000000000000000000000000009004")

	OtcOrdersFeature = New(FeatureAddress, erc20.Spender{}, nil)

	Module = modules.Module{
		ConfigKey:    ConfigKey,
		Address:      FeatureAddress,
		Contract:     OtcOrdersFeature,
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

// Configure records the chain's wrapped native token on the implementation.
func (*configurator) Configure(
	chainConfig precompileconfig.ChainConfig,
	cfg precompileconfig.Config,
	state contract.StateDB,
	blockContext contract.ConfigurationBlockContext,
) error {
	if _, ok := cfg.(*Config); !ok {
		return fmt.Errorf("expected config type %T, got %T", &Config{}, cfg)
	}
	state.SetState(FeatureAddress, wethSlot, contract.AddressToHash(chainConfig.WETHAddress()))
	return nil
}

// Config enables the OTC orders feature.
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

func (*Config) Verify(chainConfig precompileconfig.ChainConfig) error {
	if chainConfig.WETHAddress() == (common.Address{}) {
		return fmt.Errorf("%s: chain has no WETH address", ConfigKey)
	}
	return nil
}
