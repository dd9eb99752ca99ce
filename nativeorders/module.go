// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package nativeorders

import (
	"fmt"
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/erc20"
	"github.com/luxfi/exchangeproxy/modules"
	"github.com/luxfi/exchangeproxy/precompileconfig"
	"github.com/luxfi/geth/common"
)

var _ contract.Configurator = (*configurator)(nil)

const (
	ConfigKey          = "nativeOrdersConfig"
	BatchFillConfigKey = "batchFillNativeOrdersConfig"
)

var (
	FeatureAddress   = common.HexToAddress("0x0000000000000000000000000000000000009003")
	BatchFillAddress = common.HexToAddress("0x0000000000000000000000000000000000009009")

	NativeOrdersFeature = New(FeatureAddress, erc20.Spender{}, nil)
	BatchFillFeature    = NewBatchFill(BatchFillAddress, erc20.Spender{}, nil)

	Module = modules.Module{
		ConfigKey:    ConfigKey,
		Address:      FeatureAddress,
		Contract:     NativeOrdersFeature,
		Configurator: &configurator{key: ConfigKey},
	}

	BatchFillModule = modules.Module{
		ConfigKey:    BatchFillConfigKey,
		Address:      BatchFillAddress,
		Contract:     BatchFillFeature,
		Configurator: &configurator{key: BatchFillConfigKey},
	}
)

type configurator struct {
	key string
}

func init() {
	for _, m := range []modules.Module{Module, BatchFillModule} {
		if err := modules.RegisterModule(m); err != nil {
			panic(err)
		}
	}
}

func (c *configurator) MakeConfig() precompileconfig.Config {
	return &Config{key: c.key}
}

// Configure stores the protocol fee settings on the implementation.
func (c *configurator) Configure(
	chainConfig precompileconfig.ChainConfig,
	cfg precompileconfig.Config,
	state contract.StateDB,
	blockContext contract.ConfigurationBlockContext,
) error {
	config, ok := cfg.(*Config)
	if !ok {
		return fmt.Errorf("expected config type %T, got %T", &Config{}, cfg)
	}
	if c.key != ConfigKey {
		return nil
	}
	state.SetState(FeatureAddress, protocolFeeMultiplierSlot,
		contract.BigToHash(new(big.Int).SetUint64(uint64(config.ProtocolFeeMultiplier))))
	state.SetState(FeatureAddress, feeCollectorSlot, contract.AddressToHash(config.FeeCollector))
	return nil
}

// Config configures the native orders feature.
type Config struct {
	key     string
	Upgrade precompileconfig.Upgrade `json:"upgrade,omitempty" yaml:"upgrade,omitempty"`
	// ProtocolFeeMultiplier times the gas price is the protocol fee paid
	// per limit order fill.
	ProtocolFeeMultiplier uint32         `json:"protocolFeeMultiplier" yaml:"protocolFeeMultiplier"`
	FeeCollector          common.Address `json:"feeCollector" yaml:"feeCollector"`
}

// NewConfig returns a native orders config.
func NewConfig(multiplier uint32, feeCollector common.Address) *Config {
	return &Config{key: ConfigKey, ProtocolFeeMultiplier: multiplier, FeeCollector: feeCollector}
}

func (c *Config) Key() string {
	return c.key
}

func (c *Config) Timestamp() *uint64 {
	return c.Upgrade.Timestamp()
}

func (c *Config) IsDisabled() bool {
	return c.Upgrade.Disable
}

func (c *Config) Equal(cfg precompileconfig.Config) bool {
	other, ok := cfg.(*Config)
	if !ok {
		return false
	}
	return c.key == other.key &&
		c.ProtocolFeeMultiplier == other.ProtocolFeeMultiplier &&
		c.FeeCollector == other.FeeCollector &&
		c.Upgrade.Equal(&other.Upgrade)
}

func (c *Config) Verify(chainConfig precompileconfig.ChainConfig) error {
	if c.ProtocolFeeMultiplier != 0 && c.FeeCollector == (common.Address{}) {
		return fmt.Errorf("%s: protocol fee set without a fee collector", c.key)
	}
	return nil
}
