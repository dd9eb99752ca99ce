// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transformerc20

import (
	"fmt"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/erc20"
	"github.com/luxfi/exchangeproxy/modules"
	"github.com/luxfi/exchangeproxy/precompileconfig"
	"github.com/luxfi/geth/common"
)

var _ contract.Configurator = (*configurator)(nil)

const ConfigKey = "transformERC20Config"

var (
	FeatureAddress = common.HexToAddress("0x0000000000000000000000000000000000009006")

	TransformERC20Feature = New(FeatureAddress, erc20.Spender{}, nil)

	Module = modules.Module{
		ConfigKey:    ConfigKey,
		Address:      FeatureAddress,
		Contract:     TransformERC20Feature,
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

// Configure seeds the proxy's transformer deployer, quote signer and an
// already deployed flash wallet.
func (*configurator) Configure(
	chainConfig precompileconfig.ChainConfig,
	cfg precompileconfig.Config,
	state contract.StateDB,
	blockContext contract.ConfigurationBlockContext,
) error {
	config, ok := cfg.(*Config)
	if !ok {
		return fmt.Errorf("expected config type %T, got %T", &Config{}, cfg)
	}
	proxy := chainConfig.ProxyAddress()
	if config.TransformerDeployer != (common.Address{}) {
		state.SetState(proxy, deployerSlot, contract.AddressToHash(config.TransformerDeployer))
	}
	if config.QuoteSigner != (common.Address{}) {
		state.SetState(proxy, quoteSignerSlot, contract.AddressToHash(config.QuoteSigner))
	}
	if config.TransformWallet != (common.Address{}) {
		state.SetState(proxy, walletSlot, contract.AddressToHash(config.TransformWallet))
	}
	return nil
}

// Config configures the transform pipeline.
type Config struct {
	Upgrade             precompileconfig.Upgrade `json:"upgrade,omitempty" yaml:"upgrade,omitempty"`
	TransformerDeployer common.Address           `json:"transformerDeployer" yaml:"transformerDeployer"`
	QuoteSigner         common.Address           `json:"quoteSigner,omitempty" yaml:"quoteSigner,omitempty"`
	TransformWallet     common.Address           `json:"transformWallet,omitempty" yaml:"transformWallet,omitempty"`
}

func (*Config) Key() string { return ConfigKey }

func (c *Config) Timestamp() *uint64 { return c.Upgrade.Timestamp() }

func (c *Config) IsDisabled() bool { return c.Upgrade.Disable }

func (c *Config) Equal(cfg precompileconfig.Config) bool {
	other, ok := cfg.(*Config)
	if !ok {
		return false
	}
	return c.TransformerDeployer == other.TransformerDeployer &&
		c.QuoteSigner == other.QuoteSigner &&
		c.TransformWallet == other.TransformWallet &&
		c.Upgrade.Equal(&other.Upgrade)
}

func (c *Config) Verify(chainConfig precompileconfig.ChainConfig) error {
	if c.TransformerDeployer == (common.Address{}) {
		return fmt.Errorf("%s: transformer deployer not set", ConfigKey)
	}
	return nil
}
