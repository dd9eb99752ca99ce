// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package proxy

import (
	"errors"
	"fmt"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/modules"
	"github.com/luxfi/exchangeproxy/precompileconfig"
	"github.com/luxfi/geth/common"
)

var _ contract.Configurator = (*configurator)(nil)

const (
	// ConfigKey configures the proxy bootstrap.
	ConfigKey = "exchangeProxyConfig"
	// RegistryConfigKey is the module key of the registry feature.
	RegistryConfigKey = "simpleFunctionRegistryConfig"
)

var ErrMissingOwner = errors.New("exchange proxy owner not set")

var (
	RegistryAddress = common.HexToAddress("0x0000000000000000000000000000000000009001")
	OwnableAddress  = common.HexToAddress("0x0000000000000000000000000000000000009002")

	RegistryFeature = NewRegistry(RegistryAddress, nil)
	OwnableFeature  = NewOwnable(OwnableAddress, nil)

	RegistryModule = modules.Module{
		ConfigKey:    RegistryConfigKey,
		Address:      RegistryAddress,
		Contract:     RegistryFeature,
		Configurator: &configurator{key: RegistryConfigKey},
		Bootstrap:    true,
	}

	// OwnableModule carries the bootstrap config: configuring it installs both
	// bootstrap features on the proxy.
	OwnableModule = modules.Module{
		ConfigKey:    ConfigKey,
		Address:      OwnableAddress,
		Contract:     OwnableFeature,
		Configurator: &configurator{key: ConfigKey, bootstrap: true},
		Bootstrap:    true,
	}
)

type configurator struct {
	key       string
	bootstrap bool
}

func init() {
	for _, m := range []modules.Module{RegistryModule, OwnableModule} {
		if err := modules.RegisterModule(m); err != nil {
			panic(err)
		}
	}
}

func (c *configurator) MakeConfig() precompileconfig.Config {
	return &Config{key: c.key}
}

func (c *configurator) Configure(
	chainConfig precompileconfig.ChainConfig,
	cfg precompileconfig.Config,
	state contract.StateDB,
	blockContext contract.ConfigurationBlockContext,
) error {
	if !c.bootstrap {
		return nil
	}
	config, ok := cfg.(*Config)
	if !ok {
		return fmt.Errorf("expected config type %T, got %T", &Config{}, cfg)
	}
	if err := config.Verify(chainConfig); err != nil {
		return err
	}
	return Bootstrap(state, chainConfig.ProxyAddress(), RegistryFeature, OwnableFeature, config.Owner)
}

// Config is the proxy bootstrap config.
type Config struct {
	key     string
	Upgrade precompileconfig.Upgrade `json:"upgrade,omitempty" yaml:"upgrade,omitempty"`
	// Owner receives ownership of the proxy at bootstrap.
	Owner common.Address `json:"owner" yaml:"owner"`
}

// NewConfig returns a bootstrap config for owner.
func NewConfig(owner common.Address) *Config {
	return &Config{key: ConfigKey, Owner: owner}
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
	return c.key == other.key && c.Owner == other.Owner && c.Upgrade.Equal(&other.Upgrade)
}

func (c *Config) Verify(chainConfig precompileconfig.ChainConfig) error {
	if c.key == ConfigKey && c.Owner == (common.Address{}) {
		return ErrMissingOwner
	}
	return nil
}
