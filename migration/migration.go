// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package migration deploys a complete exchange: the proxy with its bootstrap
// features, every registered feature migrated onto it, the transformer
// deployer with the built-in transformers, a flash wallet and the wrapped
// native token. It backs the dev node and end-to-end tests.
package migration

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	_ "github.com/luxfi/exchangeproxy/batchmultiplex"
	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/dex"
	"github.com/luxfi/exchangeproxy/erc20"
	"github.com/luxfi/exchangeproxy/host"
	_ "github.com/luxfi/exchangeproxy/metatx"
	"github.com/luxfi/exchangeproxy/modules"
	_ "github.com/luxfi/exchangeproxy/multiplex"
	"github.com/luxfi/exchangeproxy/nativeorders"
	_ "github.com/luxfi/exchangeproxy/otcorders"
	"github.com/luxfi/exchangeproxy/precompileconfig"
	"github.com/luxfi/exchangeproxy/proxy"
	"github.com/luxfi/exchangeproxy/signature"
	"github.com/luxfi/exchangeproxy/transformerc20"
	"github.com/luxfi/exchangeproxy/transformers"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
)

// Default addresses of the contracts deployed next to the proxy.
var (
	WETHAddress                = common.HexToAddress("0x000000000000000000000000000000000000a000")
	TransformerDeployerAddress = common.HexToAddress("0x0000000000000000000000000000000000009100")

	firstTokenAddress = common.HexToAddress("0x000000000000000000000000000000000000a001")
)

var ErrMigrationFailed = errors.New("migration failed")

// Config configures a deployment.
type Config struct {
	ChainID *big.Int
	// Owner owns the proxy and is the transformer deployer authority.
	Owner                 common.Address
	ProtocolFeeMultiplier uint32
	FeeCollector          common.Address
	QuoteSigner           common.Address

	// Configs overrides the module configs built from the fields above,
	// keyed by module config key.
	Configs map[string]precompileconfig.Config

	Database   database.Database
	Logger     log.Logger
	Registerer prometheus.Registerer
}

// Transformer is a deployed transformer and the nonce transformations name it
// by.
type Transformer struct {
	Address common.Address
	Nonce   uint32
}

// Deployment is a migrated exchange.
type Deployment struct {
	Host  *host.Host
	Owner common.Address

	Proxy               common.Address
	WETH                common.Address
	DEX                 common.Address
	TransformerDeployer common.Address
	TransformWallet     common.Address
	Transformers        map[string]Transformer

	nextToken *big.Int
	log       log.Logger
}

// Factory returns the empty config of the module registered under key.
func Factory(key string) (precompileconfig.Config, bool) {
	m, ok := modules.Lookup(key)
	if !ok {
		return nil, false
	}
	return m.Configurator.MakeConfig(), true
}

// DefaultConfigs enables every registered module with the values in cfg.
func DefaultConfigs(cfg Config) map[string]precompileconfig.Config {
	configs := make(map[string]precompileconfig.Config)
	for _, m := range modules.RegisteredModules() {
		c := m.Configurator.MakeConfig()
		switch c := c.(type) {
		case *proxy.Config:
			c.Owner = cfg.Owner
		case *nativeorders.Config:
			c.ProtocolFeeMultiplier = cfg.ProtocolFeeMultiplier
			c.FeeCollector = cfg.FeeCollector
		case *transformerc20.Config:
			c.TransformerDeployer = TransformerDeployerAddress
			c.QuoteSigner = cfg.QuoteSigner
		}
		configs[m.ConfigKey] = c
	}
	return configs
}

// Deploy builds and migrates a full exchange.
func Deploy(cfg Config) (*Deployment, error) {
	if cfg.Owner == (common.Address{}) {
		return nil, proxy.ErrMissingOwner
	}
	chainID := cfg.ChainID
	if chainID == nil {
		chainID = big.NewInt(1)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	db := cfg.Database
	if db == nil {
		db = memdb.New()
	}

	h := host.New(db, host.Config{ChainID: chainID, Logger: logger, Registerer: cfg.Registerer})
	d := &Deployment{
		Host:                h,
		Owner:               cfg.Owner,
		Proxy:               modules.ProxyAddress,
		WETH:                WETHAddress,
		DEX:                 modules.DEXAddress,
		TransformerDeployer: TransformerDeployerAddress,
		Transformers:        make(map[string]Transformer),
		nextToken:           new(big.Int).SetBytes(firstTokenAddress[:]),
		log:                 logger,
	}

	catalog := transformers.Catalog(d.Proxy, d.WETH, logger)
	deployments := []struct {
		addr common.Address
		c    contract.StatefulPrecompiledContract
	}{
		{d.Proxy, proxy.New(logger)},
		{d.WETH, erc20.NewWETH()},
		{d.DEX, dex.NewPoolManager(logger)},
		{d.TransformerDeployer, transformers.NewDeployer(cfg.Owner, catalog, logger)},
	}
	for _, m := range modules.RegisteredModules() {
		deployments = append(deployments, struct {
			addr common.Address
			c    contract.StatefulPrecompiledContract
		}{m.Address, m.Contract})
	}
	for _, dep := range deployments {
		if err := h.Deploy(dep.addr, dep.c); err != nil {
			return nil, err
		}
	}

	configs := DefaultConfigs(cfg)
	for key, c := range cfg.Configs {
		configs[key] = c
	}
	active, err := d.configure(chainID, configs)
	if err != nil {
		return nil, err
	}
	transformEnabled := false
	for _, m := range active {
		if err := d.migrate(m); err != nil {
			return nil, err
		}
		transformEnabled = transformEnabled || m.ConfigKey == transformerc20.ConfigKey
	}
	if !transformEnabled {
		return d, nil
	}
	if err := d.deployTransformers(transformers.Names(catalog)); err != nil {
		return nil, err
	}
	if err := d.createTransformWallet(configs[transformerc20.ConfigKey]); err != nil {
		return nil, err
	}
	return d, nil
}

// configure applies every enabled config at genesis and returns the feature
// modules that still need migrating onto the proxy.
func (d *Deployment) configure(chainID *big.Int, configs map[string]precompileconfig.Config) ([]modules.Module, error) {
	chainConfig := &precompileconfig.StaticChainConfig{ChainID: chainID, Proxy: d.Proxy, WETH: d.WETH}
	var active []modules.Module
	err := d.Host.Genesis(func(env contract.AccessibleState) error {
		now := env.GetBlockContext().Timestamp()
		for _, m := range modules.RegisteredModules() {
			cfg, ok := configs[m.ConfigKey]
			if !ok || cfg.IsDisabled() {
				continue
			}
			if ts := cfg.Timestamp(); ts != nil && *ts > now {
				d.log.Info("module not yet active", "key", m.ConfigKey, "activation", *ts)
				continue
			}
			if err := cfg.Verify(chainConfig); err != nil {
				return fmt.Errorf("verify %s: %w", m.ConfigKey, err)
			}
			if err := m.Configurator.Configure(chainConfig, cfg, env.GetStateDB(), env.GetBlockContext()); err != nil {
				return fmt.Errorf("configure %s: %w", m.ConfigKey, err)
			}
			if !m.Bootstrap {
				active = append(active, m)
			}
		}
		return nil
	})
	return active, err
}

func (d *Deployment) migrate(m modules.Module) error {
	input, err := proxy.ABI.Pack("migrate", m.Address, proxy.MigrateCall(), d.Owner)
	if err != nil {
		return err
	}
	receipt := d.Call(d.Owner, d.Proxy, input, nil)
	if !receipt.Succeeded() {
		return fmt.Errorf("%w: %s: %v", ErrMigrationFailed, m.Contract.FeatureName(), receipt.Err)
	}
	d.log.Info("feature installed",
		"feature", m.Contract.FeatureName(),
		"version", m.Contract.FeatureVersion(),
		"impl", m.Address,
	)
	return nil
}

func (d *Deployment) deployTransformers(names []string) error {
	for _, name := range names {
		nonce := d.Host.StateDB().GetNonce(d.TransformerDeployer)
		input, err := transformers.DeployerABI.Pack("deploy", name)
		if err != nil {
			return err
		}
		receipt := d.Call(d.Owner, d.TransformerDeployer, input, nil)
		if !receipt.Succeeded() {
			return fmt.Errorf("%w: deploy %s: %v", ErrMigrationFailed, name, receipt.Err)
		}
		out, err := transformers.DeployerABI.UnpackOutput("deploy", receipt.ReturnData)
		if err != nil {
			return err
		}
		d.Transformers[name] = Transformer{Address: out[0].(common.Address), Nonce: uint32(nonce)}
	}
	return nil
}

func (d *Deployment) createTransformWallet(cfg precompileconfig.Config) error {
	if c, ok := cfg.(*transformerc20.Config); ok && c.TransformWallet != (common.Address{}) {
		d.TransformWallet = c.TransformWallet
		return nil
	}
	input, err := transformerc20.ABI.Pack("createTransformWallet")
	if err != nil {
		return err
	}
	receipt := d.Call(d.Owner, d.Proxy, input, nil)
	if !receipt.Succeeded() {
		return fmt.Errorf("%w: create transform wallet: %v", ErrMigrationFailed, receipt.Err)
	}
	out, err := transformerc20.ABI.UnpackOutput("createTransformWallet", receipt.ReturnData)
	if err != nil {
		return err
	}
	d.TransformWallet = out[0].(common.Address)
	return nil
}

// Domain is the signing domain of orders and meta-transactions.
func (d *Deployment) Domain() signature.Domain {
	return signature.NewDomain(d.Host.ChainID(), d.Proxy)
}

// Call applies a message from from to to.
func (d *Deployment) Call(from, to common.Address, data []byte, value *big.Int) *host.Receipt {
	msg := &host.Message{From: from, To: to, Data: data}
	if value != nil {
		msg.Value = uint256.MustFromBig(value)
	}
	return d.Host.ApplyMessage(msg)
}

// CallProxy applies a message from from to the proxy.
func (d *Deployment) CallProxy(from common.Address, data []byte, value *big.Int) *host.Receipt {
	return d.Call(from, d.Proxy, data, value)
}

// DeployToken deploys an open-mint token at the next free token address.
func (d *Deployment) DeployToken(name, symbol string, decimals uint8) (common.Address, error) {
	addr := common.BigToAddress(d.nextToken)
	if err := d.Host.Deploy(addr, erc20.NewToken(name, symbol, decimals)); err != nil {
		return common.Address{}, err
	}
	d.nextToken.Add(d.nextToken, common.Big1)
	return addr, nil
}

// Fund credits native value to addr.
func (d *Deployment) Fund(addr common.Address, amount *big.Int) error {
	return d.Host.Genesis(func(env contract.AccessibleState) error {
		value, err := contract.ToUint256(amount)
		if err != nil {
			return err
		}
		env.GetStateDB().AddBalance(addr, value, tracing.BalanceIncreaseGenesisBalance)
		return nil
	})
}

// Mint credits amount of token to to. Minting WETH locks the same amount of
// native value in the WETH contract.
func (d *Deployment) Mint(token, to common.Address, amount *big.Int) error {
	return d.Host.Genesis(func(env contract.AccessibleState) error {
		if token == d.WETH {
			return erc20.MintAndWrap(env.GetStateDB(), d.WETH, to, amount)
		}
		return erc20.Mint(env.GetStateDB(), token, to, amount)
	})
}

// Approve sets owner's allowance for spender.
func (d *Deployment) Approve(token, owner, spender common.Address, amount *big.Int) error {
	return d.Host.Genesis(func(env contract.AccessibleState) error {
		erc20.Approve(env.GetStateDB(), token, owner, spender, amount)
		return nil
	})
}

// SeedPool adds liquidity for the pair to the pool manager.
func (d *Deployment) SeedPool(provider, tokenA, tokenB common.Address, amountA, amountB *big.Int) error {
	return d.Host.Genesis(func(env contract.AccessibleState) error {
		st := env.GetStateDB()
		for _, leg := range []struct {
			token  common.Address
			amount *big.Int
		}{{tokenA, amountA}, {tokenB, amountB}} {
			if leg.token != d.WETH {
				continue
			}
			// SeedPool mints WETH directly; back it with native value.
			value, err := contract.ToUint256(leg.amount)
			if err != nil {
				return err
			}
			st.AddBalance(d.WETH, value, tracing.BalanceIncreaseGenesisBalance)
		}
		return dex.SeedPool(st, d.DEX, provider, tokenA, tokenB, amountA, amountB)
	})
}

// Balance returns owner's balance of token, or its native balance for
// contract.ETHAddress.
func (d *Deployment) Balance(token, owner common.Address) *big.Int {
	st := d.Host.StateDB()
	if token == contract.ETHAddress {
		return st.GetBalance(owner).ToBig()
	}
	return erc20.BalanceOf(st, token, owner)
}

// TransformerNonce returns the deployment nonce of a catalog transformer.
func (d *Deployment) TransformerNonce(name string) (uint32, bool) {
	t, ok := d.Transformers[name]
	return t.Nonce, ok
}
