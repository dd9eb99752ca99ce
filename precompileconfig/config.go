// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package precompileconfig defines the configuration shared by every exchange
// module and the chain-level values modules are configured against.
package precompileconfig

import (
	"math/big"

	"github.com/luxfi/geth/common"
)

// Config is the configuration of one module.
type Config interface {
	// Key returns the unique key of the module in config files.
	Key() string
	// Timestamp returns the activation time, nil when not scheduled.
	Timestamp() *uint64
	IsDisabled() bool
	Equal(Config) bool
	Verify(ChainConfig) error
}

// ChainConfig carries the chain values shared by all modules.
type ChainConfig interface {
	GetChainID() *big.Int
	// ProxyAddress is where the exchange proxy is deployed.
	ProxyAddress() common.Address
	// WETHAddress is the wrapped native token.
	WETHAddress() common.Address
}

// Upgrade contains the timestamp for the upgrade along with
// a boolean [Disable]. If [Disable] is set, the upgrade deactivates
// the precompile and clears its storage.
type Upgrade struct {
	BlockTimestamp *uint64 `json:"blockTimestamp" yaml:"blockTimestamp"`
	Disable        bool    `json:"disable,omitempty" yaml:"disable,omitempty"`
}

// Timestamp returns the timestamp this network upgrade goes into effect.
func (u *Upgrade) Timestamp() *uint64 {
	return u.BlockTimestamp
}

// Equal returns true iff [other] has the same blockTimestamp and has the
// same on value for the Disable flag.
func (u *Upgrade) Equal(other *Upgrade) bool {
	if other == nil {
		return false
	}
	return u.Disable == other.Disable && uint64PtrEqual(u.BlockTimestamp, other.BlockTimestamp)
}

// IsActivated reports whether the upgrade is in effect at timestamp.
func (u *Upgrade) IsActivated(timestamp uint64) bool {
	if u.BlockTimestamp == nil {
		return true
	}
	return *u.BlockTimestamp <= timestamp
}

func uint64PtrEqual(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// StaticChainConfig is a ChainConfig with fixed values.
type StaticChainConfig struct {
	ChainID *big.Int
	Proxy   common.Address
	WETH    common.Address
}

func (c *StaticChainConfig) GetChainID() *big.Int         { return c.ChainID }
func (c *StaticChainConfig) ProxyAddress() common.Address { return c.Proxy }
func (c *StaticChainConfig) WETHAddress() common.Address  { return c.WETH }
