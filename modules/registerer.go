// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package modules

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/luxfi/geth/common"
)

// AddressRange is an inclusive range of addresses.
type AddressRange struct {
	Start common.Address
	End   common.Address
}

func (a *AddressRange) Contains(addr common.Address) bool {
	return bytes.Compare(addr[:], a.Start[:]) >= 0 && bytes.Compare(addr[:], a.End[:]) <= 0
}

// BlackholeAddr receives burned assets and never hosts a feature.
var BlackholeAddr = common.Address{
	1, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Well-known exchange addresses.
var (
	// ProxyAddress is the default address of the exchange proxy.
	ProxyAddress = common.HexToAddress("0x0000000000000000000000000000000000009000")
	// DEXAddress is the default address of the constant-product pool manager.
	DEXAddress = common.HexToAddress("0x0000000000000000000000000000000000009400")
)

var (
	// registered is kept sorted by address.
	registered = make([]Module, 0)

	// Address layout:
	//
	// 0x9000:        exchange proxy
	// 0x9001-0x90FF: feature implementations
	// 0x9100-0x91FF: transformers and flash wallets deployed at genesis
	// 0x9400-0x94FF: liquidity sources (pool manager, bridge adapters)
	reservedRanges = []AddressRange{
		{
			Start: common.HexToAddress("0x0000000000000000000000000000000000009001"),
			End:   common.HexToAddress("0x00000000000000000000000000000000000090ff"),
		},
		{
			Start: common.HexToAddress("0x0000000000000000000000000000000000009100"),
			End:   common.HexToAddress("0x00000000000000000000000000000000000091ff"),
		},
		{
			Start: common.HexToAddress("0x0000000000000000000000000000000000009400"),
			End:   common.HexToAddress("0x00000000000000000000000000000000000094ff"),
		},
	}
)

// ReservedAddress reports whether addr lies in a range exchange features may
// occupy.
func ReservedAddress(addr common.Address) bool {
	for i := range reservedRanges {
		if reservedRanges[i].Contains(addr) {
			return true
		}
	}
	return false
}

// RegisterModule adds m to the feature registry. Config keys and addresses
// must be unique.
func RegisterModule(m Module) error {
	switch {
	case m.Address == BlackholeAddr:
		return fmt.Errorf("module %s: address %s is the blackhole", m.ConfigKey, m.Address)
	case m.Address == ProxyAddress:
		return fmt.Errorf("module %s: address %s is the exchange proxy", m.ConfigKey, m.Address)
	case !ReservedAddress(m.Address):
		return fmt.Errorf("module %s: address %s outside the feature ranges", m.ConfigKey, m.Address)
	case m.Contract == nil:
		return fmt.Errorf("module %s has no contract", m.ConfigKey)
	}

	for _, existing := range registered {
		if existing.ConfigKey == m.ConfigKey {
			return fmt.Errorf("config key %s already registered", m.ConfigKey)
		}
		if existing.Address == m.Address {
			return fmt.Errorf("address %s already taken by %s", m.Address, existing.ConfigKey)
		}
	}
	registered = append(registered, m)
	sort.Sort(moduleArray(registered))
	return nil
}

// ModuleAt returns the module implemented at address.
func ModuleAt(address common.Address) (Module, bool) {
	for _, m := range registered {
		if m.Address == address {
			return m, true
		}
	}
	return Module{}, false
}

// Lookup returns the module registered under a config key.
func Lookup(key string) (Module, bool) {
	for _, m := range registered {
		if m.ConfigKey == key {
			return m, true
		}
	}
	return Module{}, false
}

// RegisteredModules returns every module, ordered by address.
func RegisteredModules() []Module {
	return registered
}
