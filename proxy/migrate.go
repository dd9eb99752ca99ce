// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package proxy

import (
	"fmt"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/geth/common"
)

const migratorRawABI = `[
  {"type":"function","name":"migrate","stateMutability":"nonpayable","inputs":[],"outputs":[{"name":"success","type":"bytes4"}]}
]`

// MigratorABI is the migrate() entry point of features without migration
// arguments.
var MigratorABI = contract.ParseABI(migratorRawABI)

// MigrateSelector is the selector of migrate().
var MigrateSelector = MigratorABI.Selector("migrate")

// MigrateCall returns the call data of migrate().
func MigrateCall() []byte {
	return append([]byte{}, MigrateSelector[:]...)
}

// Bootstrap installs the registry and ownership features on proxy and sets
// its owner. It writes state directly and is meant to run at genesis.
func Bootstrap(st contract.StateDB, proxy common.Address, registry, ownable contract.Feature, owner common.Address) error {
	if owner == (common.Address{}) {
		return TransferOwnerToZeroError()
	}
	for _, f := range []contract.Feature{registry, ownable} {
		for _, sel := range f.Selectors() {
			old := extend(st, proxy, sel, f.Address())
			if err := contract.EmitEvent(st, proxy, ABI, "ProxyFunctionUpdated", sel, old, f.Address()); err != nil {
				return err
			}
		}
	}
	setOwner(st, proxy, owner)
	return contract.EmitEvent(st, proxy, ABI, "OwnershipTransferred", common.Address{}, owner)
}

// RegisterSelectors routes every selector of f to its implementation by
// calling extend on the proxy from itself. It is used by a feature's migrate
// function, which runs while the proxy owns itself.
func RegisterSelectors(env contract.AccessibleState, self common.Address, f contract.Feature) error {
	for _, sel := range f.Selectors() {
		input, err := ABI.Pack("extend", sel, f.Address())
		if err != nil {
			return err
		}
		if _, err := env.Call(self, input, nil); err != nil {
			return fmt.Errorf("register %s 0x%x: %w", f.FeatureName(), sel, err)
		}
	}
	return nil
}

// MigrateSuccessOutput is the return data of a successful migrate.
func MigrateSuccessOutput() []byte {
	ret, _ := MigratorABI.PackOutput("migrate", MigrateSuccess)
	return ret
}
