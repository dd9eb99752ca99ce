// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package proxy

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

var _ contract.Feature = (*Ownable)(nil)

// Ownable is the ownership feature. Besides owner management it runs feature
// migrations: the proxy becomes its own owner while the migrator executes.
type Ownable struct {
	address common.Address
	log     log.Logger
}

// NewOwnable returns the ownership feature deployed at address.
func NewOwnable(address common.Address, logger log.Logger) *Ownable {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Ownable{address: address, log: logger}
}

func (*Ownable) FeatureName() string { return "Ownable" }

func (*Ownable) FeatureVersion() *big.Int { return contract.EncodeVersion(1, 0, 0) }

func (o *Ownable) Address() common.Address { return o.address }

func (*Ownable) Selectors() [][4]byte {
	return ABI.Selectors("owner", "transferOwnership", "migrate")
}

// Run executes an ownership call.
func (o *Ownable) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if err := contract.OnlyDelegateCall(addr, o.address, "Ownable_Feat"); err != nil {
		return nil, suppliedGas, err
	}
	method, values, err := ABI.DecodeCall(input)
	if err != nil {
		return nil, suppliedGas, err
	}
	st := accessibleState.GetStateDB()

	if method.Name == "owner" {
		remaining, err := contract.DeductGas(suppliedGas, GasRegistryRead)
		if err != nil {
			return nil, 0, err
		}
		ret, err := ABI.PackOutput(method.Name, Owner(st, addr))
		return ret, remaining, err
	}

	if readOnly {
		return nil, suppliedGas, contract.ErrWriteProtection
	}
	owner := Owner(st, addr)
	if err := contract.OnlyOwner(caller, owner); err != nil {
		return nil, suppliedGas, err
	}

	switch method.Name {
	case "transferOwnership":
		remaining, err := contract.DeductGas(suppliedGas, GasOwnerWrite)
		if err != nil {
			return nil, 0, err
		}
		newOwner := values[0].(common.Address)
		if newOwner == (common.Address{}) {
			return nil, remaining, TransferOwnerToZeroError()
		}
		setOwner(st, addr, newOwner)
		return nil, remaining, contract.EmitEvent(st, addr, ABI, "OwnershipTransferred", owner, newOwner)

	case "migrate":
		remaining, err := contract.DeductGas(suppliedGas, GasMigrate)
		if err != nil {
			return nil, 0, err
		}
		target, data, newOwner := values[0].(common.Address), values[1].([]byte), values[2].(common.Address)
		return nil, remaining, o.migrate(accessibleState, caller, addr, target, data, newOwner)

	default:
		return nil, suppliedGas, fmt.Errorf("%w: %s", contract.ErrInvalidInput, method.Name)
	}
}

func (o *Ownable) migrate(
	env contract.AccessibleState,
	caller common.Address,
	self common.Address,
	target common.Address,
	data []byte,
	newOwner common.Address,
) error {
	if newOwner == (common.Address{}) {
		return TransferOwnerToZeroError()
	}
	st := env.GetStateDB()
	// The migrator registers selectors through extend, which is onlyOwner.
	setOwner(st, self, self)

	ret, err := env.DelegateCall(target, data)
	if err != nil {
		return MigrateCallFailedError(target, err)
	}
	if !IsMigrateSuccess(ret) {
		return MigrateCallFailedError(target,
			contract.NewStringRevert(contract.ErrDelegatedFailure, "Ownable/MIGRATE_INVALID_RESULT"))
	}

	setOwner(st, self, newOwner)
	o.log.Info("feature migrated", "migrator", target, "caller", caller, "newOwner", newOwner)
	if err := contract.EmitEvent(st, self, ABI, "OwnershipTransferred", self, newOwner); err != nil {
		return err
	}
	return contract.EmitEvent(st, self, ABI, "Migrated", caller, target, newOwner)
}

// IsMigrateSuccess reports whether ret is the encoded success magic.
func IsMigrateSuccess(ret []byte) bool {
	return len(ret) == 32 && bytes.Equal(ret[:4], MigrateSuccess[:])
}
