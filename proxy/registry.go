// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package proxy

import (
	"fmt"
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

var _ contract.Feature = (*Registry)(nil)

// Registry is the SimpleFunctionRegistry feature. It manages the selector to
// implementation mapping of the proxy it runs behind and keeps a rollback
// history per selector.
type Registry struct {
	address common.Address
	log     log.Logger
}

// NewRegistry returns the registry feature deployed at address.
func NewRegistry(address common.Address, logger log.Logger) *Registry {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Registry{address: address, log: logger}
}

func (*Registry) FeatureName() string { return "SimpleFunctionRegistry" }

func (*Registry) FeatureVersion() *big.Int { return contract.EncodeVersion(1, 0, 0) }

func (r *Registry) Address() common.Address { return r.address }

func (*Registry) Selectors() [][4]byte {
	return ABI.Selectors("extend", "extendBatch", "rollback", "getRollbackLength", "getRollbackEntryAtIndex")
}

// Run executes a registry call.
func (r *Registry) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if err := contract.OnlyDelegateCall(addr, r.address, "SimpleFunctionRegistry_Feat"); err != nil {
		return nil, suppliedGas, err
	}
	method, values, err := ABI.DecodeCall(input)
	if err != nil {
		return nil, suppliedGas, err
	}
	st := accessibleState.GetStateDB()

	switch method.Name {
	case "getRollbackLength":
		remaining, err := contract.DeductGas(suppliedGas, GasRegistryRead)
		if err != nil {
			return nil, 0, err
		}
		n := RollbackLength(st, addr, values[0].([4]byte))
		ret, err := ABI.PackOutput(method.Name, new(big.Int).SetUint64(n))
		return ret, remaining, err

	case "getRollbackEntryAtIndex":
		remaining, err := contract.DeductGas(suppliedGas, GasRegistryRead)
		if err != nil {
			return nil, 0, err
		}
		sel, idx := values[0].([4]byte), values[1].(*big.Int)
		if !idx.IsUint64() || idx.Uint64() >= RollbackLength(st, addr, sel) {
			return nil, remaining, RollbackIndexOutOfBoundsError(sel, idx)
		}
		ret, err := ABI.PackOutput(method.Name, RollbackEntry(st, addr, sel, idx.Uint64()))
		return ret, remaining, err
	}

	if readOnly {
		return nil, suppliedGas, contract.ErrWriteProtection
	}
	if err := contract.OnlyOwner(caller, Owner(st, addr)); err != nil {
		return nil, suppliedGas, err
	}

	switch method.Name {
	case "extend":
		remaining, err := contract.DeductGas(suppliedGas, GasRegistryWrite)
		if err != nil {
			return nil, 0, err
		}
		return nil, remaining, r.extend(accessibleState, addr, values[0].([4]byte), values[1].(common.Address))

	case "extendBatch":
		sels, impls := values[0].([][4]byte), values[1].([]common.Address)
		if len(sels) != len(impls) {
			return nil, suppliedGas, fmt.Errorf("%w: %w", contract.ErrInvalidInput, ErrLengthMismatch)
		}
		remaining, err := contract.DeductGas(suppliedGas, GasRegistryWrite*uint64(len(sels)))
		if err != nil {
			return nil, 0, err
		}
		for i := range sels {
			if err := r.extend(accessibleState, addr, sels[i], impls[i]); err != nil {
				return nil, remaining, err
			}
		}
		return nil, remaining, nil

	case "rollback":
		remaining, err := contract.DeductGas(suppliedGas, GasRegistryWrite)
		if err != nil {
			return nil, 0, err
		}
		return nil, remaining, r.rollback(st, addr, values[0].([4]byte), values[1].(common.Address))

	default:
		return nil, suppliedGas, fmt.Errorf("%w: %s", contract.ErrInvalidInput, method.Name)
	}
}

func (r *Registry) extend(env contract.AccessibleState, self common.Address, sel [4]byte, impl common.Address) error {
	if impl == (common.Address{}) || !env.HasCode(impl) {
		return InvalidImplementationError(sel, impl)
	}
	st := env.GetStateDB()
	old := extend(st, self, sel, impl)
	r.log.Debug("proxy function updated", "selector", common.Bytes2Hex(sel[:]), "old", old, "new", impl)
	return contract.EmitEvent(st, self, ABI, "ProxyFunctionUpdated", sel, old, impl)
}

// extend installs impl for sel and pushes the previous implementation, which
// is the zero address the first time, onto the rollback history.
func extend(st contract.StateDB, self common.Address, sel [4]byte, impl common.Address) common.Address {
	old := Implementation(st, self, sel)
	pushRollback(st, self, sel, old)
	setImplementation(st, self, sel, impl)
	return old
}

func (r *Registry) rollback(st contract.StateDB, self common.Address, sel [4]byte, target common.Address) error {
	current := Implementation(st, self, sel)
	if current == target {
		return nil
	}
	n := RollbackLength(st, self, sel)
	found := false
	for i := n; i > 0; i-- {
		if RollbackEntry(st, self, sel, i-1) == target {
			found = true
			break
		}
	}
	if !found {
		return NotInRollbackHistoryError(sel, target)
	}
	for {
		if popRollback(st, self, sel) == target {
			break
		}
	}
	setImplementation(st, self, sel, target)
	r.log.Debug("proxy function rolled back", "selector", common.Bytes2Hex(sel[:]), "old", current, "new", target)
	return contract.EmitEvent(st, self, ABI, "ProxyFunctionUpdated", sel, current, target)
}
