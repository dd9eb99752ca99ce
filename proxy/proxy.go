// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package proxy implements the exchange proxy: a router that delegates every
// call to the feature implementation registered for its selector, together
// with the two bootstrap features that manage that registry.
package proxy

import (
	_ "embed"
	"errors"
	"math/big"

	"github.com/luxfi/crypto"
	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

var _ contract.StatefulPrecompiledContract = (*Proxy)(nil)

// Gas costs
const (
	GasDispatch      uint64 = 2_100
	GasRegistryRead  uint64 = 2_100
	GasRegistryWrite uint64 = 22_100
	GasOwnerWrite    uint64 = 5_000
	GasMigrate       uint64 = 30_000
)

//go:embed contract.abi
var rawABI string

// ABI covers the proxy, SimpleFunctionRegistry and Ownable.
var ABI = contract.ParseABI(rawABI)

var (
	ErrLengthMismatch = errors.New("selector and implementation arrays differ in length")
)

var (
	implPrefix       = []byte("exchange.proxy.impl")
	historyLenPrefix = []byte("exchange.proxy.history.length")
	historyPrefix    = []byte("exchange.proxy.history")
	ownerSlot        = contract.StorageKey([]byte("exchange.ownable.owner"))
)

// MigrateSuccess is returned by a feature's migrate function.
var MigrateSuccess = func() [4]byte {
	var magic [4]byte
	copy(magic[:], crypto.Keccak256([]byte("MIGRATE_SUCCESS")))
	return magic
}()

var selGetFunctionImplementation = ABI.Selector("getFunctionImplementation")

// Proxy routes calls by selector to feature implementations, running them
// against its own storage.
type Proxy struct {
	log log.Logger
}

// New returns a Proxy.
func New(logger log.Logger) *Proxy {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Proxy{log: logger}
}

// Run dispatches input.
func (p *Proxy) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	remaining, err := contract.DeductGas(suppliedGas, GasDispatch)
	if err != nil {
		return nil, 0, err
	}
	// Plain value transfers are accepted.
	if len(input) == 0 {
		return nil, remaining, nil
	}
	sel, args, err := contract.SplitSelector(input)
	if err != nil {
		return nil, remaining, err
	}

	st := accessibleState.GetStateDB()
	if sel == selGetFunctionImplementation {
		values, err := ABI.UnpackInput("getFunctionImplementation", args, false)
		if err != nil {
			return nil, remaining, err
		}
		ret, err := ABI.PackOutput("getFunctionImplementation", Implementation(st, addr, values[0].([4]byte)))
		return ret, remaining, err
	}

	impl := Implementation(st, addr, sel)
	if impl == (common.Address{}) {
		return nil, remaining, UnknownSelectorError(sel)
	}
	ret, err := accessibleState.DelegateCall(impl, input)
	if err != nil {
		p.log.Debug("feature call failed",
			"selector", common.Bytes2Hex(sel[:]),
			"impl", impl,
			"caller", caller,
			"err", err,
		)
	}
	return ret, remaining, err
}

// Implementation returns the implementation registered for sel on proxy.
func Implementation(st contract.StateDB, proxy common.Address, sel [4]byte) common.Address {
	return contract.HashToAddress(st.GetState(proxy, contract.StorageKey(implPrefix, sel[:])))
}

func setImplementation(st contract.StateDB, proxy common.Address, sel [4]byte, impl common.Address) {
	st.SetState(proxy, contract.StorageKey(implPrefix, sel[:]), contract.AddressToHash(impl))
}

// RollbackLength returns the size of sel's rollback history.
func RollbackLength(st contract.StateDB, proxy common.Address, sel [4]byte) uint64 {
	return contract.HashToBig(st.GetState(proxy, contract.StorageKey(historyLenPrefix, sel[:]))).Uint64()
}

// RollbackEntry returns entry idx of sel's rollback history.
func RollbackEntry(st contract.StateDB, proxy common.Address, sel [4]byte, idx uint64) common.Address {
	return contract.HashToAddress(st.GetState(proxy, historyKey(sel, idx)))
}

func historyKey(sel [4]byte, idx uint64) common.Hash {
	return contract.StorageKey(historyPrefix, sel[:], new(big.Int).SetUint64(idx).Bytes())
}

func setRollbackLength(st contract.StateDB, proxy common.Address, sel [4]byte, n uint64) {
	st.SetState(proxy, contract.StorageKey(historyLenPrefix, sel[:]), contract.BigToHash(new(big.Int).SetUint64(n)))
}

func pushRollback(st contract.StateDB, proxy common.Address, sel [4]byte, impl common.Address) {
	n := RollbackLength(st, proxy, sel)
	st.SetState(proxy, historyKey(sel, n), contract.AddressToHash(impl))
	setRollbackLength(st, proxy, sel, n+1)
}

func popRollback(st contract.StateDB, proxy common.Address, sel [4]byte) common.Address {
	n := RollbackLength(st, proxy, sel)
	impl := RollbackEntry(st, proxy, sel, n-1)
	st.SetState(proxy, historyKey(sel, n-1), common.Hash{})
	setRollbackLength(st, proxy, sel, n-1)
	return impl
}

// Owner returns the proxy owner.
func Owner(st contract.StateDB, proxy common.Address) common.Address {
	return contract.HashToAddress(st.GetState(proxy, ownerSlot))
}

func setOwner(st contract.StateDB, proxy, owner common.Address) {
	st.SetState(proxy, ownerSlot, contract.AddressToHash(owner))
}

// UnknownSelectorError is returned for a selector with no implementation.
func UnknownSelectorError(sel [4]byte) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "UnknownSelectorError", sel)
}
