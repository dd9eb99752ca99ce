// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package batchmultiplex runs a list of proxy calls in one transaction. Each
// call runs through the proxy as if the original caller had made it, with the
// original value attached. Calls do not refund value while the batch runs; the
// batch refunds whatever the calls left unspent once, at the end.
package batchmultiplex

import (
	_ "embed"
	"fmt"
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/proxy"
	"github.com/luxfi/exchangeproxy/reentrancy"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

var _ contract.Feature = (*Feature)(nil)

// Gas costs
const (
	GasBatch uint64 = 10_000
	GasCall  uint64 = 2_000
)

//go:embed contract.abi
var rawABI string

// ABI is the batch multiplex feature ABI.
var ABI = contract.ParseABI(rawABI)

// Feature is the batch multiplex feature.
type Feature struct {
	address common.Address
	spender contract.TokenSpender
	log     log.Logger
}

// New returns the feature deployed at address.
func New(address common.Address, spender contract.TokenSpender, logger log.Logger) *Feature {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Feature{address: address, spender: spender, log: logger}
}

func (*Feature) FeatureName() string { return "BatchMultiplex" }

func (*Feature) FeatureVersion() *big.Int { return contract.EncodeVersion(1, 0, 0) }

func (f *Feature) Address() common.Address { return f.address }

func (*Feature) Selectors() [][4]byte { return ABI.MethodSelectors("migrate") }

func (f *Feature) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if err := contract.OnlyDelegateCall(addr, f.address, "Batch_M_Feat"); err != nil {
		return nil, suppliedGas, err
	}
	method, values, err := ABI.DecodeCall(input)
	if err != nil {
		return nil, suppliedGas, err
	}
	if err := contract.RequireNoValue(method, accessibleState); err != nil {
		return nil, suppliedGas, err
	}
	if readOnly {
		return nil, suppliedGas, contract.ErrWriteProtection
	}
	if method.Name == "migrate" {
		if err := proxy.RegisterSelectors(accessibleState, addr, f); err != nil {
			return nil, suppliedGas, err
		}
		return proxy.MigrateSuccessOutput(), suppliedGas, nil
	}

	calls := values[0].([][]byte)
	remaining, err := contract.DeductGas(suppliedGas, GasBatch+GasCall*uint64(len(calls)))
	if err != nil {
		return nil, 0, err
	}
	st := accessibleState.GetStateDB()
	release, err := reentrancy.Enter(st, addr, ABI.Selector(method.Name),
		reentrancy.FlagBatchMultiplex, reentrancy.FlagMetaTransaction)
	if err != nil {
		return nil, remaining, err
	}
	defer release()

	value := accessibleState.GetCallValue().ToBig()
	balanceBefore := st.GetBalance(addr).ToBig()

	var ret []byte
	switch method.Name {
	case "batchMultiplexCall":
		results := make([][]byte, len(calls))
		for i, call := range calls {
			if results[i], err = accessibleState.DelegateCall(addr, call); err != nil {
				f.log.Debug("batch multiplex call failed", "index", i, "err", err)
				return nil, remaining, err
			}
		}
		if err := f.settleValue(accessibleState, caller, addr, value, balanceBefore); err != nil {
			return nil, remaining, err
		}
		if err := f.emit(st, addr, caller, len(calls), 0); err != nil {
			return nil, remaining, err
		}
		ret, err = ABI.PackOutput(method.Name, results)

	case "tryBatchMultiplexCall":
		successes := make([]bool, len(calls))
		results := make([][]byte, len(calls))
		failed := 0
		for i, call := range calls {
			out, err := accessibleState.DelegateCall(addr, call)
			if err != nil {
				f.log.Debug("batch multiplex call failed", "index", i, "err", err)
				results[i] = contract.RevertData(err)
				failed++
				continue
			}
			successes[i], results[i] = true, out
		}
		if err := f.settleValue(accessibleState, caller, addr, value, balanceBefore); err != nil {
			return nil, remaining, err
		}
		if err := f.emit(st, addr, caller, len(calls), failed); err != nil {
			return nil, remaining, err
		}
		ret, err = ABI.PackOutput(method.Name, successes, results)

	default:
		return nil, remaining, fmt.Errorf("%w: %s", contract.ErrInvalidInput, method.Name)
	}
	return ret, remaining, err
}

// settleValue refunds the part of the attached value the calls did not spend.
// Calls that spent more native value than was attached fail the batch.
func (f *Feature) settleValue(env contract.AccessibleState, caller, self common.Address, value, balanceBefore *big.Int) error {
	spent := new(big.Int).Sub(balanceBefore, env.GetStateDB().GetBalance(self).ToBig())
	if spent.Sign() < 0 {
		spent.SetUint64(0)
	}
	if spent.Cmp(value) > 0 {
		return BatchMultiplexValueOverspentError(value, spent)
	}
	refund := new(big.Int).Sub(value, spent)
	if caller == self || refund.Sign() == 0 {
		return nil
	}
	return f.spender.Transfer(env, contract.ETHAddress, caller, refund)
}

// BatchMultiplexValueOverspentError is returned when the calls of a batch
// spend more native value than the batch was sent.
func BatchMultiplexValueOverspentError(value, spent *big.Int) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "BatchMultiplexValueOverspentError", value, spent)
}

func (f *Feature) emit(st contract.StateDB, self, sender common.Address, calls, failed int) error {
	return contract.EmitEvent(st, self, ABI, "BatchMultiplexExecuted",
		sender, big.NewInt(int64(calls)), big.NewInt(int64(failed)))
}
