// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package nativeorders

import (
	_ "embed"
	"fmt"
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/proxy"
	"github.com/luxfi/exchangeproxy/reentrancy"
	"github.com/luxfi/exchangeproxy/signature"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

var _ contract.Feature = (*BatchFill)(nil)

// GasBatchFill is charged per order on top of the nested fill.
const GasBatchFill uint64 = 5_000

//go:embed batchfill.abi
var rawBatchFillABI string

// BatchFillABI is the batch fill feature ABI.
var BatchFillABI = contract.ParseABI(rawBatchFillABI)

// BatchFill fills several native orders in one call. Each order is filled in
// its own frame: a failed fill leaves the others intact.
type BatchFill struct {
	address common.Address
	spender contract.TokenSpender
	log     log.Logger
}

// NewBatchFill returns the feature deployed at address.
func NewBatchFill(address common.Address, spender contract.TokenSpender, logger log.Logger) *BatchFill {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &BatchFill{address: address, spender: spender, log: logger}
}

func (*BatchFill) FeatureName() string { return "BatchFill" }

func (*BatchFill) FeatureVersion() *big.Int { return contract.EncodeVersion(1, 1, 0) }

func (b *BatchFill) Address() common.Address { return b.address }

func (*BatchFill) Selectors() [][4]byte { return BatchFillABI.MethodSelectors("migrate") }

// Run executes a batch fill call.
func (b *BatchFill) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if err := contract.OnlyDelegateCall(addr, b.address, "BatchFill_Feat"); err != nil {
		return nil, suppliedGas, err
	}
	method, values, err := BatchFillABI.DecodeCall(input)
	if err != nil {
		return nil, suppliedGas, err
	}
	if err := contract.RequireNoValue(method, accessibleState); err != nil {
		return nil, suppliedGas, err
	}
	if readOnly {
		return nil, suppliedGas, contract.ErrWriteProtection
	}

	switch method.Name {
	case "migrate":
		if err := proxy.RegisterSelectors(accessibleState, addr, b); err != nil {
			return nil, suppliedGas, err
		}
		return proxy.MigrateSuccessOutput(), suppliedGas, nil

	case "batchFillLimitOrders":
		orders := *abi.ConvertType(values[0], new([]LimitOrder)).(*[]LimitOrder)
		sigs := signature.FromABISlice(values[1])
		amounts, revertIfIncomplete := values[2].([]*big.Int), values[3].(bool)
		remaining, err := contract.DeductGas(suppliedGas, GasBatchFill*uint64(len(orders)))
		if err != nil {
			return nil, 0, err
		}
		if err := checkLengths(len(orders), len(sigs), len(amounts)); err != nil {
			return nil, remaining, err
		}
		st := accessibleState.GetStateDB()
		domain := domainOf(accessibleState, addr)
		feePerFill := new(big.Int).SetUint64(uint64(ProtocolFeeMultiplierAt(st, FeatureAddress)))
		feePerFill.Mul(feePerFill, accessibleState.GetTxContext().GasPrice)

		takerFilled, makerFilled := zeros(len(orders)), zeros(len(orders))
		feePaid := new(big.Int)
		for i := range orders {
			call, err := ABI.Pack("_fillLimitOrder", orders[i], sigs[i], amounts[i], caller, caller)
			if err != nil {
				return nil, remaining, err
			}
			ret, err := accessibleState.Call(addr, call, nil)
			if err == nil {
				takerFilled[i], makerFilled[i], err = unpackFill("_fillLimitOrder", ret)
				feePaid.Add(feePaid, feePerFill)
			}
			if err != nil {
				b.log.Debug("batch limit order fill failed", "index", i, "err", err)
			}
			if revertIfIncomplete && takerFilled[i].Cmp(amounts[i]) < 0 {
				return nil, remaining, BatchFillIncompleteError(orders[i].Hash(domain), takerFilled[i], amounts[i])
			}
		}
		if err := b.refund(accessibleState, caller, addr, feePaid); err != nil {
			return nil, remaining, err
		}
		ret, err := BatchFillABI.PackOutput(method.Name, takerFilled, makerFilled)
		return ret, remaining, err

	case "batchFillRfqOrders":
		orders := *abi.ConvertType(values[0], new([]RfqOrder)).(*[]RfqOrder)
		sigs := signature.FromABISlice(values[1])
		amounts, revertIfIncomplete := values[2].([]*big.Int), values[3].(bool)
		remaining, err := contract.DeductGas(suppliedGas, GasBatchFill*uint64(len(orders)))
		if err != nil {
			return nil, 0, err
		}
		if err := checkLengths(len(orders), len(sigs), len(amounts)); err != nil {
			return nil, remaining, err
		}
		domain := domainOf(accessibleState, addr)

		takerFilled, makerFilled := zeros(len(orders)), zeros(len(orders))
		for i := range orders {
			call, err := ABI.Pack("_fillRfqOrder", orders[i], sigs[i], amounts[i], caller, false, caller)
			if err != nil {
				return nil, remaining, err
			}
			ret, err := accessibleState.Call(addr, call, nil)
			if err == nil {
				takerFilled[i], makerFilled[i], err = unpackFill("_fillRfqOrder", ret)
			}
			if err != nil {
				b.log.Debug("batch rfq order fill failed", "index", i, "err", err)
			}
			if revertIfIncomplete && takerFilled[i].Cmp(amounts[i]) < 0 {
				return nil, remaining, BatchFillIncompleteError(orders[i].Hash(domain), takerFilled[i], amounts[i])
			}
		}
		ret, err := BatchFillABI.PackOutput(method.Name, takerFilled, makerFilled)
		return ret, remaining, err

	default:
		return nil, suppliedGas, fmt.Errorf("%w: %s", contract.ErrInvalidInput, method.Name)
	}
}

func (b *BatchFill) refund(env contract.AccessibleState, caller, self common.Address, paid *big.Int) error {
	value := env.GetCallValue().ToBig()
	if caller == self || value.Cmp(paid) <= 0 || reentrancy.Held(env.GetStateDB(), self, reentrancy.FlagBatchMultiplex) {
		return nil
	}
	refund := new(big.Int).Sub(value, paid)
	if err := b.spender.Transfer(env, contract.ETHAddress, caller, refund); err != nil {
		return ProtocolFeeRefundFailedError(caller, refund, err)
	}
	return nil
}

func checkLengths(orders, sigs, amounts int) error {
	if sigs != orders {
		return ArrayLengthMismatchError(orders, sigs)
	}
	if amounts != orders {
		return ArrayLengthMismatchError(orders, amounts)
	}
	return nil
}

func unpackFill(method string, ret []byte) (*big.Int, *big.Int, error) {
	out, err := ABI.UnpackOutput(method, ret)
	if err != nil {
		return new(big.Int), new(big.Int), err
	}
	return out[0].(*big.Int), out[1].(*big.Int), nil
}

func zeros(n int) []*big.Int {
	out := make([]*big.Int, n)
	for i := range out {
		out[i] = new(big.Int)
	}
	return out
}
