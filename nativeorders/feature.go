// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package nativeorders settles signed limit and RFQ orders against the
// proxy's order state.
package nativeorders

import (
	_ "embed"
	"fmt"
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/proxy"
	"github.com/luxfi/exchangeproxy/signature"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

var _ contract.Feature = (*Feature)(nil)

// Gas costs
const (
	GasFill     uint64 = 60_000
	GasCancel   uint64 = 10_000
	GasRegister uint64 = 22_100
	GasRead     uint64 = 2_600
)

//go:embed contract.abi
var rawABI string

// ABI is the native orders feature ABI.
var ABI = contract.ParseABI(rawABI)

// Feature is the native orders feature.
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

func (*Feature) FeatureName() string { return "LimitOrders" }

func (*Feature) FeatureVersion() *big.Int { return contract.EncodeVersion(1, 3, 0) }

func (f *Feature) Address() common.Address { return f.address }

func (*Feature) Selectors() [][4]byte { return ABI.MethodSelectors("migrate") }

// ProtocolFeeMultiplier returns the configured multiplier.
func (f *Feature) ProtocolFeeMultiplier(st contract.StateDB) uint32 {
	return ProtocolFeeMultiplierAt(st, f.address)
}

// FeeCollector returns the protocol fee recipient.
func (f *Feature) FeeCollector(st contract.StateDB) common.Address {
	return contract.HashToAddress(st.GetState(f.address, feeCollectorSlot))
}

// ProtocolFeeMultiplierAt reads the multiplier configured on the
// implementation at impl.
func ProtocolFeeMultiplierAt(st contract.StateDB, impl common.Address) uint32 {
	return uint32(contract.HashToBig(st.GetState(impl, protocolFeeMultiplierSlot)).Uint64())
}

func domainOf(env contract.AccessibleState, self common.Address) signature.Domain {
	return signature.NewDomain(env.GetChainID(), self)
}

// Run executes a native orders call.
func (f *Feature) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if err := contract.OnlyDelegateCall(addr, f.address, "NativeOrders_Feat"); err != nil {
		return nil, suppliedGas, err
	}
	method, values, err := ABI.DecodeCall(input)
	if err != nil {
		return nil, suppliedGas, err
	}
	if err := contract.RequireNoValue(method, accessibleState); err != nil {
		return nil, suppliedGas, err
	}
	st := accessibleState.GetStateDB()

	if method.IsConstant() {
		remaining, err := contract.DeductGas(suppliedGas, GasRead)
		if err != nil {
			return nil, 0, err
		}
		out, err := f.view(accessibleState, addr, method, values)
		if err != nil {
			return nil, remaining, err
		}
		ret, err := ABI.PackOutput(method.Name, out...)
		return ret, remaining, err
	}
	if readOnly {
		return nil, suppliedGas, contract.ErrWriteProtection
	}

	switch method.Name {
	case "migrate":
		if err := proxy.RegisterSelectors(accessibleState, addr, f); err != nil {
			return nil, suppliedGas, err
		}
		return proxy.MigrateSuccessOutput(), suppliedGas, nil

	case "fillLimitOrder", "fillOrKillLimitOrder", "_fillLimitOrder":
		remaining, err := contract.DeductGas(suppliedGas, GasFill)
		if err != nil {
			return nil, 0, err
		}
		order, sig, amount := decodeLimitOrder(values[0]), signature.FromABI(values[1]), values[2].(*big.Int)
		taker, sender := caller, caller
		if method.Name == "_fillLimitOrder" {
			if err := contract.OnlySelf(caller, addr); err != nil {
				return nil, remaining, err
			}
			taker, sender = values[3].(common.Address), values[4].(common.Address)
		}
		res, err := f.fillLimitOrder(accessibleState, addr, order, sig, amount, taker, sender)
		if err != nil {
			return nil, remaining, err
		}
		if method.Name != "_fillLimitOrder" {
			if err := f.refundExcessProtocolFee(accessibleState, caller, addr, res.protocolFee); err != nil {
				return nil, remaining, err
			}
		}
		if method.Name == "fillOrKillLimitOrder" {
			if res.takerFilled.Cmp(amount) < 0 {
				return nil, remaining, FillOrKillFailedError(res.hash, res.takerFilled, amount)
			}
			ret, err := ABI.PackOutput(method.Name, res.makerFilled)
			return ret, remaining, err
		}
		ret, err := ABI.PackOutput(method.Name, res.takerFilled, res.makerFilled)
		return ret, remaining, err

	case "fillRfqOrder", "fillOrKillRfqOrder", "_fillRfqOrder":
		remaining, err := contract.DeductGas(suppliedGas, GasFill)
		if err != nil {
			return nil, 0, err
		}
		order, sig, amount := decodeRfqOrder(values[0]), signature.FromABI(values[1]), values[2].(*big.Int)
		taker, useSelfBalance, recipient := caller, false, caller
		if method.Name == "_fillRfqOrder" {
			if err := contract.OnlySelf(caller, addr); err != nil {
				return nil, remaining, err
			}
			taker, useSelfBalance, recipient = values[3].(common.Address), values[4].(bool), values[5].(common.Address)
		}
		res, err := f.fillRfqOrder(accessibleState, addr, order, sig, amount, taker, useSelfBalance, recipient)
		if err != nil {
			return nil, remaining, err
		}
		if method.Name == "fillOrKillRfqOrder" {
			if res.takerFilled.Cmp(amount) < 0 {
				return nil, remaining, FillOrKillFailedError(res.hash, res.takerFilled, amount)
			}
			ret, err := ABI.PackOutput(method.Name, res.makerFilled)
			return ret, remaining, err
		}
		ret, err := ABI.PackOutput(method.Name, res.takerFilled, res.makerFilled)
		return ret, remaining, err
	}

	remaining, err := contract.DeductGas(suppliedGas, GasCancel)
	if err != nil {
		return nil, 0, err
	}
	domain := domainOf(accessibleState, addr)

	switch method.Name {
	case "cancelLimitOrder":
		order := decodeLimitOrder(values[0])
		return nil, remaining, f.cancelOrder(st, caller, addr, order.Hash(domain), order.Maker)

	case "cancelRfqOrder":
		order := decodeRfqOrder(values[0])
		return nil, remaining, f.cancelOrder(st, caller, addr, order.Hash(domain), order.Maker)

	case "batchCancelLimitOrders":
		orders := *abi.ConvertType(values[0], new([]LimitOrder)).(*[]LimitOrder)
		remaining, err = contract.DeductGas(remaining, GasCancel*uint64(len(orders)))
		if err != nil {
			return nil, 0, err
		}
		for i := range orders {
			if err := f.cancelOrder(st, caller, addr, orders[i].Hash(domain), orders[i].Maker); err != nil {
				return nil, remaining, err
			}
		}
		return nil, remaining, nil

	case "batchCancelRfqOrders":
		orders := *abi.ConvertType(values[0], new([]RfqOrder)).(*[]RfqOrder)
		remaining, err = contract.DeductGas(remaining, GasCancel*uint64(len(orders)))
		if err != nil {
			return nil, 0, err
		}
		for i := range orders {
			if err := f.cancelOrder(st, caller, addr, orders[i].Hash(domain), orders[i].Maker); err != nil {
				return nil, remaining, err
			}
		}
		return nil, remaining, nil

	case "cancelPairLimitOrders", "cancelPairRfqOrders":
		prefix, event := pairKind(method.Name)
		return nil, remaining, f.cancelPair(st, caller, addr, prefix, event, caller,
			values[0].(common.Address), values[1].(common.Address), values[2].(*big.Int))

	case "cancelPairLimitOrdersWithSigner", "cancelPairRfqOrdersWithSigner":
		prefix, event := pairKind(method.Name)
		return nil, remaining, f.cancelPair(st, caller, addr, prefix, event, values[0].(common.Address),
			values[1].(common.Address), values[2].(common.Address), values[3].(*big.Int))

	case "batchCancelPairLimitOrders", "batchCancelPairRfqOrders":
		prefix, event := pairKind(method.Name)
		makerTokens, takerTokens, salts := values[0].([]common.Address), values[1].([]common.Address), values[2].([]*big.Int)
		if len(makerTokens) != len(takerTokens) {
			return nil, remaining, ArrayLengthMismatchError(len(makerTokens), len(takerTokens))
		}
		if len(makerTokens) != len(salts) {
			return nil, remaining, ArrayLengthMismatchError(len(makerTokens), len(salts))
		}
		for i := range makerTokens {
			if err := f.cancelPair(st, caller, addr, prefix, event, caller, makerTokens[i], takerTokens[i], salts[i]); err != nil {
				return nil, remaining, err
			}
		}
		return nil, remaining, nil

	case "preSignLimitOrder":
		order := decodeLimitOrder(values[0])
		return nil, remaining, f.preSign(st, caller, addr, order.Hash(domain), order.Maker)

	case "preSignRfqOrder":
		order := decodeRfqOrder(values[0])
		return nil, remaining, f.preSign(st, caller, addr, order.Hash(domain), order.Maker)

	case "registerAllowedRfqOrigins":
		if caller != accessibleState.GetTxContext().Origin {
			return nil, remaining, contract.NewStringRevert(contract.ErrValidation, "NativeOrdersFeature/NO_CONTRACT_ORIGINS")
		}
		origins, allowed := values[0].([]common.Address), values[1].(bool)
		for _, origin := range origins {
			setAllowedOrigin(st, addr, caller, origin, allowed)
		}
		return nil, remaining, contract.EmitEvent(st, addr, ABI, "RfqOrderOriginsAllowed", caller, origins, allowed)

	case "registerAllowedOrderSigner":
		signer, allowed := values[0].(common.Address), values[1].(bool)
		setOrderSigner(st, addr, caller, signer, allowed)
		return nil, remaining, contract.EmitEvent(st, addr, ABI, "OrderSignerRegistered", caller, signer, allowed)

	default:
		return nil, remaining, fmt.Errorf("%w: %s", contract.ErrInvalidInput, method.Name)
	}
}

func (f *Feature) view(env contract.AccessibleState, self common.Address, method *abi.Method, values []interface{}) ([]interface{}, error) {
	st := env.GetStateDB()
	domain := domainOf(env, self)
	switch method.Name {
	case "getLimitOrderHash":
		return []interface{}{decodeLimitOrder(values[0]).Hash(domain)}, nil
	case "getRfqOrderHash":
		return []interface{}{decodeRfqOrder(values[0]).Hash(domain)}, nil
	case "getLimitOrderInfo":
		return []interface{}{f.limitOrderInfo(env, self, decodeLimitOrder(values[0]))}, nil
	case "getRfqOrderInfo":
		return []interface{}{f.rfqOrderInfo(env, self, decodeRfqOrder(values[0]))}, nil
	case "getProtocolFeeMultiplier":
		return []interface{}{f.ProtocolFeeMultiplier(st)}, nil
	case "isValidOrderSigner":
		return []interface{}{IsValidOrderSigner(st, self, values[0].(common.Address), values[1].(common.Address))}, nil
	case "getLimitOrderRelevantState":
		info, fillable, valid := f.limitOrderRelevantState(env, self, decodeLimitOrder(values[0]), signature.FromABI(values[1]))
		return []interface{}{info, fillable, valid}, nil
	case "getRfqOrderRelevantState":
		info, fillable, valid := f.rfqOrderRelevantState(env, self, decodeRfqOrder(values[0]), signature.FromABI(values[1]))
		return []interface{}{info, fillable, valid}, nil
	case "batchGetLimitOrderRelevantStates":
		orders := *abi.ConvertType(values[0], new([]LimitOrder)).(*[]LimitOrder)
		sigs := signature.FromABISlice(values[1])
		if len(orders) != len(sigs) {
			return nil, ArrayLengthMismatchError(len(orders), len(sigs))
		}
		infos, fillables, valids := make([]OrderInfo, len(orders)), make([]*big.Int, len(orders)), make([]bool, len(orders))
		for i := range orders {
			infos[i], fillables[i], valids[i] = f.limitOrderRelevantState(env, self, &orders[i], sigs[i])
		}
		return []interface{}{infos, fillables, valids}, nil
	case "batchGetRfqOrderRelevantStates":
		orders := *abi.ConvertType(values[0], new([]RfqOrder)).(*[]RfqOrder)
		sigs := signature.FromABISlice(values[1])
		if len(orders) != len(sigs) {
			return nil, ArrayLengthMismatchError(len(orders), len(sigs))
		}
		infos, fillables, valids := make([]OrderInfo, len(orders)), make([]*big.Int, len(orders)), make([]bool, len(orders))
		for i := range orders {
			infos[i], fillables[i], valids[i] = f.rfqOrderRelevantState(env, self, &orders[i], sigs[i])
		}
		return []interface{}{infos, fillables, valids}, nil
	default:
		return nil, fmt.Errorf("%w: %s", contract.ErrInvalidInput, method.Name)
	}
}

func pairKind(name string) ([]byte, string) {
	switch name {
	case "cancelPairRfqOrders", "cancelPairRfqOrdersWithSigner", "batchCancelPairRfqOrders":
		return rfqMinSaltPrefix, "PairCancelledRfqOrders"
	default:
		return limitMinSaltPrefix, "PairCancelledLimitOrders"
	}
}

func decodeLimitOrder(v interface{}) *LimitOrder {
	return abi.ConvertType(v, new(LimitOrder)).(*LimitOrder)
}

func decodeRfqOrder(v interface{}) *RfqOrder {
	return abi.ConvertType(v, new(RfqOrder)).(*RfqOrder)
}
