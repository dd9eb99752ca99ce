// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package otcorders settles single-use OTC orders. An order is consumed by
// bumping the tx origin's nonce in its bucket.
package otcorders

import (
	_ "embed"
	"fmt"
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/nativeorders"
	"github.com/luxfi/exchangeproxy/proxy"
	"github.com/luxfi/exchangeproxy/signature"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

var _ contract.Feature = (*Feature)(nil)

// Gas costs
const (
	GasFill uint64 = 50_000
	GasRead uint64 = 2_600
)

//go:embed contract.abi
var rawABI string

// ABI is the OTC orders feature ABI.
var ABI = contract.ParseABI(rawABI)

var (
	lastNoncePrefix = []byte("exchange.otcorders.lastNonce")
	wethSlot        = contract.StorageKey([]byte("exchange.otcorders.weth"))
)

// Feature is the OTC orders feature.
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

func (*Feature) FeatureName() string { return "OtcOrders" }

func (*Feature) FeatureVersion() *big.Int { return contract.EncodeVersion(1, 0, 0) }

func (f *Feature) Address() common.Address { return f.address }

func (*Feature) Selectors() [][4]byte { return ABI.MethodSelectors("migrate") }

// WETH returns the wrapped native token the feature settles ETH against.
func (f *Feature) WETH(st contract.StateDB) common.Address {
	return contract.HashToAddress(st.GetState(f.address, wethSlot))
}

// LastNonce returns the last nonce consumed by txOrigin in bucket.
func LastNonce(st contract.StateDB, self, txOrigin common.Address, bucket uint64) *big.Int {
	return contract.HashToBig(st.GetState(self, lastNonceKey(txOrigin, bucket)))
}

func setLastNonce(st contract.StateDB, self, txOrigin common.Address, bucket uint64, nonce *big.Int) {
	st.SetState(self, lastNonceKey(txOrigin, bucket), contract.BigToHash(nonce))
}

func lastNonceKey(txOrigin common.Address, bucket uint64) common.Hash {
	return contract.StorageKey(lastNoncePrefix, txOrigin[:], new(big.Int).SetUint64(bucket).Bytes())
}

// Run executes an OTC orders call.
func (f *Feature) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if err := contract.OnlyDelegateCall(addr, f.address, "OtcOrders_Feat"); err != nil {
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
	domain := signature.NewDomain(accessibleState.GetChainID(), addr)

	switch method.Name {
	case "getOtcOrderInfo", "getOtcOrderHash", "lastOtcTxOriginNonce":
		remaining, err := contract.DeductGas(suppliedGas, GasRead)
		if err != nil {
			return nil, 0, err
		}
		var out interface{}
		switch method.Name {
		case "getOtcOrderInfo":
			out = f.orderInfo(accessibleState, addr, decodeOrder(values[0]))
		case "getOtcOrderHash":
			out = decodeOrder(values[0]).Hash(domain)
		default:
			out = LastNonce(st, addr, values[0].(common.Address), values[1].(uint64))
		}
		ret, err := ABI.PackOutput(method.Name, out)
		return ret, remaining, err
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

	remaining, err := contract.DeductGas(suppliedGas, GasFill)
	if err != nil {
		return nil, 0, err
	}

	switch method.Name {
	case "fillOtcOrder", "_fillOtcOrder":
		p := fillParams{
			order:      decodeOrder(values[0]),
			makerSig:   signature.FromABI(values[1]),
			fillAmount: values[2].(*big.Int),
			taker:      caller,
			recipient:  caller,
		}
		if method.Name == "_fillOtcOrder" {
			if err := contract.OnlySelf(caller, addr); err != nil {
				return nil, remaining, err
			}
			p.taker, p.useSelfBalance, p.recipient = values[3].(common.Address), values[4].(bool), values[5].(common.Address)
		}
		res, err := f.fill(accessibleState, addr, p)
		if err != nil {
			return nil, remaining, err
		}
		ret, err := ABI.PackOutput(method.Name, res.takerFilled, res.makerFilled)
		return ret, remaining, err

	case "fillOtcOrderForEth":
		res, err := f.fillForEth(accessibleState, caller, addr, decodeOrder(values[0]), signature.FromABI(values[1]), values[2].(*big.Int))
		if err != nil {
			return nil, remaining, err
		}
		ret, err := ABI.PackOutput(method.Name, res.takerFilled, res.makerFilled)
		return ret, remaining, err

	case "fillOtcOrderWithEth":
		res, err := f.fillWithEth(accessibleState, caller, addr, decodeOrder(values[0]), signature.FromABI(values[1]))
		if err != nil {
			return nil, remaining, err
		}
		ret, err := ABI.PackOutput(method.Name, res.takerFilled, res.makerFilled)
		return ret, remaining, err

	case "fillTakerSignedOtcOrder":
		order := decodeOrder(values[0])
		_, err := f.fillTakerSigned(accessibleState, addr, order, signature.FromABI(values[1]), signature.FromABI(values[2]))
		return nil, remaining, err

	case "batchFillTakerSignedOtcOrders":
		orders := *abi.ConvertType(values[0], new([]OtcOrder)).(*[]OtcOrder)
		makerSigs, takerSigs := signature.FromABISlice(values[1]), signature.FromABISlice(values[2])
		if len(makerSigs) != len(orders) {
			return nil, remaining, ArrayLengthMismatchError(len(orders), len(makerSigs))
		}
		if len(takerSigs) != len(orders) {
			return nil, remaining, ArrayLengthMismatchError(len(orders), len(takerSigs))
		}
		successes := make([]bool, len(orders))
		for i := range orders {
			call, err := ABI.Pack("fillTakerSignedOtcOrder", orders[i], makerSigs[i], takerSigs[i])
			if err != nil {
				return nil, remaining, err
			}
			if _, err := accessibleState.Call(addr, call, nil); err != nil {
				f.log.Debug("taker signed otc order fill failed", "index", i, "err", err)
				continue
			}
			successes[i] = true
		}
		ret, err := ABI.PackOutput(method.Name, successes)
		return ret, remaining, err

	default:
		return nil, remaining, fmt.Errorf("%w: %s", contract.ErrInvalidInput, method.Name)
	}
}

func decodeOrder(v interface{}) *OtcOrder {
	return abi.ConvertType(v, new(OtcOrder)).(*OtcOrder)
}

// isValidOrderSigner reads the signer registry shared with native orders.
func isValidOrderSigner(st contract.StateDB, self, maker, signer common.Address) bool {
	return nativeorders.IsValidOrderSigner(st, self, maker, signer)
}
