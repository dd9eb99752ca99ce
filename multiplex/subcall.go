// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package multiplex

import (
	_ "embed"
	"fmt"
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/nativeorders"
	"github.com/luxfi/exchangeproxy/otcorders"
	"github.com/luxfi/exchangeproxy/signature"
	"github.com/luxfi/exchangeproxy/transformerc20"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
)

// SubcallID names the liquidity source of a sub-call.
type SubcallID uint8

const (
	SubcallInvalid SubcallID = iota
	SubcallRFQ
	SubcallOTC
	SubcallUniswapV2
	SubcallUniswapV3
	SubcallLiquidityProvider
	SubcallTransformERC20
	SubcallBatchSell
	SubcallMultiHopSell
)

func (id SubcallID) String() string {
	switch id {
	case SubcallRFQ:
		return "RFQ"
	case SubcallOTC:
		return "OTC"
	case SubcallUniswapV2:
		return "UniswapV2"
	case SubcallUniswapV3:
		return "UniswapV3"
	case SubcallLiquidityProvider:
		return "LiquidityProvider"
	case SubcallTransformERC20:
		return "TransformERC20"
	case SubcallBatchSell:
		return "BatchSell"
	case SubcallMultiHopSell:
		return "MultiHopSell"
	default:
		return fmt.Sprintf("Invalid(%d)", uint8(id))
	}
}

// soft reports whether a failing sub-call of this kind is skipped so the
// next sub-call can sell the remainder.
func (id SubcallID) soft() bool {
	switch id {
	case SubcallRFQ, SubcallOTC, SubcallLiquidityProvider, SubcallTransformERC20:
		return true
	}
	return false
}

// BatchSellSubcall sells part of a batch through one source. A SellAmount
// with the high bit set is a fraction of the batch sell amount scaled by
// 1e18; see FractionalSellAmount.
type BatchSellSubcall struct {
	ID         uint8 `abi:"id"`
	SellAmount *big.Int
	Data       []byte
}

// MultiHopSellSubcall is one hop of a multi-hop sell.
type MultiHopSellSubcall struct {
	ID   uint8 `abi:"id"`
	Data []byte
}

//go:embed data.abi
var rawDataABI string

// DataABI describes the data layout of each sub-call kind.
var DataABI = contract.ParseABI(rawDataABI)

var (
	highBit = new(big.Int).Lsh(big.NewInt(1), 255)
	one     = big.NewInt(1e18)
)

// FractionalSellAmount encodes fraction/1e18 of the batch sell amount.
func FractionalSellAmount(fraction *big.Int) *big.Int {
	return new(big.Int).Or(fraction, highBit)
}

// normalizeSellAmount resolves a raw sub-call amount against the batch total,
// capped at what is left to sell.
func normalizeSellAmount(raw, total, remaining *big.Int) *big.Int {
	amount := raw
	if raw.Bit(255) == 1 {
		fraction := new(big.Int).SetBit(new(big.Int).Set(raw), 255, 0)
		amount = new(big.Int).Div(new(big.Int).Mul(total, fraction), one)
	}
	return contract.MinBig(amount, remaining)
}

func encodeData(name string, args ...interface{}) ([]byte, error) {
	m, ok := DataABI.Methods[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown sub-call data %q", contract.ErrInvalidInput, name)
	}
	return m.Inputs.Pack(args...)
}

func decodeData(id SubcallID, name string, data []byte) ([]interface{}, error) {
	values, err := DataABI.Methods[name].Inputs.Unpack(data)
	if err != nil {
		return nil, MultiplexInvalidSubcallDataError(id, data)
	}
	return values, nil
}

// EncodeRfqData encodes an RFQ sub-call.
func EncodeRfqData(order nativeorders.RfqOrder, sig signature.Signature) ([]byte, error) {
	return encodeData("rfq", order, sig)
}

// EncodeOtcData encodes an OTC sub-call.
func EncodeOtcData(order otcorders.OtcOrder, sig signature.Signature) ([]byte, error) {
	return encodeData("otc", order, sig)
}

// EncodeLiquidityProviderData encodes a bridge adapter sub-call.
func EncodeLiquidityProviderData(source [32]byte, bridgeData []byte) ([]byte, error) {
	return encodeData("liquidityProvider", source, bridgeData)
}

// EncodeTransformERC20Data encodes a transform pipeline sub-call.
func EncodeTransformERC20Data(transformations []transformerc20.Transformation) ([]byte, error) {
	return encodeData("transformERC20", transformations)
}

// EncodeBatchSellData encodes a batch sell nested in a multi-hop sell.
func EncodeBatchSellData(calls []BatchSellSubcall) ([]byte, error) {
	return encodeData("batchSell", calls)
}

// EncodeMultiHopSellData encodes a multi-hop sell nested in a batch sell.
func EncodeMultiHopSellData(tokens []common.Address, calls []MultiHopSellSubcall) ([]byte, error) {
	return encodeData("multiHopSell", tokens, calls)
}

func decodeBatchSubcalls(v interface{}) []BatchSellSubcall {
	return *abi.ConvertType(v, new([]BatchSellSubcall)).(*[]BatchSellSubcall)
}

func decodeMultiHopSubcalls(v interface{}) []MultiHopSellSubcall {
	return *abi.ConvertType(v, new([]MultiHopSellSubcall)).(*[]MultiHopSellSubcall)
}
