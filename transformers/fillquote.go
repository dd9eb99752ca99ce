// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transformers

import (
	"fmt"
	"math/big"

	"github.com/luxfi/exchangeproxy/bridge"
	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/erc20"
	"github.com/luxfi/exchangeproxy/nativeorders"
	"github.com/luxfi/exchangeproxy/signature"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

// Side says whether FillAmount counts sold or bought tokens.
type Side uint8

const (
	SideSell Side = iota
	SideBuy
)

// OrderType tags an entry of the fill sequence.
type OrderType uint8

const (
	OrderTypeBridge OrderType = iota
	OrderTypeLimit
	OrderTypeRfq
)

// BridgeOrder sells through a bridge adapter at a quoted rate.
type BridgeOrder struct {
	Source           [32]byte
	TakerTokenAmount *big.Int
	MakerTokenAmount *big.Int
	BridgeData       []byte
}

// LimitOrderInfo is a limit order to fill through the exchange.
type LimitOrderInfo struct {
	Order                   nativeorders.LimitOrder
	Signature               signature.Signature
	MaxTakerTokenFillAmount *big.Int
}

// RfqOrderInfo is an RFQ order to fill through the exchange.
type RfqOrderInfo struct {
	Order                   nativeorders.RfqOrder
	Signature               signature.Signature
	MaxTakerTokenFillAmount *big.Int
}

// FillQuoteData is the data of a fill quote transformer. FillSequence names
// the kind of each order to take, consuming the per kind lists in order.
type FillQuoteData struct {
	Side           uint8
	SellToken      common.Address
	BuyToken       common.Address
	BridgeOrders   []BridgeOrder
	LimitOrders    []LimitOrderInfo
	RfqOrders      []RfqOrderInfo
	FillSequence   []uint8
	FillAmount     *big.Int
	RefundReceiver common.Address
}

type fillQuote struct {
	exchange common.Address
	address  common.Address
	bridges  *bridge.Registry
	log      log.Logger
}

// NewFillQuoteTransformer sells or buys through bridge adapters and native
// orders on exchange. Orders that fail to fill are skipped.
func NewFillQuoteTransformer(address, exchange common.Address, bridges *bridge.Registry, logger log.Logger) *Transformer {
	if bridges == nil {
		bridges = bridge.Default()
	}
	q := &fillQuote{exchange: exchange, address: address, bridges: bridges}
	t := newTransformer("FillQuoteTransformer", address, q.transform, logger)
	q.log = t.log
	t.quote = q
	return t
}

func (q *fillQuote) transform(env contract.AccessibleState, wallet common.Address, ctx Context) error {
	values, err := decodeData("fillQuote", ctx.Data)
	if err != nil {
		return err
	}
	data := *abi.ConvertType(values[0], new(FillQuoteData)).(*FillQuoteData)
	if data.SellToken == data.BuyToken {
		return InvalidTransformDataError(InvalidTokens, ctx.Data)
	}
	if len(data.FillSequence) != len(data.BridgeOrders)+len(data.LimitOrders)+len(data.RfqOrders) {
		return InvalidTransformDataError(InvalidArrayLength, ctx.Data)
	}
	side := Side(data.Side)
	target := data.FillAmount
	if side == SideSell {
		if target, err = resolveAmount(env, data.SellToken, wallet, target); err != nil {
			return err
		}
	}
	if len(data.LimitOrders)+len(data.RfqOrders) > 0 {
		if err := approve(env, data.SellToken, q.exchange); err != nil {
			return err
		}
	}

	var (
		sold, bought = new(big.Int), new(big.Int)
		bi, li, ri   int
	)
	for _, kind := range data.FillSequence {
		remaining := new(big.Int).Sub(target, sold)
		if side == SideBuy {
			remaining = new(big.Int).Sub(target, bought)
		}
		if remaining.Sign() <= 0 {
			break
		}
		available, err := balanceOf(env, data.SellToken, wallet)
		if err != nil {
			return err
		}

		var takerFilled, makerFilled *big.Int
		switch OrderType(kind) {
		case OrderTypeBridge:
			if bi >= len(data.BridgeOrders) {
				return InvalidTransformDataError(InvalidArrayLength, ctx.Data)
			}
			order := data.BridgeOrders[bi]
			bi++
			fill := takerFillAmount(side, remaining, order.TakerTokenAmount, order.MakerTokenAmount, order.TakerTokenAmount)
			fill = contract.MinBig(fill, available)
			if fill.Sign() == 0 {
				continue
			}
			input, err := ABI.Pack("_fillBridgeOrder", data.SellToken, data.BuyToken, order, fill)
			if err != nil {
				return err
			}
			// Run in a sub frame so a failed trade leaves no partial transfer.
			ret, err := env.DelegateCall(q.address, input)
			if err != nil {
				q.log.Debug("bridge order skipped", "source", bridge.Source(order.Source).Name(), "err", err)
				continue
			}
			out, err := ABI.UnpackOutput("_fillBridgeOrder", ret)
			if err != nil {
				return err
			}
			takerFilled, makerFilled = fill, out[0].(*big.Int)

		case OrderTypeLimit:
			if li >= len(data.LimitOrders) {
				return InvalidTransformDataError(InvalidArrayLength, ctx.Data)
			}
			info := data.LimitOrders[li]
			li++
			fill := takerFillAmount(side, remaining, info.Order.TakerAmount, info.Order.MakerAmount, info.MaxTakerTokenFillAmount)
			fill = contract.MinBig(fill, available)
			if fill.Sign() == 0 {
				continue
			}
			fee, err := q.protocolFee(env)
			if err != nil {
				return err
			}
			ethLeft := env.GetStateDB().GetBalance(wallet).ToBig()
			if ethLeft.Cmp(fee) < 0 {
				return InsufficientProtocolFeeError(ethLeft, fee)
			}
			takerFilled, makerFilled, err = q.fillNative(env, "fillLimitOrder", fee, info.Order, info.Signature, fill)
			if err != nil {
				q.log.Debug("limit order skipped", "maker", info.Order.Maker, "err", err)
				continue
			}

		case OrderTypeRfq:
			if ri >= len(data.RfqOrders) {
				return InvalidTransformDataError(InvalidArrayLength, ctx.Data)
			}
			info := data.RfqOrders[ri]
			ri++
			fill := takerFillAmount(side, remaining, info.Order.TakerAmount, info.Order.MakerAmount, info.MaxTakerTokenFillAmount)
			fill = contract.MinBig(fill, available)
			if fill.Sign() == 0 {
				continue
			}
			takerFilled, makerFilled, err = q.fillNative(env, "fillRfqOrder", new(big.Int), info.Order, info.Signature, fill)
			if err != nil {
				q.log.Debug("rfq order skipped", "maker", info.Order.Maker, "err", err)
				continue
			}

		default:
			return InvalidTransformDataError(InvalidData, ctx.Data)
		}
		sold.Add(sold, takerFilled)
		bought.Add(bought, makerFilled)
	}

	if side == SideSell && sold.Cmp(target) < 0 {
		return IncompleteFillSellQuoteError(data.SellToken, sold, target)
	}
	if side == SideBuy && bought.Cmp(target) < 0 {
		return IncompleteFillBuyQuoteError(data.BuyToken, bought, target)
	}
	return q.refund(env, wallet, data)
}

// takerFillAmount converts what is left to fill into the taker amount to
// offer one order, capped at max.
func takerFillAmount(side Side, remaining, takerAmount, makerAmount, max *big.Int) *big.Int {
	if side == SideSell {
		return contract.MinBig(remaining, max)
	}
	if makerAmount.Sign() == 0 {
		return new(big.Int)
	}
	fill := new(big.Int).Mul(remaining, takerAmount)
	fill.Add(fill, new(big.Int).Sub(makerAmount, common.Big1))
	fill.Div(fill, makerAmount)
	return contract.MinBig(fill, max)
}

func (q *fillQuote) fillBridgeOrder(
	env contract.AccessibleState,
	sellToken, buyToken common.Address,
	order BridgeOrder,
	fill *big.Int,
) (*big.Int, error) {
	return q.bridges.Trade(env, bridge.Source(order.Source), sellToken, buyToken, fill, order.BridgeData)
}

func (q *fillQuote) fillNative(
	env contract.AccessibleState,
	method string,
	fee *big.Int,
	order interface{},
	sig signature.Signature,
	fill *big.Int,
) (*big.Int, *big.Int, error) {
	input, err := nativeorders.ABI.Pack(method, order, sig, fill)
	if err != nil {
		return nil, nil, err
	}
	value, err := contract.ToUint256(fee)
	if err != nil {
		return nil, nil, err
	}
	ret, err := env.Call(q.exchange, input, value)
	if err != nil {
		return nil, nil, err
	}
	out, err := nativeorders.ABI.UnpackOutput(method, ret)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s output: %v", contract.ErrDelegatedFailure, method, err)
	}
	return out[0].(*big.Int), out[1].(*big.Int), nil
}

func (q *fillQuote) protocolFee(env contract.AccessibleState) (*big.Int, error) {
	input, err := nativeorders.ABI.Pack("getProtocolFeeMultiplier")
	if err != nil {
		return nil, err
	}
	ret, err := env.StaticCall(q.exchange, input)
	if err != nil {
		return nil, err
	}
	out, err := nativeorders.ABI.UnpackOutput("getProtocolFeeMultiplier", ret)
	if err != nil {
		return nil, fmt.Errorf("%w: protocol fee multiplier: %v", contract.ErrDelegatedFailure, err)
	}
	fee := new(big.Int).SetUint64(uint64(out[0].(uint32)))
	return fee.Mul(fee, env.GetTxContext().GasPrice), nil
}

// refund returns leftover native value not being traded.
func (q *fillQuote) refund(env contract.AccessibleState, wallet common.Address, data FillQuoteData) error {
	if data.RefundReceiver == (common.Address{}) ||
		data.SellToken == contract.ETHAddress || data.BuyToken == contract.ETHAddress {
		return nil
	}
	left := env.GetStateDB().GetBalance(wallet).ToBig()
	return (erc20.Spender{}).Transfer(env, contract.ETHAddress, data.RefundReceiver, left)
}

func approve(env contract.AccessibleState, token, spender common.Address) error {
	if token == contract.ETHAddress {
		return nil
	}
	input, err := erc20.ABI.Pack("approve", spender, contract.MaxUint256)
	if err != nil {
		return err
	}
	_, err = env.Call(token, input, nil)
	return err
}
