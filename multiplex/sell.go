// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package multiplex

import (
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/dex"
	"github.com/luxfi/exchangeproxy/nativeorders"
	"github.com/luxfi/exchangeproxy/otcorders"
	"github.com/luxfi/exchangeproxy/transformerc20"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
)

// executeBatchSell runs the sub-calls in order until the sell amount is used
// up. Soft sub-calls run in their own frame through the proxy so a failure
// discards only that sub-call; the remainder is left to the next one.
func (f *Feature) executeBatchSell(env contract.AccessibleState, self common.Address, p batchSellParams) (*big.Int, *big.Int, error) {
	sold, bought := new(big.Int), new(big.Int)
	for i, call := range p.calls {
		left := new(big.Int).Sub(p.sellAmount, sold)
		if left.Sign() <= 0 {
			break
		}
		amount := normalizeSellAmount(call.SellAmount, p.sellAmount, left)
		if amount.Sign() == 0 {
			continue
		}
		id := SubcallID(call.ID)
		soldHere, boughtHere, err := f.batchSubcall(env, self, p, id, amount, call.Data)
		if err != nil {
			if id.soft() && !contract.IsRevert(err, "MultiplexInvalidSubcallDataError") {
				f.log.Debug("multiplex sub-call failed",
					"index", i,
					"source", id,
					"amount", amount,
					"err", err,
				)
				continue
			}
			return nil, nil, err
		}
		sold.Add(sold, soldHere)
		bought.Add(bought, boughtHere)
	}
	if sold.Cmp(p.sellAmount) != 0 {
		return nil, nil, MultiplexIncorrectSellAmountError(sold, p.sellAmount)
	}
	return sold, bought, nil
}

func (f *Feature) batchSubcall(
	env contract.AccessibleState,
	self common.Address,
	p batchSellParams,
	id SubcallID,
	amount *big.Int,
	data []byte,
) (*big.Int, *big.Int, error) {
	switch id {
	case SubcallRFQ:
		values, err := decodeData(id, "rfq", data)
		if err != nil {
			return nil, nil, err
		}
		call, err := nativeorders.ABI.Pack("_fillRfqOrder", values[0], values[1], amount, p.taker, p.useSelfBalance, p.recipient)
		if err != nil {
			return nil, nil, err
		}
		ret, err := env.Call(self, call, nil)
		if err != nil {
			return nil, nil, err
		}
		return unpackFilled(nativeorders.ABI, "_fillRfqOrder", ret)

	case SubcallOTC:
		values, err := decodeData(id, "otc", data)
		if err != nil {
			return nil, nil, err
		}
		call, err := otcorders.ABI.Pack("_fillOtcOrder", values[0], values[1], amount, p.taker, p.useSelfBalance, p.recipient)
		if err != nil {
			return nil, nil, err
		}
		ret, err := env.Call(self, call, nil)
		if err != nil {
			return nil, nil, err
		}
		return unpackFilled(otcorders.ABI, "_fillOtcOrder", ret)

	case SubcallUniswapV2:
		bought, err := f.sellToPool(env, p.inputToken, p.outputToken, p.taker, p.recipient, amount, p.useSelfBalance, data)
		if err != nil {
			return nil, nil, err
		}
		return amount, bought, nil

	case SubcallLiquidityProvider:
		values, err := decodeData(id, "liquidityProvider", data)
		if err != nil {
			return nil, nil, err
		}
		call, err := ABI.Pack("_sellToLiquidityProvider", p.inputToken, p.outputToken, amount,
			values[0].([32]byte), values[1].([]byte), p.taker, p.useSelfBalance, p.recipient)
		if err != nil {
			return nil, nil, err
		}
		ret, err := env.Call(self, call, nil)
		if err != nil {
			return nil, nil, err
		}
		bought, err := unpackAmount(ABI, "_sellToLiquidityProvider", ret)
		if err != nil {
			return nil, nil, err
		}
		return amount, bought, nil

	case SubcallTransformERC20:
		values, err := decodeData(id, "transformERC20", data)
		if err != nil {
			return nil, nil, err
		}
		call, err := transformerc20.ABI.Pack("_transformERC20", transformerc20.Args{
			Taker:                p.taker,
			InputToken:           p.inputToken,
			OutputToken:          p.outputToken,
			InputTokenAmount:     amount,
			MinOutputTokenAmount: new(big.Int),
			Transformations:      *abi.ConvertType(values[0], new([]transformerc20.Transformation)).(*[]transformerc20.Transformation),
			UseSelfBalance:       p.useSelfBalance,
			Recipient:            p.recipient,
		})
		if err != nil {
			return nil, nil, err
		}
		ret, err := env.Call(self, call, nil)
		if err != nil {
			return nil, nil, err
		}
		bought, err := unpackAmount(transformerc20.ABI, "_transformERC20", ret)
		if err != nil {
			return nil, nil, err
		}
		return amount, bought, nil

	case SubcallMultiHopSell:
		values, err := decodeData(id, "multiHopSell", data)
		if err != nil {
			return nil, nil, err
		}
		tokens := values[0].([]common.Address)
		if len(tokens) < 2 || tokens[0] != p.inputToken || tokens[len(tokens)-1] != p.outputToken {
			return nil, nil, MultiplexInvalidTokensError(tokens)
		}
		bought, err := f.executeMultiHopSell(env, self, multiHopSellParams{
			tokens:         tokens,
			sellAmount:     amount,
			calls:          decodeMultiHopSubcalls(values[1]),
			useSelfBalance: p.useSelfBalance,
			taker:          p.taker,
			recipient:      p.recipient,
		})
		if err != nil {
			return nil, nil, err
		}
		return amount, bought, nil
	}
	return nil, nil, MultiplexUnsupportedSubcallError(id)
}

// executeMultiHopSell sells through tokens hop by hop. Intermediate proceeds
// are held by the proxy and only the last hop pays the recipient. Every hop
// is a hard failure.
func (f *Feature) executeMultiHopSell(env contract.AccessibleState, self common.Address, p multiHopSellParams) (*big.Int, error) {
	if len(p.tokens) < 2 || len(p.calls) != len(p.tokens)-1 {
		return nil, MultiplexInvalidHopCountError(len(p.tokens), len(p.calls))
	}
	amount := p.sellAmount
	useSelfBalance := p.useSelfBalance
	for i, call := range p.calls {
		recipient := self
		if i == len(p.calls)-1 {
			recipient = p.recipient
		}
		in, out := p.tokens[i], p.tokens[i+1]
		id := SubcallID(call.ID)

		var err error
		switch id {
		case SubcallUniswapV2:
			amount, err = f.sellToPool(env, in, out, p.taker, recipient, amount, useSelfBalance, call.Data)

		case SubcallLiquidityProvider:
			var values []interface{}
			if values, err = decodeData(id, "liquidityProvider", call.Data); err == nil {
				amount, err = f.sellToLiquidityProvider(env, self, in, out, amount,
					values[0].([32]byte), values[1].([]byte), p.taker, useSelfBalance, recipient)
			}

		case SubcallBatchSell:
			var values []interface{}
			if values, err = decodeData(id, "batchSell", call.Data); err == nil {
				_, amount, err = f.executeBatchSell(env, self, batchSellParams{
					inputToken:     in,
					outputToken:    out,
					sellAmount:     amount,
					calls:          decodeBatchSubcalls(values[0]),
					useSelfBalance: useSelfBalance,
					taker:          p.taker,
					recipient:      recipient,
				})
			}

		default:
			err = MultiplexUnsupportedSubcallError(id)
		}
		if err != nil {
			return nil, err
		}
		useSelfBalance = true
	}
	return amount, nil
}

// sellToPool swaps through the pool manager named in data. Pool hops are
// hard failures.
func (f *Feature) sellToPool(
	env contract.AccessibleState,
	inputToken, outputToken, taker, recipient common.Address,
	amount *big.Int,
	useSelfBalance bool,
	data []byte,
) (*big.Int, error) {
	pool, path, err := dex.DecodeBridgeData(data)
	if err != nil {
		return nil, MultiplexInvalidSubcallDataError(SubcallUniswapV2, data)
	}
	if len(path) < 2 || path[0] != inputToken || path[len(path)-1] != outputToken {
		return nil, MultiplexInvalidTokensError(path)
	}
	if err := f.moveInput(env, inputToken, taker, pool, amount, useSelfBalance); err != nil {
		return nil, err
	}
	return dex.SwapPath(env, pool, path, amount, recipient)
}
