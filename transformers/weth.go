// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transformers

import (
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/erc20"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

// NewWethTransformer wraps native value into weth or unwraps weth, depending
// on the token named in the data.
func NewWethTransformer(address, weth common.Address, logger log.Logger) *Transformer {
	return newTransformer("WethTransformer", address, func(env contract.AccessibleState, wallet common.Address, ctx Context) error {
		values, err := decodeData("weth", ctx.Data)
		if err != nil {
			return err
		}
		token := values[0].(common.Address)
		if token != contract.ETHAddress && token != weth {
			return InvalidTransformDataError(InvalidTokens, ctx.Data)
		}
		amount, err := resolveAmount(env, token, wallet, values[1].(*big.Int))
		if err != nil {
			return err
		}
		if token == contract.ETHAddress {
			return erc20.WrapETH(env, weth, amount)
		}
		return erc20.UnwrapETH(env, weth, amount)
	}, logger)
}
