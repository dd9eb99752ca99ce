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

// NewPayTakerTransformer pays the listed tokens out of the wallet to the
// recipient. A missing amount, or MaxUint256, pays the whole balance.
func NewPayTakerTransformer(address common.Address, logger log.Logger) *Transformer {
	return newTransformer("PayTakerTransformer", address, func(env contract.AccessibleState, wallet common.Address, ctx Context) error {
		values, err := decodeData("payTaker", ctx.Data)
		if err != nil {
			return err
		}
		tokens, amounts := values[0].([]common.Address), values[1].([]*big.Int)
		if len(amounts) > len(tokens) {
			return InvalidTransformDataError(InvalidArrayLength, ctx.Data)
		}
		for i, token := range tokens {
			amount := contract.MaxUint256
			if i < len(amounts) {
				amount = amounts[i]
			}
			resolved, err := resolveAmount(env, token, wallet, amount)
			if err != nil {
				return err
			}
			if err := (erc20.Spender{}).Transfer(env, token, ctx.Recipient, resolved); err != nil {
				return err
			}
		}
		return nil
	}, logger)
}
