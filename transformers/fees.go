// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transformers

import (
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/erc20"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

// TokenFee is one affiliate payment.
type TokenFee struct {
	Token     common.Address
	Amount    *big.Int
	Recipient common.Address
}

// NewAffiliateFeeTransformer pays each fee out of the wallet.
func NewAffiliateFeeTransformer(address common.Address, logger log.Logger) *Transformer {
	return newTransformer("AffiliateFeeTransformer", address, func(env contract.AccessibleState, wallet common.Address, ctx Context) error {
		values, err := decodeData("affiliateFee", ctx.Data)
		if err != nil {
			return err
		}
		fees := *abi.ConvertType(values[0], new([]TokenFee)).(*[]TokenFee)
		for _, fee := range fees {
			amount, err := resolveAmount(env, fee.Token, wallet, fee.Amount)
			if err != nil {
				return err
			}
			if err := (erc20.Spender{}).Transfer(env, fee.Token, fee.Recipient, amount); err != nil {
				return err
			}
		}
		return nil
	}, logger)
}

// NewPositiveSlippageFeeTransformer sends whatever the wallet holds of token
// above bestCaseAmount to the fee recipient.
func NewPositiveSlippageFeeTransformer(address common.Address, logger log.Logger) *Transformer {
	return newTransformer("PositiveSlippageFeeTransformer", address, func(env contract.AccessibleState, wallet common.Address, ctx Context) error {
		values, err := decodeData("positiveSlippageFee", ctx.Data)
		if err != nil {
			return err
		}
		token, bestCase, recipient := values[0].(common.Address), values[1].(*big.Int), values[2].(common.Address)
		balance, err := balanceOf(env, token, wallet)
		if err != nil {
			return err
		}
		if balance.Cmp(bestCase) <= 0 {
			return nil
		}
		return (erc20.Spender{}).Transfer(env, token, recipient, new(big.Int).Sub(balance, bestCase))
	}, logger)
}

// NewLogMetadataTransformer logs its data from the wallet.
func NewLogMetadataTransformer(address common.Address, logger log.Logger) *Transformer {
	return newTransformer("LogMetadataTransformer", address, func(env contract.AccessibleState, wallet common.Address, ctx Context) error {
		values, err := decodeData("logMetadata", ctx.Data)
		if err != nil {
			return err
		}
		return contract.EmitEvent(env.GetStateDB(), wallet, ABI, "TransformerMetadata", ctx.Sender, ctx.Recipient, values[0].([]byte))
	}, logger)
}
