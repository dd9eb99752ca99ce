// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package multiplex

import (
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/geth/common"
)

func MultiplexIncorrectSellAmountError(sold, sellAmount *big.Int) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "MultiplexIncorrectSellAmountError", sold, sellAmount)
}

func MultiplexUnderboughtError(bought, minBuyAmount *big.Int) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "MultiplexUnderboughtError", bought, minBuyAmount)
}

func MultiplexUnsupportedSubcallError(id SubcallID) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "MultiplexUnsupportedSubcallError", uint8(id))
}

func MultiplexInvalidTokensError(tokens []common.Address) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "MultiplexInvalidTokensError", tokens)
}

func MultiplexInvalidHopCountError(tokens, calls int) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "MultiplexInvalidHopCountError",
		big.NewInt(int64(tokens)), big.NewInt(int64(calls)))
}

func MultiplexInvalidSubcallDataError(id SubcallID, data []byte) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "MultiplexInvalidSubcallDataError", uint8(id), data)
}
