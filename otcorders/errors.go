// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package otcorders

import (
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/nativeorders"
	"github.com/luxfi/geth/common"
)

func OrderNotFillableError(hash common.Hash, status nativeorders.OrderStatus) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "OrderNotFillableError", hash, uint8(status))
}

func OrderNotFillableByOriginError(hash common.Hash, txOrigin, orderTxOrigin common.Address) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "OrderNotFillableByOriginError", hash, txOrigin, orderTxOrigin)
}

func OrderNotFillableByTakerError(hash common.Hash, taker, orderTaker common.Address) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "OrderNotFillableByTakerError", hash, taker, orderTaker)
}

func OrderNotSignedByMakerError(hash common.Hash, signer, maker common.Address) *contract.Revert {
	return contract.NewRevert(ABI, contract.ErrValidation, "OrderNotSignedByMakerError", hash, signer, maker)
}

func OrderNotSignedByTakerError(hash common.Hash, signer, taker common.Address) *contract.Revert {
	return contract.NewRevert(ABI, contract.ErrValidation, "OrderNotSignedByTakerError", hash, signer, taker)
}

func InvalidWethOrderError(hash common.Hash, token common.Address) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "InvalidWethOrderError", hash, token)
}

func ArrayLengthMismatchError(expected, actual int) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "ArrayLengthMismatchError", big.NewInt(int64(expected)), big.NewInt(int64(actual)))
}
