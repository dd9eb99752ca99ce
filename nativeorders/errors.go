// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package nativeorders

import (
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/geth/common"
)

func OrderNotFillableError(hash common.Hash, status OrderStatus) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "OrderNotFillableError", hash, uint8(status))
}

func OrderNotFillableByOriginError(hash common.Hash, txOrigin, orderTxOrigin common.Address) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "OrderNotFillableByOriginError", hash, txOrigin, orderTxOrigin)
}

func OrderNotFillableBySenderError(hash common.Hash, sender, orderSender common.Address) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "OrderNotFillableBySenderError", hash, sender, orderSender)
}

func OrderNotFillableByTakerError(hash common.Hash, taker, orderTaker common.Address) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "OrderNotFillableByTakerError", hash, taker, orderTaker)
}

func OrderNotSignedByMakerError(hash common.Hash, signer, maker common.Address) *contract.Revert {
	return contract.NewRevert(ABI, contract.ErrValidation, "OrderNotSignedByMakerError", hash, signer, maker)
}

func InvalidSignerError(maker, signer common.Address) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "InvalidSignerError", maker, signer)
}

func CancelSaltTooLowError(minValidSalt, oldMinValidSalt *big.Int) error {
	return contract.NewRevert(ABI, contract.ErrStateConflict, "CancelSaltTooLowError", minValidSalt, oldMinValidSalt)
}

func FillOrKillFailedError(hash common.Hash, filled, requested *big.Int) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "FillOrKillFailedError", hash, filled, requested)
}

func OnlyOrderMakerAllowedError(hash common.Hash, sender, maker common.Address) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "OnlyOrderMakerAllowedError", hash, sender, maker)
}

func BatchFillIncompleteError(hash common.Hash, filled, requested *big.Int) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "BatchFillIncompleteError", hash, filled, requested)
}

func ProtocolFeeUnderpaidError(required, available *big.Int) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "ProtocolFeeUnderpaidError", required, available)
}

func ProtocolFeeRefundFailedError(receiver common.Address, amount *big.Int, cause error) error {
	return contract.NewRevert(ABI, contract.ErrDelegatedFailure, "ProtocolFeeRefundFailedError", receiver, amount).WithCause(cause)
}

func ArrayLengthMismatchError(expected, actual int) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "ArrayLengthMismatchError",
		big.NewInt(int64(expected)), big.NewInt(int64(actual)))
}
