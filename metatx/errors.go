// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metatx

import (
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/geth/common"
)

func InvalidMetaTransactionsArrayLengthsError(mtxCount, sigCount int) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "InvalidMetaTransactionsArrayLengthsError",
		big.NewInt(int64(mtxCount)), big.NewInt(int64(sigCount)))
}

func MetaTransactionAlreadyExecutedError(hash common.Hash, block *big.Int) error {
	return contract.NewRevert(ABI, contract.ErrStateConflict, "MetaTransactionAlreadyExecutedError", hash, block)
}

func MetaTransactionUnsupportedFunctionError(hash common.Hash, sel [4]byte) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "MetaTransactionUnsupportedFunctionError", hash, sel)
}

func MetaTransactionWrongSenderError(hash common.Hash, sender, expected common.Address) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "MetaTransactionWrongSenderError", hash, sender, expected)
}

func MetaTransactionExpiredError(hash common.Hash, now uint64, expiration *big.Int) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "MetaTransactionExpiredError",
		hash, new(big.Int).SetUint64(now), expiration)
}

func MetaTransactionGasPriceError(hash common.Hash, gasPrice, min, max *big.Int) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "MetaTransactionGasPriceError", hash, gasPrice, min, max)
}

func MetaTransactionInsufficientEthError(hash common.Hash, balance, required *big.Int) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "MetaTransactionInsufficientEthError", hash, balance, required)
}

func MetaTransactionInvalidSignatureError(hash common.Hash, signer common.Address, cause error) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "MetaTransactionInvalidSignatureError", hash, signer).WithCause(cause)
}

// MetaTransactionCallFailedError wraps the failure of the translated call.
// errors.Is and errors.As reach the inner error.
func MetaTransactionCallFailedError(hash common.Hash, callData []byte, cause error) error {
	return contract.NewRevert(ABI, contract.ErrDelegatedFailure, "MetaTransactionCallFailedError",
		hash, callData, contract.RevertData(cause)).WithCause(cause)
}
