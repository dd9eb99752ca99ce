// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package proxy

import (
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/geth/common"
)

func NotInRollbackHistoryError(sel [4]byte, target common.Address) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "NotInRollbackHistoryError", sel, target)
}

func InvalidImplementationError(sel [4]byte, impl common.Address) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "InvalidImplementationError", sel, impl)
}

func RollbackIndexOutOfBoundsError(sel [4]byte, idx *big.Int) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "RollbackIndexOutOfBoundsError", sel, idx)
}

func TransferOwnerToZeroError() error {
	return contract.NewRevert(ABI, contract.ErrValidation, "TransferOwnerToZeroError")
}

// MigrateCallFailedError wraps the failure of a feature's migrate function.
func MigrateCallFailedError(target common.Address, cause error) error {
	return contract.NewRevert(ABI, contract.ErrDelegatedFailure, "MigrateCallFailedError",
		target, contract.RevertData(cause)).WithCause(cause)
}
