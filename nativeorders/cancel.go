// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package nativeorders

import (
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/signature"
	"github.com/luxfi/geth/common"
)

// cancelOrder marks hash cancelled. Cancelling twice, or cancelling a filled
// order, succeeds without effect on fills.
func (f *Feature) cancelOrder(st contract.StateDB, caller, self common.Address, hash common.Hash, maker common.Address) error {
	if caller != maker && !IsValidOrderSigner(st, self, maker, caller) {
		return OnlyOrderMakerAllowedError(hash, caller, maker)
	}
	markCancelled(st, self, hash)
	f.log.Debug("order cancelled", "hash", hash, "maker", maker)
	return contract.EmitEvent(st, self, ABI, "OrderCancelled", hash, maker)
}

// cancelPair cancels every order of maker for the token pair with a salt
// below or equal to salt. Repeating a cancellation succeeds.
func (f *Feature) cancelPair(
	st contract.StateDB,
	caller common.Address,
	self common.Address,
	prefix []byte,
	event string,
	maker common.Address,
	makerToken common.Address,
	takerToken common.Address,
	salt *big.Int,
) error {
	if caller != maker && !IsValidOrderSigner(st, self, maker, caller) {
		return InvalidSignerError(maker, caller)
	}
	next := new(big.Int).Set(contract.MaxUint256)
	if salt.Cmp(contract.MaxUint256) < 0 {
		next.Add(salt, common.Big1)
	}
	// Repeating the latest cancellation is a no-op; only a lower salt fails.
	old := minValidSalt(st, self, prefix, maker, makerToken, takerToken)
	if old.Cmp(next) > 0 {
		return CancelSaltTooLowError(salt, old)
	}
	setMinValidSalt(st, self, prefix, maker, makerToken, takerToken, next)
	return contract.EmitEvent(st, self, ABI, event, maker, makerToken, takerToken, salt)
}

func (f *Feature) preSign(st contract.StateDB, caller, self common.Address, hash common.Hash, maker common.Address) error {
	if caller != maker && !IsValidOrderSigner(st, self, maker, caller) {
		return OnlyOrderMakerAllowedError(hash, caller, maker)
	}
	signature.PreSign(st, self, hash, maker)
	return contract.EmitEvent(st, self, ABI, "OrderPreSigned", hash, maker)
}
