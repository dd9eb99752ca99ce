// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package nativeorders

import (
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/geth/common"
)

// Storage key prefixes. Order state lives in the proxy's storage.
var (
	filledPrefix       = []byte("exchange.nativeorders.filled")
	limitMinSaltPrefix = []byte("exchange.nativeorders.limitMinSalt")
	rfqMinSaltPrefix   = []byte("exchange.nativeorders.rfqMinSalt")
	originPrefix       = []byte("exchange.nativeorders.origin")
	signerPrefix       = []byte("exchange.nativeorders.signer")

	protocolFeeMultiplierSlot = contract.StorageKey([]byte("exchange.nativeorders.protocolFeeMultiplier"))
	feeCollectorSlot          = contract.StorageKey([]byte("exchange.nativeorders.feeCollector"))
)

// cancelledBit marks a directly cancelled order in its filled amount slot.
var cancelledBit = new(big.Int).Lsh(big.NewInt(1), 255)

var uint128Mask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

func rawFilled(st contract.StateDB, self common.Address, hash common.Hash) *big.Int {
	return contract.HashToBig(st.GetState(self, contract.StorageKey(filledPrefix, hash[:])))
}

func setRawFilled(st contract.StateDB, self common.Address, hash common.Hash, v *big.Int) {
	st.SetState(self, contract.StorageKey(filledPrefix, hash[:]), contract.BigToHash(v))
}

// FilledAmount returns the taker amount filled so far for hash.
func FilledAmount(st contract.StateDB, self common.Address, hash common.Hash) *big.Int {
	return new(big.Int).And(rawFilled(st, self, hash), uint128Mask)
}

// IsCancelled reports whether hash was cancelled directly.
func IsCancelled(st contract.StateDB, self common.Address, hash common.Hash) bool {
	return rawFilled(st, self, hash).Bit(255) == 1
}

func addFilled(st contract.StateDB, self common.Address, hash common.Hash, amount *big.Int) {
	setRawFilled(st, self, hash, new(big.Int).Add(rawFilled(st, self, hash), amount))
}

func markCancelled(st contract.StateDB, self common.Address, hash common.Hash) {
	setRawFilled(st, self, hash, new(big.Int).Or(rawFilled(st, self, hash), cancelledBit))
}

func minSaltKey(prefix []byte, maker, makerToken, takerToken common.Address) common.Hash {
	return contract.StorageKey(prefix, maker[:], makerToken[:], takerToken[:])
}

// minValidSalt returns the stored pair-cancellation bound: orders with a salt
// below it are cancelled.
func minValidSalt(st contract.StateDB, self common.Address, prefix []byte, maker, makerToken, takerToken common.Address) *big.Int {
	return contract.HashToBig(st.GetState(self, minSaltKey(prefix, maker, makerToken, takerToken)))
}

func setMinValidSalt(st contract.StateDB, self common.Address, prefix []byte, maker, makerToken, takerToken common.Address, v *big.Int) {
	st.SetState(self, minSaltKey(prefix, maker, makerToken, takerToken), contract.BigToHash(v))
}

// IsAllowedOrigin reports whether txOrigin let origin fill its RFQ orders.
func IsAllowedOrigin(st contract.StateDB, self common.Address, txOrigin, origin common.Address) bool {
	return st.GetState(self, contract.StorageKey(originPrefix, txOrigin[:], origin[:])) != (common.Hash{})
}

func setAllowedOrigin(st contract.StateDB, self common.Address, txOrigin, origin common.Address, allowed bool) {
	st.SetState(self, contract.StorageKey(originPrefix, txOrigin[:], origin[:]), boolWord(allowed))
}

// IsValidOrderSigner reports whether maker registered signer.
func IsValidOrderSigner(st contract.StateDB, self common.Address, maker, signer common.Address) bool {
	return st.GetState(self, contract.StorageKey(signerPrefix, maker[:], signer[:])) != (common.Hash{})
}

func setOrderSigner(st contract.StateDB, self common.Address, maker, signer common.Address, allowed bool) {
	st.SetState(self, contract.StorageKey(signerPrefix, maker[:], signer[:]), boolWord(allowed))
}

func boolWord(b bool) common.Hash {
	if b {
		return common.BigToHash(common.Big1)
	}
	return common.Hash{}
}
