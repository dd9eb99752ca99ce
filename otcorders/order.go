// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package otcorders

import (
	"math/big"

	"github.com/luxfi/exchangeproxy/signature"
	"github.com/luxfi/geth/common"
)

var OtcOrderTypeHash = signature.TypeHash("OtcOrder(address makerToken,address takerToken,uint128 makerAmount,uint128 takerAmount,address maker,address taker,address txOrigin,uint256 expiryAndNonce)")

var (
	uint64Mask  = new(big.Int).SetUint64(^uint64(0))
	uint128Mask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

// OtcOrder is a single-use order whose replay protection is a per tx origin
// nonce rather than a fill record.
type OtcOrder struct {
	MakerToken  common.Address
	TakerToken  common.Address
	MakerAmount *big.Int
	TakerAmount *big.Int
	Maker       common.Address
	Taker       common.Address
	TxOrigin    common.Address
	// ExpiryAndNonce packs expiry (bits 192-255), nonce bucket (bits 128-191)
	// and nonce (bits 0-127).
	ExpiryAndNonce *big.Int
}

// OtcOrderInfo is the status of an OTC order.
type OtcOrderInfo struct {
	OrderHash [32]byte
	Status    uint8
}

// PackExpiryAndNonce builds the ExpiryAndNonce word.
func PackExpiryAndNonce(expiry, bucket uint64, nonce *big.Int) *big.Int {
	v := new(big.Int).Lsh(new(big.Int).SetUint64(expiry), 192)
	v.Or(v, new(big.Int).Lsh(new(big.Int).SetUint64(bucket), 128))
	return v.Or(v, new(big.Int).And(nonce, uint128Mask))
}

// Expiry returns the expiry timestamp.
func (o *OtcOrder) Expiry() uint64 {
	return new(big.Int).Rsh(o.ExpiryAndNonce, 192).Uint64()
}

// NonceBucket returns the nonce bucket.
func (o *OtcOrder) NonceBucket() uint64 {
	v := new(big.Int).Rsh(o.ExpiryAndNonce, 128)
	return v.And(v, uint64Mask).Uint64()
}

// Nonce returns the nonce within its bucket.
func (o *OtcOrder) Nonce() *big.Int {
	return new(big.Int).And(o.ExpiryAndNonce, uint128Mask)
}

// StructHash returns the EIP-712 struct hash of o.
func (o *OtcOrder) StructHash() common.Hash {
	return signature.NewEncoder(OtcOrderTypeHash).
		Address(o.MakerToken).
		Address(o.TakerToken).
		Uint(o.MakerAmount).
		Uint(o.TakerAmount).
		Address(o.Maker).
		Address(o.Taker).
		Address(o.TxOrigin).
		Uint(o.ExpiryAndNonce).
		Hash()
}

// Hash returns the order hash under domain.
func (o *OtcOrder) Hash(domain signature.Domain) common.Hash {
	return domain.Hash(o.StructHash())
}
