// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package nativeorders

import (
	"math/big"

	"github.com/luxfi/exchangeproxy/signature"
	"github.com/luxfi/geth/common"
)

// OrderStatus is the fillability of an order.
type OrderStatus uint8

const (
	StatusInvalid OrderStatus = iota
	StatusFillable
	StatusFilled
	StatusCancelled
	StatusExpired
)

func (s OrderStatus) String() string {
	switch s {
	case StatusInvalid:
		return "INVALID"
	case StatusFillable:
		return "FILLABLE"
	case StatusFilled:
		return "FILLED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

var (
	LimitOrderTypeHash = signature.TypeHash("LimitOrder(address makerToken,address takerToken,uint128 makerAmount,uint128 takerAmount,uint128 takerTokenFeeAmount,address maker,address taker,address sender,address feeRecipient,bytes32 pool,uint64 expiry,uint256 salt)")
	RfqOrderTypeHash   = signature.TypeHash("RfqOrder(address makerToken,address takerToken,uint128 makerAmount,uint128 takerAmount,address maker,address taker,address txOrigin,bytes32 pool,uint64 expiry,uint256 salt)")
)

// LimitOrder is an order open to any taker allowed by its taker and sender
// fields. It may carry a taker token fee and pays the protocol fee.
type LimitOrder struct {
	MakerToken          common.Address
	TakerToken          common.Address
	MakerAmount         *big.Int
	TakerAmount         *big.Int
	TakerTokenFeeAmount *big.Int
	Maker               common.Address
	Taker               common.Address
	Sender              common.Address
	FeeRecipient        common.Address
	Pool                [32]byte
	Expiry              uint64
	Salt                *big.Int
}

// StructHash returns the EIP-712 struct hash of o.
func (o *LimitOrder) StructHash() common.Hash {
	return signature.NewEncoder(LimitOrderTypeHash).
		Address(o.MakerToken).
		Address(o.TakerToken).
		Uint(o.MakerAmount).
		Uint(o.TakerAmount).
		Uint(o.TakerTokenFeeAmount).
		Address(o.Maker).
		Address(o.Taker).
		Address(o.Sender).
		Address(o.FeeRecipient).
		Bytes32(o.Pool).
		Uint64(o.Expiry).
		Uint(o.Salt).
		Hash()
}

// Hash returns the order hash under domain.
func (o *LimitOrder) Hash(domain signature.Domain) common.Hash {
	return domain.Hash(o.StructHash())
}

// RfqOrder is a request-for-quote order. It is restricted to a tx origin and
// pays no fees.
type RfqOrder struct {
	MakerToken  common.Address
	TakerToken  common.Address
	MakerAmount *big.Int
	TakerAmount *big.Int
	Maker       common.Address
	Taker       common.Address
	TxOrigin    common.Address
	Pool        [32]byte
	Expiry      uint64
	Salt        *big.Int
}

// StructHash returns the EIP-712 struct hash of o.
func (o *RfqOrder) StructHash() common.Hash {
	return signature.NewEncoder(RfqOrderTypeHash).
		Address(o.MakerToken).
		Address(o.TakerToken).
		Uint(o.MakerAmount).
		Uint(o.TakerAmount).
		Address(o.Maker).
		Address(o.Taker).
		Address(o.TxOrigin).
		Bytes32(o.Pool).
		Uint64(o.Expiry).
		Uint(o.Salt).
		Hash()
}

// Hash returns the order hash under domain.
func (o *RfqOrder) Hash(domain signature.Domain) common.Hash {
	return domain.Hash(o.StructHash())
}

// OrderInfo is the status of an order.
type OrderInfo struct {
	OrderHash              [32]byte
	Status                 uint8
	TakerTokenFilledAmount *big.Int
}

// PartialAmountFloor returns floor(numerator * target / denominator).
func PartialAmountFloor(numerator, denominator, target *big.Int) *big.Int {
	if denominator.Sign() == 0 {
		return new(big.Int)
	}
	v := new(big.Int).Mul(numerator, target)
	return v.Quo(v, denominator)
}
