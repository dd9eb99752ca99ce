// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"bytes"
	"encoding/binary"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// FeeTier is the swap fee in hundredths of a basis point (0.3%).
const FeeTier uint32 = 3_000

const feeDenominator = 1_000_000

// PoolKey uniquely identifies a pool. Token0 sorts below Token1.
type PoolKey struct {
	Token0 common.Address
	Token1 common.Address
	Fee    uint32
}

// NewPoolKey orders tokenA and tokenB into a key.
func NewPoolKey(tokenA, tokenB common.Address, fee uint32) PoolKey {
	if bytes.Compare(tokenA[:], tokenB[:]) > 0 {
		tokenA, tokenB = tokenB, tokenA
	}
	return PoolKey{Token0: tokenA, Token1: tokenB, Fee: fee}
}

// ID computes the pool identifier.
func (pk PoolKey) ID() [32]byte {
	h := blake3.New()
	h.Write(pk.Token0.Bytes())
	h.Write(pk.Token1.Bytes())

	var feeBytes [4]byte
	binary.BigEndian.PutUint32(feeBytes[:], pk.Fee)
	h.Write(feeBytes[1:]) // uint24

	var id [32]byte
	h.Digest().Read(id[:])
	return id
}

// Pool is the stored state of one pair.
type Pool struct {
	Reserve0  *big.Int
	Reserve1  *big.Int
	Liquidity *big.Int
}

// IsInitialized reports whether the pool holds liquidity.
func (p *Pool) IsInitialized() bool {
	return p.Liquidity.Sign() > 0
}

// Reserves returns the reserves ordered as (token, other).
func (p *Pool) Reserves(key PoolKey, token common.Address) (*big.Int, *big.Int) {
	if token == key.Token0 {
		return p.Reserve0, p.Reserve1
	}
	return p.Reserve1, p.Reserve0
}

// GetAmountOut returns the constant product output for amountIn after the
// fee is taken.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int, fee uint32) *big.Int {
	if amountIn.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return new(big.Int)
	}
	withFee := new(big.Int).Mul(amountIn, big.NewInt(int64(feeDenominator-fee)))
	numerator := new(big.Int).Mul(withFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, big.NewInt(feeDenominator))
	denominator.Add(denominator, withFee)
	return numerator.Div(numerator, denominator)
}

// liquidityFor returns the shares minted for depositing amount0 and amount1.
func liquidityFor(p *Pool, amount0, amount1 *big.Int) *big.Int {
	if !p.IsInitialized() {
		return new(big.Int).Sqrt(new(big.Int).Mul(amount0, amount1))
	}
	l0 := new(big.Int).Mul(amount0, p.Liquidity)
	l0.Div(l0, p.Reserve0)
	l1 := new(big.Int).Mul(amount1, p.Liquidity)
	l1.Div(l1, p.Reserve1)
	if l0.Cmp(l1) < 0 {
		return l0
	}
	return l1
}
