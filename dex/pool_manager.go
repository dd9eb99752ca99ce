// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dex is a constant product pool manager. All pairs live in one
// contract and are keyed by a blake3 pool id.
package dex

import (
	_ "embed"
	"fmt"
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/erc20"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

var _ contract.StatefulPrecompiledContract = (*PoolManager)(nil)

// Gas costs
const (
	GasRead         uint64 = 2_600
	GasSwap         uint64 = 40_000
	GasAddLiquidity uint64 = 60_000
)

//go:embed contract.abi
var rawABI string

// ABI is the pool manager ABI.
var ABI = contract.ParseABI(rawABI)

// Storage key prefixes for pool manager state
var (
	reservePrefix   = []byte("dex.pool.reserve")
	liquidityPrefix = []byte("dex.pool.liquidity")
	positionPrefix  = []byte("dex.pool.position")
	accountedPrefix = []byte("dex.accounted")
)

// PoolManager holds every pair. Swaps expect the input to be transferred to
// the manager before the call.
type PoolManager struct {
	spender erc20.Spender
	log     log.Logger
}

// NewPoolManager returns a pool manager.
func NewPoolManager(logger log.Logger) *PoolManager {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &PoolManager{log: logger}
}

func (pm *PoolManager) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	method, values, err := ABI.DecodeCall(input)
	if err != nil {
		return nil, suppliedGas, err
	}
	if err := contract.RequireNoValue(method, accessibleState); err != nil {
		return nil, suppliedGas, err
	}
	st := accessibleState.GetStateDB()

	switch method.Name {
	case "getReserves", "getAmountOut", "getPoolId", "liquidityOf":
		remaining, err := contract.DeductGas(suppliedGas, GasRead)
		if err != nil {
			return nil, 0, err
		}
		var out []interface{}
		switch method.Name {
		case "getReserves":
			tokenA, tokenB := values[0].(common.Address), values[1].(common.Address)
			key := NewPoolKey(tokenA, tokenB, FeeTier)
			ra, rb := GetPool(st, addr, key).Reserves(key, tokenA)
			out = []interface{}{ra, rb}
		case "getAmountOut":
			tokenIn, tokenOut := values[1].(common.Address), values[2].(common.Address)
			key := NewPoolKey(tokenIn, tokenOut, FeeTier)
			rIn, rOut := GetPool(st, addr, key).Reserves(key, tokenIn)
			out = []interface{}{GetAmountOut(values[0].(*big.Int), rIn, rOut, key.Fee)}
		case "getPoolId":
			out = []interface{}{NewPoolKey(values[0].(common.Address), values[1].(common.Address), FeeTier).ID()}
		case "liquidityOf":
			id, provider := values[0].([32]byte), values[1].(common.Address)
			out = []interface{}{contract.HashToBig(st.GetState(addr, contract.StorageKey(positionPrefix, id[:], provider[:])))}
		}
		ret, err := ABI.PackOutput(method.Name, out...)
		return ret, remaining, err
	}
	if readOnly {
		return nil, suppliedGas, contract.ErrWriteProtection
	}

	switch method.Name {
	case "addLiquidity":
		remaining, err := contract.DeductGas(suppliedGas, GasAddLiquidity)
		if err != nil {
			return nil, 0, err
		}
		liquidity, err := pm.addLiquidity(accessibleState, caller, addr,
			values[0].(common.Address), values[1].(common.Address), values[2].(*big.Int), values[3].(*big.Int))
		if err != nil {
			return nil, remaining, err
		}
		ret, err := ABI.PackOutput(method.Name, liquidity)
		return ret, remaining, err

	case "swap":
		remaining, err := contract.DeductGas(suppliedGas, GasSwap)
		if err != nil {
			return nil, 0, err
		}
		out, err := pm.swap(accessibleState, caller, addr,
			values[0].(common.Address), values[1].(common.Address), values[2].(*big.Int), values[3].(*big.Int), values[4].(common.Address))
		if err != nil {
			return nil, remaining, err
		}
		ret, err := ABI.PackOutput(method.Name, out)
		return ret, remaining, err
	}
	return nil, suppliedGas, fmt.Errorf("%w: %s", contract.ErrInvalidInput, method.Name)
}

func (pm *PoolManager) addLiquidity(
	env contract.AccessibleState,
	provider, self common.Address,
	tokenA, tokenB common.Address,
	amountA, amountB *big.Int,
) (*big.Int, error) {
	if tokenA == tokenB {
		return nil, IdenticalTokensError(tokenA)
	}
	key := NewPoolKey(tokenA, tokenB, FeeTier)
	amount0, amount1 := amountA, amountB
	if tokenA != key.Token0 {
		amount0, amount1 = amountB, amountA
	}
	if err := pm.spender.TransferFrom(env, key.Token0, provider, self, amount0); err != nil {
		return nil, err
	}
	if err := pm.spender.TransferFrom(env, key.Token1, provider, self, amount1); err != nil {
		return nil, err
	}
	return deposit(env.GetStateDB(), self, provider, key, amount0, amount1)
}

// deposit credits amounts the manager already holds to key's pool.
func deposit(st contract.StateDB, self, provider common.Address, key PoolKey, amount0, amount1 *big.Int) (*big.Int, error) {
	pool := GetPool(st, self, key)
	liquidity := liquidityFor(pool, amount0, amount1)
	id := key.ID()
	if liquidity.Sign() == 0 {
		return nil, InsufficientLiquidityError(id)
	}
	pool.Reserve0 = new(big.Int).Add(pool.Reserve0, amount0)
	pool.Reserve1 = new(big.Int).Add(pool.Reserve1, amount1)
	pool.Liquidity = new(big.Int).Add(pool.Liquidity, liquidity)
	setPool(st, self, key, pool)
	addAccounted(st, self, key.Token0, amount0)
	addAccounted(st, self, key.Token1, amount1)

	posKey := contract.StorageKey(positionPrefix, id[:], provider[:])
	st.SetState(self, posKey, contract.BigToHash(new(big.Int).Add(contract.HashToBig(st.GetState(self, posKey)), liquidity)))
	return liquidity, contract.EmitEvent(st, self, ABI, "LiquidityAdded", id, provider, amount0, amount1, liquidity)
}

func (pm *PoolManager) swap(
	env contract.AccessibleState,
	caller, self common.Address,
	tokenIn, tokenOut common.Address,
	amountIn, minAmountOut *big.Int,
	recipient common.Address,
) (*big.Int, error) {
	if tokenIn == tokenOut {
		return nil, IdenticalTokensError(tokenIn)
	}
	st := env.GetStateDB()
	key := NewPoolKey(tokenIn, tokenOut, FeeTier)
	id := key.ID()
	pool := GetPool(st, self, key)
	if !pool.IsInitialized() {
		return nil, InsufficientLiquidityError(id)
	}

	held, err := pm.spender.BalanceOf(env, tokenIn, self)
	if err != nil {
		return nil, err
	}
	received := new(big.Int).Sub(held, accounted(st, self, tokenIn))
	if received.Cmp(amountIn) < 0 {
		return nil, InsufficientInputAmountError(tokenIn, amountIn, received)
	}

	reserveIn, reserveOut := pool.Reserves(key, tokenIn)
	amountOut := GetAmountOut(amountIn, reserveIn, reserveOut, key.Fee)
	if amountOut.Sign() == 0 {
		return nil, InsufficientLiquidityError(id)
	}
	if amountOut.Cmp(minAmountOut) < 0 {
		return nil, InsufficientOutputAmountError(amountOut, minAmountOut)
	}

	reserveIn = new(big.Int).Add(reserveIn, amountIn)
	reserveOut = new(big.Int).Sub(reserveOut, amountOut)
	if tokenIn == key.Token0 {
		pool.Reserve0, pool.Reserve1 = reserveIn, reserveOut
	} else {
		pool.Reserve0, pool.Reserve1 = reserveOut, reserveIn
	}
	setPool(st, self, key, pool)
	addAccounted(st, self, tokenIn, amountIn)
	addAccounted(st, self, tokenOut, new(big.Int).Neg(amountOut))

	if recipient == (common.Address{}) {
		recipient = caller
	}
	if err := pm.spender.Transfer(env, tokenOut, recipient, amountOut); err != nil {
		return nil, err
	}
	pm.log.Debug("pool swap",
		"pool", common.Hash(id),
		"tokenIn", tokenIn,
		"tokenOut", tokenOut,
		"amountIn", amountIn,
		"amountOut", amountOut,
	)
	return amountOut, contract.EmitEvent(st, self, ABI, "Swap", id, caller, tokenIn, tokenOut, amountIn, amountOut, recipient)
}

// GetPool reads key's pool from the manager at self.
func GetPool(st contract.StateDB, self common.Address, key PoolKey) *Pool {
	id := key.ID()
	return &Pool{
		Reserve0:  contract.HashToBig(st.GetState(self, contract.StorageKey(reservePrefix, id[:], []byte{0}))),
		Reserve1:  contract.HashToBig(st.GetState(self, contract.StorageKey(reservePrefix, id[:], []byte{1}))),
		Liquidity: contract.HashToBig(st.GetState(self, contract.StorageKey(liquidityPrefix, id[:]))),
	}
}

func setPool(st contract.StateDB, self common.Address, key PoolKey, p *Pool) {
	id := key.ID()
	st.SetState(self, contract.StorageKey(reservePrefix, id[:], []byte{0}), contract.BigToHash(p.Reserve0))
	st.SetState(self, contract.StorageKey(reservePrefix, id[:], []byte{1}), contract.BigToHash(p.Reserve1))
	st.SetState(self, contract.StorageKey(liquidityPrefix, id[:]), contract.BigToHash(p.Liquidity))
}

func accounted(st contract.StateDB, self, token common.Address) *big.Int {
	return contract.HashToBig(st.GetState(self, contract.StorageKey(accountedPrefix, token[:])))
}

func addAccounted(st contract.StateDB, self, token common.Address, delta *big.Int) {
	v := new(big.Int).Add(accounted(st, self, token), delta)
	st.SetState(self, contract.StorageKey(accountedPrefix, token[:]), contract.BigToHash(v))
}

// SeedPool mints both tokens to the manager and deposits them as provider's
// liquidity. It is meant for genesis.
func SeedPool(st contract.StateDB, self, provider, tokenA, tokenB common.Address, amountA, amountB *big.Int) error {
	if err := erc20.Mint(st, tokenA, self, amountA); err != nil {
		return err
	}
	if err := erc20.Mint(st, tokenB, self, amountB); err != nil {
		return err
	}
	key := NewPoolKey(tokenA, tokenB, FeeTier)
	amount0, amount1 := amountA, amountB
	if tokenA != key.Token0 {
		amount0, amount1 = amountB, amountA
	}
	_, err := deposit(st, self, provider, key, amount0, amount1)
	return err
}

func IdenticalTokensError(token common.Address) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "IdenticalTokensError", token)
}

func InsufficientLiquidityError(id [32]byte) error {
	return contract.NewRevert(ABI, contract.ErrStateConflict, "InsufficientLiquidityError", id)
}

func InsufficientInputAmountError(token common.Address, expected, received *big.Int) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "InsufficientInputAmountError", token, expected, received)
}

func InsufficientOutputAmountError(amountOut, minAmountOut *big.Int) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "InsufficientOutputAmountError", amountOut, minAmountOut)
}
