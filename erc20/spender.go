// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package erc20

import (
	"fmt"
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/geth/common"
)

var _ contract.TokenSpender = Spender{}

// Spender moves tokens by calling the token contracts from the current frame.
// The native asset is addressed by contract.ETHAddress.
type Spender struct{}

// TransferFrom moves amount of token from from to to using the current frame's
// allowance.
func (Spender) TransferFrom(env contract.AccessibleState, token, from, to common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if token == contract.ETHAddress {
		return transferError(token, from, to, amount, fmt.Errorf("%w: cannot pull native value", contract.ErrInvalidInput))
	}
	input, err := ABI.Pack("transferFrom", from, to, amount)
	if err != nil {
		return err
	}
	ret, err := env.Call(token, input, nil)
	if err == nil {
		err = checkBoolResult(ret)
	}
	if err != nil {
		return transferError(token, from, to, amount, err)
	}
	return nil
}

// Transfer sends amount of token held by the current frame to to.
func (Spender) Transfer(env contract.AccessibleState, token, to common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if token == contract.ETHAddress {
		value, err := contract.ToUint256(amount)
		if err != nil {
			return err
		}
		if _, err := env.Call(to, nil, value); err != nil {
			return transferError(token, common.Address{}, to, amount, err)
		}
		return nil
	}
	input, err := ABI.Pack("transfer", to, amount)
	if err != nil {
		return err
	}
	ret, err := env.Call(token, input, nil)
	if err == nil {
		err = checkBoolResult(ret)
	}
	if err != nil {
		return transferError(token, common.Address{}, to, amount, err)
	}
	return nil
}

// BalanceOf returns owner's balance of token.
func (Spender) BalanceOf(env contract.AccessibleState, token, owner common.Address) (*big.Int, error) {
	if token == contract.ETHAddress {
		return env.GetStateDB().GetBalance(owner).ToBig(), nil
	}
	input, err := ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, err
	}
	ret, err := env.StaticCall(token, input)
	if err != nil {
		return nil, err
	}
	values, err := ABI.UnpackOutput("balanceOf", ret)
	if err != nil {
		return nil, fmt.Errorf("%w: balanceOf %s: %v", contract.ErrDelegatedFailure, token, err)
	}
	return values[0].(*big.Int), nil
}

// Allowance returns how much spender may move of owner's token.
func (Spender) Allowance(env contract.AccessibleState, token, owner, spender common.Address) (*big.Int, error) {
	if token == contract.ETHAddress {
		return new(big.Int).Set(contract.MaxUint256), nil
	}
	input, err := ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	ret, err := env.StaticCall(token, input)
	if err != nil {
		return nil, err
	}
	values, err := ABI.UnpackOutput("allowance", ret)
	if err != nil {
		return nil, fmt.Errorf("%w: allowance %s: %v", contract.ErrDelegatedFailure, token, err)
	}
	return values[0].(*big.Int), nil
}

// Spendable returns how much of owner's token spender can actually move.
func (s Spender) Spendable(env contract.AccessibleState, token, owner, spender common.Address) (*big.Int, error) {
	bal, err := s.BalanceOf(env, token, owner)
	if err != nil {
		return nil, err
	}
	allowance, err := s.Allowance(env, token, owner, spender)
	if err != nil {
		return nil, err
	}
	return contract.MinBig(bal, allowance), nil
}

func checkBoolResult(ret []byte) error {
	// Tokens that return nothing are treated as successful.
	if len(ret) == 0 {
		return nil
	}
	if len(ret) < 32 || new(big.Int).SetBytes(ret[:32]).Sign() == 0 {
		return fmt.Errorf("%w: token returned false", contract.ErrDelegatedFailure)
	}
	return nil
}

func transferError(token, from, to common.Address, amount *big.Int, cause error) error {
	return contract.NewRevert(ABI, contract.ErrDelegatedFailure, "TokenTransferError",
		token, from, to, amount, contract.RevertData(cause)).WithCause(cause)
}

// WrapETH deposits amount of the current frame's native balance into weth.
func WrapETH(env contract.AccessibleState, weth common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	value, err := contract.ToUint256(amount)
	if err != nil {
		return err
	}
	input, err := ABI.Pack("deposit")
	if err != nil {
		return err
	}
	if _, err := env.Call(weth, input, value); err != nil {
		return transferError(weth, common.Address{}, weth, amount, err)
	}
	return nil
}

// UnwrapETH withdraws amount of weth held by the current frame into native
// value.
func UnwrapETH(env contract.AccessibleState, weth common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	input, err := ABI.Pack("withdraw", amount)
	if err != nil {
		return err
	}
	if _, err := env.Call(weth, input, nil); err != nil {
		return transferError(weth, weth, common.Address{}, amount, err)
	}
	return nil
}
