// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package erc20 implements fungible token contracts and the token spender
// every exchange feature uses to move funds.
package erc20

import (
	_ "embed"
	"errors"
	"fmt"
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
)

var _ contract.StatefulPrecompiledContract = (*Token)(nil)

// Gas costs
const (
	GasRead     uint64 = 800
	GasTransfer uint64 = 12_000
	GasApprove  uint64 = 8_000
	GasMint     uint64 = 10_000
)

var (
	ErrInsufficientBalance   = errors.New("ERC20: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("ERC20: insufficient allowance")
	ErrNotMinter             = errors.New("ERC20: caller is not the minter")
	ErrNotWrapped            = errors.New("ERC20: token does not wrap the native asset")
)

//go:embed contract.abi
var rawABI string

// ABI is the token ABI.
var ABI = contract.ParseABI(rawABI)

var (
	balancePrefix   = []byte("erc20.balance")
	allowancePrefix = []byte("erc20.allowance")
	supplySlot      = contract.StorageKey([]byte("erc20.totalSupply"))
)

// TransferHook runs after every successful transfer. Tokens with hooks model
// tokens that call back into their counterparties.
type TransferHook func(env contract.AccessibleState, self, from, to common.Address, amount *big.Int) error

// Token is an ERC20 contract. A Token with Wrapped set behaves like WETH.
type Token struct {
	Name     string
	Symbol   string
	Decimals uint8
	// Minter may call mint. The zero address lets anyone mint.
	Minter  common.Address
	Wrapped bool
	Hook    TransferHook
}

// NewToken returns an open-mint token.
func NewToken(name, symbol string, decimals uint8) *Token {
	return &Token{Name: name, Symbol: symbol, Decimals: decimals}
}

// NewWETH returns a wrapped native token.
func NewWETH() *Token {
	return &Token{Name: "Wrapped Ether", Symbol: "WETH", Decimals: 18, Wrapped: true}
}

// Run executes the token.
func (t *Token) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if len(input) == 0 && t.Wrapped {
		return t.runDeposit(accessibleState, caller, addr, suppliedGas, readOnly)
	}
	sel, args, err := contract.SplitSelector(input)
	if err != nil {
		return nil, suppliedGas, err
	}
	method, err := ABI.MethodById(sel[:])
	if err != nil {
		return nil, suppliedGas, fmt.Errorf("%w: unknown token method 0x%x", contract.ErrInvalidInput, sel)
	}
	values, err := ABI.UnpackInput(method.Name, args, false)
	if err != nil {
		return nil, suppliedGas, err
	}
	st := accessibleState.GetStateDB()

	switch method.Name {
	case "name", "symbol", "decimals", "totalSupply", "balanceOf", "allowance":
		remaining, err := contract.DeductGas(suppliedGas, GasRead)
		if err != nil {
			return nil, 0, err
		}
		var out interface{}
		switch method.Name {
		case "name":
			out = t.Name
		case "symbol":
			out = t.Symbol
		case "decimals":
			out = t.Decimals
		case "totalSupply":
			out = contract.HashToBig(st.GetState(addr, supplySlot))
		case "balanceOf":
			out = BalanceOf(st, addr, values[0].(common.Address))
		case "allowance":
			out = Allowance(st, addr, values[0].(common.Address), values[1].(common.Address))
		}
		ret, err := ABI.PackOutput(method.Name, out)
		return ret, remaining, err
	}

	if readOnly {
		return nil, suppliedGas, contract.ErrWriteProtection
	}

	switch method.Name {
	case "approve":
		remaining, err := contract.DeductGas(suppliedGas, GasApprove)
		if err != nil {
			return nil, 0, err
		}
		spender, amount := values[0].(common.Address), values[1].(*big.Int)
		setAllowance(st, addr, caller, spender, amount)
		if err := contract.EmitEvent(st, addr, ABI, "Approval", caller, spender, amount); err != nil {
			return nil, remaining, err
		}
		ret, err := ABI.PackOutput("approve", true)
		return ret, remaining, err

	case "transfer", "transferFrom":
		remaining, err := contract.DeductGas(suppliedGas, GasTransfer)
		if err != nil {
			return nil, 0, err
		}
		from, to, amount := caller, values[0].(common.Address), values[1].(*big.Int)
		if method.Name == "transferFrom" {
			from, to, amount = values[0].(common.Address), values[1].(common.Address), values[2].(*big.Int)
			if err := spendAllowance(st, addr, from, caller, amount); err != nil {
				return nil, remaining, err
			}
		}
		if err := t.transfer(accessibleState, addr, from, to, amount); err != nil {
			return nil, remaining, err
		}
		ret, err := ABI.PackOutput(method.Name, true)
		return ret, remaining, err

	case "mint":
		remaining, err := contract.DeductGas(suppliedGas, GasMint)
		if err != nil {
			return nil, 0, err
		}
		if t.Minter != (common.Address{}) && caller != t.Minter {
			return nil, remaining, ErrNotMinter
		}
		if err := Mint(st, addr, values[0].(common.Address), values[1].(*big.Int)); err != nil {
			return nil, remaining, err
		}
		return nil, remaining, nil

	case "deposit":
		return t.runDeposit(accessibleState, caller, addr, suppliedGas, readOnly)

	case "withdraw":
		remaining, err := contract.DeductGas(suppliedGas, GasTransfer)
		if err != nil {
			return nil, 0, err
		}
		if !t.Wrapped {
			return nil, remaining, ErrNotWrapped
		}
		amount := values[0].(*big.Int)
		if err := burn(st, addr, caller, amount); err != nil {
			return nil, remaining, err
		}
		value, err := contract.ToUint256(amount)
		if err != nil {
			return nil, remaining, err
		}
		if _, err := accessibleState.Call(caller, nil, value); err != nil {
			return nil, remaining, err
		}
		return nil, remaining, contract.EmitEvent(st, addr, ABI, "Withdrawal", caller, amount)
	}
	return nil, suppliedGas, fmt.Errorf("%w: unhandled token method %s", contract.ErrInvalidInput, method.Name)
}

func (t *Token) runDeposit(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	remaining, err := contract.DeductGas(suppliedGas, GasMint)
	if err != nil {
		return nil, 0, err
	}
	if readOnly {
		return nil, remaining, contract.ErrWriteProtection
	}
	if !t.Wrapped {
		return nil, remaining, ErrNotWrapped
	}
	amount := accessibleState.GetCallValue().ToBig()
	st := accessibleState.GetStateDB()
	if err := Mint(st, addr, caller, amount); err != nil {
		return nil, remaining, err
	}
	return nil, remaining, contract.EmitEvent(st, addr, ABI, "Deposit", caller, amount)
}

func (t *Token) transfer(env contract.AccessibleState, self, from, to common.Address, amount *big.Int) error {
	st := env.GetStateDB()
	fromBal := BalanceOf(st, self, from)
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	setBalance(st, self, from, new(big.Int).Sub(fromBal, amount))
	setBalance(st, self, to, new(big.Int).Add(BalanceOf(st, self, to), amount))
	if err := contract.EmitEvent(st, self, ABI, "Transfer", from, to, amount); err != nil {
		return err
	}
	if t.Hook != nil {
		return t.Hook(env, self, from, to, amount)
	}
	return nil
}

// BalanceOf reads owner's balance of the token deployed at token.
func BalanceOf(st contract.StateDB, token, owner common.Address) *big.Int {
	return contract.HashToBig(st.GetState(token, contract.StorageKey(balancePrefix, owner[:])))
}

// Allowance reads how much spender may move on behalf of owner.
func Allowance(st contract.StateDB, token, owner, spender common.Address) *big.Int {
	return contract.HashToBig(st.GetState(token, contract.StorageKey(allowancePrefix, owner[:], spender[:])))
}

// Mint credits amount of the token at token to to.
func Mint(st contract.StateDB, token, to common.Address, amount *big.Int) error {
	supply := new(big.Int).Add(contract.HashToBig(st.GetState(token, supplySlot)), amount)
	if supply.Cmp(contract.MaxUint256) > 0 {
		return fmt.Errorf("%w: total supply overflow", contract.ErrInvalidInput)
	}
	st.SetState(token, supplySlot, contract.BigToHash(supply))
	setBalance(st, token, to, new(big.Int).Add(BalanceOf(st, token, to), amount))
	return contract.EmitEvent(st, token, ABI, "Transfer", common.Address{}, to, amount)
}

// Approve sets an allowance directly. It is used to seed state.
func Approve(st contract.StateDB, token, owner, spender common.Address, amount *big.Int) {
	setAllowance(st, token, owner, spender, amount)
}

// MintAndWrap deposits native value into a wrapped token at genesis.
func MintAndWrap(st contract.StateDB, weth, to common.Address, amount *big.Int) error {
	value, err := contract.ToUint256(amount)
	if err != nil {
		return err
	}
	st.AddBalance(weth, value, tracing.BalanceIncreaseGenesisBalance)
	return Mint(st, weth, to, amount)
}

func burn(st contract.StateDB, token, from common.Address, amount *big.Int) error {
	bal := BalanceOf(st, token, from)
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	setBalance(st, token, from, new(big.Int).Sub(bal, amount))
	supply := contract.HashToBig(st.GetState(token, supplySlot))
	st.SetState(token, supplySlot, contract.BigToHash(new(big.Int).Sub(supply, amount)))
	return contract.EmitEvent(st, token, ABI, "Transfer", from, common.Address{}, amount)
}

func setBalance(st contract.StateDB, token, owner common.Address, amount *big.Int) {
	st.SetState(token, contract.StorageKey(balancePrefix, owner[:]), contract.BigToHash(amount))
}

func setAllowance(st contract.StateDB, token, owner, spender common.Address, amount *big.Int) {
	st.SetState(token, contract.StorageKey(allowancePrefix, owner[:], spender[:]), contract.BigToHash(amount))
}

func spendAllowance(st contract.StateDB, token, owner, spender common.Address, amount *big.Int) error {
	if owner == spender {
		return nil
	}
	current := Allowance(st, token, owner, spender)
	if current.Cmp(contract.MaxUint256) == 0 {
		return nil
	}
	if current.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	setAllowance(st, token, owner, spender, new(big.Int).Sub(current, amount))
	return nil
}
