// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transformerc20

import (
	_ "embed"
	"fmt"
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

var _ contract.StatefulPrecompiledContract = (*FlashWallet)(nil)

const GasWalletCall uint64 = 2_600

//go:embed wallet.abi
var rawWalletABI string

// WalletABI is the flash wallet ABI.
var WalletABI = contract.ParseABI(rawWalletABI)

// FlashWallet holds tokens while transformers run. Only its owner, the
// proxy, can make it call out.
type FlashWallet struct {
	owner common.Address
	log   log.Logger
}

// NewFlashWallet returns a wallet owned by owner.
func NewFlashWallet(owner common.Address, logger log.Logger) *FlashWallet {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &FlashWallet{owner: owner, log: logger}
}

// Owner returns the wallet owner.
func (w *FlashWallet) Owner() common.Address { return w.owner }

func (w *FlashWallet) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	// Plain value transfers are accepted.
	if len(input) == 0 {
		return nil, suppliedGas, nil
	}
	method, values, err := WalletABI.DecodeCall(input)
	if err != nil {
		return nil, suppliedGas, err
	}
	remaining, err := contract.DeductGas(suppliedGas, GasWalletCall)
	if err != nil {
		return nil, 0, err
	}
	if method.Name == "owner" {
		ret, err := WalletABI.PackOutput(method.Name, w.owner)
		return ret, remaining, err
	}
	if caller != w.owner {
		return nil, remaining, contract.NewRevert(WalletABI, contract.ErrValidation, "OnlyOwnerError", caller, w.owner)
	}

	target, data := values[0].(common.Address), values[1].([]byte)
	var result []byte
	switch method.Name {
	case "executeCall":
		amount := values[2].(*big.Int)
		value, err := contract.ToUint256(amount)
		if err != nil {
			return nil, remaining, err
		}
		result, err = accessibleState.Call(target, data, value)
		if err != nil {
			return nil, remaining, contract.NewRevert(WalletABI, contract.ErrDelegatedFailure, "WalletExecuteCallFailedError",
				addr, target, data, amount, contract.RevertData(err)).WithCause(err)
		}
	case "executeDelegateCall":
		result, err = accessibleState.DelegateCall(target, data)
		if err != nil {
			return nil, remaining, contract.NewRevert(WalletABI, contract.ErrDelegatedFailure, "WalletExecuteDelegateCallFailedError",
				addr, target, data, contract.RevertData(err)).WithCause(err)
		}
	default:
		return nil, remaining, fmt.Errorf("%w: %s", contract.ErrInvalidInput, method.Name)
	}
	ret, err := WalletABI.PackOutput(method.Name, result)
	return ret, remaining, err
}
