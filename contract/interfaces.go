// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package contract defines the interfaces shared by every exchange contract and
// the helpers they use to decode calls, charge gas and encode reverts.
package contract

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	"github.com/luxfi/geth/core/types"
)

// StatefulPrecompiledContract is the interface every contract deployed on the
// host implements. addr is the account whose storage the code runs against:
// the proxy when reached through a delegate call, the implementation itself
// when called directly.
type StatefulPrecompiledContract interface {
	Run(
		accessibleState AccessibleState,
		caller common.Address,
		addr common.Address,
		input []byte,
		suppliedGas uint64,
		readOnly bool,
	) (ret []byte, remainingGas uint64, err error)
}

// StateDB is the persistent state visible to contracts.
type StateDB interface {
	GetState(common.Address, common.Hash) common.Hash
	SetState(common.Address, common.Hash, common.Hash) common.Hash

	GetBalance(common.Address) *uint256.Int
	AddBalance(common.Address, *uint256.Int, tracing.BalanceChangeReason) uint256.Int
	SubBalance(common.Address, *uint256.Int, tracing.BalanceChangeReason) uint256.Int

	GetNonce(common.Address) uint64
	SetNonce(common.Address, uint64, tracing.NonceChangeReason)

	CreateAccount(common.Address)
	Exist(common.Address) bool

	AddLog(*types.Log)
	Logs() []*types.Log
	TxHash() common.Hash

	Snapshot() int
	RevertToSnapshot(int)
}

// BlockContext exposes the block the current message executes in.
type BlockContext interface {
	Number() *big.Int
	Timestamp() uint64
}

// ConfigurationBlockContext is the block context handed to configurators.
type ConfigurationBlockContext interface {
	Timestamp() uint64
}

// TxContext holds per-transaction values (tx.origin, tx.gasprice).
type TxContext struct {
	Origin   common.Address
	GasPrice *big.Int
}

// AccessibleState is the execution environment of one call frame.
type AccessibleState interface {
	GetStateDB() StateDB
	GetBlockContext() BlockContext
	GetTxContext() TxContext
	GetChainID() *big.Int

	// GetCallValue returns the native value attached to the current frame.
	GetCallValue() *uint256.Int

	// Call runs the code at to with msg.sender set to the current frame's
	// address. A failed call leaves no state behind.
	Call(to common.Address, input []byte, value *uint256.Int) ([]byte, error)
	// StaticCall is Call without value where every nested write fails.
	StaticCall(to common.Address, input []byte) ([]byte, error)
	// DelegateCall runs the code at to against the current frame's storage,
	// caller and value.
	DelegateCall(to common.Address, input []byte) ([]byte, error)

	// Create deploys c at the address derived from the current frame's
	// address and nonce.
	Create(c StatefulPrecompiledContract) (common.Address, error)
	// HasCode reports whether a contract is deployed at addr.
	HasCode(addr common.Address) bool
}

// Feature is an implementation whose selectors are routed by the proxy.
type Feature interface {
	StatefulPrecompiledContract

	FeatureName() string
	FeatureVersion() *big.Int
	// Address is where the implementation is deployed.
	Address() common.Address
	// Selectors lists every function the feature registers with the proxy.
	Selectors() [][4]byte
}

// TokenSpender moves ERC20 tokens (or native value for the ETH sentinel) on
// behalf of a contract.
type TokenSpender interface {
	TransferFrom(env AccessibleState, token, from, to common.Address, amount *big.Int) error
	Transfer(env AccessibleState, token, to common.Address, amount *big.Int) error
	BalanceOf(env AccessibleState, token, owner common.Address) (*big.Int, error)
	Allowance(env AccessibleState, token, owner, spender common.Address) (*big.Int, error)
}
