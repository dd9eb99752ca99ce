// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package host

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
)

var _ contract.AccessibleState = (*frame)(nil)

// txContext is shared by every frame of one message.
type txContext struct {
	origin   common.Address
	gasPrice *big.Int
	gasLeft  uint64
}

// frame is one call frame. It is the AccessibleState handed to contracts.
type frame struct {
	host     *Host
	tx       *txContext
	self     common.Address
	caller   common.Address
	value    *uint256.Int
	readOnly bool
	depth    int
}

func (f *frame) GetStateDB() contract.StateDB { return f.host.state }

func (f *frame) GetBlockContext() contract.BlockContext { return f.host.block }

func (f *frame) GetTxContext() contract.TxContext {
	return contract.TxContext{Origin: f.tx.origin, GasPrice: new(big.Int).Set(f.tx.gasPrice)}
}

func (f *frame) GetChainID() *big.Int { return new(big.Int).Set(f.host.chainID) }

func (f *frame) GetCallValue() *uint256.Int { return f.value.Clone() }

func (f *frame) Call(to common.Address, input []byte, value *uint256.Int) ([]byte, error) {
	if value == nil {
		value = new(uint256.Int)
	}
	return f.host.call(f.tx, callKindCall, f.self, to, to, input, value, f.readOnly, f.depth+1)
}

func (f *frame) StaticCall(to common.Address, input []byte) ([]byte, error) {
	return f.host.call(f.tx, callKindStatic, f.self, to, to, input, new(uint256.Int), true, f.depth+1)
}

func (f *frame) DelegateCall(to common.Address, input []byte) ([]byte, error) {
	return f.host.call(f.tx, callKindDelegate, f.caller, to, f.self, input, f.value, f.readOnly, f.depth+1)
}

func (f *frame) Create(c contract.StatefulPrecompiledContract) (common.Address, error) {
	if f.readOnly {
		return common.Address{}, contract.ErrWriteProtection
	}
	st := f.host.state
	nonce := st.GetNonce(f.self)
	addr := contract.CreateAddress(f.self, nonce)
	if f.host.hasCode(addr) {
		return common.Address{}, ErrContractCollision
	}
	st.SetNonce(f.self, nonce+1, tracing.NonceChangeContractCreator)
	st.CreateAccount(addr)
	f.host.contracts[addr] = c
	f.host.created = append(f.host.created, addr)
	return addr, nil
}

func (f *frame) HasCode(addr common.Address) bool { return f.host.hasCode(addr) }

type blockContext struct {
	number    *big.Int
	timestamp uint64
}

func (b *blockContext) Number() *big.Int  { return new(big.Int).Set(b.number) }
func (b *blockContext) Timestamp() uint64 { return b.timestamp }
