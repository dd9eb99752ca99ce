// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package host

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	"github.com/luxfi/geth/core/types"
	"github.com/stretchr/testify/require"
)

var (
	user    = common.HexToAddress("0x1111")
	counter = common.HexToAddress("0x2222")
	relay   = common.HexToAddress("0x3333")
	slot    = common.HexToHash("0x01")

	errBoom = contract.NewStringRevert(contract.ErrValidation, "boom")
)

// counterContract increments a slot, logs, and reverts when asked to.
type counterContract struct{}

func (counterContract) Run(env contract.AccessibleState, caller, addr common.Address, input []byte, gas uint64, readOnly bool) ([]byte, uint64, error) {
	remaining, err := contract.DeductGas(gas, 5000)
	if err != nil {
		return nil, 0, err
	}
	st := env.GetStateDB()
	if len(input) > 0 && input[0] == 0xff {
		return nil, remaining, errBoom
	}
	if readOnly {
		return st.GetState(addr, slot).Bytes(), remaining, nil
	}
	next := contract.HashToBig(st.GetState(addr, slot))
	next.Add(next, common.Big1)
	st.SetState(addr, slot, common.BigToHash(next))
	st.AddLog(&types.Log{Address: addr})
	return common.BigToHash(next).Bytes(), remaining, nil
}

// relayContract calls counter twice: once successfully, once failing, and
// swallows the second failure.
type relayContract struct{}

func (relayContract) Run(env contract.AccessibleState, caller, addr common.Address, input []byte, gas uint64, readOnly bool) ([]byte, uint64, error) {
	if _, err := env.Call(counter, nil, nil); err != nil {
		return nil, gas, err
	}
	if _, err := env.Call(counter, []byte{0xff}, nil); err == nil {
		return nil, gas, errors.New("expected failure")
	}
	if len(input) > 0 && input[0] == 0xee {
		return nil, gas, errBoom
	}
	return nil, gas, nil
}

func newTestHost(t *testing.T) *Host {
	h := New(memdb.New(), Config{})
	require.NoError(t, h.Deploy(counter, counterContract{}))
	require.NoError(t, h.Deploy(relay, relayContract{}))
	return h
}

func TestApplyMessageCommits(t *testing.T) {
	h := newTestHost(t)

	receipt := h.ApplyMessage(&Message{From: user, To: counter})
	require.True(t, receipt.Succeeded(), "%v", receipt.Err)
	require.Len(t, receipt.Logs, 1)
	require.Equal(t, common.BigToHash(common.Big1).Bytes(), receipt.ReturnData)
	require.Equal(t, IntrinsicGas+5000, receipt.GasUsed)
	require.Equal(t, common.BigToHash(common.Big1), h.StateDB().GetState(counter, slot))
}

func TestApplyMessageRevertsEverything(t *testing.T) {
	h := newTestHost(t)

	receipt := h.ApplyMessage(&Message{From: user, To: relay, Data: []byte{0xee}})
	require.False(t, receipt.Succeeded())
	require.ErrorIs(t, receipt.Err, contract.ErrValidation)
	reason, ok := contract.DecodeStringRevert(receipt.RevertData)
	require.True(t, ok)
	require.Equal(t, "boom", reason)
	require.Empty(t, receipt.Logs)
	require.Equal(t, common.Hash{}, h.StateDB().GetState(counter, slot))
}

func TestNestedFailureIsContained(t *testing.T) {
	h := newTestHost(t)

	receipt := h.ApplyMessage(&Message{From: user, To: relay})
	require.True(t, receipt.Succeeded(), "%v", receipt.Err)
	require.Len(t, receipt.Logs, 1, "only the successful nested call logs")
	require.Equal(t, common.BigToHash(common.Big1), h.StateDB().GetState(counter, slot))
}

func TestSimulateDiscards(t *testing.T) {
	h := newTestHost(t)

	receipt := h.Simulate(&Message{From: user, To: counter})
	require.True(t, receipt.Succeeded())
	require.Len(t, receipt.Logs, 1)
	require.Equal(t, common.Hash{}, h.StateDB().GetState(counter, slot))
}

func TestValueTransfer(t *testing.T) {
	h := newTestHost(t)
	require.NoError(t, h.Genesis(func(env contract.AccessibleState) error {
		env.GetStateDB().AddBalance(user, uint256.NewInt(10), tracing.BalanceChangeTransfer)
		return nil
	}))

	plain := common.HexToAddress("0x4444")
	receipt := h.ApplyMessage(&Message{From: user, To: plain, Value: uint256.NewInt(4)})
	require.True(t, receipt.Succeeded())
	require.Equal(t, uint64(6), h.StateDB().GetBalance(user).Uint64())
	require.Equal(t, uint64(4), h.StateDB().GetBalance(plain).Uint64())

	receipt = h.ApplyMessage(&Message{From: user, To: plain, Value: uint256.NewInt(7)})
	require.ErrorIs(t, receipt.Err, ErrInsufficientBalance)
	require.Equal(t, uint64(6), h.StateDB().GetBalance(user).Uint64())
}

func TestOutOfGas(t *testing.T) {
	h := newTestHost(t)

	receipt := h.ApplyMessage(&Message{From: user, To: counter, GasLimit: IntrinsicGas + 100})
	require.ErrorIs(t, receipt.Err, contract.ErrOutOfGas)
	require.Equal(t, IntrinsicGas+100, receipt.GasUsed)

	receipt = h.ApplyMessage(&Message{From: user, To: counter, GasLimit: 100})
	require.ErrorIs(t, receipt.Err, ErrIntrinsicGas)
}

type recorder struct{ receipts []*Receipt }

func (r *recorder) OnCommit(receipt *Receipt) { r.receipts = append(r.receipts, receipt) }

func TestObserverSeesCommittedOnly(t *testing.T) {
	h := newTestHost(t)
	rec := &recorder{}
	h.AddObserver(rec)

	h.ApplyMessage(&Message{From: user, To: counter})
	h.ApplyMessage(&Message{From: user, To: counter, Data: []byte{0xff}})
	h.Simulate(&Message{From: user, To: counter})

	require.Len(t, rec.receipts, 1)
}

func TestDeployTwice(t *testing.T) {
	h := newTestHost(t)
	require.ErrorIs(t, h.Deploy(counter, counterContract{}), ErrAlreadyDeployed)
}

type factory struct{}

func (factory) Run(env contract.AccessibleState, caller, addr common.Address, input []byte, gas uint64, readOnly bool) ([]byte, uint64, error) {
	created, err := env.Create(counterContract{})
	if err != nil {
		return nil, gas, err
	}
	if len(input) > 0 {
		return nil, gas, errBoom
	}
	return created.Bytes(), gas, nil
}

func TestCreateIsRevertedWithFrame(t *testing.T) {
	h := newTestHost(t)
	fac := common.HexToAddress("0x5555")
	require.NoError(t, h.Deploy(fac, factory{}))

	failed := h.ApplyMessage(&Message{From: user, To: fac, Data: []byte{1}})
	require.False(t, failed.Succeeded())
	require.False(t, h.HasCode(contract.CreateAddress(fac, 0)))

	ok := h.ApplyMessage(&Message{From: user, To: fac})
	require.True(t, ok.Succeeded())
	created := common.BytesToAddress(ok.ReturnData)
	require.Equal(t, contract.CreateAddress(fac, 0), created)
	require.True(t, h.HasCode(created))
	require.Equal(t, uint64(1), h.StateDB().GetNonce(fac))
}
