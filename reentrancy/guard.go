// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package reentrancy implements the proxy's scoped reentrancy flags. All flags
// live in a single storage word of the proxy so that every feature running
// behind it sees the same set.
package reentrancy

import (
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/geth/common"
)

// Flag is a bit in the proxy's reentrancy word.
type Flag uint64

const (
	// FlagMetaTransaction is held while a meta-transaction executes.
	FlagMetaTransaction Flag = 0x1
	// FlagBatchMultiplex is held while a batch multiplex call executes.
	FlagBatchMultiplex Flag = 0x2
)

const rawABI = `[
  {"type":"error","name":"IllegalReentrancyError","inputs":[{"name":"selector","type":"bytes4"},{"name":"reentrancyFlags","type":"uint256"}]}
]`

var guardABI = contract.ParseABI(rawABI)

var flagsSlot = contract.StorageKey([]byte("exchange.reentrancy.flags"))

// Flags returns the flags currently held on self.
func Flags(state contract.StateDB, self common.Address) Flag {
	return Flag(contract.HashToBig(state.GetState(self, flagsSlot)).Uint64())
}

// Held reports whether flag is currently held on self.
func Held(state contract.StateDB, self common.Address, flag Flag) bool {
	return Flags(state, self)&flag != 0
}

// Enter acquires flag on self for the call identified by selector. It fails
// with IllegalReentrancyError when flag, or any flag in mustBeClear, is already
// held. The returned release restores the flags held before Enter and must be
// run on every exit path.
func Enter(state contract.StateDB, self common.Address, selector [4]byte, flag Flag, mustBeClear Flag) (func(), error) {
	current := Flags(state, self)
	if current&(flag|mustBeClear) != 0 {
		return nil, IllegalReentrancyError(selector, flag)
	}
	state.SetState(self, flagsSlot, flagWord(current|flag))
	return func() {
		state.SetState(self, flagsSlot, flagWord(current))
	}, nil
}

// IllegalReentrancyError is returned when a guarded call re-enters.
func IllegalReentrancyError(selector [4]byte, flag Flag) error {
	return contract.NewRevert(guardABI, contract.ErrStateConflict, "IllegalReentrancyError",
		selector, new(big.Int).SetUint64(uint64(flag)))
}

func flagWord(f Flag) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(uint64(f)))
}
