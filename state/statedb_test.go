// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	"github.com/luxfi/geth/core/types"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0xa11ce")
	slot  = common.HexToHash("0x01")
)

func TestSnapshotRevert(t *testing.T) {
	s := New(memdb.New())

	s.SetState(alice, slot, common.HexToHash("0xaa"))
	s.AddBalance(alice, uint256.NewInt(100), tracing.BalanceChangeTransfer)

	snap := s.Snapshot()
	s.SetState(alice, slot, common.HexToHash("0xbb"))
	s.SubBalance(alice, uint256.NewInt(40), tracing.BalanceChangeTransfer)
	s.AddLog(&types.Log{Address: alice})

	inner := s.Snapshot()
	s.SetNonce(alice, 7, tracing.NonceChangeUnspecified)
	s.RevertToSnapshot(inner)
	require.Equal(t, uint64(0), s.GetNonce(alice))
	require.Equal(t, common.HexToHash("0xbb"), s.GetState(alice, slot))

	s.RevertToSnapshot(snap)
	require.Equal(t, common.HexToHash("0xaa"), s.GetState(alice, slot))
	require.Equal(t, uint64(100), s.GetBalance(alice).Uint64())
	require.Empty(t, s.Logs())

	require.Panics(t, func() { s.RevertToSnapshot(inner) })
}

func TestCommitPersists(t *testing.T) {
	db := memdb.New()
	s := New(db)
	s.Prepare(common.HexToHash("0x77"), 0)

	s.CreateAccount(alice)
	s.SetState(alice, slot, common.HexToHash("0xaa"))
	s.AddBalance(alice, uint256.NewInt(5), tracing.BalanceChangeTransfer)
	s.SetNonce(alice, 3, tracing.NonceChangeUnspecified)
	s.AddLog(&types.Log{Address: alice})

	logs, err := s.Commit()
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, common.HexToHash("0x77"), logs[0].TxHash)

	fresh := New(db)
	require.True(t, fresh.Exist(alice))
	require.Equal(t, common.HexToHash("0xaa"), fresh.GetState(alice, slot))
	require.Equal(t, uint64(5), fresh.GetBalance(alice).Uint64())
	require.Equal(t, uint64(3), fresh.GetNonce(alice))

	// Clearing a slot deletes it.
	fresh.SetState(alice, slot, common.Hash{})
	_, err = fresh.Commit()
	require.NoError(t, err)
	has, err := db.Has(storageKey(alice, slot))
	require.NoError(t, err)
	require.False(t, has)
}

func TestDiscardDropsUncommitted(t *testing.T) {
	db := memdb.New()
	s := New(db)
	s.SetState(alice, slot, common.HexToHash("0xaa"))
	_, err := s.Commit()
	require.NoError(t, err)

	s.SetState(alice, slot, common.HexToHash("0xbb"))
	s.AddBalance(alice, uint256.NewInt(9), tracing.BalanceChangeTransfer)
	s.AddLog(&types.Log{Address: alice})
	s.Snapshot()
	s.Discard()

	require.Equal(t, common.HexToHash("0xaa"), s.GetState(alice, slot))
	require.True(t, s.GetBalance(alice).IsZero())
	require.Empty(t, s.Logs())

	_, err = s.Commit()
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0xaa"), New(db).GetState(alice, slot))
}
