// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reentrancy

import (
	"math/big"
	"testing"

	"github.com/luxfi/database/memdb"
	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/state"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

var (
	proxy    = common.HexToAddress("0x9000")
	mtxSel   = [4]byte{0x0a, 0x0b, 0x0c, 0x0d}
	batchSel = [4]byte{0x01, 0x02, 0x03, 0x04}
)

func TestEnterRelease(t *testing.T) {
	st := state.New(memdb.New())

	release, err := Enter(st, proxy, mtxSel, FlagMetaTransaction, 0)
	require.NoError(t, err)
	require.Equal(t, FlagMetaTransaction, Flags(st, proxy))

	// Distinct flags are independent.
	releaseBatch, err := Enter(st, proxy, batchSel, FlagBatchMultiplex, 0)
	require.NoError(t, err)
	require.Equal(t, FlagMetaTransaction|FlagBatchMultiplex, Flags(st, proxy))

	releaseBatch()
	require.Equal(t, FlagMetaTransaction, Flags(st, proxy))
	release()
	require.Equal(t, Flag(0), Flags(st, proxy))
}

func TestEnterConflicts(t *testing.T) {
	tests := []struct {
		name        string
		held        Flag
		flag        Flag
		mustBeClear Flag
		wantErr     bool
	}{
		{"same flag", FlagMetaTransaction, FlagMetaTransaction, 0, true},
		{"other flag", FlagMetaTransaction, FlagBatchMultiplex, 0, false},
		{"must be clear", FlagMetaTransaction, FlagBatchMultiplex, FlagMetaTransaction, true},
		{"nothing held", 0, FlagBatchMultiplex, FlagMetaTransaction, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := state.New(memdb.New())
			if tt.held != 0 {
				_, err := Enter(st, proxy, mtxSel, tt.held, 0)
				require.NoError(t, err)
			}
			_, err := Enter(st, proxy, batchSel, tt.flag, tt.mustBeClear)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, contract.ErrStateConflict)
			require.True(t, contract.IsRevert(err, "IllegalReentrancyError"))
			require.Equal(t, tt.held, Flags(st, proxy), "failed enter leaves flags untouched")

			values, uerr := guardABI.UnpackError("IllegalReentrancyError", contract.RevertData(err))
			require.NoError(t, uerr)
			require.Equal(t, batchSel, values[0].([4]byte))
			require.Zero(t, big.NewInt(int64(tt.flag)).Cmp(values[1].(*big.Int)))
		})
	}
}
