// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contract

import (
	"errors"
	"fmt"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

func TestStringRevertRoundTrip(t *testing.T) {
	data := EncodeStringRevert("FAIL")
	require.Equal(t, []byte{0x08, 0xc3, 0x79, 0xa0}, data[:4])

	reason, ok := DecodeStringRevert(data)
	require.True(t, ok)
	require.Equal(t, "FAIL", reason)

	_, ok = DecodeStringRevert([]byte{0x01, 0x02})
	require.False(t, ok)
}

func TestRevertKinds(t *testing.T) {
	sender := common.HexToAddress("0x1234")
	err := OnlySelf(sender, common.HexToAddress("0x9000"))
	require.Error(t, err)
	require.ErrorIs(t, err, ErrValidation)
	require.False(t, errors.Is(err, ErrStateConflict))
	require.True(t, IsRevert(err, "OnlyCallableBySelfError"))

	values, uerr := commonABI.UnpackError("OnlyCallableBySelfError", RevertData(err))
	require.NoError(t, uerr)
	require.Equal(t, sender, values[0].(common.Address))

	require.NoError(t, OnlySelf(sender, sender))
}

func TestRevertCauseChain(t *testing.T) {
	inner := NewStringRevert(ErrValidation, "FAIL")
	outer := NewStringRevert(ErrDelegatedFailure, "outer").WithCause(inner)
	wrapped := fmt.Errorf("call: %w", outer)

	require.ErrorIs(t, wrapped, ErrDelegatedFailure)
	require.ErrorIs(t, wrapped, inner)
	require.Equal(t, outer.Data, RevertData(wrapped))
}

func TestRevertDataFallsBackToString(t *testing.T) {
	reason, ok := DecodeStringRevert(RevertData(errors.New("boom")))
	require.True(t, ok)
	require.Equal(t, "boom", reason)
	require.Nil(t, RevertData(nil))
}

func TestOnlyDelegateCall(t *testing.T) {
	impl := common.HexToAddress("0x9008")
	err := OnlyDelegateCall(impl, impl, "Batch_M_Feat")
	require.ErrorIs(t, err, ErrValidation)
	reason, ok := DecodeStringRevert(RevertData(err))
	require.True(t, ok)
	require.Equal(t, "Batch_M_Feat/DIRECT_CALL_ERROR", reason)

	require.NoError(t, OnlyDelegateCall(common.HexToAddress("0x9000"), impl, "Batch_M_Feat"))
}

func TestDeductGas(t *testing.T) {
	left, err := DeductGas(100, 40)
	require.NoError(t, err)
	require.Equal(t, uint64(60), left)

	_, err = DeductGas(10, 40)
	require.ErrorIs(t, err, ErrOutOfGas)
}

func TestCreateAddressIsDeterministic(t *testing.T) {
	deployer := common.HexToAddress("0x6ac7ea33f8831ea9dcc53393aaa88b25a785dbf0")
	// Well-known CREATE address for (deployer, 0).
	require.Equal(t,
		common.HexToAddress("0xcd234a471b72ba2f1ccf0a70fcaba648a5eecd8d"),
		CreateAddress(deployer, 0),
	)
	require.NotEqual(t, CreateAddress(deployer, 0), CreateAddress(deployer, 1))
}
