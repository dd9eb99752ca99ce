// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package proxy_test

import (
	"math/big"
	"testing"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/host"
	"github.com/luxfi/exchangeproxy/migration"
	"github.com/luxfi/exchangeproxy/nativeorders"
	"github.com/luxfi/exchangeproxy/proxy"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

var (
	owner    = common.HexToAddress("0x0f0f")
	stranger = common.HexToAddress("0x5a5a")
)

func deploy(t *testing.T) *migration.Deployment {
	d, err := migration.Deploy(migration.Config{Owner: owner})
	require.NoError(t, err)
	return d
}

func call(t *testing.T, d *migration.Deployment, from common.Address, method string, args ...interface{}) *host.Receipt {
	input, err := proxy.ABI.Pack(method, args...)
	require.NoError(t, err)
	return d.CallProxy(from, input, nil)
}

func view(t *testing.T, d *migration.Deployment, method string, args ...interface{}) interface{} {
	input, err := proxy.ABI.Pack(method, args...)
	require.NoError(t, err)
	r := d.Host.Simulate(&host.Message{From: stranger, To: d.Proxy, Data: input})
	require.True(t, r.Succeeded(), "%v", r.Err)
	out, err := proxy.ABI.UnpackOutput(method, r.ReturnData)
	require.NoError(t, err)
	return out[0]
}

func TestDispatch(t *testing.T) {
	d := deploy(t)
	sel := nativeorders.ABI.Selector("fillLimitOrder")
	impl := view(t, d, "getFunctionImplementation", sel).(common.Address)
	require.NotEqual(t, common.Address{}, impl)
	require.Equal(t, impl, proxy.Implementation(d.Host.StateDB(), d.Proxy, sel))

	r := d.CallProxy(stranger, []byte{0xde, 0xad, 0xbe, 0xef}, nil)
	require.False(t, r.Succeeded())
	require.True(t, contract.IsRevert(r.Err, "UnknownSelectorError"), "%v", r.Err)

	require.Equal(t, owner, view(t, d, "owner").(common.Address))
}

func TestExtendAndRollback(t *testing.T) {
	d := deploy(t)
	st := d.Host.StateDB()
	sel := nativeorders.ABI.Selector("fillLimitOrder")
	original := proxy.Implementation(st, d.Proxy, sel)
	length := view(t, d, "getRollbackLength", sel).(*big.Int).Int64()

	r := call(t, d, stranger, "extend", sel, d.DEX)
	require.True(t, contract.IsRevert(r.Err, "OnlyOwnerError"), "%v", r.Err)

	r = call(t, d, owner, "extend", sel, common.HexToAddress("0xc0de"))
	require.True(t, contract.IsRevert(r.Err, "InvalidImplementationError"), "%v", r.Err)

	r = call(t, d, owner, "extend", sel, d.DEX)
	require.True(t, r.Succeeded(), "%v", r.Err)
	require.Equal(t, d.DEX, proxy.Implementation(st, d.Proxy, sel))
	require.Equal(t, length+1, view(t, d, "getRollbackLength", sel).(*big.Int).Int64())
	require.Equal(t, original, view(t, d, "getRollbackEntryAtIndex", sel, big.NewInt(length)).(common.Address))

	r = call(t, d, owner, "rollback", sel, common.HexToAddress("0xc0de"))
	require.True(t, contract.IsRevert(r.Err, "NotInRollbackHistoryError"), "%v", r.Err)

	r = call(t, d, owner, "rollback", sel, original)
	require.True(t, r.Succeeded(), "%v", r.Err)
	require.Equal(t, original, proxy.Implementation(st, d.Proxy, sel))
	require.Equal(t, length, view(t, d, "getRollbackLength", sel).(*big.Int).Int64())

	// Rolling back to the zero address disables the function.
	r = call(t, d, owner, "rollback", sel, common.Address{})
	require.True(t, r.Succeeded(), "%v", r.Err)
	r = d.CallProxy(stranger, append(sel[:], make([]byte, 32)...), nil)
	require.True(t, contract.IsRevert(r.Err, "UnknownSelectorError"), "%v", r.Err)

	input, err := proxy.ABI.Pack("getRollbackEntryAtIndex", sel, big.NewInt(100))
	require.NoError(t, err)
	r = d.Host.Simulate(&host.Message{From: stranger, To: d.Proxy, Data: input})
	require.True(t, contract.IsRevert(r.Err, "RollbackIndexOutOfBoundsError"), "%v", r.Err)
}

func TestTransferOwnership(t *testing.T) {
	d := deploy(t)
	next := common.HexToAddress("0x0e0e")

	r := call(t, d, stranger, "transferOwnership", next)
	require.True(t, contract.IsRevert(r.Err, "OnlyOwnerError"), "%v", r.Err)
	r = call(t, d, owner, "transferOwnership", common.Address{})
	require.True(t, contract.IsRevert(r.Err, "TransferOwnerToZeroError"), "%v", r.Err)

	r = call(t, d, owner, "transferOwnership", next)
	require.True(t, r.Succeeded(), "%v", r.Err)
	require.Equal(t, next, proxy.Owner(d.Host.StateDB(), d.Proxy))

	r = call(t, d, owner, "extend", nativeorders.ABI.Selector("fillLimitOrder"), d.DEX)
	require.True(t, contract.IsRevert(r.Err, "OnlyOwnerError"), "%v", r.Err)
}

func TestFailedMigrationKeepsOwner(t *testing.T) {
	d := deploy(t)
	r := call(t, d, owner, "migrate", d.DEX, proxy.MigrateCall(), stranger)
	require.False(t, r.Succeeded())
	require.True(t, contract.IsRevert(r.Err, "MigrateCallFailedError"), "%v", r.Err)
	require.Equal(t, owner, proxy.Owner(d.Host.StateDB(), d.Proxy))
}
