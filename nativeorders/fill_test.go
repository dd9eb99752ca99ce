// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package nativeorders_test

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/host"
	"github.com/luxfi/exchangeproxy/migration"
	"github.com/luxfi/exchangeproxy/nativeorders"
	"github.com/luxfi/exchangeproxy/signature"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

var (
	owner        = common.HexToAddress("0x0f0f")
	taker        = common.HexToAddress("0x7a4e")
	feeCollector = common.HexToAddress("0xfee")
)

type fixture struct {
	d          *migration.Deployment
	makerKey   *ecdsa.PrivateKey
	maker      common.Address
	makerToken common.Address
	takerToken common.Address
}

func newFixture(t *testing.T, multiplier uint32) *fixture {
	d, err := migration.Deploy(migration.Config{
		Owner:                 owner,
		ProtocolFeeMultiplier: multiplier,
		FeeCollector:          feeCollector,
	})
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	f := &fixture{d: d, makerKey: key, maker: signature.PubkeyToAddress(&key.PublicKey)}

	f.makerToken, err = d.DeployToken("Maker Token", "MKR", 18)
	require.NoError(t, err)
	f.takerToken, err = d.DeployToken("Taker Token", "TKR", 18)
	require.NoError(t, err)

	require.NoError(t, d.Mint(f.makerToken, f.maker, big.NewInt(1000)))
	require.NoError(t, d.Mint(f.takerToken, taker, big.NewInt(1000)))
	require.NoError(t, d.Approve(f.makerToken, f.maker, d.Proxy, contract.MaxUint256))
	require.NoError(t, d.Approve(f.takerToken, taker, d.Proxy, contract.MaxUint256))
	return f
}

func (f *fixture) limitOrder() nativeorders.LimitOrder {
	return nativeorders.LimitOrder{
		MakerToken:          f.makerToken,
		TakerToken:          f.takerToken,
		MakerAmount:         big.NewInt(1000),
		TakerAmount:         big.NewInt(1000),
		TakerTokenFeeAmount: new(big.Int),
		Maker:               f.maker,
		Expiry:              1 << 40,
		Salt:                big.NewInt(1),
	}
}

func (f *fixture) sign(t *testing.T, hash common.Hash) signature.Signature {
	sig, err := signature.Sign(hash, f.makerKey, signature.EIP712)
	require.NoError(t, err)
	return sig
}

func (f *fixture) call(t *testing.T, from common.Address, value *big.Int, method string, args ...interface{}) *host.Receipt {
	input, err := nativeorders.ABI.Pack(method, args...)
	require.NoError(t, err)
	return f.d.CallProxy(from, input, value)
}

func (f *fixture) limitOrderInfo(t *testing.T, order nativeorders.LimitOrder) nativeorders.OrderInfo {
	input, err := nativeorders.ABI.Pack("getLimitOrderInfo", order)
	require.NoError(t, err)
	view := f.d.Host.Simulate(&host.Message{From: taker, To: f.d.Proxy, Data: input})
	require.True(t, view.Succeeded(), "%v", view.Err)
	out, err := nativeorders.ABI.UnpackOutput("getLimitOrderInfo", view.ReturnData)
	require.NoError(t, err)
	return *abi.ConvertType(out[0], new(nativeorders.OrderInfo)).(*nativeorders.OrderInfo)
}

func filled(t *testing.T, method string, r *host.Receipt) (*big.Int, *big.Int) {
	require.True(t, r.Succeeded(), "%v", r.Err)
	out, err := nativeorders.ABI.UnpackOutput(method, r.ReturnData)
	require.NoError(t, err)
	return out[0].(*big.Int), out[1].(*big.Int)
}

func TestLimitOrderPartialFills(t *testing.T) {
	f := newFixture(t, 0)
	order := f.limitOrder()
	sig := f.sign(t, order.Hash(f.d.Domain()))

	for _, want := range []int64{400, 400, 200} {
		takerFilled, makerFilled := filled(t, "fillLimitOrder",
			f.call(t, taker, nil, "fillLimitOrder", order, sig, big.NewInt(400)))
		require.Equal(t, want, takerFilled.Int64())
		require.Equal(t, want, makerFilled.Int64())
	}
	require.Equal(t, int64(1000), f.d.Balance(f.takerToken, f.maker).Int64())
	require.Equal(t, int64(1000), f.d.Balance(f.makerToken, taker).Int64())

	r := f.call(t, taker, nil, "fillLimitOrder", order, sig, big.NewInt(400))
	require.False(t, r.Succeeded())
	require.True(t, contract.IsRevert(r.Err, "OrderNotFillableError"), "%v", r.Err)

	info := f.limitOrderInfo(t, order)
	require.Equal(t, uint8(nativeorders.StatusFilled), info.Status)
	require.Equal(t, int64(1000), info.TakerTokenFilledAmount.Int64())
}

func TestLimitOrderRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture, o *nativeorders.LimitOrder)
		sender common.Address
		revert string
	}{
		{
			name:   "expired",
			mutate: func(_ *fixture, o *nativeorders.LimitOrder) { o.Expiry = 1 },
			sender: taker,
			revert: "OrderNotFillableError",
		},
		{
			name:   "wrong taker",
			mutate: func(_ *fixture, o *nativeorders.LimitOrder) { o.Taker = common.HexToAddress("0xdead") },
			sender: taker,
			revert: "OrderNotFillableByTakerError",
		},
		{
			name:   "wrong sender",
			mutate: func(_ *fixture, o *nativeorders.LimitOrder) { o.Sender = common.HexToAddress("0xdead") },
			sender: taker,
			revert: "OrderNotFillableBySenderError",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0)
			order := f.limitOrder()
			tt.mutate(f, &order)
			sig := f.sign(t, order.Hash(f.d.Domain()))

			r := f.call(t, tt.sender, nil, "fillLimitOrder", order, sig, big.NewInt(100))
			require.False(t, r.Succeeded())
			require.True(t, contract.IsRevert(r.Err, tt.revert), "%v", r.Err)
			require.Zero(t, f.d.Balance(f.makerToken, taker).Sign())
		})
	}
}

func TestLimitOrderBadSignature(t *testing.T) {
	f := newFixture(t, 0)
	order := f.limitOrder()
	other := order
	other.Salt = big.NewInt(2)
	sig := f.sign(t, other.Hash(f.d.Domain()))

	r := f.call(t, taker, nil, "fillLimitOrder", order, sig, big.NewInt(100))
	require.False(t, r.Succeeded())
	require.True(t, contract.IsRevert(r.Err, "OrderNotSignedByMakerError"), "%v", r.Err)
}

func TestCancelLimitOrder(t *testing.T) {
	f := newFixture(t, 0)
	order := f.limitOrder()
	sig := f.sign(t, order.Hash(f.d.Domain()))

	r := f.call(t, taker, nil, "cancelLimitOrder", order)
	require.False(t, r.Succeeded())
	require.True(t, contract.IsRevert(r.Err, "OnlyOrderMakerAllowedError"), "%v", r.Err)

	// Cancelling is idempotent.
	for i := 0; i < 2; i++ {
		r = f.call(t, f.maker, nil, "cancelLimitOrder", order)
		require.True(t, r.Succeeded(), "%v", r.Err)
	}
	info := f.limitOrderInfo(t, order)
	require.Equal(t, uint8(nativeorders.StatusCancelled), info.Status)
	require.Zero(t, info.TakerTokenFilledAmount.Sign())

	r = f.call(t, taker, nil, "fillLimitOrder", order, sig, big.NewInt(100))
	require.False(t, r.Succeeded())
	require.True(t, contract.IsRevert(r.Err, "OrderNotFillableError"), "%v", r.Err)
}

func TestCancelFilledOrderKeepsFills(t *testing.T) {
	f := newFixture(t, 0)
	order := f.limitOrder()
	sig := f.sign(t, order.Hash(f.d.Domain()))
	takerFilled, _ := filled(t, "fillLimitOrder",
		f.call(t, taker, nil, "fillLimitOrder", order, sig, big.NewInt(1000)))
	require.Equal(t, int64(1000), takerFilled.Int64())

	r := f.call(t, f.maker, nil, "cancelLimitOrder", order)
	require.True(t, r.Succeeded(), "%v", r.Err)

	info := f.limitOrderInfo(t, order)
	require.Equal(t, uint8(nativeorders.StatusFilled), info.Status)
	require.Equal(t, int64(1000), info.TakerTokenFilledAmount.Int64())
	require.Equal(t, int64(1000), f.d.Balance(f.takerToken, f.maker).Int64())
	require.Equal(t, int64(1000), f.d.Balance(f.makerToken, taker).Int64())
}

func TestCancelPairBySalt(t *testing.T) {
	f := newFixture(t, 0)
	order := f.limitOrder()
	sig := f.sign(t, order.Hash(f.d.Domain()))

	r := f.call(t, f.maker, nil, "cancelPairLimitOrders", f.makerToken, f.takerToken, big.NewInt(2))
	require.True(t, r.Succeeded(), "%v", r.Err)

	r = f.call(t, taker, nil, "fillLimitOrder", order, sig, big.NewInt(100))
	require.True(t, contract.IsRevert(r.Err, "OrderNotFillableError"), "%v", r.Err)

	require.Equal(t, uint8(nativeorders.StatusCancelled), f.limitOrderInfo(t, order).Status)

	// The same salt again is a no-op.
	r = f.call(t, f.maker, nil, "cancelPairLimitOrders", f.makerToken, f.takerToken, big.NewInt(2))
	require.True(t, r.Succeeded(), "%v", r.Err)

	r = f.call(t, f.maker, nil, "cancelPairLimitOrders", f.makerToken, f.takerToken, big.NewInt(1))
	require.False(t, r.Succeeded())
	require.True(t, contract.IsRevert(r.Err, "CancelSaltTooLowError"), "%v", r.Err)

	r = f.call(t, f.maker, nil, "cancelPairLimitOrders", f.makerToken, f.takerToken, big.NewInt(5))
	require.True(t, r.Succeeded(), "%v", r.Err)
	r = f.call(t, f.maker, nil, "cancelPairLimitOrders", f.makerToken, f.takerToken, big.NewInt(2))
	require.True(t, contract.IsRevert(r.Err, "CancelSaltTooLowError"), "%v", r.Err)
}

func TestProtocolFeeAndRefund(t *testing.T) {
	f := newFixture(t, 70_000)
	require.NoError(t, f.d.Fund(taker, big.NewInt(1_000_000)))
	order := f.limitOrder()
	sig := f.sign(t, order.Hash(f.d.Domain()))

	input, err := nativeorders.ABI.Pack("fillLimitOrder", order, sig, big.NewInt(100))
	require.NoError(t, err)
	msg := &host.Message{
		From:     taker,
		To:       f.d.Proxy,
		Data:     input,
		Value:    uint256.NewInt(100_000),
		GasPrice: big.NewInt(1),
	}
	r := f.d.Host.ApplyMessage(msg)
	require.True(t, r.Succeeded(), "%v", r.Err)

	require.Equal(t, int64(70_000), f.d.Balance(contract.ETHAddress, feeCollector).Int64())
	require.Equal(t, int64(930_000), f.d.Balance(contract.ETHAddress, taker).Int64())
	require.Zero(t, f.d.Balance(contract.ETHAddress, f.d.Proxy).Sign())

	msg.Value = uint256.NewInt(1_000)
	r = f.d.Host.ApplyMessage(msg)
	require.False(t, r.Succeeded())
	require.True(t, contract.IsRevert(r.Err, "ProtocolFeeUnderpaidError"), "%v", r.Err)
}

func TestRfqOrderOrigin(t *testing.T) {
	f := newFixture(t, 0)
	order := nativeorders.RfqOrder{
		MakerToken:  f.makerToken,
		TakerToken:  f.takerToken,
		MakerAmount: big.NewInt(500),
		TakerAmount: big.NewInt(1000),
		Maker:       f.maker,
		TxOrigin:    taker,
		Expiry:      1 << 40,
		Salt:        big.NewInt(7),
	}
	sig := f.sign(t, order.Hash(f.d.Domain()))

	relayer := common.HexToAddress("0x4e1a")
	r := f.call(t, relayer, nil, "fillRfqOrder", order, sig, big.NewInt(1000))
	require.False(t, r.Succeeded())
	require.True(t, contract.IsRevert(r.Err, "OrderNotFillableByOriginError"), "%v", r.Err)

	takerFilled, makerFilled := filled(t, "fillRfqOrder",
		f.call(t, taker, nil, "fillRfqOrder", order, sig, big.NewInt(600)))
	require.Equal(t, int64(600), takerFilled.Int64())
	require.Equal(t, int64(300), makerFilled.Int64())
	require.Equal(t, int64(300), f.d.Balance(f.makerToken, taker).Int64())
}
