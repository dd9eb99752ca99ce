// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package otcorders_test

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/luxfi/crypto"
	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/host"
	"github.com/luxfi/exchangeproxy/migration"
	"github.com/luxfi/exchangeproxy/otcorders"
	"github.com/luxfi/exchangeproxy/signature"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

var (
	owner   = common.HexToAddress("0x0f0f")
	relayer = common.HexToAddress("0x4e1a")
)

type fixture struct {
	d          *migration.Deployment
	makerKey   *ecdsa.PrivateKey
	maker      common.Address
	takerKey   *ecdsa.PrivateKey
	taker      common.Address
	makerToken common.Address
	takerToken common.Address
}

func newFixture(t *testing.T) *fixture {
	d, err := migration.Deploy(migration.Config{Owner: owner})
	require.NoError(t, err)
	f := &fixture{d: d}
	f.makerKey, err = crypto.GenerateKey()
	require.NoError(t, err)
	f.takerKey, err = crypto.GenerateKey()
	require.NoError(t, err)
	f.maker = signature.PubkeyToAddress(&f.makerKey.PublicKey)
	f.taker = signature.PubkeyToAddress(&f.takerKey.PublicKey)

	f.makerToken, err = d.DeployToken("Maker Token", "MKR", 18)
	require.NoError(t, err)
	f.takerToken, err = d.DeployToken("Taker Token", "TKR", 18)
	require.NoError(t, err)
	for _, holder := range []struct {
		who   common.Address
		token common.Address
	}{{f.maker, f.makerToken}, {f.maker, d.WETH}, {f.taker, f.takerToken}} {
		require.NoError(t, d.Mint(holder.token, holder.who, big.NewInt(1_000)))
		require.NoError(t, d.Approve(holder.token, holder.who, d.Proxy, contract.MaxUint256))
	}
	return f
}

func (f *fixture) order(bucket uint64, nonce int64) otcorders.OtcOrder {
	return otcorders.OtcOrder{
		MakerToken:     f.makerToken,
		TakerToken:     f.takerToken,
		MakerAmount:    big.NewInt(500),
		TakerAmount:    big.NewInt(1_000),
		Maker:          f.maker,
		TxOrigin:       f.taker,
		ExpiryAndNonce: otcorders.PackExpiryAndNonce(1<<40, bucket, big.NewInt(nonce)),
	}
}

func (f *fixture) sign(t *testing.T, key *ecdsa.PrivateKey, o otcorders.OtcOrder) signature.Signature {
	sig, err := signature.Sign(o.Hash(f.d.Domain()), key, signature.EIP712)
	require.NoError(t, err)
	return sig
}

func (f *fixture) call(t *testing.T, from common.Address, value *big.Int, method string, args ...interface{}) *host.Receipt {
	input, err := otcorders.ABI.Pack(method, args...)
	require.NoError(t, err)
	return f.d.CallProxy(from, input, value)
}

func (f *fixture) lastNonce(t *testing.T, bucket uint64) *big.Int {
	input, err := otcorders.ABI.Pack("lastOtcTxOriginNonce", f.taker, bucket)
	require.NoError(t, err)
	r := f.d.Host.Simulate(&host.Message{From: f.taker, To: f.d.Proxy, Data: input})
	require.True(t, r.Succeeded(), "%v", r.Err)
	out, err := otcorders.ABI.UnpackOutput("lastOtcTxOriginNonce", r.ReturnData)
	require.NoError(t, err)
	return out[0].(*big.Int)
}

func TestFillConsumesNonce(t *testing.T) {
	f := newFixture(t)
	order := f.order(0, 5)
	sig := f.sign(t, f.makerKey, order)

	r := f.call(t, f.taker, nil, "fillOtcOrder", order, sig, big.NewInt(400))
	require.True(t, r.Succeeded(), "%v", r.Err)
	out, err := otcorders.ABI.UnpackOutput("fillOtcOrder", r.ReturnData)
	require.NoError(t, err)
	require.Equal(t, int64(400), out[0].(*big.Int).Int64())
	require.Equal(t, int64(200), out[1].(*big.Int).Int64())
	require.Equal(t, int64(200), f.d.Balance(f.makerToken, f.taker).Int64())
	require.Equal(t, int64(5), f.lastNonce(t, 0).Int64())

	// A partial fill still spends the order.
	r = f.call(t, f.taker, nil, "fillOtcOrder", order, sig, big.NewInt(400))
	require.True(t, contract.IsRevert(r.Err, "OrderNotFillableError"), "%v", r.Err)

	lower := f.order(0, 4)
	r = f.call(t, f.taker, nil, "fillOtcOrder", lower, f.sign(t, f.makerKey, lower), big.NewInt(400))
	require.True(t, contract.IsRevert(r.Err, "OrderNotFillableError"), "%v", r.Err)

	other := f.order(1, 1)
	r = f.call(t, f.taker, nil, "fillOtcOrder", other, f.sign(t, f.makerKey, other), big.NewInt(400))
	require.True(t, r.Succeeded(), "%v", r.Err)
	require.Equal(t, int64(1), f.lastNonce(t, 1).Int64())
	require.Equal(t, int64(5), f.lastNonce(t, 0).Int64())
}

func TestFillRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture, o *otcorders.OtcOrder)
		from   func(f *fixture) common.Address
		revert string
	}{
		{
			name: "expired",
			mutate: func(_ *fixture, o *otcorders.OtcOrder) {
				o.ExpiryAndNonce = otcorders.PackExpiryAndNonce(1, 0, big.NewInt(1))
			},
			revert: "OrderNotFillableError",
		},
		{
			name:   "wrong origin",
			from:   func(*fixture) common.Address { return relayer },
			revert: "OrderNotFillableByOriginError",
		},
		{
			name:   "wrong taker",
			mutate: func(_ *fixture, o *otcorders.OtcOrder) { o.Taker = relayer },
			revert: "OrderNotFillableByTakerError",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			order := f.order(0, 1)
			if tt.mutate != nil {
				tt.mutate(f, &order)
			}
			from := f.taker
			if tt.from != nil {
				from = tt.from(f)
			}
			r := f.call(t, from, nil, "fillOtcOrder", order, f.sign(t, f.makerKey, order), big.NewInt(100))
			require.False(t, r.Succeeded())
			require.True(t, contract.IsRevert(r.Err, tt.revert), "%v", r.Err)
			require.Zero(t, f.lastNonce(t, 0).Sign())
		})
	}
}

func TestFillOtcOrderWithEth(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.d.Fund(f.taker, big.NewInt(1_000)))
	order := f.order(0, 1)
	order.TakerToken = f.d.WETH
	order.TakerAmount = big.NewInt(60)
	order.MakerAmount = big.NewInt(30)

	r := f.call(t, f.taker, big.NewInt(100), "fillOtcOrderWithEth", order, f.sign(t, f.makerKey, order))
	require.True(t, r.Succeeded(), "%v", r.Err)
	require.Equal(t, int64(940), f.d.Balance(contract.ETHAddress, f.taker).Int64())
	require.Equal(t, int64(1_060), f.d.Balance(f.d.WETH, f.maker).Int64())
	require.Equal(t, int64(30), f.d.Balance(f.makerToken, f.taker).Int64())
	require.Zero(t, f.d.Balance(contract.ETHAddress, f.d.Proxy).Sign())
	require.Zero(t, f.d.Balance(f.d.WETH, f.d.Proxy).Sign())
}

func TestFillOtcOrderForEth(t *testing.T) {
	f := newFixture(t)
	order := f.order(0, 1)
	order.MakerToken = f.d.WETH

	r := f.call(t, f.taker, nil, "fillOtcOrderForEth", order, f.sign(t, f.makerKey, order), big.NewInt(1_000))
	require.True(t, r.Succeeded(), "%v", r.Err)
	require.Equal(t, int64(500), f.d.Balance(contract.ETHAddress, f.taker).Int64())
	require.Equal(t, int64(500), f.d.Balance(f.d.WETH, f.maker).Int64())

	order = f.order(0, 2)
	r = f.call(t, f.taker, nil, "fillOtcOrderForEth", order, f.sign(t, f.makerKey, order), big.NewInt(1_000))
	require.True(t, contract.IsRevert(r.Err, "InvalidWethOrderError"), "%v", r.Err)
}

func TestTakerSignedFills(t *testing.T) {
	f := newFixture(t)
	good := f.order(0, 1)
	good.Taker = f.taker
	good.TxOrigin = relayer
	good.TakerAmount = big.NewInt(400)
	good.MakerAmount = big.NewInt(200)
	forged := f.order(0, 2)
	forged.Taker = f.taker
	forged.TxOrigin = relayer

	r := f.call(t, relayer, nil, "batchFillTakerSignedOtcOrders",
		[]otcorders.OtcOrder{good, forged},
		[]signature.Signature{f.sign(t, f.makerKey, good), f.sign(t, f.makerKey, forged)},
		[]signature.Signature{f.sign(t, f.takerKey, good), f.sign(t, f.makerKey, forged)})
	require.True(t, r.Succeeded(), "%v", r.Err)
	out, err := otcorders.ABI.UnpackOutput("batchFillTakerSignedOtcOrders", r.ReturnData)
	require.NoError(t, err)
	require.Equal(t, []bool{true, false}, out[0].([]bool))

	require.Equal(t, int64(200), f.d.Balance(f.makerToken, f.taker).Int64())
	require.Equal(t, int64(600), f.d.Balance(f.takerToken, f.taker).Int64())

	r = f.call(t, relayer, nil, "fillTakerSignedOtcOrder", forged, f.sign(t, f.makerKey, forged), f.sign(t, f.makerKey, forged))
	require.True(t, contract.IsRevert(r.Err, "OrderNotSignedByTakerError"), "%v", r.Err)
}
