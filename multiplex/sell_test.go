// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package multiplex_test

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/luxfi/crypto"
	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/dex"
	"github.com/luxfi/exchangeproxy/host"
	"github.com/luxfi/exchangeproxy/migration"
	"github.com/luxfi/exchangeproxy/multiplex"
	"github.com/luxfi/exchangeproxy/nativeorders"
	"github.com/luxfi/exchangeproxy/signature"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

var (
	owner = common.HexToAddress("0x0f0f")
	taker = common.HexToAddress("0x7a4e")
)

type fixture struct {
	d        *migration.Deployment
	a, b, c  common.Address
	makerKey *ecdsa.PrivateKey
	maker    common.Address
}

func newFixture(t *testing.T) *fixture {
	d, err := migration.Deploy(migration.Config{Owner: owner})
	require.NoError(t, err)
	f := &fixture{d: d}
	for _, tok := range []*common.Address{&f.a, &f.b, &f.c} {
		*tok, err = d.DeployToken("Token", "TKN", 18)
		require.NoError(t, err)
	}
	require.NoError(t, d.SeedPool(owner, f.a, f.b, big.NewInt(10_000), big.NewInt(10_000)))
	require.NoError(t, d.SeedPool(owner, f.b, f.c, big.NewInt(10_000), big.NewInt(20_000)))
	require.NoError(t, d.Mint(f.a, taker, big.NewInt(1_000)))
	require.NoError(t, d.Approve(f.a, taker, d.Proxy, contract.MaxUint256))

	f.makerKey, err = crypto.GenerateKey()
	require.NoError(t, err)
	f.maker = signature.PubkeyToAddress(&f.makerKey.PublicKey)
	require.NoError(t, d.Mint(f.b, f.maker, big.NewInt(1_000)))
	require.NoError(t, d.Approve(f.b, f.maker, d.Proxy, contract.MaxUint256))
	return f
}

func quote(amountIn, reserveIn, reserveOut int64) *big.Int {
	return dex.GetAmountOut(big.NewInt(amountIn), big.NewInt(reserveIn), big.NewInt(reserveOut), dex.FeeTier)
}

func (f *fixture) poolCall(t *testing.T, amount *big.Int, path ...common.Address) multiplex.BatchSellSubcall {
	data, err := dex.EncodeBridgeData(f.d.DEX, path)
	require.NoError(t, err)
	return multiplex.BatchSellSubcall{ID: uint8(multiplex.SubcallUniswapV2), SellAmount: amount, Data: data}
}

func (f *fixture) providerCall(t *testing.T, amount *big.Int, path ...common.Address) multiplex.BatchSellSubcall {
	bridgeData, err := dex.EncodeBridgeData(f.d.DEX, path)
	require.NoError(t, err)
	data, err := multiplex.EncodeLiquidityProviderData(dex.Source, bridgeData)
	require.NoError(t, err)
	return multiplex.BatchSellSubcall{ID: uint8(multiplex.SubcallLiquidityProvider), SellAmount: amount, Data: data}
}

func (f *fixture) rfqCall(t *testing.T, amount *big.Int, expiry uint64) multiplex.BatchSellSubcall {
	order := nativeorders.RfqOrder{
		MakerToken:  f.b,
		TakerToken:  f.a,
		MakerAmount: big.NewInt(1_000),
		TakerAmount: big.NewInt(1_000),
		Maker:       f.maker,
		TxOrigin:    taker,
		Expiry:      expiry,
		Salt:        big.NewInt(1),
	}
	sig, err := signature.Sign(order.Hash(f.d.Domain()), f.makerKey, signature.EIP712)
	require.NoError(t, err)
	data, err := multiplex.EncodeRfqData(order, sig)
	require.NoError(t, err)
	return multiplex.BatchSellSubcall{ID: uint8(multiplex.SubcallRFQ), SellAmount: amount, Data: data}
}

func (f *fixture) batchSell(t *testing.T, calls []multiplex.BatchSellSubcall, sellAmount, minBuy int64) *host.Receipt {
	input, err := multiplex.ABI.Pack("multiplexBatchSellTokenForToken", f.a, f.b, calls, big.NewInt(sellAmount), big.NewInt(minBuy))
	require.NoError(t, err)
	return f.d.CallProxy(taker, input, nil)
}

func bought(t *testing.T, method string, r *host.Receipt) *big.Int {
	require.True(t, r.Succeeded(), "%v", r.Err)
	out, err := multiplex.ABI.UnpackOutput(method, r.ReturnData)
	require.NoError(t, err)
	return out[0].(*big.Int)
}

func TestBatchSellThroughPool(t *testing.T) {
	tests := []struct {
		name string
		call func(f *fixture, t *testing.T) multiplex.BatchSellSubcall
	}{
		{
			name: "pool",
			call: func(f *fixture, t *testing.T) multiplex.BatchSellSubcall {
				return f.poolCall(t, big.NewInt(100), f.a, f.b)
			},
		},
		{
			name: "liquidity provider",
			call: func(f *fixture, t *testing.T) multiplex.BatchSellSubcall {
				return f.providerCall(t, big.NewInt(100), f.a, f.b)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			want := quote(100, 10_000, 10_000)

			r := f.batchSell(t, []multiplex.BatchSellSubcall{tt.call(f, t)}, 100, want.Int64())
			require.Equal(t, want, bought(t, "multiplexBatchSellTokenForToken", r))
			require.Equal(t, want, f.d.Balance(f.b, taker))
			require.Equal(t, int64(900), f.d.Balance(f.a, taker).Int64())
			require.Zero(t, f.d.Balance(f.a, f.d.Proxy).Sign())
			require.Zero(t, f.d.Balance(f.b, f.d.Proxy).Sign())
		})
	}
}

func TestBatchSellSplitsAcrossSources(t *testing.T) {
	f := newFixture(t)
	half := multiplex.FractionalSellAmount(big.NewInt(5e17))
	calls := []multiplex.BatchSellSubcall{
		f.rfqCall(t, half, 1<<40),
		f.poolCall(t, big.NewInt(100), f.a, f.b),
	}

	want := new(big.Int).Add(big.NewInt(50), quote(50, 10_000, 10_000))
	r := f.batchSell(t, calls, 100, 0)
	require.Equal(t, want, bought(t, "multiplexBatchSellTokenForToken", r))
	require.Equal(t, int64(50), f.d.Balance(f.a, f.maker).Int64())
	require.Equal(t, int64(950), f.d.Balance(f.b, f.maker).Int64())
}

func TestBatchSellFallsBackAfterSoftFailure(t *testing.T) {
	f := newFixture(t)
	calls := []multiplex.BatchSellSubcall{
		f.rfqCall(t, big.NewInt(100), 1),
		f.poolCall(t, big.NewInt(100), f.a, f.b),
	}

	r := f.batchSell(t, calls, 100, 0)
	require.Equal(t, quote(100, 10_000, 10_000), bought(t, "multiplexBatchSellTokenForToken", r))
	require.Equal(t, int64(1_000), f.d.Balance(f.b, f.maker).Int64())
	require.Zero(t, f.d.Balance(f.a, f.maker).Sign())
}

func TestBatchSellFailures(t *testing.T) {
	tests := []struct {
		name   string
		calls  func(f *fixture, t *testing.T) []multiplex.BatchSellSubcall
		minBuy int64
		revert string
	}{
		{
			name: "incorrect sell amount",
			calls: func(f *fixture, t *testing.T) []multiplex.BatchSellSubcall {
				return []multiplex.BatchSellSubcall{f.poolCall(t, big.NewInt(50), f.a, f.b)}
			},
			revert: "MultiplexIncorrectSellAmountError",
		},
		{
			name: "every soft source failed",
			calls: func(f *fixture, t *testing.T) []multiplex.BatchSellSubcall {
				return []multiplex.BatchSellSubcall{f.rfqCall(t, big.NewInt(100), 1)}
			},
			revert: "MultiplexIncorrectSellAmountError",
		},
		{
			name: "underbought",
			calls: func(f *fixture, t *testing.T) []multiplex.BatchSellSubcall {
				return []multiplex.BatchSellSubcall{f.poolCall(t, big.NewInt(100), f.a, f.b)}
			},
			minBuy: 100,
			revert: "MultiplexUnderboughtError",
		},
		{
			name: "malformed soft sub-call data",
			calls: func(f *fixture, t *testing.T) []multiplex.BatchSellSubcall {
				return []multiplex.BatchSellSubcall{
					{ID: uint8(multiplex.SubcallRFQ), SellAmount: big.NewInt(100), Data: []byte{1, 2, 3}},
					f.poolCall(t, big.NewInt(100), f.a, f.b),
				}
			},
			revert: "MultiplexInvalidSubcallDataError",
		},
		{
			name: "unsupported sub-call",
			calls: func(f *fixture, t *testing.T) []multiplex.BatchSellSubcall {
				return []multiplex.BatchSellSubcall{{ID: uint8(multiplex.SubcallUniswapV3), SellAmount: big.NewInt(100), Data: []byte{}}}
			},
			revert: "MultiplexUnsupportedSubcallError",
		},
		{
			name: "pool path does not match",
			calls: func(f *fixture, t *testing.T) []multiplex.BatchSellSubcall {
				return []multiplex.BatchSellSubcall{f.poolCall(t, big.NewInt(100), f.b, f.c)}
			},
			revert: "MultiplexInvalidTokensError",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			r := f.batchSell(t, tt.calls(f, t), 100, tt.minBuy)
			require.False(t, r.Succeeded())
			require.True(t, contract.IsRevert(r.Err, tt.revert), "%v", r.Err)
			require.Equal(t, int64(1_000), f.d.Balance(f.a, taker).Int64())
			require.Zero(t, f.d.Balance(f.b, taker).Sign())
		})
	}
}

func TestMultiHopSell(t *testing.T) {
	f := newFixture(t)
	hop := func(from, to common.Address) multiplex.MultiHopSellSubcall {
		data, err := dex.EncodeBridgeData(f.d.DEX, []common.Address{from, to})
		require.NoError(t, err)
		return multiplex.MultiHopSellSubcall{ID: uint8(multiplex.SubcallUniswapV2), Data: data}
	}
	mid := quote(100, 10_000, 10_000)
	want := dex.GetAmountOut(mid, big.NewInt(10_000), big.NewInt(20_000), dex.FeeTier)

	input, err := multiplex.ABI.Pack("multiplexMultiHopSellTokenForToken",
		[]common.Address{f.a, f.b, f.c},
		[]multiplex.MultiHopSellSubcall{hop(f.a, f.b), hop(f.b, f.c)},
		big.NewInt(100), want)
	require.NoError(t, err)
	r := f.d.CallProxy(taker, input, nil)
	require.Equal(t, want, bought(t, "multiplexMultiHopSellTokenForToken", r))
	require.Equal(t, want, f.d.Balance(f.c, taker))
	require.Zero(t, f.d.Balance(f.b, taker).Sign())
	require.Zero(t, f.d.Balance(f.b, f.d.Proxy).Sign())

	input, err = multiplex.ABI.Pack("multiplexMultiHopSellTokenForToken",
		[]common.Address{f.a, f.b, f.c},
		[]multiplex.MultiHopSellSubcall{hop(f.a, f.b)},
		big.NewInt(100), new(big.Int))
	require.NoError(t, err)
	r = f.d.CallProxy(taker, input, nil)
	require.True(t, contract.IsRevert(r.Err, "MultiplexInvalidHopCountError"), "%v", r.Err)
}

func TestBatchSellEthForToken(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.d.SeedPool(owner, f.d.WETH, f.b, big.NewInt(10_000), big.NewInt(10_000)))
	require.NoError(t, f.d.Fund(taker, big.NewInt(1_000)))
	want := quote(100, 10_000, 10_000)

	input, err := multiplex.ABI.Pack("multiplexBatchSellEthForToken", f.b,
		[]multiplex.BatchSellSubcall{f.poolCall(t, big.NewInt(100), f.d.WETH, f.b)}, want)
	require.NoError(t, err)
	r := f.d.CallProxy(taker, input, big.NewInt(100))
	require.Equal(t, want, bought(t, "multiplexBatchSellEthForToken", r))
	require.Equal(t, int64(900), f.d.Balance(contract.ETHAddress, taker).Int64())
	require.Equal(t, want, f.d.Balance(f.b, taker))
	require.Zero(t, f.d.Balance(f.d.WETH, f.d.Proxy).Sign())
	require.Zero(t, f.d.Balance(contract.ETHAddress, f.d.Proxy).Sign())
}

func TestBatchSellTokenForEth(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.d.SeedPool(owner, f.a, f.d.WETH, big.NewInt(10_000), big.NewInt(10_000)))
	want := quote(100, 10_000, 10_000)

	input, err := multiplex.ABI.Pack("multiplexBatchSellTokenForEth", f.a,
		[]multiplex.BatchSellSubcall{f.poolCall(t, big.NewInt(100), f.a, f.d.WETH)}, big.NewInt(100), want)
	require.NoError(t, err)
	r := f.d.CallProxy(taker, input, nil)
	require.Equal(t, want, bought(t, "multiplexBatchSellTokenForEth", r))
	require.Equal(t, want, f.d.Balance(contract.ETHAddress, taker))
	require.Zero(t, f.d.Balance(f.d.WETH, f.d.Proxy).Sign())
}

func TestSellToLiquidityProviderIsSelfOnly(t *testing.T) {
	f := newFixture(t)
	input, err := multiplex.ABI.Pack("_sellToLiquidityProvider", f.a, f.b, big.NewInt(1), [32]byte(dex.Source), []byte{}, taker, false, taker)
	require.NoError(t, err)
	r := f.d.CallProxy(taker, input, nil)
	require.True(t, contract.IsRevert(r.Err, "OnlyCallableBySelfError"), "%v", r.Err)
}
