// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package events_test

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/dex"
	"github.com/luxfi/exchangeproxy/events"
	"github.com/luxfi/exchangeproxy/migration"
	"github.com/luxfi/exchangeproxy/multiplex"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

var (
	owner = common.HexToAddress("0x0f0f")
	taker = common.HexToAddress("0x7a4e")
)

type capture struct {
	records []events.Record
}

func (c *capture) Publish(_ context.Context, records []events.Record) error {
	c.records = append(c.records, records...)
	return nil
}

func (c *capture) kinds() []string {
	out := make([]string, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, r.Kind)
	}
	return out
}

func sellFixture(t *testing.T) (*migration.Deployment, common.Address, common.Address) {
	d, err := migration.Deploy(migration.Config{Owner: owner})
	require.NoError(t, err)
	a, err := d.DeployToken("Token A", "A", 18)
	require.NoError(t, err)
	b, err := d.DeployToken("Token B", "B", 18)
	require.NoError(t, err)
	require.NoError(t, d.SeedPool(owner, a, b, big.NewInt(10_000), big.NewInt(10_000)))
	require.NoError(t, d.Mint(a, taker, big.NewInt(1_000)))
	require.NoError(t, d.Approve(a, taker, d.Proxy, contract.MaxUint256))
	return d, a, b
}

func sell(t *testing.T, d *migration.Deployment, a, b common.Address, amount int64) []byte {
	data, err := dex.EncodeBridgeData(d.DEX, []common.Address{a, b})
	require.NoError(t, err)
	calls := []multiplex.BatchSellSubcall{{ID: uint8(multiplex.SubcallUniswapV2), SellAmount: big.NewInt(amount), Data: data}}
	input, err := multiplex.ABI.Pack("multiplexBatchSellTokenForToken", a, b, calls, big.NewInt(100), new(big.Int))
	require.NoError(t, err)
	return input
}

func TestObserverPublishesCommittedRecords(t *testing.T) {
	d, a, b := sellFixture(t)
	pub := &capture{}
	d.Host.AddObserver(events.NewObserver(events.DefaultDecoder(), nil, pub, events.LogPublisher{Log: log.NewTestLogger(log.InfoLevel)}))

	r := d.CallProxy(taker, sell(t, d, a, b, 100), nil)
	require.True(t, r.Succeeded(), "%v", r.Err)
	require.Contains(t, pub.kinds(), "Transfer")
	require.Contains(t, pub.kinds(), "Swap")
	require.Contains(t, pub.kinds(), "MultiplexSell")

	var rec events.Record
	for _, x := range pub.records {
		if x.Kind == "MultiplexSell" {
			rec = x
		}
	}
	require.Equal(t, d.Proxy, rec.Address)
	require.Equal(t, r.TxHash, rec.TxHash)
	require.Equal(t, taker, rec.Fields["taker"].(common.Address))
	require.Equal(t, int64(100), (*big.Int)(rec.Fields["soldAmount"].(*hexutil.Big)).Int64())

	_, err := json.Marshal(rec)
	require.NoError(t, err)

	// Reverted messages publish nothing.
	pub.records = nil
	r = d.CallProxy(taker, sell(t, d, a, b, 50), nil)
	require.False(t, r.Succeeded())
	require.Empty(t, pub.records)
}

func TestDecodeReceiptLogs(t *testing.T) {
	d, a, b := sellFixture(t)
	r := d.CallProxy(taker, sell(t, d, a, b, 100), nil)
	require.True(t, r.Succeeded(), "%v", r.Err)

	records, err := events.DefaultDecoder().DecodeAll(r.Logs)
	require.NoError(t, err)
	require.Len(t, records, len(r.Logs))
	for _, rec := range records {
		require.Equal(t, r.BlockNumber.Uint64(), rec.BlockNumber)
	}

	// A decoder without the multiplex ABI skips its logs.
	records, err = events.NewDecoder(dex.ABI).DecodeAll(r.Logs)
	require.NoError(t, err)
	for _, rec := range records {
		require.Equal(t, "Swap", rec.Kind)
	}
}

func TestDecodeUnknownLog(t *testing.T) {
	dec := events.DefaultDecoder()
	_, err := dec.Decode(&types.Log{Address: owner})
	require.ErrorIs(t, err, events.ErrUnknownEvent)
	_, err = dec.Decode(&types.Log{Address: owner, Topics: []common.Hash{common.HexToHash("0x01")}})
	require.ErrorIs(t, err, events.ErrUnknownEvent)
}

func TestNATSSubject(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "exchange.OtcOrderFilled"},
		{"dex.mainnet", "dex.mainnet.OtcOrderFilled"},
	}
	for _, tt := range tests {
		p := events.NewNATSPublisherWithConn(nil, tt.prefix, nil)
		require.Equal(t, tt.want, p.Subject("OtcOrderFilled"))
	}
}
