// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package events turns committed logs into records and hands them to
// publishers.
package events

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/luxfi/exchangeproxy/batchmultiplex"
	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/dex"
	"github.com/luxfi/exchangeproxy/erc20"
	"github.com/luxfi/exchangeproxy/metatx"
	"github.com/luxfi/exchangeproxy/multiplex"
	"github.com/luxfi/exchangeproxy/nativeorders"
	"github.com/luxfi/exchangeproxy/otcorders"
	"github.com/luxfi/exchangeproxy/proxy"
	"github.com/luxfi/exchangeproxy/transformerc20"
	"github.com/luxfi/exchangeproxy/transformers"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/geth/core/types"
)

var ErrUnknownEvent = errors.New("unknown event")

// Record is a decoded log.
type Record struct {
	Kind        string                 `json:"kind"`
	Address     common.Address         `json:"address"`
	Fields      map[string]interface{} `json:"fields"`
	BlockNumber uint64                 `json:"blockNumber"`
	TxHash      common.Hash            `json:"txHash"`
	Index       uint                   `json:"logIndex"`
}

// Decoder decodes logs emitted by any of its ABIs.
type Decoder struct {
	events map[common.Hash]decodable
}

type decodable struct {
	abi   contract.ExtendedABI
	event abi.Event
}

// NewDecoder returns a decoder over abis. The first ABI declaring an event
// signature wins.
func NewDecoder(abis ...contract.ExtendedABI) *Decoder {
	d := &Decoder{events: make(map[common.Hash]decodable)}
	for _, a := range abis {
		for _, ev := range a.Events {
			if _, ok := d.events[ev.ID]; !ok {
				d.events[ev.ID] = decodable{abi: a, event: ev}
			}
		}
	}
	return d
}

// DefaultDecoder covers every exchange contract.
func DefaultDecoder() *Decoder {
	return NewDecoder(
		proxy.ABI,
		nativeorders.ABI,
		otcorders.ABI,
		metatx.ABI,
		transformerc20.ABI,
		transformers.ABI,
		transformers.DeployerABI,
		multiplex.ABI,
		batchmultiplex.ABI,
		dex.ABI,
		erc20.ABI,
	)
}

// Decode decodes one log.
func (d *Decoder) Decode(l *types.Log) (Record, error) {
	if len(l.Topics) == 0 {
		return Record{}, fmt.Errorf("%w: anonymous log at %s", ErrUnknownEvent, l.Address)
	}
	known, ok := d.events[l.Topics[0]]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrUnknownEvent, l.Topics[0])
	}
	fields := make(map[string]interface{})
	if len(l.Data) > 0 {
		if err := known.abi.UnpackIntoMap(fields, known.event.Name, l.Data); err != nil {
			return Record{}, fmt.Errorf("decode %s: %w", known.event.Name, err)
		}
	}
	var indexed abi.Arguments
	for _, arg := range known.event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(fields, indexed, l.Topics[1:]); err != nil {
		return Record{}, fmt.Errorf("decode %s topics: %w", known.event.Name, err)
	}
	for k, v := range fields {
		fields[k] = normalize(v)
	}
	return Record{
		Kind:        known.event.Name,
		Address:     l.Address,
		Fields:      fields,
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
		Index:       l.Index,
	}, nil
}

// DecodeAll decodes logs, skipping those no ABI declares.
func (d *Decoder) DecodeAll(logs []*types.Log) ([]Record, error) {
	records := make([]Record, 0, len(logs))
	for _, l := range logs {
		rec, err := d.Decode(l)
		if errors.Is(err, ErrUnknownEvent) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case [32]byte:
		return common.Hash(x)
	case [4]byte:
		return hexutil.Bytes(x[:])
	case []byte:
		return hexutil.Bytes(x)
	case *big.Int:
		return (*hexutil.Big)(x)
	default:
		return v
	}
}
