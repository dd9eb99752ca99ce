// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bridge routes sells to external liquidity through adapters keyed by
// a bridge source id.
package bridge

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/geth/common"
)

// Protocol ids occupy the high 16 bytes of a source.
const (
	ProtocolUnknown   uint64 = 0
	ProtocolCurve     uint64 = 1
	ProtocolUniswapV2 uint64 = 2
	ProtocolUniswap   uint64 = 3
	ProtocolBalancer  uint64 = 4
)

var ErrDuplicateProtocol = errors.New("protocol already registered")

const rawABI = `[
  {"type":"error","name":"UnknownBridgeSourceError","inputs":[{"name":"source","type":"bytes32"}]},
  {"type":"error","name":"BridgeTradeFailedError","inputs":[{"name":"source","type":"bytes32"},{"name":"errorData","type":"bytes"}]}
]`

// ABI holds the bridge errors.
var ABI = contract.ParseABI(rawABI)

// Source identifies a liquidity source: a protocol id and a 16 byte name.
type Source [32]byte

// NewSource builds the source for protocol with the given name. Names longer
// than 16 bytes are truncated.
func NewSource(protocol uint64, name string) Source {
	var s Source
	binary.BigEndian.PutUint64(s[8:16], protocol)
	copy(s[16:], name)
	return s
}

// Protocol returns the protocol id of s.
func (s Source) Protocol() uint64 {
	return binary.BigEndian.Uint64(s[8:16])
}

// Name returns the human readable part of s.
func (s Source) Name() string {
	n := 16
	for n > 0 && s[16+n-1] == 0 {
		n--
	}
	return string(s[16 : 16+n])
}

// Adapter sells sellAmount of sellToken held by the current frame for
// buyToken. The bought tokens are credited to the current frame.
type Adapter interface {
	Trade(
		env contract.AccessibleState,
		source Source,
		sellToken, buyToken common.Address,
		sellAmount *big.Int,
		data []byte,
	) (*big.Int, error)
}

// AdapterFunc adapts a function to Adapter.
type AdapterFunc func(env contract.AccessibleState, source Source, sellToken, buyToken common.Address, sellAmount *big.Int, data []byte) (*big.Int, error)

func (f AdapterFunc) Trade(env contract.AccessibleState, source Source, sellToken, buyToken common.Address, sellAmount *big.Int, data []byte) (*big.Int, error) {
	return f(env, source, sellToken, buyToken, sellAmount, data)
}

func UnknownBridgeSourceError(source Source) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "UnknownBridgeSourceError", [32]byte(source))
}

func BridgeTradeFailedError(source Source, cause error) error {
	return contract.NewRevert(ABI, contract.ErrDelegatedFailure, "BridgeTradeFailedError",
		[32]byte(source), contract.RevertData(cause)).WithCause(cause)
}
