// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/luxfi/exchangeproxy/bridge"
	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/erc20"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
)

var _ bridge.Adapter = Adapter{}

var ErrInvalidPath = errors.New("invalid swap path")

// Source is the bridge source of the in-tree pool manager.
var Source = bridge.NewSource(bridge.ProtocolUniswapV2, "LuxPool")

var bridgeDataArgs = func() abi.Arguments {
	addrT, _ := abi.NewType("address", "", nil)
	pathT, _ := abi.NewType("address[]", "", nil)
	return abi.Arguments{{Name: "pool", Type: addrT}, {Name: "path", Type: pathT}}
}()

func init() {
	if err := bridge.Register(bridge.ProtocolUniswapV2, Adapter{}); err != nil {
		panic(err)
	}
}

// EncodeBridgeData encodes the adapter data for selling along path through
// the pool manager at pool.
func EncodeBridgeData(pool common.Address, path []common.Address) ([]byte, error) {
	return bridgeDataArgs.Pack(pool, path)
}

// DecodeBridgeData is the inverse of EncodeBridgeData.
func DecodeBridgeData(data []byte) (common.Address, []common.Address, error) {
	values, err := bridgeDataArgs.Unpack(data)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("%w: %v", contract.ErrInvalidInput, err)
	}
	return values[0].(common.Address), values[1].([]common.Address), nil
}

// Adapter sells through pool manager pairs.
type Adapter struct{}

// Trade sells sellAmount held by the current frame along the encoded path and
// returns the bought amount to the current frame.
func (Adapter) Trade(
	env contract.AccessibleState,
	source bridge.Source,
	sellToken, buyToken common.Address,
	sellAmount *big.Int,
	data []byte,
) (*big.Int, error) {
	pool, path, err := DecodeBridgeData(data)
	if err != nil {
		return nil, err
	}
	if len(path) < 2 || path[0] != sellToken || path[len(path)-1] != buyToken {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPath, path)
	}
	if err := (erc20.Spender{}).Transfer(env, sellToken, pool, sellAmount); err != nil {
		return nil, err
	}
	return SwapPath(env, pool, path, sellAmount, common.Address{})
}

// SwapPath swaps amountIn of path[0], already transferred to the manager at
// pool, hop by hop. Intermediate outputs stay in the manager; the last hop
// pays recipient, or the calling frame when recipient is zero.
func SwapPath(
	env contract.AccessibleState,
	pool common.Address,
	path []common.Address,
	amountIn *big.Int,
	recipient common.Address,
) (*big.Int, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPath, path)
	}
	amount := amountIn
	for i := 0; i < len(path)-1; i++ {
		to := pool
		if i == len(path)-2 {
			to = recipient
		}
		input, err := ABI.Pack("swap", path[i], path[i+1], amount, new(big.Int), to)
		if err != nil {
			return nil, err
		}
		ret, err := env.Call(pool, input, nil)
		if err != nil {
			return nil, err
		}
		values, err := ABI.UnpackOutput("swap", ret)
		if err != nil {
			return nil, fmt.Errorf("%w: swap output: %v", contract.ErrDelegatedFailure, err)
		}
		amount = values[0].(*big.Int)
	}
	return amount, nil
}
