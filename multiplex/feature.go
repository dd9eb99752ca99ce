// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package multiplex sells one token for another across several liquidity
// sources in a single call. A batch sell splits the sell amount across
// sub-calls; a multi-hop sell routes it through intermediate tokens.
package multiplex

import (
	_ "embed"
	"fmt"
	"math/big"

	"github.com/luxfi/exchangeproxy/bridge"
	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/erc20"
	"github.com/luxfi/exchangeproxy/proxy"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

var _ contract.Feature = (*Feature)(nil)

const GasSell uint64 = 30_000

//go:embed contract.abi
var rawABI string

// ABI is the multiplex feature ABI.
var ABI = contract.ParseABI(rawABI)

var wethSlot = contract.StorageKey([]byte("exchange.multiplex.weth"))

// Feature is the multiplex feature.
type Feature struct {
	address common.Address
	spender contract.TokenSpender
	bridges *bridge.Registry
	log     log.Logger
}

// New returns the feature deployed at address. Liquidity provider sub-calls
// trade through bridges.
func New(address common.Address, spender contract.TokenSpender, bridges *bridge.Registry, logger log.Logger) *Feature {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	if bridges == nil {
		bridges = bridge.Default()
	}
	return &Feature{address: address, spender: spender, bridges: bridges, log: logger}
}

func (*Feature) FeatureName() string { return "MultiplexFeature" }

func (*Feature) FeatureVersion() *big.Int { return contract.EncodeVersion(2, 0, 0) }

func (f *Feature) Address() common.Address { return f.address }

func (*Feature) Selectors() [][4]byte { return ABI.MethodSelectors("migrate") }

// WETH returns the wrapped native token ETH sells settle against.
func (f *Feature) WETH(st contract.StateDB) common.Address {
	return contract.HashToAddress(st.GetState(f.address, wethSlot))
}

type batchSellParams struct {
	inputToken     common.Address
	outputToken    common.Address
	sellAmount     *big.Int
	calls          []BatchSellSubcall
	useSelfBalance bool
	taker          common.Address
	recipient      common.Address
}

type multiHopSellParams struct {
	tokens         []common.Address
	sellAmount     *big.Int
	calls          []MultiHopSellSubcall
	useSelfBalance bool
	taker          common.Address
	recipient      common.Address
}

func (f *Feature) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if err := contract.OnlyDelegateCall(addr, f.address, "Multiplex_Feat"); err != nil {
		return nil, suppliedGas, err
	}
	method, values, err := ABI.DecodeCall(input)
	if err != nil {
		return nil, suppliedGas, err
	}
	if err := contract.RequireNoValue(method, accessibleState); err != nil {
		return nil, suppliedGas, err
	}
	if readOnly {
		return nil, suppliedGas, contract.ErrWriteProtection
	}
	if method.Name == "migrate" {
		if err := proxy.RegisterSelectors(accessibleState, addr, f); err != nil {
			return nil, suppliedGas, err
		}
		return proxy.MigrateSuccessOutput(), suppliedGas, nil
	}
	remaining, err := contract.DeductGas(suppliedGas, GasSell)
	if err != nil {
		return nil, 0, err
	}

	st := accessibleState.GetStateDB()
	weth := f.WETH(st)
	value := accessibleState.GetCallValue().ToBig()
	var bought *big.Int

	switch method.Name {
	case "multiplexBatchSellEthForToken":
		if err := erc20.WrapETH(accessibleState, weth, value); err != nil {
			return nil, remaining, err
		}
		bought, err = f.batchSell(accessibleState, addr, batchSellParams{
			inputToken:     weth,
			outputToken:    values[0].(common.Address),
			sellAmount:     value,
			calls:          decodeBatchSubcalls(values[1]),
			useSelfBalance: true,
			taker:          caller,
			recipient:      caller,
		}, values[2].(*big.Int))

	case "multiplexBatchSellTokenForEth":
		bought, err = f.batchSell(accessibleState, addr, batchSellParams{
			inputToken:  values[0].(common.Address),
			outputToken: weth,
			sellAmount:  values[2].(*big.Int),
			calls:       decodeBatchSubcalls(values[1]),
			taker:       caller,
			recipient:   addr,
		}, values[3].(*big.Int))
		if err == nil {
			err = f.payEth(accessibleState, weth, caller, bought)
		}

	case "multiplexBatchSellTokenForToken":
		bought, err = f.batchSell(accessibleState, addr, batchSellParams{
			inputToken:  values[0].(common.Address),
			outputToken: values[1].(common.Address),
			sellAmount:  values[3].(*big.Int),
			calls:       decodeBatchSubcalls(values[2]),
			taker:       caller,
			recipient:   caller,
		}, values[4].(*big.Int))

	case "multiplexMultiHopSellEthForToken":
		tokens := values[0].([]common.Address)
		if len(tokens) == 0 || tokens[0] != weth {
			return nil, remaining, MultiplexInvalidTokensError(tokens)
		}
		if err := erc20.WrapETH(accessibleState, weth, value); err != nil {
			return nil, remaining, err
		}
		bought, err = f.multiHopSell(accessibleState, addr, multiHopSellParams{
			tokens:         tokens,
			sellAmount:     value,
			calls:          decodeMultiHopSubcalls(values[1]),
			useSelfBalance: true,
			taker:          caller,
			recipient:      caller,
		}, values[2].(*big.Int))

	case "multiplexMultiHopSellTokenForEth":
		tokens := values[0].([]common.Address)
		if len(tokens) == 0 || tokens[len(tokens)-1] != weth {
			return nil, remaining, MultiplexInvalidTokensError(tokens)
		}
		bought, err = f.multiHopSell(accessibleState, addr, multiHopSellParams{
			tokens:     tokens,
			sellAmount: values[2].(*big.Int),
			calls:      decodeMultiHopSubcalls(values[1]),
			taker:      caller,
			recipient:  addr,
		}, values[3].(*big.Int))
		if err == nil {
			err = f.payEth(accessibleState, weth, caller, bought)
		}

	case "multiplexMultiHopSellTokenForToken":
		bought, err = f.multiHopSell(accessibleState, addr, multiHopSellParams{
			tokens:     values[0].([]common.Address),
			sellAmount: values[2].(*big.Int),
			calls:      decodeMultiHopSubcalls(values[1]),
			taker:      caller,
			recipient:  caller,
		}, values[3].(*big.Int))

	case "_sellToLiquidityProvider":
		if err := contract.OnlySelf(caller, addr); err != nil {
			return nil, remaining, err
		}
		bought, err = f.sellToLiquidityProvider(accessibleState, addr,
			values[0].(common.Address), values[1].(common.Address), values[2].(*big.Int),
			values[3].([32]byte), values[4].([]byte),
			values[5].(common.Address), values[6].(bool), values[7].(common.Address))

	default:
		return nil, remaining, fmt.Errorf("%w: %s", contract.ErrInvalidInput, method.Name)
	}
	if err != nil {
		return nil, remaining, err
	}
	ret, err := ABI.PackOutput(method.Name, bought)
	return ret, remaining, err
}

func (f *Feature) payEth(env contract.AccessibleState, weth, to common.Address, amount *big.Int) error {
	if err := erc20.UnwrapETH(env, weth, amount); err != nil {
		return err
	}
	return f.spender.Transfer(env, contract.ETHAddress, to, amount)
}

// settle measures what recipient received while run executed.
func (f *Feature) settle(
	env contract.AccessibleState,
	self, taker, inputToken, outputToken, recipient common.Address,
	minBuyAmount *big.Int,
	run func() (*big.Int, error),
) (*big.Int, error) {
	before, err := f.spender.BalanceOf(env, outputToken, recipient)
	if err != nil {
		return nil, err
	}
	sold, err := run()
	if err != nil {
		return nil, err
	}
	after, err := f.spender.BalanceOf(env, outputToken, recipient)
	if err != nil {
		return nil, err
	}
	bought := new(big.Int).Sub(after, before)
	if bought.Sign() < 0 {
		bought.SetInt64(0)
	}
	if bought.Cmp(minBuyAmount) < 0 {
		return nil, MultiplexUnderboughtError(bought, minBuyAmount)
	}
	err = contract.EmitEvent(env.GetStateDB(), self, ABI, "MultiplexSell", taker, inputToken, outputToken, sold, bought)
	if err != nil {
		return nil, err
	}
	return bought, nil
}

func (f *Feature) batchSell(env contract.AccessibleState, self common.Address, p batchSellParams, minBuyAmount *big.Int) (*big.Int, error) {
	return f.settle(env, self, p.taker, p.inputToken, p.outputToken, p.recipient, minBuyAmount, func() (*big.Int, error) {
		sold, _, err := f.executeBatchSell(env, self, p)
		return sold, err
	})
}

func (f *Feature) multiHopSell(env contract.AccessibleState, self common.Address, p multiHopSellParams, minBuyAmount *big.Int) (*big.Int, error) {
	if len(p.tokens) < 2 {
		return nil, MultiplexInvalidTokensError(p.tokens)
	}
	input, output := p.tokens[0], p.tokens[len(p.tokens)-1]
	return f.settle(env, self, p.taker, input, output, p.recipient, minBuyAmount, func() (*big.Int, error) {
		if _, err := f.executeMultiHopSell(env, self, p); err != nil {
			return nil, err
		}
		return p.sellAmount, nil
	})
}

// moveInput sends amount of token to to, from the proxy's own balance or
// from the taker.
func (f *Feature) moveInput(env contract.AccessibleState, token, taker, to common.Address, amount *big.Int, useSelfBalance bool) error {
	if useSelfBalance {
		return f.spender.Transfer(env, token, to, amount)
	}
	return f.spender.TransferFrom(env, token, taker, to, amount)
}

// sellToLiquidityProvider trades through a bridge adapter from the proxy's
// frame and forwards the proceeds to recipient.
func (f *Feature) sellToLiquidityProvider(
	env contract.AccessibleState,
	self, inputToken, outputToken common.Address,
	sellAmount *big.Int,
	source [32]byte,
	bridgeData []byte,
	taker common.Address,
	useSelfBalance bool,
	recipient common.Address,
) (*big.Int, error) {
	if !useSelfBalance {
		if err := f.spender.TransferFrom(env, inputToken, taker, self, sellAmount); err != nil {
			return nil, err
		}
	}
	bought, err := f.bridges.Trade(env, bridge.Source(source), inputToken, outputToken, sellAmount, bridgeData)
	if err != nil {
		return nil, err
	}
	if recipient != self {
		if err := f.spender.Transfer(env, outputToken, recipient, bought); err != nil {
			return nil, err
		}
	}
	return bought, nil
}

func unpackFilled(a contract.ExtendedABI, method string, ret []byte) (*big.Int, *big.Int, error) {
	values, err := a.UnpackOutput(method, ret)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s output: %v", contract.ErrDelegatedFailure, method, err)
	}
	return values[0].(*big.Int), values[1].(*big.Int), nil
}

func unpackAmount(a contract.ExtendedABI, method string, ret []byte) (*big.Int, error) {
	values, err := a.UnpackOutput(method, ret)
	if err != nil {
		return nil, fmt.Errorf("%w: %s output: %v", contract.ErrDelegatedFailure, method, err)
	}
	return values[0].(*big.Int), nil
}
