// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package transformers holds the steps a transform pipeline runs. Each
// transformer is deployed by the Deployer and only runs through a delegate
// call from a flash wallet, so it moves the wallet's balances.
package transformers

import (
	_ "embed"
	"fmt"
	"math/big"

	"github.com/luxfi/crypto"
	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/erc20"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

// GasTransform is charged by every transformer on entry.
const GasTransform uint64 = 5_000

// Error codes of InvalidTransformDataError.
const (
	InvalidTokens uint8 = iota
	InvalidArrayLength
	InvalidData
)

var (
	//go:embed contract.abi
	rawABI string
	//go:embed data.abi
	rawDataABI string
)

var (
	// ABI is the transformer call interface and errors.
	ABI = contract.ParseABI(rawABI)
	// DataABI describes the data layout of each built-in transformer.
	DataABI = contract.ParseABI(rawDataABI)
)

// Success is returned by a transformer that completed.
var Success = func() [4]byte {
	var s [4]byte
	copy(s[:], crypto.Keccak256([]byte("TRANSFORMER_SUCCESS"))[:4])
	return s
}()

// Context is handed to every transformer.
type Context struct {
	Sender    common.Address
	Recipient common.Address
	Data      []byte
}

// EncodeCall packs a transform call.
func EncodeCall(ctx Context) ([]byte, error) {
	return ABI.Pack("transform", ctx)
}

// IsSuccess reports whether ret is the encoded success value.
func IsSuccess(ret []byte) bool {
	return len(ret) == 32 && [4]byte(ret[:4]) == Success
}

// Func is the body of one transformer. env runs in the flash wallet's
// context: addr is the wallet.
type Func func(env contract.AccessibleState, addr common.Address, ctx Context) error

// Transformer is a deployed transformer instance.
type Transformer struct {
	name    string
	address common.Address
	run     Func
	quote   *fillQuote
	log     log.Logger
}

func newTransformer(name string, address common.Address, run Func, logger log.Logger) *Transformer {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Transformer{name: name, address: address, run: run, log: logger}
}

// Name returns the catalog name of t.
func (t *Transformer) Name() string { return t.name }

// Address returns where t is deployed.
func (t *Transformer) Address() common.Address { return t.address }

func (t *Transformer) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if addr == t.address {
		return nil, suppliedGas, InvalidExecutionContextError(addr, t.address)
	}
	remaining, err := contract.DeductGas(suppliedGas, GasTransform)
	if err != nil {
		return nil, 0, err
	}
	if readOnly {
		return nil, remaining, contract.ErrWriteProtection
	}
	method, values, err := ABI.DecodeCall(input)
	if err != nil {
		return nil, remaining, err
	}
	if method.Name == "_fillBridgeOrder" {
		fq := t.quote
		if fq == nil {
			return nil, remaining, fmt.Errorf("%w: %s has no bridge orders", contract.ErrInvalidInput, t.name)
		}
		order := *abi.ConvertType(values[2], new(BridgeOrder)).(*BridgeOrder)
		bought, err := fq.fillBridgeOrder(accessibleState, values[0].(common.Address), values[1].(common.Address), order, values[3].(*big.Int))
		if err != nil {
			return nil, remaining, err
		}
		ret, err := ABI.PackOutput(method.Name, bought)
		return ret, remaining, err
	}

	ctx := *abi.ConvertType(values[0], new(Context)).(*Context)
	if err := t.run(accessibleState, addr, ctx); err != nil {
		t.log.Debug("transformer failed", "transformer", t.name, "wallet", addr, "err", err)
		return nil, remaining, err
	}
	ret, err := ABI.PackOutput("transform", Success)
	return ret, remaining, err
}

// balanceOf returns owner's balance of token, reading native value for the
// ETH sentinel.
func balanceOf(env contract.AccessibleState, token, owner common.Address) (*big.Int, error) {
	return erc20.Spender{}.BalanceOf(env, token, owner)
}

// resolveAmount maps MaxUint256 to the wallet's whole balance.
func resolveAmount(env contract.AccessibleState, token, wallet common.Address, amount *big.Int) (*big.Int, error) {
	if amount.Cmp(contract.MaxUint256) != 0 {
		return amount, nil
	}
	return balanceOf(env, token, wallet)
}

func decodeData(name string, data []byte) ([]interface{}, error) {
	values, err := DataABI.Methods[name].Inputs.Unpack(data)
	if err != nil {
		return nil, InvalidTransformDataError(InvalidData, data)
	}
	return values, nil
}

// EncodeData packs data for the named built-in transformer layout.
func EncodeData(name string, args ...interface{}) ([]byte, error) {
	m, ok := DataABI.Methods[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown transformer data %q", contract.ErrInvalidInput, name)
	}
	return m.Inputs.Pack(args...)
}

func InvalidExecutionContextError(actual, transformer common.Address) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "InvalidExecutionContextError", actual, transformer)
}

func InvalidTransformDataError(code uint8, data []byte) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "InvalidTransformDataError", code, data)
}

func IncompleteFillSellQuoteError(sellToken common.Address, sold, sellAmount *big.Int) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "IncompleteFillSellQuoteError", sellToken, sold, sellAmount)
}

func IncompleteFillBuyQuoteError(buyToken common.Address, bought, buyAmount *big.Int) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "IncompleteFillBuyQuoteError", buyToken, bought, buyAmount)
}

func InsufficientProtocolFeeError(available, required *big.Int) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "InsufficientProtocolFeeError", available, required)
}
