// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metatx executes calls signed by one account and relayed by another.
// The signed call is translated into the matching internal entry point with
// the signer as taker, then dispatched back through the proxy.
package metatx

import (
	_ "embed"
	"fmt"
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/nativeorders"
	"github.com/luxfi/exchangeproxy/proxy"
	"github.com/luxfi/exchangeproxy/reentrancy"
	"github.com/luxfi/exchangeproxy/signature"
	"github.com/luxfi/exchangeproxy/transformerc20"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

var _ contract.Feature = (*Feature)(nil)

// Gas costs
const (
	GasExecute uint64 = 40_000
	GasRead    uint64 = 2_600
)

//go:embed contract.abi
var rawABI string

// ABI is the meta-transactions feature ABI.
var ABI = contract.ParseABI(rawABI)

var executedPrefix = []byte("exchange.metatx.executedBlock")

var (
	transformERC20Selector = transformerc20.ABI.Selector("transformERC20")
	fillLimitOrderSelector = nativeorders.ABI.Selector("fillLimitOrder")
	fillRfqOrderSelector   = nativeorders.ABI.Selector("fillRfqOrder")
)

// Feature is the meta-transactions feature.
type Feature struct {
	address common.Address
	spender contract.TokenSpender
	log     log.Logger
}

// New returns the feature deployed at address.
func New(address common.Address, spender contract.TokenSpender, logger log.Logger) *Feature {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Feature{address: address, spender: spender, log: logger}
}

func (*Feature) FeatureName() string { return "MetaTransactions" }

func (*Feature) FeatureVersion() *big.Int { return contract.EncodeVersion(1, 2, 0) }

func (f *Feature) Address() common.Address { return f.address }

func (*Feature) Selectors() [][4]byte { return ABI.MethodSelectors("migrate") }

// ExecutedBlock returns the block a meta-transaction hash executed in, zero
// when it never did.
func ExecutedBlock(st contract.StateDB, self common.Address, hash common.Hash) *big.Int {
	return contract.HashToBig(st.GetState(self, contract.StorageKey(executedPrefix, hash[:])))
}

func setExecutedBlock(st contract.StateDB, self common.Address, hash common.Hash, block *big.Int) {
	st.SetState(self, contract.StorageKey(executedPrefix, hash[:]), contract.BigToHash(block))
}

func (f *Feature) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if err := contract.OnlyDelegateCall(addr, f.address, "MetaTransactions_Feat"); err != nil {
		return nil, suppliedGas, err
	}
	method, values, err := ABI.DecodeCall(input)
	if err != nil {
		return nil, suppliedGas, err
	}
	if err := contract.RequireNoValue(method, accessibleState); err != nil {
		return nil, suppliedGas, err
	}
	st := accessibleState.GetStateDB()
	domain := signature.NewDomain(accessibleState.GetChainID(), addr)

	switch method.Name {
	case "getMetaTransactionHash", "getMetaTransactionExecutedBlock", "getMetaTransactionHashExecutedBlock":
		remaining, err := contract.DeductGas(suppliedGas, GasRead)
		if err != nil {
			return nil, 0, err
		}
		var out interface{}
		switch method.Name {
		case "getMetaTransactionHash":
			mtx := decodeMetaTransaction(values[0])
			out = mtx.Hash(domain)
		case "getMetaTransactionExecutedBlock":
			mtx := decodeMetaTransaction(values[0])
			out = ExecutedBlock(st, addr, mtx.Hash(domain))
		default:
			out = ExecutedBlock(st, addr, values[0].([32]byte))
		}
		ret, err := ABI.PackOutput(method.Name, out)
		return ret, remaining, err
	}
	if readOnly {
		return nil, suppliedGas, contract.ErrWriteProtection
	}

	switch method.Name {
	case "migrate":
		if err := proxy.RegisterSelectors(accessibleState, addr, f); err != nil {
			return nil, suppliedGas, err
		}
		return proxy.MigrateSuccessOutput(), suppliedGas, nil

	case "executeMetaTransaction", "batchExecuteMetaTransactions":
		remaining, err := contract.DeductGas(suppliedGas, GasExecute)
		if err != nil {
			return nil, 0, err
		}
		release, err := reentrancy.Enter(st, addr, ABI.Selector(method.Name), reentrancy.FlagMetaTransaction, 0)
		if err != nil {
			return nil, remaining, err
		}
		defer release()

		var out interface{}
		if method.Name == "executeMetaTransaction" {
			mtx := decodeMetaTransaction(values[0])
			out, err = f.execute(accessibleState, caller, addr, domain, mtx, signature.FromABI(values[1]))
		} else {
			mtxs, sigs := decodeMetaTransactions(values[0]), signature.FromABISlice(values[1])
			if len(mtxs) != len(sigs) {
				return nil, remaining, InvalidMetaTransactionsArrayLengthsError(len(mtxs), len(sigs))
			}
			results := make([][]byte, len(mtxs))
			for i := range mtxs {
				if results[i], err = f.execute(accessibleState, caller, addr, domain, mtxs[i], sigs[i]); err != nil {
					break
				}
			}
			out = results
		}
		if err != nil {
			return nil, remaining, err
		}
		if err := f.refundAttachedValue(accessibleState, caller, addr); err != nil {
			return nil, remaining, err
		}
		ret, err := ABI.PackOutput(method.Name, out)
		return ret, remaining, err
	}
	return nil, suppliedGas, fmt.Errorf("%w: %s", contract.ErrInvalidInput, method.Name)
}

// execute validates mtx, consumes its hash and runs the translated call.
func (f *Feature) execute(
	env contract.AccessibleState,
	sender, self common.Address,
	domain signature.Domain,
	mtx MetaTransaction,
	sig signature.Signature,
) ([]byte, error) {
	st := env.GetStateDB()
	hash := mtx.Hash(domain)
	if err := f.validate(env, sender, self, hash, &mtx, sig); err != nil {
		return nil, err
	}

	block := env.GetBlockContext().Number()
	setExecutedBlock(st, self, hash, block)

	if mtx.FeeAmount != nil && mtx.FeeAmount.Sign() > 0 {
		if err := f.spender.TransferFrom(env, mtx.FeeToken, mtx.Signer, sender, mtx.FeeAmount); err != nil {
			return nil, err
		}
	}

	sel, callData, err := translate(hash, &mtx, sender)
	if err != nil {
		return nil, err
	}
	value, err := contract.ToUint256(mtx.Value)
	if err != nil {
		return nil, err
	}
	ret, err := env.Call(self, callData, value)
	if err != nil {
		f.log.Debug("meta-transaction call failed", "hash", hash, "signer", mtx.Signer, "err", err)
		return nil, MetaTransactionCallFailedError(hash, callData, err)
	}

	f.log.Debug("meta-transaction executed",
		"hash", hash,
		"signer", mtx.Signer,
		"sender", sender,
		"block", block,
	)
	if err := contract.EmitEvent(st, self, ABI, "MetaTransactionExecuted", hash, sel, mtx.Signer, sender); err != nil {
		return nil, err
	}
	return ret, nil
}

func (f *Feature) validate(
	env contract.AccessibleState,
	sender, self common.Address,
	hash common.Hash,
	mtx *MetaTransaction,
	sig signature.Signature,
) error {
	if mtx.Sender != (common.Address{}) && mtx.Sender != sender {
		return MetaTransactionWrongSenderError(hash, sender, mtx.Sender)
	}
	now := env.GetBlockContext().Timestamp()
	if mtx.ExpirationTimeSeconds.Cmp(new(big.Int).SetUint64(now)) <= 0 {
		return MetaTransactionExpiredError(hash, now, mtx.ExpirationTimeSeconds)
	}
	gasPrice := env.GetTxContext().GasPrice
	if gasPrice.Cmp(mtx.MinGasPrice) < 0 || gasPrice.Cmp(mtx.MaxGasPrice) > 0 {
		return MetaTransactionGasPriceError(hash, gasPrice, mtx.MinGasPrice, mtx.MaxGasPrice)
	}
	balance := env.GetStateDB().GetBalance(self).ToBig()
	if mtx.Value.Cmp(balance) > 0 {
		return MetaTransactionInsufficientEthError(hash, balance, mtx.Value)
	}
	if err := signature.Validate(env, self, hash, sig, mtx.Signer); err != nil {
		return MetaTransactionInvalidSignatureError(hash, mtx.Signer, err)
	}
	if executed := ExecutedBlock(env.GetStateDB(), self, hash); executed.Sign() != 0 {
		return MetaTransactionAlreadyExecutedError(hash, executed)
	}
	return nil
}

// translate rewrites a signed public call into the internal call acting for
// the signer.
func translate(hash common.Hash, mtx *MetaTransaction, sender common.Address) ([4]byte, []byte, error) {
	sel, args, err := contract.SplitSelector(mtx.CallData)
	if err != nil {
		return sel, nil, MetaTransactionUnsupportedFunctionError(hash, sel)
	}
	switch sel {
	case transformERC20Selector:
		values, err := transformerc20.ABI.UnpackInput("transformERC20", args, false)
		if err != nil {
			return sel, nil, err
		}
		call, err := transformerc20.ABI.Pack("_transformERC20", transformerc20.Args{
			Taker:                mtx.Signer,
			InputToken:           values[0].(common.Address),
			OutputToken:          values[1].(common.Address),
			InputTokenAmount:     values[2].(*big.Int),
			MinOutputTokenAmount: values[3].(*big.Int),
			Transformations:      *abi.ConvertType(values[4], new([]transformerc20.Transformation)).(*[]transformerc20.Transformation),
			Recipient:            mtx.Signer,
		})
		return sel, call, err

	case fillLimitOrderSelector:
		values, err := nativeorders.ABI.UnpackInput("fillLimitOrder", args, false)
		if err != nil {
			return sel, nil, err
		}
		call, err := nativeorders.ABI.Pack("_fillLimitOrder", values[0], values[1], values[2], mtx.Signer, sender)
		return sel, call, err

	case fillRfqOrderSelector:
		values, err := nativeorders.ABI.UnpackInput("fillRfqOrder", args, false)
		if err != nil {
			return sel, nil, err
		}
		call, err := nativeorders.ABI.Pack("_fillRfqOrder", values[0], values[1], values[2], mtx.Signer, false, mtx.Signer)
		return sel, call, err
	}
	return sel, nil, MetaTransactionUnsupportedFunctionError(hash, sel)
}

// refundAttachedValue returns whatever is left of the caller's attached value.
func (f *Feature) refundAttachedValue(env contract.AccessibleState, caller, self common.Address) error {
	if caller == self || reentrancy.Held(env.GetStateDB(), self, reentrancy.FlagBatchMultiplex) {
		return nil
	}
	attached := env.GetCallValue().ToBig()
	if attached.Sign() == 0 {
		return nil
	}
	refund := contract.MinBig(attached, env.GetStateDB().GetBalance(self).ToBig())
	return f.spender.Transfer(env, contract.ETHAddress, caller, refund)
}
