// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package transformerc20 runs transform pipelines: the taker's input is moved
// into a flash wallet, each transformer runs against the wallet in order, and
// the recipient's output balance must grow by at least the requested minimum.
package transformerc20

import (
	_ "embed"
	"fmt"
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/proxy"
	"github.com/luxfi/exchangeproxy/transformers"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

var _ contract.Feature = (*Feature)(nil)

// Gas costs
const (
	GasTransform uint64 = 25_000
	GasAdmin     uint64 = 22_100
	GasRead      uint64 = 2_100
)

//go:embed contract.abi
var rawABI string

// ABI is the transform feature ABI.
var ABI = contract.ParseABI(rawABI)

var (
	walletSlot      = contract.StorageKey([]byte("exchange.transformerc20.wallet"))
	deployerSlot    = contract.StorageKey([]byte("exchange.transformerc20.deployer"))
	quoteSignerSlot = contract.StorageKey([]byte("exchange.transformerc20.quoteSigner"))
)

// Transformation names a deployed transformer and its data.
type Transformation struct {
	DeploymentNonce uint32
	Data            []byte
}

// Args is a full pipeline request.
type Args struct {
	Taker                common.Address
	InputToken           common.Address
	OutputToken          common.Address
	InputTokenAmount     *big.Int
	MinOutputTokenAmount *big.Int
	Transformations      []Transformation
	UseSelfBalance       bool
	Recipient            common.Address
}

// Feature is the transform pipeline feature.
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

func (*Feature) FeatureName() string { return "TransformERC20" }

func (*Feature) FeatureVersion() *big.Int { return contract.EncodeVersion(0, 4, 0) }

func (f *Feature) Address() common.Address { return f.address }

func (*Feature) Selectors() [][4]byte { return ABI.MethodSelectors("migrate") }

// TransformWallet returns the proxy's flash wallet.
func TransformWallet(st contract.StateDB, self common.Address) common.Address {
	return contract.HashToAddress(st.GetState(self, walletSlot))
}

// TransformerDeployer returns the deployer transformers are resolved against.
func TransformerDeployer(st contract.StateDB, self common.Address) common.Address {
	return contract.HashToAddress(st.GetState(self, deployerSlot))
}

// QuoteSigner returns the registered quote signer.
func QuoteSigner(st contract.StateDB, self common.Address) common.Address {
	return contract.HashToAddress(st.GetState(self, quoteSignerSlot))
}

func (f *Feature) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	if err := contract.OnlyDelegateCall(addr, f.address, "TransformERC20_Feat"); err != nil {
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

	switch method.Name {
	case "getTransformerDeployer", "getTransformWallet", "getQuoteSigner":
		remaining, err := contract.DeductGas(suppliedGas, GasRead)
		if err != nil {
			return nil, 0, err
		}
		var out common.Address
		switch method.Name {
		case "getTransformerDeployer":
			out = TransformerDeployer(st, addr)
		case "getTransformWallet":
			out = TransformWallet(st, addr)
		default:
			out = QuoteSigner(st, addr)
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

	case "createTransformWallet", "setTransformerDeployer", "setQuoteSigner":
		remaining, err := contract.DeductGas(suppliedGas, GasAdmin)
		if err != nil {
			return nil, 0, err
		}
		if err := contract.OnlyOwner(caller, proxy.Owner(st, addr)); err != nil {
			return nil, remaining, err
		}
		switch method.Name {
		case "createTransformWallet":
			wallet, err := accessibleState.Create(NewFlashWallet(addr, f.log))
			if err != nil {
				return nil, remaining, err
			}
			st.SetState(addr, walletSlot, contract.AddressToHash(wallet))
			f.log.Info("transform wallet created", "wallet", wallet)
			ret, err := ABI.PackOutput(method.Name, wallet)
			return ret, remaining, err
		case "setTransformerDeployer":
			deployer := values[0].(common.Address)
			st.SetState(addr, deployerSlot, contract.AddressToHash(deployer))
			return nil, remaining, contract.EmitEvent(st, addr, ABI, "TransformerDeployerUpdated", deployer)
		default:
			signer := values[0].(common.Address)
			st.SetState(addr, quoteSignerSlot, contract.AddressToHash(signer))
			return nil, remaining, contract.EmitEvent(st, addr, ABI, "QuoteSignerUpdated", signer)
		}

	case "transformERC20", "_transformERC20":
		remaining, err := contract.DeductGas(suppliedGas, GasTransform)
		if err != nil {
			return nil, 0, err
		}
		var args Args
		if method.Name == "_transformERC20" {
			if err := contract.OnlySelf(caller, addr); err != nil {
				return nil, remaining, err
			}
			args = *abi.ConvertType(values[0], new(Args)).(*Args)
		} else {
			args = Args{
				Taker:                caller,
				InputToken:           values[0].(common.Address),
				OutputToken:          values[1].(common.Address),
				InputTokenAmount:     values[2].(*big.Int),
				MinOutputTokenAmount: values[3].(*big.Int),
				Transformations:      *abi.ConvertType(values[4], new([]Transformation)).(*[]Transformation),
				Recipient:            caller,
			}
		}
		out, err := f.transform(accessibleState, caller, addr, args)
		if err != nil {
			return nil, remaining, err
		}
		ret, err := ABI.PackOutput(method.Name, out)
		return ret, remaining, err
	}
	return nil, suppliedGas, fmt.Errorf("%w: %s", contract.ErrInvalidInput, method.Name)
}

// transform runs the pipeline. Every step writes in the calling frame, so any
// error discards all of them.
func (f *Feature) transform(env contract.AccessibleState, sender, self common.Address, args Args) (*big.Int, error) {
	st := env.GetStateDB()
	value := env.GetCallValue().ToBig()

	amount := args.InputTokenAmount
	if amount.Cmp(contract.MaxUint256) == 0 {
		var err error
		if amount, err = f.wholeBalance(env, self, args, value); err != nil {
			return nil, err
		}
	}

	wallet := TransformWallet(st, self)
	if wallet == (common.Address{}) {
		return nil, contract.NewRevert(ABI, contract.ErrStateConflict, "NoTransformWalletError")
	}
	deployer := TransformerDeployer(st, self)

	before, err := f.spender.BalanceOf(env, args.OutputToken, args.Recipient)
	if err != nil {
		return nil, err
	}

	if value.Sign() > 0 {
		if err := f.spender.Transfer(env, contract.ETHAddress, wallet, value); err != nil {
			return nil, err
		}
	}
	if args.InputToken != contract.ETHAddress {
		if args.UseSelfBalance {
			err = f.spender.Transfer(env, args.InputToken, wallet, amount)
		} else {
			err = f.spender.TransferFrom(env, args.InputToken, args.Taker, wallet, amount)
		}
		if err != nil {
			return nil, err
		}
	}

	for i, t := range args.Transformations {
		transformer := transformers.TransformerAddress(deployer, t.DeploymentNonce)
		if err := f.runTransformer(env, wallet, transformer, transformers.Context{
			Sender:    sender,
			Recipient: args.Recipient,
			Data:      t.Data,
		}); err != nil {
			f.log.Debug("transformation failed", "index", i, "transformer", transformer, "err", err)
			return nil, err
		}
	}

	after, err := f.spender.BalanceOf(env, args.OutputToken, args.Recipient)
	if err != nil {
		return nil, err
	}
	if after.Cmp(before) < 0 {
		return nil, contract.NewRevert(ABI, contract.ErrValidation, "NegativeTransformERC20OutputError",
			args.OutputToken, new(big.Int).Sub(before, after))
	}
	output := new(big.Int).Sub(after, before)
	if output.Cmp(args.MinOutputTokenAmount) < 0 {
		return nil, InsufficientOutputAmountError(args.OutputToken, output, args.MinOutputTokenAmount)
	}

	f.log.Debug("transformed erc20",
		"taker", args.Taker,
		"inputToken", args.InputToken,
		"outputToken", args.OutputToken,
		"input", amount,
		"output", output,
	)
	err = contract.EmitEvent(st, self, ABI, "TransformedERC20", args.Taker, args.InputToken, args.OutputToken, amount, output)
	if err != nil {
		return nil, err
	}
	return output, nil
}

func (f *Feature) wholeBalance(env contract.AccessibleState, self common.Address, args Args, value *big.Int) (*big.Int, error) {
	if args.InputToken == contract.ETHAddress {
		return value, nil
	}
	if args.UseSelfBalance {
		return f.spender.BalanceOf(env, args.InputToken, self)
	}
	balance, err := f.spender.BalanceOf(env, args.InputToken, args.Taker)
	if err != nil {
		return nil, err
	}
	allowance, err := f.spender.Allowance(env, args.InputToken, args.Taker, self)
	if err != nil {
		return nil, err
	}
	return contract.MinBig(balance, allowance), nil
}

func (f *Feature) runTransformer(env contract.AccessibleState, wallet, transformer common.Address, ctx transformers.Context) error {
	call, err := transformers.EncodeCall(ctx)
	if err != nil {
		return err
	}
	input, err := WalletABI.Pack("executeDelegateCall", transformer, call)
	if err != nil {
		return err
	}
	ret, err := env.Call(wallet, input, nil)
	if err != nil {
		return TransformerFailedError(transformer, ctx.Data, contract.RevertData(err)).WithCause(err)
	}
	values, err := WalletABI.UnpackOutput("executeDelegateCall", ret)
	if err != nil {
		return TransformerFailedError(transformer, ctx.Data, ret)
	}
	if result := values[0].([]byte); !transformers.IsSuccess(result) {
		return TransformerFailedError(transformer, ctx.Data, result)
	}
	return nil
}

func InsufficientOutputAmountError(token common.Address, output, min *big.Int) error {
	return contract.NewRevert(ABI, contract.ErrValidation, "InsufficientOutputAmountError", token, output, min)
}

func TransformerFailedError(transformer common.Address, data, result []byte) *contract.Revert {
	return contract.NewRevert(ABI, contract.ErrDelegatedFailure, "TransformerFailedError", transformer, data, result)
}
