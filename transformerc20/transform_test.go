// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transformerc20_test

import (
	"math/big"
	"testing"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/host"
	"github.com/luxfi/exchangeproxy/migration"
	"github.com/luxfi/exchangeproxy/transformerc20"
	"github.com/luxfi/exchangeproxy/transformers"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

var (
	owner = common.HexToAddress("0x0f0f")
	taker = common.HexToAddress("0x7a4e")
)

func deploy(t *testing.T) *migration.Deployment {
	d, err := migration.Deploy(migration.Config{Owner: owner})
	require.NoError(t, err)
	require.NoError(t, d.Fund(taker, big.NewInt(1_000)))
	return d
}

func transformation(t *testing.T, d *migration.Deployment, name, layout string, args ...interface{}) transformerc20.Transformation {
	nonce, ok := d.TransformerNonce(name)
	require.True(t, ok, name)
	data, err := transformers.EncodeData(layout, args...)
	require.NoError(t, err)
	return transformerc20.Transformation{DeploymentNonce: nonce, Data: data}
}

func wrapAndPay(t *testing.T, d *migration.Deployment, amount int64) []transformerc20.Transformation {
	return []transformerc20.Transformation{
		transformation(t, d, transformers.WethTransformerName, "weth", contract.ETHAddress, big.NewInt(amount)),
		transformation(t, d, transformers.PayTakerTransformerName, "payTaker", []common.Address{d.WETH}, []*big.Int{}),
	}
}

func transformERC20(t *testing.T, d *migration.Deployment, value int64, input, output common.Address, amount, min int64, ts []transformerc20.Transformation) *host.Receipt {
	data, err := transformerc20.ABI.Pack("transformERC20", input, output, big.NewInt(amount), big.NewInt(min), ts)
	require.NoError(t, err)
	return d.CallProxy(taker, data, big.NewInt(value))
}

func TestMigrationInstallsWalletAndDeployer(t *testing.T) {
	d := deploy(t)
	st := d.Host.StateDB()
	require.NotEqual(t, common.Address{}, d.TransformWallet)
	require.Equal(t, d.TransformWallet, transformerc20.TransformWallet(st, d.Proxy))
	require.Equal(t, d.TransformerDeployer, transformerc20.TransformerDeployer(st, d.Proxy))

	for name, tr := range d.Transformers {
		require.Equal(t, transformers.TransformerAddress(d.TransformerDeployer, tr.Nonce), tr.Address, name)
		require.True(t, d.Host.HasCode(tr.Address), name)
	}
}

func TestWrapETH(t *testing.T) {
	d := deploy(t)

	r := transformERC20(t, d, 100, contract.ETHAddress, d.WETH, 100, 100, wrapAndPay(t, d, 100))
	require.True(t, r.Succeeded(), "%v", r.Err)
	out, err := transformerc20.ABI.UnpackOutput("transformERC20", r.ReturnData)
	require.NoError(t, err)
	require.Equal(t, int64(100), out[0].(*big.Int).Int64())

	require.Equal(t, int64(100), d.Balance(d.WETH, taker).Int64())
	require.Equal(t, int64(900), d.Balance(contract.ETHAddress, taker).Int64())
	require.Zero(t, d.Balance(d.WETH, d.TransformWallet).Sign())
	require.Zero(t, d.Balance(contract.ETHAddress, d.TransformWallet).Sign())
}

func TestUnwrapWETH(t *testing.T) {
	d := deploy(t)
	require.NoError(t, d.Mint(d.WETH, taker, big.NewInt(50)))
	require.NoError(t, d.Approve(d.WETH, taker, d.Proxy, contract.MaxUint256))

	ts := []transformerc20.Transformation{
		transformation(t, d, transformers.WethTransformerName, "weth", d.WETH, contract.MaxUint256),
		transformation(t, d, transformers.PayTakerTransformerName, "payTaker", []common.Address{contract.ETHAddress}, []*big.Int{}),
	}
	r := transformERC20(t, d, 0, d.WETH, contract.ETHAddress, 50, 50, ts)
	require.True(t, r.Succeeded(), "%v", r.Err)
	require.Zero(t, d.Balance(d.WETH, taker).Sign())
	require.Equal(t, int64(1_050), d.Balance(contract.ETHAddress, taker).Int64())
}

func TestInsufficientOutputRollsBackEverything(t *testing.T) {
	d := deploy(t)
	wallet := d.TransformWallet

	r := transformERC20(t, d, 100, contract.ETHAddress, d.WETH, 100, 101, wrapAndPay(t, d, 100))
	require.False(t, r.Succeeded())
	require.True(t, contract.IsRevert(r.Err, "InsufficientOutputAmountError"), "%v", r.Err)

	values, err := transformerc20.ABI.UnpackError("InsufficientOutputAmountError", r.RevertData)
	require.NoError(t, err)
	require.Equal(t, d.WETH, values[0].(common.Address))
	require.Equal(t, int64(100), values[1].(*big.Int).Int64())
	require.Equal(t, int64(101), values[2].(*big.Int).Int64())

	require.Equal(t, int64(1_000), d.Balance(contract.ETHAddress, taker).Int64())
	require.Zero(t, d.Balance(d.WETH, taker).Sign())
	require.Zero(t, d.Balance(d.WETH, wallet).Sign())
	require.Zero(t, d.Balance(contract.ETHAddress, wallet).Sign())
	require.Zero(t, d.Balance(contract.ETHAddress, d.Proxy).Sign())
}

func TestTransformerFailure(t *testing.T) {
	d := deploy(t)
	token, err := d.DeployToken("Token", "TKN", 18)
	require.NoError(t, err)

	ts := []transformerc20.Transformation{
		transformation(t, d, transformers.WethTransformerName, "weth", token, big.NewInt(1)),
	}
	r := transformERC20(t, d, 100, contract.ETHAddress, d.WETH, 100, 0, ts)
	require.False(t, r.Succeeded())
	require.True(t, contract.IsRevert(r.Err, "TransformerFailedError"), "%v", r.Err)
	require.True(t, contract.IsRevert(r.Err, "InvalidTransformDataError"), "%v", r.Err)
	require.Equal(t, int64(1_000), d.Balance(contract.ETHAddress, taker).Int64())
}

func TestWalletOnlyOwner(t *testing.T) {
	d := deploy(t)
	input, err := transformerc20.WalletABI.Pack("executeCall", taker, []byte{}, big.NewInt(0))
	require.NoError(t, err)

	r := d.Call(taker, d.TransformWallet, input, nil)
	require.False(t, r.Succeeded())
	require.True(t, contract.IsRevert(r.Err, "OnlyOwnerError"), "%v", r.Err)

	input, err = transformerc20.WalletABI.Pack("owner")
	require.NoError(t, err)
	view := d.Host.Simulate(&host.Message{From: taker, To: d.TransformWallet, Data: input})
	require.True(t, view.Succeeded(), "%v", view.Err)
	out, err := transformerc20.WalletABI.UnpackOutput("owner", view.ReturnData)
	require.NoError(t, err)
	require.Equal(t, d.Proxy, out[0].(common.Address))
}

func TestAdminFunctionsAreOwnerOnly(t *testing.T) {
	d := deploy(t)
	signer := common.HexToAddress("0x5191")

	input, err := transformerc20.ABI.Pack("setQuoteSigner", signer)
	require.NoError(t, err)
	r := d.CallProxy(taker, input, nil)
	require.False(t, r.Succeeded())
	require.True(t, contract.IsRevert(r.Err, "OnlyOwnerError"), "%v", r.Err)

	r = d.CallProxy(owner, input, nil)
	require.True(t, r.Succeeded(), "%v", r.Err)
	require.Equal(t, signer, transformerc20.QuoteSigner(d.Host.StateDB(), d.Proxy))

	input, err = transformerc20.ABI.Pack("createTransformWallet")
	require.NoError(t, err)
	r = d.CallProxy(owner, input, nil)
	require.True(t, r.Succeeded(), "%v", r.Err)
	replaced := transformerc20.TransformWallet(d.Host.StateDB(), d.Proxy)
	require.NotEqual(t, d.TransformWallet, replaced)
	require.True(t, d.Host.HasCode(replaced))
}

func TestNoSelfOnlyEntryFromOutside(t *testing.T) {
	d := deploy(t)
	args := transformerc20.Args{
		Taker:                owner,
		InputToken:           contract.ETHAddress,
		OutputToken:          d.WETH,
		InputTokenAmount:     new(big.Int),
		MinOutputTokenAmount: new(big.Int),
		Transformations:      []transformerc20.Transformation{},
		Recipient:            taker,
	}
	input, err := transformerc20.ABI.Pack("_transformERC20", args)
	require.NoError(t, err)
	r := d.CallProxy(taker, input, nil)
	require.False(t, r.Succeeded())
	require.True(t, contract.IsRevert(r.Err, "OnlyCallableBySelfError"), "%v", r.Err)
}
