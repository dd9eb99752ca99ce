// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transformers

import (
	_ "embed"
	"fmt"
	"math/big"
	"sort"

	"github.com/luxfi/exchangeproxy/bridge"
	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
)

var _ contract.StatefulPrecompiledContract = (*Deployer)(nil)

const GasDeploy uint64 = 32_000

// Catalog names of the built-in transformers.
const (
	WethTransformerName                = "WethTransformer"
	PayTakerTransformerName            = "PayTakerTransformer"
	AffiliateFeeTransformerName        = "AffiliateFeeTransformer"
	FillQuoteTransformerName           = "FillQuoteTransformer"
	PositiveSlippageFeeTransformerName = "PositiveSlippageFeeTransformer"
	LogMetadataTransformerName         = "LogMetadataTransformer"
)

//go:embed deployer.abi
var rawDeployerABI string

// DeployerABI is the transformer deployer ABI.
var DeployerABI = contract.ParseABI(rawDeployerABI)

var deploymentNoncePrefix = []byte("exchange.transformers.deploymentNonce")

// Factory builds a contract that will be deployed at address.
type Factory func(address common.Address) contract.StatefulPrecompiledContract

// Catalog returns factories for every built-in transformer.
func Catalog(exchange, weth common.Address, logger log.Logger) map[string]Factory {
	return map[string]Factory{
		WethTransformerName: func(a common.Address) contract.StatefulPrecompiledContract {
			return NewWethTransformer(a, weth, logger)
		},
		PayTakerTransformerName: func(a common.Address) contract.StatefulPrecompiledContract {
			return NewPayTakerTransformer(a, logger)
		},
		AffiliateFeeTransformerName: func(a common.Address) contract.StatefulPrecompiledContract {
			return NewAffiliateFeeTransformer(a, logger)
		},
		FillQuoteTransformerName: func(a common.Address) contract.StatefulPrecompiledContract {
			return NewFillQuoteTransformer(a, exchange, bridge.Default(), logger)
		},
		PositiveSlippageFeeTransformerName: func(a common.Address) contract.StatefulPrecompiledContract {
			return NewPositiveSlippageFeeTransformer(a, logger)
		},
		LogMetadataTransformerName: func(a common.Address) contract.StatefulPrecompiledContract {
			return NewLogMetadataTransformer(a, logger)
		},
	}
}

// Names returns the catalog names in a stable order.
func Names(catalog map[string]Factory) []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Deployer creates transformers from its catalog. A transformer's address is
// derived from the deployer address and the deployment nonce, which is what
// a transformation names.
type Deployer struct {
	authority common.Address
	catalog   map[string]Factory
	log       log.Logger
}

// NewDeployer returns a deployer only authority may deploy from.
func NewDeployer(authority common.Address, catalog map[string]Factory, logger log.Logger) *Deployer {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Deployer{authority: authority, catalog: catalog, log: logger}
}

// TransformerAddress returns the address of the transformer deployed by
// deployer with nonce.
func TransformerAddress(deployer common.Address, nonce uint32) common.Address {
	return contract.CreateAddress(deployer, uint64(nonce))
}

func (d *Deployer) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	method, values, err := DeployerABI.DecodeCall(input)
	if err != nil {
		return nil, suppliedGas, err
	}
	if err := contract.RequireNoValue(method, accessibleState); err != nil {
		return nil, suppliedGas, err
	}
	st := accessibleState.GetStateDB()

	switch method.Name {
	case "nonce":
		ret, err := DeployerABI.PackOutput(method.Name, new(big.Int).SetUint64(st.GetNonce(addr)))
		return ret, suppliedGas, err
	case "authority":
		ret, err := DeployerABI.PackOutput(method.Name, d.authority)
		return ret, suppliedGas, err
	case "toDeploymentNonce":
		target := values[0].(common.Address)
		nonce := contract.HashToBig(st.GetState(addr, contract.StorageKey(deploymentNoncePrefix, target[:])))
		ret, err := DeployerABI.PackOutput(method.Name, uint32(nonce.Uint64()))
		return ret, suppliedGas, err
	case "deploy":
	default:
		return nil, suppliedGas, fmt.Errorf("%w: %s", contract.ErrInvalidInput, method.Name)
	}

	if readOnly {
		return nil, suppliedGas, contract.ErrWriteProtection
	}
	remaining, err := contract.DeductGas(suppliedGas, GasDeploy)
	if err != nil {
		return nil, 0, err
	}
	if caller != d.authority {
		return nil, remaining, contract.NewRevert(DeployerABI, contract.ErrValidation, "OnlyAuthorityError", caller, d.authority)
	}
	name := values[0].(string)
	factory, ok := d.catalog[name]
	if !ok {
		return nil, remaining, contract.NewRevert(DeployerABI, contract.ErrValidation, "UnknownTransformerError", name)
	}
	nonce := st.GetNonce(addr)
	deployed, err := accessibleState.Create(factory(contract.CreateAddress(addr, nonce)))
	if err != nil {
		return nil, remaining, err
	}
	st.SetState(addr, contract.StorageKey(deploymentNoncePrefix, deployed[:]), contract.BigToHash(new(big.Int).SetUint64(nonce)))

	d.log.Info("transformer deployed",
		"name", name,
		"address", deployed,
		"nonce", nonce,
	)
	if err := contract.EmitEvent(st, addr, DeployerABI, "Deployed", deployed, new(big.Int).SetUint64(nonce), caller, name); err != nil {
		return nil, remaining, err
	}
	ret, err := DeployerABI.PackOutput(method.Name, deployed)
	return ret, remaining, err
}
