// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package modules

import (
	"bytes"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/geth/common"
)

// Module describes one exchange feature implementation: where it is deployed,
// the code that runs there, and how its config is built and applied.
type Module struct {
	// ConfigKey is the key used in config files to specify this module's config.
	ConfigKey string
	// Address is the implementation address.
	Address common.Address
	// Contract is the implementation run at Address.
	Contract contract.Feature
	// Configurator builds and applies the module config.
	Configurator contract.Configurator
	// Bootstrap marks the features the proxy installs at construction.
	Bootstrap bool
}

type moduleArray []Module

func (u moduleArray) Len() int {
	return len(u)
}

func (u moduleArray) Swap(i, j int) {
	u[i], u[j] = u[j], u[i]
}

func (m moduleArray) Less(i, j int) bool {
	return bytes.Compare(m[i].Address.Bytes(), m[j].Address.Bytes()) < 0
}
