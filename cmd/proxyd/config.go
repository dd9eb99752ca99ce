// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/luxfi/exchangeproxy/migration"
	"github.com/luxfi/exchangeproxy/precompileconfig"
	"github.com/luxfi/geth/common"
)

var errInvalidOwner = errors.New("PROXYD_OWNER must be a hex address")

// Config is read from the environment.
type Config struct {
	ListenAddr      string        `env:"PROXYD_LISTEN" envDefault:":8080"`
	ChainID         uint64        `env:"PROXYD_CHAIN_ID" envDefault:"1"`
	Owner           string        `env:"PROXYD_OWNER,required"`
	ModuleConfig    string        `env:"PROXYD_MODULE_CONFIG"`
	DevMode         bool          `env:"PROXYD_DEV" envDefault:"false"`
	ShutdownTimeout time.Duration `env:"PROXYD_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	NATSURL    string `env:"NATS_URL"`
	NATSPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"exchange"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if !common.IsHexAddress(cfg.Owner) {
		return Config{}, errInvalidOwner
	}
	return cfg, nil
}

// moduleConfigs loads the module config file, if one is set.
func (c Config) moduleConfigs() (map[string]precompileconfig.Config, error) {
	if c.ModuleConfig == "" {
		return nil, nil
	}
	return precompileconfig.LoadFile(c.ModuleConfig, migration.Factory)
}
