// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command proxyd runs an exchange proxy deployment on an in-memory chain and
// serves it over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/luxfi/exchangeproxy/events"
	"github.com/luxfi/exchangeproxy/migration"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "proxyd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := log.NewTestLogger(log.InfoLevel)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	configs, err := cfg.moduleConfigs()
	if err != nil {
		return fmt.Errorf("load module config: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	d, err := migration.Deploy(migration.Config{
		ChainID:    new(big.Int).SetUint64(cfg.ChainID),
		Owner:      common.HexToAddress(cfg.Owner),
		Configs:    configs,
		Logger:     logger,
		Registerer: registry,
	})
	if err != nil {
		return err
	}

	publishers := []events.Publisher{events.LogPublisher{Log: logger}}
	if cfg.NATSURL != "" {
		nc, err := events.NewNATSPublisher(events.NATSConfig{URL: cfg.NATSURL, Prefix: cfg.NATSPrefix}, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		publishers = append(publishers, nc)
	}
	d.Host.AddObserver(events.NewObserver(events.DefaultDecoder(), logger, publishers...))

	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: newServer(d, registry, cfg.DevMode, logger).router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("proxyd listening",
			"addr", cfg.ListenAddr,
			"chainID", cfg.ChainID,
			"proxy", d.Proxy,
			"dev", cfg.DevMode,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
