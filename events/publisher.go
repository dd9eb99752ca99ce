// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/exchangeproxy/host"
	"github.com/luxfi/log"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix prefixes every NATS subject.
const DefaultSubjectPrefix = "exchange"

// Publisher receives the records of committed messages.
type Publisher interface {
	Publish(ctx context.Context, records []Record) error
}

// LogPublisher writes records to a logger.
type LogPublisher struct {
	Log log.Logger
}

func (p LogPublisher) Publish(_ context.Context, records []Record) error {
	for _, r := range records {
		p.Log.Info("exchange event",
			"kind", r.Kind,
			"address", r.Address,
			"block", r.BlockNumber,
			"tx", r.TxHash,
		)
	}
	return nil
}

// NATSPublisher publishes each record as JSON on <prefix>.<kind>.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	log    log.Logger
}

// NATSConfig configures a NATS connection.
type NATSConfig struct {
	URL     string
	Prefix  string
	Timeout time.Duration
}

// NewNATSPublisher connects to the server at cfg.URL.
func NewNATSPublisher(cfg NATSConfig, logger log.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Timeout(timeout),
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	return NewNATSPublisherWithConn(conn, cfg.Prefix, logger), nil
}

// NewNATSPublisherWithConn publishes over an existing connection.
func NewNATSPublisherWithConn(conn *nats.Conn, prefix string, logger log.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &NATSPublisher{conn: conn, prefix: prefix, log: logger}
}

// Subject returns the subject a record of kind is published on.
func (p *NATSPublisher) Subject(kind string) string {
	return p.prefix + "." + kind
}

func (p *NATSPublisher) Publish(ctx context.Context, records []Record) error {
	var errs []error
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(r)
		if err != nil {
			errs = append(errs, fmt.Errorf("encode %s: %w", r.Kind, err))
			continue
		}
		if err := p.conn.Publish(p.Subject(r.Kind), data); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", r.Kind, err))
		}
	}
	return errors.Join(errs...)
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

var _ host.Observer = (*Observer)(nil)

// Observer decodes every committed receipt and publishes its records.
type Observer struct {
	decoder    *Decoder
	publishers []Publisher
	timeout    time.Duration
	log        log.Logger
}

// NewObserver returns an observer feeding publishers.
func NewObserver(decoder *Decoder, logger log.Logger, publishers ...Publisher) *Observer {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Observer{decoder: decoder, publishers: publishers, timeout: 5 * time.Second, log: logger}
}

// OnCommit publishes the records of receipt. Publish failures are logged;
// the message is already committed.
func (o *Observer) OnCommit(receipt *host.Receipt) {
	records, err := o.decoder.DecodeAll(receipt.Logs)
	if err != nil {
		o.log.Warn("failed to decode logs", "tx", receipt.TxHash, "err", err)
		return
	}
	if len(records) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	for _, p := range o.publishers {
		if err := p.Publish(ctx, records); err != nil {
			o.log.Warn("failed to publish events", "tx", receipt.TxHash, "err", err)
		}
	}
}
