// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package host executes messages against deployed exchange contracts. Each
// message is one atomic unit of work over the state store: every nested frame
// is snapshotted and reverted on failure, and the whole message either commits
// or leaves no trace.
package host

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/database"
	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/state"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// MaxCallDepth bounds nested calls.
	MaxCallDepth = 1024

	// DefaultGasLimit is used when a message carries no gas limit.
	DefaultGasLimit uint64 = 30_000_000
	// IntrinsicGas is charged to every message.
	IntrinsicGas uint64 = 21_000
	// CallGas is charged for every nested call.
	CallGas uint64 = 700
)

var (
	ErrDepth               = errors.New("max call depth exceeded")
	ErrInsufficientBalance = errors.New("insufficient balance for transfer")
	ErrContractCollision   = errors.New("contract address collision")
	ErrIntrinsicGas        = errors.New("intrinsic gas too low")
	ErrAlreadyDeployed     = errors.New("code already deployed at address")
)

type callKind int

const (
	callKindCall callKind = iota
	callKindStatic
	callKindDelegate
)

func (k callKind) String() string {
	switch k {
	case callKindStatic:
		return "static"
	case callKindDelegate:
		return "delegate"
	default:
		return "call"
	}
}

// Message is one transaction.
type Message struct {
	From     common.Address
	To       common.Address
	Data     []byte
	Value    *uint256.Int
	GasLimit uint64
	GasPrice *big.Int
}

// Receipt is the outcome of a message.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber *big.Int
	// Status is types.ReceiptStatusSuccessful or types.ReceiptStatusFailed.
	Status     uint64
	ReturnData []byte
	RevertData []byte
	GasUsed    uint64
	Logs       []*types.Log
	Err        error
}

// Succeeded reports whether the message committed.
func (r *Receipt) Succeeded() bool {
	return r.Status == types.ReceiptStatusSuccessful
}

// Observer is notified of every committed message.
type Observer interface {
	OnCommit(receipt *Receipt)
}

// Config configures a Host.
type Config struct {
	ChainID    *big.Int
	Logger     log.Logger
	Registerer prometheus.Registerer
}

// Host owns the state store and the deployed contracts.
type Host struct {
	mu sync.Mutex

	state     *state.StateDB
	contracts map[common.Address]contract.StatefulPrecompiledContract
	created   []common.Address
	chainID   *big.Int
	block     *blockContext
	txCount   uint64

	observers []Observer
	metrics   *metrics
	log       log.Logger
}

// New returns a Host over db.
func New(db database.Database, cfg Config) *Host {
	chainID := cfg.ChainID
	if chainID == nil {
		chainID = big.NewInt(1)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Host{
		state:     state.New(db),
		contracts: make(map[common.Address]contract.StatefulPrecompiledContract),
		chainID:   new(big.Int).Set(chainID),
		block:     &blockContext{number: big.NewInt(1), timestamp: 1},
		metrics:   newMetrics(cfg.Registerer),
		log:       logger,
	}
}

// ChainID returns the chain id.
func (h *Host) ChainID() *big.Int { return new(big.Int).Set(h.chainID) }

// StateDB returns the underlying state store. Callers must not use it while a
// message is being applied.
func (h *Host) StateDB() *state.StateDB { return h.state }

// Logger returns the host logger.
func (h *Host) Logger() log.Logger { return h.log }

// AddObserver registers o to be notified after every commit.
func (h *Host) AddObserver(o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, o)
}

// Deploy installs c at addr.
func (h *Host) Deploy(addr common.Address, c contract.StatefulPrecompiledContract) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.contracts[addr]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyDeployed, addr)
	}
	h.contracts[addr] = c
	return nil
}

// HasCode reports whether a contract is deployed at addr.
func (h *Host) HasCode(addr common.Address) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hasCode(addr)
}

func (h *Host) hasCode(addr common.Address) bool {
	_, ok := h.contracts[addr]
	return ok
}

// ContractAt returns the contract deployed at addr.
func (h *Host) ContractAt(addr common.Address) (contract.StatefulPrecompiledContract, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.contracts[addr]
	return c, ok
}

// SetBlock moves the host to a new block.
func (h *Host) SetBlock(number uint64, timestamp uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.block = &blockContext{number: new(big.Int).SetUint64(number), timestamp: timestamp}
}

// AdvanceBlock moves to the next block, seconds later.
func (h *Host) AdvanceBlock(seconds uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.block = &blockContext{
		number:    new(big.Int).Add(h.block.number, big.NewInt(1)),
		timestamp: h.block.timestamp + seconds,
	}
}

// Block returns the current block context.
func (h *Host) Block() contract.BlockContext {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.block
}

// Genesis runs fn directly against the state store and commits the result.
func (h *Host) Genesis(fn func(env contract.AccessibleState) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.state.Prepare(common.Hash{}, 0)
	env := &frame{
		host:  h,
		tx:    &txContext{gasPrice: new(big.Int), gasLeft: DefaultGasLimit},
		value: new(uint256.Int),
	}
	created := len(h.created)
	if err := fn(env); err != nil {
		h.state.Discard()
		h.dropCreated(created)
		return err
	}
	_, err := h.state.Commit()
	return err
}

// ApplyMessage executes msg and commits its effects when it succeeds.
func (h *Host) ApplyMessage(msg *Message) *Receipt {
	h.mu.Lock()
	receipt := h.apply(msg, true)
	observers := append([]Observer(nil), h.observers...)
	h.mu.Unlock()

	if receipt.Succeeded() {
		for _, o := range observers {
			o.OnCommit(receipt)
		}
	}
	return receipt
}

// Simulate executes msg and discards its effects.
func (h *Host) Simulate(msg *Message) *Receipt {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.apply(msg, false)
}

func (h *Host) apply(msg *Message, commit bool) *Receipt {
	h.txCount++
	txHash := h.messageHash(msg)
	h.state.Prepare(txHash, 0)

	gasLimit := msg.GasLimit
	if gasLimit == 0 {
		gasLimit = DefaultGasLimit
	}
	gasPrice := msg.GasPrice
	if gasPrice == nil {
		gasPrice = new(big.Int)
	}
	value := msg.Value
	if value == nil {
		value = new(uint256.Int)
	}

	receipt := &Receipt{
		TxHash:      txHash,
		BlockNumber: new(big.Int).Set(h.block.number),
	}

	var (
		ret []byte
		err error
		tx  = &txContext{origin: msg.From, gasPrice: new(big.Int).Set(gasPrice)}
	)
	if gasLimit < IntrinsicGas {
		err = ErrIntrinsicGas
	} else {
		tx.gasLeft = gasLimit - IntrinsicGas
		created := len(h.created)
		ret, err = h.call(tx, callKindCall, msg.From, msg.To, msg.To, msg.Data, value, false, 0)
		if err != nil || !commit {
			h.dropCreated(created)
		}
	}
	receipt.GasUsed = gasLimit - tx.gasLeft
	if err != nil {
		receipt.GasUsed = gasLimit
	}

	if err == nil {
		receipt.Logs = append([]*types.Log(nil), h.state.Logs()...)
		if commit {
			logs, cerr := h.state.Commit()
			if cerr != nil {
				err = cerr
			} else {
				receipt.Logs = logs
			}
		}
	}
	if err != nil || !commit {
		h.state.Discard()
	}

	status := "success"
	if err != nil {
		status = "revert"
		receipt.Status = types.ReceiptStatusFailed
		receipt.Err = err
		receipt.RevertData = contract.RevertData(err)
		receipt.Logs = nil
		h.log.Debug("message reverted",
			"tx", txHash,
			"from", msg.From,
			"to", msg.To,
			"err", err,
		)
	} else {
		receipt.Status = types.ReceiptStatusSuccessful
		receipt.ReturnData = ret
	}
	if commit {
		h.metrics.messages.WithLabelValues(selectorLabel(msg.Data), status).Inc()
		h.metrics.gasUsed.Observe(float64(receipt.GasUsed))
	}
	for _, l := range receipt.Logs {
		l.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return receipt
}

// call runs code at codeAddr against self's storage in a new frame.
func (h *Host) call(
	tx *txContext,
	kind callKind,
	caller common.Address,
	codeAddr common.Address,
	self common.Address,
	input []byte,
	value *uint256.Int,
	readOnly bool,
	depth int,
) ([]byte, error) {
	if depth > MaxCallDepth {
		return nil, ErrDepth
	}
	if depth > 0 {
		if tx.gasLeft < CallGas {
			return nil, contract.ErrOutOfGas
		}
		tx.gasLeft -= CallGas
	}

	snapshot := h.state.Snapshot()
	created := len(h.created)
	ret, err := h.run(tx, kind, caller, codeAddr, self, input, value, readOnly, depth)
	if err != nil {
		h.state.RevertToSnapshot(snapshot)
		h.dropCreated(created)
	}
	if depth > 0 {
		outcome := "ok"
		if err != nil {
			outcome = "revert"
		}
		h.metrics.frames.WithLabelValues(kind.String(), outcome).Inc()
	}
	return ret, err
}

func (h *Host) run(
	tx *txContext,
	kind callKind,
	caller common.Address,
	codeAddr common.Address,
	self common.Address,
	input []byte,
	value *uint256.Int,
	readOnly bool,
	depth int,
) ([]byte, error) {
	if kind == callKindCall && !value.IsZero() {
		if readOnly {
			return nil, contract.ErrWriteProtection
		}
		if h.state.GetBalance(caller).Lt(value) {
			return nil, fmt.Errorf("%w: %s", ErrInsufficientBalance, caller)
		}
		h.state.SubBalance(caller, value, tracing.BalanceChangeTransfer)
		h.state.AddBalance(self, value, tracing.BalanceChangeTransfer)
	}

	c, ok := h.contracts[codeAddr]
	if !ok {
		return nil, nil
	}

	f := &frame{
		host:     h,
		tx:       tx,
		self:     self,
		caller:   caller,
		value:    value.Clone(),
		readOnly: readOnly,
		depth:    depth,
	}
	supplied := tx.gasLeft
	ret, remaining, err := c.Run(f, caller, self, input, supplied, readOnly)
	if remaining > supplied {
		remaining = supplied
	}
	used := supplied - remaining
	if used > tx.gasLeft {
		tx.gasLeft = 0
		if err == nil {
			err = contract.ErrOutOfGas
		}
	} else {
		tx.gasLeft -= used
	}
	return ret, err
}

func (h *Host) dropCreated(n int) {
	for _, addr := range h.created[n:] {
		delete(h.contracts, addr)
	}
	h.created = h.created[:n]
}

func (h *Host) messageHash(msg *Message) common.Hash {
	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], h.txCount)
	var value [32]byte
	if msg.Value != nil {
		msg.Value.WriteToSlice(value[:])
	}
	return common.BytesToHash(crypto.Keccak256(
		h.chainID.Bytes(),
		counter[:],
		msg.From.Bytes(),
		msg.To.Bytes(),
		value[:],
		msg.Data,
	))
}

func selectorLabel(data []byte) string {
	if len(data) < contract.SelectorLen {
		return "none"
	}
	return fmt.Sprintf("0x%x", data[:contract.SelectorLen])
}
