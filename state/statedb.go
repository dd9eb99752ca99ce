// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state implements the persistent state store of the exchange host:
// a journaled in-memory overlay with nested snapshots, flushed atomically to a
// key-value database when a unit of work commits.
package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	"github.com/luxfi/geth/core/types"
)

var _ contract.StateDB = (*StateDB)(nil)

var (
	ErrInvalidSnapshot = errors.New("invalid snapshot id")
	ErrCorruptAccount  = errors.New("corrupt account record")
)

// Database key prefixes.
var (
	accountPrefix = []byte("a")
	storagePrefix = []byte("s")
)

const accountRecordLen = 32 + 8 + 1

type stateObject struct {
	balance *uint256.Int
	nonce   uint64
	exists  bool

	storage map[common.Hash]common.Hash
	dirty   map[common.Hash]struct{}
	touched bool
}

type revision struct {
	id           int
	journalIndex int
}

// StateDB is the journaled state store.
type StateDB struct {
	db database.Database

	objects map[common.Address]*stateObject
	journal journal
	logs    []*types.Log

	validRevisions []revision
	nextRevisionID int

	txHash  common.Hash
	txIndex int

	// dbErr is the first database read error, surfaced by Commit.
	dbErr error
}

// New returns a StateDB reading committed state from db.
func New(db database.Database) *StateDB {
	return &StateDB{
		db:      db,
		objects: make(map[common.Address]*stateObject),
	}
}

// Prepare sets the hash and index of the transaction whose logs follow.
func (s *StateDB) Prepare(txHash common.Hash, txIndex int) {
	s.txHash = txHash
	s.txIndex = txIndex
}

func (s *StateDB) TxHash() common.Hash { return s.txHash }

func (s *StateDB) setError(err error) {
	if s.dbErr == nil {
		s.dbErr = err
	}
}

// Error returns the first database error met while reading state.
func (s *StateDB) Error() error { return s.dbErr }

func accountKey(addr common.Address) []byte {
	return append(append([]byte{}, accountPrefix...), addr.Bytes()...)
}

func storageKey(addr common.Address, key common.Hash) []byte {
	k := append(append([]byte{}, storagePrefix...), addr.Bytes()...)
	return append(k, key.Bytes()...)
}

func (s *StateDB) getObject(addr common.Address) *stateObject {
	if obj, ok := s.objects[addr]; ok {
		return obj
	}
	obj := &stateObject{
		balance: new(uint256.Int),
		storage: make(map[common.Hash]common.Hash),
		dirty:   make(map[common.Hash]struct{}),
	}
	raw, err := s.db.Get(accountKey(addr))
	switch {
	case errors.Is(err, database.ErrNotFound):
	case err != nil:
		s.setError(fmt.Errorf("read account %s: %w", addr, err))
	case len(raw) != accountRecordLen:
		s.setError(fmt.Errorf("%w: %s", ErrCorruptAccount, addr))
	default:
		obj.balance.SetBytes(raw[:32])
		obj.nonce = binary.BigEndian.Uint64(raw[32:40])
		obj.exists = raw[40] == 1
	}
	s.objects[addr] = obj
	return obj
}

func (s *StateDB) GetState(addr common.Address, key common.Hash) common.Hash {
	obj := s.getObject(addr)
	if value, ok := obj.storage[key]; ok {
		return value
	}
	var value common.Hash
	raw, err := s.db.Get(storageKey(addr, key))
	switch {
	case errors.Is(err, database.ErrNotFound):
	case err != nil:
		s.setError(fmt.Errorf("read slot %s/%s: %w", addr, key, err))
	default:
		value = common.BytesToHash(raw)
	}
	obj.storage[key] = value
	return value
}

func (s *StateDB) SetState(addr common.Address, key, value common.Hash) common.Hash {
	prev := s.GetState(addr, key)
	obj := s.getObject(addr)
	s.journal.append(storageChange{account: addr, key: key, prev: prev})
	obj.storage[key] = value
	obj.dirty[key] = struct{}{}
	return prev
}

func (s *StateDB) GetBalance(addr common.Address) *uint256.Int {
	return s.getObject(addr).balance.Clone()
}

func (s *StateDB) AddBalance(addr common.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) uint256.Int {
	obj := s.getObject(addr)
	prev := obj.balance.Clone()
	s.journal.append(balanceChange{account: addr, prev: prev})
	obj.balance = new(uint256.Int).Add(prev, amount)
	obj.touched = true
	return *prev
}

func (s *StateDB) SubBalance(addr common.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) uint256.Int {
	obj := s.getObject(addr)
	prev := obj.balance.Clone()
	s.journal.append(balanceChange{account: addr, prev: prev})
	obj.balance = new(uint256.Int).Sub(prev, amount)
	obj.touched = true
	return *prev
}

func (s *StateDB) GetNonce(addr common.Address) uint64 {
	return s.getObject(addr).nonce
}

func (s *StateDB) SetNonce(addr common.Address, nonce uint64, _ tracing.NonceChangeReason) {
	obj := s.getObject(addr)
	s.journal.append(nonceChange{account: addr, prev: obj.nonce})
	obj.nonce = nonce
	obj.touched = true
}

func (s *StateDB) CreateAccount(addr common.Address) {
	obj := s.getObject(addr)
	s.journal.append(createChange{account: addr, prevExists: obj.exists})
	obj.exists = true
	obj.touched = true
}

func (s *StateDB) Exist(addr common.Address) bool {
	return s.getObject(addr).exists
}

func (s *StateDB) AddLog(log *types.Log) {
	s.journal.append(addLogChange{})
	log.TxHash = s.txHash
	log.TxIndex = uint(s.txIndex)
	log.Index = uint(len(s.logs))
	s.logs = append(s.logs, log)
}

func (s *StateDB) Logs() []*types.Log {
	return s.logs
}

// Snapshot returns an identifier for the current revision of the state.
func (s *StateDB) Snapshot() int {
	id := s.nextRevisionID
	s.nextRevisionID++
	s.validRevisions = append(s.validRevisions, revision{id, s.journal.length()})
	return id
}

// RevertToSnapshot reverts all state changes made since the given revision.
func (s *StateDB) RevertToSnapshot(revid int) {
	idx := sort.Search(len(s.validRevisions), func(i int) bool {
		return s.validRevisions[i].id >= revid
	})
	if idx == len(s.validRevisions) || s.validRevisions[idx].id != revid {
		panic(fmt.Errorf("%w: %d", ErrInvalidSnapshot, revid))
	}
	s.journal.revertTo(s, s.validRevisions[idx].journalIndex)
	s.validRevisions = s.validRevisions[:idx]
}

// Discard drops every change made since the last Commit.
func (s *StateDB) Discard() {
	s.journal.revertTo(s, 0)
	s.validRevisions = s.validRevisions[:0]
	s.logs = nil
}

// Commit writes every change made since the last Commit to the database in one
// batch and returns the logs emitted by the unit of work.
func (s *StateDB) Commit() ([]*types.Log, error) {
	if s.dbErr != nil {
		err := s.dbErr
		s.Discard()
		s.dbErr = nil
		return nil, err
	}

	batch := s.db.NewBatch()
	for addr, obj := range s.objects {
		if obj.touched {
			record := make([]byte, accountRecordLen)
			obj.balance.WriteToSlice(record[:32])
			binary.BigEndian.PutUint64(record[32:40], obj.nonce)
			if obj.exists {
				record[40] = 1
			}
			if err := batch.Put(accountKey(addr), record); err != nil {
				return nil, err
			}
			obj.touched = false
		}
		for key := range obj.dirty {
			value := obj.storage[key]
			var err error
			if value == (common.Hash{}) {
				err = batch.Delete(storageKey(addr, key))
			} else {
				err = batch.Put(storageKey(addr, key), value.Bytes())
			}
			if err != nil {
				return nil, err
			}
			delete(obj.dirty, key)
		}
	}
	if err := batch.Write(); err != nil {
		return nil, fmt.Errorf("commit state: %w", err)
	}

	logs := s.logs
	s.logs = nil
	s.journal.reset()
	s.validRevisions = s.validRevisions[:0]
	return logs, nil
}
