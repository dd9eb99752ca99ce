// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// journalEntry is a modification that can be undone.
type journalEntry interface {
	revert(*StateDB)
}

type journal struct {
	entries []journalEntry
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
}

func (j *journal) length() int {
	return len(j.entries)
}

// revertTo undoes every entry recorded after snapshot length n.
func (j *journal) revertTo(s *StateDB, n int) {
	for i := len(j.entries) - 1; i >= n; i-- {
		j.entries[i].revert(s)
	}
	j.entries = j.entries[:n]
}

func (j *journal) reset() {
	j.entries = j.entries[:0]
}

type (
	storageChange struct {
		account common.Address
		key     common.Hash
		prev    common.Hash
	}
	balanceChange struct {
		account common.Address
		prev    *uint256.Int
	}
	nonceChange struct {
		account common.Address
		prev    uint64
	}
	createChange struct {
		account    common.Address
		prevExists bool
	}
	addLogChange struct{}
)

func (ch storageChange) revert(s *StateDB) {
	s.getObject(ch.account).storage[ch.key] = ch.prev
}

func (ch balanceChange) revert(s *StateDB) {
	s.getObject(ch.account).balance = ch.prev
}

func (ch nonceChange) revert(s *StateDB) {
	s.getObject(ch.account).nonce = ch.prev
}

func (ch createChange) revert(s *StateDB) {
	s.getObject(ch.account).exists = ch.prevExists
}

func (ch addLogChange) revert(s *StateDB) {
	s.logs = s.logs[:len(s.logs)-1]
}
