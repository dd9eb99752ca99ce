// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/geth/common"
)

// Registry maps protocol ids to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[uint64]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[uint64]Adapter)}
}

// Register installs a for protocol.
func (r *Registry) Register(protocol uint64, a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.adapters[protocol]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateProtocol, protocol)
	}
	r.adapters[protocol] = a
	return nil
}

// Adapter returns the adapter for source's protocol.
func (r *Registry) Adapter(source Source) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[source.Protocol()]
	return a, ok
}

// Protocols lists registered protocol ids in ascending order.
func (r *Registry) Protocols() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uint64, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Trade runs the adapter registered for source.
func (r *Registry) Trade(
	env contract.AccessibleState,
	source Source,
	sellToken, buyToken common.Address,
	sellAmount *big.Int,
	data []byte,
) (*big.Int, error) {
	a, ok := r.Adapter(source)
	if !ok {
		return nil, UnknownBridgeSourceError(source)
	}
	bought, err := a.Trade(env, source, sellToken, buyToken, sellAmount, data)
	if err != nil {
		return nil, BridgeTradeFailedError(source, err)
	}
	return bought, nil
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry adapters register into.
func Default() *Registry { return defaultRegistry }

// Register installs a in the default registry.
func Register(protocol uint64, a Adapter) error {
	return defaultRegistry.Register(protocol, a)
}
