// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contract

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/geth/rlp"
	"github.com/zeebo/blake3"
)

// ETHAddress is the sentinel used wherever a token address may stand for the
// native asset.
var ETHAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Selector length in bytes.
const SelectorLen = 4

const commonRawABI = `[
  {"type":"error","name":"OnlyCallableBySelfError","inputs":[{"name":"sender","type":"address"}]},
  {"type":"error","name":"OnlyOwnerError","inputs":[{"name":"sender","type":"address"},{"name":"owner","type":"address"}]}
]`

var commonABI = ParseABI(commonRawABI)

// DeductGas checks that enough gas is available and deducts the required amount.
func DeductGas(suppliedGas uint64, requiredGas uint64) (uint64, error) {
	if suppliedGas < requiredGas {
		return 0, ErrOutOfGas
	}
	return suppliedGas - requiredGas, nil
}

// SplitSelector returns the selector and arguments of call data.
func SplitSelector(input []byte) ([4]byte, []byte, error) {
	var sel [4]byte
	if len(input) < SelectorLen {
		return sel, nil, fmt.Errorf("%w: input too short", ErrInvalidInput)
	}
	copy(sel[:], input[:SelectorLen])
	return sel, input[SelectorLen:], nil
}

// SelectorUint32 returns the selector of input as a big-endian integer.
func SelectorUint32(sel [4]byte) uint32 {
	return binary.BigEndian.Uint32(sel[:])
}

// StorageKey derives a storage slot from a namespace and key parts.
func StorageKey(prefix []byte, parts ...[]byte) common.Hash {
	h := blake3.New()
	h.Write(prefix)
	for _, p := range parts {
		h.Write(p)
	}
	var key common.Hash
	h.Digest().Read(key[:])
	return key
}

// CreateAddress returns the address of a contract created by deployer at nonce.
func CreateAddress(deployer common.Address, nonce uint64) common.Address {
	data, _ := rlp.EncodeToBytes([]interface{}{deployer, nonce})
	return common.BytesToAddress(crypto.Keccak256(data)[12:])
}

// OnlySelf fails unless the call came from the proxy itself.
func OnlySelf(caller, self common.Address) error {
	if caller != self {
		return NewRevert(commonABI, ErrValidation, "OnlyCallableBySelfError", caller)
	}
	return nil
}

// OnlyOwner fails unless sender is owner.
func OnlyOwner(sender, owner common.Address) error {
	if sender != owner {
		return NewRevert(commonABI, ErrValidation, "OnlyOwnerError", sender, owner)
	}
	return nil
}

// OnlyDelegateCall fails when an implementation is invoked directly instead
// of through the proxy.
func OnlyDelegateCall(addr, impl common.Address, tag string) error {
	if addr == impl {
		return NewStringRevert(ErrValidation, tag+"/DIRECT_CALL_ERROR")
	}
	return nil
}

// ToUint256 converts a non-negative big.Int.
func ToUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative amount", ErrInvalidInput)
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("%w: amount overflows uint256", ErrInvalidInput)
	}
	return u, nil
}

// HashToBig interprets a storage word as an unsigned integer.
func HashToBig(h common.Hash) *big.Int {
	return new(big.Int).SetBytes(h[:])
}

// BigToHash stores an unsigned integer in a storage word.
func BigToHash(v *big.Int) common.Hash {
	return common.BigToHash(v)
}

// AddressToHash stores an address in a storage word.
func AddressToHash(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

// HashToAddress reads an address from a storage word.
func HashToAddress(h common.Hash) common.Address {
	return common.BytesToAddress(h[12:])
}

// MinBig returns the smaller of a and b.
func MinBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// MaxUint256 is 2^256-1.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// EmitEvent packs an event and appends it to the state's logs.
func EmitEvent(state StateDB, addr common.Address, a ExtendedABI, name string, args ...interface{}) error {
	topics, data, err := a.PackEvent(name, args...)
	if err != nil {
		return err
	}
	state.AddLog(&types.Log{
		Address: addr,
		Topics:  topics,
		Data:    data,
	})
	return nil
}

// EncodeVersion packs a semantic version into one word:
// major<<64 | minor<<32 | revision.
func EncodeVersion(major, minor, revision uint32) *big.Int {
	v := new(big.Int).Lsh(new(big.Int).SetUint64(uint64(major)), 64)
	v.Or(v, new(big.Int).Lsh(new(big.Int).SetUint64(uint64(minor)), 32))
	return v.Or(v, new(big.Int).SetUint64(uint64(revision)))
}
