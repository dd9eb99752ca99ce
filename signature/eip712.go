// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package signature

import (
	"math/big"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
)

// Domain name and version of the exchange proxy.
const (
	DomainName    = "ZeroEx"
	DomainVersion = "1.0.0"
)

// DomainTypeHash is the EIP-712 type hash of EIP712Domain.
var DomainTypeHash = TypeHash("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)")

// Domain is an EIP-712 signing domain.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// NewDomain returns the exchange domain for a chain and proxy.
func NewDomain(chainID *big.Int, proxy common.Address) Domain {
	return Domain{
		Name:              DomainName,
		Version:           DomainVersion,
		ChainID:           chainID,
		VerifyingContract: proxy,
	}
}

// Separator returns the EIP-712 domain separator.
func (d Domain) Separator() common.Hash {
	return common.BytesToHash(crypto.Keccak256(
		DomainTypeHash[:],
		crypto.Keccak256([]byte(d.Name)),
		crypto.Keccak256([]byte(d.Version)),
		common.BigToHash(d.ChainID).Bytes(),
		common.BytesToHash(d.VerifyingContract.Bytes()).Bytes(),
	))
}

// Hash returns the typed-data hash of structHash under this domain.
func (d Domain) Hash(structHash common.Hash) common.Hash {
	return HashTypedData(d.Separator(), structHash)
}

// HashTypedData returns keccak256(0x1901 ‖ separator ‖ structHash).
func HashTypedData(separator, structHash common.Hash) common.Hash {
	return common.BytesToHash(crypto.Keccak256([]byte{0x19, 0x01}, separator[:], structHash[:]))
}

// TypeHash returns the keccak256 of an EIP-712 type string.
func TypeHash(typeString string) common.Hash {
	return common.BytesToHash(crypto.Keccak256([]byte(typeString)))
}

// Encoder builds EIP-712 struct encodings word by word.
type Encoder struct {
	buf []byte
}

// NewEncoder starts a struct encoding with its type hash.
func NewEncoder(typeHash common.Hash) *Encoder {
	return &Encoder{buf: append([]byte{}, typeHash[:]...)}
}

func (e *Encoder) Address(a common.Address) *Encoder {
	e.buf = append(e.buf, common.BytesToHash(a.Bytes()).Bytes()...)
	return e
}

func (e *Encoder) Uint(v *big.Int) *Encoder {
	if v == nil {
		v = new(big.Int)
	}
	e.buf = append(e.buf, common.BigToHash(v).Bytes()...)
	return e
}

func (e *Encoder) Uint64(v uint64) *Encoder {
	return e.Uint(new(big.Int).SetUint64(v))
}

func (e *Encoder) Bytes32(b [32]byte) *Encoder {
	e.buf = append(e.buf, b[:]...)
	return e
}

// DynamicBytes encodes a bytes member as its keccak256.
func (e *Encoder) DynamicBytes(b []byte) *Encoder {
	e.buf = append(e.buf, crypto.Keccak256(b)...)
	return e
}

// Hash returns the struct hash.
func (e *Encoder) Hash() common.Hash {
	return common.BytesToHash(crypto.Keccak256(e.buf))
}
