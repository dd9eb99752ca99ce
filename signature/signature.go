// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package signature validates signed orders and meta-transactions. Every
// malformed or mismatched signature is reported as invalid; verification never
// aborts the enclosing call.
package signature

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
)

// Type identifies a signature scheme.
type Type uint8

const (
	Illegal Type = iota
	Invalid
	EIP712
	EthSign
	PreSigned
	Wallet
)

func (t Type) String() string {
	switch t {
	case Illegal:
		return "ILLEGAL"
	case Invalid:
		return "INVALID"
	case EIP712:
		return "EIP712"
	case EthSign:
		return "ETHSIGN"
	case PreSigned:
		return "PRESIGNED"
	case Wallet:
		return "WALLET"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

var (
	ErrUnsupportedType = errors.New("unsupported signature type")
	ErrMalformed       = errors.New("malformed signature")
	ErrBadV            = errors.New("invalid signature v")
	ErrHighS           = errors.New("signature s is not canonical")
)

// Signature is the wire form of a signature: {type, v, r, s} for ECDSA schemes
// and {type, data} for wallet signatures.
type Signature struct {
	SignatureType uint8
	V             uint8
	R             [32]byte
	S             [32]byte
	Data          []byte
}

// TupleComponents is the ABI tuple of Signature, shared by every feature ABI.
const TupleComponents = `[{"name":"signatureType","type":"uint8"},{"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"},{"name":"data","type":"bytes"}]`

var (
	secp256k1N     = crypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// ethSignPrefix is prepended to a hash before signing with eth_sign.
var ethSignPrefix = []byte("\x19Ethereum Signed Message:\n32")

// EthSignHash returns the digest signed for an ETHSIGN signature over hash.
func EthSignHash(hash common.Hash) common.Hash {
	return common.BytesToHash(crypto.Keccak256(ethSignPrefix, hash[:]))
}

// RecoverSigner recovers the signer of an ECDSA signature over hash.
func RecoverSigner(hash common.Hash, sig Signature) (common.Address, error) {
	switch Type(sig.SignatureType) {
	case EIP712:
	case EthSign:
		hash = EthSignHash(hash)
	default:
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnsupportedType, Type(sig.SignatureType))
	}
	if len(sig.Data) != 0 {
		return common.Address{}, fmt.Errorf("%w: unexpected data", ErrMalformed)
	}
	if sig.V != 27 && sig.V != 28 {
		return common.Address{}, fmt.Errorf("%w: %d", ErrBadV, sig.V)
	}
	r := new(big.Int).SetBytes(sig.R[:])
	s := new(big.Int).SetBytes(sig.S[:])
	if r.Sign() == 0 || s.Sign() == 0 || r.Cmp(secp256k1N) >= 0 {
		return common.Address{}, fmt.Errorf("%w: r or s out of range", ErrMalformed)
	}
	if s.Cmp(secp256k1HalfN) > 0 {
		return common.Address{}, ErrHighS
	}

	raw := make([]byte, 65)
	copy(raw[:32], sig.R[:])
	copy(raw[32:64], sig.S[:])
	raw[64] = sig.V - 27
	pub, err := crypto.SigToPub(hash[:], raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return PubkeyToAddress(pub), nil
}

// PubkeyToAddress returns the address controlled by pub.
func PubkeyToAddress(pub *ecdsa.PublicKey) common.Address {
	return common.Address(crypto.PubkeyToAddress(*pub))
}

// Sign produces a signature of type t (EIP712 or EthSign) over hash.
func Sign(hash common.Hash, key *ecdsa.PrivateKey, t Type) (Signature, error) {
	digest := hash
	switch t {
	case EIP712:
	case EthSign:
		digest = EthSignHash(hash)
	default:
		return Signature{}, fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
	raw, err := crypto.Sign(digest[:], key)
	if err != nil {
		return Signature{}, err
	}
	sig := Signature{SignatureType: uint8(t), V: raw[64] + 27}
	copy(sig.R[:], raw[:32])
	copy(sig.S[:], raw[32:64])
	return sig, nil
}

// FromABI converts a decoded signature tuple.
func FromABI(v interface{}) Signature {
	return *abi.ConvertType(v, new(Signature)).(*Signature)
}

// FromABISlice converts a decoded signature tuple array.
func FromABISlice(v interface{}) []Signature {
	return *abi.ConvertType(v, new([]Signature)).(*[]Signature)
}
