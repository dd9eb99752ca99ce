// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package signature

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/geth/common"
)

var (
	ErrSignerMismatch   = errors.New("recovered signer mismatch")
	ErrNotPreSigned     = errors.New("hash not pre-signed")
	ErrWalletRejected   = errors.New("wallet rejected signature")
	ErrWalletHasNoCode  = errors.New("wallet signer has no code")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrIllegalSignature = errors.New("illegal signature")
)

const walletRawABI = `[
  {"type":"function","name":"isValidSignature","stateMutability":"view","inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],"outputs":[{"name":"magicValue","type":"bytes4"}]}
]`

// WalletABI is the verification capability a contract signer implements.
var WalletABI = contract.ParseABI(walletRawABI)

// WalletMagicValue is returned by a wallet accepting a signature.
var WalletMagicValue = WalletABI.Selector("isValidSignature")

var preSignedPrefix = []byte("exchange.signature.presigned")

func preSignedKey(hash common.Hash, signer common.Address) common.Hash {
	return contract.StorageKey(preSignedPrefix, hash[:], signer[:])
}

// PreSign records that signer approves hash.
func PreSign(state contract.StateDB, self common.Address, hash common.Hash, signer common.Address) {
	state.SetState(self, preSignedKey(hash, signer), common.BigToHash(common.Big1))
}

// IsPreSigned reports whether signer approved hash through PreSign.
func IsPreSigned(state contract.StateDB, self common.Address, hash common.Hash, signer common.Address) bool {
	return state.GetState(self, preSignedKey(hash, signer)) != (common.Hash{})
}

// Validate checks sig over hash against claimedSigner. self is the account
// holding pre-signatures.
func Validate(
	env contract.AccessibleState,
	self common.Address,
	hash common.Hash,
	sig Signature,
	claimedSigner common.Address,
) error {
	switch t := Type(sig.SignatureType); t {
	case Illegal:
		return ErrIllegalSignature
	case Invalid:
		return ErrInvalidSignature
	case EIP712, EthSign:
		recovered, err := RecoverSigner(hash, sig)
		if err != nil {
			return err
		}
		if recovered != claimedSigner {
			return fmt.Errorf("%w: got %s want %s", ErrSignerMismatch, recovered, claimedSigner)
		}
		return nil
	case PreSigned:
		if err := requireEmptyECDSA(sig); err != nil {
			return err
		}
		if len(sig.Data) != 0 {
			return fmt.Errorf("%w: unexpected data", ErrMalformed)
		}
		if !IsPreSigned(env.GetStateDB(), self, hash, claimedSigner) {
			return ErrNotPreSigned
		}
		return nil
	case Wallet:
		if err := requireEmptyECDSA(sig); err != nil {
			return err
		}
		return validateWallet(env, hash, sig.Data, claimedSigner)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
}

// Verify is Validate reduced to a boolean.
func Verify(
	env contract.AccessibleState,
	self common.Address,
	hash common.Hash,
	sig Signature,
	claimedSigner common.Address,
) bool {
	return Validate(env, self, hash, sig, claimedSigner) == nil
}

func requireEmptyECDSA(sig Signature) error {
	if sig.V != 0 || sig.R != ([32]byte{}) || sig.S != ([32]byte{}) {
		return fmt.Errorf("%w: unexpected v, r or s", ErrMalformed)
	}
	return nil
}

func validateWallet(env contract.AccessibleState, hash common.Hash, data []byte, wallet common.Address) error {
	if !env.HasCode(wallet) {
		return ErrWalletHasNoCode
	}
	input, err := WalletABI.Pack("isValidSignature", hash, data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ret, err := env.StaticCall(wallet, input)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWalletRejected, err)
	}
	if len(ret) < 32 || !bytes.Equal(ret[:4], WalletMagicValue[:]) {
		return ErrWalletRejected
	}
	return nil
}
