// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package signature

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/luxfi/crypto"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/host"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

var (
	proxy     = common.HexToAddress("0x9000")
	walletOK  = common.HexToAddress("0x7001")
	someHash  = common.HexToHash("0xabcdef")
	otherHash = common.HexToHash("0x123456")
)

// testWallet accepts signatures whose data is "ok".
type testWallet struct{}

func (testWallet) Run(env contract.AccessibleState, caller, addr common.Address, input []byte, gas uint64, readOnly bool) ([]byte, uint64, error) {
	values, err := WalletABI.UnpackInput("isValidSignature", input[4:], false)
	if err != nil {
		return nil, gas, err
	}
	if !bytes.Equal(values[1].([]byte), []byte("ok")) {
		return make([]byte, 32), gas, nil
	}
	ret, err := WalletABI.PackOutput("isValidSignature", WalletMagicValue)
	return ret, gas, err
}

func withEnv(t *testing.T, fn func(env contract.AccessibleState)) {
	h := host.New(memdb.New(), host.Config{})
	require.NoError(t, h.Deploy(walletOK, testWallet{}))
	require.NoError(t, h.Genesis(func(env contract.AccessibleState) error {
		fn(env)
		return nil
	}))
}

func TestECDSASchemes(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := PubkeyToAddress(&key.PublicKey)

	for _, typ := range []Type{EIP712, EthSign} {
		t.Run(typ.String(), func(t *testing.T) {
			sig, err := Sign(someHash, key, typ)
			require.NoError(t, err)

			recovered, err := RecoverSigner(someHash, sig)
			require.NoError(t, err)
			require.Equal(t, signer, recovered)

			withEnv(t, func(env contract.AccessibleState) {
				require.True(t, Verify(env, proxy, someHash, sig, signer))
				require.False(t, Verify(env, proxy, otherHash, sig, signer))
				require.False(t, Verify(env, proxy, someHash, sig, common.HexToAddress("0xbad")))
			})
		})
	}
}

func TestSignerAddress(t *testing.T) {
	// Private key 1 controls a well-known address.
	key, err := crypto.HexToECDSA("0000000000000000000000000000000000000000000000000000000000000001")
	require.NoError(t, err)
	want := common.HexToAddress("0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf")
	require.Equal(t, want, PubkeyToAddress(&key.PublicKey))

	for _, typ := range []Type{EIP712, EthSign} {
		sig, err := Sign(someHash, key, typ)
		require.NoError(t, err)
		recovered, err := RecoverSigner(someHash, sig)
		require.NoError(t, err)
		require.Equal(t, want, recovered, typ.String())
	}
}

func TestMalformedSignaturesFailClosed(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := PubkeyToAddress(&key.PublicKey)
	good, err := Sign(someHash, key, EIP712)
	require.NoError(t, err)

	highS := good
	s := new(big.Int).Sub(secp256k1N, new(big.Int).SetBytes(good.S[:]))
	s.FillBytes(highS.S[:])
	highS.V = 55 - good.V

	tests := []struct {
		name   string
		mutate func(Signature) Signature
	}{
		{"illegal type", func(s Signature) Signature { s.SignatureType = uint8(Illegal); return s }},
		{"invalid type", func(s Signature) Signature { s.SignatureType = uint8(Invalid); return s }},
		{"unknown type", func(s Signature) Signature { s.SignatureType = 9; return s }},
		{"bad v", func(s Signature) Signature { s.V = 29; return s }},
		{"zero r", func(s Signature) Signature { s.R = [32]byte{}; return s }},
		{"trailing data", func(s Signature) Signature { s.Data = []byte{1}; return s }},
		{"high s", func(Signature) Signature { return highS }},
		{"flipped v", func(s Signature) Signature { s.V = 55 - s.V; return s }},
	}
	withEnv(t, func(env contract.AccessibleState) {
		require.True(t, Verify(env, proxy, someHash, good, signer))
		for _, tt := range tests {
			require.False(t, Verify(env, proxy, someHash, tt.mutate(good), signer), tt.name)
		}
	})
}

func TestPreSigned(t *testing.T) {
	signer := common.HexToAddress("0x5151")
	sig := Signature{SignatureType: uint8(PreSigned)}

	withEnv(t, func(env contract.AccessibleState) {
		require.False(t, Verify(env, proxy, someHash, sig, signer))
		PreSign(env.GetStateDB(), proxy, someHash, signer)
		require.True(t, Verify(env, proxy, someHash, sig, signer))
		require.False(t, Verify(env, proxy, otherHash, sig, signer))

		withV := sig
		withV.V = 27
		require.False(t, Verify(env, proxy, someHash, withV, signer))
	})
}

func TestWalletSignatures(t *testing.T) {
	ok := Signature{SignatureType: uint8(Wallet), Data: []byte("ok")}
	rejected := Signature{SignatureType: uint8(Wallet), Data: []byte("no")}

	withEnv(t, func(env contract.AccessibleState) {
		require.NoError(t, Validate(env, proxy, someHash, ok, walletOK))
		require.ErrorIs(t, Validate(env, proxy, someHash, rejected, walletOK), ErrWalletRejected)
		require.ErrorIs(t, Validate(env, proxy, someHash, ok, common.HexToAddress("0x7002")), ErrWalletHasNoCode)

		withR := ok
		withR.R[0] = 1
		require.ErrorIs(t, Validate(env, proxy, someHash, withR, walletOK), ErrMalformed)
	})
}

func TestDomainSeparator(t *testing.T) {
	a := NewDomain(big.NewInt(1), proxy)
	b := NewDomain(big.NewInt(2), proxy)
	require.NotEqual(t, a.Separator(), b.Separator())
	require.Equal(t, a.Separator(), NewDomain(big.NewInt(1), proxy).Separator())

	structHash := NewEncoder(TypeHash("Foo(uint256 x)")).Uint64(7).Hash()
	require.Equal(t, HashTypedData(a.Separator(), structHash), a.Hash(structHash))
	require.NotEqual(t, a.Hash(structHash), b.Hash(structHash))
}
