// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metatx

import (
	"math/big"

	"github.com/luxfi/exchangeproxy/signature"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
)

var MetaTransactionTypeHash = signature.TypeHash("MetaTransactionData(address signer,address sender,uint256 minGasPrice,uint256 maxGasPrice,uint256 expirationTimeSeconds,uint256 salt,bytes callData,uint256 value,address feeToken,uint256 feeAmount)")

// MetaTransaction is a call signed by Signer and relayed by anyone allowed by
// Sender.
type MetaTransaction struct {
	Signer common.Address
	// Sender restricts the relayer. The zero address allows anyone.
	Sender                common.Address
	MinGasPrice           *big.Int
	MaxGasPrice           *big.Int
	ExpirationTimeSeconds *big.Int
	Salt                  *big.Int
	CallData              []byte
	Value                 *big.Int
	FeeToken              common.Address
	FeeAmount             *big.Int
}

// StructHash returns the EIP-712 struct hash of m.
func (m *MetaTransaction) StructHash() common.Hash {
	return signature.NewEncoder(MetaTransactionTypeHash).
		Address(m.Signer).
		Address(m.Sender).
		Uint(m.MinGasPrice).
		Uint(m.MaxGasPrice).
		Uint(m.ExpirationTimeSeconds).
		Uint(m.Salt).
		DynamicBytes(m.CallData).
		Uint(m.Value).
		Address(m.FeeToken).
		Uint(m.FeeAmount).
		Hash()
}

// Hash returns the signed hash of m under domain.
func (m *MetaTransaction) Hash(domain signature.Domain) common.Hash {
	return domain.Hash(m.StructHash())
}

func decodeMetaTransaction(v interface{}) MetaTransaction {
	return *abi.ConvertType(v, new(MetaTransaction)).(*MetaTransaction)
}

func decodeMetaTransactions(v interface{}) []MetaTransaction {
	return *abi.ConvertType(v, new([]MetaTransaction)).(*[]MetaTransaction)
}
