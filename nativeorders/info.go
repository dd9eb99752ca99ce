// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package nativeorders

import (
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/signature"
	"github.com/luxfi/geth/common"
)

type orderFields struct {
	hash        common.Hash
	makerAmount *big.Int
	takerAmount *big.Int
	expiry      uint64
	maker       common.Address
	makerToken  common.Address
	takerToken  common.Address
	salt        *big.Int
}

func (f *Feature) limitOrderInfo(env contract.AccessibleState, self common.Address, order *LimitOrder) OrderInfo {
	return orderInfo(env, self, limitMinSaltPrefix, orderFields{
		hash:        order.Hash(domainOf(env, self)),
		makerAmount: order.MakerAmount,
		takerAmount: order.TakerAmount,
		expiry:      order.Expiry,
		maker:       order.Maker,
		makerToken:  order.MakerToken,
		takerToken:  order.TakerToken,
		salt:        order.Salt,
	})
}

func (f *Feature) rfqOrderInfo(env contract.AccessibleState, self common.Address, order *RfqOrder) OrderInfo {
	return orderInfo(env, self, rfqMinSaltPrefix, orderFields{
		hash:        order.Hash(domainOf(env, self)),
		makerAmount: order.MakerAmount,
		takerAmount: order.TakerAmount,
		expiry:      order.Expiry,
		maker:       order.Maker,
		makerToken:  order.MakerToken,
		takerToken:  order.TakerToken,
		salt:        order.Salt,
	})
}

func orderInfo(env contract.AccessibleState, self common.Address, saltPrefix []byte, o orderFields) OrderInfo {
	st := env.GetStateDB()
	info := OrderInfo{
		OrderHash:              o.hash,
		TakerTokenFilledAmount: FilledAmount(st, self, o.hash),
	}
	switch {
	case o.makerAmount.Sign() == 0 || o.takerAmount.Sign() == 0:
		info.Status = uint8(StatusInvalid)
	case info.TakerTokenFilledAmount.Cmp(o.takerAmount) >= 0:
		info.Status = uint8(StatusFilled)
	case IsCancelled(st, self, o.hash):
		info.Status = uint8(StatusCancelled)
	case o.expiry <= env.GetBlockContext().Timestamp():
		info.Status = uint8(StatusExpired)
	case minValidSalt(st, self, saltPrefix, o.maker, o.makerToken, o.takerToken).Cmp(o.salt) > 0:
		info.Status = uint8(StatusCancelled)
	default:
		info.Status = uint8(StatusFillable)
	}
	return info
}

func (f *Feature) limitOrderRelevantState(
	env contract.AccessibleState,
	self common.Address,
	order *LimitOrder,
	sig signature.Signature,
) (OrderInfo, *big.Int, bool) {
	info := f.limitOrderInfo(env, self, order)
	valid := f.validateSignature(env, self, info.OrderHash, sig, order.Maker) == nil
	fillable := f.fillableTakerAmount(env, self, info, order.Maker, order.MakerToken, order.MakerAmount, order.TakerAmount)
	return info, fillable, valid
}

func (f *Feature) rfqOrderRelevantState(
	env contract.AccessibleState,
	self common.Address,
	order *RfqOrder,
	sig signature.Signature,
) (OrderInfo, *big.Int, bool) {
	info := f.rfqOrderInfo(env, self, order)
	valid := f.validateSignature(env, self, info.OrderHash, sig, order.Maker) == nil
	fillable := f.fillableTakerAmount(env, self, info, order.Maker, order.MakerToken, order.MakerAmount, order.TakerAmount)
	return info, fillable, valid
}

// fillableTakerAmount bounds the remaining taker amount by what the maker
// can actually pay.
func (f *Feature) fillableTakerAmount(
	env contract.AccessibleState,
	self common.Address,
	info OrderInfo,
	maker, makerToken common.Address,
	makerAmount, takerAmount *big.Int,
) *big.Int {
	if OrderStatus(info.Status) != StatusFillable {
		return new(big.Int)
	}
	remaining := new(big.Int).Sub(takerAmount, info.TakerTokenFilledAmount)
	balance, err := f.spender.BalanceOf(env, makerToken, maker)
	if err != nil {
		return new(big.Int)
	}
	allowance, err := f.spender.Allowance(env, makerToken, maker, self)
	if err != nil {
		return new(big.Int)
	}
	spendable := contract.MinBig(balance, allowance)
	return contract.MinBig(remaining, PartialAmountFloor(spendable, makerAmount, takerAmount))
}
