// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package nativeorders

import (
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/reentrancy"
	"github.com/luxfi/exchangeproxy/signature"
	"github.com/luxfi/geth/common"
)

type fillResult struct {
	hash        common.Hash
	takerFilled *big.Int
	makerFilled *big.Int
	protocolFee *big.Int
}

// settleArgs describes the token movements of one fill.
type settleArgs struct {
	hash           common.Hash
	maker          common.Address
	payer          common.Address
	recipient      common.Address
	makerToken     common.Address
	takerToken     common.Address
	makerAmount    *big.Int
	takerAmount    *big.Int
	fillAmount     *big.Int
	filled         *big.Int
	useSelfBalance bool
}

func (f *Feature) fillLimitOrder(
	env contract.AccessibleState,
	self common.Address,
	order *LimitOrder,
	sig signature.Signature,
	fillAmount *big.Int,
	taker common.Address,
	sender common.Address,
) (*fillResult, error) {
	st := env.GetStateDB()
	info := f.limitOrderInfo(env, self, order)
	hash := common.Hash(info.OrderHash)
	if status := OrderStatus(info.Status); status != StatusFillable {
		return nil, OrderNotFillableError(hash, status)
	}
	if order.Sender != (common.Address{}) && order.Sender != sender {
		return nil, OrderNotFillableBySenderError(hash, sender, order.Sender)
	}
	if order.Taker != (common.Address{}) && order.Taker != taker {
		return nil, OrderNotFillableByTakerError(hash, taker, order.Taker)
	}
	if err := f.validateSignature(env, self, hash, sig, order.Maker); err != nil {
		return nil, err
	}

	fee, err := f.collectProtocolFee(env, self)
	if err != nil {
		return nil, err
	}
	takerFilled, makerFilled, err := f.settle(env, self, settleArgs{
		hash:        hash,
		maker:       order.Maker,
		payer:       taker,
		recipient:   taker,
		makerToken:  order.MakerToken,
		takerToken:  order.TakerToken,
		makerAmount: order.MakerAmount,
		takerAmount: order.TakerAmount,
		fillAmount:  fillAmount,
		filled:      info.TakerTokenFilledAmount,
	})
	if err != nil {
		return nil, err
	}

	feeFilled := PartialAmountFloor(takerFilled, order.TakerAmount, order.TakerTokenFeeAmount)
	if feeFilled.Sign() > 0 {
		if err := f.spender.TransferFrom(env, order.TakerToken, taker, order.FeeRecipient, feeFilled); err != nil {
			return nil, err
		}
	}

	f.log.Debug("limit order filled",
		"hash", hash,
		"maker", order.Maker,
		"taker", taker,
		"takerFilled", takerFilled,
		"makerFilled", makerFilled,
	)
	err = contract.EmitEvent(st, self, ABI, "LimitOrderFilled",
		hash, order.Maker, taker, order.FeeRecipient, order.MakerToken, order.TakerToken,
		takerFilled, makerFilled, feeFilled, fee, order.Pool,
		sig.SignatureType, sig.V, sig.R, sig.S,
	)
	if err != nil {
		return nil, err
	}
	return &fillResult{hash: hash, takerFilled: takerFilled, makerFilled: makerFilled, protocolFee: fee}, nil
}

func (f *Feature) fillRfqOrder(
	env contract.AccessibleState,
	self common.Address,
	order *RfqOrder,
	sig signature.Signature,
	fillAmount *big.Int,
	taker common.Address,
	useSelfBalance bool,
	recipient common.Address,
) (*fillResult, error) {
	st := env.GetStateDB()
	info := f.rfqOrderInfo(env, self, order)
	hash := common.Hash(info.OrderHash)
	if status := OrderStatus(info.Status); status != StatusFillable {
		return nil, OrderNotFillableError(hash, status)
	}
	origin := env.GetTxContext().Origin
	if order.TxOrigin != origin && !IsAllowedOrigin(st, self, order.TxOrigin, origin) {
		return nil, OrderNotFillableByOriginError(hash, origin, order.TxOrigin)
	}
	if order.Taker != (common.Address{}) && order.Taker != taker {
		return nil, OrderNotFillableByTakerError(hash, taker, order.Taker)
	}
	if err := f.validateSignature(env, self, hash, sig, order.Maker); err != nil {
		return nil, err
	}

	takerFilled, makerFilled, err := f.settle(env, self, settleArgs{
		hash:           hash,
		maker:          order.Maker,
		payer:          taker,
		recipient:      recipient,
		makerToken:     order.MakerToken,
		takerToken:     order.TakerToken,
		makerAmount:    order.MakerAmount,
		takerAmount:    order.TakerAmount,
		fillAmount:     fillAmount,
		filled:         info.TakerTokenFilledAmount,
		useSelfBalance: useSelfBalance,
	})
	if err != nil {
		return nil, err
	}

	f.log.Debug("rfq order filled",
		"hash", hash,
		"maker", order.Maker,
		"taker", taker,
		"takerFilled", takerFilled,
		"makerFilled", makerFilled,
	)
	err = contract.EmitEvent(st, self, ABI, "RfqOrderFilled",
		hash, order.Maker, taker, order.MakerToken, order.TakerToken,
		takerFilled, makerFilled, order.Pool,
		sig.SignatureType, sig.V, sig.R, sig.S,
	)
	if err != nil {
		return nil, err
	}
	return &fillResult{hash: hash, takerFilled: takerFilled, makerFilled: makerFilled, protocolFee: new(big.Int)}, nil
}

// settle clamps the fill to the remaining amount, records it and moves the
// tokens. Every write happens in the calling frame, so a failed transfer
// discards the recorded fill with it.
func (f *Feature) settle(env contract.AccessibleState, self common.Address, args settleArgs) (*big.Int, *big.Int, error) {
	remaining := new(big.Int).Sub(args.takerAmount, args.filled)
	takerFilled := contract.MinBig(args.fillAmount, remaining)
	makerFilled := PartialAmountFloor(takerFilled, args.takerAmount, args.makerAmount)
	if takerFilled.Sign() == 0 || makerFilled.Sign() == 0 {
		return nil, nil, OrderNotFillableError(args.hash, StatusFillable)
	}

	addFilled(env.GetStateDB(), self, args.hash, takerFilled)

	if args.useSelfBalance {
		if err := f.spender.Transfer(env, args.takerToken, args.maker, takerFilled); err != nil {
			return nil, nil, err
		}
	} else {
		if err := f.spender.TransferFrom(env, args.takerToken, args.payer, args.maker, takerFilled); err != nil {
			return nil, nil, err
		}
	}
	if err := f.spender.TransferFrom(env, args.makerToken, args.maker, args.recipient, makerFilled); err != nil {
		return nil, nil, err
	}
	return takerFilled, makerFilled, nil
}

// validateSignature accepts ECDSA signatures by the maker or by a signer the
// maker registered, and pre-signed or wallet signatures for the maker.
func (f *Feature) validateSignature(
	env contract.AccessibleState,
	self common.Address,
	hash common.Hash,
	sig signature.Signature,
	maker common.Address,
) error {
	switch signature.Type(sig.SignatureType) {
	case signature.EIP712, signature.EthSign:
		signer, err := signature.RecoverSigner(hash, sig)
		if err != nil {
			return OrderNotSignedByMakerError(hash, common.Address{}, maker).WithCause(err)
		}
		if signer != maker && !IsValidOrderSigner(env.GetStateDB(), self, maker, signer) {
			return OrderNotSignedByMakerError(hash, signer, maker)
		}
		return nil
	default:
		if err := signature.Validate(env, self, hash, sig, maker); err != nil {
			return OrderNotSignedByMakerError(hash, common.Address{}, maker).WithCause(err)
		}
		return nil
	}
}

// collectProtocolFee pays gasPrice * multiplier in native value from the
// proxy's balance to the fee collector.
func (f *Feature) collectProtocolFee(env contract.AccessibleState, self common.Address) (*big.Int, error) {
	st := env.GetStateDB()
	fee := new(big.Int).SetUint64(uint64(f.ProtocolFeeMultiplier(st)))
	fee.Mul(fee, env.GetTxContext().GasPrice)
	if fee.Sign() == 0 {
		return fee, nil
	}
	balance := st.GetBalance(self).ToBig()
	if balance.Cmp(fee) < 0 {
		return nil, ProtocolFeeUnderpaidError(fee, balance)
	}
	if err := f.spender.Transfer(env, contract.ETHAddress, f.FeeCollector(st), fee); err != nil {
		return nil, err
	}
	return fee, nil
}

// refundExcessProtocolFee returns attached value beyond the fee paid to an
// external caller. Inside a batch multiplex call the batch refunds instead.
func (f *Feature) refundExcessProtocolFee(env contract.AccessibleState, caller, self common.Address, paid *big.Int) error {
	value := env.GetCallValue().ToBig()
	if caller == self || value.Cmp(paid) <= 0 || reentrancy.Held(env.GetStateDB(), self, reentrancy.FlagBatchMultiplex) {
		return nil
	}
	refund := new(big.Int).Sub(value, paid)
	if err := f.spender.Transfer(env, contract.ETHAddress, caller, refund); err != nil {
		return ProtocolFeeRefundFailedError(caller, refund, err)
	}
	return nil
}
