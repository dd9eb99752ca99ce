// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package otcorders

import (
	"math/big"

	"github.com/luxfi/exchangeproxy/contract"
	"github.com/luxfi/exchangeproxy/erc20"
	"github.com/luxfi/exchangeproxy/nativeorders"
	"github.com/luxfi/exchangeproxy/reentrancy"
	"github.com/luxfi/exchangeproxy/signature"
	"github.com/luxfi/geth/common"
)

type fillParams struct {
	order          *OtcOrder
	makerSig       signature.Signature
	fillAmount     *big.Int
	taker          common.Address
	useSelfBalance bool
	recipient      common.Address
}

type fillResult struct {
	hash        common.Hash
	takerFilled *big.Int
	makerFilled *big.Int
}

func (f *Feature) orderInfo(env contract.AccessibleState, self common.Address, order *OtcOrder) OtcOrderInfo {
	info := OtcOrderInfo{
		OrderHash: order.Hash(signature.NewDomain(env.GetChainID(), self)),
		Status:    uint8(nativeorders.StatusFillable),
	}
	if order.Expiry() <= env.GetBlockContext().Timestamp() {
		info.Status = uint8(nativeorders.StatusExpired)
		return info
	}
	last := LastNonce(env.GetStateDB(), self, order.TxOrigin, order.NonceBucket())
	if last.Cmp(order.Nonce()) >= 0 {
		info.Status = uint8(nativeorders.StatusInvalid)
	}
	return info
}

// fill consumes the order's nonce and settles at most order.TakerAmount.
func (f *Feature) fill(env contract.AccessibleState, self common.Address, p fillParams) (*fillResult, error) {
	st := env.GetStateDB()
	order := p.order
	info := f.orderInfo(env, self, order)
	hash := common.Hash(info.OrderHash)
	if status := nativeorders.OrderStatus(info.Status); status != nativeorders.StatusFillable {
		return nil, OrderNotFillableError(hash, status)
	}
	if order.Taker != (common.Address{}) && order.Taker != p.taker {
		return nil, OrderNotFillableByTakerError(hash, p.taker, order.Taker)
	}
	origin := env.GetTxContext().Origin
	if order.TxOrigin != origin && !nativeorders.IsAllowedOrigin(st, self, order.TxOrigin, origin) {
		return nil, OrderNotFillableByOriginError(hash, origin, order.TxOrigin)
	}
	if err := f.validateMakerSignature(env, self, hash, p.makerSig, order.Maker); err != nil {
		return nil, err
	}

	setLastNonce(st, self, order.TxOrigin, order.NonceBucket(), order.Nonce())

	takerFilled := contract.MinBig(p.fillAmount, order.TakerAmount)
	makerFilled := nativeorders.PartialAmountFloor(takerFilled, order.TakerAmount, order.MakerAmount)
	if takerFilled.Sign() == 0 || makerFilled.Sign() == 0 {
		return nil, OrderNotFillableError(hash, nativeorders.StatusFillable)
	}

	if p.useSelfBalance {
		if err := f.spender.Transfer(env, order.TakerToken, order.Maker, takerFilled); err != nil {
			return nil, err
		}
	} else {
		if err := f.spender.TransferFrom(env, order.TakerToken, p.taker, order.Maker, takerFilled); err != nil {
			return nil, err
		}
	}
	if err := f.spender.TransferFrom(env, order.MakerToken, order.Maker, p.recipient, makerFilled); err != nil {
		return nil, err
	}

	f.log.Debug("otc order filled",
		"hash", hash,
		"maker", order.Maker,
		"taker", p.taker,
		"takerFilled", takerFilled,
		"makerFilled", makerFilled,
	)
	err := contract.EmitEvent(st, self, ABI, "OtcOrderFilled",
		hash, order.Maker, p.taker, order.MakerToken, order.TakerToken, makerFilled, takerFilled)
	if err != nil {
		return nil, err
	}
	return &fillResult{hash: hash, takerFilled: takerFilled, makerFilled: makerFilled}, nil
}

// fillForEth fills a WETH-selling order and pays the taker in native value.
func (f *Feature) fillForEth(
	env contract.AccessibleState,
	caller, self common.Address,
	order *OtcOrder,
	sig signature.Signature,
	fillAmount *big.Int,
) (*fillResult, error) {
	weth := f.WETH(env.GetStateDB())
	if order.MakerToken != weth {
		return nil, InvalidWethOrderError(order.Hash(signature.NewDomain(env.GetChainID(), self)), order.MakerToken)
	}
	res, err := f.fill(env, self, fillParams{
		order:      order,
		makerSig:   sig,
		fillAmount: fillAmount,
		taker:      caller,
		recipient:  self,
	})
	if err != nil {
		return nil, err
	}
	if err := erc20.UnwrapETH(env, weth, res.makerFilled); err != nil {
		return nil, err
	}
	if err := f.spender.Transfer(env, contract.ETHAddress, caller, res.makerFilled); err != nil {
		return nil, err
	}
	return res, nil
}

// fillWithEth pays for an order in attached native value. The order's taker
// token is either WETH, which is wrapped first, or the native sentinel.
func (f *Feature) fillWithEth(
	env contract.AccessibleState,
	caller, self common.Address,
	order *OtcOrder,
	sig signature.Signature,
) (*fillResult, error) {
	weth := f.WETH(env.GetStateDB())
	value := env.GetCallValue().ToBig()
	switch order.TakerToken {
	case weth:
		if err := erc20.WrapETH(env, weth, value); err != nil {
			return nil, err
		}
	case contract.ETHAddress:
	default:
		return nil, InvalidWethOrderError(order.Hash(signature.NewDomain(env.GetChainID(), self)), order.TakerToken)
	}
	res, err := f.fill(env, self, fillParams{
		order:          order,
		makerSig:       sig,
		fillAmount:     value,
		taker:          caller,
		useSelfBalance: true,
		recipient:      caller,
	})
	if err != nil {
		return nil, err
	}
	if res.takerFilled.Cmp(value) < 0 {
		refund := new(big.Int).Sub(value, res.takerFilled)
		if order.TakerToken == weth {
			if err := erc20.UnwrapETH(env, weth, refund); err != nil {
				return nil, err
			}
		}
		if reentrancy.Held(env.GetStateDB(), self, reentrancy.FlagBatchMultiplex) {
			return res, nil
		}
		if err := f.spender.Transfer(env, contract.ETHAddress, caller, refund); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// fillTakerSigned fills the full order on behalf of a taker who signed its
// hash. Anyone may submit it.
func (f *Feature) fillTakerSigned(
	env contract.AccessibleState,
	self common.Address,
	order *OtcOrder,
	makerSig, takerSig signature.Signature,
) (*fillResult, error) {
	hash := order.Hash(signature.NewDomain(env.GetChainID(), self))
	signer, err := signature.RecoverSigner(hash, takerSig)
	if err != nil {
		return nil, OrderNotSignedByTakerError(hash, common.Address{}, order.Taker).WithCause(err)
	}
	if signer != order.Taker && !isValidOrderSigner(env.GetStateDB(), self, order.Taker, signer) {
		return nil, OrderNotSignedByTakerError(hash, signer, order.Taker)
	}
	return f.fill(env, self, fillParams{
		order:      order,
		makerSig:   makerSig,
		fillAmount: order.TakerAmount,
		taker:      order.Taker,
		recipient:  order.Taker,
	})
}

func (f *Feature) validateMakerSignature(
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
		if signer != maker && !isValidOrderSigner(env.GetStateDB(), self, maker, signer) {
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
