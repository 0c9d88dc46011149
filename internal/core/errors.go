package core

import (
	"errors"

	"BasketLedger/internal/basket"
	"BasketLedger/internal/command"
	"BasketLedger/internal/custody"
	"BasketLedger/internal/escrow"
	"BasketLedger/internal/fee"
	fpmath "BasketLedger/internal/math"
	"BasketLedger/internal/registry"
)

// Stable rejection reasons, used as metric labels and in API responses.
const (
	KindInsufficientBalance       = "insufficient_balance"
	KindInsufficientAllowance     = "insufficient_allowance"
	KindUnevenDeposit             = "uneven_deposit"
	KindInsufficientFee           = "insufficient_fee"
	KindInsufficientBasketBalance = "insufficient_basket_balance"
	KindOrderNotFound             = "order_not_found"
	KindOrderAlreadyExists        = "order_already_exists"
	KindOrderAlreadyFilled        = "order_already_filled"
	KindOrderExpired              = "order_expired"
	KindUnauthorized              = "unauthorized"
	KindTransferFailed            = "transfer_failed"
	KindValueRejected             = "value_rejected"
	KindReentrantCall             = "reentrant_call"
	KindInvalidAmount             = "invalid_amount"
	KindInvalidComposition        = "invalid_composition"
	KindInvalidRate               = "invalid_rate"
	KindUnknownBasket             = "unknown_basket"
	KindUnknownAsset              = "unknown_asset"
	KindOverflow                  = "overflow"
	KindFaucetDisabled            = "faucet_disabled"
	KindMalformed                 = "malformed"
	KindDuplicate                 = "duplicate"
	KindInternal                  = "internal"
	KindStopped                   = "stopped"
)

// ErrStopped is returned for commands submitted after Stop. They are not
// sequenced and may be resubmitted to the next process.
var ErrStopped = errors.New("engine stopped")

// kinds is checked in order; the first match wins. Transfer failures come
// first because a vetoed transfer wraps the hook's own error.
var kinds = []struct {
	err  error
	kind string
}{
	{custody.ErrTransferFailed, KindTransferFailed},
	{custody.ErrInsufficientAllowance, KindInsufficientAllowance},
	{custody.ErrInsufficientBalance, KindInsufficientBalance},
	{basket.ErrUnevenDeposit, KindUnevenDeposit},
	{basket.ErrInsufficientFee, KindInsufficientFee},
	{basket.ErrInsufficientBasketBalance, KindInsufficientBasketBalance},
	{escrow.ErrOrderNotFound, KindOrderNotFound},
	{escrow.ErrOrderAlreadyExists, KindOrderAlreadyExists},
	{escrow.ErrOrderAlreadyFilled, KindOrderAlreadyFilled},
	{escrow.ErrOrderExpired, KindOrderExpired},
	{custody.ErrUnauthorized, KindUnauthorized},
	{custody.ErrValueRejected, KindValueRejected},
	{basket.ErrReentrantCall, KindReentrantCall},
	{escrow.ErrReentrantCall, KindReentrantCall},
	{custody.ErrInvalidAmount, KindInvalidAmount},
	{basket.ErrInvalidComposition, KindInvalidComposition},
	{fee.ErrInvalidRate, KindInvalidRate},
	{escrow.ErrUnknownBasket, KindUnknownBasket},
	{registry.ErrUnknownBasket, KindUnknownBasket},
	{basket.ErrUnknownToken, KindUnknownAsset},
	{custody.ErrUnknownAsset, KindUnknownAsset},
	{fpmath.ErrOverflow, KindOverflow},
	{custody.ErrFaucetDisabled, KindFaucetDisabled},
	{command.ErrMalformed, KindMalformed},
}

// Kind classifies err into a stable reason label. Nil maps to "".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
