package basket

import (
	"errors"

	"BasketLedger/internal/custody"
)

var (
	ErrUnevenDeposit             = errors.New("uneven deposit")
	ErrInsufficientFee           = errors.New("insufficient fee")
	ErrInsufficientBasketBalance = errors.New("insufficient basket balance")
	ErrReentrantCall             = errors.New("reentrant call")
	ErrUnknownToken              = errors.New("token not in basket")
	ErrInvalidComposition        = errors.New("invalid basket composition")

	ErrUnauthorized  = custody.ErrUnauthorized
	ErrInvalidAmount = custody.ErrInvalidAmount
)
