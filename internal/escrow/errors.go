package escrow

import (
	"errors"

	"BasketLedger/internal/custody"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAlreadyExists = errors.New("order already exists")
	ErrOrderAlreadyFilled = errors.New("order already filled")
	ErrOrderExpired       = errors.New("order expired")
	ErrUnknownBasket      = errors.New("unknown basket")
	ErrReentrantCall      = errors.New("reentrant call")

	ErrUnauthorized  = custody.ErrUnauthorized
	ErrInvalidAmount = custody.ErrInvalidAmount
)
