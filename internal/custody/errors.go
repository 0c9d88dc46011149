package custody

import (
	"errors"

	"BasketLedger/internal/ledger"
)

var (
	ErrInsufficientBalance   = ledger.ErrInsufficientBalance
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrTransferFailed        = errors.New("transfer failed")
	ErrValueRejected         = errors.New("value transfer rejected")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrUnknownAsset          = errors.New("unknown asset")
	ErrFaucetDisabled        = errors.New("faucet disabled")
)
