package event

import "github.com/ethereum/go-ethereum/common"

type BasketCreated struct {
	Basket               common.Address   `json:"basket"`
	Index                uint64           `json:"index"`
	Name                 string           `json:"name"`
	Symbol               string           `json:"symbol"`
	Tokens               []common.Address `json:"tokens"`
	Weights              []uint64         `json:"weights"`
	Arranger             common.Address   `json:"arranger"`
	ArrangerFeeRecipient common.Address   `json:"arranger_fee_recipient"`
	ArrangerFeeBps       uint64           `json:"arranger_fee_bps"`
	ProductionFee        uint64           `json:"production_fee"`
}

func (*BasketCreated) EventType() EventType { return EventTypeBasketCreated }

type Deposited struct {
	Basket common.Address `json:"basket"`
	Holder common.Address `json:"holder"`
	Token  common.Address `json:"token"`
	Amount uint64         `json:"amount"`
}

func (*Deposited) EventType() EventType { return EventTypeDeposited }

type DepositRefunded struct {
	Basket common.Address `json:"basket"`
	Holder common.Address `json:"holder"`
	Token  common.Address `json:"token"`
	Amount uint64         `json:"amount"`
}

func (*DepositRefunded) EventType() EventType { return EventTypeDepositRefunded }

type Bundled struct {
	Basket      common.Address `json:"basket"`
	Holder      common.Address `json:"holder"`
	Amount      uint64         `json:"amount"`
	Consumed    []uint64       `json:"consumed"`
	ArrangerFee uint64         `json:"arranger_fee"`
	TotalMinted uint64         `json:"total_minted"`
}

func (*Bundled) EventType() EventType { return EventTypeBundled }

type Debundled struct {
	Basket      common.Address `json:"basket"`
	Holder      common.Address `json:"holder"`
	Amount      uint64         `json:"amount"`
	Credited    []uint64       `json:"credited"`
	TotalBurned uint64         `json:"total_burned"`
}

func (*Debundled) EventType() EventType { return EventTypeDebundled }

type Withdrawn struct {
	Basket common.Address `json:"basket"`
	Holder common.Address `json:"holder"`
	Token  common.Address `json:"token"`
	Amount uint64         `json:"amount"`
}

func (*Withdrawn) EventType() EventType { return EventTypeWithdrawn }

// WithdrawalDeferred records an amount parked as an outstanding balance.
type WithdrawalDeferred struct {
	Basket      common.Address `json:"basket"`
	Holder      common.Address `json:"holder"`
	Token       common.Address `json:"token"`
	Amount      uint64         `json:"amount"`
	Outstanding uint64         `json:"outstanding"`
	Reason      string         `json:"reason"`
}

func (*WithdrawalDeferred) EventType() EventType { return EventTypeWithdrawalDeferred }

type Extracted struct {
	Basket common.Address   `json:"basket"`
	Holder common.Address   `json:"holder"`
	Amount uint64           `json:"amount"`
	Tokens []common.Address `json:"tokens"`
	Claims []uint64         `json:"claims"`
}

func (*Extracted) EventType() EventType { return EventTypeExtracted }

type WalletWithdrawn struct {
	Basket common.Address `json:"basket"`
	Holder common.Address `json:"holder"`
	Token  common.Address `json:"token"`
	Amount uint64         `json:"amount"`
}

func (*WalletWithdrawn) EventType() EventType { return EventTypeWalletWithdrawn }
