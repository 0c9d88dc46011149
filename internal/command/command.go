package command

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Op names one public operation. The string form is the wire name.
type Op string

const (
	OpIssueToken   Op = "issue_token"
	OpMintToken    Op = "mint_token"
	OpFaucet       Op = "faucet"
	OpPauseToken   Op = "pause_token"
	OpUnpauseToken Op = "unpause_token"
	OpApprove      Op = "approve"
	OpTransfer     Op = "transfer"
	OpSendValue    Op = "send_value"

	OpCreateBasket                 Op = "create_basket"
	OpChangeProductionFee          Op = "change_production_fee"
	OpChangeProductionFeeRecipient Op = "change_production_fee_recipient"

	OpDeposit                    Op = "deposit"
	OpBundle                     Op = "bundle"
	OpDepositAndBundle           Op = "deposit_and_bundle"
	OpRefundDeposit              Op = "refund_deposit"
	OpDebundle                   Op = "debundle"
	OpWithdraw                   Op = "withdraw"
	OpDebundleAndWithdraw        Op = "debundle_and_withdraw"
	OpExtract                    Op = "extract"
	OpWalletWithdraw             Op = "wallet_withdraw"
	OpChangeArrangerFee          Op = "change_arranger_fee"
	OpChangeArrangerFeeRecipient Op = "change_arranger_fee_recipient"

	OpCreateBuyOrder                Op = "create_buy_order"
	OpCreateSellOrder               Op = "create_sell_order"
	OpCancelBuyOrder                Op = "cancel_buy_order"
	OpCancelSellOrder               Op = "cancel_sell_order"
	OpFillBuyOrder                  Op = "fill_buy_order"
	OpFillSellOrder                 Op = "fill_sell_order"
	OpChangeTransactionFee          Op = "change_transaction_fee"
	OpChangeTransactionFeeRecipient Op = "change_transaction_fee_recipient"
)

// Command is one authenticated invocation submitted to the engine.
type Command struct {
	ID        uuid.UUID
	Op        Op
	Sender    common.Address
	Value     uint64    // Attached base currency
	Timestamp time.Time // Supplied by the submitter; the engine never reads the clock
	Args      Args

	// Raw is the wire form the command was parsed from, kept for the log.
	Raw []byte
}

// IdempotencyKey is the submitter-chosen command ID.
func (c *Command) IdempotencyKey() string {
	return c.ID.String()
}

// Args is the typed parameter block of one operation.
type Args interface {
	Op() Op
}

// --- Tokens ---

type IssueToken struct {
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	Decimals     uint8  `json:"decimals"`
	Supply       uint64 `json:"supply"`
	FaucetAmount uint64 `json:"faucet_amount"`
}

type MintToken struct {
	Token  common.Address `json:"token"`
	To     common.Address `json:"to"`
	Amount uint64         `json:"amount"`
}

type Faucet struct {
	Token common.Address `json:"token"`
}

type PauseToken struct {
	Token common.Address `json:"token"`
}

type UnpauseToken struct {
	Token common.Address `json:"token"`
}

type Approve struct {
	Token   common.Address `json:"token"`
	Spender common.Address `json:"spender"`
	Amount  uint64         `json:"amount"`
}

type Transfer struct {
	Token  common.Address `json:"token"`
	To     common.Address `json:"to"`
	Amount uint64         `json:"amount"`
}

// SendValue attaches value to a plain call on a contract address, which
// every contract refuses.
type SendValue struct {
	To common.Address `json:"to"`
}

// --- Factory ---

type CreateBasket struct {
	Name                 string           `json:"name"`
	Symbol               string           `json:"symbol"`
	Decimals             uint8            `json:"decimals"`
	Tokens               []common.Address `json:"tokens"`
	Weights              []uint64         `json:"weights"`
	ArrangerFeeRecipient common.Address   `json:"arranger_fee_recipient"`
	ArrangerFeeBps       uint64           `json:"arranger_fee_bps"`
}

type ChangeProductionFee struct {
	Amount uint64 `json:"amount"`
}

type ChangeProductionFeeRecipient struct {
	Recipient common.Address `json:"recipient"`
}

// --- Basket ---

type Deposit struct {
	Basket common.Address `json:"basket"`
	Token  common.Address `json:"token"`
	Amount uint64         `json:"amount"`
}

// BasketAmount parameterizes every operation that takes a basket and a unit
// amount.
type BasketAmount struct {
	Basket common.Address `json:"basket"`
	Amount uint64         `json:"amount"`
}

// BasketToken parameterizes every operation that takes a basket and one of
// its underlying tokens.
type BasketToken struct {
	Basket common.Address `json:"basket"`
	Token  common.Address `json:"token"`
}

type Bundle struct{ BasketAmount }
type DepositAndBundle struct{ BasketAmount }
type Debundle struct{ BasketAmount }
type DebundleAndWithdraw struct{ BasketAmount }
type Extract struct{ BasketAmount }
type RefundDeposit struct{ BasketToken }
type Withdraw struct{ BasketToken }
type WalletWithdraw struct{ BasketToken }

type ChangeArrangerFee struct {
	Basket common.Address `json:"basket"`
	Bps    uint64         `json:"bps"`
}

type ChangeArrangerFeeRecipient struct {
	Basket    common.Address `json:"basket"`
	Recipient common.Address `json:"recipient"`
}

// --- Escrow ---

type CreateBuyOrder struct {
	Basket       common.Address `json:"basket"`
	BasketAmount uint64         `json:"basket_amount"`
	Expiration   uint64         `json:"expiration"`
	Nonce        uint64         `json:"nonce"`
}

// OrderTerms are the creator-side terms that identify an order.
type OrderTerms struct {
	Basket         common.Address `json:"basket"`
	BasketAmount   uint64         `json:"basket_amount"`
	CurrencyAmount uint64         `json:"currency_amount"`
	Expiration     uint64         `json:"expiration"`
	Nonce          uint64         `json:"nonce"`
}

type CreateSellOrder struct{ OrderTerms }
type CancelBuyOrder struct{ OrderTerms }
type CancelSellOrder struct{ OrderTerms }

type FillBuyOrder struct {
	Creator common.Address `json:"creator"`
	OrderTerms
}

// FillSellOrder carries no currency amount: the attached value is the
// amount and part of the order's identity.
type FillSellOrder struct {
	Creator      common.Address `json:"creator"`
	Basket       common.Address `json:"basket"`
	BasketAmount uint64         `json:"basket_amount"`
	Expiration   uint64         `json:"expiration"`
	Nonce        uint64         `json:"nonce"`
}

type ChangeTransactionFee struct {
	Bps uint64 `json:"bps"`
}

type ChangeTransactionFeeRecipient struct {
	Recipient common.Address `json:"recipient"`
}

func (*IssueToken) Op() Op                    { return OpIssueToken }
func (*MintToken) Op() Op                     { return OpMintToken }
func (*Faucet) Op() Op                        { return OpFaucet }
func (*PauseToken) Op() Op                    { return OpPauseToken }
func (*UnpauseToken) Op() Op                  { return OpUnpauseToken }
func (*Approve) Op() Op                       { return OpApprove }
func (*Transfer) Op() Op                      { return OpTransfer }
func (*SendValue) Op() Op                     { return OpSendValue }
func (*CreateBasket) Op() Op                  { return OpCreateBasket }
func (*ChangeProductionFee) Op() Op           { return OpChangeProductionFee }
func (*ChangeProductionFeeRecipient) Op() Op  { return OpChangeProductionFeeRecipient }
func (*Deposit) Op() Op                       { return OpDeposit }
func (*Bundle) Op() Op                        { return OpBundle }
func (*DepositAndBundle) Op() Op              { return OpDepositAndBundle }
func (*RefundDeposit) Op() Op                 { return OpRefundDeposit }
func (*Debundle) Op() Op                      { return OpDebundle }
func (*Withdraw) Op() Op                      { return OpWithdraw }
func (*DebundleAndWithdraw) Op() Op           { return OpDebundleAndWithdraw }
func (*Extract) Op() Op                       { return OpExtract }
func (*WalletWithdraw) Op() Op                { return OpWalletWithdraw }
func (*ChangeArrangerFee) Op() Op             { return OpChangeArrangerFee }
func (*ChangeArrangerFeeRecipient) Op() Op    { return OpChangeArrangerFeeRecipient }
func (*CreateBuyOrder) Op() Op                { return OpCreateBuyOrder }
func (*CreateSellOrder) Op() Op               { return OpCreateSellOrder }
func (*CancelBuyOrder) Op() Op                { return OpCancelBuyOrder }
func (*CancelSellOrder) Op() Op               { return OpCancelSellOrder }
func (*FillBuyOrder) Op() Op                  { return OpFillBuyOrder }
func (*FillSellOrder) Op() Op                 { return OpFillSellOrder }
func (*ChangeTransactionFee) Op() Op          { return OpChangeTransactionFee }
func (*ChangeTransactionFeeRecipient) Op() Op { return OpChangeTransactionFeeRecipient }

// newArgs returns an empty parameter block for op.
func newArgs(op Op) (Args, bool) {
	switch op {
	case OpIssueToken:
		return &IssueToken{}, true
	case OpMintToken:
		return &MintToken{}, true
	case OpFaucet:
		return &Faucet{}, true
	case OpPauseToken:
		return &PauseToken{}, true
	case OpUnpauseToken:
		return &UnpauseToken{}, true
	case OpApprove:
		return &Approve{}, true
	case OpTransfer:
		return &Transfer{}, true
	case OpSendValue:
		return &SendValue{}, true
	case OpCreateBasket:
		return &CreateBasket{}, true
	case OpChangeProductionFee:
		return &ChangeProductionFee{}, true
	case OpChangeProductionFeeRecipient:
		return &ChangeProductionFeeRecipient{}, true
	case OpDeposit:
		return &Deposit{}, true
	case OpBundle:
		return &Bundle{}, true
	case OpDepositAndBundle:
		return &DepositAndBundle{}, true
	case OpRefundDeposit:
		return &RefundDeposit{}, true
	case OpDebundle:
		return &Debundle{}, true
	case OpWithdraw:
		return &Withdraw{}, true
	case OpDebundleAndWithdraw:
		return &DebundleAndWithdraw{}, true
	case OpExtract:
		return &Extract{}, true
	case OpWalletWithdraw:
		return &WalletWithdraw{}, true
	case OpChangeArrangerFee:
		return &ChangeArrangerFee{}, true
	case OpChangeArrangerFeeRecipient:
		return &ChangeArrangerFeeRecipient{}, true
	case OpCreateBuyOrder:
		return &CreateBuyOrder{}, true
	case OpCreateSellOrder:
		return &CreateSellOrder{}, true
	case OpCancelBuyOrder:
		return &CancelBuyOrder{}, true
	case OpCancelSellOrder:
		return &CancelSellOrder{}, true
	case OpFillBuyOrder:
		return &FillBuyOrder{}, true
	case OpFillSellOrder:
		return &FillSellOrder{}, true
	case OpChangeTransactionFee:
		return &ChangeTransactionFee{}, true
	case OpChangeTransactionFeeRecipient:
		return &ChangeTransactionFeeRecipient{}, true
	default:
		return nil, false
	}
}

// Ops lists every known operation.
func Ops() []Op {
	return []Op{
		OpIssueToken, OpMintToken, OpFaucet, OpPauseToken, OpUnpauseToken, OpApprove, OpTransfer, OpSendValue,
		OpCreateBasket, OpChangeProductionFee, OpChangeProductionFeeRecipient,
		OpDeposit, OpBundle, OpDepositAndBundle, OpRefundDeposit, OpDebundle, OpWithdraw,
		OpDebundleAndWithdraw, OpExtract, OpWalletWithdraw, OpChangeArrangerFee, OpChangeArrangerFeeRecipient,
		OpCreateBuyOrder, OpCreateSellOrder, OpCancelBuyOrder, OpCancelSellOrder, OpFillBuyOrder,
		OpFillSellOrder, OpChangeTransactionFee, OpChangeTransactionFeeRecipient,
	}
}
