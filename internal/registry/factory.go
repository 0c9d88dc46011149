package registry

import (
	"fmt"

	"BasketLedger/internal/basket"
	"BasketLedger/internal/custody"
	"BasketLedger/internal/event"
	"BasketLedger/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// FactoryConfig configures basket deployment.
type FactoryConfig struct {
	Address                common.Address
	Admin                  common.Address
	ProductionFee          uint64 // Flat currency amount per deployed basket
	ProductionFeeRecipient common.Address
}

// BasketParams are the arranger-supplied construction parameters. The caller
// becomes the arranger; a zero fee recipient defaults to the caller.
type BasketParams struct {
	Name                 string
	Symbol               string
	Decimals             uint8
	Tokens               []common.Address
	Weights              []uint64
	ArrangerFeeRecipient common.Address
	ArrangerFeeBps       uint64
}

// TokenParams describe a token issued through the factory.
type TokenParams struct {
	Name         string
	Symbol       string
	Decimals     uint8
	Supply       uint64 // Issued to the caller
	FaucetAmount uint64
}

// Factory deploys baskets and tokens at deterministic addresses and charges
// the production fee.
type Factory struct {
	address      common.Address
	admin        common.Address
	nonce        uint64
	fee          uint64
	feeRecipient common.Address

	book     *ledger.Book
	currency custody.AssetTransfer
	assets   *custody.Directory
	registry *Registry
	emitter  event.Emitter
}

func NewFactory(
	book *ledger.Book,
	currency custody.AssetTransfer,
	assets *custody.Directory,
	registry *Registry,
	cfg FactoryConfig,
	emitter event.Emitter,
) (*Factory, error) {
	if cfg.Admin == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero factory admin", custody.ErrUnauthorized)
	}
	if cfg.ProductionFeeRecipient == (common.Address{}) {
		return nil, fmt.Errorf("production fee recipient is the zero address")
	}
	if emitter == nil {
		emitter = event.Discard{}
	}
	return &Factory{
		address:      cfg.Address,
		admin:        cfg.Admin,
		nonce:        1,
		fee:          cfg.ProductionFee,
		feeRecipient: cfg.ProductionFeeRecipient,
		book:         book,
		currency:     currency,
		assets:       assets,
		registry:     registry,
		emitter:      emitter,
	}, nil
}

func (f *Factory) Address() common.Address                { return f.address }
func (f *Factory) Admin() common.Address                  { return f.admin }
func (f *Factory) ProductionFee() uint64                  { return f.fee }
func (f *Factory) ProductionFeeRecipient() common.Address { return f.feeRecipient }

// NextAddress returns the address the next deployment receives.
func (f *Factory) NextAddress() common.Address {
	return crypto.CreateAddress(f.address, f.nonce)
}

// CreateBasket deploys and registers a basket. The call must carry at least
// the production fee; the fee is forwarded and any excess refunded.
func (f *Factory) CreateBasket(call custody.Call, params BasketParams) (*basket.Basket, error) {
	if call.Value < f.fee {
		return nil, fmt.Errorf("%w: attached %d, production fee is %d", basket.ErrInsufficientFee, call.Value, f.fee)
	}
	tokens := make([]custody.AssetTransfer, len(params.Tokens))
	for i, addr := range params.Tokens {
		tok, err := f.assets.Lookup(addr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", basket.ErrInvalidComposition, err)
		}
		tokens[i] = tok
	}
	recipient := params.ArrangerFeeRecipient
	if recipient == (common.Address{}) {
		recipient = call.Sender
	}

	b, err := basket.New(f.book, f.currency, basket.Config{
		Address:              f.NextAddress(),
		Name:                 params.Name,
		Symbol:               params.Symbol,
		Decimals:             params.Decimals,
		Tokens:               tokens,
		Weights:              params.Weights,
		Arranger:             call.Sender,
		ArrangerFeeRecipient: recipient,
		ArrangerFeeBps:       params.ArrangerFeeBps,
	}, f.registry, f.emitter)
	if err != nil {
		return nil, err
	}

	sp := f.book.Savepoint()
	if err := f.collectFee(call); err != nil {
		f.book.RollbackTo(sp)
		return nil, err
	}
	if err := f.assets.Register(b); err != nil {
		f.book.RollbackTo(sp)
		return nil, err
	}
	index, err := f.registry.Register(b)
	if err != nil {
		panic(fmt.Sprintf("FATAL: registry rejected fresh basket %s: %v", b.Address().Hex(), err))
	}
	f.nonce++

	f.emitter.Emit(&event.BasketCreated{
		Basket:               b.Address(),
		Index:                index,
		Name:                 b.Name(),
		Symbol:               b.Symbol(),
		Tokens:               b.Tokens(),
		Weights:              b.Weights(),
		Arranger:             b.Arranger(),
		ArrangerFeeRecipient: recipient,
		ArrangerFeeBps:       params.ArrangerFeeBps,
		ProductionFee:        f.fee,
	})
	return b, nil
}

func (f *Factory) collectFee(call custody.Call) error {
	if err := custody.Collect(f.currency, call, f.address); err != nil {
		return err
	}
	if f.fee > 0 {
		if err := f.currency.Transfer(f.address, f.feeRecipient, f.fee); err != nil {
			return fmt.Errorf("forward production fee: %w", err)
		}
	}
	if excess := call.Value - f.fee; excess > 0 {
		if err := f.currency.Transfer(f.address, call.Sender, excess); err != nil {
			return fmt.Errorf("refund excess fee: %w", err)
		}
	}
	return nil
}

// IssueToken deploys a fungible token owned by the caller and issues the
// initial supply to the caller.
func (f *Factory) IssueToken(call custody.Call, params TokenParams) (*custody.Token, error) {
	if err := custody.RejectValue(call); err != nil {
		return nil, err
	}
	tok := custody.NewToken(f.book, f.NextAddress(), custody.TokenConfig{
		Name:         params.Name,
		Symbol:       params.Symbol,
		Decimals:     params.Decimals,
		Owner:        call.Sender,
		FaucetAmount: params.FaucetAmount,
	})

	sp := f.book.Savepoint()
	if params.Supply > 0 {
		if err := tok.Mint(call.Sender, call.Sender, params.Supply); err != nil {
			f.book.RollbackTo(sp)
			return nil, err
		}
	}
	if err := f.assets.Register(tok); err != nil {
		f.book.RollbackTo(sp)
		return nil, err
	}
	f.nonce++

	f.emitter.Emit(&event.TokenIssued{
		Token:        tok.Address(),
		Name:         params.Name,
		Symbol:       params.Symbol,
		Decimals:     params.Decimals,
		Owner:        call.Sender,
		Supply:       params.Supply,
		FaucetAmount: params.FaucetAmount,
	})
	return tok, nil
}

// ChangeProductionFee sets the flat deployment fee. Admin only.
func (f *Factory) ChangeProductionFee(call custody.Call, amount uint64) error {
	if err := f.onlyAdmin(call); err != nil {
		return err
	}
	prev := f.fee
	f.fee = amount
	f.emitter.Emit(&event.FeeChanged{
		Scope: event.ScopeProduction, Contract: f.address, Previous: prev, Current: amount,
	})
	return nil
}

// ChangeProductionFeeRecipient redirects future production fees. Admin only.
func (f *Factory) ChangeProductionFeeRecipient(call custody.Call, recipient common.Address) error {
	if err := f.onlyAdmin(call); err != nil {
		return err
	}
	if recipient == (common.Address{}) {
		return fmt.Errorf("production fee recipient is the zero address")
	}
	prev := f.feeRecipient
	f.feeRecipient = recipient
	f.emitter.Emit(&event.FeeRecipientChanged{
		Scope: event.ScopeProduction, Contract: f.address, Previous: prev, Current: recipient,
	})
	return nil
}

// Receive is the fallback for value sent outside a recognized entry point.
func (f *Factory) Receive(call custody.Call) error {
	return custody.RejectValue(call)
}

func (f *Factory) onlyAdmin(call custody.Call) error {
	if err := custody.RejectValue(call); err != nil {
		return err
	}
	if call.Sender != f.admin {
		return fmt.Errorf("%w: %s is not the factory admin", custody.ErrUnauthorized, call.Sender.Hex())
	}
	return nil
}
