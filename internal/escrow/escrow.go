package escrow

import (
	"fmt"

	"BasketLedger/internal/custody"
	"BasketLedger/internal/event"
	"BasketLedger/internal/fee"

	"github.com/ethereum/go-ethereum/common"
)

// Resolver maps a basket address to its token capability.
type Resolver interface {
	Resolve(basket common.Address) (custody.AssetTransfer, error)
}

// Config configures an order book.
type Config struct {
	Address                 common.Address
	Admin                   common.Address
	TransactionFeeRecipient common.Address
	TransactionFeeBps       uint64
}

type orderUndo struct {
	key     common.Hash
	prev    Order
	existed bool
}

type savepoint struct {
	book   int
	orders int
	index  int
	fee    fee.Schedule
}

// OrderBook escrows bilateral basket/currency trades. While an order is open
// the book holds custody of the creator's leg; a fill moves both legs to their
// counterparties in one step.
type OrderBook struct {
	address  common.Address
	admin    common.Address
	fee      fee.Schedule
	currency custody.AssetTransfer
	baskets  Resolver

	orders map[common.Hash]Order
	index  []common.Hash
	undo   []orderUndo

	atomic   custody.Atomic
	emitter  event.Emitter
	buffered []event.Event
	entered  bool
}

// New creates an empty order book.
func New(atomic custody.Atomic, currency custody.AssetTransfer, baskets Resolver, cfg Config, emitter event.Emitter) (*OrderBook, error) {
	schedule, err := fee.NewSchedule(cfg.TransactionFeeBps, cfg.TransactionFeeRecipient)
	if err != nil {
		return nil, fmt.Errorf("transaction fee: %w", err)
	}
	if cfg.Admin == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero admin", ErrUnauthorized)
	}
	if emitter == nil {
		emitter = event.Discard{}
	}
	return &OrderBook{
		address:  cfg.Address,
		admin:    cfg.Admin,
		fee:      schedule,
		currency: currency,
		baskets:  baskets,
		orders:   make(map[common.Hash]Order),
		atomic:   atomic,
		emitter:  emitter,
	}, nil
}

func (ob *OrderBook) Address() common.Address      { return ob.address }
func (ob *OrderBook) Admin() common.Address        { return ob.admin }
func (ob *OrderBook) TransactionFee() fee.Schedule { return ob.fee }

// OrderIndex returns the index the next created order receives.
func (ob *OrderBook) OrderIndex() uint64 { return uint64(len(ob.index)) + 1 }

// Order looks an order up by its key.
func (ob *OrderBook) Order(key common.Hash) (Order, bool) {
	o, ok := ob.orders[key]
	return o, ok
}

// OrderAt returns the order created with the given index.
func (ob *OrderBook) OrderAt(index uint64) (Order, bool) {
	if index == 0 || index > uint64(len(ob.index)) {
		return Order{}, false
	}
	return ob.orders[ob.index[index-1]], true
}

// Orders returns every order ever created, in creation order.
func (ob *OrderBook) Orders() []Order {
	out := make([]Order, 0, len(ob.index))
	for _, key := range ob.index {
		out = append(out, ob.orders[key])
	}
	return out
}

// OpenOrders counts orders in the open state.
func (ob *OrderBook) OpenOrders() int {
	var n int
	for _, o := range ob.orders {
		if o.State == StateOpen {
			n++
		}
	}
	return n
}

// --- Order lifecycle ---

// CreateBuyOrder locks the attached currency and opens an order to buy
// basketAmount units of basket. The attached value is the currency amount.
func (ob *OrderBook) CreateBuyOrder(call custody.Call, basket common.Address, basketAmount, expiration, nonce uint64) (Order, error) {
	var created Order
	err := ob.atomically(func() error {
		terms := Terms{
			Creator:        call.Sender,
			Basket:         basket,
			BasketAmount:   basketAmount,
			CurrencyAmount: call.Value,
			Expiration:     expiration,
			Nonce:          nonce,
			Direction:      Buy,
		}
		if _, err := ob.validate(terms); err != nil {
			return err
		}
		o, err := ob.open(terms)
		if err != nil {
			return err
		}
		if err := custody.Collect(ob.currency, call, ob.address); err != nil {
			return err
		}
		created = o
		return nil
	})
	return created, err
}

// CreateSellOrder locks basketAmount basket tokens, which the book must be
// approved to move, and opens an order to sell them for currencyAmount.
func (ob *OrderBook) CreateSellOrder(call custody.Call, basket common.Address, basketAmount, currencyAmount, expiration, nonce uint64) (Order, error) {
	var created Order
	err := ob.atomically(func() error {
		if err := custody.RejectValue(call); err != nil {
			return err
		}
		terms := Terms{
			Creator:        call.Sender,
			Basket:         basket,
			BasketAmount:   basketAmount,
			CurrencyAmount: currencyAmount,
			Expiration:     expiration,
			Nonce:          nonce,
			Direction:      Sell,
		}
		token, err := ob.validate(terms)
		if err != nil {
			return err
		}
		o, err := ob.open(terms)
		if err != nil {
			return err
		}
		if err := token.TransferFrom(ob.address, call.Sender, ob.address, basketAmount); err != nil {
			return fmt.Errorf("lock basket tokens: %w", err)
		}
		created = o
		return nil
	})
	return created, err
}

// CancelBuyOrder returns the locked currency of the caller's open buy order.
func (ob *OrderBook) CancelBuyOrder(call custody.Call, basket common.Address, basketAmount, currencyAmount, expiration, nonce uint64) error {
	return ob.cancel(call, Terms{
		Creator:        call.Sender,
		Basket:         basket,
		BasketAmount:   basketAmount,
		CurrencyAmount: currencyAmount,
		Expiration:     expiration,
		Nonce:          nonce,
		Direction:      Buy,
	})
}

// CancelSellOrder returns the locked basket tokens of the caller's open sell
// order.
func (ob *OrderBook) CancelSellOrder(call custody.Call, basket common.Address, basketAmount, currencyAmount, expiration, nonce uint64) error {
	return ob.cancel(call, Terms{
		Creator:        call.Sender,
		Basket:         basket,
		BasketAmount:   basketAmount,
		CurrencyAmount: currencyAmount,
		Expiration:     expiration,
		Nonce:          nonce,
		Direction:      Sell,
	})
}

func (ob *OrderBook) cancel(call custody.Call, terms Terms) error {
	return ob.atomically(func() error {
		if err := custody.RejectValue(call); err != nil {
			return err
		}
		o, ok := ob.orders[terms.Key()]
		if !ok || o.State != StateOpen {
			return fmt.Errorf("%w: %s order %s", ErrOrderNotFound, terms.Direction, terms.Key().Hex())
		}

		ob.put(o.Key, func(o *Order) { o.State = StateCancelled })
		switch o.Direction {
		case Buy:
			if err := ob.currency.Transfer(ob.address, o.Creator, o.CurrencyAmount); err != nil {
				return fmt.Errorf("return currency: %w", err)
			}
		case Sell:
			token, err := ob.resolve(o.Basket)
			if err != nil {
				return err
			}
			if err := token.Transfer(ob.address, o.Creator, o.BasketAmount); err != nil {
				return fmt.Errorf("return basket tokens: %w", err)
			}
		}

		o.State = StateCancelled
		ob.emit(&event.OrderCancelled{OrderTerms: o.eventTerms()})
		return nil
	})
}

// FillBuyOrder sells basketAmount basket tokens into creator's open buy
// order. The filler must have approved the book for the basket tokens and
// receives the escrowed currency minus the transaction fee.
func (ob *OrderBook) FillBuyOrder(call custody.Call, creator, basket common.Address, basketAmount, currencyAmount, expiration, nonce uint64) (Order, error) {
	var filled Order
	err := ob.atomically(func() error {
		if err := custody.RejectValue(call); err != nil {
			return err
		}
		o, err := ob.fillable(call, Terms{
			Creator:        creator,
			Basket:         basket,
			BasketAmount:   basketAmount,
			CurrencyAmount: currencyAmount,
			Expiration:     expiration,
			Nonce:          nonce,
			Direction:      Buy,
		})
		if err != nil {
			return err
		}
		token, err := ob.resolve(o.Basket)
		if err != nil {
			return err
		}
		split, err := fee.SplitPayout(o.CurrencyAmount, ob.fee.Bps)
		if err != nil {
			return err
		}

		ob.put(o.Key, func(o *Order) { o.State = StateFilled })
		if err := token.TransferFrom(ob.address, call.Sender, o.Creator, o.BasketAmount); err != nil {
			return fmt.Errorf("deliver basket tokens: %w", err)
		}
		if err := ob.currency.Transfer(ob.address, call.Sender, split.Net); err != nil {
			return fmt.Errorf("pay filler: %w", err)
		}
		if err := ob.fee.Forward(ob.currency, ob.address, split.Fee); err != nil {
			return err
		}

		o.State = StateFilled
		filled = o
		ob.emit(&event.OrderFilled{
			OrderTerms:     o.eventTerms(),
			Filler:         call.Sender,
			TransactionFee: split.Fee,
			FeeRecipient:   ob.fee.Recipient,
		})
		return nil
	})
	return filled, err
}

// FillSellOrder buys the basket tokens escrowed by creator's open sell order.
// The attached value is the currency amount and part of the lookup: paying a
// different amount matches no order. The creator receives the currency minus
// the transaction fee.
func (ob *OrderBook) FillSellOrder(call custody.Call, creator, basket common.Address, basketAmount, expiration, nonce uint64) (Order, error) {
	var filled Order
	err := ob.atomically(func() error {
		o, err := ob.fillable(call, Terms{
			Creator:        creator,
			Basket:         basket,
			BasketAmount:   basketAmount,
			CurrencyAmount: call.Value,
			Expiration:     expiration,
			Nonce:          nonce,
			Direction:      Sell,
		})
		if err != nil {
			return err
		}
		token, err := ob.resolve(o.Basket)
		if err != nil {
			return err
		}
		split, err := fee.SplitPayout(o.CurrencyAmount, ob.fee.Bps)
		if err != nil {
			return err
		}

		ob.put(o.Key, func(o *Order) { o.State = StateFilled })
		if err := custody.Collect(ob.currency, call, ob.address); err != nil {
			return err
		}
		if err := token.Transfer(ob.address, call.Sender, o.BasketAmount); err != nil {
			return fmt.Errorf("deliver basket tokens: %w", err)
		}
		if err := ob.currency.Transfer(ob.address, o.Creator, split.Net); err != nil {
			return fmt.Errorf("pay creator: %w", err)
		}
		if err := ob.fee.Forward(ob.currency, ob.address, split.Fee); err != nil {
			return err
		}

		o.State = StateFilled
		filled = o
		ob.emit(&event.OrderFilled{
			OrderTerms:     o.eventTerms(),
			Filler:         call.Sender,
			TransactionFee: split.Fee,
			FeeRecipient:   ob.fee.Recipient,
		})
		return nil
	})
	return filled, err
}

// --- Administration ---

// ChangeTransactionFeeRecipient redirects future fill fees. Admin only.
func (ob *OrderBook) ChangeTransactionFeeRecipient(call custody.Call, recipient common.Address) error {
	return ob.atomically(func() error {
		if err := ob.onlyAdmin(call); err != nil {
			return err
		}
		next, err := fee.NewSchedule(ob.fee.Bps, recipient)
		if err != nil {
			return err
		}
		prev := ob.fee.Recipient
		ob.fee = next
		ob.emit(&event.FeeRecipientChanged{
			Scope: event.ScopeTransaction, Contract: ob.address, Previous: prev, Current: recipient,
		})
		return nil
	})
}

// ChangeTransactionFee sets the fill fee rate in basis points. Admin only.
func (ob *OrderBook) ChangeTransactionFee(call custody.Call, bps uint64) error {
	return ob.atomically(func() error {
		if err := ob.onlyAdmin(call); err != nil {
			return err
		}
		if err := fee.ValidateRate(bps); err != nil {
			return err
		}
		prev := ob.fee.Bps
		ob.fee.Bps = bps
		ob.emit(&event.FeeChanged{
			Scope: event.ScopeTransaction, Contract: ob.address, Previous: prev, Current: bps,
		})
		return nil
	})
}

// Receive is the fallback for value sent outside a recognized entry point.
func (ob *OrderBook) Receive(call custody.Call) error {
	return custody.RejectValue(call)
}

func (ob *OrderBook) onlyAdmin(call custody.Call) error {
	if err := custody.RejectValue(call); err != nil {
		return err
	}
	if call.Sender != ob.admin {
		return fmt.Errorf("%w: %s is not the escrow admin", ErrUnauthorized, call.Sender.Hex())
	}
	return nil
}

// --- Internals ---

func (ob *OrderBook) resolve(basket common.Address) (custody.AssetTransfer, error) {
	if ob.baskets == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBasket, basket.Hex())
	}
	token, err := ob.baskets.Resolve(basket)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnknownBasket, basket.Hex(), err)
	}
	return token, nil
}

func (ob *OrderBook) validate(terms Terms) (custody.AssetTransfer, error) {
	if terms.BasketAmount == 0 || terms.CurrencyAmount == 0 {
		return nil, fmt.Errorf("%w: order amounts must be positive", ErrInvalidAmount)
	}
	return ob.resolve(terms.Basket)
}

// open records a new order. Any tuple used before, whatever its state, is
// rejected so a stale intent cannot be resurrected without a new nonce.
func (ob *OrderBook) open(terms Terms) (Order, error) {
	key := terms.Key()
	if prev, ok := ob.orders[key]; ok {
		return Order{}, fmt.Errorf("%w: %s (%s)", ErrOrderAlreadyExists, key.Hex(), prev.State)
	}
	o := Order{Terms: terms, Key: key, Index: ob.OrderIndex(), State: StateOpen}
	ob.put(key, func(dst *Order) { *dst = o })
	ob.index = append(ob.index, key)
	ob.emit(&event.OrderCreated{OrderTerms: o.eventTerms()})
	return o, nil
}

// fillable resolves terms to an open, unexpired order. Checks run in a fixed
// order: existence, then filled, then expiration.
func (ob *OrderBook) fillable(call custody.Call, terms Terms) (Order, error) {
	key := terms.Key()
	o, ok := ob.orders[key]
	if !ok || o.State == StateCancelled {
		return Order{}, fmt.Errorf("%w: %s order %s", ErrOrderNotFound, terms.Direction, key.Hex())
	}
	if o.State == StateFilled {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderAlreadyFilled, key.Hex())
	}
	if now := call.Now(); now > o.Expiration {
		return Order{}, fmt.Errorf("%w: %s expired at %d, now %d", ErrOrderExpired, key.Hex(), o.Expiration, now)
	}
	return o, nil
}

func (ob *OrderBook) put(key common.Hash, mutate func(o *Order)) {
	prev, existed := ob.orders[key]
	ob.undo = append(ob.undo, orderUndo{key: key, prev: prev, existed: existed})
	next := prev
	mutate(&next)
	ob.orders[key] = next
}

func (ob *OrderBook) atomically(fn func() error) error {
	if ob.entered {
		return ErrReentrantCall
	}
	ob.entered = true
	defer func() { ob.entered = false }()

	sp := savepoint{
		book:   ob.atomic.Savepoint(),
		orders: len(ob.undo),
		index:  len(ob.index),
		fee:    ob.fee,
	}
	ob.buffered = ob.buffered[:0]

	if err := fn(); err != nil {
		for i := len(ob.undo) - 1; i >= sp.orders; i-- {
			u := ob.undo[i]
			if u.existed {
				ob.orders[u.key] = u.prev
			} else {
				delete(ob.orders, u.key)
			}
		}
		ob.undo = ob.undo[:sp.orders]
		ob.index = ob.index[:sp.index]
		ob.fee = sp.fee
		ob.atomic.RollbackTo(sp.book)
		ob.buffered = ob.buffered[:0]
		return err
	}

	ob.undo = ob.undo[:sp.orders]
	for _, evt := range ob.buffered {
		ob.emitter.Emit(evt)
	}
	ob.buffered = ob.buffered[:0]
	return nil
}

func (ob *OrderBook) emit(evt event.Event) {
	ob.buffered = append(ob.buffered, evt)
}
