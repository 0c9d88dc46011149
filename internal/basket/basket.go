package basket

import (
	"fmt"

	"BasketLedger/internal/custody"
	"BasketLedger/internal/event"
	"BasketLedger/internal/fee"
	"BasketLedger/internal/ledger"
	fpmath "BasketLedger/internal/math"

	"github.com/ethereum/go-ethereum/common"
)

// Reporter receives updated mint/burn counters after a committed operation.
// It is bookkeeping only and never consulted for authorization.
type Reporter interface {
	RecordSupply(basket common.Address, totalMinted, totalBurned uint64)
}

// Config is the immutable composition supplied once at deployment.
type Config struct {
	Address              common.Address
	Name                 string
	Symbol               string
	Decimals             uint8 // Weights are expressed in 10^Decimals units per basket unit
	Tokens               []custody.AssetTransfer
	Weights              []uint64
	Arranger             common.Address
	ArrangerFeeRecipient common.Address
	ArrangerFeeBps       uint64
}

type claimKind uint8

const (
	claimPending claimKind = iota
	claimWithdrawable
	claimOutstanding
	claimWallet
	claimReserve
)

// claimKey addresses one per-token claim. Reserves use the zero holder.
type claimKey struct {
	kind   claimKind
	holder common.Address
	token  int
}

type claimUndo struct {
	key     claimKey
	prev    uint64
	existed bool
}

type savepoint struct {
	book        int
	claims      int
	totalMinted uint64
	totalBurned uint64
	arrangerFee fee.Schedule
}

// Basket is the accounting engine for one deployed basket. It is also the
// basket token itself: holder balances live on the shared ledger book under
// the basket address.
//
// Every mutating entry point runs atomically: on error all claims, counters
// and token movements are restored and no event is emitted.
type Basket struct {
	custody.Fungible

	name       string
	symbol     string
	decimals   uint8
	weightUnit uint64

	tokens     []custody.AssetTransfer
	tokenIndex map[common.Address]int
	weights    []uint64

	arranger    common.Address
	arrangerFee fee.Schedule

	totalMinted uint64
	totalBurned uint64

	claims map[claimKey]uint64
	undo   []claimUndo

	currency custody.AssetTransfer
	atomic   custody.Atomic
	reporter Reporter
	emitter  event.Emitter
	buffered []event.Event

	entered bool
}

// New validates the composition and creates the basket.
func New(
	book *ledger.Book,
	currency custody.AssetTransfer,
	cfg Config,
	reporter Reporter,
	emitter event.Emitter,
) (*Basket, error) {
	if len(cfg.Tokens) == 0 || len(cfg.Tokens) != len(cfg.Weights) {
		return nil, fmt.Errorf("%w: %d tokens, %d weights", ErrInvalidComposition, len(cfg.Tokens), len(cfg.Weights))
	}
	unit, err := fpmath.Pow10(cfg.Decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: decimals %d", ErrInvalidComposition, cfg.Decimals)
	}
	arrangerFee, err := fee.NewSchedule(cfg.ArrangerFeeBps, cfg.ArrangerFeeRecipient)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidComposition, err)
	}
	if cfg.Arranger == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero arranger", ErrInvalidComposition)
	}

	index := make(map[common.Address]int, len(cfg.Tokens))
	for i, tok := range cfg.Tokens {
		addr := tok.Address()
		if _, dup := index[addr]; dup {
			return nil, fmt.Errorf("%w: duplicate token %s", ErrInvalidComposition, addr.Hex())
		}
		if addr == cfg.Address {
			return nil, fmt.Errorf("%w: basket cannot hold itself", ErrInvalidComposition)
		}
		if cfg.Weights[i] == 0 {
			return nil, fmt.Errorf("%w: zero weight for %s", ErrInvalidComposition, addr.Hex())
		}
		index[addr] = i
	}

	if emitter == nil {
		emitter = event.Discard{}
	}

	return &Basket{
		Fungible:    custody.NewFungible(book, cfg.Address),
		name:        cfg.Name,
		symbol:      cfg.Symbol,
		decimals:    cfg.Decimals,
		weightUnit:  unit,
		tokens:      append([]custody.AssetTransfer(nil), cfg.Tokens...),
		tokenIndex:  index,
		weights:     append([]uint64(nil), cfg.Weights...),
		arranger:    cfg.Arranger,
		arrangerFee: arrangerFee,
		claims:      make(map[claimKey]uint64),
		currency:    currency,
		atomic:      book,
		reporter:    reporter,
		emitter:     emitter,
	}, nil
}

// --- Queries ---

func (b *Basket) Name() string              { return b.name }
func (b *Basket) Symbol() string            { return b.symbol }
func (b *Basket) Decimals() uint8           { return b.decimals }
func (b *Basket) WeightUnit() uint64        { return b.weightUnit }
func (b *Basket) Arranger() common.Address  { return b.arranger }
func (b *Basket) ArrangerFee() fee.Schedule { return b.arrangerFee }
func (b *Basket) TotalMinted() uint64       { return b.totalMinted }
func (b *Basket) TotalBurned() uint64       { return b.totalBurned }

// Tokens returns the underlying token addresses in composition order.
func (b *Basket) Tokens() []common.Address {
	out := make([]common.Address, len(b.tokens))
	for i, tok := range b.tokens {
		out[i] = tok.Address()
	}
	return out
}

// Weights returns the per-token weights in composition order.
func (b *Basket) Weights() []uint64 {
	return append([]uint64(nil), b.weights...)
}

func (b *Basket) PendingDeposit(holder, token common.Address) uint64 {
	return b.claim(claimPending, holder, token)
}

func (b *Basket) Withdrawable(holder, token common.Address) uint64 {
	return b.claim(claimWithdrawable, holder, token)
}

// Outstanding returns the amount owed to holder after a deferred withdrawal.
func (b *Basket) Outstanding(holder, token common.Address) uint64 {
	return b.claim(claimOutstanding, holder, token)
}

// WalletBalance returns holder's extracted claim on token.
func (b *Basket) WalletBalance(holder, token common.Address) uint64 {
	return b.claim(claimWallet, holder, token)
}

// Reserve returns the custody backing minted supply for token.
func (b *Basket) Reserve(token common.Address) uint64 {
	return b.claim(claimReserve, common.Address{}, token)
}

func (b *Basket) claim(kind claimKind, holder, token common.Address) uint64 {
	i, ok := b.tokenIndex[token]
	if !ok {
		return 0
	}
	return b.claims[claimKey{kind: kind, holder: holder, token: i}]
}

// RequiredDeposit returns the per-token amounts bundling amount units consumes.
func (b *Basket) RequiredDeposit(amount uint64) ([]uint64, error) {
	return b.perToken(amount, fpmath.RoundUp)
}

// RedemptionValue returns the per-token amounts burning amount units credits.
func (b *Basket) RedemptionValue(amount uint64) ([]uint64, error) {
	return b.perToken(amount, fpmath.RoundDown)
}

func (b *Basket) perToken(amount uint64, mode fpmath.RoundingMode) ([]uint64, error) {
	out := make([]uint64, len(b.weights))
	for i, w := range b.weights {
		v, err := fpmath.MulDiv(amount, w, b.weightUnit, mode)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// --- Atomicity and reentrancy ---

func (b *Basket) tokenAt(token common.Address) (int, error) {
	i, ok := b.tokenIndex[token]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownToken, token.Hex())
	}
	return i, nil
}

func (b *Basket) get(kind claimKind, holder common.Address, i int) uint64 {
	return b.claims[claimKey{kind: kind, holder: holder, token: i}]
}

func (b *Basket) set(kind claimKind, holder common.Address, i int, v uint64) {
	key := claimKey{kind: kind, holder: holder, token: i}
	prev, existed := b.claims[key]
	b.undo = append(b.undo, claimUndo{key: key, prev: prev, existed: existed})
	if v == 0 {
		delete(b.claims, key)
		return
	}
	b.claims[key] = v
}

func (b *Basket) add(kind claimKind, holder common.Address, i int, delta uint64) error {
	v, err := fpmath.AddChecked(b.get(kind, holder, i), delta)
	if err != nil {
		return err
	}
	b.set(kind, holder, i, v)
	return nil
}

func (b *Basket) sub(kind claimKind, holder common.Address, i int, delta uint64) {
	cur := b.get(kind, holder, i)
	if cur < delta {
		panic(fmt.Sprintf("FATAL: claim %d for %s on token %d underflows: %d < %d",
			kind, holder.Hex(), i, cur, delta))
	}
	b.set(kind, holder, i, cur-delta)
}

func (b *Basket) savepoint() savepoint {
	return savepoint{
		book:        b.atomic.Savepoint(),
		claims:      len(b.undo),
		totalMinted: b.totalMinted,
		totalBurned: b.totalBurned,
		arrangerFee: b.arrangerFee,
	}
}

func (b *Basket) rollback(sp savepoint) {
	for i := len(b.undo) - 1; i >= sp.claims; i-- {
		u := b.undo[i]
		if u.existed {
			b.claims[u.key] = u.prev
		} else {
			delete(b.claims, u.key)
		}
	}
	b.undo = b.undo[:sp.claims]
	b.totalMinted = sp.totalMinted
	b.totalBurned = sp.totalBurned
	b.arrangerFee = sp.arrangerFee
	b.atomic.RollbackTo(sp.book)
}

// atomically runs fn under the reentrancy guard. On error every change made
// by fn is reverted; on success buffered events are emitted and supply
// counters reported.
func (b *Basket) atomically(fn func() error) error {
	if b.entered {
		return ErrReentrantCall
	}
	b.entered = true
	defer func() { b.entered = false }()

	sp := b.savepoint()
	b.buffered = b.buffered[:0]

	if err := fn(); err != nil {
		b.rollback(sp)
		b.buffered = b.buffered[:0]
		return err
	}

	b.undo = b.undo[:sp.claims]
	for _, evt := range b.buffered {
		b.emitter.Emit(evt)
	}
	b.buffered = b.buffered[:0]

	if b.reporter != nil && (b.totalMinted != sp.totalMinted || b.totalBurned != sp.totalBurned) {
		b.reporter.RecordSupply(b.Address(), b.totalMinted, b.totalBurned)
	}
	return nil
}

func (b *Basket) emit(evt event.Event) {
	b.buffered = append(b.buffered, evt)
}

// tryTransfer attempts an outbound movement from custody. A failure leaves
// the book untouched and is returned to the caller to route.
func (b *Basket) tryTransfer(i int, to common.Address, amount uint64) error {
	sp := b.atomic.Savepoint()
	if err := b.tokens[i].Transfer(b.Address(), to, amount); err != nil {
		b.atomic.RollbackTo(sp)
		return err
	}
	return nil
}

func (b *Basket) mint(holder common.Address, amount uint64) error {
	minted, err := fpmath.AddChecked(b.totalMinted, amount)
	if err != nil {
		return err
	}
	if err := b.Issue(holder, amount); err != nil {
		return err
	}
	b.totalMinted = minted
	return nil
}

func (b *Basket) burn(holder common.Address, amount uint64) error {
	if bal := b.BalanceOf(holder); bal < amount {
		return fmt.Errorf("%w: %s holds %d, burning %d", ErrInsufficientBasketBalance, holder.Hex(), bal, amount)
	}
	if err := b.Retire(holder, amount); err != nil {
		return err
	}
	b.totalBurned += amount
	return nil
}
