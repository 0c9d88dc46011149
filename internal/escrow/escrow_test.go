package escrow_test

import (
	"errors"
	"testing"
	"time"

	"BasketLedger/internal/custody"
	"BasketLedger/internal/escrow"
	"BasketLedger/internal/event"
	"BasketLedger/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	escrowAddr = common.HexToAddress("0x00000000000000000000000000000000000000e5")
	admin      = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	feeSink    = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	currencyID = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	basketID   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	creator    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	filler     = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

const (
	start      = int64(1_700_000_000)
	expiration = uint64(1_700_003_600)
)

type resolver map[common.Address]custody.AssetTransfer

func (r resolver) Resolve(addr common.Address) (custody.AssetTransfer, error) {
	tok, ok := r[addr]
	if !ok {
		return nil, errors.New("not registered")
	}
	return tok, nil
}

type fixture struct {
	book     *ledger.Book
	currency *custody.Token
	basket   *custody.Token
	ob       *escrow.OrderBook
	events   *event.Recorder
}

func newFixture(t *testing.T, feeBps uint64) *fixture {
	t.Helper()
	book := ledger.NewBook()
	f := &fixture{
		book:     book,
		currency: custody.NewToken(book, currencyID, custody.TokenConfig{Symbol: "ETH", Decimals: 18}),
		basket:   custody.NewToken(book, basketID, custody.TokenConfig{Symbol: "BSK"}),
		events:   event.NewRecorder(),
	}
	for _, h := range []common.Address{creator, filler} {
		require.NoError(t, f.currency.Issue(h, 10_000))
		require.NoError(t, f.basket.Issue(h, 10_000))
		require.NoError(t, f.basket.Approve(h, escrowAddr, custody.Unlimited))
	}

	ob, err := escrow.New(book, f.currency, resolver{basketID: f.basket}, escrow.Config{
		Address:                 escrowAddr,
		Admin:                   admin,
		TransactionFeeRecipient: feeSink,
		TransactionFeeBps:       feeBps,
	}, f.events)
	require.NoError(t, err)
	f.ob = ob
	return f
}

func at(sender common.Address, value uint64, unix int64) custody.Call {
	return custody.Call{Sender: sender, Value: value, Time: time.Unix(unix, 0)}
}

func (f *fixture) requireCustodyMatchesOrders(t *testing.T) {
	t.Helper()
	require.NoError(t, f.ob.CheckInvariants())
	currency, baskets := f.ob.Locked()
	require.Equal(t, currency, f.currency.BalanceOf(escrowAddr))
	require.Equal(t, baskets[basketID], f.basket.BalanceOf(escrowAddr))
	require.NoError(t, ledger.NewInvariantValidator(f.book).ValidateSupply())
}

// ============================================================================
// Test: order identity
// ============================================================================

func TestTermsKey(t *testing.T) {
	terms := escrow.Terms{
		Creator: creator, Basket: basketID, BasketAmount: 10, CurrencyAmount: 5,
		Expiration: expiration, Nonce: 7, Direction: escrow.Buy,
	}
	assert.Equal(t, terms.Key(), terms.Key(), "key is deterministic")

	variants := []func(t *escrow.Terms){
		func(t *escrow.Terms) { t.Creator = filler },
		func(t *escrow.Terms) { t.BasketAmount++ },
		func(t *escrow.Terms) { t.CurrencyAmount++ },
		func(t *escrow.Terms) { t.Expiration++ },
		func(t *escrow.Terms) { t.Nonce++ },
		func(t *escrow.Terms) { t.Direction = escrow.Sell },
	}
	for i, mutate := range variants {
		v := terms
		mutate(&v)
		assert.NotEqual(t, terms.Key(), v.Key(), "variant %d must change the key", i)
	}
}

// ============================================================================
// Test: lifecycle
// ============================================================================

func TestBuyOrder_CreateThenCancel(t *testing.T) {
	f := newFixture(t, 0)

	o, err := f.ob.CreateBuyOrder(at(creator, 5, start), basketID, 10, expiration, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), o.Index)
	assert.True(t, o.Exists())
	assert.Equal(t, uint64(9_995), f.currency.BalanceOf(creator))
	f.requireCustodyMatchesOrders(t)

	require.NoError(t, f.ob.CancelBuyOrder(at(creator, 0, start), basketID, 10, 5, expiration, 7))
	assert.Equal(t, uint64(10_000), f.currency.BalanceOf(creator))

	stored, ok := f.ob.Order(o.Key)
	require.True(t, ok)
	assert.False(t, stored.Exists())
	assert.Equal(t, escrow.StateCancelled, stored.State)

	err = f.ob.CancelBuyOrder(at(creator, 0, start), basketID, 10, 5, expiration, 7)
	assert.ErrorIs(t, err, escrow.ErrOrderNotFound)
	f.requireCustodyMatchesOrders(t)
}

func TestSellOrder_CreateThenCancel(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.ob.CreateSellOrder(at(creator, 0, start), basketID, 40, 80, expiration, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(9_960), f.basket.BalanceOf(creator))
	f.requireCustodyMatchesOrders(t)

	err = f.ob.CancelSellOrder(at(filler, 0, start), basketID, 40, 80, expiration, 1)
	assert.ErrorIs(t, err, escrow.ErrOrderNotFound, "only the creator's tuple matches")

	require.NoError(t, f.ob.CancelSellOrder(at(creator, 0, start), basketID, 40, 80, expiration, 1))
	assert.Equal(t, uint64(10_000), f.basket.BalanceOf(creator))
	f.requireCustodyMatchesOrders(t)
}

func TestCreate_UsedTupleIsRejected(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.ob.CreateBuyOrder(at(creator, 5, start), basketID, 10, expiration, 7)
	require.NoError(t, err)
	_, err = f.ob.CreateBuyOrder(at(creator, 5, start), basketID, 10, expiration, 7)
	assert.ErrorIs(t, err, escrow.ErrOrderAlreadyExists)

	require.NoError(t, f.ob.CancelBuyOrder(at(creator, 0, start), basketID, 10, 5, expiration, 7))
	_, err = f.ob.CreateBuyOrder(at(creator, 5, start), basketID, 10, expiration, 7)
	assert.ErrorIs(t, err, escrow.ErrOrderAlreadyExists, "cancelled tuples cannot be resurrected")

	o, err := f.ob.CreateBuyOrder(at(creator, 5, start), basketID, 10, expiration, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), o.Index)
	assert.Equal(t, uint64(9_995), f.currency.BalanceOf(creator))
	f.requireCustodyMatchesOrders(t)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.ob.CreateBuyOrder(at(creator, 0, start), basketID, 10, expiration, 1)
	assert.ErrorIs(t, err, escrow.ErrInvalidAmount)

	_, err = f.ob.CreateSellOrder(at(creator, 0, start), basketID, 0, 10, expiration, 1)
	assert.ErrorIs(t, err, escrow.ErrInvalidAmount)

	_, err = f.ob.CreateSellOrder(at(creator, 1, start), basketID, 10, 10, expiration, 1)
	assert.ErrorIs(t, err, custody.ErrValueRejected)

	_, err = f.ob.CreateBuyOrder(at(creator, 5, start), currencyID, 10, expiration, 1)
	assert.ErrorIs(t, err, escrow.ErrUnknownBasket)

	_, err = f.ob.CreateBuyOrder(at(creator, 20_000, start), basketID, 10, expiration, 1)
	assert.ErrorIs(t, err, custody.ErrInsufficientBalance)

	require.NoError(t, f.basket.Approve(creator, escrowAddr, 3))
	_, err = f.ob.CreateSellOrder(at(creator, 0, start), basketID, 4, 10, expiration, 1)
	assert.ErrorIs(t, err, custody.ErrInsufficientAllowance)

	assert.Empty(t, f.ob.Orders())
	assert.Empty(t, f.events.Events())
	assert.Equal(t, uint64(1), f.ob.OrderIndex())
	f.requireCustodyMatchesOrders(t)
}

// ============================================================================
// Test: fills
// ============================================================================

func TestFillBuyOrder_PaysFillerNetOfFee(t *testing.T) {
	f := newFixture(t, 250)
	const currencyAmount = 1_001 // fee ceil(25.025) = 26

	_, err := f.ob.CreateBuyOrder(at(creator, currencyAmount, start), basketID, 10, expiration, 1)
	require.NoError(t, err)

	o, err := f.ob.FillBuyOrder(at(filler, 0, start+60), creator, basketID, 10, currencyAmount, expiration, 1)
	require.NoError(t, err)
	assert.True(t, o.Filled())

	assert.Equal(t, uint64(10_010), f.basket.BalanceOf(creator))
	assert.Equal(t, uint64(9_990), f.basket.BalanceOf(filler))
	assert.Equal(t, uint64(10_000+975), f.currency.BalanceOf(filler))
	assert.Equal(t, uint64(26), f.currency.BalanceOf(feeSink))
	assert.Zero(t, f.currency.BalanceOf(escrowAddr))

	evts := f.events.Events()
	filled, ok := evts[len(evts)-1].(*event.OrderFilled)
	require.True(t, ok)
	assert.Equal(t, filler, filled.Filler)
	assert.Equal(t, uint64(26), filled.TransactionFee)
	assert.Equal(t, "buy", filled.Direction)
	f.requireCustodyMatchesOrders(t)

	_, err = f.ob.FillBuyOrder(at(filler, 0, start+60), creator, basketID, 10, currencyAmount, expiration, 1)
	assert.ErrorIs(t, err, escrow.ErrOrderAlreadyFilled)

	err = f.ob.CancelBuyOrder(at(creator, 0, start+60), basketID, 10, currencyAmount, expiration, 1)
	assert.ErrorIs(t, err, escrow.ErrOrderNotFound)
}

func TestFillSellOrder_PaysCreatorNetOfFee(t *testing.T) {
	f := newFixture(t, 100)

	_, err := f.ob.CreateSellOrder(at(creator, 0, start), basketID, 30, 500, expiration, 9)
	require.NoError(t, err)

	_, err = f.ob.FillSellOrder(at(filler, 500, start), creator, basketID, 30, expiration, 9)
	require.NoError(t, err)

	assert.Equal(t, uint64(10_030), f.basket.BalanceOf(filler))
	assert.Equal(t, uint64(9_500), f.currency.BalanceOf(filler))
	assert.Equal(t, uint64(10_495), f.currency.BalanceOf(creator))
	assert.Equal(t, uint64(5), f.currency.BalanceOf(feeSink))
	f.requireCustodyMatchesOrders(t)
}

func TestFillSellOrder_AmountIsPartOfIdentity(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.ob.CreateSellOrder(at(creator, 0, start), basketID, 30, 500, expiration, 9)
	require.NoError(t, err)

	for _, value := range []uint64{499, 501} {
		_, err = f.ob.FillSellOrder(at(filler, value, start), creator, basketID, 30, expiration, 9)
		assert.ErrorIs(t, err, escrow.ErrOrderNotFound)
	}
	assert.Equal(t, uint64(10_000), f.currency.BalanceOf(filler))
	assert.Equal(t, uint64(10_000), f.basket.BalanceOf(filler))

	o, ok := f.ob.OrderAt(1)
	require.True(t, ok)
	assert.True(t, o.Exists())
	f.requireCustodyMatchesOrders(t)
}

func TestFill_ExpiredOrder(t *testing.T) {
	f := newFixture(t, 0)
	o, err := f.ob.CreateBuyOrder(at(creator, 5, start), basketID, 10, expiration, 7)
	require.NoError(t, err)

	_, err = f.ob.FillBuyOrder(at(filler, 0, int64(expiration)+1), creator, basketID, 10, 5, expiration, 7)
	assert.ErrorIs(t, err, escrow.ErrOrderExpired)

	stored, ok := f.ob.Order(o.Key)
	require.True(t, ok)
	assert.True(t, stored.Exists(), "expired orders stay until cancelled")

	_, err = f.ob.FillBuyOrder(at(filler, 0, int64(expiration)), creator, basketID, 10, 5, expiration, 7)
	assert.NoError(t, err, "a fill at the expiration second is still valid")
}

func TestFill_FailedTransferLeavesOrderOpen(t *testing.T) {
	f := newFixture(t, 50)
	_, err := f.ob.CreateBuyOrder(at(creator, 100, start), basketID, 10, expiration, 1)
	require.NoError(t, err)
	f.events.Reset()

	require.NoError(t, f.basket.Approve(filler, escrowAddr, 9))
	_, err = f.ob.FillBuyOrder(at(filler, 0, start), creator, basketID, 10, 100, expiration, 1)
	assert.ErrorIs(t, err, custody.ErrInsufficientAllowance)

	o, ok := f.ob.OrderAt(1)
	require.True(t, ok)
	assert.Equal(t, escrow.StateOpen, o.State)
	assert.Equal(t, uint64(9), f.basket.Allowance(filler, escrowAddr))
	assert.Equal(t, uint64(10_000), f.currency.BalanceOf(filler))
	assert.Zero(t, f.currency.BalanceOf(feeSink))
	assert.Empty(t, f.events.Events())
	f.requireCustodyMatchesOrders(t)
}

func TestFill_UnknownOrder(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.ob.FillBuyOrder(at(filler, 0, start), creator, basketID, 10, 5, expiration, 7)
	assert.ErrorIs(t, err, escrow.ErrOrderNotFound)

	_, err = f.ob.FillBuyOrder(at(filler, 1, start), creator, basketID, 10, 5, expiration, 7)
	assert.ErrorIs(t, err, custody.ErrValueRejected)
}

func TestOrdersEnumeration(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.ob.CreateBuyOrder(at(creator, 5, start), basketID, 10, expiration, 1)
	require.NoError(t, err)
	_, err = f.ob.CreateSellOrder(at(filler, 0, start), basketID, 10, 5, expiration, 1)
	require.NoError(t, err)
	_, err = f.ob.FillSellOrder(at(creator, 5, start), filler, basketID, 10, expiration, 1)
	require.NoError(t, err)

	orders := f.ob.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, escrow.Buy, orders[0].Direction)
	assert.Equal(t, escrow.StateOpen, orders[0].State)
	assert.Equal(t, escrow.StateFilled, orders[1].State)
	assert.Equal(t, 1, f.ob.OpenOrders())

	_, ok := f.ob.OrderAt(0)
	assert.False(t, ok)
	_, ok = f.ob.OrderAt(3)
	assert.False(t, ok)
	f.requireCustodyMatchesOrders(t)
}

// ============================================================================
// Test: administration
// ============================================================================

func TestAdministration(t *testing.T) {
	f := newFixture(t, 10)
	other := common.HexToAddress("0x00000000000000000000000000000000000000fd")

	assert.ErrorIs(t, f.ob.ChangeTransactionFee(at(creator, 0, start), 20), escrow.ErrUnauthorized)
	assert.ErrorIs(t, f.ob.ChangeTransactionFeeRecipient(at(creator, 0, start), other), escrow.ErrUnauthorized)

	require.NoError(t, f.ob.ChangeTransactionFee(at(admin, 0, start), 20))
	require.NoError(t, f.ob.ChangeTransactionFeeRecipient(at(admin, 0, start), other))
	assert.Equal(t, uint64(20), f.ob.TransactionFee().Bps)
	assert.Equal(t, other, f.ob.TransactionFee().Recipient)

	assert.Error(t, f.ob.ChangeTransactionFee(at(admin, 0, start), 10_001))
	assert.Equal(t, uint64(20), f.ob.TransactionFee().Bps)

	var changes int
	for _, evt := range f.events.Events() {
		switch e := evt.(type) {
		case *event.FeeChanged:
			assert.Equal(t, event.ScopeTransaction, e.Scope)
			changes++
		case *event.FeeRecipientChanged:
			assert.Equal(t, other, e.Current)
			changes++
		}
	}
	assert.Equal(t, 2, changes)
}

func TestReceiveRejectsValue(t *testing.T) {
	f := newFixture(t, 0)
	assert.ErrorIs(t, f.ob.Receive(at(creator, 1, start)), custody.ErrValueRejected)
	assert.NoError(t, f.ob.Receive(at(creator, 0, start)))
}
