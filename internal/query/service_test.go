package query_test

import (
	"testing"

	"BasketLedger/internal/command"
	"BasketLedger/internal/query"
	"BasketLedger/internal/testutil"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAmount(t *testing.T) {
	assert.Equal(t, query.Amount{Raw: "1234500", Display: "1.2345"}, query.NewAmount(1_234_500, 6))
	assert.Equal(t, query.Amount{Raw: "7", Display: "7"}, query.NewAmount(7, 0))
	assert.Equal(t, "18446744073709551615", query.NewAmount(^uint64(0), 18).Raw)
	assert.Equal(t, "0", query.NewAmount(0, 18).Display)
}

func TestParseInputs(t *testing.T) {
	_, err := query.ParseAddress("0x12")
	assert.ErrorIs(t, err, query.ErrInvalidInput)

	addr, err := query.ParseAddress("0x000000000000000000000000000000000000a11c")
	require.NoError(t, err)
	assert.Equal(t, testutil.Alice, addr)

	_, err = query.ParseKey("0xabcd")
	assert.ErrorIs(t, err, query.ErrInvalidInput)
	_, err = query.ParseKey("not-hex")
	assert.ErrorIs(t, err, query.ErrInvalidInput)

	key, err := query.ParseKey(common.Hash{1}.Hex())
	require.NoError(t, err)
	assert.Equal(t, common.Hash{1}, key)
}

func TestService_BasketAndHolder(t *testing.T) {
	d := testutil.NewDriver(t)
	tokenA, tokenB, basketAddr := d.Basket(0)
	d.Exec(testutil.Alice, 0, &command.DepositAndBundle{BasketAmount: command.BasketAmount{Basket: basketAddr, Amount: 10}})
	d.Exec(testutil.Alice, 0, &command.Deposit{Basket: basketAddr, Token: tokenB, Amount: 3})
	d.Exec(testutil.Alice, 0, &command.Debundle{BasketAmount: command.BasketAmount{Basket: basketAddr, Amount: 4}})

	svc := query.NewService(d.Engine, nil)

	b, err := svc.GetBasket(basketAddr)
	require.NoError(t, err)
	assert.Equal(t, "IDX", b.Symbol)
	assert.Equal(t, uint64(1), b.Index)
	assert.Equal(t, "10", b.TotalMinted.Raw)
	assert.Equal(t, "4", b.TotalBurned.Raw)
	assert.Equal(t, "6", b.TotalSupply.Raw)
	require.Len(t, b.Components, 2)
	assert.Equal(t, tokenA, b.Components[0].Token)
	assert.Equal(t, "A", b.Components[0].Symbol)
	assert.Equal(t, "12", b.Components[0].Reserve.Raw)
	assert.Equal(t, "0.00002", b.Components[0].Custody.Display)
	assert.Equal(t, b.Components[0].Claims, b.Components[0].Custody)
	assert.Equal(t, d.Engine.Sequence(), b.AsOfSequence)

	h, err := svc.GetHolder(basketAddr, testutil.Alice)
	require.NoError(t, err)
	assert.Equal(t, "6", h.Balance.Raw)
	assert.Equal(t, "8", h.Tokens[0].Withdrawable.Raw)
	assert.Equal(t, "3", h.Tokens[1].Pending.Raw)
	assert.Equal(t, "4", h.Tokens[1].Withdrawable.Raw)

	_, err = svc.GetBasket(common.HexToAddress("0xdead"))
	assert.ErrorIs(t, err, query.ErrNotFound)
	_, err = svc.GetHolder(common.HexToAddress("0xdead"), testutil.Alice)
	assert.ErrorIs(t, err, query.ErrNotFound)
}

func TestService_Orders(t *testing.T) {
	d := testutil.NewDriver(t)
	_, _, basketAddr := d.Basket(0)
	d.Exec(testutil.Alice, 0, &command.DepositAndBundle{BasketAmount: command.BasketAmount{Basket: basketAddr, Amount: 10}})
	d.Exec(testutil.Bob, 500, &command.CreateBuyOrder{Basket: basketAddr, BasketAmount: 2, Expiration: 1_900_000_000, Nonce: 1})
	d.Exec(testutil.Alice, 0, &command.Approve{Token: basketAddr, Spender: testutil.EscrowAddr, Amount: 5})
	d.Exec(testutil.Alice, 0, &command.CreateSellOrder{OrderTerms: command.OrderTerms{
		Basket: basketAddr, BasketAmount: 5, CurrencyAmount: 900, Expiration: 1_900_000_000, Nonce: 1,
	}})
	d.Exec(testutil.Bob, 0, &command.CancelBuyOrder{OrderTerms: command.OrderTerms{
		Basket: basketAddr, BasketAmount: 2, CurrencyAmount: 500, Expiration: 1_900_000_000, Nonce: 1,
	}})

	svc := query.NewService(d.Engine, nil)

	all, err := svc.ListOrders(query.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, all.Orders, 2)
	assert.Equal(t, "buy", all.Orders[0].Direction)
	assert.Equal(t, "cancelled", all.Orders[0].State)
	assert.Equal(t, "sell", all.Orders[1].Direction)
	assert.Equal(t, "0.0000000000000009", all.Orders[1].CurrencyAmount.Display)

	open, err := svc.ListOrders(query.OrderFilter{State: "open", Creator: testutil.Alice})
	require.NoError(t, err)
	require.Len(t, open.Orders, 1)

	none, err := svc.ListOrders(query.OrderFilter{Creator: testutil.Admin})
	require.NoError(t, err)
	assert.Empty(t, none.Orders)

	_, err = svc.ListOrders(query.OrderFilter{State: "bogus"})
	assert.ErrorIs(t, err, query.ErrInvalidInput)

	o, err := svc.GetOrder(open.Orders[0].Key)
	require.NoError(t, err)
	assert.Equal(t, "5", o.BasketAmount.Raw)
	assert.Equal(t, uint64(2), o.Index)

	_, err = svc.GetOrder(common.Hash{})
	assert.ErrorIs(t, err, query.ErrNotFound)
}

func TestService_VerifyIntegrity(t *testing.T) {
	d := testutil.NewDriver(t)
	_, _, basketAddr := d.Basket(0)
	d.Exec(testutil.Alice, 0, &command.DepositAndBundle{BasketAmount: command.BasketAmount{Basket: basketAddr, Amount: 10}})

	report := query.NewService(d.Engine, nil).VerifyIntegrity()
	assert.True(t, report.IsHealthy, report.Violations)
	assert.Equal(t, 1, report.BasketsChecked)
	assert.Equal(t, d.Engine.Sequence(), report.Sequence)
}

func TestService_JournalHistoryNeedsDatabase(t *testing.T) {
	_, err := query.NewService(testutil.NewDriver(t).Engine, nil).JournalHistory(t.Context(), "holder:x", 10)
	assert.ErrorIs(t, err, query.ErrNoDatabase)
}
