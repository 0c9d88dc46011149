package core_test

import (
	"testing"
	"time"

	"BasketLedger/internal/command"
	"BasketLedger/internal/core"
	"BasketLedger/internal/custody"
	"BasketLedger/internal/escrow"
	"BasketLedger/internal/observability"
	"BasketLedger/internal/registry"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	currencyAddr = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	factoryAddr  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	escrowAddr   = common.HexToAddress("0x00000000000000000000000000000000000000e5")
	admin        = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice        = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob          = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	arrangerSink = common.HexToAddress("0x0000000000000000000000000000000000000fee")
)

const productionFee = 100

func testConfig() core.Config {
	return core.Config{
		CurrencyAddress: currencyAddr,
		Currency: custody.TokenConfig{
			Name:         "Base Currency",
			Symbol:       "BASE",
			Decimals:     18,
			FaucetAmount: 1_000_000,
		},
		Factory: registry.FactoryConfig{
			Address:                factoryAddr,
			Admin:                  admin,
			ProductionFee:          productionFee,
			ProductionFeeRecipient: admin,
		},
		Escrow: escrow.Config{
			Address:                 escrowAddr,
			Admin:                   admin,
			TransactionFeeRecipient: admin,
			TransactionFeeBps:       250,
		},
		IdempotencyCapacity: 1024,
	}
}

type harness struct {
	t       *testing.T
	engine  *core.Engine
	persist chan core.Output
	publish chan core.Output
	metrics *observability.Metrics
	next    int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	persist := make(chan core.Output, 1024)
	publish := make(chan core.Output, 1024)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	e, err := core.NewEngine(testConfig(), persist, publish, nil, metrics)
	require.NoError(t, err)
	return &harness{t: t, engine: e, persist: persist, publish: publish, metrics: metrics}
}

// cmd builds a command with a deterministic ID and timestamp.
func (h *harness) cmd(sender common.Address, value uint64, args command.Args) *command.Command {
	h.t.Helper()
	h.next++
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte{byte(h.next >> 8), byte(h.next)})
	ts := time.Unix(1_700_000_000+int64(h.next), 0)
	c, err := command.New(id, sender, value, ts, args)
	require.NoError(h.t, err)
	return c
}

func (h *harness) exec(sender common.Address, value uint64, args command.Args) core.Result {
	h.t.Helper()
	res, err := h.engine.Execute(h.cmd(sender, value, args))
	require.NoError(h.t, err)
	return res
}

func (h *harness) reject(sender common.Address, value uint64, args command.Args) core.Result {
	h.t.Helper()
	res, err := h.engine.Execute(h.cmd(sender, value, args))
	require.Error(h.t, err)
	return res
}

func (h *harness) balance(asset, owner common.Address) uint64 {
	var bal uint64
	h.engine.Read(func(v core.View) {
		bal = v.Book.Balance(asset, owner)
	})
	return bal
}

// setup funds alice and bob, issues two tokens and creates a basket of them
// with weights 2 and 1 at zero decimals.
func (h *harness) setup() (tokenA, tokenB, basketAddr common.Address) {
	h.t.Helper()
	h.exec(alice, 0, &command.Faucet{Token: currencyAddr})
	h.exec(bob, 0, &command.Faucet{Token: currencyAddr})

	res := h.exec(alice, 0, &command.IssueToken{Name: "Token A", Symbol: "A", Supply: 1_000_000})
	tokenA = res.Reply.(core.TokenReply).Address
	res = h.exec(alice, 0, &command.IssueToken{Name: "Token B", Symbol: "B", Supply: 1_000_000})
	tokenB = res.Reply.(core.TokenReply).Address

	res = h.exec(alice, productionFee, &command.CreateBasket{
		Name:                 "Index",
		Symbol:               "IDX",
		Tokens:               []common.Address{tokenA, tokenB},
		Weights:              []uint64{2, 1},
		ArrangerFeeBps:       100,
		ArrangerFeeRecipient: arrangerSink,
	})
	basketAddr = res.Reply.(core.BasketReply).Address

	h.exec(alice, 0, &command.Approve{Token: tokenA, Spender: basketAddr, Amount: custody.Unlimited})
	h.exec(alice, 0, &command.Approve{Token: tokenB, Spender: basketAddr, Amount: custody.Unlimited})
	return tokenA, tokenB, basketAddr
}

func TestEngine_SetupAddressesAreDeterministic(t *testing.T) {
	h := newHarness(t)
	tokenA, tokenB, basketAddr := h.setup()

	assert.NotEqual(t, tokenA, tokenB)
	assert.NotEqual(t, tokenB, basketAddr)
	assert.Equal(t, uint64(1_000_000-productionFee), h.balance(currencyAddr, alice))
	assert.Equal(t, uint64(productionFee), h.balance(currencyAddr, admin))
	assert.Equal(t, int64(7), h.engine.Sequence())

	other := newHarness(t)
	a2, b2, basket2 := other.setup()
	assert.Equal(t, tokenA, a2)
	assert.Equal(t, tokenB, b2)
	assert.Equal(t, basketAddr, basket2)
	assert.Equal(t, h.engine.StateHash(), other.engine.StateHash())
}

func TestEngine_DepositAndBundle(t *testing.T) {
	h := newHarness(t)
	tokenA, tokenB, basketAddr := h.setup()

	// 100 bps on 1000 units is 10
	res := h.exec(alice, 15, &command.DepositAndBundle{BasketAmount: command.BasketAmount{Basket: basketAddr, Amount: 1000}})
	require.NotEmpty(t, res.Events)
	assert.Equal(t, "Bundled", res.Events[len(res.Events)-1].Type)

	assert.Equal(t, uint64(1000), h.balance(basketAddr, alice))
	assert.Equal(t, uint64(2000), h.balance(tokenA, basketAddr))
	assert.Equal(t, uint64(1000), h.balance(tokenB, basketAddr))
	assert.Equal(t, uint64(1_000_000-productionFee-10), h.balance(currencyAddr, alice))
	assert.Equal(t, uint64(10), h.balance(currencyAddr, arrangerSink))

	h.engine.Read(func(v core.View) {
		d, err := v.Registry.Details(basketAddr)
		require.NoError(t, err)
		assert.Equal(t, uint64(1000), d.TotalMinted)
	})
}

func TestEngine_RejectedCommandIsSequencedAndLogged(t *testing.T) {
	h := newHarness(t)
	_, _, basketAddr := h.setup()
	drain(h.persist)

	before := h.engine.StateHash()
	res := h.reject(bob, 0, &command.Bundle{BasketAmount: command.BasketAmount{Basket: basketAddr, Amount: 5}})
	assert.Equal(t, core.KindUnevenDeposit, res.Rejection)
	assert.Equal(t, int64(8), res.Sequence)
	assert.Empty(t, res.Events)
	assert.NotEqual(t, before, h.engine.StateHash(), "the chain advances over rejections")

	out := <-h.persist
	assert.Equal(t, int64(8), out.Envelope.Sequence)
	assert.Equal(t, core.KindUnevenDeposit, out.Envelope.Rejection)
	assert.Empty(t, out.Batch.Journals)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CommandsRejected.WithLabelValues(string(command.OpBundle), core.KindUnevenDeposit)))
}

func TestEngine_RejectionLeavesNoPartialState(t *testing.T) {
	h := newHarness(t)
	tokenA, tokenB, basketAddr := h.setup()
	h.exec(alice, 0, &command.PauseToken{Token: tokenB})

	res := h.reject(alice, 15, &command.DepositAndBundle{BasketAmount: command.BasketAmount{Basket: basketAddr, Amount: 1000}})
	assert.Equal(t, core.KindTransferFailed, res.Rejection)

	assert.Equal(t, uint64(0), h.balance(tokenA, basketAddr))
	assert.Equal(t, uint64(0), h.balance(tokenB, basketAddr))
	assert.Equal(t, uint64(0), h.balance(basketAddr, alice))
	assert.Equal(t, uint64(1_000_000-productionFee), h.balance(currencyAddr, alice))
}

func TestEngine_DuplicateCommandIsNoOp(t *testing.T) {
	h := newHarness(t)
	c := h.cmd(alice, 0, &command.Faucet{Token: currencyAddr})

	first, err := h.engine.Execute(c)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := h.engine.Execute(c)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, core.KindDuplicate, second.Rejection)

	assert.Equal(t, int64(1), h.engine.Sequence())
	assert.Equal(t, uint64(1_000_000), h.balance(currencyAddr, alice))
}

func TestEngine_RejectedCommandIsAlsoDeduplicated(t *testing.T) {
	h := newHarness(t)
	c := h.cmd(alice, 0, &command.Transfer{Token: currencyAddr, To: bob, Amount: 1})

	_, err := h.engine.Execute(c)
	require.Error(t, err)

	res, err := h.engine.Execute(c)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, int64(1), h.engine.Sequence())
}

func TestEngine_EscrowRoundTrip(t *testing.T) {
	h := newHarness(t)
	_, _, basketAddr := h.setup()
	h.exec(alice, 15, &command.DepositAndBundle{BasketAmount: command.BasketAmount{Basket: basketAddr, Amount: 1000}})

	res := h.exec(bob, 1000, &command.CreateBuyOrder{Basket: basketAddr, BasketAmount: 100, Expiration: 1_800_000_000, Nonce: 1})
	order := res.Reply.(escrow.Order)
	assert.Equal(t, escrow.StateOpen, order.State)
	assert.Equal(t, uint64(1000), h.balance(currencyAddr, escrowAddr))

	h.exec(alice, 0, &command.Approve{Token: basketAddr, Spender: escrowAddr, Amount: 100})
	aliceBefore := h.balance(currencyAddr, alice)
	res = h.exec(alice, 0, &command.FillBuyOrder{
		Creator: bob,
		OrderTerms: command.OrderTerms{
			Basket: basketAddr, BasketAmount: 100, CurrencyAmount: 1000, Expiration: 1_800_000_000, Nonce: 1,
		},
	})
	assert.Equal(t, escrow.StateFilled, res.Reply.(escrow.Order).State)

	// 250 bps on 1000 is 25
	assert.Equal(t, aliceBefore+975, h.balance(currencyAddr, alice))
	assert.Equal(t, uint64(productionFee+25), h.balance(currencyAddr, admin))
	assert.Equal(t, uint64(100), h.balance(basketAddr, bob))
	assert.Equal(t, uint64(0), h.balance(currencyAddr, escrowAddr))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.OrderFills.WithLabelValues("buy")))

	// A second fill of the same tuple is rejected
	res = h.reject(alice, 0, &command.FillBuyOrder{
		Creator: bob,
		OrderTerms: command.OrderTerms{
			Basket: basketAddr, BasketAmount: 100, CurrencyAmount: 1000, Expiration: 1_800_000_000, Nonce: 1,
		},
	})
	assert.Equal(t, core.KindOrderAlreadyFilled, res.Rejection)
}

func TestEngine_SendValue(t *testing.T) {
	h := newHarness(t)
	_, _, basketAddr := h.setup()

	h.exec(alice, 40, &command.SendValue{To: bob})
	assert.Equal(t, uint64(1_000_040), h.balance(currencyAddr, bob))

	for _, to := range []common.Address{escrowAddr, factoryAddr, basketAddr, currencyAddr} {
		res := h.reject(alice, 1, &command.SendValue{To: to})
		assert.Equal(t, core.KindValueRejected, res.Rejection, to.Hex())
	}
}

func TestEngine_CurrencyTransferToContractIsRejected(t *testing.T) {
	h := newHarness(t)
	tokenA, _, basketAddr := h.setup()

	for _, to := range []common.Address{escrowAddr, factoryAddr, basketAddr, currencyAddr, tokenA} {
		before := h.balance(currencyAddr, to)
		res := h.reject(alice, 0, &command.Transfer{Token: currencyAddr, To: to, Amount: 5})
		assert.Equal(t, core.KindValueRejected, res.Rejection, to.Hex())
		assert.Equal(t, before, h.balance(currencyAddr, to), to.Hex())
	}

	h.exec(alice, 0, &command.Transfer{Token: currencyAddr, To: bob, Amount: 5})
	assert.Equal(t, uint64(1_000_005), h.balance(currencyAddr, bob))
}

func TestEngine_TokenAdmin(t *testing.T) {
	h := newHarness(t)
	tokenA, _, basketAddr := h.setup()

	res := h.reject(bob, 0, &command.PauseToken{Token: tokenA})
	assert.Equal(t, core.KindUnauthorized, res.Rejection)

	res = h.reject(alice, 0, &command.PauseToken{Token: basketAddr})
	assert.Equal(t, core.KindUnknownAsset, res.Rejection)

	res = h.exec(alice, 0, &command.MintToken{Token: tokenA, To: bob, Amount: 7})
	assert.Equal(t, uint64(7), h.balance(tokenA, bob))

	res = h.reject(alice, 0, &command.Faucet{Token: tokenA})
	assert.Equal(t, core.KindFaucetDisabled, res.Rejection)
}

func TestEngine_UnknownBasket(t *testing.T) {
	h := newHarness(t)
	res := h.reject(alice, 0, &command.Deposit{Basket: common.HexToAddress("0xdead"), Token: currencyAddr, Amount: 1})
	assert.Equal(t, core.KindUnknownBasket, res.Rejection)
}

func TestEngine_PublishDropsWhenFull(t *testing.T) {
	persist := make(chan core.Output, 16)
	publish := make(chan core.Output)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	e, err := core.NewEngine(testConfig(), persist, publish, nil, metrics)
	require.NoError(t, err)

	c, err := command.New(uuid.New(), alice, 0, time.Unix(1_700_000_000, 0), &command.Faucet{Token: currencyAddr})
	require.NoError(t, err)
	_, err = e.Execute(c)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PublishDrops))
	assert.Len(t, persist, 1)
}

type stubDB struct{ seen map[string]bool }

func (s stubDB) IsDuplicate(id string) (bool, error) { return s.seen[id], nil }

func TestEngine_DatabaseTierDeduplicates(t *testing.T) {
	id := uuid.New()
	e, err := core.NewEngine(testConfig(), nil, nil, stubDB{seen: map[string]bool{id.String(): true}}, nil)
	require.NoError(t, err)

	c, err := command.New(id, alice, 0, time.Unix(1_700_000_000, 0), &command.Faucet{Token: currencyAddr})
	require.NoError(t, err)
	res, err := e.Execute(c)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, int64(0), e.Sequence())
}

func TestEngine_StopClosesOutputs(t *testing.T) {
	h := newHarness(t)
	h.exec(alice, 0, &command.Faucet{Token: currencyAddr})

	h.engine.Stop()
	h.engine.Stop()

	res, err := h.engine.Execute(h.cmd(bob, 0, &command.Faucet{Token: currencyAddr}))
	assert.ErrorIs(t, err, core.ErrStopped)
	assert.Equal(t, core.KindStopped, res.Rejection)
	assert.Equal(t, int64(1), h.engine.Sequence())

	out, open := <-h.persist
	require.True(t, open)
	assert.Equal(t, int64(1), out.Envelope.Sequence)
	_, open = <-h.persist
	assert.False(t, open)
	_, open = <-h.publish
	assert.True(t, open, "the buffered output is still delivered")
	_, open = <-h.publish
	assert.False(t, open)
}

func TestEngine_ReplayRebuildsState(t *testing.T) {
	h := newHarness(t)
	_, _, basketAddr := h.setup()
	h.exec(alice, 15, &command.DepositAndBundle{BasketAmount: command.BasketAmount{Basket: basketAddr, Amount: 1000}})
	h.reject(bob, 0, &command.Bundle{BasketAmount: command.BasketAmount{Basket: basketAddr, Amount: 1}})
	h.exec(alice, 0, &command.Debundle{BasketAmount: command.BasketAmount{Basket: basketAddr, Amount: 400}})

	logged := toLogged(drain(h.persist))
	require.Len(t, logged, 10)

	replica, err := core.NewEngine(testConfig(), nil, nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, replica.Replay(logged))

	assert.Equal(t, h.engine.Sequence(), replica.Sequence())
	assert.Equal(t, h.engine.StateHash(), replica.StateHash())
	replica.Read(func(v core.View) {
		assert.Equal(t, uint64(600), v.Book.Balance(basketAddr, alice))
	})
}

func TestEngine_ReplayDetectsGapsAndTampering(t *testing.T) {
	h := newHarness(t)
	h.setup()
	logged := toLogged(drain(h.persist))

	replica, err := core.NewEngine(testConfig(), nil, nil, nil, nil)
	require.NoError(t, err)
	err = replica.Replay(logged[1:])
	assert.ErrorIs(t, err, core.ErrSequenceGap)

	tampered := append([]core.LoggedCommand(nil), logged...)
	tampered[2].StateHash[0] ^= 0xff
	replica, err = core.NewEngine(testConfig(), nil, nil, nil, nil)
	require.NoError(t, err)
	err = replica.Replay(tampered)
	assert.ErrorIs(t, err, core.ErrHashMismatch)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "", core.Kind(nil))
	assert.Equal(t, core.KindTransferFailed, core.Kind(custody.ErrTransferFailed))
	assert.Equal(t, core.KindOrderExpired, core.Kind(escrow.ErrOrderExpired))
	assert.Equal(t, core.KindUnknownBasket, core.Kind(registry.ErrUnknownBasket))
	assert.Equal(t, core.KindInternal, core.Kind(assert.AnError))
}

func TestStateHasher_Chains(t *testing.T) {
	a := core.NewStateHasher()
	b := core.NewStateHasher()
	assert.Equal(t, core.GenesisHash(), a.Tip())

	h1 := a.ComputeHash(1, []byte("x"))
	assert.Equal(t, h1, b.ComputeHash(1, []byte("x")))
	assert.NotEqual(t, a.ComputeHash(2, []byte("y")), b.ComputeHash(2, []byte("z")))
}

func drain(ch chan core.Output) []core.Output {
	var out []core.Output
	for {
		select {
		case o := <-ch:
			out = append(out, o)
		default:
			return out
		}
	}
}

func toLogged(outs []core.Output) []core.LoggedCommand {
	logged := make([]core.LoggedCommand, len(outs))
	for i, o := range outs {
		logged[i] = core.LoggedCommand{
			Sequence:  o.Envelope.Sequence,
			Raw:       o.Envelope.Command,
			Rejection: o.Envelope.Rejection,
			StateHash: o.Envelope.StateHash,
		}
	}
	return logged
}
