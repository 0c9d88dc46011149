package testutil

import (
	"testing"
	"time"

	"BasketLedger/internal/command"
	"BasketLedger/internal/core"
	"BasketLedger/internal/custody"
	"BasketLedger/internal/escrow"
	"BasketLedger/internal/registry"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Well-known addresses used by engine-level tests.
var (
	CurrencyAddr = common.HexToAddress("0x00000000000000000000000000000000000000e0")
	FactoryAddr  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	EscrowAddr   = common.HexToAddress("0x00000000000000000000000000000000000000e5")
	Admin        = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	Alice        = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	Bob          = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

// ProductionFee charged by EngineConfig's factory.
const ProductionFee = 100

// EngineConfig is a small deployment: an 18-decimal currency with a faucet,
// a factory and an escrow book charging 250 bps.
func EngineConfig() core.Config {
	return core.Config{
		CurrencyAddress: CurrencyAddr,
		Currency:        custody.TokenConfig{Name: "Base Currency", Symbol: "BASE", Decimals: 18, FaucetAmount: 1_000_000},
		Factory: registry.FactoryConfig{
			Address:                FactoryAddr,
			Admin:                  Admin,
			ProductionFee:          ProductionFee,
			ProductionFeeRecipient: Admin,
		},
		Escrow: escrow.Config{
			Address:                 EscrowAddr,
			Admin:                   Admin,
			TransactionFeeRecipient: Admin,
			TransactionFeeBps:       250,
		},
		IdempotencyCapacity: 1024,
	}
}

// Driver submits commands with deterministic IDs and timestamps.
type Driver struct {
	t      *testing.T
	Engine *core.Engine
	next   int
}

func NewDriver(t *testing.T) *Driver {
	t.Helper()
	e, err := core.NewEngine(EngineConfig(), nil, nil, nil, nil)
	require.NoError(t, err)
	return &Driver{t: t, Engine: e}
}

// Command builds the next command without executing it.
func (d *Driver) Command(sender common.Address, value uint64, args command.Args) *command.Command {
	d.t.Helper()
	d.next++
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte{byte(d.next >> 8), byte(d.next)})
	cmd, err := command.New(id, sender, value, time.Unix(1_700_000_000+int64(d.next), 0), args)
	require.NoError(d.t, err)
	return cmd
}

// Exec executes a command that must succeed.
func (d *Driver) Exec(sender common.Address, value uint64, args command.Args) core.Result {
	d.t.Helper()
	res, err := d.Engine.Execute(d.Command(sender, value, args))
	require.NoError(d.t, err)
	return res
}

// Basket funds Alice and Bob, has Alice issue two tokens and create a basket
// of them with weights 2 and 1 at the given decimals, then approves the
// basket for both tokens.
func (d *Driver) Basket(decimals uint8) (tokenA, tokenB, basketAddr common.Address) {
	d.t.Helper()
	d.Exec(Alice, 0, &command.Faucet{Token: CurrencyAddr})
	d.Exec(Bob, 0, &command.Faucet{Token: CurrencyAddr})

	tokenA = d.Exec(Alice, 0, &command.IssueToken{Name: "Token A", Symbol: "A", Decimals: 6, Supply: 1_000_000_000}).
		Reply.(core.TokenReply).Address
	tokenB = d.Exec(Alice, 0, &command.IssueToken{Name: "Token B", Symbol: "B", Decimals: 6, Supply: 1_000_000_000}).
		Reply.(core.TokenReply).Address
	basketAddr = d.Exec(Alice, ProductionFee, &command.CreateBasket{
		Name:     "Index",
		Symbol:   "IDX",
		Decimals: decimals,
		Tokens:   []common.Address{tokenA, tokenB},
		Weights:  []uint64{2, 1},
	}).Reply.(core.BasketReply).Address

	d.Exec(Alice, 0, &command.Approve{Token: tokenA, Spender: basketAddr, Amount: custody.Unlimited})
	d.Exec(Alice, 0, &command.Approve{Token: tokenB, Spender: basketAddr, Amount: custody.Unlimited})
	return tokenA, tokenB, basketAddr
}
