package command_test

import (
	"testing"
	"time"

	"BasketLedger/internal/command"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sender = "0x1111111111111111111111111111111111111111"

func TestParse_DepositAndBundle(t *testing.T) {
	data := []byte(`{
		"command_id": "6f1c1c9e-2d7e-4b53-8a7e-0f5d3f6f7a10",
		"op": "deposit_and_bundle",
		"sender": "` + sender + `",
		"value": 25,
		"timestamp_us": 1700000000000000,
		"params": {"basket": "0x00000000000000000000000000000000000000bb", "amount": 100}
	}`)

	cmd, err := command.Parse(data)
	require.NoError(t, err)

	assert.Equal(t, command.OpDepositAndBundle, cmd.Op)
	assert.Equal(t, common.HexToAddress(sender), cmd.Sender)
	assert.Equal(t, uint64(25), cmd.Value)
	assert.Equal(t, int64(1_700_000_000), cmd.Timestamp.Unix())
	assert.Equal(t, "6f1c1c9e-2d7e-4b53-8a7e-0f5d3f6f7a10", cmd.IdempotencyKey())

	args, ok := cmd.Args.(*command.DepositAndBundle)
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0xbb"), args.Basket)
	assert.Equal(t, uint64(100), args.Amount)
}

func TestParse_FillBuyOrderEmbeddedTerms(t *testing.T) {
	data := []byte(`{
		"command_id": "6f1c1c9e-2d7e-4b53-8a7e-0f5d3f6f7a11",
		"op": "fill_buy_order",
		"sender": "` + sender + `",
		"timestamp_us": 1700000000000000,
		"params": {
			"creator": "0x2222222222222222222222222222222222222222",
			"basket": "0x00000000000000000000000000000000000000bb",
			"basket_amount": 10, "currency_amount": 5, "expiration": 1700003600, "nonce": 7
		}
	}`)

	cmd, err := command.Parse(data)
	require.NoError(t, err)
	args, ok := cmd.Args.(*command.FillBuyOrder)
	require.True(t, ok)
	assert.Equal(t, uint64(5), args.CurrencyAmount)
	assert.Equal(t, uint64(7), args.Nonce)
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"bad json":      `{`,
		"bad id":        `{"command_id":"x","op":"bundle","sender":"` + sender + `","timestamp_us":1}`,
		"bad sender":    `{"command_id":"6f1c1c9e-2d7e-4b53-8a7e-0f5d3f6f7a10","op":"bundle","sender":"alice","timestamp_us":1}`,
		"no timestamp":  `{"command_id":"6f1c1c9e-2d7e-4b53-8a7e-0f5d3f6f7a10","op":"bundle","sender":"` + sender + `"}`,
		"unknown op":    `{"command_id":"6f1c1c9e-2d7e-4b53-8a7e-0f5d3f6f7a10","op":"liquidate","sender":"` + sender + `","timestamp_us":1}`,
		"unknown field": `{"command_id":"6f1c1c9e-2d7e-4b53-8a7e-0f5d3f6f7a10","op":"bundle","sender":"` + sender + `","timestamp_us":1,"params":{"amount":1,"price":2}}`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := command.Parse([]byte(data))
			assert.ErrorIs(t, err, command.ErrMalformed)
		})
	}
}

func TestNew_RoundTripsThroughParse(t *testing.T) {
	id := uuid.New()
	ts := time.Unix(1_700_000_123, 456_000)
	args := &command.CreateBasket{
		Name: "Index", Symbol: "IDX",
		Tokens:  []common.Address{common.HexToAddress("0xa1"), common.HexToAddress("0xb2")},
		Weights: []uint64{1, 3},
	}

	built, err := command.New(id, common.HexToAddress(sender), 9, ts, args)
	require.NoError(t, err)

	parsed, err := command.Parse(built.Raw)
	require.NoError(t, err)
	assert.Equal(t, built.ID, parsed.ID)
	assert.Equal(t, built.Timestamp, parsed.Timestamp)
	assert.Equal(t, args, parsed.Args)
}

func TestEveryOpHasArgs(t *testing.T) {
	for _, op := range command.Ops() {
		data := `{"command_id":"6f1c1c9e-2d7e-4b53-8a7e-0f5d3f6f7a10","op":"` + string(op) + `","sender":"` + sender + `","timestamp_us":1}`
		cmd, err := command.Parse([]byte(data))
		require.NoError(t, err, "op %s", op)
		assert.Equal(t, op, cmd.Args.Op())
	}
}
