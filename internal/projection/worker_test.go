package projection_test

import (
	"context"
	"testing"
	"time"

	"BasketLedger/internal/command"
	"BasketLedger/internal/core"
	"BasketLedger/internal/persistence"
	"BasketLedger/internal/projection"
	"BasketLedger/internal/query"
	"BasketLedger/internal/testutil"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_ProjectsJournal(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	persist := make(chan core.Output, 16)
	engine, err := core.NewEngine(testutil.EngineConfig(), persist, nil, nil, nil)
	require.NoError(t, err)

	cmds := []struct {
		sender common.Address
		args   command.Args
	}{
		{testutil.Alice, &command.Faucet{Token: testutil.CurrencyAddr}},
		{testutil.Bob, &command.Faucet{Token: testutil.CurrencyAddr}},
		{testutil.Alice, &command.Transfer{Token: testutil.CurrencyAddr, To: testutil.Bob, Amount: 250}},
		{testutil.Alice, &command.Transfer{Token: testutil.CurrencyAddr, To: testutil.Bob, Amount: 5_000_000}}, // rejected
	}
	for i, c := range cmds {
		cmd, err := command.New(uuid.NewSHA1(uuid.NameSpaceDNS, []byte{byte(i)}), c.sender, 0, time.Unix(1_700_000_000+int64(i), 0), c.args)
		require.NoError(t, err)
		_, _ = engine.Execute(cmd)
	}
	engine.Stop()
	require.NoError(t, persistence.NewPersistenceWorker(db, persist, 10, time.Millisecond, nil).Run(ctx))

	worker := projection.NewWorker(db, time.Second, 3)
	from, to, err := worker.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), from)
	assert.Equal(t, int64(3), to)

	head, err := worker.CatchUp(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), head)

	svc := query.NewService(engine, db)
	alice, err := svc.ProjectedBalances(ctx, testutil.Alice)
	require.NoError(t, err)
	assert.Equal(t, int64(4), alice.Watermark)
	require.Len(t, alice.Balances, 1)
	assert.Equal(t, "999750", alice.Balances[0].Balance)
	assert.Equal(t, int64(3), alice.Balances[0].LastSequence)

	var issuance string
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT balance::text FROM projections.balances WHERE account_path LIKE 'issuance:%'`,
	).Scan(&issuance))
	assert.Equal(t, "-2000000", issuance)

	rebuilt, err := worker.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), rebuilt)
	bob, err := svc.ProjectedBalances(ctx, testutil.Bob)
	require.NoError(t, err)
	require.Len(t, bob.Balances, 1)
	assert.Equal(t, "1000250", bob.Balances[0].Balance)
}
