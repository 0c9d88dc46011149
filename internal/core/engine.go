package core

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"BasketLedger/internal/basket"
	"BasketLedger/internal/command"
	"BasketLedger/internal/custody"
	"BasketLedger/internal/escrow"
	"BasketLedger/internal/event"
	"BasketLedger/internal/ledger"
	"BasketLedger/internal/observability"
	"BasketLedger/internal/registry"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// supplyCheckInterval is how often, in commands, the global supply
// conservation check runs over the whole book.
const supplyCheckInterval = 1000

// Config wires the in-process contracts the engine hosts.
type Config struct {
	CurrencyAddress     common.Address
	Currency            custody.TokenConfig
	Factory             registry.FactoryConfig
	Escrow              escrow.Config
	IdempotencyCapacity int
	CheckpointInterval  int64 // Zero disables checkpoints
}

// Output is one sequenced command ready for persistence and publication.
type Output struct {
	Envelope   *event.CommandEnvelope
	Batch      *ledger.Batch
	Checkpoint *Checkpoint // Set every CheckpointInterval commands
}

// Result reports the outcome of Execute.
type Result struct {
	Sequence  int64          `json:"sequence"`
	Duplicate bool           `json:"duplicate,omitempty"`
	Rejection string         `json:"rejection,omitempty"`
	Error     string         `json:"error,omitempty"`
	Events    []event.Record `json:"events,omitempty"`
	Reply     any            `json:"reply,omitempty"`
	StateHash string         `json:"state_hash,omitempty"`
}

// Engine executes commands one at a time against the basket ledger, the
// order book and the token book they share. Every command either commits
// completely or leaves no trace beyond its rejection record.
type Engine struct {
	mu sync.Mutex

	sequence  int64
	hasher    *StateHasher
	book      *ledger.Book
	validator *ledger.InvariantValidator
	recorder  *event.Recorder

	currency *custody.Token
	assets   *custody.Directory
	registry *registry.Registry
	factory  *registry.Factory
	escrow   *escrow.OrderBook

	idempotency *IdempotencyChecker
	metrics     *observability.Metrics
	logger      zerolog.Logger

	persistChan        chan<- Output
	publishChan        chan<- Output
	checkpointInterval int64
	stopped            bool

	// Set by dispatch for the post-command checks
	touched *basket.Basket
}

func NewEngine(
	cfg Config,
	persistChan, publishChan chan<- Output,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) (*Engine, error) {
	book := ledger.NewBook()
	recorder := event.NewRecorder()

	currency := custody.NewToken(book, cfg.CurrencyAddress, cfg.Currency)
	assets := custody.NewDirectory()
	if err := assets.Register(currency); err != nil {
		return nil, err
	}
	reg := registry.New()

	factory, err := registry.NewFactory(book, currency, assets, reg, cfg.Factory, recorder)
	if err != nil {
		return nil, fmt.Errorf("factory: %w", err)
	}
	orderBook, err := escrow.New(book, currency, reg, cfg.Escrow, recorder)
	if err != nil {
		return nil, fmt.Errorf("escrow: %w", err)
	}

	capacity := cfg.IdempotencyCapacity
	if capacity <= 0 {
		capacity = 1_000_000
	}
	idem, err := NewIdempotencyChecker(capacity, dbChecker, metrics)
	if err != nil {
		return nil, err
	}

	return &Engine{
		hasher:             NewStateHasher(),
		book:               book,
		validator:          ledger.NewInvariantValidator(book),
		recorder:           recorder,
		currency:           currency,
		assets:             assets,
		registry:           reg,
		factory:            factory,
		escrow:             orderBook,
		idempotency:        idem,
		metrics:            metrics,
		logger:             observability.NewLogger("engine"),
		persistChan:        persistChan,
		publishChan:        publishChan,
		checkpointInterval: cfg.CheckpointInterval,
	}, nil
}

// Execute runs one command. Domain failures are returned as the error and
// recorded in the log as a rejection; duplicates are a no-op success.
func (e *Engine) Execute(cmd *command.Command) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return Result{Rejection: KindStopped, Error: ErrStopped.Error()}, ErrStopped
	}

	start := time.Now()
	op := string(cmd.Op)

	if e.idempotency.IsDuplicate(op, cmd.IdempotencyKey()) {
		return Result{Duplicate: true, Rejection: KindDuplicate}, nil
	}

	out, result, err := e.apply(cmd)
	e.emit(out)
	e.idempotency.MarkProcessed(cmd.IdempotencyKey())

	if e.metrics != nil {
		if err != nil {
			e.metrics.CommandsRejected.WithLabelValues(op, result.Rejection).Inc()
		} else {
			e.metrics.CommandsApplied.WithLabelValues(op).Inc()
		}
		e.metrics.CommandDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		e.metrics.Sequence.Set(float64(e.sequence))
	}
	return result, err
}

// Stop refuses further commands and closes the output channels so the
// persistence and publish workers drain and exit. Commands already executed
// have been handed to the channels by the time Stop returns.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	e.stopped = true
	if e.persistChan != nil {
		close(e.persistChan)
	}
	if e.publishChan != nil {
		close(e.publishChan)
	}
	e.logger.Info().Int64("sequence", e.sequence).Msg("engine stopped")
}

// apply sequences cmd and returns its output. It never sends anything.
func (e *Engine) apply(cmd *command.Command) (Output, Result, error) {
	seq := e.sequence + 1
	e.book.Begin(cmd.IdempotencyKey(), seq, cmd.Timestamp.Unix())
	e.recorder.Reset()
	e.touched = nil

	reply, err := e.dispatch(cmd)
	if err != nil {
		e.book.Rollback()
		e.recorder.Reset()
		e.logger.Warn().
			Str("command_id", cmd.IdempotencyKey()).
			Str("op", string(cmd.Op)).
			Str("sender", cmd.Sender.Hex()).
			Str("reason", Kind(err)).
			Err(err).
			Msg("command rejected")
	}
	batch := e.book.Commit()

	if vErr := batch.Validate(); vErr != nil {
		e.logger.Error().Err(vErr).Int64("sequence", seq).Msg("malformed batch")
		panic(fmt.Sprintf("FATAL: malformed batch: %v", vErr))
	}
	if err == nil {
		if cErr := e.postCheckInvariants(seq); cErr != nil {
			e.logger.Error().Err(cErr).Int64("sequence", seq).Msg("invariant violated")
			panic(fmt.Sprintf("FATAL: invariant violated: %v", cErr))
		}
	}

	records, encErr := event.Encode(e.recorder.Events())
	if encErr != nil {
		panic(fmt.Sprintf("FATAL: encode events: %v", encErr))
	}
	e.observe(cmd, batch)

	hashStart := time.Now()
	prev := e.hasher.Tip()
	stateHash := e.hasher.ComputeHash(seq, e.computeStateDigest(batch))
	if e.metrics != nil {
		e.metrics.StateHashDur.Observe(time.Since(hashStart).Seconds())
	}
	e.sequence = seq

	envelope := &event.CommandEnvelope{
		Sequence:  seq,
		CommandID: cmd.IdempotencyKey(),
		Op:        string(cmd.Op),
		Sender:    cmd.Sender.Hex(),
		Timestamp: cmd.Timestamp,
		Command:   cmd.Raw,
		Rejection: Kind(err),
		Events:    records,
		StateHash: stateHash,
		PrevHash:  prev,
	}

	result := Result{
		Sequence:  seq,
		Rejection: Kind(err),
		Events:    records,
		Reply:     reply,
		StateHash: common.Hash(stateHash).Hex(),
	}
	if err != nil {
		result.Error = err.Error()
		result.Reply = nil
	}
	out := Output{Envelope: envelope, Batch: batch}
	if e.checkpointInterval > 0 && seq%e.checkpointInterval == 0 {
		cp := e.checkpoint()
		out.Checkpoint = &cp
	}
	return out, result, err
}

// emit sends out to persistence and publication.
func (e *Engine) emit(out Output) {
	// Persistence: blocking send. The engine stalls until the writer drains,
	// so no sequenced command is lost.
	if e.persistChan != nil {
		select {
		case e.persistChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.PersistBackpressure.Inc()
			}
			e.persistChan <- out
		}
	}

	// Publication: non-blocking send, dropped when full. Subscribers can
	// rebuild from the command log.
	if e.publishChan != nil {
		select {
		case e.publishChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.PublishDrops.Inc()
			}
		}
	}
}

// postCheckInvariants validates the contracts touched by the command. The
// global supply check runs periodically.
func (e *Engine) postCheckInvariants(seq int64) error {
	if e.touched != nil {
		if err := e.touched.CheckInvariants(); err != nil {
			return fmt.Errorf("basket %s: %w", e.touched.Address().Hex(), err)
		}
	}
	if err := e.escrow.CheckInvariants(); err != nil {
		return fmt.Errorf("escrow: %w", err)
	}
	if seq%supplyCheckInterval == 0 {
		if err := e.validator.ValidateSupply(); err != nil {
			return fmt.Errorf("supply at seq %d: %w", seq, err)
		}
		for _, d := range e.registry.List() {
			b, _ := e.registry.Basket(d.Address)
			if err := b.CheckInvariants(); err != nil {
				return fmt.Errorf("basket %s: %w", d.Address.Hex(), err)
			}
		}
	}
	return nil
}

// observe updates domain metrics from the command's events.
func (e *Engine) observe(cmd *command.Command, batch *ledger.Batch) {
	if e.metrics == nil {
		return
	}
	for _, j := range batch.Journals {
		e.metrics.Journals.WithLabelValues(j.JournalType.String()).Inc()
	}
	for _, evt := range e.recorder.Events() {
		switch ev := evt.(type) {
		case *event.WithdrawalDeferred:
			e.metrics.DeferredWithdrawals.WithLabelValues(ev.Basket.Hex(), ev.Token.Hex()).Inc()
		case *event.Bundled:
			e.metrics.FeesCollected.WithLabelValues(event.ScopeArranger).Add(float64(ev.ArrangerFee))
		case *event.BasketCreated:
			e.metrics.FeesCollected.WithLabelValues(event.ScopeProduction).Add(float64(ev.ProductionFee))
		case *event.OrderFilled:
			e.metrics.OrderFills.WithLabelValues(ev.Direction).Inc()
			e.metrics.FeesCollected.WithLabelValues(event.ScopeTransaction).Add(float64(ev.TransactionFee))
		}
	}
	if b := e.touched; b != nil {
		e.metrics.BasketSupply.WithLabelValues(b.Address().Hex()).Set(float64(b.TotalSupply()))
		for _, tok := range b.Tokens() {
			e.metrics.OutstandingBalance.WithLabelValues(b.Address().Hex(), tok.Hex()).Set(float64(b.OutstandingTotal(tok)))
		}
	}
	e.metrics.OrdersOpen.Set(float64(e.escrow.OpenOrders()))
}

// computeStateDigest creates canonical bytes over every account the batch
// touched, sorted by account path, followed by the claim state of the basket
// the command addressed and every order it created, cancelled or filled.
func (e *Engine) computeStateDigest(batch *ledger.Batch) []byte {
	affected := make(map[ledger.AccountKey]bool)
	for _, j := range batch.Journals {
		affected[j.DebitAccount] = true
		affected[j.CreditAccount] = true
	}

	accounts := make([]ledger.AccountKey, 0, len(affected))
	for key := range affected {
		accounts = append(accounts, key)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	digest := make([]byte, 0, len(accounts)*96)
	for _, key := range accounts {
		var balance uint64
		if key.IsIssuance() {
			balance = e.book.Supply(key.Asset)
		} else {
			balance = e.book.Balance(key.Asset, key.Owner)
		}

		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, path...)
		digest = appendUint64LE(digest, balance)
	}

	if e.touched != nil {
		digest = e.touched.AppendDigest(digest)
	}
	for _, evt := range e.recorder.Events() {
		var key common.Hash
		switch ev := evt.(type) {
		case *event.OrderCreated:
			key = ev.Key
		case *event.OrderCancelled:
			key = ev.Key
		case *event.OrderFilled:
			key = ev.Key
		default:
			continue
		}
		order, ok := e.escrow.Order(key)
		if !ok {
			continue
		}
		digest = append(digest, key.Bytes()...)
		digest = append(digest, byte(order.State))
		digest = appendUint64LE(digest, order.Index)
	}
	return digest
}

func appendUint64LE(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// Sequence returns the last assigned sequence.
func (e *Engine) Sequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}

// StateHash returns the current chain tip.
func (e *Engine) StateHash() [32]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasher.Tip()
}

// View is read access to engine state. It is only valid inside Read.
type View struct {
	Sequence  int64
	StateHash [32]byte
	Currency  *custody.Token
	Assets    *custody.Directory
	Registry  *registry.Registry
	Factory   *registry.Factory
	Escrow    *escrow.OrderBook
	Book      *ledger.Book
}

// Read runs fn with a consistent view of state, serialized with commands.
func (e *Engine) Read(fn func(v View)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(View{
		Sequence:  e.sequence,
		StateHash: e.hasher.Tip(),
		Currency:  e.currency,
		Assets:    e.assets,
		Registry:  e.registry,
		Factory:   e.factory,
		Escrow:    e.escrow,
		Book:      e.book,
	})
}

// Checkpoint is a point-in-time copy of every balance and the chain tip.
type Checkpoint struct {
	Sequence  int64
	StateHash [32]byte
	Balances  map[string]uint64 // Account path to balance
}

// Checkpoint captures the current state.
func (e *Engine) Checkpoint() Checkpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkpoint()
}

func (e *Engine) checkpoint() Checkpoint {
	snap := e.book.Snapshot()
	balances := make(map[string]uint64, len(snap))
	for key, v := range snap {
		balances[key.AccountPath()] = v
	}
	return Checkpoint{
		Sequence:  e.sequence,
		StateHash: e.hasher.Tip(),
		Balances:  balances,
	}
}
