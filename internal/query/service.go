package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"BasketLedger/internal/basket"
	"BasketLedger/internal/core"
	"BasketLedger/internal/escrow"
	"BasketLedger/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrNoDatabase   = errors.New("journal history requires a database")
)

// Reader gives consistent access to engine state. *core.Engine implements it.
type Reader interface {
	Read(fn func(v core.View))
}

// Service answers read-only queries. Basket, holder and order state comes
// straight from the engine under its lock; journal history comes from the
// persisted log when a database is configured. Every response carries the
// sequence it reflects.
type Service struct {
	reader Reader
	db     *sql.DB
}

func NewService(reader Reader, db *sql.DB) *Service {
	return &Service{reader: reader, db: db}
}

// ParseAddress validates a hex address from a request.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: address %q", ErrInvalidInput, s)
	}
	return common.HexToAddress(s), nil
}

// ParseKey validates a 32-byte hex order key.
func ParseKey(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: order key %q", ErrInvalidInput, s)
	}
	return common.BytesToHash(b), nil
}

// GetBasket returns the composition and accounting totals of a basket.
func (s *Service) GetBasket(addr common.Address) (*BasketResponse, error) {
	var (
		resp *BasketResponse
		err  error
	)
	s.reader.Read(func(v core.View) {
		b, lookupErr := v.Registry.Basket(addr)
		if lookupErr != nil {
			err = fmt.Errorf("%w: basket %s", ErrNotFound, addr.Hex())
			return
		}
		d, _ := v.Registry.Details(addr)
		resp = basketResponse(v, b, d.Index)
	})
	return resp, err
}

func basketResponse(v core.View, b *basket.Basket, index uint64) *BasketResponse {
	weights := b.Weights()
	tokens := b.Tokens()
	components := make([]Component, len(tokens))
	for i, tok := range tokens {
		dec := decimalsOf(v, tok)
		components[i] = Component{
			Token:    tok,
			Symbol:   symbolOf(v, tok),
			Weight:   weights[i],
			Reserve:  NewAmount(b.Reserve(tok), dec),
			Claims:   NewAmount(b.Claims(tok), dec),
			Custody:  NewAmount(v.Book.Balance(tok, b.Address()), dec),
			Deferred: NewAmount(b.OutstandingTotal(tok), dec),
		}
	}

	fee := b.ArrangerFee()
	return &BasketResponse{
		Address:              b.Address(),
		Index:                index,
		Name:                 b.Name(),
		Symbol:               b.Symbol(),
		Decimals:             b.Decimals(),
		Arranger:             b.Arranger(),
		ArrangerFeeBps:       fee.Bps,
		ArrangerFeeRecipient: fee.Recipient,
		Components:           components,
		TotalMinted:          NewAmount(b.TotalMinted(), b.Decimals()),
		TotalBurned:          NewAmount(b.TotalBurned(), b.Decimals()),
		TotalSupply:          NewAmount(b.TotalSupply(), b.Decimals()),
		AsOfSequence:         v.Sequence,
	}
}

// GetHolder returns a holder's basket balance and per-token claims.
func (s *Service) GetHolder(basketAddr, holder common.Address) (*HolderResponse, error) {
	var (
		resp *HolderResponse
		err  error
	)
	s.reader.Read(func(v core.View) {
		b, lookupErr := v.Registry.Basket(basketAddr)
		if lookupErr != nil {
			err = fmt.Errorf("%w: basket %s", ErrNotFound, basketAddr.Hex())
			return
		}
		tokens := b.Tokens()
		resp = &HolderResponse{
			Basket:       basketAddr,
			Holder:       holder,
			Balance:      NewAmount(b.BalanceOf(holder), b.Decimals()),
			Tokens:       make([]HolderToken, len(tokens)),
			AsOfSequence: v.Sequence,
		}
		for i, tok := range tokens {
			dec := decimalsOf(v, tok)
			resp.Tokens[i] = HolderToken{
				Token:        tok,
				Pending:      NewAmount(b.PendingDeposit(holder, tok), dec),
				Withdrawable: NewAmount(b.Withdrawable(holder, tok), dec),
				Outstanding:  NewAmount(b.Outstanding(holder, tok), dec),
				Wallet:       NewAmount(b.WalletBalance(holder, tok), dec),
			}
		}
	})
	return resp, err
}

// GetOrder returns the order stored under key.
func (s *Service) GetOrder(key common.Hash) (*OrderResponse, error) {
	var (
		resp *OrderResponse
		err  error
	)
	s.reader.Read(func(v core.View) {
		o, ok := v.Escrow.Order(key)
		if !ok {
			err = fmt.Errorf("%w: order %s", ErrNotFound, key.Hex())
			return
		}
		r := orderResponse(v, o)
		r.AsOfSequence = v.Sequence
		resp = &r
	})
	return resp, err
}

// ListOrders returns orders in creation order, filtered by f.
func (s *Service) ListOrders(f OrderFilter) (*OrderList, error) {
	if f.State != "" && f.State != "open" && f.State != "filled" && f.State != "cancelled" {
		return nil, fmt.Errorf("%w: state %q", ErrInvalidInput, f.State)
	}
	list := &OrderList{Orders: []OrderResponse{}}
	s.reader.Read(func(v core.View) {
		list.AsOfSequence = v.Sequence
		for _, o := range v.Escrow.Orders() {
			if f.State != "" && o.State.String() != f.State {
				continue
			}
			if f.Basket != (common.Address{}) && o.Basket != f.Basket {
				continue
			}
			if f.Creator != (common.Address{}) && o.Creator != f.Creator {
				continue
			}
			list.Orders = append(list.Orders, orderResponse(v, o))
		}
	})
	return list, nil
}

func orderResponse(v core.View, o escrow.Order) OrderResponse {
	return OrderResponse{
		Key:            o.Key,
		Index:          o.Index,
		Direction:      o.Direction.String(),
		State:          o.State.String(),
		Creator:        o.Creator,
		Basket:         o.Basket,
		BasketAmount:   NewAmount(o.BasketAmount, decimalsOf(v, o.Basket)),
		CurrencyAmount: NewAmount(o.CurrencyAmount, v.Currency.Decimals()),
		Expiration:     o.Expiration,
		Nonce:          o.Nonce,
	}
}

// VerifyIntegrity runs every conservation check against current state.
func (s *Service) VerifyIntegrity() *IntegrityReport {
	report := &IntegrityReport{}
	s.reader.Read(func(v core.View) {
		report.Sequence = v.Sequence
		report.StateHash = common.Hash(v.StateHash).Hex()

		if err := ledger.NewInvariantValidator(v.Book).ValidateSupply(); err != nil {
			report.Violations = append(report.Violations, err.Error())
		}
		if err := v.Escrow.CheckInvariants(); err != nil {
			report.Violations = append(report.Violations, "escrow: "+err.Error())
		}
		for _, d := range v.Registry.List() {
			b, _ := v.Registry.Basket(d.Address)
			if err := b.CheckInvariants(); err != nil {
				report.Violations = append(report.Violations, d.Address.Hex()+": "+err.Error())
			}
			report.BasketsChecked++
		}
	})
	report.IsHealthy = len(report.Violations) == 0
	return report
}

// JournalHistory returns the most recent persisted journal entries that
// touch account, newest first.
func (s *Service) JournalHistory(ctx context.Context, account string, limit int) ([]JournalEntry, error) {
	if s.db == nil {
		return nil, ErrNoDatabase
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT journal_id, sequence, debit_account, credit_account, asset, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE debit_account = $1 OR credit_account = $1
		ORDER BY sequence DESC, journal_id
		LIMIT $2
	`, account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []JournalEntry{}
	for rows.Next() {
		var (
			e      JournalEntry
			amount decimal.Decimal
			jt     int32
		)
		if err := rows.Scan(&e.JournalID, &e.Sequence, &e.DebitAccount, &e.CreditAccount,
			&e.Asset, &amount, &jt, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Amount = amount.String()
		e.JournalType = ledger.JournalType(jt).String()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ProjectedBalances returns the database projection of every account owned
// by owner. It trails the engine by the projection worker's lag.
func (s *Service) ProjectedBalances(ctx context.Context, owner common.Address) (*ProjectedBalances, error) {
	if s.db == nil {
		return nil, ErrNoDatabase
	}
	out := &ProjectedBalances{Balances: []ProjectedBalance{}}

	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(last_sequence), 0) FROM projections.watermark`,
	).Scan(&out.Watermark)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT account_path, asset, balance, last_sequence
		FROM projections.balances
		WHERE account_path LIKE $1
		ORDER BY account_path
	`, "holder:"+owner.Hex()+":%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			b       ProjectedBalance
			balance decimal.Decimal
		)
		if err := rows.Scan(&b.AccountPath, &b.Asset, &balance, &b.LastSequence); err != nil {
			return nil, err
		}
		b.Balance = balance.String()
		out.Balances = append(out.Balances, b)
	}
	return out, rows.Err()
}

func decimalsOf(v core.View, addr common.Address) uint8 {
	asset, err := v.Assets.Lookup(addr)
	if err != nil {
		return 0
	}
	if d, ok := asset.(interface{ Decimals() uint8 }); ok {
		return d.Decimals()
	}
	return 0
}

func symbolOf(v core.View, addr common.Address) string {
	asset, err := v.Assets.Lookup(addr)
	if err != nil {
		return ""
	}
	if s, ok := asset.(interface{ Symbol() string }); ok {
		return s.Symbol()
	}
	return ""
}
