package core

import (
	"fmt"

	"BasketLedger/internal/observability"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DBIdempotencyChecker is the tier-2 lookup against the persisted command log.
type DBIdempotencyChecker interface {
	IsDuplicate(commandID string) (bool, error)
}

// IdempotencyChecker implements two-tier deduplication: an in-memory LRU of
// recently processed command IDs in front of an optional Postgres lookup.
type IdempotencyChecker struct {
	recent    *lru.Cache[string, struct{}]
	dbChecker DBIdempotencyChecker
	metrics   *observability.Metrics
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker, metrics *observability.Metrics) (*IdempotencyChecker, error) {
	cache, err := lru.New[string, struct{}](capacity)
	if err != nil {
		return nil, fmt.Errorf("idempotency lru: %w", err)
	}
	return &IdempotencyChecker{
		recent:    cache,
		dbChecker: dbChecker,
		metrics:   metrics,
	}, nil
}

// IsDuplicate checks whether commandID was already processed. A failing
// tier-2 lookup counts as not-a-duplicate so a database outage cannot stall
// the engine; the command log's unique key still rejects the second write.
func (ic *IdempotencyChecker) IsDuplicate(op, commandID string) bool {
	if ic.recent.Contains(commandID) {
		ic.recordDuplicate(op, "lru")
		return true
	}
	if ic.dbChecker == nil {
		return false
	}

	isDup, err := ic.dbChecker.IsDuplicate(commandID)
	if err != nil {
		if ic.metrics != nil {
			ic.metrics.DedupTier2Errors.Inc()
		}
		return false
	}
	if isDup {
		ic.recordDuplicate(op, "postgres")
		ic.recent.Add(commandID, struct{}{})
		return true
	}
	return false
}

// MarkProcessed records commandID after it was sequenced.
func (ic *IdempotencyChecker) MarkProcessed(commandID string) {
	ic.recent.Add(commandID, struct{}{})
	if ic.metrics != nil {
		ic.metrics.DedupLRUSize.Set(float64(ic.recent.Len()))
	}
}

func (ic *IdempotencyChecker) recordDuplicate(op, tier string) {
	if ic.metrics != nil {
		ic.metrics.IdempotencyDuplicates.WithLabelValues(op, tier).Inc()
	}
}
