// Package ingest pulls new transaction batches from the upstream datastore
// and folds them into the historical dataset.
package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hdb-research/resale-cli/internal/dataset"
	"github.com/hdb-research/resale-cli/internal/store"
	"github.com/hdb-research/resale-cli/pkg/datagov"
)

// DefaultBatchLimit is the page size for one update run. The upstream
// rarely publishes more than this between runs.
const DefaultBatchLimit = 1000

// Result summarizes one update run.
type Result struct {
	Kind    dataset.Kind
	Fetched int
	Total   int
}

// Updater fetches, normalizes, and merges one batch per run. The stored row
// count is the offset cursor into the upstream dataset: rows are never
// deleted, so the count always points at the first unseen record.
type Updater struct {
	store  store.Store
	source datagov.Client
	merger *dataset.Merger
	norm   dataset.Normalizer
	limit  int
}

// NewUpdater wires an updater from its collaborators.
func NewUpdater(st store.Store, source datagov.Client, merger *dataset.Merger, limit int) *Updater {
	if limit <= 0 {
		limit = DefaultBatchLimit
	}
	return &Updater{store: st, source: source, merger: merger, limit: limit}
}

// Update runs one incremental update for the given dataset kind.
func (u *Updater) Update(ctx context.Context, kind dataset.Kind) (*Result, error) {
	resourceID, err := u.resourceID(ctx, kind)
	if err != nil {
		return nil, err
	}

	offset, err := u.store.CountRecords(ctx, kind)
	if err != nil {
		return nil, err
	}

	raws, err := u.source.Records(ctx, resourceID, u.limit, offset)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: fetch %s batch at offset %d", kind, offset)
	}
	if len(raws) == 0 {
		zap.L().Info("no new data to update",
			zap.String("kind", string(kind)),
			zap.Int("offset", offset))
		return &Result{Kind: kind, Total: offset}, nil
	}
	zap.L().Info("fetched new data",
		zap.String("kind", string(kind)),
		zap.Int("count", len(raws)),
		zap.Int("offset", offset))

	batch, err := u.normalize(kind, raws)
	if err != nil {
		return nil, err
	}

	old, err := u.store.LoadRecords(ctx, kind)
	if err != nil {
		return nil, err
	}

	merged, err := u.merger.Merge(ctx, old, batch)
	if err != nil {
		return nil, err
	}

	// Only the new tail is persisted; the store already holds the rest.
	if err := u.store.AppendRecords(ctx, merged[len(old):]); err != nil {
		return nil, err
	}

	return &Result{Kind: kind, Fetched: len(batch), Total: len(merged)}, nil
}

func (u *Updater) resourceID(ctx context.Context, kind dataset.Kind) (string, error) {
	switch kind {
	case dataset.KindResale:
		return u.source.ResaleResourceID(ctx)
	case dataset.KindRental:
		return u.source.RentalResourceID(ctx)
	default:
		return "", eris.Errorf("ingest: unknown dataset kind %q", kind)
	}
}

func (u *Updater) normalize(kind dataset.Kind, records []datagov.Record) ([]dataset.Record, error) {
	raws := make([]dataset.Raw, len(records))
	for i, r := range records {
		raws[i] = dataset.Raw(r)
	}
	if kind == dataset.KindRental {
		return u.norm.NormalizeRental(raws)
	}
	return u.norm.NormalizeResale(raws)
}
