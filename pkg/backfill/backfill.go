// Package backfill reconstructs an account's historical transfers from chain
// events and the hosted indexer, and merges them into the transfer store.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainsafe/bridge-tracker/internal/metrics"
	"github.com/chainsafe/bridge-tracker/pkg/config"
	"github.com/chainsafe/bridge-tracker/pkg/ethereum"
	"github.com/chainsafe/bridge-tracker/pkg/transfer"
	"github.com/chainsafe/bridge-tracker/pkg/transferstore"
)

// Fetcher produces the account's transfers within one page of blocks
type Fetcher interface {
	Name() string
	FetchPage(ctx context.Context, account common.Address, page ethereum.BlockRange) ([]transfer.Transfer, error)
}

// Dispatcher applies actions to the transfer store
type Dispatcher interface {
	Dispatch(ctx context.Context, actions ...transferstore.Action) ([]transferstore.Note, error)
}

// FailedPage is a page that could not be fetched after all retries
type FailedPage struct {
	Fetcher string
	Page    ethereum.BlockRange
	Err     error
}

// Result is the outcome of a backfill run
type Result struct {
	// Transfers is the merged set, newest first
	Transfers []transfer.Transfer
	// Inserted counts transfers the store did not know before
	Inserted int
	Failed   []FailedPage
}

// Reconciler fetches historical transfers and merges them into the store.
// Fetchers are ordered by precedence: on duplicate ids the earlier fetcher's record wins.
type Reconciler struct {
	fetchers []Fetcher
	store    Dispatcher
	cfg      config.BackfillConfig
	logger   *zap.Logger
}

// New creates a new Reconciler
func New(store Dispatcher, cfg config.BackfillConfig, logger *zap.Logger, fetchers ...Fetcher) *Reconciler {
	return &Reconciler{
		fetchers: fetchers,
		store:    store,
		cfg:      cfg,
		logger:   logger.Named("backfill"),
	}
}

// Fetch queries every fetcher over the ranges and returns the merged transfers.
// Pages that fail after retries are listed in the result and joined into the
// returned error; transfers from other pages are still returned.
func (r *Reconciler) Fetch(ctx context.Context, account common.Address, ranges ...ethereum.BlockRange) (Result, error) {
	perFetcher := make([][]transfer.Transfer, len(r.fetchers))
	var (
		mu     sync.Mutex
		failed []FailedPage
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range r.fetchers {
		g.Go(func() error {
			found, pageFailures := r.fetchAll(gctx, f, account, ranges)
			perFetcher[i] = found

			mu.Lock()
			failed = append(failed, pageFailures...)
			mu.Unlock()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	sort.Slice(failed, func(i, j int) bool {
		if failed[i].Fetcher != failed[j].Fetcher {
			return failed[i].Fetcher < failed[j].Fetcher
		}
		return failed[i].Page.From < failed[j].Page.From
	})

	res := Result{Transfers: Merge(perFetcher...), Failed: failed}
	errs := make([]error, 0, len(failed))
	for _, fp := range failed {
		errs = append(errs, fmt.Errorf("%s %s [%d, %d]: %w", fp.Fetcher, fp.Page.Layer, fp.Page.From, fp.Page.To, fp.Err))
	}
	return res, errors.Join(errs...)
}

// Backfill fetches the ranges and inserts the result. Ids already in the store
// are left untouched.
func (r *Reconciler) Backfill(ctx context.Context, account common.Address, ranges ...ethereum.BlockRange) (Result, error) {
	start := time.Now()
	res, fetchErr := r.Fetch(ctx, account, ranges...)
	if len(res.Transfers) == 0 {
		r.logger.Info("Backfill found no transfers",
			zap.Int("failed_pages", len(res.Failed)),
			zap.Duration("took", time.Since(start)))
		return res, fetchErr
	}

	notes, err := r.store.Dispatch(ctx, transferstore.InsertMany{Transfers: res.Transfers})
	if err != nil {
		return res, errors.Join(fetchErr, fmt.Errorf("failed to insert backfilled transfers: %w", err))
	}

	duplicates := 0
	for _, n := range notes {
		if n.Kind == transferstore.NoteDuplicate {
			duplicates++
		}
	}
	res.Inserted = len(res.Transfers) - duplicates

	r.logger.Info("Backfill complete",
		zap.Int("fetched", len(res.Transfers)),
		zap.Int("inserted", res.Inserted),
		zap.Int("failed_pages", len(res.Failed)),
		zap.Duration("took", time.Since(start)))
	return res, fetchErr
}

// fetchAll walks every page of every range sequentially
func (r *Reconciler) fetchAll(ctx context.Context, f Fetcher, account common.Address, ranges []ethereum.BlockRange) ([]transfer.Transfer, []FailedPage) {
	var (
		out    []transfer.Transfer
		failed []FailedPage
	)
	for _, rng := range ranges {
		for _, page := range rng.Pages(r.cfg.PageSize) {
			if ctx.Err() != nil {
				return out, failed
			}
			found, err := r.fetchPage(ctx, f, account, page)
			if err != nil {
				metrics.BackfillPages.WithLabelValues(f.Name(), "failed").Inc()
				r.logger.Warn("Backfill page failed",
					zap.String("fetcher", f.Name()),
					zap.String("layer", string(page.Layer)),
					zap.Uint64("from", page.From),
					zap.Uint64("to", page.To),
					zap.Error(err))
				failed = append(failed, FailedPage{Fetcher: f.Name(), Page: page, Err: err})
				continue
			}
			metrics.BackfillPages.WithLabelValues(f.Name(), "ok").Inc()
			metrics.BackfillTransfers.WithLabelValues(f.Name()).Add(float64(len(found)))
			out = append(out, found...)
		}
	}
	return out, failed
}

func (r *Reconciler) fetchPage(ctx context.Context, f Fetcher, account common.Address, page ethereum.BlockRange) ([]transfer.Transfer, error) {
	b := backoff.NewExponentialBackOff()
	if r.cfg.RetryDelay > 0 {
		b.InitialInterval = r.cfg.RetryDelay
	}
	b.MaxElapsedTime = 0

	var found []transfer.Transfer
	err := backoff.RetryNotify(func() error {
		var err error
		found, err = f.FetchPage(ctx, account, page)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, r.cfg.MaxRetries), ctx), func(err error, wait time.Duration) {
		r.logger.Debug("Retrying backfill page",
			zap.String("fetcher", f.Name()),
			zap.Uint64("from", page.From),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	return found, err
}

// Merge combines transfer lists by id. The first list holding an id wins.
// The result is ordered newest first, then by id.
func Merge(lists ...[]transfer.Transfer) []transfer.Transfer {
	seen := make(map[string]struct{})
	var out []transfer.Transfer
	for _, list := range lists {
		for _, t := range list {
			id := transfer.NormalizeID(t.ID)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			t = t.Clone()
			t.ID = id
			out = append(out, t)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].TimestampCreated.Equal(out[j].TimestampCreated) {
			return out[i].TimestampCreated.After(out[j].TimestampCreated)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Lookback returns the ranges covering the last blocks of each layer up to the given heads
func Lookback(parentHead, parentBlocks, childHead, childBlocks uint64) []ethereum.BlockRange {
	var out []ethereum.BlockRange
	if parentBlocks > 0 {
		out = append(out, ethereum.BlockRange{Layer: ethereum.LayerParent, From: floor(parentHead, parentBlocks), To: parentHead})
	}
	if childBlocks > 0 {
		out = append(out, ethereum.BlockRange{Layer: ethereum.LayerChild, From: floor(childHead, childBlocks), To: childHead})
	}
	return out
}

func floor(head, blocks uint64) uint64 {
	if blocks > head {
		return 0
	}
	return head - blocks + 1
}
