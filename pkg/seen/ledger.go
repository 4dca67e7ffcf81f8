// Package seen tracks which transfers have already been surfaced to the user.
package seen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/internal/metrics"
	"github.com/chainsafe/bridge-tracker/pkg/kv"
	"github.com/chainsafe/bridge-tracker/pkg/transfer"
)

// DocumentKey is the storage key of the persisted ledger
const DocumentKey = "bridge-tracker:seen-transfers"

// Source supplies the ids already held by the transfer store
type Source interface {
	IDs() []string
}

// Snapshot is the persisted shape of the ledger
type Snapshot struct {
	IDs       []string  `json:"ids"`
	CreatedAt time.Time `json:"createdAt"`
}

// Ledger is a set of seen transfer ids plus the time the set was created.
// It is safe for concurrent use.
type Ledger struct {
	storage kv.Storage
	source  Source
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	loaded    bool
	ids       mapset.Set[string]
	createdAt time.Time
}

// New creates a new Ledger
func New(storage kv.Storage, source Source, logger *zap.Logger) *Ledger {
	return &Ledger{
		storage: storage,
		source:  source,
		logger:  logger,
		now:     time.Now,
		ids:     mapset.NewThreadUnsafeSet[string](),
	}
}

// GetSeen returns the seen ids and the ledger creation time.
// The first read of a missing or empty ledger seeds it from the transfer
// store so history that predates the ledger is never reported as new.
func (l *Ledger) GetSeen(ctx context.Context) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureLoaded(ctx); err != nil {
		return Snapshot{}, err
	}
	return l.snapshot(), nil
}

// MarkSeen adds ids to the ledger and persists it
func (l *Ledger) MarkSeen(ctx context.Context, ids ...string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureLoaded(ctx); err != nil {
		return err
	}

	added := 0
	for _, id := range ids {
		if l.ids.Add(transfer.NormalizeID(id)) {
			added++
		}
	}
	if added == 0 {
		return nil
	}
	return l.persist(ctx)
}

// NewTransfers filters transfers down to those created after the ledger and not yet seen
func (l *Ledger) NewTransfers(ctx context.Context, transfers []transfer.Transfer) ([]transfer.Transfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	var out []transfer.Transfer
	for _, t := range transfers {
		if l.ids.Contains(transfer.NormalizeID(t.ID)) {
			continue
		}
		if !t.TimestampCreated.After(l.createdAt) {
			continue
		}
		out = append(out, t)
	}
	metrics.NewTransfers.Set(float64(len(out)))
	return out, nil
}

func (l *Ledger) ensureLoaded(ctx context.Context) error {
	if l.loaded {
		return nil
	}

	data, err := l.storage.Get(ctx, DocumentKey)
	switch {
	case errors.Is(err, kv.ErrNotFound):
	case err != nil:
		return fmt.Errorf("failed to load seen transfers: %w", err)
	default:
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return fmt.Errorf("failed to decode seen transfers: %w", err)
		}
		if len(snap.IDs) > 0 || !snap.CreatedAt.IsZero() {
			l.ids = mapset.NewThreadUnsafeSet(snap.IDs...)
			l.createdAt = snap.CreatedAt
			l.loaded = true
			return nil
		}
	}

	return l.bootstrap(ctx)
}

func (l *Ledger) bootstrap(ctx context.Context) error {
	ids := l.source.IDs()
	l.ids = mapset.NewThreadUnsafeSet(ids...)
	l.createdAt = l.now().UTC()
	l.loaded = true

	l.logger.Info("Bootstrapped seen transfers ledger",
		zap.Int("count", len(ids)),
		zap.Time("created_at", l.createdAt))

	// memory stays authoritative; the next write retries
	if err := l.persist(ctx); err != nil {
		l.logger.Warn("Failed to persist bootstrapped ledger", zap.Error(err))
	}
	return nil
}

func (l *Ledger) persist(ctx context.Context) error {
	data, err := json.Marshal(l.snapshot())
	if err != nil {
		return fmt.Errorf("failed to encode seen transfers: %w", err)
	}
	if err := l.storage.Put(ctx, DocumentKey, data); err != nil {
		metrics.PersistFailures.WithLabelValues(DocumentKey).Inc()
		return fmt.Errorf("failed to persist seen transfers: %w", err)
	}
	return nil
}

func (l *Ledger) snapshot() Snapshot {
	ids := l.ids.ToSlice()
	sort.Strings(ids)
	return Snapshot{IDs: ids, CreatedAt: l.createdAt}
}
