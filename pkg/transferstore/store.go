// Package transferstore holds the durable, single-writer collection of tracked transfers.
package transferstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/internal/metrics"
	"github.com/chainsafe/bridge-tracker/pkg/kv"
	"github.com/chainsafe/bridge-tracker/pkg/transfer"
)

// DocumentKey is the storage key of the persisted transfer collection
const DocumentKey = "bridge-tracker:transfers"

// ErrPersist is returned by Dispatch when the in-memory state changed but could not be saved
var ErrPersist = errors.New("failed to persist transfers")

// Store owns the transfer collection. All mutations go through Dispatch, which
// applies actions in memory and then writes one snapshot to storage.
type Store struct {
	storage kv.Storage
	logger  *zap.Logger

	mu    sync.RWMutex
	state []transfer.Transfer
	seq   uint64

	persistMu    sync.Mutex
	persistedSeq uint64

	subsMu sync.Mutex
	subs   map[uint64]chan []transfer.Transfer
	nextID uint64
}

// New creates a new Store backed by storage
func New(storage kv.Storage, logger *zap.Logger) *Store {
	return &Store{
		storage: storage,
		logger:  logger,
		subs:    make(map[uint64]chan []transfer.Transfer),
	}
}

// Load seeds the in-memory collection from storage. A missing document yields an empty store.
func (s *Store) Load(ctx context.Context) error {
	var transfers []transfer.Transfer

	data, err := s.storage.Get(ctx, DocumentKey)
	switch {
	case errors.Is(err, kv.ErrNotFound):
	case err != nil:
		return fmt.Errorf("failed to load transfers: %w", err)
	default:
		if err := json.Unmarshal(data, &transfers); err != nil {
			return fmt.Errorf("failed to decode transfers: %w", err)
		}
	}

	s.mu.Lock()
	out := Apply(s.state, Seed{Transfers: transfers})
	s.state = out.State
	s.seq++
	snapshot := cloneAll(s.state)
	s.publish(snapshot)
	s.mu.Unlock()

	s.logNotes(out.Notes)
	recordGauges(snapshot)
	s.logger.Info("Loaded transfers", zap.Int("count", len(snapshot)))
	return nil
}

// Dispatch applies actions in order and persists the resulting collection once.
// Notes from every action are returned. A persistence failure leaves the
// in-memory state in place and is reported as ErrPersist.
func (s *Store) Dispatch(ctx context.Context, actions ...Action) ([]Note, error) {
	var (
		notes   []Note
		changed bool
	)

	s.mu.Lock()
	for _, action := range actions {
		out := Apply(s.state, action)
		s.state = out.State
		notes = append(notes, out.Notes...)
		changed = changed || out.Changed
		metrics.StoreActions.WithLabelValues(action.Name()).Inc()
	}
	if !changed {
		s.mu.Unlock()
		s.logNotes(notes)
		return notes, nil
	}
	s.seq++
	seq := s.seq
	snapshot := cloneAll(s.state)
	s.publish(snapshot)
	s.mu.Unlock()

	s.logNotes(notes)
	recordGauges(snapshot)

	if err := s.persist(ctx, seq, snapshot); err != nil {
		metrics.PersistFailures.WithLabelValues(DocumentKey).Inc()
		s.logger.Error("Failed to persist transfers", zap.Uint64("seq", seq), zap.Error(err))
		return notes, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return notes, nil
}

// persist writes snapshot unless a newer one has already been written
func (s *Store) persist(ctx context.Context, seq uint64, snapshot []transfer.Transfer) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if seq <= s.persistedSeq {
		return nil
	}

	data, err := Encode(snapshot)
	if err != nil {
		return err
	}
	if err := s.storage.Put(ctx, DocumentKey, data); err != nil {
		return err
	}
	s.persistedSeq = seq
	return nil
}

// Encode serializes transfers for storage. In-flight flags never survive a reload,
// so every IsFetching is written as false.
func Encode(transfers []transfer.Transfer) ([]byte, error) {
	out := make([]transfer.Transfer, len(transfers))
	for i, t := range transfers {
		out[i] = t.Clone()
		if out[i].CrossChainMessage != nil {
			out[i].CrossChainMessage.IsFetching = false
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transfers: %w", err)
	}
	return data, nil
}

// Snapshot returns a copy of the current collection
func (s *Store) Snapshot() []transfer.Transfer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.state)
}

// Get returns a copy of the transfer with the given id
func (s *Store) Get(id string) (transfer.Transfer, bool) {
	id = transfer.NormalizeID(id)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.state, id); i >= 0 {
		return s.state[i].Clone(), true
	}
	return transfer.Transfer{}, false
}

// IDs returns the ids of all held transfers in store order
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(s.state))
	for i, t := range s.state {
		ids[i] = t.ID
	}
	return ids
}

// Subscribe registers for change notifications. Each notification carries the
// full collection; a slow subscriber only ever sees the latest one.
// The returned function unsubscribes and closes the channel.
func (s *Store) Subscribe() (<-chan []transfer.Transfer, func()) {
	ch := make(chan []transfer.Transfer, 1)

	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
			close(ch)
		})
	}
}

// publish is called with mu held so subscribers observe snapshots in order
func (s *Store) publish(snapshot []transfer.Transfer) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for _, ch := range s.subs {
		// drop the stale snapshot if the subscriber has not consumed it yet
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cloneAll(snapshot):
		default:
		}
	}
}

func (s *Store) logNotes(notes []Note) {
	for _, n := range notes {
		metrics.StoreNotes.WithLabelValues(string(n.Kind)).Inc()
		switch n.Kind {
		case NoteDuplicate, NoteRegressionRejected:
			s.logger.Debug("Transfer action ignored", zap.String("kind", string(n.Kind)), zap.String("id", n.ID), zap.String("detail", n.Detail))
		default:
			s.logger.Warn("Transfer action ignored", zap.String("kind", string(n.Kind)), zap.String("id", n.ID), zap.String("detail", n.Detail))
		}
	}
}

func recordGauges(snapshot []transfer.Transfer) {
	metrics.TransfersTracked.Reset()
	for _, t := range snapshot {
		metrics.TransfersTracked.WithLabelValues(string(t.Direction), string(t.Status)).Inc()
	}
}

func cloneAll(transfers []transfer.Transfer) []transfer.Transfer {
	out := make([]transfer.Transfer, len(transfers))
	for i, t := range transfers {
		out[i] = t.Clone()
	}
	return out
}

// ProposeMessage applies a partial cross-chain message update proposed by a resolver
func (s *Store) ProposeMessage(ctx context.Context, id string, update transfer.CrossChainMessageUpdate) error {
	_, err := s.Dispatch(ctx, SetCrossChainMessage{ID: id, Update: update})
	return err
}
