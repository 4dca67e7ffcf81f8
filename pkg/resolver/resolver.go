// Package resolver determines the child chain lifecycle of deposits and the
// submission outcome of pending transfers.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/internal/metrics"
	"github.com/chainsafe/bridge-tracker/pkg/ethereum"
	"github.com/chainsafe/bridge-tracker/pkg/transfer"
)

const refCacheSize = 4096

// Proposer receives message updates. The store decides what is actually written.
type Proposer interface {
	ProposeMessage(ctx context.Context, id string, update transfer.CrossChainMessageUpdate) error
}

// Locator finds the message a deposit enqueued on the parent chain
type Locator interface {
	Locate(ctx context.Context, txHash common.Hash, era ethereum.Era) (*ethereum.MessageRef, error)
}

// StatusReader reads message status from the child chain
type StatusReader interface {
	GetMessageStatus(ctx context.Context, ref ethereum.MessageRef) (ethereum.MessageStatus, error)
	RedemptionTxHash(ctx context.Context, ref ethereum.MessageRef) (*common.Hash, error)
}

// Resolver resolves the cross-chain message lifecycle of deposits
type Resolver struct {
	locator  Locator
	status   StatusReader
	schedule ethereum.EraSchedule
	proposer Proposer
	refs     *lru.Cache
	logger   *zap.Logger
}

// New creates a new Resolver
func New(
	locator Locator,
	status StatusReader,
	schedule ethereum.EraSchedule,
	proposer Proposer,
	logger *zap.Logger,
) (*Resolver, error) {
	refs, err := lru.New(refCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create message cache: %w", err)
	}
	return &Resolver{
		locator:  locator,
		status:   status,
		schedule: schedule,
		proposer: proposer,
		refs:     refs,
		logger:   logger,
	}, nil
}

// Resolve queries the current lifecycle of a deposit's message. It first proposes
// IsFetching=true, then the observed lifecycle with IsFetching=false. On failure
// the returned update only clears IsFetching and the error is an *Error.
func (r *Resolver) Resolve(ctx context.Context, t transfer.Transfer) (transfer.CrossChainMessageUpdate, error) {
	if !t.IsDeposit() || t.CrossChainMessage == nil || t.CrossChainMessage.SourceMessageID == "" {
		return transfer.CrossChainMessageUpdate{}, notResolvable(t.ID, "transfer has no cross-chain message")
	}

	era := ethereum.EraCurrent
	if t.BlockNumber != nil {
		era = r.schedule.EraFor(ethereum.LayerParent, *t.BlockNumber)
	}

	r.propose(ctx, t.ID, transfer.CrossChainMessageUpdate{IsFetching: transfer.Ptr(true)})

	start := time.Now()
	metrics.ResolutionsInFlight.Inc()
	update, err := r.resolve(ctx, t, era)
	metrics.ResolutionsInFlight.Dec()
	metrics.ResolutionDuration.WithLabelValues(string(era)).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.Resolutions.WithLabelValues(string(era), "error").Inc()
		update = transfer.CrossChainMessageUpdate{IsFetching: transfer.Ptr(false)}
		r.propose(ctx, t.ID, update)
		return update, err
	}

	metrics.Resolutions.WithLabelValues(string(era), update.LifecycleStatus.String()).Inc()
	r.propose(ctx, t.ID, update)
	return update, nil
}

func (r *Resolver) resolve(ctx context.Context, t transfer.Transfer, era ethereum.Era) (transfer.CrossChainMessageUpdate, error) {
	ref, err := r.messageRef(ctx, t, era)
	if err != nil {
		return transfer.CrossChainMessageUpdate{}, err
	}

	status, err := r.status.GetMessageStatus(ctx, *ref)
	if err != nil {
		return transfer.CrossChainMessageUpdate{}, remote(t.ID, err)
	}

	n := Normalize(status, t.AssetKind)
	if n.NeedsRedemptionHash {
		hash, err := r.status.RedemptionTxHash(ctx, *ref)
		if err != nil {
			return transfer.CrossChainMessageUpdate{}, remote(t.ID, err)
		}
		if hash == nil {
			r.logger.Debug("Redemption hash not found, holding at funds deposited", zap.String("id", t.ID))
			n = Normalized{Lifecycle: transfer.LifecycleFundsDepositedOnChild}
		} else {
			n.DestinationTxID = transfer.Ptr(hash.Hex())
		}
	}

	r.logger.Debug("Resolved cross-chain message",
		zap.String("id", t.ID),
		zap.String("era", string(era)),
		zap.String("lifecycle", n.Lifecycle.String()))

	return transfer.CrossChainMessageUpdate{
		LifecycleStatus: transfer.Ptr(n.Lifecycle),
		DestinationTxID: n.DestinationTxID,
		IsFetching:      transfer.Ptr(false),
	}, nil
}

// messageRef returns the message created by the deposit, cached per transfer
func (r *Resolver) messageRef(ctx context.Context, t transfer.Transfer, era ethereum.Era) (*ethereum.MessageRef, error) {
	if cached, ok := r.refs.Get(t.ID); ok {
		return cached.(*ethereum.MessageRef), nil
	}

	ref, err := r.locator.Locate(ctx, common.HexToHash(t.ID), era)
	switch {
	case errors.Is(err, ethereum.ErrNoMessage):
		return nil, notResolvable(t.ID, "failed to read message from receipt: %w", err)
	case err != nil:
		return nil, remote(t.ID, err)
	}

	if want, err := hexutil.DecodeBig(t.CrossChainMessage.SourceMessageID); err == nil && want.Cmp(ref.MessageNumber) != 0 {
		r.logger.Warn("Receipt message number differs from stored message id",
			zap.String("id", t.ID),
			zap.String("stored", t.CrossChainMessage.SourceMessageID),
			zap.String("receipt", hexutil.EncodeBig(ref.MessageNumber)))
	}

	r.refs.Add(t.ID, ref)
	return ref, nil
}

// propose forwards an update; persistence failures leave memory updated and are only logged
func (r *Resolver) propose(ctx context.Context, id string, update transfer.CrossChainMessageUpdate) {
	if err := r.proposer.ProposeMessage(ctx, id, update); err != nil {
		r.logger.Warn("Failed to persist proposed update", zap.String("id", id), zap.Error(err))
	}
}
