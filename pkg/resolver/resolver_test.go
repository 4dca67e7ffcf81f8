package resolver

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/pkg/ethereum"
	"github.com/chainsafe/bridge-tracker/pkg/kv"
	"github.com/chainsafe/bridge-tracker/pkg/transfer"
	"github.com/chainsafe/bridge-tracker/pkg/transferstore"
)

type mockLocator struct {
	LocateFunc func(ctx context.Context, txHash common.Hash, era ethereum.Era) (*ethereum.MessageRef, error)
}

func (m *mockLocator) Locate(ctx context.Context, txHash common.Hash, era ethereum.Era) (*ethereum.MessageRef, error) {
	return m.LocateFunc(ctx, txHash, era)
}

type mockStatus struct {
	GetMessageStatusFunc func(ctx context.Context, ref ethereum.MessageRef) (ethereum.MessageStatus, error)
	RedemptionTxHashFunc func(ctx context.Context, ref ethereum.MessageRef) (*common.Hash, error)
}

func (m *mockStatus) GetMessageStatus(ctx context.Context, ref ethereum.MessageRef) (ethereum.MessageStatus, error) {
	return m.GetMessageStatusFunc(ctx, ref)
}

func (m *mockStatus) RedemptionTxHash(ctx context.Context, ref ethereum.MessageRef) (*common.Hash, error) {
	return m.RedemptionTxHashFunc(ctx, ref)
}

type recordingProposer struct {
	mu        sync.Mutex
	proposals []transfer.CrossChainMessageUpdate
	err       error
}

func (p *recordingProposer) ProposeMessage(_ context.Context, _ string, update transfer.CrossChainMessageUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.proposals = append(p.proposals, update)
	return p.err
}

var schedule = ethereum.EraSchedule{ParentBoundary: 100, ChildBoundary: 1000}

func locatorFor(era *ethereum.Era) *mockLocator {
	return &mockLocator{
		LocateFunc: func(_ context.Context, _ common.Hash, e ethereum.Era) (*ethereum.MessageRef, error) {
			if era != nil {
				*era = e
			}
			return &ethereum.MessageRef{Era: e, MessageNumber: big.NewInt(16), Kind: ethereum.KindSubmitRetryable}, nil
		},
	}
}

func statusReturning(status ethereum.MessageStatus, err error) *mockStatus {
	return &mockStatus{
		GetMessageStatusFunc: func(context.Context, ethereum.MessageRef) (ethereum.MessageStatus, error) {
			return status, err
		},
		RedemptionTxHashFunc: func(context.Context, ethereum.MessageRef) (*common.Hash, error) {
			return nil, nil
		},
	}
}

func pendingDeposit(id string, kind transfer.AssetKind, block uint64) transfer.Transfer {
	return transfer.Transfer{
		ID:               id,
		Direction:        transfer.DirectionDeposit,
		AssetKind:        kind,
		Status:           transfer.StatusPending,
		BlockNumber:      transfer.Ptr(block),
		TimestampCreated: time.Unix(1700000000, 0).UTC(),
		CrossChainMessage: &transfer.CrossChainMessage{
			LifecycleStatus: transfer.LifecycleNotYetCreated,
			SourceMessageID: "0x10",
		},
		Sender: "0x1111111111111111111111111111111111111111",
		Value:  "1000",
	}
}

func newResolver(t *testing.T, locator Locator, status StatusReader, proposer Proposer) *Resolver {
	t.Helper()
	r, err := New(locator, status, schedule, proposer, zap.NewNop())
	require.NoError(t, err)
	return r
}

func TestResolve_ProposesFetchingThenResult(t *testing.T) {
	child := common.HexToHash("0xdd")
	proposer := &recordingProposer{}
	r := newResolver(t, locatorFor(nil), statusReturning(ethereum.CurrentMessageStatus{
		Status:      ethereum.CurrentRedeemed,
		ChildTxHash: &child,
	}, nil), proposer)

	update, err := r.Resolve(context.Background(), pendingDeposit("0xaa", transfer.AssetToken, 500))
	require.NoError(t, err)

	assert.Equal(t, transfer.LifecycleRedeemed, *update.LifecycleStatus)
	assert.Equal(t, child.Hex(), *update.DestinationTxID)
	assert.False(t, *update.IsFetching)

	require.Len(t, proposer.proposals, 2)
	assert.Equal(t, transfer.CrossChainMessageUpdate{IsFetching: transfer.Ptr(true)}, proposer.proposals[0])
	assert.Equal(t, update, proposer.proposals[1])
}

func TestResolve_EraFromBlockNumber(t *testing.T) {
	var era ethereum.Era
	r := newResolver(t, locatorFor(&era), statusReturning(ethereum.LegacyMessageStatus{Ordinal: ethereum.LegacyFundsDeposited}, nil), &recordingProposer{})

	_, err := r.Resolve(context.Background(), pendingDeposit("0xaa", transfer.AssetToken, 50))
	require.NoError(t, err)
	assert.Equal(t, ethereum.EraClassic, era)

	_, err = r.Resolve(context.Background(), pendingDeposit("0xbb", transfer.AssetToken, 150))
	require.NoError(t, err)
	assert.Equal(t, ethereum.EraCurrent, era)
}

func TestResolve_LegacyRedemptionHash(t *testing.T) {
	redemption := common.HexToHash("0xee")
	status := statusReturning(ethereum.LegacyMessageStatus{Ordinal: ethereum.LegacyRedeemed}, nil)

	r := newResolver(t, locatorFor(nil), status, &recordingProposer{})
	update, err := r.Resolve(context.Background(), pendingDeposit("0xaa", transfer.AssetToken, 50))
	require.NoError(t, err)
	assert.Equal(t, transfer.LifecycleFundsDepositedOnChild, *update.LifecycleStatus)
	assert.Nil(t, update.DestinationTxID)

	status.RedemptionTxHashFunc = func(context.Context, ethereum.MessageRef) (*common.Hash, error) {
		return &redemption, nil
	}
	update, err = r.Resolve(context.Background(), pendingDeposit("0xbb", transfer.AssetToken, 50))
	require.NoError(t, err)
	assert.Equal(t, transfer.LifecycleRedeemed, *update.LifecycleStatus)
	assert.Equal(t, redemption.Hex(), *update.DestinationTxID)
}

func TestResolve_NotResolvable(t *testing.T) {
	proposer := &recordingProposer{}
	r := newResolver(t, locatorFor(nil), statusReturning(nil, nil), proposer)

	withdrawal := pendingDeposit("0xaa", transfer.AssetToken, 50)
	withdrawal.Direction = transfer.DirectionWithdrawal
	noMessage := pendingDeposit("0xbb", transfer.AssetToken, 50)
	noMessage.CrossChainMessage = nil
	noSource := pendingDeposit("0xcc", transfer.AssetToken, 50)
	noSource.CrossChainMessage.SourceMessageID = ""

	for _, tr := range []transfer.Transfer{withdrawal, noMessage, noSource} {
		_, err := r.Resolve(context.Background(), tr)
		var re *Error
		require.ErrorAs(t, err, &re, tr.ID)
		assert.Equal(t, KindNotResolvable, re.Kind)
		assert.False(t, IsRetryable(err))
	}
	assert.Empty(t, proposer.proposals)
}

func TestResolve_NoMessageInReceipt(t *testing.T) {
	locator := &mockLocator{
		LocateFunc: func(context.Context, common.Hash, ethereum.Era) (*ethereum.MessageRef, error) {
			return nil, ethereum.ErrNoMessage
		},
	}
	proposer := &recordingProposer{}
	r := newResolver(t, locator, statusReturning(nil, nil), proposer)

	update, err := r.Resolve(context.Background(), pendingDeposit("0xaa", transfer.AssetToken, 50))
	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, KindNotResolvable, re.Kind)
	assert.Equal(t, transfer.CrossChainMessageUpdate{IsFetching: transfer.Ptr(false)}, update)
	require.Len(t, proposer.proposals, 2)
	assert.Equal(t, update, proposer.proposals[1])
}

func TestResolve_RemoteFailure(t *testing.T) {
	network := errors.New("connection refused")
	proposer := &recordingProposer{}
	r := newResolver(t, locatorFor(nil), statusReturning(nil, network), proposer)

	update, err := r.Resolve(context.Background(), pendingDeposit("0xaa", transfer.AssetToken, 50))
	require.Error(t, err)
	assert.ErrorIs(t, err, network)
	assert.True(t, IsRetryable(err))
	assert.Nil(t, update.LifecycleStatus)
	assert.False(t, *update.IsFetching)
}

func TestResolve_CachesMessageRef(t *testing.T) {
	calls := 0
	locator := &mockLocator{
		LocateFunc: func(_ context.Context, _ common.Hash, era ethereum.Era) (*ethereum.MessageRef, error) {
			calls++
			return &ethereum.MessageRef{Era: era, MessageNumber: big.NewInt(16)}, nil
		},
	}
	r := newResolver(t, locator, statusReturning(ethereum.CurrentMessageStatus{Status: ethereum.CurrentNotYetCreated}, nil), &recordingProposer{})

	for i := 0; i < 3; i++ {
		_, err := r.Resolve(context.Background(), pendingDeposit("0xaa", transfer.AssetToken, 500))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, calls)
}

func TestResolve_ProposerFailureDoesNotFail(t *testing.T) {
	proposer := &recordingProposer{err: errors.New("disk full")}
	r := newResolver(t, locatorFor(nil), statusReturning(ethereum.CurrentMessageStatus{Status: ethereum.CurrentFundsDeposited}, nil), proposer)

	update, err := r.Resolve(context.Background(), pendingDeposit("0xaa", transfer.AssetNative, 500))
	require.NoError(t, err)
	assert.Equal(t, transfer.LifecycleFundsDepositedOnChild, *update.LifecycleStatus)
}

// A native deposit resolves to funds deposited while its submission status stays
// pending, and a later failed resolution keeps that lifecycle.
func TestResolve_WithStore(t *testing.T) {
	ctx := context.Background()
	store := transferstore.New(kv.NewMemoryStorage(), zap.NewNop())
	require.NoError(t, store.Load(ctx))

	deposit := pendingDeposit("0xAA", transfer.AssetNative, 500)
	_, err := store.Dispatch(ctx, transferstore.Insert{Transfer: deposit})
	require.NoError(t, err)

	status := statusReturning(ethereum.CurrentMessageStatus{Status: ethereum.CurrentFundsDeposited}, nil)
	r := newResolver(t, locatorFor(nil), status, store)

	stored, ok := store.Get("0xaa")
	require.True(t, ok)
	_, err = r.Resolve(ctx, stored)
	require.NoError(t, err)

	stored, _ = store.Get("0xaa")
	assert.Equal(t, transfer.StatusPending, stored.Status)
	assert.Equal(t, transfer.LifecycleFundsDepositedOnChild, stored.CrossChainMessage.LifecycleStatus)
	assert.False(t, stored.CrossChainMessage.IsFetching)

	status.GetMessageStatusFunc = func(context.Context, ethereum.MessageRef) (ethereum.MessageStatus, error) {
		return nil, errors.New("network unreachable")
	}
	_, err = r.Resolve(ctx, stored)
	require.Error(t, err)

	stored, _ = store.Get("0xaa")
	assert.Equal(t, transfer.LifecycleFundsDepositedOnChild, stored.CrossChainMessage.LifecycleStatus)
	assert.False(t, stored.CrossChainMessage.IsFetching)
}
