package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/bridge-tracker/pkg/app/errors"
	"github.com/chainsafe/bridge-tracker/pkg/backfill"
	"github.com/chainsafe/bridge-tracker/pkg/config"
	"github.com/chainsafe/bridge-tracker/pkg/ethereum"
	"github.com/chainsafe/bridge-tracker/pkg/seen"
	"github.com/chainsafe/bridge-tracker/pkg/tracker"
	"github.com/chainsafe/bridge-tracker/pkg/transfer"
	"github.com/chainsafe/bridge-tracker/pkg/transferstore"
)

var (
	ErrTransferNotFound = errors.New("transfer not found")
	ErrTransferExists   = errors.New("transfer already tracked")
)

// Store is the transfer store used by the service
type Store interface {
	Snapshot() []transfer.Transfer
	Get(id string) (transfer.Transfer, bool)
	Dispatch(ctx context.Context, actions ...transferstore.Action) ([]transferstore.Note, error)
}

// SeenLedger tracks which transfers the user has already been notified about
type SeenLedger interface {
	GetSeen(ctx context.Context) (seen.Snapshot, error)
	MarkSeen(ctx context.Context, ids ...string) error
	NewTransfers(ctx context.Context, transfers []transfer.Transfer) ([]transfer.Transfer, error)
}

// Backfiller merges historical transfers into the store
type Backfiller interface {
	Backfill(ctx context.Context, account common.Address, ranges ...ethereum.BlockRange) (backfill.Result, error)
}

// HeadReader reports the latest block of one layer
type HeadReader interface {
	LatestBlock(ctx context.Context) (uint64, error)
}

// Refresher runs one polling round on demand
type Refresher interface {
	Tick(ctx context.Context)
}

// Service defines the tracker operations exposed to the UI layer
type Service interface {
	ListTransfers(ctx context.Context) ([]transfer.Transfer, error)
	GetTransfer(ctx context.Context, id string) (*transfer.Transfer, error)
	AddPending(ctx context.Context, req *tracker.AddTransferRequest) (*transfer.Transfer, error)
	ClearPending(ctx context.Context) error
	Backfill(ctx context.Context, req *tracker.BackfillRequest) (*tracker.BackfillResponse, error)
	Refresh(ctx context.Context) error
	GetSeen(ctx context.Context) (*tracker.SeenResponse, error)
	MarkSeen(ctx context.Context, req *tracker.MarkSeenRequest) error
	NewTransfers(ctx context.Context) ([]transfer.Transfer, error)
}

// Deps groups the collaborators of the tracker service
type Deps struct {
	Store      Store
	Seen       SeenLedger
	Backfiller Backfiller
	Refresher  Refresher
	ParentHead HeadReader
	ChildHead  HeadReader
}

type trackerService struct {
	deps     Deps
	account  common.Address
	lookback config.BackfillConfig
	now      func() time.Time
	logger   *zap.Logger
}

// NewService creates a new tracker service for account
func NewService(deps Deps, account common.Address, lookback config.BackfillConfig, logger *zap.Logger) Service {
	return &trackerService{
		deps:     deps,
		account:  account,
		lookback: lookback,
		now:      time.Now,
		logger:   logger,
	}
}

// ListTransfers returns every tracked transfer, newest first by creation time.
// Transfers created at the same instant keep their store order.
func (s *trackerService) ListTransfers(_ context.Context) ([]transfer.Transfer, error) {
	transfers := s.deps.Store.Snapshot()
	slices.SortStableFunc(transfers, func(a, b transfer.Transfer) int {
		return b.TimestampCreated.Compare(a.TimestampCreated)
	})
	return transfers, nil
}

// GetTransfer returns one transfer by id
func (s *trackerService) GetTransfer(_ context.Context, id string) (*transfer.Transfer, error) {
	t, ok := s.deps.Store.Get(id)
	if !ok {
		return nil, apperrors.ResourceNotFoundError(ErrTransferNotFound, "transfer not found")
	}
	return &t, nil
}

// AddPending inserts an optimistic pending entry for a transfer the user just submitted
func (s *trackerService) AddPending(ctx context.Context, req *tracker.AddTransferRequest) (*transfer.Transfer, error) {
	t, err := s.pendingTransfer(req)
	if err != nil {
		return nil, err
	}

	notes, err := s.deps.Store.Dispatch(ctx, transferstore.Insert{Transfer: t})
	if err != nil {
		return nil, storeError(err)
	}
	for _, n := range notes {
		if n.Kind == transferstore.NoteDuplicate {
			return nil, apperrors.ConflictError(ErrTransferExists, "transfer already tracked")
		}
	}

	stored, _ := s.deps.Store.Get(t.ID)
	return &stored, nil
}

func (s *trackerService) pendingTransfer(req *tracker.AddTransferRequest) (transfer.Transfer, error) {
	if b, err := hexutil.Decode(req.ID); err != nil || len(b) != common.HashLength {
		return transfer.Transfer{}, apperrors.BadRequestError(err, "id must be a transaction hash")
	}
	if req.Direction != transfer.DirectionDeposit && req.Direction != transfer.DirectionWithdrawal {
		return transfer.Transfer{}, apperrors.BadRequestError(nil, "direction must be deposit or withdrawal")
	}
	if req.AssetKind != transfer.AssetNative && req.AssetKind != transfer.AssetToken {
		return transfer.Transfer{}, apperrors.BadRequestError(nil, "assetKind must be native or token")
	}
	if !common.IsHexAddress(req.Sender) {
		return transfer.Transfer{}, apperrors.BadRequestError(nil, "sender must be an address")
	}
	if req.AssetKind == transfer.AssetToken && !common.IsHexAddress(req.TokenAddress) {
		return transfer.Transfer{}, apperrors.BadRequestError(nil, "tokenAddress is required for token transfers")
	}
	value, err := decimal.NewFromString(req.Value)
	if err != nil || !value.IsInteger() || value.IsNegative() {
		return transfer.Transfer{}, apperrors.BadRequestError(err, "value must be a non-negative integer amount")
	}

	t := transfer.Transfer{
		ID:               transfer.NormalizeID(req.ID),
		Direction:        req.Direction,
		AssetKind:        req.AssetKind,
		Status:           transfer.StatusPending,
		TimestampCreated: s.now().UTC(),
		Sender:           strings.ToLower(req.Sender),
		Value:            value.String(),
	}
	if req.AssetKind == transfer.AssetToken {
		t.TokenAddress = strings.ToLower(req.TokenAddress)
	}
	if t.IsDeposit() {
		t.CrossChainMessage = &transfer.CrossChainMessage{LifecycleStatus: transfer.LifecycleNotYetCreated}
	}
	return t, nil
}

// ClearPending drops every transfer still awaiting its first confirmation
func (s *trackerService) ClearPending(ctx context.Context) error {
	if _, err := s.deps.Store.Dispatch(ctx, transferstore.ClearPending{}); err != nil {
		return storeError(err)
	}
	return nil
}

// Backfill fetches historical transfers for the session account. Pages that
// failed are reported in the response rather than failing the request.
func (s *trackerService) Backfill(ctx context.Context, req *tracker.BackfillRequest) (*tracker.BackfillResponse, error) {
	ranges, err := s.ranges(ctx, req)
	if err != nil {
		return nil, err
	}

	res, err := s.deps.Backfiller.Backfill(ctx, s.account, ranges...)
	if errors.Is(err, transferstore.ErrPersist) {
		return nil, storeError(err)
	}
	if err != nil && len(res.Failed) == 0 {
		return nil, apperrors.DependencyError(err, "backfill failed")
	}

	resp := &tracker.BackfillResponse{Fetched: len(res.Transfers), Inserted: res.Inserted}
	for _, fp := range res.Failed {
		resp.FailedPages = append(resp.FailedPages, tracker.FailedPage{
			Fetcher: fp.Fetcher,
			Layer:   string(fp.Page.Layer),
			From:    fp.Page.From,
			To:      fp.Page.To,
			Error:   fp.Err.Error(),
		})
	}
	return resp, nil
}

func (s *trackerService) ranges(ctx context.Context, req *tracker.BackfillRequest) ([]ethereum.BlockRange, error) {
	parent, err := s.layerRange(ctx, ethereum.LayerParent, req.ParentFrom, req.ParentTo, s.lookback.ParentLookback, s.deps.ParentHead)
	if err != nil {
		return nil, err
	}
	child, err := s.layerRange(ctx, ethereum.LayerChild, req.ChildFrom, req.ChildTo, s.lookback.ChildLookback, s.deps.ChildHead)
	if err != nil {
		return nil, err
	}

	var out []ethereum.BlockRange
	for _, r := range []*ethereum.BlockRange{parent, child} {
		if r != nil {
			out = append(out, *r)
		}
	}
	if len(out) == 0 {
		return nil, apperrors.BadRequestError(nil, "no block range to backfill")
	}
	return out, nil
}

func (s *trackerService) layerRange(
	ctx context.Context,
	layer ethereum.Layer,
	from, to *uint64,
	lookback uint64,
	head HeadReader,
) (*ethereum.BlockRange, error) {
	if from != nil && to != nil {
		if *from > *to {
			return nil, apperrors.BadRequestError(nil, fmt.Sprintf("%s range is inverted", layer))
		}
		return &ethereum.BlockRange{Layer: layer, From: *from, To: *to}, nil
	}
	if from == nil && lookback == 0 {
		return nil, nil
	}

	latest, err := head.LatestBlock(ctx)
	if err != nil {
		return nil, apperrors.DependencyError(err, fmt.Sprintf("failed to read %s head", layer))
	}
	end := latest
	if to != nil && *to < latest {
		end = *to
	}

	if from != nil {
		if *from > end {
			return nil, apperrors.BadRequestError(nil, fmt.Sprintf("%s range starts after head", layer))
		}
		return &ethereum.BlockRange{Layer: layer, From: *from, To: end}, nil
	}
	r := backfill.Lookback(end, lookback, 0, 0)[0]
	r.Layer = layer
	return &r, nil
}

// Refresh starts a polling round outside the regular interval
func (s *trackerService) Refresh(ctx context.Context) error {
	s.deps.Refresher.Tick(context.WithoutCancel(ctx))
	return nil
}

// GetSeen returns the seen-transfers ledger
func (s *trackerService) GetSeen(ctx context.Context) (*tracker.SeenResponse, error) {
	snap, err := s.deps.Seen.GetSeen(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read seen transfers: %w", err)
	}
	return &tracker.SeenResponse{IDs: snap.IDs, CreatedAt: snap.CreatedAt}, nil
}

// MarkSeen records transfers the user has been notified about
func (s *trackerService) MarkSeen(ctx context.Context, req *tracker.MarkSeenRequest) error {
	if len(req.IDs) == 0 {
		return apperrors.BadRequestError(nil, "ids are required")
	}
	if err := s.deps.Seen.MarkSeen(ctx, req.IDs...); err != nil {
		return fmt.Errorf("failed to mark transfers seen: %w", err)
	}
	return nil
}

// NewTransfers returns tracked transfers the user has not been notified about
func (s *trackerService) NewTransfers(ctx context.Context) ([]transfer.Transfer, error) {
	fresh, err := s.deps.Seen.NewTransfers(ctx, s.deps.Store.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("failed to compute new transfers: %w", err)
	}
	if fresh == nil {
		fresh = []transfer.Transfer{}
	}
	return fresh, nil
}

func storeError(err error) error {
	if errors.Is(err, transferstore.ErrPersist) {
		return apperrors.DependencyError(err, "failed to persist transfers")
	}
	return apperrors.GeneralError(err)
}
