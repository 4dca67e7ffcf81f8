package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/pkg/ethereum"
	"github.com/chainsafe/bridge-tracker/pkg/transfer"
	"github.com/chainsafe/bridge-tracker/pkg/transferstore"
)

// ChainReader reads receipts and block times of one layer
type ChainReader interface {
	ethereum.ReceiptReader
	BlockTime(ctx context.Context, number uint64) (time.Time, error)
}

// SubmissionChecker settles the submission status of pending transfers from their receipts
type SubmissionChecker struct {
	parent     ChainReader
	child      ChainReader
	deployment ethereum.Deployment
	logger     *zap.Logger
}

// NewSubmissionChecker creates a new SubmissionChecker
func NewSubmissionChecker(parent, child ChainReader, deployment ethereum.Deployment, logger *zap.Logger) *SubmissionChecker {
	return &SubmissionChecker{
		parent:     parent,
		child:      child,
		deployment: deployment,
		logger:     logger,
	}
}

// Check returns the store actions describing a mined submission. A transfer that is
// not pending or not mined yet yields no actions.
func (c *SubmissionChecker) Check(ctx context.Context, t transfer.Transfer) ([]transferstore.Action, error) {
	if t.Status != transfer.StatusPending {
		return nil, nil
	}

	reader := c.child
	if t.IsDeposit() {
		reader = c.parent
	}

	receipt, err := reader.Receipt(ctx, common.HexToHash(t.ID))
	if err != nil {
		return nil, remote(t.ID, err)
	}
	if receipt == nil || receipt.BlockNumber == nil {
		return nil, nil
	}

	block := receipt.BlockNumber.Uint64()
	minedAt, err := reader.BlockTime(ctx, block)
	if err != nil {
		return nil, remote(t.ID, err)
	}

	status := transfer.StatusFailure
	if receipt.Status == types.ReceiptStatusSuccessful {
		status = transfer.StatusSuccess
	}

	actions := []transferstore.Action{
		transferstore.SetBlockNumber{ID: t.ID, BlockNumber: block},
		transferstore.SetStatus{ID: t.ID, Status: status},
		transferstore.SetResolvedTimestamp{ID: t.ID, Timestamp: minedAt},
	}

	if t.IsDeposit() && status == transfer.StatusSuccess {
		era := c.deployment.Schedule.EraFor(ethereum.LayerParent, block)
		num, err := ethereum.MessageNumberFromReceipt(era, c.deployment.For(era), receipt)
		switch {
		case errors.Is(err, ethereum.ErrNoMessage):
			c.logger.Warn("Deposit receipt carries no bridge message", zap.String("id", t.ID))
		case err != nil:
			c.logger.Warn("Failed to decode deposit receipt", zap.String("id", t.ID), zap.Error(err))
		default:
			actions = append(actions, transferstore.SetCrossChainMessage{
				ID: t.ID,
				Update: transfer.CrossChainMessageUpdate{
					SourceMessageID: transfer.Ptr(hexutil.EncodeBig(num)),
				},
			})
		}
	}

	c.logger.Info("Transfer submission mined",
		zap.String("id", t.ID),
		zap.String("status", string(status)),
		zap.Uint64("block", block))

	return actions, nil
}
