package ethereum

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrNotMined is returned when a transaction has no receipt yet
var ErrNotMined = errors.New("transaction not mined")

// ReceiptReader reads transaction receipts; a nil receipt means not mined
type ReceiptReader interface {
	Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// MessageLocator finds the message a deposit transaction enqueued on the parent chain
type MessageLocator struct {
	parent     ReceiptReader
	deployment Deployment
}

// NewMessageLocator creates a new MessageLocator
func NewMessageLocator(parent ReceiptReader, deployment Deployment) *MessageLocator {
	return &MessageLocator{parent: parent, deployment: deployment}
}

// Locate returns the message enqueued by txHash, decoded with the contracts of era
func (l *MessageLocator) Locate(ctx context.Context, txHash common.Hash, era Era) (*MessageRef, error) {
	receipt, err := l.parent.Receipt(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, fmt.Errorf("%s: %w", txHash.Hex(), ErrNotMined)
	}
	return MessageFromReceipt(era, l.deployment.For(era), receipt)
}
