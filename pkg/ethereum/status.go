package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// MessageStatus is the child chain view of a parent-to-child message.
// It is either a LegacyMessageStatus or a CurrentMessageStatus.
type MessageStatus interface {
	Era() Era
}

// Legacy status ordinals as reported for classic messages
const (
	LegacyNotYetCreated  = 1
	LegacyCreationFailed = 2
	LegacyFundsDeposited = 3
	LegacyRedeemed       = 4
	LegacyExpired        = 5
)

// LegacyMessageStatus reports only an ordinal; redemption hashes must be looked up separately
type LegacyMessageStatus struct {
	Ordinal int
}

// Era implements MessageStatus
func (LegacyMessageStatus) Era() Era { return EraClassic }

// CurrentStatus is the status of a current era message
type CurrentStatus int

const (
	CurrentNotYetCreated CurrentStatus = iota
	CurrentCreationFailed
	CurrentFundsDeposited
	CurrentRedeemed
	CurrentExpired
)

func (s CurrentStatus) String() string {
	switch s {
	case CurrentNotYetCreated:
		return "not_yet_created"
	case CurrentCreationFailed:
		return "creation_failed"
	case CurrentFundsDeposited:
		return "funds_deposited"
	case CurrentRedeemed:
		return "redeemed"
	case CurrentExpired:
		return "expired"
	default:
		return fmt.Sprintf("CurrentStatus(%d)", int(s))
	}
}

// CurrentMessageStatus carries the child chain transaction that settled the message, if any
type CurrentMessageStatus struct {
	Status      CurrentStatus
	ChildTxHash *common.Hash
}

// Era implements MessageStatus
func (CurrentMessageStatus) Era() Era { return EraCurrent }

// ChildReader is the child chain access needed to resolve message status
type ChildReader interface {
	ChainID() *big.Int
	Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	GetEvents(ctx context.Context, q EventQuery) ([]types.Log, error)
	LatestBlock(ctx context.Context) (uint64, error)
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// StatusClient resolves message status on the child chain for both eras
type StatusClient struct {
	child  ChildReader
	logger *zap.Logger
}

// NewStatusClient creates a new StatusClient
func NewStatusClient(child ChildReader, logger *zap.Logger) *StatusClient {
	return &StatusClient{child: child, logger: logger}
}

// GetMessageStatus reports the child chain status of the message
func (s *StatusClient) GetMessageStatus(ctx context.Context, ref MessageRef) (MessageStatus, error) {
	if ref.MessageNumber == nil {
		return nil, fmt.Errorf("message number is required")
	}
	if ref.Era == EraClassic {
		return s.legacyStatus(ctx, ref)
	}
	return s.currentStatus(ctx, ref)
}

// RedemptionTxHash returns the child chain transaction that redeemed the message,
// or nil when no successful redemption is known.
func (s *StatusClient) RedemptionTxHash(ctx context.Context, ref MessageRef) (*common.Hash, error) {
	if ref.Era != EraClassic {
		status, err := s.currentStatus(ctx, ref)
		if err != nil {
			return nil, err
		}
		if status.Status != CurrentRedeemed {
			return nil, nil
		}
		return status.ChildTxHash, nil
	}

	ticket := ClassicTicketID(s.child.ChainID(), ref.MessageNumber)
	autoRedeem := ClassicAutoRedeemID(ticket)
	receipt, err := s.child.Receipt(ctx, autoRedeem)
	if err != nil {
		return nil, err
	}
	if receipt != nil && receipt.Status == types.ReceiptStatusSuccessful {
		return &autoRedeem, nil
	}

	created, err := s.child.Receipt(ctx, ticket)
	if err != nil || created == nil {
		return nil, err
	}
	outcome, err := s.classicOutcome(ctx, ticket, created)
	if err != nil {
		return nil, err
	}
	return outcome.redeemedBy, nil
}

func (s *StatusClient) legacyStatus(ctx context.Context, ref MessageRef) (LegacyMessageStatus, error) {
	ticket := ClassicTicketID(s.child.ChainID(), ref.MessageNumber)

	created, err := s.child.Receipt(ctx, ticket)
	if err != nil {
		return LegacyMessageStatus{}, err
	}
	if created == nil {
		return LegacyMessageStatus{Ordinal: LegacyNotYetCreated}, nil
	}
	if created.Status != types.ReceiptStatusSuccessful {
		return LegacyMessageStatus{Ordinal: LegacyCreationFailed}, nil
	}

	redeemed, err := s.child.Receipt(ctx, ClassicAutoRedeemID(ticket))
	if err != nil {
		return LegacyMessageStatus{}, err
	}
	if redeemed != nil && redeemed.Status == types.ReceiptStatusSuccessful {
		return LegacyMessageStatus{Ordinal: LegacyRedeemed}, nil
	}

	alive, err := s.ticketAlive(ctx, ticket)
	if err != nil {
		return LegacyMessageStatus{}, err
	}
	if alive {
		return LegacyMessageStatus{Ordinal: LegacyFundsDeposited}, nil
	}

	// The precompile forgets redeemed tickets as well as expired ones
	outcome, err := s.classicOutcome(ctx, ticket, created)
	if err != nil {
		return LegacyMessageStatus{}, err
	}
	switch {
	case outcome.redeemedBy != nil:
		return LegacyMessageStatus{Ordinal: LegacyRedeemed}, nil
	case outcome.settled:
		return LegacyMessageStatus{Ordinal: LegacyExpired}, nil
	default:
		return LegacyMessageStatus{Ordinal: LegacyFundsDeposited}, nil
	}
}

type classicTicketOutcome struct {
	// redeemedBy is the child transaction that redeemed the ticket
	redeemedBy *common.Hash
	// settled is set once the event history rules out a redemption
	settled bool
}

// classicOutcome scans the precompile events of a classic ticket since its
// creation. Without a Redeemed event the ticket is settled as not redeemed only
// when the scan reached the child head and found a Canceled event or nothing at all.
func (s *StatusClient) classicOutcome(ctx context.Context, ticket common.Hash, created *types.Receipt) (classicTicketOutcome, error) {
	if created.BlockNumber == nil {
		return classicTicketOutcome{}, nil
	}
	from := created.BlockNumber.Uint64()

	latest, err := s.child.LatestBlock(ctx)
	if err != nil {
		return classicTicketOutcome{}, err
	}
	if latest < from {
		// the node lags behind the receipt, nothing can be ruled out yet
		return classicTicketOutcome{}, nil
	}

	logs, err := s.child.GetEvents(ctx, EventQuery{
		Addresses: []common.Address{ArbRetryableTxAddress},
		Topics:    [][]common.Hash{{ClassicRedeemedTopic, ClassicCanceledTopic}, {ticket}},
		FromBlock: from,
		ToBlock:   latest,
	})
	if err != nil {
		return classicTicketOutcome{}, fmt.Errorf("failed to scan ticket %s events: %w", ticket.Hex(), err)
	}

	for _, l := range logs {
		if l.Removed || l.Address != ArbRetryableTxAddress || len(l.Topics) < 2 || l.Topics[1] != ticket {
			continue
		}
		if l.Topics[0] == ClassicRedeemedTopic {
			hash := l.TxHash
			return classicTicketOutcome{redeemedBy: &hash, settled: true}, nil
		}
	}
	return classicTicketOutcome{settled: true}, nil
}

func (s *StatusClient) currentStatus(ctx context.Context, ref MessageRef) (CurrentMessageStatus, error) {
	switch ref.Kind {
	case KindEthDeposit:
		return s.currentDepositStatus(ctx, ref)
	case KindSubmitRetryable:
		return s.currentRetryableStatus(ctx, ref)
	default:
		return CurrentMessageStatus{}, fmt.Errorf("unsupported message kind %d", ref.Kind)
	}
}

func (s *StatusClient) currentDepositStatus(ctx context.Context, ref MessageRef) (CurrentMessageStatus, error) {
	data, err := ParseEthDepositData(ref.Data)
	if err != nil {
		return CurrentMessageStatus{}, err
	}
	txHash, err := CurrentDepositTxHash(s.child.ChainID(), ref, *data)
	if err != nil {
		return CurrentMessageStatus{}, err
	}

	receipt, err := s.child.Receipt(ctx, txHash)
	if err != nil {
		return CurrentMessageStatus{}, err
	}
	if receipt == nil {
		return CurrentMessageStatus{Status: CurrentNotYetCreated}, nil
	}
	return CurrentMessageStatus{Status: CurrentFundsDeposited, ChildTxHash: &txHash}, nil
}

func (s *StatusClient) currentRetryableStatus(ctx context.Context, ref MessageRef) (CurrentMessageStatus, error) {
	data, err := ParseRetryableData(ref.Data)
	if err != nil {
		return CurrentMessageStatus{}, err
	}
	ticket, err := CurrentTicketID(s.child.ChainID(), ref, *data)
	if err != nil {
		return CurrentMessageStatus{}, err
	}

	created, err := s.child.Receipt(ctx, ticket)
	if err != nil {
		return CurrentMessageStatus{}, err
	}
	if created == nil {
		return CurrentMessageStatus{Status: CurrentNotYetCreated}, nil
	}
	if created.Status != types.ReceiptStatusSuccessful {
		return CurrentMessageStatus{Status: CurrentCreationFailed}, nil
	}

	redeemTx, err := s.findRedemption(ctx, ticket, created)
	if err != nil {
		return CurrentMessageStatus{}, err
	}
	if redeemTx != nil {
		return CurrentMessageStatus{Status: CurrentRedeemed, ChildTxHash: redeemTx}, nil
	}

	alive, err := s.ticketAlive(ctx, ticket)
	if err != nil {
		return CurrentMessageStatus{}, err
	}
	if !alive {
		return CurrentMessageStatus{Status: CurrentExpired}, nil
	}
	return CurrentMessageStatus{Status: CurrentFundsDeposited}, nil
}

// findRedemption looks for a successful redeem attempt of ticket, first the
// automatic one scheduled at creation and then any manual one scheduled since.
func (s *StatusClient) findRedemption(ctx context.Context, ticket common.Hash, created *types.Receipt) (*common.Hash, error) {
	var candidates []common.Hash
	for _, l := range created.Logs {
		if l != nil && isRedeemScheduled(*l, ticket) {
			candidates = append(candidates, l.Topics[2])
		}
	}

	latest, err := s.child.LatestBlock(ctx)
	if err != nil {
		return nil, err
	}
	from := uint64(0)
	if created.BlockNumber != nil {
		from = created.BlockNumber.Uint64()
	}
	if latest >= from {
		logs, err := s.child.GetEvents(ctx, EventQuery{
			Addresses: []common.Address{ArbRetryableTxAddress},
			Topics:    [][]common.Hash{{RedeemScheduledTopic}, {ticket}},
			FromBlock: from,
			ToBlock:   latest,
		})
		if err != nil {
			return nil, err
		}
		for _, l := range logs {
			if isRedeemScheduled(l, ticket) {
				candidates = append(candidates, l.Topics[2])
			}
		}
	}

	for _, retryTx := range candidates {
		receipt, err := s.child.Receipt(ctx, retryTx)
		if err != nil {
			return nil, err
		}
		if receipt != nil && receipt.Status == types.ReceiptStatusSuccessful {
			hash := retryTx
			return &hash, nil
		}
	}
	return nil, nil
}

func isRedeemScheduled(l types.Log, ticket common.Hash) bool {
	return l.Address == ArbRetryableTxAddress &&
		len(l.Topics) >= 3 &&
		l.Topics[0] == RedeemScheduledTopic &&
		l.Topics[1] == ticket
}

// ticketAlive reports whether the retryable still exists. The precompile reverts for
// tickets that were redeemed or expired.
func (s *StatusClient) ticketAlive(ctx context.Context, ticket common.Hash) (bool, error) {
	input, err := CurrentABI.Pack("getTimeout", [32]byte(ticket))
	if err != nil {
		return false, fmt.Errorf("failed to pack getTimeout: %w", err)
	}

	out, err := s.child.Call(ctx, ArbRetryableTxAddress, input)
	if err != nil {
		if isRevert(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get ticket timeout %s: %w", ticket.Hex(), err)
	}

	values, err := CurrentABI.Unpack("getTimeout", out)
	if err != nil {
		return false, fmt.Errorf("failed to unpack getTimeout: %w", err)
	}
	if len(values) == 0 {
		return false, nil
	}
	timeout, _ := values[0].(*big.Int)
	return timeout != nil && timeout.Sign() > 0, nil
}

func isRevert(err error) bool {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}
