package backfill

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/internal/metrics"
	"github.com/chainsafe/bridge-tracker/pkg/ethereum"
	"github.com/chainsafe/bridge-tracker/pkg/transfer"
)

// LogReader reads logs and block times of one layer
type LogReader interface {
	GetEvents(ctx context.Context, q ethereum.EventQuery) ([]types.Log, error)
	BlockTime(ctx context.Context, number uint64) (time.Time, error)
}

// EventFetcher reconstructs transfers from the bridge contracts' event logs
type EventFetcher struct {
	parent     LogReader
	child      LogReader
	deployment ethereum.Deployment
	logger     *zap.Logger
}

// NewEventFetcher creates a new EventFetcher
func NewEventFetcher(parent, child LogReader, deployment ethereum.Deployment, logger *zap.Logger) *EventFetcher {
	return &EventFetcher{
		parent:     parent,
		child:      child,
		deployment: deployment,
		logger:     logger.Named("events"),
	}
}

// Name implements Fetcher
func (f *EventFetcher) Name() string { return "events" }

// FetchPage implements Fetcher. A page crossing the era boundary is queried
// against the contracts of each era separately.
func (f *EventFetcher) FetchPage(ctx context.Context, account common.Address, page ethereum.BlockRange) ([]transfer.Transfer, error) {
	var out []transfer.Transfer
	for _, r := range f.deployment.Schedule.Split(page) {
		var (
			found []transfer.Transfer
			err   error
		)
		if r.Layer == ethereum.LayerChild {
			found, err = f.withdrawals(ctx, account, r)
		} else {
			found, err = f.deposits(ctx, account, r)
		}
		if err != nil {
			return nil, fmt.Errorf("%s era %s [%d, %d]: %w", r.Era, r.Layer, r.From, r.To, err)
		}
		out = append(out, found...)
	}
	return out, nil
}

func (f *EventFetcher) deposits(ctx context.Context, account common.Address, r ethereum.EraRange) ([]transfer.Transfer, error) {
	contracts := f.deployment.For(r.Era)

	native, err := f.nativeDeposits(ctx, account, r, contracts)
	if err != nil {
		return nil, err
	}

	logs, err := f.parent.GetEvents(ctx, ethereum.EventQuery{
		Addresses: contracts.ParentGateways,
		Topics:    [][]common.Hash{{ethereum.DepositInitiatedTopic}, {addressTopic(account)}},
		FromBlock: r.From,
		ToBlock:   r.To,
	})
	if err != nil {
		return nil, err
	}

	out := native
	for _, l := range logs {
		if l.Removed {
			continue
		}
		ev, err := ethereum.DecodeTokenDeposit(l)
		if err != nil {
			f.logger.Warn("Skipping undecodable deposit log", zap.String("tx_hash", l.TxHash.Hex()), zap.Error(err))
			continue
		}
		metrics.EventsDetected.WithLabelValues(string(ethereum.LayerParent), "token_deposit").Inc()

		created, err := f.parent.BlockTime(ctx, ev.BlockNumber)
		if err != nil {
			return nil, err
		}
		out = append(out, transfer.Transfer{
			ID:               txID(ev.TxHash),
			Direction:        transfer.DirectionDeposit,
			AssetKind:        transfer.AssetToken,
			Status:           transfer.StatusSuccess,
			BlockNumber:      transfer.Ptr(ev.BlockNumber),
			TimestampCreated: created,
			CrossChainMessage: &transfer.CrossChainMessage{
				LifecycleStatus: transfer.LifecycleNotYetCreated,
				SourceMessageID: hexutil.EncodeBig(ev.SequenceNumber),
			},
			Sender:       lowerHex(ev.From),
			Value:        ev.Amount.String(),
			TokenAddress: lowerHex(ev.Token),
		})
	}
	return out, nil
}

// nativeDeposits finds messages the account enqueued itself. The current bridge
// records the aliased sender and a dedicated deposit kind; the classic bridge
// records deposits as retryables from the plain sender.
func (f *EventFetcher) nativeDeposits(ctx context.Context, account common.Address, r ethereum.EraRange, contracts ethereum.Contracts) ([]transfer.Transfer, error) {
	sender, kind := ethereum.ApplyAlias(account), ethereum.KindEthDeposit
	if r.Era == ethereum.EraClassic {
		sender, kind = account, ethereum.KindSubmitRetryable
	}

	logs, err := f.parent.GetEvents(ctx, ethereum.EventQuery{
		Addresses: []common.Address{contracts.ParentBridge},
		Topics:    [][]common.Hash{{ethereum.MessageDeliveredTopic(r.Era)}},
		FromBlock: r.From,
		ToBlock:   r.To,
	})
	if err != nil {
		return nil, err
	}

	var (
		messages []*ethereum.MessageDelivered
		numbers  []common.Hash
	)
	for _, l := range logs {
		if l.Removed {
			continue
		}
		msg, err := ethereum.DecodeMessageDelivered(r.Era, l)
		if err != nil {
			f.logger.Warn("Skipping undecodable bridge log", zap.String("tx_hash", l.TxHash.Hex()), zap.Error(err))
			continue
		}
		if msg.Sender != sender || msg.Kind != kind {
			continue
		}
		messages = append(messages, msg)
		numbers = append(numbers, common.BigToHash(msg.MessageNumber))
	}
	if len(messages) == 0 {
		return nil, nil
	}

	inboxLogs, err := f.parent.GetEvents(ctx, ethereum.EventQuery{
		Addresses: []common.Address{contracts.ParentInbox},
		Topics:    [][]common.Hash{{ethereum.InboxMessageDeliveredTopic}, numbers},
		FromBlock: r.From,
		ToBlock:   r.To,
	})
	if err != nil {
		return nil, err
	}
	payloads := make(map[string][]byte, len(inboxLogs))
	for _, l := range inboxLogs {
		msg, err := ethereum.DecodeInboxMessage(l)
		if err != nil {
			continue
		}
		payloads[msg.MessageNumber.String()] = msg.Data
	}

	out := make([]transfer.Transfer, 0, len(messages))
	for _, msg := range messages {
		data, ok := payloads[msg.MessageNumber.String()]
		if !ok {
			f.logger.Warn("Inbox payload missing for message",
				zap.String("tx_hash", msg.TxHash.Hex()),
				zap.String("message_number", msg.MessageNumber.String()))
			continue
		}
		value, err := ethereum.DepositValue(msg.Kind, data)
		if err != nil {
			f.logger.Warn("Skipping message with bad payload", zap.String("tx_hash", msg.TxHash.Hex()), zap.Error(err))
			continue
		}
		if value.Sign() == 0 {
			continue
		}
		metrics.EventsDetected.WithLabelValues(string(ethereum.LayerParent), "native_deposit").Inc()

		created, err := f.parent.BlockTime(ctx, msg.BlockNumber)
		if err != nil {
			return nil, err
		}
		out = append(out, transfer.Transfer{
			ID:               txID(msg.TxHash),
			Direction:        transfer.DirectionDeposit,
			AssetKind:        transfer.AssetNative,
			Status:           transfer.StatusSuccess,
			BlockNumber:      transfer.Ptr(msg.BlockNumber),
			TimestampCreated: created,
			CrossChainMessage: &transfer.CrossChainMessage{
				LifecycleStatus: transfer.LifecycleNotYetCreated,
				SourceMessageID: hexutil.EncodeBig(msg.MessageNumber),
			},
			Sender: lowerHex(account),
			Value:  value.String(),
		})
	}
	return out, nil
}

func (f *EventFetcher) withdrawals(ctx context.Context, account common.Address, r ethereum.EraRange) ([]transfer.Transfer, error) {
	contracts := f.deployment.For(r.Era)

	tokenLogs, err := f.child.GetEvents(ctx, ethereum.EventQuery{
		Addresses: contracts.ChildGateways,
		Topics:    [][]common.Hash{{ethereum.WithdrawalInitiatedTopic}, {addressTopic(account)}},
		FromBlock: r.From,
		ToBlock:   r.To,
	})
	if err != nil {
		return nil, err
	}

	var out []transfer.Transfer
	for _, l := range tokenLogs {
		if l.Removed {
			continue
		}
		ev, err := ethereum.DecodeTokenWithdrawal(l)
		if err != nil {
			f.logger.Warn("Skipping undecodable withdrawal log", zap.String("tx_hash", l.TxHash.Hex()), zap.Error(err))
			continue
		}
		metrics.EventsDetected.WithLabelValues(string(ethereum.LayerChild), "token_withdrawal").Inc()

		t, err := f.withdrawal(ctx, ev.TxHash, ev.BlockNumber, ev.From, ev.Amount)
		if err != nil {
			return nil, err
		}
		t.AssetKind = transfer.AssetToken
		t.TokenAddress = lowerHex(ev.Token)
		out = append(out, t)
	}

	nativeLogs, err := f.child.GetEvents(ctx, ethereum.EventQuery{
		Addresses: []common.Address{ethereum.ArbSysAddress},
		Topics:    [][]common.Hash{{ethereum.NativeWithdrawalTopic(r.Era)}, {addressTopic(account)}},
		FromBlock: r.From,
		ToBlock:   r.To,
	})
	if err != nil {
		return nil, err
	}

	for _, l := range nativeLogs {
		if l.Removed {
			continue
		}
		ev, err := ethereum.DecodeNativeWithdrawal(r.Era, l)
		if err != nil {
			f.logger.Warn("Skipping undecodable outgoing message log", zap.String("tx_hash", l.TxHash.Hex()), zap.Error(err))
			continue
		}
		// token withdrawals also send an outgoing message, without call value
		if ev.Caller != account || ev.CallValue.Sign() == 0 {
			continue
		}
		metrics.EventsDetected.WithLabelValues(string(ethereum.LayerChild), "native_withdrawal").Inc()

		t, err := f.withdrawal(ctx, ev.TxHash, ev.BlockNumber, ev.Caller, ev.CallValue)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *EventFetcher) withdrawal(ctx context.Context, txHash common.Hash, block uint64, from common.Address, amount *big.Int) (transfer.Transfer, error) {
	created, err := f.child.BlockTime(ctx, block)
	if err != nil {
		return transfer.Transfer{}, err
	}
	return transfer.Transfer{
		ID:                txID(txHash),
		Direction:         transfer.DirectionWithdrawal,
		AssetKind:         transfer.AssetNative,
		Status:            transfer.StatusSuccess,
		BlockNumber:       transfer.Ptr(block),
		TimestampCreated:  created,
		TimestampResolved: transfer.Ptr(created),
		Sender:            lowerHex(from),
		Value:             amount.String(),
	}, nil
}

func addressTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

func txID(h common.Hash) string {
	return transfer.NormalizeID(h.Hex())
}

func lowerHex(a common.Address) string {
	return strings.ToLower(a.Hex())
}
