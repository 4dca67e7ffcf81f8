package ethereum

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrNoMessage is returned when a receipt carries no parent-to-child message
var ErrNoMessage = errors.New("no bridge message in receipt")

const wordSize = 32

func abiFor(era Era) abi.ABI {
	if era == EraClassic {
		return ClassicABI
	}
	return CurrentABI
}

func requireTopics(log types.Log, n int) error {
	if len(log.Topics) < n {
		return fmt.Errorf("log %s:%d has %d topics, want %d", log.TxHash.Hex(), log.Index, len(log.Topics), n)
	}
	return nil
}

func unpack(contract abi.ABI, event string, log types.Log, n int) ([]any, error) {
	values, err := contract.Unpack(event, log.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", event, err)
	}
	if len(values) < n {
		return nil, fmt.Errorf("%s has %d values, want %d", event, len(values), n)
	}
	return values, nil
}

func topicAddress(h common.Hash) common.Address {
	return common.BytesToAddress(h.Bytes())
}

func topicInt(h common.Hash) *big.Int {
	return new(big.Int).SetBytes(h.Bytes())
}

// DecodeMessageDelivered decodes a bridge MessageDelivered log of the given era
func DecodeMessageDelivered(era Era, log types.Log) (*MessageDelivered, error) {
	if err := requireTopics(log, 2); err != nil {
		return nil, err
	}
	values, err := unpack(abiFor(era), "MessageDelivered", log, 4)
	if err != nil {
		return nil, err
	}

	msg := &MessageDelivered{
		Era:           era,
		MessageNumber: topicInt(log.Topics[1]),
		Kind:          values[1].(uint8),
		Sender:        values[2].(common.Address),
		BlockNumber:   log.BlockNumber,
		TxHash:        log.TxHash,
	}
	if era == EraCurrent && len(values) > 4 {
		msg.BaseFee = values[4].(*big.Int)
	}
	return msg, nil
}

// DecodeInboxMessage decodes an InboxMessageDelivered log
func DecodeInboxMessage(log types.Log) (*InboxMessage, error) {
	if err := requireTopics(log, 2); err != nil {
		return nil, err
	}
	values, err := unpack(SharedABI, "InboxMessageDelivered", log, 1)
	if err != nil {
		return nil, err
	}
	return &InboxMessage{
		MessageNumber: topicInt(log.Topics[1]),
		Data:          values[0].([]byte),
		BlockNumber:   log.BlockNumber,
		TxHash:        log.TxHash,
	}, nil
}

// DecodeTokenDeposit decodes a gateway DepositInitiated log
func DecodeTokenDeposit(log types.Log) (*TokenDepositEvent, error) {
	if err := requireTopics(log, 4); err != nil {
		return nil, err
	}
	values, err := unpack(SharedABI, "DepositInitiated", log, 2)
	if err != nil {
		return nil, err
	}
	return &TokenDepositEvent{
		Token:          values[0].(common.Address),
		From:           topicAddress(log.Topics[1]),
		To:             topicAddress(log.Topics[2]),
		SequenceNumber: topicInt(log.Topics[3]),
		Amount:         values[1].(*big.Int),
		BlockNumber:    log.BlockNumber,
		TxHash:         log.TxHash,
	}, nil
}

// DecodeTokenWithdrawal decodes a gateway WithdrawalInitiated log
func DecodeTokenWithdrawal(log types.Log) (*TokenWithdrawalEvent, error) {
	if err := requireTopics(log, 4); err != nil {
		return nil, err
	}
	values, err := unpack(SharedABI, "WithdrawalInitiated", log, 3)
	if err != nil {
		return nil, err
	}
	return &TokenWithdrawalEvent{
		Token:       values[0].(common.Address),
		From:        topicAddress(log.Topics[1]),
		To:          topicAddress(log.Topics[2]),
		WithdrawID:  topicInt(log.Topics[3]),
		ExitNum:     values[1].(*big.Int),
		Amount:      values[2].(*big.Int),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
	}, nil
}

// DecodeNativeWithdrawal decodes an ArbSys outgoing message log of the given era
func DecodeNativeWithdrawal(era Era, log types.Log) (*NativeWithdrawalEvent, error) {
	if err := requireTopics(log, 2); err != nil {
		return nil, err
	}

	// classic logs carry indexInBatch ahead of the block numbers
	name, valueIdx, dataIdx := "L2ToL1Tx", 4, 5
	if era == EraClassic {
		name, valueIdx, dataIdx = "L2ToL1Transaction", 5, 6
	}
	values, err := unpack(abiFor(era), name, log, dataIdx+1)
	if err != nil {
		return nil, err
	}
	return &NativeWithdrawalEvent{
		Caller:      values[0].(common.Address),
		Destination: topicAddress(log.Topics[1]),
		CallValue:   values[valueIdx].(*big.Int),
		Data:        values[dataIdx].([]byte),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
	}, nil
}

// ParseRetryableData decodes the packed payload of a submit-retryable message
func ParseRetryableData(data []byte) (*RetryableData, error) {
	const head = 9 * wordSize
	if len(data) < head {
		return nil, fmt.Errorf("retryable payload too short: %d bytes", len(data))
	}
	word := func(i int) []byte { return data[i*wordSize : (i+1)*wordSize] }

	dataLen := new(big.Int).SetBytes(word(8))
	if !dataLen.IsUint64() || dataLen.Uint64() > uint64(len(data)-head) {
		return nil, fmt.Errorf("retryable calldata length %s exceeds payload", dataLen)
	}

	return &RetryableData{
		Destination:            common.BytesToAddress(word(0)),
		CallValue:              new(big.Int).SetBytes(word(1)),
		Deposit:                new(big.Int).SetBytes(word(2)),
		MaxSubmissionCost:      new(big.Int).SetBytes(word(3)),
		ExcessFeeRefundAddress: common.BytesToAddress(word(4)),
		CallValueRefundAddress: common.BytesToAddress(word(5)),
		GasLimit:               new(big.Int).SetBytes(word(6)),
		MaxFeePerGas:           new(big.Int).SetBytes(word(7)),
		Data:                   common.CopyBytes(data[head : head+int(dataLen.Uint64())]),
	}, nil
}

// ParseEthDepositData decodes the packed payload of a native deposit message
func ParseEthDepositData(data []byte) (*EthDepositData, error) {
	if len(data) < common.AddressLength+wordSize {
		return nil, fmt.Errorf("deposit payload too short: %d bytes", len(data))
	}
	return &EthDepositData{
		Destination: common.BytesToAddress(data[:common.AddressLength]),
		Value:       new(big.Int).SetBytes(data[common.AddressLength : common.AddressLength+wordSize]),
	}, nil
}

// DepositValue returns the amount of native currency a message moves to the child chain
func DepositValue(kind uint8, data []byte) (*big.Int, error) {
	switch kind {
	case KindEthDeposit:
		d, err := ParseEthDepositData(data)
		if err != nil {
			return nil, err
		}
		return d.Value, nil
	case KindSubmitRetryable:
		r, err := ParseRetryableData(data)
		if err != nil {
			return nil, err
		}
		return r.Deposit, nil
	default:
		return nil, fmt.Errorf("message kind %d carries no deposit", kind)
	}
}

// MessageFromReceipt extracts the parent-to-child message created by a deposit transaction
func MessageFromReceipt(era Era, contracts Contracts, receipt *types.Receipt) (*MessageRef, error) {
	if receipt == nil {
		return nil, ErrNoMessage
	}

	var (
		delivered []*MessageDelivered
		payloads  = make(map[string][]byte)
	)
	for _, l := range receipt.Logs {
		if l == nil || len(l.Topics) == 0 {
			continue
		}
		switch {
		case l.Topics[0] == MessageDeliveredTopic(era) && matchAddress(contracts.ParentBridge, l.Address):
			msg, err := DecodeMessageDelivered(era, *l)
			if err != nil {
				return nil, err
			}
			if msg.Kind == KindSubmitRetryable || msg.Kind == KindEthDeposit {
				delivered = append(delivered, msg)
			}
		case l.Topics[0] == InboxMessageDeliveredTopic && matchAddress(contracts.ParentInbox, l.Address):
			msg, err := DecodeInboxMessage(*l)
			if err != nil {
				return nil, err
			}
			payloads[msg.MessageNumber.String()] = msg.Data
		}
	}

	// a gateway deposit may enqueue several messages; the retryable is the last one
	for i := len(delivered) - 1; i >= 0; i-- {
		msg := delivered[i]
		data, ok := payloads[msg.MessageNumber.String()]
		if !ok {
			continue
		}
		return &MessageRef{
			Era:           era,
			MessageNumber: msg.MessageNumber,
			Kind:          msg.Kind,
			Sender:        msg.Sender,
			BaseFee:       msg.BaseFee,
			Data:          data,
		}, nil
	}
	return nil, ErrNoMessage
}

// MessageNumberFromReceipt returns the inbox message number created by a deposit transaction
func MessageNumberFromReceipt(era Era, contracts Contracts, receipt *types.Receipt) (*big.Int, error) {
	ref, err := MessageFromReceipt(era, contracts, receipt)
	if err != nil {
		return nil, err
	}
	return ref.MessageNumber, nil
}

// matchAddress accepts any emitter when no contract is configured
func matchAddress(want, got common.Address) bool {
	return want == (common.Address{}) || want == got
}
