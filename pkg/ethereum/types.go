package ethereum

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MessageDelivered is a message enqueued in the parent chain bridge
type MessageDelivered struct {
	Era           Era
	MessageNumber *big.Int
	Kind          uint8
	Sender        common.Address
	BaseFee       *big.Int // current era only
	BlockNumber   uint64
	TxHash        common.Hash
}

// InboxMessage carries the payload of an inbox message
type InboxMessage struct {
	MessageNumber *big.Int
	Data          []byte
	BlockNumber   uint64
	TxHash        common.Hash
}

// TokenDepositEvent is emitted by a parent chain gateway when tokens are deposited
type TokenDepositEvent struct {
	Token          common.Address
	From           common.Address
	To             common.Address
	SequenceNumber *big.Int
	Amount         *big.Int
	BlockNumber    uint64
	TxHash         common.Hash
}

// TokenWithdrawalEvent is emitted by a child chain gateway when tokens are withdrawn
type TokenWithdrawalEvent struct {
	Token       common.Address
	From        common.Address
	To          common.Address
	WithdrawID  *big.Int
	ExitNum     *big.Int
	Amount      *big.Int
	BlockNumber uint64
	TxHash      common.Hash
}

// NativeWithdrawalEvent is an outgoing message from ArbSys carrying call value
type NativeWithdrawalEvent struct {
	Caller      common.Address
	Destination common.Address
	CallValue   *big.Int
	Data        []byte
	BlockNumber uint64
	TxHash      common.Hash
}

// RetryableData is the decoded payload of a submit-retryable inbox message
type RetryableData struct {
	Destination            common.Address
	CallValue              *big.Int
	Deposit                *big.Int
	MaxSubmissionCost      *big.Int
	ExcessFeeRefundAddress common.Address
	CallValueRefundAddress common.Address
	GasLimit               *big.Int
	MaxFeePerGas           *big.Int
	Data                   []byte
}

// EthDepositData is the decoded payload of a native deposit inbox message
type EthDepositData struct {
	Destination common.Address
	Value       *big.Int
}

// MessageRef identifies a parent-to-child message together with what is
// needed to derive its child chain transaction ids.
type MessageRef struct {
	Era           Era
	MessageNumber *big.Int
	Kind          uint8
	Sender        common.Address
	BaseFee       *big.Int
	Data          []byte
}
