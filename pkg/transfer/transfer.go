// Package transfer defines the cross-chain transfer model tracked by the bridge tracker.
package transfer

import (
	"strings"
	"time"
)

// Direction indicates which way a transfer moves between the parent and child chain
type Direction string

const (
	DirectionDeposit    Direction = "deposit"
	DirectionWithdrawal Direction = "withdrawal"
)

// AssetKind distinguishes the native currency from fungible tokens
type AssetKind string

const (
	AssetNative AssetKind = "native"
	AssetToken  AssetKind = "token"
)

// Status is the submission status of the transaction that started a transfer
type Status string

const (
	StatusPending   Status = "pending"
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
	StatusConfirmed Status = "confirmed"
)

// CanTransition reports whether a transfer in direction d may move from s to next.
// success and failure are terminal for submission; confirmed is only reachable
// from success and only for withdrawals.
func (s Status) CanTransition(next Status, d Direction) bool {
	switch s {
	case StatusPending:
		return next == StatusSuccess || next == StatusFailure
	case StatusSuccess:
		return next == StatusConfirmed && d == DirectionWithdrawal
	default:
		return false
	}
}

// Transfer is a user-initiated asset movement between the parent and child chain.
type Transfer struct {
	ID                string             `json:"id"`
	Direction         Direction          `json:"direction"`
	AssetKind         AssetKind          `json:"assetKind"`
	Status            Status             `json:"status"`
	BlockNumber       *uint64            `json:"blockNumber,omitempty"`
	TimestampCreated  time.Time          `json:"timestampCreated"`
	TimestampResolved *time.Time         `json:"timestampResolved,omitempty"`
	CrossChainMessage *CrossChainMessage `json:"crossChainMessage,omitempty"`
	Sender            string             `json:"sender"`
	Value             string             `json:"value"`
	TokenAddress      string             `json:"tokenAddress,omitempty"`
}

// CrossChainMessage tracks delivery of a deposit's message on the child chain.
type CrossChainMessage struct {
	LifecycleStatus LifecycleStatus `json:"lifecycleStatus"`
	SourceMessageID string          `json:"sourceMessageId,omitempty"`
	DestinationTxID *string         `json:"destinationTxId,omitempty"`
	IsFetching      bool            `json:"isFetching"`
}

// CrossChainMessageUpdate is a partial update; nil fields are left untouched when merged.
type CrossChainMessageUpdate struct {
	LifecycleStatus *LifecycleStatus `json:"lifecycleStatus,omitempty"`
	SourceMessageID *string          `json:"sourceMessageId,omitempty"`
	DestinationTxID *string          `json:"destinationTxId,omitempty"`
	IsFetching      *bool            `json:"isFetching,omitempty"`
}

// NormalizeID lower-cases a transaction hash so ids compare consistently.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// IsDeposit reports whether the transfer moves assets from the parent to the child chain
func (t *Transfer) IsDeposit() bool {
	return t.Direction == DirectionDeposit
}

// IsLifecycleTerminal reports whether no further lifecycle progress is expected.
// Transfers without a cross-chain message have nothing to resolve.
func (t *Transfer) IsLifecycleTerminal() bool {
	if t.CrossChainMessage == nil {
		return true
	}
	return t.CrossChainMessage.LifecycleStatus.IsTerminal(t.AssetKind)
}

// Clone returns a deep copy so callers can never alias store-owned state.
func (t Transfer) Clone() Transfer {
	out := t
	if t.BlockNumber != nil {
		bn := *t.BlockNumber
		out.BlockNumber = &bn
	}
	if t.TimestampResolved != nil {
		ts := *t.TimestampResolved
		out.TimestampResolved = &ts
	}
	if t.CrossChainMessage != nil {
		msg := *t.CrossChainMessage
		if msg.DestinationTxID != nil {
			dest := *msg.DestinationTxID
			msg.DestinationTxID = &dest
		}
		out.CrossChainMessage = &msg
	}
	return out
}

// Ptr returns a pointer to v. It keeps partial-update literals short.
func Ptr[T any](v T) *T {
	return &v
}
