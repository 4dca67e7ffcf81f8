package transferstore

import (
	"time"

	"github.com/chainsafe/bridge-tracker/pkg/transfer"
)

// Action is a state transition understood by Apply
type Action interface {
	Name() string
}

// Seed replaces the collection wholesale. It is used once at startup.
type Seed struct {
	Transfers []transfer.Transfer
}

// Insert prepends a single transfer, typically an optimistic pending entry
type Insert struct {
	Transfer transfer.Transfer
}

// InsertMany appends transfers whose ids are not yet known
type InsertMany struct {
	Transfers []transfer.Transfer
}

// Remove deletes a single transfer
type Remove struct {
	ID string
}

// SetStatus moves the submission status forward
type SetStatus struct {
	ID     string
	Status transfer.Status
}

// SetBlockNumber records the block that mined the submitting transaction
type SetBlockNumber struct {
	ID          string
	BlockNumber uint64
}

// SetResolvedTimestamp records when the transfer reached its resolved state
type SetResolvedTimestamp struct {
	ID        string
	Timestamp time.Time
}

// SetCrossChainMessage merges a partial update into the transfer's message
type SetCrossChainMessage struct {
	ID     string
	Update transfer.CrossChainMessageUpdate
}

// ClearPending removes every transfer whose submission is still pending
type ClearPending struct{}

func (Seed) Name() string                 { return "seed" }
func (Insert) Name() string               { return "insert" }
func (InsertMany) Name() string           { return "insert_many" }
func (Remove) Name() string               { return "remove" }
func (SetStatus) Name() string            { return "set_status" }
func (SetBlockNumber) Name() string       { return "set_block_number" }
func (SetResolvedTimestamp) Name() string { return "set_resolved_timestamp" }
func (SetCrossChainMessage) Name() string { return "set_cross_chain_message" }
func (ClearPending) Name() string         { return "clear_pending" }
