// Package tracker holds the request and response types of the tracker API.
package tracker

import (
	"time"

	"github.com/chainsafe/bridge-tracker/pkg/transfer"
)

// AddTransferRequest registers a transfer the user just submitted, before it is mined
type AddTransferRequest struct {
	ID           string             `json:"id"`
	Direction    transfer.Direction `json:"direction"`
	AssetKind    transfer.AssetKind `json:"assetKind"`
	Sender       string             `json:"sender"`
	Value        string             `json:"value"`
	TokenAddress string             `json:"tokenAddress,omitzero"`
}

// BackfillRequest selects the block ranges to backfill. Omitted bounds
// default to the configured lookback ending at the current head.
type BackfillRequest struct {
	ParentFrom *uint64 `json:"parentFrom,omitempty"`
	ParentTo   *uint64 `json:"parentTo,omitempty"`
	ChildFrom  *uint64 `json:"childFrom,omitempty"`
	ChildTo    *uint64 `json:"childTo,omitempty"`
}

// BackfillResponse summarizes a backfill run
type BackfillResponse struct {
	Fetched     int          `json:"fetched"`
	Inserted    int          `json:"inserted"`
	FailedPages []FailedPage `json:"failedPages,omitempty"`
}

// FailedPage is a block page that could not be fetched
type FailedPage struct {
	Fetcher string `json:"fetcher"`
	Layer   string `json:"layer"`
	From    uint64 `json:"from"`
	To      uint64 `json:"to"`
	Error   string `json:"error"`
}

// SeenResponse is the seen-transfers ledger
type SeenResponse struct {
	IDs       []string  `json:"ids"`
	CreatedAt time.Time `json:"createdAt"`
}

// MarkSeenRequest marks transfers as seen
type MarkSeenRequest struct {
	IDs []string `json:"ids"`
}
