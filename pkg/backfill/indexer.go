package backfill

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/bridge-tracker/pkg/ethereum"
	"github.com/chainsafe/bridge-tracker/pkg/indexer"
	"github.com/chainsafe/bridge-tracker/pkg/transfer"
)

const defaultIndexerLimit = 100

// TransferQuerier queries the hosted indexer
type TransferQuerier interface {
	Transfers(ctx context.Context, q indexer.Query) (indexer.Page, error)
}

// IndexerFetcher reads transfers from the hosted indexer
type IndexerFetcher struct {
	client TransferQuerier
	limit  int
}

// NewIndexerFetcher creates a new IndexerFetcher requesting limit records per call
func NewIndexerFetcher(client TransferQuerier, limit int) *IndexerFetcher {
	if limit <= 0 {
		limit = defaultIndexerLimit
	}
	return &IndexerFetcher{client: client, limit: limit}
}

// Name implements Fetcher
func (f *IndexerFetcher) Name() string { return "indexer" }

// FetchPage implements Fetcher, following the indexer's own pagination until a
// short page. Pages are sized by the records returned, not by the records kept.
func (f *IndexerFetcher) FetchPage(ctx context.Context, account common.Address, page ethereum.BlockRange) ([]transfer.Transfer, error) {
	var out []transfer.Transfer
	for skip := 0; ; skip += f.limit {
		res, err := f.client.Transfers(ctx, indexer.Query{
			Address:   account,
			Layer:     page.Layer,
			FromBlock: page.From,
			ToBlock:   page.To,
			First:     f.limit,
			Skip:      skip,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, res.Transfers...)
		if res.Records < f.limit {
			return out, nil
		}
	}
}
