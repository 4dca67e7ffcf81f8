// Package indexer queries a hosted transfer indexer and normalizes its records
// into transfers.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/internal/metrics"
	"github.com/chainsafe/bridge-tracker/pkg/config"
	"github.com/chainsafe/bridge-tracker/pkg/ethereum"
	"github.com/chainsafe/bridge-tracker/pkg/transfer"
)

const transfersQuery = `query Transfers($address: String!, $layer: String!, $fromBlock: BigInt!, $toBlock: BigInt!, $first: Int!, $skip: Int!) {
  transfers(
    where: { account: $address, layer: $layer, blockNumber_gte: $fromBlock, blockNumber_lte: $toBlock }
    first: $first
    skip: $skip
    orderBy: blockNumber
    orderDirection: desc
  ) {
    txHash
    type
    tokenAddress
    amount
    sender
    blockNumber
    timestamp
    messageNumber
  }
}`

// Query selects one page of an account's transfers
type Query struct {
	Address   common.Address
	Layer     ethereum.Layer
	FromBlock uint64
	ToBlock   uint64
	First     int
	Skip      int
}

// Record is a transfer as reported by the indexer
type Record struct {
	TxHash        string `json:"txHash"`
	Type          string `json:"type"`
	TokenAddress  string `json:"tokenAddress"`
	Amount        string `json:"amount"`
	Sender        string `json:"sender"`
	BlockNumber   string `json:"blockNumber"`
	Timestamp     string `json:"timestamp"`
	MessageNumber string `json:"messageNumber"`
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type transfersResponse struct {
	Data struct {
		Transfers []Record `json:"transfers"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

// Page is one indexer response. Records counts every record returned, including
// the ones skipped during normalization, so callers can page on it.
type Page struct {
	Transfers []transfer.Transfer
	Records   int
}

// Client queries the indexer over GraphQL
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient creates a new indexer Client
func NewClient(cfg config.IndexerConfig, logger *zap.Logger) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(cfg.URL).
			SetTimeout(cfg.Timeout).
			SetHeader("Content-Type", "application/json"),
		logger: logger,
	}
}

// Transfers returns the account's transfers in the query window. Records that
// cannot be normalized are skipped and counted.
func (c *Client) Transfers(ctx context.Context, q Query) (Page, error) {
	requestID := uuid.NewString()

	var body transfersResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", requestID).
		SetBody(graphqlRequest{
			Query: transfersQuery,
			Variables: map[string]any{
				"address":   strings.ToLower(q.Address.Hex()),
				"layer":     string(q.Layer),
				"fromBlock": strconv.FormatUint(q.FromBlock, 10),
				"toBlock":   strconv.FormatUint(q.ToBlock, 10),
				"first":     q.First,
				"skip":      q.Skip,
			},
		}).
		SetResult(&body).
		Post("")
	if err != nil {
		return Page{}, fmt.Errorf("indexer request %s failed: %w", requestID, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return Page{}, fmt.Errorf("indexer request %s returned %s", requestID, resp.Status())
	}
	if len(body.Errors) > 0 {
		return Page{}, fmt.Errorf("indexer request %s: %s", requestID, body.Errors[0].Message)
	}

	out := make([]transfer.Transfer, 0, len(body.Data.Transfers))
	for _, rec := range body.Data.Transfers {
		t, err := Normalize(rec)
		if err != nil {
			metrics.IndexerRecordsSkipped.WithLabelValues(skipReason(err)).Inc()
			c.logger.Warn("Skipping indexer record",
				zap.String("request_id", requestID),
				zap.String("tx_hash", rec.TxHash),
				zap.Error(err))
			continue
		}
		out = append(out, t)
	}

	c.logger.Debug("Indexer page fetched",
		zap.String("request_id", requestID),
		zap.String("layer", string(q.Layer)),
		zap.Uint64("from", q.FromBlock),
		zap.Uint64("to", q.ToBlock),
		zap.Int("records", len(body.Data.Transfers)),
		zap.Int("kept", len(out)))

	return Page{Transfers: out, Records: len(body.Data.Transfers)}, nil
}

// RecordError explains why a record was skipped
type RecordError struct {
	Reason string
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func skipReason(err error) string {
	var re *RecordError
	if errors.As(err, &re) {
		return re.Reason
	}
	return "unknown"
}

func invalid(reason string, format string, args ...any) error {
	return &RecordError{Reason: reason, Err: fmt.Errorf(format, args...)}
}

// Normalize converts an indexer record into a transfer. Indexed transfers are
// mined, so their submission status is success.
func Normalize(rec Record) (transfer.Transfer, error) {
	var direction transfer.Direction
	switch strings.ToLower(rec.Type) {
	case "deposit":
		direction = transfer.DirectionDeposit
	case "withdrawal":
		direction = transfer.DirectionWithdrawal
	default:
		return transfer.Transfer{}, invalid("type", "unknown transfer type %q", rec.Type)
	}

	hash, err := parseHash(rec.TxHash)
	if err != nil {
		return transfer.Transfer{}, invalid("tx_hash", "%w", err)
	}

	amount, err := decimal.NewFromString(rec.Amount)
	if err != nil {
		return transfer.Transfer{}, invalid("amount", "unparsable amount %q: %w", rec.Amount, err)
	}
	if !amount.IsInteger() || amount.IsNegative() {
		return transfer.Transfer{}, invalid("amount", "amount %q is not a base-unit integer", rec.Amount)
	}

	block, err := strconv.ParseUint(rec.BlockNumber, 10, 64)
	if err != nil {
		return transfer.Transfer{}, invalid("block_number", "bad block number %q: %w", rec.BlockNumber, err)
	}
	seconds, err := strconv.ParseInt(rec.Timestamp, 10, 64)
	if err != nil {
		return transfer.Transfer{}, invalid("timestamp", "bad timestamp %q: %w", rec.Timestamp, err)
	}
	created := time.Unix(seconds, 0).UTC()

	t := transfer.Transfer{
		ID:               transfer.NormalizeID(hash.Hex()),
		Direction:        direction,
		AssetKind:        transfer.AssetNative,
		Status:           transfer.StatusSuccess,
		BlockNumber:      transfer.Ptr(block),
		TimestampCreated: created,
		Sender:           strings.ToLower(rec.Sender),
		Value:            amount.String(),
	}

	if rec.TokenAddress != "" {
		if !common.IsHexAddress(rec.TokenAddress) {
			return transfer.Transfer{}, invalid("token", "bad token address %q", rec.TokenAddress)
		}
		// the zero address stands for the native currency
		if token := common.HexToAddress(rec.TokenAddress); token != (common.Address{}) {
			t.AssetKind = transfer.AssetToken
			t.TokenAddress = strings.ToLower(token.Hex())
		}
	}

	if direction == transfer.DirectionWithdrawal {
		t.TimestampResolved = transfer.Ptr(created)
		return t, nil
	}

	num, err := decimal.NewFromString(rec.MessageNumber)
	if err != nil || !num.IsInteger() || num.IsNegative() {
		return transfer.Transfer{}, invalid("message_number", "bad message number %q", rec.MessageNumber)
	}
	t.CrossChainMessage = &transfer.CrossChainMessage{
		LifecycleStatus: transfer.LifecycleNotYetCreated,
		SourceMessageID: hexutil.EncodeBig(num.BigInt()),
	}
	return t, nil
}

func parseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("bad transaction hash %q", s)
	}
	return common.BytesToHash(b), nil
}
