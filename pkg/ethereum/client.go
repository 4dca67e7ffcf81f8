// Package ethereum wraps the parent and child chain RPC endpoints and decodes bridge events.
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/pkg/config"
)

const defaultBlockCacheSize = 1024

// RPC is the subset of ethclient.Client used by Client
type RPC interface {
	FilterLogs(ctx context.Context, q geth.FilterQuery) ([]types.Log, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockNumber(ctx context.Context) (uint64, error)
	CallContract(ctx context.Context, msg geth.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// EventQuery selects logs emitted by a set of contracts over an inclusive block range
type EventQuery struct {
	Addresses []common.Address
	Topics    [][]common.Hash
	FromBlock uint64
	ToBlock   uint64
}

// Client represents a connection to one layer of the bridge
type Client struct {
	layer      Layer
	chainID    *big.Int
	rpc        RPC
	timeout    time.Duration
	blockTimes *lru.Cache
	logger     *zap.Logger
}

// NewClient dials the configured RPC endpoint
func NewClient(ctx context.Context, layer Layer, cfg config.ChainConfig, logger *zap.Logger) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s RPC: %w", layer, err)
	}

	client, err := NewClientWithRPC(layer, cfg.ChainID, rpc, cfg.RequestTimeout, cfg.BlockCacheSize, logger)
	if err != nil {
		rpc.Close()
		return nil, err
	}

	logger.Info("Connected to chain",
		zap.String("layer", string(layer)),
		zap.Uint64("chain_id", cfg.ChainID),
		zap.String("rpc_url", cfg.RPCURL))

	return client, nil
}

// NewClientWithRPC creates a Client over an existing RPC connection
func NewClientWithRPC(layer Layer, chainID uint64, rpc RPC, timeout time.Duration, cacheSize int, logger *zap.Logger) (*Client, error) {
	if cacheSize <= 0 {
		cacheSize = defaultBlockCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create block cache: %w", err)
	}

	return &Client{
		layer:      layer,
		chainID:    new(big.Int).SetUint64(chainID),
		rpc:        rpc,
		timeout:    timeout,
		blockTimes: cache,
		logger:     logger,
	}, nil
}

// Close closes the RPC connection
func (c *Client) Close() {
	if c.rpc != nil {
		c.rpc.Close()
	}
}

// Layer returns the bridge side this client talks to
func (c *Client) Layer() Layer {
	return c.layer
}

// ChainID returns the configured chain id
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// GetEvents returns the logs matching q. Unset (zero) contract addresses are
// ignored and a query without any contract returns no logs.
func (c *Client) GetEvents(ctx context.Context, q EventQuery) ([]types.Log, error) {
	addresses := make([]common.Address, 0, len(q.Addresses))
	for _, a := range q.Addresses {
		if a != (common.Address{}) {
			addresses = append(addresses, a)
		}
	}
	if len(addresses) == 0 {
		return nil, nil
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	logs, err := c.rpc.FilterLogs(ctx, geth.FilterQuery{
		FromBlock: new(big.Int).SetUint64(q.FromBlock),
		ToBlock:   new(big.Int).SetUint64(q.ToBlock),
		Addresses: addresses,
		Topics:    q.Topics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter %s logs [%d, %d]: %w", c.layer, q.FromBlock, q.ToBlock, err)
	}
	return logs, nil
}

// Receipt returns the receipt of a transaction, or nil when it is not mined yet
func (c *Client) Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	receipt, err := c.rpc.TransactionReceipt(ctx, txHash)
	if errors.Is(err, geth.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s receipt %s: %w", c.layer, txHash.Hex(), err)
	}
	return receipt, nil
}

// BlockTime returns the timestamp of a block, cached per block number
func (c *Client) BlockTime(ctx context.Context, number uint64) (time.Time, error) {
	if cached, ok := c.blockTimes.Get(number); ok {
		return cached.(time.Time), nil
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	header, err := c.rpc.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get %s block %d: %w", c.layer, number, err)
	}

	ts := time.Unix(int64(header.Time), 0).UTC()
	c.blockTimes.Add(number, ts)
	return ts, nil
}

// LatestBlock returns the number of the most recent block
func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	n, err := c.rpc.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest %s block: %w", c.layer, err)
	}
	return n, nil
}

// Call executes a read-only contract call against the latest state
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	return c.rpc.CallContract(ctx, geth.CallMsg{To: &to, Data: data}, nil)
}
