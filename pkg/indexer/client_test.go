package indexer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/bridge-tracker/pkg/config"
	"github.com/chainsafe/bridge-tracker/pkg/ethereum"
	"github.com/chainsafe/bridge-tracker/pkg/transfer"
)

const (
	hashA = "0xAA00000000000000000000000000000000000000000000000000000000000001"
	hashB = "0xbb00000000000000000000000000000000000000000000000000000000000002"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.IndexerConfig{Enabled: true, URL: srv.URL, Timeout: 5 * time.Second}, zap.NewNop())
}

func TestClient_Transfers(t *testing.T) {
	var got graphqlRequest
	var requestID string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requestID = r.Header.Get("X-Request-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"transfers":[
			{"txHash":"` + hashA + `","type":"deposit","tokenAddress":"","amount":"1000","sender":"0xABC","blockNumber":"120","timestamp":"1700000000","messageNumber":"16"},
			{"txHash":"` + hashB + `","type":"withdrawal","tokenAddress":"0x00000000000000000000000000000000000000c1","amount":"5","sender":"0xabc","blockNumber":"900","timestamp":"1700000100","messageNumber":""},
			{"txHash":"0x1234","type":"deposit","amount":"1","blockNumber":"1","timestamp":"1","messageNumber":"1"},
			{"txHash":"` + hashB + `","type":"deposit","amount":"1.5","blockNumber":"1","timestamp":"1","messageNumber":"1"},
			{"txHash":"` + hashB + `","type":"bridge","amount":"1","blockNumber":"1","timestamp":"1"}
		]}}`))
	})

	page, err := client.Transfers(context.Background(), Query{
		Address:   common.HexToAddress("0xabc"),
		Layer:     ethereum.LayerParent,
		FromBlock: 100,
		ToBlock:   1000,
		First:     50,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, requestID)
	assert.Equal(t, "parent", got.Variables["layer"])
	assert.Equal(t, "100", got.Variables["fromBlock"])
	assert.Equal(t, float64(50), got.Variables["first"])

	assert.Equal(t, 5, page.Records)
	require.Len(t, page.Transfers, 2)
	transfers := page.Transfers

	deposit := transfers[0]
	assert.Equal(t, "0xaa00000000000000000000000000000000000000000000000000000000000001", deposit.ID)
	assert.Equal(t, transfer.DirectionDeposit, deposit.Direction)
	assert.Equal(t, transfer.AssetNative, deposit.AssetKind)
	assert.Equal(t, transfer.StatusSuccess, deposit.Status)
	assert.Equal(t, uint64(120), *deposit.BlockNumber)
	assert.Equal(t, "0x10", deposit.CrossChainMessage.SourceMessageID)
	assert.Equal(t, transfer.LifecycleNotYetCreated, deposit.CrossChainMessage.LifecycleStatus)

	withdrawal := transfers[1]
	assert.Equal(t, transfer.AssetToken, withdrawal.AssetKind)
	assert.Equal(t, "0x00000000000000000000000000000000000000c1", withdrawal.TokenAddress)
	assert.Nil(t, withdrawal.CrossChainMessage)
	assert.Equal(t, withdrawal.TimestampCreated, *withdrawal.TimestampResolved)
}

func TestClient_GraphQLError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"errors":[{"message":"indexer is syncing"}]}`))
	})

	_, err := client.Transfers(context.Background(), Query{First: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "indexer is syncing")
}

func TestClient_HTTPError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Transfers(context.Background(), Query{First: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNormalize_Rejects(t *testing.T) {
	valid := Record{TxHash: hashB, Type: "deposit", Amount: "1", BlockNumber: "1", Timestamp: "1", MessageNumber: "1"}

	tests := map[string]func(r *Record){
		"type":           func(r *Record) { r.Type = "swap" },
		"tx_hash":        func(r *Record) { r.TxHash = "0xzz" },
		"amount":         func(r *Record) { r.Amount = "-4" },
		"block_number":   func(r *Record) { r.BlockNumber = "latest" },
		"timestamp":      func(r *Record) { r.Timestamp = "" },
		"token":          func(r *Record) { r.TokenAddress = "weth" },
		"message_number": func(r *Record) { r.MessageNumber = "" },
	}

	_, err := Normalize(valid)
	require.NoError(t, err)

	for reason, mutate := range tests {
		rec := valid
		mutate(&rec)
		_, err := Normalize(rec)
		require.Error(t, err, reason)
		assert.Equal(t, reason, skipReason(err))
	}
}
