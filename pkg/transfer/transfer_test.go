package transfer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to  Status
		direction Direction
		want      bool
	}{
		{StatusPending, StatusSuccess, DirectionDeposit, true},
		{StatusPending, StatusFailure, DirectionWithdrawal, true},
		{StatusSuccess, StatusConfirmed, DirectionWithdrawal, true},
		{StatusSuccess, StatusConfirmed, DirectionDeposit, false},
		{StatusSuccess, StatusPending, DirectionDeposit, false},
		{StatusFailure, StatusSuccess, DirectionDeposit, false},
		{StatusPending, StatusConfirmed, DirectionWithdrawal, false},
		{StatusConfirmed, StatusSuccess, DirectionWithdrawal, false},
	}

	for _, tt := range tests {
		got := tt.from.CanTransition(tt.to, tt.direction)
		assert.Equal(t, tt.want, got, "%s -> %s (%s)", tt.from, tt.to, tt.direction)
	}
}

func TestLifecycleStatus_IsTerminal(t *testing.T) {
	assert.True(t, LifecycleFundsDepositedOnChild.IsTerminal(AssetNative))
	assert.False(t, LifecycleFundsDepositedOnChild.IsTerminal(AssetToken))
	assert.True(t, LifecycleRedeemed.IsTerminal(AssetToken))
	assert.True(t, LifecycleExpired.IsTerminal(AssetToken))
	assert.True(t, LifecycleCreationFailed.IsTerminal(AssetToken))
	assert.False(t, LifecycleNotYetCreated.IsTerminal(AssetNative))
}

func TestLifecycleStatus_Advances(t *testing.T) {
	assert.True(t, LifecycleNotYetCreated.Advances(LifecycleFundsDepositedOnChild))
	assert.True(t, LifecycleFundsDepositedOnChild.Advances(LifecycleExpired))
	assert.False(t, LifecycleFundsDepositedOnChild.Advances(LifecycleNotYetCreated))
	assert.False(t, LifecycleRedeemed.Advances(LifecycleExpired))
	assert.False(t, LifecycleRedeemed.Advances(LifecycleRedeemed))
}

func TestLifecycleStatus_JSON(t *testing.T) {
	msg := CrossChainMessage{LifecycleStatus: LifecycleFundsDepositedOnChild, SourceMessageID: "0x10"}

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"lifecycleStatus":"FUNDS_DEPOSITED_ON_CHILD"`)

	var decoded CrossChainMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, msg, decoded)

	err = json.Unmarshal([]byte(`{"lifecycleStatus":"SOMETHING"}`), &decoded)
	assert.Error(t, err)
}

func TestTransfer_Clone(t *testing.T) {
	orig := Transfer{
		ID:          "0xaa",
		BlockNumber: Ptr(uint64(10)),
		CrossChainMessage: &CrossChainMessage{
			DestinationTxID: Ptr("0xbb"),
		},
	}

	cp := orig.Clone()
	*cp.BlockNumber = 11
	*cp.CrossChainMessage.DestinationTxID = "0xcc"
	cp.CrossChainMessage.IsFetching = true

	assert.Equal(t, uint64(10), *orig.BlockNumber)
	assert.Equal(t, "0xbb", *orig.CrossChainMessage.DestinationTxID)
	assert.False(t, orig.CrossChainMessage.IsFetching)
}
