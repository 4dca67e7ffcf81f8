package ethereum

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	account = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bridge  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	inbox   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	gateway = common.HexToAddress("0x00000000000000000000000000000000000000b3")
	token   = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

func packEvent(t *testing.T, contract abi.ABI, name string, args ...any) []byte {
	t.Helper()
	data, err := contract.Events[name].Inputs.NonIndexed().Pack(args...)
	require.NoError(t, err)
	return data
}

func intTopic(v int64) common.Hash {
	return common.BigToHash(big.NewInt(v))
}

func addrTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

func messageDeliveredLog(t *testing.T, era Era, num int64, kind uint8, sender common.Address) types.Log {
	var data []byte
	if era == EraClassic {
		data = packEvent(t, ClassicABI, "MessageDelivered", inbox, kind, sender, [32]byte{})
	} else {
		data = packEvent(t, CurrentABI, "MessageDelivered", inbox, kind, sender, [32]byte{}, big.NewInt(7), uint64(1700000000))
	}
	return types.Log{
		Address:     bridge,
		Topics:      []common.Hash{MessageDeliveredTopic(era), intTopic(num), {}},
		Data:        data,
		BlockNumber: 10,
		TxHash:      common.HexToHash("0xaa"),
	}
}

func inboxLog(t *testing.T, num int64, payload []byte) types.Log {
	return types.Log{
		Address:     inbox,
		Topics:      []common.Hash{InboxMessageDeliveredTopic, intTopic(num)},
		Data:        packEvent(t, SharedABI, "InboxMessageDelivered", payload),
		BlockNumber: 10,
		TxHash:      common.HexToHash("0xaa"),
	}
}

func ethDepositPayload(dest common.Address, value int64) []byte {
	return append(dest.Bytes(), common.LeftPadBytes(big.NewInt(value).Bytes(), 32)...)
}

func retryablePayload(dest common.Address, deposit int64, calldata []byte) []byte {
	words := []*big.Int{
		dest.Big(), big.NewInt(0), big.NewInt(deposit), big.NewInt(100),
		account.Big(), account.Big(), big.NewInt(300000), big.NewInt(1e9),
		big.NewInt(int64(len(calldata))),
	}
	var out []byte
	for _, w := range words {
		out = append(out, common.LeftPadBytes(w.Bytes(), 32)...)
	}
	return append(out, calldata...)
}

func TestDecodeMessageDelivered(t *testing.T) {
	for _, era := range []Era{EraClassic, EraCurrent} {
		msg, err := DecodeMessageDelivered(era, messageDeliveredLog(t, era, 42, KindEthDeposit, account))
		require.NoError(t, err)
		assert.Equal(t, int64(42), msg.MessageNumber.Int64())
		assert.Equal(t, KindEthDeposit, msg.Kind)
		assert.Equal(t, account, msg.Sender)
		if era == EraCurrent {
			assert.Equal(t, int64(7), msg.BaseFee.Int64())
		} else {
			assert.Nil(t, msg.BaseFee)
		}
	}

	_, err := DecodeMessageDelivered(EraCurrent, types.Log{Topics: []common.Hash{CurrentMessageDeliveredTopic}})
	assert.Error(t, err)
}

func TestDecodeTokenDeposit(t *testing.T) {
	log := types.Log{
		Address:     gateway,
		Topics:      []common.Hash{DepositInitiatedTopic, addrTopic(account), addrTopic(account), intTopic(9)},
		Data:        packEvent(t, SharedABI, "DepositInitiated", token, big.NewInt(500)),
		BlockNumber: 12,
		TxHash:      common.HexToHash("0xbb"),
	}

	ev, err := DecodeTokenDeposit(log)
	require.NoError(t, err)
	assert.Equal(t, token, ev.Token)
	assert.Equal(t, account, ev.From)
	assert.Equal(t, int64(9), ev.SequenceNumber.Int64())
	assert.Equal(t, int64(500), ev.Amount.Int64())
	assert.Equal(t, uint64(12), ev.BlockNumber)
}

func TestDecodeTokenWithdrawal(t *testing.T) {
	log := types.Log{
		Topics: []common.Hash{WithdrawalInitiatedTopic, addrTopic(account), addrTopic(account), intTopic(3)},
		Data:   packEvent(t, SharedABI, "WithdrawalInitiated", token, big.NewInt(1), big.NewInt(250)),
	}

	ev, err := DecodeTokenWithdrawal(log)
	require.NoError(t, err)
	assert.Equal(t, int64(3), ev.WithdrawID.Int64())
	assert.Equal(t, int64(250), ev.Amount.Int64())
}

func TestDecodeNativeWithdrawal(t *testing.T) {
	current := types.Log{
		Topics: []common.Hash{L2ToL1TxTopic, addrTopic(account), {}, {}},
		Data: packEvent(t, CurrentABI, "L2ToL1Tx",
			account, big.NewInt(1), big.NewInt(2), big.NewInt(3), big.NewInt(1000), []byte{}),
	}
	ev, err := DecodeNativeWithdrawal(EraCurrent, current)
	require.NoError(t, err)
	assert.Equal(t, account, ev.Caller)
	assert.Equal(t, int64(1000), ev.CallValue.Int64())

	classic := types.Log{
		Topics: []common.Hash{L2ToL1TransactionTopic, addrTopic(account), {}, {}},
		Data: packEvent(t, ClassicABI, "L2ToL1Transaction",
			account, big.NewInt(0), big.NewInt(1), big.NewInt(2), big.NewInt(3), big.NewInt(2000), []byte{0x01}),
	}
	ev, err = DecodeNativeWithdrawal(EraClassic, classic)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), ev.CallValue.Int64())
	assert.Equal(t, []byte{0x01}, ev.Data)
}

func TestParsePayloads(t *testing.T) {
	d, err := ParseEthDepositData(ethDepositPayload(account, 77))
	require.NoError(t, err)
	assert.Equal(t, account, d.Destination)
	assert.Equal(t, int64(77), d.Value.Int64())

	r, err := ParseRetryableData(retryablePayload(account, 55, []byte{0xde, 0xad}))
	require.NoError(t, err)
	assert.Equal(t, int64(55), r.Deposit.Int64())
	assert.Equal(t, []byte{0xde, 0xad}, r.Data)
	assert.Equal(t, uint64(300000), r.GasLimit.Uint64())

	_, err = ParseRetryableData(make([]byte, 10))
	assert.Error(t, err)

	bad := retryablePayload(account, 1, nil)
	copy(bad[8*32:], common.LeftPadBytes(big.NewInt(99).Bytes(), 32))
	_, err = ParseRetryableData(bad)
	assert.Error(t, err, "declared calldata longer than payload")

	v, err := DepositValue(KindSubmitRetryable, retryablePayload(account, 55, nil))
	require.NoError(t, err)
	assert.Equal(t, int64(55), v.Int64())

	_, err = DepositValue(3, nil)
	assert.Error(t, err)
}

func TestMessageFromReceipt(t *testing.T) {
	contracts := Contracts{ParentBridge: bridge, ParentInbox: inbox}

	receipt := &types.Receipt{Logs: []*types.Log{
		ptr(messageDeliveredLog(t, EraCurrent, 4, 3, gateway)),
		ptr(messageDeliveredLog(t, EraCurrent, 5, KindSubmitRetryable, ApplyAlias(gateway))),
		ptr(inboxLog(t, 5, retryablePayload(account, 0, []byte{0x01}))),
	}}

	ref, err := MessageFromReceipt(EraCurrent, contracts, receipt)
	require.NoError(t, err)
	assert.Equal(t, int64(5), ref.MessageNumber.Int64())
	assert.Equal(t, KindSubmitRetryable, ref.Kind)
	assert.Equal(t, int64(7), ref.BaseFee.Int64())

	num, err := MessageNumberFromReceipt(EraCurrent, contracts, receipt)
	require.NoError(t, err)
	assert.Equal(t, int64(5), num.Int64())

	// logs from other contracts are ignored
	_, err = MessageFromReceipt(EraCurrent, Contracts{ParentBridge: gateway, ParentInbox: inbox}, receipt)
	assert.ErrorIs(t, err, ErrNoMessage)

	_, err = MessageFromReceipt(EraClassic, contracts, receipt)
	assert.ErrorIs(t, err, ErrNoMessage, "classic signature does not match current logs")

	_, err = MessageFromReceipt(EraCurrent, contracts, nil)
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestAlias(t *testing.T) {
	aliased := ApplyAlias(account)
	assert.Equal(t, common.HexToAddress("0x2222111111111111111111111111111111112222"), aliased)
	assert.Equal(t, account, UndoAlias(aliased))

	high := common.HexToAddress("0xffffffffffffffffffffffffffffffffffffffff")
	assert.Equal(t, high, UndoAlias(ApplyAlias(high)))
}

func TestClassicIDs(t *testing.T) {
	chainID := big.NewInt(42161)
	a := ClassicTicketID(chainID, big.NewInt(1))
	b := ClassicTicketID(chainID, big.NewInt(2))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, ClassicTicketID(chainID, big.NewInt(1)))
	assert.NotEqual(t, a, ClassicAutoRedeemID(a))
}

func ptr[T any](v T) *T { return &v }

type receiptMap map[common.Hash]*types.Receipt

func (m receiptMap) Receipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	return m[h], nil
}

func TestMessageLocator_Locate(t *testing.T) {
	tx := common.HexToHash("0xaa")
	receipts := receiptMap{tx: {Logs: []*types.Log{
		ptr(messageDeliveredLog(t, EraCurrent, 8, KindEthDeposit, ApplyAlias(account))),
		ptr(inboxLog(t, 8, ethDepositPayload(account, 5))),
	}}}
	locator := NewMessageLocator(receipts, Deployment{Current: Contracts{ParentBridge: bridge, ParentInbox: inbox}})

	ref, err := locator.Locate(context.Background(), tx, EraCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(8), ref.MessageNumber.Int64())
	assert.Equal(t, KindEthDeposit, ref.Kind)

	_, err = locator.Locate(context.Background(), common.HexToHash("0xbb"), EraCurrent)
	assert.ErrorIs(t, err, ErrNotMined)
}
