package ethereum

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Child chain precompiles
var (
	ArbSysAddress         = common.HexToAddress("0x0000000000000000000000000000000000000064")
	ArbRetryableTxAddress = common.HexToAddress("0x000000000000000000000000000000000000006E")
)

// Inbox message kinds
const (
	KindSubmitRetryable uint8 = 9
	KindEthDeposit      uint8 = 12
)

const classicABIJSON = `[
	{"type":"event","name":"MessageDelivered","anonymous":false,"inputs":[
		{"name":"messageIndex","type":"uint256","indexed":true},
		{"name":"beforeInboxAcc","type":"bytes32","indexed":true},
		{"name":"inbox","type":"address","indexed":false},
		{"name":"kind","type":"uint8","indexed":false},
		{"name":"sender","type":"address","indexed":false},
		{"name":"messageDataHash","type":"bytes32","indexed":false}]},
	{"type":"event","name":"L2ToL1Transaction","anonymous":false,"inputs":[
		{"name":"caller","type":"address","indexed":false},
		{"name":"destination","type":"address","indexed":true},
		{"name":"uniqueId","type":"uint256","indexed":true},
		{"name":"batchNumber","type":"uint256","indexed":true},
		{"name":"indexInBatch","type":"uint256","indexed":false},
		{"name":"arbBlockNum","type":"uint256","indexed":false},
		{"name":"ethBlockNum","type":"uint256","indexed":false},
		{"name":"timestamp","type":"uint256","indexed":false},
		{"name":"callvalue","type":"uint256","indexed":false},
		{"name":"data","type":"bytes","indexed":false}]},
	{"type":"event","name":"Redeemed","anonymous":false,"inputs":[
		{"name":"ticketId","type":"bytes32","indexed":true}]},
	{"type":"event","name":"Canceled","anonymous":false,"inputs":[
		{"name":"ticketId","type":"bytes32","indexed":true}]}
]`

const currentABIJSON = `[
	{"type":"event","name":"MessageDelivered","anonymous":false,"inputs":[
		{"name":"messageIndex","type":"uint256","indexed":true},
		{"name":"beforeInboxAcc","type":"bytes32","indexed":true},
		{"name":"inbox","type":"address","indexed":false},
		{"name":"kind","type":"uint8","indexed":false},
		{"name":"sender","type":"address","indexed":false},
		{"name":"messageDataHash","type":"bytes32","indexed":false},
		{"name":"baseFeeL1","type":"uint256","indexed":false},
		{"name":"timestamp","type":"uint64","indexed":false}]},
	{"type":"event","name":"L2ToL1Tx","anonymous":false,"inputs":[
		{"name":"caller","type":"address","indexed":false},
		{"name":"destination","type":"address","indexed":true},
		{"name":"hash","type":"uint256","indexed":true},
		{"name":"position","type":"uint256","indexed":true},
		{"name":"arbBlockNum","type":"uint256","indexed":false},
		{"name":"ethBlockNum","type":"uint256","indexed":false},
		{"name":"timestamp","type":"uint256","indexed":false},
		{"name":"callvalue","type":"uint256","indexed":false},
		{"name":"data","type":"bytes","indexed":false}]},
	{"type":"event","name":"RedeemScheduled","anonymous":false,"inputs":[
		{"name":"ticketId","type":"bytes32","indexed":true},
		{"name":"retryTxHash","type":"bytes32","indexed":true},
		{"name":"sequenceNum","type":"uint64","indexed":true},
		{"name":"donatedGas","type":"uint64","indexed":false},
		{"name":"gasDonor","type":"address","indexed":false},
		{"name":"maxRefund","type":"uint256","indexed":false},
		{"name":"submissionFeeRefund","type":"uint256","indexed":false}]},
	{"type":"function","name":"getTimeout","stateMutability":"view",
		"inputs":[{"name":"ticketId","type":"bytes32"}],
		"outputs":[{"name":"","type":"uint256"}]}
]`

// Events shared by both eras
const sharedABIJSON = `[
	{"type":"event","name":"InboxMessageDelivered","anonymous":false,"inputs":[
		{"name":"messageNum","type":"uint256","indexed":true},
		{"name":"data","type":"bytes","indexed":false}]},
	{"type":"event","name":"DepositInitiated","anonymous":false,"inputs":[
		{"name":"l1Token","type":"address","indexed":false},
		{"name":"_from","type":"address","indexed":true},
		{"name":"_to","type":"address","indexed":true},
		{"name":"_sequenceNumber","type":"uint256","indexed":true},
		{"name":"_amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"WithdrawalInitiated","anonymous":false,"inputs":[
		{"name":"l1Token","type":"address","indexed":false},
		{"name":"_from","type":"address","indexed":true},
		{"name":"_to","type":"address","indexed":true},
		{"name":"_l2ToL1Id","type":"uint256","indexed":true},
		{"name":"_exitNum","type":"uint256","indexed":false},
		{"name":"_amount","type":"uint256","indexed":false}]}
]`

// Parsed bridge ABIs
var (
	ClassicABI = mustParseABI(classicABIJSON)
	CurrentABI = mustParseABI(currentABIJSON)
	SharedABI  = mustParseABI(sharedABIJSON)
)

// Event signatures
var (
	ClassicMessageDeliveredTopic = ClassicABI.Events["MessageDelivered"].ID
	CurrentMessageDeliveredTopic = CurrentABI.Events["MessageDelivered"].ID
	InboxMessageDeliveredTopic   = SharedABI.Events["InboxMessageDelivered"].ID
	DepositInitiatedTopic        = SharedABI.Events["DepositInitiated"].ID
	WithdrawalInitiatedTopic     = SharedABI.Events["WithdrawalInitiated"].ID
	L2ToL1TransactionTopic       = ClassicABI.Events["L2ToL1Transaction"].ID
	L2ToL1TxTopic                = CurrentABI.Events["L2ToL1Tx"].ID
	RedeemScheduledTopic         = CurrentABI.Events["RedeemScheduled"].ID
	ClassicRedeemedTopic         = ClassicABI.Events["Redeemed"].ID
	ClassicCanceledTopic         = ClassicABI.Events["Canceled"].ID
)

// MessageDeliveredTopic returns the bridge event signature of era
func MessageDeliveredTopic(era Era) common.Hash {
	if era == EraClassic {
		return ClassicMessageDeliveredTopic
	}
	return CurrentMessageDeliveredTopic
}

// NativeWithdrawalTopic returns the ArbSys withdrawal event signature of era
func NativeWithdrawalTopic(era Era) common.Hash {
	if era == EraClassic {
		return L2ToL1TransactionTopic
	}
	return L2ToL1TxTopic
}

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
