package ethereum

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

var (
	aliasOffset = new(big.Int).SetBytes(common.FromHex("0x1111000000000000000000000000000000001111"))
	addressMod  = new(big.Int).Lsh(big.NewInt(1), 160)
	bitFlipMask = new(big.Int).Lsh(big.NewInt(1), 255)
)

// Typed transaction prefixes of the child chain
const (
	depositTxType         byte = 0x64
	submitRetryableTxType byte = 0x69
)

func pad32(v *big.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	return common.LeftPadBytes(v.Bytes(), 32)
}

// ApplyAlias maps a parent chain contract address to its child chain alias
func ApplyAlias(addr common.Address) common.Address {
	v := new(big.Int).Add(addr.Big(), aliasOffset)
	return common.BigToAddress(v.Mod(v, addressMod))
}

// UndoAlias reverses ApplyAlias
func UndoAlias(addr common.Address) common.Address {
	v := new(big.Int).Sub(addr.Big(), aliasOffset)
	return common.BigToAddress(v.Mod(v, addressMod))
}

// ClassicTicketID derives the child chain id of a classic retryable ticket
func ClassicTicketID(chainID, messageNumber *big.Int) common.Hash {
	flipped := new(big.Int).Or(messageNumber, bitFlipMask)
	return crypto.Keccak256Hash(pad32(chainID), pad32(flipped))
}

// ClassicAutoRedeemID derives the id of the first redeem attempt of a classic ticket
func ClassicAutoRedeemID(ticketID common.Hash) common.Hash {
	return crypto.Keccak256Hash(ticketID.Bytes(), pad32(big.NewInt(0)))
}

type depositTx struct {
	ChainID     *big.Int
	L1RequestID common.Hash
	From        common.Address
	To          common.Address
	Value       *big.Int
}

type submitRetryableTx struct {
	ChainID          *big.Int
	RequestID        common.Hash
	From             common.Address
	L1BaseFee        *big.Int
	DepositValue     *big.Int
	GasFeeCap        *big.Int
	Gas              uint64
	RetryTo          *common.Address `rlp:"nil"`
	RetryValue       *big.Int
	Beneficiary      common.Address
	MaxSubmissionFee *big.Int
	FeeRefundAddr    common.Address
	RetryData        []byte
}

// CurrentDepositTxHash derives the child chain transaction hash of a native deposit
func CurrentDepositTxHash(chainID *big.Int, ref MessageRef, d EthDepositData) (common.Hash, error) {
	return typedTxHash(depositTxType, depositTx{
		ChainID:     chainID,
		L1RequestID: common.BigToHash(ref.MessageNumber),
		From:        UndoAlias(ref.Sender),
		To:          d.Destination,
		Value:       d.Value,
	})
}

// CurrentTicketID derives the child chain id of a current retryable ticket
func CurrentTicketID(chainID *big.Int, ref MessageRef, r RetryableData) (common.Hash, error) {
	var retryTo *common.Address
	if r.Destination != (common.Address{}) {
		dest := r.Destination
		retryTo = &dest
	}
	baseFee := ref.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}

	return typedTxHash(submitRetryableTxType, submitRetryableTx{
		ChainID:          chainID,
		RequestID:        common.BigToHash(ref.MessageNumber),
		From:             ref.Sender,
		L1BaseFee:        baseFee,
		DepositValue:     r.Deposit,
		GasFeeCap:        r.MaxFeePerGas,
		Gas:              r.GasLimit.Uint64(),
		RetryTo:          retryTo,
		RetryValue:       r.CallValue,
		Beneficiary:      r.CallValueRefundAddress,
		MaxSubmissionFee: r.MaxSubmissionCost,
		FeeRefundAddr:    r.ExcessFeeRefundAddress,
		RetryData:        r.Data,
	})
}

func typedTxHash(txType byte, payload any) (common.Hash, error) {
	enc, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash([]byte{txType}, enc), nil
}
