package resolver

import (
	"github.com/chainsafe/bridge-tracker/pkg/ethereum"
	"github.com/chainsafe/bridge-tracker/pkg/transfer"
)

// Normalized is the lifecycle view of a message status
type Normalized struct {
	Lifecycle       transfer.LifecycleStatus
	DestinationTxID *string
	// NeedsRedemptionHash is set for legacy token redemptions, which report no hash
	NeedsRedemptionHash bool
}

// Normalize maps either status variant onto the lifecycle enum. Native deposits
// are complete once funds reach the child chain, so they never go past
// FundsDepositedOnChild. A token redemption without a known hash is reported
// as FundsDepositedOnChild.
func Normalize(status ethereum.MessageStatus, kind transfer.AssetKind) Normalized {
	native := kind == transfer.AssetNative

	switch s := status.(type) {
	case ethereum.LegacyMessageStatus:
		switch s.Ordinal {
		case ethereum.LegacyCreationFailed:
			return Normalized{Lifecycle: transfer.LifecycleCreationFailed}
		case ethereum.LegacyFundsDeposited:
			return Normalized{Lifecycle: transfer.LifecycleFundsDepositedOnChild}
		case ethereum.LegacyRedeemed:
			if native {
				return Normalized{Lifecycle: transfer.LifecycleFundsDepositedOnChild}
			}
			return Normalized{Lifecycle: transfer.LifecycleRedeemed, NeedsRedemptionHash: true}
		case ethereum.LegacyExpired:
			if native {
				return Normalized{Lifecycle: transfer.LifecycleFundsDepositedOnChild}
			}
			return Normalized{Lifecycle: transfer.LifecycleExpired}
		default:
			return Normalized{Lifecycle: transfer.LifecycleNotYetCreated}
		}

	case ethereum.CurrentMessageStatus:
		var dest *string
		if s.ChildTxHash != nil {
			dest = transfer.Ptr(s.ChildTxHash.Hex())
		}
		switch s.Status {
		case ethereum.CurrentCreationFailed:
			return Normalized{Lifecycle: transfer.LifecycleCreationFailed}
		case ethereum.CurrentFundsDeposited:
			return Normalized{Lifecycle: transfer.LifecycleFundsDepositedOnChild, DestinationTxID: dest}
		case ethereum.CurrentRedeemed:
			if native || dest == nil {
				return Normalized{Lifecycle: transfer.LifecycleFundsDepositedOnChild, DestinationTxID: dest}
			}
			return Normalized{Lifecycle: transfer.LifecycleRedeemed, DestinationTxID: dest}
		case ethereum.CurrentExpired:
			if native {
				return Normalized{Lifecycle: transfer.LifecycleFundsDepositedOnChild}
			}
			return Normalized{Lifecycle: transfer.LifecycleExpired}
		default:
			return Normalized{Lifecycle: transfer.LifecycleNotYetCreated}
		}

	default:
		return Normalized{Lifecycle: transfer.LifecycleNotYetCreated}
	}
}
