package ethereum

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/bridge-tracker/pkg/config"
)

// Layer names one side of the bridge
type Layer string

const (
	LayerParent Layer = "parent"
	LayerChild  Layer = "child"
)

// Era is a deployment generation of the bridge protocol
type Era string

const (
	EraClassic Era = "classic"
	EraCurrent Era = "current"
)

// EraSchedule holds the first block of the current era on each layer.
// A zero boundary means the chain never ran the classic deployment.
type EraSchedule struct {
	ParentBoundary uint64
	ChildBoundary  uint64
}

// BlockRange is an inclusive block interval on one layer
type BlockRange struct {
	Layer Layer
	From  uint64
	To    uint64
}

// EraRange is a block range that lies entirely within one era
type EraRange struct {
	BlockRange
	Era Era
}

func (s EraSchedule) boundary(layer Layer) uint64 {
	if layer == LayerChild {
		return s.ChildBoundary
	}
	return s.ParentBoundary
}

// EraFor returns the era a block belongs to
func (s EraSchedule) EraFor(layer Layer, block uint64) Era {
	if block < s.boundary(layer) {
		return EraClassic
	}
	return EraCurrent
}

// Split cuts a range straddling the era boundary into a classic and a current part
func (s EraSchedule) Split(r BlockRange) []EraRange {
	if r.From > r.To {
		return nil
	}

	b := s.boundary(r.Layer)
	switch {
	case r.To < b:
		return []EraRange{{BlockRange: r, Era: EraClassic}}
	case r.From >= b:
		return []EraRange{{BlockRange: r, Era: EraCurrent}}
	default:
		return []EraRange{
			{BlockRange: BlockRange{Layer: r.Layer, From: r.From, To: b - 1}, Era: EraClassic},
			{BlockRange: BlockRange{Layer: r.Layer, From: b, To: r.To}, Era: EraCurrent},
		}
	}
}

// Pages cuts the range into consecutive pages of at most size blocks
func (r BlockRange) Pages(size uint64) []BlockRange {
	if r.From > r.To {
		return nil
	}
	if size == 0 {
		return []BlockRange{r}
	}

	var pages []BlockRange
	for from := r.From; ; from += size {
		to := from + size - 1
		if to >= r.To || to < from {
			pages = append(pages, BlockRange{Layer: r.Layer, From: from, To: r.To})
			return pages
		}
		pages = append(pages, BlockRange{Layer: r.Layer, From: from, To: to})
	}
}

// Contracts lists the bridge contracts of one era
type Contracts struct {
	ParentBridge   common.Address
	ParentInbox    common.Address
	ParentGateways []common.Address
	ChildGateways  []common.Address
}

// Deployment holds the contracts of both eras
type Deployment struct {
	Schedule EraSchedule
	Classic  Contracts
	Current  Contracts
}

// For returns the contracts deployed in era
func (d Deployment) For(era Era) Contracts {
	if era == EraClassic {
		return d.Classic
	}
	return d.Current
}

// NewDeployment converts the configured eras
func NewDeployment(cfg config.ErasConfig) Deployment {
	return Deployment{
		Schedule: EraSchedule{ParentBoundary: cfg.ParentBoundary, ChildBoundary: cfg.ChildBoundary},
		Classic:  contractsFromConfig(cfg.Classic),
		Current:  contractsFromConfig(cfg.Current),
	}
}

func contractsFromConfig(cfg config.ContractsConfig) Contracts {
	return Contracts{
		ParentBridge:   common.HexToAddress(cfg.ParentBridge),
		ParentInbox:    common.HexToAddress(cfg.ParentInbox),
		ParentGateways: toAddresses(cfg.ParentGateways),
		ChildGateways:  toAddresses(cfg.ChildGateways),
	}
}

func toAddresses(hexes []string) []common.Address {
	out := make([]common.Address, 0, len(hexes))
	for _, h := range hexes {
		out = append(out, common.HexToAddress(h))
	}
	return out
}
