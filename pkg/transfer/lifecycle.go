package transfer

import (
	"encoding/json"
	"fmt"
)

// LifecycleStatus is the delivery stage of a deposit's message on the child chain
type LifecycleStatus int

const (
	LifecycleNotYetCreated LifecycleStatus = iota
	LifecycleFundsDepositedOnChild
	LifecycleRedeemed
	// LifecycleCreationFailed and LifecycleExpired are terminal sub-states of a
	// retryable that will never be redeemed.
	LifecycleCreationFailed
	LifecycleExpired
)

var lifecycleNames = map[LifecycleStatus]string{
	LifecycleNotYetCreated:         "NOT_YET_CREATED",
	LifecycleFundsDepositedOnChild: "FUNDS_DEPOSITED_ON_CHILD",
	LifecycleRedeemed:              "REDEEMED",
	LifecycleCreationFailed:        "CREATION_FAILED",
	LifecycleExpired:               "EXPIRED",
}

func (l LifecycleStatus) String() string {
	if name, ok := lifecycleNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LifecycleStatus(%d)", int(l))
}

// Rank orders lifecycle values for the never-regress merge rule.
// All terminal outcomes share the highest rank.
func (l LifecycleStatus) Rank() int {
	switch l {
	case LifecycleNotYetCreated:
		return 0
	case LifecycleFundsDepositedOnChild:
		return 1
	default:
		return 2
	}
}

// Advances reports whether next carries strictly more information than l.
func (l LifecycleStatus) Advances(next LifecycleStatus) bool {
	return next.Rank() > l.Rank()
}

// IsTerminal reports whether no further stage follows for the given asset kind.
// Native deposits have no redemption step.
func (l LifecycleStatus) IsTerminal(kind AssetKind) bool {
	if kind == AssetNative && l == LifecycleFundsDepositedOnChild {
		return true
	}
	return l.Rank() == 2
}

// MarshalJSON encodes the status by name
func (l LifecycleStatus) MarshalJSON() ([]byte, error) {
	name, ok := lifecycleNames[l]
	if !ok {
		return nil, fmt.Errorf("unknown lifecycle status %d", int(l))
	}
	return json.Marshal(name)
}

// UnmarshalJSON decodes the status by name
func (l *LifecycleStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("lifecycle status must be a string: %w", err)
	}
	parsed, err := ParseLifecycleStatus(name)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLifecycleStatus converts a status name into a LifecycleStatus
func ParseLifecycleStatus(name string) (LifecycleStatus, error) {
	for status, n := range lifecycleNames {
		if n == name {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown lifecycle status %q", name)
}
