package transferstore

import (
	"fmt"

	"github.com/chainsafe/bridge-tracker/pkg/transfer"
)

// NoteKind classifies a diagnostic produced while applying an action
type NoteKind string

const (
	NoteNotFound           NoteKind = "not_found"
	NoteDuplicate          NoteKind = "duplicate"
	NoteRegressionRejected NoteKind = "regression_rejected"
	NoteInvalidTransition  NoteKind = "invalid_transition"
	NoteUnknownAction      NoteKind = "unknown_action"
)

// Note is a non-fatal diagnostic. Actions never fail; they report notes instead.
type Note struct {
	Kind   NoteKind
	ID     string
	Detail string
}

func (n Note) String() string {
	if n.Detail == "" {
		return fmt.Sprintf("%s %s", n.Kind, n.ID)
	}
	return fmt.Sprintf("%s %s: %s", n.Kind, n.ID, n.Detail)
}

// Outcome is the result of applying one action
type Outcome struct {
	State   []transfer.Transfer
	Notes   []Note
	Changed bool
}

// Apply computes the state that follows action. It is pure: state is never
// mutated and the same inputs always produce the same outcome.
func Apply(state []transfer.Transfer, action Action) Outcome {
	switch a := action.(type) {
	case Seed:
		return seed(a.Transfers)
	case Insert:
		return insert(state, a.Transfer)
	case InsertMany:
		return insertMany(state, a.Transfers)
	case Remove:
		return remove(state, a.ID)
	case SetStatus:
		return update(state, a.ID, func(t *transfer.Transfer) (bool, *Note) {
			if t.Status == a.Status {
				return false, nil
			}
			if !t.Status.CanTransition(a.Status, t.Direction) {
				return false, &Note{
					Kind:   NoteInvalidTransition,
					ID:     t.ID,
					Detail: fmt.Sprintf("%s -> %s", t.Status, a.Status),
				}
			}
			t.Status = a.Status
			return true, nil
		})
	case SetBlockNumber:
		return update(state, a.ID, func(t *transfer.Transfer) (bool, *Note) {
			if t.BlockNumber != nil && *t.BlockNumber == a.BlockNumber {
				return false, nil
			}
			t.BlockNumber = transfer.Ptr(a.BlockNumber)
			return true, nil
		})
	case SetResolvedTimestamp:
		return update(state, a.ID, func(t *transfer.Transfer) (bool, *Note) {
			if t.TimestampResolved != nil && t.TimestampResolved.Equal(a.Timestamp) {
				return false, nil
			}
			t.TimestampResolved = transfer.Ptr(a.Timestamp)
			return true, nil
		})
	case SetCrossChainMessage:
		return update(state, a.ID, func(t *transfer.Transfer) (bool, *Note) {
			return mergeMessage(t, a.Update)
		})
	case ClearPending:
		return clearPending(state)
	default:
		return Outcome{
			State: state,
			Notes: []Note{{Kind: NoteUnknownAction, Detail: fmt.Sprintf("%T", action)}},
		}
	}
}

func seed(transfers []transfer.Transfer) Outcome {
	out := Outcome{State: make([]transfer.Transfer, 0, len(transfers)), Changed: true}
	index := make(map[string]struct{}, len(transfers))
	for _, t := range transfers {
		id := transfer.NormalizeID(t.ID)
		if _, dup := index[id]; dup {
			out.Notes = append(out.Notes, Note{Kind: NoteDuplicate, ID: id})
			continue
		}
		index[id] = struct{}{}
		t = t.Clone()
		t.ID = id
		out.State = append(out.State, t)
	}
	return out
}

func insert(state []transfer.Transfer, t transfer.Transfer) Outcome {
	id := transfer.NormalizeID(t.ID)
	if indexOf(state, id) >= 0 {
		return Outcome{State: state, Notes: []Note{{Kind: NoteDuplicate, ID: id}}}
	}

	t = t.Clone()
	t.ID = id
	next := make([]transfer.Transfer, 0, len(state)+1)
	next = append(next, t)
	next = append(next, state...)
	return Outcome{State: next, Changed: true}
}

func insertMany(state []transfer.Transfer, transfers []transfer.Transfer) Outcome {
	known := make(map[string]struct{}, len(state)+len(transfers))
	for _, t := range state {
		known[t.ID] = struct{}{}
	}

	out := Outcome{State: state}
	var added []transfer.Transfer
	for _, t := range transfers {
		id := transfer.NormalizeID(t.ID)
		if _, dup := known[id]; dup {
			out.Notes = append(out.Notes, Note{Kind: NoteDuplicate, ID: id})
			continue
		}
		known[id] = struct{}{}
		t = t.Clone()
		t.ID = id
		added = append(added, t)
	}

	if len(added) == 0 {
		return out
	}
	next := make([]transfer.Transfer, 0, len(state)+len(added))
	next = append(next, state...)
	out.State = append(next, added...)
	out.Changed = true
	return out
}

func remove(state []transfer.Transfer, id string) Outcome {
	id = transfer.NormalizeID(id)
	i := indexOf(state, id)
	if i < 0 {
		return Outcome{State: state, Notes: []Note{{Kind: NoteNotFound, ID: id}}}
	}

	next := make([]transfer.Transfer, 0, len(state)-1)
	next = append(next, state[:i]...)
	next = append(next, state[i+1:]...)
	return Outcome{State: next, Changed: true}
}

func clearPending(state []transfer.Transfer) Outcome {
	next := make([]transfer.Transfer, 0, len(state))
	for _, t := range state {
		if t.Status != transfer.StatusPending {
			next = append(next, t)
		}
	}
	if len(next) == len(state) {
		return Outcome{State: state}
	}
	return Outcome{State: next, Changed: true}
}

// update applies fn to a copy of the transfer with the given id
func update(state []transfer.Transfer, id string, fn func(*transfer.Transfer) (bool, *Note)) Outcome {
	id = transfer.NormalizeID(id)
	i := indexOf(state, id)
	if i < 0 {
		return Outcome{State: state, Notes: []Note{{Kind: NoteNotFound, ID: id}}}
	}

	t := state[i].Clone()
	changed, note := fn(&t)

	out := Outcome{State: state}
	if note != nil {
		out.Notes = append(out.Notes, *note)
	}
	if !changed {
		return out
	}

	next := make([]transfer.Transfer, len(state))
	copy(next, state)
	next[i] = t
	out.State = next
	out.Changed = true
	return out
}

// mergeMessage writes the set fields of u into the transfer's message.
// The lifecycle is only written when it advances; the remaining fields
// merge regardless.
func mergeMessage(t *transfer.Transfer, u transfer.CrossChainMessageUpdate) (bool, *Note) {
	msg := transfer.CrossChainMessage{}
	if t.CrossChainMessage != nil {
		msg = *t.CrossChainMessage
	}
	before := msg

	var note *Note
	if u.LifecycleStatus != nil {
		next := *u.LifecycleStatus
		switch {
		case msg.LifecycleStatus.Advances(next):
			msg.LifecycleStatus = next
		case next != msg.LifecycleStatus:
			note = &Note{
				Kind:   NoteRegressionRejected,
				ID:     t.ID,
				Detail: fmt.Sprintf("%s -> %s", msg.LifecycleStatus, next),
			}
		}
	}
	if u.SourceMessageID != nil {
		msg.SourceMessageID = *u.SourceMessageID
	}
	if u.DestinationTxID != nil {
		msg.DestinationTxID = transfer.Ptr(*u.DestinationTxID)
	}
	if u.IsFetching != nil {
		msg.IsFetching = *u.IsFetching
	}

	if t.CrossChainMessage != nil && messagesEqual(before, msg) {
		return false, note
	}
	t.CrossChainMessage = &msg
	return true, note
}

func messagesEqual(a, b transfer.CrossChainMessage) bool {
	if a.LifecycleStatus != b.LifecycleStatus || a.SourceMessageID != b.SourceMessageID || a.IsFetching != b.IsFetching {
		return false
	}
	if (a.DestinationTxID == nil) != (b.DestinationTxID == nil) {
		return false
	}
	return a.DestinationTxID == nil || *a.DestinationTxID == *b.DestinationTxID
}

func indexOf(state []transfer.Transfer, id string) int {
	for i := range state {
		if state[i].ID == id {
			return i
		}
	}
	return -1
}
