package watcher

import "github.com/rickgao/fundsync/internal/model"

// Decision is what the surface should do after a snapshot.
type Decision int

const (
	Keep Decision = iota
	Open
	Close
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case Keep:
		return "keep"
	case Open:
		return "open"
	case Close:
		return "close"
	default:
		return "unknown"
	}
}

// Snapshot is the part of a tracked resource the watcher looks at.
type Snapshot struct {
	ID     string
	Status model.RequestStatus
	Stage  model.Stage
}

// Memory is the last announced (id, stage). The zero value announced nothing.
type Memory struct {
	ID        string
	Stage     model.Stage
	Announced bool
}

// Transition computes the next memory and decision for a snapshot.
// A nil snapshot means the resource is absent.
func Transition(mem Memory, snap *Snapshot, active model.RequestStatus) (Memory, Decision) {
	if snap == nil || snap.Status != active {
		return Memory{}, Close
	}
	if mem.Announced && mem.ID == snap.ID && mem.Stage == snap.Stage {
		return mem, Keep
	}
	return Memory{ID: snap.ID, Stage: snap.Stage, Announced: true}, Open
}
