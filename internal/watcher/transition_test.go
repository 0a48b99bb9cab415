package watcher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rickgao/fundsync/internal/model"
)

func snap(id string, status model.RequestStatus, stage model.Stage) *Snapshot {
	return &Snapshot{ID: id, Status: status, Stage: stage}
}

func TestTransition(t *testing.T) {
	announced := Memory{ID: "w1", Stage: model.StageOf("review"), Announced: true}

	tests := []struct {
		name    string
		mem     Memory
		snap    *Snapshot
		wantMem Memory
		wantDec Decision
	}{
		{
			name:    "absent snapshot closes and resets",
			mem:     announced,
			snap:    nil,
			wantMem: Memory{},
			wantDec: Close,
		},
		{
			name:    "non active closes and resets",
			mem:     announced,
			snap:    snap("w1", model.StatusSuccess, model.StageOf("review")),
			wantMem: Memory{},
			wantDec: Close,
		},
		{
			name:    "first active snapshot opens",
			mem:     Memory{},
			snap:    snap("w1", model.StatusPending, model.StageOf("review")),
			wantMem: announced,
			wantDec: Open,
		},
		{
			name:    "active with null stage opens",
			mem:     Memory{},
			snap:    snap("w1", model.StatusPending, model.NullStage),
			wantMem: Memory{ID: "w1", Stage: model.NullStage, Announced: true},
			wantDec: Open,
		},
		{
			name:    "unchanged keeps",
			mem:     announced,
			snap:    snap("w1", model.StatusPending, model.StageOf("review")),
			wantMem: announced,
			wantDec: Keep,
		},
		{
			name:    "stage change reopens",
			mem:     announced,
			snap:    snap("w1", model.StatusPending, model.StageOf("sent")),
			wantMem: Memory{ID: "w1", Stage: model.StageOf("sent"), Announced: true},
			wantDec: Open,
		},
		{
			name:    "new request reopens",
			mem:     announced,
			snap:    snap("w2", model.StatusPending, model.StageOf("review")),
			wantMem: Memory{ID: "w2", Stage: model.StageOf("review"), Announced: true},
			wantDec: Open,
		},
		{
			name:    "numeric and string stage are the same stage",
			mem:     Memory{ID: "w1", Stage: model.StageOfInt(2), Announced: true},
			snap:    snap("w1", model.StatusPending, model.StageOf("2")),
			wantMem: Memory{ID: "w1", Stage: model.StageOfInt(2), Announced: true},
			wantDec: Keep,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem, dec := Transition(tt.mem, tt.snap, model.StatusPending)
			assert.Equal(t, tt.wantDec, dec)
			assert.Equal(t, tt.wantMem, mem)
		})
	}
}

func TestTransition_Idempotent(t *testing.T) {
	s := snap("w1", model.StatusPending, model.StageOf("review"))

	mem, dec := Transition(Memory{}, s, model.StatusPending)
	assert.Equal(t, Open, dec)

	for i := 0; i < 5; i++ {
		mem, dec = Transition(mem, s, model.StatusPending)
		assert.Equal(t, Keep, dec)
	}
}

func TestTransition_ReannouncesAfterLeavingActive(t *testing.T) {
	s := snap("w1", model.StatusPending, model.StageOf("review"))

	mem, _ := Transition(Memory{}, s, model.StatusPending)
	mem, dec := Transition(mem, snap("w1", model.StatusFailed, model.StageOf("review")), model.StatusPending)
	assert.Equal(t, Close, dec)

	_, dec = Transition(mem, s, model.StatusPending)
	assert.Equal(t, Open, dec, "memory was reset, so the same stage is announced again")
}

func TestTransition_CustomActiveStatus(t *testing.T) {
	_, dec := Transition(Memory{}, snap("c1", "processing", model.NullStage), "processing")
	assert.Equal(t, Open, dec)

	_, dec = Transition(Memory{}, snap("c1", model.StatusPending, model.NullStage), "processing")
	assert.Equal(t, Close, dec)
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "keep", Keep.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "close", Close.String())
	assert.Equal(t, "unknown", Decision(9).String())
}
