package provider

import (
	"errors"

	"github.com/jaennil/guide_helper/backend/vtiles/internal/decoder"
	"github.com/jaennil/guide_helper/backend/vtiles/internal/tiling"
)

var (
	ErrNotReady    = errors.New("tile is not ready yet")
	ErrClosed      = errors.New("provider is closed")
	ErrInvalidated = errors.New("tile was invalidated while loading")
)

// State is the lifecycle position of one index inside the provider.
type State int

const (
	StateAbsent State = iota
	StateInFlight
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateInFlight:
		return "in_flight"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Completion reports one finished pipeline task. Exactly one of Tile and Err
// is set.
type Completion struct {
	Index tiling.TileIndex
	Tile  *decoder.DecodedTile
	Err   error
}

// task is one run of the pipeline for an index. Its result fields are
// written once, under the provider lock, before done is closed.
type task struct {
	done chan struct{}
	tile *decoder.DecodedTile
	err  error
}

func newTask() *task {
	return &task{done: make(chan struct{})}
}

// entry is the state of one index. gen changes every time the index is
// tracked anew, so handles from before an eviction cannot touch a new entry.
// stale marks an in-flight task invalidated after it was scheduled: its
// result is neither cached nor delivered.
type entry struct {
	state    State
	interest int
	task     *task
	gen      uint64
	stale    bool
}

// IndexState is a point-in-time view of one tracked index.
type IndexState struct {
	Index    tiling.TileIndex `json:"index"`
	State    string           `json:"state"`
	Interest int              `json:"interest"`
	Error    string           `json:"error,omitempty"`
}

type Stats struct {
	InFlight     int    `json:"in_flight"`
	Ready        int    `json:"ready"`
	Failed       int    `json:"failed"`
	Queued       int    `json:"queued"`
	TasksStarted uint64 `json:"tasks_started"`
	Discarded    uint64 `json:"discarded"`
}
