// Package queue tracks dispatched downloads through their lifecycle state
// machine and dispatches accepted candidates to download clients.
package queue

import (
	"fmt"
	"time"

	"github.com/fetcharr/fetcharr/internal/indexer"
	"github.com/fetcharr/fetcharr/internal/library"
)

// State of a queue item.
type State string

const (
	StateQueued      State = "queued"
	StateDownloading State = "downloading"
	StateImporting   State = "importing"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StatePaused      State = "paused"
)

// validTransitions defines the full state machine. Completed and Failed are
// terminal; Warning is an item flag, not a state.
var validTransitions = map[State][]State{
	StateQueued:      {StateDownloading, StatePaused, StateFailed},
	StateDownloading: {StateImporting, StatePaused, StateFailed},
	StateImporting:   {StateCompleted, StateFailed},
	StatePaused:      {StateQueued, StateDownloading, StateFailed},
	StateCompleted:   {},
	StateFailed:      {},
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state has no outgoing transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// ErrInvalidTransition wraps a rejected state change.
type ErrInvalidTransition struct {
	From, To State
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid queue transition %s -> %s", e.From, e.To)
}

// Item is one tracked download. Identity is the client-assigned download id.
// Created by Dispatch, mutated only by the Tracker.
type Item struct {
	ID             string           `json:"id"`
	TargetID       library.TargetID `json:"targetId"`
	Release        indexer.Release  `json:"release"` // chosen candidate snapshot
	State          State            `json:"state"`
	Warning        string           `json:"warning,omitempty"`
	Error          string           `json:"error,omitempty"`
	TotalBytes     int64            `json:"totalBytes"`
	RemainingBytes int64            `json:"remainingBytes"`
	ETA            time.Duration    `json:"eta,omitempty"`
	OutputPath     string           `json:"outputPath,omitempty"`
	AddedAt        time.Time        `json:"addedAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
	LastProgressAt time.Time        `json:"lastProgressAt"`
}
