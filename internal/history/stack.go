// Package history keeps the undo/redo stacks of graph snapshots.
package history

import (
	"sync"

	"github.com/rendis/canvasflow/internal/graph"
)

// DefaultDepth is the number of undo steps kept when none is configured.
const DefaultDepth = 100

// Stack is a bounded undo/redo history. Graph values are immutable, so the
// previous graph itself serves as the snapshot.
type Stack struct {
	mu    sync.Mutex
	depth int
	undo  []*graph.Graph
	redo  []*graph.Graph
}

// NewStack creates a Stack holding at most depth undo entries.
// A non-positive depth selects DefaultDepth.
func NewStack(depth int) *Stack {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Stack{depth: depth}
}

// Record pushes the pre-mutation graph and clears the redo stack.
// When the stack is full the oldest entry is dropped.
func (s *Stack) Record(before *graph.Graph) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.undo = append(s.undo, before)
	if len(s.undo) > s.depth {
		s.undo = append(s.undo[:0:0], s.undo[len(s.undo)-s.depth:]...)
	}
	s.redo = nil
}

// Undo pops the last snapshot and pushes current onto the redo stack.
func (s *Stack) Undo(current *graph.Graph) (*graph.Graph, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.undo) == 0 {
		return current, false
	}
	prev := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = append(s.redo, current)
	return prev, true
}

// Redo is the inverse of Undo.
func (s *Stack) Redo(current *graph.Graph) (*graph.Graph, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.redo) == 0 {
		return current, false
	}
	next := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.undo = append(s.undo, current)
	return next, true
}

// ClearRedo drops the redo stack. Edits that are not recorded still
// diverge from the undone branch.
func (s *Stack) ClearRedo() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redo = nil
}

// CanUndo reports whether Undo would restore a snapshot.
func (s *Stack) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undo) > 0
}

// CanRedo reports whether Redo would restore a snapshot.
func (s *Stack) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.redo) > 0
}

// Len returns the undo and redo stack sizes.
func (s *Stack) Len() (undo, redo int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undo), len(s.redo)
}

// Reset drops all history.
func (s *Stack) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.undo, s.redo = nil, nil
}
