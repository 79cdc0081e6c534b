/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package undo provides bounded undo/redo history for editor snapshots.
//
// Stacks are persistent values: Push and Pop never modify the receiver's backing
// array, so a History can live inside a reducer state and old states stay valid
// after a transition.
package undo

// Stack is an immutable LIFO of snapshots.
type Stack[T any] struct {
	items []T
}

// Len returns the number of snapshots in the stack.
func (s Stack[T]) Len() int { return len(s.items) }

// Top returns the most recent snapshot.
func (s Stack[T]) Top() (T, bool) {
	if len(s.items) == 0 {
		var zero T
		return zero, false
	}
	return s.items[len(s.items)-1], true
}

// Push returns a new stack with v on top. When maxDepth > 0 the oldest entries
// beyond it are dropped.
func (s Stack[T]) Push(v T, maxDepth int) Stack[T] {
	start := 0
	if maxDepth > 0 && len(s.items)+1 > maxDepth {
		start = len(s.items) + 1 - maxDepth
	}
	next := make([]T, 0, len(s.items)-start+1)
	next = append(next, s.items[start:]...)
	next = append(next, v)
	return Stack[T]{items: next}
}

// Pop returns the stack without its top and the removed snapshot.
func (s Stack[T]) Pop() (Stack[T], T, bool) {
	if len(s.items) == 0 {
		var zero T
		return s, zero, false
	}
	n := len(s.items) - 1
	// Full slice expression so a later Push on the result cannot write into s.
	return Stack[T]{items: s.items[:n:n]}, s.items[n], true
}

// Items returns a copy of the snapshots, oldest first.
func (s Stack[T]) Items() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// History pairs an undo and a redo stack for one image.
type History[T any] struct {
	Undo     Stack[T]
	Redo     Stack[T]
	MaxDepth int // 0 means unlimited
}

// NewHistory returns an empty history with the given depth cap.
func NewHistory[T any](maxDepth int) History[T] {
	if maxDepth < 0 {
		maxDepth = 0
	}
	return History[T]{MaxDepth: maxDepth}
}

// Record pushes the pre-change snapshot. Any new change invalidates redo.
func (h History[T]) Record(prev T) History[T] {
	h.Undo = h.Undo.Push(prev, h.MaxDepth)
	h.Redo = Stack[T]{}
	return h
}

// Back pops the undo stack and parks current on the redo stack.
// It reports false when there is nothing to undo.
func (h History[T]) Back(current T) (History[T], T, bool) {
	rest, prev, ok := h.Undo.Pop()
	if !ok {
		return h, current, false
	}
	h.Undo = rest
	h.Redo = h.Redo.Push(current, h.MaxDepth)
	return h, prev, true
}

// Forward pops the redo stack and pushes current back onto undo.
func (h History[T]) Forward(current T) (History[T], T, bool) {
	rest, next, ok := h.Redo.Pop()
	if !ok {
		return h, current, false
	}
	h.Redo = rest
	h.Undo = h.Undo.Push(current, h.MaxDepth)
	return h, next, true
}

// Clear drops both stacks and keeps the cap.
func (h History[T]) Clear() History[T] {
	return History[T]{MaxDepth: h.MaxDepth}
}
