/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"fmt"
	"log/slog"
	"sync"

	applog "listingstudio/internal/log"
)

// Options configures a Store.
type Options struct {
	// MaxUndo caps each image's undo depth; 0 means unlimited.
	MaxUndo int
}

// Store holds the current editor State and serializes transitions.
// It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	state State
	log   *slog.Logger
}

// NewStore returns a Store with an empty State.
func NewStore(opts Options) *Store {
	return &Store{
		state: NewState(opts.MaxUndo),
		log:   applog.WithComponent("editor"),
	}
}

// Dispatch applies a and returns the resulting State.
func (s *Store) Dispatch(a Action) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, a)
	s.log.Debug("dispatch", slog.String("action", fmt.Sprintf("%T", a)), slog.Int("active", s.state.active))
	return s.state
}

// State returns the current State. States are immutable values, so the result
// stays valid after later dispatches.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Active returns the active index and its image state.
func (s *Store) Active() (int, ImageState) {
	st := s.State()
	img, _ := st.Image(st.Active())
	return st.Active(), img
}

// Image returns the state of image i (default state if uninitialized).
func (s *Store) Image(i int) ImageState {
	img, _ := s.State().Image(i)
	return img
}

// Modified reports whether image i differs from its session baseline.
func (s *Store) Modified(i int) bool { return s.State().Modified(i) }
