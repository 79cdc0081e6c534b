/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package templates keeps the user's saved edit presets: a newest-first list
// persisted as one JSON document in key/value storage.
package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"listingstudio/internal/domain"
	applog "listingstudio/internal/log"
)

// Key is the storage key holding the template list.
const Key = "templates"

// DefaultMax is the list cap used when none is configured.
const DefaultMax = 20

var ErrNotFound = errors.New("template not found")

// KV is the slice of key/value storage the store needs.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

type Store struct {
	kv  KV
	max int
	now func() time.Time
	log *slog.Logger

	mu sync.Mutex
}

func New(kv KV, maxItems int) *Store {
	if maxItems <= 0 {
		maxItems = DefaultMax
	}
	return &Store{kv: kv, max: maxItems, now: time.Now, log: applog.WithComponent("templates")}
}

// Save captures the image-agnostic fields of p under name and prepends the
// new template. Entries beyond the cap are dropped, oldest first.
func (s *Store) Save(ctx context.Context, name string, p domain.EditParams) (domain.Template, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Template{}, errors.New("template name is required")
	}
	t := domain.TemplateFrom(name, p)
	t.ID = uuid.NewString()
	t.CreatedAt = s.now().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.load(ctx)
	if err != nil {
		return domain.Template{}, err
	}
	list = append([]domain.Template{t}, list...)
	if len(list) > s.max {
		s.log.Debug("template cap reached", "dropped", len(list)-s.max)
		list = list[:s.max]
	}
	if err := s.store(ctx, list); err != nil {
		return domain.Template{}, err
	}
	return t, nil
}

// Delete removes the template with id. Unknown ids are a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.load(ctx)
	if err != nil {
		return err
	}
	out := list[:0:0]
	for _, t := range list {
		if t.ID != id {
			out = append(out, t)
		}
	}
	if len(out) == len(list) {
		return nil
	}
	return s.store(ctx, out)
}

// List returns templates newest first.
func (s *Store) List(ctx context.Context) ([]domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) Get(ctx context.Context, id string) (domain.Template, error) {
	list, err := s.List(ctx)
	if err != nil {
		return domain.Template{}, err
	}
	for _, t := range list {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Template{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *Store) load(ctx context.Context) ([]domain.Template, error) {
	raw, ok, err := s.kv.Get(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	var list []domain.Template
	if err := json.Unmarshal(raw, &list); err != nil {
		// A corrupt list should not block saving new templates.
		s.log.Warn("template list unreadable, starting empty", "err", err)
		return nil, nil
	}
	return list, nil
}

func (s *Store) store(ctx context.Context, list []domain.Template) error {
	if list == nil {
		list = []domain.Template{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	if err := s.kv.Put(ctx, Key, raw); err != nil {
		return fmt.Errorf("save templates: %w", err)
	}
	return nil
}
