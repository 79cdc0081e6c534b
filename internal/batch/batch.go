/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package batch re-renders every other tracked image with one image's edit
// parameters, one at a time, isolating per-image failures.
package batch

import (
	"context"
	"fmt"
	"log/slog"

	"listingstudio/internal/domain"
	applog "listingstudio/internal/log"
)

// Pipeline renders a source reference with the given parameters.
type Pipeline interface {
	RenderRef(ctx context.Context, ref string, p domain.EditParams) ([]byte, error)
}

// Persist stores one rendered target; typically upload plus saved-state write.
type Persist func(ctx context.Context, t Target, p domain.EditParams, data []byte) error

// Target is one image the batch will touch. Base is that image's current
// parameters; its watermarks are kept.
type Target struct {
	Index int
	Ref   string
	Base  domain.EditParams
}

type Progress struct {
	Done  int
	Total int
}

type Failure struct {
	Index int
	Ref   string
	Err   error
}

type Result struct {
	Total     int
	Succeeded []int
	Failed    []Failure
}

func (r Result) Skipped() int { return len(r.Failed) }

type Orchestrator struct {
	pipe    Pipeline
	persist Persist
	log     *slog.Logger
}

func New(pipe Pipeline, persist Persist) *Orchestrator {
	return &Orchestrator{pipe: pipe, persist: persist, log: applog.WithComponent("batch")}
}

// ApplyToAll walks targets in order, skipping sourceIndex. Every attempt
// advances progress whether it succeeds or not; failures are logged and
// collected, never retried, and never stop the loop.
func (o *Orchestrator) ApplyToAll(ctx context.Context, source domain.EditParams, sourceIndex int, targets []Target, onProgress func(Progress)) Result {
	work := make([]Target, 0, len(targets))
	for _, t := range targets {
		if t.Index != sourceIndex {
			work = append(work, t)
		}
	}
	res := Result{Total: len(work)}
	lg := applog.WithOperation(o.log, "apply_all")
	lg.Info("batch start", "source", sourceIndex, "targets", len(work))

	for i, t := range work {
		p := domain.TransferTo(t.Base, source)
		if err := o.one(ctx, t, p); err != nil {
			lg.Warn("target skipped", "image", t.Index, "ref", t.Ref, "err", err)
			res.Failed = append(res.Failed, Failure{Index: t.Index, Ref: t.Ref, Err: err})
		} else {
			res.Succeeded = append(res.Succeeded, t.Index)
		}
		if onProgress != nil {
			onProgress(Progress{Done: i + 1, Total: len(work)})
		}
	}
	lg.Info("batch done", "ok", len(res.Succeeded), "skipped", len(res.Failed))
	return res
}

func (o *Orchestrator) one(ctx context.Context, t Target, p domain.EditParams) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing image %d: %v", t.Index, r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := o.pipe.RenderRef(ctx, t.Ref, p)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if o.persist == nil {
		return nil
	}
	if err := o.persist(ctx, t, p, data); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	return nil
}
