/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Previews caches rendered thumbnails keyed by source reference and size.
// When the total cached size exceeds the configured cap, the least recently
// read entries are evicted.
type Previews struct{ db *DB }

func (s *DB) Previews() *Previews { return &Previews{db: s} }

// Get returns the cached blob and refreshes its access time.
func (p *Previews) Get(ctx context.Context, ref string, w, h int) ([]byte, bool, error) {
	var blob []byte
	err := p.db.queryRow(ctx, `SELECT data FROM previews WHERE ref=? AND w=? AND h=?`, ref, w, h).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query preview: %w", err)
	}
	_, _ = p.db.exec(ctx, `UPDATE previews SET last_access=? WHERE ref=? AND w=? AND h=?`, p.db.now().UnixNano(), ref, w, h)
	return blob, true, nil
}

// Put upserts a blob and evicts to fit the cap.
func (p *Previews) Put(ctx context.Context, ref string, w, h int, blob []byte) error {
	now := p.db.now().UnixNano()
	_, err := p.db.exec(ctx, `INSERT INTO previews(ref, w, h, data, size, updated_at, last_access)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ref, w, h) DO UPDATE SET data=excluded.data, size=excluded.size, updated_at=excluded.updated_at, last_access=excluded.last_access`,
		ref, w, h, blob, len(blob), now, now)
	if err != nil {
		return fmt.Errorf("upsert preview: %w", err)
	}
	if p.db.previewsMax > 0 {
		return p.EvictToFit(ctx, p.db.previewsMax)
	}
	return nil
}

// GetOrCreate returns the cached preview or generates, stores and returns it.
func (p *Previews) GetOrCreate(ctx context.Context, ref string, w, h int, gen func(context.Context) ([]byte, error)) ([]byte, error) {
	if b, ok, err := p.Get(ctx, ref, w, h); err != nil {
		return nil, err
	} else if ok {
		return b, nil
	}
	data, err := gen(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.Put(ctx, ref, w, h, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Invalidate drops every cached size for ref.
func (p *Previews) Invalidate(ctx context.Context, ref string) error {
	if _, err := p.db.exec(ctx, `DELETE FROM previews WHERE ref=?`, ref); err != nil {
		return fmt.Errorf("invalidate preview: %w", err)
	}
	return nil
}

// TotalSize returns the summed size of all cached blobs.
func (p *Previews) TotalSize(ctx context.Context) (int64, error) {
	var total int64
	if err := p.db.queryRow(ctx, `SELECT COALESCE(SUM(size),0) FROM previews`).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum previews size: %w", err)
	}
	return total, nil
}

// EvictToFit deletes least-recently-used rows until the total is <= capBytes.
func (p *Previews) EvictToFit(ctx context.Context, capBytes int64) error {
	total, err := p.TotalSize(ctx)
	if err != nil || total <= capBytes {
		return err
	}
	rows, err := p.db.query(ctx, `SELECT ref, w, h, size FROM previews ORDER BY last_access ASC`)
	if err != nil {
		return fmt.Errorf("select victims: %w", err)
	}
	type key struct {
		ref  string
		w, h int
	}
	var victims []key
	for total > capBytes && rows.Next() {
		var (
			k  key
			sz int64
		)
		if err := rows.Scan(&k.ref, &k.w, &k.h, &sz); err != nil {
			_ = rows.Close()
			return err
		}
		victims = append(victims, k)
		total -= sz
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	// Close the cursor before writing; sqlite runs on a single connection.
	if err := rows.Close(); err != nil {
		return err
	}
	if len(victims) == 0 {
		return nil
	}
	conds := make([]string, len(victims))
	args := make([]any, 0, len(victims)*3)
	for i, v := range victims {
		conds[i] = "(ref=? AND w=? AND h=?)"
		args = append(args, v.ref, v.w, v.h)
	}
	if _, err := p.db.exec(ctx, `DELETE FROM previews WHERE `+strings.Join(conds, " OR "), args...); err != nil {
		return fmt.Errorf("evict previews: %w", err)
	}
	p.db.log.Debug("previews evicted", "count", len(victims))
	return nil
}
