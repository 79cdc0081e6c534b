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
	"fmt"
)

// Originals records, per item, the reference each image had before its first
// save in a session, so "reset all images" can put them back.
type Originals struct{ db *DB }

func (s *DB) Originals() *Originals { return &Originals{db: s} }

// Capture stores ref for index unless one was already captured. It reports
// whether this call recorded it.
func (o *Originals) Capture(ctx context.Context, itemRef string, index int, ref string) (bool, error) {
	res, err := o.db.exec(ctx, `INSERT INTO originals(item_ref, idx, ref, captured_at) VALUES(?, ?, ?, ?)
		ON CONFLICT(item_ref, idx) DO NOTHING`, itemRef, index, ref, o.db.now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("capture original %s#%d: %w", itemRef, index, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, nil
	}
	return n > 0, nil
}

func (o *Originals) List(ctx context.Context, itemRef string) (map[int]string, error) {
	rows, err := o.db.query(ctx, `SELECT idx, ref FROM originals WHERE item_ref=? ORDER BY idx`, itemRef)
	if err != nil {
		return nil, fmt.Errorf("list originals %s: %w", itemRef, err)
	}
	defer rows.Close()
	out := map[int]string{}
	for rows.Next() {
		var (
			idx int
			ref string
		)
		if err := rows.Scan(&idx, &ref); err != nil {
			return nil, err
		}
		out[idx] = ref
	}
	return out, rows.Err()
}

func (o *Originals) Clear(ctx context.Context, itemRef string) error {
	if _, err := o.db.exec(ctx, `DELETE FROM originals WHERE item_ref=?`, itemRef); err != nil {
		return fmt.Errorf("clear originals %s: %w", itemRef, err)
	}
	return nil
}
