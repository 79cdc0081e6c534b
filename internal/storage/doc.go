/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage is the persistence adapter: a small SQL schema holding
// key/value blobs, per-item edit-state maps, captured original references and
// a bounded preview cache. SQLite (modernc, CGO-free) is the default backend;
// PostgreSQL is reachable through pgx's database/sql driver.
package storage
