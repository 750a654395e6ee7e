/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


// Package storage persists composition records and undo history keyed by project id.
// The file store writes state.json transactionally with timestamped backups, the SQLite
// store keeps state and history in one embedded database, and the Redis and Postgres
// stores share state between machines. Postgres also serves as the source of
// server-provided layouts, which take precedence over local state on load.
package storage
