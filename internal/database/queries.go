/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

const (
	// Schema. A NULL value is a tombstone: the row keeps its version so a
	// deleted path never hands out a version token twice.
	querySchemaNodes = `
		CREATE TABLE IF NOT EXISTS nodes (
			path TEXT PRIMARY KEY,
			value TEXT,
			version BIGINT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`

	querySchemaNodesUpdated = `
		CREATE INDEX IF NOT EXISTS idx_nodes_updated_at ON nodes(updated_at)`

	// Node queries
	queryGetNode = `
		SELECT value, version
		FROM nodes
		WHERE path = ?`

	queryInsertNode = `
		INSERT INTO nodes (path, value, version, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (path) DO NOTHING`

	queryUpdateNode = `
		UPDATE nodes
		SET value = ?, version = version + 1, updated_at = ?
		WHERE path = ? AND version = ?`

	queryListNodes = `
		SELECT path, value
		FROM nodes
		WHERE substr(path, 1, ?) = ? AND value IS NOT NULL
		ORDER BY path`
)
