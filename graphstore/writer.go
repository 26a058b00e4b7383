// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package graphstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// batchSize bounds the rows sent per UNWIND statement.
const batchSize = 500

// RelSpec describes one relationship type between two node labels. Rows
// passed to MergeRelationships must carry "from" and "to" fields holding the
// endpoint key values, plus any relationship properties under "props".
type RelSpec struct {
	FromLabel string
	FromKey   string
	ToLabel   string
	ToKey     string
	RelType   string
}

// Writer performs batched, idempotent writes. All statements are MERGE-based
// so replaying a batch after a partial failure never duplicates graph
// elements.
type Writer struct {
	client *Client
	logger *slog.Logger
}

// NewWriter creates a writer on the given client.
func NewWriter(client *Client) *Writer {
	return &Writer{
		client: client,
		logger: slog.Default().With("component", "graph-writer"),
	}
}

// EnsureSchema creates uniqueness constraints for the node labels, best
// effort: failures are logged and ignored so older servers still load.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	session := w.client.session(ctx)
	defer session.Close(ctx)

	stmts := []string{
		`CREATE CONSTRAINT chat_id_unique IF NOT EXISTS FOR (c:Chat) REQUIRE c.id IS UNIQUE`,
		`CREATE CONSTRAINT message_id_unique IF NOT EXISTS FOR (m:Message) REQUIRE m.id IS UNIQUE`,
		`CREATE CONSTRAINT chunk_id_unique IF NOT EXISTS FOR (k:Chunk) REQUIRE k.id IS UNIQUE`,
		`CREATE CONSTRAINT cluster_id_unique IF NOT EXISTS FOR (cl:Cluster) REQUIRE cl.id IS UNIQUE`,
		`CREATE CONSTRAINT tag_id_unique IF NOT EXISTS FOR (t:Tag) REQUIRE t.id IS UNIQUE`,
		`CREATE CONSTRAINT summary_id_unique IF NOT EXISTS FOR (s:Summary) REQUIRE s.id IS UNIQUE`,
	}
	for _, q := range stmts {
		res, err := session.Run(ctx, q, nil)
		if err != nil {
			w.logger.Warn("schema init failed (continuing)", "err", err)
			continue
		}
		_, _ = res.Consume(ctx)
	}
	return nil
}

// MergeNodes upserts nodes of one label, keyed by the given property. Each
// row becomes the node's full property map.
func (w *Writer) MergeNodes(ctx context.Context, label, key string, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
UNWIND $rows AS row
MERGE (n:%s {%s: row.%s})
SET n += row
`, label, key, key)

	session := w.client.session(ctx)
	defer session.Close(ctx)

	for start := 0; start < len(rows); start += batchSize {
		batch := rows[start:min(start+batchSize, len(rows))]
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, query, map[string]any{"rows": batch})
			if err != nil {
				return nil, err
			}
			return nil, consume(ctx, res)
		})
		if err != nil {
			return fmt.Errorf("merge %s nodes: %w", label, err)
		}
	}
	w.logger.Debug("merged nodes", "label", label, "count", len(rows))
	return nil
}

// SetNodeProperties patches properties onto existing nodes, keyed by "id" in
// each row with the patch under "props". Returns the number of rows whose
// node was found.
func (w *Writer) SetNodeProperties(ctx context.Context, label, key string, rows []map[string]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
UNWIND $rows AS row
MATCH (n:%s {%s: row.id})
SET n += row.props
RETURN count(n) AS matched
`, label, key)

	session := w.client.session(ctx)
	defer session.Close(ctx)

	matched := 0
	for start := 0; start < len(rows); start += batchSize {
		batch := rows[start:min(start+batchSize, len(rows))]
		n, err := w.countingWrite(ctx, session, query, batch)
		if err != nil {
			return matched, fmt.Errorf("set %s properties: %w", label, err)
		}
		matched += n
	}
	return matched, nil
}

// MergeRelationships upserts one relationship per row between existing
// nodes. Rows with a missing endpoint are silently unmatched; the returned
// count lets the caller detect and retry them after the node pass.
func (w *Writer) MergeRelationships(ctx context.Context, spec RelSpec, rows []map[string]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
UNWIND $rows AS row
MATCH (a:%s {%s: row.from})
MATCH (b:%s {%s: row.to})
MERGE (a)-[r:%s]->(b)
SET r += row.props
RETURN count(r) AS matched
`, spec.FromLabel, spec.FromKey, spec.ToLabel, spec.ToKey, spec.RelType)

	session := w.client.session(ctx)
	defer session.Close(ctx)

	matched := 0
	for start := 0; start < len(rows); start += batchSize {
		batch := rows[start:min(start+batchSize, len(rows))]
		n, err := w.countingWrite(ctx, session, query, batch)
		if err != nil {
			return matched, fmt.Errorf("merge %s relationships: %w", spec.RelType, err)
		}
		matched += n
	}
	w.logger.Debug("merged relationships", "type", spec.RelType,
		"rows", len(rows), "matched", matched)
	return matched, nil
}

func (w *Writer) countingWrite(ctx context.Context, session neo4j.SessionWithContext, query string, batch []map[string]any) (int, error) {
	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"rows": batch})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		n, _ := record.Get("matched")
		count, ok := n.(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected matched count type %T", n)
		}
		return int(count), nil
	})
	if err != nil {
		return 0, err
	}
	return out.(int), nil
}

func consume(ctx context.Context, res neo4j.ResultWithContext) error {
	_, err := res.Consume(ctx)
	return err
}
