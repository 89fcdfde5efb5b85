package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/reasongraph/pkg/reasongraph/graph"
	"github.com/cognicore/reasongraph/pkg/reasongraph/store"
)

// sqliteStore implements store.Snapshotter using SQLite.
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled and creates the
// snapshot schema if needed.
func OpenSQLite(ctx context.Context, path string) (store.Snapshotter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps the pragmas below in effect for every statement.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &sqliteStore{db: db}, nil
}

// Close closes the database connection.
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS nodes (
	id INTEGER PRIMARY KEY,
	label TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS node_attributes (
	node_id INTEGER NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY(node_id, key),
	FOREIGN KEY(node_id) REFERENCES nodes(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS edges (
	id INTEGER PRIMARY KEY,
	source INTEGER NOT NULL,
	target INTEGER NOT NULL,
	relation TEXT NOT NULL,
	confidence REAL NOT NULL,
	provenance TEXT NOT NULL,
	rule_id TEXT,
	depth INTEGER,
	path TEXT,
	created_at TEXT NOT NULL,
	FOREIGN KEY(source) REFERENCES nodes(id) ON DELETE CASCADE,
	FOREIGN KEY(target) REFERENCES nodes(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS edges_relation ON edges(relation);

CREATE TABLE IF NOT EXISTS edge_supporters (
	edge_id INTEGER NOT NULL,
	position INTEGER NOT NULL,
	supporter_id INTEGER NOT NULL,
	PRIMARY KEY(edge_id, position),
	FOREIGN KEY(edge_id) REFERENCES edges(id) ON DELETE CASCADE
);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// SaveGraph replaces the stored snapshot in a single transaction.
func (s *sqliteStore) SaveGraph(ctx context.Context, g *graph.Store) error {
	snap := store.Capture(g)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"edge_supporters", "edges", "node_attributes", "nodes"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := insertNodes(ctx, tx, snap.Nodes); err != nil {
		return err
	}
	if err := insertEdges(ctx, tx, snap.Edges); err != nil {
		return err
	}
	return tx.Commit()
}

func insertNodes(ctx context.Context, tx *sql.Tx, nodes []graph.Node) error {
	nodeStmt, err := tx.PrepareContext(ctx, `INSERT INTO nodes (id, label, type, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer nodeStmt.Close()
	attrStmt, err := tx.PrepareContext(ctx, `INSERT INTO node_attributes (node_id, key, value) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer attrStmt.Close()

	for _, n := range nodes {
		if _, err := nodeStmt.ExecContext(ctx, int64(n.ID), n.Label, n.Type, formatTime(n.CreatedAt)); err != nil {
			return fmt.Errorf("insert node %d: %w", n.ID, err)
		}
		for k, v := range n.Attributes {
			if _, err := attrStmt.ExecContext(ctx, int64(n.ID), k, v); err != nil {
				return fmt.Errorf("insert node %d attribute %s: %w", n.ID, k, err)
			}
		}
	}
	return nil
}

func insertEdges(ctx context.Context, tx *sql.Tx, edges []graph.Edge) error {
	edgeStmt, err := tx.PrepareContext(ctx, `
INSERT INTO edges (id, source, target, relation, confidence, provenance, rule_id, depth, path, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer edgeStmt.Close()
	supStmt, err := tx.PrepareContext(ctx, `INSERT INTO edge_supporters (edge_id, position, supporter_id) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer supStmt.Close()

	for _, e := range edges {
		var (
			ruleID sql.NullString
			depth  sql.NullInt64
			path   sql.NullString
		)
		if d := e.Derivation; d != nil {
			ruleID = sql.NullString{String: d.RuleID, Valid: true}
			depth = sql.NullInt64{Int64: int64(d.Depth), Valid: true}
			b, err := json.Marshal(d.Path)
			if err != nil {
				return err
			}
			path = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := edgeStmt.ExecContext(ctx,
			int64(e.ID),
			int64(e.Source),
			int64(e.Target),
			e.Relation.String(),
			e.Confidence,
			e.Provenance.String(),
			ruleID,
			depth,
			path,
			formatTime(e.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert edge %d: %w", e.ID, err)
		}
		if e.Derivation == nil {
			continue
		}
		for i, sup := range e.Derivation.Supporters {
			if _, err := supStmt.ExecContext(ctx, int64(e.ID), i, int64(sup)); err != nil {
				return fmt.Errorf("insert edge %d supporter: %w", e.ID, err)
			}
		}
	}
	return nil
}

// LoadGraph rebuilds a graph from the stored snapshot.
func (s *sqliteStore) LoadGraph(ctx context.Context, opts ...graph.Option) (*graph.Store, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	nodes, err := loadNodes(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	edges, err := loadEdges(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}
	return store.Snapshot{Nodes: nodes, Edges: edges}.Build(opts...)
}

func loadNodes(ctx context.Context, tx *sql.Tx) ([]graph.Node, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, label, type, created_at FROM nodes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []graph.Node
	index := make(map[graph.NodeID]int)
	for rows.Next() {
		var (
			n       graph.Node
			id      int64
			created string
		)
		if err := rows.Scan(&id, &n.Label, &n.Type, &created); err != nil {
			return nil, err
		}
		n.ID = graph.NodeID(id)
		if n.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		index[n.ID] = len(nodes)
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	attrRows, err := tx.QueryContext(ctx, `SELECT node_id, key, value FROM node_attributes`)
	if err != nil {
		return nil, err
	}
	defer attrRows.Close()
	for attrRows.Next() {
		var (
			id         int64
			key, value string
		)
		if err := attrRows.Scan(&id, &key, &value); err != nil {
			return nil, err
		}
		i, ok := index[graph.NodeID(id)]
		if !ok {
			continue
		}
		if nodes[i].Attributes == nil {
			nodes[i].Attributes = make(map[string]string)
		}
		nodes[i].Attributes[key] = value
	}
	return nodes, attrRows.Err()
}

func loadEdges(ctx context.Context, tx *sql.Tx) ([]graph.Edge, error) {
	rows, err := tx.QueryContext(ctx, `
SELECT id, source, target, relation, confidence, provenance, rule_id, depth, path, created_at
FROM edges ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []graph.Edge
	index := make(map[graph.EdgeID]int)
	for rows.Next() {
		var (
			e                    graph.Edge
			id, src, tgt         int64
			relation, provenance string
			ruleID, path         sql.NullString
			depth                sql.NullInt64
			created              string
		)
		if err := rows.Scan(&id, &src, &tgt, &relation, &e.Confidence, &provenance, &ruleID, &depth, &path, &created); err != nil {
			return nil, err
		}
		e.ID, e.Source, e.Target = graph.EdgeID(id), graph.NodeID(src), graph.NodeID(tgt)
		if e.Relation, err = graph.ParseRelation(relation); err != nil {
			return nil, fmt.Errorf("edge %d: %w", id, err)
		}
		if err := e.Provenance.UnmarshalText([]byte(provenance)); err != nil {
			return nil, fmt.Errorf("edge %d: %w", id, err)
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if ruleID.Valid {
			d := &graph.Derivation{RuleID: ruleID.String, Depth: int(depth.Int64)}
			if path.Valid {
				if err := json.Unmarshal([]byte(path.String), &d.Path); err != nil {
					return nil, fmt.Errorf("edge %d path: %w", id, err)
				}
			}
			e.Derivation = d
		}
		index[e.ID] = len(edges)
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	supRows, err := tx.QueryContext(ctx, `SELECT edge_id, supporter_id FROM edge_supporters ORDER BY edge_id, position`)
	if err != nil {
		return nil, err
	}
	defer supRows.Close()
	for supRows.Next() {
		var id, sup int64
		if err := supRows.Scan(&id, &sup); err != nil {
			return nil, err
		}
		i, ok := index[graph.EdgeID(id)]
		if !ok || edges[i].Derivation == nil {
			continue
		}
		edges[i].Derivation.Supporters = append(edges[i].Derivation.Supporters, graph.EdgeID(sup))
	}
	return edges, supRows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
