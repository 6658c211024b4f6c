package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/campaignforge/forge/pkg/schema"
)

// LibSQLStore implements GraphStore on libSQL (embedded SQLite fork) so a
// composition graph survives across sessions. Run state is deliberately
// never written here.
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path.
// The path should be a file URI, e.g. "file:/path/to/graph.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Connection-level PRAGMAs. Some return rows, so QueryRow is used.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending schema migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

func (s *LibSQLStore) GetNodes(ctx context.Context) ([]schema.Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, node_type, data FROM nodes ORDER BY rowid`)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list nodes: %s", err.Error()).WithCause(err)
	}
	defer rows.Close()

	var out []schema.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) GetEdges(ctx context.Context) ([]schema.Edge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, target, source_handle FROM edges ORDER BY rowid`)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list edges: %s", err.Error()).WithCause(err)
	}
	defer rows.Close()

	var out []schema.Edge
	for rows.Next() {
		var e schema.Edge
		var handle sql.NullString
		if err := rows.Scan(&e.ID, &e.Source, &e.Target, &handle); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "scan edge: %s", err.Error()).WithCause(err)
		}
		e.SourceHandle = handle.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) GetNode(ctx context.Context, id string) (*schema.Node, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, node_type, data FROM nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "node not found: %s", id).WithNode(id)
	}
	return n, err
}

func (s *LibSQLStore) AddNode(ctx context.Context, node schema.Node) error {
	if err := node.Validate(); err != nil {
		return err
	}
	if node.Data == nil {
		node.Data = schema.NodeData{}
	}
	data, err := json.Marshal(node.Data)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "marshal node data: %s", err.Error()).WithCause(err)
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO nodes (id, node_type, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		node.ID, string(node.Type), string(data), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return schema.NewErrorf(schema.ErrCodeConflict, "node already exists: %s", node.ID).WithNode(node.ID)
		}
		return schema.NewErrorf(schema.ErrCodeStore, "insert node: %s", err.Error()).WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) AddEdge(ctx context.Context, edge schema.Edge) error {
	if err := edge.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO edges (id, source, target, source_handle) VALUES (?, ?, ?, ?)`,
		edge.ID, edge.Source, edge.Target, nullStr(edge.SourceHandle))
	if err != nil {
		if isUniqueViolation(err) {
			return schema.NewErrorf(schema.ErrCodeConflict, "edge already exists: %s", edge.ID)
		}
		// Foreign key failures mean a missing endpoint.
		return schema.NewErrorf(schema.ErrCodeValidation, "insert edge %s: %s", edge.ID, err.Error()).WithCause(err)
	}
	return nil
}

// UpdateNodeData performs the merge inside a transaction so concurrent
// merges to the same node serialize on the row write.
func (s *LibSQLStore) UpdateNodeData(ctx context.Context, id string, partial schema.NodeData) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "begin tx: %s", err.Error()).WithCause(err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT data FROM nodes WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node not found: %s", id).WithNode(id)
	}
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "read node data: %s", err.Error()).WithCause(err)
	}

	var current schema.NodeData
	if err := json.Unmarshal([]byte(raw), &current); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "decode node data: %s", err.Error()).WithCause(err)
	}
	merged, err := json.Marshal(current.Merge(partial))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "encode node data: %s", err.Error()).WithCause(err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE nodes SET data = ?, updated_at = ? WHERE id = ?`,
		string(merged), time.Now().UTC(), id); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "update node data: %s", err.Error()).WithCause(err)
	}
	if err := tx.Commit(); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "commit update: %s", err.Error()).WithCause(err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*schema.Node, error) {
	var n schema.Node
	var typ, raw string
	if err := row.Scan(&n.ID, &typ, &raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, schema.NewErrorf(schema.ErrCodeStore, "scan node: %s", err.Error()).WithCause(err)
	}
	n.Type = schema.NodeType(typ)
	if err := json.Unmarshal([]byte(raw), &n.Data); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "decode node data: %s", err.Error()).WithCause(err)
	}
	return &n, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY constraint")
}
