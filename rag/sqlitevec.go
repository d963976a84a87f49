package rag

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

var registerVec sync.Once

// SQLiteVecIndex stores vectors in an in-memory SQLite database using the
// sqlite-vec vec0 virtual table.
type SQLiteVecIndex struct {
	db   *sql.DB
	dims int

	mu sync.Mutex
	n  int
}

// NewSQLiteVecIndexFactory returns a factory for SQLiteVecIndex.
func NewSQLiteVecIndexFactory() IndexFactory {
	return func(dims int) (Index, error) { return NewSQLiteVecIndex(dims) }
}

// NewSQLiteVecIndex opens a private in-memory database for vectors of width dims.
func NewSQLiteVecIndex(dims int) (*SQLiteVecIndex, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("rag: invalid dimensions %d", dims)
	}
	registerVec.Do(sqlite_vec.Auto)

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("rag: open sqlite: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	stmt := fmt.Sprintf("CREATE VIRTUAL TABLE vectors USING vec0(embedding float[%d])", dims)
	if _, err := db.Exec(stmt); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("rag: create vec0 table: %w", err)
	}
	return &SQLiteVecIndex{db: db, dims: dims}, nil
}

// Add implements Index.
func (s *SQLiteVecIndex) Add(ctx context.Context, vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO vectors(rowid, embedding) VALUES (?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, v := range vectors {
		if len(v) != s.dims {
			return fmt.Errorf("rag: vector %d has %d dimensions, index expects %d", i, len(v), s.dims)
		}
		blob, err := sqlite_vec.SerializeFloat32(v)
		if err != nil {
			return err
		}
		// rowids start at 1; ids exposed by Hit start at 0.
		if _, err := stmt.ExecContext(ctx, s.n+i+1, blob); err != nil {
			return fmt.Errorf("rag: insert vector: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.n += len(vectors)
	return nil
}

// Search implements Index.
func (s *SQLiteVecIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != s.dims {
		return nil, fmt.Errorf("rag: query has %d dimensions, index expects %d", len(query), s.dims)
	}
	if k <= 0 || s.Len() == 0 {
		return nil, nil
	}
	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT rowid, distance FROM vectors WHERE embedding MATCH ? AND k = ? ORDER BY distance",
		blob, k)
	if err != nil {
		return nil, fmt.Errorf("rag: knn query: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			rowid int64
			dist  float64
		)
		if err := rows.Scan(&rowid, &dist); err != nil {
			return nil, err
		}
		hits = append(hits, Hit{ID: int(rowid - 1), Distance: float32(dist)})
	}
	return hits, rows.Err()
}

// Len implements Index.
func (s *SQLiteVecIndex) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Close implements Index.
func (s *SQLiteVecIndex) Close() error {
	return s.db.Close()
}
