package kbretrieval

import (
	"context"
	"database/sql"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/antigravity-dev/studybuddy/internal/apperr"
	"github.com/antigravity-dev/studybuddy/internal/ports"
)

func init() {
	sqlite_vec.Auto()
}

// Embedder turns text into a fixed-dimension vector. The real embedding
// model is out of scope for the core (spec §1); LocalVecStore takes one as
// a dependency so it can serve as a complete, runnable KB for local/dev use
// without a managed vector-index service.
type Embedder func(ctx context.Context, text string) ([]float32, error)

// LocalVecStore is a local, single-node ports.KBClient backed by
// sqlite-vec's vec0 virtual table. It is kept on its own cgo
// mattn/go-sqlite3 connection, separate from the pure-Go modernc.org/sqlite
// domain store, because vec0 only loads into a cgo sqlite3 connection.
type LocalVecStore struct {
	db    *sql.DB
	dim   int
	embed Embedder
}

// OpenLocalVecStore opens (creating if absent) a vec0-backed index at
// dbPath with the given embedding dimension.
func OpenLocalVecStore(dbPath string, dim int, embed Embedder) (*LocalVecStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("kbretrieval: open local vec store %s: %w", dbPath, err)
	}

	if _, err := db.Exec(fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(embedding float[%d]);
	`, dim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("kbretrieval: create vec0 table: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS vec_chunk_meta (
			rowid INTEGER PRIMARY KEY,
			course_id TEXT NOT NULL,
			source TEXT NOT NULL,
			text TEXT NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("kbretrieval: create chunk metadata table: %w", err)
	}

	return &LocalVecStore{db: db, dim: dim, embed: embed}, nil
}

// Close releases the underlying connection.
func (l *LocalVecStore) Close() error {
	return l.db.Close()
}

// IndexChunk embeds and stores one retrievable chunk of text, scoped to a
// course and tagged with its source object key for the §3 scope rule.
func (l *LocalVecStore) IndexChunk(ctx context.Context, courseID, source, text string) error {
	vec, err := l.embed(ctx, text)
	if err != nil {
		return fmt.Errorf("kbretrieval: embed chunk: %w", err)
	}
	if len(vec) != l.dim {
		return fmt.Errorf("kbretrieval: embedder returned dimension %d, want %d", len(vec), l.dim)
	}

	serialized, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return fmt.Errorf("kbretrieval: serialize embedding: %w", err)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("kbretrieval: begin index tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO vec_chunks (embedding) VALUES (?)`, serialized)
	if err != nil {
		return fmt.Errorf("kbretrieval: insert embedding: %w", err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("kbretrieval: last insert id: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO vec_chunk_meta (rowid, course_id, source, text) VALUES (?, ?, ?, ?)`, rowID, courseID, source, text); err != nil {
		return fmt.Errorf("kbretrieval: insert chunk metadata: %w", err)
	}
	return tx.Commit()
}

// Retrieve implements ports.KBClient by a k-nearest-neighbor scan over
// vec_chunks, optionally pre-filtered to filterCourseID via the metadata
// join (mirroring the managed KB's equals-filter retrieve call).
func (l *LocalVecStore) Retrieve(ctx context.Context, filterCourseID, query string, numberOfResults int) ([]ports.RetrievalRow, error) {
	queryVec, err := l.embed(ctx, query)
	if err != nil {
		return nil, apperr.Upstream("kbretrieval: embed query", err)
	}
	serialized, err := sqlite_vec.SerializeFloat32(queryVec)
	if err != nil {
		return nil, apperr.Upstream("kbretrieval: serialize query embedding", err)
	}

	sqlQuery := `
		SELECT m.text, m.source
		FROM vec_chunks v
		JOIN vec_chunk_meta m ON m.rowid = v.rowid
		WHERE v.embedding MATCH ? AND k = ?
	`
	args := []any{serialized, numberOfResults}
	if filterCourseID != "" {
		sqlQuery += ` AND m.course_id = ?`
		args = append(args, filterCourseID)
	}
	sqlQuery += ` ORDER BY v.distance`

	rows, err := l.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, apperr.Upstream("kbretrieval: vec0 knn query", err)
	}
	defer rows.Close()

	var out []ports.RetrievalRow
	for rows.Next() {
		var row ports.RetrievalRow
		if err := rows.Scan(&row.Text, &row.Source); err != nil {
			return nil, fmt.Errorf("kbretrieval: scan retrieval row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Ingest returns clientToken itself as the job id. It does not embed or
// index anything: chunks enter the local store only through IndexChunk.
func (l *LocalVecStore) Ingest(ctx context.Context, sourceKey, clientToken string) (string, error) {
	return clientToken, nil
}
