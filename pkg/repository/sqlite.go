package repository

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kestrel/pkg/model"
	"github.com/m-mizutani/kestrel/pkg/utils/logging"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS memories (
	position   INTEGER PRIMARY KEY,
	id         TEXT NOT NULL UNIQUE,
	content    TEXT NOT NULL,
	created_at TEXT NOT NULL,
	embedding  BLOB,
	importance REAL NOT NULL
)`

// SQLite stores the collection in a single table. Replacement runs in one
// transaction so readers never observe a partial set.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite database", goerr.V("path", path))
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to create memories table", goerr.V("path", path))
	}

	return &SQLite{db: db}, nil
}

func (r *SQLite) Close() error {
	return r.db.Close()
}

func (r *SQLite) LoadMemories(ctx context.Context) ([]*model.Memory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, content, created_at, embedding, importance FROM memories ORDER BY position`)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query memories")
	}
	defer rows.Close()

	var memories []*model.Memory
	for rows.Next() {
		var (
			id, content, createdAt string
			blob                   []byte
			importance             float64
		)
		if err := rows.Scan(&id, &content, &createdAt, &blob, &importance); err != nil {
			return nil, goerr.Wrap(err, "failed to scan memory row")
		}

		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid memory timestamp", goerr.V("id", id), goerr.V("created_at", createdAt))
		}

		memories = append(memories, &model.Memory{
			ID:         model.MemoryID(id),
			Content:    content,
			Timestamp:  ts,
			Embedding:  decodeVector(blob),
			Importance: importance,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate memory rows")
	}

	logging.From(ctx).Debug("loaded memories from sqlite", "count", len(memories))
	return memories, nil
}

func (r *SQLite) ReplaceMemories(ctx context.Context, memories []*model.Memory) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memories`); err != nil {
		return goerr.Wrap(err, "failed to clear memories")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO memories (position, id, content, created_at, embedding, importance) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return goerr.Wrap(err, "failed to prepare insert")
	}
	defer stmt.Close()

	for i, m := range memories {
		if _, err := stmt.ExecContext(ctx,
			i,
			string(m.ID),
			m.Content,
			m.Timestamp.UTC().Format(time.RFC3339Nano),
			encodeVector(m.Embedding),
			m.Importance,
		); err != nil {
			return goerr.Wrap(err, "failed to insert memory", goerr.V("id", m.ID))
		}
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit memories")
	}

	logging.From(ctx).Debug("saved memories to sqlite", "count", len(memories))
	return nil
}

// encodeVector packs v as little-endian float32 values
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}
