package messages

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cipherroom/internal/models"
)

type queries struct {
	insert string
	recent string
	delete string
}

var postgresQueries = queries{
	insert: `INSERT INTO messages (id, room, author, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
	recent: `SELECT id, room, author, content, created_at FROM (
		SELECT id, room, author, content, created_at, seq FROM messages
		WHERE room = $1 ORDER BY created_at DESC, seq DESC LIMIT $2
	) t ORDER BY created_at ASC, seq ASC`,
	delete: `DELETE FROM messages WHERE room = $1`,
}

var sqliteQueries = queries{
	insert: `INSERT INTO messages (id, room, author, content, created_at) VALUES (?, ?, ?, ?, ?)`,
	recent: `SELECT id, room, author, content, created_at FROM (
		SELECT id, room, author, content, created_at, seq FROM messages
		WHERE room = ? ORDER BY created_at DESC, seq DESC LIMIT ?
	) t ORDER BY created_at ASC, seq ASC`,
	delete: `DELETE FROM messages WHERE room = ?`,
}

// SQLRepository implements Repository over a DBTX. created_at is stored as
// unix microseconds so both dialects share one scan path.
type SQLRepository struct {
	db DBTX
	q  queries
}

// NewPostgresRepository binds a repository using $n placeholders.
func NewPostgresRepository(db DBTX) *SQLRepository {
	return &SQLRepository{db: db, q: postgresQueries}
}

// NewSQLiteRepository binds a repository using ? placeholders.
func NewSQLiteRepository(db DBTX) *SQLRepository {
	return &SQLRepository{db: db, q: sqliteQueries}
}

func (r *SQLRepository) Insert(ctx context.Context, m *models.Message) error {
	_, err := r.db.ExecContext(ctx, r.q.insert, m.ID, m.Room, m.Author, m.Content, m.CreatedAt.UnixMicro())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLRepository) Recent(ctx context.Context, room string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return []models.Message{}, nil
	}
	rows, err := r.db.QueryContext(ctx, r.q.recent, room, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select messages: %w", err)
	}
	defer rows.Close()

	result := make([]models.Message, 0, limit)
	for rows.Next() {
		var (
			m  models.Message
			us int64
		)
		if err := rows.Scan(&m.ID, &m.Room, &m.Author, &m.Content, &us); err != nil {
			return nil, err
		}
		m.CreatedAt = time.UnixMicro(us).UTC()
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLRepository) DeleteRoom(ctx context.Context, room string) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.q.delete, room)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
