// Package messages stores relay message rows. Contents are opaque to the
// relay: it never sees plaintext, only the encrypted envelope text.
package messages

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/cipherroom/internal/models"
)

// DBTX is the subset of database/sql used by the repository.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository interface {
	// Insert stores m. ID and CreatedAt must already be assigned.
	Insert(ctx context.Context, m *models.Message) error
	// Recent returns at most limit of the newest rows of room, oldest first.
	Recent(ctx context.Context, room string, limit int) ([]models.Message, error)
	// DeleteRoom removes every row of room and returns how many were removed.
	DeleteRoom(ctx context.Context, room string) (int64, error)
}
