package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/cipherroom/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func newRepoWithMock(t *testing.T) (*SQLRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestInsert_Postgres(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO messages (id, room, author, content, created_at) VALUES ($1, $2, $3, $4, $5)`)).
		WithArgs("m1", "lobby", "alice", "ct", at.UnixMicro()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), &models.Message{
		ID: "m1", Room: "lobby", Author: "alice", Content: "ct", CreatedAt: at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO messages`).WillReturnError(errors.New("db is down"))

	err := repo.Insert(context.Background(), &models.Message{ID: "m1", Room: "r"})
	if err == nil || !regexp.MustCompile(`db error: .*db is down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestRecent_Postgres_ScansRows(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	t1 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Second)
	rows := sqlmock.NewRows([]string{"id", "room", "author", "content", "created_at"}).
		AddRow("a", "lobby", "alice", "one", t1.UnixMicro()).
		AddRow("b", "lobby", "bob", "two", t2.UnixMicro())
	mock.ExpectQuery(`SELECT id, room, author, content, created_at FROM \(.*WHERE room = \$1 ORDER BY created_at DESC, seq DESC LIMIT \$2`).
		WithArgs("lobby", 200).
		WillReturnRows(rows)

	got, err := repo.Recent(context.Background(), "lobby", 200)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.Message{ID: "a", Room: "lobby", Author: "alice", Content: "one", CreatedAt: t1}, got[0])
	assert.Equal(t, "b", got[1].ID)
	assert.True(t, got[1].CreatedAt.Equal(t2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecent_QueryError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).WillReturnError(errors.New("boom"))

	_, err := repo.Recent(context.Background(), "lobby", 10)
	require.ErrorContains(t, err, "failed to select messages")
}

func TestRecent_NonPositiveLimit(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	got, err := repo.Recent(context.Background(), "lobby", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRoom_ReturnsRowsAffected(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM messages WHERE room = $1`)).
		WithArgs("lobby").
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.DeleteRoom(context.Background(), "lobby")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestDeleteRoom_RowsAffectedError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM messages`).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("rows-err")))

	_, err := repo.DeleteRoom(context.Background(), "lobby")
	require.ErrorContains(t, err, "rows affected error")
}

func setupSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE messages (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    id         TEXT    NOT NULL UNIQUE,
    room       TEXT    NOT NULL,
    author     TEXT    NOT NULL,
    content    TEXT    NOT NULL,
    created_at INTEGER NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func TestSQLite_RecentReturnsNewestAscending(t *testing.T) {
	repo := NewSQLiteRepository(setupSQLite(t))
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Insert(ctx, &models.Message{
			ID: fmt.Sprintf("m%d", i), Room: "lobby", Author: "a",
			Content: fmt.Sprintf("c%d", i), CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	// same timestamp: insertion order breaks the tie
	require.NoError(t, repo.Insert(ctx, &models.Message{ID: "m5", Room: "lobby", Content: "c5", CreatedAt: base.Add(4 * time.Second)}))
	require.NoError(t, repo.Insert(ctx, &models.Message{ID: "x", Room: "other", Content: "x", CreatedAt: base}))

	got, err := repo.Recent(ctx, "lobby", 3)
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, m := range got {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"m3", "m4", "m5"}, ids)

	n, err := repo.DeleteRoom(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	got, err = repo.Recent(ctx, "lobby", 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = repo.Recent(ctx, "other", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
