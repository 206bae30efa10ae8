package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store_test.db")
	s, err := Open(context.Background(), Config{
		SQLite: SQLiteConfig{Enabled: true, Path: path},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestSQLiteAdapter_ExecAndQuery(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	_, err := s.DB.Exec(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)

	tag, err := s.DB.Exec(ctx, `INSERT INTO widgets (name) VALUES (?)`, "sprocket")
	require.NoError(t, err)
	require.Equal(t, int64(1), tag.RowsAffected())

	var name string
	err = s.DB.QueryRow(ctx, `SELECT name FROM widgets WHERE id = ?`, 1).Scan(&name)
	require.NoError(t, err)
	require.Equal(t, "sprocket", name)

	rows, err := s.DB.Query(ctx, `SELECT id, name FROM widgets`)
	require.NoError(t, err)
	defer rows.Close()

	require.ElementsMatch(t, []string{"id", "name"}, rows.Columns())

	count := 0
	for rows.Next() {
		var id int
		var n string
		require.NoError(t, rows.Scan(&id, &n))
		count++
	}
	require.NoError(t, rows.Err())
	require.Equal(t, 1, count)
}

func TestSQLiteAdapter_TxCommitAndRollback(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	_, err := s.DB.Exec(ctx, `CREATE TABLE counters (id INTEGER PRIMARY KEY, n INTEGER NOT NULL)`)
	require.NoError(t, err)

	err = s.DB.Tx(ctx, func(q RowQuerier) error {
		_, err := q.Exec(ctx, `INSERT INTO counters (id, n) VALUES (1, 1)`)
		return err
	})
	require.NoError(t, err)

	boom := require.New(t)
	err = s.DB.Tx(ctx, func(q RowQuerier) error {
		if _, err := q.Exec(ctx, `INSERT INTO counters (id, n) VALUES (2, 2)`); err != nil {
			return err
		}
		return errAbortForTest
	})
	boom.ErrorIs(err, errAbortForTest)

	var count int
	err = s.DB.QueryRow(ctx, `SELECT count(*) FROM counters`).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 1, count, "rolled back row must not be visible")
}

func TestSQLiteAdapter_Ping(t *testing.T) {
	s := openTestDB(t)
	require.NoError(t, s.Guard(context.Background()))
}

var errAbortForTest = errAbort{}

type errAbort struct{}

func (errAbort) Error() string { return "aborted for test" }
