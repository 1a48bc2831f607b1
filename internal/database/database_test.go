package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRunMigrationsIsRepeatable(t *testing.T) {
	conn := memoryDB(t)
	m := NewMigrationManager(conn)

	require.NoError(t, m.RunMigrations())
	require.NoError(t, m.RunMigrations())

	applied, err := m.GetAppliedMigrations()
	require.NoError(t, err)
	assert.True(t, applied[1])

	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'legs'").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	conn := memoryDB(t)
	require.NoError(t, NewMigrationManager(conn).RunMigrations())

	boom := errors.New("boom")
	err := WithTx(conn, func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO devices (id, user_id) VALUES (1, 1)"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM devices").Scan(&n))
	assert.Equal(t, 0, n)
}

func TestModesCascadeWithLeg(t *testing.T) {
	conn := memoryDB(t)
	require.NoError(t, NewMigrationManager(conn).RunMigrations())

	_, err := conn.Exec("INSERT INTO devices (id, user_id) VALUES (1, 1)")
	require.NoError(t, err)
	res, err := conn.Exec(`INSERT INTO legs (device_id, time_start, time_end, lat_start, lon_start, lat_end, lon_end, activity)
		VALUES (1, 0, 60, 0, 0, 0, 0, 'IN_VEHICLE')`)
	require.NoError(t, err)
	legID, _ := res.LastInsertId()
	_, err = conn.Exec("INSERT INTO modes (leg_id, source, mode, line) VALUES (?, 'USER', 'BUS', '55')", legID)
	require.NoError(t, err)

	_, err = conn.Exec("DELETE FROM legs WHERE id = ?", legID)
	require.NoError(t, err)

	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM modes").Scan(&n))
	assert.Equal(t, 0, n)
}

func fileDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := Open(filepath.Join(t.TempDir(), "legs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, NewMigrationManager(conn).RunMigrations())
	return conn
}

func TestFilePragmasApplyToEveryConnection(t *testing.T) {
	ctx := context.Background()
	db := fileDB(t)

	// holding the connections forces the pool to open distinct ones
	var conns []*sql.Conn
	for i := 0; i < 3; i++ {
		c, err := db.Conn(ctx)
		require.NoError(t, err)
		defer c.Close()
		conns = append(conns, c)
	}

	for i, c := range conns {
		var fk, timeout int
		var mode string
		require.NoError(t, c.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
		require.NoError(t, c.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
		require.NoError(t, c.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
		assert.Equal(t, 1, fk, "conn %d", i)
		assert.Equal(t, 5000, timeout, "conn %d", i)
		assert.Equal(t, "wal", mode, "conn %d", i)
	}
}

func TestConcurrentWriteTransactions(t *testing.T) {
	db := fileDB(t)

	var g errgroup.Group
	for w := int64(1); w <= 8; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < 20; i++ {
				err := WithTx(db, func(tx *sql.Tx) error {
					var n int64
					if err := tx.QueryRow("SELECT COUNT(*) FROM devices").Scan(&n); err != nil {
						return err
					}
					_, err := tx.Exec("INSERT INTO devices (id, user_id) VALUES (?, ?)", w*1000+int64(i), w)
					return err
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM devices").Scan(&n))
	assert.Equal(t, 160, n)
}
