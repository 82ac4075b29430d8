package zkmysql_test

import (
	"context"
	"database/sql/driver"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatementBindsLazily(t *testing.T) {
	mock, _, c := openTestConn(t)

	stmt, err := c.Prepare("SELECT x FROM t")
	require.NoError(t, err)
	// not yet bound to a physical connection
	require.Equal(t, -1, stmt.NumInput())
	require.Empty(t, mock.Opened()[0].Execs())

	rows, err := stmt.(driver.StmtQueryContext).QueryContext(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, rows.Close())
	require.Equal(t, []string{"SELECT x FROM t"}, mock.Opened()[0].Execs())

	require.NoError(t, stmt.Close())
}

func TestStatementRebindsAfterSwitchover(t *testing.T) {
	mock, res, c := openTestConn(t)
	ctx := context.Background()

	stmt, err := c.Prepare("SELECT x FROM t")
	require.NoError(t, err)

	rows, err := stmt.(driver.StmtQueryContext).QueryContext(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, rows.Close())

	// master moves; the query still runs on the old master, switching at the
	// boundary afterwards
	res.Set("orders", "host2:3306")
	rows, err = stmt.(driver.StmtQueryContext).QueryContext(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, rows.Close())
	require.Len(t, mock.Opened(), 2)

	// the next use re-binds to the replacement connection
	rows, err = stmt.(driver.StmtQueryContext).QueryContext(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, rows.Close())

	require.Equal(t, []string{"SELECT x FROM t", "SELECT x FROM t"}, mock.Opened()[0].Execs())
	require.Equal(t, []string{"SELECT x FROM t"}, mock.Opened()[1].Execs())
}

func TestStatementErrorTriggersFailover(t *testing.T) {
	mock, _, c := openTestConn(t)
	ctx := context.Background()

	stmt, err := c.Prepare("UPDATE t SET x = 1")
	require.NoError(t, err)

	_, err = stmt.(driver.StmtExecContext).ExecContext(ctx, nil)
	require.NoError(t, err)

	mock.Opened()[0].FailNext(io.EOF)
	_, err = stmt.(driver.StmtExecContext).ExecContext(ctx, nil)
	require.Equal(t, io.EOF, err)
	require.Len(t, mock.Opened(), 2)

	// rebinding is transparent on the next execution
	_, err = stmt.(driver.StmtExecContext).ExecContext(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"UPDATE t SET x = 1"}, mock.Opened()[1].Execs())
}
