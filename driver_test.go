package zkmysql_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	zkmysql "github.com/dgarson/zk-mysql-connector"
	"github.com/dgarson/zk-mysql-connector/sqldrivermock"
)

func TestDriverThroughDatabaseSQL(t *testing.T) {
	mock := &sqldrivermock.Driver{Logf: t.Logf}
	res := newFakeResolver()
	res.Set("orders", "host1:3306")
	d := zkmysql.New(mock, res)
	dname := t.Name()
	sql.Register(dname, d)

	db, err := sql.Open(dname, "orders")
	require.NoError(t, err)
	defer db.Close()

	// Set connection limits for determinism
	db.SetMaxOpenConns(1)

	// Force a connection
	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.PingContext(context.Background()))

	// Query
	rows, err := conn.QueryContext(context.Background(), "SELECT")
	require.NoError(t, err)
	rows.Close()

	// Exec
	_, err = conn.ExecContext(context.Background(), "UPDATE")
	require.NoError(t, err)

	// Prepared statement
	stmt, err := conn.PrepareContext(context.Background(), "SELECT")
	require.NoError(t, err)
	rows, err = stmt.Query()
	require.NoError(t, err)
	rows.Close()
	require.NoError(t, stmt.Close())

	// Transaction
	tx, err := conn.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	_, err = tx.ExecContext(context.Background(), "UPDATE")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	// The extension surface is reachable through Raw
	err = conn.Raw(func(dc interface{}) error {
		mc, ok := dc.(zkmysql.MasterConn)
		require.True(t, ok)
		require.Equal(t, "orders", mc.DatabaseID())
		onMaster, merr := mc.ConnectedToCurrentMaster()
		require.NoError(t, merr)
		require.True(t, onMaster)
		return nil
	})
	require.NoError(t, err)
}

func TestParent(t *testing.T) {
	mock := &sqldrivermock.Driver{}
	d := zkmysql.New(mock, newFakeResolver())
	require.Same(t, mock, d.Parent().(*sqldrivermock.Driver))
}

func TestCompoundDSN(t *testing.T) {
	for _, tc := range []struct {
		dsn        string
		databaseID string
		template   string
	}{
		{"orders", "orders", ""},
		{"orders;user:pass@tcp(placeholder)/orders", "orders", "user:pass@tcp(placeholder)/orders"},
		{" orders ;tpl", "orders", "tpl"},
		{";tpl", "", "tpl"},
		{"", "", ""},
	} {
		databaseID, template := zkmysql.ParseCompoundDSN(tc.dsn)
		if databaseID != tc.databaseID || template != tc.template {
			t.Errorf("ParseCompoundDSN(%q) = (%q, %q), want (%q, %q)",
				tc.dsn, databaseID, template, tc.databaseID, tc.template)
		}
	}

	if dsn := zkmysql.MakeCompoundDSN("orders", "tpl"); dsn != "orders;tpl" {
		t.Errorf("MakeCompoundDSN = %q, want %q", dsn, "orders;tpl")
	}
	if dsn := zkmysql.MakeCompoundDSN("orders", ""); dsn != "orders" {
		t.Errorf("MakeCompoundDSN = %q, want %q", dsn, "orders")
	}
}
