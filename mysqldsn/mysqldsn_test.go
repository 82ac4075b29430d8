package mysqldsn

import (
	"database/sql/driver"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zkmysql "github.com/dgarson/zk-mysql-connector"
)

func TestMapperWithTemplate(t *testing.T) {
	dsn, err := Mapper("host2:3306", "user:pass@tcp(placeholder:3306)/orders?parseTime=true")
	require.NoError(t, err)

	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "host2:3306", cfg.Addr)
	assert.Equal(t, "tcp", cfg.Net)
	assert.Equal(t, "user", cfg.User)
	assert.Equal(t, "pass", cfg.Passwd)
	assert.Equal(t, "orders", cfg.DBName)
	assert.True(t, cfg.ParseTime)
}

func TestMapperForcesTCP(t *testing.T) {
	dsn, err := Mapper("host2:3306", "user@unix(/tmp/mysql.sock)/orders")
	require.NoError(t, err)

	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "tcp", cfg.Net)
	assert.Equal(t, "host2:3306", cfg.Addr)
}

func TestMapperEmptyTemplate(t *testing.T) {
	dsn, err := Mapper("host1:3306", "")
	require.NoError(t, err)
	assert.Contains(t, dsn, "tcp(host1:3306)")
}

func TestMapperBadTemplate(t *testing.T) {
	_, err := Mapper("host1:3306", "://not-a-dsn")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want zkmysql.FailureKind
	}{
		{"nil", nil, zkmysql.FailureUnknown},
		{"invalid conn", mysql.ErrInvalidConn, zkmysql.FailureConnection},
		{"bad conn", driver.ErrBadConn, zkmysql.FailureConnection},
		{"wrapped invalid conn", errors.Wrap(mysql.ErrInvalidConn, "exec"), zkmysql.FailureConnection},
		{
			"connection sqlstate",
			&mysql.MySQLError{Number: 1927, SQLState: [5]byte{'0', '8', 'S', '0', '1'}, Message: "connection killed"},
			zkmysql.FailureConnection,
		},
		{
			"syntax error",
			&mysql.MySQLError{Number: 1064, SQLState: [5]byte{'4', '2', '0', '0', '0'}, Message: "syntax"},
			zkmysql.FailureQuery,
		},
		{"plain error", errors.New("boom"), zkmysql.FailureUnknown},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestNewDriverWrapsMySQL(t *testing.T) {
	d := NewDriver(staticResolver{})
	_, ok := d.Parent().(*mysql.MySQLDriver)
	assert.True(t, ok)
}

type staticResolver struct{}

func (staticResolver) Resolve(string) (string, bool) { return "", false }
