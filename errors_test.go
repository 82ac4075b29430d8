package zkmysql_test

import (
	"database/sql/driver"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	zkmysql "github.com/dgarson/zk-mysql-connector"
	"github.com/dgarson/zk-mysql-connector/sqldrivermock"
)

func TestDefaultClassifier(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want zkmysql.FailureKind
	}{
		{"nil", nil, zkmysql.FailureUnknown},
		{"bad conn", driver.ErrBadConn, zkmysql.FailureConnection},
		{"eof", io.EOF, zkmysql.FailureConnection},
		{"wrapped eof", errors.Wrap(io.EOF, "read packet"), zkmysql.FailureConnection},
		{"unexpected eof", io.ErrUnexpectedEOF, zkmysql.FailureConnection},
		{"conn reset", &net.OpError{Op: "read", Err: syscall.ECONNRESET}, zkmysql.FailureConnection},
		{"conn refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, zkmysql.FailureConnection},
		{"sqlstate 08006", &sqldrivermock.SQLStateError{State: "08006", Message: "server gone"}, zkmysql.FailureConnection},
		{"sqlstate 42000", &sqldrivermock.SQLStateError{State: "42000", Message: "syntax"}, zkmysql.FailureQuery},
		{"wrapped sqlstate", errors.Wrap(&sqldrivermock.SQLStateError{State: "08S01", Message: "link failure"}, "exec"), zkmysql.FailureConnection},
		{"plain error", errors.New("boom"), zkmysql.FailureUnknown},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, zkmysql.DefaultClassifier(tc.err))
		})
	}
}

func TestNoMasterError(t *testing.T) {
	err := &zkmysql.NoMasterError{DatabaseID: "orders"}
	assert.Contains(t, err.Error(), `"orders"`)
}

func TestClosedErrorUnwrap(t *testing.T) {
	cause := errors.New("dial refused")
	err := &zkmysql.ClosedError{Reason: cause}
	assert.Contains(t, err.Error(), "connection closed")
	assert.Contains(t, err.Error(), "dial refused")
	assert.ErrorIs(t, err, cause)

	bare := &zkmysql.ClosedError{}
	assert.Contains(t, bare.Error(), "connection closed")
}
