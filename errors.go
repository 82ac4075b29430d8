package zkmysql

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// FailureKind is the classification of an error raised by a proxied call.
type FailureKind int

const (
	// FailureUnknown means the classifier has no opinion about the error.
	FailureUnknown FailureKind = iota
	// FailureConnection marks a connection-level error that must trigger a
	// failover before the next call.
	FailureConnection
	// FailureQuery marks a query/application-level error that passes through
	// without affecting proxy state.
	FailureQuery
)

// Classifier maps an error raised by the delegate driver onto a FailureKind.
// A classifier should return FailureUnknown for errors it does not recognise
// so that later classifiers in the chain can have a go.
type Classifier func(error) FailureKind

// SQLStater is implemented by delegate driver errors that carry a five
// character SQLSTATE code.
type SQLStater interface {
	SQLState() string
}

// connectionStateClass is the SQLSTATE class for connection exceptions.
const connectionStateClass = "08"

// DefaultClassifier recognises the driver-agnostic connection failures:
// driver.ErrBadConn, EOF and network-level errors, and any error exposing a
// SQLSTATE in the connection exception class. Errors exposing any other
// SQLSTATE are query-level. Everything else is FailureUnknown.
func DefaultClassifier(err error) FailureKind {
	if err == nil {
		return FailureUnknown
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return FailureConnection
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureConnection
	}
	var stater SQLStater
	if errors.As(err, &stater) {
		if strings.HasPrefix(stater.SQLState(), connectionStateClass) {
			return FailureConnection
		}
		return FailureQuery
	}
	return FailureUnknown
}

// NoMasterError indicates that no master endpoint is currently published for
// a database.
type NoMasterError struct {
	DatabaseID string
}

func (e *NoMasterError) Error() string {
	return fmt.Sprintf("zkmysql: unable to locate current master for database %q", e.DatabaseID)
}

// ClosedError indicates an operation was attempted on a closed connection.
type ClosedError struct {
	Reason error
}

func (e *ClosedError) Error() string {
	msg := "zkmysql: no operations allowed after connection closed"
	if e.Reason != nil {
		msg += ": " + e.Reason.Error()
	}
	return msg
}

func (e *ClosedError) Unwrap() error { return e.Reason }

// ErrBlankDatabaseID is returned by Driver.Open when the compound DSN does
// not carry a database identifier.
var ErrBlankDatabaseID = errors.New("zkmysql: must provide a valid databaseID, was blank")
