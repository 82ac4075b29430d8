// Package validator implements the liveness probe a connection pool runs
// against master-tracking connections. A connection is reported invalid as
// soon as it no longer targets the current master, letting the pool reap it
// before the proxy would switch over on its own.
package validator

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	zkmysql "github.com/dgarson/zk-mysql-connector"
)

// Status is the outcome of a liveness check.
type Status int

const (
	// StatusOK means the connection may keep being used.
	StatusOK Status = iota
	// StatusInvalid means the pool should evict and recreate the connection.
	StatusInvalid
)

const defaultProbeQuery = "SELECT 1"

// Option is a configuration option for a Checker instance
type Option func(*Checker)

// WithClassifier installs a backend-specific error classifier used by
// StatusOnError.
func WithClassifier(c zkmysql.Classifier) Option {
	return func(ch *Checker) { ch.classifier = c }
}

// WithProbeQuery overrides the trivial query used when the connection offers
// no lightweight ping.
func WithProbeQuery(query string) Option {
	return func(ch *Checker) { ch.probeQuery = query }
}

// WithLogger creates an Option for the given logger.
func WithLogger(l log.FieldLogger) Option {
	return func(ch *Checker) { ch.log = l }
}

// Checker checks pooled connections for liveness and master currency. It is
// safe for use from multiple pool maintenance threads.
type Checker struct {
	classifier zkmysql.Classifier
	probeQuery string
	log        log.FieldLogger

	mu      sync.Mutex
	lastErr error
}

// New returns a Checker ready for use by a pool.
func New(opts ...Option) *Checker {
	ch := &Checker{probeQuery: defaultProbeQuery}
	for _, o := range opts {
		o(ch)
	}
	if ch.log == nil {
		ch.log = log.StandardLogger()
	}
	return ch
}

// LastError returns the cause recorded by the most recent failed check.
func (ch *Checker) LastError() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.lastErr
}

func (ch *Checker) record(err error) {
	ch.mu.Lock()
	ch.lastErr = err
	ch.mu.Unlock()
}

// Check probes one pooled connection. Order, short-circuiting on the first
// negative: master currency, then a lightweight ping, then a trivial query
// only when no ping is available. Any unexpected error is conservative:
// invalid, with the cause recorded.
func (ch *Checker) Check(ctx context.Context, conn *sql.Conn) Status {
	status := StatusOK
	err := conn.Raw(func(dc interface{}) error {
		if mc, ok := dc.(zkmysql.MasterConn); ok {
			onMaster, err := mc.ConnectedToCurrentMaster()
			if err != nil {
				// both local and live resolution absent
				ch.record(err)
				status = StatusInvalid
				return nil
			}
			if !onMaster {
				ch.log.WithField("database_id", mc.DatabaseID()).
					Debug("connection no longer targets current master")
				status = StatusInvalid
				return nil
			}
		}

		if pingSupported(dc) {
			p := dc.(driver.Pinger)
			if err := p.Ping(ctx); err != nil {
				ch.record(err)
				status = StatusInvalid
			}
			return nil
		}

		// no lightweight probe available
		if err := ch.queryProbe(ctx, dc); err != nil {
			ch.record(err)
			status = StatusInvalid
		}
		return nil
	})
	if err != nil {
		ch.record(err)
		status = StatusInvalid
	}
	if status == StatusInvalid {
		invalidTotal.Inc()
	}
	return status
}

// StatusOnError classifies an error the pool caught from a connection:
// connection-level errors are invalid, recognised query-level errors are
// assumed transient, anything unrecognised is conservatively invalid.
func (ch *Checker) StatusOnError(err error) Status {
	kind := zkmysql.FailureUnknown
	if ch.classifier != nil {
		kind = ch.classifier(err)
	}
	if kind == zkmysql.FailureUnknown {
		kind = zkmysql.DefaultClassifier(err)
	}
	switch kind {
	case zkmysql.FailureQuery:
		return StatusOK
	case zkmysql.FailureConnection:
		ch.record(err)
		invalidTotal.Inc()
		return StatusInvalid
	default:
		ch.record(err)
		invalidTotal.Inc()
		return StatusInvalid
	}
}

// pingSupported reports whether the raw connection offers a real ping. The
// proxy always implements driver.Pinger but exposes whether its delegate
// does.
func pingSupported(dc interface{}) bool {
	type pingCapable interface{ PingSupported() bool }
	if pc, ok := dc.(pingCapable); ok {
		return pc.PingSupported()
	}
	_, ok := dc.(driver.Pinger)
	return ok
}

// queryProbe runs the trivial probe query at the driver level.
func (ch *Checker) queryProbe(ctx context.Context, dc interface{}) error {
	if q, ok := dc.(driver.QueryerContext); ok {
		rows, err := q.QueryContext(ctx, ch.probeQuery, nil)
		if err == nil {
			return rows.Close()
		}
		if err != driver.ErrSkip {
			return err
		}
	}
	pc, ok := dc.(driver.Conn)
	if !ok {
		return errors.New("validator: connection does not implement driver.Conn")
	}
	stmt, err := pc.Prepare(ch.probeQuery)
	if err != nil {
		return err
	}
	defer stmt.Close()
	rows, err := stmt.Query(nil)
	if err != nil {
		return err
	}
	return rows.Close()
}
