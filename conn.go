package zkmysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// MasterConn is the extension surface exposed by every proxied connection.
// It is reachable from a pooled connection via (*sql.Conn).Raw.
type MasterConn interface {
	// DatabaseID returns the database identifier this connection was opened
	// for.
	DatabaseID() string

	// ConnectedToCurrentMaster reports whether the endpoint this connection
	// targets equals the master currently published by the resolver. It
	// errors when both the held and the live resolution are absent, i.e. the
	// topology is entirely unknown.
	ConnectedToCurrentMaster() (bool, error)

	// LastFailure returns the most recent connection-level failure observed
	// on this connection, or nil. The failure that triggered a failover stays
	// observable on the replacement connection; Reconnect and boundary
	// switchovers clear it.
	LastFailure() error

	// SetReadOnly records the caller's read-only intent. The intent survives
	// failovers and is replayed onto every replacement connection.
	SetReadOnly(readOnly bool) error

	// SetAutoCommit records the caller's auto-commit intent. While
	// auto-commit is in effect every successful statement is treated as a
	// transaction boundary.
	SetAutoCommit(autoCommit bool) error

	// Abort tears the connection down immediately without waiting for
	// graceful shutdown. The connection may be transparently re-established
	// on next use.
	Abort() error

	// Reconnect forces the connection to be torn down and re-established
	// against the currently published master.
	Reconnect() error
}

// ReadOnlySetter is implemented by delegate connections that support
// switching the session between read-only and read-write mode.
type ReadOnlySetter interface {
	SetReadOnly(readOnly bool) error
}

// resolution is the equality-comparable outcome of a master lookup. Absence
// is a valid value distinct from every endpoint.
type resolution struct {
	endpoint string
	present  bool
}

// conn is a virtual connection tracking the current master of one logical
// database. It owns at most one delegate connection at a time; the delegate
// is replaced whenever a connection-level failure is classified or the
// resolver publishes a different master at a transaction boundary.
//
// All state transitions happen under mu. Plain forwarded calls read the
// active delegate and generation under mu, then run unserialised.
type conn struct {
	driver      *Driver
	databaseID  string
	templateDSN string

	mu      sync.Mutex
	current driver.Conn
	master  resolution

	// generation increments on every successful reestablish; failovers
	// triggered by errors coalesce on it.
	generation uint64

	explicitReadOnly   sql.NullBool
	explicitAutoCommit bool

	tx *tx

	aborted          bool
	invalidated      bool
	closed           bool
	closedExplicitly bool
	closeReason      error

	lastFailure          error
	lastFailureDealtWith error
}

func newConn(d *Driver, databaseID, templateDSN string) (*conn, error) {
	c := &conn{
		driver:             d,
		databaseID:         databaseID,
		templateDSN:        templateDSN,
		explicitAutoCommit: true,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.reestablishLocked(resolution{}); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *conn) logger() log.FieldLogger {
	return c.driver.log.WithField("database_id", c.databaseID)
}

// resolveLive asks the resolver for the currently published master.
func (c *conn) resolveLive() resolution {
	endpoint, ok := c.driver.resolver.Resolve(c.databaseID)
	return resolution{endpoint: endpoint, present: ok}
}

// invalidateLocked tears down the delegate connection, if any.
func (c *conn) invalidateLocked() {
	if c.current != nil {
		if err := c.current.Close(); err != nil {
			c.logger().WithError(err).Warn("error closing invalidated connection")
		}
		c.current = nil
	}
	c.invalidated = true
}

// reestablishLocked atomically replaces the delegate connection with one
// targeting the given resolution, or the resolver's live answer when none is
// given. It fails fast when no master is resolvable; no internal retrying.
func (c *conn) reestablishLocked(target resolution) error {
	if !target.present {
		target = c.resolveLive()
	}

	if c.current != nil {
		c.invalidateLocked()
		c.logger().Debug("invalidated connection")
	}

	// no master to connect to, fail fast
	if !target.present {
		c.master = target
		return &NoMasterError{DatabaseID: c.databaseID}
	}

	dsn, err := c.driver.mapper(target.endpoint, c.templateDSN)
	if err != nil {
		return errors.Wrapf(err, "zkmysql: mapping endpoint %q to a DSN", target.endpoint)
	}
	pc, err := c.driver.proxiedDriver.Open(dsn)
	if err != nil {
		return errors.Wrapf(err, "zkmysql: connecting to master %q for database %q", target.endpoint, c.databaseID)
	}

	// replay read-only intent onto the fresh connection
	if c.explicitReadOnly.Valid {
		if ro, ok := pc.(ReadOnlySetter); ok {
			if err := ro.SetReadOnly(c.explicitReadOnly.Bool); err != nil {
				_ = pc.Close()
				return errors.Wrap(err, "zkmysql: replaying read-only state")
			}
		}
	}

	c.master = target
	c.current = pc
	c.aborted = false
	c.invalidated = false
	c.lastFailure = nil
	c.lastFailureDealtWith = nil
	c.generation++
	if c.generation > 1 {
		// the first establish is a connect, not a failover
		failoversTotal.WithLabelValues(c.databaseID).Inc()
	}
	c.logger().WithField("endpoint", target.endpoint).Debug("established connection to master")
	return nil
}

// activeConn returns the delegate connection to forward a call to, bringing
// the proxy back to a connected state first if necessary. The returned
// generation identifies the delegate for failover coalescing.
func (c *conn) activeConn() (driver.Conn, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		if !c.driver.autoReconnect || c.closedExplicitly {
			return nil, 0, &ClosedError{Reason: c.closeReason}
		}
		// act as if this were the first connection, but synchronized with
		// prior session state
		if err := c.reestablishLocked(resolution{}); err != nil {
			return nil, 0, err
		}
		c.closed = false
		c.closeReason = nil
	}

	if c.current == nil || c.invalidated || c.aborted {
		if err := c.reestablishLocked(resolution{}); err != nil {
			return nil, 0, err
		}
	}
	return c.current, c.generation, nil
}

// handleError classifies an error raised by a forwarded call and, for
// connection-level failures, triggers at most one failover for the delegate
// generation that raised it. The caller re-raises the original error
// regardless; the failed call is never transparently retried.
func (c *conn) handleError(err error, gen uint64) {
	if err == nil || c.driver.classify(err) != FailureConnection {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastFailure = err

	if err == c.lastFailureDealtWith {
		// this exact failure already triggered a reconnect
		return
	}
	if c.generation != gen {
		// another caller already replaced the connection
		c.lastFailureDealtWith = err
		return
	}
	if rerr := c.reestablishLocked(resolution{}); rerr != nil {
		// fail fast: the handle closes (not explicitly) rather than
		// retrying; with auto-reconnect enabled the next use tries again
		c.logger().WithError(rerr).Warn("unable to re-establish connection after failure")
		c.closed = true
		c.closedExplicitly = false
		c.closeReason = rerr
	}
	c.lastFailure = err
	c.lastFailureDealtWith = err
}

// onCurrentMasterLocked reports whether the held resolution still equals the
// live one and is present.
func (c *conn) onCurrentMasterLocked() bool {
	live := c.resolveLive()
	return c.master == live && live.present
}

// afterBoundary runs the transaction-boundary staleness check after a
// successful auto-commit statement. Inside an explicit transaction, or with
// auto-commit switched off, the boundary is the commit/rollback instead.
func (c *conn) afterBoundary() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx != nil || !c.explicitAutoCommit {
		return nil
	}
	return c.switchIfStaleLocked()
}

// afterTxBoundary runs the staleness check after a commit or rollback.
func (c *conn) afterTxBoundary() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.switchIfStaleLocked()
}

func (c *conn) switchIfStaleLocked() error {
	if c.closed || c.onCurrentMasterLocked() {
		return nil
	}
	c.logger().Debug("master changed, switching over at transaction boundary")
	return c.reestablishLocked(resolution{})
}

// Prepare returns a lazily prepared statement, not yet bound to an
// underlying connection
func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return &stmt{conn: c, query: query}, nil
}

// PrepareContext returns a lazily prepared statement, not yet bound to an
// underlying connection
func (c *conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	// Check the context now (as the statement will be prepared lazily) and
	// return if it's expired
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return &stmt{conn: c, query: query}, nil
}

// Begin starts and returns a new transaction
func (c *conn) Begin() (driver.Tx, error) {
	c.mu.Lock()
	if c.tx != nil {
		c.mu.Unlock()
		c.logger().Debug("begin called while already in a transaction")
		return nil, driver.ErrBadConn
	}
	c.mu.Unlock()

	pc, gen, err := c.activeConn()
	if err != nil {
		return nil, err
	}
	ptx, err := pc.Begin()
	if err != nil {
		c.handleError(err, gen)
		return nil, err
	}
	return c.setTx(ptx, gen), nil
}

// BeginTx starts and returns a new transaction
func (c *conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	c.mu.Lock()
	if c.tx != nil {
		c.mu.Unlock()
		c.logger().Debug("begin called while already in a transaction")
		return nil, driver.ErrBadConn
	}
	c.mu.Unlock()

	pc, gen, err := c.activeConn()
	if err != nil {
		return nil, err
	}

	b, ok := pc.(driver.ConnBeginTx)
	if !ok {
		if opts.Isolation == driver.IsolationLevel(sql.LevelDefault) && !opts.ReadOnly {
			return c.Begin()
		}
		return nil, errors.New("zkmysql: delegate driver doesn't support BeginTx")
	}
	ptx, err := b.BeginTx(ctx, opts)
	if err != nil {
		c.handleError(err, gen)
		return nil, err
	}
	return c.setTx(ptx, gen), nil
}

func (c *conn) setTx(ptx driver.Tx, gen uint64) *tx {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tx = &tx{conn: c, proxiedTx: ptx, generation: gen}
	return c.tx
}

func (c *conn) clearTx(t *tx) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == t {
		c.tx = nil
	}
}

// Exec attempts to fast-path conn.Exec() against the active master connection
func (c *conn) Exec(query string, args []driver.Value) (driver.Result, error) {
	pc, gen, err := c.activeConn()
	if err != nil {
		return nil, err
	}
	e, ok := pc.(driver.Execer)
	if !ok {
		return nil, driver.ErrSkip
	}
	res, err := e.Exec(query, args)
	if err != nil {
		c.handleError(err, gen)
		return nil, err
	}
	if err := c.afterBoundary(); err != nil {
		return nil, err
	}
	return res, nil
}

// ExecContext attempts to fast-path conn.ExecContext() against the active
// master connection
func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	pc, gen, err := c.activeConn()
	if err != nil {
		return nil, err
	}
	e, ok := pc.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	res, err := e.ExecContext(ctx, query, args)
	if err != nil {
		c.handleError(err, gen)
		return nil, err
	}
	if err := c.afterBoundary(); err != nil {
		return nil, err
	}
	return res, nil
}

// Query attempts to fast-path conn.Query() against the active master
// connection
func (c *conn) Query(query string, args []driver.Value) (driver.Rows, error) {
	pc, gen, err := c.activeConn()
	if err != nil {
		return nil, err
	}
	q, ok := pc.(driver.Queryer)
	if !ok {
		return nil, driver.ErrSkip
	}
	rows, err := q.Query(query, args)
	if err != nil {
		c.handleError(err, gen)
		return nil, err
	}
	if err := c.afterBoundary(); err != nil {
		return nil, err
	}
	return rows, nil
}

// QueryContext attempts to fast-path conn.QueryContext() against the active
// master connection
func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	pc, gen, err := c.activeConn()
	if err != nil {
		return nil, err
	}
	q, ok := pc.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	rows, err := q.QueryContext(ctx, query, args)
	if err != nil {
		c.handleError(err, gen)
		return nil, err
	}
	if err := c.afterBoundary(); err != nil {
		return nil, err
	}
	return rows, nil
}

// Ping verifies the active master connection, re-establishing it first if it
// had been invalidated
func (c *conn) Ping(ctx context.Context) error {
	pc, gen, err := c.activeConn()
	if err != nil {
		return err
	}
	if p, ok := pc.(driver.Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			c.handleError(err, gen)
			return err
		}
	}
	return c.afterBoundary()
}

// PingSupported reports whether the delegate connection implements a
// lightweight liveness probe. Consumers without one should fall back to a
// trivial query probe.
func (c *conn) PingSupported() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.current.(driver.Pinger)
	return ok
}

// CheckNamedValue defers argument conversion to the delegate connection when
// it performs its own
func (c *conn) CheckNamedValue(nv *driver.NamedValue) error {
	c.mu.Lock()
	pc := c.current
	c.mu.Unlock()
	if nvc, ok := pc.(driver.NamedValueChecker); ok {
		return nvc.CheckNamedValue(nv)
	}
	return driver.ErrSkip
}

// Close closes the underlying delegate connection, rolling back any open
// transaction first. Close is terminal: the connection will not reopen even
// with auto-reconnect enabled.
func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}

	var errs *multierror.Error
	if c.tx != nil {
		c.logger().Debug("rolling back open transaction on close")
		if err := c.tx.proxiedTx.Rollback(); err != nil {
			errs = multierror.Append(errs, err)
		}
		c.tx = nil
	}
	if c.current != nil {
		if err := c.current.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
		c.current = nil
	}
	c.closed = true
	c.closedExplicitly = true
	return errs.ErrorOrNil()
}

// IsValid implements driver.Validator, letting the pool discard connections
// that are no longer usable or no longer point at the current master.
func (c *conn) IsValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.aborted || c.invalidated || c.current == nil {
		return false
	}
	return c.onCurrentMasterLocked()
}

// ResetSession implements driver.SessionResetter; a connection that lost its
// delegate since it was pooled is reported bad so the pool replaces it.
func (c *conn) ResetSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.aborted || c.invalidated || c.current == nil || !c.master.present {
		return driver.ErrBadConn
	}
	if sr, ok := c.current.(driver.SessionResetter); ok {
		return sr.ResetSession(ctx)
	}
	return nil
}

// DatabaseID returns the database identifier for this connection.
func (c *conn) DatabaseID() string {
	return c.databaseID
}

// ConnectedToCurrentMaster checks whether the master this connection is using
// is the same as the master currently published for its database.
func (c *conn) ConnectedToCurrentMaster() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	live := c.resolveLive()
	if c.master == live {
		// if they've both been absent, the whole topology is unknown
		if !live.present {
			return false, &NoMasterError{DatabaseID: c.databaseID}
		}
		return true, nil
	}
	return false, nil
}

// LastFailure returns the last connection-level failure observed, or nil.
func (c *conn) LastFailure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastFailure
}

// SetReadOnly records read-only intent and applies it to the delegate when
// supported. The intent is replayed onto every replacement connection.
func (c *conn) SetReadOnly(readOnly bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &ClosedError{Reason: c.closeReason}
	}
	c.explicitReadOnly = sql.NullBool{Bool: readOnly, Valid: true}
	if ro, ok := c.current.(ReadOnlySetter); ok {
		return ro.SetReadOnly(readOnly)
	}
	return nil
}

// SetAutoCommit records auto-commit intent. With auto-commit on (the
// default), every successful statement outside an explicit transaction is a
// boundary at which the master resolution is re-checked.
func (c *conn) SetAutoCommit(autoCommit bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &ClosedError{Reason: c.closeReason}
	}
	c.explicitAutoCommit = autoCommit
	return nil
}

// Abort tears down the delegate connection without graceful shutdown. Unlike
// Close it is not terminal; the next use re-establishes.
func (c *conn) Abort() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		// fast teardown, errors deliberately dropped
		_ = c.current.Close()
		c.current = nil
	}
	c.aborted = true
	c.logger().Debug("aborted connection")
	return nil
}

// Reconnect forces a teardown and reconnection to the currently published
// master.
func (c *conn) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed && c.closedExplicitly {
		return &ClosedError{Reason: c.closeReason}
	}
	if err := c.reestablishLocked(resolution{}); err != nil {
		return err
	}
	c.closed = false
	c.closeReason = nil
	return nil
}
