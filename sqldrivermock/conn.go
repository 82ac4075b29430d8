package sqldrivermock

import (
	"context"
	"database/sql/driver"
	"sync"
)

// Conn is a mock connection. It records every statement run against it and
// can be scripted to fail its next operation.
type Conn struct {
	driver *Driver
	DSN    string
	id     int

	mu        sync.Mutex
	closed    bool
	nextErr   error
	stmts     int
	execs     []string
	pings     int
	begins    int
	commits   int
	rollbacks int

	readOnlySet bool
	readOnly    bool
}

// FailNext makes the next operation on this connection (exec, query, ping,
// begin, commit or rollback) return err.
func (c *Conn) FailNext(err error) {
	c.mu.Lock()
	c.nextErr = err
	c.mu.Unlock()
}

// Execs returns the statements run against this connection, in order.
func (c *Conn) Execs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.execs))
	copy(out, c.execs)
	return out
}

// Closed reports whether the connection has been closed.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Pings returns how many times the connection was pinged.
func (c *Conn) Pings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

// Commits returns how many transactions were committed on this connection.
func (c *Conn) Commits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits
}

// ReadOnly returns the recorded read-only state and whether it was ever set.
func (c *Conn) ReadOnly() (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readOnly, c.readOnlySet
}

// SetReadOnly records session read-only state
func (c *Conn) SetReadOnly(readOnly bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readOnlySet = true
	c.readOnly = readOnly
	return nil
}

func (c *Conn) takeErr() error {
	err := c.nextErr
	c.nextErr = nil
	return err
}

func (c *Conn) do(op, detail string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeErr(); err != nil {
		c.driver.logf("%s[%d] failing %s: %s", c.DSN, c.id, op, err)
		return err
	}
	switch op {
	case "exec", "query":
		c.execs = append(c.execs, detail)
	case "ping":
		c.pings++
	case "begin":
		c.begins++
	case "commit":
		c.commits++
	case "rollback":
		c.rollbacks++
	}
	c.driver.logf("%s[%d] %s: %s", c.DSN, c.id, op, detail)
	return nil
}

// Prepare prepares a statement bound to this connection
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	c.mu.Lock()
	c.stmts++
	c.mu.Unlock()
	return &stmt{conn: c, query: query}, nil
}

// Close closes the connection
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeErr(); err != nil {
		return err
	}
	c.closed = true
	c.driver.logf("%s[%d] closed", c.DSN, c.id)
	return nil
}

// Begin starts a transaction
func (c *Conn) Begin() (driver.Tx, error) {
	if err := c.do("begin", ""); err != nil {
		return nil, err
	}
	return &tx{conn: c}, nil
}

// BeginTx starts a transaction
func (c *Conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if err := c.do("begin", ""); err != nil {
		return nil, err
	}
	return &tx{conn: c}, nil
}

// ExecContext executes a statement that returns no rows
func (c *Conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if err := c.do("exec", query); err != nil {
		return nil, err
	}
	return result{}, nil
}

// QueryContext executes a statement that may return rows
func (c *Conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if err := c.do("query", query); err != nil {
		return nil, err
	}
	return &rows{}, nil
}

// PingConn is a Conn that additionally implements driver.Pinger.
type PingConn struct {
	*Conn
}

// Ping probes the connection
func (c *PingConn) Ping(ctx context.Context) error {
	return c.do("ping", "")
}
