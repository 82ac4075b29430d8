// Package sqldrivermock provides a scriptable, endpoint-aware implementation
// of "database/sql/driver".Driver for exercising failover behaviour without a
// real database: dials can be refused per DSN and individual connections can
// be told to fail their next operation.
package sqldrivermock

import (
	"database/sql/driver"
	"fmt"
	"sync"
)

// Driver is a mock implementation of database/sql/driver.Driver
type Driver struct {
	Logf func(string, ...interface{})

	// DisablePing makes opened connections not implement driver.Pinger.
	DisablePing bool

	mu       sync.Mutex
	conns    int
	opened   []*Conn
	dialErrs map[string]error
}

// Open opens a new mock connection to the given DSN
func (d *Driver) Open(name string) (driver.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.dialErrs[name]; err != nil {
		d.logf("refusing to open %s: %s", name, err)
		return nil, err
	}

	d.conns++
	c := &Conn{driver: d, DSN: name, id: d.conns}
	d.opened = append(d.opened, c)
	d.logf("opening: %s[%d]", name, d.conns)
	if d.DisablePing {
		return c, nil
	}
	return &PingConn{Conn: c}, nil
}

// FailDial makes subsequent opens of the given DSN fail with err. A nil err
// clears the failure.
func (d *Driver) FailDial(dsn string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErrs == nil {
		d.dialErrs = map[string]error{}
	}
	if err == nil {
		delete(d.dialErrs, dsn)
		return
	}
	d.dialErrs[dsn] = err
}

// Opened returns every connection opened so far, in order.
func (d *Driver) Opened() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Conn, len(d.opened))
	copy(out, d.opened)
	return out
}

// Last returns the most recently opened connection, or nil.
func (d *Driver) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.opened) == 0 {
		return nil
	}
	return d.opened[len(d.opened)-1]
}

func (d *Driver) logf(format string, args ...interface{}) {
	if d.Logf != nil {
		d.Logf(format, args...)
	}
}

// SQLStateError is an error carrying a five character SQLSTATE, mimicking
// what server-side driver errors expose.
type SQLStateError struct {
	State   string
	Message string
}

func (e *SQLStateError) Error() string {
	return fmt.Sprintf("sqldrivermock: [%s] %s", e.State, e.Message)
}

// SQLState returns the SQLSTATE code
func (e *SQLStateError) SQLState() string { return e.State }
