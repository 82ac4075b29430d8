package zkmysql

import (
	"context"
	"database/sql/driver"
	"errors"
	"sync"
)

// ErrNamedParametersNotSupported is provided when named parameters are used
// but unsupported by the underlying driver
var ErrNamedParametersNotSupported = errors.New("zkmysql: driver does not support the use of Named Parameters")

// stmt is a lazily prepared statement. It binds to the active delegate
// connection at first use and transparently re-binds whenever the connection
// has been replaced by a failover since.
type stmt struct {
	conn  *conn
	query string

	mu         sync.Mutex
	bound      driver.Stmt
	generation uint64
}

// bind prepares the statement against the active delegate connection,
// re-preparing if the connection changed since the last binding.
func (s *stmt) bind(ctx context.Context) (driver.Stmt, uint64, error) {
	pc, gen, err := s.conn.activeConn()
	if err != nil {
		return nil, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bound != nil && s.generation == gen {
		return s.bound, gen, nil
	}
	if s.bound != nil {
		// bound to a superseded connection
		s.conn.logger().Debug("re-binding statement after failover")
		_ = s.bound.Close()
		s.bound = nil
	}

	var ps driver.Stmt
	if p, ok := pc.(driver.ConnPrepareContext); ok {
		ps, err = p.PrepareContext(ctx, s.query)
	} else {
		ps, err = pc.Prepare(s.query)
	}
	if err != nil {
		s.conn.handleError(err, gen)
		return nil, 0, err
	}
	s.bound = ps
	s.generation = gen
	return ps, gen, nil
}

// Close closes the underlying statement
func (s *stmt) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bound != nil {
		bound := s.bound
		s.bound = nil
		return bound.Close()
	}
	return nil
}

// NumInput returns the number of placeholder parameters if the statement has
// already been prepared
func (s *stmt) NumInput() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bound != nil {
		return s.bound.NumInput()
	}
	return -1
}

// Exec executes a query that doesn't return rows
func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	ps, gen, err := s.bind(context.Background())
	if err != nil {
		return nil, err
	}
	res, err := ps.Exec(args)
	if err != nil {
		s.conn.handleError(err, gen)
		return nil, err
	}
	if err := s.conn.afterBoundary(); err != nil {
		return nil, err
	}
	return res, nil
}

// Query executes a query that may return rows
func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	ps, gen, err := s.bind(context.Background())
	if err != nil {
		return nil, err
	}
	rows, err := ps.Query(args)
	if err != nil {
		s.conn.handleError(err, gen)
		return nil, err
	}
	if err := s.conn.afterBoundary(); err != nil {
		return nil, err
	}
	return rows, nil
}

// ExecContext executes a query that doesn't return rows
func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	ps, gen, err := s.bind(ctx)
	if err != nil {
		return nil, err
	}

	var res driver.Result
	if e, ok := ps.(driver.StmtExecContext); ok {
		res, err = e.ExecContext(ctx, args)
	} else {
		var argValues []driver.Value
		argValues, err = namedValuesToValues(args)
		if err != nil {
			return nil, err
		}
		res, err = ps.Exec(argValues)
	}
	if err != nil {
		s.conn.handleError(err, gen)
		return nil, err
	}
	if err := s.conn.afterBoundary(); err != nil {
		return nil, err
	}
	return res, nil
}

// QueryContext executes a query that may return rows
func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	ps, gen, err := s.bind(ctx)
	if err != nil {
		return nil, err
	}

	var rows driver.Rows
	if q, ok := ps.(driver.StmtQueryContext); ok {
		rows, err = q.QueryContext(ctx, args)
	} else {
		var argValues []driver.Value
		argValues, err = namedValuesToValues(args)
		if err != nil {
			return nil, err
		}
		rows, err = ps.Query(argValues)
	}
	if err != nil {
		s.conn.handleError(err, gen)
		return nil, err
	}
	if err := s.conn.afterBoundary(); err != nil {
		return nil, err
	}
	return rows, nil
}

func namedValuesToValues(named []driver.NamedValue) ([]driver.Value, error) {
	values := make([]driver.Value, len(named))
	for i, n := range named {
		if n.Name != "" {
			return nil, ErrNamedParametersNotSupported
		}
		values[i] = n.Value
	}
	return values, nil
}
