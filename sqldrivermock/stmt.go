package sqldrivermock

import (
	"context"
	"database/sql/driver"
)

type stmt struct {
	conn   *Conn
	query  string
	closed bool
}

func (s *stmt) Close() error {
	s.closed = true
	return nil
}

func (s *stmt) NumInput() int {
	return -1
}

func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	if err := s.conn.do("exec", s.query); err != nil {
		return nil, err
	}
	return result{}, nil
}

func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	if err := s.conn.do("query", s.query); err != nil {
		return nil, err
	}
	return &rows{}, nil
}

func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if err := s.conn.do("exec", s.query); err != nil {
		return nil, err
	}
	return result{}, nil
}

func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if err := s.conn.do("query", s.query); err != nil {
		return nil, err
	}
	return &rows{}, nil
}
