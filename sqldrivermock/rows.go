package sqldrivermock

import (
	"database/sql/driver"
	"io"
)

type rows struct {
	closed bool
}

func (r *rows) Columns() []string {
	return []string{}
}

func (r *rows) Close() error {
	r.closed = true
	return nil
}

func (r *rows) Next(dest []driver.Value) error {
	return io.EOF
}
