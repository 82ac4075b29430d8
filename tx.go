package zkmysql

import (
	"database/sql/driver"
)

// tx wraps a delegate transaction. Commit and rollback are transaction
// boundaries: after either completes, the master resolution is re-checked
// and the connection switched over if it moved.
type tx struct {
	conn       *conn
	proxiedTx  driver.Tx
	generation uint64
}

func (t *tx) Commit() error {
	err := t.proxiedTx.Commit()
	t.conn.clearTx(t)
	if err != nil {
		t.conn.handleError(err, t.generation)
		return err
	}
	return t.conn.afterTxBoundary()
}

func (t *tx) Rollback() error {
	err := t.proxiedTx.Rollback()
	t.conn.clearTx(t)
	if err != nil {
		t.conn.handleError(err, t.generation)
		return err
	}
	return t.conn.afterTxBoundary()
}
