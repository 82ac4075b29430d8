package sqldrivermock

type tx struct {
	conn *Conn
}

func (t *tx) Commit() error {
	return t.conn.do("commit", "")
}

func (t *tx) Rollback() error {
	return t.conn.do("rollback", "")
}
