package zkmysql

import (
	"database/sql/driver"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Resolver reports the master endpoint currently published for a database.
// The second return is false when no master is known.
type Resolver interface {
	Resolve(databaseID string) (endpoint string, ok bool)
}

// EndpointMapper builds a delegate-driver DSN for a resolved master endpoint.
// templateDSN is the (possibly empty) DSN template carried in the compound
// DSN handed to sql.Open.
type EndpointMapper func(endpoint, templateDSN string) (string, error)

// Driver is a "database/sql/driver".Driver implementation that keeps every
// logical connection pointed at the master currently published by the
// resolver, transparently replacing the delegate connection when the master
// moves.
type Driver struct {
	proxiedDriver driver.Driver
	resolver      Resolver
	mapper        EndpointMapper
	classifier    Classifier
	autoReconnect bool
	log           log.FieldLogger
}

// New wraps a lower level delegate "database/sql/driver".Driver with a
// master-tracking proxy driver. The resolver is consulted on every connect,
// failover and transaction boundary.
func New(delegate driver.Driver, resolver Resolver, opts ...Option) *Driver {
	d := &Driver{proxiedDriver: delegate, resolver: resolver}
	for _, o := range opts {
		o(d)
	}

	// defaults
	if d.mapper == nil {
		d.mapper = func(endpoint, _ string) (string, error) { return endpoint, nil }
	}
	if d.log == nil {
		d.log = log.StandardLogger()
	}

	return d
}

// Open implements "database/sql/driver".Driver.Open(), taking a compound DSN
// of the form "databaseID;templateDSN". Open fails when the databaseID is
// blank or when no master is currently resolvable for it; no delegate
// connection is dialled in either case.
func (d *Driver) Open(name string) (driver.Conn, error) {
	databaseID, templateDSN := ParseCompoundDSN(name)
	if databaseID == "" {
		return nil, ErrBlankDatabaseID
	}
	return newConn(d, databaseID, templateDSN)
}

// Parent returns the wrapped Driver
func (d *Driver) Parent() driver.Driver {
	return d.proxiedDriver
}

// classify runs the configured classifier, if any, falling back to the
// default chain when it has no opinion.
func (d *Driver) classify(err error) FailureKind {
	if d.classifier != nil {
		if kind := d.classifier(err); kind != FailureUnknown {
			return kind
		}
	}
	return DefaultClassifier(err)
}

// MakeCompoundDSN combines a database identifier and a delegate DSN template
// into a compound DSN
func MakeCompoundDSN(databaseID, templateDSN string) string {
	if templateDSN == "" {
		return databaseID
	}
	return databaseID + ";" + templateDSN
}

// ParseCompoundDSN breaks up a compound DSN into the database identifier and
// the delegate DSN template
func ParseCompoundDSN(dsn string) (string, string) {
	databaseID, templateDSN, _ := strings.Cut(dsn, ";")
	return strings.TrimSpace(databaseID), templateDSN
}
