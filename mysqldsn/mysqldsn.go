// Package mysqldsn provides the MySQL-specific collaborators for the zkmysql
// driver: an EndpointMapper that splices a resolved master endpoint into a
// mysql DSN template, and a Classifier over the mysql driver's error
// taxonomy.
package mysqldsn

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	zkmysql "github.com/dgarson/zk-mysql-connector"
)

// Mapper builds a mysql DSN targeting the resolved endpoint. The template
// DSN from the compound DSN supplies credentials, schema and parameters; its
// address is replaced with the endpoint. An empty template connects as-is
// over TCP.
func Mapper(endpoint, templateDSN string) (string, error) {
	if templateDSN == "" {
		cfg := mysql.NewConfig()
		cfg.Net = "tcp"
		cfg.Addr = endpoint
		return cfg.FormatDSN(), nil
	}
	cfg, err := mysql.ParseDSN(templateDSN)
	if err != nil {
		return "", fmt.Errorf("mysqldsn: parsing template DSN: %w", err)
	}
	cfg.Net = "tcp"
	cfg.Addr = endpoint
	return cfg.FormatDSN(), nil
}

// Classify maps mysql driver errors onto the proxy's failure taxonomy:
// invalid-connection errors and SQL states in the connection exception class
// trigger failover, other server errors pass through as query-level.
func Classify(err error) zkmysql.FailureKind {
	if err == nil {
		return zkmysql.FailureUnknown
	}
	if errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, driver.ErrBadConn) {
		return zkmysql.FailureConnection
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		if myErr.SQLState[0] == '0' && myErr.SQLState[1] == '8' {
			return zkmysql.FailureConnection
		}
		return zkmysql.FailureQuery
	}
	return zkmysql.FailureUnknown
}

// NewDriver wraps the mysql driver with a master-tracking proxy wired with
// this package's mapper and classifier.
func NewDriver(resolver zkmysql.Resolver, opts ...zkmysql.Option) *zkmysql.Driver {
	opts = append([]zkmysql.Option{
		zkmysql.WithEndpointMapper(Mapper),
		zkmysql.WithClassifier(Classify),
	}, opts...)
	return zkmysql.New(&mysql.MySQLDriver{}, resolver, opts...)
}

// Register registers a master-tracking mysql driver under the given name for
// use with sql.Open.
func Register(name string, resolver zkmysql.Resolver, opts ...zkmysql.Option) {
	sql.Register(name, NewDriver(resolver, opts...))
}
