/*
Package zkmysql provides an implementation of "database/sql/driver".Driver that keeps connections pointed at the master currently published for a logical database in a coordination service, switching over transparently when the master moves.

Goal

To let applications keep using one logical database handle while the physical master changes, without a static host list and without userland changes in database usage.

Basics

zkmysql achieves its goal by being an implementation of database/sql/driver.Driver. It doesn't provide any direct database driver facilities, and instead wraps around a
delegate driver which provides the concrete implementation, plus a Resolver which answers "who is the master for database X right now":

	reg, _ := registry.Open(registry.Config{Servers: []string{"zk1:2181"}, Datacenter: "dc1", Environment: "prod"})
	sql.Register("zkmysql", zkmysql.New(&mysql.MySQLDriver{}, reg, zkmysql.WithEndpointMapper(mysqldsn.Mapper)))
	db, _ := sql.Open("zkmysql", zkmysql.MakeCompoundDSN("orders", "user:pass@tcp(placeholder)/orders"))

DSNs

The DSN given to sql.Open() is a "compound" DSN: the database identifier, optionally followed by a semicolon (;) and a DSN template for the delegate driver.
The resolved master endpoint is spliced into the template by the configured EndpointMapper; without a mapper the endpoint is used as the delegate DSN verbatim.

Failover

Each connection owns exactly one delegate connection. A call that fails with a connection-level error (per the configured Classifier) triggers exactly one
teardown-and-reconnect; the failing call's error is still returned to its caller, and the next call runs against the fresh connection. Additionally, at every
transaction boundary (any statement in auto-commit mode, or an explicit commit/rollback) the held endpoint is compared with the resolver's current answer and
the connection proactively switches over if the master moved. Explicitly set read-only state survives the switch.

Connection Pooling

Package "database/sql" provides a builtin connection pool when sql.Open() is used. zkmysql connections implement driver.Validator, reporting themselves invalid
once they no longer target the current master, so the pool evicts and replaces them. The validator package offers the same checks for external pools.
*/
package zkmysql
