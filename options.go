package zkmysql

import (
	log "github.com/sirupsen/logrus"
)

// Option is a configuration option for a Driver instance
type Option func(*Driver)

// WithEndpointMapper creates an Option for the given EndpointMapper
// implementation. Without it, resolved endpoints are used verbatim as the
// delegate DSN.
func WithEndpointMapper(m EndpointMapper) Option {
	return func(d *Driver) {
		d.mapper = m
	}
}

// WithClassifier creates an Option installing a backend-specific error
// classifier. The classifier is consulted before the default chain.
func WithClassifier(c Classifier) Option {
	return func(d *Driver) {
		d.classifier = c
	}
}

// WithAutoReconnect creates an Option controlling whether a connection that
// was closed by a failure (rather than by the caller) transparently reopens
// on its next use.
func WithAutoReconnect(enabled bool) Option {
	return func(d *Driver) {
		d.autoReconnect = enabled
	}
}

// WithLogger creates an Option for the given logger.
//
// The logger will be called with near-trace-level debugging to inspect
// proxying and failover behaviour.
func WithLogger(l log.FieldLogger) Option {
	return func(d *Driver) {
		d.log = l
	}
}
