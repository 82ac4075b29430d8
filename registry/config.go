package registry

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// DefaultPathFormat is the node-path template: datacenter, environment,
	// databaseID.
	DefaultPathFormat = "/%s/%s/%s"

	// DefaultSessionTimeout mirrors the coordination session timeout used by
	// the upstream deployments.
	DefaultSessionTimeout = 40 * time.Second

	// DefaultConnectTimeout bounds each dial attempt to a coordination
	// server.
	DefaultConnectTimeout = 250 * time.Millisecond
)

// Config carries everything needed to open a Registry.
type Config struct {
	// Servers are the coordination service addresses. Required.
	Servers []string

	// Datacenter and Environment parameterise the node-path template.
	// Required.
	Datacenter  string
	Environment string

	// PathFormat is the node-path template with three %s slots for
	// datacenter, environment and databaseID, in that order. The databaseID
	// must occupy the final path segment. Defaults to DefaultPathFormat.
	PathFormat string

	// CacheTTL bounds the staleness of cached present resolutions. Zero
	// disables the cache; every lookup then reads the live snapshot.
	CacheTTL time.Duration

	// SessionTimeout is the coordination session timeout.
	SessionTimeout time.Duration

	// ConnectTimeout bounds each dial attempt to a coordination server.
	ConnectTimeout time.Duration

	// Logger receives registry lifecycle and watch events. Defaults to the
	// standard logger.
	Logger log.FieldLogger
}

func (c *Config) applyDefaults() {
	if c.PathFormat == "" {
		c.PathFormat = DefaultPathFormat
	}
	if !strings.HasPrefix(c.PathFormat, "/") {
		c.PathFormat = "/" + c.PathFormat
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Logger == nil {
		c.Logger = log.StandardLogger()
	}
}

// Validate reports the first missing or invalid required setting.
func (c Config) Validate() error {
	if len(c.Servers) == 0 {
		return errors.New("registry: at least one coordination server address is required")
	}
	if c.Datacenter == "" {
		return errors.New("registry: datacenter is required")
	}
	if c.Environment == "" {
		return errors.New("registry: environment is required")
	}
	if n := strings.Count(c.PathFormat, "%s"); c.PathFormat != "" && n != 3 {
		return errors.Errorf("registry: path format %q must contain exactly three %%s slots, has %d", c.PathFormat, n)
	}
	return nil
}

// NodePath returns the node path holding the master endpoint for a database.
func (c Config) NodePath(databaseID string) string {
	format := c.PathFormat
	if format == "" {
		format = DefaultPathFormat
	}
	p := fmt.Sprintf(format, c.Datacenter, c.Environment, databaseID)
	return strings.TrimSuffix(p, "/")
}

// WatchPath returns the directory whose children are watched: the parent of
// every database's master node.
func (c Config) WatchPath() string {
	return path.Dir(c.NodePath("_"))
}

// nodeName returns the child name under WatchPath for a database.
func (c Config) nodeName(databaseID string) string {
	return path.Base(c.NodePath(databaseID))
}

// ConfigFromViper loads a Config from a viper instance. Recognised keys:
// servers, datacenter, environment, pathFormat, cacheTTL, sessionTimeout,
// connectTimeout.
func ConfigFromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Servers:        v.GetStringSlice("servers"),
		Datacenter:     v.GetString("datacenter"),
		Environment:    v.GetString("environment"),
		PathFormat:     v.GetString("pathFormat"),
		CacheTTL:       v.GetDuration("cacheTTL"),
		SessionTimeout: v.GetDuration("sessionTimeout"),
		ConnectTimeout: v.GetDuration("connectTimeout"),
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
