package registry

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	base := Config{
		Servers:     []string{"zk1:2181"},
		Datacenter:  "dc1",
		Environment: "prod",
	}

	assert.NoError(t, base.Validate())

	noServers := base
	noServers.Servers = nil
	assert.Error(t, noServers.Validate())

	noDC := base
	noDC.Datacenter = ""
	assert.Error(t, noDC.Validate())

	noEnv := base
	noEnv.Environment = ""
	assert.Error(t, noEnv.Validate())

	badFormat := base
	badFormat.PathFormat = "/%s/%s"
	assert.Error(t, badFormat.Validate())
}

func TestConfigPaths(t *testing.T) {
	cfg := Config{Datacenter: "dc1", Environment: "prod"}

	assert.Equal(t, "/dc1/prod/orders", cfg.NodePath("orders"))
	assert.Equal(t, "/dc1/prod", cfg.WatchPath())
	assert.Equal(t, "orders", cfg.nodeName("orders"))
}

func TestConfigCustomPathFormat(t *testing.T) {
	cfg := Config{
		Servers:     []string{"zk1:2181"},
		Datacenter:  "dc1",
		Environment: "prod",
		PathFormat:  "/databases/%s/%s/masters/%s",
	}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/databases/dc1/prod/masters/orders", cfg.NodePath("orders"))
	assert.Equal(t, "/databases/dc1/prod/masters", cfg.WatchPath())
}

func TestConfigFromViper(t *testing.T) {
	v := viper.New()
	v.Set("servers", []string{"zk1:2181", "zk2:2181"})
	v.Set("datacenter", "dc1")
	v.Set("environment", "prod")
	v.Set("cacheTTL", "5s")

	cfg, err := ConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, []string{"zk1:2181", "zk2:2181"}, cfg.Servers)
	assert.Equal(t, "dc1", cfg.Datacenter)
	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, 5*time.Second, cfg.CacheTTL)

	// defaults fill in
	assert.Equal(t, DefaultPathFormat, cfg.PathFormat)
	assert.Equal(t, DefaultSessionTimeout, cfg.SessionTimeout)
	assert.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)
	assert.NotNil(t, cfg.Logger)

	_, err = ConfigFromViper(viper.New())
	assert.Error(t, err)
}
