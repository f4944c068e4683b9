package config_test

import (
	"testing"

	"path/filepath"

	"github.com/numbleroot/handoff/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Functions

// TestLoadConfig executes a black-box test on the
// implemented functionalities to load a TOML config file.
func TestLoadConfig(t *testing.T) {

	// Try to load a broken config file. This should fail.
	_, err := config.LoadConfig("broken-config.toml")
	if err == nil {
		t.Fatal("[config.TestLoadConfig] Expected fail while loading broken-config.toml but received 'nil' error.")
	}

	// Now load a valid config.
	conf, err := config.LoadConfig("test-config.toml")
	if err != nil {
		t.Fatalf("[config.TestLoadConfig] Expected success while loading test-config.toml but received: '%v'\n", err)
	}

	base, err := filepath.Abs(".")
	require.NoError(t, err)

	assert.Equal(t, "root-1", conf.Node.Name)
	assert.Equal(t, uint32(0), conf.Node.Tier)
	assert.Equal(t, uint32(2), conf.Node.SourceClock)
	assert.Equal(t, uint32(5), conf.Node.DestinationClock)
	assert.Equal(t, "127.0.0.1:7700", conf.Node.ListenAddr)
	assert.Equal(t, "127.0.0.1:9700", conf.Node.PrometheusAddr)
	assert.Equal(t, 500, conf.Node.GossipInterval)
	assert.Equal(t, 250, conf.Node.GossipTimeout)

	assert.True(t, conf.TLS.Enabled())
	assert.Equal(t, filepath.Join(base, "private/root-1-cert.pem"), conf.TLS.CertLoc)
	assert.Equal(t, "/very/complicated/test/directory/root-1-key.pem", conf.TLS.KeyLoc)
	assert.Equal(t, filepath.Join(base, "private/root-cert.pem"), conf.TLS.RootCertLoc)

	assert.Equal(t, config.AdapterPostgres, conf.Storage.Adapter)
	assert.Equal(t, filepath.Join(base, "state"), conf.Storage.Dir)
	assert.Equal(t, "handoff", conf.Storage.Postgres.Database)
	assert.Equal(t, "disable", conf.Storage.Postgres.SSLMode)

	assert.Equal(t, map[string]string{
		"root-2": "127.0.0.1:7701",
		"mid-1":  "127.0.0.1:7710",
	}, conf.Peers)
}

// TestLoadConfigDefaults checks the values filled
// in for a config only naming the bare minimum.
func TestLoadConfigDefaults(t *testing.T) {

	conf, err := config.LoadConfig("minimal-config.toml")
	require.NoError(t, err)

	base, err := filepath.Abs(".")
	require.NoError(t, err)

	assert.NotEmpty(t, conf.Node.Name, "expected a generated name")
	assert.Equal(t, uint32(2), conf.Node.Tier)
	assert.Equal(t, config.DefaultGossipInterval, conf.Node.GossipInterval)
	assert.Equal(t, config.DefaultGossipInterval/2, conf.Node.GossipTimeout)
	assert.False(t, conf.TLS.Enabled())
	assert.Equal(t, config.AdapterFile, conf.Storage.Adapter)
	assert.Equal(t, filepath.Join(base, config.DefaultStorageDir), conf.Storage.Dir)
	assert.NotNil(t, conf.Peers)
	assert.Empty(t, conf.Peers)

	// Generated names differ between loads.
	again, err := config.LoadConfig("minimal-config.toml")
	require.NoError(t, err)
	assert.NotEqual(t, conf.Node.Name, again.Node.Name)
}

// TestLoadConfigRejects checks semantically invalid configs.
func TestLoadConfigRejects(t *testing.T) {

	for _, file := range []string{
		"self-peer-config.toml",
		"adapter-config.toml",
		"does-not-exist.toml",
	} {
		_, err := config.LoadConfig(file)
		assert.Errorf(t, err, "expected loading %s to fail", file)
	}
}
