package config

import (
	"fmt"

	"path/filepath"

	"github.com/BurntSushi/toml"
	uuid "github.com/satori/go.uuid"
)

// Constants

// Storage adapters a replica can persist its state with.
const (
	AdapterFile     = "file"
	AdapterPostgres = "postgres"
)

// Defaults applied to omitted values.
const (
	DefaultGossipInterval = 2000
	DefaultStorageDir     = "state"
)

// Structs

// Config holds all information parsed from
// supplied config file.
type Config struct {
	Node    Node
	TLS     TLS
	Storage Storage
	Peers   map[string]string
}

// Node describes the replica this process runs.
type Node struct {
	Name             string
	Tier             uint32
	SourceClock      uint32
	DestinationClock uint32
	ListenAddr       string
	PrometheusAddr   string
	GossipInterval   int
	GossipTimeout    int
}

// TLS points to the certificates used to secure
// gossip between replicas. If all fields are empty,
// replicas talk over plain connections.
type TLS struct {
	CertLoc     string
	KeyLoc      string
	RootCertLoc string
}

// Storage configures where a replica persists
// its state between restarts.
type Storage struct {
	Adapter  string
	Dir      string
	Postgres Postgres
}

// Postgres defines parameters for connecting to a
// PostgreSQL database storing replica states. The
// password is taken from the environment, see Env.
type Postgres struct {
	IP       string
	Port     string
	Database string
	User     string
	SSLMode  string
}

// Functions

// Enabled reports whether TLS material was configured.
func (t TLS) Enabled() bool {
	return t.CertLoc != "" || t.KeyLoc != "" || t.RootCertLoc != ""
}

// LoadConfig takes in the path to the main config
// file in TOML syntax and places the values from the
// file in the corresponding struct.
func LoadConfig(configFile string) (*Config, error) {

	conf := new(Config)

	// Parse values from TOML file into struct.
	_, err := toml.DecodeFile(configFile, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read in TOML config file at '%s' with: %v", configFile, err)
	}

	// Replicas without a configured name are
	// short-lived ones and receive a random one.
	if conf.Node.Name == "" {
		conf.Node.Name = uuid.NewV4().String()
	}

	if conf.Node.ListenAddr == "" {
		return nil, fmt.Errorf("node '%s' needs a ListenAddr", conf.Node.Name)
	}

	if conf.Node.GossipInterval < 0 || conf.Node.GossipTimeout < 0 {
		return nil, fmt.Errorf("gossip interval and timeout must not be negative")
	}

	if conf.Node.GossipInterval == 0 {
		conf.Node.GossipInterval = DefaultGossipInterval
	}

	if conf.Node.GossipTimeout == 0 {
		conf.Node.GossipTimeout = conf.Node.GossipInterval / 2
	}

	if conf.Peers == nil {
		conf.Peers = make(map[string]string)
	}

	// A replica never gossips with itself.
	if _, found := conf.Peers[conf.Node.Name]; found {
		return nil, fmt.Errorf("node '%s' lists itself as peer", conf.Node.Name)
	}

	for name, addr := range conf.Peers {
		if addr == "" {
			return nil, fmt.Errorf("peer '%s' has an empty address", name)
		}
	}

	switch conf.Storage.Adapter {
	case "":
		conf.Storage.Adapter = AdapterFile
	case AdapterFile, AdapterPostgres:
	default:
		return nil, fmt.Errorf("unknown storage adapter '%s'", conf.Storage.Adapter)
	}

	if conf.Storage.Dir == "" {
		conf.Storage.Dir = DefaultStorageDir
	}

	if conf.Storage.Postgres.SSLMode == "" {
		conf.Storage.Postgres.SSLMode = "disable"
	}

	// Prefix each relative path in config with the
	// absolute path of the directory the file lives in.
	base, err := filepath.Abs(filepath.Dir(configFile))
	if err != nil {
		return nil, fmt.Errorf("could not get absolute path of config directory: %v", err)
	}

	conf.TLS.CertLoc = absolute(base, conf.TLS.CertLoc)
	conf.TLS.KeyLoc = absolute(base, conf.TLS.KeyLoc)
	conf.TLS.RootCertLoc = absolute(base, conf.TLS.RootCertLoc)
	conf.Storage.Dir = absolute(base, conf.Storage.Dir)

	return conf, nil
}

// absolute joins path onto base unless path is
// empty or already absolute.
func absolute(base string, path string) string {

	if path == "" || filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(base, path)
}
