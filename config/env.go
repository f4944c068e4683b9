package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Names of the environment variables a replica reads.
const (
	EnvPostgresPassword = "HANDOFF_DB_PASSWORD"
	EnvNodeName         = "HANDOFF_NODE_NAME"
	EnvListenAddr       = "HANDOFF_LISTEN_ADDR"
)

// Structs

// Env holds information specific to the host a
// replica is deployed on. This allows many replicas
// to share one config file and keeps secrets out of
// it. Use the .env file or the process environment
// to populate these values.
type Env struct {
	PostgresPassword string
	NodeName         string
	ListenAddr       string
}

// Functions

// ReadEnv takes all values from the process environment.
func ReadEnv() *Env {

	return &Env{
		PostgresPassword: os.Getenv(EnvPostgresPassword),
		NodeName:         os.Getenv(EnvNodeName),
		ListenAddr:       os.Getenv(EnvListenAddr),
	}
}

// LoadEnv reads in all values defined in the
// supplied .env file. Variables already present
// in the process environment take precedence.
func LoadEnv(envFile string) (*Env, error) {

	// Load environment file.
	err := godotenv.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("[config.LoadEnv] Failed to read in .env file with: %v", err)
	}

	return ReadEnv(), nil
}

// Apply overrides the replica name and listen
// address of conf with the ones set in e.
func (e *Env) Apply(conf *Config) {

	if e.NodeName != "" {
		conf.Node.Name = e.NodeName
	}

	if e.ListenAddr != "" {
		conf.Node.ListenAddr = e.ListenAddr
	}
}
