package config_test

import (
	"testing"

	"github.com/numbleroot/handoff/config"
)

// Functions

// TestLoadEnv executes a black-box test on the
// implemented functionalities to load a .env file.
func TestLoadEnv(t *testing.T) {

	// Execute main function.
	env, err := config.LoadEnv("test.env")
	if err != nil {
		t.Fatalf("[config.TestLoadEnv] Expected success while loading test.env but received: '%v'\n", err)
	}

	// Check for test success.
	if env.PostgresPassword != "works" {
		t.Fatalf("[config.TestLoadEnv] Expected '%s' but received '%s'\n", "works", env.PostgresPassword)
	}

	// Overrides apply to the node section only.
	conf := &config.Config{Node: config.Node{Name: "root-1", ListenAddr: "127.0.0.1:7700"}}
	env.Apply(conf)

	if conf.Node.Name != "leaf-7" || conf.Node.ListenAddr != "127.0.0.1:7700" {
		t.Fatalf("[config.TestLoadEnv] Expected name 'leaf-7' at '127.0.0.1:7700' but received '%s' at '%s'\n", conf.Node.Name, conf.Node.ListenAddr)
	}

	// A missing file is reported.
	if _, err := config.LoadEnv("missing.env"); err == nil {
		t.Fatal("[config.TestLoadEnv] Expected fail while loading missing.env but received 'nil' error.")
	}
}
