package main

import (
	"flag"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"crypto/tls"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/numbleroot/handoff/comm"
	"github.com/numbleroot/handoff/config"
	"github.com/numbleroot/handoff/crypto"
	"github.com/numbleroot/handoff/node"
	"github.com/numbleroot/handoff/storage"
	"golang.org/x/net/context"
)

// Functions

// initLogger initializes a JSON gokit-logger set
// to the according log level supplied via cli flag.
func initLogger(loglevel string) log.Logger {

	logger := log.NewJSONLogger(log.NewSyncWriter(os.Stdout))
	logger = log.With(logger,
		"ts", log.DefaultTimestampUTC,
		"caller", log.DefaultCaller,
	)

	switch strings.ToLower(loglevel) {
	case "info":
		logger = level.NewFilter(logger, level.AllowInfo())
	case "warn":
		logger = level.NewFilter(logger, level.AllowWarn())
	case "error":
		logger = level.NewFilter(logger, level.AllowError())
	default:
		logger = level.NewFilter(logger, level.AllowDebug())
	}

	return logger
}

// initEnv reads secrets and host overrides from envFile.
// A missing file is only an error if the storage backend
// needs a password, otherwise the process environment
// is used alone.
func initEnv(conf *config.Config, envFile string) (*config.Env, error) {

	env, err := config.LoadEnv(envFile)
	if err != nil {

		if conf.Storage.Adapter == config.AdapterPostgres {
			return nil, err
		}

		return config.ReadEnv(), nil
	}

	return env, nil
}

// initTLS loads the internal TLS config if TLS
// material was configured. Otherwise it returns nil
// and replicas talk over plain connections.
func initTLS(conf *config.Config) (*tls.Config, error) {

	if !conf.TLS.Enabled() {
		return nil, nil
	}

	return crypto.NewInternalTLSConfig(conf.TLS.CertLoc, conf.TLS.KeyLoc, conf.TLS.RootCertLoc)
}

// dialPeers prepares one client per configured peer.
func dialPeers(conf *config.Config, tlsConfig *tls.Config) (map[string]node.Peer, error) {

	peers := make(map[string]node.Peer, len(conf.Peers))

	for name, addr := range conf.Peers {

		client, err := comm.Dial(addr, comm.ClientOptions(tlsConfig)...)
		if err != nil {

			for _, p := range peers {
				p.Close()
			}

			return nil, err
		}

		peers[name] = client
	}

	return peers, nil
}

// run starts the replica and blocks until it stopped.
// It returns the exit code of the process, so that all
// deferred cleanup runs before main exits.
func run(args []string) int {

	// Parse command-line flags.
	flags := flag.NewFlagSet("handoff", flag.ContinueOnError)
	configFlag := flags.String("config", "config.toml", "Provide path to configuration file in TOML syntax.")
	envFlag := flags.String("env", ".env", "Provide path to the .env file holding secrets.")
	loglevelFlag := flags.String("loglevel", "debug", "This flag sets the default logging level.")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	logger := initLogger(*loglevelFlag)

	// Read configuration from file.
	conf, err := config.LoadConfig(*configFlag)
	if err != nil {
		level.Error(logger).Log(
			"msg", "failed to load the config",
			"err", err,
		)
		return 1
	}

	env, err := initEnv(conf, *envFlag)
	if err != nil {
		level.Error(logger).Log(
			"msg", "failed to load the environment",
			"err", err,
		)
		return 2
	}
	env.Apply(conf)

	logger = log.With(logger, "replica", conf.Node.Name, "tier", conf.Node.Tier)

	tlsConfig, err := initTLS(conf)
	if err != nil {
		level.Error(logger).Log(
			"msg", "failed to load TLS material",
			"err", err,
		)
		return 3
	}

	store, err := storage.Open(conf.Storage, env)
	if err != nil {
		level.Error(logger).Log(
			"msg", "failed to open the storage backend",
			"adapter", conf.Storage.Adapter,
			"err", err,
		)
		return 4
	}
	store = storage.NewLoggingStore(store, log.With(logger, "component", "storage"))
	defer store.Close()

	peers, err := dialPeers(conf, tlsConfig)
	if err != nil {
		level.Error(logger).Log(
			"msg", "failed to prepare connections to peers",
			"err", err,
		)
		return 5
	}

	var service node.Service
	service, err = node.NewService(conf.Node, store, peers)
	if err != nil {
		level.Error(logger).Log(
			"msg", "failed to initialize the replica",
			"err", err,
		)

		for _, p := range peers {
			p.Close()
		}

		return 6
	}
	service = node.NewLoggingService(service, log.With(logger, "component", "node"))
	service = node.NewMetricsService(service, NewReplicaMetrics(conf.Node.PrometheusAddr))
	defer service.Close()

	socket, err := net.Listen("tcp", conf.Node.ListenAddr)
	if err != nil {
		level.Error(logger).Log(
			"msg", "failed to listen for gossip",
			"addr", conf.Node.ListenAddr,
			"err", err,
		)
		return 7
	}

	server := comm.NewServer(service, log.With(logger, "component", "comm"), comm.ServerOptions(tlsConfig)...)

	go runPromHTTP(logger, conf.Node.PrometheusAddr)

	go func() {
		if err := server.Serve(socket); err != nil {
			level.Error(logger).Log(
				"msg", "failed to serve gossip",
				"err", err,
			)
		}
	}()

	level.Info(logger).Log(
		"msg", "replica running",
		"addr", socket.Addr().String(),
		"peers", len(peers),
	)

	// Stop gossiping on SIGINT and SIGTERM. Run persists
	// the replica a last time before it returns.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = node.Run(ctx, service, time.Duration(conf.Node.GossipInterval)*time.Millisecond)

	server.GracefulStop()

	// Exchanges served while stopping are persisted as well.
	if err == nil {
		err = service.Persist()
	}

	if err != nil {
		level.Error(logger).Log(
			"msg", "failed to persist replica on shutdown",
			"err", err,
		)
		return 8
	}

	level.Info(logger).Log("msg", "replica stopped")

	return 0
}

func main() {

	// Set CPUs usable by handoff to all available.
	runtime.GOMAXPROCS(runtime.NumCPU())

	os.Exit(run(os.Args[1:]))
}
