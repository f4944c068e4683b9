// Command generate-pki builds the internal PKI of a
// handoff deployment. It writes a root certificate and
// one certificate per replica config passed as argument,
// valid for the host the replica listens on.
package main

import (
	"flag"
	"net"
	"os"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/numbleroot/handoff/config"
	"github.com/numbleroot/handoff/crypto"
)

// Functions

func main() {

	outDir := flag.String("out", "private", "Directory to write all certificates and keys to.")
	validFrom := flag.String("start-date", "", "Creation date formatted as Jan 1 15:04:05 2011")
	validFor := flag.Duration("duration", (90 * 24 * time.Hour), "Duration that certificates will be valid for")
	rsaBits := flag.Int("rsa-bits", 2048, "Size of RSA keys to generate")
	flag.Parse()

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))

	if flag.NArg() == 0 {
		level.Error(logger).Log("msg", "supply at least one replica config file as argument")
		os.Exit(1)
	}

	// If no start date supplied, assume now.
	notBefore := time.Now()
	if *validFrom != "" {

		var err error

		notBefore, err = time.Parse("Jan 2 15:04:05 2006", *validFrom)
		if err != nil {
			level.Error(logger).Log("msg", "failed to parse creation date of certificates", "err", err)
			os.Exit(1)
		}
	}

	err := os.MkdirAll(*outDir, 0700)
	if err != nil {
		level.Error(logger).Log("msg", "failed to create output directory", "err", err)
		os.Exit(2)
	}

	level.Info(logger).Log("msg", "generating root certificate", "dir", *outDir)

	pki, err := crypto.NewPKI(notBefore, *validFor, *rsaBits)
	if err != nil {
		level.Error(logger).Log("msg", "failed to generate root certificate", "err", err)
		os.Exit(3)
	}

	err = pki.WriteRoot(*outDir)
	if err != nil {
		level.Error(logger).Log("msg", "failed to write root certificate", "err", err)
		os.Exit(3)
	}

	for _, configFile := range flag.Args() {

		conf, err := config.LoadConfig(configFile)
		if err != nil {
			level.Error(logger).Log("msg", "failed to load replica config", "config", configFile, "err", err)
			os.Exit(4)
		}

		host, _, err := net.SplitHostPort(conf.Node.ListenAddr)
		if err != nil {
			level.Error(logger).Log("msg", "listen address of replica is malformed", "config", configFile, "err", err)
			os.Exit(4)
		}

		certPath, keyPath, err := pki.IssueNodeCert(*outDir, conf.Node.Name, []string{host, conf.Node.Name})
		if err != nil {
			level.Error(logger).Log("msg", "failed to issue replica certificate", "replica", conf.Node.Name, "err", err)
			os.Exit(5)
		}

		level.Info(logger).Log("msg", "issued certificate", "replica", conf.Node.Name, "cert", certPath, "key", keyPath)
	}
}
