package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/numbleroot/handoff/comm"
	"github.com/numbleroot/handoff/crypto"
	"github.com/pkg/errors"
	"golang.org/x/net/context"
)

// Structs

// result is the outcome of one evaluation run.
type result struct {
	Calls   int
	Failed  int
	Total   time.Duration
	Slowest time.Duration
	Value   int64
}

// Functions

// evaluate issues calls increments of times each at
// client and writes "<i>, <rtt>" lines to out.
func evaluate(ctx context.Context, client *comm.Client, calls int, times uint32, timeout time.Duration, out *os.File) (*result, error) {

	res := &result{Calls: calls}

	for i := 0; i < calls; i++ {

		callCtx, cancel := context.WithTimeout(ctx, timeout)

		start := time.Now()
		_, err := client.Increment(callCtx, times)
		rtt := time.Since(start)

		cancel()

		if err != nil {
			res.Failed++
			continue
		}

		res.Total += rtt
		if rtt > res.Slowest {
			res.Slowest = rtt
		}

		if out != nil {
			if _, err := fmt.Fprintf(out, "%d, %s\n", i, rtt); err != nil {
				return nil, errors.Wrap(err, "[evaluation] writing result line failed")
			}
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := client.Fetch(fetchCtx)
	if err != nil {
		return nil, err
	}
	res.Value = reply.Value

	return res, nil
}

func main() {

	addr := flag.String("addr", "127.0.0.1:7700", "Gossip address of the replica to evaluate.")
	output := flag.String("output", "", "File to append round-trip times to (optional).")
	calls := flag.Int("calls", 100, "Number of increment calls to send.")
	times := flag.Uint("times", 1, "Increments per call.")
	timeout := flag.Duration("timeout", 2*time.Second, "Timeout per call.")
	certLoc := flag.String("cert", "", "Client certificate for mutual TLS (optional).")
	keyLoc := flag.String("key", "", "Client key for mutual TLS (optional).")
	rootCertLoc := flag.String("root-cert", "", "Root certificate for mutual TLS (optional).")
	flag.Parse()

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))

	if *calls <= 0 || *times == 0 {
		level.Error(logger).Log("msg", "calls and times need to be positive")
		os.Exit(1)
	}

	opts := comm.ClientOptions(nil)

	if *certLoc != "" {

		tlsConfig, err := crypto.NewInternalTLSConfig(*certLoc, *keyLoc, *rootCertLoc)
		if err != nil {
			level.Error(logger).Log("msg", "failed to load TLS material", "err", err)
			os.Exit(1)
		}

		opts = comm.ClientOptions(tlsConfig)
	}

	client, err := comm.Dial(*addr, opts...)
	if err != nil {
		level.Error(logger).Log("msg", "failed to prepare connection", "err", err)
		os.Exit(2)
	}
	defer client.Close()

	var out *os.File
	if *output != "" {

		out, err = os.OpenFile(*output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			level.Error(logger).Log("msg", "failed to open output file", "err", err)
			os.Exit(3)
		}
		defer out.Close()
	}

	res, err := evaluate(context.Background(), client, *calls, uint32(*times), *timeout, out)
	if err != nil {
		level.Error(logger).Log("msg", "evaluation failed", "err", err)
		os.Exit(4)
	}

	mean := time.Duration(0)
	if succeeded := res.Calls - res.Failed; succeeded > 0 {
		mean = res.Total / time.Duration(succeeded)
	}

	level.Info(logger).Log(
		"msg", "evaluation done",
		"addr", client.Addr(),
		"calls", res.Calls,
		"failed", res.Failed,
		"mean", mean,
		"slowest", res.Slowest,
		"value", res.Value,
	)
}
