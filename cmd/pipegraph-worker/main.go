// Command pipegraph-worker is the out-of-process worker plugin.ProcessPool
// spawns one-per-job and plugin.Distributed dials as a long-lived RPC
// service. Both modes resolve a job's ComputeName against
// plugin.DefaultRegistry, so every compute a caller intends to run
// out-of-process must be registered by an imported package's init, the way
// examples/computes registers the demo computes below.
package main

import (
	"bytes"
	"context"
	"encoding/gob"
	"flag"
	"fmt"
	"io"
	"net"
	"net/rpc"
	"os"

	"github.com/rs/zerolog"

	_ "github.com/pipegraph/pipegraph/examples/computes"
	"github.com/pipegraph/pipegraph/plugin"
)

func main() {
	mode := flag.String("mode", "process", "process (one job over stdin/stdout) or distributed (long-lived RPC server)")
	addr := flag.String("addr", ":9736", "listen address for -mode=distributed")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("component", "pipegraph-worker").Logger()

	switch *mode {
	case "process":
		if err := runProcess(os.Stdin, os.Stdout); err != nil {
			logger.Error().Err(err).Msg("job failed")
			os.Exit(1)
		}
		logger.Info().Msg("job done")
	case "distributed":
		if err := runDistributed(*addr, logger); err != nil {
			logger.Error().Err(err).Msg("server failed")
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "pipegraph-worker: unknown -mode %q\n", *mode)
		os.Exit(1)
	}
}

func runProcess(in io.Reader, out io.Writer) error {
	var job plugin.RemoteJob
	if err := gob.NewDecoder(in).Decode(&job); err != nil {
		return fmt.Errorf("decode job: %w", err)
	}
	resp := plugin.RunRemote(context.Background(), plugin.DefaultRegistry, job)
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(resp); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	_, err := out.Write(buf.Bytes())
	return err
}

func runDistributed(addr string, logger zerolog.Logger) error {
	server := rpc.NewServer()
	if err := server.Register(&plugin.Worker{}); err != nil {
		return fmt.Errorf("register worker service: %w", err)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	logger.Info().Str("addr", addr).Msg("listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			logger.Warn().Err(err).Msg("accept failed")
			continue
		}
		go server.ServeConn(conn)
	}
}
