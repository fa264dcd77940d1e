package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/sjstein/tpMonitor/cmd/internal/subcmd"
	"github.com/sjstein/tpMonitor/log2"
	"github.com/sjstein/tpMonitor/monitor"
	telenet "github.com/sjstein/tpMonitor/tele/net"
	"github.com/sjstein/tpMonitor/tele/relay"
)

func main() {
	ctx, cancel := subcmd.SignalContext(context.Background())
	code := run(ctx, os.Args[1:], os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	opt, err := parseArgs(args, stderr)
	if err == flag.ErrHelp {
		return subcmd.ExitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "tpmonitor: %v\n", err)
		return subcmd.ExitUsage
	}

	log := log2.NewWriter(stderr, opt.level)
	log.SetFlags(subcmd.LogFlags(false))
	log.Debugf("options %s", opt.String())
	config := opt.config

	client, err := telenet.NewClient(&telenet.ClientOptions{
		ConnOptions: telenet.ConnOptions{
			Log:            log,
			NetworkTimeout: time.Duration(config.Monitor.NetworkTimeoutSec) * time.Second,
		},
		Addr:    opt.state.Addr(),
		Backoff: config.Backoff(),
	})
	if err != nil {
		log.Error(errors.ErrorStack(err))
		return subcmd.ExitError
	}

	var datalog *monitor.DataLog
	if opt.state.LogPath != "" {
		if datalog, err = monitor.OpenDataLog(opt.state.LogPath); err != nil {
			log.Error(errors.ErrorStack(err))
			return subcmd.ExitError
		}
		defer datalog.Close()
	}

	mopt := monitor.Options{
		Log:     log,
		State:   opt.state,
		Client:  client,
		DataLog: datalog,
	}
	if config.Relay.Enabled {
		r := relay.New()
		if err = r.Init(ctx, log, config.Relay); err != nil {
			log.Error(errors.ErrorStack(err))
			return subcmd.ExitError
		}
		defer r.Close()
		mopt.Relay = r
	}

	outcome, err := monitor.New(mopt).Run(ctx)
	switch {
	case err == monitor.ErrInterrupted:
		return subcmd.ExitError
	case err != nil:
		log.Error(errors.ErrorStack(err))
		return subcmd.ExitError
	}
	log.Debugf("outcome=%s", outcome)
	return subcmd.ExitOK
}
