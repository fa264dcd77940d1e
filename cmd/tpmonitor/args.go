package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/juju/errors"
	"github.com/sjstein/tpMonitor/log2"
	"github.com/sjstein/tpMonitor/monitor"
	"github.com/sjstein/tpMonitor/state"
)

const usage = `usage: tpmonitor [flags] <server-ip>

Polls tpserver for pressure, temperature and depth.
`

type options struct {
	config *state.Config
	state  *monitor.PollingState
	level  log2.Level
}

// parseArgs accepts flags before and after the server IP.
// Explicit flags override values from -config file.
func parseArgs(args []string, stderr io.Writer) (*options, error) {
	defaults := state.DefaultConfig()
	cmdline := flag.NewFlagSet("tpmonitor", flag.ContinueOnError)
	cmdline.SetOutput(stderr)
	cmdline.Usage = func() {
		fmt.Fprint(stderr, usage)
		cmdline.PrintDefaults()
	}
	flagLog := cmdline.String("l", "", "data log file, empty = logging disabled")
	flagFreq := cmdline.Int("f", defaults.Monitor.FrequencySec, "polling frequency, seconds >= 1")
	flagRun := cmdline.Int("r", defaults.Monitor.RunTimeMin, "run time, minutes: -1 = until interrupted, 0 = single poll")
	flagVerbose := cmdline.Int("v", defaults.Monitor.Verbosity, "console verbosity 0..3")
	flagPort := cmdline.Int("port", defaults.Monitor.Port, "server TCP port")
	flagConfig := cmdline.String("config", "", "optional config file")
	flagRelay := cmdline.Bool("relay", false, "enable MQTT relay of readings")

	if err := cmdline.Parse(args); err != nil {
		return nil, err
	}
	var ip string
	if rest := cmdline.Args(); len(rest) > 0 {
		ip = rest[0]
		if err := cmdline.Parse(rest[1:]); err != nil {
			return nil, err
		}
		if cmdline.NArg() != 0 {
			return nil, errors.NotValidf("extra arguments %q", cmdline.Args())
		}
	}

	config := defaults
	if *flagConfig != "" {
		var err error
		if config, err = state.ReadConfig(nil, state.NewOsFullReader(), *flagConfig); err != nil {
			return nil, errors.Annotate(err, "config")
		}
	}
	cmdline.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "l":
			config.Monitor.LogFile = *flagLog
		case "f":
			config.Monitor.FrequencySec = *flagFreq
		case "r":
			config.Monitor.RunTimeMin = *flagRun
		case "v":
			config.Monitor.Verbosity = *flagVerbose
		case "port":
			config.Monitor.Port = *flagPort
		case "relay":
			config.Relay.Enabled = *flagRelay
		}
	})
	if ip != "" {
		config.Monitor.Server = ip
	}
	if config.Monitor.Server == "" {
		cmdline.Usage()
		return nil, errors.NotValidf("server IP required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	ps := config.PollingState()
	if err := ps.Validate(); err != nil {
		return nil, err
	}
	return &options{
		config: config,
		state:  ps,
		level:  log2.LevelFromVerbosity(config.Monitor.Verbosity),
	}, nil
}

func (o *options) String() string {
	return "server=" + o.state.Addr() + " verbosity=" + strconv.Itoa(int(o.level))
}
