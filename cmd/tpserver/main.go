package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/sjstein/tpMonitor/cmd/internal/subcmd"
	"github.com/sjstein/tpMonitor/helpers"
	"github.com/sjstein/tpMonitor/log2"
	"github.com/sjstein/tpMonitor/sensor"
	"github.com/sjstein/tpMonitor/state"
	telenet "github.com/sjstein/tpMonitor/tele/net"
)

const logTag = "tpServer"

func main() {
	ctx, cancel := subcmd.SignalContext(context.Background())
	code := run(ctx, os.Args[1:], os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	defaults := state.DefaultConfig()
	cmdline := flag.NewFlagSet("tpserver", flag.ContinueOnError)
	cmdline.SetOutput(stderr)
	flagConfig := cmdline.String("config", "", "optional config file")
	flagDebug := cmdline.Bool("debug", false, "use mock sensor instead of hardware")
	flagIface := cmdline.String("i", defaults.Server.ListenInterface, "network interface to bind, empty = all addresses")
	flagPort := cmdline.Int("port", defaults.Server.Port, "TCP port")
	flagLogDir := cmdline.String("log-dir", defaults.Server.LogDir, "directory for daily log files")
	flagVerbose := cmdline.Int("v", int(log2.LInfo), "log verbosity 0..3")
	if err := cmdline.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return subcmd.ExitOK
		}
		return subcmd.ExitUsage
	}

	config := defaults
	if *flagConfig != "" {
		var err error
		if config, err = state.ReadConfig(nil, state.NewOsFullReader(), *flagConfig); err != nil {
			fmt.Fprintf(stderr, "tpserver: %v\n", err)
			return subcmd.ExitUsage
		}
	}
	cmdline.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "debug":
			if *flagDebug {
				config.Server.Sensor.Driver = "mock"
			}
		case "i":
			config.Server.ListenInterface = *flagIface
		case "port":
			config.Server.Port = *flagPort
		case "log-dir":
			config.Server.LogDir = *flagLogDir
		}
	})
	if err := config.Validate(); err != nil {
		fmt.Fprintf(stderr, "tpserver: %v\n", err)
		return subcmd.ExitUsage
	}

	logFile, err := subcmd.OpenDailyLog(config.Server.LogDir, time.Now(), logTag)
	if err != nil {
		fmt.Fprintf(stderr, "tpserver: %v\n", err)
		return subcmd.ExitError
	}
	defer logFile.Close()
	log := log2.NewWriter(io.MultiWriter(stderr, logFile), log2.LevelFromVerbosity(*flagVerbose))
	log.SetFlags(subcmd.LogFlags(subcmd.SdNotify("start")))
	log.Debugf("config %s", config.String())

	if err := serve(ctx, log, config); err != nil {
		log.Error(errors.ErrorStack(err))
		return subcmd.ExitError
	}
	return subcmd.ExitOK
}

func serve(ctx context.Context, log *log2.Log, config *state.Config) error {
	addr, err := listenAddr(config.Server.ListenInterface, config.Server.Port)
	if err != nil {
		return err
	}

	adapter, err := config.Server.Sensor.Adapter(time.Now().UnixNano())
	if err != nil {
		return err
	}
	if ms, ok := adapter.(*sensor.MS5837); ok {
		defer ms.Close()
	}
	log.Infof("sensor driver=%s", config.Server.Sensor.Driver)
	guard := sensor.NewGuard(adapter)
	if err = sensor.InitRetry(ctx, log, guard, config.Backoff(), config.Server.Sensor.InitAttempts); err != nil {
		return err
	}
	lines, err := sensor.Describe(guard)
	if err != nil {
		return errors.Annotate(err, "sensor initial read")
	}
	for _, line := range lines {
		log.Info(line)
	}
	density := config.Server.Sensor.FluidDensity
	_ = guard.Do(func(a sensor.Adapter) error { a.SetFluidDensity(density); return nil })

	server := telenet.NewServer(telenet.ServerOptions{
		Log:            log,
		Sensor:         guard,
		MaxSessions:    config.Server.MaxSessions,
		NetworkTimeout: time.Duration(config.Server.NetworkTimeoutSec) * time.Second,
		Retry:          *config.Backoff(),
	})
	if err = server.Listen(ctx, addr); err != nil {
		return err
	}
	subcmd.SdNotify(daemon.SdNotifyReady)
	log.Infof("server ready, waiting for connections")

	var failErr error
	select {
	case <-ctx.Done():
	case <-server.Done():
		failErr = server.Err()
	}
	subcmd.SdNotify(daemon.SdNotifyStopping)
	log.Infof("shutting down stat=%s", server.Stat().String())
	drainCtx, cancel := context.WithTimeout(context.Background(), time.Duration(config.Server.DrainTimeoutSec)*time.Second)
	defer cancel()
	closeErr := server.Close(drainCtx)
	if failErr != nil {
		return failErr
	}
	return closeErr
}

// listenAddr binds named interface IPv4 address, empty name binds all addresses.
func listenAddr(iface string, port int) (string, error) {
	host := ""
	if iface != "" {
		var err error
		if host, err = helpers.InterfaceAddr(iface); err != nil {
			return "", errors.Annotate(err, "listen interface")
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}
