// tpctl is interactive console for tpserver wire protocol.
// Every input line is sent as raw command, reply is printed as is.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/sjstein/tpMonitor/cmd/internal/subcmd"
	"github.com/sjstein/tpMonitor/helpers"
	"github.com/sjstein/tpMonitor/helpers/cli"
	"github.com/sjstein/tpMonitor/log2"
	"github.com/sjstein/tpMonitor/tele"
	telenet "github.com/sjstein/tpMonitor/tele/net"
)

const usage = `usage: tpctl [flags] <server-addr host:port>

commands:
- r all    request reading
- discon   end session, next command reconnects
- anything else is sent verbatim, server replies CMD_UNKNOWN
`

var suggests = []prompt.Suggest{
	{Text: tele.TokenReadAll, Description: "request pressure,temperature,depth"},
	{Text: tele.TokenDisconnect, Description: "end session"},
}

func main() {
	ctx, cancel := subcmd.SignalContext(context.Background())
	defer cancel()
	cmdline := flag.NewFlagSet("tpctl", flag.ExitOnError)
	cmdline.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		cmdline.PrintDefaults()
	}
	timeout := cmdline.Duration("timeout", 5*time.Second, "network timeout")
	verbose := cmdline.Int("v", int(log2.LWarn), "log verbosity 0..3")
	_ = cmdline.Parse(os.Args[1:])
	if cmdline.NArg() != 1 {
		cmdline.Usage()
		os.Exit(subcmd.ExitUsage)
	}

	log := log2.NewStderr(log2.LevelFromVerbosity(*verbose))
	log.SetFlags(log2.LInteractiveFlags)
	client, err := telenet.NewClient(&telenet.ClientOptions{
		ConnOptions: telenet.ConnOptions{Log: log, NetworkTimeout: *timeout},
		Addr:        cmdline.Arg(0),
		Backoff:     helpers.NewBackoff(1, 1, 5, time.Second),
	})
	if err != nil {
		log.Error(errors.ErrorStack(err))
		os.Exit(subcmd.ExitUsage)
	}
	defer client.Close()

	err = cli.MainLoop("tpctl", newExecutor(ctx, client, os.Stdout), cli.Completer(suggests))
	if err != nil {
		log.Error(errors.ErrorStack(err))
	}
	_ = client.Disconnect(context.Background())
}

// Connection is established lazily before each command.
func newExecutor(ctx context.Context, client *telenet.Client, w io.Writer) func(string) {
	return func(line string) {
		if ctx.Err() != nil {
			return
		}
		if err := client.Connect(ctx); err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			return
		}
		cmd := tele.ParseCommand([]byte(line))
		if cmd.Kind == tele.CommandDisconnect {
			if err := client.Disconnect(ctx); err != nil {
				fmt.Fprintf(w, "error: %v\n", err)
				return
			}
			fmt.Fprintln(w, "disconnected")
			return
		}
		reply, err := client.Exchange(ctx, []byte(line))
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			return
		}
		fmt.Fprintf(w, "%s\n", reply)
		if cmd.Kind == tele.CommandReadAll {
			if r, err := tele.ParseReading(string(reply)); err == nil && r.IsSentinel() {
				fmt.Fprintln(w, "(server reports sensor failure)")
			}
		}
	}
}
