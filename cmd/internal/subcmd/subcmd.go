// Shared bits of tpserver, tpmonitor and tpctl main packages.
package subcmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	"github.com/sjstein/tpMonitor/log2"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

func SdNotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		log.Fatal("sdnotify: ", errors.ErrorStack(err))
	}
	return ok
}

// LogFlags picks log2 flags: under systemd journal adds timestamps itself.
func LogFlags(underSystemd bool) int {
	switch {
	case underSystemd:
		return log2.LServiceFlags
	case isatty.IsTerminal(os.Stderr.Fd()):
		return log2.LInteractiveFlags
	}
	return log2.LStdFlags
}

// DailyLogName is "YYYY-MM-DD_<tag>.log".
func DailyLogName(t time.Time, tag string) string {
	return t.Format("2006-01-02") + "_" + tag + ".log"
}

func OpenDailyLog(dir string, t time.Time, tag string) (*os.File, error) {
	path := filepath.Join(dir, DailyLogName(t, tag))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	return f, errors.Annotatef(err, "daily log path=%s", path)
}

// SignalContext is cancelled on first termination signal.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
}
