package monitor

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/juju/errors"
)

const (
	RunForever time.Duration = -1
	RunOnce    time.Duration = 0
)

// PollingState is created once at start and advanced every iteration.
type PollingState struct {
	Server    string
	Port      int
	Frequency time.Duration
	RunTime   time.Duration // RunForever, RunOnce or positive
	Elapsed   time.Duration
	LogPath   string // empty = data log disabled
}

func (ps *PollingState) Addr() string {
	return net.JoinHostPort(ps.Server, strconv.Itoa(ps.Port))
}

func (ps *PollingState) Validate() error {
	if net.ParseIP(ps.Server) == nil {
		return errors.NotValidf("server IP %q", ps.Server)
	}
	if ps.Port <= 0 || ps.Port > 65535 {
		return errors.NotValidf("port %d", ps.Port)
	}
	if ps.Frequency < time.Second {
		return errors.NotValidf("frequency %s, must be at least 1s", ps.Frequency)
	}
	if ps.RunTime < RunForever {
		return errors.NotValidf("run time %s", ps.RunTime)
	}
	return nil
}

// complete is checked after pacing sleep.
func (ps *PollingState) complete() bool {
	return ps.RunTime > 0 && ps.Elapsed >= ps.RunTime
}

// expected reports whether interrupt is normal way to stop.
func (ps *PollingState) expected() bool { return ps.RunTime <= 0 }

func (ps *PollingState) RunTimeString() string {
	switch {
	case ps.RunTime == RunForever:
		return "until interrupted"
	case ps.RunTime == RunOnce:
		return "single poll"
	}
	return fmt.Sprintf("%.0f minutes", ps.RunTime.Minutes())
}
