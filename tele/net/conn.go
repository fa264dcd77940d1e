package telenet

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/juju/errors"
	"github.com/sjstein/tpMonitor/log2"
)

const (
	DefaultNetworkTimeout = 30 * time.Second
	// Server receives short commands, client receives readings and echoes.
	DefaultServerReadLimit = 160
	DefaultClientReadLimit = 1024
)

var (
	ErrClosing    = fmt.Errorf("closing")
	ErrConnLost   = fmt.Errorf("connection lost")
	ErrDisconnect = fmt.Errorf("client disconnect")
	ErrNotUTF8    = fmt.Errorf("command is not valid UTF-8")
)

type Conn interface {
	Close() error
	Closed() bool
	ID() uint32
	LocalAddr() net.Addr
	Receive(context.Context) ([]byte, error)
	RemoteAddr() net.Addr
	Send(context.Context, []byte) error
	SetID(uint32)
	SinceLastRecv() time.Duration
	Stat() *SessionStat
	String() string

	die(error) error
	interrupt()
}

type ConnOptions struct {
	Log            *log2.Log
	NetworkTimeout time.Duration
	ReadLimit      uint32
}

func DialContext(ctx context.Context, dialer net.Dialer, addr string, opt ConnOptions) (Conn, error) {
	if dialer.Timeout == 0 {
		dialer.Timeout = opt.NetworkTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if timeout := time.Until(deadline); timeout > 0 && timeout < dialer.Timeout {
			dialer.Timeout = timeout
		} else if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Annotatef(err, "dial addr=%s", addr)
	}
	return NewStreamConn(conn, opt), nil
}

// withTimeout applies network timeout unless ctx already has a deadline.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
