package telenet

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/sjstein/tpMonitor/helpers"
	"github.com/temoto/atomic_clock"
)

type streamConn struct {
	err         helpers.AtomicError
	last        atomic_clock.Clock
	net         net.Conn
	opt         ConnOptions
	stat        SessionStat
	r           io.Reader
	w           io.Writer
	id          uint32
	interrupted uint32
}

var _ Conn = &streamConn{}

func NewStreamConn(netConn net.Conn, opt ConnOptions) *streamConn {
	if opt.ReadLimit == 0 {
		opt.ReadLimit = DefaultClientReadLimit
	}
	c := &streamConn{
		net: netConn,
		opt: opt,
	}
	if tcp, ok := c.net.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	const tcpOverhead = 40
	c.r = helpers.NewStatReader(c.net, &c.stat.Recv.Size, tcpOverhead)
	c.w = helpers.NewStatWriter(c.net, &c.stat.Send.Size, tcpOverhead)
	c.stat.Conn.Set(1)
	c.last.SetNow()
	return c
}

func (c *streamConn) Close() error {
	return c.die(ErrClosing)
}

func (c *streamConn) Closed() bool {
	_, ok := c.err.Load()
	return ok
}

// Receive returns payload of one read, at most ReadLimit bytes.
// Blocks until ctx deadline, no deadline means wait forever.
func (c *streamConn) Receive(ctx context.Context) ([]byte, error) {
	if err, closed := c.err.Load(); closed {
		return nil, err
	}
	deadline, _ := ctx.Deadline()
	if err := c.net.SetReadDeadline(deadline); err != nil {
		err = errors.Annotate(err, "SetReadDeadline")
		_ = c.die(err)
		return nil, err
	}
	// interrupt() sets flag before deadline, so either we see flag here
	// or pending Read is woken up by its deadline
	if atomic.LoadUint32(&c.interrupted) != 0 {
		return nil, c.die(ErrClosing)
	}
	buf := make([]byte, c.opt.ReadLimit)
	n, err := c.r.Read(buf)
	if n > 0 {
		c.last.SetNow()
		c.stat.Recv.Count.Add(1)
		return buf[:n], nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	if atomic.LoadUint32(&c.interrupted) != 0 {
		return nil, c.die(ErrClosing)
	}
	err = errors.Annotate(err, "receive")
	_ = c.die(err)
	return nil, err
}

func (c *streamConn) Send(ctx context.Context, b []byte) error {
	if err, closed := c.err.Load(); closed {
		return err
	}
	c.opt.Log.Debugf("%s send=%q", c, b)
	deadline, _ := ctx.Deadline()
	if err := c.net.SetWriteDeadline(deadline); err != nil {
		err = errors.Annotate(err, "SetWriteDeadline")
		_ = c.die(err)
		return err
	}
	if err := helpers.WriteAll(c.w, b); err != nil {
		err = errors.Annotate(err, "send")
		_ = c.die(err)
		return err
	}
	c.stat.Send.Count.Add(1)
	return nil
}

func (c *streamConn) ID() uint32                   { return atomic.LoadUint32(&c.id) }
func (c *streamConn) SetID(id uint32)              { atomic.StoreUint32(&c.id, id) }
func (c *streamConn) LocalAddr() net.Addr          { return c.net.LocalAddr() }
func (c *streamConn) RemoteAddr() net.Addr         { return c.net.RemoteAddr() }
func (c *streamConn) SinceLastRecv() time.Duration { return atomic_clock.Since(&c.last) }
func (c *streamConn) Stat() *SessionStat           { return &c.stat }

func (c *streamConn) String() string {
	return fmt.Sprintf("session-%d remote=%s", c.ID(), addrString(c.RemoteAddr()))
}

// interrupt wakes up pending Receive, it and further Receive calls fail with ErrClosing.
// Send is not affected, so response in progress is delivered.
func (c *streamConn) interrupt() {
	atomic.StoreUint32(&c.interrupted, 1)
	_ = c.net.SetReadDeadline(time.Now())
}

func (c *streamConn) die(e error) error {
	if err, found := c.err.StoreOnce(e); found {
		return err
	}
	_ = c.net.Close()
	c.opt.Log.Debugf("%s die local=%s e=%s", c, addrString(c.net.LocalAddr()), helpers.ShortNetError(e))
	return e
}
