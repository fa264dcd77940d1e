package telenet

import (
	"context"
	"net"
	"sync"

	"github.com/juju/errors"
	"github.com/sjstein/tpMonitor/helpers"
	"github.com/sjstein/tpMonitor/tele"
	"github.com/temoto/alive/v2"
)

// Telemetry client, monitor side.
// Responsible for:
// - establish connection, retry with linear backoff
// - request/response exchange, one at a time
// - drop broken connection so next Connect dials again
type Client struct {
	sync.Mutex // protects current
	alive      *alive.Alive
	current    Conn
	opt        *ClientOptions
	stat       SessionStat
	backoff    *helpers.Backoff
	// dialed, no reply yet; losing such connection counts as connect failure
	unproven bool
}

type ClientOptions struct {
	ConnOptions
	Addr   string // host:port
	Dialer *net.Dialer
	// Connect retry delay, default 2,3,4... seconds up to 60.
	Backoff *helpers.Backoff
}

func NewClient(opt *ClientOptions) (*Client, error) {
	if _, _, err := net.SplitHostPort(opt.Addr); err != nil {
		return nil, errors.Annotatef(err, "config error client Addr=%s", opt.Addr)
	}
	if opt.NetworkTimeout == 0 {
		opt.NetworkTimeout = DefaultNetworkTimeout
	}
	if opt.ReadLimit == 0 {
		opt.ReadLimit = DefaultClientReadLimit
	}
	if opt.Dialer == nil {
		opt.Dialer = &net.Dialer{Timeout: opt.NetworkTimeout}
	}
	if opt.Backoff == nil {
		opt.Backoff = helpers.NewBackoff(helpers.DefaultBackoffStart, helpers.DefaultBackoffStep, helpers.DefaultBackoffMax, helpers.DefaultBackoffUnit)
	}
	c := &Client{
		alive:   alive.NewAlive(),
		backoff: opt.Backoff,
		opt:     opt,
	}
	return c, nil
}

func (c *Client) Addr() string { return c.opt.Addr }

func (c *Client) Close() error {
	c.alive.Stop()
	c.Lock()
	conn := c.getConn()
	c.Unlock()
	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.alive.Wait()
	return err
}

// Connected reports whether client holds live connection.
func (c *Client) Connected() bool {
	c.Lock()
	defer c.Unlock()
	return c.getConn() != nil
}

func (c *Client) Stat() *SessionStat {
	c.Lock()
	c.statHook(c.current)
	c.Unlock()
	return &c.stat
}

// Connect dials until success, ctx done or Close.
// Each failure is logged and followed by backoff delay.
// Delay is reset by first reply on new connection, not by dial, so a peer
// that accepts and drops connections is retried at growing intervals.
func (c *Client) Connect(ctx context.Context) error {
	if !c.alive.Add(1) {
		return ErrClosing
	}
	defer c.alive.Done()
	_, err := c.mustConn(ctx)
	return err
}

// Poll requests one reading. Sentinel reading is returned as is, without error.
// Error cause is ErrConnLost when connection was dropped,
// tele.ErrMalformedReply when reply is garbage, connection kept in that case.
func (c *Client) Poll(ctx context.Context) (tele.Reading, error) {
	b, err := c.Exchange(ctx, tele.ReadAll.Bytes())
	if err != nil {
		return tele.Reading{}, err
	}
	return tele.ParseReading(string(b))
}

// Exchange sends raw command and returns raw reply.
// Does not connect, requires successful Connect before.
func (c *Client) Exchange(ctx context.Context, raw []byte) ([]byte, error) {
	if !c.alive.Add(1) {
		return nil, ErrClosing
	}
	defer c.alive.Done()

	c.Lock()
	defer c.Unlock()
	conn := c.getConn()
	if conn == nil {
		return nil, errors.Annotate(ErrConnLost, "not connected")
	}
	ctx, cancel := withTimeout(ctx, c.opt.NetworkTimeout)
	defer cancel()
	defer interruptOnDone(ctx, conn)()
	if err := conn.Send(ctx, raw); err != nil {
		return nil, c.lost(conn, err)
	}
	b, err := conn.Receive(ctx)
	if err != nil {
		return nil, c.lost(conn, err)
	}
	if c.unproven {
		c.unproven = false
		c.backoff.Reset()
	}
	return b, nil
}

// Send delivers command without waiting for reply.
func (c *Client) Send(ctx context.Context, cmd tele.Command) error {
	if !c.alive.Add(1) {
		return ErrClosing
	}
	defer c.alive.Done()

	c.Lock()
	defer c.Unlock()
	conn := c.getConn()
	if conn == nil {
		return errors.Annotate(ErrConnLost, "not connected")
	}
	ctx, cancel := withTimeout(ctx, c.opt.NetworkTimeout)
	defer cancel()
	if err := conn.Send(ctx, cmd.Bytes()); err != nil {
		return c.lost(conn, err)
	}
	return nil
}

// Disconnect politely ends session: sends "discon" and closes connection.
// Server closes its side on "discon" without reply.
func (c *Client) Disconnect(ctx context.Context) error {
	err := c.Send(ctx, tele.Disconnect)
	c.Lock()
	defer c.Unlock()
	if conn := c.getConn(); conn != nil {
		_ = conn.Close()
		c.statHook(conn)
		c.current = nil
	}
	c.unproven = false
	if errors.Cause(err) == ErrConnLost {
		// nothing to disconnect
		return nil
	}
	return err
}

// must be called with lock
func (c *Client) getConn() Conn {
	if c.current != nil && c.current.Closed() {
		c.statHook(c.current)
		c.current = nil
	}
	return c.current
}

// must be called with lock
func (c *Client) lost(conn Conn, err error) error {
	_ = conn.die(err)
	c.statHook(conn)
	if c.current == conn {
		c.current = nil
	}
	return errors.Wrapf(err, ErrConnLost, "remote=%s %s", c.opt.Addr, helpers.ShortNetError(err))
}

func (c *Client) mustConn(ctx context.Context) (Conn, error) {
	c.Lock()
	defer c.Unlock()
	if conn := c.getConn(); conn != nil {
		return conn, nil
	}

	if c.unproven {
		c.unproven = false
		delay := c.backoff.Failure()
		c.opt.Log.Warnf("connection to %s lost before first reply, retry in %s", c.opt.Addr, delay)
		if err := helpers.Sleep(ctx, delay, c.alive.StopChan(), ErrClosing); err != nil {
			return nil, err
		}
	}
	for {
		conn, err := DialContext(ctx, *c.opt.Dialer, c.opt.Addr, c.opt.ConnOptions)
		if err == nil {
			c.unproven = true
			c.current = conn
			c.opt.Log.Infof("connected to %s", c.opt.Addr)
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		delay := c.backoff.Failure()
		c.opt.Log.Warnf("connect %s failed (%s), retry in %s", c.opt.Addr, helpers.ShortNetError(err), delay)
		if err = helpers.Sleep(ctx, delay, c.alive.StopChan(), ErrClosing); err != nil {
			return nil, err
		}
	}
}

// interruptOnDone makes blocking Receive return when ctx is cancelled.
// Call returned func to release watcher.
func interruptOnDone(ctx context.Context, conn Conn) func() {
	stopch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.interrupt()
		case <-stopch:
		}
	}()
	return func() { close(stopch) }
}

// must be called with lock
func (c *Client) statHook(conn Conn) {
	if conn != nil {
		c.stat.AddMoveFrom(conn.Stat())
	}
}
