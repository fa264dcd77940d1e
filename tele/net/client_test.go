package telenet_test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/sjstein/tpMonitor/helpers"
	"github.com/sjstein/tpMonitor/log2"
	"github.com/sjstein/tpMonitor/sensor"
	"github.com/sjstein/tpMonitor/tele"
	telenet "github.com/sjstein/tpMonitor/tele/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientNominal(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	server, addr := testServer(t, sensor.NewGuard(&sensor.Fixed{P: 1013.25, T: 20, D: 5}), nil)
	defer testServerClose(t, server)

	cli := testClient(t, log, addr)
	defer cli.Close()
	ctx := context.Background()
	require.NoError(t, cli.Connect(ctx))
	assert.True(t, cli.Connected())
	for i := 0; i < 3; i++ {
		r, err := cli.Poll(ctx)
		require.NoError(t, err)
		assert.Equal(t, tele.Reading{Pressure: 1013.25, Temperature: 20, Depth: 5}, r)
	}
	reply, err := cli.Exchange(ctx, []byte("bogus"))
	require.NoError(t, err)
	assert.Equal(t, "CMD_UNKNOWN : bogus", string(reply))

	require.NoError(t, cli.Disconnect(ctx))
	assert.False(t, cli.Connected())
	waitSessions(t, server, 0)
	stat := cli.Stat()
	assert.Equal(t, int64(1), stat.Conn.Value())
	assert.Equal(t, int64(5), stat.Send.Count.Value())
	assert.Equal(t, int64(4), stat.Recv.Count.Value())
	t.Logf("client: stat=%s", stat)
}

func TestClientSentinel(t *testing.T) {
	t.Parallel()
	server, addr := testServer(t, sensor.NewGuard(&sensor.Fixed{FailReads: 1}), nil)
	defer testServerClose(t, server)

	cli := testClient(t, log2.NewTest(t, log2.LDebug), addr)
	defer cli.Close()
	require.NoError(t, cli.Connect(context.Background()))
	r, err := cli.Poll(context.Background())
	require.NoError(t, err)
	assert.True(t, r.IsSentinel())
}

func TestClientConnectRetry(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	addr := testFreeAddr(t)
	cli := testClient(t, log, addr)
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := cli.Connect(ctx)
	require.Error(t, err)
	assert.Equal(t, context.DeadlineExceeded, errors.Cause(err))
	assert.False(t, cli.Connected())
}

func TestClientReconnect(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	f := &sensor.Fixed{P: 1, T: 2, D: 3}
	server, addr := testServer(t, sensor.NewGuard(f), nil)

	backoff := helpers.NewBackoff(2, 1, 10, 5*time.Millisecond)
	cli, err := telenet.NewClient(&telenet.ClientOptions{
		ConnOptions: telenet.ConnOptions{Log: log, NetworkTimeout: time.Second},
		Addr:        addr,
		Backoff:     backoff,
	})
	require.NoError(t, err)
	defer cli.Close()
	ctx := context.Background()
	require.NoError(t, cli.Connect(ctx))
	_, err = cli.Poll(ctx)
	require.NoError(t, err)

	// server goes away, poll reports lost connection
	testServerClose(t, server)
	_, err = cli.Poll(ctx)
	require.Error(t, err)
	assert.Equal(t, telenet.ErrConnLost, errors.Cause(err))
	assert.False(t, cli.Connected())

	connected := make(chan error, 1)
	go func() { connected <- cli.Connect(ctx) }()
	time.Sleep(50 * time.Millisecond)
	assert.Greater(t, backoff.Counter(), 2)

	server2 := telenet.NewServer(telenet.ServerOptions{Log: log, Sensor: sensor.NewGuard(f)})
	require.NoError(t, server2.Listen(ctx, addr))
	defer testServerClose(t, server2)
	select {
	case err = <-connected:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reconnect timeout")
	}
	// dial alone does not reset delay, first reply does
	assert.Greater(t, backoff.Counter(), 2)
	r, err := cli.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, tele.Reading{Pressure: 1, Temperature: 2, Depth: 3}, r)
	assert.Equal(t, 2, backoff.Counter())
}

func TestClientDropBeforeReply(t *testing.T) {
	t.Parallel()
	log := log2.NewTest(t, log2.LDebug)
	ll, accepts := testDropListener(t)
	defer ll.Close()

	backoff := helpers.NewBackoff(2, 1, 10, 20*time.Millisecond)
	cli, err := telenet.NewClient(&telenet.ClientOptions{
		ConnOptions: telenet.ConnOptions{Log: log, NetworkTimeout: time.Second},
		Addr:        ll.Addr().String(),
		Backoff:     backoff,
	})
	require.NoError(t, err)
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	for ctx.Err() == nil {
		if err = cli.Connect(ctx); err != nil {
			break
		}
		_, err = cli.Poll(ctx)
		require.Error(t, err)
		assert.Equal(t, telenet.ErrConnLost, errors.Cause(err))
	}
	// 40+60+80+100ms delays fit in 300ms, tight loop would dial hundreds of times
	assert.LessOrEqual(t, atomic.LoadInt32(accepts), int32(10))
	assert.Greater(t, backoff.Counter(), 3)
}

func TestClientMalformedReply(t *testing.T) {
	t.Parallel()
	replies := []string{"garbage", "1,2", "1,x,3", "5.5,6.5,-1"}
	ll := mockServerStream(t, func(conn telenet.Conn) {
		defer conn.Close()
		for _, reply := range replies {
			if _, err := conn.Receive(context.Background()); err != nil {
				return
			}
			if err := conn.Send(context.Background(), []byte(reply)); err != nil {
				return
			}
		}
	})
	defer ll.Close()

	cli := testClient(t, log2.NewTest(t, log2.LDebug), ll.Addr().String())
	defer cli.Close()
	ctx := context.Background()
	require.NoError(t, cli.Connect(ctx))
	for _, reply := range replies[:3] {
		_, err := cli.Poll(ctx)
		require.Error(t, err, reply)
		assert.Equal(t, tele.ErrMalformedReply, errors.Cause(err))
		assert.True(t, cli.Connected(), "malformed reply must keep connection")
	}
	// single -1 is a legit value, not sentinel
	r, err := cli.Poll(ctx)
	require.NoError(t, err)
	assert.False(t, r.IsSentinel())
	assert.Equal(t, -1.0, r.Depth)
}

func TestClientPollCancel(t *testing.T) {
	t.Parallel()
	ll := mockServerStream(t, func(conn telenet.Conn) {
		// never reply
		_, _ = conn.Receive(context.Background())
		_, _ = conn.Receive(context.Background())
		_ = conn.Close()
	})
	defer ll.Close()

	cli, err := telenet.NewClient(&telenet.ClientOptions{
		ConnOptions: telenet.ConnOptions{Log: log2.NewTest(t, log2.LDebug), NetworkTimeout: 10 * time.Second},
		Addr:        ll.Addr().String(),
	})
	require.NoError(t, err)
	defer cli.Close()
	require.NoError(t, cli.Connect(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)
	start := time.Now()
	_, err = cli.Poll(ctx)
	require.Error(t, err)
	assert.Equal(t, telenet.ErrConnLost, errors.Cause(err))
	assert.Less(t, int64(time.Since(start)), int64(5*time.Second))
}

func TestClientNotConnected(t *testing.T) {
	t.Parallel()
	cli := testClient(t, log2.NewTest(t, log2.LDebug), "127.0.0.1:5005")
	_, err := cli.Exchange(context.Background(), []byte("r all"))
	assert.Equal(t, telenet.ErrConnLost, errors.Cause(err))
	assert.NoError(t, cli.Disconnect(context.Background()))
	require.NoError(t, cli.Close())
	assert.Equal(t, telenet.ErrClosing, cli.Connect(context.Background()))
}

func TestNewClientInvalidAddr(t *testing.T) {
	t.Parallel()
	_, err := telenet.NewClient(&telenet.ClientOptions{Addr: "192.168.1.10"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config error client Addr=192.168.1.10")
}

func testClient(t testing.TB, log *log2.Log, addr string) *telenet.Client {
	opt := &telenet.ClientOptions{
		Addr:    addr,
		Backoff: helpers.NewBackoff(2, 1, 10, 10*time.Millisecond),
	}
	opt.Log = log.Clone(log2.LDebug)
	opt.Log.SetPrefix("client: ")
	opt.NetworkTimeout = time.Second
	c, err := telenet.NewClient(opt)
	require.NoError(t, err)
	return c
}

// address nobody listens on
func testFreeAddr(t testing.TB) string {
	ll, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ll.Addr().String()
	require.NoError(t, ll.Close())
	return addr
}

// Accepts and immediately closes every connection, counts accepts.
func testDropListener(t testing.TB) (net.Listener, *int32) {
	ll, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	accepts := new(int32)
	go func() {
		for {
			conn, err := ll.Accept()
			if err != nil {
				return
			}
			atomic.AddInt32(accepts, 1)
			_ = conn.Close()
		}
	}()
	return ll, accepts
}

// Accepts one connection and passes it to fun.
func mockServerStream(t testing.TB, fun func(telenet.Conn)) net.Listener {
	ll, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		netConn, err := ll.Accept()
		if err != nil {
			return
		}
		fun(telenet.NewStreamConn(netConn, telenet.ConnOptions{ReadLimit: telenet.DefaultServerReadLimit}))
	}()
	return ll
}
