package telenet

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/sjstein/tpMonitor/helpers"
	"github.com/sjstein/tpMonitor/log2"
	"github.com/sjstein/tpMonitor/tele"
	"github.com/temoto/alive/v2"
)

const DefaultMaxSessions = 8

// Temporary accept failure (EMFILE and the like) delay, milliseconds.
const (
	acceptRetryStart = 5
	acceptRetryStep  = 5
	acceptRetryMax   = 1000
)

// Sampler is the sensor as seen by sessions.
// Implementations must serialize concurrent calls, see sensor.Guard.
type Sampler interface {
	Sample() (tele.Reading, error)
}

// Telemetry server, sensor station side.
// Accepts connections and runs one session per client.
type Server struct {
	alive    *alive.Alive
	sessions struct {
		sync.RWMutex
		m map[uint32]*session
	}
	listens struct {
		sync.RWMutex
		m map[string]net.Listener
	}
	failed struct {
		sync.Once
		ch  chan struct{}
		err error
	}
	log    *log2.Log
	opt    ServerOptions
	sensor Sampler
	seq    uint32
	// one token per session, taken before Accept so extra clients wait in listen backlog
	slots chan struct{}
	stat  SessionStat
}

type ServerOptions struct {
	Log            *log2.Log
	Sensor         Sampler
	MaxSessions    int
	NetworkTimeout time.Duration
	ReadLimit      uint32
	// Template for per session sensor retry delay, copied and reset for each session.
	Retry helpers.Backoff
}

func NewServer(opt ServerOptions) *Server {
	if opt.MaxSessions <= 0 {
		opt.MaxSessions = DefaultMaxSessions
	}
	if opt.NetworkTimeout == 0 {
		opt.NetworkTimeout = DefaultNetworkTimeout
	}
	if opt.ReadLimit == 0 {
		opt.ReadLimit = DefaultServerReadLimit
	}
	s := &Server{
		alive:  alive.NewAlive(),
		log:    opt.Log,
		opt:    opt,
		sensor: opt.Sensor,
		slots:  make(chan struct{}, opt.MaxSessions),
	}
	s.failed.ch = make(chan struct{})
	s.sessions.m = make(map[uint32]*session)
	s.listens.m = make(map[string]net.Listener)
	return s
}

func (s *Server) Addrs() []string {
	s.listens.RLock()
	defer s.listens.RUnlock()
	addrs := make([]string, 0, len(s.listens.m))
	for _, l := range s.listens.m {
		addrs = append(addrs, l.Addr().String())
	}
	sort.Strings(addrs)
	return addrs
}

// Listen binds every address ("host:port") and starts accept loops.
// Errors of individual addresses are folded, successful listeners keep running.
func (s *Server) Listen(ctx context.Context, addrs ...string) error {
	if s.sensor == nil {
		return errors.NotValidf("code error server Sensor=nil")
	}
	s.listens.Lock()
	defer s.listens.Unlock()

	if !s.alive.Add(len(addrs)) {
		return errors.Errorf("Listen after Close")
	}
	lc := net.ListenConfig{}
	errs := make([]error, 0)
	for _, addr := range addrs {
		s.log.Debugf("listen addr=%s", addr)
		ll, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			s.alive.Done()
			errs = append(errs, errors.Annotatef(err, "listen addr=%s", addr))
			continue
		}
		s.listens.m[addr] = ll
		s.log.Infof("listening on %s", addrString(ll.Addr()))
		go s.acceptLoop(ll)
	}
	return helpers.FoldErrors(errs)
}

// Serve runs accept loop on listener created elsewhere. Listener is closed by Close.
func (s *Server) Serve(ll net.Listener) error {
	if s.sensor == nil {
		return errors.NotValidf("code error server Sensor=nil")
	}
	s.listens.Lock()
	defer s.listens.Unlock()
	if !s.alive.Add(1) {
		return errors.Errorf("Serve after Close")
	}
	s.listens.m[ll.Addr().String()] = ll
	go s.acceptLoop(ll)
	return nil
}

// Done is closed when a listener fails permanently, see Err.
func (s *Server) Done() <-chan struct{} { return s.failed.ch }

// Err returns first permanent accept error or nil.
func (s *Server) Err() error {
	select {
	case <-s.failed.ch:
		return s.failed.err
	default:
		return nil
	}
}

func (s *Server) fail(err error) {
	s.failed.Do(func() {
		s.failed.err = err
		close(s.failed.ch)
	})
}

func (s *Server) Stat() *SessionStat { return &s.stat }

// Sessions returns snapshot of live sessions ordered by ID.
func (s *Server) Sessions() []SessionInfo {
	s.sessions.RLock()
	list := make([]SessionInfo, 0, len(s.sessions.m))
	for _, sess := range s.sessions.m {
		list = append(list, sess.info())
	}
	s.sessions.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// Close stops accepting and asks sessions to finish current response.
// When ctx is done before sessions drain, remaining connections are closed forcibly
// and error with ctx.Err() cause is returned. Safe to call many times.
func (s *Server) Close(ctx context.Context) error {
	s.alive.Stop()
	helpers.WithLock(&s.listens, func() {
		for addr, ll := range s.listens.m {
			_ = ll.Close()
			delete(s.listens.m, addr)
		}
	})
	s.eachConn(Conn.interrupt)

	select {
	case <-s.alive.WaitChan():
		return nil
	case <-ctx.Done():
	}
	s.log.Warnf("drain timeout, force close sessions=%d", len(s.Sessions()))
	s.eachConn(func(c Conn) { _ = c.die(ErrClosing) })
	s.alive.Wait()
	return errors.Annotate(ctx.Err(), "server drain")
}

func (s *Server) eachConn(f func(Conn)) {
	s.sessions.RLock()
	defer s.sessions.RUnlock()
	for _, sess := range s.sessions.m {
		f(sess.conn)
	}
}

func (s *Server) connOptions() ConnOptions {
	return ConnOptions{
		Log:            s.log,
		NetworkTimeout: s.opt.NetworkTimeout,
		ReadLimit:      s.opt.ReadLimit,
	}
}

func (s *Server) acceptLoop(ll net.Listener) {
	defer s.alive.Done() // one alive subtask for each listener
	retry := helpers.NewBackoff(acceptRetryStart, acceptRetryStep, acceptRetryMax, time.Millisecond)
	for {
		select {
		case s.slots <- struct{}{}:
		case <-s.alive.StopChan():
			return
		}
		conn, err := ll.Accept()
		if !s.alive.IsRunning() {
			<-s.slots
			if conn != nil {
				_ = conn.Close()
			}
			return
		}
		if err != nil {
			<-s.slots
			err = errors.Annotatef(err, "accept listen=%s", addrString(ll.Addr()))
			if ne, ok := errors.Cause(err).(net.Error); ok && ne.Temporary() {
				delay := retry.Failure()
				s.log.Warnf("%v, retry in %s", err, delay)
				if helpers.Sleep(context.Background(), delay, s.alive.StopChan(), ErrClosing) != nil {
					return
				}
				continue
			}
			s.log.Error(err)
			s.fail(err)
			return
		}
		retry.Reset()

		if !s.alive.Add(1) { // and one alive subtask for each connection
			<-s.slots
			_ = conn.Close()
			return
		}
		go s.processConn(s.register(NewStreamConn(conn, s.connOptions())))
	}
}

func (s *Server) register(conn Conn) *session {
	sess := newSession(nextSeq(&s.seq), conn, s.opt.Retry)
	helpers.WithLock(&s.sessions, func() {
		s.sessions.m[sess.id] = sess
	})
	return sess
}

func (s *Server) processConn(sess *session) {
	defer s.alive.Done()
	s.log.Infof("%s accepted", sess)

	err := sess.run(s)

	// mandatory cleanup on session end
	closeErr := sess.conn.die(err)
	sess.setState(stateClosed)
	s.stat.Add(sess.conn.Stat())
	helpers.WithLock(&s.sessions, func() {
		delete(s.sessions.m, sess.id)
	})
	<-s.slots
	s.log.Infof("%s closed reason=%s idle=%s", sess, helpers.ShortNetError(closeErr), sess.conn.SinceLastRecv())
}
