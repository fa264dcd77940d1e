package telenet

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/juju/errors"
	"github.com/sjstein/tpMonitor/helpers"
	"github.com/sjstein/tpMonitor/tele"
)

type sessionState uint32

const (
	stateAwaitingCommand sessionState = iota
	stateResponding
	stateRespondingUnknown
	stateDisconnecting
	stateClosed
)

func (st sessionState) String() string {
	switch st {
	case stateAwaitingCommand:
		return "AwaitingCommand"
	case stateResponding:
		return "Responding"
	case stateRespondingUnknown:
		return "RespondingUnknown"
	case stateDisconnecting:
		return "Disconnecting"
	case stateClosed:
		return "Closed"
	}
	return fmt.Sprintf("sessionState(%d)", uint32(st))
}

// SessionInfo is read-only view of live session.
type SessionInfo struct {
	ID     uint32
	Remote string
	State  string
	Retry  int // sensor retry counter, delay units before next read after failure
	Age    time.Duration
	Idle   time.Duration // since last command, or accept if none yet
	Stat   SessionStat
}

// One connected client.
// Only processConn goroutine modifies session, other goroutines read atomics.
type session struct {
	id      uint32
	conn    Conn
	retry   helpers.Backoff
	state   uint32
	started time.Time
}

func newSession(id uint32, conn Conn, retry helpers.Backoff) *session {
	conn.SetID(id)
	sess := &session{
		id:      id,
		conn:    conn,
		retry:   retry,
		started: time.Now(),
	}
	sess.retry.Reset()
	return sess
}

func (sess *session) String() string { return sess.conn.String() }

func (sess *session) getState() sessionState { return sessionState(atomic.LoadUint32(&sess.state)) }
func (sess *session) setState(st sessionState) {
	atomic.StoreUint32(&sess.state, uint32(st))
}

func (sess *session) info() SessionInfo {
	return SessionInfo{
		ID:     sess.id,
		Remote: addrString(sess.conn.RemoteAddr()),
		State:  sess.getState().String(),
		Retry:  sess.retry.Counter(),
		Age:    time.Since(sess.started),
		Idle:   sess.conn.SinceLastRecv(),
		Stat:   sess.conn.Stat().Value(),
	}
}

// run is the command loop, returns reason to close session.
func (sess *session) run(s *Server) error {
	for {
		sess.setState(stateAwaitingCommand)
		if !s.alive.IsRunning() {
			return ErrClosing
		}
		b, err := sess.conn.Receive(context.Background())
		if err != nil {
			return err
		}
		if !utf8.Valid(b) {
			s.log.Warnf("%s command=%x", sess, b)
			return ErrNotUTF8
		}
		cmd := tele.ParseCommand(b)
		s.log.Debugf("%s command=%s", sess, cmd)
		if err = sess.handle(s, cmd); err != nil {
			return err
		}
	}
}

func (sess *session) handle(s *Server, cmd tele.Command) error {
	switch cmd.Kind {
	case tele.CommandReadAll:
		sess.setState(stateResponding)
		return sess.respondReading(s)

	case tele.CommandDisconnect:
		sess.setState(stateDisconnecting)
		s.log.Infof("%s client requested disconnect", sess)
		return ErrDisconnect

	default:
		sess.setState(stateRespondingUnknown)
		sess.conn.Stat().Unknown.Add(1)
		s.log.Warnf("%s unknown command=%q", sess, cmd.Raw)
		return sess.send(s, tele.UnknownReply(cmd.Raw))
	}
}

// Sensor failure is reported to client as sentinel reading, then session
// waits retry delay before next command. Delay grows linearly until a read succeeds.
func (sess *session) respondReading(s *Server) error {
	r, readErr := s.sensor.Sample()
	if readErr == nil {
		sess.retry.Reset()
		s.log.Infof("%s sent reading=%s", sess, r)
		return sess.send(s, r.Bytes())
	}

	sess.conn.Stat().SensorFail.Add(1)
	if err := sess.send(s, tele.SentinelReading.Bytes()); err != nil {
		return err
	}
	delay := sess.retry.Failure()
	s.log.Warnf("%s sensor err=%v retry in %s", sess, readErr, delay)
	return helpers.Sleep(context.Background(), delay, s.alive.StopChan(), ErrClosing)
}

func (sess *session) send(s *Server, b []byte) error {
	ctx, cancel := withTimeout(context.Background(), s.opt.NetworkTimeout)
	defer cancel()
	return errors.Trace(sess.conn.Send(ctx, b))
}
