// Package monitor is polling side of tpMonitor: connect to server,
// request readings at fixed frequency, record them, stop on completion or interrupt.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/sjstein/tpMonitor/helpers"
	"github.com/sjstein/tpMonitor/log2"
	"github.com/sjstein/tpMonitor/tele"
	telenet "github.com/sjstein/tpMonitor/tele/net"
)

const DefaultDisconnectTimeout = 3 * time.Second

var ErrInterrupted = fmt.Errorf("interrupted before run time elapsed")

type Outcome uint8

const (
	OutcomeNone Outcome = iota
	OutcomeComplete
	OutcomeInterrupted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeComplete:
		return "complete"
	case OutcomeInterrupted:
		return "interrupted"
	}
	return fmt.Sprintf("Outcome(%d)", uint8(o))
}

// Poller is the server connection, implemented by telenet.Client.
type Poller interface {
	Connect(context.Context) error
	Poll(context.Context) (tele.Reading, error)
	Disconnect(context.Context) error
	Close() error
}

// Publisher receives every successful reading, implemented by relay.Relay.
type Publisher interface {
	Publish(time.Time, tele.Reading) error
}

type Options struct {
	Log     *log2.Log
	State   *PollingState
	Client  Poller
	DataLog *DataLog  // optional
	Relay   Publisher // optional
	Now     func() time.Time
}

type Monitor struct {
	client  Poller
	datalog *DataLog
	log     *log2.Log
	now     func() time.Time
	relay   Publisher
	state   *PollingState
	polls   int
}

type runState uint8

const (
	runConnecting runState = iota
	runPolling
)

func New(opt Options) *Monitor {
	m := &Monitor{
		client:  opt.Client,
		datalog: opt.DataLog,
		log:     opt.Log,
		now:     opt.Now,
		relay:   opt.Relay,
		state:   opt.State,
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Polls returns number of successful polls.
func (m *Monitor) Polls() int { return m.polls }

// Run polls until completion condition or ctx cancel (user interrupt).
// Interrupt is expected when running forever or once: OutcomeInterrupted, nil error.
// Interrupt of fixed duration run returns ErrInterrupted.
// Client is closed on return.
func (m *Monitor) Run(ctx context.Context) (Outcome, error) {
	defer m.client.Close()
	for _, line := range Banner(m.state, m.now()) {
		m.log.Info(line)
	}

	st := runConnecting
	for {
		switch st {
		case runConnecting:
			if err := m.client.Connect(ctx); err != nil {
				if ctx.Err() != nil {
					return m.interrupted()
				}
				return OutcomeNone, errors.Annotate(err, "connect")
			}
			st = runPolling

		case runPolling:
			err := m.iteration(ctx)
			if ctx.Err() != nil {
				return m.interrupted()
			}
			if errors.Cause(err) == telenet.ErrConnLost {
				m.log.Warnf("%v, reconnecting", err)
				st = runConnecting
				continue
			}
			if err != nil {
				m.disconnect()
				return OutcomeNone, err
			}

			if m.state.RunTime == RunOnce {
				return m.complete()
			}
			if helpers.Sleep(ctx, m.state.Frequency, nil, nil) != nil {
				return m.interrupted()
			}
			m.state.Elapsed += m.state.Frequency
			if m.state.complete() {
				return m.complete()
			}
		}
	}
}

// iteration returns only connection or data log errors,
// protocol faults and sensor faults are reported and skipped.
func (m *Monitor) iteration(ctx context.Context) error {
	r, err := m.client.Poll(ctx)
	switch {
	case errors.Cause(err) == tele.ErrMalformedReply:
		m.log.Warnf("%v, skip", err)
		return nil
	case err != nil:
		return err
	case r.IsSentinel():
		m.log.Warnf("server reports sensor failure, skip")
		return nil
	}

	t := m.now()
	m.polls++
	if err = m.datalog.Write(t, r); err != nil {
		return err
	}
	if m.relay != nil {
		if err = m.relay.Publish(t, r); err != nil {
			m.log.Errorf("relay err=%v", err)
		}
	}
	for _, line := range Status(m.state, t, r) {
		m.log.Info(line)
	}
	return nil
}

func (m *Monitor) complete() (Outcome, error) {
	m.disconnect()
	m.log.Infof("Acquisition complete polls=%d", m.polls)
	return OutcomeComplete, nil
}

func (m *Monitor) interrupted() (Outcome, error) {
	m.disconnect()
	if m.state.expected() {
		m.log.Infof("interrupted, polls=%d", m.polls)
		return OutcomeInterrupted, nil
	}
	m.log.Errorf("interrupted after %s of %s", m.state.Elapsed, m.state.RunTime)
	return OutcomeInterrupted, ErrInterrupted
}

func (m *Monitor) disconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultDisconnectTimeout)
	defer cancel()
	if err := m.client.Disconnect(ctx); err != nil {
		m.log.Warnf("disconnect err=%v", err)
	}
}
