// Package relay forwards readings to remote monitor.
//
// Relay contract:
// - Init() fails only with invalid config or broken queue, network issues ignored
// - Publish() blocks at most for disk write,
//   network may be slow or absent, readings are delivered in background
// - readings are delivered at least once, order is not preserved after failure
// - Close() does not wait for delivery, pending readings stay in persistent queue
package relay

import (
	"context"
	"expvar"
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/sjstein/tpMonitor/helpers"
	"github.com/sjstein/tpMonitor/log2"
	"github.com/sjstein/tpMonitor/tele"
	"github.com/temoto/alive/v2"
	"github.com/temoto/spq"
)

type Relay struct {
	alive     *alive.Alive
	backoff   *helpers.Backoff
	config    Config
	log       *log2.Log
	q         *spq.Queue
	transport Transporter
	stat      Stat
}

type Stat struct {
	Pushed  expvar.Int
	Sent    expvar.Int
	Retried expvar.Int
	Dropped expvar.Int
}

func (s *Stat) String() string {
	return fmt.Sprintf(`{"pushed":%d,"sent":%d,"retried":%d,"dropped":%d}`,
		s.Pushed.Value(), s.Sent.Value(), s.Retried.Value(), s.Dropped.Value())
}

func New() *Relay { return &Relay{} }

// NewWithTransporter is used in tests and for custom transports.
func NewWithTransporter(trans Transporter) *Relay {
	return &Relay{transport: trans}
}

func (self *Relay) Init(ctx context.Context, log *log2.Log, config Config) error {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return errors.Annotate(err, "relay config")
	}
	self.config = config
	self.log = log
	if self.config.LogDebug {
		self.log = log.Clone(log2.LDebug)
	}
	if !self.config.Enabled {
		return nil
	}
	if self.backoff == nil {
		self.backoff = helpers.NewBackoff(helpers.DefaultBackoffStart, helpers.DefaultBackoffStep, helpers.DefaultBackoffMax, helpers.DefaultBackoffUnit)
	}

	// test code sets .transport
	if self.transport == nil { // production path
		self.transport = &MQTTTransport{}
	}
	if err := self.transport.Init(ctx, self.log, self.config); err != nil {
		return errors.Annotate(err, "relay transport")
	}

	path := self.config.PersistPath
	if path == "" {
		path = spq.OnlyForTesting
	}
	var err error
	self.q, err = spq.Open(path)
	if err != nil {
		return errors.Annotatef(err, "relay queue path=%s", self.config.PersistPath)
	}

	self.alive = alive.NewAlive()
	self.alive.Add(1)
	go self.qworker()
	return nil
}

// SetBackoff overrides retry delay after failed delivery. Call before Init.
func (self *Relay) SetBackoff(b *helpers.Backoff) { self.backoff = b }

func (self *Relay) Stat() *Stat { return &self.stat }

func (self *Relay) Enabled() bool { return self != nil && self.config.Enabled }

func (self *Relay) Publish(t time.Time, r tele.Reading) error {
	if !self.Enabled() {
		return nil
	}
	if err := self.q.MarshalPush(Record{Time: t, Reading: r}); err != nil {
		return errors.Annotate(err, "relay push")
	}
	self.stat.Pushed.Add(1)
	return nil
}

func (self *Relay) Close() {
	if !self.Enabled() || self.alive == nil {
		return
	}
	self.alive.Stop()
	if err := self.q.Close(); err != nil {
		self.log.Errorf("relay queue close err=%v", err)
	}
	self.alive.Wait()
	self.transport.Close()
	self.log.Debugf("relay closed stat=%s", self.stat.String())
}

func (self *Relay) qworker() {
	defer self.alive.Done()
	for {
		box, err := self.q.Peek()
		switch err {
		case nil:
			// success path
			b := box.Bytes()
			del := self.qhandle(b)
			delay := self.backoff.Update(del)
			if del {
				if err = self.q.Delete(box); err != nil {
					self.log.Errorf("relay Delete b=%x err=%v", b, err)
				}
				continue
			}
			self.stat.Retried.Add(1)
			if err = self.q.DeletePush(box); err != nil {
				self.log.Errorf("relay DeletePush b=%x err=%v", b, err)
			}
			self.log.Debugf("relay delivery failed, retry in %s", delay)
			if helpers.Sleep(context.Background(), delay, self.alive.StopChan(), spq.ErrClosed) != nil {
				return
			}

		case spq.ErrClosed:
			if self.alive.IsRunning() {
				self.log.Errorf("CRITICAL relay spq closed unexpectedly")
			}
			return

		default:
			self.log.Errorf("CRITICAL relay spq err=%v", err)
			if helpers.Sleep(context.Background(), self.backoff.Failure(), self.alive.StopChan(), spq.ErrClosed) != nil {
				return
			}
		}
	}
}

// qhandle returns true when item must be removed from queue.
func (self *Relay) qhandle(b []byte) bool {
	var rec Record
	if err := rec.UnmarshalBinary(b); err != nil {
		self.log.Errorf("relay drop b=%x err=%v", b, err)
		self.stat.Dropped.Add(1)
		// retry will not help
		return true
	}
	if !self.transport.Send([]byte(rec.String())) {
		return false
	}
	self.stat.Sent.Add(1)
	return true
}
