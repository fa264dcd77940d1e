package relay

import (
	"github.com/juju/errors"
)

const (
	DefaultBroker   = "tcp://127.0.0.1:1883"
	DefaultClientID = "tpmonitor"
	DefaultTopic    = "tpmonitor/reading"
)

type Config struct {
	Enabled      bool   `hcl:"enabled"`
	Broker       string `hcl:"broker"`
	ClientID     string `hcl:"client_id"`
	Topic        string `hcl:"topic"`
	PersistPath  string `hcl:"persist_path"` // empty = memory only, lost on exit
	KeepaliveSec int    `hcl:"keepalive_sec"`
	PublishSec   int    `hcl:"publish_timeout_sec"`
	LogDebug     bool   `hcl:"log_debug"`
}

func (c *Config) SetDefaults() {
	if c.Broker == "" {
		c.Broker = DefaultBroker
	}
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
}

func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.KeepaliveSec < 0 || c.PublishSec < 0 {
		return errors.NotValidf("relay timeouts must not be negative")
	}
	return nil
}
