package state

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/sjstein/tpMonitor/helpers"
	"github.com/sjstein/tpMonitor/log2"
	"github.com/sjstein/tpMonitor/monitor"
	"github.com/sjstein/tpMonitor/sensor"
	"github.com/sjstein/tpMonitor/tele"
	"github.com/sjstein/tpMonitor/tele/relay"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Server  ServerConfig  `hcl:"server"`
	Monitor MonitorConfig `hcl:"monitor"`
	Retry   RetryConfig   `hcl:"retry"`
	Relay   relay.Config  `hcl:"relay"`

	_copy_guard sync.Mutex //nolint:unused
}

type ServerConfig struct {
	ListenInterface   string       `hcl:"listen_interface"` // empty = all addresses
	Port              int          `hcl:"port"`
	MaxSessions       int          `hcl:"max_sessions"`
	LogDir            string       `hcl:"log_dir"`
	NetworkTimeoutSec int          `hcl:"network_timeout_sec"`
	DrainTimeoutSec   int          `hcl:"drain_timeout_sec"`
	Sensor            SensorConfig `hcl:"sensor"`
}

type SensorConfig struct {
	Driver       string  `hcl:"driver"` // ms5837 | mock
	I2CBus       string  `hcl:"i2c_bus"`
	Address      int     `hcl:"address"`
	Model        string  `hcl:"model"`
	OSR          int     `hcl:"osr"`
	FluidDensity float64 `hcl:"fluid_density"`
	InitAttempts int     `hcl:"init_attempts"`
}

type MonitorConfig struct {
	Server            string `hcl:"server"`
	Port              int    `hcl:"port"`
	FrequencySec      int    `hcl:"frequency_sec"`
	RunTimeMin        int    `hcl:"run_time_min"` // -1 forever, 0 single poll
	LogFile           string `hcl:"log_file"`
	Verbosity         int    `hcl:"verbosity"`
	NetworkTimeoutSec int    `hcl:"network_timeout_sec"`
}

type RetryConfig struct {
	Start  int `hcl:"start"`
	Step   int `hcl:"step"`
	Max    int `hcl:"max"`
	UnitMs int `hcl:"unit_ms"`
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

// DefaultConfig is the base every config file is merged into.
func DefaultConfig() *Config {
	c := &Config{includeSeen: make(map[string]struct{})}
	c.Server = ServerConfig{
		ListenInterface:   "eth0",
		Port:              tele.DefaultPort,
		MaxSessions:       8,
		LogDir:            ".",
		NetworkTimeoutSec: 30,
		DrainTimeoutSec:   5,
		Sensor: SensorConfig{
			Driver:       "ms5837",
			Address:      int(sensor.DefaultMS5837Addr),
			Model:        "30ba",
			OSR:          int(sensor.OSR8192),
			FluidDensity: sensor.DensitySaltwater,
			InitAttempts: 10,
		},
	}
	c.Monitor = MonitorConfig{
		Port:              tele.DefaultPort,
		FrequencySec:      1,
		RunTimeMin:        -1,
		Verbosity:         int(log2.LInfo),
		NetworkTimeoutSec: 30,
	}
	c.Retry = RetryConfig{
		Start:  helpers.DefaultBackoffStart,
		Step:   helpers.DefaultBackoffStep,
		Max:    helpers.DefaultBackoffMax,
		UnitMs: int(helpers.DefaultBackoffUnit / time.Millisecond),
	}
	c.Relay.SetDefaults()
	return c
}

func (c *Config) Validate() error {
	errs := make([]error, 0, 8)
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, errors.NotValidf("config "+format, args...))
		}
	}
	s := &c.Server
	check(s.Port > 0 && s.Port <= 65535, "server.port=%d", s.Port)
	check(s.MaxSessions >= 1, "server.max_sessions=%d", s.MaxSessions)
	check(s.NetworkTimeoutSec >= 0, "server.network_timeout_sec=%d", s.NetworkTimeoutSec)
	check(s.DrainTimeoutSec >= 0, "server.drain_timeout_sec=%d", s.DrainTimeoutSec)
	check(s.Sensor.Driver == "ms5837" || s.Sensor.Driver == "mock", "server.sensor.driver=%s", s.Sensor.Driver)
	check(s.Sensor.Address > 0 && s.Sensor.Address < 0x80, "server.sensor.address=%d", s.Sensor.Address)
	check(s.Sensor.OSR >= int(sensor.OSR256) && s.Sensor.OSR <= int(sensor.OSR8192), "server.sensor.osr=%d", s.Sensor.OSR)
	check(s.Sensor.FluidDensity > 0, "server.sensor.fluid_density=%v", s.Sensor.FluidDensity)
	if _, err := sensor.ParseModel(s.Sensor.Model); err != nil {
		errs = append(errs, errors.Annotate(err, "config server.sensor.model"))
	}

	m := &c.Monitor
	check(m.Port > 0 && m.Port <= 65535, "monitor.port=%d", m.Port)
	check(m.FrequencySec >= 1, "monitor.frequency_sec=%d", m.FrequencySec)
	check(m.RunTimeMin >= -1, "monitor.run_time_min=%d", m.RunTimeMin)
	check(m.Verbosity >= 0 && m.Verbosity <= int(log2.LDebug), "monitor.verbosity=%d", m.Verbosity)

	r := &c.Retry
	check(r.Start >= 1, "retry.start=%d", r.Start)
	check(r.Step >= 1, "retry.step=%d", r.Step)
	check(r.Max == 0 || r.Max >= r.Start, "retry.max=%d", r.Max)
	check(r.UnitMs >= 1, "retry.unit_ms=%d", r.UnitMs)

	if err := c.Relay.Validate(); err != nil {
		errs = append(errs, errors.Annotate(err, "config relay"))
	}
	return helpers.FoldErrors(errs)
}

func (c *Config) Backoff() *helpers.Backoff {
	return helpers.NewBackoff(c.Retry.Start, c.Retry.Step, c.Retry.Max, time.Duration(c.Retry.UnitMs)*time.Millisecond)
}

// PollingState maps monitor section onto runtime state.
func (c *Config) PollingState() *monitor.PollingState {
	ps := &monitor.PollingState{
		Server:    c.Monitor.Server,
		Port:      c.Monitor.Port,
		Frequency: time.Duration(c.Monitor.FrequencySec) * time.Second,
		LogPath:   c.Monitor.LogFile,
	}
	switch {
	case c.Monitor.RunTimeMin < 0:
		ps.RunTime = monitor.RunForever
	case c.Monitor.RunTimeMin == 0:
		ps.RunTime = monitor.RunOnce
	default:
		ps.RunTime = time.Duration(c.Monitor.RunTimeMin) * time.Minute
	}
	return ps
}

// Adapter creates sensor driver, not initialized yet.
func (sc *SensorConfig) Adapter(seed int64) (sensor.Adapter, error) {
	switch sc.Driver {
	case "mock":
		return sensor.NewMock(seed), nil
	case "ms5837", "":
		model, err := sensor.ParseModel(sc.Model)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return sensor.NewMS5837(sensor.MS5837Options{
			Bus:   sc.I2CBus,
			Addr:  uint16(sc.Address),
			Model: model,
			OSR:   sensor.OSR(sc.OSR),
		}), nil
	}
	return nil, errors.NotSupportedf("sensor driver=%s", sc.Driver)
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s", source.Name)
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig merges named sources over DefaultConfig, in order.
// Includes are resolved relative to directory of the first name.
func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.Errorf("code error ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names = append([]string{name}, names[1:]...)
	}
	c := DefaultConfig()
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if len(errs) == 0 {
		if err := c.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}

func (c *Config) String() string {
	return fmt.Sprintf("server=%+v monitor=%+v retry=%+v relay.enabled=%t",
		c.Server, c.Monitor, c.Retry, c.Relay.Enabled)
}
