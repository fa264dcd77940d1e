package sensor

import (
	"time"

	"github.com/juju/errors"
	"github.com/sjstein/tpMonitor/crc"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"
)

const DefaultMS5837Addr uint16 = 0x76

// Oversampling ratio, conversion time grows 2x per step.
type OSR uint8

const (
	OSR256 OSR = iota
	OSR512
	OSR1024
	OSR2048
	OSR4096
	OSR8192
)

const (
	cmdReset     byte = 0x1e
	cmdADCRead   byte = 0x00
	cmdPROMRead  byte = 0xa0
	cmdConvertD1 byte = 0x40
	cmdConvertD2 byte = 0x50
)

type Txer interface {
	Tx(w, r []byte) error
}

type MS5837Options struct {
	Bus   string // i2creg name, empty = first available
	Addr  uint16
	Model Model
	OSR   OSR
}

// MS5837 is Blue Robotics Bar02/Bar30 pressure sensor over I2C.
type MS5837 struct {
	opt     MS5837Options
	bus     i2c.BusCloser
	dev     Txer
	prom    [8]uint16
	density float64
	mbar    float64
	celsius float64
	sleep   func(time.Duration)
}

var _ Adapter = &MS5837{}

func NewMS5837(opt MS5837Options) *MS5837 {
	if opt.Addr == 0 {
		opt.Addr = DefaultMS5837Addr
	}
	if opt.OSR > OSR8192 {
		opt.OSR = OSR8192
	}
	return &MS5837{
		opt:     opt,
		density: DensityFreshwater,
		sleep:   time.Sleep,
	}
}

// NewMS5837Dev attaches to already opened device, used for tests and custom buses.
func NewMS5837Dev(dev Txer, opt MS5837Options) *MS5837 {
	s := NewMS5837(opt)
	s.dev = dev
	return s
}

func (s *MS5837) Init() error {
	if s.dev == nil {
		if _, err := host.Init(); err != nil {
			return errors.Annotate(err, "periph/init")
		}
		bus, err := i2creg.Open(s.opt.Bus)
		if err != nil {
			return errors.Annotatef(err, "i2c open bus=%s", s.opt.Bus)
		}
		s.bus = bus
		s.dev = &i2c.Dev{Bus: bus, Addr: s.opt.Addr}
	}

	if err := s.dev.Tx([]byte{cmdReset}, nil); err != nil {
		return errors.Annotate(err, "ms5837 reset")
	}
	s.sleep(10 * time.Millisecond)

	var buf [2]byte
	for i := 0; i < 7; i++ {
		if err := s.dev.Tx([]byte{cmdPROMRead + byte(2*i)}, buf[:]); err != nil {
			return errors.Annotatef(err, "ms5837 PROM read word=%d", i)
		}
		s.prom[i] = uint16(buf[0])<<8 | uint16(buf[1])
	}
	s.prom[7] = 0
	if !crc.PROMValid(s.prom) {
		return errors.Errorf("ms5837 PROM CRC mismatch stored=%x computed=%x", s.prom[0]>>12, crc.CRC4_MS5837(s.prom))
	}
	return nil
}

func (s *MS5837) Close() error {
	if s.bus == nil {
		return nil
	}
	return s.bus.Close()
}

func (s *MS5837) Read() error {
	if s.dev == nil {
		return errors.Errorf("ms5837 read before init")
	}
	d1, err := s.convert(cmdConvertD1)
	if err != nil {
		return errors.Annotate(err, "ms5837 D1")
	}
	d2, err := s.convert(cmdConvertD2)
	if err != nil {
		return errors.Annotate(err, "ms5837 D2")
	}
	s.mbar, s.celsius = compensate(s.opt.Model, s.prom, d1, d2)
	return nil
}

func (s *MS5837) SetFluidDensity(density float64) { s.density = density }

func (s *MS5837) Pressure(conversion float64) float64 { return s.mbar * conversion }
func (s *MS5837) Temperature(unit TempUnit) float64  { return convertTemperature(s.celsius, unit) }
func (s *MS5837) Depth() float64                     { return depthFromPressure(s.mbar, s.density) }
func (s *MS5837) Altitude() float64                  { return altitudeFromPressure(s.mbar) }

func (s *MS5837) convert(cmd byte) (uint32, error) {
	osr := s.opt.OSR
	if err := s.dev.Tx([]byte{cmd + 2*byte(osr)}, nil); err != nil {
		return 0, err
	}
	// max conversion time 2.5us * 2^(8+osr)
	s.sleep(time.Duration(2500*(1<<(8+uint(osr)))) * time.Nanosecond)
	var buf [3]byte
	if err := s.dev.Tx([]byte{cmdADCRead}, buf[:]); err != nil {
		return 0, err
	}
	return uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2]), nil
}

// compensate applies first and second order temperature compensation from datasheet.
// Returns pressure mbar and temperature Celsius.
func compensate(model Model, c [8]uint16, d1, d2 uint32) (float64, float64) {
	C := func(i int) float64 { return float64(c[i]) }
	D1 := float64(d1)
	dT := float64(d2) - C(5)*256

	var sens, off float64
	if model == Model02BA {
		sens = C(1)*65536 + (C(3)*dT)/128
		off = C(2)*131072 + (C(4)*dT)/64
	} else {
		sens = C(1)*32768 + (C(3)*dT)/256
		off = C(2)*65536 + (C(4)*dT)/128
	}
	temp := 2000 + dT*C(6)/8388608

	var ti, offi, sensi float64
	t2 := (temp - 2000) * (temp - 2000)
	if model == Model02BA {
		if temp/100 < 20 {
			ti = (11 * dT * dT) / 34359738368
			offi = (31 * t2) / 8
			sensi = (63 * t2) / 32
		}
	} else {
		if temp/100 < 20 {
			ti = (3 * dT * dT) / 8589934592
			offi = (3 * t2) / 2
			sensi = (5 * t2) / 8
			if temp/100 < -15 {
				offi += 7 * (temp + 1500) * (temp + 1500)
				sensi += 4 * (temp + 1500) * (temp + 1500)
			}
		} else {
			ti = 2 * (dT * dT) / 137438953472
			offi = t2 / 16
		}
	}
	off2 := off - offi
	sens2 := sens - sensi
	temp -= ti

	if model == Model02BA {
		p := ((D1*sens2)/2097152 - off2) / 32768
		return p / 100, temp / 100
	}
	p := ((D1*sens2)/2097152 - off2) / 8192
	return p / 10, temp / 100
}
