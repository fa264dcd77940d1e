package sensor

import (
	"math"
	"math/rand"
	"sync"

	"github.com/juju/errors"
)

// Mock produces random plausible data, for running tpserver without hardware.
// Pressure in 750..1250 mbar, temperature in 5..45 C, triangular distribution.
type Mock struct {
	rand    *rand.Rand
	density float64
	mbar    float64
	celsius float64
}

var _ Adapter = &Mock{}

func NewMock(seed int64) *Mock {
	return &Mock{
		rand:    rand.New(rand.NewSource(seed)),
		density: DensityFreshwater,
	}
}

func (m *Mock) Init() error { return nil }

func (m *Mock) Read() error {
	m.mbar = triangular(m.rand, 750, 1250)
	m.celsius = triangular(m.rand, 5, 45)
	return nil
}

func (m *Mock) SetFluidDensity(density float64) { m.density = density }

func (m *Mock) Pressure(conversion float64) float64 { return m.mbar * conversion }
func (m *Mock) Temperature(unit TempUnit) float64  { return convertTemperature(m.celsius, unit) }
func (m *Mock) Depth() float64                     { return depthFromPressure(m.mbar, m.density) }
func (m *Mock) Altitude() float64                  { return altitudeFromPressure(m.mbar) }

// triangular distribution with mode in the middle
func triangular(r *rand.Rand, low, high float64) float64 {
	u := r.Float64()
	c := 0.5
	if u > c {
		u = 1 - u
		c = 1 - c
		low, high = high, low
	}
	return low + (high-low)*math.Sqrt(u*c)
}

// Fixed returns constant values and is safe for concurrent use.
// First FailReads calls to Read() fail, also Init() fails FailInits times.
// Depth is taken as is, fluid density is only recorded.
type Fixed struct {
	mu        sync.Mutex
	P, T, D   float64
	FailReads int
	FailInits int
	Density   float64
	reads     int
	inits     int
}

var _ Adapter = &Fixed{}

func (f *Fixed) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	if f.inits <= f.FailInits {
		return errors.Errorf("fixed sensor init failure %d/%d", f.inits, f.FailInits)
	}
	return nil
}

func (f *Fixed) Read() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.reads <= f.FailReads {
		return errors.Errorf("fixed sensor read failure %d/%d", f.reads, f.FailReads)
	}
	return nil
}

// Reads returns number of Read() calls so far.
func (f *Fixed) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *Fixed) SetFluidDensity(density float64) {
	f.mu.Lock()
	f.Density = density
	f.mu.Unlock()
}

func (f *Fixed) Pressure(conversion float64) float64 { return f.P * conversion }
func (f *Fixed) Temperature(unit TempUnit) float64  { return convertTemperature(f.T, unit) }
func (f *Fixed) Depth() float64                     { return f.D }
func (f *Fixed) Altitude() float64                  { return altitudeFromPressure(f.P) }
