// Package sensor is pressure/temperature sensor access for tpserver.
// Adapter is synchronous and not safe for concurrent use, share it via Guard.
package sensor

import (
	"fmt"
	"math"
)

type Model uint8

const (
	Model02BA Model = iota
	Model30BA
)

func ParseModel(s string) (Model, error) {
	switch s {
	case "02ba", "02BA":
		return Model02BA, nil
	case "", "30ba", "30BA":
		return Model30BA, nil
	}
	return 0, fmt.Errorf("unknown sensor model=%s", s)
}

// Fluid density kg/m^3
const (
	DensityFreshwater float64 = 997
	DensitySaltwater  float64 = 1029
)

// Pressure conversion factors from native unit mbar.
const (
	UnitsPa   float64 = 100.0
	UnitsHPa  float64 = 1.0
	UnitsKPa  float64 = 0.1
	UnitsMbar float64 = 1.0
	UnitsBar  float64 = 0.001
	UnitsAtm  float64 = 0.000986923
	UnitsTorr float64 = 0.750062
	UnitsPsi  float64 = 0.014503773773022
)

type TempUnit uint8

const (
	Celsius TempUnit = iota + 1
	Fahrenheit
	Kelvin
)

const gravity = 9.80665

var (
	ErrInitFailed = fmt.Errorf("sensor init failed")
	ErrReadFailed = fmt.Errorf("sensor read failed")
)

// Adapter is the sensor driver surface.
// Read() latches a new sample, getters return values of the last successful Read().
type Adapter interface {
	Init() error
	Read() error
	Pressure(conversion float64) float64
	Temperature(unit TempUnit) float64
	Depth() float64
	Altitude() float64
	SetFluidDensity(density float64)
}

func convertTemperature(celsius float64, unit TempUnit) float64 {
	switch unit {
	case Fahrenheit:
		return celsius*9/5 + 32
	case Kelvin:
		return celsius + 273
	}
	return celsius
}

func depthFromPressure(mbar, density float64) float64 {
	return (mbar*UnitsPa - 101300) / (density * gravity)
}

func altitudeFromPressure(mbar float64) float64 {
	return (1 - math.Pow(mbar/1013.25, 0.190284)) * 145366.45 * 0.3048
}
