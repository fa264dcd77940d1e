package tele

import (
	"math"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

const sentinelText = "-1,-1,-1"

// Reading is one sensor sample: pressure mbar, temperature Celsius, depth meters.
// Either all fields are physical values or all are -1 (SentinelReading).
type Reading struct {
	Pressure    float64
	Temperature float64
	Depth       float64
}

var SentinelReading = Reading{Pressure: -1, Temperature: -1, Depth: -1}

func (r Reading) IsSentinel() bool { return r == SentinelReading }

func (r Reading) Fahrenheit() float64 { return r.Temperature*9/5 + 32 }
func (r Reading) DepthFeet() float64  { return r.Depth / 0.3048 }

// String is wire form "p,t,d", each value rounded to 3 decimals.
func (r Reading) String() string {
	if r.IsSentinel() {
		return sentinelText
	}
	return FormatValue(r.Pressure) + "," + FormatValue(r.Temperature) + "," + FormatValue(r.Depth)
}

func (r Reading) Bytes() []byte { return []byte(r.String()) }

// FormatValue rounds to 3 decimals and prints shortest form,
// integral values keep ".0" suffix: 20 -> "20.0", 1013.2504 -> "1013.25".
func FormatValue(v float64) string {
	r := math.Round(v*1000) / 1000
	s := strconv.FormatFloat(r, 'f', -1, 64)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}

func ParseReading(s string) (Reading, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Reading{}, errors.Annotatef(ErrMalformedReply, "fields=%d reply=%q", len(parts), s)
	}
	var vs [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Reading{}, errors.Annotatef(ErrMalformedReply, "field=%d reply=%q", i, s)
		}
		vs[i] = v
	}
	return Reading{Pressure: vs[0], Temperature: vs[1], Depth: vs[2]}, nil
}
