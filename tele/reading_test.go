package tele

import (
	"math"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadingString(t *testing.T) {
	t.Parallel()

	cases := []struct {
		r      Reading
		expect string
	}{
		{Reading{1013.25, 20.0, 5.0}, "1013.25,20.0,5.0"},
		{Reading{1013.2504, 19.99951, 0.1234}, "1013.25,20.0,0.123"},
		{Reading{998.0006, -1.5, -0.25}, "998.001,-1.5,-0.25"},
		{Reading{-1, 20, 5}, "-1.0,20.0,5.0"},
		{SentinelReading, "-1,-1,-1"},
	}
	for _, c := range cases {
		assert.Equal(t, c.expect, c.r.String())
		assert.Equal(t, c.expect, string(c.r.Bytes()))
	}
}

func TestFormatValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0.0", FormatValue(0))
	assert.Equal(t, "12.346", FormatValue(12.3456))
	assert.Equal(t, "100000.0", FormatValue(100000))
	assert.Equal(t, "NaN", FormatValue(math.NaN()))
	assert.Equal(t, "+Inf", FormatValue(math.Inf(1)))
}

func TestParseReading(t *testing.T) {
	t.Parallel()

	r, err := ParseReading("1013.25,20.0,5.0")
	require.NoError(t, err)
	assert.Equal(t, Reading{1013.25, 20, 5}, r)
	assert.False(t, r.IsSentinel())

	r, err = ParseReading("-1,-1,-1")
	require.NoError(t, err)
	assert.True(t, r.IsSentinel())

	r, err = ParseReading(" 1000.5 , 4.25 ,-0.5\n")
	require.NoError(t, err)
	assert.Equal(t, Reading{1000.5, 4.25, -0.5}, r)

	for _, bad := range []string{"", "1,2", "1,2,3,4", "CMD_UNKNOWN : r al", "a,b,c", "1,,3"} {
		_, err = ParseReading(bad)
		require.Error(t, err, "input=%q", bad)
		assert.Equal(t, ErrMalformedReply, errors.Cause(err), "input=%q", bad)
	}
}

func TestReadingRoundTripThreeDecimals(t *testing.T) {
	t.Parallel()

	in := Reading{Pressure: 1001.23456, Temperature: 12.3456, Depth: 3.21098}
	out, err := ParseReading(in.String())
	require.NoError(t, err)
	assert.InDelta(t, in.Pressure, out.Pressure, 0.0005)
	assert.InDelta(t, in.Temperature, out.Temperature, 0.0005)
	assert.InDelta(t, in.Depth, out.Depth, 0.0005)
}

func TestReadingDerived(t *testing.T) {
	t.Parallel()

	r := Reading{Pressure: 1013.25, Temperature: 20, Depth: 3.048}
	assert.InDelta(t, 68.0, r.Fahrenheit(), 1e-9)
	assert.InDelta(t, 10.0, r.DepthFeet(), 1e-9)
}
