package sensor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/sjstein/tpMonitor/helpers"
	"github.com/sjstein/tpMonitor/log2"
	"github.com/sjstein/tpMonitor/tele"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardSample(t *testing.T) {
	t.Parallel()

	f := &Fixed{P: 1013.25, T: 20, D: 5, FailReads: 1}
	g := NewGuard(f)

	r, err := g.Sample()
	require.Error(t, err)
	assert.Equal(t, ErrReadFailed, errors.Cause(err))
	assert.True(t, r.IsSentinel())

	r, err = g.Sample()
	require.NoError(t, err)
	assert.Equal(t, tele.Reading{Pressure: 1013.25, Temperature: 20, Depth: 5}, r)
	assert.Equal(t, 2, f.Reads())
}

// counting adapter detects overlapping transactions
type overlapAdapter struct {
	Fixed
	mu     sync.Mutex
	inside int
	max    int
}

func (o *overlapAdapter) Read() error {
	o.mu.Lock()
	o.inside++
	if o.inside > o.max {
		o.max = o.inside
	}
	o.mu.Unlock()
	time.Sleep(time.Millisecond)
	o.mu.Lock()
	o.inside--
	o.mu.Unlock()
	return nil
}

func TestGuardSerializes(t *testing.T) {
	t.Parallel()

	a := &overlapAdapter{}
	g := NewGuard(a)
	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.Sample()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, a.max)
}

func TestInitRetry(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	f := &Fixed{FailInits: 2}
	b := helpers.NewBackoff(2, 1, 0, time.Millisecond)
	require.NoError(t, InitRetry(context.Background(), log, NewGuard(f), b, 5))
	assert.Equal(t, 2, b.Counter())

	f = &Fixed{FailInits: 10}
	b = helpers.NewBackoff(2, 1, 0, time.Millisecond)
	err := InitRetry(context.Background(), log, NewGuard(f), b, 3)
	require.Error(t, err)
	assert.Equal(t, ErrInitFailed, errors.Cause(err))
	assert.Equal(t, 4, b.Counter())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f = &Fixed{FailInits: 10}
	err = InitRetry(ctx, log, NewGuard(f), helpers.NewBackoff(2, 1, 0, time.Hour), 0)
	require.Error(t, err)
	assert.Equal(t, context.Canceled, errors.Cause(err))
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	f := &Fixed{P: 1013.25, T: 20, D: 0}
	lines, err := Describe(NewGuard(f))
	require.NoError(t, err)
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "initial pressure: "))
	assert.Contains(t, lines[1], "68 F")
	assert.Contains(t, lines[1], "293 K")
	assert.Equal(t, DensitySaltwater, f.Density)

	f = &Fixed{FailReads: 1}
	_, err = Describe(NewGuard(f))
	assert.Equal(t, ErrReadFailed, errors.Cause(err))
}

func TestMockRanges(t *testing.T) {
	t.Parallel()

	m := NewMock(1)
	require.NoError(t, m.Init())
	for i := 0; i < 1000; i++ {
		require.NoError(t, m.Read())
		p := m.Pressure(UnitsMbar)
		c := m.Temperature(Celsius)
		require.True(t, p >= 750 && p <= 1250, "p=%v", p)
		require.True(t, c >= 5 && c <= 45, "c=%v", c)
		assert.InDelta(t, c*9/5+32, m.Temperature(Fahrenheit), 1e-9)
		assert.InDelta(t, (p*100-101300)/(DensityFreshwater*gravity), m.Depth(), 1e-9)
	}
	m.SetFluidDensity(DensitySaltwater)
	p := m.Pressure(UnitsMbar)
	assert.InDelta(t, (p*100-101300)/(DensitySaltwater*gravity), m.Depth(), 1e-9)
}

func TestParseModel(t *testing.T) {
	t.Parallel()

	m, err := ParseModel("02ba")
	require.NoError(t, err)
	assert.Equal(t, Model02BA, m)
	m, err = ParseModel("")
	require.NoError(t, err)
	assert.Equal(t, Model30BA, m)
	_, err = ParseModel("bar100")
	assert.Error(t, err)
}
