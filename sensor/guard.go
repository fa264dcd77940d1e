package sensor

import (
	"sync"

	"github.com/juju/errors"
	"github.com/sjstein/tpMonitor/tele"
)

// Guard owns Adapter and serializes every transaction on it.
// Concurrent sessions must not interleave Read() and getters.
type Guard struct {
	mu sync.Mutex
	a  Adapter
}

func NewGuard(a Adapter) *Guard { return &Guard{a: a} }

func (g *Guard) Do(f func(Adapter) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return f(g.a)
}

// Sample reads sensor and returns consistent Reading.
// On failure Reading is tele.SentinelReading and error cause is ErrReadFailed.
func (g *Guard) Sample() (tele.Reading, error) {
	var r tele.Reading
	err := g.Do(func(a Adapter) error {
		if err := a.Read(); err != nil {
			return errors.Wrap(err, ErrReadFailed)
		}
		r = tele.Reading{
			Pressure:    a.Pressure(UnitsMbar),
			Temperature: a.Temperature(Celsius),
			Depth:       a.Depth(),
		}
		return nil
	})
	if err != nil {
		return tele.SentinelReading, err
	}
	return r, nil
}
