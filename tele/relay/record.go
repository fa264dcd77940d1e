package relay

import (
	"time"

	"github.com/juju/errors"
	"github.com/sjstein/tpMonitor/tele"
)

// denote value type in persistent queue bytes form
const qReading byte = 1

// Record is queue item and relay payload, same text as data log line.
type Record struct {
	Time    time.Time
	Reading tele.Reading
}

func (r Record) String() string { return tele.FormatRecord(r.Time, r.Reading) }

func (r Record) MarshalBinary() ([]byte, error) {
	s := r.String()
	b := make([]byte, 0, 1+len(s))
	b = append(b, qReading)
	return append(b, s...), nil
}

func (r *Record) UnmarshalBinary(b []byte) error {
	if len(b) == 0 {
		return errors.NotValidf("empty record")
	}
	if b[0] != qReading {
		return errors.NotValidf("record kind=%d", b[0])
	}
	t, reading, err := tele.ParseRecord(string(b[1:]))
	if err != nil {
		return err
	}
	r.Time, r.Reading = t, reading
	return nil
}
