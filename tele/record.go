package tele

import (
	"strings"
	"time"

	"github.com/juju/errors"
)

// Data log and relay payload format.
const (
	RecordHeader     = "Date Time,Press(mBar),Temp(c),Depth(m)"
	RecordTimeLayout = "20060102 15:04:05"
)

// FormatRecord returns "YYYYMMDD HH:MM:SS,p,t,d" in local time of t.
func FormatRecord(t time.Time, r Reading) string {
	return t.Format(RecordTimeLayout) + "," + r.String()
}

func ParseRecord(s string) (time.Time, Reading, error) {
	s = strings.TrimSpace(s)
	i := strings.IndexByte(s, ',')
	if i < 0 {
		return time.Time{}, Reading{}, errors.NotValidf("record %q", s)
	}
	t, err := time.ParseInLocation(RecordTimeLayout, s[:i], time.Local)
	if err != nil {
		return time.Time{}, Reading{}, errors.Annotatef(err, "record %q", s)
	}
	r, err := ParseReading(s[i+1:])
	if err != nil {
		return time.Time{}, Reading{}, errors.Annotatef(err, "record %q", s)
	}
	return t, r, nil
}
