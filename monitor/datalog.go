package monitor

import (
	"os"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/sjstein/tpMonitor/tele"
)

// DataLog is append-only text file of successful polls.
// Header is written only into empty file, so restarts keep appending data.
// Nil *DataLog is valid and discards everything.
type DataLog struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

func OpenDataLog(path string) (*DataLog, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Annotate(err, "data log open")
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Annotatef(err, "data log stat path=%s", path)
	}
	if info.Size() == 0 {
		if _, err = f.WriteString(tele.RecordHeader + "\n"); err != nil {
			_ = f.Close()
			return nil, errors.Annotatef(err, "data log header path=%s", path)
		}
	}
	return &DataLog{f: f, path: path}, nil
}

func (d *DataLog) Path() string {
	if d == nil {
		return ""
	}
	return d.path
}

func (d *DataLog) Write(t time.Time, r tele.Reading) error {
	if d == nil {
		return nil
	}
	line := tele.FormatRecord(t, r) + "\n"
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return errors.Errorf("data log closed path=%s", d.path)
	}
	_, err := d.f.WriteString(line)
	return errors.Annotatef(err, "data log write path=%s", d.path)
}

func (d *DataLog) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}
