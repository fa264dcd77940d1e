package helpers

import (
	"io"
	"net"
	"strings"

	"github.com/juju/errors"
)

func FoldErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	ss := make([]string, 0, len(errs))
	for _, e := range errs {
		if e != nil {
			ss = append(ss, e.Error())
		}
	}
	if len(ss) == 0 {
		return nil
	}
	return errors.New(strings.Join(ss, "\n"))
}

// ShortNetError reformats well known network errors for easier log reading.
func ShortNetError(e error) string {
	if e == nil {
		return ""
	}
	cause := errors.Cause(e)
	if cause == io.EOF {
		return "closed by remote"
	}
	if neterr, ok := cause.(net.Error); ok && neterr.Timeout() {
		return "timeout"
	}
	estr := e.Error()
	switch {
	case strings.HasSuffix(estr, "i/o timeout"):
		return "timeout"
	case strings.HasSuffix(estr, "connection reset by peer"):
		return "closed by remote"
	case strings.HasSuffix(estr, "broken pipe"):
		return "broken pipe"
	case strings.HasSuffix(estr, "connection refused"):
		return "connection refused"
	case strings.HasSuffix(estr, "use of closed network connection"):
		return "closed"
	}
	return estr
}
