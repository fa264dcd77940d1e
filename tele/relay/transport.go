package relay

import (
	"context"

	"github.com/sjstein/tpMonitor/log2"
)

// Relay transport contract:
// - Init fails only with invalid config, ignores network errors
// - Send delivers one payload within timeout, false means retry later
// - application may start without network available
type Transporter interface {
	Init(ctx context.Context, log *log2.Log, config Config) error
	Send(payload []byte) bool
	Close()
}
