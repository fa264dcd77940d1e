// Package telenet is TCP transport for tpMonitor telemetry.
//
// Server side accepts connections and runs one session per client:
// wait for command, respond, repeat until client disconnects or I/O fails.
// Client side dials server with linear backoff and polls readings.
//
// Message boundary is one TCP read, there is no framing.
// Commands are short so a single write on the other side arrives whole
// on a private link, same assumption as the sensor station firmware.
package telenet
