// Package tele defines telemetry wire vocabulary shared by tpserver and tpmonitor:
// commands sent by monitor, readings and replies sent by server.
//
// Wire format is plain ASCII over TCP, one message per write.
//
//	client -> server   "r all"       request one reading
//	client -> server   "discon"      close this session
//	client -> server   anything else unrecognized command
//	server -> client   "p,t,d"       reading, 3 decimals
//	server -> client   "-1,-1,-1"    sensor read failed
//	server -> client   "CMD_UNKNOWN : <echo>"
package tele

import (
	"fmt"
)

const DefaultPort = 5005

var (
	ErrMalformedReply = fmt.Errorf("malformed reply")
)
