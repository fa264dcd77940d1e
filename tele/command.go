package tele

import (
	"bytes"
	"fmt"
)

const (
	TokenReadAll    = "r all"
	TokenDisconnect = "discon"
	UnknownPrefix   = "CMD_UNKNOWN : "
)

type CommandKind uint8

const (
	CommandUnknown CommandKind = iota
	CommandReadAll
	CommandDisconnect
)

func (k CommandKind) String() string {
	switch k {
	case CommandReadAll:
		return "ReadAll"
	case CommandDisconnect:
		return "Disconnect"
	case CommandUnknown:
		return "Unknown"
	}
	return fmt.Sprintf("CommandKind(%d)", uint8(k))
}

// Command is decoded once at session boundary.
// Raw keeps original bytes, Unknown echo must be verbatim.
type Command struct {
	Kind CommandKind
	Raw  []byte
}

var (
	ReadAll    = Command{Kind: CommandReadAll, Raw: []byte(TokenReadAll)}
	Disconnect = Command{Kind: CommandDisconnect, Raw: []byte(TokenDisconnect)}
)

func ParseCommand(b []byte) Command {
	c := Command{Raw: b}
	switch {
	case bytes.HasPrefix(b, []byte(TokenReadAll)):
		c.Kind = CommandReadAll
	case bytes.HasPrefix(b, []byte(TokenDisconnect)):
		c.Kind = CommandDisconnect
	}
	return c
}

func (c Command) Bytes() []byte {
	switch c.Kind {
	case CommandReadAll:
		return []byte(TokenReadAll)
	case CommandDisconnect:
		return []byte(TokenDisconnect)
	}
	return c.Raw
}

func (c Command) String() string {
	if c.Kind == CommandUnknown {
		return fmt.Sprintf("Unknown(%q)", c.Raw)
	}
	return c.Kind.String()
}

// UnknownReply is server answer to unrecognized command.
func UnknownReply(raw []byte) []byte {
	b := make([]byte, 0, len(UnknownPrefix)+len(raw))
	b = append(b, UnknownPrefix...)
	return append(b, raw...)
}
