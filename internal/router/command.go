package router

import "fmt"

// CommandKind enumerates the control messages pages may send the router.
type CommandKind int

const (
	// CommandSkipWaiting forces immediate activation without a graceful
	// handoff from the previous instance.
	CommandSkipWaiting CommandKind = iota
	// CommandClearCache deletes every named cache store.
	CommandClearCache
	// CommandLogout also deletes every store. Mandatory on logout so one
	// user's cached API data cannot leak to the next user on the device.
	CommandLogout
)

func (k CommandKind) String() string {
	switch k {
	case CommandSkipWaiting:
		return "skipWaiting"
	case CommandClearCache:
		return "clearCache"
	case CommandLogout:
		return "logout"
	default:
		return "unknown"
	}
}

// Command is the decoded control message. The wire protocol is a short
// string; decoding it into a tagged variant at the boundary keeps typos from
// being silently ignored.
type Command struct {
	Kind CommandKind
}

// ParseCommand decodes a wire command string.
func ParseCommand(s string) (Command, error) {
	switch s {
	case "skipWaiting":
		return Command{Kind: CommandSkipWaiting}, nil
	case "clearCache":
		return Command{Kind: CommandClearCache}, nil
	case "logout":
		return Command{Kind: CommandLogout}, nil
	default:
		return Command{}, fmt.Errorf("unknown control command %q", s)
	}
}
