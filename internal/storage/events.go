package storage

import "time"

// EventWriter is the interface for writing invocation events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *InvocationEvent)
	Close()
}

// InvocationEvent is one dispatched tool call.
type InvocationEvent struct {
	RequestID     string
	HostID        string
	Timestamp     time.Time
	ToolName      string
	Operation     string
	ArgumentsJSON string // First ArgumentsPreviewLength runes
	Status        string // "success" or "error"
	ErrorKind     string
	ErrorCode     string
	ErrorMessage  string
	BackendCalls  uint32
	LatencyMs     float32
	Source        string // "mcp", "http" or "grpc"
}

// ArgumentsPreviewLength is the max runes stored in arguments_json.
const ArgumentsPreviewLength = 2000

// Truncate returns the first maxLen runes of s. It never splits a
// multi-byte UTF-8 character.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
