package consts

import "time"

// Server defaults
const (
	// DefaultHost is the interface the server binds when none is configured
	DefaultHost = "localhost"
	// DefaultPort is the default TCP port of the base server
	DefaultPort = 9090
	// DefaultChatPort is the default TCP port of the chat server
	DefaultChatPort = 9091
	// DefaultMaxConnections is the default connection table capacity
	DefaultMaxConnections = 10
	// DefaultChatMaxConnections is the connection table capacity used by the chat server
	DefaultChatMaxConnections = 20
	// DefaultTimeoutSeconds bounds blocking socket writes
	DefaultTimeoutSeconds = 30
	// MaxPort is the highest valid TCP port
	MaxPort = 65535
)

// Buffer sizes for various operations
const (
	// BufferSize1KB is 1 kilobyte
	BufferSize1KB = 1024
	// BufferSize64KB is 64 kilobytes
	BufferSize64KB = 64 * 1024
	// BufferSize1MB is 1 megabyte
	BufferSize1MB = 1024 * 1024
)

// Timeouts for various operations
const (
	// Timeout1Millisecond is the read deadline used to emulate a non-blocking read
	Timeout1Millisecond = 1 * time.Millisecond
	// Timeout100Milliseconds is a 100 millisecond timeout
	Timeout100Milliseconds = 100 * time.Millisecond
	// Timeout1Second is a 1 second timeout
	Timeout1Second = 1 * time.Second
	// Timeout3Seconds is a 3 second timeout
	Timeout3Seconds = 3 * time.Second
	// Timeout5Seconds is a 5 second timeout
	Timeout5Seconds = 5 * time.Second
	// Timeout10Seconds is a 10 second timeout
	Timeout10Seconds = 10 * time.Second
)

// Reactor tuning
const (
	// DefaultPollInterval is the bounded readiness wait of one reactor pass
	DefaultPollInterval = Timeout1Second
	// DefaultChatHistoryReplay is how many stored chat lines a joiner receives
	DefaultChatHistoryReplay = 20
)

// Version is the protocol/server version reported by the CLI
const Version = "1.0.0"
