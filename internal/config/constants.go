package config

import "time"

// HTTP server timeouts
const (
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Pairing codes
const (
	CodeLength        = 8
	CodeAlphabet      = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	MaxCodeTTLSeconds = 3600
)

// WebSocket connection limits
const (
	MinMessageBytes      = 1024
	WSWriteWait          = 5 * time.Second
	WSPingInterval       = 30 * time.Second
	WSPongWait           = 2 * WSPingInterval
	WSSendQueueSize      = 64
	MaxDisplayNameRunes  = 64
	MaxRejectReasonRunes = 120
)

// Redis ping timeout at startup
const RedisPingTimeout = 5 * time.Second

// Event loop queue depth
const HubQueueSize = 1024
