package shared

import "time"

// Stream Configuration
const (
	DefaultSegmentSize = 1 << 10 // bytes handed to the pipe per readiness wait
	DefaultQueueDepth  = 16      // segments buffered before a writer blocks
	MaxSegmentSize     = 64 << 10
)

// Server Configuration
const (
	DefaultHTTPTimeout     = 180 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultPort            = "8080"
)

// Cache Configuration
const (
	APIKeyCacheTTL = 1 * time.Minute
	APIKeyLength   = 32
)

// Journal Configuration
const (
	BucketFlushInterval = 1 * time.Minute
	BucketRetryDelay    = 30 * time.Second
	BucketMaxRecords    = 512
	MaxFlushRetries     = 3
)
