package config

import "time"

// Server defaults
const (
	DefaultPort    = "3001"
	DefaultVersion = "1.0.0"
)

// Dataset defaults
const (
	DefaultRemoteURL = "https://github.com/sudoghut/eplot-data-compiler.git"
	DefaultBranch    = "main"
	DefaultRepoDir   = "./eplot-data-compiler"
	DefaultDBFile    = "data.db"
	EpisodeWindow    = 3
)

// Refresh schedule
const (
	RefreshInterval         = 24 * time.Hour
	RefreshMaxConsecutive   = 3 // failed cycles in a row before health degrades
	RefreshHistoryLimit     = 50
	RefreshHistoryMaxLimit  = 1000
	RefreshJournalRetention = 90 * 24 * time.Hour
)

// Journal defaults
const (
	DefaultJournalDir      = "./data/eprec/journal"
	DefaultJournalMemoryMB = 16
	JournalGCInterval      = 10 * time.Minute
)

// Storage monitor
const (
	StorageUsageCacheDuration = 10 * time.Second
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 64
	WSChannelBuffer   = 10
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
)

// Client defaults
const (
	ClientTimeout = 30 * time.Second
)
