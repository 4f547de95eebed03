package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts for the operator daemon
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 1 * time.Minute

// Matchmaking tuning. These are implementation choices, not load-bearing
// contracts; see Request in internal/match.
const (
	CandidateScanLimit = 5
	MatchedGracePeriod = 10 * time.Minute
)

// Bounded seen-set capacity for the delivery inbox.
const InboxSeenCap = 512

// Delivered signals older than this are purged by the cleanup job.
const SignalRetention = 24 * time.Hour

// Closed sessions are kept as an audit trail for this long before purging.
const SessionRetention = 7 * 24 * time.Hour
