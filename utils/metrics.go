package utils

import "sync/atomic"

// Metrics holds counters for service operations
var (
	sessionsStarted   int64
	sessionsCompleted int64
	summariesPosted   int64
	summaryFailures   int64
	discordReconnects int64
)

// IncrementSessionsStarted atomically increments the sessions started counter
func IncrementSessionsStarted() {
	atomic.AddInt64(&sessionsStarted, 1)
}

// IncrementSessionsCompleted atomically increments the sessions completed counter
func IncrementSessionsCompleted() {
	atomic.AddInt64(&sessionsCompleted, 1)
}

// IncrementSummariesPosted atomically increments the summaries posted counter
func IncrementSummariesPosted() {
	atomic.AddInt64(&summariesPosted, 1)
}

// IncrementSummaryFailures atomically increments the summary failures counter
func IncrementSummaryFailures() {
	atomic.AddInt64(&summaryFailures, 1)
}

// IncrementReconnects atomically increments the reconnection counter
func IncrementReconnects() {
	atomic.AddInt64(&discordReconnects, 1)
}

// GetMetrics returns the current metrics as a map
func GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"sessions_started":   atomic.LoadInt64(&sessionsStarted),
		"sessions_completed": atomic.LoadInt64(&sessionsCompleted),
		"summaries_posted":   atomic.LoadInt64(&summariesPosted),
		"summary_failures":   atomic.LoadInt64(&summaryFailures),
		"discord_reconnects": atomic.LoadInt64(&discordReconnects),
	}
}
