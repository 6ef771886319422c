package redis

import "autorent/internal/service"

// Ensure concrete types implement the service ports.
var (
	_ service.LeaderLock   = (*LockStore)(nil)
	_ service.BookingCache = (*CacheStore)(nil)
	_ service.JobQueue     = (*RetryQueue)(nil)
)
