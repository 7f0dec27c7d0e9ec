package cache

// Resolved day lists are stored under schedule.CacheKey,
// "day:<snapshot version>:<station>:<date>:<direction>".
const (
	PatternDays   = "day:*"
	KeyWarmStatus = "warm:status"
)
