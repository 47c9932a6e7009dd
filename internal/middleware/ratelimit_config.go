package middleware

import (
	"time"

	"callsubs-backend/pkg/env"
)

// RateLimitRule is the budget for one group of routes
type RateLimitRule struct {
	Name     string
	Requests int
	Window   time.Duration
}

// RateLimitRules holds the budgets used by the API. Each can be overridden
// with RATELIMIT_<NAME> (requests per window).
type RateLimitRules struct {
	Default     RateLimitRule
	Auth        RateLimitRule
	CallRequest RateLimitRule
	CallAction  RateLimitRule
	Export      RateLimitRule
}

// NewRateLimitRules builds the rules, using defaultRequests per window for
// routes without a stricter budget
func NewRateLimitRules(defaultRequests int, window time.Duration) RateLimitRules {
	if window <= 0 {
		window = time.Minute
	}
	return RateLimitRules{
		Default: RateLimitRule{Name: "default", Requests: defaultRequests, Window: window},
		Auth: RateLimitRule{
			Name:     "auth",
			Requests: env.GetInt("RATELIMIT_AUTH", 20),
			Window:   time.Minute,
		},
		// Viewers hammering a streamer's queue
		CallRequest: RateLimitRule{
			Name:     "call_request",
			Requests: env.GetInt("RATELIMIT_CALL_REQUEST", 5),
			Window:   time.Minute,
		},
		CallAction: RateLimitRule{
			Name:     "call_action",
			Requests: env.GetInt("RATELIMIT_CALL_ACTION", 60),
			Window:   time.Minute,
		},
		Export: RateLimitRule{
			Name:     "export",
			Requests: env.GetInt("RATELIMIT_EXPORT", 5),
			Window:   time.Minute,
		},
	}
}
