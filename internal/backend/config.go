package backend

import "time"

// RetryPolicy controls retries of idempotent requests.
type RetryPolicy struct {
	MaxRetries  int           // retries after the first attempt
	BaseBackoff time.Duration // delay before the first retry
	MaxBackoff  time.Duration // upper bound on any delay
	JitterFn    func(time.Duration) time.Duration
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration // per request attempt
	Retry   RetryPolicy
}

// DefaultConfig targets a backend on localhost.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080",
		Timeout: 30 * time.Second,
		Retry: RetryPolicy{
			MaxRetries:  2,
			BaseBackoff: 200 * time.Millisecond,
			MaxBackoff:  2 * time.Second,
			JitterFn:    func(d time.Duration) time.Duration { return d / 2 },
		},
	}
}
