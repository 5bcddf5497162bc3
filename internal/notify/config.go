package notify

import "time"

// Config holds the webhook channel settings.
type Config struct {
	URL      string
	Username string
	Timeout  time.Duration
}

// DefaultConfig returns the default notifier configuration. The URL is empty,
// which disables delivery.
func DefaultConfig() Config {
	return Config{
		Username: "Drift Bot",
		Timeout:  5 * time.Second,
	}
}
