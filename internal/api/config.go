package api

// Config holds the HTTP server configuration.
type Config struct {
	// ListenAddr is the host:port to bind.
	ListenAddr string
	// MaxBodyBytes caps request bodies; zero means the 1 MiB default.
	MaxBodyBytes int64
	// RateLimitPush is the per-key per-minute limit on mutation endpoints.
	RateLimitPush int
	// RateLimitPull is the per-key per-minute limit on pull endpoints.
	RateLimitPull int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:    ":8080",
		MaxBodyBytes:  1 << 20,
		RateLimitPush: 120,
		RateLimitPull: 240,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.RateLimitPush <= 0 {
		c.RateLimitPush = d.RateLimitPush
	}
	if c.RateLimitPull <= 0 {
		c.RateLimitPull = d.RateLimitPull
	}
	return c
}
