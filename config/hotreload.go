package config

// HotReloadableConfig is the part of Config a running server applies
// without a restart.
type HotReloadableConfig struct {
	LogLevel         string
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int
}

// ExtractHotReloadable copies the hot-reloadable fields out of cfg.
func ExtractHotReloadable(cfg *Config) HotReloadableConfig {
	return HotReloadableConfig{
		LogLevel:         cfg.Log.Level,
		RateLimitEnabled: cfg.Server.RateLimit.Enabled,
		RateLimitRPS:     cfg.Server.RateLimit.RequestsPerSecond,
		RateLimitBurst:   cfg.Server.RateLimit.Burst,
	}
}

// Changed reports whether h and other differ.
func (h HotReloadableConfig) Changed(other HotReloadableConfig) bool {
	return h != other
}
