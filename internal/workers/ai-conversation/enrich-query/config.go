// internal/workers/ai-conversation/enrich-query/config.go
package enrichquery

import (
	"time"

	"query-enrichment/internal/enrichment/composer"
)

type Config struct {
	Timeout   time.Duration
	MaxTokens int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:   25 * time.Second,
		MaxTokens: composer.DefaultMaxTokens,
	}
}
