// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges configs/config.<APP_ENVIRONMENT>.yaml
// and applies environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")
	if root := findProjectRoot(); root != "" {
		v.AddConfigPath(filepath.Join(root, "configs"))
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets that are conventionally supplied as
// plain environment variables.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Enrichment.Search.APIKey == "" {
		if val := os.Getenv("SEARCH_API_KEY"); val != "" {
			cfg.Enrichment.Search.APIKey = val
		}
	}
	if cfg.Enrichment.Search.EngineID == "" {
		if val := os.Getenv("SEARCH_ENGINE_ID"); val != "" {
			cfg.Enrichment.Search.EngineID = val
		}
	}
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Database.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Database.Redis.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "query-enrichment"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30000
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 2
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = cfg.App.Name
	}
	if cfg.Observability.SampleRatio == 0 {
		cfg.Observability.SampleRatio = 1
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}

	applyEnrichmentDefaults(&cfg.Enrichment)
}

func applyEnrichmentDefaults(e *EnrichmentConfig) {
	if e.Limiter.Capacity == 0 {
		e.Limiter.Capacity = 6
	}
	if e.Timeouts.Provider == 0 {
		e.Timeouts.Provider = 15000
	}
	if e.Timeouts.Overall == 0 {
		e.Timeouts.Overall = 20000
	}
	if e.Timeouts.Item == 0 {
		e.Timeouts.Item = 5000
	}

	if len(e.Routing) == 0 {
		e.Routing = map[string][]string{
			"location_time":  {"location-time"},
			"crawled_news":   {"crawled-content", "generic-search"},
			"generic_search": {"generic-search"},
		}
	}
	if e.Providers == nil {
		e.Providers = map[string]ProviderToggle{}
	}
	for _, name := range []string{"location-time", "crawled-content", "generic-search"} {
		if _, ok := e.Providers[name]; !ok {
			e.Providers[name] = ProviderToggle{Enabled: true}
		}
	}

	c := &e.Classifier
	if c.Threshold == 0 {
		c.Threshold = 2.0
	}
	if c.MediumThreshold == 0 {
		c.MediumThreshold = 3.0
	}
	if c.HighThreshold == 0 {
		c.HighThreshold = 5.0
	}
	if c.HistoryWeight == 0 {
		c.HistoryWeight = 0.5
	}

	r := &e.Ranker
	if r.Weights == (RankerWeights{}) {
		r.Weights = RankerWeights{
			ExactPhrase:     100,
			TitleTerm:       3,
			SummaryTerm:     2,
			BodyTerm:        1,
			DomainRelevance: 2,
			Recency:         5,
			SourceTrust:     3,
			CategoryMatch:   0.5,
		}
	}
	if r.MinScore == 0 {
		r.MinScore = 1.0
	}
	if r.RecencyCutoff == 0 {
		r.RecencyCutoff = int((72 * time.Hour).Milliseconds())
	}
	if r.NearDuplicateThreshold == 0 {
		r.NearDuplicateThreshold = 0.85
	}

	ch := &e.Cache
	if ch.Capacity == 0 {
		ch.Capacity = 1024
	}
	if ch.TTL == nil {
		ch.TTL = map[string]int{}
	}
	defaultTTL := map[string]int{
		"location_time":  int((6 * time.Hour).Milliseconds()),
		"crawled_news":   int((30 * time.Minute).Milliseconds()),
		"generic_search": int((1 * time.Hour).Milliseconds()),
	}
	for k, v := range defaultTTL {
		if _, ok := ch.TTL[k]; !ok {
			ch.TTL[k] = v
		}
	}
	if ch.NegativeTTL == 0 {
		ch.NegativeTTL = int((5 * time.Minute).Milliseconds())
	}
	if ch.MinTTL == 0 {
		ch.MinTTL = int((2 * time.Minute).Milliseconds())
	}
	if ch.FreshWindow == 0 {
		ch.FreshWindow = int((1 * time.Hour).Milliseconds())
	}
	if ch.FreshRatio == 0 {
		ch.FreshRatio = 0.5
	}
	if ch.KeyPrefix == "" {
		ch.KeyPrefix = "enrich"
	}

	if e.Composer.MaxTokens == 0 {
		e.Composer.MaxTokens = 800
	}
	if e.Composer.TopN == nil {
		e.Composer.TopN = map[string]int{}
	}
	defaultTopN := map[string]int{"location_time": 8, "crawled_news": 6, "generic_search": 5}
	for k, v := range defaultTopN {
		if _, ok := e.Composer.TopN[k]; !ok {
			e.Composer.TopN[k] = v
		}
	}

	if len(e.Search.Backends) == 0 {
		e.Search.Backends = []string{"api", "duckduckgo"}
	}
	if e.Search.MaxResults == 0 {
		e.Search.MaxResults = 8
	}
	if e.Search.DuckDuckGoURL == "" {
		e.Search.DuckDuckGoURL = "https://html.duckduckgo.com/html/"
	}
	if e.Search.Index == "" {
		e.Search.Index = "articles"
	}

	if e.LocationTime.Method == "" {
		e.LocationTime.Method = "MWL"
	}

	if e.Crawled.MaxItemsPerSeed == 0 {
		e.Crawled.MaxItemsPerSeed = 5
	}
	if e.Crawled.Extractor == "" {
		e.Crawled.Extractor = "regex"
	}
	if e.Crawled.UserAgent == "" {
		e.Crawled.UserAgent = "query-enrichment/1.0"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}
	if cfg.Database.Postgres.Enabled {
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
	}
	if cfg.Database.Elasticsearch.Enabled && cfg.Database.Elasticsearch.GetURL() == "" {
		return fmt.Errorf("database.elasticsearch.addresses or url is required")
	}
	if cfg.Database.Redis.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	e := cfg.Enrichment
	if e.Limiter.Capacity < 1 {
		return fmt.Errorf("enrichment.limiter.capacity must be positive")
	}
	if e.Timeouts.Overall < e.Timeouts.Provider {
		return fmt.Errorf("enrichment.timeouts.overall must not be shorter than enrichment.timeouts.provider")
	}
	if e.Classifier.HighThreshold < e.Classifier.MediumThreshold {
		return fmt.Errorf("enrichment.classifier.high_threshold must be >= medium_threshold")
	}
	if e.Ranker.NearDuplicateThreshold <= 0 || e.Ranker.NearDuplicateThreshold > 1 {
		return fmt.Errorf("enrichment.ranker.near_duplicate_threshold must be in (0, 1]")
	}
	switch e.Crawled.Extractor {
	case "regex", "goquery":
	default:
		return fmt.Errorf("enrichment.crawled.extractor must be regex or goquery")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}

// DomainKey converts a domain name such as "locationTime" to the snake_case
// key used in configuration maps.
func DomainKey(domain string) string {
	var b strings.Builder
	for i, r := range domain {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
