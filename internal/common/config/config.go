// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Server        ServerConfig            `mapstructure:"server"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Observability ObservabilityConfig     `mapstructure:"observability"`
	Enrichment    EnrichmentConfig        `mapstructure:"enrichment"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	ReadTimeout    int      `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout   int      `mapstructure:"write_timeout"` // milliseconds
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every job worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type ObservabilityConfig struct {
	ServiceName    string  `mapstructure:"service_name"`
	MetricsPort    int     `mapstructure:"metrics_port"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

// --- Enrichment Engine ---

type EnrichmentConfig struct {
	Limiter      LimiterConfig             `mapstructure:"limiter"`
	Timeouts     TimeoutsConfig            `mapstructure:"timeouts"`
	Routing      map[string][]string       `mapstructure:"routing"`
	Providers    map[string]ProviderToggle `mapstructure:"providers"`
	Classifier   ClassifierConfig          `mapstructure:"classifier"`
	Ranker       RankerConfig              `mapstructure:"ranker"`
	Cache        CacheConfig               `mapstructure:"cache"`
	Composer     ComposerConfig            `mapstructure:"composer"`
	Search       SearchConfig              `mapstructure:"search"`
	LocationTime LocationTimeConfig        `mapstructure:"location_time"`
	Crawled      CrawledConfig             `mapstructure:"crawled"`
}

type LimiterConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type TimeoutsConfig struct {
	Provider int `mapstructure:"provider"` // milliseconds
	Overall  int `mapstructure:"overall"`  // milliseconds
	Item     int `mapstructure:"item"`     // milliseconds
}

type ProviderToggle struct {
	Enabled bool `mapstructure:"enabled"`
}

type ClassifierConfig struct {
	Threshold       float64            `mapstructure:"threshold"`
	HighThreshold   float64            `mapstructure:"high_threshold"`
	MediumThreshold float64            `mapstructure:"medium_threshold"`
	DomainThreshold map[string]float64 `mapstructure:"domain_threshold"`
	HistoryWeight   float64            `mapstructure:"history_weight"`
	TermsFile       string             `mapstructure:"terms_file"`
}

type RankerWeights struct {
	ExactPhrase     float64 `mapstructure:"exact_phrase"`
	TitleTerm       float64 `mapstructure:"title_term"`
	SummaryTerm     float64 `mapstructure:"summary_term"`
	BodyTerm        float64 `mapstructure:"body_term"`
	DomainRelevance float64 `mapstructure:"domain_relevance"`
	Recency         float64 `mapstructure:"recency"`
	SourceTrust     float64 `mapstructure:"source_trust"`
	CategoryMatch   float64 `mapstructure:"category_match"`
}

type RankerConfig struct {
	Weights                RankerWeights      `mapstructure:"weights"`
	MinScore               float64            `mapstructure:"min_score"`
	RecencyCutoff          int                `mapstructure:"recency_cutoff"` // milliseconds
	NearDuplicateThreshold float64            `mapstructure:"near_duplicate_threshold"`
	SourceTrust            map[string]float64 `mapstructure:"source_trust"`
}

type CacheConfig struct {
	Capacity    int            `mapstructure:"capacity"`
	TTL         map[string]int `mapstructure:"ttl"`          // milliseconds per domain
	NegativeTTL int            `mapstructure:"negative_ttl"` // milliseconds
	MinTTL      int            `mapstructure:"min_ttl"`      // milliseconds
	FreshWindow int            `mapstructure:"fresh_window"` // milliseconds
	FreshRatio  float64        `mapstructure:"fresh_ratio"`
	KeyPrefix   string         `mapstructure:"key_prefix"`
}

type ComposerConfig struct {
	TopN      map[string]int `mapstructure:"top_n"`
	MaxTokens int            `mapstructure:"max_tokens"`
	Encoding  string         `mapstructure:"encoding"`
}

type SearchConfig struct {
	Backends      []string `mapstructure:"backends"`
	MaxResults    int      `mapstructure:"max_results"`
	APIEndpoint   string   `mapstructure:"api_endpoint"`
	APIKey        string   `mapstructure:"api_key"`
	EngineID      string   `mapstructure:"engine_id"`
	DuckDuckGoURL string   `mapstructure:"duckduckgo_url"`
	Index         string   `mapstructure:"index"`
	Synthetic     bool     `mapstructure:"synthetic"`
}

type LocationTimeConfig struct {
	APIEndpoint     string          `mapstructure:"api_endpoint"`
	Method          string          `mapstructure:"method"`
	DefaultLocation DefaultLocation `mapstructure:"default_location"`
}

type DefaultLocation struct {
	Name      string  `mapstructure:"name"`
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
	Timezone  string  `mapstructure:"timezone"`
}

type CrawledConfig struct {
	RegistryFile    string `mapstructure:"registry_file"`
	MaxItemsPerSeed int    `mapstructure:"max_items_per_seed"`
	Extractor       string `mapstructure:"extractor"`
	UserAgent       string `mapstructure:"user_agent"`
}
