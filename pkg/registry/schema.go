// pkg/registry/schema.go
package registry

// SourceRegistry lists the seed pages crawled for news-style content and the
// trust weight the ranker gives each source.
type SourceRegistry struct {
	Version     string   `json:"version"`
	LastUpdated string   `json:"lastUpdated"`
	Sources     []Source `json:"sources"`
}

type Source struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	Category    string   `json:"category"`
	Language    string   `json:"language"`
	Trust       float64  `json:"trust"`
	LinkPattern string   `json:"linkPattern,omitempty"`
	Enabled     bool     `json:"enabled"`
	Tags        []string `json:"tags,omitempty"`
}
