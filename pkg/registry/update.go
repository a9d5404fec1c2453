// pkg/registry/update.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Add appends s, refusing duplicate ids and invalid entries.
func (r *SourceRegistry) Add(s Source) error {
	for _, existing := range r.Sources {
		if existing.ID == s.ID {
			return fmt.Errorf("source with ID %s already exists", s.ID)
		}
	}
	next := &SourceRegistry{Version: r.Version, Sources: append(append([]Source(nil), r.Sources...), s)}
	if err := next.Validate(); err != nil {
		return err
	}
	r.Sources = next.Sources
	r.touch()
	return nil
}

// Update sets one field of the source with the given id.
func (r *SourceRegistry) Update(id, field, value string) error {
	idx := -1
	for i := range r.Sources {
		if r.Sources[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("source with ID %s not found", id)
	}

	s := r.Sources[idx]
	switch field {
	case "name":
		s.Name = value
	case "url":
		s.URL = value
	case "category":
		s.Category = value
	case "language":
		s.Language = value
	case "linkPattern":
		s.LinkPattern = value
	case "trust":
		trust, err := strconv.ParseFloat(value, 64)
		if err != nil || trust < 0 || trust > 1 {
			return fmt.Errorf("invalid trust value %q: must be within [0, 1]", value)
		}
		s.Trust = trust
	case "enabled":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid enabled value: %w", err)
		}
		s.Enabled = enabled
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	sources := append([]Source(nil), r.Sources...)
	sources[idx] = s
	next := &SourceRegistry{Sources: sources}
	if err := next.Validate(); err != nil {
		return err
	}
	r.Sources = sources
	r.touch()
	return nil
}

// Save writes the registry as indented JSON, creating parent directories.
func (r *SourceRegistry) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func (r *SourceRegistry) touch() {
	r.LastUpdated = time.Now().UTC().Format("2006-01-02")
}
