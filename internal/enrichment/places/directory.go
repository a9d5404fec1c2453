// Package places resolves place names mentioned in a query to coordinates
// and a timezone.
package places

import (
	"context"
	"errors"
	"sort"

	"query-enrichment/internal/common/logger"
	"query-enrichment/internal/enrichment/textnorm"
	"query-enrichment/internal/models"
)

var ErrNotFound = errors.New("place not found")

// Directory looks up the place named in free text.
type Directory interface {
	Resolve(ctx context.Context, text string) (*models.Location, error)
}

// Place is a gazetteer row with every spelling it answers to.
type Place struct {
	models.Location
	Aliases []string
}

// StaticDirectory matches against an in-memory table.
type StaticDirectory struct {
	entries []staticEntry
}

type staticEntry struct {
	alias string
	loc   models.Location
}

func NewStaticDirectory(places []Place) *StaticDirectory {
	d := &StaticDirectory{}
	for _, p := range places {
		names := append([]string{p.Name}, p.Aliases...)
		for _, n := range names {
			alias := textnorm.Normalize(n)
			if alias == "" {
				continue
			}
			d.entries = append(d.entries, staticEntry{alias: alias, loc: p.Location})
		}
	}
	// Longer aliases first so the most specific name wins.
	sort.SliceStable(d.entries, func(i, j int) bool {
		return len(d.entries[i].alias) > len(d.entries[j].alias)
	})
	return d
}

func (d *StaticDirectory) Resolve(_ context.Context, text string) (*models.Location, error) {
	t := textnorm.Analyze(text)
	if t.Empty() {
		return nil, ErrNotFound
	}
	for _, e := range d.entries {
		if t.Contains(e.alias) {
			loc := e.loc
			return &loc, nil
		}
	}
	return nil, ErrNotFound
}

// Chain tries each directory in order and returns the first match.
type Chain struct {
	dirs []Directory
	log  logger.Logger
}

func NewChain(log logger.Logger, dirs ...Directory) *Chain {
	return &Chain{dirs: dirs, log: logger.Component(log, "places")}
}

func (c *Chain) Resolve(ctx context.Context, text string) (*models.Location, error) {
	var lastErr error
	for _, d := range c.dirs {
		loc, err := d.Resolve(ctx, text)
		if err == nil {
			return loc, nil
		}
		if !errors.Is(err, ErrNotFound) {
			c.log.Warn("Place lookup failed", map[string]interface{}{"error": err.Error()})
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNotFound
}

// DefaultPlaces is the built-in gazetteer.
func DefaultPlaces() []Place {
	return []Place{
		{Location: models.Location{Name: "Mecca", Latitude: 21.4225, Longitude: 39.8262, Timezone: "Asia/Riyadh", Country: "SA"},
			Aliases: []string{"makkah", "مكة", "مكة المكرمة"}},
		{Location: models.Location{Name: "Medina", Latitude: 24.4672, Longitude: 39.6111, Timezone: "Asia/Riyadh", Country: "SA"},
			Aliases: []string{"madinah", "المدينة المنورة"}},
		{Location: models.Location{Name: "Riyadh", Latitude: 24.7136, Longitude: 46.6753, Timezone: "Asia/Riyadh", Country: "SA"},
			Aliases: []string{"الرياض"}},
		{Location: models.Location{Name: "Jeddah", Latitude: 21.4858, Longitude: 39.1925, Timezone: "Asia/Riyadh", Country: "SA"},
			Aliases: []string{"jidda", "جدة"}},
		{Location: models.Location{Name: "Cairo", Latitude: 30.0444, Longitude: 31.2357, Timezone: "Africa/Cairo", Country: "EG"},
			Aliases: []string{"القاهرة"}},
		{Location: models.Location{Name: "Alexandria", Latitude: 31.2001, Longitude: 29.9187, Timezone: "Africa/Cairo", Country: "EG"},
			Aliases: []string{"الإسكندرية"}},
		{Location: models.Location{Name: "Dubai", Latitude: 25.2048, Longitude: 55.2708, Timezone: "Asia/Dubai", Country: "AE"},
			Aliases: []string{"دبي"}},
		{Location: models.Location{Name: "Doha", Latitude: 25.2854, Longitude: 51.5310, Timezone: "Asia/Qatar", Country: "QA"},
			Aliases: []string{"الدوحة"}},
		{Location: models.Location{Name: "Amman", Latitude: 31.9539, Longitude: 35.9106, Timezone: "Asia/Amman", Country: "JO"},
			Aliases: []string{"عمان"}},
		{Location: models.Location{Name: "Istanbul", Latitude: 41.0082, Longitude: 28.9784, Timezone: "Europe/Istanbul", Country: "TR"},
			Aliases: []string{"إسطنبول"}},
		{Location: models.Location{Name: "Kuala Lumpur", Latitude: 3.1390, Longitude: 101.6869, Timezone: "Asia/Kuala_Lumpur", Country: "MY"}},
		{Location: models.Location{Name: "Jakarta", Latitude: -6.2088, Longitude: 106.8456, Timezone: "Asia/Jakarta", Country: "ID"}},
		{Location: models.Location{Name: "London", Latitude: 51.5074, Longitude: -0.1278, Timezone: "Europe/London", Country: "GB"},
			Aliases: []string{"لندن"}},
		{Location: models.Location{Name: "Paris", Latitude: 48.8566, Longitude: 2.3522, Timezone: "Europe/Paris", Country: "FR"},
			Aliases: []string{"باريس"}},
		{Location: models.Location{Name: "New York", Latitude: 40.7128, Longitude: -74.0060, Timezone: "America/New_York", Country: "US"},
			Aliases: []string{"nyc", "نيويورك"}},
		{Location: models.Location{Name: "Toronto", Latitude: 43.6532, Longitude: -79.3832, Timezone: "America/Toronto", Country: "CA"}},
	}
}
