// Package locationtime implements the location-time provider: daily prayer
// schedules for today and tomorrow at a resolved place.
package locationtime

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	_ "time/tzdata"

	apperrors "query-enrichment/internal/common/errors"
	"query-enrichment/internal/common/logger"
	"query-enrichment/internal/enrichment/places"
	"query-enrichment/internal/enrichment/providers"
	"query-enrichment/internal/models"
)

const CategoryPrayerTimes = "prayer-times"

type Config struct {
	Method          Method
	DefaultLocation *models.Location
	Retry           providers.RetryPolicy
}

type Provider struct {
	cfg     Config
	timings *TimingsClient
	places  places.Directory
	log     logger.Logger
}

// New builds the provider. timings and dir may be nil: without timings every
// schedule is calculated, without dir only the caller's resolved location
// and the default location are used.
func New(cfg Config, timings *TimingsClient, dir places.Directory, log logger.Logger) *Provider {
	if cfg.Method.Name == "" {
		cfg.Method, _ = LookupMethod("mwl")
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = providers.DefaultRetryPolicy()
	}
	return &Provider{
		cfg:     cfg,
		timings: timings,
		places:  dir,
		log:     logger.Component(log, providers.NameLocationTime),
	}
}

func (p *Provider) Name() string { return providers.NameLocationTime }

func (p *Provider) Fetch(ctx context.Context, q models.Query, params providers.Params) providers.Result {
	loc, err := p.resolveLocation(ctx, q, params)
	if err != nil {
		return providers.Failed(p.Name(), err, 0)
	}
	tz := timezoneFor(loc)
	now := params.Clock().In(tz)

	var (
		items     []models.ResultItem
		schedules []Schedule
		attempts  int
	)
	for i, day := range []time.Time{now, now.AddDate(0, 0, 1)} {
		sched, n, err := p.schedule(ctx, day, loc, tz)
		attempts += n
		if err != nil {
			return providers.Failed(p.Name(), err, attempts)
		}
		label := models.TagToday
		if i == 1 {
			label = models.TagTomorrow
		}
		schedules = append(schedules, sched)
		items = append(items, p.scheduleItem(loc, tz, sched, label, now))
	}

	if next, ok := nextEvent(schedules, now); ok {
		items = append(items, p.nextEventItem(loc, next, now))
	}

	if attempts == 0 {
		attempts = 1
	}
	return providers.Succeeded(p.Name(), items, attempts)
}

func (p *Provider) resolveLocation(ctx context.Context, q models.Query, params providers.Params) (*models.Location, error) {
	if rl := params.Context.ResolvedLocation; rl != nil && validCoordinates(rl.Latitude, rl.Longitude) {
		loc := *rl
		return &loc, nil
	}
	if p.places != nil {
		loc, err := p.places.Resolve(ctx, q.RawText)
		if err == nil {
			return loc, nil
		}
		if !errors.Is(err, places.ErrNotFound) {
			p.log.Warn("Gazetteer lookup failed", map[string]interface{}{"error": err.Error()})
		}
	}
	if d := p.cfg.DefaultLocation; d != nil && validCoordinates(d.Latitude, d.Longitude) {
		loc := *d
		return &loc, nil
	}
	return nil, apperrors.NewLocationUnresolvedError("no resolved location, no place named in query, no default location")
}

func validCoordinates(lat, lng float64) bool {
	if lat == 0 && lng == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

func timezoneFor(loc *models.Location) *time.Location {
	if loc.Timezone != "" {
		if tz, err := time.LoadLocation(loc.Timezone); err == nil {
			return tz
		}
	}
	offset := int(math.Round(loc.Longitude/15)) * 3600
	return time.FixedZone(fmt.Sprintf("UTC%+d", offset/3600), offset)
}

// schedule prefers the timings API and falls back to calculation.
func (p *Provider) schedule(ctx context.Context, day time.Time, loc *models.Location, tz *time.Location) (Schedule, int, error) {
	attempts := 0
	if p.timings != nil {
		var sched Schedule
		attempt, err := providers.RunAttempts(ctx, p.cfg.Retry, p.log, func(ctx context.Context) error {
			var err error
			sched, err = p.timings.Day(ctx, day, loc.Latitude, loc.Longitude, tz, p.cfg.Method)
			return err
		})
		attempts = attempt.Count()
		if err == nil {
			return sched, attempts, nil
		}
		p.log.Warn("Timings API unavailable, calculating locally", map[string]interface{}{
			"location":  loc.Name,
			"attempts":  attempts,
			"errorCode": string(apperrors.GetErrorCode(err)),
		})
	}

	sched, err := Calculate(day, loc.Latitude, loc.Longitude, tz, p.cfg.Method)
	if err != nil {
		return Schedule{}, attempts, apperrors.NewProviderUnavailableError(p.Name(),
			fmt.Sprintf("%s: %s", loc.Name, err.Error()))
	}
	return sched, attempts, nil
}

func placeName(loc *models.Location) string {
	if loc.Name != "" {
		return loc.Name
	}
	return fmt.Sprintf("%.4f, %.4f", loc.Latitude, loc.Longitude)
}

func (p *Provider) scheduleItem(loc *models.Location, tz *time.Location, sched Schedule, label string, now time.Time) models.ResultItem {
	parts := make([]string, 0, len(EventOrder))
	for _, name := range EventOrder {
		parts = append(parts, fmt.Sprintf("%s %s", name, sched.At(name).Format("15:04")))
	}
	summary := strings.Join(parts, ", ")
	date := sched.Date.Format("Monday 2 January 2006")

	item := models.ResultItem{
		Title:      fmt.Sprintf("Prayer times %s in %s (%s)", label, placeName(loc), date),
		Summary:    summary,
		Body:       fmt.Sprintf("%s, %s, method %s. %s.", date, tz.String(), p.cfg.Method.Name, summary),
		SourceName: sched.Source,
		Category:   CategoryPrayerTimes,
	}
	if sched.Source == SourceTimingsAPI && p.timings != nil {
		item.SourceURL = p.timings.DayURL(sched.Date, loc.Latitude, loc.Longitude, p.cfg.Method)
	}
	published := now
	item.PublishedAt = &published
	item.AddTag(label)
	item.AssignID()
	return item
}

type upcoming struct {
	name   string
	at     time.Time
	label  string
	source string
}

func nextEvent(schedules []Schedule, now time.Time) (upcoming, bool) {
	for i, sched := range schedules {
		for _, name := range EventOrder {
			if at := sched.At(name); at.After(now) {
				label := models.TagToday
				if i > 0 {
					label = models.TagTomorrow
				}
				return upcoming{name: name, at: at, label: label, source: sched.Source}, true
			}
		}
	}
	return upcoming{}, false
}

func (p *Provider) nextEventItem(loc *models.Location, next upcoming, now time.Time) models.ResultItem {
	wait := next.at.Sub(now).Round(time.Minute)
	item := models.ResultItem{
		Title:      fmt.Sprintf("Next prayer in %s: %s at %s", placeName(loc), next.name, next.at.Format("15:04")),
		Summary:    fmt.Sprintf("%s %s in %s", next.name, next.label, formatWait(wait)),
		SourceName: next.source,
		Category:   CategoryPrayerTimes,
	}
	published := now
	item.PublishedAt = &published
	item.AddTag(next.label)
	item.AssignID()
	return item
}

func formatWait(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}
