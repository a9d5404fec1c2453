package locationtime

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	apperrors "query-enrichment/internal/common/errors"
	httpclient "query-enrichment/internal/common/http"
	"query-enrichment/internal/common/logger"
	"query-enrichment/internal/enrichment/places"
	"query-enrichment/internal/enrichment/providers"
	"query-enrichment/internal/models"
)

func mustZone(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func method(t *testing.T, name string) Method {
	t.Helper()
	m, ok := LookupMethod(name)
	require.True(t, ok, name)
	return m
}

func assertNear(t *testing.T, want, got time.Time, tolerance time.Duration) {
	t.Helper()
	diff := got.Sub(want)
	if diff < 0 {
		diff = -diff
	}
	assert.LessOrEqual(t, diff, tolerance, "want %s, got %s", want.Format(time.RFC3339), got.Format(time.RFC3339))
}

var cairo = models.Location{Name: "Cairo", Latitude: 30.0444, Longitude: 31.2357, Timezone: "Africa/Cairo"}

// ==========================
// Solar calculation
// ==========================

func TestCalculate_SolarNoonAtEquinox(t *testing.T) {
	day := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	s, err := Calculate(day, 0, 0, time.UTC, method(t, "mwl"))
	require.NoError(t, err)

	assertNear(t, time.Date(2024, 3, 20, 12, 7, 0, 0, time.UTC), s.At(Dhuhr), 3*time.Minute)
}

func TestCalculate_LondonMidsummer(t *testing.T) {
	london := mustZone(t, "Europe/London")
	day := time.Date(2024, 6, 21, 12, 0, 0, 0, london)

	s, err := Calculate(day, 51.5074, -0.1278, london, method(t, "mwl"))
	require.NoError(t, err)

	assertNear(t, time.Date(2024, 6, 21, 4, 43, 0, 0, london), s.At(Sunrise), 3*time.Minute)
	assertNear(t, time.Date(2024, 6, 21, 21, 21, 0, 0, london), s.At(Maghrib), 3*time.Minute)
	assert.True(t, s.At(Fajr).Before(s.At(Sunrise)), "fajr is adjusted when twilight never ends")
	assert.True(t, s.At(Isha).After(s.At(Maghrib)))
}

func TestCalculate_CairoDhuhr(t *testing.T) {
	tz := mustZone(t, "Africa/Cairo")
	s, err := Calculate(time.Date(2024, 3, 1, 9, 0, 0, 0, tz), cairo.Latitude, cairo.Longitude, tz, method(t, "egypt"))
	require.NoError(t, err)

	assertNear(t, time.Date(2024, 3, 1, 12, 7, 0, 0, tz), s.At(Dhuhr), 3*time.Minute)
	assert.Equal(t, SourceCalculated, s.Source)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, tz), s.Date)
}

func TestCalculate_EventOrder(t *testing.T) {
	cases := []struct {
		name     string
		lat, lng float64
		zone     string
		method   string
	}{
		{"mecca", 21.4225, 39.8262, "Asia/Riyadh", "makkah"},
		{"cairo", 30.0444, 31.2357, "Africa/Cairo", "egypt"},
		{"new york", 40.7128, -74.0060, "America/New_York", "isna"},
		{"jakarta", -6.2088, 106.8456, "Asia/Jakarta", "mwl"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tz := mustZone(t, tc.zone)
			s, err := Calculate(time.Date(2024, 11, 5, 8, 0, 0, 0, tz), tc.lat, tc.lng, tz, method(t, tc.method))
			require.NoError(t, err)

			for i := 1; i < len(EventOrder); i++ {
				prev, cur := s.At(EventOrder[i-1]), s.At(EventOrder[i])
				assert.True(t, prev.Before(cur), "%s (%s) should precede %s (%s)",
					EventOrder[i-1], prev.Format("15:04"), EventOrder[i], cur.Format("15:04"))
			}
			y, m, d := s.At(Dhuhr).Date()
			assert.Equal(t, []int{2024, 11, 5}, []int{y, int(m), d})
		})
	}
}

func TestCalculate_UmmAlQuraIshaInterval(t *testing.T) {
	tz := mustZone(t, "Asia/Riyadh")
	s, err := Calculate(time.Date(2024, 4, 10, 6, 0, 0, 0, tz), 21.4225, 39.8262, tz, method(t, "UmmAlQura"))
	require.NoError(t, err)

	assert.InDelta(t, 90, s.At(Isha).Sub(s.At(Maghrib)).Minutes(), 1)
}

func TestCalculate_PolarDay(t *testing.T) {
	tz := mustZone(t, "Europe/Oslo")
	_, err := Calculate(time.Date(2024, 6, 21, 12, 0, 0, 0, tz), 69.6492, 18.9553, tz, method(t, "mwl"))
	assert.ErrorIs(t, err, ErrNoSunrise)
}

func TestLookupMethod(t *testing.T) {
	m, ok := LookupMethod("ISNA")
	assert.True(t, ok)
	assert.Equal(t, 15.0, m.FajrAngle)

	m, ok = LookupMethod("umm_al_qura")
	assert.True(t, ok)
	assert.Equal(t, 90.0, m.IshaMinutes)

	m, ok = LookupMethod("unknown")
	assert.False(t, ok)
	assert.Equal(t, "MWL", m.Name)
}

// ==========================
// Timings API
// ==========================

const timingsJSON = `{
  "code": 200,
  "status": "OK",
  "data": {
    "timings": {
      "Fajr": "04:52",
      "Sunrise": "06:19",
      "Dhuhr": "12:07",
      "Asr": "15:26",
      "Sunset": "17:56",
      "Maghrib": "17:56",
      "Isha": "19:14 (EET)"
    },
    "meta": {"timezone": "Africa/Cairo"}
  }
}`

func TestParseTimings(t *testing.T) {
	tz := mustZone(t, "Africa/Cairo")
	day := time.Date(2024, 3, 1, 9, 0, 0, 0, tz)

	s, err := parseTimings([]byte(timingsJSON), day, tz)
	require.NoError(t, err)

	assert.Equal(t, SourceTimingsAPI, s.Source)
	assert.Equal(t, time.Date(2024, 3, 1, 4, 52, 0, 0, tz), s.At(Fajr))
	assert.Equal(t, time.Date(2024, 3, 1, 19, 14, 0, 0, tz), s.At(Isha))
}

func TestParseTimings_IshaAfterMidnight(t *testing.T) {
	body := strings.Replace(timingsJSON, `"19:14 (EET)"`, `"00:20"`, 1)
	tz := mustZone(t, "Africa/Cairo")

	s, err := parseTimings([]byte(body), time.Date(2024, 3, 1, 9, 0, 0, 0, tz), tz)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 20, 0, 0, tz), s.At(Isha))
}

func TestParseTimings_Invalid(t *testing.T) {
	tz := time.UTC
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, tz)

	for name, body := range map[string]string{
		"not json":       `<html>`,
		"no timings":     `{"data":{}}`,
		"missing event":  `{"data":{"timings":{"Fajr":"04:52"}}}`,
		"bad clock":      strings.Replace(timingsJSON, `"06:19"`, `"6h19"`, 1),
		"hour too large": strings.Replace(timingsJSON, `"06:19"`, `"26:19"`, 1),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseTimings([]byte(body), day, tz)
			assert.Equal(t, apperrors.ErrCodeProviderParseError, apperrors.GetErrorCode(err))
		})
	}
}

// ==========================
// Provider
// ==========================

func newProvider(t *testing.T, timings *TimingsClient, dir places.Directory, def *models.Location) *Provider {
	return New(Config{
		Method:          method(t, "egypt"),
		DefaultLocation: def,
		Retry:           providers.RetryPolicy{Attempts: 3, Delay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}, timings, dir, logger.NewTestLogger(t))
}

func cairoMorning(t *testing.T) time.Time {
	return time.Date(2024, 3, 1, 10, 0, 0, 0, mustZone(t, "Africa/Cairo"))
}

func TestProvider_CalculatedForResolvedLocation(t *testing.T) {
	p := newProvider(t, nil, nil, nil)
	loc := cairo

	res := p.Fetch(context.Background(), models.NewQuery("prayer times today", "en", ""), providers.Params{
		Context: models.EnrichContext{ResolvedLocation: &loc},
		Now:     cairoMorning(t),
	})

	require.True(t, res.Success, res.Err)
	require.Len(t, res.Items, 3)
	assert.Equal(t, providers.StateSuccess, res.State)

	today, tomorrow, next := res.Items[0], res.Items[1], res.Items[2]
	assert.Equal(t, "Prayer times today in Cairo (Friday 1 March 2024)", today.Title)
	assert.True(t, today.HasTag(models.TagToday))
	assert.Equal(t, "Prayer times tomorrow in Cairo (Saturday 2 March 2024)", tomorrow.Title)
	assert.True(t, tomorrow.HasTag(models.TagTomorrow))
	assert.Contains(t, next.Title, "Next prayer in Cairo: Dhuhr at")

	for _, item := range res.Items {
		assert.Equal(t, SourceCalculated, item.SourceName)
		assert.Equal(t, CategoryPrayerTimes, item.Category)
		assert.NotEmpty(t, item.ID)
		assert.NotNil(t, item.PublishedAt)
	}
	for _, name := range EventOrder {
		assert.Contains(t, today.Summary, name+" ")
	}
}

func TestProvider_ResolvesPlaceFromQuery(t *testing.T) {
	p := newProvider(t, nil, places.NewStaticDirectory(places.DefaultPlaces()), nil)

	res := p.Fetch(context.Background(), models.NewQuery("prayer times in Dubai", "en", ""), providers.Params{
		Now: time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC),
	})

	require.True(t, res.Success)
	assert.Contains(t, res.Items[0].Title, "in Dubai")
	assert.Contains(t, res.Items[0].Body, "Asia/Dubai")
}

func TestProvider_DefaultLocationFallback(t *testing.T) {
	def := cairo
	p := newProvider(t, nil, places.NewStaticDirectory(places.DefaultPlaces()), &def)

	res := p.Fetch(context.Background(), models.NewQuery("when is maghrib", "en", ""), providers.Params{Now: cairoMorning(t)})

	require.True(t, res.Success)
	assert.Contains(t, res.Items[0].Title, "in Cairo")
}

func TestProvider_LocationUnresolved(t *testing.T) {
	p := newProvider(t, nil, places.NewStaticDirectory(places.DefaultPlaces()), nil)

	res := p.Fetch(context.Background(), models.NewQuery("when is maghrib", "en", ""), providers.Params{})

	assert.False(t, res.Success)
	assert.Equal(t, apperrors.ErrCodeLocationUnresolved, res.ErrorKind)
	assert.Empty(t, res.Items)
}

func TestProvider_NextEventRollsOverToTomorrow(t *testing.T) {
	p := newProvider(t, nil, nil, nil)
	loc := cairo
	late := time.Date(2024, 3, 1, 23, 30, 0, 0, mustZone(t, "Africa/Cairo"))

	res := p.Fetch(context.Background(), models.NewQuery("next prayer", "en", ""), providers.Params{
		Context: models.EnrichContext{ResolvedLocation: &loc},
		Now:     late,
	})

	require.True(t, res.Success)
	next := res.Items[2]
	assert.Contains(t, next.Title, "Fajr")
	assert.True(t, next.HasTag(models.TagTomorrow))
}

func TestProvider_UsesTimingsAPI(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		assert.Equal(t, "5", r.URL.Query().Get("method"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, timingsJSON)
	}))
	defer server.Close()

	timings := NewTimingsClient(server.URL+"/v1/", httpclient.NewClient(time.Second), time.Second)
	p := newProvider(t, timings, nil, nil)
	loc := cairo

	res := p.Fetch(context.Background(), models.NewQuery("prayer times", "en", ""), providers.Params{
		Context: models.EnrichContext{ResolvedLocation: &loc},
		Now:     cairoMorning(t),
	})

	require.True(t, res.Success)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/v1/timings/01-03-2024", "/v1/timings/02-03-2024"}, paths)
	assert.Equal(t, SourceTimingsAPI, res.Items[0].SourceName)
	assert.Contains(t, res.Items[0].SourceURL, "/v1/timings/01-03-2024")
	assert.Contains(t, res.Items[0].Summary, "Fajr 04:52")
	assert.Equal(t, 2, res.Attempts)
}

func TestProvider_FallsBackWhenTimingsAPIFails(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Inc()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	timings := NewTimingsClient(server.URL, httpclient.NewClient(time.Second), time.Second)
	p := newProvider(t, timings, nil, nil)
	loc := cairo

	res := p.Fetch(context.Background(), models.NewQuery("prayer times", "en", ""), providers.Params{
		Context: models.EnrichContext{ResolvedLocation: &loc},
		Now:     cairoMorning(t),
	})

	require.True(t, res.Success)
	assert.Equal(t, SourceCalculated, res.Items[0].SourceName)
	assert.Empty(t, res.Items[0].SourceURL)
	assert.Equal(t, int64(6), calls.Load(), "three attempts per day")
	assert.Equal(t, 6, res.Attempts)
}

func TestProvider_PolarLocationFails(t *testing.T) {
	p := newProvider(t, nil, nil, nil)
	tromso := models.Location{Name: "Tromso", Latitude: 69.6492, Longitude: 18.9553, Timezone: "Europe/Oslo"}

	res := p.Fetch(context.Background(), models.NewQuery("prayer times", "en", ""), providers.Params{
		Context: models.EnrichContext{ResolvedLocation: &tromso},
		Now:     time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC),
	})

	assert.False(t, res.Success)
	assert.Equal(t, apperrors.ErrCodeProviderUnavailable, res.ErrorKind)
}

func TestTimezoneFor_FallsBackToLongitude(t *testing.T) {
	tz := timezoneFor(&models.Location{Latitude: 24, Longitude: 46.7})
	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, tz).Zone()
	assert.Equal(t, 3*3600, offset)
}
