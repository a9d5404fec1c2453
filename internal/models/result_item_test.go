package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://example.com/News/1", NormalizeURL("HTTPS://Example.COM/News/1/"))
	assert.Equal(t, "https://example.com", NormalizeURL("https://example.com/"))
	assert.Equal(t, "https://example.com/a?id=XyZ", NormalizeURL("https://example.com/a/?id=XyZ"))
	assert.Equal(t, "https://example.com/news/1", NormalizeURL("https://example.com/news/1#comments"))
	assert.Equal(t, "", NormalizeURL("  "))
}

func TestItemID(t *testing.T) {
	a := ItemID("https://Example.com/gold/", "ignored")
	b := ItemID("https://example.com/gold", "different title")
	assert.Equal(t, a, b, "host casing and trailing slash must not change identity")
	assert.NotEqual(t, ItemID("https://example.com/a/XyZ", ""), ItemID("https://example.com/a/xyz", ""),
		"paths are case-sensitive")

	c := ItemID("", "Fajr today 05:12")
	d := ItemID("", "fajr TODAY 05 12")
	assert.Equal(t, c, d)
	assert.NotEqual(t, a, c)
}

func TestResultItem_Tags(t *testing.T) {
	item := ResultItem{}
	item.AddTag("today")
	item.AddTag("breaking")
	item.AddTag("today")

	assert.Equal(t, []string{"breaking", "today"}, item.DomainTags)
	assert.True(t, item.HasTag("breaking"))
	assert.False(t, item.HasTag("synthetic"))
}

func TestResultItem_Clone(t *testing.T) {
	now := time.Now()
	item := ResultItem{
		PublishedAt:        &now,
		DomainTags:         []string{"a"},
		RawScoreComponents: map[string]float64{"title": 1},
	}
	clone := item.Clone()
	clone.DomainTags[0] = "b"
	clone.RawScoreComponents["title"] = 2

	assert.Equal(t, "a", item.DomainTags[0])
	assert.Equal(t, 1.0, item.RawScoreComponents["title"])
}

func TestQualityLevel_AtLeast(t *testing.T) {
	assert.True(t, QualityGood.AtLeast(QualityFair))
	assert.True(t, QualityFair.AtLeast(QualityFair))
	assert.False(t, QualityPoor.AtLeast(QualityFair))
	assert.False(t, QualityNone.AtLeast(QualityPoor))
}

func TestNewQuery(t *testing.T) {
	q := NewQuery("  Gold Price TODAY? ", "en", "s-1")
	assert.Equal(t, "gold price today", q.NormalizedText)
	assert.Equal(t, "en", q.Locale)
}
