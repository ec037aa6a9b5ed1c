package site_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tenantaudit/api/pkg/domain/site"
)

func TestFilter_DefaultExclusions(t *testing.T) {
	sites := []site.Descriptor{
		{URL: "https://contoso.sharepoint.com/sites/hr", Template: "STS#3"},
		{URL: "https://contoso.sharepoint.com/search", Template: "SRCHCEN#0"},
		{URL: "https://contoso.sharepoint.com/sites/appcatalog", Template: "APPCATALOG#0"},
		{URL: "https://contoso.sharepoint.com/sites/finance", Template: "GROUP#0"},
	}

	kept := site.DefaultFilter().Apply(sites)

	assert.Len(t, kept, 2)
	assert.Equal(t, "https://contoso.sharepoint.com/sites/hr", kept[0].URL)
	assert.Equal(t, "https://contoso.sharepoint.com/sites/finance", kept[1].URL)
}

func TestFilter_CallerExtensible(t *testing.T) {
	f := site.DefaultFilter().Exclude("REDIRECTSITE#0")

	assert.False(t, f.Keep(site.Descriptor{Template: "REDIRECTSITE#0"}))
	assert.False(t, f.Keep(site.Descriptor{Template: "redirectsite#0"})) // case-insensitive
	assert.True(t, f.Keep(site.Descriptor{Template: "STS#3"}))
}

func TestFilter_EmptyResultIsValid(t *testing.T) {
	sites := []site.Descriptor{
		{URL: "https://contoso.sharepoint.com/search", Template: "SRCHCEN#0"},
	}

	kept := site.DefaultFilter().Apply(sites)

	assert.NotNil(t, kept)
	assert.Empty(t, kept)
}

func TestCacheEntry_FreshnessBoundary(t *testing.T) {
	now := time.Now()
	maxAge := 72 * time.Hour

	t.Run("age exactly maxAge is fresh", func(t *testing.T) {
		entry := &site.CacheEntry{WrittenAt: now.Add(-maxAge)}
		assert.True(t, entry.Fresh(now, maxAge))
	})

	t.Run("one second older is stale", func(t *testing.T) {
		entry := &site.CacheEntry{WrittenAt: now.Add(-maxAge - time.Second)}
		assert.False(t, entry.Fresh(now, maxAge))
	})

	t.Run("new entry is fresh", func(t *testing.T) {
		entry := &site.CacheEntry{WrittenAt: now}
		assert.True(t, entry.Fresh(now, maxAge))
	})
}
