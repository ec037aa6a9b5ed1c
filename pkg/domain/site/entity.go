// Package site defines the site collection descriptors enumerated from a
// tenant and the persisted site list.
package site

import (
	"context"
	"strings"
	"time"
)

// Descriptor identifies a single site collection. Identity is the URL;
// descriptors are immutable once cached.
type Descriptor struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Template string `json:"template"`
	Owner    string `json:"owner"`
}

// Templates excluded from scans by default. Search centers and the tenant
// app catalog never carry migratable content.
const (
	TemplateSearchCenter     = "SRCHCEN#0"
	TemplateTenantAppCatalog = "APPCATALOG#0"
)

// Filter selects which enumerated site collections are kept.
type Filter struct {
	excludedTemplates map[string]bool
}

// DefaultFilter returns the filter excluding classic search centers and the
// tenant app catalog.
func DefaultFilter() *Filter {
	return &Filter{
		excludedTemplates: map[string]bool{
			TemplateSearchCenter:     true,
			TemplateTenantAppCatalog: true,
		},
	}
}

// NewFilter returns a filter with no exclusions.
func NewFilter() *Filter {
	return &Filter{excludedTemplates: make(map[string]bool)}
}

// Exclude adds templates to the exclusion set and returns the filter.
func (f *Filter) Exclude(templates ...string) *Filter {
	for _, t := range templates {
		f.excludedTemplates[strings.ToUpper(t)] = true
	}
	return f
}

// Keep reports whether the descriptor survives the filter.
func (f *Filter) Keep(d Descriptor) bool {
	return !f.excludedTemplates[strings.ToUpper(d.Template)]
}

// Apply returns the descriptors that survive the filter. An empty result is
// valid; callers that require at least one site must check themselves.
func (f *Filter) Apply(sites []Descriptor) []Descriptor {
	kept := make([]Descriptor, 0, len(sites))
	for _, d := range sites {
		if f.Keep(d) {
			kept = append(kept, d)
		}
	}
	return kept
}

// CacheEntry is a materialized site list with its freshness timestamp.
// Entries are superseded on rebuild, never mutated.
type CacheEntry struct {
	Sites     []Descriptor
	WrittenAt time.Time
}

// Fresh reports whether the entry is still usable at now for the given
// maximum age. Age exactly equal to maxAge is still fresh.
func (e *CacheEntry) Fresh(now time.Time, maxAge time.Duration) bool {
	return now.Sub(e.WrittenAt) <= maxAge
}

// Repository persists one materialized site list per tenant admin URL.
type Repository interface {
	// GetEntry returns the current entry for the tenant, or
	// shared.ErrNotFound when no site list has been materialized yet.
	GetEntry(ctx context.Context, adminURL string) (CacheEntry, error)

	// ReplaceEntry atomically supersedes the persisted entry. A reader
	// never observes a partially written list.
	ReplaceEntry(ctx context.Context, adminURL string, entry CacheEntry) error
}
