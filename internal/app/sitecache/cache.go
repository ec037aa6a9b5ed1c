// Package sitecache keeps a staleness-aware copy of the tenant site
// list so repeat scans do not re-enumerate thousands of site
// collections against the admin endpoint.
package sitecache

import (
	"context"
	"fmt"
	"time"

	"github.com/tenantaudit/api/internal/infra/directory"
	"github.com/tenantaudit/api/internal/metrics"
	"github.com/tenantaudit/api/pkg/domain/shared"
	"github.com/tenantaudit/api/pkg/domain/site"
	"github.com/tenantaudit/api/pkg/logger"
)

// Options controls a single site list request.
type Options struct {
	// MaxAge is the freshness window. An entry written at most MaxAge
	// ago is served without touching the directory.
	MaxAge time.Duration
	// ForceRefresh bypasses the freshness check and always rebuilds.
	ForceRefresh bool
	// Filter excludes administrative templates from the rebuilt list.
	// Nil means site.DefaultFilter().
	Filter *site.Filter
}

// Service serves the tenant site list, rebuilding it from the
// directory when the stored copy is stale or a refresh is forced.
type Service struct {
	repo   site.Repository
	client directory.Client
	log    *logger.Logger
	now    func() time.Time
}

// NewService creates a site cache service.
func NewService(repo site.Repository, client directory.Client, log *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		client: client,
		log:    log.With("component", "sitecache"),
		now:    time.Now,
	}
}

// GetOrBuild returns the site list for the tenant behind adminURL.
// The stored entry is served when it is fresh; otherwise the list is
// rebuilt from the directory and persisted before being returned. A
// rebuild failure is returned as-is: the scanner cannot run without a
// site list, and a stale list must never silently stand in for one.
func (s *Service) GetOrBuild(ctx context.Context, adminURL string, opts Options) ([]site.Descriptor, error) {
	filter := opts.Filter
	if filter == nil {
		filter = site.DefaultFilter()
	}

	trigger := "forced"
	if !opts.ForceRefresh {
		entry, err := s.repo.GetEntry(ctx, adminURL)
		switch {
		case err == nil:
			if entry.Fresh(s.now(), opts.MaxAge) {
				s.log.Debug("serving cached site list",
					"admin_url", adminURL,
					"sites", len(entry.Sites),
					"written_at", entry.WrittenAt,
				)
				return entry.Sites, nil
			}
			trigger = "stale"
			s.log.Info("cached site list is stale, rebuilding",
				"admin_url", adminURL,
				"age", s.now().Sub(entry.WrittenAt).String(),
				"max_age", opts.MaxAge.String(),
			)
		case shared.IsNotFound(err):
			trigger = "missing"
			s.log.Info("no cached site list, building", "admin_url", adminURL)
		default:
			return nil, fmt.Errorf("reading cached site list: %w", err)
		}
	}

	sites, err := s.rebuild(ctx, adminURL, filter)
	if err != nil {
		return nil, err
	}
	metrics.SiteCacheRebuildsTotal.WithLabelValues(trigger).Inc()
	return sites, nil
}

// rebuild enumerates the tenant site collections, applies the
// template filter and replaces the stored entry.
func (s *Service) rebuild(ctx context.Context, adminURL string, filter *site.Filter) ([]site.Descriptor, error) {
	conn, err := s.client.Connect(ctx, adminURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", adminURL, err)
	}
	defer conn.Close()

	all, err := s.client.ListSiteCollections(ctx, conn, directory.ListSitesOptions{ExcludeOneDrive: true})
	if err != nil {
		return nil, fmt.Errorf("listing site collections for %s: %w", adminURL, err)
	}

	kept := filter.Apply(all)
	entry := site.CacheEntry{Sites: kept, WrittenAt: s.now()}
	if err := s.repo.ReplaceEntry(ctx, adminURL, entry); err != nil {
		return nil, fmt.Errorf("persisting site list for %s: %w", adminURL, err)
	}

	s.log.Info("site list rebuilt",
		"admin_url", adminURL,
		"discovered", len(all),
		"kept", len(kept),
	)
	return kept, nil
}
