package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tenantaudit/api/internal/metrics"
	"github.com/tenantaudit/api/pkg/domain/appcatalog"
	"github.com/tenantaudit/api/pkg/domain/inventory"
	"github.com/tenantaudit/api/pkg/domain/shared"
	"github.com/tenantaudit/api/pkg/domain/site"
	"github.com/tenantaudit/api/pkg/logger"
	"github.com/tenantaudit/api/pkg/retry"
)

// SharePointConfig holds configuration for the REST client.
type SharePointConfig struct {
	// AccessToken is the bearer token minted by the external auth
	// collaborator; token acquisition is not this client's concern.
	AccessToken string

	// RequestTimeout bounds each HTTP call. Must be finite: an unbounded
	// remote call defeats the scanner's batching backpressure.
	RequestTimeout time.Duration

	// RequestsPerSecond and Burst feed the client-side rate limiter.
	RequestsPerSecond float64
	Burst             int

	Retry retry.Config
}

// SharePointClient implements Client against the SharePoint REST API.
// Every call is rate-limited and routed through the backoff executor.
type SharePointClient struct {
	http    *http.Client
	limiter *rate.Limiter
	token   string
	retry   retry.Config
	logger  *logger.Logger
}

// NewSharePointClient creates a SharePoint REST client.
func NewSharePointClient(cfg SharePointConfig, log *logger.Logger) (*SharePointClient, error) {
	if cfg.AccessToken == "" {
		return nil, errors.New("access token is required")
	}
	if cfg.RequestTimeout <= 0 {
		return nil, errors.New("request timeout must be positive")
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &SharePointClient{
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		token:   cfg.AccessToken,
		retry:   cfg.Retry,
		logger:  log.With("component", "directory_client"),
	}, nil
}

type restConnection struct {
	url    string
	closed bool
}

func (c *restConnection) URL() string { return c.url }

func (c *restConnection) Close() error {
	c.closed = true
	return nil
}

// Connect validates the credential against the site's web endpoint.
func (c *SharePointClient) Connect(ctx context.Context, siteURL string) (Connection, error) {
	if _, err := url.ParseRequestURI(siteURL); err != nil {
		return nil, shared.NewDomainError("VALIDATION", "invalid site url", shared.ErrValidation)
	}

	_, err := retry.Do(ctx, c.retry, func(ctx context.Context) (struct{}, error) {
		err := c.get(ctx, siteURL+"/_api/web?$select=Title", nil)
		// A rejected credential at connect time is an auth failure even
		// when the endpoint reports it as 403.
		if shared.IsPermission(err) {
			return struct{}{}, fmt.Errorf("connect %s: %w", siteURL, shared.ErrAuth)
		}
		return struct{}{}, err
	})
	if err != nil {
		return nil, err
	}

	return &restConnection{url: strings.TrimRight(siteURL, "/")}, nil
}

type tenantSitesResponse struct {
	Value []struct {
		URL      string `json:"Url"`
		Title    string `json:"Title"`
		Template string `json:"Template"`
		Owner    string `json:"OwnerLoginName"`
	} `json:"value"`
}

// ListSiteCollections enumerates site collections via the tenant admin API.
func (c *SharePointClient) ListSiteCollections(ctx context.Context, conn Connection, opts ListSitesOptions) ([]site.Descriptor, error) {
	endpoint := conn.URL() + "/_api/Microsoft.Online.SharePoint.TenantAdministration.Tenant/GetSitePropertiesFromSharePoint"
	if opts.ExcludeOneDrive {
		endpoint += "?$filter=Template ne 'SPSPERS'"
	}

	return retry.Do(ctx, c.retry, func(ctx context.Context) ([]site.Descriptor, error) {
		var resp tenantSitesResponse
		if err := c.get(ctx, endpoint, &resp); err != nil {
			return nil, fmt.Errorf("list site collections: %w", err)
		}

		sites := make([]site.Descriptor, 0, len(resp.Value))
		for _, s := range resp.Value {
			sites = append(sites, site.Descriptor{
				URL:      s.URL,
				Title:    s.Title,
				Template: s.Template,
				Owner:    s.Owner,
			})
		}
		return sites, nil
	})
}

type appTilesResponse struct {
	Value []struct {
		Title                string `json:"Title"`
		AppID                string `json:"AppId"`
		ProductID            string `json:"ProductId"`
		Version              string `json:"AppVersion"`
		Deployed             bool   `json:"Deployed"`
		Enabled              bool   `json:"Enabled"`
		InstalledVersion     string `json:"InstalledVersion"`
		IsClientSideSolution bool   `json:"IsClientSideSolution"`
		CanUpgrade           bool   `json:"CanUpgrade"`
		Source               string `json:"AppSource"`
	} `json:"value"`
}

// ListInstalledApps lists the apps installed at the given scope.
func (c *SharePointClient) ListInstalledApps(ctx context.Context, conn Connection, scope appcatalog.InstallScope) ([]appcatalog.Record, error) {
	if !scope.IsValid() {
		return nil, shared.NewDomainError("VALIDATION", "invalid install scope", shared.ErrValidation)
	}

	endpoint := conn.URL() + "/_api/web/AppTiles?$filter=AppType eq 3"
	if scope == appcatalog.ScopeTenant {
		endpoint = conn.URL() + "/_api/web/tenantappcatalog/AvailableApps"
	}

	return retry.Do(ctx, c.retry, func(ctx context.Context) ([]appcatalog.Record, error) {
		var resp appTilesResponse
		if err := c.get(ctx, endpoint, &resp); err != nil {
			return nil, fmt.Errorf("list installed apps (%s): %w", scope, err)
		}

		records := make([]appcatalog.Record, 0, len(resp.Value))
		for _, a := range resp.Value {
			appID, err := uuid.Parse(a.AppID)
			if err != nil {
				// Classic solutions occasionally report blank product
				// GUIDs; keep the row rather than dropping it.
				appID = uuid.Nil
			}
			records = append(records, appcatalog.Record{
				Scope:                scope,
				SiteURL:              conn.URL(),
				Title:                a.Title,
				AppID:                appID,
				ProductID:            a.ProductID,
				Version:              a.Version,
				Deployed:             a.Deployed,
				Enabled:              a.Enabled,
				InstalledVersion:     a.InstalledVersion,
				IsClientSideSolution: a.IsClientSideSolution,
				CanUpgrade:           a.CanUpgrade,
				FromTenantCatalog:    scope == appcatalog.ScopeTenant,
				Source:               a.Source,
			})
		}
		return records, nil
	})
}

type folderResponse struct {
	Files []struct {
		Name              string    `json:"Name"`
		Length            uint64    `json:"Length,string"`
		TimeLastModified  time.Time `json:"TimeLastModified"`
		ServerRelativeURL string    `json:"ServerRelativeUrl"`
	} `json:"Files"`
	Folders []struct {
		ServerRelativeURL string `json:"ServerRelativeUrl"`
	} `json:"Folders"`
}

// ListFilesRecursive walks the folder tree under folderPath. The walk itself
// is sequential; parallelism lives one level up, across sites.
func (c *SharePointClient) ListFilesRecursive(ctx context.Context, conn Connection, folderPath string) ([]inventory.FileRecord, error) {
	root := folderPath
	if root == "" {
		root = "Documents"
	}

	var files []inventory.FileRecord
	pending := []string{root}

	for len(pending) > 0 {
		folder := pending[0]
		pending = pending[1:]

		resp, err := retry.Do(ctx, c.retry, func(ctx context.Context) (*folderResponse, error) {
			endpoint := fmt.Sprintf("%s/_api/web/GetFolderByServerRelativeUrl('%s')?$expand=Files,Folders",
				conn.URL(), url.PathEscape(folder))
			var r folderResponse
			if err := c.get(ctx, endpoint, &r); err != nil {
				return nil, fmt.Errorf("list folder %s: %w", folder, err)
			}
			return &r, nil
		})
		if err != nil {
			return nil, err
		}

		for _, f := range resp.Files {
			files = append(files, inventory.FileRecord{
				Name:         f.Name,
				SizeBytes:    f.Length,
				ModifiedAt:   f.TimeLastModified,
				RelativePath: f.ServerRelativeURL,
			})
		}
		for _, sub := range resp.Folders {
			if strings.HasSuffix(sub.ServerRelativeURL, "/Forms") {
				continue // library system folder
			}
			pending = append(pending, sub.ServerRelativeURL)
		}
	}

	return files, nil
}

// get issues a rate-limited GET and decodes the JSON body into out when
// non-nil. Errors are classified into the shared taxonomy.
func (c *SharePointClient) get(ctx context.Context, endpoint string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json;odata=nometadata")
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.DirectoryRequestsTotal.WithLabelValues("error").Inc()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Dial failures, resets and client timeouts are all transient.
		return fmt.Errorf("%v: %w", err, shared.ErrConnection)
	}
	defer resp.Body.Close()

	metrics.DirectoryRequestDuration.Observe(time.Since(start).Seconds())
	metrics.DirectoryRequestsTotal.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()

	if err := classifyStatus(resp.StatusCode); err != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return err
	}

	if out == nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// classifyStatus maps an HTTP status to the shared error taxonomy.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return fmt.Errorf("http %d: %w", status, shared.ErrAuth)
	case status == http.StatusForbidden:
		return fmt.Errorf("http %d: %w", status, shared.ErrPermission)
	case status == http.StatusNotFound:
		return fmt.Errorf("http %d: %w", status, shared.ErrNotFound)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("http %d: %w", status, shared.ErrConnection)
	default:
		return fmt.Errorf("http %d: %w", status, shared.ErrInternal)
	}
}
