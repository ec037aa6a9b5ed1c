// Package directory abstracts the remote tenant directory: site collection
// enumeration, installed-app listings and recursive file listings. The
// concrete implementation talks SharePoint REST; everything above it depends
// only on the Client interface and fakes it in tests.
package directory

import (
	"context"

	"github.com/tenantaudit/api/pkg/domain/appcatalog"
	"github.com/tenantaudit/api/pkg/domain/inventory"
	"github.com/tenantaudit/api/pkg/domain/site"
)

// Connection is a short-lived session against one site or admin endpoint.
// One connection per scan task, closed by the caller on all exit paths.
type Connection interface {
	// URL returns the endpoint this connection is bound to.
	URL() string
	Close() error
}

// ListSitesOptions controls site collection enumeration.
type ListSitesOptions struct {
	// ExcludeOneDrive drops personal (SPSPERS) site collections.
	ExcludeOneDrive bool
}

// Client is the capability surface the scan pipeline consumes. Calls fail
// with the shared error classes: shared.ErrConnection (transient, retried),
// shared.ErrAuth, shared.ErrPermission, shared.ErrNotFound.
type Client interface {
	// Connect opens a session against url. Fails with shared.ErrAuth when
	// the credential is rejected.
	Connect(ctx context.Context, url string) (Connection, error)

	// ListSiteCollections enumerates the tenant's site collections through
	// an admin connection.
	ListSiteCollections(ctx context.Context, conn Connection, opts ListSitesOptions) ([]site.Descriptor, error)

	// ListInstalledApps lists apps installed at the given scope for the
	// connected site.
	ListInstalledApps(ctx context.Context, conn Connection, scope appcatalog.InstallScope) ([]appcatalog.Record, error)

	// ListFilesRecursive lists every file under folderPath (the drive root
	// when empty). Fails with shared.ErrNotFound when the folder is absent.
	ListFilesRecursive(ctx context.Context, conn Connection, folderPath string) ([]inventory.FileRecord, error)
}
