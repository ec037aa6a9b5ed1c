// Package appcatalog defines installed-app records discovered during a
// tenant scan.
package appcatalog

import "github.com/google/uuid"

// InstallScope identifies where an app installation was enumerated from.
type InstallScope string

const (
	// ScopeTenant is the tenant-wide app catalog.
	ScopeTenant InstallScope = "tenant"
	// ScopeSite is a single site's local catalog.
	ScopeSite InstallScope = "site"
	// ScopeSiteCollectionCatalog is a site collection app catalog.
	ScopeSiteCollectionCatalog InstallScope = "site_collection_catalog"
)

// IsValid checks if the scope is a valid scope value.
func (s InstallScope) IsValid() bool {
	switch s {
	case ScopeTenant, ScopeSite, ScopeSiteCollectionCatalog:
		return true
	}
	return false
}

// String returns the string representation of the scope.
func (s InstallScope) String() string {
	return string(s)
}

// Record describes one installed app at one site. AppID is unique within a
// (scope, site URL) pair but not globally; the same app shows up once per
// site it is installed on.
type Record struct {
	Scope                InstallScope `json:"scope"`
	SiteURL              string       `json:"site_url"`
	Title                string       `json:"title"`
	AppID                uuid.UUID    `json:"app_id"`
	ProductID            string       `json:"product_id"`
	Version              string       `json:"version"`
	Deployed             bool         `json:"deployed"`
	Enabled              bool         `json:"enabled"`
	InstalledVersion     string       `json:"installed_version"`
	IsClientSideSolution bool         `json:"is_client_side_solution"`
	CanUpgrade           bool         `json:"can_upgrade"`
	FromTenantCatalog    bool         `json:"from_tenant_catalog"`
	Source               string       `json:"source"`
}
