package version

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// VersionStatus is the lifecycle state of a published contract version.
// Movement is one way: current -> deprecated -> (externally) sunset.
type VersionStatus string

const (
	StatusCurrent    VersionStatus = "current"
	StatusDeprecated VersionStatus = "deprecated"
	StatusSunset     VersionStatus = "sunset"
)

// ChangeType classifies a changelog entry, keep-a-changelog style.
type ChangeType string

const (
	ChangeAdded      ChangeType = "added"
	ChangeChanged    ChangeType = "changed"
	ChangeDeprecated ChangeType = "deprecated"
	ChangeRemoved    ChangeType = "removed"
	ChangeFixed      ChangeType = "fixed"
	ChangeSecurity   ChangeType = "security"
)

// ChangelogEntry is one structured change record. Entries are append-only
// and kept in insertion order.
type ChangelogEntry struct {
	Type              ChangeType `json:"type"`
	Description       string     `json:"description"`
	AffectedEndpoints []string   `json:"affected_endpoints,omitempty"`
	Date              time.Time  `json:"date"`
}

// APIVersion is one published contract version with its changelog.
type APIVersion struct {
	Version     string           `json:"version"`
	Status      VersionStatus    `json:"status"`
	ReleaseDate time.Time        `json:"release_date"`
	SunsetDate  *time.Time       `json:"sunset_date,omitempty"`
	Changelog   []ChangelogEntry `json:"changelog"`
}

func (v *APIVersion) clone() *APIVersion {
	out := *v
	out.Changelog = append([]ChangelogEntry(nil), v.Changelog...)
	if v.SunsetDate != nil {
		t := *v.SunsetDate
		out.SunsetDate = &t
	}
	return &out
}

// Catalog tracks published API versions. It does not enforce "exactly one
// current": promotion and demotion are administrative actions the caller
// coordinates; creating a second current version is allowed and logged.
type Catalog struct {
	mu       sync.RWMutex
	versions map[string]*APIVersion
	order    []string
}

func NewCatalog() *Catalog {
	return &Catalog{versions: make(map[string]*APIVersion)}
}

// NewSeededCatalog returns a catalog pre-loaded with the v1 contract so a
// fresh deployment never runs with an empty catalog.
func NewSeededCatalog() *Catalog {
	c := NewCatalog()
	v1, _ := c.Create("v1", StatusCurrent, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	for _, e := range []ChangelogEntry{
		{Type: ChangeAdded, Description: "Initial public API release", Date: v1.ReleaseDate},
		{Type: ChangeAdded, Description: "Webhook subscriptions with HMAC-signed deliveries", Date: v1.ReleaseDate},
		{Type: ChangeAdded, Description: "Per-client rate limiting with x-ratelimit response headers", Date: v1.ReleaseDate},
	} {
		c.AppendChangelog("v1", e)
	}
	return c
}

// Create publishes a new version with an empty changelog. Duplicate version
// identifiers are rejected.
func (c *Catalog) Create(version string, status VersionStatus, releaseDate time.Time) (*APIVersion, error) {
	if version == "" {
		return nil, fmt.Errorf("version identifier is required")
	}
	switch status {
	case StatusCurrent, StatusDeprecated, StatusSunset:
	case "":
		status = StatusCurrent
	default:
		return nil, fmt.Errorf("unknown version status %q", status)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.versions[version]; exists {
		return nil, fmt.Errorf("version %s already exists", version)
	}
	if status == StatusCurrent {
		for _, v := range c.versions {
			if v.Status == StatusCurrent {
				log.Printf("version catalog: %s created as current while %s is still current", version, v.Version)
				break
			}
		}
	}

	v := &APIVersion{Version: version, Status: status, ReleaseDate: releaseDate}
	c.versions[version] = v
	c.order = append(c.order, version)
	return v.clone(), nil
}

func (c *Catalog) Get(version string) (*APIVersion, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.versions[version]
	if !ok {
		return nil, false
	}
	return v.clone(), true
}

// ListAll returns every version in creation order.
func (c *Catalog) ListAll() []*APIVersion {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*APIVersion, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.versions[name].clone())
	}
	return out
}

// Current returns the version flagged current. With more than one (a caller
// contract violation) the most recently created wins; false means the
// catalog has none, which is a configuration error for a live API.
func (c *Catalog) Current() (*APIVersion, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.order) - 1; i >= 0; i-- {
		if v := c.versions[c.order[i]]; v.Status == StatusCurrent {
			return v.clone(), true
		}
	}
	return nil, false
}

// Deprecate moves a version to deprecated and stamps its sunset date.
// Deprecating an already-deprecated version just re-stamps the date; there
// is no path back to current. Returns false for an unknown version.
func (c *Catalog) Deprecate(version string, sunsetDate time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.versions[version]
	if !ok {
		return false
	}
	v.Status = StatusDeprecated
	t := sunsetDate
	v.SunsetDate = &t
	return true
}

// AppendChangelog appends an entry, preserving insertion order. Returns
// false for an unknown version.
func (c *Catalog) AppendChangelog(version string, entry ChangelogEntry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.versions[version]
	if !ok {
		return false
	}
	v.Changelog = append(v.Changelog, entry)
	return true
}

// Count returns the number of published versions.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.versions)
}
