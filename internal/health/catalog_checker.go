package health

import (
	"context"

	"github.com/felixgeelhaar/activityflow/internal/applet"
)

// CatalogChecker verifies that the activity catalog file loads.
type CatalogChecker struct {
	path string
}

// NewCatalogChecker creates a checker for the catalog at path. An empty path
// means no catalog is configured.
func NewCatalogChecker(path string) *CatalogChecker {
	return &CatalogChecker{path: path}
}

func (c *CatalogChecker) Name() string {
	return "activity-catalog"
}

// Check reports a missing catalog setting as degraded, not unhealthy.
func (c *CatalogChecker) Check(ctx context.Context) *Result {
	if c.path == "" {
		return Degraded("no activity catalog configured").
			WithDetail("suggestion", "Set catalog in the configuration or ACTIVITYFLOW_CATALOG")
	}

	if err := ctx.Err(); err != nil {
		return Unhealthy("catalog check cancelled").
			WithDetail("error", err.Error())
	}

	catalog, err := applet.LoadCatalog(c.path)
	if err != nil {
		return Unhealthy("activity catalog cannot be loaded").
			WithDetail("path", c.path).
			WithDetail("error", err.Error())
	}

	return Healthy("activity catalog loaded").
		WithDetail("path", c.path).
		WithDetail("name", catalog.Name).
		WithDetail("activities", len(catalog.Activities))
}
