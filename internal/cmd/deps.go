package cmd

import (
	"context"

	"github.com/felixgeelhaar/activityflow/internal/activity"
	"github.com/felixgeelhaar/activityflow/internal/applet"
	"github.com/felixgeelhaar/activityflow/internal/config"
	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
	"github.com/felixgeelhaar/activityflow/internal/ld"
	"github.com/felixgeelhaar/activityflow/internal/session"
	"github.com/felixgeelhaar/activityflow/internal/version"
)

// newResolver builds the document resolver described by the resolver
// section of the configuration.
func (c *CommandContext) newResolver() (ld.DocumentResolver, error) {
	cfg := c.Config.Resolver

	fetcher := ld.NewDefaultFetcher(
		c.Config.HTTPConfig(version.GetInfo().UserAgent()),
		c.Logger,
		ld.WithInsecureRegistry(cfg.InsecureRegistry),
	)
	resolver := ld.NewResolver(fetcher, ld.WithLogger(c.Logger), ld.WithMetrics(c.Metrics))

	if cfg.CacheSize == 0 {
		return resolver, nil
	}
	cached, err := ld.NewCachingResolver(resolver, cfg.CacheSize, c.Metrics)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

// newController returns a controller over resolver that logs and records
// metrics like the command does.
func (c *CommandContext) newController(resolver ld.DocumentResolver) *activity.Controller {
	return activity.NewController(resolver,
		activity.WithLogger(c.Logger),
		activity.WithMetrics(c.Metrics),
	)
}

// openStore opens the session store at store.dsn.
func (c *CommandContext) openStore(ctx context.Context) (session.Store, error) {
	return session.Open(ctx, config.ExpandHome(c.Config.Store.DSN))
}

// catalogPath returns override, or the configured catalog.
func (c *CommandContext) catalogPath(override string) string {
	if override != "" {
		return override
	}
	return config.ExpandHome(c.Config.Catalog)
}

// loadCatalog reads the catalog at catalogPath(override). It is CATALOG-001
// when no catalog is configured.
func (c *CommandContext) loadCatalog(override string) (*applet.Catalog, error) {
	path := c.catalogPath(override)
	if path == "" {
		return nil, aferrors.NewCatalogNotFoundError("(none configured)")
	}
	return applet.LoadCatalog(path)
}
