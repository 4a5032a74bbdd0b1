// Package appctx provides the application context that holds all runtime dependencies.
package appctx

import (
	"anistream-proxy-go/pkg/auth"
	"anistream-proxy-go/pkg/config"
	"anistream-proxy-go/pkg/hianime"
	"anistream-proxy-go/pkg/logging"
	"anistream-proxy-go/pkg/services"
	"anistream-proxy-go/pkg/translate"
)

// Context holds all application runtime dependencies.
// Pass this single struct to components instead of individual parameters.
type Context struct {
	Config   *config.Config
	Log      *logging.Logger
	Catalog  *hianime.Client
	Resolver *services.Resolver
	Proxy    *services.MediaProxy
	Cache    *translate.Cache
	OTP      *auth.OTPStore
}

// New creates a new application context.
func New(cfg *config.Config, log *logging.Logger) *Context {
	return &Context{
		Config: cfg,
		Log:    log,
	}
}

// WithCatalog sets the catalog client.
func (c *Context) WithCatalog(client *hianime.Client) *Context {
	c.Catalog = client
	return c
}

// WithResolver sets the source resolver.
func (c *Context) WithResolver(r *services.Resolver) *Context {
	c.Resolver = r
	return c
}

// WithProxy sets the media proxy service.
func (c *Context) WithProxy(p *services.MediaProxy) *Context {
	c.Proxy = p
	return c
}

// WithCache sets the translation cache.
func (c *Context) WithCache(cache *translate.Cache) *Context {
	c.Cache = cache
	return c
}

// WithOTP sets the OTP verification store.
func (c *Context) WithOTP(store *auth.OTPStore) *Context {
	c.OTP = store
	return c
}
