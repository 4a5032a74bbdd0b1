// Package app provides the main application setup and dependency injection.
package app

import (
	"anistream-proxy-go/pkg/appctx"
	"anistream-proxy-go/pkg/auth"
	"anistream-proxy-go/pkg/config"
	"anistream-proxy-go/pkg/handlers/api"
	"anistream-proxy-go/pkg/hianime"
	"anistream-proxy-go/pkg/hls"
	"anistream-proxy-go/pkg/httpclient"
	"anistream-proxy-go/pkg/logging"
	"anistream-proxy-go/pkg/megacloud"
	"anistream-proxy-go/pkg/server"
	"anistream-proxy-go/pkg/services"
	"anistream-proxy-go/pkg/subdl"
	"anistream-proxy-go/pkg/translate"
)

// App is the main application container.
type App struct {
	Ctx        *appctx.Context
	Server     *server.Server
	HTTPClient *httpclient.Client
}

// New creates and initializes the application.
func New() (*App, error) {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log := logging.New(cfg.LogLevel, cfg.LogJSON, nil)
	log.Info("initializing anistream", "port", cfg.Port, "log_level", cfg.LogLevel)

	// Create application context
	ctx := appctx.New(cfg, log)

	// Create HTTP client
	httpClient := httpclient.New(cfg, log)

	// Catalog client
	catalog := hianime.NewClient(httpClient, log, cfg.CatalogBase)
	ctx.WithCatalog(catalog)

	// Embed-session negotiator
	negotiator := megacloud.NewNegotiator(httpClient, log, cfg.EmbedBase, cfg.CatalogBase)

	// Subtitle pipeline
	translator := translate.NewGoogleClient(httpClient, log, cfg.TranslateAPIURL)
	pipeline := translate.NewService(translator, log)
	cache := translate.NewCache(cfg.TranslationTTL, cfg.TranslateWait)
	ctx.WithCache(cache)

	subdlClient := subdl.NewClient(httpClient, log, cfg.SubdlAPIURL, cfg.SubdlDownloadURL, cfg.SubdlAPIKey)

	// Playlist segment extractor, presenting as a player on the embed host
	segments := hls.NewExtractor(httpClient, log, map[string]string{
		"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Referer":    cfg.EmbedBase + "/",
		"Origin":     cfg.EmbedBase,
	})

	// Resolver and media proxy
	resolver := services.NewResolver(catalog, negotiator, subdlClient, pipeline, cache, segments, httpClient, log, cfg.KeysURL, cfg.EmbedBase)
	ctx.WithResolver(resolver)

	proxy := services.NewMediaProxy(httpClient, log, cfg.EmbedBase)
	ctx.WithProxy(proxy)

	// OTP verification store
	ctx.WithOTP(auth.NewOTPStore(cfg.OTPTTL))

	// Create HTTP server
	srv := server.New(cfg, log)

	// Create API handlers
	handlers := api.NewHandlers(ctx)
	handlers.RegisterRoutes(srv.Router())

	return &App{
		Ctx:        ctx,
		Server:     srv,
		HTTPClient: httpClient,
	}, nil
}

// Run starts the application.
func (a *App) Run() error {
	a.Ctx.Log.Info("starting anistream server", "port", a.Ctx.Config.Port)
	return a.Server.Start()
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() {
	a.Ctx.Log.Info("shutting down application")
}
