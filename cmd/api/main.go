package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "go.uber.org/automaxprocs"

	"studio/internal/bootstrap"
	"studio/internal/http/handlers"
	"studio/internal/http/httpapi"
	"studio/internal/infra"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	comps, err := bootstrap.Build(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build pipeline")
	}
	defer comps.Close()

	app := &handlers.App{
		Logger:         &logger,
		Runs:           comps.Runs,
		Ingestor:       comps.Ingestor,
		Analyzer:       comps.Analyzer,
		Extractor:      comps.Extractor,
		Recomposer:     comps.Recomposer,
		Editor:         comps.Editor,
		Images:         comps.Images,
		Videos:         comps.Videos,
		Describer:      comps.Describer,
		History:        comps.History,
		UploadDir:      os.TempDir(),
		MaxUploadBytes: cfg.MaxUploadBytes,
	}
	router := httpapi.NewRouter(app, httpapi.RouterOptions{
		Logger:          logger,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		StaticDir:       comps.FileStore.BasePath(),
	})
	server := infra.NewHTTPServer(cfg, router)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Bool("database", comps.Pool != nil).
			Bool("asset_host", comps.Uploader != nil).
			Msg("API listening")
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
