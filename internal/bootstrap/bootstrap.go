// Package bootstrap assembles the pipeline from configuration. It is shared
// by the API server and the CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"studio/internal/assethost"
	"studio/internal/history"
	"studio/internal/infra"
	"studio/internal/infra/credentials"
	"studio/internal/media"
	"studio/internal/media/ffmpeg"
	"studio/internal/providers/gemini"
	"studio/internal/providers/prompt"
	"studio/internal/storage"
	"studio/internal/studio"
)

// Components is the wired pipeline.
type Components struct {
	Config      *infra.Config
	Logger      *infra.Logger
	Pool        *pgxpool.Pool
	Credentials *credentials.Store

	Gemini     *gemini.Client
	Describer  *prompt.Describer
	Ingestor   *media.Ingestor
	Extractor  *studio.Extractor
	Recomposer *studio.Recomposer
	Editor     *studio.Editor
	Videos     *studio.VideoGenerator
	Analyzer   *studio.VideoAnalyzer
	Images     *studio.ImageGenerator
	Runs       *studio.RunRegistry

	FileStore *storage.FileStore
	Archiver  *storage.Archiver
	Uploader  assethost.Uploader
	History   *history.Service
}

// ConnectDB opens the database when DATABASE_URL is set. Without it both
// returned values are nil.
func ConnectDB(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (*pgxpool.Pool, *credentials.Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, nil
	}
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	creds := credentials.NewStore(infra.NewSQLRunner(pool, logger))
	if err := creds.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("credentials schema: %w", err)
	}
	return pool, creds, nil
}

// Build wires every component. Keys missing from the environment are read
// from the credentials store when a database is configured.
func Build(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (*Components, error) {
	c := &Components{Config: cfg, Logger: logger}
	var err error
	c.Pool, c.Credentials, err = ConnectDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	geminiKey, err := c.resolveKey(ctx, cfg.GeminiAPIKey, credentials.ProviderGemini)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Gemini, err = gemini.NewClient(ctx, gemini.Options{
		APIKey:            geminiKey,
		BaseURL:           cfg.GeminiBaseURL,
		TextModel:         cfg.GeminiTextModel,
		ImageModel:        cfg.GeminiImageModel,
		ImagenModel:       cfg.GeminiImagenModel,
		VideoModel:        cfg.GeminiVideoModel,
		RequestsPerMinute: cfg.GeminiRPM,
		Logger:            logger,
	})
	if err != nil {
		c.Close()
		if errors.Is(err, gemini.ErrMissingAPIKey) {
			return nil, fmt.Errorf("%w: set GEMINI_API_KEY or run `studioctl credentials set-gemini-key`", err)
		}
		return nil, err
	}

	gen, err := c.textGenerator(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Describer = prompt.NewDescriber(gen, prompt.DescriberOptions{Logger: logger})

	policy, err := media.ParseMissingAudioPolicy(cfg.IngestMissingAudio)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Ingestor = media.NewIngestor(ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath), media.IngestOptions{
		MaxFrames:      cfg.IngestMaxFrames,
		SampleRate:     cfg.IngestAudioRate,
		OnMissingAudio: policy,
	}, logger)

	c.Extractor = studio.NewExtractor(c.Gemini, studio.ExtractorOptions{Logger: logger})
	c.Recomposer = studio.NewRecomposer(c.Gemini, c.Describer, studio.RecomposerOptions{Logger: logger})
	c.Editor = studio.NewEditor(c.Gemini, gen, c.Describer, studio.EditorOptions{Logger: logger})
	c.Videos = studio.NewVideoGenerator(c.Gemini, c.Describer, studio.VideoGeneratorOptions{
		PollInterval: cfg.VideoPollInterval,
		PollTimeout:  cfg.VideoPollTimeout,
		Logger:       logger,
	})
	c.Analyzer = studio.NewVideoAnalyzer(c.Gemini, studio.VideoAnalyzerOptions{Logger: logger})
	c.Images = studio.NewImageGenerator(c.Gemini, c.Describer, logger)
	c.Runs = studio.NewRunRegistry(0, logger)

	c.FileStore, err = storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Archiver = storage.NewArchiver(c.FileStore, storage.ArchiverOptions{
		BaseURL: cfg.StorageBaseURL,
		WebP:    cfg.ArchiveWebP,
		Logger:  logger,
	})
	c.Uploader, err = c.assetHost(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}

	var store history.Store = history.NewMemoryStore()
	if c.Pool != nil {
		store = history.NewPostgresStore(infra.NewSQLRunner(c.Pool, logger))
	}
	c.History = history.NewService(store, history.ServiceOptions{
		Uploader: c.Uploader,
		Archiver: c.Archiver,
		Logger:   logger,
	})
	if err := c.History.Open(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("open history: %w", err)
	}
	return c, nil
}

// Close releases the history store and database pool.
func (c *Components) Close() {
	if c.History != nil {
		if err := c.History.Close(); err != nil {
			c.Logger.Warn().Err(err).Msg("close history")
		}
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}

func (c *Components) resolveKey(ctx context.Context, fromEnv, provider string) (string, error) {
	if fromEnv != "" || c.Credentials == nil {
		return fromEnv, nil
	}
	var (
		key string
		err error
	)
	switch provider {
	case credentials.ProviderGemini:
		key, err = c.Credentials.GeminiAPIKey(ctx)
	case credentials.ProviderOpenAI:
		key, err = c.Credentials.OpenAIAPIKey(ctx)
	}
	if err != nil {
		return "", fmt.Errorf("load %s key: %w", provider, err)
	}
	return key, nil
}

// textGenerator picks the configured prompt provider and falls back to the
// other one when both are available.
func (c *Components) textGenerator(ctx context.Context) (prompt.Generator, error) {
	openaiKey, err := c.resolveKey(ctx, c.Config.OpenAIAPIKey, credentials.ProviderOpenAI)
	if err != nil {
		return nil, err
	}
	var openaiGen prompt.Generator
	if openaiKey != "" {
		g, err := prompt.NewOpenAIGenerator(prompt.OpenAIOptions{
			APIKey:  openaiKey,
			Model:   c.Config.OpenAIModel,
			BaseURL: c.Config.OpenAIBaseURL,
			OnWarning: func(reason, detail string) {
				c.Logger.Warn().Str("reason", reason).Str("detail", detail).Msg("openai model adjusted")
			},
		})
		if err != nil {
			return nil, err
		}
		openaiGen = g
	}

	primary, secondary := prompt.Generator(c.Gemini), openaiGen
	if c.Config.PromptProvider == "openai" {
		if openaiGen == nil {
			return nil, errors.New("PROMPT_PROVIDER=openai requires OPENAI_API_KEY")
		}
		primary, secondary = openaiGen, c.Gemini
	}
	if secondary == nil {
		return primary, nil
	}
	return &prompt.FallbackGenerator{
		Primary:  primary,
		Fallback: secondary,
		OnFallback: func(err error) {
			c.Logger.Warn().Err(err).Str("primary", c.Config.PromptProvider).Msg("text provider failed, using fallback")
		},
	}, nil
}

// assetHost returns the configured cloud uploader, or nil to archive locally.
// With ASSET_HOST=none, settings saved through the CLI are used if present.
func (c *Components) assetHost(ctx context.Context) (assethost.Uploader, error) {
	cfg := c.Config
	switch cfg.AssetHost {
	case infra.AssetHostCloudinary:
		return assethost.NewCloudinary(assethost.CloudinaryOptions{CloudName: cfg.CloudinaryCloud, UploadPreset: cfg.CloudinaryPreset})
	case infra.AssetHostCOS:
		return assethost.NewCOS(assethost.COSOptions{BucketURL: cfg.COSBucketURL, SecretID: cfg.COSSecretID, SecretKey: cfg.COSSecretKey})
	}
	if c.Credentials == nil {
		return nil, nil
	}
	for _, provider := range []string{credentials.ProviderCloudinary, credentials.ProviderCOS} {
		settings, err := c.Credentials.AssetHost(ctx, provider)
		if err != nil {
			return nil, fmt.Errorf("load %s settings: %w", provider, err)
		}
		if settings == nil {
			continue
		}
		c.Logger.Info().Str("provider", provider).Msg("using stored asset host settings")
		if provider == credentials.ProviderCloudinary {
			return assethost.NewCloudinary(assethost.CloudinaryOptions{CloudName: settings.CloudName, UploadPreset: settings.Secret})
		}
		return assethost.NewCOS(assethost.COSOptions{BucketURL: settings.BucketURL, SecretID: settings.SecretID, SecretKey: settings.Secret})
	}
	return nil, nil
}
