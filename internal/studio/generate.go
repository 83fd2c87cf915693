package studio

import (
	"context"
	"fmt"
	"strings"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/media"
	"studio/internal/providers/gemini"
)

// BatchModel generates images from text alone.
type BatchModel interface {
	GenerateImageBatch(ctx context.Context, prompt string, opts gemini.BatchOptions) ([]media.ImageAsset, error)
}

var aspectRatios = map[string]bool{
	"1:1":  true,
	"3:4":  true,
	"4:3":  true,
	"9:16": true,
	"16:9": true,
}

const maxBatchImages = 4

// ImageGenerator covers text-to-image requests, including standalone
// backgrounds for recomposition.
type ImageGenerator struct {
	model      BatchModel
	translator Translator
	logger     *infra.Logger
}

func NewImageGenerator(model BatchModel, translator Translator, logger *infra.Logger) *ImageGenerator {
	return &ImageGenerator{model: model, translator: translator, logger: infra.ComponentLogger(logger, "imagegen")}
}

// GenerateImages translates prompt and requests count images.
func (g *ImageGenerator) GenerateImages(ctx context.Context, prompt string, count int, aspect string) ([]media.ImageAsset, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", domain.ErrInvalidInput)
	}
	if count <= 0 {
		count = 1
	}
	if count > maxBatchImages {
		return nil, fmt.Errorf("%w: at most %d images per request", domain.ErrInvalidInput, maxBatchImages)
	}
	if aspect == "" {
		aspect = "1:1"
	}
	if !aspectRatios[aspect] {
		return nil, fmt.Errorf("%w: unsupported aspect ratio %q", domain.ErrInvalidInput, aspect)
	}
	if g.translator != nil {
		prompt = g.translator.Translate(ctx, prompt)
	}
	images, err := g.model.GenerateImageBatch(ctx, prompt, gemini.BatchOptions{Count: count, AspectRatio: aspect})
	if err != nil {
		return nil, asPolicyRefusal(err)
	}
	g.logger.Info().Int("requested", count).Int("returned", len(images)).Str("aspect", aspect).Msg("images generated")
	return images, nil
}

// GenerateBackground returns one scene image for use as a recomposition
// background.
func (g *ImageGenerator) GenerateBackground(ctx context.Context, prompt, aspect string) (media.ImageAsset, error) {
	images, err := g.GenerateImages(ctx, prompt, 1, aspect)
	if err != nil {
		return media.ImageAsset{}, fmt.Errorf("generate background: %w", err)
	}
	return images[0], nil
}
