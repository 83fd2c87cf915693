package studio

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/media"
)

// ImageModel produces one image from an instruction and reference images.
type ImageModel interface {
	GenerateImage(ctx context.Context, instruction string, images ...media.ImageAsset) (media.ImageAsset, error)
}

// Field names one slot of a ComponentSet.
type Field string

const (
	FieldCharacterCutout    Field = "character_cutout"
	FieldOutfit1            Field = "outfit_1"
	FieldOutfit2            Field = "outfit_2"
	FieldOutfit2Transparent Field = "outfit_2_transparent"
	FieldBackground1        Field = "background_1"
	FieldBackground2        Field = "background_2"
)

// Fields lists every component field in presentation order.
var Fields = []Field{
	FieldCharacterCutout,
	FieldOutfit1,
	FieldOutfit2,
	FieldOutfit2Transparent,
	FieldBackground1,
	FieldBackground2,
}

const (
	instrForeground = "Foreground subject cutout. Keep only the primary subject (no background). " +
		"Output must be a single PNG with an alpha channel. Return image only."

	instrForegroundSoft = "Foreground subject cutout for catalog compositing. Keep only the main subject silhouette " +
		"if present (no background). Output: a single PNG with transparent background (alpha). Return image only."

	instrOutfit = "Garment-only isolation for a product image. Extract only the clothing as a standalone item " +
		"(no human figure, no skin, no hair, no limbs). Present it as a mannequin-style product photo on a " +
		"transparent background (PNG). Plausibly complete small occluded fabric areas, such as the inside of a " +
		"collar, for a clean and complete outfit. The output must contain only the garments."

	instrOutfitSoft = "Garment-only isolation for a product image. Extract only the visible clothing pieces " +
		"(no human figure). Do not reconstruct or infer hidden or backside areas. Output a single " +
		"transparent-background PNG that contains garments only."

	instrOutfitPosed = "Pose-preserving garment extraction. Isolate the complete outfit from the provided image, " +
		"including all clothing and accessories, and make the person wearing it fully transparent. Do not alter " +
		"the shape, folds, wrinkles or pose of the garments. The output must be a single PNG holding only the " +
		"posed outfit on a transparent alpha background. Do not flatten or rearrange the clothes into a flat lay."

	instrBackground = "Scene restoration: remove the primary human figure and any shadows or reflections it casts. " +
		"Reconstruct the background from the surrounding visual context so the scene looks as if the subject " +
		"was never present. Deliver only the clean background at the original resolution."

	instrBackgroundSoft = "Simple subject removal. Erase the primary figure and fill the gap with nearby textures " +
		"and colors. A perfect reconstruction is not required; prefer a clean, unobtrusive result."
)

// DefaultStrategies returns the six field strategies of an extraction.
func DefaultStrategies() []FieldStrategy {
	return []FieldStrategy{
		{Field: FieldCharacterCutout, Source: SourceCharacter, Primary: instrForeground, Fallback: instrForegroundSoft, ShouldFallback: IsPolicyFallbackTrigger},
		{Field: FieldOutfit1, Source: SourceCharacter, Primary: instrOutfit},
		{Field: FieldOutfit2, Source: SourceConcept, Primary: instrOutfit, Fallback: instrOutfitSoft, ShouldFallback: IsPolicyFallbackTrigger},
		{Field: FieldOutfit2Transparent, Source: SourceConcept, Primary: instrOutfitPosed},
		{Field: FieldBackground1, Source: SourceCharacter, Primary: instrBackground, Fallback: instrBackgroundSoft, ShouldFallback: IsPolicyFallbackTrigger},
		{Field: FieldBackground2, Source: SourceConcept, Primary: instrBackground, Fallback: instrBackgroundSoft, ShouldFallback: IsPolicyFallbackTrigger},
	}
}

// ComponentSet is the complete output of one extraction. It is only ever
// built with every field present.
type ComponentSet struct {
	SourceKey  string
	Components map[Field]media.ImageAsset
}

// Get returns the asset stored for field.
func (c *ComponentSet) Get(field Field) (media.ImageAsset, bool) {
	if c == nil {
		return media.ImageAsset{}, false
	}
	a, ok := c.Components[field]
	return a, ok
}

// SourceKeyFor fingerprints a character/concept pair. A ComponentSet whose
// SourceKey differs from the current inputs is stale.
func SourceKeyFor(character, concept media.ImageAsset) string {
	h := sha256.New()
	for _, a := range []media.ImageAsset{character, concept} {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(a.Data)))
		h.Write(n[:])
		h.Write(a.Data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

type ExtractorOptions struct {
	Retry      RetryPolicy
	Sleep      SleepFunc
	Strategies []FieldStrategy
	Logger     *infra.Logger
}

// Extractor isolates reusable components from two source images.
type Extractor struct {
	model      ImageModel
	retrier    *retrier
	strategies []FieldStrategy
	logger     *infra.Logger
}

func NewExtractor(model ImageModel, opts ExtractorOptions) *Extractor {
	logger := infra.ComponentLogger(opts.Logger, "extractor")
	policy := opts.Retry
	if policy == (RetryPolicy{}) {
		policy = DefaultRetryPolicy()
	}
	strategies := opts.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Extractor{
		model:      model,
		retrier:    newRetrier(policy, opts.Sleep, logger),
		strategies: strategies,
		logger:     logger,
	}
}

// Extract runs every field concurrently. The first failing field cancels the
// rest and is returned as *ExtractionError; no partial set is returned.
func (e *Extractor) Extract(ctx context.Context, character, concept media.ImageAsset) (*ComponentSet, error) {
	if character.Empty() || concept.Empty() {
		return nil, fmt.Errorf("%w: character and concept images are required", domain.ErrInvalidInput)
	}
	start := time.Now()
	results := make([]media.ImageAsset, len(e.strategies))
	g, gctx := errgroup.WithContext(ctx)
	for i, strategy := range e.strategies {
		src := character
		if strategy.Source == SourceConcept {
			src = concept
		}
		g.Go(func() error {
			out, err := strategy.run(gctx, e.retrier, e.model, src)
			if err != nil {
				return &ExtractionError{Field: strategy.Field, Err: err}
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Error().Err(err).Msg("component extraction failed")
		return nil, err
	}

	set := &ComponentSet{
		SourceKey:  SourceKeyFor(character, concept),
		Components: make(map[Field]media.ImageAsset, len(results)),
	}
	for i, strategy := range e.strategies {
		set.Components[strategy.Field] = results[i]
	}
	e.logger.Info().Int("fields", len(results)).Dur("took", time.Since(start)).Msg("components extracted")
	return set, nil
}
