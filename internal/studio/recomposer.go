package studio

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/media"
)

// Translator renders user text in English.
type Translator interface {
	Translate(ctx context.Context, text string) string
}

// Selection is the user-chosen triple plus a pose instruction.
type Selection struct {
	Character   media.ImageAsset
	Outfit      media.ImageAsset
	Background  media.ImageAsset
	Instruction string
}

// RecompositionResult holds the successful variants in variant order and
// the variants that failed.
type RecompositionResult struct {
	Images      []media.ImageAsset
	Failures    []VariantFailure
	Instruction string
}

const recomposeTemplate = `TASK: Photorealistic character compositing.
You are a digital compositor.

ASSETS:
- Image 1 (CHARACTER): the person. Their identity (face, hair, body shape) is an IDENTITY LOCK and must be preserved with full fidelity. A result that does not look exactly like this person is a failure.
- Image 2 (OUTFIT): the CHARACTER must be wearing this outfit.
- Image 3 (BACKGROUND): the CHARACTER must be placed in this scene.

INSTRUCTION:
- The desired pose and action for the CHARACTER are: %q.

Combine these elements into a single, seamless, photorealistic image with consistent lighting, shadows and perspective. The highest priority is the exact likeness of the CHARACTER.`

const defaultMaxVariants = 8

type RecomposerOptions struct {
	MaxVariants int
	Logger      *infra.Logger
}

// Recomposer merges a Selection into new images.
type Recomposer struct {
	model       ImageModel
	translator  Translator
	maxVariants int
	logger      *infra.Logger
}

func NewRecomposer(model ImageModel, translator Translator, opts RecomposerOptions) *Recomposer {
	maxVariants := opts.MaxVariants
	if maxVariants <= 0 {
		maxVariants = defaultMaxVariants
	}
	return &Recomposer{
		model:       model,
		translator:  translator,
		maxVariants: maxVariants,
		logger:      infra.ComponentLogger(opts.Logger, "recomposer"),
	}
}

// RecomposeInstruction builds the merge instruction for pose.
func RecomposeInstruction(pose string) string {
	return fmt.Sprintf(recomposeTemplate, strings.TrimSpace(pose))
}

// Recompose issues n independent merge calls and waits for all of them.
// Any non-empty subset of successes is returned; failures are kept in the
// result. When every call fails a *RecompositionError is returned.
func (r *Recomposer) Recompose(ctx context.Context, sel Selection, n int) (*RecompositionResult, error) {
	if sel.Character.Empty() || sel.Outfit.Empty() || sel.Background.Empty() {
		return nil, fmt.Errorf("%w: character, outfit and background are required", domain.ErrInvalidInput)
	}
	if n <= 0 {
		n = 1
	}
	if n > r.maxVariants {
		return nil, fmt.Errorf("%w: at most %d variants per request", domain.ErrInvalidInput, r.maxVariants)
	}

	pose := sel.Instruction
	if r.translator != nil {
		pose = r.translator.Translate(ctx, pose)
	}
	instruction := RecomposeInstruction(pose)

	res, err := generateVariants(ctx, r.model, r.logger, "recomposition", instruction, n, sel.Character, sel.Outfit, sel.Background)
	if err != nil {
		return nil, err
	}
	res.Instruction = pose
	r.logger.Info().Int("requested", n).Int("succeeded", len(res.Images)).Msg("recomposition finished")
	return res, nil
}

// generateVariants issues n independent calls with the same instruction and
// images and waits for all of them. Successes keep variant order. When every
// call fails a *RecompositionError labelled op is returned.
func generateVariants(ctx context.Context, model ImageModel, logger *infra.Logger, op, instruction string, n int, images ...media.ImageAsset) (*RecompositionResult, error) {
	out := make([]media.ImageAsset, n)
	errs := make([]error, n)
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			out[i], errs[i] = model.GenerateImage(ctx, instruction, images...)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &RecompositionResult{}
	for i := range n {
		if errs[i] != nil {
			res.Failures = append(res.Failures, VariantFailure{Variant: i, Err: asPolicyRefusal(errs[i])})
			logger.Warn().Err(errs[i]).Str("op", op).Int("variant", i).Msg("variant failed")
			continue
		}
		res.Images = append(res.Images, out[i])
	}
	if len(res.Images) == 0 {
		reason, blocked := refusalDetails(res.Failures[0].Err)
		return nil, &RecompositionError{
			Op:                op,
			Requested:         n,
			Failures:          res.Failures,
			FinishReason:      reason,
			BlockedCategories: blocked,
		}
	}
	return res, nil
}
