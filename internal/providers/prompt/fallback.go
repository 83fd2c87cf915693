package prompt

import (
	"context"
	"errors"

	"studio/internal/media"
)

// FallbackGenerator calls Primary and, when it fails, Fallback.
type FallbackGenerator struct {
	Primary    Generator
	Fallback   Generator
	OnFallback func(err error)
}

func (f *FallbackGenerator) GenerateText(ctx context.Context, instruction string, images ...media.ImageAsset) (string, error) {
	if f.Primary == nil {
		return f.fallback(ctx, instruction, images, errors.New("no primary generator"))
	}
	out, err := f.Primary.GenerateText(ctx, instruction, images...)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	return f.fallback(ctx, instruction, images, err)
}

func (f *FallbackGenerator) fallback(ctx context.Context, instruction string, images []media.ImageAsset, cause error) (string, error) {
	if f.Fallback == nil {
		return "", cause
	}
	if f.OnFallback != nil {
		f.OnFallback(cause)
	}
	out, err := f.Fallback.GenerateText(ctx, instruction, images...)
	if err != nil {
		return "", errors.Join(cause, err)
	}
	return out, nil
}

var _ Generator = (*FallbackGenerator)(nil)
