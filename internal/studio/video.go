package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/media"
	"studio/internal/providers/gemini"
)

// VideoModel starts, polls and downloads long-running video jobs.
type VideoModel interface {
	GenerateVideo(ctx context.Context, prompt string, image *media.ImageAsset) (*gemini.VideoOperation, error)
	PollVideoOperation(ctx context.Context, op *gemini.VideoOperation) (*gemini.VideoOperation, error)
	DownloadVideo(ctx context.Context, op *gemini.VideoOperation) ([]byte, error)
}

type VideoGeneratorOptions struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
	Sleep        SleepFunc
	Logger       *infra.Logger
}

// VideoGenerator turns a prompt, and optionally a first frame, into video
// bytes.
type VideoGenerator struct {
	model      VideoModel
	translator Translator
	interval   time.Duration
	timeout    time.Duration
	sleep      SleepFunc
	logger     *infra.Logger
}

func NewVideoGenerator(model VideoModel, translator Translator, opts VideoGeneratorOptions) *VideoGenerator {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	timeout := opts.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &VideoGenerator{
		model:      model,
		translator: translator,
		interval:   interval,
		timeout:    timeout,
		sleep:      sleep,
		logger:     infra.ComponentLogger(opts.Logger, "video"),
	}
}

// Generate starts a job, polls it every interval until done and downloads
// the result. Polling stops with ErrVideoPollTimeout once the timeout passes
// and with ctx's error when ctx is cancelled.
func (v *VideoGenerator) Generate(ctx context.Context, prompt string, image *media.ImageAsset) ([]byte, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", domain.ErrInvalidInput)
	}
	if v.translator != nil {
		prompt = v.translator.Translate(ctx, prompt)
	}
	op, err := v.model.GenerateVideo(ctx, prompt, image)
	if err != nil {
		return nil, err
	}

	pollCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	start := time.Now()
	for polls := 0; !op.Done; polls++ {
		if err := v.sleep(pollCtx, v.interval); err != nil {
			return nil, v.pollError(ctx, err)
		}
		next, err := v.model.PollVideoOperation(pollCtx, op)
		if err != nil {
			if pollCtx.Err() != nil {
				return nil, v.pollError(ctx, pollCtx.Err())
			}
			return nil, err
		}
		op = next
		v.logger.Debug().Str("operation", op.Name).Int("polls", polls+1).Bool("done", op.Done).Msg("video operation polled")
	}
	if op.Error != "" {
		return nil, fmt.Errorf("%w: video generation failed: %s", domain.ErrProviderFailure, op.Error)
	}
	data, err := v.model.DownloadVideo(ctx, op)
	if err != nil {
		return nil, err
	}
	v.logger.Info().Str("operation", op.Name).Dur("took", time.Since(start)).Int("bytes", len(data)).Msg("video generated")
	return data, nil
}

func (v *VideoGenerator) pollError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrVideoPollTimeout
	}
	return err
}
