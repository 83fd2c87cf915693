package media

import (
	"context"
	"errors"
	"fmt"

	"studio/internal/infra"
)

// MissingAudioPolicy decides what ingestion does when the audio track cannot
// be decoded.
type MissingAudioPolicy string

const (
	MissingAudioFail            MissingAudioPolicy = "fail"
	MissingAudioProceedSilently MissingAudioPolicy = "proceedSilently"
)

// ParseMissingAudioPolicy maps a config string onto a policy.
func ParseMissingAudioPolicy(raw string) (MissingAudioPolicy, error) {
	switch MissingAudioPolicy(raw) {
	case MissingAudioFail, "":
		return MissingAudioFail, nil
	case MissingAudioProceedSilently:
		return MissingAudioProceedSilently, nil
	}
	return "", fmt.Errorf("unknown missing audio policy %q", raw)
}

type IngestOptions struct {
	MaxFrames      int
	Quality        int
	SampleRate     int
	OnMissingAudio MissingAudioPolicy
}

// Ingestor turns a video file into frames plus one mono PCM16 audio asset.
type Ingestor struct {
	decoder Decoder
	opts    IngestOptions
	logger  *infra.Logger
}

func NewIngestor(decoder Decoder, opts IngestOptions, logger *infra.Logger) *Ingestor {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.OnMissingAudio == "" {
		opts.OnMissingAudio = MissingAudioFail
	}
	return &Ingestor{decoder: decoder, opts: opts, logger: infra.ComponentLogger(logger, "ingest")}
}

// Ingest samples frames (0-70%) then encodes audio (70-100%). Frame failures
// are always fatal; audio failures follow the configured policy.
func (i *Ingestor) Ingest(ctx context.Context, path string, progress ProgressFunc) (*IngestionResult, error) {
	progress.report(0, "Sampling frames")
	frames, interval, err := SampleFrames(ctx, i.decoder, path, SamplerOptions{
		MaxFrames: i.opts.MaxFrames,
		Quality:   i.opts.Quality,
		Progress: func(p float64, msg string) {
			progress.report(p*0.7, msg)
		},
	})
	if err != nil {
		return nil, err
	}
	last := frames[len(frames)-1].Timestamp
	result := &IngestionResult{Frames: frames, Interval: interval, Duration: last + interval}
	if info, probeErr := i.decoder.Probe(ctx, path); probeErr == nil {
		result.Duration = info.Duration
	}

	progress.report(70, "Extracting audio")
	audio, err := EncodeAudio(ctx, i.decoder, path, i.opts.SampleRate)
	if err != nil {
		var audioErr *AudioDecodeError
		if !errors.As(err, &audioErr) || i.opts.OnMissingAudio != MissingAudioProceedSilently {
			return nil, err
		}
		i.logger.Warn().Err(err).Str("path", path).Msg("audio unavailable; continuing with silent audio")
		audio = SilentAudio(i.opts.SampleRate)
		result.AudioSkipped = true
	}
	result.Audio = audio

	i.logger.Debug().
		Int("frames", len(frames)).
		Dur("interval", interval).
		Bool("audio_skipped", result.AudioSkipped).
		Msg("ingestion complete")
	progress.report(100, "Processing complete")
	return result, nil
}
