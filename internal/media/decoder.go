package media

import (
	"context"
	"image"
	"time"
)

// VideoInfo is the probed metadata of a video file.
type VideoInfo struct {
	Duration time.Duration
	Width    int
	Height   int
	HasAudio bool
}

// PCMBuffer is decoded audio as interleaved float samples in [-1,1] at the
// track's native rate and channel count.
type PCMBuffer struct {
	SampleRate int
	Channels   int
	Samples    []float32
}

// Frames returns the number of sample frames (samples per channel).
func (b *PCMBuffer) Frames() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Decoder gives addressable access to a video's frames and audio track.
type Decoder interface {
	Probe(ctx context.Context, path string) (VideoInfo, error)
	FrameAt(ctx context.Context, path string, at time.Duration) (image.Image, error)
	DecodeAudio(ctx context.Context, path string) (*PCMBuffer, error)
}
