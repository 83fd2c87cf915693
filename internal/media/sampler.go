package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"time"
)

const (
	DefaultMaxFrames   = 60
	DefaultJPEGQuality = 80
)

// SamplerOptions tunes SampleFrames. Zero values take the defaults.
type SamplerOptions struct {
	MaxFrames int
	Quality   int
	Progress  ProgressFunc
}

// SamplingInterval returns max(1s, duration/maxFrames).
func SamplingInterval(duration time.Duration, maxFrames int) time.Duration {
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	interval := duration / time.Duration(maxFrames)
	if interval < time.Second {
		return time.Second
	}
	return interval
}

// SampleFrames seeks through the video at a fixed interval and encodes each
// sampled instant as JPEG. Capture is sequential so output order is temporal
// order. Any probe or frame failure aborts with a *DecodeError and no frames,
// except ErrEndOfStream after at least one frame, which ends sampling early.
func SampleFrames(ctx context.Context, dec Decoder, path string, opts SamplerOptions) ([]Frame, time.Duration, error) {
	if dec == nil {
		return nil, 0, errors.New("media: decoder is required")
	}
	maxFrames := opts.MaxFrames
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	info, err := dec.Probe(ctx, path)
	if err != nil {
		return nil, 0, &DecodeError{Op: "probe", Err: err}
	}
	if info.Duration <= 0 {
		return nil, 0, &DecodeError{Op: "probe", Err: fmt.Errorf("video has no duration")}
	}

	interval := SamplingInterval(info.Duration, maxFrames)
	expected := expectedFrames(info.Duration, interval, maxFrames)
	frames := make([]Frame, 0, expected)
	for t := time.Duration(0); t < info.Duration && len(frames) < maxFrames; t += interval {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		img, err := dec.FrameAt(ctx, path, t)
		if errors.Is(err, ErrEndOfStream) && len(frames) > 0 {
			// Containers often report a duration a little past the last
			// video frame; the tail holds nothing to sample.
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, 0, ctxErr
			}
			return nil, 0, &DecodeError{Op: fmt.Sprintf("frame at %s", t), Err: err}
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, 0, &DecodeError{Op: fmt.Sprintf("encode frame at %s", t), Err: err}
		}
		frames = append(frames, Frame{Timestamp: t, Image: ImageAsset{Data: buf.Bytes(), MIMEType: MIMEJPEG}})
		opts.Progress.report(100*float64(len(frames))/float64(expected), fmt.Sprintf("Extracted frame at %.1fs", t.Seconds()))
	}
	return frames, interval, nil
}

func expectedFrames(duration, interval time.Duration, maxFrames int) int {
	n := int(duration / interval)
	if duration%interval != 0 {
		n++
	}
	if n > maxFrames {
		n = maxFrames
	}
	if n < 1 {
		n = 1
	}
	return n
}
