package ffmpeg

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"studio/internal/media"
)

// Adapter implements media.Decoder by shelling out to ffprobe and ffmpeg.
type Adapter struct {
	ffmpeg  string
	ffprobe string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeStream struct {
	CodecType  string `json:"codec_type"`
	Duration   string `json:"duration"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

func (a *Adapter) probe(ctx context.Context, path string) (*probeOutput, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration:stream=codec_type,duration,width,height,sample_rate,channels",
		"-of", "json",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	b, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w\n%s", err, stderr.String())
	}
	var out probeOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &out, nil
}

func (a *Adapter) Probe(ctx context.Context, path string) (media.VideoInfo, error) {
	out, err := a.probe(ctx, path)
	if err != nil {
		return media.VideoInfo{}, err
	}
	var (
		info          media.VideoInfo
		videoDuration time.Duration
	)
	for _, st := range out.Streams {
		switch st.CodecType {
		case "video":
			if info.Width == 0 {
				info.Width, info.Height = st.Width, st.Height
				if videoDuration, err = parseSeconds(st.Duration); err != nil {
					return media.VideoInfo{}, err
				}
			}
		case "audio":
			info.HasAudio = true
		}
	}
	// The container duration spans the longest stream, which is often audio
	// running past the last video frame.
	info.Duration = videoDuration
	if info.Duration <= 0 {
		if info.Duration, err = parseSeconds(out.Format.Duration); err != nil {
			return media.VideoInfo{}, err
		}
	}
	if info.Width == 0 {
		return media.VideoInfo{}, fmt.Errorf("no video stream in %s", path)
	}
	return info, nil
}

// FrameAt seeks to at and decodes one frame at native resolution as PNG
// through a pipe.
func (a *Adapter) FrameAt(ctx context.Context, path string, at time.Duration) (image.Image, error) {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-v", "error",
		"-ss", fmtSeconds(at),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	b, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frame: %w\n%s", err, stderr.String())
	}
	if len(b) == 0 {
		if at > 0 {
			return nil, fmt.Errorf("ffmpeg frame at %s: %w", fmtSeconds(at), media.ErrEndOfStream)
		}
		return nil, fmt.Errorf("ffmpeg frame: no data at %s", fmtSeconds(at))
	}
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode frame png: %w", err)
	}
	return img, nil
}

// DecodeAudio reads the first audio track as interleaved float32 PCM at its
// native sample rate and channel count.
func (a *Adapter) DecodeAudio(ctx context.Context, path string) (*media.PCMBuffer, error) {
	out, err := a.probe(ctx, path)
	if err != nil {
		return nil, err
	}
	var stream *probeStream
	for i := range out.Streams {
		if out.Streams[i].CodecType == "audio" {
			stream = &out.Streams[i]
			break
		}
	}
	if stream == nil {
		return nil, media.ErrNoAudioTrack
	}
	rate, err := strconv.Atoi(stream.SampleRate)
	if err != nil || rate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %q", stream.SampleRate)
	}
	channels := stream.Channels
	if channels <= 0 {
		channels = 1
	}

	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-v", "error",
		"-i", path,
		"-map", "0:a:0",
		"-vn",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	raw, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg audio: %w\n%s", err, stderr.String())
	}
	return &media.PCMBuffer{SampleRate: rate, Channels: channels, Samples: parseF32LE(raw)}, nil
}

func parseF32LE(raw []byte) []float32 {
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return samples
}

// parseSeconds reads an ffprobe duration. Empty and "N/A" mean unknown.
func parseSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0, nil
	}
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

func fmtSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

var _ media.Decoder = (*Adapter)(nil)
