package media

import (
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"
)

type stubDecoder struct {
	info      VideoInfo
	probeErr  error
	frameErr  error
	failAt    time.Duration
	audio     *PCMBuffer
	audioErr  error
	requested []time.Duration
}

func (s *stubDecoder) Probe(ctx context.Context, path string) (VideoInfo, error) {
	return s.info, s.probeErr
}

func (s *stubDecoder) FrameAt(ctx context.Context, path string, at time.Duration) (image.Image, error) {
	s.requested = append(s.requested, at)
	if s.frameErr != nil && at >= s.failAt {
		return nil, s.frameErr
	}
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{R: uint8(at / time.Second), A: 255})
	return img, nil
}

func (s *stubDecoder) DecodeAudio(ctx context.Context, path string) (*PCMBuffer, error) {
	return s.audio, s.audioErr
}

func TestSamplingInterval(t *testing.T) {
	tests := []struct {
		duration time.Duration
		max      int
		want     time.Duration
	}{
		{10 * time.Second, 5, 2 * time.Second},
		{10 * time.Second, 60, time.Second},
		{120 * time.Second, 60, 2 * time.Second},
		{500 * time.Millisecond, 60, time.Second},
	}
	for _, tc := range tests {
		if got := SamplingInterval(tc.duration, tc.max); got != tc.want {
			t.Fatalf("SamplingInterval(%s, %d) = %s, want %s", tc.duration, tc.max, got, tc.want)
		}
	}
}

func TestSampleFramesTenSecondsFiveFrames(t *testing.T) {
	dec := &stubDecoder{info: VideoInfo{Duration: 10 * time.Second}}
	var reports []float64
	frames, interval, err := SampleFrames(context.Background(), dec, "clip.mp4", SamplerOptions{
		MaxFrames: 5,
		Progress:  func(p float64, _ string) { reports = append(reports, p) },
	})
	if err != nil {
		t.Fatalf("SampleFrames returned error: %v", err)
	}
	if interval != 2*time.Second {
		t.Fatalf("interval = %s, want 2s", interval)
	}
	want := []time.Duration{0, 2 * time.Second, 4 * time.Second, 6 * time.Second, 8 * time.Second}
	if len(frames) != len(want) {
		t.Fatalf("frames = %d, want %d", len(frames), len(want))
	}
	for i, f := range frames {
		if f.Timestamp != want[i] {
			t.Fatalf("frame[%d] at %s, want %s", i, f.Timestamp, want[i])
		}
		if f.Image.MIMEType != MIMEJPEG || f.Image.Empty() {
			t.Fatalf("frame[%d] not a jpeg payload: %q", i, f.Image.MIMEType)
		}
	}
	if len(reports) != 5 || reports[4] != 100 {
		t.Fatalf("unexpected progress reports: %v", reports)
	}
}

func TestSampleFramesBoundAndOrder(t *testing.T) {
	durations := []time.Duration{
		1500 * time.Millisecond,
		10 * time.Second,
		10*time.Second + 1,
		59 * time.Second,
		61 * time.Second,
		3*time.Minute + 7*time.Second,
	}
	for _, max := range []int{1, 3, 7, 60} {
		for _, d := range durations {
			dec := &stubDecoder{info: VideoInfo{Duration: d}}
			frames, interval, err := SampleFrames(context.Background(), dec, "v", SamplerOptions{MaxFrames: max})
			if err != nil {
				t.Fatalf("SampleFrames(%s, %d) error: %v", d, max, err)
			}
			ceil := int(d / interval)
			if d%interval != 0 {
				ceil++
			}
			want := min(max, ceil)
			if len(frames) != want {
				t.Fatalf("SampleFrames(%s, %d) = %d frames, want %d", d, max, len(frames), want)
			}
			for i := 1; i < len(frames); i++ {
				if frames[i].Timestamp <= frames[i-1].Timestamp {
					t.Fatalf("timestamps not increasing at %d", i)
				}
			}
		}
	}
}

func TestSampleFramesDeterministicTimestamps(t *testing.T) {
	first := &stubDecoder{info: VideoInfo{Duration: 37 * time.Second}}
	second := &stubDecoder{info: VideoInfo{Duration: 37 * time.Second}}
	if _, _, err := SampleFrames(context.Background(), first, "v", SamplerOptions{MaxFrames: 9}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, _, err := SampleFrames(context.Background(), second, "v", SamplerOptions{MaxFrames: 9}); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(first.requested) != len(second.requested) {
		t.Fatalf("runs differ in length: %d vs %d", len(first.requested), len(second.requested))
	}
	for i := range first.requested {
		if first.requested[i] != second.requested[i] {
			t.Fatalf("seek %d differs: %s vs %s", i, first.requested[i], second.requested[i])
		}
	}
}

func TestSampleFramesZeroDuration(t *testing.T) {
	dec := &stubDecoder{info: VideoInfo{Duration: 0}}
	frames, _, err := SampleFrames(context.Background(), dec, "v", SamplerOptions{})
	if !errors.Is(err, ErrMediaDecode) {
		t.Fatalf("expected ErrMediaDecode, got %v", err)
	}
	if frames != nil {
		t.Fatalf("expected no frames, got %d", len(frames))
	}
}

func TestSampleFramesFrameFailureDropsPartialResult(t *testing.T) {
	dec := &stubDecoder{info: VideoInfo{Duration: 10 * time.Second}, frameErr: errors.New("corrupt packet"), failAt: 4 * time.Second}
	frames, _, err := SampleFrames(context.Background(), dec, "v", SamplerOptions{MaxFrames: 5})
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	if frames != nil {
		t.Fatalf("expected no partial frames, got %d", len(frames))
	}
}

func TestEncodePCM16Clamps(t *testing.T) {
	out := EncodePCM16([]float32{0, 1, -1, 1.5, -1.5, 0.5})
	want := []int16{0, 32767, -32767, 32767, -32768, 16383}
	for i, w := range want {
		got := int16(binary.LittleEndian.Uint16(out[2*i:]))
		if got != w {
			t.Fatalf("sample %d = %d, want %d", i, got, w)
		}
	}
}

func TestDownmixAverages(t *testing.T) {
	buf := &PCMBuffer{SampleRate: 8000, Channels: 2, Samples: []float32{1, 0, 0.5, 0.5, -1, 1}}
	got := Downmix(buf)
	want := []float32{0.5, 0.5, 0}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestResampleLinear(t *testing.T) {
	src := []float32{0, 1, 0, -1}
	up := Resample(src, 2, 4)
	if len(up) != 8 {
		t.Fatalf("len = %d, want 8", len(up))
	}
	if up[1] != 0.5 || up[2] != 1 || up[7] != -1 {
		t.Fatalf("unexpected interpolation: %v", up)
	}
	down := Resample(make([]float32, 44100), 44100, 16000)
	if len(down) != 16000 {
		t.Fatalf("downsampled len = %d, want 16000", len(down))
	}
}

func TestEncodeAudioSilentTenSeconds(t *testing.T) {
	const srcRate = 48000
	dec := &stubDecoder{audio: &PCMBuffer{SampleRate: srcRate, Channels: 2, Samples: make([]float32, 10*srcRate*2)}}
	asset, err := EncodeAudio(context.Background(), dec, "v", 16000)
	if err != nil {
		t.Fatalf("EncodeAudio error: %v", err)
	}
	if asset.MIMEType != "audio/pcm;rate=16000" {
		t.Fatalf("MIMEType = %q", asset.MIMEType)
	}
	if len(asset.Data) != 2*10*16000 {
		t.Fatalf("bytes = %d, want %d", len(asset.Data), 2*10*16000)
	}
	for i, b := range asset.Data {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0", i, b)
		}
	}
}

func TestEncodeAudioMissingTrack(t *testing.T) {
	dec := &stubDecoder{audioErr: ErrNoAudioTrack}
	_, err := EncodeAudio(context.Background(), dec, "v", 16000)
	if !errors.Is(err, ErrAudioDecode) || !errors.Is(err, ErrNoAudioTrack) {
		t.Fatalf("expected audio decode error wrapping ErrNoAudioTrack, got %v", err)
	}
}

func TestIngestMissingAudioFails(t *testing.T) {
	dec := &stubDecoder{info: VideoInfo{Duration: 4 * time.Second}, audioErr: ErrNoAudioTrack}
	ing := NewIngestor(dec, IngestOptions{MaxFrames: 4, OnMissingAudio: MissingAudioFail}, nil)
	res, err := ing.Ingest(context.Background(), "v", nil)
	if !errors.Is(err, ErrAudioDecode) {
		t.Fatalf("expected ErrAudioDecode, got %v", err)
	}
	if res != nil {
		t.Fatal("expected no result on failure")
	}
}

func TestIngestMissingAudioProceedsSilently(t *testing.T) {
	dec := &stubDecoder{info: VideoInfo{Duration: 4 * time.Second}, audioErr: ErrNoAudioTrack}
	ing := NewIngestor(dec, IngestOptions{MaxFrames: 4, OnMissingAudio: MissingAudioProceedSilently}, nil)
	var last float64
	res, err := ing.Ingest(context.Background(), "v", func(p float64, _ string) { last = p })
	if err != nil {
		t.Fatalf("Ingest error: %v", err)
	}
	if !res.AudioSkipped || !res.Audio.Silent || len(res.Audio.Data) != 0 {
		t.Fatalf("expected silent sentinel, got %#v", res.Audio)
	}
	if res.Audio.MIMEType != "audio/pcm;rate=16000" {
		t.Fatalf("MIMEType = %q", res.Audio.MIMEType)
	}
	if len(res.Frames) != 4 {
		t.Fatalf("frames = %d, want 4", len(res.Frames))
	}
	if last != 100 {
		t.Fatalf("final progress = %v, want 100", last)
	}
}

func TestIngestDecodeErrorIsNeverSilenced(t *testing.T) {
	dec := &stubDecoder{probeErr: errors.New("moov atom not found")}
	ing := NewIngestor(dec, IngestOptions{OnMissingAudio: MissingAudioProceedSilently}, nil)
	if _, err := ing.Ingest(context.Background(), "v", nil); !errors.Is(err, ErrMediaDecode) {
		t.Fatalf("expected ErrMediaDecode, got %v", err)
	}
}

func TestDecodeImageAssetDataURI(t *testing.T) {
	asset, err := DecodeImageAsset("data:image/jpeg;base64,AQID", MIMEPNG)
	if err != nil {
		t.Fatalf("DecodeImageAsset error: %v", err)
	}
	if asset.MIMEType != MIMEJPEG || len(asset.Data) != 3 {
		t.Fatalf("unexpected asset: %#v", asset)
	}
	if _, err := DecodeImageAsset("", MIMEPNG); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestSampleFramesStopsAtEndOfStream(t *testing.T) {
	dec := &stubDecoder{info: VideoInfo{Duration: 10050 * time.Millisecond}, frameErr: ErrEndOfStream, failAt: 10 * time.Second}
	frames, _, err := SampleFrames(context.Background(), dec, "v", SamplerOptions{MaxFrames: 60})
	if err != nil {
		t.Fatalf("SampleFrames returned error: %v", err)
	}
	if len(frames) != 10 || frames[9].Timestamp != 9*time.Second {
		t.Fatalf("got %d frames, want 10 ending at 9s", len(frames))
	}
}

func TestSampleFramesEndOfStreamAtStartIsDecodeError(t *testing.T) {
	dec := &stubDecoder{info: VideoInfo{Duration: 3 * time.Second}, frameErr: ErrEndOfStream}
	_, _, err := SampleFrames(context.Background(), dec, "v", SamplerOptions{})
	if !errors.Is(err, ErrMediaDecode) {
		t.Fatalf("expected ErrMediaDecode, got %v", err)
	}
}
