package media

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const DefaultSampleRate = 16000

// Downmix averages interleaved channels into a single channel.
func Downmix(buf *PCMBuffer) []float32 {
	frames := buf.Frames()
	if frames == 0 {
		return nil
	}
	if buf.Channels == 1 {
		out := make([]float32, frames)
		copy(out, buf.Samples[:frames])
		return out
	}
	out := make([]float32, frames)
	scale := 1 / float32(buf.Channels)
	for i := 0; i < frames; i++ {
		var sum float32
		base := i * buf.Channels
		for c := 0; c < buf.Channels; c++ {
			sum += buf.Samples[base+c]
		}
		out[i] = sum * scale
	}
	return out
}

// Resample renders mono samples at dstRate using linear interpolation. The
// output holds floor(len(mono)*dstRate/srcRate) samples so the rendered
// duration matches the source.
func Resample(mono []float32, srcRate, dstRate int) []float32 {
	if len(mono) == 0 || srcRate <= 0 || dstRate <= 0 {
		return nil
	}
	if srcRate == dstRate {
		out := make([]float32, len(mono))
		copy(out, mono)
		return out
	}
	n := int(int64(len(mono)) * int64(dstRate) / int64(srcRate))
	out := make([]float32, n)
	step := float64(srcRate) / float64(dstRate)
	last := len(mono) - 1
	for i := range out {
		pos := float64(i) * step
		i0 := int(pos)
		if i0 >= last {
			out[i] = mono[last]
			continue
		}
		frac := float32(pos - float64(i0))
		out[i] = mono[i0]*(1-frac) + mono[i0+1]*frac
	}
	return out
}

// EncodePCM16 converts float samples to little-endian signed 16-bit PCM,
// clamping at the int16 bounds instead of wrapping.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		v := float64(s) * 32767
		switch {
		case math.IsNaN(v):
			v = 0
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(v)))
	}
	return out
}

// EncodeAudio decodes the video's audio track and produces a mono PCM16
// asset at rate. A missing or undecodable track yields *AudioDecodeError.
func EncodeAudio(ctx context.Context, dec Decoder, path string, rate int) (AudioAsset, error) {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	buf, err := dec.DecodeAudio(ctx, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return AudioAsset{}, ctxErr
		}
		return AudioAsset{}, &AudioDecodeError{Err: err}
	}
	if buf == nil || buf.Frames() == 0 {
		return AudioAsset{}, &AudioDecodeError{Err: ErrNoAudioTrack}
	}
	if buf.SampleRate <= 0 {
		return AudioAsset{}, &AudioDecodeError{Err: errors.New("unknown sample rate")}
	}
	mono := Resample(Downmix(buf), buf.SampleRate, rate)
	if len(mono) == 0 {
		return AudioAsset{}, &AudioDecodeError{Err: fmt.Errorf("audio shorter than one sample at %d Hz", rate)}
	}
	return AudioAsset{Data: EncodePCM16(mono), MIMEType: AudioMIMEType(rate)}, nil
}
