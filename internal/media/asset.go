package media

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEWebP = "image/webp"
	MIMEMP4  = "video/mp4"
)

// ImageAsset is an encoded image payload. Treat it as immutable once built.
type ImageAsset struct {
	Data     []byte
	MIMEType string
}

// Base64 returns the payload in standard base64 for transport.
func (a ImageAsset) Base64() string {
	return base64.StdEncoding.EncodeToString(a.Data)
}

// Empty reports whether the asset carries no bytes.
func (a ImageAsset) Empty() bool {
	return len(a.Data) == 0
}

// DecodeImageAsset builds an ImageAsset from base64 text. A data URI prefix is
// accepted and its MIME type wins over fallbackMIME.
func DecodeImageAsset(payload, fallbackMIME string) (ImageAsset, error) {
	mime := fallbackMIME
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		header, body, ok := strings.Cut(payload, ",")
		if !ok {
			return ImageAsset{}, fmt.Errorf("malformed data uri")
		}
		header = strings.TrimPrefix(header, "data:")
		header = strings.TrimSuffix(header, ";base64")
		if header != "" {
			mime = header
		}
		payload = body
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return ImageAsset{}, fmt.Errorf("decode image payload: %w", err)
	}
	if len(data) == 0 {
		return ImageAsset{}, fmt.Errorf("image payload is empty")
	}
	if mime == "" {
		mime = MIMEPNG
	}
	return ImageAsset{Data: data, MIMEType: mime}, nil
}

// AudioAsset is an encoded audio payload. Silent marks the explicit empty
// sentinel used when ingestion proceeds without an audio track.
type AudioAsset struct {
	Data     []byte
	MIMEType string
	Silent   bool
}

func (a AudioAsset) Base64() string {
	return base64.StdEncoding.EncodeToString(a.Data)
}

// AudioMIMEType is the format tag for mono PCM16 at rate.
func AudioMIMEType(rate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}

// SilentAudio returns the empty-audio sentinel for rate.
func SilentAudio(rate int) AudioAsset {
	return AudioAsset{Data: []byte{}, MIMEType: AudioMIMEType(rate), Silent: true}
}

// Frame is one sampled still with its source timestamp.
type Frame struct {
	Timestamp time.Duration
	Image     ImageAsset
}

// IngestionResult pairs the sampled frames, in temporal order, with the
// single audio asset of one ingestion run.
type IngestionResult struct {
	Frames       []Frame
	Audio        AudioAsset
	Duration     time.Duration
	Interval     time.Duration
	AudioSkipped bool
}

// ProgressFunc receives completion percentage in [0,100] and a status line.
type ProgressFunc func(percent float64, message string)

func (p ProgressFunc) report(percent float64, message string) {
	if p != nil {
		p(percent, message)
	}
}
