package media

import (
	"errors"
	"fmt"
)

var (
	ErrMediaDecode  = errors.New("media decode failed")
	ErrAudioDecode  = errors.New("audio decode failed")
	ErrNoAudioTrack = errors.New("no audio track")
	// ErrEndOfStream is returned by Decoder.FrameAt when at lies past the
	// last decodable video frame.
	ErrEndOfStream = errors.New("end of video stream")
)

// DecodeError reports a failed probe or frame rasterization. It is fatal to
// an ingestion run.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("media decode: %s", e.Op)
	}
	return fmt.Sprintf("media decode: %s: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrMediaDecode }

// AudioDecodeError reports an absent or undecodable audio track.
type AudioDecodeError struct {
	Err error
}

func (e *AudioDecodeError) Error() string {
	return fmt.Sprintf("audio decode: %v", e.Err)
}

func (e *AudioDecodeError) Unwrap() error { return e.Err }

func (e *AudioDecodeError) Is(target error) bool { return target == ErrAudioDecode }
