package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies why an acquisition failed.
type Kind int

const (
	MetadataFailure Kind = iota + 1
	TranscodeFailure
	Timeout
)

func (k Kind) String() string {
	switch k {
	case MetadataFailure:
		return "metadata failure"
	case TranscodeFailure:
		return "transcode failure"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is returned by Acquire for every failure after input validation.
type Error struct {
	Kind Kind
	ID   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("acquire %s: %s", e.ID, e.Kind)
	}
	return fmt.Sprintf("acquire %s: %s: %v", e.ID, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrEmptyOutput   = errors.New("transcoder produced no audio")
	ErrNoAudio       = errors.New("no audio frames after demux")
	ErrEmptyAsset    = errors.New("downloader produced no file")
	ErrNoDuration    = errors.New("duration unknown")
	ErrNoMetadata    = errors.New("downloader printed no metadata")
	ErrTruncatedPage = errors.New("truncated ogg page")
	ErrFrameTooLarge = errors.New("frame exceeds int16 length prefix")
)

// KindOf returns the failure kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}
