package pipeline

import (
	"errors"
	"time"

	"github.com/asticode/go-astiav"
)

// Prober inspects a downloaded asset.
type Prober interface {
	Probe(path string) (time.Duration, error)
}

var ErrNoAudioStream = errors.New("no audio stream")

func init() {
	astiav.SetLogLevel(astiav.LogLevelFatal)
}

// AstiavProber opens the container with libavformat, checks it carries an
// audio stream and reports its duration.
type AstiavProber struct{}

func (AstiavProber) Probe(path string) (time.Duration, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return 0, errors.New("alloc format context")
	}
	defer fc.Free()

	if err := fc.OpenInput(path, nil, nil); err != nil {
		return 0, err
	}
	defer fc.CloseInput()

	if err := fc.FindStreamInfo(nil); err != nil {
		return 0, err
	}

	hasAudio := false
	for _, s := range fc.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeAudio {
			hasAudio = true
			break
		}
	}
	if !hasAudio {
		return 0, ErrNoAudioStream
	}

	// Container duration is in AV_TIME_BASE units (microseconds).
	return time.Duration(fc.Duration()) * time.Microsecond, nil
}
