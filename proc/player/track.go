package player

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leeineian/minstrel/proc/pipeline"
)

// OpusSilence is sent for a few ticks after the last frame so the receiving
// decoder does not interpolate past the end of the track.
var OpusSilence = []byte{0xf8, 0xff, 0xfe}

const silenceFrames = 5

// Track serves an acquired Audio to the voice connection one Opus frame per
// tick. It implements voice.OpusFrameProvider and guild.Handle.
type Track struct {
	audio *pipeline.Audio

	mu       sync.Mutex
	reader   *pipeline.FrameReader
	draining int

	served  atomic.Int64
	stopped atomic.Bool
	endOnce sync.Once
	done    chan struct{}
	onEnd   func(*Track)
}

// NewTrack wraps audio. onEnd runs exactly once, on natural end or Stop.
func NewTrack(audio *pipeline.Audio, onEnd func(*Track)) *Track {
	return &Track{
		audio:  audio,
		reader: pipeline.NewFrameReader(audio.Frames),
		done:   make(chan struct{}),
		onEnd:  onEnd,
	}
}

func (t *Track) ProvideOpusFrame() ([]byte, error) {
	if t.stopped.Load() {
		return nil, io.EOF
	}

	t.mu.Lock()
	if t.draining == 0 {
		frame, err := t.reader.Next()
		if err == nil {
			t.mu.Unlock()
			t.served.Add(1)
			return frame, nil
		}
		// Clean end or a cut buffer: nothing more to send either way.
		t.draining = 1
	}
	if t.draining <= silenceFrames {
		t.draining++
		t.mu.Unlock()
		return OpusSilence, nil
	}
	t.mu.Unlock()

	t.finish()
	return nil, io.EOF
}

// Close is called by the voice connection when it drops the provider.
func (t *Track) Close() {
	t.Stop()
}

// Stop ends the track and fires the end callback if it has not fired yet.
func (t *Track) Stop() {
	t.finish()
}

func (t *Track) finish() {
	t.endOnce.Do(func() {
		t.stopped.Store(true)
		close(t.done)
		if t.onEnd != nil {
			t.onEnd(t)
		}
	})
}

// Done is closed once the track has ended.
func (t *Track) Done() <-chan struct{} { return t.done }

// Position is the playback offset within the source, counting the window start.
func (t *Track) Position() time.Duration {
	played := time.Duration(t.served.Load()*pipeline.FrameDurationMs) * time.Millisecond
	return time.Duration(t.audio.Window.Start)*time.Second + played
}

// Elapsed is how much of this track has been sent.
func (t *Track) Elapsed() time.Duration {
	return time.Duration(t.served.Load()*pipeline.FrameDurationMs) * time.Millisecond
}

func (t *Track) Title() string { return t.audio.Meta.Title }

func (t *Track) Audio() *pipeline.Audio { return t.audio }
