// Package guild holds the per-guild playback state and the registry that
// owns one record per guild.
package guild

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

var (
	// ErrBusy means an advance is already loading or queued for the worker.
	ErrBusy           = errors.New("guild queue is busy")
	ErrAlreadyPlaying = errors.New("a track is already playing")
	ErrQueueEmpty     = errors.New("queue is empty")
)

// Entry is one pending track with its requested window in seconds.
type Entry struct {
	ID     string
	Start  int
	Length int
}

// Handle is a track being streamed.
type Handle interface {
	// Stop ends the track. It is safe to call more than once and after a
	// natural end; the end notification still fires exactly once.
	Stop()
	Position() time.Duration
	Title() string
}

type Phase int

const (
	Idle Phase = iota
	Loading
	Playing
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	default:
		return "idle"
	}
}

// State is the mutable record of one guild. Every method takes the lock for
// its own duration only; nothing here blocks on I/O.
type State struct {
	GuildID snowflake.ID

	mu           sync.RWMutex
	voiceChannel snowflake.ID
	textChannel  snowflake.ID
	pending      []Entry
	nowPlaying   Handle
	skipKeywords []string

	// loading is set while the worker acquires a track, requested while a
	// user advance waits in the worker's channel.
	loading   bool
	requested bool
}

func newState(id snowflake.ID) *State {
	return &State{GuildID: id}
}

// --- Queue ---

// Enqueue appends e and returns its 1-based position in the pending queue.
func (s *State) Enqueue(e Entry) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, e)
	return len(s.pending)
}

// EnqueueFront puts e at the head of the pending queue.
func (s *State) EnqueueFront(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = slices.Insert(s.pending, 0, e)
}

func (s *State) PopNext() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.popLocked()
}

func (s *State) popLocked() (Entry, bool) {
	if len(s.pending) == 0 {
		return Entry{}, false
	}
	e := s.pending[0]
	s.pending[0] = Entry{}
	s.pending = s.pending[1:]
	if len(s.pending) == 0 {
		s.pending = nil
	}
	return e, true
}

// Pending returns a copy of the queue.
func (s *State) Pending() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.pending)
}

// TryPending is Pending without waiting; ok is false when a writer holds the lock.
func (s *State) TryPending() (entries []Entry, nowPlaying Handle, ok bool) {
	if !s.mu.TryRLock() {
		return nil, nil, false
	}
	defer s.mu.RUnlock()
	return slices.Clone(s.pending), s.nowPlaying, true
}

func (s *State) ClearPending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.pending)
	s.pending = nil
	return n
}

// --- Now playing ---

func (s *State) NowPlaying() Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowPlaying
}

func (s *State) SetNowPlaying(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowPlaying = h
}

func (s *State) ClearNowPlaying() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.nowPlaying
	s.nowPlaying = nil
	return h
}

func (s *State) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phaseLocked()
}

func (s *State) phaseLocked() Phase {
	switch {
	case s.nowPlaying != nil:
		return Playing
	case s.loading:
		return Loading
	default:
		return Idle
	}
}

// --- Advance protocol ---

// RequestAdvance claims the right to start the queue. It fails with ErrBusy
// while a load or another request is outstanding, ErrAlreadyPlaying while a
// track plays and ErrQueueEmpty when there is nothing to start.
func (s *State) RequestAdvance() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.loading || s.requested:
		return ErrBusy
	case s.nowPlaying != nil:
		return ErrAlreadyPlaying
	case len(s.pending) == 0:
		return ErrQueueEmpty
	}
	s.requested = true
	return nil
}

// CancelRequest drops a claim made by RequestAdvance that will not be delivered.
func (s *State) CancelRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requested = false
}

// BeginAdvance pops the next entry and enters Loading. It reports false when
// something is already playing or loading, or the queue is empty.
func (s *State) BeginAdvance() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requested = false
	if s.loading || s.nowPlaying != nil {
		return Entry{}, false
	}
	e, ok := s.popLocked()
	if !ok {
		return Entry{}, false
	}
	s.loading = true
	return e, true
}

// FinishAdvance commits a started track and leaves Loading.
func (s *State) FinishAdvance(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	s.nowPlaying = h
}

// AbortAdvance leaves Loading without a track.
func (s *State) AbortAdvance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
}

// EndTrack clears now playing if it is still h. A stale handle from an
// earlier track returns false and changes nothing.
func (s *State) EndTrack(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nowPlaying == nil || s.nowPlaying != h {
		return false
	}
	s.nowPlaying = nil
	return true
}

// Reset clears the transient playback flags after a worker is torn down.
func (s *State) Reset() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.nowPlaying
	s.nowPlaying = nil
	s.loading = false
	s.requested = false
	return h
}

// --- Channels ---

func (s *State) SetChannels(voice, text snowflake.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voiceChannel = voice
	s.textChannel = text
}

func (s *State) SetTextChannel(text snowflake.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.textChannel = text
}

func (s *State) ClearChannels() {
	s.SetChannels(0, 0)
}

// Channels returns the bound channels; zero means unbound.
func (s *State) Channels() (voice, text snowflake.ID) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voiceChannel, s.textChannel
}

// --- Skip keywords ---

// SetSkipKeywords stores the lower-cased, trimmed, non-empty words.
func (s *State) SetSkipKeywords(words []string) {
	var cleaned []string
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" && !slices.Contains(cleaned, w) {
			cleaned = append(cleaned, w)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipKeywords = cleaned
}

func (s *State) SkipKeywords() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.skipKeywords)
}

// MatchesSkipKeyword reports whether a message in channelID should skip the
// current track, and which keyword matched.
func (s *State) MatchesSkipKeyword(channelID snowflake.ID, content string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.textChannel == 0 || channelID != s.textChannel || len(s.skipKeywords) == 0 {
		return "", false
	}
	content = strings.ToLower(strings.TrimSpace(content))
	for _, k := range s.skipKeywords {
		if strings.Contains(content, k) {
			return k, true
		}
	}
	return "", false
}

// --- Snapshot ---

type Snapshot struct {
	GuildID      snowflake.ID
	VoiceChannel snowflake.ID
	TextChannel  snowflake.ID
	Phase        Phase
	NowPlaying   string
	Position     time.Duration
	Pending      []Entry
	SkipKeywords []string
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		GuildID:      s.GuildID,
		VoiceChannel: s.voiceChannel,
		TextChannel:  s.textChannel,
		Phase:        s.phaseLocked(),
		Pending:      slices.Clone(s.pending),
		SkipKeywords: slices.Clone(s.skipKeywords),
	}
	if s.nowPlaying != nil {
		snap.NowPlaying = s.nowPlaying.Title()
		snap.Position = s.nowPlaying.Position()
	}
	return snap
}
