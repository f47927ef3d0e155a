package guild

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

type stubHandle struct{ title string }

func (h *stubHandle) Stop()                   {}
func (h *stubHandle) Position() time.Duration { return 3 * time.Second }
func (h *stubHandle) Title() string           { return h.title }

func TestQueueFIFO(t *testing.T) {
	s := newState(1)
	for i, id := range []string{"A", "B", "C"} {
		if pos := s.Enqueue(Entry{ID: id}); pos != i+1 {
			t.Errorf("Enqueue(%s) position = %d, want %d", id, pos, i+1)
		}
	}

	for _, want := range []string{"A", "B", "C"} {
		e, ok := s.PopNext()
		if !ok || e.ID != want {
			t.Fatalf("PopNext() = (%q, %v), want (%q, true)", e.ID, ok, want)
		}
	}
	if e, ok := s.PopNext(); ok {
		t.Errorf("PopNext() on empty queue = (%q, true), want none", e.ID)
	}
}

func TestEnqueueFrontAndDuplicates(t *testing.T) {
	s := newState(1)
	s.Enqueue(Entry{ID: "A"})
	s.Enqueue(Entry{ID: "A"})
	s.EnqueueFront(Entry{ID: "B", Start: 10, Length: 20})

	got := s.Pending()
	want := []string{"B", "A", "A"}
	if len(got) != len(want) {
		t.Fatalf("Pending() = %v, want ids %v", got, want)
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("Pending()[%d] = %q, want %q", i, got[i].ID, want[i])
		}
	}
	if got[0].Start != 10 || got[0].Length != 20 {
		t.Errorf("front entry window = %d+%d, want 10+20", got[0].Start, got[0].Length)
	}

	// Pending returns a copy.
	got[0].ID = "mutated"
	if s.Pending()[0].ID != "B" {
		t.Error("Pending() exposed internal slice")
	}

	if n := s.ClearPending(); n != 3 {
		t.Errorf("ClearPending() = %d, want 3", n)
	}
	if len(s.Pending()) != 0 {
		t.Error("queue not empty after ClearPending")
	}
}

func TestRequestAdvance(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *State)
		want  error
	}{
		{"empty queue", func(s *State) {}, ErrQueueEmpty},
		{"ready", func(s *State) { s.Enqueue(Entry{ID: "A"}) }, nil},
		{"already playing", func(s *State) {
			s.Enqueue(Entry{ID: "A"})
			s.SetNowPlaying(&stubHandle{})
		}, ErrAlreadyPlaying},
		{"loading", func(s *State) {
			s.Enqueue(Entry{ID: "A"})
			s.Enqueue(Entry{ID: "B"})
			s.BeginAdvance()
		}, ErrBusy},
		{"already requested", func(s *State) {
			s.Enqueue(Entry{ID: "A"})
			_ = s.RequestAdvance()
		}, ErrBusy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newState(1)
			tt.setup(s)
			if err := s.RequestAdvance(); !errors.Is(err, tt.want) {
				t.Errorf("RequestAdvance() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAdvanceLifecycle(t *testing.T) {
	s := newState(1)
	s.Enqueue(Entry{ID: "A"})

	if s.Phase() != Idle {
		t.Fatalf("Phase() = %v, want idle", s.Phase())
	}
	if err := s.RequestAdvance(); err != nil {
		t.Fatal(err)
	}

	e, ok := s.BeginAdvance()
	if !ok || e.ID != "A" {
		t.Fatalf("BeginAdvance() = (%v, %v)", e, ok)
	}
	if s.Phase() != Loading {
		t.Errorf("Phase() = %v, want loading", s.Phase())
	}
	if _, ok := s.BeginAdvance(); ok {
		t.Error("second BeginAdvance() while loading succeeded")
	}

	h := &stubHandle{title: "Song"}
	s.FinishAdvance(h)
	if s.Phase() != Playing || s.NowPlaying() != h {
		t.Errorf("after FinishAdvance: phase %v, now playing %v", s.Phase(), s.NowPlaying())
	}

	if s.EndTrack(&stubHandle{}) {
		t.Error("EndTrack(stale handle) = true, want false")
	}
	if !s.EndTrack(h) {
		t.Error("EndTrack(current) = false, want true")
	}
	if s.EndTrack(h) {
		t.Error("second EndTrack(current) = true, want false")
	}
	if s.Phase() != Idle {
		t.Errorf("Phase() = %v, want idle", s.Phase())
	}
}

func TestAbortAdvance(t *testing.T) {
	s := newState(1)
	s.Enqueue(Entry{ID: "A"})
	s.BeginAdvance()
	s.AbortAdvance()
	if s.Phase() != Idle {
		t.Errorf("Phase() after abort = %v, want idle", s.Phase())
	}
	if err := s.RequestAdvance(); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("RequestAdvance() = %v, want ErrQueueEmpty", err)
	}
}

func TestConcurrentRequestAdvanceSingleWinner(t *testing.T) {
	s := newState(1)
	s.Enqueue(Entry{ID: "A"})

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.RequestAdvance() == nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	if winners.Load() != 1 {
		t.Errorf("%d concurrent requests succeeded, want 1", winners.Load())
	}
}

func TestTryPendingWhileLocked(t *testing.T) {
	s := newState(1)
	s.Enqueue(Entry{ID: "A"})

	s.mu.Lock()
	if _, _, ok := s.TryPending(); ok {
		t.Error("TryPending() succeeded while write-locked")
	}
	s.mu.Unlock()

	entries, _, ok := s.TryPending()
	if !ok || len(entries) != 1 {
		t.Errorf("TryPending() = (%v, %v), want one entry", entries, ok)
	}
}

func TestSkipKeywords(t *testing.T) {
	s := newState(1)
	text := snowflake.ID(42)

	s.SetSkipKeywords([]string{" Skip ", "NEXT", "", "skip"})
	if got := s.SkipKeywords(); len(got) != 2 || got[0] != "skip" || got[1] != "next" {
		t.Fatalf("SkipKeywords() = %v, want [skip next]", got)
	}

	if _, ok := s.MatchesSkipKeyword(text, "skip"); ok {
		t.Error("matched without a bound text channel")
	}

	s.SetChannels(7, text)
	tests := []struct {
		channel snowflake.ID
		content string
		want    string
		ok      bool
	}{
		{text, "skip", "skip", true},
		{text, "please SKIP this", "skip", true},
		{text, "Next!", "next", true},
		{text, "great song", "", false},
		{99, "skip", "", false},
	}
	for _, tt := range tests {
		got, ok := s.MatchesSkipKeyword(tt.channel, tt.content)
		if ok != tt.ok || got != tt.want {
			t.Errorf("MatchesSkipKeyword(%v, %q) = (%q, %v), want (%q, %v)", tt.channel, tt.content, got, ok, tt.want, tt.ok)
		}
	}

	s.SetSkipKeywords(nil)
	if _, ok := s.MatchesSkipKeyword(text, "skip"); ok {
		t.Error("matched after keywords cleared")
	}
}

func TestChannelsAndSnapshot(t *testing.T) {
	s := newState(5)
	s.SetChannels(10, 20)
	s.Enqueue(Entry{ID: "A"})
	s.SetNowPlaying(&stubHandle{title: "Song"})

	snap := s.Snapshot()
	if snap.GuildID != 5 || snap.VoiceChannel != 10 || snap.TextChannel != 20 {
		t.Errorf("Snapshot() ids = %+v", snap)
	}
	if snap.Phase != Playing || snap.NowPlaying != "Song" || snap.Position != 3*time.Second {
		t.Errorf("Snapshot() playback = %+v", snap)
	}
	if len(snap.Pending) != 1 {
		t.Errorf("Snapshot().Pending = %v", snap.Pending)
	}

	s.ClearChannels()
	if v, tx := s.Channels(); v != 0 || tx != 0 {
		t.Errorf("Channels() after clear = (%v, %v)", v, tx)
	}

	if h := s.Reset(); h == nil {
		t.Error("Reset() did not return the playing handle")
	}
	if s.Phase() != Idle {
		t.Errorf("Phase() after Reset = %v", s.Phase())
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry([]string{"skip"})

	if _, ok := r.Lookup(1); ok {
		t.Fatal("Lookup() found a guild that was never created")
	}
	a := r.Get(1)
	if r.Get(1) != a {
		t.Error("Get() returned a different state for the same guild")
	}
	if got := a.SkipKeywords(); len(got) != 1 || got[0] != "skip" {
		t.Errorf("default keywords = %v", got)
	}
	r.Get(3)
	r.Get(2)

	snaps := r.Snapshots()
	if len(snaps) != 3 || r.Len() != 3 {
		t.Fatalf("Snapshots() len = %d, Len() = %d, want 3", len(snaps), r.Len())
	}
	for i, want := range []snowflake.ID{1, 2, 3} {
		if snaps[i].GuildID != want {
			t.Errorf("Snapshots()[%d].GuildID = %v, want %v", i, snaps[i].GuildID, want)
		}
	}
}
