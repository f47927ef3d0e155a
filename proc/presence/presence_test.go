package presence

import (
	"context"
	"testing"
	"time"

	"github.com/leeineian/minstrel/proc/guild"
)

type stubHandle struct{ title string }

func (stubHandle) Stop()                   {}
func (stubHandle) Position() time.Duration { return 0 }
func (h stubHandle) Title() string         { return h.title }

func TestGenerators(t *testing.T) {
	reg := guild.NewRegistry(nil)
	if got := guildCount(reg.Snapshots()); got != "" {
		t.Errorf("idle guildCount = %q, want empty", got)
	}

	a := reg.Get(1)
	a.SetChannels(10, 11)
	a.SetNowPlaying(stubHandle{title: "Song"})
	b := reg.Get(2)
	b.SetChannels(20, 21)
	b.Enqueue(guild.Entry{ID: "x"})
	b.Enqueue(guild.Entry{ID: "y"})

	snaps := reg.Snapshots()
	if got, want := nowPlaying(snaps), "Song"; got != want {
		t.Errorf("nowPlaying = %q, want %q", got, want)
	}
	if got, want := guildCount(snaps), "music in 2 servers"; got != want {
		t.Errorf("guildCount = %q, want %q", got, want)
	}
	if got, want := queuedCount(snaps), "2 queued tracks"; got != want {
		t.Errorf("queuedCount = %q, want %q", got, want)
	}
}

func TestNextAvoidsRepeat(t *testing.T) {
	reg := guild.NewRegistry(nil)
	st := reg.Get(1)
	st.SetChannels(10, 11)
	st.SetNowPlaying(stubHandle{title: "Song"})

	r := New(reg, nil, time.Now())
	prev := r.Next()
	for i := 0; i < 20; i++ {
		got := r.Next()
		if got == prev {
			t.Fatalf("round %d: got %q twice in a row", i, got)
		}
		prev = got
	}
}

func TestDaemonPublishes(t *testing.T) {
	reg := guild.NewRegistry(nil)
	got := make(chan string, 1)
	r := New(reg, func(_ context.Context, text string) error {
		select {
		case got <- text:
		default:
		}
		return nil
	}, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	ok, run, _ := r.Daemon()(ctx)
	if !ok {
		t.Fatal("daemon disabled, want enabled")
	}
	done := make(chan struct{})
	go func() {
		run()
		close(done)
	}()

	select {
	case text := <-got:
		if text == "" {
			t.Error("got empty presence text")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no presence published")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop after cancel")
	}
}
