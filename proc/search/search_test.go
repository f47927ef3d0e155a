package search

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeBackend struct {
	name    string
	results []Result
	err     error
	calls   atomic.Int32
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Search(context.Context, string) ([]Result, error) {
	f.calls.Add(1)
	return f.results, f.err
}

func TestSearchMergesInBackendOrder(t *testing.T) {
	music := &fakeBackend{name: "music", results: []Result{{ID: "a"}, {ID: "b"}}}
	video := &fakeBackend{name: "video", results: []Result{{ID: "b"}, {ID: "c"}}}
	s := New(Options{}, music, video)

	got, err := s.Search(context.Background(), "song")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("Search() = %v, want ids %v", got, want)
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("Search()[%d] = %q, want %q", i, got[i].ID, want[i])
		}
	}
}

func TestSearchPartialFailure(t *testing.T) {
	broken := &fakeBackend{name: "broken", err: errors.New("down")}
	video := &fakeBackend{name: "video", results: []Result{{ID: "c"}}}
	s := New(Options{}, broken, video)

	r, err := s.First(context.Background(), "song")
	if err != nil || r.ID != "c" {
		t.Errorf("First() = (%v, %v), want c", r, err)
	}
}

func TestSearchErrors(t *testing.T) {
	down := errors.New("down")
	tests := []struct {
		name    string
		query   string
		backend *fakeBackend
		want    error
	}{
		{"blank query", "   ", &fakeBackend{results: []Result{{ID: "a"}}}, ErrNoResults},
		{"nothing found", "song", &fakeBackend{}, ErrNoResults},
		{"all failed", "song", &fakeBackend{err: down}, down},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Options{}, tt.backend)
			if _, err := s.Search(context.Background(), tt.query); !errors.Is(err, tt.want) {
				t.Errorf("Search(%q) error = %v, want %v", tt.query, err, tt.want)
			}
		})
	}
}

func TestSearchCache(t *testing.T) {
	b := &fakeBackend{results: []Result{{ID: "a"}}}
	s := New(Options{CacheTTL: time.Minute}, b)
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	s.Search(ctx, "Some Song")
	s.Search(ctx, "  some   song ")
	if got := b.calls.Load(); got != 1 {
		t.Errorf("backend calls = %d, want 1 (normalized query cached)", got)
	}

	now = now.Add(2 * time.Minute)
	s.Search(ctx, "some song")
	if got := b.calls.Load(); got != 2 {
		t.Errorf("backend calls after expiry = %d, want 2", got)
	}
}

func TestSearchCapsResults(t *testing.T) {
	var many []Result
	for i := 0; i < MaxResults+10; i++ {
		many = append(many, Result{ID: string(rune('A' + i))})
	}
	s := New(Options{}, &fakeBackend{results: many})
	got, err := s.Search(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != MaxResults {
		t.Errorf("len(Search()) = %d, want %d", len(got), MaxResults)
	}
}

func TestResultLabel(t *testing.T) {
	if got := (Result{Title: "Song", Artist: "Band"}).Label(); got != "Song - Band" {
		t.Errorf("Label() = %q", got)
	}
	if got := (Result{Title: "Song"}).Label(); got != "Song" {
		t.Errorf("Label() = %q", got)
	}
}
