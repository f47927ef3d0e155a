package player

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/minstrel/proc/guild"
	"github.com/leeineian/minstrel/proc/pipeline"
	"github.com/leeineian/minstrel/proc/trackcache"
)

const testGuild = snowflake.ID(100)

func testAudio(t *testing.T, id string, frames int) *pipeline.Audio {
	t.Helper()
	packets := make([][]byte, frames)
	for i := range packets {
		packets[i] = []byte{byte(i), 0xAA}
	}
	buf, err := pipeline.EncodeFrames(packets)
	if err != nil {
		t.Fatal(err)
	}
	return &pipeline.Audio{
		Meta:       trackcache.Metadata{ID: id, Title: "Title " + id, Duration: 60},
		Window:     pipeline.Window{Start: 0, Length: 60},
		Frames:     buf,
		FrameCount: frames,
	}
}

type fakeAcquirer struct {
	t     *testing.T
	fail  map[string]error
	gate  chan struct{}
	calls atomic.Int32
}

func (f *fakeAcquirer) Acquire(ctx context.Context, id string, w pipeline.Window) (*pipeline.Audio, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.fail[id]; err != nil {
		return nil, err
	}
	return testAudio(f.t, id, 3), nil
}

type fakeTransport struct {
	mu        sync.Mutex
	attached  []voice.OpusFrameProvider
	attachErr error
	detaches  atomic.Int32
}

func (f *fakeTransport) Attach(_ context.Context, _ snowflake.ID, p voice.OpusFrameProvider) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached = append(f.attached, p)
	return nil
}

func (f *fakeTransport) Detach(context.Context, snowflake.ID) { f.detaches.Add(1) }

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.attached)
}

type finished struct {
	failures int
	last     guild.Entry
}

type fakeNotifier struct {
	playing  chan string
	failed   chan string
	finished chan finished
	stalled  chan string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		playing:  make(chan string, 16),
		failed:   make(chan string, 16),
		finished: make(chan finished, 16),
		stalled:  make(chan string, 16),
	}
}

func (n *fakeNotifier) NowPlaying(_ snowflake.ID, a *pipeline.Audio) { n.playing <- a.Meta.ID }
func (n *fakeNotifier) AcquireFailed(_ snowflake.ID, e guild.Entry, _ error) {
	n.failed <- e.ID
}
func (n *fakeNotifier) QueueFinished(_ snowflake.ID, failures int, last guild.Entry, _ error) {
	n.finished <- finished{failures, last}
}
func (n *fakeNotifier) PlaybackStalled(_ snowflake.ID, e guild.Entry, _ error) {
	n.stalled <- e.ID
}

func newTestPlayer(t *testing.T, acq *fakeAcquirer) (*Player, *fakeTransport, *fakeNotifier) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	tr := &fakeTransport{}
	n := newFakeNotifier()
	p := New(ctx, guild.NewRegistry(nil), acq, tr, n)
	t.Cleanup(func() {
		p.Shutdown(context.Background())
		cancel()
	})
	return p, tr, n
}

func (p *Player) workerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func receive[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func TestIdleLoadingPlaying(t *testing.T) {
	acq := &fakeAcquirer{t: t, gate: make(chan struct{})}
	p, tr, n := newTestPlayer(t, acq)
	st := p.Registry().Get(testGuild)

	st.Enqueue(guild.Entry{ID: "A"})
	if got := st.Phase(); got != guild.Idle {
		t.Fatalf("Phase() = %v, want idle", got)
	}
	if err := p.RequestAdvance(testGuild); err != nil {
		t.Fatalf("RequestAdvance() = %v", err)
	}
	waitFor(t, "loading", func() bool { return st.Phase() == guild.Loading })

	st.Enqueue(guild.Entry{ID: "B"})
	if err := p.RequestAdvance(testGuild); !errors.Is(err, ErrBusy) {
		t.Errorf("RequestAdvance() while loading = %v, want ErrBusy", err)
	}

	close(acq.gate)
	if got := receive(t, n.playing, "now playing"); got != "A" {
		t.Errorf("now playing = %q, want A", got)
	}
	if got := st.Phase(); got != guild.Playing {
		t.Errorf("Phase() = %v, want playing", got)
	}
	if got := st.NowPlaying().Title(); got != "Title A" {
		t.Errorf("NowPlaying().Title() = %q", got)
	}
	if tr.count() != 1 {
		t.Errorf("transport attached %d providers, want 1", tr.count())
	}
	if err := p.RequestAdvance(testGuild); !errors.Is(err, ErrAlreadyPlaying) {
		t.Errorf("RequestAdvance() while playing = %v, want ErrAlreadyPlaying", err)
	}
	if got := acq.calls.Load(); got != 1 {
		t.Errorf("acquisitions = %d, want 1", got)
	}
}

func TestFailureWithEmptyQueueReturnsIdle(t *testing.T) {
	acq := &fakeAcquirer{t: t, fail: map[string]error{"A": errors.New("boom")}}
	p, tr, n := newTestPlayer(t, acq)
	st := p.Registry().Get(testGuild)

	st.Enqueue(guild.Entry{ID: "A"})
	if err := p.RequestAdvance(testGuild); err != nil {
		t.Fatal(err)
	}

	f := receive(t, n.finished, "queue finished")
	if f.failures != 1 || f.last.ID != "A" {
		t.Errorf("QueueFinished = %+v, want 1 failure for A", f)
	}
	if st.Phase() != guild.Idle {
		t.Errorf("Phase() = %v, want idle", st.Phase())
	}
	select {
	case id := <-n.failed:
		t.Errorf("AcquireFailed(%s) sent with nothing queued after it", id)
	default:
	}
	if tr.count() != 0 {
		t.Errorf("transport attached %d providers, want 0", tr.count())
	}
	if err := p.RequestAdvance(testGuild); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("RequestAdvance() = %v, want ErrQueueEmpty", err)
	}
}

func TestFailureAdvancesToNextEntry(t *testing.T) {
	acq := &fakeAcquirer{t: t, fail: map[string]error{"A": errors.New("boom")}}
	p, _, n := newTestPlayer(t, acq)
	st := p.Registry().Get(testGuild)

	st.Enqueue(guild.Entry{ID: "A"})
	st.Enqueue(guild.Entry{ID: "B"})
	if err := p.RequestAdvance(testGuild); err != nil {
		t.Fatal(err)
	}

	if got := receive(t, n.failed, "acquire failed"); got != "A" {
		t.Errorf("AcquireFailed = %q, want A", got)
	}
	if got := receive(t, n.playing, "now playing"); got != "B" {
		t.Errorf("now playing = %q, want B", got)
	}
	if got := acq.calls.Load(); got != 2 {
		t.Errorf("acquisitions = %d, want 2 (failed entry must not be retried)", got)
	}
}

func TestSkipAdvancesThenDrains(t *testing.T) {
	acq := &fakeAcquirer{t: t}
	p, tr, n := newTestPlayer(t, acq)
	st := p.Registry().Get(testGuild)

	st.Enqueue(guild.Entry{ID: "A"})
	st.Enqueue(guild.Entry{ID: "B"})
	if err := p.RequestAdvance(testGuild); err != nil {
		t.Fatal(err)
	}
	receive(t, n.playing, "A playing")

	if !p.Skip(testGuild) {
		t.Fatal("Skip() = false while playing")
	}
	if got := receive(t, n.playing, "B playing"); got != "B" {
		t.Errorf("now playing = %q, want B", got)
	}

	if !p.Skip(testGuild) {
		t.Fatal("Skip() = false while playing B")
	}
	waitFor(t, "drain", func() bool { return tr.detaches.Load() > 0 })
	if st.Phase() != guild.Idle {
		t.Errorf("Phase() = %v, want idle", st.Phase())
	}
	if p.Skip(testGuild) {
		t.Error("Skip() = true with nothing playing")
	}
}

func TestIdleWorkerExitsAfterDrain(t *testing.T) {
	acq := &fakeAcquirer{t: t}
	p, tr, n := newTestPlayer(t, acq)
	p.IdleTimeout = 20 * time.Millisecond
	st := p.Registry().Get(testGuild)

	st.Enqueue(guild.Entry{ID: "A"})
	if err := p.RequestAdvance(testGuild); err != nil {
		t.Fatal(err)
	}
	receive(t, n.playing, "A playing")
	p.Skip(testGuild)
	waitFor(t, "drain", func() bool { return tr.detaches.Load() > 0 })
	waitFor(t, "worker exit", func() bool { return p.workerCount() == 0 })

	st.Enqueue(guild.Entry{ID: "B"})
	if err := p.RequestAdvance(testGuild); err != nil {
		t.Fatalf("RequestAdvance() after worker exit = %v", err)
	}
	if got := receive(t, n.playing, "B playing"); got != "B" {
		t.Errorf("now playing = %q, want B", got)
	}
}

func TestPlayingWorkerStays(t *testing.T) {
	acq := &fakeAcquirer{t: t}
	p, _, n := newTestPlayer(t, acq)
	p.IdleTimeout = 10 * time.Millisecond
	st := p.Registry().Get(testGuild)

	st.Enqueue(guild.Entry{ID: "A"})
	if err := p.RequestAdvance(testGuild); err != nil {
		t.Fatal(err)
	}
	receive(t, n.playing, "A playing")

	time.Sleep(100 * time.Millisecond)
	if got := p.workerCount(); got != 1 {
		t.Errorf("got %d workers while playing, want 1", got)
	}
	if st.Phase() != guild.Playing {
		t.Errorf("Phase() = %v, want playing", st.Phase())
	}
}

func TestRequestAfterRetireStartsNewWorker(t *testing.T) {
	acq := &fakeAcquirer{t: t}
	p, _, n := newTestPlayer(t, acq)
	st := p.Registry().Get(testGuild)

	old, err := p.workerFor(testGuild)
	if err != nil {
		t.Fatal(err)
	}
	if !p.retire(old, st) {
		t.Fatal("retire() = false for an idle worker")
	}
	if err := old.post(intent{}); !errors.Is(err, errRetired) {
		t.Fatalf("post() to retired worker = %v, want errRetired", err)
	}

	st.Enqueue(guild.Entry{ID: "A"})
	if err := p.RequestAdvance(testGuild); err != nil {
		t.Fatalf("RequestAdvance() = %v", err)
	}
	receive(t, n.playing, "A playing")
	if w, _ := p.workerFor(testGuild); w == old {
		t.Error("request was routed to the retired worker")
	}
}

func TestStaleTrackEndIgnored(t *testing.T) {
	acq := &fakeAcquirer{t: t}
	p, _, n := newTestPlayer(t, acq)
	st := p.Registry().Get(testGuild)

	st.Enqueue(guild.Entry{ID: "A"})
	st.Enqueue(guild.Entry{ID: "B"})
	if err := p.RequestAdvance(testGuild); err != nil {
		t.Fatal(err)
	}
	receive(t, n.playing, "A playing")
	first := st.NowPlaying()

	first.Stop()
	receive(t, n.playing, "B playing")
	second := st.NowPlaying()

	// Stopping A again must not end B.
	first.Stop()
	time.Sleep(50 * time.Millisecond)
	if st.NowPlaying() != second {
		t.Error("stale stop ended the current track")
	}
}

func TestPlayNextReplacesCurrent(t *testing.T) {
	acq := &fakeAcquirer{t: t}
	p, _, n := newTestPlayer(t, acq)
	st := p.Registry().Get(testGuild)

	res, err := p.PlayNext(testGuild, guild.Entry{ID: "A"})
	if err != nil || res != Started {
		t.Fatalf("PlayNext(A) = (%v, %v), want Started", res, err)
	}
	receive(t, n.playing, "A playing")

	st.Enqueue(guild.Entry{ID: "C"})
	res, err = p.PlayNext(testGuild, guild.Entry{ID: "B"})
	if err != nil || res != Replacing {
		t.Fatalf("PlayNext(B) = (%v, %v), want Replacing", res, err)
	}
	if got := receive(t, n.playing, "B playing"); got != "B" {
		t.Errorf("now playing = %q, want B", got)
	}
	if pending := st.Pending(); len(pending) != 1 || pending[0].ID != "C" {
		t.Errorf("Pending() = %v, want [C]", pending)
	}
}

func TestHaltDoesNotAdvance(t *testing.T) {
	acq := &fakeAcquirer{t: t}
	p, tr, n := newTestPlayer(t, acq)
	st := p.Registry().Get(testGuild)

	st.Enqueue(guild.Entry{ID: "A"})
	st.Enqueue(guild.Entry{ID: "B"})
	if err := p.RequestAdvance(testGuild); err != nil {
		t.Fatal(err)
	}
	receive(t, n.playing, "A playing")
	track := st.NowPlaying().(*Track)

	p.Halt(context.Background(), testGuild)

	select {
	case <-track.Done():
	default:
		t.Error("Halt() left the track running")
	}
	if st.Phase() != guild.Idle {
		t.Errorf("Phase() = %v, want idle", st.Phase())
	}
	select {
	case id := <-n.playing:
		t.Errorf("Halt() advanced to %s", id)
	case <-time.After(50 * time.Millisecond):
	}
	if pending := st.Pending(); len(pending) != 1 || pending[0].ID != "B" {
		t.Errorf("Pending() = %v, want [B]", pending)
	}
	if tr.detaches.Load() == 0 {
		t.Error("Halt() did not detach the transport")
	}

	// A fresh request starts a new worker.
	if err := p.RequestAdvance(testGuild); err != nil {
		t.Fatalf("RequestAdvance() after Halt = %v", err)
	}
	if got := receive(t, n.playing, "B playing"); got != "B" {
		t.Errorf("now playing = %q, want B", got)
	}
}

func TestHaltDuringLoad(t *testing.T) {
	acq := &fakeAcquirer{t: t, gate: make(chan struct{})}
	p, _, n := newTestPlayer(t, acq)
	st := p.Registry().Get(testGuild)

	st.Enqueue(guild.Entry{ID: "A"})
	if err := p.RequestAdvance(testGuild); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "loading", func() bool { return st.Phase() == guild.Loading })

	p.Halt(context.Background(), testGuild)
	if st.Phase() != guild.Idle {
		t.Errorf("Phase() = %v, want idle", st.Phase())
	}
	select {
	case f := <-n.finished:
		t.Errorf("cancelled load reported as failure: %+v", f)
	default:
	}
}

func TestAttachFailureRequeues(t *testing.T) {
	acq := &fakeAcquirer{t: t}
	p, tr, n := newTestPlayer(t, acq)
	tr.attachErr = errors.New("not connected")
	st := p.Registry().Get(testGuild)

	st.Enqueue(guild.Entry{ID: "A"})
	if err := p.RequestAdvance(testGuild); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "acquire", func() bool { return acq.calls.Load() == 1 })
	waitFor(t, "abort", func() bool { return st.Phase() == guild.Idle && len(st.Pending()) == 1 })
	if st.Pending()[0].ID != "A" {
		t.Errorf("Pending() = %v, want [A]", st.Pending())
	}

	select {
	case got := <-n.stalled:
		if got != "A" {
			t.Errorf("PlaybackStalled(%q), want A", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("attach failure was not reported")
	}
	select {
	case id := <-n.failed:
		t.Errorf("AcquireFailed(%s) sent for an attach failure", id)
	default:
	}
}

func TestTrackFramesThenSilenceThenEOF(t *testing.T) {
	var ends atomic.Int32
	track := NewTrack(testAudio(t, "A", 3), func(*Track) { ends.Add(1) })

	for i := 0; i < 3; i++ {
		frame, err := track.ProvideOpusFrame()
		if err != nil || len(frame) != 2 || frame[0] != byte(i) {
			t.Fatalf("frame %d = (%v, %v)", i, frame, err)
		}
	}
	if got := track.Elapsed(); got != 60*time.Millisecond {
		t.Errorf("Elapsed() = %v, want 60ms", got)
	}

	for i := 0; i < silenceFrames; i++ {
		frame, err := track.ProvideOpusFrame()
		if err != nil || string(frame) != string(OpusSilence) {
			t.Fatalf("drain frame %d = (%v, %v), want silence", i, frame, err)
		}
	}
	if ends.Load() != 0 {
		t.Fatal("end fired before the drain finished")
	}

	if _, err := track.ProvideOpusFrame(); err != io.EOF {
		t.Fatalf("after drain: err = %v, want io.EOF", err)
	}
	if _, err := track.ProvideOpusFrame(); err != io.EOF {
		t.Fatalf("after end: err = %v, want io.EOF", err)
	}

	track.Stop()
	track.Close()
	if got := ends.Load(); got != 1 {
		t.Errorf("end fired %d times, want 1", got)
	}
}

func TestTrackPositionIncludesWindowStart(t *testing.T) {
	audio := testAudio(t, "A", 10)
	audio.Window = pipeline.Window{Start: 30, Length: 10}
	track := NewTrack(audio, nil)

	track.ProvideOpusFrame()
	track.ProvideOpusFrame()
	if got, want := track.Position(), 30*time.Second+40*time.Millisecond; got != want {
		t.Errorf("Position() = %v, want %v", got, want)
	}

	track.Stop()
	if _, err := track.ProvideOpusFrame(); err != io.EOF {
		t.Errorf("after Stop: err = %v, want io.EOF", err)
	}
}
