// Package player drives playback per guild. Every decision about what plays
// next is made by one worker goroutine per guild that consumes advance
// intents serially, so at most one acquisition is ever in flight for a guild.
package player

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/minstrel/proc/guild"
	"github.com/leeineian/minstrel/proc/pipeline"
	"github.com/leeineian/minstrel/sys"
)

var (
	ErrBusy           = guild.ErrBusy
	ErrAlreadyPlaying = guild.ErrAlreadyPlaying
	ErrQueueEmpty     = guild.ErrQueueEmpty
	ErrClosed         = errors.New("player is shut down")

	errRetired = errors.New("worker retired")
)

// Acquirer turns an entry into playable audio. *pipeline.Pipeline is one.
type Acquirer interface {
	Acquire(ctx context.Context, id string, w pipeline.Window) (*pipeline.Audio, error)
}

// Transport hands frame providers to a guild's voice connection.
type Transport interface {
	Attach(ctx context.Context, guildID snowflake.ID, p voice.OpusFrameProvider) error
	Detach(ctx context.Context, guildID snowflake.ID)
}

// Notifier reports playback events to the guild's bound text channel.
type Notifier interface {
	NowPlaying(guildID snowflake.ID, audio *pipeline.Audio)
	// AcquireFailed is sent for a failed entry when more entries follow.
	AcquireFailed(guildID snowflake.ID, entry guild.Entry, err error)
	// QueueFinished is sent once when the queue ran out after failures.
	QueueFinished(guildID snowflake.ID, failures int, last guild.Entry, err error)
	// PlaybackStalled is sent when a loaded entry could not be handed to the
	// voice connection. The entry stays at the head of the queue.
	PlaybackStalled(guildID snowflake.ID, entry guild.Entry, err error)
}

type nopNotifier struct{}

func (nopNotifier) NowPlaying(snowflake.ID, *pipeline.Audio)            {}
func (nopNotifier) AcquireFailed(snowflake.ID, guild.Entry, error)      {}
func (nopNotifier) QueueFinished(snowflake.ID, int, guild.Entry, error) {}
func (nopNotifier) PlaybackStalled(snowflake.ID, guild.Entry, error)    {}

type intent struct {
	// ended is the track whose end triggered this intent; nil for a user request.
	ended *Track
}

// DefaultIdleTimeout is how long a worker with nothing to do waits before
// it exits.
const DefaultIdleTimeout = 5 * time.Minute

type worker struct {
	guildID snowflake.ID
	ctx     context.Context
	cancel  context.CancelFunc
	intents chan intent
	done    chan struct{}

	// mu orders posts against retirement so no intent is sent to a worker
	// that has already decided to exit.
	mu      sync.Mutex
	retired bool
}

func (w *worker) alive() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

func (w *worker) post(in intent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.retired {
		return errRetired
	}
	if w.ctx.Err() != nil {
		return ErrBusy
	}
	select {
	case w.intents <- in:
		return nil
	case <-w.ctx.Done():
	case <-w.done:
	}
	return ErrBusy
}

type Player struct {
	// IdleTimeout bounds how long a guild's worker outlives its last track.
	// It is read when a worker starts.
	IdleTimeout time.Duration

	registry  *guild.Registry
	acquirer  Acquirer
	transport Transport
	notifier  Notifier

	ctx context.Context

	mu      sync.Mutex
	workers map[snowflake.ID]*worker
}

// New returns a Player whose workers live until ctx is cancelled or Shutdown.
func New(ctx context.Context, registry *guild.Registry, acquirer Acquirer, transport Transport, notifier Notifier) *Player {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Player{
		IdleTimeout: DefaultIdleTimeout,
		registry:    registry,
		acquirer:    acquirer,
		transport:   transport,
		notifier:    notifier,
		ctx:         ctx,
		workers:     make(map[snowflake.ID]*worker),
	}
}

func (p *Player) Registry() *guild.Registry { return p.registry }

func (p *Player) workerFor(gid snowflake.ID) (*worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx.Err() != nil {
		return nil, ErrClosed
	}
	if w, ok := p.workers[gid]; ok && w.alive() {
		return w, nil
	}

	ctx, cancel := context.WithCancel(p.ctx)
	w := &worker{
		guildID: gid,
		ctx:     ctx,
		cancel:  cancel,
		intents: make(chan intent, 16),
		done:    make(chan struct{}),
	}
	p.workers[gid] = w
	go p.run(w, p.registry.Get(gid), p.IdleTimeout)
	return w, nil
}

// dispatch delivers in to the guild's worker, starting a new one when the
// current worker retired between lookup and post.
func (p *Player) dispatch(gid snowflake.ID, in intent) error {
	for {
		w, err := p.workerFor(gid)
		if err != nil {
			return err
		}
		if err := w.post(in); !errors.Is(err, errRetired) {
			return err
		}
	}
}

// retire unregisters w if it has nothing queued and its guild is idle. It
// gives up when a post is in progress.
func (p *Player) retire(w *worker, st *guild.State) bool {
	if !w.mu.TryLock() {
		return false
	}
	defer w.mu.Unlock()
	if len(w.intents) > 0 || st.Phase() != guild.Idle {
		return false
	}
	w.retired = true

	p.mu.Lock()
	if p.workers[w.guildID] == w {
		delete(p.workers, w.guildID)
	}
	p.mu.Unlock()
	return true
}

// RequestAdvance asks the guild's worker to start the queue. It returns
// ErrBusy while a load or another request is outstanding, ErrAlreadyPlaying
// while a track plays and ErrQueueEmpty when nothing is pending.
func (p *Player) RequestAdvance(gid snowflake.ID) error {
	st := p.registry.Get(gid)
	if err := st.RequestAdvance(); err != nil {
		return err
	}
	if err := p.dispatch(gid, intent{}); err != nil {
		st.CancelRequest()
		return err
	}
	return nil
}

// PlayResult says how PlayNext got its entry going.
type PlayResult int

const (
	// Started means the queue was idle and an advance was requested.
	Started PlayResult = iota
	// Replacing means the current track was stopped; the entry follows it.
	Replacing
	// Deferred means a load is in flight; the entry plays right after it.
	Deferred
)

// PlayNext puts e at the head of the queue and gets it playing as soon as
// possible, cutting the current track short.
func (p *Player) PlayNext(gid snowflake.ID, e guild.Entry) (PlayResult, error) {
	st := p.registry.Get(gid)
	st.EnqueueFront(e)

	if h := st.NowPlaying(); h != nil {
		h.Stop()
		return Replacing, nil
	}
	switch err := p.RequestAdvance(gid); {
	case err == nil:
		return Started, nil
	case errors.Is(err, ErrBusy):
		return Deferred, nil
	case errors.Is(err, ErrAlreadyPlaying):
		// A track started between the two checks.
		if h := st.NowPlaying(); h != nil {
			h.Stop()
		}
		return Replacing, nil
	default:
		return 0, err
	}
}

// Skip stops the current track. The worker then advances as on a natural end.
func (p *Player) Skip(gid snowflake.ID) bool {
	st, ok := p.registry.Lookup(gid)
	if !ok {
		return false
	}
	h := st.NowPlaying()
	if h == nil {
		return false
	}
	h.Stop()
	return true
}

// Halt tears down the guild's worker and playback without advancing. The
// pending queue is left alone.
func (p *Player) Halt(ctx context.Context, gid snowflake.ID) {
	p.mu.Lock()
	w, ok := p.workers[gid]
	delete(p.workers, gid)
	p.mu.Unlock()

	if ok {
		w.cancel()
		<-w.done
	}
	if st, ok := p.registry.Lookup(gid); ok {
		if h := st.Reset(); h != nil {
			h.Stop()
		}
	}
	p.transport.Detach(ctx, gid)
}

// Shutdown halts every guild.
func (p *Player) Shutdown(ctx context.Context) {
	p.mu.Lock()
	ids := make([]snowflake.ID, 0, len(p.workers))
	for id := range p.workers {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.Halt(ctx, id)
	}
}

func (p *Player) run(w *worker, st *guild.State, idleTimeout time.Duration) {
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			sys.LogVoice(sys.MsgVoiceWorkerPanic, w.guildID, r)
			st.AbortAdvance()
			st.CancelRequest()
		}
	}()

	idle := time.NewTimer(idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-idle.C:
			if p.retire(w, st) {
				sys.LogVoice(sys.MsgVoiceWorkerIdle, w.guildID)
				w.cancel()
				return
			}
			idle.Reset(idleTimeout)
		case in := <-w.intents:
			idle.Reset(idleTimeout)
			if in.ended != nil {
				if !st.EndTrack(in.ended) {
					continue
				}
				sys.LogVoice(sys.MsgVoiceTrackEnded, w.guildID, in.ended.Elapsed())
			}
			p.advance(w, st, in.ended != nil)
		}
	}
}

// advance starts the next entry that can be acquired. Failed entries are
// dropped and the next one is tried; the failed entry itself is never retried.
func (p *Player) advance(w *worker, st *guild.State, afterTrack bool) {
	var (
		failures int
		last     guild.Entry
		lastErr  error
	)

	for {
		entry, ok := st.BeginAdvance()
		if !ok {
			if st.Phase() != guild.Idle {
				return
			}
			if afterTrack || failures > 0 {
				sys.LogVoice(sys.MsgVoiceQueueDrained, w.guildID)
				p.transport.Detach(w.ctx, w.guildID)
			}
			if failures > 0 {
				p.notifier.QueueFinished(w.guildID, failures, last, lastErr)
			}
			return
		}

		audio, err := p.acquirer.Acquire(w.ctx, entry.ID, pipeline.Window{Start: entry.Start, Length: entry.Length})
		if err != nil {
			st.AbortAdvance()
			if w.ctx.Err() != nil {
				return
			}
			sys.LogVoice(sys.MsgVoiceAcquireFail, entry.ID, w.guildID, err)
			failures++
			last, lastErr = entry, err
			if len(st.Pending()) > 0 {
				p.notifier.AcquireFailed(w.guildID, entry, err)
			}
			continue
		}

		track := NewTrack(audio, func(t *Track) { w.post(intent{ended: t}) })
		if err := p.transport.Attach(w.ctx, w.guildID, track); err != nil {
			// Without a connection every entry would fail the same way, so
			// put this one back and wait for the next request.
			st.EnqueueFront(entry)
			st.AbortAdvance()
			if w.ctx.Err() != nil {
				return
			}
			sys.LogVoice(sys.MsgVoiceAttachFail, w.guildID, err)
			p.notifier.PlaybackStalled(w.guildID, entry, err)
			return
		}
		st.FinishAdvance(track)
		sys.LogVoice(sys.MsgVoicePlaying, audio.Meta.Title, entry.ID, w.guildID)
		p.notifier.NowPlaying(w.guildID, audio)
		return
	}
}
