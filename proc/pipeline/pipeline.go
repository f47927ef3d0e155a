// Package pipeline turns a video ID into a ready-to-send Opus frame buffer:
// cache lookup, download, transcode, demux and framing.
package pipeline

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/leeineian/minstrel/proc/resolver"
	"github.com/leeineian/minstrel/proc/trackcache"
	"github.com/leeineian/minstrel/sys"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Audio is an acquired track. Frames holds length-prefixed Opus packets.
type Audio struct {
	Meta       trackcache.Metadata
	Window     Window
	Frames     []byte
	FrameCount int
}

// Length is the playable duration of the frames.
func (a *Audio) Length() time.Duration {
	return time.Duration(a.FrameCount*FrameDurationMs) * time.Millisecond
}

type Options struct {
	Cache      *trackcache.Cache
	Downloader Downloader
	Transcoder Transcoder
	// Prober is optional; without it a download must report its duration.
	Prober Prober

	DownloadTimeout  time.Duration
	TranscodeTimeout time.Duration
	// DownloadsPerMinute caps downloader invocations; 0 disables the limit.
	DownloadsPerMinute int
}

type Pipeline struct {
	cache      *trackcache.Cache
	downloader Downloader
	transcoder Transcoder
	prober     Prober

	downloadTimeout  time.Duration
	transcodeTimeout time.Duration
	limiter          *rate.Limiter

	group     singleflight.Group
	downloads atomic.Int64
}

func New(opts Options) *Pipeline {
	p := &Pipeline{
		cache:            opts.Cache,
		downloader:       opts.Downloader,
		transcoder:       opts.Transcoder,
		prober:           opts.Prober,
		downloadTimeout:  opts.DownloadTimeout,
		transcodeTimeout: opts.TranscodeTimeout,
		limiter:          rate.NewLimiter(rate.Inf, 0),
	}
	if p.downloadTimeout <= 0 {
		p.downloadTimeout = 5 * time.Minute
	}
	if p.transcodeTimeout <= 0 {
		p.transcodeTimeout = 2 * time.Minute
	}
	if opts.DownloadsPerMinute > 0 {
		p.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.DownloadsPerMinute)), opts.DownloadsPerMinute)
	}
	return p
}

// Downloads is the number of downloader invocations so far.
func (p *Pipeline) Downloads() int64 { return p.downloads.Load() }

// Cache exposes the backing cache.
func (p *Pipeline) Cache() *trackcache.Cache { return p.cache }

// Acquire returns the frames for id within window w.
func (p *Pipeline) Acquire(ctx context.Context, id string, w Window) (*Audio, error) {
	meta, asset, err := p.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	win := w.Normalize(meta.Duration)
	sys.LogPipeline(sys.MsgPipelineTranscoding, id, win.Start, win.Length)

	tctx, cancel := context.WithTimeout(ctx, p.transcodeTimeout)
	defer cancel()

	ogg, err := p.transcoder.Transcode(tctx, asset, win)
	if err != nil {
		return nil, &Error{Kind: classify(tctx, TranscodeFailure), ID: id, Err: err}
	}
	if len(ogg) == 0 {
		return nil, &Error{Kind: TranscodeFailure, ID: id, Err: ErrEmptyOutput}
	}

	packets, err := DemuxOpus(ogg, OpusHeaderPackets)
	if err != nil {
		return nil, &Error{Kind: TranscodeFailure, ID: id, Err: err}
	}
	if len(packets) == 0 {
		return nil, &Error{Kind: TranscodeFailure, ID: id, Err: ErrNoAudio}
	}

	frames, err := EncodeFrames(packets)
	if err != nil {
		return nil, &Error{Kind: TranscodeFailure, ID: id, Err: err}
	}

	audio := &Audio{Meta: meta, Window: win, Frames: frames, FrameCount: len(packets)}
	sys.LogPipeline(sys.MsgPipelineReady, id, audio.FrameCount, humanize.Bytes(uint64(len(frames))))
	return audio, nil
}

// Fetch makes sure id is in the cache and returns its metadata and asset
// path. Concurrent calls for one id share a single download. The download
// outlives any single caller: cancelling ctx only stops this caller waiting,
// and the shared download is bounded by the download timeout alone.
func (p *Pipeline) Fetch(ctx context.Context, id string) (trackcache.Metadata, string, error) {
	if meta, asset, ok := p.cache.Lookup(id); ok {
		sys.LogPipeline(sys.MsgPipelineCacheHit, id)
		return meta, asset, nil
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := p.group.DoChan(id, func() (any, error) {
		// Another caller may have published while we waited for the group.
		if meta, asset, ok := p.cache.Lookup(id); ok {
			return cached{meta, asset}, nil
		}
		return p.download(flightCtx, id)
	})

	select {
	case <-ctx.Done():
		return trackcache.Metadata{}, "", &Error{Kind: classify(ctx, MetadataFailure), ID: id, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return trackcache.Metadata{}, "", res.Err
		}
		c := res.Val.(cached)
		return c.meta, c.asset, nil
	}
}

type cached struct {
	meta  trackcache.Metadata
	asset string
}

func (p *Pipeline) download(ctx context.Context, id string) (cached, error) {
	dctx, cancel := context.WithTimeout(ctx, p.downloadTimeout)
	defer cancel()

	if err := p.limiter.Wait(dctx); err != nil {
		return cached{}, &Error{Kind: classify(dctx, MetadataFailure), ID: id, Err: err}
	}

	tmp := p.cache.TempAssetPath(id)
	defer os.Remove(tmp) // no-op once published

	sys.LogPipeline(sys.MsgPipelineDownloading, id)
	p.downloads.Add(1)

	meta, err := p.downloader.Download(dctx, resolver.CanonicalURL(id), tmp)
	if err != nil {
		return cached{}, &Error{Kind: classify(dctx, MetadataFailure), ID: id, Err: err}
	}

	fi, err := os.Stat(tmp)
	if err != nil || fi.Size() == 0 {
		return cached{}, &Error{Kind: MetadataFailure, ID: id, Err: ErrEmptyAsset}
	}

	if p.prober != nil {
		d, perr := p.prober.Probe(tmp)
		switch {
		case perr != nil:
			sys.LogWarn(sys.MsgPipelineProbeFail, id, perr)
			if errors.Is(perr, ErrNoAudioStream) {
				return cached{}, &Error{Kind: MetadataFailure, ID: id, Err: perr}
			}
		case meta.Duration <= 0:
			meta.Duration = int(d.Round(time.Second) / time.Second)
		}
	}
	if meta.Duration <= 0 {
		return cached{}, &Error{Kind: MetadataFailure, ID: id, Err: ErrNoDuration}
	}

	meta.ID = id
	if meta.SourceURL == "" {
		meta.SourceURL = resolver.CanonicalURL(id)
	}

	if err := p.cache.Publish(id, meta, tmp); err != nil {
		return cached{}, &Error{Kind: MetadataFailure, ID: id, Err: err}
	}

	sys.LogPipeline(sys.MsgPipelineDownloaded, id, meta.Title, humanize.Bytes(uint64(fi.Size())))
	return cached{meta, p.cache.AssetPath(id)}, nil
}

func classify(ctx context.Context, fallback Kind) Kind {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Timeout
	}
	return fallback
}
