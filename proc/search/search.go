// Package search turns free text into source IDs using YouTube Music and
// YouTube search, with a small result cache and a request rate limit.
package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const MaxResults = 25

var ErrNoResults = errors.New("no search results")

type Result struct {
	ID     string
	Title  string
	Artist string
	// Source names the backend that produced the result.
	Source string
}

// Label is a one-line description suitable for an autocomplete choice.
func (r Result) Label() string {
	if r.Artist == "" {
		return r.Title
	}
	return r.Title + " - " + r.Artist
}

type Backend interface {
	Name() string
	Search(ctx context.Context, query string) ([]Result, error)
}

// YTMusic searches YouTube Music tracks.
type YTMusic struct{}

func (YTMusic) Name() string { return "ytmusic" }

func (YTMusic) Search(ctx context.Context, query string) ([]Result, error) {
	type reply struct {
		res *ytmusic.SearchResult
		err error
	}
	ch := make(chan reply, 1)
	go func() {
		r, err := ytmusic.TrackSearch(query).Next()
		ch <- reply{r, err}
	}()

	var rep reply
	select {
	case rep = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if rep.err != nil {
		return nil, rep.err
	}

	out := make([]Result, 0, len(rep.res.Tracks))
	for _, t := range rep.res.Tracks {
		if t.VideoID == "" {
			continue
		}
		r := Result{ID: t.VideoID, Title: t.Title, Source: "ytmusic"}
		if len(t.Artists) > 0 {
			r.Artist = t.Artists[0].Name
		}
		out = append(out, r)
	}
	return out, nil
}

// YouTube searches regular YouTube videos.
type YouTube struct {
	client *ytsearch.Client
}

func NewYouTube() *YouTube {
	return &YouTube{client: ytsearch.NewClient(nil)}
}

func (*YouTube) Name() string { return "youtube" }

func (y *YouTube) Search(ctx context.Context, query string) ([]Result, error) {
	r, err := y.client.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(r.Results))
	for _, v := range r.Results {
		if v.VideoID == "" {
			continue
		}
		out = append(out, Result{ID: v.VideoID, Title: v.Title, Source: "youtube"})
	}
	return out, nil
}

type cached struct {
	results []Result
	at      time.Time
}

type Searcher struct {
	backends []Backend
	limiter  *rate.Limiter
	ttl      time.Duration
	timeout  time.Duration
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cached
}

type Options struct {
	// RequestsPerMinute caps outgoing searches; 0 disables the limit.
	RequestsPerMinute int
	CacheTTL          time.Duration
	Timeout           time.Duration
}

// New queries backends in order of preference.
func New(opts Options, backends ...Backend) *Searcher {
	s := &Searcher{
		backends: backends,
		limiter:  rate.NewLimiter(rate.Inf, 0),
		ttl:      opts.CacheTTL,
		timeout:  opts.Timeout,
		now:      time.Now,
		cache:    make(map[string]cached),
	}
	if opts.RequestsPerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), opts.RequestsPerMinute)
	}
	if s.timeout <= 0 {
		s.timeout = 3 * time.Second
	}
	return s
}

// NewDefault searches YouTube Music first and YouTube second.
func NewDefault() *Searcher {
	return New(Options{RequestsPerMinute: 30, CacheTTL: 10 * time.Minute}, YTMusic{}, NewYouTube())
}

func normalize(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// Search asks every backend at once and merges their results in backend
// order without duplicates. It fails only when every backend fails.
func (s *Searcher) Search(ctx context.Context, query string) ([]Result, error) {
	key := normalize(query)
	if key == "" {
		return nil, ErrNoResults
	}
	if res, ok := s.fromCache(key); ok {
		return res, nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results := make([][]Result, len(s.backends))
	errs := make([]error, len(s.backends))
	var g errgroup.Group
	for i, b := range s.backends {
		g.Go(func() error {
			results[i], errs[i] = b.Search(ctx, query)
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool)
	var merged []Result
	for _, rs := range results {
		for _, r := range rs {
			if seen[r.ID] || len(merged) >= MaxResults {
				continue
			}
			seen[r.ID] = true
			merged = append(merged, r)
		}
	}

	if len(merged) == 0 {
		if err := errors.Join(errs...); err != nil {
			return nil, err
		}
		return nil, ErrNoResults
	}
	s.store(key, merged)
	return merged, nil
}

// First returns the best match for query.
func (s *Searcher) First(ctx context.Context, query string) (Result, error) {
	res, err := s.Search(ctx, query)
	if err != nil {
		return Result{}, err
	}
	return res[0], nil
}

func (s *Searcher) fromCache(key string) ([]Result, bool) {
	if s.ttl <= 0 {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cache[key]
	if !ok {
		return nil, false
	}
	if s.now().Sub(c.at) > s.ttl {
		delete(s.cache, key)
		return nil, false
	}
	return c.results, true
}

func (s *Searcher) store(key string, res []Result) {
	if s.ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = cached{results: res, at: s.now()}
}
