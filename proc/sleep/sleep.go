// Package sleep schedules a guild's disconnect at a user-given time.
package sleep

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/minstrel/sys"
	"github.com/sho0pi/naturaltime"
)

var (
	ErrUnparsable = errors.New("could not parse time")
	ErrInPast     = errors.New("time is not in the future")
)

// DateParser is the subset of *naturaltime.Parser used here.
type DateParser interface {
	ParseDate(input string, now time.Time) (*time.Time, error)
}

var (
	naturalOnce   sync.Once
	naturalParser DateParser
)

func natural() DateParser {
	naturalOnce.Do(func() {
		p, err := naturaltime.New()
		if err != nil {
			sys.LogWarn("natural time parser unavailable: %v", err)
			return
		}
		naturalParser = p
	})
	return naturalParser
}

// Parse reads a deadline relative to now. It accepts Go durations ("45m",
// "1h30m"), a clock time ("23:00", next occurrence) and natural phrases
// ("in 30 minutes", "tomorrow at 1am").
func Parse(input string, now time.Time) (time.Time, error) {
	return parseWith(natural(), input, now)
}

func parseWith(p DateParser, input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, ErrUnparsable
	}

	if d, err := time.ParseDuration(input); err == nil {
		if d <= 0 {
			return time.Time{}, ErrInPast
		}
		return now.Add(d), nil
	}

	if clock, err := time.ParseInLocation("15:04", input, now.Location()); err == nil {
		at := time.Date(now.Year(), now.Month(), now.Day(), clock.Hour(), clock.Minute(), 0, 0, now.Location())
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		return at, nil
	}

	if p != nil {
		if at, err := p.ParseDate(input, now); err == nil && at != nil {
			if !at.After(now) {
				return time.Time{}, ErrInPast
			}
			return *at, nil
		}
	}
	return time.Time{}, ErrUnparsable
}

type timer struct {
	at    time.Time
	timer *time.Timer
}

// Scheduler keeps at most one pending sleep per guild.
type Scheduler struct {
	fire func(ctx context.Context, guildID snowflake.ID)
	ctx  context.Context

	mu     sync.Mutex
	timers map[snowflake.ID]*timer
}

// NewScheduler calls fire when a guild's deadline passes.
func NewScheduler(ctx context.Context, fire func(ctx context.Context, guildID snowflake.ID)) *Scheduler {
	return &Scheduler{
		fire:   fire,
		ctx:    ctx,
		timers: make(map[snowflake.ID]*timer),
	}
}

// Schedule replaces any pending sleep for guildID.
func (s *Scheduler) Schedule(guildID snowflake.ID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.timers[guildID]; ok {
		old.timer.Stop()
	}
	t := &timer{at: at}
	t.timer = time.AfterFunc(time.Until(at), func() { s.run(guildID, t) })
	s.timers[guildID] = t
	sys.LogVoice(sys.MsgVoiceSleepScheduled, guildID, at.Format(time.RFC3339))
}

func (s *Scheduler) run(guildID snowflake.ID, t *timer) {
	s.mu.Lock()
	if s.timers[guildID] != t {
		s.mu.Unlock()
		return
	}
	delete(s.timers, guildID)
	s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	sys.LogVoice(sys.MsgVoiceSleepFired, guildID)
	s.fire(s.ctx, guildID)
}

// Cancel drops the guild's pending sleep and reports whether there was one.
func (s *Scheduler) Cancel(guildID snowflake.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[guildID]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(s.timers, guildID)
	return true
}

func (s *Scheduler) Pending(guildID snowflake.ID) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[guildID]
	if !ok {
		return time.Time{}, false
	}
	return t.at, true
}

// Stop cancels every pending sleep.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.timer.Stop()
		delete(s.timers, id)
	}
}
