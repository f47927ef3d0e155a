// Package presence rotates the bot's activity text through playback facts.
package presence

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/gateway"
	"github.com/dustin/go-humanize"
	"github.com/leeineian/minstrel/proc/guild"
	"github.com/leeineian/minstrel/sys"
)

// Setter publishes one activity text.
type Setter func(ctx context.Context, text string) error

// ClientSetter sets a "Listening to" activity on the gateway.
func ClientSetter(client *bot.Client) Setter {
	return func(ctx context.Context, text string) error {
		return client.SetPresence(ctx,
			gateway.WithOnlineStatus(discord.OnlineStatusOnline),
			gateway.WithListeningActivity(text),
		)
	}
}

type generator func(snaps []guild.Snapshot) string

// Rotator picks a different line on every tick.
type Rotator struct {
	registry  *guild.Registry
	set       Setter
	startedAt time.Time
	last      string
	rnd       *rand.Rand

	generators []generator
}

func New(registry *guild.Registry, set Setter, startedAt time.Time) *Rotator {
	r := &Rotator{
		registry:  registry,
		set:       set,
		startedAt: startedAt,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	r.generators = []generator{nowPlaying, guildCount, queuedCount, r.uptime}
	return r
}

func (r *Rotator) interval() time.Duration {
	return time.Duration(15+r.rnd.Intn(46)) * time.Second
}

// Next returns the line to show, avoiding an immediate repeat when there is
// any alternative.
func (r *Rotator) Next() string {
	snaps := r.registry.Snapshots()

	var available []string
	for _, gen := range r.generators {
		if text := gen(snaps); text != "" {
			available = append(available, text)
		}
	}
	if len(available) == 0 {
		available = append(available, "/voice play")
	}

	var choices []string
	for _, s := range available {
		if s != r.last {
			choices = append(choices, s)
		}
	}
	if len(choices) == 0 {
		choices = available
	}
	r.last = choices[r.rnd.Intn(len(choices))]
	return r.last
}

func (r *Rotator) update(ctx context.Context, next time.Duration) {
	text := r.Next()
	if err := r.set(ctx, text); err != nil {
		sys.LogWarn(sys.MsgPresenceFail, err)
		return
	}
	sys.LogDebug(sys.MsgPresenceRotated, text, next)
}

// Daemon returns a starter for sys.RegisterDaemon.
func (r *Rotator) Daemon() func(ctx context.Context) (bool, func(), func()) {
	return func(ctx context.Context) (bool, func(), func()) {
		run := func() {
			for {
				next := r.interval()
				r.update(ctx, next)
				select {
				case <-time.After(next):
				case <-ctx.Done():
					return
				}
			}
		}
		return true, run, nil
	}
}

func nowPlaying(snaps []guild.Snapshot) string {
	for _, s := range snaps {
		if s.NowPlaying != "" {
			return s.NowPlaying
		}
	}
	return ""
}

func guildCount(snaps []guild.Snapshot) string {
	n := 0
	for _, s := range snaps {
		if s.VoiceChannel != 0 {
			n++
		}
	}
	if n == 0 {
		return ""
	}
	if n == 1 {
		return "music in 1 server"
	}
	return fmt.Sprintf("music in %d servers", n)
}

func queuedCount(snaps []guild.Snapshot) string {
	n := 0
	for _, s := range snaps {
		n += len(s.Pending)
	}
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%s queued tracks", humanize.Comma(int64(n)))
}

func (r *Rotator) uptime([]guild.Snapshot) string {
	return "up since " + humanize.Time(r.startedAt)
}
