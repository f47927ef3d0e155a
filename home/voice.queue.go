package home

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/dustin/go-humanize"
	"github.com/leeineian/minstrel/sys"
)

func handleVoiceQueue(event *events.ApplicationCommandInteractionCreate) {
	st := app.Registry.Get(*event.GuildID())

	// Never wait on a guild that is mid-update; just say so.
	pending, nowPlaying, ok := st.TryPending()
	if !ok {
		sys.Respond(event, sys.ErrUserBusy, true)
		return
	}
	sys.Respond(event, queueMessage(nowPlaying, pending), false)
}

func handleVoiceSkip(event *events.ApplicationCommandInteractionCreate) {
	if !app.Player.Skip(*event.GuildID()) {
		sys.Respond(event, sys.MsgUserNothingPlaying, true)
		return
	}
	sys.Respond(event, sys.MsgUserSkipped, false)
}

func handleVoiceStat(event *events.ApplicationCommandInteractionCreate) {
	gid := *event.GuildID()
	snap := app.Registry.Get(gid).Snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "Voice: %s\n", channelMention(snap.VoiceChannel))
	fmt.Fprintf(&b, "Text: %s\n", channelMention(snap.TextChannel))
	fmt.Fprintf(&b, "State: %s", snap.Phase)
	if snap.NowPlaying != "" {
		fmt.Fprintf(&b, " (**%s** at %s)", snap.NowPlaying, clock(snap.Position))
	}
	fmt.Fprintf(&b, "\nQueued: %d\n", len(snap.Pending))
	if len(snap.SkipKeywords) > 0 {
		fmt.Fprintf(&b, "Skip keywords: %s\n", strings.Join(snap.SkipKeywords, ", "))
	}
	if app.Sleep != nil {
		if at, ok := app.Sleep.Pending(gid); ok {
			fmt.Fprintf(&b, "Sleeping %s\n", humanize.Time(at))
		}
	}
	if app.Pipeline != nil {
		if entries, size, err := app.Pipeline.Cache().Stats(); err == nil {
			fmt.Fprintf(&b, "Cache: %d tracks, %s\n", entries, humanize.Bytes(uint64(size)))
		}
	}
	if app.Client != nil && app.Client.Gateway != nil {
		if ping := app.Client.Gateway.Latency(); ping > 0 {
			fmt.Fprintf(&b, "Gateway: %dms", ping.Milliseconds())
		}
	}
	sys.Respond(event, strings.TrimRight(b.String(), "\n"), false)
}

func channelMention(id snowflake.ID) string {
	if id == 0 {
		return "not bound"
	}
	return "<#" + id.String() + ">"
}
