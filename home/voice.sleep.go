package home

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/dustin/go-humanize"
	"github.com/leeineian/minstrel/proc/sleep"
	"github.com/leeineian/minstrel/sys"
)

func handleVoiceSleep(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	when, _ := data.OptString("when")
	gid := *event.GuildID()

	if strings.EqualFold(strings.TrimSpace(when), "cancel") {
		app.Sleep.Cancel(gid)
		sys.Respond(event, sys.MsgUserSleepCancelled, false)
		return
	}

	at, err := sleep.Parse(when, time.Now())
	if err != nil {
		sys.Respond(event, Remedy(err), true)
		return
	}
	app.Sleep.Schedule(gid, at)
	sys.Respond(event, fmt.Sprintf(sys.MsgUserSleepSet, humanize.Time(at)), false)
}

// sleepFired disconnects the guild and tells its text channel.
func sleepFired(ctx context.Context, gid snowflake.ID) {
	var text snowflake.ID
	if st, ok := app.Registry.Lookup(gid); ok {
		_, text = st.Channels()
	}
	app.Supervisor.Terminate(ctx, gid)
	if text != 0 && app.Client != nil {
		if err := sys.SendChannel(app.Client, text, sys.MsgUserDisconnected); err != nil {
			sys.LogVoice(sys.MsgVoiceNotifyFail, text, err)
		}
	}
}

// NewSleepScheduler returns the scheduler the sleep command uses.
func NewSleepScheduler(ctx context.Context) *sleep.Scheduler {
	return sleep.NewScheduler(ctx, sleepFired)
}
