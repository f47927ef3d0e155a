package home

import (
	"context"

	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/minstrel/proc/conn"
	"github.com/leeineian/minstrel/sys"
)

// establish connects the invoking user's guild and binds the invoking channel
// for notices.
func establish(ctx context.Context, event *events.ApplicationCommandInteractionCreate) (conn.Outcome, error) {
	return app.Supervisor.Establish(ctx, *event.GuildID(), event.User().ID, event.Channel().ID())
}

func handleVoiceConnect(event *events.ApplicationCommandInteractionCreate) {
	sys.Defer(event, false)

	outcome, err := establish(sys.AppContext, event)
	if err != nil {
		sys.LogVoice(sys.MsgGenericError, err)
		sys.EditResponse(event, Remedy(err))
		return
	}
	if outcome == conn.AlreadyConnected {
		sys.EditResponse(event, sys.MsgUserAlreadyConnected)
		return
	}
	sys.EditResponse(event, sys.MsgUserConnected)
}

func handleVoiceDisconnect(event *events.ApplicationCommandInteractionCreate) {
	sys.Defer(event, false)

	gid := *event.GuildID()
	if app.Sleep != nil {
		app.Sleep.Cancel(gid)
	}
	app.Supervisor.Terminate(sys.AppContext, gid)
	sys.EditResponse(event, sys.MsgUserDisconnected)
}
