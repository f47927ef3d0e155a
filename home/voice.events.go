package home

import (
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/minstrel/sys"
)

func init() {
	sys.RegisterVoiceStateUpdateHandler(onBotVoiceState)
}

// onBotVoiceState follows the bot's own voice state. Losing the channel while
// a connection is open means someone disconnected the bot.
func onBotVoiceState(event *events.GuildVoiceStateUpdate) {
	if app == nil || event.VoiceState.UserID != event.Client().ID() {
		return
	}
	gid := event.VoiceState.GuildID

	if event.VoiceState.ChannelID == nil {
		if !app.Voice.Connected(gid) {
			return
		}
		sys.LogVoice(sys.MsgVoiceKicked, gid)
		if app.Sleep != nil {
			app.Sleep.Cancel(gid)
		}
		app.Supervisor.Terminate(sys.AppContext, gid)
		return
	}

	app.Voice.Moved(gid, *event.VoiceState.ChannelID)
	app.Supervisor.Moved(gid, *event.VoiceState.ChannelID)
}
