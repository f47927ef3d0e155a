package home

import (
	"fmt"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/minstrel/proc/guild"
	"github.com/leeineian/minstrel/proc/pipeline"
	"github.com/leeineian/minstrel/sys"
)

// Notifier posts playback events to each guild's bound text channel.
type Notifier struct {
	registry *guild.Registry
	send     func(channelID snowflake.ID, content string) error
}

func NewNotifier(client *bot.Client, registry *guild.Registry) *Notifier {
	return &Notifier{
		registry: registry,
		send: func(channelID snowflake.ID, content string) error {
			return sys.SendChannel(client, channelID, content)
		},
	}
}

func (n *Notifier) post(gid snowflake.ID, content string) {
	st, ok := n.registry.Lookup(gid)
	if !ok {
		return
	}
	_, text := st.Channels()
	if text == 0 {
		return
	}
	if err := n.send(text, content); err != nil {
		sys.LogVoice(sys.MsgVoiceNotifyFail, text, err)
	}
}

func (n *Notifier) NowPlaying(gid snowflake.ID, audio *pipeline.Audio) {
	n.post(gid, nowPlayingMessage(audio))
}

func (n *Notifier) AcquireFailed(gid snowflake.ID, entry guild.Entry, err error) {
	n.post(gid, fmt.Sprintf(sys.MsgUserAcquireFailNotice, entry.ID, failureReason(err)))
}

func (n *Notifier) QueueFinished(gid snowflake.ID, failures int, last guild.Entry, err error) {
	if failures == 1 {
		n.post(gid, fmt.Sprintf(sys.MsgUserAcquireFailNotice, last.ID, failureReason(err)))
		return
	}
	n.post(gid, fmt.Sprintf(sys.MsgUserQueueFinished, failures))
}

func (n *Notifier) PlaybackStalled(gid snowflake.ID, entry guild.Entry, _ error) {
	n.post(gid, fmt.Sprintf(sys.MsgUserPlaybackStalled, entry.ID))
}

func failureReason(err error) string {
	if k := pipeline.KindOf(err); k != 0 {
		return k.String()
	}
	return Remedy(err)
}
