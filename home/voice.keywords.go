package home

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/minstrel/sys"
)

func splitKeywords(raw string) []string {
	var out []string
	for _, w := range strings.Split(raw, ",") {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func handleVoiceKeywords(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	raw, _ := data.OptString("words")
	st := app.Registry.Get(*event.GuildID())

	st.SetTextChannel(event.Channel().ID())
	st.SetSkipKeywords(splitKeywords(raw))

	words := st.SkipKeywords()
	if len(words) == 0 {
		sys.Respond(event, sys.MsgUserKeywordsCleared, false)
		return
	}
	sys.Respond(event, fmt.Sprintf(sys.MsgUserKeywordsSet, strings.Join(words, ", ")), false)
}

// onKeywordMessage skips the current track when a message in the bound text
// channel contains a skip keyword.
func onKeywordMessage(event *events.GuildMessageCreate) {
	if app == nil {
		return
	}
	st, ok := app.Registry.Lookup(event.GuildID)
	if !ok {
		return
	}
	word, ok := st.MatchesSkipKeyword(event.ChannelID, event.Message.Content)
	if !ok {
		return
	}
	if app.Player.Skip(event.GuildID) {
		sys.LogVoice(sys.MsgVoiceKeywordSkip, word, event.GuildID)
	}
}

func init() {
	sys.RegisterGuildMessageHandler(onKeywordMessage)
}
