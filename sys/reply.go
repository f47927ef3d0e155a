package sys

import (
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
)

// Discord rejects message content above this many characters.
const MaxMessageLength = 2000

// Truncate shortens s to MaxMessageLength runes, marking the cut.
func Truncate(s string) string {
	r := []rune(s)
	if len(r) <= MaxMessageLength {
		return s
	}
	return string(r[:MaxMessageLength-1]) + "…"
}

// Respond answers an interaction immediately.
func Respond(event *events.ApplicationCommandInteractionCreate, content string, ephemeral bool) {
	_ = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(Truncate(content)).
		SetEphemeral(ephemeral).
		Build())
}

// Defer acknowledges an interaction whose reply needs slow work first.
func Defer(event *events.ApplicationCommandInteractionCreate, ephemeral bool) {
	_ = event.DeferCreateMessage(ephemeral)
}

// EditResponse replaces the content of a deferred or sent interaction reply.
func EditResponse(event *events.ApplicationCommandInteractionCreate, content string) {
	_, _ = event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(),
		discord.NewMessageUpdateBuilder().SetContent(Truncate(content)).Build())
}

// SendChannel posts a plain message to a text channel.
func SendChannel(client *bot.Client, channelID snowflake.ID, content string) error {
	_, err := client.Rest.CreateMessage(channelID, discord.NewMessageCreateBuilder().
		SetContent(Truncate(content)).
		Build())
	return err
}
