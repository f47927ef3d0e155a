package home

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/minstrel/proc/guild"
	"github.com/leeineian/minstrel/proc/player"
	"github.com/leeineian/minstrel/sys"
)

func entryFromOptions(data discord.SlashCommandInteractionData, id string) guild.Entry {
	e := guild.Entry{ID: id}
	if app.Config != nil {
		e.Start = app.Config.Player.DefaultStart
		e.Length = app.Config.Player.DefaultLength
	}
	if v, ok := data.OptInt("start"); ok {
		e.Start = v
	}
	if v, ok := data.OptInt("length"); ok {
		e.Length = v
	}
	return e
}

func handleVoicePlay(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	query, _ := data.OptString("query")
	sys.Defer(event, false)

	ctx := sys.AppContext
	gid := *event.GuildID()

	if _, err := establish(ctx, event); err != nil {
		sys.EditResponse(event, Remedy(err))
		return
	}

	titles, searcher := app.sources()
	id, err := resolveQuery(ctx, query, titles, searcher)
	if err != nil {
		sys.LogVoice(sys.MsgGenericError, err)
		sys.EditResponse(event, Remedy(err))
		return
	}

	if _, err := app.Player.PlayNext(gid, entryFromOptions(data, id)); err != nil {
		sys.EditResponse(event, Remedy(err))
		return
	}
	sys.EditResponse(event, fmt.Sprintf(sys.MsgUserPlayingNext, id))
}

func handleVoiceEnqueue(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	query, _ := data.OptString("query")
	playNow, _ := data.OptBool("play_now")
	sys.Defer(event, false)

	ctx := sys.AppContext
	gid := *event.GuildID()

	titles, searcher := app.sources()
	id, err := resolveQuery(ctx, query, titles, searcher)
	if err != nil {
		sys.EditResponse(event, Remedy(err))
		return
	}

	pos := app.Registry.Get(gid).Enqueue(entryFromOptions(data, id))
	reply := fmt.Sprintf(sys.MsgUserQueued, id, pos)

	if playNow {
		if err := startQueue(ctx, event); err != nil &&
			!errors.Is(err, player.ErrAlreadyPlaying) && !errors.Is(err, player.ErrBusy) {
			reply += "\n" + Remedy(err)
		}
	}
	sys.EditResponse(event, reply)
}

func handleVoicePlayQueue(event *events.ApplicationCommandInteractionCreate) {
	sys.Defer(event, false)

	if err := startQueue(sys.AppContext, event); err != nil {
		sys.EditResponse(event, Remedy(err))
		return
	}
	sys.EditResponse(event, sys.MsgUserStarting)
}

func startQueue(ctx context.Context, event *events.ApplicationCommandInteractionCreate) error {
	if _, err := establish(ctx, event); err != nil {
		return err
	}
	return app.Player.RequestAdvance(*event.GuildID())
}

func handleVoiceAutocomplete(event *events.AutocompleteInteractionCreate) {
	focused := event.Data.Focused()
	if focused.Name != "query" {
		_ = event.AutocompleteResult(nil)
		return
	}
	query := focused.String()

	ctx, cancel := context.WithTimeout(sys.AppContext, 2500*time.Millisecond)
	defer cancel()

	var choices []discord.AutocompleteChoice
	if app != nil && app.Titles != nil {
		if names, err := app.Titles.Suggest(ctx, query, 10); err == nil {
			for _, n := range names {
				choices = append(choices, discord.AutocompleteChoiceString{
					Name:  choiceText("★ " + n),
					Value: choiceText(n),
				})
			}
		}
	}

	if app != nil && app.Search != nil && len([]rune(query)) >= 3 {
		if results, err := app.Search.Search(ctx, query); err == nil {
			for _, r := range results {
				if len(choices) >= 25 {
					break
				}
				choices = append(choices, discord.AutocompleteChoiceString{
					Name:  choiceText(r.Label()),
					Value: r.ID,
				})
			}
		}
	}
	_ = event.AutocompleteResult(choices)
}

// choiceText fits s into Discord's 100 character choice limit.
func choiceText(s string) string {
	r := []rune(s)
	if len(r) <= 100 {
		return s
	}
	return string(r[:97]) + "..."
}
