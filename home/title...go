package home

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/leeineian/minstrel/proc/resolver"
	"github.com/leeineian/minstrel/proc/titles"
	"github.com/leeineian/minstrel/sys"
)

func init() {
	managePerm := discord.PermissionManageGuild

	titleOption := func(name, desc string) discord.ApplicationCommandOptionString {
		return discord.ApplicationCommandOptionString{
			Name:         name,
			Description:  desc,
			Required:     true,
			Autocomplete: true,
			MaxLength:    intPtr(100),
		}
	}

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "title",
		Description:              "Stored song titles",
		DefaultMemberPermissions: omit.New(&managePerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "add",
				Description: "Store a song under a title",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "url",
						Description: "Link or video ID",
						Required:    true,
					},
					discord.ApplicationCommandOptionString{
						Name:        "title",
						Description: "Title to play it by",
						Required:    true,
						MaxLength:   intPtr(100),
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "alias",
				Description: "Add another title for a stored song",
				Options: []discord.ApplicationCommandOption{
					titleOption("title", "Existing title"),
					discord.ApplicationCommandOptionString{
						Name:        "alias",
						Description: "New title",
						Required:    true,
						MaxLength:   intPtr(100),
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "remove",
				Description: "Forget a title",
				Options: []discord.ApplicationCommandOption{
					titleOption("title", "Title to remove"),
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "list",
				Description: "List stored titles",
			},
		},
	}, func(event *events.ApplicationCommandInteractionCreate) {
		data := event.SlashCommandInteractionData()
		if data.SubCommandName == nil {
			return
		}
		if app == nil || app.Titles == nil {
			sys.Respond(event, sys.ErrUserGeneric, true)
			return
		}

		ctx, cancel := context.WithTimeout(sys.AppContext, 10*time.Second)
		defer cancel()

		switch *data.SubCommandName {
		case "add":
			handleTitleAdd(ctx, event, data)
		case "alias":
			handleTitleAlias(ctx, event, data)
		case "remove":
			handleTitleRemove(ctx, event, data)
		case "list":
			handleTitleList(ctx, event)
		}
	})

	sys.RegisterAutocompleteHandler("title", handleTitleAutocomplete)
}

func intPtr(v int) *int { return &v }

// respondTitleError logs only failures the user cannot fix.
func respondTitleError(event *events.ApplicationCommandInteractionCreate, err error) {
	msg := Remedy(err)
	if msg == sys.ErrUserGeneric {
		sys.LogDatabase(sys.MsgGenericError, err)
	}
	sys.Respond(event, msg, true)
}

func handleTitleAdd(ctx context.Context, event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	raw, _ := data.OptString("url")
	title, _ := data.OptString("title")

	id, ok := resolver.Resolve(raw)
	if !ok {
		sys.Respond(event, sys.ErrUserInvalidInput, true)
		return
	}

	res, err := app.Titles.Add(ctx, id, title)
	if err != nil {
		respondTitleError(event, err)
		return
	}
	title = strings.TrimSpace(title)
	if res == titles.ExistUrl {
		sys.Respond(event, fmt.Sprintf(sys.MsgUserTitleExistURL, title), false)
		return
	}
	sys.Respond(event, fmt.Sprintf(sys.MsgUserTitleNewURL, title), false)
}

func handleTitleAlias(ctx context.Context, event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	title, _ := data.OptString("title")
	alias, _ := data.OptString("alias")

	if err := app.Titles.AddAlias(ctx, title, alias); err != nil {
		respondTitleError(event, err)
		return
	}
	sys.Respond(event, fmt.Sprintf(sys.MsgUserTitleAliasAdded, strings.TrimSpace(alias), strings.TrimSpace(title)), false)
}

func handleTitleRemove(ctx context.Context, event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	title, _ := data.OptString("title")

	if err := app.Titles.Remove(ctx, title); err != nil {
		respondTitleError(event, err)
		return
	}
	sys.Respond(event, fmt.Sprintf(sys.MsgUserTitleRemoved, strings.TrimSpace(title)), false)
}

func handleTitleList(ctx context.Context, event *events.ApplicationCommandInteractionCreate) {
	list, err := app.Titles.List(ctx)
	if err != nil {
		sys.LogDatabase(sys.MsgGenericError, err)
		sys.Respond(event, sys.ErrUserGeneric, true)
		return
	}
	if len(list) == 0 {
		sys.Respond(event, "No titles stored yet.", true)
		return
	}

	var b strings.Builder
	for _, t := range list {
		fmt.Fprintf(&b, "`%s` → %s\n", t.Title, t.SourceID)
	}
	sys.Respond(event, b.String(), true)
}

func handleTitleAutocomplete(event *events.AutocompleteInteractionCreate) {
	focused := event.Data.Focused()
	if app == nil || app.Titles == nil || focused.Name != "title" {
		_ = event.AutocompleteResult(nil)
		return
	}

	ctx, cancel := context.WithTimeout(sys.AppContext, 2*time.Second)
	defer cancel()

	names, err := app.Titles.Suggest(ctx, focused.String(), 25)
	if err != nil {
		_ = event.AutocompleteResult(nil)
		return
	}
	choices := make([]discord.AutocompleteChoice, 0, len(names))
	for _, n := range names {
		choices = append(choices, discord.AutocompleteChoiceString{Name: choiceText(n), Value: choiceText(n)})
	}
	_ = event.AutocompleteResult(choices)
}
