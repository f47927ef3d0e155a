package home

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/minstrel/sys"
)

func init() {
	minZero := 0

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "voice",
		Description: "Voice playback",
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "connect",
				Description: "Join your voice channel",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "disconnect",
				Description: "Stop playback and leave voice",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "play",
				Description: "Play a song right away, cutting the current one",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "query",
						Description:  "Link, video ID, stored title or search text",
						Required:     true,
						Autocomplete: true,
					},
					discord.ApplicationCommandOptionInt{
						Name:        "start",
						Description: "Start offset in seconds",
						MinValue:    &minZero,
					},
					discord.ApplicationCommandOptionInt{
						Name:        "length",
						Description: "How many seconds to play",
						MinValue:    &minZero,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "enqueue",
				Description: "Add a song to the end of the queue",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "query",
						Description:  "Link, video ID, stored title or search text",
						Required:     true,
						Autocomplete: true,
					},
					discord.ApplicationCommandOptionBool{
						Name:        "play_now",
						Description: "Start the queue if nothing is playing",
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "playqueue",
				Description: "Start playing the queue",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "queue",
				Description: "Show the queue",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "skip",
				Description: "Skip the current song",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "stat",
				Description: "Show playback status",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "keywords",
				Description: "Set words that skip the current song when posted in this channel",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "words",
						Description: "Comma separated; leave empty to clear",
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "sleep",
				Description: "Disconnect at a given time",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "when",
						Description: "e.g. 'in 30 minutes', '23:00', '45m' or 'cancel'",
						Required:    true,
					},
				},
			},
		},
	}, func(event *events.ApplicationCommandInteractionCreate) {
		data := event.SlashCommandInteractionData()
		if data.SubCommandName == nil {
			return
		}
		if event.GuildID() == nil || app == nil {
			sys.Respond(event, sys.ErrUserNotInGuild, true)
			return
		}

		switch *data.SubCommandName {
		case "connect":
			handleVoiceConnect(event)
		case "disconnect":
			handleVoiceDisconnect(event)
		case "play":
			handleVoicePlay(event, data)
		case "enqueue":
			handleVoiceEnqueue(event, data)
		case "playqueue":
			handleVoicePlayQueue(event)
		case "queue":
			handleVoiceQueue(event)
		case "skip":
			handleVoiceSkip(event)
		case "stat":
			handleVoiceStat(event)
		case "keywords":
			handleVoiceKeywords(event, data)
		case "sleep":
			handleVoiceSleep(event, data)
		}
	})

	sys.RegisterAutocompleteHandler("voice", handleVoiceAutocomplete)
}
