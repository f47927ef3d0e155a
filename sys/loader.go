package sys

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/godave/golibdave"
	"github.com/disgoorg/snowflake/v2"
)

// SafeGo runs f in a new goroutine and logs instead of crashing on panic.
func SafeGo(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				LogError(MsgLoaderPanicRecovered, r)
				fmt.Printf("%s\n", debug.Stack())
			}
		}()
		f()
	}()
}

// --- Global State & Setup ---

var AppContext = context.Background()
var StartupTime = time.Now()
var daemonsOnce sync.Once

var (
	commands                 []discord.ApplicationCommandCreate
	commandHandlers          = map[string]func(event *events.ApplicationCommandInteractionCreate){}
	autocompleteHandlers     = map[string]func(event *events.AutocompleteInteractionCreate){}
	voiceStateUpdateHandlers []func(event *events.GuildVoiceStateUpdate)
	guildMessageHandlers     []func(event *events.GuildMessageCreate)
	onClientReadyCallbacks   []func(ctx context.Context, client *bot.Client)
)

func SetAppContext(ctx context.Context) {
	AppContext = ctx
}

// --- Bot Initialization ---

// CreateClient builds the disgo client with the intents, caches and DAVE
// voice sessions playback needs. The gateway is not opened.
func CreateClient(cfg *Config) (*bot.Client, error) {
	return disgo.New(cfg.Discord.Token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMessages,
				gateway.IntentMessageContent,
				gateway.IntentGuildVoiceStates,
			),
			gateway.WithPresenceOpts(
				gateway.WithPlayingActivity("/voice play"),
				gateway.WithOnlineStatus(discord.OnlineStatusOnline),
			),
		),
		bot.WithCacheConfigOpts(
			cache.WithCaches(cache.FlagGuilds, cache.FlagChannels, cache.FlagVoiceStates),
		),
		bot.WithVoiceManagerConfigOpts(
			voice.WithDaveSessionCreateFunc(golibdave.NewSession),
		),
		bot.WithEventListenerFunc(onApplicationCommandInteraction),
		bot.WithEventListenerFunc(onAutocompleteInteraction),
		bot.WithEventListenerFunc(onVoiceStateUpdate),
		bot.WithEventListenerFunc(onGuildMessageCreate),
		bot.WithEventListenerFunc(onReady),
		bot.WithLogger(slog.Default()),
		bot.WithRestClientConfigOpts(
			rest.WithHTTPClient(&http.Client{
				Timeout: 60 * time.Second,
			}),
		),
	)
}

// --- Command & Handler Registration ---

func RegisterCommand(cmd discord.ApplicationCommandCreate, handler func(event *events.ApplicationCommandInteractionCreate)) {
	commands = append(commands, cmd)
	commandHandlers[cmd.CommandName()] = handler
}

func RegisterAutocompleteHandler(cmdName string, handler func(event *events.AutocompleteInteractionCreate)) {
	autocompleteHandlers[cmdName] = handler
}

func RegisterVoiceStateUpdateHandler(handler func(event *events.GuildVoiceStateUpdate)) {
	voiceStateUpdateHandlers = append(voiceStateUpdateHandlers, handler)
}

func RegisterGuildMessageHandler(handler func(event *events.GuildMessageCreate)) {
	guildMessageHandlers = append(guildMessageHandlers, handler)
}

func OnClientReady(cb func(ctx context.Context, client *bot.Client)) {
	onClientReadyCallbacks = append(onClientReadyCallbacks, cb)
}

// Commands returns the registered command definitions.
func Commands() []discord.ApplicationCommandCreate {
	return commands
}

// --- Command Syncing Logic ---

func calculateCommandHash(cmds []discord.ApplicationCommandCreate) string {
	data, err := json.Marshal(cmds)
	if err != nil {
		return ""
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// RegisterCommands pushes the command set to one guild (development) or
// globally. Unchanged sets are skipped unless force is true.
func RegisterCommands(ctx context.Context, client *bot.Client, guildIDStr string, force bool) error {
	mode := "global"
	if guildIDStr != "" {
		mode = "guild:" + guildIDStr
	}

	currentHash := calculateCommandHash(commands)
	lastHash, _ := GetBotConfig(ctx, "last_cmd_hash")
	lastMode, _ := GetBotConfig(ctx, "last_reg_mode")

	if !force && currentHash != "" && currentHash == lastHash && mode == lastMode {
		LogLoader(MsgLoaderUpToDate, currentHash[:8])
		return nil
	}

	LogLoader(MsgLoaderSyncCommands, len(commands), strings.ToUpper(mode))

	var created []discord.ApplicationCommand
	var err error
	if guildIDStr == "" {
		created, err = client.Rest.SetGlobalCommands(client.ApplicationID, commands)
	} else {
		guildID, perr := snowflake.Parse(guildIDStr)
		if perr != nil {
			return fmt.Errorf("invalid guild id: %w", perr)
		}
		created, err = client.Rest.SetGuildCommands(client.ApplicationID, guildID, commands)
		if err == nil && lastMode != mode {
			if _, cerr := client.Rest.SetGlobalCommands(client.ApplicationID, []discord.ApplicationCommandCreate{}); cerr != nil {
				LogWarn(MsgLoaderGlobalClearFail, cerr)
			}
		}
	}
	if err != nil {
		return fmt.Errorf(MsgLoaderRegisterFail, err)
	}
	for _, cmd := range created {
		LogLoader(MsgLoaderRegistered, cmd.Name())
	}

	_ = SetBotConfig(ctx, "last_reg_mode", mode)
	if currentHash != "" {
		_ = SetBotConfig(ctx, "last_cmd_hash", currentHash)
	}
	return nil
}

// --- Event Handlers ---

func onReady(event *events.Ready) {
	client := event.Client()
	botUser := event.User

	LogInfo(MsgBotReady, botUser.Username, botUser.ID.String(), os.Getpid(), time.Since(StartupTime).Milliseconds())

	for _, cb := range onClientReadyCallbacks {
		cb(AppContext, client)
	}
	StartDaemons(AppContext)
}

func onApplicationCommandInteraction(event *events.ApplicationCommandInteractionCreate) {
	if h, ok := commandHandlers[event.Data.CommandName()]; ok {
		SafeGo(func() { h(event) })
	}
}

func onAutocompleteInteraction(event *events.AutocompleteInteractionCreate) {
	if h, ok := autocompleteHandlers[event.Data.CommandName]; ok {
		SafeGo(func() { h(event) })
	}
}

func onVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	for _, h := range voiceStateUpdateHandlers {
		SafeGo(func() { h(event) })
	}
}

func onGuildMessageCreate(event *events.GuildMessageCreate) {
	if event.Message.Author.Bot {
		return
	}
	for _, h := range guildMessageHandlers {
		SafeGo(func() { h(event) })
	}
}

// --- Daemon System ---

type daemonEntry struct {
	starter func(ctx context.Context) (bool, func(), func())
	logger  func(format string, v ...any)
}

var registeredDaemons []daemonEntry
var activeShutdownHooks []func()
var activeShutdownMu sync.Mutex

// RegisterDaemon registers a background daemon. The starter reports whether
// the daemon is enabled and returns its run loop and shutdown hook.
func RegisterDaemon(logger func(format string, v ...any), starter func(ctx context.Context) (bool, func(), func())) {
	registeredDaemons = append(registeredDaemons, daemonEntry{starter: starter, logger: logger})
}

// StartDaemons starts every enabled daemon once per process.
func StartDaemons(ctx context.Context) {
	daemonsOnce.Do(func() {
		for _, daemon := range registeredDaemons {
			ok, run, shutdown := daemon.starter(ctx)
			if !ok || run == nil {
				continue
			}
			if shutdown != nil {
				activeShutdownMu.Lock()
				activeShutdownHooks = append(activeShutdownHooks, shutdown)
				activeShutdownMu.Unlock()
			}
			daemon.logger(MsgDaemonStarting)
			SafeGo(run)
		}
	})
}

// ShutdownDaemons runs all shutdown hooks in parallel and waits for them.
func ShutdownDaemons() {
	activeShutdownMu.Lock()
	defer activeShutdownMu.Unlock()

	var wg sync.WaitGroup
	for _, shutdown := range activeShutdownHooks {
		wg.Add(1)
		go func(s func()) {
			defer wg.Done()
			s()
		}(shutdown)
	}
	wg.Wait()
	activeShutdownHooks = nil
}
