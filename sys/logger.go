package sys

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

var (
	infoColor     = color.New(color.FgHiBlack)
	warnColor     = color.New(color.FgHiYellow)
	errorColor    = color.New(color.FgHiRed)
	fatalColor    = color.New(color.FgHiRed, color.Bold)
	debugColor    = color.New(color.FgHiBlue)
	databaseColor = color.New(color.FgHiBlack)
	voiceColor    = color.New(color.FgHiMagenta)
	pipelineColor = color.New(color.FgHiCyan)
	loaderColor   = color.New(color.FgHiGreen)
	httpColor     = color.New(color.FgHiBlue)

	IsSilent  = false
	LogToFile = false

	Logger *slog.Logger

	logFile *os.File
	logMu   sync.Mutex
)

func init() {
	InitLogger(false, false)
}

// InitLogger initializes the global structured logger
func InitLogger(silent bool, saveToFile bool) {
	logMu.Lock()
	defer logMu.Unlock()

	IsSilent = silent
	LogToFile = saveToFile
	level := slog.LevelInfo
	if strings.ToLower(os.Getenv("DEBUG")) == "true" {
		level = slog.LevelDebug
	}

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writer io.Writer = os.Stdout
	if LogToFile {
		exePath, exeErr := os.Executable()
		logName := "minstrel.log"
		if exeErr == nil {
			logName = filepath.Base(exePath) + ".log"
		}

		var err error
		logFile, err = os.OpenFile(logName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", logName, err)
		} else {
			writer = io.MultiWriter(os.Stdout, logFile)
		}
	}

	color.NoColor = false

	handler := NewBotLogHandler(writer, &BotLogHandlerOptions{
		Silent: IsSilent,
		Level:  level,
	})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func SetSilentMode(silent bool) {
	InitLogger(silent, LogToFile)
}

func LogInfo(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...))
}

func LogWarn(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...))
}

func LogError(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...))
}

func LogDebug(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...))
}

// LogFatal logs at the custom fatal level and exits.
func LogFatal(format string, v ...any) {
	slog.Log(context.Background(), slog.LevelError+4, fmt.Sprintf(format, v...))
	os.Exit(1)
}

func LogDatabase(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "database"))
}

func LogVoice(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "voice"))
}

func LogPipeline(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "pipeline"))
}

func LogLoader(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "loader"))
}

func LogHTTP(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "http"))
}

// --- Custom Slog Handler ---

type BotLogHandlerOptions struct {
	Silent bool
	Level  slog.Leveler
}

type BotLogHandler struct {
	w    io.Writer
	opts *BotLogHandlerOptions
	mu   *sync.Mutex
}

func NewBotLogHandler(w io.Writer, opts *BotLogHandlerOptions) *BotLogHandler {
	if opts == nil {
		opts = &BotLogHandlerOptions{Level: slog.LevelInfo}
	}
	return &BotLogHandler{
		w:    w,
		opts: opts,
		mu:   &sync.Mutex{},
	}
}

func (h *BotLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.opts.Silent {
		return false
	}
	return level >= h.opts.Level.Level()
}

func (h *BotLogHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.opts.Silent {
		return nil
	}

	levelStr, levelColor := levelTag(r.Level)

	component := ""
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			component = strings.ToUpper(a.Value.String())
			return false
		}
		return true
	})

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	// 15:04:05 [LEVEL] [COMPONENT] message
	fmt.Fprintf(h.w, "%s", ts.Format("15:04:05"))

	if component != "" {
		if levelStr != "INFO" {
			fmt.Fprintf(h.w, " %s", levelColor.Sprintf("[%s]", levelStr))
		}
		fmt.Fprintf(h.w, " %s\n", componentColor(component).Sprintf("[%s] %s", component, r.Message))
		return nil
	}

	fmt.Fprintf(h.w, " %s\n", levelColor.Sprintf("[%s] %s", levelStr, r.Message))
	return nil
}

func (h *BotLogHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *BotLogHandler) WithGroup(_ string) slog.Handler      { return h }

func levelTag(l slog.Level) (string, *color.Color) {
	switch {
	case l >= slog.LevelError+4:
		return "FATAL", fatalColor
	case l >= slog.LevelError:
		return "ERROR", errorColor
	case l >= slog.LevelWarn:
		return "WARN", warnColor
	case l >= slog.LevelInfo:
		return "INFO", infoColor
	default:
		return "DEBUG", debugColor
	}
}

func componentColor(name string) *color.Color {
	switch name {
	case "DATABASE":
		return databaseColor
	case "VOICE":
		return voiceColor
	case "PIPELINE":
		return pipelineColor
	case "LOADER":
		return loaderColor
	case "HTTP":
		return httpColor
	default:
		return color.New(color.FgCyan)
	}
}

// @sys
const (
	MsgConfigFailedToLoad = "Failed to load config: %v"
	MsgConfigMissingToken = "DISCORD_TOKEN is not set (env, .env or [discord] token)"

	MsgDatabaseInitSuccess = "Database initialized successfully (%s)"
	MsgDatabasePragmaError = "Failed to set pragma %s: %w"
	MsgDatabaseTableError  = "Failed to create table: %w"

	MsgLoaderSyncCommands    = "Syncing %d commands (%s)..."
	MsgLoaderUpToDate        = "Commands are up to date. (Hash: %s)"
	MsgLoaderRegistered      = "Registered command: %s"
	MsgLoaderRegisterFail    = "Failed to register commands: %w"
	MsgLoaderGlobalClearFail = "Failed to clear global commands: %v"
	MsgLoaderPanicRecovered  = "Recovered from panic: %v"
	MsgDaemonStarting        = "Starting..."
	MsgBotStarting           = "Starting %s..."
	MsgBotReady              = "%s is ready! (ID: %s) (PID: %d) (%dms)"
	MsgBotShutdown           = "Shutting down %s..."
	MsgBotKillingOld         = "Killing running instance... (PID: %d)"
	MsgBotOldTerminated      = "Old instance terminated."
	MsgBotRegisterFail       = "Command registration failed: %v"
	MsgGenericError          = "%v"
	MsgHTTPListening         = "Status API listening on %s"
	MsgHTTPStopped           = "Status API stopped: %v"
	MsgPresenceRotated       = "Presence: %s (next in %v)"
	MsgPresenceFail          = "Failed to update presence: %v"
)

// @voice
const (
	MsgVoiceJoining        = "Joining channel %s in guild %s"
	MsgVoiceJoinRetry      = "Retrying voice connection in %v (Attempt %d/%d)"
	MsgVoiceJoinFail       = "Failed to connect to voice in guild %s after %d attempts: %v"
	MsgVoiceLeft           = "Left voice in guild %s"
	MsgVoiceKicked         = "Bot disconnected by external event in guild %s"
	MsgVoiceStaleState     = "Gateway shows bot in %s in guild %s without a connection, rejoining"
	MsgVoiceAttachFail     = "Failed to attach track in guild %s: %v"
	MsgVoicePlaying        = "Playing %s (%s) in guild %s"
	MsgVoiceTrackEnded     = "Track ended in guild %s after %s"
	MsgVoiceAcquireFail    = "Acquisition failed for %s in guild %s: %v"
	MsgVoiceQueueDrained   = "Queue drained in guild %s"
	MsgVoiceWorkerPanic    = "CRITICAL: advance worker panic recovered in guild %s: %v"
	MsgVoiceWorkerIdle     = "Worker for guild %s idle, exiting"
	MsgVoiceKeywordSkip    = "Keyword %q skipped track in guild %s"
	MsgVoiceSleepScheduled = "Sleep timer for guild %s fires %s"
	MsgVoiceSleepFired     = "Sleep timer fired in guild %s"
	MsgVoiceNotifyFail     = "Failed to notify channel %s: %v"
)

// @pipeline
const (
	MsgPipelineCacheHit    = "Cache hit: %s"
	MsgPipelineDownloading = "Downloading %s"
	MsgPipelineDownloaded  = "Downloaded %s (%s, %s)"
	MsgPipelineTranscoding = "Transcoding %s [%ds +%ds]"
	MsgPipelineReady       = "Ready %s: %d frames (%s)"
	MsgPipelineProbeFail   = "Probe failed for %s: %v"
	MsgPipelineSweep       = "Swept %d cache entries older than %s"
	MsgPipelineStderr      = "%s stderr: %s"
)

// @user
const (
	ErrUserNotInGuild        = "This command only works in a server."
	ErrUserInvalidInput      = "That doesn't look like a playable link, ID or stored title."
	ErrUserQueueEmpty        = "There is nothing in the queue."
	ErrUserJoinFirst         = "Join a voice channel first."
	ErrUserAlreadyInUse      = "I'm already playing in another channel."
	ErrUserChannelNotFound   = "I'm connected but can't see my voice channel. Try disconnecting first."
	ErrUserJoinFailed        = "Failed to connect to the voice channel."
	ErrUserBusy              = "The queue is busy. Try again in a moment."
	ErrUserAlreadyPlaying    = "Something is already playing."
	ErrUserAcquireFailed     = "Couldn't load that track."
	ErrUserTitleUsed         = "That title is already in use."
	ErrUserTitleNotFound     = "No song is stored under that title."
	ErrUserSleepParse        = "Couldn't understand that time. Try 'in 30 minutes', '23:00' or '45m'."
	ErrUserSleepPast         = "The sleep time must be in the future."
	ErrUserGeneric           = "Something went wrong."
	MsgUserConnected         = "Joined your voice channel."
	MsgUserAlreadyConnected  = "Already connected to your voice channel."
	MsgUserDisconnected      = "Disconnected."
	MsgUserQueued            = "Queued `%s` (position %d)."
	MsgUserPlayingNext       = "Playing `%s` next."
	MsgUserStarting          = "Starting the queue."
	MsgUserSkipped           = "Skipped."
	MsgUserNothingPlaying    = "Nothing is playing."
	MsgUserKeywordsSet       = "Skip keywords for this channel: %s"
	MsgUserKeywordsCleared   = "Skip keywords cleared."
	MsgUserSleepSet          = "Disconnecting %s."
	MsgUserSleepCancelled    = "Sleep timer cancelled."
	MsgUserTitleNewURL       = "Added new song `%s`."
	MsgUserTitleExistURL     = "Song already stored, added `%s` as another title."
	MsgUserTitleAliasAdded   = "`%s` now also plays `%s`."
	MsgUserTitleRemoved      = "Removed `%s`."
	MsgUserNowPlaying        = "Now playing: **%s**%s%s (%s)\n<%s>"
	MsgUserAcquireFailNotice = "Skipping `%s`: %s"
	MsgUserQueueFinished     = "Queue finished, %d track(s) could not be played."
	MsgUserPlaybackStalled   = "Lost the voice connection, `%s` stays queued. Use /voice play to rejoin."
)
