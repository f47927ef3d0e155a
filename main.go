package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leeineian/minstrel/home"
	"github.com/leeineian/minstrel/proc/conn"
	"github.com/leeineian/minstrel/proc/guild"
	"github.com/leeineian/minstrel/proc/pipeline"
	"github.com/leeineian/minstrel/proc/player"
	"github.com/leeineian/minstrel/proc/presence"
	"github.com/leeineian/minstrel/proc/search"
	"github.com/leeineian/minstrel/proc/status"
	"github.com/leeineian/minstrel/proc/titles"
	"github.com/leeineian/minstrel/proc/trackcache"
	"github.com/leeineian/minstrel/sys"
)

const pidFile = ".bot.pid"

var (
	cfgFile string
	silent  bool
	skipReg bool
)

var rootCmd = &cobra.Command{
	Use:          "minstrel",
	Short:        "Discord voice music bot",
	SilenceUsage: true,
	RunE:         runBot,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to Discord and serve voice commands",
	RunE:  runBot,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./"+sys.DefaultConfigFile+")")
	rootCmd.PersistentFlags().BoolVar(&silent, "silent", false, "disable all log output")
	rootCmd.Flags().BoolVar(&skipReg, "skip-reg", false, "do not sync slash commands on startup")
	runCmd.Flags().BoolVar(&skipReg, "skip-reg", false, "do not sync slash commands on startup")
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*sys.Config, error) {
	if silent {
		sys.SetSilentMode(true)
	}
	cfg, err := sys.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf(sys.MsgConfigFailedToLoad, err)
	}
	return cfg, nil
}

// killPrevious stops an instance left running from the same directory.
func killPrevious() {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return
	}
	oldPid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || oldPid == os.Getpid() {
		return
	}
	process, err := os.FindProcess(oldPid)
	if err != nil || process.Signal(syscall.Signal(0)) != nil {
		return
	}

	sys.LogInfo(sys.MsgBotKillingOld, oldPid)
	if err := process.Signal(syscall.SIGTERM); err != nil {
		sys.LogWarn("Failed to kill old instance: %v", err)
		return
	}
	for i := 0; i < 50; i++ {
		if process.Signal(syscall.Signal(0)) != nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	sys.LogInfo(sys.MsgBotOldTerminated)
}

func runBot(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	killPrevious()
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		sys.LogWarn("Failed to write PID file: %v", err)
	}
	defer os.Remove(pidFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	sys.SetAppContext(ctx)

	sys.LogInfo(sys.MsgBotStarting, cmd.Root().Name())

	if err := sys.InitDatabase(ctx, cfg.Database.URL); err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer sys.CloseDatabase()

	client, err := sys.CreateClient(cfg)
	if err != nil {
		return fmt.Errorf("create discord client: %w", err)
	}

	pipe, err := newPipeline(cfg)
	if err != nil {
		return err
	}

	store, err := titles.New(ctx, sys.DB)
	if err != nil {
		return fmt.Errorf("open title store: %w", err)
	}

	registry := guild.NewRegistry(cfg.Player.SkipKeywords)
	voice := conn.NewVoice(client)
	play := player.New(ctx, registry, pipe, voice, home.NewNotifier(client, registry))
	supervisor := conn.NewSupervisor(voice, voice, registry, play)
	supervisor.ClearQueueOnDisconnect = cfg.Player.ClearQueueOnDisconnect
	sleeper := home.NewSleepScheduler(ctx)

	home.Wire(&home.App{
		Client:     client,
		Config:     cfg,
		Registry:   registry,
		Pipeline:   pipe,
		Player:     play,
		Voice:      voice,
		Supervisor: supervisor,
		Titles:     store,
		Search:     search.NewDefault(),
		Sleep:      sleeper,
	})

	router := status.NewRouter(registry, status.Options{
		Secret:    cfg.Status.Secret,
		StartedAt: sys.StartupTime,
		Downloads: pipe.Downloads,
	})
	sys.RegisterDaemon(sys.LogHTTP, status.Daemon(router, cfg.Status.Addr))
	sys.RegisterDaemon(sys.LogLoader, presence.New(registry, presence.ClientSetter(client), sys.StartupTime).Daemon())

	if !skipReg {
		sys.SafeGo(func() {
			if err := sys.RegisterCommands(ctx, client, cfg.Discord.GuildID, false); err != nil {
				sys.LogError(sys.MsgBotRegisterFail, err)
			}
		})
	}

	if err := client.OpenGateway(ctx); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}

	<-ctx.Done()
	if !sys.IsSilent {
		fmt.Println()
	}
	sys.LogInfo(sys.MsgBotShutdown, cmd.Root().Name())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sleeper.Stop()
	play.Shutdown(shutdownCtx)
	for _, snap := range registry.Snapshots() {
		voice.Leave(shutdownCtx, snap.GuildID)
	}
	sys.ShutdownDaemons()
	client.Close(shutdownCtx)
	return nil
}

func newPipeline(cfg *sys.Config) (*pipeline.Pipeline, error) {
	cache, err := trackcache.New(cfg.Cache.Dir, cfg.Cache.AssetExt)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return pipeline.New(pipeline.Options{
		Cache: cache,
		Downloader: &pipeline.YtdlpDownloader{
			Executable: cfg.Pipeline.YtdlpPath,
			Proxy:      cfg.Pipeline.Proxy,
		},
		Transcoder: &pipeline.FFmpegTranscoder{
			Executable: cfg.Pipeline.FFmpegPath,
			Bitrate:    cfg.Pipeline.Bitrate,
		},
		Prober:             pipeline.AstiavProber{},
		DownloadTimeout:    cfg.Pipeline.DownloadTimeout.Duration,
		TranscodeTimeout:   cfg.Pipeline.TranscodeTimeout.Duration,
		DownloadsPerMinute: cfg.Pipeline.DownloadsPerMinute,
	}), nil
}
