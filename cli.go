package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/leeineian/minstrel/proc/pipeline"
	"github.com/leeineian/minstrel/proc/resolver"
	"github.com/leeineian/minstrel/proc/status"
	"github.com/leeineian/minstrel/sys"
)

var (
	fetchStart  int
	fetchLength int
	pruneAge    time.Duration
	tokenTTL    time.Duration
	tokenSub    string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Sync slash commands and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		ctx := cmd.Context()
		if err := sys.InitDatabase(ctx, cfg.Database.URL); err != nil {
			return err
		}
		defer sys.CloseDatabase()

		client, err := sys.CreateClient(cfg)
		if err != nil {
			return err
		}
		defer client.Close(context.Background())

		return sys.RegisterCommands(ctx, client, cfg.Discord.GuildID, true)
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <url-or-id>...",
	Short: "Print the video ID for each argument",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := false
		for _, raw := range args {
			id, ok := resolver.Resolve(raw)
			if !ok {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: not a video link\n", raw)
				failed = true
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, resolver.CanonicalURL(id))
		}
		if failed {
			return errors.New("some arguments did not resolve")
		}
		return nil
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <url-or-id>",
	Short: "Download and transcode a track into the cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, ok := resolver.Resolve(args[0])
		if !ok {
			return fmt.Errorf("%s: not a video link", args[0])
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pipe, err := newPipeline(cfg)
		if err != nil {
			return err
		}

		audio, err := pipe.Acquire(cmd.Context(), id, pipeline.Window{Start: fetchStart, Length: fetchLength})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%d frames, %s (%s)\n",
			audio.Meta.ID, audio.Meta.Title, audio.Window, audio.FrameCount,
			audio.Length(), humanize.Bytes(uint64(len(audio.Frames))))
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove cached tracks older than a given age",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		pipe, err := newPipeline(cfg)
		if err != nil {
			return err
		}
		removed, freed, err := pipe.Cache().Sweep(pruneAge)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d tracks, freed %s\n", removed, humanize.Bytes(uint64(freed)))
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the status API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		token, err := status.IssueToken(cfg.Status.Secret, tokenSub, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	fetchCmd.Flags().IntVar(&fetchStart, "start", 0, "window start in seconds")
	fetchCmd.Flags().IntVar(&fetchLength, "length", 0, "window length in seconds (0 plays to the end)")
	pruneCmd.Flags().DurationVar(&pruneAge, "older-than", 30*24*time.Hour, "minimum age of removed entries")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	tokenCmd.Flags().StringVar(&tokenSub, "subject", hostname(), "token subject")

	rootCmd.AddCommand(registerCmd, resolveCmd, fetchCmd, pruneCmd, tokenCmd)
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "minstrel"
	}
	return h
}
