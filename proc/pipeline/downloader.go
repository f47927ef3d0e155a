package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/leeineian/minstrel/proc/trackcache"
	"github.com/leeineian/minstrel/sys"
	"github.com/lrstanley/go-ytdlp"
)

// Downloader fetches url into dest and returns the metadata it reported.
type Downloader interface {
	Download(ctx context.Context, url, dest string) (trackcache.Metadata, error)
}

// YtdlpDownloader drives yt-dlp through go-ytdlp, printing the info JSON
// while downloading the best audio-only format.
type YtdlpDownloader struct {
	Executable string
	Proxy      string
	Format     string
}

const defaultYtdlpFormat = "bestaudio[ext=webm]/bestaudio/best"

func (d *YtdlpDownloader) command() *ytdlp.Command {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings()

	if d.Executable != "" {
		cmd.SetExecutable(d.Executable)
	}
	if d.Proxy != "" {
		cmd.Proxy(d.Proxy)
	}
	return cmd
}

func (d *YtdlpDownloader) Download(ctx context.Context, url, dest string) (trackcache.Metadata, error) {
	format := d.Format
	if format == "" {
		format = defaultYtdlpFormat
	}

	res, err := d.command().
		DumpJSON().
		NoSimulate().
		Format(format).
		NoPlaylist().
		IgnoreConfig().
		Output(dest).
		Run(ctx, url)

	if res != nil && strings.TrimSpace(res.Stderr) != "" {
		sys.LogDebug(sys.MsgPipelineStderr, "yt-dlp", strings.TrimSpace(res.Stderr))
	}
	if err != nil {
		return trackcache.Metadata{}, err
	}
	if res == nil {
		return trackcache.Metadata{}, ErrNoMetadata
	}
	return parseInfoJSON(res.Stdout)
}

// ytdlpInfo is the subset of the yt-dlp info document the bot keeps.
type ytdlpInfo struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Creator    string  `json:"creator"`
	Channel    string  `json:"channel"`
	Uploader   string  `json:"uploader"`
	Duration   float64 `json:"duration"`
	WebpageURL string  `json:"webpage_url"`
	Thumbnail  string  `json:"thumbnail"`
}

// parseInfoJSON reads the last JSON object printed by yt-dlp. Progress and
// notices may precede it on stdout.
func parseInfoJSON(stdout string) (trackcache.Metadata, error) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}

		var info ytdlpInfo
		if err := json.Unmarshal([]byte(line), &info); err != nil {
			return trackcache.Metadata{}, fmt.Errorf("parse yt-dlp json: %w", err)
		}
		if info.Title == "" {
			return trackcache.Metadata{}, fmt.Errorf("parse yt-dlp json: %w", ErrNoMetadata)
		}

		artist := info.Artist
		if artist == "" {
			artist = info.Creator
		}
		channel := info.Channel
		if channel == "" {
			channel = info.Uploader
		}

		return trackcache.Metadata{
			ID:        info.ID,
			Title:     info.Title,
			Artist:    artist,
			Channel:   channel,
			Duration:  int(math.Round(info.Duration)),
			SourceURL: info.WebpageURL,
			Thumbnail: info.Thumbnail,
		}, nil
	}
	return trackcache.Metadata{}, ErrNoMetadata
}
