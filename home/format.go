package home

import (
	"fmt"
	"strings"
	"time"

	"github.com/leeineian/minstrel/proc/guild"
	"github.com/leeineian/minstrel/proc/pipeline"
	"github.com/leeineian/minstrel/proc/resolver"
	"github.com/leeineian/minstrel/sys"
)

// clock renders d as m:ss, or h:mm:ss from an hour up.
func clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d / time.Second)
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, s/60%60, s%60)
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// windowLabel is shown only when the window does not cover the whole track.
func windowLabel(w pipeline.Window, duration int) string {
	if w.Start == 0 && w.Length >= duration {
		return ""
	}
	return fmt.Sprintf(" [%s-%s]", clock(seconds(w.Start)), clock(seconds(w.Start+w.Length)))
}

func nowPlayingMessage(a *pipeline.Audio) string {
	by := a.Meta.Artist
	if by == "" {
		by = a.Meta.Channel
	}
	if by != "" {
		by = " by " + by
	}
	link := a.Meta.SourceURL
	if link == "" {
		link = resolver.CanonicalURL(a.Meta.ID)
	}
	return fmt.Sprintf(sys.MsgUserNowPlaying,
		a.Meta.Title, by, windowLabel(a.Window, a.Meta.Duration), clock(a.Length()), link)
}

func entryLabel(e guild.Entry) string {
	if e.Start == 0 && e.Length == 0 {
		return e.ID
	}
	if e.Length == 0 {
		return fmt.Sprintf("%s from %s", e.ID, clock(seconds(e.Start)))
	}
	return fmt.Sprintf("%s [%s +%s]", e.ID, clock(seconds(e.Start)), clock(seconds(e.Length)))
}

func queueMessage(nowPlaying guild.Handle, pending []guild.Entry) string {
	var b strings.Builder
	if nowPlaying != nil {
		fmt.Fprintf(&b, "Now: **%s** at %s\n", nowPlaying.Title(), clock(nowPlaying.Position()))
	}
	if len(pending) == 0 {
		b.WriteString("Queue is empty.")
		return b.String()
	}
	fmt.Fprintf(&b, "Up next (%d):\n", len(pending))
	for i, e := range pending {
		line := fmt.Sprintf("%d. %s\n", i+1, entryLabel(e))
		if b.Len()+len(line) > 1900 {
			fmt.Fprintf(&b, "... and %d more", len(pending)-i)
			break
		}
		b.WriteString(line)
	}
	return strings.TrimRight(b.String(), "\n")
}
