// Package resolver turns user input into YouTube video IDs.
package resolver

import (
	"regexp"
	"strings"
)

// CanonicalPrefix is prepended to a video ID to build a fetchable URL.
const CanonicalPrefix = "https://www.youtube.com/watch?v="

// The fifth group is the video ID. Anything after it must start with a
// character that cannot belong to an ID.
var youtubePattern = regexp.MustCompile(`^((?:https?:)?//)?((?:www|m|music)\.)?((?:youtube\.com|youtu\.be))(/(?:[\w\-]+\?v=|embed/|v/|shorts/|live/)?)([\w\-]{11})([^\w\-]\S*)?$`)

var bareIDPattern = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)

// Resolve extracts the video ID from a YouTube URL or a bare 11 character ID.
// It never fails; unrecognized input yields ok == false.
func Resolve(raw string) (id string, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	if bareIDPattern.MatchString(raw) {
		return raw, true
	}

	m := youtubePattern.FindStringSubmatch(raw)
	if m == nil || m[5] == "" {
		return "", false
	}
	return m[5], true
}

// LooksLikeID reports whether raw has the shape of a bare video ID.
func LooksLikeID(raw string) bool {
	return bareIDPattern.MatchString(strings.TrimSpace(raw))
}

// CanonicalURL rebuilds the watch URL for an ID.
func CanonicalURL(id string) string {
	return CanonicalPrefix + id
}

// LooksLikeURL reports whether raw is shaped like a link rather than free text.
func LooksLikeURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") || strings.HasPrefix(raw, "//")
}
