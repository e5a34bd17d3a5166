package stream

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Platform is one of the supported video platforms.
type Platform string

const (
	PlatformNone Platform = ""
	YouTube      Platform = "youtube"
	Vimeo        Platform = "vimeo"
	Twitch       Platform = "twitch"
)

// ErrUnrecognizedURL is returned when no platform grammar matches a URL.
var ErrUnrecognizedURL = errors.New("unrecognized video url")

// VimeoEventError is returned by Parse for Vimeo event pages. An event page
// holds several archived streams and is resolved by bulk discovery instead of
// binding to a single slot.
type VimeoEventError struct {
	EventID string
}

func (e *VimeoEventError) Error() string {
	return fmt.Sprintf("vimeo event page %s requires stream discovery", e.EventID)
}

var (
	youTubeID    = regexp.MustCompile(`(?:watch\?v=|youtu\.be/|/live/|/embed/|&v=|/v/)([A-Za-z0-9_-]{11})(?:[^A-Za-z0-9_-]|$)`)
	vimeoEvent   = regexp.MustCompile(`vimeo\.com/event/(\d+)`)
	vimeoPlayer  = regexp.MustCompile(`player\.vimeo\.com/video/(\d+)`)
	vimeoDirect  = regexp.MustCompile(`vimeo\.com/(\d+)`)
	twitchVideos = regexp.MustCompile(`twitch\.tv/videos/(\d+)`)
)

// Parse detects the platform of raw and extracts its video identifier.
func Parse(raw string) (Platform, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return PlatformNone, "", ErrUnrecognizedURL
	}
	if strings.Contains(raw, "vimeo.com") {
		if m := vimeoEvent.FindStringSubmatch(raw); m != nil {
			return PlatformNone, "", &VimeoEventError{EventID: m[1]}
		}
		if m := vimeoPlayer.FindStringSubmatch(raw); m != nil {
			return Vimeo, m[1], nil
		}
		if m := vimeoDirect.FindStringSubmatch(raw); m != nil {
			return Vimeo, m[1], nil
		}
		return PlatformNone, "", fmt.Errorf("%q: %w", raw, ErrUnrecognizedURL)
	}
	if m := twitchVideos.FindStringSubmatch(raw); m != nil {
		return Twitch, m[1], nil
	}
	if m := youTubeID.FindStringSubmatch(raw); m != nil {
		return YouTube, m[1], nil
	}
	return PlatformNone, "", fmt.Errorf("%q: %w", raw, ErrUnrecognizedURL)
}

// CanonicalURL returns the player-friendly URL for a parsed video.
func CanonicalURL(p Platform, videoID string) string {
	switch p {
	case YouTube:
		return "https://www.youtube.com/watch?v=" + videoID
	case Vimeo:
		return "https://player.vimeo.com/video/" + videoID
	case Twitch:
		return "https://www.twitch.tv/videos/" + videoID
	}
	return ""
}

// JumpURL links directly to offsetSeconds into the video.
func JumpURL(p Platform, videoID string, offsetSeconds float64) string {
	secs := int(offsetSeconds)
	if secs < 0 {
		secs = 0
	}
	switch p {
	case YouTube:
		return fmt.Sprintf("https://www.youtube.com/watch?v=%s&t=%ds", videoID, secs)
	case Vimeo:
		return fmt.Sprintf("https://vimeo.com/%s#t=%ds", videoID, secs)
	case Twitch:
		return fmt.Sprintf("https://www.twitch.tv/videos/%s?t=%dh%dm%ds", videoID, secs/3600, secs%3600/60, secs%60)
	}
	return ""
}
