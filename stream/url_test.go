package stream

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		platform Platform
		id       string
	}{
		{"youtube watch", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", YouTube, "dQw4w9WgXcQ"},
		{"youtube watch with params", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s", YouTube, "dQw4w9WgXcQ"},
		{"youtube short", "https://youtu.be/dQw4w9WgXcQ", YouTube, "dQw4w9WgXcQ"},
		{"youtube live", "https://www.youtube.com/live/abc-DEF_123?si=xyz", YouTube, "abc-DEF_123"},
		{"youtube embed", "https://www.youtube.com/embed/abc-DEF_123", YouTube, "abc-DEF_123"},
		{"youtube v param not first", "https://www.youtube.com/watch?feature=share&v=abc-DEF_123", YouTube, "abc-DEF_123"},
		{"youtube legacy v path", "https://www.youtube.com/v/abc-DEF_123", YouTube, "abc-DEF_123"},
		{"vimeo direct", "https://vimeo.com/912345678", Vimeo, "912345678"},
		{"vimeo player", "https://player.vimeo.com/video/912345678?h=abc", Vimeo, "912345678"},
		{"twitch video", "https://www.twitch.tv/videos/2087654321", Twitch, "2087654321"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, id, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.raw, err)
			}
			if p != tt.platform || id != tt.id {
				t.Errorf("Parse(%q) = %s/%s, want %s/%s", tt.raw, p, id, tt.platform, tt.id)
			}
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"https://example.com/watch",
		"https://www.youtube.com/watch?v=short",
		"https://www.youtube.com/watch?v=waytoolongid123",
		"https://vimeo.com/channels/staffpicks",
		"https://www.twitch.tv/somechannel",
	}
	for _, raw := range tests {
		if p, id, err := Parse(raw); !errors.Is(err, ErrUnrecognizedURL) {
			t.Errorf("Parse(%q) = %s/%s, %v; want ErrUnrecognizedURL", raw, p, id, err)
		}
	}
}

func TestParse_VimeoEventNeedsDiscovery(t *testing.T) {
	_, _, err := Parse("https://vimeo.com/event/4012345")
	var ev *VimeoEventError
	if !errors.As(err, &ev) {
		t.Fatalf("expected VimeoEventError, got %v", err)
	}
	if ev.EventID != "4012345" {
		t.Errorf("event id = %q", ev.EventID)
	}
}

func TestJumpURL(t *testing.T) {
	tests := []struct {
		p    Platform
		off  float64
		want string
	}{
		{YouTube, 300.4, "https://www.youtube.com/watch?v=abc&t=300s"},
		{Vimeo, 61, "https://vimeo.com/abc#t=61s"},
		{Twitch, 3725, "https://www.twitch.tv/videos/abc?t=1h2m5s"},
		{YouTube, -3, "https://www.youtube.com/watch?v=abc&t=0s"},
		{PlatformNone, 10, ""},
	}
	for _, tt := range tests {
		if got := JumpURL(tt.p, "abc", tt.off); got != tt.want {
			t.Errorf("JumpURL(%s, %v) = %q, want %q", tt.p, tt.off, got, tt.want)
		}
	}
}
