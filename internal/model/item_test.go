package model

import (
	"regexp"
	"testing"
)

var suffix = regexp.MustCompile(DefaultTimestampSuffix)

func TestStripTimestamp(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Tagesschau_23.07.15_20-15.ts", "Tagesschau.ts"},
		{"Movie Night_24.12.31_23-55.mkv", "Movie Night.mkv"},
		{"already-clean.mp4", "already-clean.mp4"},
		{"no_extension_23.07.15_20-15", "no_extension"},
		{"_23.07.15_20-15.ts", ".ts"},
	}
	for _, c := range cases {
		if got := StripTimestamp(c.in, suffix); got != c.want {
			t.Errorf("StripTimestamp(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestStripTimestamp_NilSuffix(t *testing.T) {
	if got := StripTimestamp("show_23.07.15_20-15.ts", nil); got != "show_23.07.15_20-15.ts" {
		t.Errorf("nil suffix must pass names through, got %q", got)
	}
}

func TestNewWorkItem(t *testing.T) {
	sidecars := map[string]bool{
		"/media/shows/news_23.07.15_20-15.srt": true,
		"/media/shows/news_23.07.15_20-15.txt": true,
		"/media/shows/news_23.07.15_20-15.xml": true,
	}
	exists := func(p string) bool { return sidecars[p] }

	item := NewWorkItem("/media/shows/news_23.07.15_20-15.ts", "shows/news_23.07.15_20-15.ts", suffix, exists)

	if item.Key != ItemKey("shows/news_23.07.15_20-15.ts") {
		t.Errorf("unexpected key %s", item.Key)
	}
	if item.RelDir != "shows" {
		t.Errorf("RelDir = %q, want shows", item.RelDir)
	}
	if item.RawName != "news_23.07.15_20-15.ts" {
		t.Errorf("RawName = %q", item.RawName)
	}
	if item.DisplayName != "news.ts" {
		t.Errorf("DisplayName = %q, want news.ts", item.DisplayName)
	}
	if item.SubtitlePath != "/media/shows/news_23.07.15_20-15.srt" {
		t.Errorf("SubtitlePath = %q", item.SubtitlePath)
	}
	// .txt wins over .xml
	if item.MetadataPath != "/media/shows/news_23.07.15_20-15.txt" {
		t.Errorf("MetadataPath = %q, want the .txt sidecar", item.MetadataPath)
	}
}

func TestNewWorkItem_XMLFallback(t *testing.T) {
	exists := func(p string) bool { return p == "/media/a.xml" }
	item := NewWorkItem("/media/a.ts", "a.ts", suffix, exists)

	if item.SubtitlePath != "" {
		t.Errorf("expected no subtitle, got %q", item.SubtitlePath)
	}
	if item.MetadataPath != "/media/a.xml" {
		t.Errorf("MetadataPath = %q, want the .xml sidecar", item.MetadataPath)
	}
}
