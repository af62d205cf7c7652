package model

import (
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultTimestampSuffix matches the recorder's processing timestamp,
// e.g. "show_23.07.15_20-15.ts" → display name "show.ts".
const DefaultTimestampSuffix = `_\d{2}\.\d{2}\.\d{2}_\d{2}-\d{2}$`

// WorkItem is one candidate recording. It materializes during an enumeration
// pass and is immutable for the duration of one processing attempt.
type WorkItem struct {
	Key         string // stable identity, see ItemKey
	SourcePath  string // absolute path under the source root
	RelDir      string // directory relative to the source root
	RawName     string // base name as found on disk
	DisplayName string // base name with the timestamp suffix stripped

	SubtitlePath string // optional .srt sidecar
	MetadataPath string // optional .txt or .xml sidecar; .txt wins
}

// NewWorkItem derives identity, display name, and sidecars for a source file.
// relPath is the path relative to the source root; sidecars are looked up by
// the caller-provided exists probe so enumeration stays stat-only.
func NewWorkItem(absPath, relPath string, suffix *regexp.Regexp, exists func(string) bool) WorkItem {
	base := filepath.Base(relPath)
	item := WorkItem{
		Key:         ItemKey(relPath),
		SourcePath:  absPath,
		RelDir:      filepath.Dir(relPath),
		RawName:     base,
		DisplayName: StripTimestamp(base, suffix),
	}

	stem := strings.TrimSuffix(absPath, filepath.Ext(absPath))
	if p := stem + ".srt"; exists(p) {
		item.SubtitlePath = p
	}
	// Text metadata takes precedence over XML.
	if p := stem + ".txt"; exists(p) {
		item.MetadataPath = p
	} else if p := stem + ".xml"; exists(p) {
		item.MetadataPath = p
	}
	return item
}

// StripTimestamp removes the recorder timestamp suffix from the name's stem.
// "show_23.07.15_20-15.ts" → "show.ts"; names without the suffix pass through.
func StripTimestamp(name string, suffix *regexp.Regexp) string {
	if suffix == nil {
		return name
	}
	// Extensionless names end in the timestamp itself. Checked first because
	// a dotted timestamp confuses extension splitting.
	if suffix.MatchString(name) {
		return suffix.ReplaceAllString(name, "")
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return suffix.ReplaceAllString(stem, "") + ext
}
