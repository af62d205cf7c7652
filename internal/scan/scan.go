// Package scan enumerates candidate recordings under the shared source root.
//
// Enumeration applies the cheap filters only: container extension, output
// already present, blacklisted. Skipping items that are currently leased
// happens downstream, where the claim attempt itself is the filter.
package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/mkaindl/cutd/internal/model"
)

type Options struct {
	SourceRoot string
	TargetRoot string
	Extensions []string // lowercase, with leading dot
	Suffix     *regexp.Regexp

	// Blacklisted filters by display name. Nil means no blacklist filtering.
	Blacklisted func(name string) (bool, error)
}

type Result struct {
	Items              []model.WorkItem
	SkippedPresent     int
	SkippedBlacklisted int
}

// Enumerate walks the source root and returns the candidates still needing
// processing, stable-sorted by relative path. Every item present at traversal
// time is visited at most once per pass; no ordering is promised across runs.
func Enumerate(opts Options) (Result, error) {
	root := filepath.Clean(opts.SourceRoot)
	allowed := make(map[string]bool, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		allowed[strings.ToLower(ext)] = true
	}

	target := filepath.Clean(opts.TargetRoot)

	var res Result
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			// Never enumerate our own output tree.
			if target != root && filepath.Clean(path) == target {
				return filepath.SkipDir
			}
			return nil
		}
		if !allowed[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		item := model.NewWorkItem(path, rel, opts.Suffix, fileExists)

		if outputPresent(opts.TargetRoot, item) {
			res.SkippedPresent++
			return nil
		}
		if opts.Blacklisted != nil {
			listed, err := opts.Blacklisted(item.DisplayName)
			if err != nil {
				return fmt.Errorf("blacklist check for %s: %w", item.DisplayName, err)
			}
			if listed {
				res.SkippedBlacklisted++
				return nil
			}
		}

		res.Items = append(res.Items, item)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("enumerate %s: %w", root, err)
	}

	sort.Slice(res.Items, func(i, j int) bool {
		return filepath.Join(res.Items[i].RelDir, res.Items[i].RawName) <
			filepath.Join(res.Items[j].RelDir, res.Items[j].RawName)
	})
	return res, nil
}

// DestPath is the canonical output location for an item: the relative
// directory mirrored under the target root, named by the clean display name.
func DestPath(targetRoot string, item model.WorkItem) string {
	return filepath.Join(targetRoot, item.RelDir, item.DisplayName)
}

// outputPresent checks for an existing artifact under either the raw or the
// clean name. When target and source roots coincide the raw-name candidate is
// the source file itself and must not count as done.
func outputPresent(targetRoot string, item model.WorkItem) bool {
	dir := filepath.Join(targetRoot, item.RelDir)
	clean := filepath.Join(dir, item.DisplayName)
	if clean != item.SourcePath && fileExists(clean) {
		return true
	}
	raw := filepath.Join(dir, item.RawName)
	return raw != item.SourcePath && fileExists(raw)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
