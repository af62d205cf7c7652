package edl

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Exit codes of the cutter. Shell wrappers and the pipeline executor react to
// these, so they are part of the tool's contract.
const (
	ExitOK            = 0
	ExitUsage         = 2
	ExitInputMissing  = 3
	ExitEDLMissing    = 4
	ExitNoSegments    = 5
	ExitFFmpegFailed  = 6
	ExitFFmpegMissing = 7
)

// CutOptions configures one cutter invocation. Subtitle, Metadata and LogFile
// are optional; an empty EDL path means "no cuts known" and re-encodes the
// whole recording.
type CutOptions struct {
	Input    string
	EDL      string
	Output   string
	Subtitle string
	Metadata string
	LogFile  string
	DryRun   bool

	FFmpeg string // binary name; defaults to "ffmpeg"
	Stdout io.Writer
	Stderr io.Writer
}

// RunCut validates inputs, builds the ffmpeg command and executes it,
// returning one of the Exit* codes.
func RunCut(opts CutOptions) int {
	if opts.FFmpeg == "" {
		opts.FFmpeg = "ffmpeg"
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	if !fileExists(opts.Input) {
		fmt.Fprintf(opts.Stderr, "ERROR: input file not found: %s\n", opts.Input)
		return ExitInputMissing
	}

	var cuts []Cut
	if opts.EDL != "" {
		if !fileExists(opts.EDL) {
			fmt.Fprintf(opts.Stderr, "ERROR: EDL file not found: %s\n", opts.EDL)
			return ExitEDLMissing
		}
		var err error
		cuts, err = ParseFile(opts.EDL)
		if err != nil {
			fmt.Fprintf(opts.Stderr, "ERROR: %v\n", err)
			return ExitEDLMissing
		}
	}

	segs := KeepSegments(cuts)
	if len(segs) == 0 {
		fmt.Fprintln(opts.Stderr, "ERROR: no keep segments computed from EDL")
		return ExitNoSegments
	}
	filter := FilterComplex(segs)

	if opts.DryRun {
		fmt.Fprintln(opts.Stdout, filter)
		return ExitOK
	}

	args := buildArgs(opts, filter)

	cmd := exec.Command(opts.FFmpeg, args...)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	var logClose func(int)
	if opts.LogFile != "" {
		if f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			fmt.Fprintf(f, "\n=== FFmpeg Processing: %s ===\n", filepath.Base(opts.Input))
			fmt.Fprintf(f, "Time: %s\nInput: %s\nOutput: %s\nKeep segments: %d\n\n",
				time.Now().Format(time.RFC3339), opts.Input, opts.Output, len(segs))
			cmd.Stdout = f
			cmd.Stderr = f
			logClose = func(rc int) {
				fmt.Fprintf(f, "\n=== FFmpeg Exit Code: %d ===\n\n", rc)
				f.Close()
			}
		}
	}

	err := cmd.Run()
	rc := ExitOK
	switch {
	case err == nil:
	case errors.Is(err, exec.ErrNotFound):
		fmt.Fprintln(opts.Stderr, "ERROR: ffmpeg not found on PATH")
		rc = ExitFFmpegMissing
	default:
		var exitErr *exec.ExitError
		code := -1
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		fmt.Fprintf(opts.Stderr, "ffmpeg failed with exit code %d\n", code)
		rc = ExitFFmpegFailed
	}
	if logClose != nil {
		logClose(rc)
	}
	return rc
}

// buildArgs assembles the full ffmpeg argv: filter graph, optional subtitle
// stream, optional description metadata, fixed x264/aac encode settings.
func buildArgs(opts CutOptions, filter string) []string {
	args := []string{"-i", opts.Input}

	hasSubtitle := opts.Subtitle != "" && fileExists(opts.Subtitle)
	if hasSubtitle {
		args = append(args, "-i", opts.Subtitle)
	}

	args = append(args, "-filter_complex", filter, "-map", "[outv]", "-map", "[outa]")

	if hasSubtitle {
		args = append(args, "-map", "1:0", "-c:s", "srt", "-metadata:s:s:0", "language=ger")
	}

	if desc := readDescription(opts.Metadata); desc != "" {
		args = append(args, "-metadata", "comment="+desc, "-metadata", "description="+desc)
	}

	return append(args,
		"-c:v", "libx264", "-crf", "21", "-preset", "faster",
		"-c:a", "aac", "-b:a", "192k", "-y", opts.Output)
}

func readDescription(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
