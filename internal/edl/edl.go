// Package edl turns commercial-detection EDL files into ffmpeg filter graphs.
//
// An EDL line is "start end action"; action 0 marks a commercial to cut.
// The keep segments are the inversion of the cut list, ending in an
// open-ended segment that runs to end of file.
package edl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Cut is one parsed EDL entry.
type Cut struct {
	Start  float64
	End    float64
	Action string
}

// Segment is a stretch of the recording to keep. A nil End means
// "until end of file".
type Segment struct {
	Start float64
	End   *float64
}

// Parse reads EDL entries, skipping blanks, comments and malformed lines.
// Tolerance matters: detector output occasionally carries partial lines.
func Parse(r io.Reader) ([]Cut, error) {
	var cuts []Cut
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 3 {
			continue
		}
		start, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			continue
		}
		end, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			continue
		}
		cuts = append(cuts, Cut{Start: start, End: end, Action: parts[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read edl: %w", err)
	}
	return cuts, nil
}

// ParseFile parses the EDL at path.
func ParseFile(path string) ([]Cut, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open edl %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// KeepSegments inverts action-0 cuts into the segments to keep. An empty cut
// list yields the single full-length segment, so commercial-free recordings
// pass through unchanged.
func KeepSegments(cuts []Cut) []Segment {
	var segs []Segment
	lastEnd := 0.0
	for _, c := range cuts {
		if c.Action != "0" {
			continue
		}
		if c.Start > lastEnd {
			end := c.Start
			segs = append(segs, Segment{Start: lastEnd, End: &end})
		}
		lastEnd = c.End
	}
	segs = append(segs, Segment{Start: lastEnd})
	return segs
}

// FilterComplex builds the ffmpeg filter graph trimming each keep segment and
// concatenating the results, e.g.
// "[0:v]trim=start=0:end=10,setpts=PTS-STARTPTS[v0]; ...; [v0][a0]concat=n=1:v=1:a=1[outv][outa]".
func FilterComplex(segs []Segment) string {
	var sb strings.Builder
	for i, s := range segs {
		fmt.Fprintf(&sb, "[0:v]trim=%s,setpts=PTS-STARTPTS[v%d]; ", trimRange(s), i)
	}
	for i, s := range segs {
		fmt.Fprintf(&sb, "[0:a]atrim=%s,asetpts=PTS-STARTPTS[a%d]; ", trimRange(s), i)
	}
	for i := range segs {
		fmt.Fprintf(&sb, "[v%d][a%d]", i, i)
	}
	fmt.Fprintf(&sb, "concat=n=%d:v=1:a=1[outv][outa]", len(segs))
	return sb.String()
}

// HasNoCommercials reports whether the EDL at path contains no usable cut
// entries. Missing or unreadable files count as commercial-free, which routes
// the item down the no-cut conversion path.
func HasNoCommercials(path string) bool {
	cuts, err := ParseFile(path)
	if err != nil {
		return true
	}
	return len(cuts) == 0
}

func trimRange(s Segment) string {
	if s.End != nil {
		return fmt.Sprintf("start=%s:end=%s", formatSeconds(s.Start), formatSeconds(*s.End))
	}
	return fmt.Sprintf("start=%s", formatSeconds(s.Start))
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
