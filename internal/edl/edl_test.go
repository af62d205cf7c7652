package edl

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	input := `
# comskip output
120.00	300.50	0
1800.00 2100.00 0
garbage line
500.0 600.0
`
	cuts, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cuts) != 2 {
		t.Fatalf("got %d cuts, want 2: %+v", len(cuts), cuts)
	}
	if cuts[0].Start != 120 || cuts[0].End != 300.5 || cuts[0].Action != "0" {
		t.Errorf("first cut = %+v", cuts[0])
	}
}

func TestKeepSegments_TwoCommercials(t *testing.T) {
	cuts := []Cut{
		{Start: 120, End: 300, Action: "0"},
		{Start: 1800, End: 2100, Action: "0"},
	}
	segs := KeepSegments(cuts)

	if len(segs) != 3 {
		t.Fatalf("got %d segments, want 3: %+v", len(segs), segs)
	}
	if segs[0].Start != 0 || *segs[0].End != 120 {
		t.Errorf("segment 0 = %+v", segs[0])
	}
	if segs[1].Start != 300 || *segs[1].End != 1800 {
		t.Errorf("segment 1 = %+v", segs[1])
	}
	if segs[2].Start != 2100 || segs[2].End != nil {
		t.Errorf("segment 2 = %+v", segs[2])
	}
}

func TestKeepSegments_CommercialAtStart(t *testing.T) {
	// A cut beginning at 0 must not produce a zero-length leading segment.
	segs := KeepSegments([]Cut{{Start: 0, End: 90, Action: "0"}})
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1: %+v", len(segs), segs)
	}
	if segs[0].Start != 90 || segs[0].End != nil {
		t.Errorf("segment = %+v", segs[0])
	}
}

func TestKeepSegments_Empty(t *testing.T) {
	segs := KeepSegments(nil)
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want the single full-length segment", len(segs))
	}
	if segs[0].Start != 0 || segs[0].End != nil {
		t.Errorf("segment = %+v", segs[0])
	}
}

func TestKeepSegments_IgnoresNonZeroActions(t *testing.T) {
	segs := KeepSegments([]Cut{{Start: 100, End: 200, Action: "1"}})
	if len(segs) != 1 || segs[0].Start != 0 {
		t.Errorf("non-cut action changed segments: %+v", segs)
	}
}

func TestFilterComplex(t *testing.T) {
	end := 120.0
	segs := []Segment{
		{Start: 0, End: &end},
		{Start: 300},
	}
	filter := FilterComplex(segs)

	for _, want := range []string{
		"[0:v]trim=start=0:end=120,setpts=PTS-STARTPTS[v0]",
		"[0:a]atrim=start=300,asetpts=PTS-STARTPTS[a1]",
		"[v0][a0][v1][a1]concat=n=2:v=1:a=1[outv][outa]",
	} {
		if !strings.Contains(filter, want) {
			t.Errorf("filter missing %q:\n%s", want, filter)
		}
	}
}

func TestFilterComplex_SingleSegment(t *testing.T) {
	filter := FilterComplex([]Segment{{Start: 0}})
	if !strings.Contains(filter, "concat=n=1:v=1:a=1[outv][outa]") {
		t.Errorf("filter = %s", filter)
	}
}

func TestFilterComplex_FractionalSeconds(t *testing.T) {
	end := 300.5
	filter := FilterComplex([]Segment{{Start: 120.25, End: &end}})
	if !strings.Contains(filter, "start=120.25:end=300.5") {
		t.Errorf("fractional timestamps mangled: %s", filter)
	}
}

func TestHasNoCommercials(t *testing.T) {
	dir := t.TempDir()

	missing := filepath.Join(dir, "absent.edl")
	if !HasNoCommercials(missing) {
		t.Error("missing EDL should read as commercial-free")
	}

	empty := filepath.Join(dir, "empty.edl")
	os.WriteFile(empty, []byte("# nothing found\n"), 0644)
	if !HasNoCommercials(empty) {
		t.Error("comment-only EDL should read as commercial-free")
	}

	withCuts := filepath.Join(dir, "cuts.edl")
	os.WriteFile(withCuts, []byte("120.0 300.0 0\n"), 0644)
	if HasNoCommercials(withCuts) {
		t.Error("EDL with entries reported as commercial-free")
	}
}

func TestParseFile_Missing(t *testing.T) {
	if _, err := ParseFile(filepath.Join(t.TempDir(), "absent.edl")); err == nil {
		t.Error("expected error for missing file")
	}
}
