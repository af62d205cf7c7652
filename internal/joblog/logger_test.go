package joblog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogger_AppendScanRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processing.log")
	l, err := NewLogger(path, 0)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer l.Close()

	code := 6
	if err := l.Start("attempt-1", "show1.ts"); err != nil {
		t.Fatal(err)
	}
	if err := l.Failure("attempt-1", "show1.ts", PhaseCut, "cutter failed", &code); err != nil {
		t.Fatal(err)
	}
	if err := l.Start("attempt-2", "show2.ts"); err != nil {
		t.Fatal(err)
	}
	if err := l.Success("attempt-2", "show2.ts"); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	outcomes, err := Outcomes(f)
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	if !outcomes["show1.ts"] {
		t.Error("show1.ts should read as failed")
	}
	if outcomes["show2.ts"] {
		t.Error("show2.ts should read as succeeded")
	}
}

func TestLogger_LineFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processing.log")
	l, err := NewLogger(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Start("a1", "show.ts"); err != nil {
		t.Fatal(err)
	}
	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(string(data))

	var rec Record
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("line is not a JSON record: %v", err)
	}
	if rec.Item != "show.ts" || rec.Phase != PhaseStart || rec.Attempt != "a1" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Time.IsZero() {
		t.Error("zero time not stamped")
	}
	// Optional fields stay off the wire.
	if strings.Contains(line, "exit_code") || strings.Contains(line, "outcome") {
		t.Errorf("empty optional fields serialized: %s", line)
	}
}

func TestLogger_AppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processing.log")

	l1, err := NewLogger(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	l1.Start("a1", "show1.ts")
	l1.Close()

	// A second opener must append, not truncate.
	l2, err := NewLogger(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	l2.Start("a2", "show2.ts")
	l2.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Errorf("expected 2 lines, got %d", len(lines))
	}
}

func TestLogger_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processing.log")

	l, err := NewLogger(path, 200)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	for i := 0; i < 10; i++ {
		if err := l.Start("a", "some-show-with-a-long-name.ts"); err != nil {
			t.Fatal(err)
		}
	}

	archives, err := os.ReadDir(filepath.Join(dir, "archive"))
	if err != nil {
		t.Fatalf("no archive directory: %v", err)
	}
	if len(archives) == 0 {
		t.Error("no archived log files after exceeding max size")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Error("current log empty after rotation")
	}
}
