package blacklist

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "blacklist"), nil)
}

func TestStore_MissingFile(t *testing.T) {
	s := newTestStore(t)

	set, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(set) != 0 {
		t.Errorf("set = %v, want empty", set)
	}

	listed, err := s.Contains("show.ts")
	if err != nil {
		t.Fatal(err)
	}
	if listed {
		t.Error("Contains true against missing file")
	}
}

func TestStore_AddContains(t *testing.T) {
	s := newTestStore(t)

	if err := s.Add("show.ts"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	listed, err := s.Contains("show.ts")
	if err != nil {
		t.Fatal(err)
	}
	if !listed {
		t.Error("added name not listed")
	}

	listed, _ = s.Contains("other.ts")
	if listed {
		t.Error("unlisted name reported as blacklisted")
	}
}

func TestStore_AddIdempotent(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		if err := s.Add("show.ts"); err != nil {
			t.Fatal(err)
		}
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "show.ts"); n != 1 {
		t.Errorf("name appears %d times, want 1", n)
	}
}

func TestStore_PreservesManualEdits(t *testing.T) {
	s := newTestStore(t)

	// The file is hand-editable; comments and ordering must survive Add.
	manual := "# broken recordings\nfirst.ts\n\nsecond.ts\n"
	if err := os.WriteFile(s.path, []byte(manual), 0644); err != nil {
		t.Fatal(err)
	}

	if err := s.Add("third.ts"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "# broken recordings\nfirst.ts\n") {
		t.Errorf("manual content disturbed:\n%s", content)
	}
	if !strings.HasSuffix(content, "third.ts\n") {
		t.Errorf("new entry not appended:\n%s", content)
	}

	set, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if set["# broken recordings"] {
		t.Error("comment line loaded as an entry")
	}
	if !set["first.ts"] || !set["second.ts"] || !set["third.ts"] {
		t.Errorf("set = %v", set)
	}
}

func TestStore_AddEmpty(t *testing.T) {
	s := newTestStore(t)
	if err := s.Add("  "); err == nil {
		t.Error("expected error for blank name")
	}
}

func TestStore_ConcurrentAdd(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Add("show.ts"); err != nil {
				t.Errorf("Add: %v", err)
			}
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "show.ts"); n != 1 {
		t.Errorf("name appears %d times after concurrent adds", n)
	}
}
