package joblog

import (
	"fmt"
	"strings"
	"testing"
)

func jsonLine(item, phase, outcome string) string {
	rec := fmt.Sprintf(`{"time":"2023-07-15T20:15:00Z","item":%q,"phase":%q`, item, phase)
	if outcome != "" {
		rec += fmt.Sprintf(`,"outcome":%q`, outcome)
	}
	return rec + "}"
}

func TestOutcomes_LastBlockWins(t *testing.T) {
	// show1 fails, show2 succeeds, then show1 is retried and succeeds.
	log := strings.Join([]string{
		jsonLine("show1.ts", PhaseStart, ""),
		jsonLine("show1.ts", PhaseCut, OutcomeFailed),
		jsonLine("show2.ts", PhaseStart, ""),
		jsonLine("show2.ts", PhaseDone, OutcomeOK),
		jsonLine("show1.ts", PhaseStart, ""),
		jsonLine("show1.ts", PhaseDone, OutcomeOK),
	}, "\n")

	set, err := RetrySet(strings.NewReader(log))
	if err != nil {
		t.Fatal(err)
	}
	if len(set) != 0 {
		t.Errorf("retry set = %v, want empty", set)
	}
}

func TestOutcomes_BothFailed(t *testing.T) {
	log := strings.Join([]string{
		jsonLine("show1.ts", PhaseStart, ""),
		jsonLine("show1.ts", PhaseCut, OutcomeFailed),
		jsonLine("show2.ts", PhaseStart, ""),
		jsonLine("show2.ts", PhaseCut, OutcomeFailed),
	}, "\n")

	set, err := RetrySet(strings.NewReader(log))
	if err != nil {
		t.Fatal(err)
	}
	if !set["show1.ts"] || !set["show2.ts"] || len(set) != 2 {
		t.Errorf("retry set = %v, want both shows", set)
	}
}

func TestOutcomes_FailureThenSuccessInBlock(t *testing.T) {
	// A repair-stage failure followed by a cut success inside the same block
	// reads as success: the last marker wins.
	log := strings.Join([]string{
		jsonLine("show1.ts", PhaseStart, ""),
		jsonLine("show1.ts", PhaseDetect, OutcomeFailed),
		jsonLine("show1.ts", PhaseDone, OutcomeOK),
	}, "\n")

	set, err := RetrySet(strings.NewReader(log))
	if err != nil {
		t.Fatal(err)
	}
	if len(set) != 0 {
		t.Errorf("retry set = %v, want empty", set)
	}
}

func TestOutcomes_OpenFinalBlock(t *testing.T) {
	// A block with a failure marker and no terminator (worker died mid-item)
	// finalizes as failed at end of stream.
	log := strings.Join([]string{
		jsonLine("show1.ts", PhaseStart, ""),
		jsonLine("show1.ts", PhaseCut, OutcomeFailed),
	}, "\n")

	set, err := RetrySet(strings.NewReader(log))
	if err != nil {
		t.Fatal(err)
	}
	if !set["show1.ts"] {
		t.Errorf("retry set = %v, want show1.ts", set)
	}
}

func TestOutcomes_StartOnlyBlock(t *testing.T) {
	// Started but never marked: no failure marker, so not a retry candidate.
	log := jsonLine("show1.ts", PhaseStart, "")

	set, err := RetrySet(strings.NewReader(log))
	if err != nil {
		t.Fatal(err)
	}
	if len(set) != 0 {
		t.Errorf("retry set = %v, want empty", set)
	}
}

func TestOutcomes_LegacyMarkers(t *testing.T) {
	log := strings.Join([]string{
		"2023-07-15 20:15:01 === Verarbeitung gestartet: show1.ts ===",
		"2023-07-15 20:45:12 ✗ Python Exit: 6",
		"2023-07-15 20:45:13 === Verarbeitung gestartet: show2.ts ===",
		"2023-07-15 21:30:44 ✓ Video erfolgreich verarbeitet",
	}, "\n")

	set, err := RetrySet(strings.NewReader(log))
	if err != nil {
		t.Fatal(err)
	}
	if !set["show1.ts"] || len(set) != 1 {
		t.Errorf("retry set = %v, want only show1.ts", set)
	}
}

func TestOutcomes_LegacyFailureVariants(t *testing.T) {
	for _, marker := range []string{
		"✗ Python Exit: 137",
		"✗ Fatale Ausnahme beim Schneiden",
		"✗ Ausgabedatei fehlt oder leer",
	} {
		log := "=== Verarbeitung gestartet: show.ts ===\n" + marker
		set, err := RetrySet(strings.NewReader(log))
		if err != nil {
			t.Fatal(err)
		}
		if !set["show.ts"] {
			t.Errorf("marker %q not recognized as failure", marker)
		}
	}
}

func TestOutcomes_MixedFormats(t *testing.T) {
	// Old shell-pipeline lines and JSON records interleaved in one stream.
	log := strings.Join([]string{
		"=== Verarbeitung gestartet: old-show.ts ===",
		"✗ Python Exit: 6",
		jsonLine("new-show.ts", PhaseStart, ""),
		jsonLine("new-show.ts", PhaseDone, OutcomeOK),
	}, "\n")

	set, err := RetrySet(strings.NewReader(log))
	if err != nil {
		t.Fatal(err)
	}
	if !set["old-show.ts"] || len(set) != 1 {
		t.Errorf("retry set = %v, want only old-show.ts", set)
	}
}

func TestOutcomes_IgnoresNoise(t *testing.T) {
	log := strings.Join([]string{
		"",
		"random diagnostic output",
		"{not valid json",
		jsonLine("show.ts", PhaseStart, ""),
		jsonLine("show.ts", PhaseDone, OutcomeOK),
	}, "\n")

	outcomes, err := Outcomes(strings.NewReader(log))
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 1 {
		t.Errorf("outcomes = %v, want one item", outcomes)
	}
}

func TestOutcomes_Empty(t *testing.T) {
	set, err := RetrySet(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if len(set) != 0 {
		t.Errorf("retry set = %v", set)
	}
}
