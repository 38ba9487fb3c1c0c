package dashboard

import "testing"

func TestSprintNameParsing(t *testing.T) {
    n, err := SprintNumber("Sprint 205 (2020-11-17)")
    if err != nil { t.Fatalf("number: %v", err) }
    if n != 205 { t.Fatalf("number: got %d", n) }

    start, err := SprintStartDate("Sprint 205 (2020-11-17)")
    if err != nil { t.Fatalf("start: %v", err) }
    if start != "2020-11-17" { t.Fatalf("start: got %q", start) }

    if _, err := SprintNumber("Backlog"); err == nil { t.Fatalf("expected error for unnumbered sprint") }
    if _, err := SprintStartDate("Sprint 205 (TBD)"); err == nil { t.Fatalf("expected error for undated sprint") }
}

func TestSprintEndDate(t *testing.T) {
    if got := SprintEndDate("2020-11-17", "2020-12-15"); got != "2020-12-14" {
        t.Fatalf("end from next-next: got %q", got)
    }
    // Without a sprint after next, assume a two-week cadence.
    if got := SprintEndDate("2020-11-17", ""); got != "2020-11-30" {
        t.Fatalf("fallback end: got %q", got)
    }
}

func TestDaterangeInclusive(t *testing.T) {
    got := Daterange("2020-11-28", "2020-12-01")
    want := []string{"2020-11-28", "2020-11-29", "2020-11-30", "2020-12-01"}
    if len(got) != len(want) { t.Fatalf("daterange: got %#v", got) }
    for i := range want {
        if got[i] != want[i] { t.Fatalf("daterange[%d]: got %q, want %q", i, got[i], want[i]) }
    }
    if got := Daterange("2020-12-02", "2020-12-01"); got != nil {
        t.Fatalf("inverted range: got %#v", got)
    }
}

func TestWindowPadding(t *testing.T) {
    w := SprintWindow{Start: "2020-11-17", End: "2020-11-30"}
    if w.PaddedStart() != "2020-11-16" { t.Fatalf("padded start: %q", w.PaddedStart()) }
    if w.PaddedEnd() != "2020-12-01" { t.Fatalf("padded end: %q", w.PaddedEnd()) }
    if !w.Contains("2020-11-17") || !w.Contains("2020-11-30") { t.Fatalf("window must include both boundaries") }
    if w.Contains("2020-12-01") { t.Fatalf("padding day inside window") }
}
