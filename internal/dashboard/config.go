/* Copyright (c) 2020 OpenCraft <https://opencraft.com>
 * SPDX-License-Identifier: AGPL-3.0 */
package dashboard

import (
    "fmt"
    "regexp"
    "sort"
    "strconv"
)

const directivePrefix = `(?i)plan\s*(?:(\d+)\s*h\D*)?(?:(\d+)\s*m\D*)?`

// Patterns for time directives embedded in issue descriptions.
var (
    RecurringPattern = regexp.MustCompile(directivePrefix + `per sprint for this task`)
    ReviewPattern    = regexp.MustCompile(directivePrefix + `for reviewing this task`)
    EpicPattern      = regexp.MustCompile(directivePrefix + `per sprint for epic management`)
)

type reviewBreakpoint struct {
    points  float64
    seconds int
}

// ReviewTable maps story points to planned review seconds. Keys act as
// upper-bound breakpoints; the "null" entry covers unestimated issues.
type ReviewTable struct {
    defaultSeconds int
    breakpoints    []reviewBreakpoint
}

// ParseReviewTable builds a table from a raw hours map as found in
// configuration, e.g. {"null": 2, "1.9": 0.5, "2": 1, "3": 2, "5": 3, "5.1": 5}.
// A missing "null" key is a configuration error and aborts startup.
func ParseReviewTable(hours map[string]float64) (ReviewTable, error) {
    t := ReviewTable{defaultSeconds: -1}
    for k, v := range hours {
        if k == "null" {
            t.defaultSeconds = int(v * 3600)
            continue
        }
        p, err := strconv.ParseFloat(k, 64)
        if err != nil { return ReviewTable{}, fmt.Errorf("review table: bad key %q: %w", k, err) }
        t.breakpoints = append(t.breakpoints, reviewBreakpoint{points: p, seconds: int(v * 3600)})
    }
    if t.defaultSeconds < 0 { return ReviewTable{}, fmt.Errorf("review table: missing required %q key", "null") }
    sort.Slice(t.breakpoints, func(i, j int) bool { return t.breakpoints[i].points < t.breakpoints[j].points })
    return t, nil
}

// Lookup returns the review seconds for the given story points. Unset points
// use the default entry. Points are truncated to whole story points before
// choosing the smallest breakpoint that covers them; points above the last
// breakpoint fall back to it.
func (t ReviewTable) Lookup(points *float64) int {
    if points == nil { return t.defaultSeconds }
    p := float64(int(*points))
    for _, b := range t.breakpoints {
        if b.points >= p { return b.seconds }
    }
    if n := len(t.breakpoints); n > 0 { return t.breakpoints[n-1].seconds }
    return t.defaultSeconds
}

// Config carries the engine settings. It is immutable and threaded explicitly
// into classification and aggregation; nothing reads ambient globals.
type Config struct {
    RecurringPattern *regexp.Regexp
    ReviewPattern    *regexp.Regexp
    EpicPattern      *regexp.Regexp

    ReviewTable ReviewTable

    StatusExternalReview string
    StatusMerged         string
    StatusRecurring      string
    EpicIssueType        string
    ImpedimentFlag       string

    MeetingSeconds           int
    EpicManagementSeconds    int
    DefaultCommitmentSeconds int
}

func NewConfig(table ReviewTable) Config {
    return Config{
        RecurringPattern:         RecurringPattern,
        ReviewPattern:            ReviewPattern,
        EpicPattern:              EpicPattern,
        ReviewTable:              table,
        StatusExternalReview:     "External Review / Blocker",
        StatusMerged:             "Merged",
        StatusRecurring:          "Recurring",
        EpicIssueType:            "Epic",
        ImpedimentFlag:           "Impediment",
        MeetingSeconds:           2 * 3600,
        EpicManagementSeconds:    2 * 3600,
        DefaultCommitmentSeconds: 40 * 3600,
    }
}

// noMoreReview reports whether the status means review work is finished.
func (c Config) noMoreReview(status string) bool {
    return status == c.StatusExternalReview || status == c.StatusMerged
}
