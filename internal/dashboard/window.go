/* Copyright (c) 2020 OpenCraft <https://opencraft.com>
 * SPDX-License-Identifier: AGPL-3.0 */
package dashboard

import (
    "fmt"
    "regexp"
    "strconv"
    "time"
)

const dateLayout = "2006-01-02"

// Sprint names look like "Sprint 205 (2020-11-17)": the number drives
// next-sprint arithmetic and the parenthesised date is the start day.
var (
    sprintNumberRe = regexp.MustCompile(`(\d+) \(`)
    sprintDateRe   = regexp.MustCompile(`\((.*)\)`)
)

// SprintWindow is one sprint's inclusive date range. Dates are ISO strings so
// the padded boundary days can be used directly as schedule keys.
type SprintWindow struct {
    Start string
    End   string
}

// PaddedStart is the day before the window, covering timezone spill.
func (w SprintWindow) PaddedStart() string { return AddDays(w.Start, -1) }

// PaddedEnd is the day after the window.
func (w SprintWindow) PaddedEnd() string { return AddDays(w.End, 1) }

func (w SprintWindow) Contains(date string) bool { return date >= w.Start && date <= w.End }

func SprintNumber(name string) (int, error) {
    m := sprintNumberRe.FindStringSubmatch(name)
    if m == nil { return 0, fmt.Errorf("no sprint number in %q", name) }
    return strconv.Atoi(m[1])
}

func SprintStartDate(name string) (string, error) {
    m := sprintDateRe.FindStringSubmatch(name)
    if m == nil { return "", fmt.Errorf("no start date in %q", name) }
    if _, err := time.Parse(dateLayout, m[1]); err != nil { return "", fmt.Errorf("bad start date in %q: %w", name, err) }
    return m[1], nil
}

// SprintEndDate derives the inclusive end from the start of the sprint after
// next; without one, sprints are assumed to be two weeks.
func SprintEndDate(start, nextNextStart string) string {
    if nextNextStart != "" { return AddDays(nextNextStart, -1) }
    return AddDays(start, 13)
}

func AddDays(date string, n int) string {
    t, err := time.Parse(dateLayout, date)
    if err != nil { return date }
    return t.AddDate(0, 0, n).Format(dateLayout)
}

// Daterange yields every date from start to end inclusive.
func Daterange(start, end string) []string {
    var out []string
    for d := start; d <= end; d = AddDays(d, 1) {
        out = append(out, d)
        if d == AddDays(d, 1) { break }
    }
    return out
}
