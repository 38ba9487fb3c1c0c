/* Copyright (c) 2020 OpenCraft <https://opencraft.com>
 * SPDX-License-Identifier: AGPL-3.0 */
package dashboard

import (
    "regexp"
    "sort"
    "strconv"
    "strings"
)

// DailySchedule is one user's required work seconds per date over the queried
// range, including the padding days, plus the range total.
type DailySchedule struct {
    Days  map[string]float64
    Total float64
}

// AbsenceEvent is a calendar absence. User is a display-name prefix; the event
// may span several days, with PlannedPerDay seconds the user still intends to
// work on each of them.
type AbsenceEvent struct {
    User          string
    Start         string
    End           string
    PlannedPerDay float64
}

// vacationForDay attributes a day's unavailable seconds to the target window.
// Boundary days are split by the division fraction: the share of the user's
// workday that falls before the daily sync, with the timezone sign deciding
// which side of the boundary that share lands on. A zero division leaves the
// whole day on one side.
func vacationForDay(vacations float64, date string, w SprintWindow, division float64, positiveTZ bool) float64 {
    switch {
    case date < w.Start:
        if !positiveTZ && division != 0 { return vacations * (1 - division) }
        return 0
    case date == w.Start:
        if positiveTZ && division != 0 { return vacations * (1 - division) }
        return vacations
    case date == w.End:
        if !positiveTZ && division != 0 { return vacations * division }
        return vacations
    case date > w.End:
        if positiveTZ && division != 0 { return vacations * division }
        return 0
    }
    return vacations
}

// AllocateAbsence sums the absence seconds attributable to the window across
// all of the user's events, padded by one day on each side.
func AllocateAbsence(sched DailySchedule, events []AbsenceEvent, w SprintWindow, division float64, positiveTZ bool) float64 {
    padStart, padEnd := w.PaddedStart(), w.PaddedEnd()
    total := 0.0
    for _, ev := range events {
        from, to := ev.Start, ev.End
        if from < padStart { from = padStart }
        if to > padEnd { to = padEnd }
        for _, date := range Daterange(from, to) {
            vacations := sched.Days[date] - ev.PlannedPerDay
            total += vacationForDay(vacations, date, w, division, positiveTZ)
        }
    }
    return total
}

// MatchAbsences selects the events whose recorded name prefixes the member's
// display name. Events are sorted by name, so scanning stops once names pass
// the member.
func MatchAbsences(events []AbsenceEvent, displayName string) []AbsenceEvent {
    sorted := append([]AbsenceEvent(nil), events...)
    sort.Slice(sorted, func(i, j int) bool { return sorted[i].User < sorted[j].User })
    var out []AbsenceEvent
    for _, ev := range sorted {
        if strings.HasPrefix(displayName, ev.User) {
            out = append(out, ev)
            continue
        }
        if displayName < ev.User { break }
    }
    return out
}

// GoalSeconds nets a member's capacity for the window: the schedule total minus
// the two padding days, reserved meetings and allocated absence.
func GoalSeconds(sched DailySchedule, w SprintWindow, meetingSeconds int, absence float64) int {
    total := sched.Total - sched.Days[w.PaddedStart()] - sched.Days[w.PaddedEnd()]
    return int(total - float64(meetingSeconds) - absence)
}

var workHourRe = regexp.MustCompile(`(?i)(\d{1,2})(?::(\d{2}))?\s*(am|pm)`)

// MeetingDayDivision derives the boundary-split fraction from a working-hours
// string like "3pm - 1am". When the span crosses midnight the division is the
// share of the workday before it; spans within one day, or unparseable
// strings, give 0.
func MeetingDayDivision(workHours string) float64 {
    m := workHourRe.FindAllStringSubmatch(workHours, 2)
    if len(m) < 2 { return 0 }
    start := clockMinutes(m[0])
    end := clockMinutes(m[1])
    if end == 0 { end = 1440 }
    if end >= start { return 0 }
    return float64(1440-start) / float64(end+1440-start)
}

func clockMinutes(m []string) int {
    h, _ := strconv.Atoi(m[1])
    h %= 12
    if strings.EqualFold(m[3], "pm") { h += 12 }
    mins := h * 60
    if m[2] != "" {
        mm, _ := strconv.Atoi(m[2])
        mins += mm
    }
    return mins
}
