/* Copyright (c) 2020 OpenCraft <https://opencraft.com>
 * SPDX-License-Identifier: AGPL-3.0 */
package dashboard

import (
    "errors"
    "regexp"
    "strconv"
)

// ErrDirectiveNotFound is returned when a description carries no directive for
// the given pattern. Callers fall back to configured defaults; the error never
// reaches the engine's caller.
var ErrDirectiveNotFound = errors.New("time directive not found")

// ParseDirective extracts a duration in seconds from free-text. The grammar is
// an hour count glued to any non-digit run, then an optional minute count glued
// to a non-digit run, so "plan 3h10m ..." and "plan 5 hours 10 minutes ..."
// both parse. A match with neither group captured counts as not found.
func ParseDirective(text string, pattern *regexp.Regexp) (int, error) {
    if text == "" { return 0, ErrDirectiveNotFound }
    m := pattern.FindStringSubmatch(text)
    if m == nil { return 0, ErrDirectiveNotFound }
    if m[1] == "" && m[2] == "" { return 0, ErrDirectiveNotFound }
    hours := 0
    minutes := 0
    if m[1] != "" { hours, _ = strconv.Atoi(m[1]) }
    if m[2] != "" { minutes, _ = strconv.Atoi(m[2]) }
    return hours*3600 + minutes*60, nil
}
