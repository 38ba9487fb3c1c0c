/* Copyright (c) 2020 OpenCraft <https://opencraft.com>
 * SPDX-License-Identifier: AGPL-3.0 */
package gcal

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "regexp"
    "strings"
    "time"

    "github.com/open-craft/sprints/internal/config"
    "github.com/open-craft/sprints/internal/dashboard"
    "github.com/rs/zerolog"
)

// Absences live in a shared calendar as events titled "<name> off".
var vacationRe = regexp.MustCompile(`(?i)^(.+?)\s+off\b`)

type Client struct {
    key        string
    calendarID string
    workdaySec float64
    http       *http.Client
    log        zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        key:        cfg.GoogleAPIKey,
        calendarID: cfg.GoogleCalendarID,
        workdaySec: float64(cfg.WorkdayHours) * 3600,
        http:       &http.Client{ Timeout: cfg.HTTPTimeout },
        log:        log,
    }
}

// Absences lists calendar events overlapping the range and converts them to
// absence events. All-day events mean no work planned; timed events leave the
// rest of a nominal workday planned.
func (c *Client) Absences(ctx context.Context, from, to string) ([]dashboard.AbsenceEvent, error) {
    if c.key == "" || c.calendarID == "" { return nil, errors.New("gcal: missing api key or calendar id") }
    q := url.Values{}
    q.Set("key", c.key)
    q.Set("timeMin", from+"T00:00:00Z")
    q.Set("timeMax", to+"T23:59:59Z")
    q.Set("singleEvents", "true")
    q.Set("orderBy", "startTime")
    u := "https://www.googleapis.com/calendar/v3/calendars/" + url.PathEscape(c.calendarID) + "/events?" + q.Encode()

    req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
    if err != nil { return nil, err }
    resp, err := c.http.Do(req)
    if err != nil { return nil, err }
    defer resp.Body.Close()
    if resp.StatusCode >= 300 {
        b, _ := io.ReadAll(resp.Body)
        return nil, fmt.Errorf("gcal events status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
    }
    var out struct {
        Items []struct {
            Summary string `json:"summary"`
            Start   struct {
                Date     string `json:"date"`
                DateTime string `json:"dateTime"`
            } `json:"start"`
            End struct {
                Date     string `json:"date"`
                DateTime string `json:"dateTime"`
            } `json:"end"`
        } `json:"items"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&out); err != nil { return nil, err }

    var events []dashboard.AbsenceEvent
    for _, it := range out.Items {
        m := vacationRe.FindStringSubmatch(it.Summary)
        if m == nil { continue }
        ev := dashboard.AbsenceEvent{User: strings.TrimSpace(m[1])}
        if it.Start.Date != "" {
            ev.Start = it.Start.Date
            // all-day end dates are exclusive
            ev.End = dashboard.AddDays(it.End.Date, -1)
        } else {
            start, err1 := time.Parse(time.RFC3339, it.Start.DateTime)
            end, err2 := time.Parse(time.RFC3339, it.End.DateTime)
            if err1 != nil || err2 != nil { continue }
            ev.Start = start.Format("2006-01-02")
            ev.End = end.Format("2006-01-02")
            if planned := c.workdaySec - end.Sub(start).Seconds(); planned > 0 { ev.PlannedPerDay = planned }
        }
        if ev.End < ev.Start { ev.End = ev.Start }
        events = append(events, ev)
    }
    return events, nil
}
