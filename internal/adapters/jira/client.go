/* Copyright (c) 2020 OpenCraft <https://opencraft.com>
 * SPDX-License-Identifier: AGPL-3.0 */
package jira

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "regexp"
    "strconv"
    "strings"
    "time"

    "github.com/open-craft/sprints/internal/config"
    "github.com/open-craft/sprints/internal/dashboard"
    "github.com/open-craft/sprints/internal/domain"
    "github.com/rs/zerolog"
)

// Logical field names resolved against the tracker's field list once per
// client. "Reviewer 1", "Flagged" and "Sprint" are custom fields whose ids
// differ per instance.
const (
    fieldReviewer = "Reviewer 1"
    fieldFlagged  = "Flagged"
    fieldSprint   = "Sprint"
)

var sprintIDRe = regexp.MustCompile(`\bid=(\d+)`)

type Client struct {
    baseURL       string
    token         string
    user          string
    pass          string
    boardPrefix   string
    quickfilterRe *regexp.Regexp
    pointsName    string
    http          *http.Client
    log           zerolog.Logger

    fields map[string]string // logical name -> field id
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        baseURL:       cfg.JiraBaseURL,
        token:         cfg.JiraPAT,
        user:          cfg.JiraUsername,
        pass:          cfg.JiraPassword,
        boardPrefix:   cfg.BoardPrefix,
        quickfilterRe: regexp.MustCompile(cfg.QuickfilterRe),
        pointsName:    cfg.StoryPointsName,
        http:          &http.Client{ Timeout: cfg.HTTPTimeout },
        log:           log,
    }
}

func (c *Client) apiURL(path string, q url.Values) string {
    base := strings.TrimRight(c.baseURL, "/")
    if !strings.HasPrefix(path, "/") { path = "/" + path }
    u := base + path
    if len(q) > 0 { u = u + "?" + q.Encode() }
    return u
}

func (c *Client) doJSON(ctx context.Context, method, u string, out any) error {
    if c.baseURL == "" { return errors.New("jira: empty baseURL") }
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        req, err := http.NewRequestWithContext(ctx, method, u, nil)
        if err != nil { return err }
        if c.token != "" {
            req.Header.Set("Authorization", "Bearer "+c.token)
        } else if c.user != "" && c.pass != "" {
            req.SetBasicAuth(c.user, c.pass)
        }
        resp, err := c.http.Do(req)
        if err != nil {
            lastErr = err
        } else {
            body, rerr := io.ReadAll(resp.Body)
            resp.Body.Close()
            if rerr != nil { return rerr }
            if resp.StatusCode < 300 { return json.Unmarshal(body, out) }
            lastErr = fmt.Errorf("jira api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
            // retry on 429/5xx only
            if resp.StatusCode != 429 && resp.StatusCode < 500 { return lastErr }
        }
        time.Sleep(time.Duration(300*(1<<attempt)) * time.Millisecond)
    }
    return lastErr
}

// Cells discovers teams from boards whose name carries the sprint prefix; the
// remainder of the name is the cell name and its issue-key prefix.
func (c *Client) Cells(ctx context.Context) ([]domain.Cell, error) {
    var out []domain.Cell
    start := 0
    for {
        q := url.Values{}
        q.Set("startAt", fmt.Sprint(start))
        q.Set("maxResults", "50")
        var page struct {
            Values []struct {
                ID       int64  `json:"id"`
                Name     string `json:"name"`
                Location struct {
                    ProjectKey string `json:"projectKey"`
                } `json:"location"`
            } `json:"values"`
            IsLast bool `json:"isLast"`
        }
        if err := c.doJSON(ctx, http.MethodGet, c.apiURL("/rest/agile/1.0/board", q), &page); err != nil { return nil, err }
        for _, b := range page.Values {
            if !strings.HasPrefix(b.Name, c.boardPrefix) { continue }
            name := strings.TrimPrefix(b.Name, c.boardPrefix)
            prefix := b.Location.ProjectKey
            if prefix == "" { prefix = name }
            out = append(out, domain.Cell{Name: name, BoardID: b.ID, KeyPrefix: prefix + "-"})
        }
        if page.IsLast || len(page.Values) == 0 { break }
        start += 50
    }
    return out, nil
}

func (c *Client) Sprints(ctx context.Context, boardID int64) ([]domain.Sprint, error) {
    var out []domain.Sprint
    start := 0
    for {
        q := url.Values{}
        q.Set("startAt", fmt.Sprint(start))
        q.Set("maxResults", "50")
        var page struct {
            Values []struct {
                ID    int64  `json:"id"`
                Name  string `json:"name"`
                State string `json:"state"`
            } `json:"values"`
            IsLast bool `json:"isLast"`
        }
        path := "/rest/agile/1.0/board/" + strconv.FormatInt(boardID, 10) + "/sprint"
        if err := c.doJSON(ctx, http.MethodGet, c.apiURL(path, q), &page); err != nil { return nil, err }
        for _, s := range page.Values {
            out = append(out, domain.Sprint{ID: s.ID, Name: s.Name, State: s.State})
        }
        if page.IsLast || len(page.Values) == 0 { break }
        start += 50
    }
    return out, nil
}

// Members derives the cell roster from the board's quickfilters and resolves
// each username's profile for display name and timezone.
func (c *Client) Members(ctx context.Context, boardID int64) ([]domain.Member, error) {
    var filters []struct {
        Name  string `json:"name"`
        Query string `json:"query"`
    }
    path := "/rest/greenhopper/1.0/quickfilters/" + strconv.FormatInt(boardID, 10)
    if err := c.doJSON(ctx, http.MethodGet, c.apiURL(path, nil), &filters); err != nil { return nil, err }
    var out []domain.Member
    seen := map[string]bool{}
    for _, f := range filters {
        m := c.quickfilterRe.FindStringSubmatch(f.Query)
        if m == nil { continue }
        username := m[1]
        if seen[username] { continue }
        seen[username] = true
        member := domain.Member{Username: username, DisplayName: username}
        if u, err := c.lookupUser(ctx, username); err == nil {
            member.DisplayName = u.DisplayName
            member.TimezoneOffset = tzOffsetHours(u.TimeZone)
        } else {
            c.log.Warn().Err(err).Str("user", username).Msg("jira: user lookup failed")
        }
        out = append(out, member)
    }
    return out, nil
}

type jiraUser struct {
    Name        string `json:"name"`
    DisplayName string `json:"displayName"`
    TimeZone    string `json:"timeZone"`
}

func (c *Client) lookupUser(ctx context.Context, username string) (*jiraUser, error) {
    q := url.Values{}
    q.Set("username", username)
    var u jiraUser
    if err := c.doJSON(ctx, http.MethodGet, c.apiURL("/rest/api/2/user", q), &u); err != nil { return nil, err }
    return &u, nil
}

func tzOffsetHours(name string) float64 {
    loc, err := time.LoadLocation(name)
    if err != nil { return 0 }
    _, offset := time.Now().In(loc).Zone()
    return float64(offset) / 3600
}

// Issues runs the JQL against the board and maps each issue to the engine's
// raw view, resolving custom fields by logical name first.
func (c *Client) Issues(ctx context.Context, boardID int64, jql string) ([]dashboard.RawIssue, error) {
    if err := c.ensureFields(ctx); err != nil { return nil, err }
    var out []dashboard.RawIssue
    start := 0
    for {
        q := url.Values{}
        q.Set("startAt", fmt.Sprint(start))
        q.Set("maxResults", "50")
        q.Set("fields", "*all")
        if strings.TrimSpace(jql) != "" { q.Set("jql", jql) }
        var page struct {
            Issues []json.RawMessage `json:"issues"`
            Total  int               `json:"total"`
        }
        path := "/rest/agile/1.0/board/" + strconv.FormatInt(boardID, 10) + "/issue"
        if err := c.doJSON(ctx, http.MethodGet, c.apiURL(path, q), &page); err != nil { return nil, err }
        if len(page.Issues) == 0 { break }
        for _, raw := range page.Issues {
            var m map[string]any
            if err := json.Unmarshal(raw, &m); err != nil { continue }
            out = append(out, c.toRawIssue(m))
        }
        start += len(page.Issues)
        if start >= page.Total { break }
    }
    return out, nil
}

func (c *Client) toRawIssue(m map[string]any) dashboard.RawIssue {
    fields, _ := m["fields"].(map[string]any)
    ri := dashboard.RawIssue{Key: toStr(m["key"])}
    if tp, ok := fields["issuetype"].(map[string]any); ok { ri.Type = toStr(tp["name"]) }
    if st, ok := fields["status"].(map[string]any); ok { ri.Status = toStr(st["name"]) }
    if as, ok := fields["assignee"].(map[string]any); ok { ri.Assignee = toStr(as["name"]) }
    if rv, ok := fields[c.fields[fieldReviewer]].(map[string]any); ok { ri.Reviewer = toStr(rv["name"]) }
    if v, ok := fields[c.fields[c.pointsName]].(float64); ok { tmp := v; ri.StoryPoints = &tmp }
    if tt, ok := fields["timetracking"].(map[string]any); ok {
        if v, ok := tt["remainingEstimateSeconds"].(float64); ok { ri.RemainingSeconds = int(v) }
    }
    if ri.RemainingSeconds == 0 {
        if v, ok := fields["timeestimate"].(float64); ok { ri.RemainingSeconds = int(v) }
    }
    if fl, ok := fields[c.fields[fieldFlagged]].([]any); ok {
        for _, f0 := range fl {
            if fm, _ := f0.(map[string]any); fm != nil { ri.Flags = append(ri.Flags, toStr(fm["value"])) }
        }
    }
    ri.SprintIDs = sprintIDs(fields[c.fields[fieldSprint]])
    ri.Description = toStr(fields["description"])
    return ri
}

// sprintIDs handles both object and serialized "...[id=123,...]" renderings of
// the sprint custom field.
func sprintIDs(v any) []int64 {
    arr, _ := v.([]any)
    var out []int64
    for _, s0 := range arr {
        switch s := s0.(type) {
        case map[string]any:
            if id, ok := s["id"].(float64); ok { out = append(out, int64(id)) }
        case string:
            if m := sprintIDRe.FindStringSubmatch(s); m != nil {
                if id, err := strconv.ParseInt(m[1], 10, 64); err == nil { out = append(out, id) }
            }
        }
    }
    return out
}

// Schedule fetches a user's required work seconds per day from the tempo
// schedule endpoint.
func (c *Client) Schedule(ctx context.Context, username, from, to string) (dashboard.DailySchedule, error) {
    q := url.Values{}
    q.Set("user", username)
    q.Set("from", from)
    q.Set("to", to)
    var resp struct {
        RequiredSeconds float64 `json:"requiredSeconds"`
        Days            []struct {
            Date            string  `json:"date"`
            RequiredSeconds float64 `json:"requiredSeconds"`
        } `json:"days"`
    }
    if err := c.doJSON(ctx, http.MethodGet, c.apiURL("/rest/tempo-core/1/user/schedule", q), &resp); err != nil {
        return dashboard.DailySchedule{}, err
    }
    sched := dashboard.DailySchedule{Days: make(map[string]float64, len(resp.Days)), Total: resp.RequiredSeconds}
    for _, d := range resp.Days { sched.Days[d.Date] = d.RequiredSeconds }
    return sched, nil
}

func (c *Client) ensureFields(ctx context.Context) error {
    if c.fields != nil { return nil }
    var all []struct {
        ID   string `json:"id"`
        Name string `json:"name"`
    }
    if err := c.doJSON(ctx, http.MethodGet, c.apiURL("/rest/api/2/field", nil), &all); err != nil { return err }
    fields := map[string]string{}
    for _, f := range all {
        switch f.Name {
        case fieldReviewer, fieldFlagged, fieldSprint, c.pointsName:
            fields[f.Name] = f.ID
        }
    }
    c.fields = fields
    c.log.Info().Fields(map[string]any{"fields": fields}).Msg("jira fields resolved")
    return nil
}

func toStr(v any) string {
    if v == nil { return "" }
    if s, ok := v.(string); ok { return s }
    return fmt.Sprintf("%v", v)
}
