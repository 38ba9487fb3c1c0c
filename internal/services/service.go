/* Copyright (c) 2020 OpenCraft <https://opencraft.com>
 * SPDX-License-Identifier: AGPL-3.0 */
package services

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "sync"
    "time"

    "github.com/open-craft/sprints/internal/config"
    "github.com/open-craft/sprints/internal/dashboard"
    "github.com/open-craft/sprints/internal/domain"
    "github.com/open-craft/sprints/internal/repo"
    "github.com/rs/zerolog"
)

type Tracker interface {
    Cells(ctx context.Context) ([]domain.Cell, error)
    Sprints(ctx context.Context, boardID int64) ([]domain.Sprint, error)
    Members(ctx context.Context, boardID int64) ([]domain.Member, error)
    Issues(ctx context.Context, boardID int64, jql string) ([]dashboard.RawIssue, error)
    Schedule(ctx context.Context, username, from, to string) (dashboard.DailySchedule, error)
}

type AbsenceSource interface {
    Absences(ctx context.Context, from, to string) ([]dashboard.AbsenceEvent, error)
}

type Notifier interface {
    Send(ctx context.Context, text string) error
}

type LLM interface {
    Summarize(ctx context.Context, digest string) (string, error)
}

type Service struct {
    cfg       config.Config
    log       zerolog.Logger
    engine    dashboard.Config
    repo      *repo.Repository
    tracker   Tracker
    absences  AbsenceSource
    notifier  Notifier
    llm       LLM
    workHours map[string]string
    http      *http.Client
}

func New(cfg config.Config, log zerolog.Logger, eng dashboard.Config, r *repo.Repository, tracker Tracker, absences AbsenceSource, notifier Notifier, llm LLM) *Service {
    s := &Service{
        cfg: cfg, log: log, engine: eng, repo: r,
        tracker: tracker, absences: absences, notifier: notifier, llm: llm,
        http: &http.Client{ Timeout: 10 * time.Second },
    }
    s.workHours = map[string]string{}
    if raw := strings.TrimSpace(cfg.MemberWorkHoursJSON); raw != "" {
        if err := json.Unmarshal([]byte(raw), &s.workHours); err != nil {
            log.Warn().Err(err).Msg("MEMBER_WORK_HOURS: bad json, ignoring")
        }
    }
    return s
}

// RowView is the serialized form of one member's capacity row.
type RowView struct {
    User                   string   `json:"user"`
    CurrentAssigneeSeconds int      `json:"current_assignee_seconds"`
    CurrentReviewSeconds   int      `json:"current_review_seconds"`
    CurrentUpstreamSeconds int      `json:"current_upstream_seconds"`
    FutureAssigneeSeconds  int      `json:"future_assignee_seconds"`
    FutureReviewSeconds    int      `json:"future_review_seconds"`
    FutureEpicMgmtSeconds  int      `json:"future_epic_management_seconds"`
    FlaggedSeconds         int      `json:"flagged_seconds"`
    GoalSeconds            int      `json:"goal_seconds"`
    AbsenceSeconds         float64  `json:"absence_seconds"`
    CommittedSeconds       int      `json:"committed_seconds"`
    RemainingSeconds       int      `json:"remaining_seconds"`
    Incomplete             bool     `json:"incomplete,omitempty"`
    CurrentUnestimated     []string `json:"current_unestimated,omitempty"`
    FutureUnestimated      []string `json:"future_unestimated,omitempty"`
}

type Dashboard struct {
    Cell   string                 `json:"cell"`
    BoardID int64                 `json:"board_id"`
    Window dashboard.SprintWindow `json:"window"`
    Rows   []RowView              `json:"rows"`
}

// CellResult is one team's outcome during fan-out; a failed cell carries its
// error without affecting the rest of the batch.
type CellResult struct {
    Cell      domain.Cell
    Dashboard *Dashboard
    Err       error
}

func (s *Service) Cells(ctx context.Context) ([]domain.Cell, error) { return s.tracker.Cells(ctx) }

func (s *Service) BuildDashboardByBoard(ctx context.Context, boardID int64) (*Dashboard, error) {
    cells, err := s.tracker.Cells(ctx)
    if err != nil { return nil, err }
    for _, c := range cells {
        if c.BoardID == boardID { return s.BuildDashboard(ctx, c) }
    }
    return nil, fmt.Errorf("no cell with board id %d", boardID)
}

// BuildDashboard computes one cell's capacity rows for the sprint being
// planned. Schedule fetches run concurrently per member and must all settle
// before aggregation; a member whose fetch fails keeps an incomplete row with
// default capacity instead of failing the build.
func (s *Service) BuildDashboard(ctx context.Context, cell domain.Cell) (*Dashboard, error) {
    sprints, err := s.tracker.Sprints(ctx, cell.BoardID)
    if err != nil { return nil, fmt.Errorf("%s: sprints: %w", cell.Name, err) }
    active, next, window, err := nextSprintWindow(sprints)
    if err != nil { return nil, fmt.Errorf("%s: %w", cell.Name, err) }

    members, err := s.tracker.Members(ctx, cell.BoardID)
    if err != nil { return nil, fmt.Errorf("%s: members: %w", cell.Name, err) }
    roster := make(map[string]bool, len(members))
    for _, m := range members { roster[m.Username] = true }

    jql := fmt.Sprintf(`sprint in (%d, %d) OR status = "%s" OR issuetype = Epic`, active.ID, next.ID, s.engine.StatusRecurring)
    issues, err := s.tracker.Issues(ctx, cell.BoardID, jql)
    if err != nil { return nil, fmt.Errorf("%s: issues: %w", cell.Name, err) }

    events, absErr := s.absences.Absences(ctx, window.PaddedStart(), window.PaddedEnd())
    if absErr != nil { s.log.Error().Err(absErr).Str("cell", cell.Name).Msg("absence fetch failed") }

    schedules, schedErrs := s.fetchSchedules(ctx, members, window)

    engCtx := dashboard.Context{
        KeyPrefix:       cell.KeyPrefix,
        Roster:          roster,
        ActiveSprintIDs: map[int64]bool{active.ID: true},
    }
    rows := dashboard.NewRows()
    for _, raw := range issues {
        ci := dashboard.Classify(s.engine, engCtx, raw)
        rows.Accumulate(s.engine, ci)
    }

    for _, m := range members {
        row := rows.Get(dashboard.RealUser(m.Username))
        if schedErrs[m.Username] != nil || absErr != nil {
            row.Incomplete = true
            row.GoalSeconds = s.engine.DefaultCommitmentSeconds - s.engine.MeetingSeconds
            continue
        }
        sched := schedules[m.Username]
        division := dashboard.MeetingDayDivision(s.memberWorkHours(m))
        positiveTZ := m.TimezoneOffset >= 0
        evs := dashboard.MatchAbsences(events, m.DisplayName)
        row.AbsenceSeconds = dashboard.AllocateAbsence(sched, evs, window, division, positiveTZ)
        row.GoalSeconds = dashboard.GoalSeconds(sched, window, s.engine.MeetingSeconds, row.AbsenceSeconds)
    }

    out := &Dashboard{Cell: cell.Name, BoardID: cell.BoardID, Window: window}
    for _, r := range rows.Reduce(roster) { out.Rows = append(out.Rows, rowView(r)) }
    return out, nil
}

func (s *Service) memberWorkHours(m domain.Member) string {
    if wh, ok := s.workHours[m.Username]; ok { return wh }
    return m.WorkHours
}

func (s *Service) fetchSchedules(ctx context.Context, members []domain.Member, w dashboard.SprintWindow) (map[string]dashboard.DailySchedule, map[string]error) {
    schedules := make(map[string]dashboard.DailySchedule, len(members))
    errs := map[string]error{}
    var mu sync.Mutex
    var wg sync.WaitGroup
    jobs := make(chan domain.Member)
    workers := s.cfg.MaxConcurrency
    if workers <= 0 { workers = 8 }
    for i := 0; i < workers; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            for m := range jobs {
                sched, err := s.tracker.Schedule(ctx, m.Username, w.PaddedStart(), w.PaddedEnd())
                mu.Lock()
                if err != nil { errs[m.Username] = err } else { schedules[m.Username] = sched }
                mu.Unlock()
            }
        }()
    }
    for _, m := range members { jobs <- m }
    close(jobs)
    wg.Wait()
    return schedules, errs
}

// BuildAllDashboards fans out across cells with a bounded pool and a per-cell
// timeout. A slow or failing cell surfaces as an error entry for that cell
// only.
func (s *Service) BuildAllDashboards(ctx context.Context) ([]CellResult, error) {
    cells, err := s.tracker.Cells(ctx)
    if err != nil { return nil, err }
    results := make([]CellResult, len(cells))
    jobs := make(chan int)
    var wg sync.WaitGroup
    workers := s.cfg.MaxConcurrency
    if workers <= 0 { workers = 8 }
    timeout := s.cfg.CellTimeout
    if timeout <= 0 { timeout = 2 * time.Minute }
    for i := 0; i < workers; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            for idx := range jobs {
                cctx, cancel := context.WithTimeout(ctx, timeout)
                d, err := s.BuildDashboard(cctx, cells[idx])
                cancel()
                if err != nil { s.log.Error().Err(err).Str("cell", cells[idx].Name).Msg("dashboard build failed") }
                results[idx] = CellResult{Cell: cells[idx], Dashboard: d, Err: err}
            }
        }()
    }
    for i := range cells { jobs <- i }
    close(jobs)
    wg.Wait()
    return results, nil
}

// RunCapacityDigest builds every cell, persists snapshots, notifies the team
// channel and triggers registered webhooks. Used by the cron job and the
// admin trigger.
func (s *Service) RunCapacityDigest(ctx context.Context) error {
    cells, err := s.tracker.Cells(ctx)
    if err != nil { return err }
    cellsJSON, _ := json.Marshal(cells)
    runID, err := s.repo.StartJobRun(ctx, string(cellsJSON))
    if err != nil { s.log.Error().Err(err).Msg("start job run failed") }

    results, err := s.BuildAllDashboards(ctx)
    if err != nil {
        if runID != "" { _ = s.repo.FinishJobRun(ctx, runID, 0, 0, false, err.Error()) }
        return err
    }

    var snaps []repo.Snapshot
    built, failed := 0, 0
    for _, res := range results {
        if res.Err != nil { failed++; continue }
        built++
        payload, _ := json.Marshal(res.Dashboard)
        snaps = append(snaps, repo.Snapshot{BoardID: res.Cell.BoardID, WindowStart: res.Dashboard.Window.Start, Payload: payload})
    }
    if err := s.repo.SaveSnapshots(ctx, snaps); err != nil { s.log.Error().Err(err).Msg("save snapshots failed") }

    digest := renderDigest(results)
    if s.llm != nil && strings.TrimSpace(s.cfg.OpenAIKey) != "" {
        if summary, err := s.llm.Summarize(ctx, digest); err == nil && summary != "" {
            digest += "\n---\n" + summary
        } else if err != nil {
            s.log.Error().Err(err).Msg("digest summary failed")
        }
    }
    if s.notifier != nil {
        if err := s.notifier.Send(ctx, digest); err != nil { s.log.Error().Err(err).Msg("digest delivery failed") }
    }
    s.triggerWebhooks(ctx, runID, results)

    if runID != "" { _ = s.repo.FinishJobRun(ctx, runID, built, failed, failed == 0, "") }
    s.log.Info().Int("built", built).Int("failed", failed).Msg("capacity digest done")
    return nil
}

func (s *Service) LastRun(ctx context.Context) (any, error) { return s.repo.GetLastRun(ctx) }

func (s *Service) LatestSnapshot(ctx context.Context, boardID int64) ([]byte, time.Time, error) {
    return s.repo.LatestSnapshot(ctx, boardID)
}

func (s *Service) AddWebhook(ctx context.Context, url string) (int64, error) {
    return s.repo.AddWebhook(ctx, url)
}

func (s *Service) triggerWebhooks(ctx context.Context, runID string, results []CellResult) {
    hooks, err := s.repo.ListWebhooks(ctx)
    if err != nil { s.log.Error().Err(err).Msg("list webhooks failed"); return }
    if len(hooks) == 0 { return }
    var dashboards []*Dashboard
    for _, res := range results {
        if res.Err == nil { dashboards = append(dashboards, res.Dashboard) }
    }
    payload, _ := json.Marshal(map[string]any{
        "run_id":       runID,
        "generated_at": time.Now().UTC().Format(time.RFC3339),
        "cells":        dashboards,
    })
    for _, h := range hooks {
        req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(payload))
        if err != nil { continue }
        req.Header.Set("Content-Type", "application/json")
        resp, err := s.http.Do(req)
        if err != nil { s.log.Error().Err(err).Str("url", h.URL).Msg("webhook delivery failed"); continue }
        resp.Body.Close()
        if resp.StatusCode >= 300 { s.log.Error().Int("status", resp.StatusCode).Str("url", h.URL).Msg("webhook rejected") }
    }
}

func rowView(r *dashboard.UserRow) RowView {
    return RowView{
        User:                   r.User.Name(),
        CurrentAssigneeSeconds: r.CurrentAssigneeSeconds,
        CurrentReviewSeconds:   r.CurrentReviewSeconds,
        CurrentUpstreamSeconds: r.CurrentUpstreamSeconds,
        FutureAssigneeSeconds:  r.FutureAssigneeSeconds,
        FutureReviewSeconds:    r.FutureReviewSeconds,
        FutureEpicMgmtSeconds:  r.FutureEpicMgmtSeconds,
        FlaggedSeconds:         r.FlaggedSeconds,
        GoalSeconds:            r.GoalSeconds,
        AbsenceSeconds:         r.AbsenceSeconds,
        CommittedSeconds:       r.CommittedSeconds(),
        RemainingSeconds:       r.RemainingSeconds(),
        Incomplete:             r.Incomplete,
        CurrentUnestimated:     r.CurrentUnestimated,
        FutureUnestimated:      r.FutureUnestimated,
    }
}

// nextSprintWindow locates the active sprint, the one after it (the sprint
// being planned) and that sprint's date window.
func nextSprintWindow(sprints []domain.Sprint) (active, next domain.Sprint, w dashboard.SprintWindow, err error) {
    byNumber := map[int]domain.Sprint{}
    for _, sp := range sprints {
        if n, nerr := dashboard.SprintNumber(sp.Name); nerr == nil { byNumber[n] = sp }
        if sp.State == "active" { active = sp }
    }
    if active.ID == 0 { return active, next, w, fmt.Errorf("no active sprint") }
    num, nerr := dashboard.SprintNumber(active.Name)
    if nerr != nil { return active, next, w, nerr }
    next, ok := byNumber[num+1]
    if !ok { return active, next, w, fmt.Errorf("no sprint after %q", active.Name) }
    start, serr := dashboard.SprintStartDate(next.Name)
    if serr != nil { return active, next, w, serr }
    nextNextStart := ""
    if nn, ok := byNumber[num+2]; ok {
        if ns, nserr := dashboard.SprintStartDate(nn.Name); nserr == nil { nextNextStart = ns }
    }
    w = dashboard.SprintWindow{Start: start, End: dashboard.SprintEndDate(start, nextNextStart)}
    return active, next, w, nil
}

func renderDigest(results []CellResult) string {
    b := &strings.Builder{}
    fmt.Fprintf(b, "#### Sprint capacity digest\n")
    for _, res := range results {
        if res.Err != nil {
            fmt.Fprintf(b, "\n**%s**: build failed: %v\n", res.Cell.Name, res.Err)
            continue
        }
        d := res.Dashboard
        fmt.Fprintf(b, "\n**%s** (%s to %s)\n", d.Cell, d.Window.Start, d.Window.End)
        for _, r := range d.Rows {
            mark := ""
            if r.RemainingSeconds < 0 { mark = " OVER" }
            if r.Incomplete { mark += " (incomplete)" }
            fmt.Fprintf(b, "- %s: committed %.1fh, goal %.1fh, remaining %.1fh%s\n",
                r.User, float64(r.CommittedSeconds)/3600, float64(r.GoalSeconds)/3600, float64(r.RemainingSeconds)/3600, mark)
        }
    }
    return b.String()
}
