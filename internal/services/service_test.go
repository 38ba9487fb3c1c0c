package services

import (
    "context"
    "errors"
    "testing"
    "time"

    "github.com/open-craft/sprints/internal/config"
    "github.com/open-craft/sprints/internal/dashboard"
    "github.com/open-craft/sprints/internal/domain"
    "github.com/rs/zerolog"
)

type fakeTracker struct {
    cells     []domain.Cell
    sprints   map[int64][]domain.Sprint
    members   map[int64][]domain.Member
    issues    map[int64][]dashboard.RawIssue
    schedules map[string]dashboard.DailySchedule
    schedErr  map[string]error
    slowBoard int64
}

func (f *fakeTracker) Cells(ctx context.Context) ([]domain.Cell, error) { return f.cells, nil }

func (f *fakeTracker) Sprints(ctx context.Context, boardID int64) ([]domain.Sprint, error) {
    if boardID == f.slowBoard {
        <-ctx.Done()
        return nil, ctx.Err()
    }
    return f.sprints[boardID], nil
}

func (f *fakeTracker) Members(ctx context.Context, boardID int64) ([]domain.Member, error) {
    return f.members[boardID], nil
}

func (f *fakeTracker) Issues(ctx context.Context, boardID int64, jql string) ([]dashboard.RawIssue, error) {
    return f.issues[boardID], nil
}

func (f *fakeTracker) Schedule(ctx context.Context, username, from, to string) (dashboard.DailySchedule, error) {
    if err := f.schedErr[username]; err != nil { return dashboard.DailySchedule{}, err }
    return f.schedules[username], nil
}

type fakeAbsences struct{ events []dashboard.AbsenceEvent }

func (f *fakeAbsences) Absences(ctx context.Context, from, to string) ([]dashboard.AbsenceEvent, error) {
    return f.events, nil
}

func testEngine(t *testing.T) dashboard.Config {
    t.Helper()
    table, err := dashboard.ParseReviewTable(map[string]float64{"null": 2, "1.9": 0.5, "2": 1, "3": 2, "5": 3, "5.1": 5})
    if err != nil { t.Fatalf("review table: %v", err) }
    return dashboard.NewConfig(table)
}

func flatSchedule(from, to string, perDay float64) dashboard.DailySchedule {
    days := map[string]float64{}
    total := 0.0
    for _, d := range dashboard.Daterange(from, to) {
        days[d] = perDay
        total += perDay
    }
    return dashboard.DailySchedule{Days: days, Total: total}
}

func testSprints() []domain.Sprint {
    return []domain.Sprint{
        {ID: 301, Name: "SE.Sprint 301 (2020-11-03)", State: "active"},
        {ID: 302, Name: "SE.Sprint 302 (2020-11-17)", State: "future"},
        {ID: 303, Name: "SE.Sprint 303 (2020-12-01)", State: "future"},
    }
}

func fp(v float64) *float64 { return &v }

func TestBuildDashboard(t *testing.T) {
    cell := domain.Cell{Name: "SE", BoardID: 1, KeyPrefix: "SE-"}
    sched := flatSchedule("2020-11-16", "2020-12-01", 28800)
    tracker := &fakeTracker{
        cells:   []domain.Cell{cell},
        sprints: map[int64][]domain.Sprint{1: testSprints()},
        members: map[int64][]domain.Member{1: {
            {Username: "alice", DisplayName: "Alice Smith", TimezoneOffset: 2},
            {Username: "bob", DisplayName: "Bob Jones"},
        }},
        issues: map[int64][]dashboard.RawIssue{1: {
            {Key: "SE-1", Type: "Story", Status: "In progress", Assignee: "alice", Reviewer: "bob",
                StoryPoints: fp(2), RemainingSeconds: 10000, SprintIDs: []int64{301}},
        }},
        schedules: map[string]dashboard.DailySchedule{"alice": sched, "bob": sched},
    }
    absences := &fakeAbsences{events: []dashboard.AbsenceEvent{
        {User: "Alice", Start: "2020-11-18", End: "2020-11-19"},
    }}
    svc := New(config.Config{MaxConcurrency: 2}, zerolog.Nop(), testEngine(t), nil, tracker, absences, nil, nil)

    d, err := svc.BuildDashboard(context.Background(), cell)
    if err != nil { t.Fatalf("BuildDashboard: %v", err) }
    if d.Window.Start != "2020-11-17" || d.Window.End != "2020-11-30" {
        t.Fatalf("window = %+v", d.Window)
    }
    if len(d.Rows) != 2 { t.Fatalf("rows = %d, want 2", len(d.Rows)) }

    byUser := map[string]RowView{}
    for _, r := range d.Rows { byUser[r.User] = r }

    alice := byUser["alice"]
    if alice.CurrentAssigneeSeconds != 6400 { t.Errorf("alice assignee = %d, want 6400", alice.CurrentAssigneeSeconds) }
    if alice.AbsenceSeconds != 57600 { t.Errorf("alice absence = %v, want 57600", alice.AbsenceSeconds) }
    // 16 days of 8h minus two padding days, meetings and two days off
    if alice.GoalSeconds != 338400 { t.Errorf("alice goal = %d, want 338400", alice.GoalSeconds) }

    bob := byUser["bob"]
    if bob.CurrentReviewSeconds != 3600 { t.Errorf("bob review = %d, want 3600", bob.CurrentReviewSeconds) }
    if bob.AbsenceSeconds != 0 { t.Errorf("bob absence = %v, want 0", bob.AbsenceSeconds) }
    if bob.GoalSeconds != 396000 { t.Errorf("bob goal = %d, want 396000", bob.GoalSeconds) }
}

func TestBuildDashboardScheduleFailure(t *testing.T) {
    cell := domain.Cell{Name: "SE", BoardID: 1, KeyPrefix: "SE-"}
    sched := flatSchedule("2020-11-16", "2020-12-01", 28800)
    tracker := &fakeTracker{
        cells:   []domain.Cell{cell},
        sprints: map[int64][]domain.Sprint{1: testSprints()},
        members: map[int64][]domain.Member{1: {
            {Username: "alice", DisplayName: "Alice Smith"},
            {Username: "bob", DisplayName: "Bob Jones"},
        }},
        issues:    map[int64][]dashboard.RawIssue{1: nil},
        schedules: map[string]dashboard.DailySchedule{"alice": sched},
        schedErr:  map[string]error{"bob": errors.New("tempo unavailable")},
    }
    svc := New(config.Config{MaxConcurrency: 2}, zerolog.Nop(), testEngine(t), nil, tracker, &fakeAbsences{}, nil, nil)

    d, err := svc.BuildDashboard(context.Background(), cell)
    if err != nil { t.Fatalf("BuildDashboard: %v", err) }

    byUser := map[string]RowView{}
    for _, r := range d.Rows { byUser[r.User] = r }

    if byUser["alice"].Incomplete { t.Errorf("alice marked incomplete") }
    bob := byUser["bob"]
    if !bob.Incomplete { t.Fatalf("bob not marked incomplete") }
    if bob.AbsenceSeconds != 0 { t.Errorf("bob absence = %v, want 0", bob.AbsenceSeconds) }
    // default commitment minus meetings
    if bob.GoalSeconds != 136800 { t.Errorf("bob goal = %d, want 136800", bob.GoalSeconds) }
}

func TestBuildAllDashboardsPartialFailure(t *testing.T) {
    sched := flatSchedule("2020-11-16", "2020-12-01", 28800)
    tracker := &fakeTracker{
        sprints:   map[int64][]domain.Sprint{},
        members:   map[int64][]domain.Member{},
        issues:    map[int64][]dashboard.RawIssue{},
        schedules: map[string]dashboard.DailySchedule{"alice": sched},
        slowBoard: 3,
    }
    for id := int64(1); id <= 5; id++ {
        tracker.cells = append(tracker.cells, domain.Cell{Name: "C" + string(rune('0'+id)), BoardID: id, KeyPrefix: "C-"})
        tracker.sprints[id] = testSprints()
        tracker.members[id] = []domain.Member{{Username: "alice", DisplayName: "Alice Smith"}}
    }
    cfg := config.Config{MaxConcurrency: 3, CellTimeout: 50 * time.Millisecond}
    svc := New(cfg, zerolog.Nop(), testEngine(t), nil, tracker, &fakeAbsences{}, nil, nil)

    results, err := svc.BuildAllDashboards(context.Background())
    if err != nil { t.Fatalf("BuildAllDashboards: %v", err) }
    if len(results) != 5 { t.Fatalf("results = %d, want 5", len(results)) }

    for i, res := range results {
        if res.Cell.BoardID != tracker.cells[i].BoardID {
            t.Errorf("result %d out of order: board %d", i, res.Cell.BoardID)
        }
        if res.Cell.BoardID == 3 {
            if res.Err == nil { t.Errorf("slow cell did not fail") }
            if !errors.Is(res.Err, context.DeadlineExceeded) { t.Errorf("slow cell err = %v", res.Err) }
            continue
        }
        if res.Err != nil { t.Errorf("cell %d failed: %v", res.Cell.BoardID, res.Err) }
        if res.Dashboard == nil || len(res.Dashboard.Rows) != 1 {
            t.Errorf("cell %d dashboard = %+v", res.Cell.BoardID, res.Dashboard)
        }
    }
}
