package dashboard

import (
    "reflect"
    "testing"
)

func testContext() Context {
    return Context{
        KeyPrefix:       "SE-",
        Roster:          map[string]bool{"alice": true, "bob": true},
        ActiveSprintIDs: map[int64]bool{100: true},
    }
}

func fp(v float64) *float64 { return &v }

func TestClassify_OwnershipSentinels(t *testing.T) {
    cfg := testConfig(t)
    ctx := testContext()

    ci := Classify(cfg, ctx, RawIssue{Key: "XX-1", Assignee: "mallory"})
    if ci.Assignee != OtherTeam { t.Fatalf("cross-team assignee: got %v", ci.Assignee) }
    if ci.Relevant { t.Fatalf("cross-team issue without team reviewer must be irrelevant") }

    ci = Classify(cfg, ctx, RawIssue{Key: "XX-2", Reviewer: "bob"})
    if !ci.Relevant { t.Fatalf("issue reviewed by a team member must be relevant") }
    if ci.Reviewer != RealUser("bob") { t.Fatalf("reviewer: got %v", ci.Reviewer) }

    ci = Classify(cfg, ctx, RawIssue{Key: "SE-1"})
    if ci.Assignee != Unassigned { t.Fatalf("empty assignee: got %v", ci.Assignee) }
    if ci.Reviewer != Unassigned { t.Fatalf("empty reviewer: got %v", ci.Reviewer) }
    if !ci.Relevant { t.Fatalf("own-prefix issue must be relevant") }

    ci = Classify(cfg, ctx, RawIssue{Key: "SE-2", Assignee: "alice", Reviewer: "carol"})
    if ci.Assignee != RealUser("alice") { t.Fatalf("assignee: got %v", ci.Assignee) }
    if ci.Reviewer != OtherTeam { t.Fatalf("off-roster reviewer: got %v", ci.Reviewer) }
}

func TestClassify_TimeBuckets(t *testing.T) {
    cfg := testConfig(t)
    ctx := testContext()

    // Normal issue: review from the fallback table, assignee gets the rest.
    ci := Classify(cfg, ctx, RawIssue{Key: "SE-1", Assignee: "alice", Status: "In progress", StoryPoints: fp(2.3), RemainingSeconds: 36000})
    if ci.ReviewSeconds != 3600 { t.Fatalf("review: got %d", ci.ReviewSeconds) }
    if ci.AssigneeSeconds != 32400 { t.Fatalf("assignee: got %d", ci.AssigneeSeconds) }

    // Review directive wins over the table.
    ci = Classify(cfg, ctx, RawIssue{Key: "SE-2", Status: "In progress", StoryPoints: fp(2.3), RemainingSeconds: 36000,
        Description: "plan 30m for reviewing this task"})
    if ci.ReviewSeconds != 1800 { t.Fatalf("review directive: got %d", ci.ReviewSeconds) }
    if ci.AssigneeSeconds != 34200 { t.Fatalf("assignee after directive: got %d", ci.AssigneeSeconds) }

    // Review never pushes the assignee below zero.
    ci = Classify(cfg, ctx, RawIssue{Key: "SE-3", Status: "In progress", StoryPoints: fp(10), RemainingSeconds: 600})
    if ci.AssigneeSeconds != 0 { t.Fatalf("assignee floor: got %d", ci.AssigneeSeconds) }

    // Review finished: full estimate back on the assignee, review zeroed.
    for _, status := range []string{cfg.StatusExternalReview, cfg.StatusMerged} {
        ci = Classify(cfg, ctx, RawIssue{Key: "SE-4", Status: status, StoryPoints: fp(3), RemainingSeconds: 5000})
        if ci.ReviewSeconds != 0 { t.Fatalf("%s review: got %d", status, ci.ReviewSeconds) }
        if ci.AssigneeSeconds != 5000 { t.Fatalf("%s assignee: got %d", status, ci.AssigneeSeconds) }
    }
}

func TestClassify_EpicAndRecurring(t *testing.T) {
    cfg := testConfig(t)
    ctx := testContext()

    ci := Classify(cfg, ctx, RawIssue{Key: "SE-1", Type: "Epic", RemainingSeconds: 9999})
    if !ci.IsEpic { t.Fatalf("expected epic") }
    if ci.AssigneeSeconds != 0 || ci.ReviewSeconds != 0 { t.Fatalf("epic time: %d/%d", ci.AssigneeSeconds, ci.ReviewSeconds) }
    if ci.EpicManagementSeconds != cfg.EpicManagementSeconds { t.Fatalf("epic default: got %d", ci.EpicManagementSeconds) }

    ci = Classify(cfg, ctx, RawIssue{Key: "SE-2", Type: "Epic", Description: "plan 4h per sprint for epic management"})
    if ci.EpicManagementSeconds != 14400 { t.Fatalf("epic directive: got %d", ci.EpicManagementSeconds) }

    ci = Classify(cfg, ctx, RawIssue{Key: "SE-3", Status: "Recurring", Description: "plan 3h10m per sprint for this task"})
    if !ci.IsRecurring { t.Fatalf("expected recurring") }
    if ci.RecurringSeconds != 11400 { t.Fatalf("recurring directive: got %d", ci.RecurringSeconds) }

    // Missing recurring directive is silent, not an error.
    ci = Classify(cfg, ctx, RawIssue{Key: "SE-4", Status: "Recurring", Description: "no directive"})
    if ci.RecurringSeconds != 0 { t.Fatalf("recurring fallback: got %d", ci.RecurringSeconds) }
}

func TestClassify_FlagsAndSprint(t *testing.T) {
    cfg := testConfig(t)
    ctx := testContext()

    ci := Classify(cfg, ctx, RawIssue{Key: "SE-1", Flags: []string{"Impediment"}})
    if !ci.IsFlagged { t.Fatalf("expected flagged") }
    ci = Classify(cfg, ctx, RawIssue{Key: "SE-2", Flags: []string{"Blocked"}})
    if ci.IsFlagged { t.Fatalf("unexpected flagged") }

    // The newest sprint assignment decides current membership.
    ci = Classify(cfg, ctx, RawIssue{Key: "SE-3", SprintIDs: []int64{90, 100}})
    if !ci.InCurrentSprint { t.Fatalf("expected current sprint") }
    ci = Classify(cfg, ctx, RawIssue{Key: "SE-4", SprintIDs: []int64{100, 101}})
    if ci.InCurrentSprint { t.Fatalf("moved-on issue counted as current") }
}

func TestClassify_Idempotent(t *testing.T) {
    cfg := testConfig(t)
    ctx := testContext()
    raw := RawIssue{Key: "SE-1", Assignee: "alice", Reviewer: "bob", Status: "In progress",
        StoryPoints: fp(3.3), RemainingSeconds: 20000, SprintIDs: []int64{100}, Flags: []string{"Impediment"},
        Description: "plan 1h 30m for reviewing this task"}
    a := Classify(cfg, ctx, raw)
    b := Classify(cfg, ctx, raw)
    if !reflect.DeepEqual(a, b) { t.Fatalf("classification not idempotent: %#v vs %#v", a, b) }
}
