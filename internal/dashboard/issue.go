/* Copyright (c) 2020 OpenCraft <https://opencraft.com>
 * SPDX-License-Identifier: AGPL-3.0 */
package dashboard

import (
    "errors"
    "strings"
)

// RawIssue is the tracker-agnostic view of an issue, with fields already
// resolved by logical name on the adapter side.
type RawIssue struct {
    Key              string
    Type             string
    Status           string
    Assignee         string
    Reviewer         string
    StoryPoints      *float64
    RemainingSeconds int
    SprintIDs        []int64
    Flags            []string
    Description      string
}

// Context scopes classification to one cell: its issue-key prefix, its member
// roster and the ids of the sprint currently in progress.
type Context struct {
    KeyPrefix       string
    Roster          map[string]bool
    ActiveSprintIDs map[int64]bool
}

// ClassifiedIssue is the immutable result of classifying one raw issue. All
// derived times are computed eagerly at construction.
type ClassifiedIssue struct {
    Key             string
    Assignee        UserIdentity
    Reviewer        UserIdentity
    Status          string
    IsEpic          bool
    IsRecurring     bool
    IsFlagged       bool
    StoryPoints     *float64
    RemainingSeconds int
    InCurrentSprint bool
    Relevant        bool

    AssigneeSeconds       int
    ReviewSeconds         int
    RecurringSeconds      int
    EpicManagementSeconds int
}

// Classify derives the typed record and its time buckets for one issue.
// Ownership ambiguity is resolved by sentinel substitution, never by error.
func Classify(cfg Config, ctx Context, raw RawIssue) ClassifiedIssue {
    ci := ClassifiedIssue{
        Key:              raw.Key,
        Status:           raw.Status,
        IsEpic:           raw.Type == cfg.EpicIssueType,
        IsRecurring:      raw.Status == cfg.StatusRecurring,
        StoryPoints:      raw.StoryPoints,
        RemainingSeconds: raw.RemainingSeconds,
    }

    ownTeam := strings.HasPrefix(raw.Key, ctx.KeyPrefix)
    switch {
    case !ownTeam:
        // Cross-team commitments must not pollute Unassigned.
        ci.Assignee = OtherTeam
    case raw.Assignee == "":
        ci.Assignee = Unassigned
    default:
        ci.Assignee = RealUser(raw.Assignee)
    }
    switch {
    case raw.Reviewer == "":
        ci.Reviewer = Unassigned
    case !ctx.Roster[raw.Reviewer]:
        ci.Reviewer = OtherTeam
    default:
        ci.Reviewer = RealUser(raw.Reviewer)
    }

    ci.Relevant = ownTeam || ci.Reviewer.IsReal()

    for _, f := range raw.Flags {
        if f == cfg.ImpedimentFlag { ci.IsFlagged = true; break }
    }
    if n := len(raw.SprintIDs); n > 0 {
        ci.InCurrentSprint = ctx.ActiveSprintIDs[raw.SprintIDs[n-1]]
    }

    ci.ReviewSeconds = reviewSeconds(cfg, ci, raw.Description)
    ci.AssigneeSeconds = assigneeSeconds(cfg, ci)
    if ci.IsRecurring {
        if v, err := ParseDirective(raw.Description, cfg.RecurringPattern); err == nil { ci.RecurringSeconds = v }
    }
    if ci.IsEpic {
        v, err := ParseDirective(raw.Description, cfg.EpicPattern)
        if errors.Is(err, ErrDirectiveNotFound) { v = cfg.EpicManagementSeconds }
        ci.EpicManagementSeconds = v
    }
    return ci
}

func reviewSeconds(cfg Config, ci ClassifiedIssue, description string) int {
    if v, err := ParseDirective(description, cfg.ReviewPattern); err == nil { return v }
    if ci.IsEpic || cfg.noMoreReview(ci.Status) { return 0 }
    return cfg.ReviewTable.Lookup(ci.StoryPoints)
}

func assigneeSeconds(cfg Config, ci ClassifiedIssue) int {
    if ci.IsEpic { return 0 }
    // Review finished: the full remaining estimate is on the assignee.
    if cfg.noMoreReview(ci.Status) { return ci.RemainingSeconds }
    if v := ci.RemainingSeconds - ci.ReviewSeconds; v > 0 { return v }
    return 0
}
