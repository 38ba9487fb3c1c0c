/* Copyright (c) 2020 OpenCraft <https://opencraft.com>
 * SPDX-License-Identifier: AGPL-3.0 */
package dashboard

// UserRow accumulates one member's commitments for the planned sprint.
// Committed and remaining time are computed on read so they cannot drift from
// the accumulators.
type UserRow struct {
    User UserIdentity

    CurrentAssigneeSeconds int
    CurrentReviewSeconds   int
    CurrentUpstreamSeconds int
    FutureAssigneeSeconds  int
    FutureReviewSeconds    int
    FutureEpicMgmtSeconds  int

    FlaggedSeconds int
    GoalSeconds    int
    AbsenceSeconds float64
    Incomplete     bool

    CurrentUnestimated []string
    FutureUnestimated  []string
}

func (r *UserRow) CommittedSeconds() int {
    return r.CurrentAssigneeSeconds + r.CurrentReviewSeconds + r.CurrentUpstreamSeconds +
        r.FutureAssigneeSeconds + r.FutureReviewSeconds + r.FutureEpicMgmtSeconds
}

func (r *UserRow) RemainingSeconds() int { return r.GoalSeconds - r.CommittedSeconds() }

// Rows is an insertion-ordered collection of user rows, created lazily as
// issues reference their owners.
type Rows struct {
    order  []UserIdentity
    byUser map[UserIdentity]*UserRow
}

func NewRows() *Rows { return &Rows{byUser: map[UserIdentity]*UserRow{}} }

func (rs *Rows) Get(u UserIdentity) *UserRow {
    if r, ok := rs.byUser[u]; ok { return r }
    r := &UserRow{User: u}
    rs.byUser[u] = r
    rs.order = append(rs.order, u)
    return r
}

func (rs *Rows) delete(u UserIdentity) {
    if _, ok := rs.byUser[u]; !ok { return }
    delete(rs.byUser, u)
    for i, o := range rs.order {
        if o == u { rs.order = append(rs.order[:i], rs.order[i+1:]...); break }
    }
}

func (rs *Rows) List() []*UserRow {
    out := make([]*UserRow, 0, len(rs.order))
    for _, u := range rs.order { out = append(out, rs.byUser[u]) }
    return out
}

// Accumulate folds one relevant classified issue into the rows. The branches
// are mutually exclusive except for the unestimated path, which records the
// issue and still lets it fall through.
func (rs *Rows) Accumulate(cfg Config, ci ClassifiedIssue) {
    if !ci.Relevant { return }
    assignee := rs.Get(ci.Assignee)
    reviewer := rs.Get(ci.Reviewer)

    if ci.IsEpic {
        assignee.FutureEpicMgmtSeconds += ci.EpicManagementSeconds
        return
    }
    if ci.IsRecurring {
        assignee.FutureAssigneeSeconds += ci.RecurringSeconds
        reviewer.FutureReviewSeconds += ci.ReviewSeconds
        return
    }
    if ci.RemainingSeconds == 0 && ci.Assignee.IsReal() {
        if ci.InCurrentSprint {
            assignee.CurrentUnestimated = append(assignee.CurrentUnestimated, ci.Key)
        } else {
            assignee.FutureUnestimated = append(assignee.FutureUnestimated, ci.Key)
        }
    }
    if ci.InCurrentSprint {
        if ci.Status == cfg.StatusExternalReview {
            // Review finished upstream; no review bucket.
            assignee.CurrentUpstreamSeconds += ci.AssigneeSeconds
            return
        }
        reviewer.CurrentReviewSeconds += ci.ReviewSeconds
        assignee.CurrentAssigneeSeconds += ci.AssigneeSeconds
        return
    }
    assignee.FutureAssigneeSeconds += ci.AssigneeSeconds
    reviewer.FutureReviewSeconds += ci.ReviewSeconds
    if ci.IsFlagged {
        assignee.FlaggedSeconds += ci.AssigneeSeconds
        reviewer.FlaggedSeconds += ci.ReviewSeconds
    }
}

// Reduce strips the sentinels and reviewers who are valid accounts but not on
// this cell's roster. Unassigned stays visible so ownerless work is not lost.
func (rs *Rows) Reduce(roster map[string]bool) []*UserRow {
    rs.delete(OtherTeam)
    for _, u := range append([]UserIdentity(nil), rs.order...) {
        if u.IsReal() && !roster[u.Name()] { rs.delete(u) }
    }
    return rs.List()
}
