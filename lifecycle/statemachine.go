// Package lifecycle owns report state: intake, votes, operator actions and the
// transitions between them. All writes go through compare-and-set on
// updatedAt.
package lifecycle

import (
	"time"

	"github.com/linesmerrill/emergency-report-api/models"
)

// Action is an operator action on a report
type Action string

// Operator actions
const (
	ActionVerify     Action = "verify"
	ActionReject     Action = "reject"
	ActionAdvance    Action = "advance"
	ActionResolve    Action = "resolve"
	ActionReopen     Action = "reopen"
	ActionFalseAlarm Action = "false_alarm"
)

var actionTargets = map[Action]models.Status{
	ActionVerify:     models.StatusVerified,
	ActionReject:     models.StatusRejected,
	ActionAdvance:    models.StatusInProgress,
	ActionResolve:    models.StatusResolved,
	ActionReopen:     models.StatusPending,
	ActionFalseAlarm: models.StatusFalseAlarm,
}

// Target returns the status an action moves a report to
func (a Action) Target() (models.Status, bool) {
	s, ok := actionTargets[a]
	return s, ok
}

// transitions is the full state graph. Terminal states only lead back to
// PENDING, and only by operator reopen.
var transitions = map[models.Status][]models.Status{
	models.StatusPending: {
		models.StatusVerified, models.StatusRejected, models.StatusResolved, models.StatusFalseAlarm,
	},
	models.StatusVerified: {
		models.StatusInProgress, models.StatusRejected, models.StatusResolved, models.StatusFalseAlarm,
	},
	models.StatusInProgress: {
		models.StatusRejected, models.StatusResolved, models.StatusFalseAlarm,
	},
	models.StatusRejected:   {models.StatusPending},
	models.StatusResolved:   {models.StatusPending},
	models.StatusFalseAlarm: {models.StatusPending},
}

// CanTransition reports whether from -> to is an edge of the state graph
func CanTransition(from, to models.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SystemActor authors transitions made by intake and vote rules
const SystemActor = "system"

// Clock returns the current time at the precision the store keeps
func Clock() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// nextStamp returns a timestamp strictly after prev
func nextStamp(prev, now time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Millisecond)
}

// transitionMessage renders the update message of a status change
func transitionMessage(from, to models.Status, note string) string {
	msg := string(from) + "→" + string(to)
	if note != "" {
		msg += ": " + note
	}
	return msg
}

// transition moves r to status `to`, appending exactly one update and
// advancing updatedAt. It returns INVALID_TRANSITION for edges not in the graph.
func transition(r *models.Report, to models.Status, actor, note string, now time.Time) error {
	from := r.Status
	if !CanTransition(from, to) {
		return models.NewError(models.CodeInvalidTransition, "cannot move report from %s to %s", from, to)
	}
	stamp := nextStamp(r.UpdatedAt, now)
	r.Status = to
	r.UpdatedAt = stamp
	r.Updates = append(r.Updates, models.Update{
		AuthorID:     actor,
		Message:      transitionMessage(from, to, note),
		StatusChange: &models.StatusChange{From: from, To: to},
		CreatedAt:    stamp,
	})
	switch to {
	case models.StatusVerified:
		r.VerifiedBy = actor
		r.VerifiedAt = &stamp
	case models.StatusResolved:
		if r.ResolvedAt == nil {
			r.ResolvedAt = &stamp
		}
	}
	return nil
}
