package lifecycle

import (
	"math"
	"time"

	"github.com/linesmerrill/emergency-report-api/config"
	"github.com/linesmerrill/emergency-report-api/models"
)

// Tally counts votes by type
func Tally(votes []models.Vote) models.VoteTally {
	var t models.VoteTally
	for _, v := range votes {
		switch v.Type {
		case models.VoteStillThere:
			t.StillThere++
		case models.VoteResolved:
			t.Resolved++
		case models.VoteFakeReport:
			t.Fake++
		}
	}
	t.Total = t.StillThere + t.Resolved + t.Fake
	return t
}

// Percentages returns each share of the tally rounded to one decimal
func Percentages(t models.VoteTally) models.VotePercentages {
	if t.Total == 0 {
		return models.VotePercentages{}
	}
	pct := func(n int) float64 {
		return math.Round(float64(n)*1000/float64(t.Total)) / 10
	}
	return models.VotePercentages{
		StillThere: pct(t.StillThere),
		Resolved:   pct(t.Resolved),
		Fake:       pct(t.Fake),
	}
}

// IsOwner reports whether voter submitted r. Anonymous reports have no owner.
func IsOwner(r *models.Report, voter string) bool {
	return r.SubmitterID != "" && r.SubmitterID != models.AnonymousSubmitter && r.SubmitterID == voter
}

// castVote records voter's vote, replacing any earlier one. Repeating the
// current vote changes nothing and returns false.
func castVote(r *models.Report, voter string, vt models.VoteType, now time.Time) bool {
	for i, v := range r.Votes {
		if v.VoterID != voter {
			continue
		}
		if v.Type == vt {
			return false
		}
		r.Votes[i] = models.Vote{VoterID: voter, Type: vt, CreatedAt: now}
		return true
	}
	r.Votes = append(r.Votes, models.Vote{VoterID: voter, Type: vt, CreatedAt: now})
	return true
}

// voteOutcome applies the owner override and the community threshold rule to
// a report after a vote. It returns the status the vote moves the report to,
// the reason, and false when no automatic transition applies.
func voteOutcome(r *models.Report, voter string, vt models.VoteType, votes config.VoteTuning) (models.Status, string, bool) {
	if r.Status.Terminal() {
		return "", "", false
	}
	if vt == models.VoteResolved && IsOwner(r, voter) {
		return models.StatusResolved, "owner_vote", true
	}

	var community []models.Vote
	for _, v := range r.Votes {
		if !IsOwner(r, v.VoterID) {
			community = append(community, v)
		}
	}
	if len(community) < votes.CommunityMin {
		return "", "", false
	}
	t := Tally(community)
	n := float64(t.Total)
	switch {
	case float64(t.Resolved)*100 >= votes.MajorityPct*n:
		return models.StatusResolved, "community_threshold", true
	case float64(t.Fake)*100 >= votes.MajorityPct*n:
		return models.StatusRejected, "community_threshold", true
	}
	return "", "", false
}
