package lifecycle

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/linesmerrill/emergency-report-api/config"
	"github.com/linesmerrill/emergency-report-api/models"
)

func votes(types ...models.VoteType) []models.Vote {
	out := make([]models.Vote, len(types))
	for i, vt := range types {
		out[i] = models.Vote{VoterID: string(rune('a' + i)), Type: vt}
	}
	return out
}

func TestTallyAndPercentages(t *testing.T) {
	tally := Tally(votes(models.VoteStillThere, models.VoteFakeReport, models.VoteResolved, models.VoteResolved, models.VoteResolved))
	assert.Equal(t, models.VoteTally{StillThere: 1, Resolved: 3, Fake: 1, Total: 5}, tally)
	assert.Equal(t, models.VotePercentages{StillThere: 20, Resolved: 60, Fake: 20}, Percentages(tally))

	thirds := Percentages(Tally(votes(models.VoteStillThere, models.VoteResolved, models.VoteFakeReport)))
	assert.Equal(t, 33.3, thirds.StillThere)

	assert.Equal(t, models.VotePercentages{}, Percentages(models.VoteTally{}))
}

func TestTallyOrderIndependent(t *testing.T) {
	vs := votes(models.VoteStillThere, models.VoteFakeReport, models.VoteResolved, models.VoteResolved, models.VoteStillThere, models.VoteResolved)
	want := Tally(vs)
	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]models.Vote(nil), vs...)
		rnd.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, Tally(shuffled))
	}
}

func TestCastVote(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	r := &models.Report{}

	assert.True(t, castVote(r, "u1", models.VoteStillThere, now))
	assert.False(t, castVote(r, "u1", models.VoteStillThere, now.Add(time.Second)))
	assert.Equal(t, now, r.Votes[0].CreatedAt)

	assert.True(t, castVote(r, "u1", models.VoteResolved, now.Add(time.Second)))
	assert.Len(t, r.Votes, 1)
	assert.Equal(t, models.VoteResolved, r.Votes[0].Type)
}

func TestIsOwner(t *testing.T) {
	assert.True(t, IsOwner(&models.Report{SubmitterID: "u1"}, "u1"))
	assert.False(t, IsOwner(&models.Report{SubmitterID: "u1"}, "u2"))
	assert.False(t, IsOwner(&models.Report{SubmitterID: models.AnonymousSubmitter}, models.AnonymousSubmitter))
}

func TestVoteOutcome(t *testing.T) {
	rules := config.DefaultTuning().Votes

	t.Run("owner resolves", func(t *testing.T) {
		r := &models.Report{SubmitterID: "owner", Status: models.StatusVerified, Votes: []models.Vote{{VoterID: "owner", Type: models.VoteResolved}}}
		to, reason, ok := voteOutcome(r, "owner", models.VoteResolved, rules)
		assert.True(t, ok)
		assert.Equal(t, models.StatusResolved, to)
		assert.Equal(t, "owner_vote", reason)
	})

	t.Run("owner votes do not count toward community", func(t *testing.T) {
		r := &models.Report{SubmitterID: "owner", Status: models.StatusPending, Votes: []models.Vote{
			{VoterID: "owner", Type: models.VoteFakeReport},
			{VoterID: "a", Type: models.VoteFakeReport},
			{VoterID: "b", Type: models.VoteFakeReport},
		}}
		_, _, ok := voteOutcome(r, "b", models.VoteFakeReport, rules)
		assert.False(t, ok)
	})

	t.Run("community fake majority rejects", func(t *testing.T) {
		r := &models.Report{SubmitterID: "owner", Status: models.StatusInProgress, Votes: votes(models.VoteFakeReport, models.VoteFakeReport, models.VoteStillThere)}
		to, reason, ok := voteOutcome(r, "c", models.VoteStillThere, rules)
		assert.True(t, ok)
		assert.Equal(t, models.StatusRejected, to)
		assert.Equal(t, "community_threshold", reason)
	})

	t.Run("below threshold", func(t *testing.T) {
		r := &models.Report{Status: models.StatusPending, Votes: votes(models.VoteStillThere, models.VoteFakeReport, models.VoteResolved, models.VoteResolved)}
		_, _, ok := voteOutcome(r, "d", models.VoteResolved, rules)
		assert.False(t, ok)
	})

	t.Run("terminal reports stay put", func(t *testing.T) {
		r := &models.Report{SubmitterID: "owner", Status: models.StatusRejected, Votes: votes(models.VoteResolved, models.VoteResolved, models.VoteResolved)}
		_, _, ok := voteOutcome(r, "owner", models.VoteResolved, rules)
		assert.False(t, ok)
	})
}
