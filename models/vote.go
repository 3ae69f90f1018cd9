package models

import "time"

// VoteType is a community member's opinion on an open report
type VoteType string

// Vote types
const (
	VoteStillThere VoteType = "STILL_THERE"
	VoteResolved   VoteType = "RESOLVED"
	VoteFakeReport VoteType = "FAKE_REPORT"
)

// Valid reports whether v is a declared vote type
func (v VoteType) Valid() bool {
	switch v {
	case VoteStillThere, VoteResolved, VoteFakeReport:
		return true
	}
	return false
}

// Vote is a single voter's current vote on a report
type Vote struct {
	VoterID   string    `bson:"voterId" json:"voterId"`
	Type      VoteType  `bson:"type" json:"type"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// VoteTally counts the current votes on a report
type VoteTally struct {
	StillThere int `json:"stillThere"`
	Resolved   int `json:"resolved"`
	Fake       int `json:"fake"`
	Total      int `json:"total"`
}

// VotePercentages are tally shares rounded to one decimal
type VotePercentages struct {
	StillThere float64 `json:"stillThere"`
	Resolved   float64 `json:"resolved"`
	Fake       float64 `json:"fake"`
}

// VoteResult is returned by record_vote
type VoteResult struct {
	Tallies     VoteTally       `json:"tallies"`
	Percentages VotePercentages `json:"percentages"`
	StatusAfter Status          `json:"statusAfter"`
}
