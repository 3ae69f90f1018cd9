// Package events fans report lifecycle changes out to other services.
// Publishing is best effort: a failed publish is logged and never fails the
// report operation that produced it.
package events

import (
	"context"
	"time"

	"github.com/linesmerrill/emergency-report-api/models"
)

// Routing keys
const (
	RoutingKeyReportCreated = "report.created"
	RoutingKeyStatusChanged = "report.status.changed"
	RoutingKeyVoteReceived  = "report.vote.received"
)

// ReportCreated is published once a report is persisted
type ReportCreated struct {
	ReportID     string              `json:"report_id"`
	DisasterType models.DisasterType `json:"disaster_type"`
	Priority     models.Priority     `json:"priority"`
	Status       models.Status       `json:"status"`
	Latitude     float64             `json:"latitude"`
	Longitude    float64             `json:"longitude"`
	IsDemo       bool                `json:"is_demo"`
	Timestamp    int64               `json:"timestamp"`
}

// StatusChanged is published for every persisted status transition
type StatusChanged struct {
	ReportID  string        `json:"report_id"`
	From      models.Status `json:"from"`
	To        models.Status `json:"to"`
	ActorID   string        `json:"actor_id"`
	Reason    string        `json:"reason"`
	Timestamp int64         `json:"timestamp"`
}

// VoteReceived is published for every vote that changed a report
type VoteReceived struct {
	ReportID  string          `json:"report_id"`
	VoterID   string          `json:"voter_id"`
	VoteType  models.VoteType `json:"vote_type"`
	Total     int             `json:"total"`
	Timestamp int64           `json:"timestamp"`
}

// Publisher sends lifecycle events
type Publisher interface {
	ReportCreated(ctx context.Context, msg ReportCreated) error
	StatusChanged(ctx context.Context, msg StatusChanged) error
	VoteReceived(ctx context.Context, msg VoteReceived) error
	Close() error
}

// Noop drops every event. It is used when AMQP_URL is not set.
type Noop struct{}

// ReportCreated implements Publisher
func (Noop) ReportCreated(context.Context, ReportCreated) error { return nil }

// StatusChanged implements Publisher
func (Noop) StatusChanged(context.Context, StatusChanged) error { return nil }

// VoteReceived implements Publisher
func (Noop) VoteReceived(context.Context, VoteReceived) error { return nil }

// Close implements Publisher
func (Noop) Close() error { return nil }

// Stamp returns t as unix milliseconds
func Stamp(t time.Time) int64 {
	return t.UnixMilli()
}
