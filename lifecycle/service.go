package lifecycle

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/linesmerrill/emergency-report-api/config"
	"github.com/linesmerrill/emergency-report-api/databases"
	"github.com/linesmerrill/emergency-report-api/events"
	"github.com/linesmerrill/emergency-report-api/models"
)

// conflictRetries is how many times a write that lost a compare-and-set race
// is retried before STORE_CONFLICT is surfaced
const conflictRetries = 3

// Roles
const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// Actor is the authenticated caller of a lifecycle operation
type Actor struct {
	ID    string
	Roles []string
}

// HasRole reports whether the actor holds any of roles
func (a Actor) HasRole(roles ...string) bool {
	for _, have := range a.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Service is the report lifecycle: the only writer of reports
type Service struct {
	db       databases.ReportDatabase
	tuning   *config.TuningStore
	pipeline *Pipeline
	dedup    *DedupGuard
	events   events.Publisher
	cache    *IdempotencyCache
	flight   singleflight.Group

	now   func() time.Time
	newID func() string
}

// NewService wires a lifecycle service
func NewService(db databases.ReportDatabase, tuning *config.TuningStore, pipeline *Pipeline, publisher events.Publisher, cache *IdempotencyCache) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{
		db:       db,
		tuning:   tuning,
		pipeline: pipeline,
		dedup:    &DedupGuard{DB: db},
		events:   publisher,
		cache:    cache,
		now:      Clock,
		newID:    uuid.NewString,
	}
}

// SetClock replaces the clock. Times are truncated to milliseconds.
func (s *Service) SetClock(now func() time.Time) {
	s.now = func() time.Time { return now().UTC().Truncate(time.Millisecond) }
}

var phonePattern = regexp.MustCompile(`^\+?[1-9][0-9]{6,14}$`)

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// ValidateSubmission checks and normalizes a submission in place
func ValidateSubmission(sub *models.Submission) error {
	sub.Description = strings.TrimSpace(sub.Description)
	if sub.Description == "" {
		return models.NewError(models.CodeValidation, "description is required")
	}
	if sub.DisasterType == "" {
		return models.NewError(models.CodeValidation, "disasterType is required")
	}
	if !sub.DisasterType.Valid() {
		return models.NewError(models.CodeValidation, "unknown disasterType %q", sub.DisasterType)
	}
	if !finite(sub.Latitude) || sub.Latitude < -90 || sub.Latitude > 90 {
		return models.NewError(models.CodeValidation, "latitude must be within [-90, 90]")
	}
	if !finite(sub.Longitude) || sub.Longitude < -180 || sub.Longitude > 180 {
		return models.NewError(models.CodeValidation, "longitude must be within [-180, 180]")
	}
	phone := phoneSeparators.Replace(sub.Phone)
	if phone == "" {
		return models.NewError(models.CodeValidation, "phone is required")
	}
	if !phonePattern.MatchString(phone) {
		return models.NewError(models.CodeValidation, "invalid phone number")
	}
	sub.Phone = phone
	for i, m := range sub.Media {
		if m.Kind != models.MediaImage && m.Kind != models.MediaVideo {
			return models.NewError(models.CodeValidation, "media[%d]: unknown kind %q", i, m.Kind)
		}
		if strings.TrimSpace(m.URI) == "" {
			return models.NewError(models.CodeValidation, "media[%d]: uri is required", i)
		}
		sub.Media[i].Analysis = nil
	}
	if strings.TrimSpace(sub.SubmitterID) == "" {
		sub.SubmitterID = models.AnonymousSubmitter
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

type ingestOutcome struct {
	result models.IngestResult
	err    error
}

// Ingest validates, deduplicates, scores and persists a new submission.
// A duplicate returns a DEDUP_CONFLICT error alongside a DUPLICATE result.
// A retry carrying the same idempotency key within the window gets the
// first outcome back. Anonymous keys are scoped to the client address, and
// anonymous submissions without one are never cached.
func (s *Service) Ingest(ctx context.Context, sub models.Submission) (models.IngestResult, error) {
	if err := ValidateSubmission(&sub); err != nil {
		return models.IngestResult{}, err
	}
	owner := sub.SubmitterID
	if owner == models.AnonymousSubmitter {
		owner += "@" + sub.ClientAddr
	}
	if sub.IdempotencyKey == "" || owner == models.AnonymousSubmitter+"@" {
		return s.ingest(ctx, sub)
	}

	key := idempotencyKey("ingest", owner, sub.IdempotencyKey)
	v, err, _ := s.flight.Do(key, func() (interface{}, error) {
		if cached, ok := s.cache.Get(key); ok {
			return cached, nil
		}
		res, err := s.ingest(ctx, sub)
		if err != nil && models.CodeOf(err) != models.CodeDedupConflict {
			return nil, err
		}
		out := ingestOutcome{result: res, err: err}
		s.cache.Put(key, out)
		return out, nil
	})
	if err != nil {
		return models.IngestResult{}, err
	}
	out := v.(ingestOutcome)
	return out.result, out.err
}

func (s *Service) ingest(ctx context.Context, sub models.Submission) (models.IngestResult, error) {
	t := s.tuning.Load()
	now := s.now()

	dup, err := s.dedup.Find(ctx, t.Dedup, sub, now)
	if err != nil {
		return models.IngestResult{}, err
	}

	eval, err := s.pipeline.Evaluate(ctx, t, sub)
	if err != nil {
		return models.IngestResult{}, err
	}
	v := eval.Verdict

	if dup != nil {
		zap.S().Infow("duplicate report",
			"duplicateOf", dup.ReportID,
			"disasterType", sub.DisasterType,
			"confidence", v.Confidence,
			"fraudScore", v.FraudScore)
		e := models.NewError(models.CodeDedupConflict, "report duplicates %s", dup.ReportID)
		e.DuplicateOf = dup.ReportID
		return models.IngestResult{
			Status:      models.StatusDuplicate,
			Confidence:  v.Confidence,
			FraudScore:  v.FraudScore,
			Priority:    v.Priority,
			DuplicateOf: dup.ReportID,
		}, e
	}

	detail := v.Detail
	r := models.Report{
		ReportID:       s.newID(),
		SubmitterID:    sub.SubmitterID,
		Phone:          sub.Phone,
		Latitude:       sub.Latitude,
		Longitude:      sub.Longitude,
		Location:       models.NewGeoPoint(sub.Latitude, sub.Longitude),
		Address:        sub.Address,
		DisasterType:   sub.DisasterType,
		Priority:       v.Priority,
		Status:         models.StatusPending,
		Description:    sub.Description,
		Media:          attachAnalysis(sub.Media, eval.Images.Items),
		AIConfidence:   v.Confidence,
		AIFraudScore:   v.FraudScore,
		AnalysisDetail: &detail,
		Votes:          []models.Vote{},
		Updates:        []models.Update{},
		CreatedAt:      now,
		UpdatedAt:      now,
		IsDemo:         sub.IsDemo,
	}
	if v.SuggestedStatus != models.StatusPending {
		note := ""
		if detail.RejectedByFraud {
			note = "rejected_by_fraud"
		}
		if err := transition(&r, v.SuggestedStatus, SystemActor, note, now); err != nil {
			return models.IngestResult{}, err
		}
	}
	r.AIVerified = r.Status == models.StatusVerified

	if err := ctx.Err(); err != nil {
		return models.IngestResult{}, err
	}
	if err := s.db.InsertOne(ctx, r); err != nil {
		return models.IngestResult{}, err
	}
	zap.S().Infow("report created",
		"reportId", r.ReportID,
		"status", r.Status,
		"priority", r.Priority,
		"branch", detail.Branch,
		"confidence", r.AIConfidence,
		"fraudScore", r.AIFraudScore)

	s.publish(ctx, events.RoutingKeyReportCreated, func(pctx context.Context) error {
		return s.events.ReportCreated(pctx, events.ReportCreated{
			ReportID:     r.ReportID,
			DisasterType: r.DisasterType,
			Priority:     r.Priority,
			Status:       r.Status,
			Latitude:     r.Latitude,
			Longitude:    r.Longitude,
			IsDemo:       r.IsDemo,
			Timestamp:    events.Stamp(r.CreatedAt),
		})
	})
	if r.Status != models.StatusPending {
		s.publishStatusChanged(ctx, &r, "intake")
	}

	return models.IngestResult{
		ReportID:   r.ReportID,
		Status:     r.Status,
		Confidence: r.AIConfidence,
		FraudScore: r.AIFraudScore,
		Priority:   r.Priority,
	}, nil
}

// attachAnalysis copies media and attaches the image scores in order
func attachAnalysis(media []models.MediaRef, scores []models.ImageQuality) []models.MediaRef {
	out := make([]models.MediaRef, len(media))
	n := 0
	for i, m := range media {
		out[i] = m
		if m.Kind == models.MediaImage && n < len(scores) {
			q := scores[n]
			out[i].Analysis = &q
			n++
		}
	}
	return out
}

// GetReport returns a stored report
func (s *Service) GetReport(ctx context.Context, reportID string) (*models.Report, error) {
	return s.db.FindOne(ctx, reportID)
}

// ListReports returns one page of reports, newest first
func (s *Service) ListReports(ctx context.Context, q databases.ListQuery) ([]models.Report, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, models.NewError(models.CodeValidation, "unknown status %q", q.Status)
	}
	if q.DisasterType != "" && !q.DisasterType.Valid() {
		return nil, models.NewError(models.CodeValidation, "unknown disaster type %q", q.DisasterType)
	}
	if q.Limit < 0 || q.Page < 0 {
		return nil, models.NewError(models.CodeValidation, "limit and page must not be negative")
	}
	if q.Page > databases.MaxListPage {
		return nil, models.NewError(models.CodeValidation, "page must be at most %d", databases.MaxListPage)
	}
	reports, err := s.db.List(ctx, q)
	if err != nil {
		return nil, err
	}
	if reports == nil {
		reports = []models.Report{}
	}
	return reports, nil
}

// RecordVote records voterID's vote on a report and applies the owner and
// community rules. Repeating a vote is a no-op. The returned tallies reflect
// the state that was persisted.
func (s *Service) RecordVote(ctx context.Context, reportID, voterID string, vt models.VoteType) (models.VoteResult, error) {
	if strings.TrimSpace(voterID) == "" {
		return models.VoteResult{}, models.NewError(models.CodeValidation, "voter is required")
	}
	if !vt.Valid() {
		return models.VoteResult{}, models.NewError(models.CodeValidation, "unknown vote type %q", vt)
	}
	t := s.tuning.Load()

	var (
		saved   *models.Report
		voted   bool
		moved   bool
		from    models.Status
		actor   string
		because string
	)
	err := s.withConflictRetry(ctx, "vote", func() error {
		voted, moved = false, false
		r, err := s.db.FindOne(ctx, reportID)
		if err != nil {
			return err
		}
		prev := r.UpdatedAt
		stamp := nextStamp(prev, s.now())
		if !castVote(r, voterID, vt, stamp) {
			saved = r
			return nil
		}
		voted = true
		if to, reason, ok := voteOutcome(r, voterID, vt, t.Votes); ok {
			from = r.Status
			actor = SystemActor
			if reason == "owner_vote" {
				actor = voterID
			}
			if err := transition(r, to, actor, reason, stamp); err != nil {
				return err
			}
			moved, because = true, reason
		} else {
			r.UpdatedAt = stamp
		}
		if err := s.db.ReplaceOne(ctx, *r, prev); err != nil {
			return err
		}
		saved = r
		return nil
	})
	if err != nil {
		return models.VoteResult{}, err
	}

	tally := Tally(saved.Votes)
	if voted {
		zap.S().Infow("vote recorded",
			"reportId", reportID,
			"voteType", vt,
			"total", tally.Total)
		s.publish(ctx, events.RoutingKeyVoteReceived, func(pctx context.Context) error {
			return s.events.VoteReceived(pctx, events.VoteReceived{
				ReportID:  reportID,
				VoterID:   voterID,
				VoteType:  vt,
				Total:     tally.Total,
				Timestamp: events.Stamp(saved.UpdatedAt),
			})
		})
	}
	if moved {
		zap.S().Infow("vote changed report status",
			"reportId", reportID,
			"from", from,
			"to", saved.Status,
			"reason", because)
		s.publishStatusChanged(ctx, saved, because)
	}
	return models.VoteResult{
		Tallies:     tally,
		Percentages: Percentages(tally),
		StatusAfter: saved.Status,
	}, nil
}

// ApplyOperatorAction applies an operator action to a report. Only operators
// and admins may act. The same actor repeating the same action within the
// idempotency window gets the first result back.
func (s *Service) ApplyOperatorAction(ctx context.Context, reportID string, actor Actor, action Action, note string) (*models.Report, error) {
	if !actor.HasRole(RoleOperator, RoleAdmin) {
		return nil, models.NewError(models.CodePermissionDenied, "%s requires the operator or admin role", action)
	}
	target, ok := action.Target()
	if !ok {
		return nil, models.NewError(models.CodeValidation, "unknown action %q", action)
	}

	key := idempotencyKey(reportID, actor.ID, string(action))
	v, err, _ := s.flight.Do(key, func() (interface{}, error) {
		if cached, ok := s.cache.Get(key); ok {
			return cached, nil
		}
		r, err := s.applyAction(ctx, reportID, actor, action, target, note)
		if err != nil {
			return nil, err
		}
		s.cache.Put(key, r)
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Report).Clone(), nil
}

func (s *Service) applyAction(ctx context.Context, reportID string, actor Actor, action Action, target models.Status, note string) (*models.Report, error) {
	var saved *models.Report
	var from models.Status
	err := s.withConflictRetry(ctx, string(action), func() error {
		r, err := s.db.FindOne(ctx, reportID)
		if err != nil {
			return err
		}
		if !CanTransition(r.Status, target) {
			return models.NewError(models.CodeInvalidTransition, "cannot %s a %s report", action, r.Status)
		}
		prev := r.UpdatedAt
		from = r.Status
		if err := transition(r, target, actor.ID, note, s.now()); err != nil {
			return err
		}
		if err := s.db.ReplaceOne(ctx, *r, prev); err != nil {
			return err
		}
		saved = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	zap.S().Infow("operator action applied",
		"reportId", reportID,
		"action", action,
		"actor", actor.ID,
		"from", from,
		"to", saved.Status)
	s.publishStatusChanged(ctx, saved, "operator:"+string(action))
	return saved, nil
}

// DeleteReport removes a report. Admin only.
func (s *Service) DeleteReport(ctx context.Context, reportID string, actor Actor) error {
	if !actor.HasRole(RoleAdmin) {
		return models.NewError(models.CodePermissionDenied, "delete requires the admin role")
	}
	if err := s.db.DeleteOne(ctx, reportID); err != nil {
		return err
	}
	zap.S().Infow("report deleted",
		"reportId", reportID,
		"actor", actor.ID)
	return nil
}

func (s *Service) withConflictRetry(ctx context.Context, op string, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(conflictRetries+1),
		retry.Delay(5*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, models.ErrStoreConflict)
		}),
		retry.OnRetry(func(n uint, err error) {
			zap.S().Debugw("store conflict, retrying",
				"op", op,
				"attempt", n+1)
		}),
	)
}

func (s *Service) publishStatusChanged(ctx context.Context, r *models.Report, reason string) {
	last := r.Updates[len(r.Updates)-1]
	s.publish(ctx, events.RoutingKeyStatusChanged, func(pctx context.Context) error {
		return s.events.StatusChanged(pctx, events.StatusChanged{
			ReportID:  r.ReportID,
			From:      last.StatusChange.From,
			To:        last.StatusChange.To,
			ActorID:   last.AuthorID,
			Reason:    reason,
			Timestamp: events.Stamp(last.CreatedAt),
		})
	})
}

// publish sends an event after the write it describes has been persisted.
// Failures are logged only.
func (s *Service) publish(ctx context.Context, key string, send func(context.Context) error) {
	if err := send(context.WithoutCancel(ctx)); err != nil {
		zap.S().Warnw("failed to publish event",
			"routingKey", key,
			"error", err)
	}
}
