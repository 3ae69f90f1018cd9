package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/emergency-report-api/analyzer"
	"github.com/linesmerrill/emergency-report-api/config"
	"github.com/linesmerrill/emergency-report-api/databases"
	"github.com/linesmerrill/emergency-report-api/databases/mocks"
	"github.com/linesmerrill/emergency-report-api/events"
	"github.com/linesmerrill/emergency-report-api/models"
	"github.com/linesmerrill/emergency-report-api/verification"
)

const fireDescription = "Building on fire, people trapped on second floor, urgent help needed"

type stubAnalyzer struct {
	result analyzer.Result
	err    error
	calls  int32
	last   atomic.Pointer[analyzer.Request]
}

func (s *stubAnalyzer) Analyze(ctx context.Context, req analyzer.Request) (analyzer.Result, error) {
	atomic.AddInt32(&s.calls, 1)
	s.last.Store(&req)
	if err := ctx.Err(); err != nil {
		return analyzer.Result{}, err
	}
	return s.result, s.err
}

func (s *stubAnalyzer) Name() string    { return "stub" }
func (s *stubAnalyzer) Version() string { return "stub:1" }

type stubResolver map[string]verification.ImageInfo

func (s stubResolver) Resolve(_ context.Context, uri string) (verification.ImageInfo, error) {
	info, ok := s[uri]
	if !ok {
		return verification.ImageInfo{}, errors.New("no such image")
	}
	return info, nil
}

type recordingPublisher struct {
	events.Noop
	mu      sync.Mutex
	created []events.ReportCreated
	changed []events.StatusChanged
	votes   []events.VoteReceived
}

func (p *recordingPublisher) ReportCreated(_ context.Context, m events.ReportCreated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, m)
	return nil
}

func (p *recordingPublisher) StatusChanged(_ context.Context, m events.StatusChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, m)
	return nil
}

func (p *recordingPublisher) VoteReceived(_ context.Context, m events.VoteReceived) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.votes = append(p.votes, m)
	return nil
}

type fixture struct {
	svc      *Service
	db       *databases.MemoryReportDatabase
	analyzer *stubAnalyzer
	events   *recordingPublisher
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:       databases.NewMemoryReportDatabase(),
		analyzer: &stubAnalyzer{err: &analyzer.Failure{Kind: analyzer.FailureUnavailable}},
		events:   &recordingPublisher{},
		now:      time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	pipeline := &Pipeline{
		Analyzer: f.analyzer,
		Images: stubResolver{
			"https://cdn.example.com/fire.jpg": {Width: 1920, Height: 1080, Bytes: 1300000, ColorMode: verification.ColorModeColor},
		},
	}
	f.svc = NewService(f.db, config.NewTuningStore("", config.DefaultTuning()), pipeline, f.events, NewIdempotencyCache(testContext(t), time.Minute))
	f.svc.SetClock(func() time.Time { return f.now })
	ids := 0
	f.svc.newID = func() string {
		ids++
		return fmt.Sprintf("report-%d", ids)
	}
	return f
}

func fireSubmission() models.Submission {
	return models.Submission{
		SubmitterID:  "citizen-1",
		Phone:        "+977 980-1234567",
		Latitude:     27.7172,
		Longitude:    85.324,
		DisasterType: models.DisasterFire,
		Description:  fireDescription,
		Media:        []models.MediaRef{{Kind: models.MediaImage, URI: "https://cdn.example.com/fire.jpg"}},
	}
}

func (f *fixture) analyzerSays(v models.AIVerdict) {
	f.analyzer.err = nil
	f.analyzer.result = analyzer.Result{Verdict: v, Provider: "stub", Version: "stub:1", Raw: "{}"}
}

func TestIngestClearEmergencyVerified(t *testing.T) {
	f := newFixture(t)
	f.analyzerSays(models.AIVerdict{IsEmergency: true, Confidence: 0.92, FraudScore: 0.05, Priority: models.PriorityHigh})

	res, err := f.svc.Ingest(context.Background(), fireSubmission())
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, res.Status)
	assert.Equal(t, models.PriorityHigh, res.Priority)
	assert.InDelta(t, 0.92, res.Confidence, 1e-9)

	r, err := f.svc.GetReport(context.Background(), res.ReportID)
	require.NoError(t, err)
	assert.True(t, r.AIVerified)
	require.Len(t, r.Updates, 1)
	assert.Equal(t, "PENDING→VERIFIED", r.Updates[0].Message)
	assert.Equal(t, SystemActor, r.VerifiedBy)
	assert.Equal(t, "+9779801234567", r.Phone)
	assert.Equal(t, models.BranchAnalyzer, r.AnalysisDetail.Branch)
	require.NotNil(t, r.Media[0].Analysis)
	assert.InDelta(t, 0.9, r.Media[0].Analysis.Score, 1e-9)
	assert.True(t, r.UpdatedAt.After(r.CreatedAt))

	require.Len(t, f.events.created, 1)
	require.Len(t, f.events.changed, 1)
	assert.Equal(t, "intake", f.events.changed[0].Reason)
}

func TestIngestLocalImagesNotForwarded(t *testing.T) {
	f := newFixture(t)
	f.analyzerSays(models.AIVerdict{IsEmergency: true, Confidence: 0.92, FraudScore: 0.05, Priority: models.PriorityHigh})

	sub := fireSubmission()
	sub.Media = []models.MediaRef{{Kind: models.MediaImage, URI: "file:///tmp/x.png"}}
	res, err := f.svc.Ingest(context.Background(), sub)
	require.NoError(t, err)

	req := f.analyzer.last.Load()
	require.NotNil(t, req)
	assert.Empty(t, req.ImageURIs)
	r, err := f.svc.GetReport(context.Background(), res.ReportID)
	require.NoError(t, err)
	assert.NotContains(t, r.AnalysisDetail.Attenuations, verification.AttenuationImage)
	assert.InDelta(t, 0.92, res.Confidence, 1e-9)

	sub = fireSubmission()
	sub.SubmitterID = "citizen-2"
	sub.Latitude = 28.2
	sub.Media = []models.MediaRef{{Kind: models.MediaImage, URI: "https://cdn.example.com/missing.jpg"}}
	res, err = f.svc.Ingest(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn.example.com/missing.jpg"}, f.analyzer.last.Load().ImageURIs)
	r, err = f.svc.GetReport(context.Background(), res.ReportID)
	require.NoError(t, err)
	assert.Contains(t, r.AnalysisDetail.Attenuations, verification.AttenuationImage)
}

func TestIngestAnalyzerDownFallsBack(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Ingest(context.Background(), fireSubmission())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, res.Status)
	assert.GreaterOrEqual(t, res.Confidence, 0.70)
	assert.Equal(t, models.PriorityHigh, res.Priority)

	r, err := f.svc.GetReport(context.Background(), res.ReportID)
	require.NoError(t, err)
	assert.False(t, r.AIVerified)
	assert.Empty(t, r.Updates)
	assert.Equal(t, models.BranchFallback, r.AnalysisDetail.Branch)
	assert.Equal(t, "UNAVAILABLE", r.AnalysisDetail.AnalyzerFailure)
	assert.Empty(t, f.events.changed)
}

func TestIngestFraudRejected(t *testing.T) {
	f := newFixture(t)
	sub := fireSubmission()
	sub.Description = "haha just testing fake report"
	sub.Media = nil

	res, err := f.svc.Ingest(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, res.Status)
	assert.Greater(t, res.FraudScore, 0.6)
	assert.Equal(t, models.PriorityLow, res.Priority)

	r, err := f.svc.GetReport(context.Background(), res.ReportID)
	require.NoError(t, err)
	assert.True(t, r.AnalysisDetail.RejectedByFraud)
	assert.Equal(t, "PENDING→REJECTED: rejected_by_fraud", r.Updates[0].Message)
}

func TestIngestValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *models.Submission)
	}{
		{"latitude", func(s *models.Submission) { s.Latitude = 91 }},
		{"longitude", func(s *models.Submission) { s.Longitude = -181 }},
		{"phone", func(s *models.Submission) { s.Phone = "12ab" }},
		{"missing phone", func(s *models.Submission) { s.Phone = "" }},
		{"description", func(s *models.Submission) { s.Description = "   " }},
		{"type", func(s *models.Submission) { s.DisasterType = "TSUNAMI" }},
		{"media", func(s *models.Submission) { s.Media[0].URI = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			sub := fireSubmission()
			tt.mutate(&sub)
			_, err := f.svc.Ingest(context.Background(), sub)
			assert.ErrorIs(t, err, models.ErrValidation)
			assert.Zero(t, f.db.Len())
			assert.Zero(t, atomic.LoadInt32(&f.analyzer.calls))
		})
	}
}

func TestIngestAnonymous(t *testing.T) {
	f := newFixture(t)
	sub := fireSubmission()
	sub.SubmitterID = ""
	res, err := f.svc.Ingest(context.Background(), sub)
	require.NoError(t, err)

	r, err := f.svc.GetReport(context.Background(), res.ReportID)
	require.NoError(t, err)
	assert.Equal(t, models.AnonymousSubmitter, r.SubmitterID)
}

func TestIngestCancelledPersistsNothing(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Ingest(ctx, fireSubmission())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.db.Len())
	assert.Empty(t, f.events.created)
}

func TestIngestDuplicate(t *testing.T) {
	f := newFixture(t)
	first, err := f.svc.Ingest(context.Background(), fireSubmission())
	require.NoError(t, err)
	before, err := f.svc.GetReport(context.Background(), first.ReportID)
	require.NoError(t, err)

	f.now = f.now.Add(5 * time.Minute)
	sub := fireSubmission()
	sub.SubmitterID = "citizen-2"
	sub.Latitude += 0.00072
	sub.Description = "Building on fire people trapped on the second floor need urgent help"

	res, err := f.svc.Ingest(context.Background(), sub)
	assert.ErrorIs(t, err, models.ErrDedupConflict)
	var coded *models.Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, first.ReportID, coded.DuplicateOf)
	assert.Equal(t, models.StatusDuplicate, res.Status)
	assert.Equal(t, first.ReportID, res.DuplicateOf)
	assert.Equal(t, 1, f.db.Len())

	after, err := f.svc.GetReport(context.Background(), first.ReportID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestIngestAnonymousIdempotencyKeyScopedToClient(t *testing.T) {
	f := newFixture(t)
	anon := func(addr string, lat float64) models.Submission {
		sub := fireSubmission()
		sub.SubmitterID = ""
		sub.IdempotencyKey = "shared-key"
		sub.ClientAddr = addr
		sub.Latitude = lat
		return sub
	}

	a, err := f.svc.Ingest(context.Background(), anon("10.0.0.1", 27.7))
	require.NoError(t, err)
	b, err := f.svc.Ingest(context.Background(), anon("10.0.0.2", 28.2))
	require.NoError(t, err)
	assert.NotEqual(t, a.ReportID, b.ReportID)

	again, err := f.svc.Ingest(context.Background(), anon("10.0.0.1", 27.7))
	require.NoError(t, err)
	assert.Equal(t, a.ReportID, again.ReportID)

	c, err := f.svc.Ingest(context.Background(), anon("", 26.5))
	require.NoError(t, err)
	d, err := f.svc.Ingest(context.Background(), anon("", 29.0))
	require.NoError(t, err)
	assert.NotEqual(t, c.ReportID, d.ReportID)
	assert.Equal(t, 4, f.db.Len())
}

func TestIngestIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	sub := fireSubmission()
	sub.IdempotencyKey = "retry-1"

	a, err := f.svc.Ingest(context.Background(), sub)
	require.NoError(t, err)
	b, err := f.svc.Ingest(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, f.db.Len())
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.analyzer.calls))
}

func ingestPending(t *testing.T, f *fixture) string {
	t.Helper()
	res, err := f.svc.Ingest(context.Background(), fireSubmission())
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, res.Status)
	return res.ReportID
}

func TestOwnerResolvedVote(t *testing.T) {
	f := newFixture(t)
	f.analyzerSays(models.AIVerdict{IsEmergency: true, Confidence: 0.92, FraudScore: 0.05, Priority: models.PriorityHigh})
	res, err := f.svc.Ingest(context.Background(), fireSubmission())
	require.NoError(t, err)
	require.Equal(t, models.StatusVerified, res.Status)

	f.now = f.now.Add(time.Hour)
	vr, err := f.svc.RecordVote(context.Background(), res.ReportID, "citizen-1", models.VoteResolved)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, vr.StatusAfter)
	assert.Equal(t, 1, vr.Tallies.Total)

	r, err := f.svc.GetReport(context.Background(), res.ReportID)
	require.NoError(t, err)
	require.NotNil(t, r.ResolvedAt)
	assert.Equal(t, "citizen-1", r.Updates[len(r.Updates)-1].AuthorID)
	assert.Equal(t, "owner_vote", f.events.changed[len(f.events.changed)-1].Reason)
}

func TestCommunityThreshold(t *testing.T) {
	f := newFixture(t)
	id := ingestPending(t, f)

	sequence := []struct {
		voter string
		vote  models.VoteType
		after models.Status
	}{
		{"v1", models.VoteStillThere, models.StatusPending},
		{"v2", models.VoteFakeReport, models.StatusPending},
		{"v3", models.VoteResolved, models.StatusPending},
		{"v4", models.VoteResolved, models.StatusPending},
		{"v5", models.VoteResolved, models.StatusResolved},
	}
	var last models.VoteResult
	for _, step := range sequence {
		f.now = f.now.Add(time.Minute)
		vr, err := f.svc.RecordVote(context.Background(), id, step.voter, step.vote)
		require.NoError(t, err)
		assert.Equal(t, step.after, vr.StatusAfter, step.voter)
		last = vr
	}
	assert.Equal(t, models.VotePercentages{StillThere: 20, Resolved: 60, Fake: 20}, last.Percentages)
	assert.Len(t, f.events.votes, 5)
	require.Len(t, f.events.changed, 1)
	assert.Equal(t, "community_threshold", f.events.changed[0].Reason)
	assert.Equal(t, SystemActor, f.events.changed[0].ActorID)
}

func TestRepeatedVoteIsNoop(t *testing.T) {
	f := newFixture(t)
	id := ingestPending(t, f)

	first, err := f.svc.RecordVote(context.Background(), id, "v1", models.VoteStillThere)
	require.NoError(t, err)
	before, err := f.svc.GetReport(context.Background(), id)
	require.NoError(t, err)

	f.now = f.now.Add(time.Minute)
	second, err := f.svc.RecordVote(context.Background(), id, "v1", models.VoteStillThere)
	require.NoError(t, err)
	after, err := f.svc.GetReport(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, before, after)
	assert.Len(t, f.events.votes, 1)
}

func TestRecordVoteErrors(t *testing.T) {
	f := newFixture(t)
	id := ingestPending(t, f)

	_, err := f.svc.RecordVote(context.Background(), id, "v1", "MAYBE")
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = f.svc.RecordVote(context.Background(), id, "", models.VoteResolved)
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = f.svc.RecordVote(context.Background(), "missing", "v1", models.VoteResolved)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRecordVoteGivesUpAfterConflictRetries(t *testing.T) {
	base := models.Report{
		ReportID:     "r-1",
		SubmitterID:  "citizen-1",
		DisasterType: models.DisasterFire,
		Status:       models.StatusPending,
		CreatedAt:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	current := base
	db := &mocks.ReportDatabase{}
	db.On("FindOne", mock.Anything, "r-1").
		Run(func(mock.Arguments) { current = base }).
		Return(&current, nil)
	db.On("ReplaceOne", mock.Anything, mock.AnythingOfType("models.Report"), base.UpdatedAt).
		Return(models.ErrStoreConflict)

	svc := NewService(db, config.NewTuningStore("", config.DefaultTuning()), &Pipeline{}, &recordingPublisher{}, NewIdempotencyCache(testContext(t), time.Minute))
	_, err := svc.RecordVote(context.Background(), "r-1", "neighbour-1", models.VoteStillThere)

	assert.ErrorIs(t, err, models.ErrStoreConflict)
	db.AssertNumberOfCalls(t, "ReplaceOne", conflictRetries+1)
	db.AssertNumberOfCalls(t, "FindOne", conflictRetries+1)
}

func TestConcurrentVotesAllPersisted(t *testing.T) {
	f := newFixture(t)
	id := ingestPending(t, f)

	var (
		wg        sync.WaitGroup
		succeeded int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.RecordVote(context.Background(), id, fmt.Sprintf("v%d", i), models.VoteStillThere)
			if err != nil {
				assert.ErrorIs(t, err, models.ErrStoreConflict)
				return
			}
			atomic.AddInt32(&succeeded, 1)
		}(i)
	}
	wg.Wait()

	r, err := f.svc.GetReport(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int(succeeded), len(r.Votes))
	assert.Positive(t, succeeded)
}

func TestOperatorActions(t *testing.T) {
	f := newFixture(t)
	id := ingestPending(t, f)
	op := Actor{ID: "op-1", Roles: []string{RoleOperator}}

	r, err := f.svc.ApplyOperatorAction(context.Background(), id, op, ActionVerify, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, r.Status)
	assert.Equal(t, "op-1", r.VerifiedBy)

	again, err := f.svc.ApplyOperatorAction(context.Background(), id, op, ActionVerify, "")
	require.NoError(t, err)
	assert.Equal(t, r, again)

	other := Actor{ID: "op-2", Roles: []string{RoleOperator}}
	_, err = f.svc.ApplyOperatorAction(context.Background(), id, other, ActionVerify, "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	f.now = f.now.Add(time.Minute)
	r, err = f.svc.ApplyOperatorAction(context.Background(), id, other, ActionAdvance, "crew dispatched")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, r.Status)
	assert.Equal(t, "VERIFIED→IN_PROGRESS: crew dispatched", r.Updates[len(r.Updates)-1].Message)

	r, err = f.svc.ApplyOperatorAction(context.Background(), id, other, ActionResolve, "")
	require.NoError(t, err)
	resolvedAt := *r.ResolvedAt

	r, err = f.svc.ApplyOperatorAction(context.Background(), id, other, ActionReopen, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, r.Status)
	assert.Equal(t, resolvedAt, *r.ResolvedAt)
	assert.Len(t, r.Updates, 4)
}

func TestOperatorActionPermissions(t *testing.T) {
	f := newFixture(t)
	id := ingestPending(t, f)

	citizen := Actor{ID: "citizen-1", Roles: []string{"citizen"}}
	_, err := f.svc.ApplyOperatorAction(context.Background(), id, citizen, ActionVerify, "")
	assert.ErrorIs(t, err, models.ErrPermissionDenied)

	admin := Actor{ID: "admin-1", Roles: []string{RoleAdmin}}
	_, err = f.svc.ApplyOperatorAction(context.Background(), id, admin, "escalate", "")
	assert.ErrorIs(t, err, models.ErrValidation)

	op := Actor{ID: "op-1", Roles: []string{RoleOperator}}
	assert.ErrorIs(t, f.svc.DeleteReport(context.Background(), id, op), models.ErrPermissionDenied)
	require.NoError(t, f.svc.DeleteReport(context.Background(), id, admin))
	_, err = f.svc.GetReport(context.Background(), id)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestOperatorActionIdempotencyWindow(t *testing.T) {
	f := newFixture(t)
	f.svc.cache = NewIdempotencyCache(testContext(t), 50*time.Millisecond)
	id := ingestPending(t, f)
	op := Actor{ID: "op-1", Roles: []string{RoleOperator}}

	first, err := f.svc.ApplyOperatorAction(context.Background(), id, op, ActionVerify, "")
	require.NoError(t, err)
	again, err := f.svc.ApplyOperatorAction(context.Background(), id, op, ActionVerify, "")
	require.NoError(t, err)
	assert.Equal(t, first.UpdatedAt, again.UpdatedAt)

	assert.Eventually(t, func() bool {
		_, err := f.svc.ApplyOperatorAction(context.Background(), id, op, ActionVerify, "")
		return errors.Is(err, models.ErrInvalidTransition)
	}, time.Second, 10*time.Millisecond)
}

// testContext mirrors testing.T.Context (Go 1.24+): a context canceled
// just before the test's Cleanup-registered functions run.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
