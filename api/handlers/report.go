package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/linesmerrill/emergency-report-api/api"
	"github.com/linesmerrill/emergency-report-api/config"
	"github.com/linesmerrill/emergency-report-api/databases"
	"github.com/linesmerrill/emergency-report-api/lifecycle"
	"github.com/linesmerrill/emergency-report-api/models"
)

// ReportService is the lifecycle surface the report handlers use
type ReportService interface {
	Ingest(ctx context.Context, sub models.Submission) (models.IngestResult, error)
	GetReport(ctx context.Context, reportID string) (*models.Report, error)
	ListReports(ctx context.Context, q databases.ListQuery) ([]models.Report, error)
	RecordVote(ctx context.Context, reportID, voterID string, vt models.VoteType) (models.VoteResult, error)
	ApplyOperatorAction(ctx context.Context, reportID string, actor lifecycle.Actor, action lifecycle.Action, note string) (*models.Report, error)
	DeleteReport(ctx context.Context, reportID string, actor lifecycle.Actor) error
}

// Report handles report-related requests
type Report struct {
	Svc ReportService
}

type voteRequest struct {
	VoteType models.VoteType `json:"voteType"`
}

type actionRequest struct {
	Action lifecycle.Action `json:"action"`
	Note   string           `json:"note"`
}

// CreateReportHandler ingests a new citizen report. Authenticated callers
// become the submitter; everyone else submits anonymously.
func (re Report) CreateReportHandler(w http.ResponseWriter, r *http.Request) {
	var sub models.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w,
			models.WrapError(models.CodeValidation, "failed to decode request body", err))
		return
	}

	sub.SubmitterID = models.AnonymousSubmitter
	if actor, ok := api.ActorFromContext(r.Context()); ok {
		sub.SubmitterID = actor.ID
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		sub.IdempotencyKey = key
	}
	sub.ClientAddr = r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		sub.ClientAddr = host
	}

	res, err := re.Svc.Ingest(r.Context(), sub)
	if err != nil {
		config.ErrorStatus("failed to ingest report", config.HTTPStatusFor(err), w, err)
		return
	}

	b, err := json.Marshal(res)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(b)
}

// ReportByIDHandler returns a report by its id
func (re Report) ReportByIDHandler(w http.ResponseWriter, r *http.Request) {
	reportID := mux.Vars(r)["report_id"]

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	report, err := re.Svc.GetReport(ctx, reportID)
	if err != nil {
		config.ErrorStatus("failed to get report by ID", config.HTTPStatusFor(err), w, err)
		return
	}

	b, err := json.Marshal(report)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// ListReportsHandler returns a page of reports filtered by the status and
// disasterType query params
func (re Report) ListReportsHandler(w http.ResponseWriter, r *http.Request) {
	q := databases.ListQuery{
		Status:       models.Status(r.URL.Query().Get("status")),
		DisasterType: models.DisasterType(r.URL.Query().Get("disasterType")),
	}
	var err error
	if q.Limit, err = intParam(r, "limit"); err != nil {
		config.ErrorStatus("invalid limit", http.StatusBadRequest, w, err)
		return
	}
	if q.Page, err = intParam(r, "page"); err != nil {
		config.ErrorStatus("invalid page", http.StatusBadRequest, w, err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	reports, err := re.Svc.ListReports(ctx, q)
	if err != nil {
		config.ErrorStatus("failed to list reports", config.HTTPStatusFor(err), w, err)
		return
	}

	b, err := json.Marshal(reports)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, models.WrapError(models.CodeValidation, name+" must be an integer", err)
	}
	return n, nil
}

// VoteHandler records the caller's vote on a report
func (re Report) VoteHandler(w http.ResponseWriter, r *http.Request) {
	reportID := mux.Vars(r)["report_id"]
	actor, ok := api.ActorFromContext(r.Context())
	if !ok {
		config.ErrorStatus("unauthenticated vote", http.StatusUnauthorized, w,
			models.NewError(models.CodePermissionDenied, "authentication required"))
		return
	}

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w,
			models.WrapError(models.CodeValidation, "failed to decode request body", err))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	res, err := re.Svc.RecordVote(ctx, reportID, actor.ID, req.VoteType)
	if err != nil {
		config.ErrorStatus("failed to record vote", config.HTTPStatusFor(err), w, err)
		return
	}

	b, err := json.Marshal(res)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// ActionHandler applies an operator action to a report
func (re Report) ActionHandler(w http.ResponseWriter, r *http.Request) {
	reportID := mux.Vars(r)["report_id"]
	actor, ok := api.ActorFromContext(r.Context())
	if !ok {
		config.ErrorStatus("unauthenticated action", http.StatusUnauthorized, w,
			models.NewError(models.CodePermissionDenied, "authentication required"))
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w,
			models.WrapError(models.CodeValidation, "failed to decode request body", err))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	report, err := re.Svc.ApplyOperatorAction(ctx, reportID, actor, req.Action, req.Note)
	if err != nil {
		config.ErrorStatus("failed to apply action", config.HTTPStatusFor(err), w, err)
		return
	}

	b, err := json.Marshal(report)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// DeleteReportHandler removes a report. Admin only.
func (re Report) DeleteReportHandler(w http.ResponseWriter, r *http.Request) {
	reportID := mux.Vars(r)["report_id"]
	actor, ok := api.ActorFromContext(r.Context())
	if !ok {
		config.ErrorStatus("unauthenticated delete", http.StatusUnauthorized, w,
			models.NewError(models.CodePermissionDenied, "authentication required"))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	if err := re.Svc.DeleteReport(ctx, reportID, actor); err != nil {
		config.ErrorStatus("failed to delete report", config.HTTPStatusFor(err), w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"message": "report deleted"}`))
}
