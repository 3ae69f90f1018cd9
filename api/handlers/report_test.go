package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/emergency-report-api/analyzer"
	"github.com/linesmerrill/emergency-report-api/api"
	"github.com/linesmerrill/emergency-report-api/api/handlers"
	"github.com/linesmerrill/emergency-report-api/config"
	"github.com/linesmerrill/emergency-report-api/databases"
	"github.com/linesmerrill/emergency-report-api/lifecycle"
	"github.com/linesmerrill/emergency-report-api/models"
)

const fireBody = `{
	"phone": "+9779801234567",
	"latitude": 27.7172,
	"longitude": 85.324,
	"disasterType": "FIRE",
	"description": "Building on fire, people trapped on second floor, urgent help needed"
}`

var (
	operator = lifecycle.Actor{ID: "op-1", Roles: []string{lifecycle.RoleOperator}}
	citizen  = lifecycle.Actor{ID: "citizen-1", Roles: []string{"citizen"}}
)

func newReportHandler() handlers.Report {
	svc := lifecycle.NewService(
		databases.NewMemoryReportDatabase(),
		config.NewTuningStore("", config.DefaultTuning()),
		&lifecycle.Pipeline{Analyzer: analyzer.Disabled{}},
		nil,
		lifecycle.NewIdempotencyCache(context.Background(), time.Minute),
	)
	return handlers.Report{Svc: svc}
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func asActor(req *http.Request, actor lifecycle.Actor) *http.Request {
	return req.WithContext(api.WithActor(req.Context(), actor))
}

func withReportID(req *http.Request, id string) *http.Request {
	return mux.SetURLVars(req, map[string]string{"report_id": id})
}

func errorBody(t *testing.T, rr *httptest.ResponseRecorder) models.MessageError {
	t.Helper()
	var body models.ErrorMessageResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.Response
}

func createReport(t *testing.T, h handlers.Report) models.IngestResult {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/reports", strings.NewReader(fireBody))
	rr := serve(h.CreateReportHandler, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var res models.IngestResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	return res
}

func TestReport_CreateReportHandler(t *testing.T) {
	h := newReportHandler()
	res := createReport(t, h)
	assert.NotEmpty(t, res.ReportID)
	assert.Equal(t, models.StatusPending, res.Status)
	assert.Equal(t, models.PriorityHigh, res.Priority)

	rr := serve(h.ReportByIDHandler, withReportID(httptest.NewRequest("GET", "/api/v1/reports/"+res.ReportID, nil), res.ReportID))
	require.Equal(t, http.StatusOK, rr.Code)
	var report models.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, models.AnonymousSubmitter, report.SubmitterID)
	assert.Equal(t, "disabled", report.AnalysisDetail.Provider)
}

func TestReport_CreateReportHandlerAuthenticatedSubmitter(t *testing.T) {
	h := newReportHandler()
	req := asActor(httptest.NewRequest("POST", "/api/v1/reports", strings.NewReader(fireBody)), citizen)
	rr := serve(h.CreateReportHandler, req)
	require.Equal(t, http.StatusCreated, rr.Code)
	var res models.IngestResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))

	report, err := h.Svc.GetReport(context.Background(), res.ReportID)
	require.NoError(t, err)
	assert.Equal(t, citizen.ID, report.SubmitterID)
}

func TestReport_CreateReportHandlerBadBody(t *testing.T) {
	h := newReportHandler()
	rr := serve(h.CreateReportHandler, httptest.NewRequest("POST", "/api/v1/reports", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorBody(t, rr).Code)

	rr = serve(h.CreateReportHandler, httptest.NewRequest("POST", "/api/v1/reports", strings.NewReader(`{"description": "help", "disasterType": "FIRE", "latitude": 95}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorBody(t, rr).Code)
}

func TestReport_CreateReportHandlerDuplicate(t *testing.T) {
	h := newReportHandler()
	first := createReport(t, h)

	rr := serve(h.CreateReportHandler, httptest.NewRequest("POST", "/api/v1/reports", strings.NewReader(fireBody)))
	assert.Equal(t, http.StatusConflict, rr.Code)
	body := errorBody(t, rr)
	assert.Equal(t, "DEDUP_CONFLICT", body.Code)
	assert.Equal(t, first.ReportID, body.DuplicateOf)
}

func TestReport_CreateReportHandlerIdempotencyKey(t *testing.T) {
	h := newReportHandler()
	var ids []string
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/api/v1/reports", strings.NewReader(fireBody))
		req.Header.Set("Idempotency-Key", "abc")
		rr := serve(h.CreateReportHandler, req)
		require.Equal(t, http.StatusCreated, rr.Code)
		var res models.IngestResult
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
		ids = append(ids, res.ReportID)
	}
	assert.Equal(t, ids[0], ids[1])
}

func TestReport_ReportByIDHandlerNotFound(t *testing.T) {
	h := newReportHandler()
	rr := serve(h.ReportByIDHandler, withReportID(httptest.NewRequest("GET", "/api/v1/reports/nope", nil), "nope"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NOT_FOUND", errorBody(t, rr).Code)
}

func TestReport_VoteHandler(t *testing.T) {
	h := newReportHandler()
	id := createReport(t, h).ReportID

	req := withReportID(httptest.NewRequest("POST", "/api/v1/reports/"+id+"/votes", strings.NewReader(`{"voteType": "STILL_THERE"}`)), id)
	rr := serve(h.VoteHandler, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = withReportID(httptest.NewRequest("POST", "/api/v1/reports/"+id+"/votes", strings.NewReader(`{"voteType": "STILL_THERE"}`)), id)
	rr = serve(h.VoteHandler, asActor(req, citizen))
	require.Equal(t, http.StatusOK, rr.Code)
	var res models.VoteResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, 1, res.Tallies.StillThere)
	assert.Equal(t, 100.0, res.Percentages.StillThere)
	assert.Equal(t, models.StatusPending, res.StatusAfter)

	req = withReportID(httptest.NewRequest("POST", "/api/v1/reports/"+id+"/votes", strings.NewReader(`{"voteType": "MAYBE"}`)), id)
	rr = serve(h.VoteHandler, asActor(req, citizen))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestReport_ActionHandler(t *testing.T) {
	h := newReportHandler()
	id := createReport(t, h).ReportID
	action := func(actor lifecycle.Actor, body string) *httptest.ResponseRecorder {
		req := withReportID(httptest.NewRequest("POST", "/api/v1/reports/"+id+"/actions", strings.NewReader(body)), id)
		return serve(h.ActionHandler, asActor(req, actor))
	}

	rr := action(citizen, `{"action": "verify"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "PERMISSION_DENIED", errorBody(t, rr).Code)

	rr = action(operator, `{"action": "verify", "note": "confirmed by phone"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var report models.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, models.StatusVerified, report.Status)
	assert.Equal(t, "PENDING→VERIFIED: confirmed by phone", report.Updates[0].Message)

	other := lifecycle.Actor{ID: "op-2", Roles: []string{lifecycle.RoleAdmin}}
	rr = action(other, `{"action": "verify"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "INVALID_TRANSITION", errorBody(t, rr).Code)
}

func TestReport_DeleteReportHandler(t *testing.T) {
	h := newReportHandler()
	id := createReport(t, h).ReportID
	del := func(actor lifecycle.Actor) *httptest.ResponseRecorder {
		req := withReportID(httptest.NewRequest("DELETE", "/api/v1/reports/"+id, nil), id)
		return serve(h.DeleteReportHandler, asActor(req, actor))
	}

	assert.Equal(t, http.StatusForbidden, del(operator).Code)

	admin := lifecycle.Actor{ID: "admin-1", Roles: []string{lifecycle.RoleAdmin}}
	assert.Equal(t, http.StatusOK, del(admin).Code)
	assert.Equal(t, http.StatusNotFound, del(admin).Code)
}

func TestReport_ListReportsHandler(t *testing.T) {
	h := newReportHandler()
	id := createReport(t, h).ReportID

	rr := serve(h.ListReportsHandler, httptest.NewRequest("GET", "/api/v1/reports?status=PENDING&limit=10", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var reports []models.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, id, reports[0].ReportID)

	rr = serve(h.ListReportsHandler, httptest.NewRequest("GET", "/api/v1/reports?status=VERIFIED", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	rr = serve(h.ListReportsHandler, httptest.NewRequest("GET", "/api/v1/reports?status=BOGUS", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(h.ListReportsHandler, httptest.NewRequest("GET", "/api/v1/reports?limit=ten", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorBody(t, rr).Code)
}
