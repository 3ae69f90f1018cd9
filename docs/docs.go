// Package docs Emergency Report API.
//
// Documentation of the Emergency Report API: citizen report intake,
// verification and lifecycle.
//
//	 Schemes: https
//	 BasePath: /
//	 Version: 1.0.0
//
//	 Consumes:
//	 - application/json
//
//	 Produces:
//	 - application/json
//
//	 Security:
//	 - basic
//	 - bearer
//
//	SecurityDefinitions:
//	basic:
//	  type: basic
//	bearer:
//	  type: apiKey
//	  name: Authorization
//	  in: header
//
// swagger:meta
package docs

import (
	"github.com/linesmerrill/emergency-report-api/models"
)

// swagger:route GET /health health healthEndpointID
// Lists the healthchex of the web service api.
// responses:
//   200: healthResponse

// Shows the current health of the api and the active threshold set.
// swagger:response healthResponse
type healthResponseWrapper struct {
	// in:body
	Body models.HealthCheckResponse
}

// swagger:route POST /api/v1/reports reports createReport
// Submits a citizen report. Authentication is optional; without it the report is anonymous.
// responses:
//   201: ingestResponse
//   400: errorResponse
//   409: errorResponse

// swagger:parameters createReport
type createReportParams struct {
	// in:body
	Body models.Submission
	// in:header
	IdempotencyKey string `json:"Idempotency-Key"`
}

// Outcome of the verification pipeline for a new report
// swagger:response ingestResponse
type ingestResponseWrapper struct {
	// in:body
	Body models.IngestResult
}

// swagger:route GET /api/v1/reports reports listReports
// Lists reports newest first, filtered by status and disasterType.
// responses:
//   200: reportsResponse
//   400: errorResponse

// swagger:response reportsResponse
type reportsResponseWrapper struct {
	// in:body
	Body []models.Report
}

// swagger:route GET /api/v1/reports/{report_id} reports reportByID
// Gets a single report by ID.
// responses:
//   200: reportResponse
//   404: errorResponse

// swagger:route POST /api/v1/reports/{report_id}/actions reports reportAction
// Applies an operator action (verify, reject, advance, resolve, reopen, false_alarm).
// responses:
//   200: reportResponse
//   403: errorResponse
//   409: errorResponse

// Shows a single report by the given {report_id}
// swagger:response reportResponse
type reportResponseWrapper struct {
	// in:body
	Body models.Report
}

// swagger:route POST /api/v1/reports/{report_id}/votes reports reportVote
// Records the caller's vote on a report.
// responses:
//   200: voteResponse
//   400: errorResponse

// swagger:response voteResponse
type voteResponseWrapper struct {
	// in:body
	Body models.VoteResult
}

// swagger:response errorResponse
type errorResponseWrapper struct {
	// in:body
	Body models.ErrorMessageResponse
}
