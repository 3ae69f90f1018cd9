package models

import (
	"time"
)

// AnonymousSubmitter is the submitter reference used when a report is filed
// without an authenticated user.
const AnonymousSubmitter = "anonymous"

// DisasterType classifies what kind of emergency a report describes
type DisasterType string

// Disaster types accepted at intake
const (
	DisasterFlood      DisasterType = "FLOOD"
	DisasterEarthquake DisasterType = "EARTHQUAKE"
	DisasterFire       DisasterType = "FIRE"
	DisasterCyclone    DisasterType = "CYCLONE"
	DisasterLandslide  DisasterType = "LANDSLIDE"
	DisasterMedical    DisasterType = "MEDICAL"
	DisasterAccident   DisasterType = "ACCIDENT"
	DisasterOther      DisasterType = "OTHER"
)

// DisasterTypes lists every valid DisasterType in declaration order
var DisasterTypes = []DisasterType{
	DisasterFlood, DisasterEarthquake, DisasterFire, DisasterCyclone,
	DisasterLandslide, DisasterMedical, DisasterAccident, DisasterOther,
}

// Valid reports whether d is one of the declared disaster types
func (d DisasterType) Valid() bool {
	for _, v := range DisasterTypes {
		if v == d {
			return true
		}
	}
	return false
}

// Priority is the dispatch priority class of a report
type Priority string

// Priority classes, lowest first
const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Valid reports whether p is a declared priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Status is the lifecycle state of a report
type Status string

// Report statuses. StatusDuplicate is never stored; it is only returned by
// intake when the dedup guard matched an existing report.
const (
	StatusPending    Status = "PENDING"
	StatusVerified   Status = "VERIFIED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusRejected   Status = "REJECTED"
	StatusResolved   Status = "RESOLVED"
	StatusFalseAlarm Status = "FALSE_ALARM"

	StatusDuplicate Status = "DUPLICATE"
)

// Statuses lists every storable status
var Statuses = []Status{
	StatusPending, StatusVerified, StatusInProgress,
	StatusRejected, StatusResolved, StatusFalseAlarm,
}

// Valid reports whether s is a storable status
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no automatic transition may leave s
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusRejected || s == StatusFalseAlarm
}

// MediaKind is the type of an attached media item
type MediaKind string

// Media kinds
const (
	MediaImage MediaKind = "IMAGE"
	MediaVideo MediaKind = "VIDEO"
)

// MediaRef points at a stored media item attached to a report
type MediaRef struct {
	Kind     MediaKind     `bson:"kind" json:"kind"`
	URI      string        `bson:"uri" json:"uri"`
	Analysis *ImageQuality `bson:"analysis,omitempty" json:"analysis,omitempty"`
}

// ImageQuality is the per-image heuristic assessment stored next to a MediaRef
type ImageQuality struct {
	Score     float64 `bson:"score" json:"score"`
	Width     int     `bson:"width" json:"width"`
	Height    int     `bson:"height" json:"height"`
	Bytes     int64   `bson:"bytes" json:"bytes"`
	ColorMode string  `bson:"colorMode" json:"colorMode"`
	ReadError bool    `bson:"readError" json:"readError"`
}

// GeoPoint is a GeoJSON point, stored so mongo can maintain a 2dsphere index
type GeoPoint struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates"`
}

// NewGeoPoint builds a GeoJSON point; GeoJSON orders coordinates longitude first
func NewGeoPoint(lat, lng float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: []float64{lng, lat}}
}

// Update is one entry in a report's append-only activity log
type Update struct {
	AuthorID     string        `bson:"authorId" json:"authorId"`
	Message      string        `bson:"message" json:"message"`
	StatusChange *StatusChange `bson:"statusChange,omitempty" json:"statusChange,omitempty"`
	CreatedAt    time.Time     `bson:"createdAt" json:"createdAt"`
}

// StatusChange records the prior and new status of a transition
type StatusChange struct {
	From Status `bson:"from" json:"from"`
	To   Status `bson:"to" json:"to"`
}

// Report is the root document stored in the reports collection
type Report struct {
	ReportID     string       `bson:"reportId" json:"reportId"`
	SubmitterID  string       `bson:"submitterId" json:"submitterId"`
	Phone        string       `bson:"phone" json:"phone"`
	Latitude     float64      `bson:"latitude" json:"latitude"`
	Longitude    float64      `bson:"longitude" json:"longitude"`
	Location     GeoPoint     `bson:"location" json:"-"`
	Address      string       `bson:"address" json:"address"`
	DisasterType DisasterType `bson:"disasterType" json:"disasterType"`
	Priority     Priority     `bson:"priority" json:"priority"`
	Status       Status       `bson:"status" json:"status"`
	Description  string       `bson:"description" json:"description"`
	Media        []MediaRef   `bson:"media" json:"media"`

	AIVerified     bool            `bson:"aiVerified" json:"aiVerified"`
	AIConfidence   float64         `bson:"aiConfidence" json:"aiConfidence"`
	AIFraudScore   float64         `bson:"aiFraudScore" json:"aiFraudScore"`
	AnalysisDetail *AnalysisDetail `bson:"analysisDetail,omitempty" json:"analysisDetail,omitempty"`

	Votes   []Vote   `bson:"votes" json:"votes"`
	Updates []Update `bson:"updates" json:"updates"`

	VerifiedBy string     `bson:"verifiedBy,omitempty" json:"verifiedBy,omitempty"`
	VerifiedAt *time.Time `bson:"verifiedAt,omitempty" json:"verifiedAt,omitempty"`

	CreatedAt  time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time  `bson:"updatedAt" json:"updatedAt"`
	ResolvedAt *time.Time `bson:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`
	IsDemo     bool       `bson:"isDemo" json:"isDemo"`
}

// Clone returns a deep copy so callers can mutate without touching shared state
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	c := *r
	c.Location.Coordinates = append([]float64(nil), r.Location.Coordinates...)
	c.Media = make([]MediaRef, len(r.Media))
	for i, m := range r.Media {
		c.Media[i] = m
		if m.Analysis != nil {
			a := *m.Analysis
			c.Media[i].Analysis = &a
		}
	}
	c.Votes = append([]Vote(nil), r.Votes...)
	c.Updates = make([]Update, len(r.Updates))
	for i, u := range r.Updates {
		c.Updates[i] = u
		if u.StatusChange != nil {
			sc := *u.StatusChange
			c.Updates[i].StatusChange = &sc
		}
	}
	if r.AnalysisDetail != nil {
		d := r.AnalysisDetail.Clone()
		c.AnalysisDetail = &d
	}
	if r.VerifiedAt != nil {
		t := *r.VerifiedAt
		c.VerifiedAt = &t
	}
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

// Submission is a new citizen report as received by intake
type Submission struct {
	SubmitterID    string       `json:"submitterId"`
	Phone          string       `json:"phone"`
	Latitude       float64      `json:"latitude"`
	Longitude      float64      `json:"longitude"`
	Address        string       `json:"address"`
	DisasterType   DisasterType `json:"disasterType"`
	Description    string       `json:"description"`
	Media          []MediaRef   `json:"media"`
	IsDemo         bool         `json:"isDemo"`
	IdempotencyKey string       `json:"idempotencyKey,omitempty"`
	// ClientAddr is the caller's network address, set by the transport.
	// It scopes anonymous idempotency keys.
	ClientAddr string `json:"-" bson:"-"`
}

// Images returns the image media of the submission in order
func (s Submission) Images() []MediaRef {
	var out []MediaRef
	for _, m := range s.Media {
		if m.Kind == MediaImage {
			out = append(out, m)
		}
	}
	return out
}

// IngestResult is what intake hands back to the caller
type IngestResult struct {
	ReportID    string   `json:"reportId,omitempty"`
	Status      Status   `json:"status"`
	Confidence  float64  `json:"confidence"`
	FraudScore  float64  `json:"fraudScore"`
	Priority    Priority `json:"priority"`
	DuplicateOf string   `json:"duplicateOf,omitempty"`
}
