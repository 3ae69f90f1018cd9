package models

// HealthCheckResponse is the body of the health endpoint
type HealthCheckResponse struct {
	Alive         bool   `json:"alive"`
	Store         string `json:"store"`
	TuningVersion string `json:"tuningVersion"`
}
