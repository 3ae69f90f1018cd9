package api

import (
	"encoding/json"
	"net/http"

	"github.com/linesmerrill/emergency-report-api/config"
	"github.com/linesmerrill/emergency-report-api/models"
)

// HealthCheckHandler reports liveness, the active store and the threshold set
// version
func HealthCheckHandler(store string, tuning *config.TuningStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(models.HealthCheckResponse{
			Alive:         true,
			Store:         store,
			TuningVersion: tuning.Load().Version(),
		})
	}
}
