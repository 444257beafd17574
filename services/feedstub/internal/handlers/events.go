package handlers

import (
	"net/http"

	"github.com/example/feed-platform/internal/platform/api"
	"github.com/example/feed-platform/internal/platform/events"
	"github.com/example/feed-platform/services/feedstub/internal/worker"
)

type eventStatsResponse struct {
	Counts map[string]int `json:"counts"`
	Recent []events.Event `json:"recent"`
}

// EventStats handles GET /v1/dev/events.
func EventStats(t *worker.Tally) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		counts, recent := t.Snapshot()
		if recent == nil {
			recent = []events.Event{}
		}
		api.WriteJSON(w, http.StatusOK, eventStatsResponse{Counts: counts, Recent: recent})
	}
}
