package handlers

import (
	"net/http"

	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/database"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Backend           string  `json:"backend"`
	MatchTolerance    float64 `json:"match_tolerance"`
	MatchIndex        string  `json:"match_index"`
	UnknownLabel      string  `json:"unknown_label"`
	EmbeddingDim      int     `json:"embedding_dim"`
	MinimumAttendance float64 `json:"minimum_attendance"`
	FrameSkipDistance int     `json:"frame_skip_distance"`
}

// Get returns the active matching and reporting settings
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	backend := "none"
	if database.IsInitialized() {
		backend = database.BackendName()
	}

	response := ConfigResponse{
		Backend:           backend,
		MatchTolerance:    h.config.Matching.Tolerance,
		MatchIndex:        h.config.Matching.Index,
		UnknownLabel:      h.config.Policy.Matching.UnknownLabel,
		EmbeddingDim:      h.config.Embedding.Dim,
		MinimumAttendance: h.config.Policy.Report.MinimumAttendance,
		FrameSkipDistance: h.config.Session.FrameSkipDistance,
	}

	respondJSON(w, http.StatusOK, response)
}
