package nlu

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Avaneeshakrishna/cliniccall-AI/pkg/logging"
)

// TriageHandler serves POST /triage.
type TriageHandler struct {
	desk   *UrgentDesk
	logger *logging.Logger
}

func NewTriageHandler(desk *UrgentDesk, logger *logging.Logger) *TriageHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &TriageHandler{desk: desk, logger: logger}
}

type triageRequest struct {
	Message string `json:"message"`
}

type triageResponse struct {
	Severity     Severity `json:"severity"`
	Summary      string   `json:"summary"`
	Escalate     bool     `json:"escalate"`
	UrgentCaseID string   `json:"urgent_case_id,omitempty"`
}

func (h *TriageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req triageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	result, c, err := h.desk.Assess(r.Context(), req.Message)
	if err != nil {
		h.logger.Error("triage failed", "error", err)
		http.Error(w, "failed to record urgent case", http.StatusInternalServerError)
		return
	}
	resp := triageResponse{Severity: result.Severity, Summary: result.Summary, Escalate: result.Escalate}
	if c != nil {
		resp.UrgentCaseID = c.ID
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
