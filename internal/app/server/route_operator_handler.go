package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"trafficwatch/internal/blocklist"
	"trafficwatch/internal/config"
	"trafficwatch/internal/database"
	"trafficwatch/internal/domain"
)

type blockRequest struct {
	IPAddress string `json:"ip_address"`
	Reason    string `json:"reason"`
}

type blockResponse struct {
	IPAddress string    `json:"ip_address"`
	Reason    *string   `json:"reason"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	Created   bool      `json:"created"`
}

type suspicionResponse struct {
	IPAddress     string                  `json:"ip_address"`
	Reason        domain.SuspicionReason  `json:"reason"`
	Label         string                  `json:"label"`
	FirstDetected time.Time               `json:"first_detected"`
	LastDetected  time.Time               `json:"last_detected"`
	IsActive      bool                    `json:"is_active"`
	Details       domain.SuspicionDetails `json:"details"`
}

func getSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, config.GetConfig())
}

// saveSettings persists and broadcasts the new settings. Anomaly settings
// apply from the next scan; provider and rate-limit backends on restart.
func saveSettings(w http.ResponseWriter, r *http.Request) {
	var newConfig config.Config
	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		log.Error("Error decoding settings body", "error", err)
		writeError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	config.SetConfig(newConfig)
	writeJSON(w, http.StatusOK, config.GetConfig())
}

func listSuspicions(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"

	records, err := database.ListSuspicions(r.Context(), activeOnly)
	if err != nil {
		log.Error("Failed to list suspicions", "error", err)
		writeError(w, "Failed to query database", http.StatusInternalServerError)
		return
	}

	resp := make([]suspicionResponse, 0, len(records))
	for _, record := range records {
		resp = append(resp, suspicionResponse{
			IPAddress:     record.IPAddress,
			Reason:        record.Reason,
			Label:         record.Reason.Label(),
			FirstDetected: record.FirstDetected,
			LastDetected:  record.LastDetected,
			IsActive:      record.IsActive,
			Details:       record.Details.Data(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func createBlock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	result, err := blocklist.Block(r.Context(), req.IPAddress, req.Reason)
	if errors.Is(err, blocklist.ErrInvalidAddress) {
		writeError(w, "Invalid IP address", http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Error("Failed to block address", "address", req.IPAddress, "error", err)
		writeError(w, "Failed to block address", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, blockResponse{
		IPAddress: result.Entry.IPAddress,
		Reason:    result.Entry.Reason,
		IsActive:  result.Entry.IsActive,
		CreatedAt: result.Entry.CreatedAt,
		Created:   result.Created,
	})
}

func deleteBlock(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")

	err := blocklist.Unblock(r.Context(), address)
	switch {
	case errors.Is(err, blocklist.ErrInvalidAddress):
		writeError(w, "Invalid IP address", http.StatusBadRequest)
	case errors.Is(err, blocklist.ErrNotBlocked):
		writeError(w, "Address is not blocked", http.StatusNotFound)
	case err != nil:
		log.Error("Failed to unblock address", "address", address, "error", err)
		writeError(w, "Failed to unblock address", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
