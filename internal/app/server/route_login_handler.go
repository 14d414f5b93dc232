package server

import (
	"encoding/json"
	"net/http"

	"github.com/charmbracelet/log"

	"trafficwatch/internal/auth"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func login(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var creds credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			writeError(w, "Invalid request", http.StatusBadRequest)
			return
		}

		if err := deps.Operator.Verify(creds.Username, creds.Password); err != nil {
			log.Warn("Rejected login attempt", "username", creds.Username)
			writeError(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}

		token, err := auth.GenerateJWT(creds.Username, auth.RoleOperator, deps.TokenTTL)
		if err != nil {
			log.Error("Failed to issue token", "error", err)
			writeError(w, "Failed to generate token", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	}
}
