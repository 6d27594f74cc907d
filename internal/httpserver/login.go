package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"log/slog"

	"mendcore/internal/auth"
)

func loginHandler(svc *auth.Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var payload struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil ||
			payload.Username == "" || payload.Password == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		op, token, err := svc.Authenticate(r.Context(), payload.Username, payload.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			logger.Error("authenticate", "err", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":    token,
			"operator": op,
		})
	})
}
