package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xelth-com/stocktakego/internal/models"
	"github.com/xelth-com/stocktakego/internal/odoo"
)

// login opens an Odoo session with the submitted connection config.
func (r *Router) login(w http.ResponseWriter, req *http.Request) {
	var cfg models.ConnectionConfig
	if err := json.NewDecoder(req.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	user, err := r.app.Login(req.Context(), &cfg)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"user":   user,
		"config": cfg.Redacted(),
	})
}

// logout destroys the session. Always succeeds locally.
func (r *Router) logout(w http.ResponseWriter, req *http.Request) {
	r.app.Logout(req.Context())
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// restoreSession runs the cold-start path on demand. A dead or absent
// session is not an error: the response just says logged out.
func (r *Router) restoreSession(w http.ResponseWriter, req *http.Request) {
	if r.app.RestoreSession(req.Context()) {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"status": "restored",
			"user":   r.app.Auth().User,
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// listDatabases enumerates databases for the login screen's picker.
func (r *Router) listDatabases(w http.ResponseWriter, req *http.Request) {
	databases, err := r.app.ListDatabases(req.URL.Query().Get("url"))
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"databases": databases})
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, odoo.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, odoo.ErrNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}
