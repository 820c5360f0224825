package httpapi

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/wyolum/home-monitor/internal/utils"
)

// connectionChecker reports broker connectivity. Nil means MQTT is not wired.
type connectionChecker interface {
	IsConnected() bool
}

type healthchecker interface {
	handleHealthz(w http.ResponseWriter, r *http.Request)
}

type healthcheckerImpl struct {
	db   *sql.DB
	mqtt connectionChecker
}

func NewHealthchecker(db *sql.DB, mqtt connectionChecker) healthchecker {
	return &healthcheckerImpl{db: db, mqtt: mqtt}
}

// handleHealthz fails only on the database. A disconnected broker is reported
// but keeps the status at 200; the subscriber reconnects on its own.
func (h *healthcheckerImpl) handleHealthz(w http.ResponseWriter, r *http.Request) {
	var ok int
	if err := h.db.QueryRowContext(r.Context(), `SELECT 1`).Scan(&ok); err != nil {
		slog.Error("failed to check database connectivity", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to check database connectivity")
		return
	}

	resp := map[string]string{"status": "ok", "database": "ok"}
	if h.mqtt != nil {
		resp["mqtt"] = "disconnected"
		if h.mqtt.IsConnected() {
			resp["mqtt"] = "connected"
		}
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

func registerHealthcheck(mux *http.ServeMux, db *sql.DB, mqtt connectionChecker) {
	healthchecker := NewHealthchecker(db, mqtt)
	mux.HandleFunc("GET /healthz", healthchecker.handleHealthz)
}
