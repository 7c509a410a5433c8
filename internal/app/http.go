package app

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerHTTP wires every route onto the mux. Method-qualified patterns
// keep handler bodies free of method dispatch.
func (a *App) registerHTTP(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("GET /readyz", a.handleReadyz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.metricsReg, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /ws/{userId}", a.gateway.HandleWS)

	mux.HandleFunc("POST /api/auth/register", a.handleRegister)
	mux.HandleFunc("POST /api/auth/login", a.handleLogin)
	mux.HandleFunc("GET /api/auth/verify-email/{token}", a.handleVerifyEmail)

	mux.HandleFunc("GET /api/rooms", a.handleRoomsList)
	mux.HandleFunc("POST /api/rooms", a.handleRoomCreate)
	mux.HandleFunc("DELETE /api/rooms/{id}", a.handleRoomDelete)

	mux.HandleFunc("GET /api/rooms/{id}/messages", a.handleMessagesList)
	mux.HandleFunc("GET /api/rooms/{id}/history", a.handleMessagesList)
	mux.HandleFunc("POST /api/rooms/{id}/messages", a.handleMessageSend)

	mux.HandleFunc("GET /api/users/online", a.handleUsersOnline)

	if a.blobDisk != nil {
		prefix := a.cfg.BlobBaseURL + "/"
		mux.Handle("GET "+prefix, http.StripPrefix(prefix,
			http.FileServer(http.Dir(a.blobDisk.Dir()))))
	}
}

func (a *App) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports readiness. With a DB configured it verifies a
// connection can be acquired; draining always reads as not ready so load
// balancers stop routing new work during shutdown.
func (a *App) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.coord.Draining() {
		writeError(w, http.StatusServiceUnavailable, "draining", "shutting down")
		return
	}

	if a.dbPool != nil {
		if err := PingDB(r.Context(), a.dbPool, 2*time.Second); err != nil {
			a.log.Warn("readyz.db.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not reachable")
			return
		}
	} else if a.cfg.ReadinessRequireDB {
		writeError(w, http.StatusServiceUnavailable, "db_required", "database not configured")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
