package app

import "net/http"

type onlineUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// handleUsersOnline lists the users with a live websocket session.
func (a *App) handleUsersOnline(w http.ResponseWriter, r *http.Request) {
	sessions := a.reg.AllSessions()

	users := make([]onlineUser, 0, len(sessions))
	for _, s := range sessions {
		users = append(users, onlineUser{ID: s.UserID, Username: s.DisplayName})
	}
	writeJSON(w, http.StatusOK, users)
}
