package app

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	v1 "relay/contracts/chat/v1"
	"relay/internal/blob"
	"relay/internal/ids"
	"relay/internal/store"
)

const maxUploadBytes = 10 << 20 // 10 MiB

// handleMessagesList serves both /messages and /history for a room.
func (a *App) handleMessagesList(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	msgs, err := a.store.MessagesByRoom(r.Context(), roomID, limit)
	if err != nil {
		a.log.Error("messages.list.fail", "room_id", roomID, "err", err)
		writeError(w, http.StatusInternalServerError, "history_failed", "Failed to fetch chat history")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// handleMessageSend is the one-shot request path: it accepts a multipart form
// with optional attachment, persists and fans out through the same engine as
// the websocket path, so both produce an identical Message shape.
func (a *App) handleMessageSend(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")

	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if userID == "" {
		userID = strings.TrimSpace(r.Header.Get("User-Id"))
	}
	if userID == "" {
		a.log.Warn("messages.send.no_user_header")
		writeError(w, http.StatusUnauthorized, "unauthorized", "Missing user_id header")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid multipart form")
		return
	}

	user, err := a.identities.Resolve(r.Context(), a.store, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			a.log.Warn("messages.send.unknown_user", "user_id", userID)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized: User not registered")
			return
		}
		a.log.Error("messages.send.identify.fail", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to resolve user")
		return
	}

	senderID := r.FormValue("senderId")
	if senderID != userID {
		a.log.Warn("messages.send.sender_mismatch", "header", userID, "form", senderID)
		writeError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized or senderId mismatch")
		return
	}

	content := r.FormValue("content")

	var attachmentURL, attachmentFilename string
	if file, header, err := r.FormFile("file"); err == nil {
		defer func() { _ = file.Close() }()

		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "failed to read uploaded file")
			return
		}

		attachmentURL, err = a.blobs.Upload(r.Context(), data, header.Filename)
		if err != nil {
			if errors.Is(err, blob.ErrNotConfigured) {
				a.log.Error("messages.send.storage_unconfigured")
				writeError(w, http.StatusInternalServerError, "storage_unconfigured", "File storage not configured")
				return
			}
			a.log.Error("messages.send.upload.fail", "filename", header.Filename, "err", err)
			writeError(w, http.StatusInternalServerError, "upload_failed", "Failed to upload file")
			return
		}
		attachmentFilename = header.Filename
		a.log.Info("messages.send.uploaded", "filename", attachmentFilename, "url", attachmentURL)
	}

	if content == "" && attachmentURL == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "Message must have content or an attachment.")
		return
	}

	now := time.Now().UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "failed to allocate message id")
		return
	}

	kind := v1.KindText
	if attachmentURL != "" {
		kind = v1.KindFile
	}

	msg := v1.Message{
		ID:         id,
		ChatID:     roomID,
		SenderID:   senderID,
		SenderName: user.Username, // identity cache wins over form data
		Content:    content,
		Timestamp:  now,
		Kind:       kind,

		AttachmentURL:      attachmentURL,
		AttachmentFilename: attachmentFilename,
	}

	a.fanout.Publish(r.Context(), msg)

	writeJSON(w, http.StatusOK, msg)
}
