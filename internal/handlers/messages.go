package handlers

import (
	"net/http"
	"strings"

	"jobmarket/internal/policy"
)

// ListMessagesHandler handles GET /api/jobs/{jobId}/messages: the full
// ordered conversation, readable only by its parties.
func (h *Handler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	jobID, err := jobIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.Store.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if !policy.CanMessage(user, job) {
		writeError(w, http.StatusForbidden, "you may not message until a bid is accepted")
		return
	}

	msgs, err := h.Store.ListMessages(r.Context(), jobID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// CreateMessageHandler handles POST /api/jobs/{jobId}/messages. The
// message goes through the job's conversation channel, so connected
// subscribers receive it in channel order along with the REST reply.
func (h *Handler) CreateMessageHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	jobID, err := jobIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var input struct {
		Body string `json:"body"`
	}
	if err := decodeBody(w, r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(input.Body) == "" {
		writeError(w, http.StatusBadRequest, "message body is required")
		return
	}

	job, err := h.Store.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if !policy.CanMessage(user, job) {
		writeError(w, http.StatusForbidden, "you may not message until a bid is accepted")
		return
	}

	msg, err := h.Chat.Publish(r.Context(), job, user, input.Body)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
