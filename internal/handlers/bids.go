package handlers

import (
	"net/http"
	"strconv"

	"jobmarket/db"
	"jobmarket/internal/policy"

	"github.com/go-chi/chi/v5"
)

// CreateBidHandler handles POST /api/jobs/{jobId}/bid. Repeat bids by
// the same pro create additional rows; there is no replacement.
func (h *Handler) CreateBidHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	jobID, err := jobIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var input struct {
		Amount  float64 `json:"amount"`
		Details string  `json:"details"`
	}
	if err := decodeBody(w, r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if input.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}
	if input.Details == "" {
		writeError(w, http.StatusBadRequest, "details are required")
		return
	}

	job, err := h.Store.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if !user.IsPro {
		writeError(w, http.StatusForbidden, "only professionals may bid")
		return
	}
	if !policy.CanBid(user, job) {
		writeError(w, http.StatusConflict, "job is already closed to bidding")
		return
	}

	bid := db.Bid{JobID: jobID, ProID: user.ID, Amount: input.Amount, Details: input.Details}
	if err := h.Store.CreateBid(r.Context(), &bid); err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bid)
}

// AcceptBidHandler handles POST /api/bids/{bidId}/accept. The accept
// itself is a single storage transaction; of two concurrent accepts on
// the same job exactly one succeeds and the other gets a conflict.
// The updated job is returned so the caller needs no refetch.
func (h *Handler) AcceptBidHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	bidID, err := strconv.Atoi(chi.URLParam(r, "bidId"))
	if err != nil || bidID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid bid id")
		return
	}

	job, err := h.Store.AcceptBid(r.Context(), bidID, user.ID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
