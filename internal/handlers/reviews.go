package handlers

import (
	"net/http"
	"strconv"

	"jobmarket/db"

	"github.com/go-chi/chi/v5"
)

// CreateReviewHandler handles POST /api/jobs/{jobId}/reviews. Owner,
// completion state and the once-only rule are all enforced inside the
// storage transaction; this layer validates input shape only.
func (h *Handler) CreateReviewHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	jobID, err := jobIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var input struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := decodeBody(w, r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if input.Rating < 1 || input.Rating > 5 {
		writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}

	review := db.Review{
		JobID:      jobID,
		CustomerID: user.ID,
		Rating:     input.Rating,
		Comment:    input.Comment,
	}
	if err := h.Store.CreateReview(r.Context(), &review); err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

type proProfileResponse struct {
	db.ProProfile
	ReviewsReceived []db.Review `json:"reviewsReceived"`
	AverageRating   *float64    `json:"averageRating"`
}

// ProProfileHandler handles GET /api/profiles/pro/{userId}: the public
// professional page with all received reviews and the average rating.
// AverageRating is null when the pro has no reviews yet.
func (h *Handler) ProProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userId"))
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	profile, err := h.Store.GetProProfile(r.Context(), userID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	reviews, err := h.Store.ListReviewsForPro(r.Context(), userID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	avg, err := h.Store.ProAverageRating(r.Context(), userID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, proProfileResponse{
		ProProfile:      *profile,
		ReviewsReceived: reviews,
		AverageRating:   avg,
	})
}
