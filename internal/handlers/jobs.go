package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"jobmarket/db"
	"jobmarket/internal/policy"

	"github.com/go-chi/chi/v5"
)

type PaginationParams struct {
	Limit  int
	Offset int
}

// parsePaginationParams parses limit and offset from the query, with
// defaults and caps.
func parsePaginationParams(r *http.Request) PaginationParams {
	params := PaginationParams{Limit: 20, Offset: 0}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			params.Limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			params.Offset = o
		}
	}
	return params
}

func jobIDParam(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "jobId"))
	if err != nil || id <= 0 {
		return 0, errors.New("invalid job id")
	}
	return id, nil
}

// CreateJobHandler handles POST /api/jobs. The owner is always the
// authenticated caller, never a body field.
func (h *Handler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	var job db.Job
	if err := decodeBody(w, r, &job); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validateJobRequest(&job); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job.CustomerID = user.ID
	if err := h.Store.CreateJob(r.Context(), &job); err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func validateJobRequest(j *db.Job) error {
	if strings.TrimSpace(j.Title) == "" || len(j.Title) > 255 {
		return errors.New("title is required and max length 255")
	}
	if strings.TrimSpace(j.Description) == "" {
		return errors.New("description is required")
	}
	if strings.TrimSpace(j.ZipCode) == "" {
		return errors.New("zip code is required")
	}
	return nil
}

// ListJobsHandler handles GET /api/jobs: the browse surface for
// professionals, filterable by keyword and zip code.
func (h *Handler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if !user.IsPro {
		writeError(w, http.StatusForbidden, "only professionals may browse open jobs")
		return
	}

	params := parsePaginationParams(r)
	search := strings.TrimSpace(r.URL.Query().Get("search"))
	zip := strings.TrimSpace(r.URL.Query().Get("zip_code"))

	jobs, err := h.Store.ListOpenJobs(r.Context(), search, zip, params.Limit, params.Offset)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// MyJobsHandler handles GET /api/my-jobs: jobs the caller posted.
func (h *Handler) MyJobsHandler(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.Store.ListCustomerJobs(r.Context(), currentUser(r).ID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// MyWorkHandler handles GET /api/my-work: jobs whose accepted bid
// belongs to the caller.
func (h *Handler) MyWorkHandler(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.Store.ListProJobs(r.Context(), currentUser(r).ID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

type jobDetail struct {
	db.Job
	Bids        []db.Bid `json:"bids"`
	AcceptedBid *db.Bid  `json:"acceptedBid"`
}

// GetJobHandler handles GET /api/jobs/{jobId}, returning the job with
// its bids and the accepted bid, if any.
func (h *Handler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
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
	bids, err := h.Store.GetJobBids(r.Context(), jobID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	detail := jobDetail{Job: *job, Bids: bids}
	if job.AcceptedBidID != nil {
		for i := range bids {
			if bids[i].ID == *job.AcceptedBidID {
				detail.AcceptedBid = &bids[i]
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, detail)
}

// CompleteJobHandler handles POST /api/jobs/{jobId}/complete. The
// policy check runs on a fresh snapshot; the storage transaction
// re-checks under the row lock, so a stale snapshot cannot complete a
// job twice.
func (h *Handler) CompleteJobHandler(w http.ResponseWriter, r *http.Request) {
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
	if user.ID != job.CustomerID {
		writeError(w, http.StatusForbidden, "only the job owner may mark it completed")
		return
	}
	if !policy.CanComplete(user, job) {
		writeError(w, http.StatusConflict, "job is not in a valid state for this action")
		return
	}

	updated, err := h.Store.CompleteJob(r.Context(), jobID, user.ID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
