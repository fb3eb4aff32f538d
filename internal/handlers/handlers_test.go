package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"jobmarket/db"
	"jobmarket/internal/handlers"
	"jobmarket/internal/handlers/testutils"

	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

// MockStorage implements StorageInterface. Unset funcs fall back to
// canned values.
type MockStorage struct {
	user *db.User

	GetJobFunc       func(ctx context.Context, id int) (*db.Job, error)
	AcceptBidFunc    func(ctx context.Context, bidID, requesterID int) (*db.Job, error)
	CompleteJobFunc  func(ctx context.Context, jobID, requesterID int) (*db.Job, error)
	CreateReviewFunc func(ctx context.Context, r *db.Review) error
	AvgRatingFunc    func(ctx context.Context, proID int) (*float64, error)
	ListReviewsFunc  func(ctx context.Context, proID int) ([]db.Review, error)
}

func (m *MockStorage) GetUser(ctx context.Context, id int) (*db.User, error) {
	return &db.User{ID: id, Username: "someone"}, nil
}

func (m *MockStorage) GetUserByToken(ctx context.Context, key string) (*db.User, error) {
	if m.user == nil {
		return nil, db.ErrNotFound
	}
	return m.user, nil
}

func (m *MockStorage) GetProProfile(ctx context.Context, userID int) (*db.ProProfile, error) {
	return &db.ProProfile{ID: 1, UserID: userID, FirstName: "Pat", Bio: "Plumbing since 2010"}, nil
}

func (m *MockStorage) CreateJob(ctx context.Context, j *db.Job) error {
	j.ID = 10
	j.Status = db.JobOpen
	return nil
}

func (m *MockStorage) GetJob(ctx context.Context, id int) (*db.Job, error) {
	if m.GetJobFunc != nil {
		return m.GetJobFunc(ctx, id)
	}
	return &db.Job{ID: id, CustomerID: 1, Title: "Fix sink", Status: db.JobOpen}, nil
}

func (m *MockStorage) ListOpenJobs(ctx context.Context, search, zip string, limit, offset int) ([]db.Job, error) {
	return []db.Job{{ID: 1, CustomerID: 1, Title: "Sample Job", Status: db.JobOpen}}, nil
}

func (m *MockStorage) ListCustomerJobs(ctx context.Context, customerID int) ([]db.Job, error) {
	return []db.Job{{ID: 1, CustomerID: customerID, Title: "Posted Job"}}, nil
}

func (m *MockStorage) ListProJobs(ctx context.Context, proID int) ([]db.Job, error) {
	return []db.Job{{ID: 2, CustomerID: 1, Title: "Accepted Work", Status: db.JobAccepted, AcceptedProID: &proID}}, nil
}

func (m *MockStorage) CompleteJob(ctx context.Context, jobID, requesterID int) (*db.Job, error) {
	if m.CompleteJobFunc != nil {
		return m.CompleteJobFunc(ctx, jobID, requesterID)
	}
	return &db.Job{ID: jobID, CustomerID: requesterID, Status: db.JobCompleted}, nil
}

func (m *MockStorage) CreateBid(ctx context.Context, b *db.Bid) error {
	b.ID = 100
	b.Status = db.BidPending
	return nil
}

func (m *MockStorage) GetBid(ctx context.Context, id int) (*db.Bid, error) {
	return &db.Bid{ID: id, JobID: 1, ProID: 2, Amount: 150, Status: db.BidPending}, nil
}

func (m *MockStorage) GetJobBids(ctx context.Context, jobID int) ([]db.Bid, error) {
	return []db.Bid{{ID: 100, JobID: jobID, ProID: 2, Amount: 150, Status: db.BidPending}}, nil
}

func (m *MockStorage) AcceptBid(ctx context.Context, bidID, requesterID int) (*db.Job, error) {
	if m.AcceptBidFunc != nil {
		return m.AcceptBidFunc(ctx, bidID, requesterID)
	}
	return &db.Job{ID: 1, CustomerID: requesterID, Status: db.JobAccepted, AcceptedBidID: &bidID, AcceptedProID: intp(2)}, nil
}

func (m *MockStorage) ListMessages(ctx context.Context, jobID int) ([]db.Message, error) {
	return []db.Message{{ID: 1, JobID: jobID, SenderID: 1, Body: "hello"}}, nil
}

func (m *MockStorage) CreateReview(ctx context.Context, r *db.Review) error {
	if m.CreateReviewFunc != nil {
		return m.CreateReviewFunc(ctx, r)
	}
	r.ID = 1
	return nil
}

func (m *MockStorage) ListReviewsForPro(ctx context.Context, proID int) ([]db.Review, error) {
	if m.ListReviewsFunc != nil {
		return m.ListReviewsFunc(ctx, proID)
	}
	return []db.Review{}, nil
}

func (m *MockStorage) ProAverageRating(ctx context.Context, proID int) (*float64, error) {
	if m.AvgRatingFunc != nil {
		return m.AvgRatingFunc(ctx, proID)
	}
	return nil, nil
}

// MockPublisher echoes the publish back as a persisted message.
type MockPublisher struct {
	published []string
}

func (m *MockPublisher) Publish(ctx context.Context, job *db.Job, sender *db.User, body string) (*db.Message, error) {
	m.published = append(m.published, body)
	return &db.Message{ID: len(m.published), JobID: job.ID, SenderID: sender.ID, Body: body}, nil
}

var (
	customer = &db.User{ID: 1, Username: "customer"}
	pro      = &db.User{ID: 2, Username: "pro", IsPro: true}
)

// do runs a handler behind the auth middleware with a test token.
func do(h *handlers.Handler, method, target, body string, params map[string]string, fn http.HandlerFunc) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Authorization", "Token test-token")
	req.Header.Set("Content-Type", "application/json")
	if params != nil {
		req = testutils.WithChiURLParams(req, params)
	}
	w := httptest.NewRecorder()
	h.RequireUser(fn).ServeHTTP(w, req)
	return w
}

func TestRequireUserMissingToken(t *testing.T) {
	h := handlers.NewHandler(&MockStorage{user: customer}, &MockPublisher{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/my-jobs", nil)
	w := httptest.NewRecorder()
	h.RequireUser(http.HandlerFunc(h.MyJobsHandler)).ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireUserUnknownToken(t *testing.T) {
	h := handlers.NewHandler(&MockStorage{user: nil}, &MockPublisher{}, nil)

	w := do(h, http.MethodGet, "/api/my-jobs", "", nil, h.MyJobsHandler)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateJobHandler(t *testing.T) {
	h := handlers.NewHandler(&MockStorage{user: customer}, &MockPublisher{}, nil)

	body := `{"title":"Fix sink","description":"Leaky faucet","zipCode":"75201"}`
	w := do(h, http.MethodPost, "/api/jobs", body, nil, h.CreateJobHandler)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Contains(t, w.Body.String(), "Fix sink")
	require.Contains(t, w.Body.String(), `"status":"open"`)
}

func TestCreateJobHandlerMissingTitle(t *testing.T) {
	h := handlers.NewHandler(&MockStorage{user: customer}, &MockPublisher{}, nil)

	w := do(h, http.MethodPost, "/api/jobs", `{"description":"d","zipCode":"75201"}`, nil, h.CreateJobHandler)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListJobsHandlerCustomerForbidden(t *testing.T) {
	h := handlers.NewHandler(&MockStorage{user: customer}, &MockPublisher{}, nil)

	w := do(h, http.MethodGet, "/api/jobs", "", nil, h.ListJobsHandler)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestListJobsHandlerPro(t *testing.T) {
	h := handlers.NewHandler(&MockStorage{user: pro}, &MockPublisher{}, nil)

	w := do(h, http.MethodGet, "/api/jobs?search=sink&zip_code=75201", "", nil, h.ListJobsHandler)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Sample Job")
}

func TestGetJobHandler(t *testing.T) {
	store := &MockStorage{user: customer}
	store.GetJobFunc = func(ctx context.Context, id int) (*db.Job, error) {
		return &db.Job{ID: id, CustomerID: 1, Title: "Fix sink", Status: db.JobAccepted, AcceptedBidID: intp(100), AcceptedProID: intp(2)}, nil
	}
	h := handlers.NewHandler(store, &MockPublisher{}, nil)

	w := do(h, http.MethodGet, "/api/jobs/1", "", map[string]string{"jobId": "1"}, h.GetJobHandler)
	require.Equal(t, http.StatusOK, w.Code)

	var detail struct {
		Bids        []db.Bid `json:"bids"`
		AcceptedBid *db.Bid  `json:"acceptedBid"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	require.Len(t, detail.Bids, 1)
	require.NotNil(t, detail.AcceptedBid)
	require.Equal(t, 100, detail.AcceptedBid.ID)
}

func TestGetJobHandlerNotFound(t *testing.T) {
	store := &MockStorage{user: customer}
	store.GetJobFunc = func(ctx context.Context, id int) (*db.Job, error) {
		return nil, db.ErrNotFound
	}
	h := handlers.NewHandler(store, &MockPublisher{}, nil)

	w := do(h, http.MethodGet, "/api/jobs/99", "", map[string]string{"jobId": "99"}, h.GetJobHandler)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateBidHandlerInvalidAmount(t *testing.T) {
	h := handlers.NewHandler(&MockStorage{user: pro}, &MockPublisher{}, nil)

	w := do(h, http.MethodPost, "/api/jobs/1/bid", `{"amount":0,"details":"d"}`,
		map[string]string{"jobId": "1"}, h.CreateBidHandler)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateBidHandlerCustomerForbidden(t *testing.T) {
	h := handlers.NewHandler(&MockStorage{user: customer}, &MockPublisher{}, nil)

	w := do(h, http.MethodPost, "/api/jobs/1/bid", `{"amount":150,"details":"next week"}`,
		map[string]string{"jobId": "1"}, h.CreateBidHandler)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateBidHandlerJobNotOpen(t *testing.T) {
	store := &MockStorage{user: pro}
	store.GetJobFunc = func(ctx context.Context, id int) (*db.Job, error) {
		return &db.Job{ID: id, CustomerID: 1, Status: db.JobAccepted, AcceptedProID: intp(3)}, nil
	}
	h := handlers.NewHandler(store, &MockPublisher{}, nil)

	w := do(h, http.MethodPost, "/api/jobs/1/bid", `{"amount":150,"details":"next week"}`,
		map[string]string{"jobId": "1"}, h.CreateBidHandler)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateBidHandler(t *testing.T) {
	h := handlers.NewHandler(&MockStorage{user: pro}, &MockPublisher{}, nil)

	w := do(h, http.MethodPost, "/api/jobs/1/bid", `{"amount":150,"details":"next week"}`,
		map[string]string{"jobId": "1"}, h.CreateBidHandler)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Contains(t, w.Body.String(), `"status":"pending"`)
}

func TestAcceptBidHandler(t *testing.T) {
	h := handlers.NewHandler(&MockStorage{user: customer}, &MockPublisher{}, nil)

	w := do(h, http.MethodPost, "/api/bids/100/accept", "",
		map[string]string{"bidId": "100"}, h.AcceptBidHandler)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"accepted"`)
}

func TestAcceptBidHandlerNotOwner(t *testing.T) {
	store := &MockStorage{user: pro}
	store.AcceptBidFunc = func(ctx context.Context, bidID, requesterID int) (*db.Job, error) {
		return nil, db.ErrForbidden
	}
	h := handlers.NewHandler(store, &MockPublisher{}, nil)

	w := do(h, http.MethodPost, "/api/bids/100/accept", "",
		map[string]string{"bidId": "100"}, h.AcceptBidHandler)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAcceptBidHandlerAlreadyAccepted(t *testing.T) {
	store := &MockStorage{user: customer}
	store.AcceptBidFunc = func(ctx context.Context, bidID, requesterID int) (*db.Job, error) {
		return nil, db.ErrJobNotOpen
	}
	h := handlers.NewHandler(store, &MockPublisher{}, nil)

	w := do(h, http.MethodPost, "/api/bids/100/accept", "",
		map[string]string{"bidId": "100"}, h.AcceptBidHandler)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "closed")
}

func TestCompleteJobHandlerNotOwner(t *testing.T) {
	store := &MockStorage{user: pro}
	store.GetJobFunc = func(ctx context.Context, id int) (*db.Job, error) {
		return &db.Job{ID: id, CustomerID: 1, Status: db.JobAccepted, AcceptedProID: intp(2)}, nil
	}
	h := handlers.NewHandler(store, &MockPublisher{}, nil)

	w := do(h, http.MethodPost, "/api/jobs/1/complete", "",
		map[string]string{"jobId": "1"}, h.CompleteJobHandler)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestCompleteJobHandlerNotAccepted(t *testing.T) {
	h := handlers.NewHandler(&MockStorage{user: customer}, &MockPublisher{}, nil)

	// Default mock job is still open.
	w := do(h, http.MethodPost, "/api/jobs/1/complete", "",
		map[string]string{"jobId": "1"}, h.CompleteJobHandler)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestCompleteJobHandler(t *testing.T) {
	store := &MockStorage{user: customer}
	store.GetJobFunc = func(ctx context.Context, id int) (*db.Job, error) {
		return &db.Job{ID: id, CustomerID: 1, Status: db.JobAccepted, AcceptedProID: intp(2)}, nil
	}
	h := handlers.NewHandler(store, &MockPublisher{}, nil)

	w := do(h, http.MethodPost, "/api/jobs/1/complete", "",
		map[string]string{"jobId": "1"}, h.CompleteJobHandler)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"completed"`)
}

func TestListMessagesHandlerForbiddenBeforeAccept(t *testing.T) {
	h := handlers.NewHandler(&MockStorage{user: customer}, &MockPublisher{}, nil)

	// Default mock job is open: no conversation yet, even for the owner.
	w := do(h, http.MethodGet, "/api/jobs/1/messages", "",
		map[string]string{"jobId": "1"}, h.ListMessagesHandler)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestListMessagesHandler(t *testing.T) {
	store := &MockStorage{user: customer}
	store.GetJobFunc = func(ctx context.Context, id int) (*db.Job, error) {
		return &db.Job{ID: id, CustomerID: 1, Status: db.JobAccepted, AcceptedProID: intp(2)}, nil
	}
	h := handlers.NewHandler(store, &MockPublisher{}, nil)

	w := do(h, http.MethodGet, "/api/jobs/1/messages", "",
		map[string]string{"jobId": "1"}, h.ListMessagesHandler)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "hello")
}

func TestCreateMessageHandlerEmptyBody(t *testing.T) {
	store := &MockStorage{user: customer}
	store.GetJobFunc = func(ctx context.Context, id int) (*db.Job, error) {
		return &db.Job{ID: id, CustomerID: 1, Status: db.JobAccepted, AcceptedProID: intp(2)}, nil
	}
	pub := &MockPublisher{}
	h := handlers.NewHandler(store, pub, nil)

	w := do(h, http.MethodPost, "/api/jobs/1/messages", `{"body":"   "}`,
		map[string]string{"jobId": "1"}, h.CreateMessageHandler)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, pub.published)
}

func TestCreateMessageHandler(t *testing.T) {
	store := &MockStorage{user: customer}
	store.GetJobFunc = func(ctx context.Context, id int) (*db.Job, error) {
		return &db.Job{ID: id, CustomerID: 1, Status: db.JobAccepted, AcceptedProID: intp(2)}, nil
	}
	pub := &MockPublisher{}
	h := handlers.NewHandler(store, pub, nil)

	w := do(h, http.MethodPost, "/api/jobs/1/messages", `{"body":"on my way"}`,
		map[string]string{"jobId": "1"}, h.CreateMessageHandler)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, []string{"on my way"}, pub.published)
}

func TestCreateReviewHandlerInvalidRating(t *testing.T) {
	h := handlers.NewHandler(&MockStorage{user: customer}, &MockPublisher{}, nil)

	for _, body := range []string{`{"rating":0}`, `{"rating":6}`, `{}`} {
		w := do(h, http.MethodPost, "/api/jobs/1/reviews", body,
			map[string]string{"jobId": "1"}, h.CreateReviewHandler)
		require.Equal(t, http.StatusBadRequest, w.Code, "body %s", body)
	}
}

func TestCreateReviewHandlerDuplicate(t *testing.T) {
	store := &MockStorage{user: customer}
	store.CreateReviewFunc = func(ctx context.Context, r *db.Review) error {
		return db.ErrDuplicateReview
	}
	h := handlers.NewHandler(store, &MockPublisher{}, nil)

	w := do(h, http.MethodPost, "/api/jobs/1/reviews", `{"rating":5,"comment":"great"}`,
		map[string]string{"jobId": "1"}, h.CreateReviewHandler)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "already reviewed")
}

func TestCreateReviewHandler(t *testing.T) {
	h := handlers.NewHandler(&MockStorage{user: customer}, &MockPublisher{}, nil)

	w := do(h, http.MethodPost, "/api/jobs/1/reviews", `{"rating":5,"comment":"great work"}`,
		map[string]string{"jobId": "1"}, h.CreateReviewHandler)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Contains(t, w.Body.String(), `"rating":5`)
}

func TestProProfileHandlerNoReviews(t *testing.T) {
	h := handlers.NewHandler(&MockStorage{}, &MockPublisher{}, nil)

	req := testutils.WithChiURLParams(
		httptest.NewRequest(http.MethodGet, "/api/profiles/pro/2", nil),
		map[string]string{"userId": "2"})
	w := httptest.NewRecorder()
	h.ProProfileHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"averageRating":null`)
}

func TestProProfileHandlerWithReviews(t *testing.T) {
	store := &MockStorage{}
	avg := 4.5
	store.AvgRatingFunc = func(ctx context.Context, proID int) (*float64, error) {
		return &avg, nil
	}
	store.ListReviewsFunc = func(ctx context.Context, proID int) ([]db.Review, error) {
		return []db.Review{
			{ID: 1, JobID: 1, ProID: proID, CustomerID: 1, Rating: 4},
			{ID: 2, JobID: 2, ProID: proID, CustomerID: 3, Rating: 5},
		}, nil
	}
	h := handlers.NewHandler(store, &MockPublisher{}, nil)

	req := testutils.WithChiURLParams(
		httptest.NewRequest(http.MethodGet, "/api/profiles/pro/2", nil),
		map[string]string{"userId": "2"})
	w := httptest.NewRecorder()
	h.ProProfileHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"averageRating":4.5`)
}

func TestMyJobsHandler(t *testing.T) {
	h := handlers.NewHandler(&MockStorage{user: customer}, &MockPublisher{}, nil)

	w := do(h, http.MethodGet, "/api/my-jobs", "", nil, h.MyJobsHandler)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Posted Job")
}

func TestMyWorkHandler(t *testing.T) {
	h := handlers.NewHandler(&MockStorage{user: pro}, &MockPublisher{}, nil)

	w := do(h, http.MethodGet, "/api/my-work", "", nil, h.MyWorkHandler)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Accepted Work")
}
