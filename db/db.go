package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Sentinel errors returned by lifecycle operations. Handlers map each
// one to a distinct HTTP status.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrJobNotOpen        = errors.New("job is not open")
	ErrIllegalTransition = errors.New("illegal job state transition")
	ErrDuplicateReview   = errors.New("review already submitted for this job")
)

// Job lifecycle states. Transitions are monotonic:
// open -> accepted -> completed.
const (
	JobOpen      = "open"
	JobAccepted  = "accepted"
	JobCompleted = "completed"
)

// Bid states. A bid leaves pending only when its job leaves open.
const (
	BidPending  = "pending"
	BidAccepted = "accepted"
	BidRejected = "rejected"
)

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

// User

type User struct {
	ID        int       `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Email     string    `db:"email" json:"email"`
	FirstName string    `db:"first_name" json:"firstName"`
	LastName  string    `db:"last_name" json:"lastName"`
	IsPro     bool      `db:"is_pro" json:"isPro"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// DisplayName is the name shown next to chat messages and reviews.
func (u *User) DisplayName() string {
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full == "" {
		return u.Username
	}
	return full
}

func (s *Storage) GetUser(ctx context.Context, id int) (*User, error) {
	u := &User{}
	query := `SELECT * FROM users WHERE id=$1`
	err := s.db.GetContext(ctx, u, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// GetUserByToken resolves a bearer token to its user. Token issuance
// belongs to the auth service; this is only the lookup side.
func (s *Storage) GetUserByToken(ctx context.Context, key string) (*User, error) {
	u := &User{}
	query := `
        SELECT u.* FROM users u
        JOIN auth_tokens t ON t.user_id = u.id
        WHERE t.key = $1`
	err := s.db.GetContext(ctx, u, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// ProProfile is the public professional profile. Editing it is out of
// scope; the marketplace only reads it for the public page.
type ProProfile struct {
	ID                  int    `db:"id" json:"id"`
	UserID              int    `db:"user_id" json:"user"`
	FirstName           string `db:"first_name" json:"firstName"`
	LastName            string `db:"last_name" json:"lastName"`
	Bio                 string `db:"bio" json:"bio"`
	ServiceAreaZipCodes string `db:"service_area_zip_codes" json:"serviceAreaZipCodes"`
	YearsExperience     *int   `db:"years_experience" json:"yearsExperience"`
	ServicesOffered     string `db:"services_offered" json:"servicesOffered"`
	Availability        string `db:"availability" json:"availability"`
	ProfilePictureURL   string `db:"profile_picture_url" json:"profilePictureUrl"`
}

func (s *Storage) GetProProfile(ctx context.Context, userID int) (*ProProfile, error) {
	p := &ProProfile{}
	query := `
        SELECT p.id, p.user_id, u.first_name, u.last_name, p.bio,
               p.service_area_zip_codes, p.years_experience,
               p.services_offered, p.availability, p.profile_picture_url
        FROM pro_profiles p
        JOIN users u ON u.id = p.user_id
        WHERE p.user_id = $1`
	err := s.db.GetContext(ctx, p, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// Job

type Job struct {
	ID            int       `db:"id" json:"id"`
	CustomerID    int       `db:"customer_id" json:"customer"`
	Title         string    `db:"title" json:"title"`
	Description   string    `db:"description" json:"description"`
	StreetAddress string    `db:"street_address" json:"streetAddress"`
	City          string    `db:"city" json:"city"`
	State         string    `db:"state" json:"state"`
	ZipCode       string    `db:"zip_code" json:"zipCode"`
	Status        string    `db:"status" json:"status"`
	AcceptedBidID *int      `db:"accepted_bid_id" json:"acceptedBidId"`
	// Pro behind the accepted bid, denormalized by the job queries so
	// the access predicates work off a single snapshot.
	AcceptedProID *int      `db:"accepted_pro_id" json:"acceptedProId"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

const jobColumns = `
    j.id, j.customer_id, j.title, j.description, j.street_address,
    j.city, j.state, j.zip_code, j.status, j.accepted_bid_id,
    b.pro_id AS accepted_pro_id, j.created_at`

const jobFrom = ` FROM jobs j LEFT JOIN bids b ON b.id = j.accepted_bid_id`

func (s *Storage) CreateJob(ctx context.Context, j *Job) error {
	query := `
        INSERT INTO jobs
            (customer_id, title, description, street_address, city, state, zip_code, status)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at`
	j.Status = JobOpen
	return s.db.QueryRowContext(ctx, query,
		j.CustomerID, j.Title, j.Description, j.StreetAddress, j.City, j.State, j.ZipCode, j.Status).
		Scan(&j.ID, &j.CreatedAt)
}

func (s *Storage) GetJob(ctx context.Context, id int) (*Job, error) {
	j := &Job{}
	query := `SELECT` + jobColumns + jobFrom + ` WHERE j.id=$1`
	err := s.db.GetContext(ctx, j, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

// ListOpenJobs returns open jobs, newest first, optionally filtered by
// a keyword over title/description and an exact zip code.
func (s *Storage) ListOpenJobs(ctx context.Context, search, zip string, limit, offset int) ([]Job, error) {
	query := `SELECT` + jobColumns + jobFrom + ` WHERE j.status = $1`
	args := []interface{}{JobOpen}
	if search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		query += fmt.Sprintf(" AND (j.title ILIKE $%d OR j.description ILIKE $%d)", n, n)
	}
	if zip != "" {
		args = append(args, zip)
		query += fmt.Sprintf(" AND j.zip_code = $%d", len(args))
	}
	query += fmt.Sprintf(" ORDER BY j.created_at DESC LIMIT %d OFFSET %d", limit, offset)

	jobs := []Job{}
	err := s.db.SelectContext(ctx, &jobs, query, args...)
	return jobs, err
}

func (s *Storage) ListCustomerJobs(ctx context.Context, customerID int) ([]Job, error) {
	query := `SELECT` + jobColumns + jobFrom + `
        WHERE j.customer_id = $1
        ORDER BY j.created_at DESC`
	jobs := []Job{}
	err := s.db.SelectContext(ctx, &jobs, query, customerID)
	return jobs, err
}

// ListProJobs returns the jobs a professional is working: those whose
// accepted bid belongs to them.
func (s *Storage) ListProJobs(ctx context.Context, proID int) ([]Job, error) {
	query := `SELECT` + jobColumns + jobFrom + `
        WHERE b.pro_id = $1
        ORDER BY j.created_at DESC`
	jobs := []Job{}
	err := s.db.SelectContext(ctx, &jobs, query, proID)
	return jobs, err
}

// CompleteJob transitions an accepted job to completed. Only the job
// owner may complete, and only from the accepted state.
func (s *Storage) CompleteJob(ctx context.Context, jobID, requesterID int) (*Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	j, err := lockJob(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if j.CustomerID != requesterID {
		return nil, ErrForbidden
	}
	if j.Status != JobAccepted {
		return nil, ErrIllegalTransition
	}
	if _, err := tx.ExecContext(ctx, `UPDATE jobs SET status=$1 WHERE id=$2`, JobCompleted, jobID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	j.Status = JobCompleted
	return j, nil
}

// lockJob reads a job row under FOR UPDATE so state checks and the
// writes that follow run against a stable snapshot.
func lockJob(ctx context.Context, tx *sqlx.Tx, jobID int) (*Job, error) {
	j := &Job{}
	query := `SELECT` + jobColumns + jobFrom + ` WHERE j.id=$1 FOR UPDATE OF j`
	err := tx.GetContext(ctx, j, query, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

// Bid

type Bid struct {
	ID        int       `db:"id" json:"id"`
	JobID     int       `db:"job_id" json:"job"`
	ProID     int       `db:"pro_id" json:"pro"`
	Amount    float64   `db:"amount" json:"amount"`
	Details   string    `db:"details" json:"details"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// CreateBid inserts a pending bid. The job row is locked first so a
// concurrent acceptance cannot land between the state check and the
// insert.
func (s *Storage) CreateBid(ctx context.Context, b *Bid) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	j, err := lockJob(ctx, tx, b.JobID)
	if err != nil {
		return err
	}
	if j.Status != JobOpen {
		return ErrJobNotOpen
	}

	b.Status = BidPending
	query := `
        INSERT INTO bids (job_id, pro_id, amount, details, status)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at`
	if err := tx.QueryRowContext(ctx, query,
		b.JobID, b.ProID, b.Amount, b.Details, b.Status).
		Scan(&b.ID, &b.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Storage) GetBid(ctx context.Context, id int) (*Bid, error) {
	b := &Bid{}
	query := `SELECT * FROM bids WHERE id=$1`
	err := s.db.GetContext(ctx, b, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *Storage) GetJobBids(ctx context.Context, jobID int) ([]Bid, error) {
	query := `SELECT * FROM bids WHERE job_id=$1 ORDER BY created_at ASC`
	bids := []Bid{}
	err := s.db.SelectContext(ctx, &bids, query, jobID)
	return bids, err
}

// AcceptBid performs the single-winner acceptance atomically: the
// chosen bid flips to accepted, every sibling to rejected, and the job
// transitions open -> accepted with accepted_bid set. The job row lock
// serializes concurrent accepts; the loser sees ErrJobNotOpen.
func (s *Storage) AcceptBid(ctx context.Context, bidID, requesterID int) (*Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	b := &Bid{}
	err = tx.GetContext(ctx, b, `SELECT * FROM bids WHERE id=$1`, bidID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	j, err := lockJob(ctx, tx, b.JobID)
	if err != nil {
		return nil, err
	}
	if j.CustomerID != requesterID {
		return nil, ErrForbidden
	}
	if j.Status != JobOpen {
		return nil, ErrJobNotOpen
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE bids SET status=$1 WHERE job_id=$2 AND id<>$3`,
		BidRejected, b.JobID, bidID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE bids SET status=$1 WHERE id=$2`, BidAccepted, bidID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status=$1, accepted_bid_id=$2 WHERE id=$3`,
		JobAccepted, bidID, b.JobID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	j.Status = JobAccepted
	j.AcceptedBidID = &bidID
	j.AcceptedProID = &b.ProID
	return j, nil
}

// Message

type Message struct {
	ID         int       `db:"id" json:"id"`
	JobID      int       `db:"job_id" json:"job"`
	SenderID   int       `db:"sender_id" json:"sender"`
	SenderName string    `db:"sender_name" json:"sender_name"`
	ReceiverID int       `db:"receiver_id" json:"receiver"`
	Body       string    `db:"body" json:"body"`
	CreatedAt  time.Time `db:"created_at" json:"timestamp"`
}

func (s *Storage) CreateMessage(ctx context.Context, m *Message) error {
	query := `
        INSERT INTO messages (job_id, sender_id, receiver_id, body)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at`
	return s.db.QueryRowContext(ctx, query,
		m.JobID, m.SenderID, m.ReceiverID, m.Body).
		Scan(&m.ID, &m.CreatedAt)
}

// ListMessages returns the full conversation for a job in insertion
// order. Insertion order is the channel order: ids are assigned while
// the per-job room serializes publishes.
func (s *Storage) ListMessages(ctx context.Context, jobID int) ([]Message, error) {
	query := `
        SELECT m.id, m.job_id, m.sender_id,
               COALESCE(NULLIF(TRIM(BOTH FROM u.first_name || ' ' || u.last_name), ''), u.username) AS sender_name,
               m.receiver_id, m.body, m.created_at
        FROM messages m
        JOIN users u ON u.id = m.sender_id
        WHERE m.job_id = $1
        ORDER BY m.id ASC`
	msgs := []Message{}
	err := s.db.SelectContext(ctx, &msgs, query, jobID)
	return msgs, err
}

// Review

type Review struct {
	ID           int       `db:"id" json:"id"`
	JobID        int       `db:"job_id" json:"job"`
	JobTitle     string    `db:"job_title" json:"jobTitle"`
	ProID        int       `db:"pro_id" json:"pro"`
	CustomerID   int       `db:"customer_id" json:"customer"`
	CustomerName string    `db:"customer_name" json:"customerName"`
	Rating       int       `db:"rating" json:"rating"`
	Comment      string    `db:"comment" json:"comment"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// CreateReview records the one-time post-completion review. The job
// row lock makes the duplicate check race-free; the unique index on
// (job_id, customer_id) is the backstop.
func (s *Storage) CreateReview(ctx context.Context, r *Review) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	j, err := lockJob(ctx, tx, r.JobID)
	if err != nil {
		return err
	}
	if j.CustomerID != r.CustomerID {
		return ErrForbidden
	}
	if j.Status != JobCompleted || j.AcceptedProID == nil {
		return ErrIllegalTransition
	}
	r.ProID = *j.AcceptedProID
	r.JobTitle = j.Title

	var count int
	if err := tx.GetContext(ctx, &count,
		`SELECT COUNT(1) FROM reviews WHERE job_id=$1 AND customer_id=$2`,
		r.JobID, r.CustomerID); err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateReview
	}

	query := `
        INSERT INTO reviews (job_id, pro_id, customer_id, rating, comment)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at`
	if err := tx.QueryRowContext(ctx, query,
		r.JobID, r.ProID, r.CustomerID, r.Rating, r.Comment).
		Scan(&r.ID, &r.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Storage) ListReviewsForPro(ctx context.Context, proID int) ([]Review, error) {
	query := `
        SELECT r.id, r.job_id, j.title AS job_title, r.pro_id, r.customer_id,
               COALESCE(NULLIF(TRIM(BOTH FROM u.first_name || ' ' || u.last_name), ''), u.username) AS customer_name,
               r.rating, r.comment, r.created_at
        FROM reviews r
        JOIN jobs j ON j.id = r.job_id
        JOIN users u ON u.id = r.customer_id
        WHERE r.pro_id = $1
        ORDER BY r.created_at DESC`
	reviews := []Review{}
	err := s.db.SelectContext(ctx, &reviews, query, proID)
	return reviews, err
}

// ProAverageRating returns nil when the pro has no reviews; the caller
// reports "no reviews" instead of an average.
func (s *Storage) ProAverageRating(ctx context.Context, proID int) (*float64, error) {
	var avg sql.NullFloat64
	query := `SELECT AVG(rating) FROM reviews WHERE pro_id=$1`
	if err := s.db.GetContext(ctx, &avg, query, proID); err != nil {
		return nil, err
	}
	if !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}
