package handlers

import (
	"context"

	"jobmarket/db"
)

type StorageInterface interface {
	GetUser(ctx context.Context, id int) (*db.User, error)
	GetUserByToken(ctx context.Context, key string) (*db.User, error)
	GetProProfile(ctx context.Context, userID int) (*db.ProProfile, error)

	CreateJob(ctx context.Context, job *db.Job) error
	GetJob(ctx context.Context, id int) (*db.Job, error)
	ListOpenJobs(ctx context.Context, search, zip string, limit, offset int) ([]db.Job, error)
	ListCustomerJobs(ctx context.Context, customerID int) ([]db.Job, error)
	ListProJobs(ctx context.Context, proID int) ([]db.Job, error)
	CompleteJob(ctx context.Context, jobID, requesterID int) (*db.Job, error)

	CreateBid(ctx context.Context, bid *db.Bid) error
	GetBid(ctx context.Context, id int) (*db.Bid, error)
	GetJobBids(ctx context.Context, jobID int) ([]db.Bid, error)
	AcceptBid(ctx context.Context, bidID, requesterID int) (*db.Job, error)

	ListMessages(ctx context.Context, jobID int) ([]db.Message, error)

	CreateReview(ctx context.Context, review *db.Review) error
	ListReviewsForPro(ctx context.Context, proID int) ([]db.Review, error)
	ProAverageRating(ctx context.Context, proID int) (*float64, error)
}
