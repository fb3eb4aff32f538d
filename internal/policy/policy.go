// Package policy holds the authorization predicates gating every
// mutation of the job lifecycle. Each predicate is a pure function of
// the entity snapshots passed in; nothing here reads ambient state.
package policy

import "jobmarket/db"

// CanBid reports whether user may place a bid on job: professionals
// only, and only while the job is open.
func CanBid(user *db.User, job *db.Job) bool {
	return user != nil && job != nil && user.IsPro && job.Status == db.JobOpen
}

// CanAccept reports whether user may accept bid for job: the job
// owner, while the job is open, for a bid that belongs to the job.
func CanAccept(user *db.User, job *db.Job, bid *db.Bid) bool {
	return user != nil && job != nil && bid != nil &&
		user.ID == job.CustomerID &&
		job.Status == db.JobOpen &&
		bid.JobID == job.ID
}

// CanMessage reports whether user is a party to job's conversation:
// the owner or the accepted pro, once a bid has been accepted.
// Completion does not close the conversation.
func CanMessage(user *db.User, job *db.Job) bool {
	if user == nil || job == nil {
		return false
	}
	if job.Status != db.JobAccepted && job.Status != db.JobCompleted {
		return false
	}
	if user.ID == job.CustomerID {
		return true
	}
	return job.AcceptedProID != nil && user.ID == *job.AcceptedProID
}

// CanComplete reports whether user may mark job completed: the owner,
// from the accepted state only.
func CanComplete(user *db.User, job *db.Job) bool {
	return user != nil && job != nil &&
		user.ID == job.CustomerID &&
		job.Status == db.JobAccepted
}

// CanReview reports whether user may review job. hasReviewed is the
// caller's existence check for a prior review by (job, user).
func CanReview(user *db.User, job *db.Job, hasReviewed bool) bool {
	return user != nil && job != nil &&
		user.ID == job.CustomerID &&
		job.Status == db.JobCompleted &&
		!hasReviewed
}
