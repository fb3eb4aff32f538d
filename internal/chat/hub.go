// Package chat implements the per-job conversation channel: one room
// per job, history replay on subscribe, and a room goroutine that is
// the sole arbiter of message order.
package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"jobmarket/db"
	"jobmarket/internal/policy"
)

// Store is the slice of storage the channel needs.
type Store interface {
	GetUserByToken(ctx context.Context, key string) (*db.User, error)
	GetJob(ctx context.Context, id int) (*db.Job, error)
	ListMessages(ctx context.Context, jobID int) ([]db.Message, error)
	CreateMessage(ctx context.Context, m *db.Message) error
}

// Hub owns the rooms. There is exactly one logical room per job id;
// every subscriber of a job shares its ordered message sequence.
type Hub struct {
	store Store
	log   *slog.Logger

	mu    sync.Mutex
	rooms map[int]*room
}

func NewHub(store Store, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{store: store, log: log, rooms: make(map[int]*room)}
}

func (h *Hub) room(jobID int) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[jobID]
	if !ok {
		r = newRoom(jobID, h.store, h.log)
		h.rooms[jobID] = r
		go r.run()
	}
	return r
}

// Publish routes a message through the job's room and waits for the
// persisted result. REST message creation uses this too, so socket and
// REST publishes share one serialization point.
func (h *Hub) Publish(ctx context.Context, job *db.Job, sender *db.User, body string) (*db.Message, error) {
	req := publishReq{sender: sender, body: body, reply: make(chan publishResult, 1)}
	r := h.room(job.ID)
	select {
	case r.publish <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res.msg, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type publishReq struct {
	sender *db.User
	body   string
	reply  chan publishResult
}

type publishResult struct {
	msg *db.Message
	err error
}

// room serializes everything for one job: subscribes, publishes and
// broadcasts all pass through run, which assigns the channel order.
type room struct {
	jobID int
	store Store
	log   *slog.Logger

	register   chan *subscriber
	unregister chan *subscriber
	publish    chan publishReq

	subscribers map[*subscriber]bool
}

func newRoom(jobID int, store Store, log *slog.Logger) *room {
	return &room{
		jobID:       jobID,
		store:       store,
		log:         log.With("job", jobID),
		register:    make(chan *subscriber),
		unregister:  make(chan *subscriber),
		publish:     make(chan publishReq),
		subscribers: make(map[*subscriber]bool),
	}
}

const storeTimeout = 10 * time.Second

func (r *room) run() {
	for {
		select {
		case sub := <-r.register:
			// History is delivered before the subscriber joins the
			// broadcast set, so no live message can precede it.
			if frame, err := r.historyFrame(); err == nil {
				sub.send <- frame
			} else {
				r.log.Error("history load failed", "err", err)
				close(sub.send)
				continue
			}
			r.subscribers[sub] = true
			subscriberGauge.Inc()
			connectsTotal.Inc()
			r.log.Info("subscriber joined", "conn", sub.id, "user", sub.user.ID)

		case sub := <-r.unregister:
			if r.subscribers[sub] {
				delete(r.subscribers, sub)
				close(sub.send)
				subscriberGauge.Dec()
				r.log.Info("subscriber left", "conn", sub.id, "user", sub.user.ID)
			}

		case req := <-r.publish:
			msg, err := r.persist(req.sender, req.body)
			req.reply <- publishResult{msg: msg, err: err}
			if err != nil {
				publishRejectsTotal.Inc()
				continue
			}
			messagesTotal.Inc()
			r.broadcast(msg)
		}
	}
}

// persist re-validates against a fresh job snapshot (access may have
// changed since subscribe), resolves the counterparty and writes the
// message.
func (r *room) persist(sender *db.User, body string) (*db.Message, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	job, err := r.store.GetJob(ctx, r.jobID)
	if err != nil {
		return nil, err
	}
	if !policy.CanMessage(sender, job) {
		return nil, db.ErrForbidden
	}

	receiver := job.CustomerID
	if sender.ID == job.CustomerID {
		receiver = *job.AcceptedProID
	}
	msg := &db.Message{
		JobID:      r.jobID,
		SenderID:   sender.ID,
		SenderName: sender.DisplayName(),
		ReceiverID: receiver,
		Body:       body,
	}
	if err := r.store.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *room) broadcast(msg *db.Message) {
	frame, err := json.Marshal(messageFrame{Message: msg})
	if err != nil {
		r.log.Error("frame marshal failed", "err", err)
		return
	}
	for sub := range r.subscribers {
		select {
		case sub.send <- frame:
		default:
			// Subscriber is not draining; drop it and let the client
			// reconnect rather than stall the room.
			delete(r.subscribers, sub)
			close(sub.send)
			subscriberGauge.Dec()
			r.log.Warn("subscriber dropped, send buffer full", "conn", sub.id)
		}
	}
}

func (r *room) historyFrame() ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	msgs, err := r.store.ListMessages(ctx, r.jobID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(historyFrame{Type: frameTypeHistory, Messages: msgs})
}
