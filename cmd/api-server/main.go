package main

import (
	"log/slog"
	"net/http"
	"os"

	"jobmarket/config"
	"jobmarket/db"
	"jobmarket/db/migrations"
	"jobmarket/internal/chat"
	"jobmarket/internal/handlers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	cfg := config.Load()

	dbConn, err := sqlx.Connect("postgres", cfg.PostgresConn)
	if err != nil {
		log.Error("cannot connect to db", "err", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	if err := migrations.Run(dbConn.DB); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	store := db.NewStorage(dbConn)
	hub := chat.NewHub(store, log)
	h := handlers.NewHandler(store, hub, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)
		// No auth on the public pro profile page.
		r.Get("/profiles/pro/{userId}", h.ProProfileHandler)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireUser)
			// jobs
			r.Post("/jobs", h.CreateJobHandler)
			r.Get("/jobs", h.ListJobsHandler)
			r.Get("/jobs/{jobId}", h.GetJobHandler)
			r.Post("/jobs/{jobId}/complete", h.CompleteJobHandler)
			r.Get("/my-jobs", h.MyJobsHandler)
			r.Get("/my-work", h.MyWorkHandler)
			// bids
			r.Post("/jobs/{jobId}/bid", h.CreateBidHandler)
			r.Post("/bids/{bidId}/accept", h.AcceptBidHandler)
			// conversation (REST side)
			r.Get("/jobs/{jobId}/messages", h.ListMessagesHandler)
			r.Post("/jobs/{jobId}/messages", h.CreateMessageHandler)
			// reviews
			r.Post("/jobs/{jobId}/reviews", h.CreateReviewHandler)
		})
	})

	// Conversation channel; the token rides the query string because
	// browsers cannot set headers on websocket dials.
	r.Get("/ws/chat/{jobId}", hub.ServeWS)

	r.Handle("/metrics", promhttp.Handler())

	log.Info("starting server", "addr", cfg.ServerAddress)
	if err := http.ListenAndServe(cfg.ServerAddress, r); err != nil {
		log.Error("server exited", "err", err)
		os.Exit(1)
	}
}
