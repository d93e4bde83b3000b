package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/immoweave/harvester/internal/model"
	"github.com/immoweave/harvester/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin HTTP server",
	Long:  "Exposes discovery, scraping and reset operations plus the attempt log, domain policy state and Prometheus metrics.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initHarvester(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.Method("GET", "/metrics", env.Metrics.Handler())

		r.Post("/areas/{area}/discover", func(w http.ResponseWriter, req *http.Request) {
			summary, err := env.Discovery.Discover(req.Context(), chi.URLParam(req, "area"))
			if err != nil {
				writeErr(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, summary)
		})

		r.Post("/agencies/{id}/scrape", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			// Scrapes outlive the request; the attempt log carries the result.
			go func() {
				if _, err := env.Orchestrator.ScrapeAgency(ctx, id); err != nil {
					zap.L().Warn("requested scrape not run",
						zap.String("agency_id", id), zap.Error(err))
				}
			}()
			writeJSON(w, http.StatusAccepted, map[string]string{
				"status":    "accepted",
				"agency_id": id,
			})
		})

		r.Post("/agencies/{id}/reset", func(w http.ResponseWriter, req *http.Request) {
			if err := env.Orchestrator.ResetAgency(req.Context(), chi.URLParam(req, "id")); err != nil {
				writeErr(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
		})

		r.Post("/cycle", func(w http.ResponseWriter, _ *http.Request) {
			go func() {
				if _, err := env.Orchestrator.RunCycle(ctx); err != nil {
					zap.L().Error("cycle failed", zap.Error(err))
				}
			}()
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		})

		r.Get("/agencies", func(w http.ResponseWriter, req *http.Request) {
			limit := queryInt(req, "limit", 100)
			agencies, err := env.Store.ListAgencies(req.Context(), limit)
			if err != nil {
				writeErr(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, agencies)
		})

		r.Get("/agencies/{id}", func(w http.ResponseWriter, req *http.Request) {
			agency, err := env.Store.GetAgency(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeErr(w, http.StatusInternalServerError, err)
				return
			}
			if agency == nil {
				writeErr(w, http.StatusNotFound, eris.New("agency not found"))
				return
			}
			writeJSON(w, http.StatusOK, agency)
		})

		r.Get("/agencies/{id}/attempts", func(w http.ResponseWriter, req *http.Request) {
			attempts, err := env.Store.ListScrapeAttempts(req.Context(), store.AttemptFilter{
				AgencyID: chi.URLParam(req, "id"),
				Outcome:  model.OutcomeClass(req.URL.Query().Get("outcome")),
				Limit:    queryInt(req, "limit", 50),
			})
			if err != nil {
				writeErr(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, attempts)
		})

		r.Get("/agencies/{id}/listings", func(w http.ResponseWriter, req *http.Request) {
			listings, err := env.Store.ListActiveListings(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeErr(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, listings)
		})

		r.Get("/listings/{id}/history", func(w http.ResponseWriter, req *http.Request) {
			history, err := env.Store.ListListingHistory(req.Context(),
				chi.URLParam(req, "id"), queryInt(req, "limit", 50))
			if err != nil {
				writeErr(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, history)
		})

		r.Get("/domains/{domain}", func(w http.ResponseWriter, req *http.Request) {
			policy, err := env.Governor.State(req.Context(), chi.URLParam(req, "domain"))
			if err != nil {
				writeErr(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, policy)
		})

		r.Post("/domains/{domain}/reset", func(w http.ResponseWriter, req *http.Request) {
			if err := env.Governor.Reset(req.Context(), chi.URLParam(req, "domain")); err != nil {
				writeErr(w, http.StatusBadRequest, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func queryInt(req *http.Request, key string, fallback int) int {
	raw := req.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
