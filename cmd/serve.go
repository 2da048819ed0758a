package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reengage-cli/internal/model"
	"github.com/sells-group/reengage-cli/internal/monitoring"
	"github.com/sells-group/reengage-cli/internal/pipeline"
	"github.com/sells-group/reengage-cli/internal/store"
)

var servePort int

// batchRunner is the pipeline surface the server drives.
type batchRunner interface {
	RunBatch(ctx context.Context, opts pipeline.BatchOptions) (*model.BatchSummary, error)
	ProcessDealByID(ctx context.Context, id int64, dryRun bool) (model.DealOutcome, error)
}

type runLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

type cacheClearer interface {
	Clear(ctx context.Context) error
}

// server runs at most one batch or single-deal run at a time in this process.
// The store lock covers other processes.
type server struct {
	ctx    context.Context
	runner batchRunner
	runs   runLister
	cache  cacheClearer

	mu sync.Mutex
	wg sync.WaitGroup
}

// startBatch launches a batch in the background. It returns false when one is
// already running in this process.
func (s *server) startBatch(trigger string) bool {
	if !s.mu.TryLock() {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.mu.Unlock()

		summary, err := s.runner.RunBatch(s.ctx, pipeline.BatchOptions{Trigger: trigger})
		switch {
		case errors.Is(err, pipeline.ErrBatchLocked):
			zap.L().Warn("batch skipped, lock held by another process", zap.String("trigger", trigger))
		case err != nil:
			zap.L().Error("batch failed", zap.String("trigger", trigger), zap.Error(err))
		default:
			zap.L().Info("batch finished",
				zap.String("trigger", trigger),
				zap.Int("total", summary.Total),
				zap.Int("written", summary.Written),
			)
		}
	}()
	return true
}

// wait blocks until the running batch, if any, returns.
func (s *server) wait() {
	s.wg.Wait()
}

func buildRouter(s *server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/runs", func(w http.ResponseWriter, _ *http.Request) {
		if !s.startBatch("http") {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "a batch is already running"})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	})

	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		filter := store.RunFilter{Status: model.RunStatus(req.URL.Query().Get("status"))}
		if v := req.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
				return
			}
			filter.Limit = n
		}
		runs, err := s.runs.ListRuns(req.Context(), filter)
		if err != nil {
			zap.L().Error("list runs failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list runs failed"})
			return
		}
		if runs == nil {
			runs = []model.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Post("/deals/{id}/process", func(w http.ResponseWriter, req *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid deal id"})
			return
		}
		dryRun, _ := strconv.ParseBool(req.URL.Query().Get("dry_run"))

		if !s.mu.TryLock() {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "a batch is already running"})
			return
		}
		out, err := s.runner.ProcessDealByID(req.Context(), id, dryRun)
		s.mu.Unlock()
		if errors.Is(err, pipeline.ErrBatchLocked) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "a batch is already running"})
			return
		}
		if err != nil {
			zap.L().Error("process deal failed", zap.Int64("deal_id", id), zap.Error(err))
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Delete("/cache/fieldmap", func(w http.ResponseWriter, req *http.Request) {
		if err := s.cache.Clear(req.Context()); err != nil {
			zap.L().Error("clear field cache failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "clear cache failed"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and the scheduled batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		s := &server{ctx: ctx, runner: env.Pipeline, runs: env.Store, cache: env.FieldMap}

		sched := cron.New()
		if cfg.Server.Schedule != "" {
			if _, err := sched.AddFunc(cfg.Server.Schedule, func() {
				if !s.startBatch("cron") {
					zap.L().Info("scheduled batch skipped, previous batch still running")
				}
			}); err != nil {
				return eris.Wrapf(err, "invalid server.schedule %q", cfg.Server.Schedule)
			}
			sched.Start()
			zap.L().Info("batch scheduled", zap.String("schedule", cfg.Server.Schedule))
		}

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Store),
				monitoring.NewAlerter(cfg.Monitoring),
				env.Store,
				cfg.Monitoring,
				cfg.Batch.LockTTL(),
			)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(s),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		<-sched.Stop().Done()
		s.wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
