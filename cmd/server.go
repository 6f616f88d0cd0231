package cmd

import (
	"context"
	"danmaku-overlay/internal/api"
	"danmaku-overlay/internal/api/overlay"
	"danmaku-overlay/internal/config"
	"danmaku-overlay/internal/danmaku"
	"danmaku-overlay/internal/fetch"
	"danmaku-overlay/internal/metrics"
	"danmaku-overlay/internal/store"
	"danmaku-overlay/internal/utils"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func serverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "run the overlay engine behind an http control api",
	}
	var port int
	var sources []string
	cmd.Flags().IntVarP(&port, "port", "p", 0, "server port")
	cmd.Flags().StringArrayVar(&sources, "source", nil, "danmaku url loaded on start, can be repeated")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		Init()
		conf := config.GetConfig()
		if err := overlay.InitExportCache(); err != nil {
			return err
		}
		httpLogger = utils.GetComponentLogger("overlay-api")

		o, _, release, err := newOverlay(danmaku.NewRuleEngine())
		if err != nil {
			return err
		}
		defer release()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rulePath, sourcePath := conf.StorePaths()
		s := overlay.NewService(o, overlay.Options{
			Loader:  fetch.NewLoader(fetch.NewFetcher(fetch.OptionsFromConfig(conf)), o.Handoff(), conf.Fetch.MaxWorker),
			Rules:   store.NewYAMLRuleStore(rulePath),
			Sources: store.NewGobSourceStore(sourcePath),
			Metrics: metrics.NewCollector(reg),
		})
		if err := s.Restore(); err != nil {
			utils.WarnLog(serverC, "restore state failed", "error", err)
		}
		if len(sources) > 0 {
			reqs := make([]fetch.Request, 0, len(sources))
			for _, u := range sources {
				reqs = append(reqs, fetch.Request{Title: u, URLs: []string{u}})
			}
			s.LoadAsync(reqs)
		}

		r := chi.NewRouter()
		r.Use(LoggerMiddleware)
		if port <= 0 {
			port = conf.Server.Port
		}

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			api.ResponseJSON(w, http.StatusOK, map[string]string{"version": config.Version})
		})
		r.Handle("/metrics", metrics.Handler(reg))

		overlay.RegisterRoute(r, s, conf.Server.Timeout)

		srv := &http.Server{
			Addr:         ":" + strconv.FormatInt(int64(port), 10),
			Handler:      r,
			IdleTimeout:  120 * time.Second,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			utils.GetComponentLogger("web-server").Info("web server started", "port", port)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				httpLogger.Error("server failed to start", "error", err)
				quit <- syscall.SIGTERM
			}
		}()
		<-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			httpLogger.Error("server forced to shutdown", "error", err)
		}
		if err := s.Close(); err != nil {
			utils.ErrorLog(serverC, "save state failed", "error", err)
		}

		return nil
	}

	return cmd
}

const serverC = "server_cmd"

var httpLogger *slog.Logger

func LoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLogger := httpLogger.With(
			slog.String("http_method", r.Method),
			slog.String("path", r.URL.Path),
		)
		if requestId := r.Header.Get("X-Request-ID"); requestId != "" {
			reqLogger = reqLogger.With("request_id", requestId)
		}

		ww := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(ww, r)

		reqLogger.Info("request completed",
			slog.Int("status_code", ww.status),
			slog.Int64("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func init() {
	rootCmd.AddCommand(serverCmd())
}
