package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/sqlops/cache"
	"github.com/jonwraymond/sqlops/health"
	"github.com/jonwraymond/sqlops/observe"
	"github.com/jonwraymond/sqlops/resilience"
	"github.com/jonwraymond/sqlops/workflow"
)

func (c *cli) newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Generate SQL for a question, using the cache when possible",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.buildApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			ans, err := a.workflow.Ask(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ans.SQL)
			if ans.Cached {
				a.logger.Info(ctx, "answer served from cache")
			}
			return nil
		},
	}
	cmd.Flags().String("export", "", "append each answer to this JSON journal")
	return cmd
}

func (c *cli) newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Connect and print component health as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.buildApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			report := a.health.Report(ctx)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if report.Status == health.StatusUnhealthy.String() {
				return errors.New("unhealthy")
			}
			return nil
		},
	}
}

func newKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "key <namespace> <payload>",
		Short:       "Print the cache key derived from a namespace and payload",
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{"config": "skip"},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), cache.NewDefaultKeyer().Key(args[0], args[1]))
			return nil
		},
	}
}

func (c *cli) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health endpoints and POST /ask over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.buildApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))
			return serve(ctx, c.cfg.Server.Addr, newRouter(a), a.logger)
		},
	}
	cmd.Flags().String("addr", ":8080", "listen address")
	return cmd
}

func newRouter(a *app) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	r.Post("/ask", askHandler(a.workflow))
	r.Mount("/", health.Routes(a.health))
	return r
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	SQL        string  `json:"sql,omitempty"`
	Cached     bool    `json:"cached"`
	DurationMS float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

func askHandler(w *workflow.Workflow) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		var req askRequest
		if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 64<<10)).Decode(&req); err != nil {
			writeJSON(rw, http.StatusBadRequest, askResponse{Error: "invalid request body"})
			return
		}

		ans, err := w.Ask(r.Context(), req.Question)
		if err != nil {
			writeJSON(rw, askStatus(err), askResponse{Error: err.Error()})
			return
		}
		writeJSON(rw, http.StatusOK, askResponse{
			SQL:        ans.SQL,
			Cached:     ans.Cached,
			DurationMS: float64(ans.Duration.Microseconds()) / 1000,
		})
	}
}

func askStatus(err error) int {
	switch {
	case errors.Is(err, workflow.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, resilience.ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, resilience.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(rw http.ResponseWriter, code int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(v)
}

func serve(ctx context.Context, addr string, h http.Handler, logger observe.Logger) error {
	eg, egctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		BaseContext:       func(net.Listener) context.Context { return egctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		logger.Info(egctx, "listening", observe.F("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info(shutdownCtx, "shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}
