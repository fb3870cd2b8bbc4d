package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-extractor/internal/collect"
	"github.com/sells-group/lead-extractor/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lead extraction HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		r := chi.NewRouter()
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"*"},
		}))

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
		})
		r.Get("/leads", handleLeads)
		r.Get("/leads/stream", handleLeadsStream)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
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

// parseLeadParams reads the request parameters shared by both endpoints.
// The short aliases are kept for callers of the original API.
func parseLeadParams(r *http.Request) (pipeline.Params, error) {
	q := r.URL.Query()

	category := q.Get("category")
	if category == "" {
		category = q.Get("nicho")
	}
	if category == "" {
		return pipeline.Params{}, eris.New("category is required")
	}

	rawLocalities := q.Get("localities")
	if rawLocalities == "" {
		rawLocalities = q.Get("local")
	}
	localities := collect.ParseLocalities(rawLocalities)
	if len(localities) == 0 {
		return pipeline.Params{}, eris.New("localities is required")
	}

	target := 50
	if raw := q.Get("n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < pipeline.MinTarget || n > pipeline.MaxTarget {
			return pipeline.Params{}, eris.Errorf("n must be an integer in [%d, %d]", pipeline.MinTarget, pipeline.MaxTarget)
		}
		target = n
	}

	verifyFlag := q.Get("verify") == "1" || q.Get("verify") == "true"

	return pipeline.Params{
		Category:   category,
		Localities: localities,
		Target:     target,
		Verify:     verifyFlag,
	}, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// handleLeads is the one-shot endpoint: runs the whole session, then
// returns the done fields plus the items array.
func handleLeads(w http.ResponseWriter, r *http.Request) {
	params, err := parseLeadParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	orch, cleanup, err := newSession(params.Category, params.Localities)
	if err != nil {
		zap.L().Error("session setup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer cleanup()

	summary, err := orch.Run(r.Context(), params, pipeline.DiscardSink)
	if err != nil {
		// Client went away; there is nobody left to answer.
		return
	}

	if summary.Items == nil {
		summary.Items = []pipeline.Item{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(summary)
}

// handleLeadsStream is the incremental endpoint: events are flushed to the
// client as they happen. A dropped connection cancels the session through
// the request context.
func handleLeadsStream(w http.ResponseWriter, r *http.Request) {
	params, err := parseLeadParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sink := pipeline.SinkFunc(func(ev pipeline.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind(), data)
		flusher.Flush()
	})

	orch, cleanup, err := newSession(params.Category, params.Localities)
	if err != nil {
		zap.L().Error("session setup failed", zap.Error(err))
		sink.Emit(pipeline.ErrorEvent{Message: err.Error()})
		return
	}
	defer cleanup()

	if _, err := orch.Run(r.Context(), params, sink); err != nil {
		zap.L().Debug("stream session ended early", zap.Error(err))
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
