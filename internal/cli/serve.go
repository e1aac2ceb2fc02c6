package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/ledger/internal/engine"
	"github.com/roach88/ledger/internal/genesis"
	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/metrics"
	"github.com/roach88/ledger/internal/model"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Stdin bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the batch writer and expose /metrics and /status",
		Long: `Run the engine's single-writer loop until interrupted.

The HTTP listener is read-only: /metrics serves Prometheus metrics and
/status the ledger status as JSON. With --stdin, YAML batch documents
separated by "---" are read from standard input and submitted in order.

Examples:
  ledger serve --db ./ledger.db --listen 127.0.0.1:9464
  cat batches.yaml | ledger serve --stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().String("listen", "", "HTTP listen address (default 127.0.0.1:9464)")
	cmd.Flags().BoolVar(&opts.Stdin, "stdin", false, "submit YAML batches read from standard input")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	l, err := openLedger(ctx, opts.RootOptions, engine.WithMetrics(m))
	if err != nil {
		return err
	}
	defer l.Close()
	m.SetHeight(l.engine.Height())

	log := opts.Logger
	srv := &http.Server{
		Addr:              opts.Config.Listen,
		Handler:           newServeRouter(l.engine, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	blocks, err := l.engine.Blocks(ctx, l.engine.Height()+1)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to subscribe to blocks", err)
	}
	defer blocks.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := l.engine.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.Info("http listener starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		logBlocks(gctx, blocks, log)
		return nil
	})

	if opts.Stdin {
		authority := opts.Config.AuthorityID()
		g.Go(func() error {
			committed, rejected, err := submitStream(gctx, l.engine, cmd.InOrStdin(), authority, log)
			if err != nil {
				return err
			}
			log.Info("batch stream finished", "committed", committed, "rejected", rejected)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitCommandError, "serve failed", err)
	}
	log.Info("serve stopped", "height", l.engine.Height())
	return nil
}

// newServeRouter routes the read-only HTTP surface of serve.
func newServeRouter(e *engine.Engine, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		status, err := ledgerStatus(e)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	})
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

// logBlocks logs every block the stream delivers until ctx is done.
func logBlocks(ctx context.Context, bs *engine.BlockStream, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-bs.Blocks():
			if !ok {
				return
			}
			log.Info("block committed",
				"height", b.Height,
				"batch_id", b.BatchID,
				"authority", b.Batch.Authority.String(),
				"events", len(b.Events),
			)
		}
	}
}

// submitStream submits every batch in r through the engine queue and waits
// for each outcome before reading the next. A rejected batch is logged and
// counted; the stream continues. The engine's Run loop must be running.
func submitStream(ctx context.Context, e *engine.Engine, r io.Reader, fallback ident.AccountID, log *slog.Logger) (committed, rejected int, err error) {
	err = genesis.ReadBatches(r, fallback, func(b model.Batch) error {
		p, err := e.Submit(b)
		if err != nil {
			return err
		}
		out, err := p.Wait(ctx)
		if err != nil && !engine.IsRejected(err) {
			return err
		}
		if out.Committed {
			committed++
		} else {
			rejected++
		}
		log.Info(describeOutcome(out))
		return nil
	})
	return committed, rejected, err
}
