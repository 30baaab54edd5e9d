package cli

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/mnemo-lab/mnemosyne/pkg/cli/config"
	httpctrl "github.com/mnemo-lab/mnemosyne/pkg/controller/http"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
	"github.com/mnemo-lab/mnemosyne/pkg/service/embedding"
	memsvc "github.com/mnemo-lab/mnemosyne/pkg/service/memory"
	"github.com/mnemo-lab/mnemosyne/pkg/service/shortterm"
	"github.com/mnemo-lab/mnemosyne/pkg/service/worker"
	"github.com/mnemo-lab/mnemosyne/pkg/usecase"
	"github.com/mnemo-lab/mnemosyne/pkg/utils/async"
	"github.com/mnemo-lab/mnemosyne/pkg/utils/logging"
)

func cmdServe() *cli.Command {
	var addr string
	var storeCfg config.Store
	var vectorCfg config.Vector
	var geminiCfg config.Gemini
	var slackCfg config.Slack
	var convCfg config.Conversation

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("MNEMOSYNE_ADDR"),
			Destination: &addr,
		},
	}

	// Add shared config flags
	flags = append(flags, storeCfg.Flags()...)
	flags = append(flags, vectorCfg.Flags()...)
	flags = append(flags, geminiCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)
	flags = append(flags, convCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := convCfg.Configure(c); err != nil {
				return goerr.Wrap(err, "failed to load conversation configuration")
			}

			store, err := storeCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize store")
			}
			defer func() {
				if err := store.Close(); err != nil {
					logging.Default().Error("failed to close store", "error", err.Error())
				}
			}()

			// Embedding provider is optional; without it similarity
			// recall is disabled and ingestion still works.
			llmClient, err := geminiCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to configure Gemini client")
			}
			embedder := embedding.New(llmClient, vectorCfg.Dimension())
			if embedder.Enabled() {
				logging.Default().Info("Embedding provider enabled")
			} else {
				logging.Default().Info("Embedding provider not configured, similarity recall disabled")
			}

			shortTermOpts := []shortterm.Option{
				shortterm.WithCapacity(convCfg.Capacity()),
				shortterm.WithTTL(convCfg.TTL()),
				shortterm.WithPersistence(store, convCfg.PersistTTL()),
			}
			slackSvc, err := slackCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to initialize slack service")
			}
			if slackSvc != nil {
				shortTermOpts = append(shortTermOpts, shortterm.WithHistory(slackSvc))
				logging.Default().Info("Slack history backfill enabled")
			}
			shortTerm := shortterm.New(shortTermOpts...)

			ucOpts := []usecase.Option{
				usecase.WithShortTerm(shortTerm),
				usecase.WithEmbedder(embedder),
				usecase.WithIndexName(vectorCfg.IndexName()),
			}
			if embedder.Enabled() {
				vectors, err := vectorCfg.Configure(store)
				if err != nil {
					return goerr.Wrap(err, "failed to configure vector search")
				}
				ucOpts = append(ucOpts, usecase.WithVectors(vectors))
			}

			uc := usecase.New(store, ucOpts...)

			if err := uc.EnsureIndex(ctx); err != nil {
				return goerr.Wrap(err, "failed to provision vector index")
			}

			sweeper := worker.NewSweepWorker(store, shortTerm, convCfg.SweepInterval())
			if err := sweeper.Start(ctx); err != nil {
				return goerr.Wrap(err, "failed to start expiry sweep worker")
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(uc),
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Graceful shutdown: SIGINT/SIGTERM cancels the group context,
			// which stops the event subscription and the HTTP listener.
			sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			eg, egCtx := errgroup.WithContext(sigCtx)

			eg.Go(func() error {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return goerr.Wrap(err, "failed to start server")
				}
				return nil
			})

			// Wipe events from other processes invalidate local buffers
			eg.Go(func() error {
				return subscribeMemoryEvents(egCtx, uc, shortTerm)
			})

			eg.Go(func() error {
				<-egCtx.Done()

				sweeper.Stop()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}
				return nil
			})

			if err := eg.Wait(); err != nil && err != context.Canceled {
				return err
			}

			logging.Default().Info("Server shutdown completed")
			return nil
		},
	}
}

// subscribeMemoryEvents listens for wipe notifications and drops the
// matching short-term buffers so stale context cannot outlive a wipe.
func subscribeMemoryEvents(ctx context.Context, uc *usecase.UseCases, shortTerm *shortterm.Service) error {
	handler := func(ctx context.Context, value model.Value) {
		var event memsvc.Event
		if err := value.Decode(&event); err != nil {
			logging.From(ctx).Warn("ignoring malformed memory event", "error", err.Error())
			return
		}

		async.Dispatch(ctx, func(ctx context.Context) error {
			switch event.Event {
			case memsvc.EventWipeCategory:
				shortTerm.Clear(types.ChannelID(event.Category))
				logging.From(ctx).Info("cleared short-term buffer on wipe event", "category", event.Category)
			case memsvc.EventWipeAll:
				shortTerm.ClearAll()
				logging.From(ctx).Info("cleared all short-term buffers on wipe event")
			}
			return nil
		})
	}

	err := uc.Store().Subscribe(ctx, memsvc.EventsChannel, handler)
	if err != nil && ctx.Err() == nil {
		return goerr.Wrap(err, "memory event subscription failed")
	}
	return nil
}
