package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/pmsync/internal/logger"
	"github.com/nhle/pmsync/internal/model"
	"github.com/nhle/pmsync/internal/server"
	appsync "github.com/nhle/pmsync/internal/sync"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled syncs and serve the HTTP API",
	Long: `Start the scheduler and the HTTP API. A run starts immediately and then
every sync.interval_minutes. Editing sync.interval_minutes in the config
file takes effect without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	remote, err := newRemote()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	orch := newOrchestrator(s, remote)
	if _, err := orch.RecoverAbandoned(ctx); err != nil {
		return err
	}

	events := appsync.NewBroadcaster()
	sched := appsync.NewScheduler(orch, s, events, appsync.SchedulerOptions{
		Interval:   cfg.Sync.Interval(),
		FullEvery:  cfg.Sync.FullEvery(),
		RunTimeout: cfg.Sync.RunTimeout(),
	})

	model.WatchConfig(configPath,
		func(updated *model.AppConfig) {
			sched.SetInterval(updated.Sync.Interval())
		},
		func(err error) {
			logger.Warn("ignoring invalid config change", logger.F("error", err))
		},
	)

	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := server.New(s, sched)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}
