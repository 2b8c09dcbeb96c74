package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmehdipour/router-sms-gateway/internal/app"
	httpSrv "github.com/jmehdipour/router-sms-gateway/internal/http"
	"github.com/jmehdipour/router-sms-gateway/internal/kafka"
	"github.com/jmehdipour/router-sms-gateway/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := app.Bootstrap(cfgPath)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		gw, err := app.New(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("init gateway: %w", err)
		}
		defer func() {
			if err := gw.Close(); err != nil {
				log.Warn("shutdown: close gateway", zap.Error(err))
			}
		}()

		// the coordinator outlives the signal context so the in-flight send finishes after HTTP stops;
		// anything still queued then fails with "Queue error: coordinator stopped"
		runCtx, cancelRun := context.WithCancel(context.Background())
		defer cancelRun()
		coordDone := make(chan error, 1)
		go func() { coordDone <- gw.Run(runCtx) }()

		intakeDone := make(chan error, 1)
		if cfg.Kafka.Enabled {
			consumer := kafka.NewConsumer(app.KafkaConfig(cfg), log.Named("kafka"))
			defer func() { _ = consumer.Close() }()

			w := worker.NewIntake(consumer, gw.Coordinator, log.Named("intake"))
			go func() { intakeDone <- w.Run(ctx) }()
			log.Info("kafka intake started", zap.String("topic", cfg.Kafka.Topic), zap.String("group", cfg.Kafka.GroupID))
		} else {
			intakeDone <- nil
		}

		server := httpSrv.NewServer(cfg, httpSrv.Deps{
			Dispatcher: gw.Coordinator,
			Jobs:       gw.Jobs,
			History:    gw.History,
		})

		errCh := make(chan error, 1)
		go func() { errCh <- server.Start(cfg.HTTP.Addr) }()

		select {
		case <-ctx.Done():
			log.Info("signal received, shutting down")
		case err := <-errCh:
			if err != nil {
				log.Error("http server exited", zap.Error(err))
			}
			stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown: http", zap.Error(err))
		}
		<-intakeDone

		cancelRun()
		<-coordDone
		log.Info("stopped")
		return nil
	},
}
