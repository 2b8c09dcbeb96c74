package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmehdipour/router-sms-gateway/internal/app"
	"github.com/jmehdipour/router-sms-gateway/internal/kafka"
	"github.com/jmehdipour/router-sms-gateway/internal/metrics"
	"github.com/jmehdipour/router-sms-gateway/internal/worker"
)

var intakeCmd = &cobra.Command{
	Use:   "intake",
	Short: "Deliver SMS records from Kafka without the HTTP API",
	RunE:  runIntake,
}

func runIntake(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, log, err := app.Bootstrap(cfgPath)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.ValidateDevice(); err != nil {
		return err
	}
	if len(cfg.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is empty")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3) gateway (device session, coordinator, job store)
	gw, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("init gateway: %w", err)
	}
	defer func() { _ = gw.Close() }()

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	coordDone := make(chan error, 1)
	go func() { coordDone <- gw.Run(runCtx) }()

	// 4) kafka consumer
	consumer := kafka.NewConsumer(app.KafkaConfig(cfg), log.Named("kafka"))
	defer func() { _ = consumer.Close() }()

	w := worker.NewIntake(consumer, gw.Coordinator, log.Named("intake"))

	log.Info("intake started",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group", cfg.Kafka.GroupID),
	)

	err = w.Run(ctx)

	cancelRun()
	<-coordDone
	return err
}
