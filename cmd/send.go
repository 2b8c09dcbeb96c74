package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmehdipour/router-sms-gateway/internal/app"
	"github.com/jmehdipour/router-sms-gateway/internal/dispatcher"
	"github.com/jmehdipour/router-sms-gateway/internal/kafka"
	"github.com/jmehdipour/router-sms-gateway/internal/model"
	"github.com/jmehdipour/router-sms-gateway/internal/util"
)

var sendViaKafka bool

var sendCmd = &cobra.Command{
	Use:   "send <phone_number> <message>",
	Short: "Send one SMS directly through the router (or publish it to the intake topic)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := app.Bootstrap(cfgPath)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		sms := model.SMS{PhoneNumber: util.NormalizePhone(args[0]), Message: args[1]}.Normalize()
		if !sms.Valid() {
			return errors.New("phone_number and message are required")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		enc := json.NewEncoder(cmd.OutOrStdout())

		if sendViaKafka {
			if len(cfg.Kafka.Brokers) == 0 {
				return errors.New("kafka.brokers is empty")
			}
			env := model.Envelope{ID: util.NewULID(), SMS: sms}
			body, err := json.Marshal(env)
			if err != nil {
				return err
			}
			p := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, log.Named("kafka"))
			defer func() { _ = p.Close() }()
			if err := p.Publish(ctx, sms.PhoneNumber, body); err != nil {
				return fmt.Errorf("publish: %w", err)
			}
			return enc.Encode(map[string]string{"status": "published", "id": env.ID, "topic": cfg.Kafka.Topic})
		}

		if err := cfg.ValidateDevice(); err != nil {
			return err
		}
		exec := dispatcher.NewExecutor(app.DeviceFactory(cfg, log.Named("device")), cfg.Dispatcher.MaxRetries, nil, log.Named("executor"))
		defer func() { _ = exec.Close() }()

		start := time.Now()
		res := exec.Send(ctx, sms.PhoneNumber, sms.Message)
		res.ElapsedTime = time.Since(start).Seconds()

		if err := enc.Encode(res); err != nil {
			return err
		}
		if !res.OK() {
			return fmt.Errorf("send failed: %s", res.Message)
		}
		return nil
	},
}

func init() {
	sendCmd.Flags().BoolVar(&sendViaKafka, "kafka", false, "publish to kafka.topic instead of sending directly")
}
