package app

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jmehdipour/router-sms-gateway/internal/config"
	"github.com/jmehdipour/router-sms-gateway/internal/kafka"
	"github.com/jmehdipour/router-sms-gateway/internal/logger"
)

// Bootstrap loads configuration and initializes the global logger from it.
func Bootstrap(cfgPath string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.Init(cfg.Log.Level), nil
}

func KafkaConfig(cfg config.Config) kafka.Config {
	return kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Kafka.Topic,
		GroupID:        cfg.Kafka.GroupID,
		MinBytes:       cfg.Kafka.MinBytes,
		MaxBytes:       cfg.Kafka.MaxBytes,
		CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
	}
}
