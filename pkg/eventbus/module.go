package eventbus

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"storekit-keyplane/pkg/config"
)

const defaultTopic = "keyplane.events"

// Module wires the Emitter for services that record events alongside their
// writes. The relay lives in RelayModule so API replicas can emit without
// also draining the outbox.
var Module = fx.Module("eventbus",
	fx.Provide(NewEmitter),
)

var RelayModule = fx.Module("eventbus.relay",
	fx.Provide(
		ProvidePublisher,
		NewRelayConfig,
		NewRelay,
	),
	fx.Invoke(RunRelay),
)

func ProvidePublisher(lc fx.Lifecycle, cfg *config.Config) (Publisher, error) {
	if cfg.Kafka.Addrs == "" {
		zap.L().Warn("kafka not configured, events publish to the log only")
		return NewLogPublisher(), nil
	}

	topic := cfg.Kafka.Topic
	if topic == "" {
		topic = defaultTopic
	}

	publisher, err := NewKafkaPublisher(cfg.Kafka.Addrs, topic)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			publisher.Close()
			return nil
		},
	})

	return publisher, nil
}

func NewRelayConfig(cfg *config.Config) RelayConfig {
	return RelayConfig{
		Interval:    cfg.Outbox.Interval,
		BatchSize:   cfg.Outbox.BatchSize,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	}
}

func RunRelay(lc fx.Lifecycle, relay *Relay) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			relay.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			relay.Stop()
			return nil
		},
	})
}
