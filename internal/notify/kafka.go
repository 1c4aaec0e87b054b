package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"gatecheck/internal/guestlist/ports"
)

// Kafka publishes notification intents to a broker topic keyed by recipient.
// Produces are async; a failed delivery is logged and dropped, matching the
// engine's no-wait, no-retry contract.
type Kafka struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// KafkaOption configures a Kafka dispatcher.
type KafkaOption func(*Kafka)

func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(k *Kafka) {
		k.logger = logger
	}
}

// NewKafka connects to the brokers and ensures the topic exists before the
// first produce, so a fresh environment does not silently drop the initial
// notifications.
func NewKafka(ctx context.Context, seeds []string, topic string, opts ...KafkaOption) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(seeds...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	adm := kadm.NewClient(client)
	resps, err := adm.CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure topic %q: %w", topic, err)
	}
	for _, resp := range resps.Sorted() {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			client.Close()
			return nil, fmt.Errorf("ensure topic %q: %w", topic, resp.Err)
		}
	}

	k := &Kafka{client: client, topic: topic, logger: slog.Default()}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

func (k *Kafka) Notify(ctx context.Context, n ports.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		k.logger.ErrorContext(ctx, "marshal notification", "error", err)
		return
	}
	rec := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(n.ToUserID),
		Value: payload,
	}
	// Detach from the request context: the guest operation must not be
	// cancelled or slowed by broker latency.
	k.client.Produce(context.WithoutCancel(ctx), rec, func(r *kgo.Record, err error) {
		if err != nil {
			k.logger.Warn("notification produce failed",
				"to_user_id", n.ToUserID,
				"event_id", n.EventID,
				"kind", string(n.Kind),
				"error", err,
			)
		}
	})
}

// Close flushes buffered produces and releases the client.
func (k *Kafka) Close() {
	k.client.Close()
}
