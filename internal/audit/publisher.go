package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Publisher streams fetch events to a Kafka topic. Produce is asynchronous;
// delivery failures are logged and never reach the fetch path. Events for one
// fingerprint share a partition, so per-query ordering survives.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(client *kgo.Client, topic string, opts ...Option) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("kafka client is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	p := &Publisher{
		client: client,
		topic:  topic,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Emit publishes one event. Identity and timestamp fields are filled when
// left zero. The call returns once the record is queued.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	event = normalize(ctx, event)

	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.Fingerprint),
		Value: value,
	}
	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Warn("audit event delivery failed",
				"kind", event.Kind,
				"provider", event.Provider,
				"error", err,
			)
		}
	})
	return nil
}

// Close flushes queued records and releases the client.
func (p *Publisher) Close(ctx context.Context) error {
	err := p.client.Flush(ctx)
	p.client.Close()
	return err
}

// EnsureTopic creates the audit topic when missing. An existing topic is not
// an error; partition or replication drift is left to operators.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replication int16) error {
	adm := kadm.NewClient(client)

	responses, err := adm.CreateTopics(ctx, partitions, replication, nil, topic)
	if err != nil {
		return err
	}
	for _, response := range responses {
		if response.Err != nil && !errors.Is(response.Err, kerr.TopicAlreadyExists) {
			return response.Err
		}
	}
	return nil
}
