// Package kafka streams audit records to a Kafka topic for downstream retention
// and SIEM consumers.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"phiguard/internal/audit"
)

// Config configures the publisher.
type Config struct {
	Brokers []string
	Topic   string
	// ClientID identifies this producer to the brokers.
	ClientID string
}

// Publisher implements audit.Sink by producing one Kafka record per audit record,
// keyed by record id. Produce is synchronous: Emit returns once the brokers acked.
type Publisher struct {
	client *kgo.Client
	topic  string
}

// New connects a producer. The topic is not created; see EnsureTopic.
func New(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka audit publisher requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka audit publisher requires a topic")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "phiguard-audit"
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(clientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
		kgo.RecordDeliveryTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Publisher{client: client, topic: cfg.Topic}, nil
}

// EnsureTopic creates the topic if it does not exist yet.
func (p *Publisher) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create audit topic: %w", err)
	}
	for _, t := range resp {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create audit topic %s: %w", t.Topic, t.Err)
		}
	}
	return nil
}

// Ping checks broker connectivity.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *Publisher) Emit(ctx context.Context, record audit.Record) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(record.ID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(record.Action)},
			{Key: "phi_accessed", Value: []byte(strconv.FormatBool(record.PHIAccessed))},
			{Key: "success", Value: []byte(strconv.FormatBool(record.Success))},
		},
		Timestamp: record.Timestamp,
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce audit record: %w", err)
	}
	return nil
}

// Close flushes nothing further and releases the client.
func (p *Publisher) Close() {
	p.client.Close()
}
