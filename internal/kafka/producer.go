package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/yourorg/candlestick-service/internal/model"
)

// EventTypeIngested is the event-type header of ingestion events
const EventTypeIngested = "candlesticks.ingested"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles producing messages to Kafka topics
type Producer struct {
	mu             sync.Mutex
	writers        map[string]messageWriter
	newWriter      func(topic string) messageWriter
	ingestionTopic string
	logger         *zap.Logger
}

// Message represents a Kafka message to be sent
type Message struct {
	Key     string
	Value   interface{}
	Headers []kafka.Header
}

// NewProducer creates a new Kafka producer publishing ingestion events to ingestionTopic
func NewProducer(brokers []string, clientID, ingestionTopic string, logger *zap.Logger) *Producer {
	transport := &kafka.Transport{ClientID: clientID}

	return &Producer{
		writers: make(map[string]messageWriter),
		newWriter: func(topic string) messageWriter {
			return &kafka.Writer{
				Addr:                   kafka.TCP(brokers...),
				Topic:                  topic,
				Balancer:               &kafka.Hash{},
				BatchSize:              100,
				BatchTimeout:           10 * time.Millisecond,
				RequiredAcks:           kafka.RequireOne,
				AllowAutoTopicCreation: true,
				Transport:              transport,
			}
		},
		ingestionTopic: ingestionTopic,
		logger:         logger,
	}
}

// getWriter returns the writer of a topic, creating it on first use
func (p *Producer) getWriter(topic string) messageWriter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, exists := p.writers[topic]; exists {
		return writer
	}

	writer := p.newWriter(topic)
	p.writers[topic] = writer
	return writer
}

// Publish sends a JSON encoded message to a Kafka topic
func (p *Producer) Publish(ctx context.Context, topic string, msg Message) error {
	jsonValue, err := json.Marshal(msg.Value)
	if err != nil {
		p.logger.Error("Failed to marshal message",
			zap.String("topic", topic),
			zap.Error(err))
		return err
	}

	kafkaMsg := kafka.Message{
		Key:     []byte(msg.Key),
		Value:   jsonValue,
		Headers: msg.Headers,
		Time:    time.Now(),
	}

	if err := p.getWriter(topic).WriteMessages(ctx, kafkaMsg); err != nil {
		p.logger.Error("Failed to publish message",
			zap.String("topic", topic),
			zap.String("key", msg.Key),
			zap.Error(err))
		return err
	}

	p.logger.Debug("Message published",
		zap.String("topic", topic),
		zap.String("key", msg.Key))

	return nil
}

// PublishIngestion publishes a persisted-pair event keyed by symbol and interval
func (p *Producer) PublishIngestion(ctx context.Context, event model.IngestionEvent) error {
	return p.Publish(ctx, p.ingestionTopic, Message{
		Key:   fmt.Sprintf("%s:%s:%s", event.Source, event.Symbol, event.Interval),
		Value: event,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(EventTypeIngested)},
			{Key: "run-id", Value: []byte(event.RunID)},
		},
	})
}

// Close closes all Kafka writers
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil {
			p.logger.Error("Failed to close Kafka writer",
				zap.String("topic", topic),
				zap.Error(err))
		}
	}
	p.writers = make(map[string]messageWriter)
	return nil
}
