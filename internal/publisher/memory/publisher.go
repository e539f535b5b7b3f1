// Package memory stands in for Pub/Sub on dry runs: run summaries are
// encoded and logged instead of sent.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Publisher keeps the summaries a dry run would have published.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
	logger   *zap.Logger
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	Topic   string
	Payload any
	// Data is the JSON encoding Pub/Sub would have received.
	Data []byte
}

// New returns a memory Publisher. logger may be nil.
func New(logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{logger: logger}
}

// Publish encodes payload as the Pub/Sub publisher would, records it and
// returns a pseudo message id.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	p.messages = append(p.messages, PublishedMessage{Topic: topic, Payload: payload, Data: data})
	id := fmt.Sprintf("memory-%d", len(p.messages))
	p.mu.Unlock()

	p.logger.Info("dry run: message not sent",
		zap.String("topic", topic),
		zap.String("message_id", id),
		zap.ByteString("data", data),
	)
	return id, nil
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
