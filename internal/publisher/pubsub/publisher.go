// Package pubsub implements a Google Cloud Pub/Sub publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// Publisher publishes JSON payloads to Pub/Sub topics of one project.
type Publisher struct {
	client *pubsub.Client
	owned  bool

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// Open creates a Pub/Sub client for projectID.
func Open(ctx context.Context, projectID string, opts ...option.ClientOption) (*Publisher, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	p := New(client)
	p.owned = true
	return p, nil
}

// New creates a Publisher on an existing client.
func New(client *pubsub.Client) *Publisher {
	return &Publisher{client: client, topics: make(map[string]*pubsub.Topic)}
}

// Publish marshals the payload to JSON and publishes it to topic, waiting for
// the server-assigned message ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p.client == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"content_type": "application/json"},
	}
	id, err := p.topic(topic).Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

func (p *Publisher) topic(name string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok {
		t = p.client.Topic(name)
		p.topics[name] = t
	}
	return t
}

// Close flushes pending publishes and closes the client when it was created
// by Open.
func (p *Publisher) Close() error {
	p.mu.Lock()
	for name, t := range p.topics {
		t.Stop()
		delete(p.topics, name)
	}
	p.mu.Unlock()
	if !p.owned || p.client == nil {
		return nil
	}
	return p.client.Close()
}
