// Package pubsub implements a Google Cloud Pub/Sub notifier.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/kbforge/ingestd/internal/notify"
)

var _ notify.Emitter = (*Notifier)(nil)

// Notifier publishes progress events to a Pub/Sub topic. Each event becomes
// one message whose "event" attribute carries the event name so subscribers
// can filter without decoding the body.
type Notifier struct {
	topic *pubsub.Topic
}

// New creates a Notifier for the provided topic.
func New(topic *pubsub.Topic) *Notifier {
	return &Notifier{topic: topic}
}

// Open dials Pub/Sub and returns a Notifier for projectID/topicID along with
// a close func releasing the client.
func Open(ctx context.Context, projectID, topicID string) (*Notifier, func(), error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	closeFn := func() {
		topic.Stop()
		_ = client.Close()
	}
	return New(topic), closeFn, nil
}

// Emit marshals the payload to JSON and publishes it. The call blocks until
// the server acknowledges the message.
func (n *Notifier) Emit(ctx context.Context, event string, payload map[string]any) error {
	if n.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	result := n.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"event": event},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish event %s: %w", event, err)
	}
	return nil
}
