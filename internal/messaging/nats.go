// Package messaging provides a NATS client wrapper for the matcher. It
// handles connection lifecycle, subject-based subscriptions and the
// request/reply plumbing used by rank requests.
package messaging

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns used by the matcher and its clients.
const (
	SubjectProfileUpsert = "profile.upsert"
	SubjectProfileRemove = "profile.remove"
	SubjectMatchRank     = "match.rank"
	SubjectMatchRanked   = "match.ranked" // + .<requester_id>
)

// RankedSubject returns the broadcast subject for a requester's results.
func RankedSubject(requesterID string) string {
	return SubjectMatchRanked + "." + requesterID
}

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	QueueGroup    string        // queue group shared by matcher replicas
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "matcher",
		QueueGroup:    "matcher",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	c.track(subject, sub)
	return nil
}

// QueueSubscribe is Subscribe with load balancing across the members of
// queue, so each message reaches one matcher replica.
func (c *NATSClient) QueueSubscribe(subject, queue string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.QueueSubscribe(subject, queue, handler)
	if err != nil {
		return fmt.Errorf("nats queue subscribe %s: %w", subject, err)
	}
	c.track(subject, sub)
	return nil
}

func (c *NATSClient) track(key string, sub *nats.Subscription) {
	c.mu.Lock()
	c.subs[key] = sub
	c.mu.Unlock()
}

// Request sends data on subject and waits for a single reply.
func (c *NATSClient) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	msg, err := c.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, fmt.Errorf("nats request %s: %w", subject, err)
	}
	return msg.Data, nil
}

// SubscribeProfileUpsert subscribes to profile updates from the profile service.
func (c *NATSClient) SubscribeProfileUpsert(queue string, handler func(data []byte)) error {
	return c.QueueSubscribe(SubjectProfileUpsert, queue, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// SubscribeProfileRemove subscribes to profile deletions.
func (c *NATSClient) SubscribeProfileRemove(queue string, handler func(data []byte)) error {
	return c.QueueSubscribe(SubjectProfileRemove, queue, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// SubscribeMatchRank subscribes to rank requests. The handler's return
// value is sent back to the requester when the message carries a reply
// subject.
func (c *NATSClient) SubscribeMatchRank(queue string, handler func(data []byte) []byte) error {
	return c.QueueSubscribe(SubjectMatchRank, queue, func(msg *nats.Msg) {
		reply := handler(msg.Data)
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(reply); err != nil {
			log.Printf("[nats] respond on %s: %v", msg.Subject, err)
		}
	})
}

// PublishRanked broadcasts ranked results on match.ranked.<requesterID>.
func (c *NATSClient) PublishRanked(requesterID string, data []byte) error {
	return c.Publish(RankedSubject(requesterID), data)
}

// SubscribeRanked subscribes to the ranked results of one requester.
func (c *NATSClient) SubscribeRanked(requesterID string, handler func(data []byte)) error {
	return c.Subscribe(RankedSubject(requesterID), func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// UnsubscribeRanked unsubscribes from a requester's ranked results.
func (c *NATSClient) UnsubscribeRanked(requesterID string) error {
	return c.unsubscribe(RankedSubject(requesterID))
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}

// unsubscribe removes and unsubscribes from a specific subject.
func (c *NATSClient) unsubscribe(subject string) error {
	c.mu.Lock()
	sub, ok := c.subs[subject]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for subject %s", subject)
	}
	delete(c.subs, subject)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", subject, err)
	}
	return nil
}
