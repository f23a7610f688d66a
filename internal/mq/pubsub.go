package mq

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/pilotodevendas/apiserver/config"
	"google.golang.org/api/option"
)

// PubSubClient publishes auth events to Google Cloud Pub/Sub topics. When an
// ordering attribute is configured, events sharing its value (the subject
// user) are delivered in publish order.
type PubSubClient struct {
	client             *pubsub.Client
	subscriptionSuffix string
	orderingAttribute  string
	retryPolicy        *pubsub.RetryPolicy

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewPubSubClient constructs a Pub/Sub client from config.
func NewPubSubClient(ctx context.Context, cfg config.PubSubConfig) (*PubSubClient, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("pubsub project id is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, err
	}

	p := newPubSubClient(cfg)
	p.client = client
	return p, nil
}

func newPubSubClient(cfg config.PubSubConfig) *PubSubClient {
	suffix := cfg.SubscriptionSuffix
	if suffix == "" {
		suffix = "-sub"
	}
	return &PubSubClient{
		subscriptionSuffix: suffix,
		orderingAttribute:  strings.TrimSpace(cfg.OrderingAttribute),
		retryPolicy:        retryPolicy(cfg.MinRetryBackoff, cfg.MaxRetryBackoff),
		topics:             make(map[string]*pubsub.Topic),
	}
}

// Publish sends data to the named topic, creating it on first use.
func (p *PubSubClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("pubsub channel is required")
	}

	topic, err := p.topic(ctx, channel)
	if err != nil {
		return "", err
	}

	key := p.orderingKey(attrs)
	id, err := topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attrs,
		OrderingKey: key,
	}).Get(ctx)
	if err != nil && key != "" {
		// A failed ordered publish pauses the key until resumed.
		topic.ResumePublish(key)
	}
	return id, err
}

// Subscribe consumes messages from the named channel until ctx is done.
// Handler errors nack the message so Pub/Sub redelivers it after the
// configured backoff.
func (p *PubSubClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("pubsub channel is required")
	}

	topic, err := p.topic(ctx, channel)
	if err != nil {
		return err
	}

	sub, err := p.ensureSubscription(ctx, p.subscriptionName(channel), topic)
	if err != nil {
		return err
	}

	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		message := Message{
			ID:         msg.ID,
			Data:       msg.Data,
			Attributes: msg.Attributes,
		}
		if err := handler(ctx, message); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Close flushes pending publishes and closes the client.
func (p *PubSubClient) Close() error {
	p.mu.Lock()
	for name, topic := range p.topics {
		topic.Stop()
		delete(p.topics, name)
	}
	p.mu.Unlock()
	return p.client.Close()
}

func (p *PubSubClient) topic(ctx context.Context, name string) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if topic, ok := p.topics[name]; ok {
		return topic, nil
	}

	topic := p.client.Topic(name)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		if topic, err = p.client.CreateTopic(ctx, name); err != nil {
			return nil, err
		}
	}
	topic.EnableMessageOrdering = p.orderingAttribute != ""
	p.topics[name] = topic
	return topic, nil
}

func (p *PubSubClient) ensureSubscription(ctx context.Context, name string, topic *pubsub.Topic) (*pubsub.Subscription, error) {
	sub := p.client.Subscription(name)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return p.client.CreateSubscription(ctx, name, p.subscriptionConfig(topic))
	}
	return sub, nil
}

func (p *PubSubClient) subscriptionConfig(topic *pubsub.Topic) pubsub.SubscriptionConfig {
	return pubsub.SubscriptionConfig{
		Topic:                 topic,
		AckDeadline:           30 * time.Second,
		EnableMessageOrdering: p.orderingAttribute != "",
		RetryPolicy:           p.retryPolicy,
	}
}

func (p *PubSubClient) orderingKey(attrs map[string]string) string {
	if p.orderingAttribute == "" {
		return ""
	}
	return attrs[p.orderingAttribute]
}

func (p *PubSubClient) subscriptionName(channel string) string {
	if p.subscriptionSuffix == "" {
		return channel
	}
	return channel + p.subscriptionSuffix
}

func retryPolicy(minBackoff, maxBackoff time.Duration) *pubsub.RetryPolicy {
	if minBackoff <= 0 && maxBackoff <= 0 {
		return nil
	}
	policy := &pubsub.RetryPolicy{}
	if minBackoff > 0 {
		policy.MinimumBackoff = minBackoff
	}
	if maxBackoff > 0 {
		if maxBackoff < minBackoff {
			maxBackoff = minBackoff
		}
		policy.MaximumBackoff = maxBackoff
	}
	return policy
}
