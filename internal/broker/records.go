package broker

import (
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/user/githubalerts/internal/codec"
	"github.com/user/githubalerts/internal/domain"
)

// Header names set on produced messages.
const (
	HeaderGitHubEvent    = "X-GitHub-Event"
	HeaderGitHubDelivery = "X-GitHub-Delivery"
)

// LifecycleKey keys lifecycle records by repository.
type LifecycleKey struct {
	Owner string `json:"owner" cbor:"owner"`
	Name  string `json:"name" cbor:"name"`
}

// LifecycleValue is the lifecycle record body.
type LifecycleValue struct {
	Kind domain.WatchEventKind `json:"kind" cbor:"kind"`
}

// EncodeLifecycle builds the lifecycle record for ev.
func EncodeLifecycle(c codec.Codec, ev domain.WatchLifecycleEvent) (kafka.Message, error) {
	key, err := c.Marshal(LifecycleKey{Owner: ev.Repository.Owner, Name: ev.Repository.Name})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode lifecycle key: %w", err)
	}
	value, err := c.Marshal(LifecycleValue{Kind: ev.Kind})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode lifecycle value: %w", err)
	}
	return kafka.Message{
		Key:     key,
		Value:   value,
		Headers: []kafka.Header{{Key: codec.Header, Value: []byte(c.ContentType())}},
	}, nil
}

// DecodeLifecycle is the inverse of EncodeLifecycle.
func DecodeLifecycle(c codec.Codec, msg kafka.Message) (domain.WatchLifecycleEvent, error) {
	var key LifecycleKey
	if err := c.Unmarshal(msg.Key, &key); err != nil {
		return domain.WatchLifecycleEvent{}, fmt.Errorf("decode lifecycle key: %w", err)
	}
	var value LifecycleValue
	if err := c.Unmarshal(msg.Value, &value); err != nil {
		return domain.WatchLifecycleEvent{}, fmt.Errorf("decode lifecycle value: %w", err)
	}
	return domain.WatchLifecycleEvent{
		Repository: domain.Repository{Owner: key.Owner, Name: key.Name},
		Kind:       value.Kind,
	}, nil
}

// EncodeNotification builds an unkeyed notification record.
func EncodeNotification(c codec.Codec, n domain.Notification) (kafka.Message, error) {
	value, err := c.Marshal(n)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode notification: %w", err)
	}
	return kafka.Message{
		Value:   value,
		Headers: []kafka.Header{{Key: codec.Header, Value: []byte(c.ContentType())}},
	}, nil
}

// DecodeNotification is the inverse of EncodeNotification.
func DecodeNotification(c codec.Codec, msg kafka.Message) (domain.Notification, error) {
	var n domain.Notification
	if err := c.Unmarshal(msg.Value, &n); err != nil {
		return domain.Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	return n, nil
}

// Header returns the value of the first header named key.
func Header(msg kafka.Message, key string) (string, bool) {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value), true
		}
	}
	return "", false
}
