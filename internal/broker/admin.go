package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/user/githubalerts/pkg/logger"
)

// Topic describes a topic to create.
type Topic struct {
	Name              string
	Partitions        int
	ReplicationFactor int
}

// EnsureTopics creates the given topics through the cluster controller.
// Topics that already exist are left alone.
func EnsureTopics(ctx context.Context, brokers []string, topics []Topic) error {
	controller, err := dialController(ctx, brokers)
	if err != nil {
		return err
	}
	defer controller.Close()

	for _, t := range topics {
		err := controller.CreateTopics(kafka.TopicConfig{
			Topic:             t.Name,
			NumPartitions:     t.Partitions,
			ReplicationFactor: t.ReplicationFactor,
		})
		switch {
		case err == nil:
			logger.Info().Str("topic", t.Name).Int("partitions", t.Partitions).Msg("Topic created")
		case errors.Is(err, kafka.TopicAlreadyExists):
			logger.Debug().Str("topic", t.Name).Msg("Topic already exists")
		default:
			return fmt.Errorf("create topic %s: %w", t.Name, err)
		}
	}
	return nil
}

// Ping checks that the controller is reachable.
func Ping(ctx context.Context, brokers []string) error {
	conn, err := dialController(ctx, brokers)
	if err != nil {
		return err
	}
	return conn.Close()
}

func dialController(ctx context.Context, brokers []string) (*kafka.Conn, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}

	var dialer kafka.Dialer
	var lastErr error
	for _, addr := range brokers {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		ctrl, err := conn.Controller()
		conn.Close()
		if err != nil {
			lastErr = err
			continue
		}
		cc, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(ctrl.Host, strconv.Itoa(ctrl.Port)))
		if err != nil {
			lastErr = err
			continue
		}
		return cc, nil
	}
	return nil, fmt.Errorf("dial kafka controller: %w", lastErr)
}
