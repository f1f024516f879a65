package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/githubalerts/internal/broker"
	"github.com/user/githubalerts/internal/broker/brokertest"
	"github.com/user/githubalerts/internal/codec"
	"github.com/user/githubalerts/internal/config"
	"github.com/user/githubalerts/internal/domain"
	"github.com/user/githubalerts/internal/notifier"
)

type oneSubscriber struct{}

func (oneSubscriber) Match(_ context.Context, raw string) ([]domain.Notification, error) {
	return []domain.Notification{{SlackUserID: "U1", Event: raw}}, nil
}

func TestTopics(t *testing.T) {
	got := Topics(config.TopicsConfig{
		Event:        config.TopicConfig{Name: "events", Partitions: 3, ReplicationFactor: 1},
		Notification: config.TopicConfig{Name: "notifications", Partitions: 1, ReplicationFactor: 1},
		Subscription: config.TopicConfig{Name: "subscriptions", Partitions: 1, ReplicationFactor: 2},
	})
	assert.Equal(t, []broker.Topic{
		{Name: "events", Partitions: 3, ReplicationFactor: 1},
		{Name: "notifications", Partitions: 1, ReplicationFactor: 1},
		{Name: "subscriptions", Partitions: 1, ReplicationFactor: 2},
	}, got)
}

func TestStart_UnknownCodec(t *testing.T) {
	a := New(&config.Config{Kafka: config.KafkaConfig{Codec: "avro"}}, "test")
	assert.Error(t, a.Start(context.Background()))
	assert.Zero(t, a.stack.Len())
}

func TestStart_StoreFailureReleasesTracing(t *testing.T) {
	// A regular file where a directory is expected makes the store fail.
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	a := New(&config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite3", DSN: filepath.Join(blocker, "sub", "alerts.db")},
		Kafka:    config.KafkaConfig{Codec: "json", BootstrapServers: "127.0.0.1:1"},
	}, "test")

	err := a.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquire store")
	assert.Zero(t, a.stack.Len())
	assert.Nil(t, a.server)
}

func TestStopPipeline_ReportsLoopFailure(t *testing.T) {
	r := brokertest.NewReader("events")
	w := brokertest.NewWriter()
	w.FailAll(errors.New("broker down"))
	p := notifier.NewPipeline(r, w, oneSubscriber{}, codec.JSON{}, time.Second)
	r.Push([]byte(`{}`))

	p.Start(context.Background())
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("pipeline did not stop")
	}

	err := stopPipeline(p, r, w)(context.Background())
	assert.ErrorContains(t, err, "stop pipeline")
	assert.ErrorContains(t, err, "broker down")
	assert.True(t, r.Closed())
	assert.True(t, w.Closed())
}

func TestStopPipeline_CleanStop(t *testing.T) {
	r := brokertest.NewReader("events")
	w := brokertest.NewWriter()
	p := notifier.NewPipeline(r, w, oneSubscriber{}, codec.JSON{}, time.Second)
	p.Start(context.Background())

	require.NoError(t, stopPipeline(p, r, w)(context.Background()))
	assert.True(t, r.Closed())
	assert.True(t, w.Closed())
}
