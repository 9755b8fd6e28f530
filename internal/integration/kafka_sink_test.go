//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/farm-protest-map/internal/adapter/kafka"
	"github.com/couchcryptid/farm-protest-map/internal/config"
	"github.com/couchcryptid/farm-protest-map/internal/domain"
	"github.com/couchcryptid/farm-protest-map/internal/observability"
	"github.com/couchcryptid/farm-protest-map/internal/session"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testTopic = "test-transitions"

// publishedTransition holds a deserialized message read from the transitions topic.
type publishedTransition struct {
	Transition session.Transition
	Key        string
	Headers    map[string]string
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("protest-map-test"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// readTransition reads a single message from the consumer and deserializes it.
func readTransition(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedTransition {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from transitions topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var tr session.Transition
	require.NoError(t, json.Unmarshal(msg.Value, &tr), "unmarshal transition")

	return publishedTransition{Transition: tr, Key: string(msg.Key), Headers: headers}
}

// TestSessionTransitionsReachKafka drives a session through press, tick and
// scrub with a fake clock and reads the transitions back from the topic.
func TestSessionTransitionsReachKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	writer := kafka.NewWriter(&config.Config{
		KafkaBrokers: []string{broker},
		KafkaTopic:   testTopic,
	}, metrics, logger)

	table, err := domain.NewTable([]domain.Record{
		{TimeIndex: 1, WeekLabel: "2024-01", Flags: map[string]bool{domain.AllProtests: true}, Geo: domain.Geo{Lat: 48.85, Lon: 2.35}, Note: "Paris"},
		{TimeIndex: 2, WeekLabel: "2024-02", Flags: map[string]bool{domain.AllProtests: true}, Geo: domain.Geo{Lat: 52.52, Lon: 13.40}, Note: "Berlin"},
	}, []domain.Week{{Index: 1, Label: "2024-01"}, {Index: 2, Label: "2024-02"}})
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()
	manager := session.NewManager(table, session.Options{
		PlayInterval: time.Second,
		Clock:        clock,
		Sink:         writer,
		Metrics:      metrics,
		Logger:       logger,
	})

	s, err := manager.Create()
	require.NoError(t, err)
	views, unsubscribe := s.Subscribe()

	_, err = s.Press(ctx)
	require.NoError(t, err)
	<-views
	clock.Advance(time.Second)
	<-views
	_, err = s.Scrub(ctx, 1)
	require.NoError(t, err)
	unsubscribe()

	require.NoError(t, manager.Shutdown(ctx))
	require.NoError(t, writer.Close(), "flush pending transitions")

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  1 << 20,
	})
	defer consumer.Close()

	var got []publishedTransition
	for range 3 {
		got = append(got, readTransition(ctx, t, consumer))
	}

	wantEvents := []string{session.EventPress, session.EventTick, session.EventScrub}
	wantIndex := []int{1, 2, 1}
	for i, p := range got {
		assert.Equal(t, s.ID(), p.Key)
		assert.Equal(t, wantEvents[i], p.Transition.Event)
		assert.Equal(t, wantEvents[i], p.Headers["event"])
		assert.Equal(t, wantIndex[i], p.Transition.TimeIndex)
		assert.Equal(t, domain.ModePlaying, p.Transition.Mode)
		assert.Equal(t, 1, p.Transition.Markers)
	}
	assert.Equal(t, "2024-02", got[1].Transition.WeekLabel)
}
