package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/rms-platform/pipeline-service/internal/infrastructure/mongodb"
	"github.com/rms-platform/pipeline-service/pkg/cloudevents"
	"github.com/rms-platform/pipeline-service/pkg/logging"
	"github.com/rms-platform/pipeline-service/pkg/metrics"
	"github.com/rms-platform/pipeline-service/pkg/outbox"
	sharedtesting "github.com/rms-platform/pipeline-service/pkg/testing"
)

type capturingProducer struct {
	mu     sync.Mutex
	events []*cloudevents.RMSCloudEvent
}

func (p *capturingProducer) PublishEvent(_ context.Context, _ string, event *cloudevents.RMSCloudEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestOutboxPublisher_DrainsRepositoryWrites(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := mongodb.NewProcessRepository(db, newEventFactory())

	ctx, cancel := sharedtesting.CreateTestContext(60 * time.Second)
	defer cancel()

	process := newTestProcess("PROC-OUTBOX-1", "SN-900")
	require.NoError(t, repo.Save(ctx, process))

	producer := &capturingProducer{}
	publisher := outbox.NewPublisher(
		repo.GetOutboxRepository(),
		producer,
		logging.New(logging.DefaultConfig("test")),
		metrics.New(metrics.DefaultConfig("test")),
		&outbox.PublisherConfig{PollInterval: 50 * time.Millisecond, BatchSize: 10},
	)
	require.NoError(t, publisher.Start(ctx))
	defer publisher.Stop()

	sharedtesting.AssertEventually(t, func() bool {
		return producer.count() >= 1
	}, 10*time.Second, "creation event delivered to producer")

	// The delivered event must be marked so it is not sent twice.
	sharedtesting.AssertEventually(t, func() bool {
		count, err := db.Collection("outbox_events").CountDocuments(ctx, bson.M{
			"aggregateId": "PROC-OUTBOX-1",
			"publishedAt": bson.M{"$exists": true},
		})
		return err == nil && count == 1
	}, 10*time.Second, "outbox event marked published")
}
