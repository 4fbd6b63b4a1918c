package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jzy12306/lingtuzhipu-sub000/internal/data/repos"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/data/repos/testutil"
	types "github.com/jzy12306/lingtuzhipu-sub000/internal/domain"
)

func TestNextBackoffDoublesAndCaps(t *testing.T) {
	s := &graphIndexer{retryBase: 250 * time.Millisecond}

	require.Equal(t, 250*time.Millisecond, s.nextBackoff(1))
	require.Equal(t, 500*time.Millisecond, s.nextBackoff(2))
	require.Equal(t, 2*time.Second, s.nextBackoff(4))
	require.Equal(t, time.Minute, s.nextBackoff(20))
}

func TestDrainOnceWithoutGraphSchedulesRetry(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	entityRepo := repos.NewEntityRepo(gdb, log)
	relationRepo := repos.NewRelationRepo(gdb, log)
	syncRepo := repos.NewSyncEventRepo(gdb, log)
	notifier := &captureNotifier{}
	writer := NewGraphWriter(gdb, entityRepo, relationRepo, syncRepo, notifier, log)
	indexer := NewGraphIndexer(gdb, nil, entityRepo, relationRepo, syncRepo, log)

	ctx := context.Background()
	row, err := writer.CreateEntity(ctx, &types.Entity{Name: "Orphan", Type: "Concept"})
	require.NoError(t, err)

	before, err := indexer.Backlog(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, before, int64(1))

	n, err := indexer.DrainOnce(ctx)
	require.NoError(t, err)
	require.Greater(t, n, 0)

	// The projection is unreachable, so the event stays durable with an
	// incremented attempt count and a future retry window.
	var ev types.GraphSyncEvent
	require.NoError(t, gdb.Where("record_id = ?", row.ID).First(&ev).Error)
	require.Nil(t, ev.ProcessedAt)
	require.Equal(t, 1, ev.Attempts)
	require.NotEmpty(t, ev.LastError)
	require.True(t, ev.AvailableAt.After(time.Now().UTC().Add(-time.Second)))
}

func TestDrainOnceEmptyQueue(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	entityRepo := repos.NewEntityRepo(gdb, log)
	relationRepo := repos.NewRelationRepo(gdb, log)
	syncRepo := repos.NewSyncEventRepo(gdb, log)
	indexer := NewGraphIndexer(gdb, nil, entityRepo, relationRepo, syncRepo, log)

	ctx := context.Background()
	// Flush anything earlier tests appended; the queue drains to empty
	// because every failure pushes the event into a backoff window.
	for i := 0; i < 10; i++ {
		n, err := indexer.DrainOnce(ctx)
		require.NoError(t, err)
		if n == 0 {
			return
		}
	}
	t.Fatalf("queue never drained")
}
