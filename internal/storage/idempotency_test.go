package storage_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/jobwatch/internal/model"
	"github.com/ashita-ai/jobwatch/internal/storage"
	"github.com/ashita-ai/jobwatch/internal/testutil"
)

func requestKey(endpoint string) storage.RequestKey {
	return storage.RequestKey{
		UserID:   "idem-" + testutil.Tag(),
		Endpoint: endpoint,
		Key:      uuid.NewString(),
	}
}

func TestRequestKey_ReplayAndReuse(t *testing.T) {
	ctx := context.Background()
	k := requestKey("POST /v1/feedback")

	replay, err := testDB.ReserveRequest(ctx, k, "hash-a")
	require.NoError(t, err)
	assert.Nil(t, replay, "first reservation owns the key")

	require.NoError(t, testDB.CompleteRequest(ctx, k, 201, map[string]any{"id": 1}))

	replay, err = testDB.ReserveRequest(ctx, k, "hash-a")
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, 201, replay.StatusCode)
	assert.JSONEq(t, `{"id":1}`, string(replay.Body))

	_, err = testDB.ReserveRequest(ctx, k, "hash-b")
	assert.ErrorIs(t, err, storage.ErrRequestKeyReused)
}

func TestRequestKey_InFlightUntilReleased(t *testing.T) {
	ctx := context.Background()
	k := requestKey("POST /v1/runs/ingest")

	_, err := testDB.ReserveRequest(ctx, k, "hash-a")
	require.NoError(t, err)

	_, err = testDB.ReserveRequest(ctx, k, "hash-a")
	require.ErrorIs(t, err, storage.ErrRequestInFlight)

	require.NoError(t, testDB.ReleaseRequest(ctx, k))
	replay, err := testDB.ReserveRequest(ctx, k, "hash-a")
	require.NoError(t, err)
	assert.Nil(t, replay)
}

func TestRequestKey_CompleteWithoutReservation(t *testing.T) {
	err := testDB.CompleteRequest(context.Background(), requestKey("POST /v1/feedback"), 200, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPruneRunsDropsStaleRequestKeys(t *testing.T) {
	ctx := context.Background()
	userID := "idem-" + testutil.Tag()

	_, err := testDB.Pool().Exec(ctx,
		`INSERT INTO idempotency_keys (user_id, endpoint, idempotency_key, request_hash, status, status_code, response_data, created_at, updated_at)
		 VALUES
		 ($1, 'POST /v1/feedback', 'ancient', 'h1', 'completed', 201, '{"ok":true}', now() - interval '10 years', now() - interval '10 years'),
		 ($1, 'POST /v1/feedback', 'abandoned', 'h2', 'in_progress', NULL, NULL, now() - interval '3 hours', now() - interval '3 hours'),
		 ($1, 'POST /v1/feedback', 'fresh', 'h3', 'in_progress', NULL, NULL, now(), now())`,
		userID,
	)
	require.NoError(t, err)

	// Completed keys are measured against the oldest run, so make sure one exists.
	run, err := testDB.BeginRun(ctx, uniqueSettings())
	require.NoError(t, err)
	_, err = testDB.FinishRun(ctx, run.RunID, model.RunStatusCompleted, model.RunStats{}, nil)
	require.NoError(t, err)

	_, err = testDB.PruneRuns(ctx, storage.MinRetainedRuns)
	require.NoError(t, err)

	rows, err := testDB.Pool().Query(ctx,
		`SELECT idempotency_key FROM idempotency_keys WHERE user_id = $1`, userID)
	require.NoError(t, err)
	defer rows.Close()
	var left []string
	for rows.Next() {
		var k string
		require.NoError(t, rows.Scan(&k))
		left = append(left, k)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"fresh"}, left)
}
