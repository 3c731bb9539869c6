package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrRequestKeyReused is returned when an Idempotency-Key comes back with
	// a different request body.
	ErrRequestKeyReused = errors.New("storage: idempotency key reused with a different payload")
	// ErrRequestInFlight is returned while the first request with a key is
	// still being served.
	ErrRequestInFlight = errors.New("storage: idempotency key already in progress")
)

// AbandonedRequestTTL is how long an in-progress reservation survives a
// crashed handler before retention drops it.
const AbandonedRequestTTL = time.Hour

// RequestKey identifies one operator's Idempotency-Key on one write endpoint.
type RequestKey struct {
	UserID   string
	Endpoint string
	Key      string
}

// Replay is the stored response of a completed request.
type Replay struct {
	StatusCode int
	Body       json.RawMessage
}

// ReserveRequest claims k for the caller. It returns (nil, nil) when the
// caller now owns the key and must finish with CompleteRequest or
// ReleaseRequest, and a Replay when the same request already completed.
func (db *DB) ReserveRequest(ctx context.Context, k RequestKey, requestHash string) (*Replay, error) {
	var (
		inserted   bool
		storedHash string
		status     string
		code       *int
		body       []byte
	)
	// The CTE either inserts the reservation or falls through to the
	// existing row, so one round trip answers both cases.
	err := db.pool.QueryRow(ctx,
		`WITH ins AS (
		     INSERT INTO idempotency_keys (user_id, endpoint, idempotency_key, request_hash, status)
		     VALUES ($1, $2, $3, $4, 'in_progress')
		     ON CONFLICT DO NOTHING
		     RETURNING true AS inserted, request_hash, status, status_code, response_data
		 )
		 SELECT inserted, request_hash, status, status_code, response_data FROM ins
		 UNION ALL
		 SELECT false, request_hash, status, status_code, response_data
		 FROM idempotency_keys
		 WHERE user_id = $1 AND endpoint = $2 AND idempotency_key = $3
		   AND NOT EXISTS (SELECT 1 FROM ins)`,
		k.UserID, k.Endpoint, k.Key, requestHash,
	).Scan(&inserted, &storedHash, &status, &code, &body)
	if errors.Is(err, pgx.ErrNoRows) {
		// A concurrent request inserted the key after this statement's
		// snapshot was taken.
		return nil, ErrRequestInFlight
	}
	if err != nil {
		return nil, fmt.Errorf("storage: reserve request key: %w", err)
	}

	switch {
	case inserted:
		return nil, nil
	case storedHash != requestHash:
		return nil, ErrRequestKeyReused
	case status != "completed":
		return nil, ErrRequestInFlight
	}
	r := &Replay{Body: body}
	if code != nil {
		r.StatusCode = *code
	}
	return r, nil
}

// CompleteRequest stores the response served for a reserved key.
func (db *DB) CompleteRequest(ctx context.Context, k RequestKey, statusCode int, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("storage: encode request response: %w", err)
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE idempotency_keys
		 SET status = 'completed', status_code = $4, response_data = $5::jsonb, updated_at = now()
		 WHERE user_id = $1 AND endpoint = $2 AND idempotency_key = $3 AND status = 'in_progress'`,
		k.UserID, k.Endpoint, k.Key, statusCode, payload,
	)
	if err != nil {
		return fmt.Errorf("storage: complete request key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: complete request key %q: %w", k.Key, ErrNotFound)
	}
	return nil
}

// ReleaseRequest drops an in-progress reservation after a failed request so
// the client can retry with the same key.
func (db *DB) ReleaseRequest(ctx context.Context, k RequestKey) error {
	if _, err := db.pool.Exec(ctx,
		`DELETE FROM idempotency_keys
		 WHERE user_id = $1 AND endpoint = $2 AND idempotency_key = $3 AND status = 'in_progress'`,
		k.UserID, k.Endpoint, k.Key,
	); err != nil {
		return fmt.Errorf("storage: release request key: %w", err)
	}
	return nil
}
