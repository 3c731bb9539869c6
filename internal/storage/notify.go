package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/jobwatch/internal/model"
)

// ChannelRuns carries a model.RunEvent each time a run finishes.
const ChannelRuns = "jobwatch_runs"

var errNoNotifyConn = errors.New("storage: notify connection not configured")

// HasNotify reports whether a dedicated LISTEN connection is configured.
func (db *DB) HasNotify() bool {
	return db.notifyConn != nil
}

// Listen subscribes the notify connection to channel.
func (db *DB) Listen(ctx context.Context, channel string) error {
	if db.notifyConn == nil {
		return errNoNotifyConn
	}
	if _, err := db.notifyConn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return fmt.Errorf("storage: listen %s: %w", channel, err)
	}
	return nil
}

// WaitForNotification blocks until a notification arrives on a listened
// channel or ctx ends.
func (db *DB) WaitForNotification(ctx context.Context) (channel, payload string, err error) {
	if db.notifyConn == nil {
		return "", "", errNoNotifyConn
	}
	n, err := db.notifyConn.WaitForNotification(ctx)
	if err != nil {
		return "", "", fmt.Errorf("storage: wait for notification: %w", err)
	}
	return n.Channel, n.Payload, nil
}

// NotifyRunFinished publishes ev on ChannelRuns. It goes through the pool,
// so processes without a LISTEN connection (e.g. `jobwatch run`) still
// reach a serving process's SSE clients.
func (db *DB) NotifyRunFinished(ctx context.Context, ev model.RunEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("storage: encode run event: %w", err)
	}
	if _, err := db.pool.Exec(ctx, "SELECT pg_notify($1, $2)", ChannelRuns, string(payload)); err != nil {
		return fmt.Errorf("storage: notify %s: %w", ChannelRuns, err)
	}
	return nil
}
