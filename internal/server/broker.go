package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/jobwatch/internal/model"
	"github.com/ashita-ai/jobwatch/internal/storage"
)

// subscriberBuffer is how many run events a slow SSE client may lag behind
// before it starts missing them.
const subscriberBuffer = 64

// Broker relays finished-run notifications from Postgres to SSE clients.
type Broker struct {
	db     *storage.DB
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[chan []byte]struct{}
	dropped     atomic.Int64
}

// NewBroker creates a broker. Call Start to begin listening.
func NewBroker(db *storage.DB, logger *slog.Logger) *Broker {
	return &Broker{
		db:          db,
		logger:      logger,
		subscribers: make(map[chan []byte]struct{}),
	}
}

// Start LISTENs on storage.ChannelRuns and blocks until ctx is cancelled.
func (b *Broker) Start(ctx context.Context) {
	if err := b.db.Listen(ctx, storage.ChannelRuns); err != nil {
		b.logger.Error("broker: listen runs", "error", err)
		return
	}
	b.logger.Info("broker: listening for run events", "channel", storage.ChannelRuns)

	for {
		_, payload, err := b.db.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Warn("broker: notification error, retrying", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		b.publish(payload)
	}
}

// publish decodes one notification and broadcasts it. Payloads that are not
// run events are logged and dropped.
func (b *Broker) publish(payload string) {
	var ev model.RunEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil || ev.RunID == uuid.Nil {
		b.logger.Warn("broker: ignoring malformed run event", "payload", payload, "error", err)
		return
	}
	b.broadcast(formatRunEvent(ev))
}

// Subscribe registers a new SSE client. The caller must Unsubscribe.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
	close(ch)
}

// broadcast never blocks: a subscriber whose buffer is full misses the
// event and can catch up with GET /v1/runs.
func (b *Broker) broadcast(event []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			if n := b.dropped.Add(1); n == 1 || n%100 == 0 {
				b.logger.Warn("broker: slow subscriber missed run events", "dropped_total", n)
			}
		}
	}
}

// formatRunEvent renders ev as an SSE message named after the run's final
// status ("run.completed", "run.aborted", ...) with the run id as event id.
func formatRunEvent(ev model.RunEvent) []byte {
	data, _ := json.Marshal(ev)
	return []byte("id: " + ev.RunID.String() + "\nevent: run." + string(ev.Status) + "\ndata: " + string(data) + "\n\n")
}
