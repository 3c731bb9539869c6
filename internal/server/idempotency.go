package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ashita-ai/jobwatch/internal/ctxutil"
	"github.com/ashita-ai/jobwatch/internal/model"
	"github.com/ashita-ai/jobwatch/internal/storage"
)

const maxIdempotencyKeyLen = 255

// idempotencyKey returns the trimmed Idempotency-Key header, if any.
func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}

func requestHash(payload any) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// beginIdempotentWrite reserves the request's Idempotency-Key or replays the
// stored response. It returns (nil, true) when the header is absent and
// (nil, false) once a response has been written.
func (h *Handlers) beginIdempotentWrite(w http.ResponseWriter, r *http.Request, endpoint string, payload any) (*storage.RequestKey, bool) {
	key := idempotencyKey(r)
	if key == "" {
		return nil, true
	}
	if len(key) > maxIdempotencyKeyLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			fmt.Sprintf("Idempotency-Key must be at most %d characters", maxIdempotencyKeyLen))
		return nil, false
	}

	hash, err := requestHash(payload)
	if err != nil {
		h.writeInternalError(w, r, "failed to hash idempotency payload", err)
		return nil, false
	}

	rk := &storage.RequestKey{UserID: h.userIDFor(r), Endpoint: endpoint, Key: key}
	replay, err := h.db.ReserveRequest(r.Context(), *rk, hash)
	switch {
	case errors.Is(err, storage.ErrRequestKeyReused):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "idempotency key reused with different payload")
		return nil, false
	case errors.Is(err, storage.ErrRequestInFlight):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "request with this idempotency key is already in progress")
		return nil, false
	case err != nil:
		h.writeInternalError(w, r, "idempotency lookup failed", err)
		return nil, false
	case replay == nil:
		return rk, true
	}

	var body any
	if len(replay.Body) > 0 {
		if err := json.Unmarshal(replay.Body, &body); err != nil {
			h.writeInternalError(w, r, "failed to decode idempotent replay", err)
			return nil, false
		}
	}
	status := replay.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Idempotent-Replayed", "true")
	writeJSON(w, r, status, body)
	return nil, false
}

// completeIdempotentWrite records the response for rk after the mutation
// has committed. Failures are logged, never surfaced: the client already has
// its answer and a retry would only see the key in progress.
func (h *Handlers) completeIdempotentWrite(r *http.Request, rk *storage.RequestKey, statusCode int, data any) {
	if rk == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 10*time.Second)
	defer cancel()

	err := storage.WithRetry(ctx, 2, 50*time.Millisecond, func() error {
		return h.db.CompleteRequest(ctx, *rk, statusCode, data)
	})
	if err != nil {
		h.logger.Error("failed to finalize idempotency record",
			"error", err,
			"endpoint", rk.Endpoint,
			"request_id", ctxutil.RequestIDFromContext(r.Context()),
		)
	}
}

// clearIdempotentWrite releases a reserved key after a failure so the client
// can retry with the same key.
func (h *Handlers) clearIdempotentWrite(r *http.Request, rk *storage.RequestKey) {
	if rk == nil {
		return
	}
	if err := h.db.ReleaseRequest(context.WithoutCancel(r.Context()), *rk); err != nil {
		h.logger.Error("failed to clear idempotency record",
			"error", err,
			"endpoint", rk.Endpoint,
		)
	}
}
