package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/jobwatch/internal/model"
)

// GetSettings returns the stored settings document of a user. A user who
// never saved settings gets the zero document, which evaluates with defaults.
func (db *DB) GetSettings(ctx context.Context, userID string) (model.Settings, error) {
	var raw []byte
	err := db.pool.QueryRow(ctx, `SELECT settings_json FROM settings WHERE user_id = $1`, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Settings{}, nil
		}
		return model.Settings{}, fmt.Errorf("storage: get settings: %w", err)
	}
	s, err := model.ParseSettings(raw)
	if err != nil {
		return model.Settings{}, fmt.Errorf("storage: decode settings: %w", err)
	}
	return s, nil
}

// PutSettings validates and replaces the user's settings document. Absent
// fields are stored absent; defaults are applied when a run reads them.
func (db *DB) PutSettings(ctx context.Context, userID string, s model.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO settings (user_id, settings_json, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET settings_json = EXCLUDED.settings_json, updated_at = EXCLUDED.updated_at`,
		userID, s, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storage: put settings: %w", err)
	}
	return nil
}
