package storage

import (
	"context"
	"fmt"

	"github.com/ashita-ai/jobwatch/internal/model"
)

// ListSettingsGroups buckets runs by settings hash. Representatives are
// recomputed on every call: each group is represented by its most recently
// started run, and groups are ordered by that run, newest first.
func (db *DB) ListSettingsGroups(ctx context.Context) ([]model.SettingsGroup, error) {
	rows, err := db.pool.Query(ctx,
		`WITH ranked AS (
		     SELECT run_id, settings_hash, started_at,
		            ROW_NUMBER() OVER (PARTITION BY settings_hash ORDER BY started_at DESC, run_id DESC) AS rn,
		            COUNT(*) OVER (PARTITION BY settings_hash) AS run_count
		     FROM runs
		 )
		 SELECT r.settings_hash, r.run_id, r.started_at, r.run_count,
		        COALESCE(rs.settings_json->>'filter_mode', ''),
		        COALESCE(jsonb_array_length(rs.settings_json->'role_keywords'), 0)
		 FROM ranked r
		 LEFT JOIN run_settings rs ON rs.run_id = r.run_id
		 WHERE r.rn = 1
		 ORDER BY r.started_at DESC, r.run_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list settings groups: %w", err)
	}
	defer rows.Close()

	var groups []model.SettingsGroup
	for rows.Next() {
		var (
			g         model.SettingsGroup
			mode      string
			roleCount int
		)
		if err := rows.Scan(&g.SettingsHash, &g.RepresentativeRunID, &g.LastRunStartedAt, &g.RunCount, &mode, &roleCount); err != nil {
			return nil, fmt.Errorf("storage: scan settings group: %w", err)
		}
		g.Label = groupLabel(g.SettingsHash, mode, roleCount)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func groupLabel(hash, mode string, roleCount int) string {
	short := hash
	if len(short) > 8 {
		short = short[:8]
	}
	if mode == "" {
		mode = string(model.FilterModeSmart)
	}
	return fmt.Sprintf("%s, %d role keywords (%s)", mode, roleCount, short)
}
