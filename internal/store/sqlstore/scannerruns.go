package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/djhieudonald74-stack/asset-registry/internal/model"
)

func (o *ops) InsertScannerRun(ctx context.Context, run model.ScannerRun) error {
	_, err := o.db.ExecContext(ctx,
		"INSERT INTO scanner_runs (id, phase, state, started_at, finished_at, scanned, created, skipped, error_count) VALUES "+
			o.dialect.rowPlaceholders(0, 9),
		run.ID.String(), string(run.Phase), string(run.State), run.StartedAt, run.FinishedAt,
		run.Scanned, run.Created, run.Skipped, run.ErrorCount)
	if err != nil {
		return fmt.Errorf("inserting scanner run: %w", err)
	}
	return nil
}

func (o *ops) UpdateScannerRun(ctx context.Context, run model.ScannerRun) error {
	query := fmt.Sprintf(
		"UPDATE scanner_runs SET phase = %s, state = %s, finished_at = %s, scanned = %s, created = %s, skipped = %s, error_count = %s WHERE id = %s",
		o.dialect.ph(1), o.dialect.ph(2), o.dialect.ph(3), o.dialect.ph(4), o.dialect.ph(5), o.dialect.ph(6), o.dialect.ph(7), o.dialect.ph(8))
	_, err := o.db.ExecContext(ctx, query,
		string(run.Phase), string(run.State), run.FinishedAt, run.Scanned, run.Created, run.Skipped, run.ErrorCount, run.ID.String())
	if err != nil {
		return fmt.Errorf("updating scanner run: %w", err)
	}
	return nil
}

func (o *ops) ListScannerRuns(ctx context.Context, limit int) ([]model.ScannerRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT id, phase, state, started_at, finished_at, scanned, created, skipped, error_count FROM scanner_runs ORDER BY started_at DESC LIMIT " + o.dialect.ph(1)
	rows, err := o.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing scanner runs: %w", err)
	}
	defer rows.Close()
	var out []model.ScannerRun
	for rows.Next() {
		var run model.ScannerRun
		var idStr, phase, state string
		var finishedAt sql.NullTime
		if err := rows.Scan(&idStr, &phase, &state, &run.StartedAt, &finishedAt, &run.Scanned, &run.Created, &run.Skipped, &run.ErrorCount); err != nil {
			return nil, fmt.Errorf("scanning scanner run: %w", err)
		}
		id, err := parseUUID(idStr)
		if err != nil {
			return nil, err
		}
		run.ID = id
		run.Phase = phase
		run.State = model.ScannerRunState(state)
		if finishedAt.Valid {
			t := finishedAt.Time
			run.FinishedAt = &t
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
