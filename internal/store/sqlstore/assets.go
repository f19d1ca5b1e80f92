package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/djhieudonald74-stack/asset-registry/internal/model"
	"github.com/djhieudonald74-stack/asset-registry/internal/store"
)

// InsertAssetStubs bulk-inserts Asset rows (stub or pre-hashed), chunked under the
// bind-parameter ceiling, per spec §4.3 step 1.
func (o *ops) InsertAssetStubs(ctx context.Context, rows []store.AssetStub) error {
	const cols = 5
	size := o.chunkSize(cols)
	now := time.Now().UTC()
	for _, r := range chunkRanges(len(rows), size) {
		batch := rows[r[0]:r[1]]
		var b strings.Builder
		b.WriteString("INSERT INTO assets (id, hash, size_bytes, mime_type, created_at) VALUES ")
		args := make([]any, 0, len(batch)*cols)
		for i, row := range batch {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(o.dialect.rowPlaceholders(len(args), cols))
			args = append(args, row.ID.String(), row.Hash, row.SizeBytes, row.MimeType, now)
		}
		if _, err := o.db.ExecContext(ctx, b.String(), args...); err != nil {
			return fmt.Errorf("bulk inserting asset stubs: %w", err)
		}
	}
	return nil
}

func (o *ops) GetAssetByHash(ctx context.Context, hash string) (*model.Asset, error) {
	row := o.db.QueryRowContext(ctx,
		"SELECT id, hash, size_bytes, mime_type, created_at FROM assets WHERE hash = "+o.dialect.ph(1), hash)
	return scanAsset(row)
}

func (o *ops) GetAssetByID(ctx context.Context, id uuid.UUID) (*model.Asset, error) {
	row := o.db.QueryRowContext(ctx,
		"SELECT id, hash, size_bytes, mime_type, created_at FROM assets WHERE id = "+o.dialect.ph(1), id.String())
	return scanAsset(row)
}

func scanAsset(row *sql.Row) (*model.Asset, error) {
	var a model.Asset
	var idStr string
	var hash, mime sql.NullString
	var createdAt time.Time
	if err := row.Scan(&idStr, &hash, &a.SizeBytes, &mime, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning asset: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parsing asset id: %w", err)
	}
	a.ID = id
	a.CreatedAt = createdAt
	if hash.Valid {
		a.Hash = &hash.String
	}
	if mime.Valid {
		a.MimeType = &mime.String
	}
	return &a, nil
}

func (o *ops) DeleteAssets(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	for _, r := range chunkRanges(len(ids), o.chunkSize(1)) {
		batch := ids[r[0]:r[1]]
		placeholders := o.dialect.phList(0, len(batch))
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id.String()
		}
		query := "DELETE FROM assets WHERE id IN (" + strings.Join(placeholders, ",") + ")"
		if _, err := o.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("deleting assets: %w", err)
		}
	}
	return nil
}

func (o *ops) PromoteAssetToHashed(ctx context.Context, id uuid.UUID, hash string, sizeBytes int64, mimeType *string) error {
	query := fmt.Sprintf("UPDATE assets SET hash = %s, size_bytes = %s, mime_type = %s WHERE id = %s",
		o.dialect.ph(1), o.dialect.ph(2), o.dialect.ph(3), o.dialect.ph(4))
	_, err := o.db.ExecContext(ctx, query, hash, sizeBytes, mimeType, id.String())
	if err != nil {
		return fmt.Errorf("promoting asset to hashed: %w", err)
	}
	return nil
}

func (o *ops) SetAssetMimeType(ctx context.Context, id uuid.UUID, mimeType string) error {
	query := fmt.Sprintf("UPDATE assets SET mime_type = %s WHERE id = %s", o.dialect.ph(1), o.dialect.ph(2))
	_, err := o.db.ExecContext(ctx, query, mimeType, id.String())
	if err != nil {
		return fmt.Errorf("setting asset mime type: %w", err)
	}
	return nil
}

// GetUnreferencedUnhashedAssetIDs returns stub assets with no active cache state
// and no reference, per spec §4.2.
func (o *ops) GetUnreferencedUnhashedAssetIDs(ctx context.Context) ([]uuid.UUID, error) {
	query := `
		SELECT a.id FROM assets a
		WHERE a.hash IS NULL
		  AND NOT EXISTS (SELECT 1 FROM cache_states cs WHERE cs.asset_id = a.id AND cs.is_missing = ` + falseLiteral(o.dialect) + `)
		  AND NOT EXISTS (SELECT 1 FROM asset_references r WHERE r.asset_id = a.id)
	`
	rows, err := o.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying unreferenced unhashed assets: %w", err)
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, fmt.Errorf("scanning asset id: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parsing asset id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (o *ops) AssetHasReferenceOrActiveCacheState(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(
		SELECT 1 FROM asset_references WHERE asset_id = ` + o.dialect.ph(1) + `
		UNION ALL
		SELECT 1 FROM cache_states WHERE asset_id = ` + o.dialect.ph(2) + ` AND is_missing = ` + falseLiteral(o.dialect) + `
	)`
	row := o.db.QueryRowContext(ctx, query, id.String(), id.String())
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("checking asset references: %w", err)
	}
	return exists, nil
}

// falseLiteral returns a boolean-false SQL literal usable with both backends.
func falseLiteral(d Dialect) string {
	if d == DialectPostgres {
		return "FALSE"
	}
	return "0"
}

// trueLiteral returns a boolean-true SQL literal usable with both backends.
func trueLiteral(d Dialect) string {
	if d == DialectPostgres {
		return "TRUE"
	}
	return "1"
}
