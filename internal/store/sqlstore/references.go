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

// InsertReferencesIgnoreConflict bulk-inserts AssetReference rows, conflict
// ignored on (asset_id, owner_id, name) (spec §4.3 step 6).
func (o *ops) InsertReferencesIgnoreConflict(ctx context.Context, rows []store.ReferenceInsert) error {
	const cols = 9
	now := time.Now().UTC()
	for _, r := range chunkRanges(len(rows), o.chunkSize(cols)) {
		batch := rows[r[0]:r[1]]
		var b strings.Builder
		b.WriteString("INSERT INTO asset_references (id, asset_id, owner_id, name, preview_id, user_metadata, created_at, updated_at, last_access_time) VALUES ")
		args := make([]any, 0, len(batch)*cols)
		for i, row := range batch {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(o.dialect.rowPlaceholders(len(args), cols))
			meta := row.UserMetadata
			if meta == nil {
				meta = []byte("{}")
			}
			args = append(args, row.ID.String(), row.AssetID.String(), row.OwnerID, row.Name, nil, meta, now, now, now)
		}
		b.WriteString(" ON CONFLICT (asset_id, owner_id, name) DO NOTHING")
		if _, err := o.db.ExecContext(ctx, b.String(), args...); err != nil {
			return fmt.Errorf("bulk inserting asset references: %w", err)
		}
	}
	return nil
}

// GetAssetReferenceIDsByIDs returns the subset of ids that exist, used in spec
// §4.3 step 7 to learn which references actually landed.
func (o *ops) GetAssetReferenceIDsByIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []uuid.UUID
	for _, r := range chunkRanges(len(ids), o.chunkSize(1)) {
		batch := ids[r[0]:r[1]]
		placeholders := o.dialect.phList(0, len(batch))
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id.String()
		}
		query := "SELECT id FROM asset_references WHERE id IN (" + strings.Join(placeholders, ",") + ")"
		rows, err := o.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("querying reference ids: %w", err)
		}
		err = func() error {
			defer rows.Close()
			for rows.Next() {
				var idStr string
				if err := rows.Scan(&idStr); err != nil {
					return err
				}
				id, err := uuid.Parse(idStr)
				if err != nil {
					return err
				}
				out = append(out, id)
			}
			return rows.Err()
		}()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

const referenceSelectColumns = `id, asset_id, owner_id, name, preview_id, user_metadata, created_at, updated_at, last_access_time, enrichment_level`

func scanReference(row *sql.Row) (*model.AssetReference, error) {
	var ref model.AssetReference
	var idStr, assetIDStr string
	var previewID sql.NullString
	var meta []byte
	if err := row.Scan(&idStr, &assetIDStr, &ref.OwnerID, &ref.Name, &previewID, &meta,
		&ref.CreatedAt, &ref.UpdatedAt, &ref.LastAccessTime, &ref.EnrichmentLevel); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning reference: %w", err)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	assetID, err := uuid.Parse(assetIDStr)
	if err != nil {
		return nil, err
	}
	ref.ID = id
	ref.AssetID = assetID
	ref.UserMetadata = meta
	if previewID.Valid {
		pid, err := uuid.Parse(previewID.String)
		if err != nil {
			return nil, err
		}
		ref.PreviewID = &pid
	}
	return &ref, nil
}

func (o *ops) GetReferenceByID(ctx context.Context, id uuid.UUID) (*model.AssetReference, error) {
	row := o.db.QueryRowContext(ctx,
		"SELECT "+referenceSelectColumns+" FROM asset_references WHERE id = "+o.dialect.ph(1), id.String())
	return scanReference(row)
}

func (o *ops) GetReferenceByAssetOwnerName(ctx context.Context, assetID uuid.UUID, ownerID, name string) (*model.AssetReference, error) {
	row := o.db.QueryRowContext(ctx,
		"SELECT "+referenceSelectColumns+" FROM asset_references WHERE asset_id = "+o.dialect.ph(1)+
			" AND owner_id = "+o.dialect.ph(2)+" AND name = "+o.dialect.ph(3),
		assetID.String(), ownerID, name)
	return scanReference(row)
}

func (o *ops) UpdateReference(ctx context.Context, id uuid.UUID, fields store.UpdateReferenceFields) error {
	var sets []string
	var args []any
	n := 0
	next := func() string { n++; return o.dialect.ph(n) }
	if fields.Name != nil {
		sets = append(sets, "name = "+next())
		args = append(args, *fields.Name)
	}
	if fields.HasMetadata {
		sets = append(sets, "user_metadata = "+next())
		args = append(args, fields.UserMetadata)
	}
	sets = append(sets, "updated_at = "+next())
	args = append(args, time.Now().UTC())
	if len(sets) == 1 {
		// Only updated_at would change; still a no-op from the caller's
		// perspective, but touching updated_at unconditionally would violate
		// the "updated_at is monotonic only on real change" spirit, so skip.
		return nil
	}
	args = append(args, id.String())
	query := "UPDATE asset_references SET " + strings.Join(sets, ", ") + " WHERE id = " + next()
	if _, err := o.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("updating reference: %w", err)
	}
	return nil
}

// SetReferenceEnrichmentLevel advances the reference's enrichment_level
// (spec §4.5 ENRICH phase writes it back alongside hash and metadata).
func (o *ops) SetReferenceEnrichmentLevel(ctx context.Context, id uuid.UUID, level model.EnrichmentLevel) error {
	_, err := o.db.ExecContext(ctx,
		"UPDATE asset_references SET enrichment_level = "+o.dialect.ph(1)+" WHERE id = "+o.dialect.ph(2),
		int(level), id.String())
	if err != nil {
		return fmt.Errorf("setting reference enrichment level: %w", err)
	}
	return nil
}

func (o *ops) SetReferencePreview(ctx context.Context, id uuid.UUID, previewID *uuid.UUID) error {
	var previewArg any
	if previewID != nil {
		previewArg = previewID.String()
	}
	_, err := o.db.ExecContext(ctx,
		"UPDATE asset_references SET preview_id = "+o.dialect.ph(1)+", updated_at = "+o.dialect.ph(2)+" WHERE id = "+o.dialect.ph(3),
		previewArg, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("setting reference preview: %w", err)
	}
	return nil
}

// TouchLastAccessTime updates last_access_time only if at is strictly newer than
// the stored value, per spec §5's monotonicity guarantee.
func (o *ops) TouchLastAccessTime(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := o.db.ExecContext(ctx,
		"UPDATE asset_references SET last_access_time = "+o.dialect.ph(1)+
			" WHERE id = "+o.dialect.ph(2)+" AND last_access_time < "+o.dialect.ph(3),
		at, id.String(), at)
	if err != nil {
		return fmt.Errorf("touching last access time: %w", err)
	}
	return nil
}

func (o *ops) DeleteReference(ctx context.Context, id uuid.UUID) error {
	if _, err := o.db.ExecContext(ctx, "DELETE FROM reference_tags WHERE reference_id = "+o.dialect.ph(1), id.String()); err != nil {
		return fmt.Errorf("deleting reference tags: %w", err)
	}
	if _, err := o.db.ExecContext(ctx, "DELETE FROM reference_meta WHERE reference_id = "+o.dialect.ph(1), id.String()); err != nil {
		return fmt.Errorf("deleting reference meta: %w", err)
	}
	if _, err := o.db.ExecContext(ctx, "DELETE FROM asset_references WHERE id = "+o.dialect.ph(1), id.String()); err != nil {
		return fmt.Errorf("deleting reference: %w", err)
	}
	return nil
}

func (o *ops) CountReferencesForAsset(ctx context.Context, assetID uuid.UUID) (int64, error) {
	var count int64
	row := o.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM asset_references WHERE asset_id = "+o.dialect.ph(1), assetID.String())
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("counting references for asset: %w", err)
	}
	return count, nil
}

// GetReferencesByAsset returns every reference pointing at assetID, used by
// the reconciler's missing-tag bookkeeping (spec §4.4 step 4).
func (o *ops) GetReferencesByAsset(ctx context.Context, assetID uuid.UUID) ([]model.AssetReference, error) {
	rows, err := o.db.QueryContext(ctx,
		"SELECT "+referenceSelectColumns+" FROM asset_references WHERE asset_id = "+o.dialect.ph(1), assetID.String())
	if err != nil {
		return nil, fmt.Errorf("querying references by asset: %w", err)
	}
	defer rows.Close()
	var out []model.AssetReference
	for rows.Next() {
		var ref model.AssetReference
		var idStr, assetIDStr string
		var previewID sql.NullString
		var meta []byte
		if err := rows.Scan(&idStr, &assetIDStr, &ref.OwnerID, &ref.Name, &previewID, &meta,
			&ref.CreatedAt, &ref.UpdatedAt, &ref.LastAccessTime, &ref.EnrichmentLevel); err != nil {
			return nil, fmt.Errorf("scanning reference: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		parsedAssetID, err := uuid.Parse(assetIDStr)
		if err != nil {
			return nil, err
		}
		ref.ID = id
		ref.AssetID = parsedAssetID
		ref.UserMetadata = meta
		if previewID.Valid {
			pid, err := uuid.Parse(previewID.String)
			if err != nil {
				return nil, err
			}
			ref.PreviewID = &pid
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}
