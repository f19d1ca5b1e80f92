package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/djhieudonald74-stack/asset-registry/internal/model"
	"github.com/djhieudonald74-stack/asset-registry/internal/store"
)

// InsertCacheStatesIgnoreConflict bulk-inserts CacheState rows, letting the unique
// index on file_path silently drop conflicting rows (spec §4.3 step 2 — "the
// unique index on file_path is the sole arbiter of contention").
func (o *ops) InsertCacheStatesIgnoreConflict(ctx context.Context, rows []store.CacheStateInsert) error {
	const cols = 6
	for _, r := range chunkRanges(len(rows), o.chunkSize(cols)) {
		batch := rows[r[0]:r[1]]
		var b strings.Builder
		b.WriteString("INSERT INTO cache_states (id, asset_id, file_path, mtime_ns, needs_verify, is_missing) VALUES ")
		args := make([]any, 0, len(batch)*cols)
		for i, row := range batch {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(o.dialect.rowPlaceholders(len(args), cols))
			args = append(args, uuid.New().String(), row.AssetID.String(), row.FilePath, row.MtimeNs, false, false)
		}
		b.WriteString(" ON CONFLICT (file_path) DO NOTHING")
		if _, err := o.db.ExecContext(ctx, b.String(), args...); err != nil {
			return fmt.Errorf("bulk inserting cache states: %w", err)
		}
	}
	return nil
}

// ResolveWinningPaths implements spec §4.3 step 3: a path is a winner iff the row
// that now owns file_path carries the asset ID our batch assigned to it.
func (o *ops) ResolveWinningPaths(ctx context.Context, ourAssetIDByPath map[string]uuid.UUID) ([]string, error) {
	paths := make([]string, 0, len(ourAssetIDByPath))
	for p := range ourAssetIDByPath {
		paths = append(paths, p)
	}
	var winners []string
	for _, r := range chunkRanges(len(paths), o.chunkSize(1)) {
		batch := paths[r[0]:r[1]]
		placeholders := o.dialect.phList(0, len(batch))
		args := make([]any, len(batch))
		for i, p := range batch {
			args[i] = p
		}
		query := "SELECT file_path, asset_id FROM cache_states WHERE file_path IN (" + strings.Join(placeholders, ",") + ")"
		rows, err := o.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("resolving winning paths: %w", err)
		}
		err = func() error {
			defer rows.Close()
			for rows.Next() {
				var path, assetIDStr string
				if err := rows.Scan(&path, &assetIDStr); err != nil {
					return fmt.Errorf("scanning cache state: %w", err)
				}
				if want, ok := ourAssetIDByPath[path]; ok && want.String() == assetIDStr {
					winners = append(winners, path)
				}
			}
			return rows.Err()
		}()
		if err != nil {
			return nil, err
		}
	}
	return winners, nil
}

// UpsertCacheState implements spec §4.2's upsert_cache_state: creates the row if
// absent, otherwise updates asset_id/mtime_ns and clears is_missing if anything
// changed. Atomicity across the read-then-write is the caller's responsibility
// (run inside a Tx) when concurrent writers might touch the same path.
func (o *ops) UpsertCacheState(ctx context.Context, assetID uuid.UUID, path string, mtimeNs *int64) (created, updated bool, err error) {
	row := o.db.QueryRowContext(ctx,
		"SELECT asset_id, mtime_ns, is_missing FROM cache_states WHERE file_path = "+o.dialect.ph(1), path)
	var existingAssetID string
	var existingMtime sql.NullInt64
	var existingMissing bool
	scanErr := row.Scan(&existingAssetID, &existingMtime, &existingMissing)
	if scanErr == sql.ErrNoRows {
		_, err = o.db.ExecContext(ctx,
			"INSERT INTO cache_states (id, asset_id, file_path, mtime_ns, needs_verify, is_missing) VALUES "+
				o.dialect.rowPlaceholders(0, 6),
			uuid.New().String(), assetID.String(), path, mtimeNs, false, false)
		if err != nil {
			return false, false, fmt.Errorf("inserting cache state: %w", err)
		}
		return true, false, nil
	}
	if scanErr != nil {
		return false, false, fmt.Errorf("reading cache state: %w", scanErr)
	}

	sameAsset := existingAssetID == assetID.String()
	sameMtime := (existingMtime.Valid == (mtimeNs != nil)) && (!existingMtime.Valid || existingMtime.Int64 == *mtimeNs)
	if sameAsset && sameMtime && !existingMissing {
		return false, false, nil
	}
	_, err = o.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE cache_states SET asset_id = %s, mtime_ns = %s, is_missing = %s WHERE file_path = %s",
			o.dialect.ph(1), o.dialect.ph(2), falseLiteral(o.dialect), o.dialect.ph(3)),
		assetID.String(), mtimeNs, path)
	if err != nil {
		return false, false, fmt.Errorf("updating cache state: %w", err)
	}
	return false, true, nil
}

// RestoreCacheStatesByPaths clears is_missing on the given paths (spec §4.2).
func (o *ops) RestoreCacheStatesByPaths(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	for _, r := range chunkRanges(len(paths), o.chunkSize(1)) {
		batch := paths[r[0]:r[1]]
		placeholders := o.dialect.phList(0, len(batch))
		args := make([]any, len(batch))
		for i, p := range batch {
			args[i] = p
		}
		query := "UPDATE cache_states SET is_missing = " + falseLiteral(o.dialect) +
			" WHERE file_path IN (" + strings.Join(placeholders, ",") + ")"
		if _, err := o.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("restoring cache states: %w", err)
		}
	}
	return nil
}

// MarkCacheStatesMissingOutsidePrefixes flips is_missing for every active row
// whose file_path does not start with any listed prefix + separator (spec §4.2).
// Idempotent by construction (spec invariant 6): re-running with the same prefix
// set only ever sets is_missing for rows already satisfying the predicate.
func (o *ops) MarkCacheStatesMissingOutsidePrefixes(ctx context.Context, prefixes []string) (int64, error) {
	if len(prefixes) == 0 {
		res, err := o.db.ExecContext(ctx, "UPDATE cache_states SET is_missing = "+trueLiteral(o.dialect)+" WHERE is_missing = "+falseLiteral(o.dialect))
		if err != nil {
			return 0, fmt.Errorf("marking all cache states missing: %w", err)
		}
		n, _ := res.RowsAffected()
		return n, nil
	}
	var conds []string
	args := make([]any, 0, len(prefixes))
	for i, p := range prefixes {
		conds = append(conds, "file_path LIKE "+o.dialect.ph(i+1)+" ESCAPE '\\'")
		args = append(args, escapeLikePrefix(p)+string(pathSeparator)+"%")
	}
	query := "UPDATE cache_states SET is_missing = " + trueLiteral(o.dialect) +
		" WHERE is_missing = " + falseLiteral(o.dialect) + " AND NOT (" + strings.Join(conds, " OR ") + ")"
	res, err := o.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("marking cache states missing outside prefixes: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

const pathSeparator = '/'

func escapeLikePrefix(p string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(p)
}

// GetActiveCacheStatesUnderPrefixes returns every active CacheState whose path
// starts with one of the given prefixes, joined with its Asset's hash/size (spec
// §4.4 step 2).
func (o *ops) GetActiveCacheStatesUnderPrefixes(ctx context.Context, prefixes []string) ([]store.CacheStateWithAsset, error) {
	if len(prefixes) == 0 {
		return nil, nil
	}
	var conds []string
	args := make([]any, 0, len(prefixes))
	for i, p := range prefixes {
		conds = append(conds, "cs.file_path LIKE "+o.dialect.ph(i+1)+" ESCAPE '\\'")
		args = append(args, escapeLikePrefix(p)+string(pathSeparator)+"%")
	}
	query := `SELECT cs.id, cs.asset_id, cs.file_path, cs.mtime_ns, cs.needs_verify, cs.is_missing, a.hash, a.size_bytes
		FROM cache_states cs JOIN assets a ON a.id = cs.asset_id
		WHERE cs.is_missing = ` + falseLiteral(o.dialect) + ` AND (` + strings.Join(conds, " OR ") + `)`
	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying active cache states under prefixes: %w", err)
	}
	defer rows.Close()
	var out []store.CacheStateWithAsset
	for rows.Next() {
		var idStr, assetIDStr, path string
		var mtimeNs sql.NullInt64
		var needsVerify, isMissing bool
		var hash sql.NullString
		var size int64
		if err := rows.Scan(&idStr, &assetIDStr, &path, &mtimeNs, &needsVerify, &isMissing, &hash, &size); err != nil {
			return nil, fmt.Errorf("scanning cache state row: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		assetID, err := uuid.Parse(assetIDStr)
		if err != nil {
			return nil, err
		}
		cs := model.CacheState{ID: id, AssetID: assetID, FilePath: path, NeedsVerify: needsVerify, IsMissing: isMissing}
		if mtimeNs.Valid {
			cs.MtimeNs = &mtimeNs.Int64
		}
		item := store.CacheStateWithAsset{CacheState: cs, AssetSize: size}
		if hash.Valid {
			item.AssetHash = &hash.String
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (o *ops) SetCacheStateVerify(ctx context.Context, id uuid.UUID, needsVerify bool) error {
	_, err := o.db.ExecContext(ctx,
		"UPDATE cache_states SET needs_verify = "+o.dialect.ph(1)+" WHERE id = "+o.dialect.ph(2),
		needsVerify, id.String())
	if err != nil {
		return fmt.Errorf("setting cache state verify flag: %w", err)
	}
	return nil
}

func (o *ops) DeleteCacheStates(ctx context.Context, ids []uuid.UUID) error {
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
		query := "DELETE FROM cache_states WHERE id IN (" + strings.Join(placeholders, ",") + ")"
		if _, err := o.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("deleting cache states: %w", err)
		}
	}
	return nil
}

func (o *ops) GetCacheStatesByAsset(ctx context.Context, assetID uuid.UUID) ([]model.CacheState, error) {
	rows, err := o.db.QueryContext(ctx,
		"SELECT id, asset_id, file_path, mtime_ns, needs_verify, is_missing FROM cache_states WHERE asset_id = "+o.dialect.ph(1),
		assetID.String())
	if err != nil {
		return nil, fmt.Errorf("querying cache states by asset: %w", err)
	}
	defer rows.Close()
	var out []model.CacheState
	for rows.Next() {
		var idStr, assetIDStr, path string
		var mtimeNs sql.NullInt64
		var needsVerify, isMissing bool
		if err := rows.Scan(&idStr, &assetIDStr, &path, &mtimeNs, &needsVerify, &isMissing); err != nil {
			return nil, fmt.Errorf("scanning cache state: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		aid, err := uuid.Parse(assetIDStr)
		if err != nil {
			return nil, err
		}
		cs := model.CacheState{ID: id, AssetID: aid, FilePath: path, NeedsVerify: needsVerify, IsMissing: isMissing}
		if mtimeNs.Valid {
			cs.MtimeNs = &mtimeNs.Int64
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}
