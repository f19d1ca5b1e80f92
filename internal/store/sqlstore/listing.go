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

func sortColumn(f store.SortField) string {
	switch f {
	case store.SortName:
		return "r.name"
	case store.SortCreatedAt:
		return "r.created_at"
	case store.SortUpdatedAt:
		return "r.updated_at"
	case store.SortSize:
		return "a.size_bytes"
	default:
		return "r.last_access_time"
	}
}

// metadataExistsClause builds the predicate for one metadata key against an
// OR'd list of candidate values (spec §4.6: "values for the same key OR
// together; different keys AND together"; a null value matches both an
// explicit-null row and an absent key).
func (o *ops) metadataExistsClause(key string, values []model.MetaValue, n *int, args *[]any) string {
	*n++
	keyPh := o.dialect.ph(*n)
	*args = append(*args, key)
	absentClause := "NOT EXISTS (SELECT 1 FROM reference_meta m WHERE m.reference_id = r.id AND m.key = " + keyPh + ")"
	if len(values) == 0 {
		return "EXISTS (SELECT 1 FROM reference_meta m WHERE m.reference_id = r.id AND m.key = " + keyPh + ")"
	}
	var valConds []string
	wantsNull := false
	for _, v := range values {
		switch v.Kind {
		case model.MetaNull:
			wantsNull = true
			valConds = append(valConds, "m.val_kind = "+fmt.Sprint(int(model.MetaNull)))
		case model.MetaBool:
			*n++
			valConds = append(valConds, "m.val_bool = "+o.dialect.ph(*n))
			*args = append(*args, v.Bool)
		case model.MetaNum:
			*n++
			valConds = append(valConds, "m.val_num = "+o.dialect.ph(*n))
			*args = append(*args, v.Num.String())
		case model.MetaStr:
			*n++
			valConds = append(valConds, "m.val_str = "+o.dialect.ph(*n))
			*args = append(*args, v.Str)
		case model.MetaJSON:
			// Object/list values aren't individually matchable; presence of the
			// key is the closest we filter on.
			valConds = append(valConds, "m.val_kind = "+fmt.Sprint(int(model.MetaJSON)))
		}
	}
	existsClause := "EXISTS (SELECT 1 FROM reference_meta m WHERE m.reference_id = r.id AND m.key = " + keyPh +
		" AND (" + strings.Join(valConds, " OR ") + "))"
	if wantsNull {
		return "(" + existsClause + " OR " + absentClause + ")"
	}
	return existsClause
}

// ListAssetsPage implements spec §4.6: owner visibility, include/exclude tags,
// name substring, metadata filter, sort, and a total count under the same
// predicate.
func (o *ops) ListAssetsPage(ctx context.Context, filter store.ListFilter) (model.Page[model.AssetListItem], error) {
	var where []string
	var args []any
	n := 0
	next := func(v any) string { n++; args = append(args, v); return o.dialect.ph(n) }

	where = append(where, "(r.owner_id = "+next("")+" OR r.owner_id = "+next(filter.OwnerID)+")")

	if filter.NameContains != "" {
		where = append(where, "r.name LIKE "+next("%"+escapeLikePrefix(filter.NameContains)+"%")+" ESCAPE '\\'")
	}
	for _, tag := range filter.IncludeTags {
		ph := next(tag)
		where = append(where, "EXISTS (SELECT 1 FROM reference_tags rt WHERE rt.reference_id = r.id AND rt.tag_name = "+ph+")")
	}
	for _, tag := range filter.ExcludeTags {
		ph := next(tag)
		where = append(where, "NOT EXISTS (SELECT 1 FROM reference_tags rt WHERE rt.reference_id = r.id AND rt.tag_name = "+ph+")")
	}
	for key, values := range filter.MetadataFilter {
		where = append(where, o.metadataExistsClause(key, values, &n, &args))
	}
	if filter.EnrichmentMax != nil {
		where = append(where, "r.enrichment_level < "+next(int(*filter.EnrichmentMax)))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM asset_references r JOIN assets a ON a.id = r.asset_id" + whereClause
	var total int64
	if err := o.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return model.Page[model.AssetListItem]{}, fmt.Errorf("counting asset list page: %w", err)
	}

	order := "DESC"
	if filter.Order == store.OrderAsc {
		order = "ASC"
	}
	// r.id as a tiebreak so identical sort keys still produce a stable order
	// across pages (spec invariant 9).
	orderClause := " ORDER BY " + sortColumn(filter.Sort) + " " + order + ", r.id ASC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	limitPh := next(limit)
	offsetPh := next(filter.Offset)

	query := `
		SELECT r.id, r.asset_id, r.owner_id, r.name, r.preview_id, r.user_metadata,
		       r.created_at, r.updated_at, r.last_access_time, r.enrichment_level,
		       a.hash, a.size_bytes, a.mime_type, a.created_at
		FROM asset_references r JOIN assets a ON a.id = r.asset_id` +
		whereClause + orderClause + " LIMIT " + limitPh + " OFFSET " + offsetPh

	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return model.Page[model.AssetListItem]{}, fmt.Errorf("listing asset page: %w", err)
	}
	defer rows.Close()

	var items []model.AssetListItem
	var refIDs []uuid.UUID
	byRef := map[uuid.UUID]*model.AssetListItem{}
	for rows.Next() {
		var ref model.AssetReference
		var asset model.Asset
		var idStr, assetIDStr string
		var previewID, hash, mime sql.NullString
		var meta []byte
		if err := rows.Scan(&idStr, &assetIDStr, &ref.OwnerID, &ref.Name, &previewID, &meta,
			&ref.CreatedAt, &ref.UpdatedAt, &ref.LastAccessTime, &ref.EnrichmentLevel,
			&hash, &asset.SizeBytes, &mime, &asset.CreatedAt); err != nil {
			return model.Page[model.AssetListItem]{}, fmt.Errorf("scanning asset list row: %w", err)
		}
		id, err := parseUUID(idStr)
		if err != nil {
			return model.Page[model.AssetListItem]{}, err
		}
		assetID, err := parseUUID(assetIDStr)
		if err != nil {
			return model.Page[model.AssetListItem]{}, err
		}
		ref.ID = id
		ref.AssetID = assetID
		ref.UserMetadata = meta
		if previewID.Valid {
			pid, err := parseUUID(previewID.String)
			if err != nil {
				return model.Page[model.AssetListItem]{}, err
			}
			ref.PreviewID = &pid
		}
		asset.ID = assetID
		if hash.Valid {
			asset.Hash = &hash.String
		}
		if mime.Valid {
			asset.MimeType = &mime.String
		}
		item := model.AssetListItem{Reference: ref, Asset: asset}
		items = append(items, item)
		refIDs = append(refIDs, id)
	}
	if err := rows.Err(); err != nil {
		return model.Page[model.AssetListItem]{}, err
	}
	for i := range items {
		byRef[items[i].Reference.ID] = &items[i]
	}
	if err := o.attachTagNames(ctx, refIDs, byRef); err != nil {
		return model.Page[model.AssetListItem]{}, err
	}
	return model.Page[model.AssetListItem]{Items: items, Total: total}, nil
}

func (o *ops) attachTagNames(ctx context.Context, refIDs []uuid.UUID, byRef map[uuid.UUID]*model.AssetListItem) error {
	if len(refIDs) == 0 {
		return nil
	}
	for _, r := range chunkRanges(len(refIDs), o.chunkSize(1)) {
		batch := refIDs[r[0]:r[1]]
		placeholders := o.dialect.phList(0, len(batch))
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id.String()
		}
		query := "SELECT reference_id, tag_name FROM reference_tags WHERE reference_id IN (" + strings.Join(placeholders, ",") + ")"
		rows, err := o.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("querying reference tags for listing: %w", err)
		}
		err = func() error {
			defer rows.Close()
			for rows.Next() {
				var refIDStr, tagName string
				if err := rows.Scan(&refIDStr, &tagName); err != nil {
					return err
				}
				refID, err := parseUUID(refIDStr)
				if err != nil {
					return err
				}
				if item, ok := byRef[refID]; ok {
					item.Tags = append(item.Tags, tagName)
				}
			}
			return rows.Err()
		}()
		if err != nil {
			return err
		}
	}
	return nil
}

// GetAssetDetail implements spec §4.6 get_asset_detail: the reference, its
// asset, all tags, and all cache states for that asset.
func (o *ops) GetAssetDetail(ctx context.Context, id uuid.UUID) (*model.AssetDetail, error) {
	ref, err := o.GetReferenceByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, nil
	}
	asset, err := o.GetAssetByID(ctx, ref.AssetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, fmt.Errorf("reference %s points at missing asset %s", id, ref.AssetID)
	}
	rows, err := o.db.QueryContext(ctx,
		"SELECT reference_id, tag_name, origin, added_at FROM reference_tags WHERE reference_id = "+o.dialect.ph(1), id.String())
	if err != nil {
		return nil, fmt.Errorf("querying reference tags: %w", err)
	}
	var tags []model.ReferenceTag
	err = func() error {
		defer rows.Close()
		for rows.Next() {
			var rt model.ReferenceTag
			var refIDStr, origin string
			if err := rows.Scan(&refIDStr, &rt.TagName, &origin, &rt.AddedAt); err != nil {
				return err
			}
			refID, err := parseUUID(refIDStr)
			if err != nil {
				return err
			}
			rt.ReferenceID = refID
			rt.Origin = model.TagOrigin(origin)
			tags = append(tags, rt)
		}
		return rows.Err()
	}()
	if err != nil {
		return nil, err
	}
	cacheStates, err := o.GetCacheStatesByAsset(ctx, ref.AssetID)
	if err != nil {
		return nil, err
	}
	return &model.AssetDetail{Reference: *ref, Asset: *asset, Tags: tags, CacheStates: cacheStates}, nil
}
