package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/djhieudonald74-stack/asset-registry/internal/model"
	"github.com/djhieudonald74-stack/asset-registry/internal/store"
)

// ensureTags inserts any tag names not already present in the tags table,
// giving them tagType when first seen (spec §4.7: tags are created implicitly
// the first time they're applied).
func (o *ops) ensureTags(ctx context.Context, names []string, tagType string) error {
	if len(names) == 0 {
		return nil
	}
	for _, r := range chunkRanges(len(names), o.chunkSize(2)) {
		batch := names[r[0]:r[1]]
		var b strings.Builder
		b.WriteString("INSERT INTO tags (name, type) VALUES ")
		args := make([]any, 0, len(batch)*2)
		for i, name := range batch {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(o.dialect.rowPlaceholders(len(args), 2))
			args = append(args, name, tagType)
		}
		b.WriteString(" ON CONFLICT (name) DO NOTHING")
		if _, err := o.db.ExecContext(ctx, b.String(), args...); err != nil {
			return fmt.Errorf("ensuring tags exist: %w", err)
		}
	}
	return nil
}

// InsertReferenceTags bulk-inserts reference_tags rows, ignoring conflicts on
// (reference_id, tag_name); used by bulk ingest step 8 for automatic root tags.
func (o *ops) InsertReferenceTags(ctx context.Context, rows []model.ReferenceTag) error {
	if len(rows) == 0 {
		return nil
	}
	names := make([]string, 0, len(rows))
	seen := make(map[string]bool)
	for _, r := range rows {
		if !seen[r.TagName] {
			seen[r.TagName] = true
			names = append(names, r.TagName)
		}
	}
	if err := o.ensureTags(ctx, names, "auto"); err != nil {
		return err
	}
	const cols = 4
	for _, r := range chunkRanges(len(rows), o.chunkSize(cols)) {
		batch := rows[r[0]:r[1]]
		var b strings.Builder
		b.WriteString("INSERT INTO reference_tags (reference_id, tag_name, origin, added_at) VALUES ")
		args := make([]any, 0, len(batch)*cols)
		for i, row := range batch {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(o.dialect.rowPlaceholders(len(args), cols))
			args = append(args, row.ReferenceID.String(), row.TagName, string(row.Origin), row.AddedAt)
		}
		b.WriteString(" ON CONFLICT (reference_id, tag_name) DO NOTHING")
		if _, err := o.db.ExecContext(ctx, b.String(), args...); err != nil {
			return fmt.Errorf("bulk inserting reference tags: %w", err)
		}
	}
	return nil
}

// AddReferenceTags applies tags to one reference (set_tags' add path), reporting
// which names were newly added vs. already present (spec §4.7 idempotency).
func (o *ops) AddReferenceTags(ctx context.Context, referenceID uuid.UUID, names []string, tagType string, origin model.TagOrigin) (added, alreadyPresent []string, err error) {
	if len(names) == 0 {
		return nil, nil, nil
	}
	if err := o.ensureTags(ctx, names, tagType); err != nil {
		return nil, nil, err
	}
	existing := make(map[string]bool)
	placeholders := o.dialect.phList(1, len(names))
	args := make([]any, 0, len(names)+1)
	args = append(args, referenceID.String())
	for _, n := range names {
		args = append(args, n)
	}
	query := "SELECT tag_name FROM reference_tags WHERE reference_id = " + o.dialect.ph(1) +
		" AND tag_name IN (" + strings.Join(placeholders, ",") + ")"
	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("checking existing reference tags: %w", err)
	}
	func() {
		defer rows.Close()
		for rows.Next() {
			var name string
			if rows.Scan(&name) == nil {
				existing[name] = true
			}
		}
	}()
	now := time.Now().UTC()
	for _, n := range names {
		if existing[n] {
			alreadyPresent = append(alreadyPresent, n)
			continue
		}
		added = append(added, n)
	}
	if len(added) > 0 {
		rows := make([]model.ReferenceTag, len(added))
		for i, n := range added {
			rows[i] = model.ReferenceTag{ReferenceID: referenceID, TagName: n, Origin: origin, AddedAt: now}
		}
		if err := o.InsertReferenceTags(ctx, rows); err != nil {
			return nil, nil, err
		}
	}
	return added, alreadyPresent, nil
}

// RemoveReferenceTags removes a batch of tags from a reference, reporting which
// names were actually removed vs. not present.
func (o *ops) RemoveReferenceTags(ctx context.Context, referenceID uuid.UUID, tagNames []string) (removed, notPresent []string, err error) {
	for _, name := range tagNames {
		ok, err := o.RemoveReferenceTag(ctx, referenceID, name)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			removed = append(removed, name)
		} else {
			notPresent = append(notPresent, name)
		}
	}
	return removed, notPresent, nil
}

func (o *ops) RemoveReferenceTag(ctx context.Context, referenceID uuid.UUID, tagName string) (bool, error) {
	res, err := o.db.ExecContext(ctx,
		"DELETE FROM reference_tags WHERE reference_id = "+o.dialect.ph(1)+" AND tag_name = "+o.dialect.ph(2),
		referenceID.String(), tagName)
	if err != nil {
		return false, fmt.Errorf("removing reference tag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n > 0, nil
}

// ListTags returns tags matching filter, each annotated with the number of
// references currently carrying it (spec §4.8).
func (o *ops) ListTags(ctx context.Context, filter store.TagFilter) ([]store.TagCount, int64, error) {
	var where []string
	var args []any
	n := 0
	next := func(v any) string { n++; args = append(args, v); return o.dialect.ph(n) }
	if filter.PrefixFilter != "" {
		where = append(where, "t.name LIKE "+next(escapeLikePrefix(filter.PrefixFilter)+"%")+" ESCAPE '\\'")
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}
	havingClause := ""
	if filter.HideZero {
		havingClause = " HAVING COUNT(rt.reference_id) > 0"
	}
	orderClause := " ORDER BY cnt DESC, t.name ASC"
	if filter.Order == store.TagOrderNameAsc {
		orderClause = " ORDER BY t.name ASC"
	}

	countQuery := `
		SELECT COUNT(*) FROM (
			SELECT t.name FROM tags t
			LEFT JOIN reference_tags rt ON rt.tag_name = t.name
			` + whereClause + `
			GROUP BY t.name, t.type
			` + havingClause + `
		) sub`
	var total int64
	if err := o.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting tags: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT t.name, t.type, COUNT(rt.reference_id) AS cnt FROM tags t
		LEFT JOIN reference_tags rt ON rt.tag_name = t.name
		` + whereClause + `
		GROUP BY t.name, t.type
		` + havingClause + orderClause + `
		LIMIT ` + next(limit) + ` OFFSET ` + next(filter.Offset)

	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing tags: %w", err)
	}
	defer rows.Close()
	var out []store.TagCount
	for rows.Next() {
		var tc store.TagCount
		if err := rows.Scan(&tc.Name, &tc.Type, &tc.Count); err != nil {
			return nil, 0, fmt.Errorf("scanning tag count: %w", err)
		}
		out = append(out, tc)
	}
	return out, total, rows.Err()
}
