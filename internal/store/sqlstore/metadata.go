package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/djhieudonald74-stack/asset-registry/internal/model"
)

// ReplaceReferenceMeta wipes and rewrites the reference_meta projection for one
// reference in a single call, per spec §4.7: every set_metadata call fully
// replaces the projected rows rather than patching individual keys.
func (o *ops) ReplaceReferenceMeta(ctx context.Context, referenceID uuid.UUID, rows []model.ReferenceMeta) error {
	if _, err := o.db.ExecContext(ctx, "DELETE FROM reference_meta WHERE reference_id = "+o.dialect.ph(1), referenceID.String()); err != nil {
		return fmt.Errorf("clearing reference meta: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}
	const cols = 8
	for _, r := range chunkRanges(len(rows), o.chunkSize(cols)) {
		batch := rows[r[0]:r[1]]
		var b strings.Builder
		b.WriteString("INSERT INTO reference_meta (reference_id, key, ordinal, val_kind, val_bool, val_num, val_str, val_json) VALUES ")
		args := make([]any, 0, len(batch)*cols)
		for i, row := range batch {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(o.dialect.rowPlaceholders(len(args), cols))
			var boolArg, numArg, strArg, jsonArg any
			switch row.Value.Kind {
			case model.MetaBool:
				boolArg = row.Value.Bool
			case model.MetaNum:
				numArg = row.Value.Num.String()
			case model.MetaStr:
				strArg = row.Value.Str
			case model.MetaJSON:
				jsonArg = row.Value.JSON
			}
			args = append(args, row.ReferenceID.String(), row.Key, row.Ordinal, int(row.Value.Kind), boolArg, numArg, strArg, jsonArg)
		}
		if _, err := o.db.ExecContext(ctx, b.String(), args...); err != nil {
			return fmt.Errorf("inserting reference meta: %w", err)
		}
	}
	return nil
}
