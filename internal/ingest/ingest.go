// Package ingest implements C3, the bulk ingest engine: a race-safe, chunked
// bulk insert of discovered files that lets the unique index on file_path
// arbitrate contention between concurrent writers (scanner vs. upload) rather
// than taking an application-level lock.
//
// Grounded on the teacher's bulk-insert-then-requery pattern for resolving
// ON CONFLICT DO NOTHING races (internal/storage/dolt's batch issue import),
// adapted here from Dolt's issue/conflict semantics to asset/cache-state
// winner-loser resolution.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/djhieudonald74-stack/asset-registry/internal/metaproject"
	"github.com/djhieudonald74-stack/asset-registry/internal/model"
	"github.com/djhieudonald74-stack/asset-registry/internal/store"
	"github.com/djhieudonald74-stack/asset-registry/internal/telemetry"
)

// Spec is one file to register, per spec §4.3.
type Spec struct {
	AbsPath          string
	SizeBytes        int64
	MtimeNs          *int64
	Name             string
	Tags             []string
	RelativeFilename string
	Metadata         []byte // raw JSON object, optional
	Hash             *string
	OwnerID          string
	TagOrigin        model.TagOrigin
}

// Result reports the three counts spec §4.3 defines for a batch.
type Result struct {
	InsertedReferences int
	WonPaths           int
	LostPaths          int
}

// Run executes the fixed eight-step algorithm inside tx, per spec §4.3. The
// caller owns the transaction's lifetime (begin/commit/rollback); Run never
// commits or rolls back itself.
func Run(ctx context.Context, tx store.Tx, metrics *telemetry.Metrics, specs []Spec) (Result, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "ingest.Run")
	defer span.End()
	span.SetAttributes(attribute.Int("ingest.batch_size", len(specs)))

	if metrics != nil {
		metrics.IngestBatches.Add(ctx, 1)
	}
	res, err := run(ctx, tx, specs)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if metrics != nil {
			metrics.IngestBatchErrors.Add(ctx, 1)
		}
		return Result{}, err
	}
	if metrics != nil {
		metrics.IngestWinners.Add(ctx, int64(res.WonPaths))
		metrics.IngestLosers.Add(ctx, int64(res.LostPaths))
	}
	return res, nil
}

func run(ctx context.Context, tx store.Tx, specs []Spec) (Result, error) {
	if len(specs) == 0 {
		return Result{}, nil
	}

	// Step 1: assign a fresh Asset UUID per spec, emit stub (or hashed) rows.
	assetIDs := make([]uuid.UUID, len(specs))
	assetByPath := make(map[string]uuid.UUID, len(specs))
	stubs := make([]store.AssetStub, len(specs))
	for i, s := range specs {
		id := uuid.New()
		assetIDs[i] = id
		assetByPath[s.AbsPath] = id
		stubs[i] = store.AssetStub{ID: id, Hash: s.Hash, SizeBytes: s.SizeBytes}
	}
	if err := tx.InsertAssetStubs(ctx, stubs); err != nil {
		return Result{}, fmt.Errorf("ingest step 1 (insert asset stubs): %w", err)
	}

	// Step 2: one CacheState per spec, conflict on file_path ignored.
	csRows := make([]store.CacheStateInsert, len(specs))
	for i, s := range specs {
		csRows[i] = store.CacheStateInsert{AssetID: assetIDs[i], FilePath: s.AbsPath, MtimeNs: s.MtimeNs}
	}
	if err := tx.InsertCacheStatesIgnoreConflict(ctx, csRows); err != nil {
		return Result{}, fmt.Errorf("ingest step 2 (insert cache states): %w", err)
	}

	// Step 3: resolve winners — a path is a winner iff its row now carries our
	// asset_id.
	winnerPaths, err := tx.ResolveWinningPaths(ctx, assetByPath)
	if err != nil {
		return Result{}, fmt.Errorf("ingest step 3 (resolve winners): %w", err)
	}
	winnerSet := make(map[string]bool, len(winnerPaths))
	for _, p := range winnerPaths {
		winnerSet[p] = true
	}

	// Step 4: delete the Asset rows for loser paths.
	var loserAssetIDs []uuid.UUID
	for i, s := range specs {
		if !winnerSet[s.AbsPath] {
			loserAssetIDs = append(loserAssetIDs, assetIDs[i])
		}
	}
	if len(loserAssetIDs) > 0 {
		if err := tx.DeleteAssets(ctx, loserAssetIDs); err != nil {
			return Result{}, fmt.Errorf("ingest step 4 (delete loser assets): %w", err)
		}
	}

	// Step 5: restore previously-missing winner paths with the new mtime.
	if len(winnerPaths) > 0 {
		if err := tx.RestoreCacheStatesByPaths(ctx, winnerPaths); err != nil {
			return Result{}, fmt.Errorf("ingest step 5 (restore cache states): %w", err)
		}
	}

	// Step 6: emit AssetReference rows for winners, conflict on
	// (asset_id, owner_id, name) ignored.
	var refRows []store.ReferenceInsert
	refIDBySpecIdx := make(map[int]uuid.UUID)
	for i, s := range specs {
		if !winnerSet[s.AbsPath] {
			continue
		}
		refID := uuid.New()
		refIDBySpecIdx[i] = refID
		refRows = append(refRows, store.ReferenceInsert{
			ID:           refID,
			AssetID:      assetIDs[i],
			OwnerID:      s.OwnerID,
			Name:         s.Name,
			UserMetadata: s.Metadata,
		})
	}
	if len(refRows) > 0 {
		if err := tx.InsertReferencesIgnoreConflict(ctx, refRows); err != nil {
			return Result{}, fmt.Errorf("ingest step 6 (insert references): %w", err)
		}
	}

	// Step 7: find which reference IDs actually landed.
	candidateIDs := make([]uuid.UUID, 0, len(refRows))
	for _, r := range refRows {
		candidateIDs = append(candidateIDs, r.ID)
	}
	landedIDs, err := tx.GetAssetReferenceIDsByIDs(ctx, candidateIDs)
	if err != nil {
		return Result{}, fmt.Errorf("ingest step 7 (resolve landed references): %w", err)
	}
	landedSet := make(map[uuid.UUID]bool, len(landedIDs))
	for _, id := range landedIDs {
		landedSet[id] = true
	}

	// Step 8: for landed references only, emit tag rows and metadata projection
	// rows — each independently chunked by the store layer.
	var tagRows []model.ReferenceTag
	now := time.Now().UTC()
	var metaRows []model.ReferenceMeta
	for i, s := range specs {
		refID, ok := refIDBySpecIdx[i]
		if !ok || !landedSet[refID] {
			continue
		}
		for _, t := range s.Tags {
			tagRows = append(tagRows, model.ReferenceTag{ReferenceID: refID, TagName: t, Origin: s.TagOrigin, AddedAt: now})
		}
		projected, err := metaproject.Project(refID, s.Metadata)
		if err != nil {
			return Result{}, fmt.Errorf("ingest step 8 (project metadata for %s): %w", s.AbsPath, err)
		}
		metaRows = append(metaRows, projected...)
	}
	if len(tagRows) > 0 {
		if err := tx.InsertReferenceTags(ctx, tagRows); err != nil {
			return Result{}, fmt.Errorf("ingest step 8 (insert reference tags): %w", err)
		}
	}
	if len(metaRows) > 0 {
		byRef := make(map[uuid.UUID][]model.ReferenceMeta)
		for _, row := range metaRows {
			byRef[row.ReferenceID] = append(byRef[row.ReferenceID], row)
		}
		for refID, rows := range byRef {
			if err := tx.ReplaceReferenceMeta(ctx, refID, rows); err != nil {
				return Result{}, fmt.Errorf("ingest step 8 (project metadata rows): %w", err)
			}
		}
	}

	return Result{
		InsertedReferences: len(landedIDs),
		WonPaths:           len(winnerPaths),
		LostPaths:          len(specs) - len(winnerPaths),
	}, nil
}
