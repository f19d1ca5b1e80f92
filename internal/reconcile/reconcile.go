// Package reconcile implements C4, the filesystem reconciler: for one root at
// a time, cross-checks stored cache states against the actual filesystem and
// brings stored state into agreement (mark missing, restore, toggle verify
// flags, drop stale stubs).
//
// Grounded on the teacher's dolt store reconciliation pass (internal/storage
// dirty-state detection via stat comparison) and other_examples/scan.go's
// stat-and-classify walk, adapted from file-sync staleness detection to
// asset/cache-state bookkeeping.
package reconcile

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/djhieudonald74-stack/asset-registry/internal/model"
	"github.com/djhieudonald74-stack/asset-registry/internal/store"
	"github.com/djhieudonald74-stack/asset-registry/internal/telemetry"
)

type classification int

const (
	fastOK classification = iota
	existsStale
	missing
)

// Result is what C5 needs to subtract survivors from a filesystem walk (spec
// §4.4 step 5).
type Result struct {
	SurvivingPaths []string
}

// Run reconciles one root's prefixes against the filesystem, per spec §4.4.
// It is purely session-scoped: the caller commits tx. manageMissingTag
// controls whether §4.4 step 4's "missing" tag add/remove side effect runs.
func Run(ctx context.Context, tx store.Tx, prefixes []string, manageMissingTag bool) (Result, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "reconcile.Run")
	defer span.End()

	states, err := tx.GetActiveCacheStatesUnderPrefixes(ctx, prefixes)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile: fetching active cache states: %w", err)
	}

	byAsset := make(map[uuid.UUID][]store.CacheStateWithAsset)
	for _, s := range states {
		byAsset[s.CacheState.AssetID] = append(byAsset[s.CacheState.AssetID], s)
	}

	var surviving []string
	for assetID, group := range byAsset {
		if err := reconcileAsset(ctx, tx, assetID, group, manageMissingTag, &surviving); err != nil {
			return Result{}, fmt.Errorf("reconcile: asset %s: %w", assetID, err)
		}
	}
	return Result{SurvivingPaths: surviving}, nil
}

func reconcileAsset(ctx context.Context, tx store.Tx, assetID uuid.UUID, group []store.CacheStateWithAsset, manageMissingTag bool, surviving *[]string) error {
	asset, err := tx.GetAssetByID(ctx, assetID)
	if err != nil {
		return fmt.Errorf("loading asset: %w", err)
	}
	if asset == nil {
		return nil
	}

	type classified struct {
		state store.CacheStateWithAsset
		class classification
	}
	classifiedStates := make([]classified, len(group))
	anyFastOK := false
	allMissing := true
	for i, s := range group {
		c := classify(s)
		classifiedStates[i] = classified{state: s, class: c}
		switch c {
		case fastOK:
			anyFastOK = true
			allMissing = false
			*surviving = append(*surviving, s.CacheState.FilePath)
		case existsStale:
			allMissing = false
			*surviving = append(*surviving, s.CacheState.FilePath)
		}
	}

	// Step 4a: flip needs_verify.
	for _, cs := range classifiedStates {
		switch cs.class {
		case existsStale:
			if !cs.state.CacheState.NeedsVerify {
				if err := tx.SetCacheStateVerify(ctx, cs.state.CacheState.ID, true); err != nil {
					return fmt.Errorf("flagging verify: %w", err)
				}
			}
		case fastOK:
			if cs.state.CacheState.NeedsVerify {
				if err := tx.SetCacheStateVerify(ctx, cs.state.CacheState.ID, false); err != nil {
					return fmt.Errorf("clearing verify: %w", err)
				}
			}
		}
	}

	if asset.IsStub() {
		if allMissing {
			if err := deleteStubAsset(ctx, tx, assetID); err != nil {
				return fmt.Errorf("deleting unreachable stub asset: %w", err)
			}
		}
		return nil
	}

	if anyFastOK {
		var staleIDs []uuid.UUID
		for _, cs := range classifiedStates {
			if cs.class == missing {
				staleIDs = append(staleIDs, cs.state.CacheState.ID)
			}
		}
		if len(staleIDs) > 0 {
			if err := tx.DeleteCacheStates(ctx, staleIDs); err != nil {
				return fmt.Errorf("deleting stale missing states: %w", err)
			}
		}
		if manageMissingTag {
			if err := removeMissingTagFromReferences(ctx, tx, assetID); err != nil {
				return err
			}
		}
	} else if manageMissingTag {
		if err := addMissingTagToReferences(ctx, tx, assetID); err != nil {
			return err
		}
	}
	return nil
}

// classify stats the file and classifies it per spec §4.4 step 3. Any stat
// error (not-found or otherwise) is treated as missing, caught per-state so
// one bad path never aborts the whole root.
func classify(s store.CacheStateWithAsset) classification {
	info, err := os.Stat(s.CacheState.FilePath)
	if err != nil {
		// Not-found and any other stat failure (permission, I/O) are both
		// treated as missing, per spec §4.4 step 3.
		return missing
	}
	if s.CacheState.MtimeNs == nil {
		return existsStale
	}
	statMtimeNs := info.ModTime().UnixNano()
	if statMtimeNs == *s.CacheState.MtimeNs && info.Size() == s.AssetSize {
		return fastOK
	}
	return existsStale
}

// deleteStubAsset removes a stub Asset whose every CacheState is missing,
// along with its cache states and references (spec §4.4 step 4: "delete the
// Asset (and its references)").
func deleteStubAsset(ctx context.Context, tx store.Tx, assetID uuid.UUID) error {
	states, err := tx.GetCacheStatesByAsset(ctx, assetID)
	if err != nil {
		return err
	}
	ids := make([]uuid.UUID, len(states))
	for i, s := range states {
		ids[i] = s.ID
	}
	if len(ids) > 0 {
		if err := tx.DeleteCacheStates(ctx, ids); err != nil {
			return err
		}
	}
	refs, err := tx.GetReferencesByAsset(ctx, assetID)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if err := tx.DeleteReference(ctx, ref.ID); err != nil {
			return err
		}
	}
	return tx.DeleteAssets(ctx, []uuid.UUID{assetID})
}

const missingTag = "missing"

func removeMissingTagFromReferences(ctx context.Context, tx store.Tx, assetID uuid.UUID) error {
	return forEachReferenceOfAsset(ctx, tx, assetID, func(refID uuid.UUID) error {
		_, err := tx.RemoveReferenceTag(ctx, refID, missingTag)
		return err
	})
}

func addMissingTagToReferences(ctx context.Context, tx store.Tx, assetID uuid.UUID) error {
	return forEachReferenceOfAsset(ctx, tx, assetID, func(refID uuid.UUID) error {
		_, _, err := tx.AddReferenceTags(ctx, refID, []string{missingTag}, "system", model.TagOriginAutomatic)
		return err
	})
}

func forEachReferenceOfAsset(ctx context.Context, tx store.Tx, assetID uuid.UUID, fn func(uuid.UUID) error) error {
	refs, err := tx.GetReferencesByAsset(ctx, assetID)
	if err != nil {
		return fmt.Errorf("loading references for missing-tag bookkeeping: %w", err)
	}
	for _, ref := range refs {
		if err := fn(ref.ID); err != nil {
			return err
		}
	}
	return nil
}
