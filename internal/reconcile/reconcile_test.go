package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/djhieudonald74-stack/asset-registry/internal/ingest"
	"github.com/djhieudonald74-stack/asset-registry/internal/model"
	"github.com/djhieudonald74-stack/asset-registry/internal/store"
	"github.com/djhieudonald74-stack/asset-registry/internal/store/sqlstore"
)

func openTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := sqlstore.OpenSQLite(context.Background(), ":memory:", 800)
	if err != nil {
		t.Fatalf("opening in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// ingestOne ingests path with its actual on-disk mtime recorded, so a later
// reconcile against an untouched file classifies as fastOK rather than
// existsStale.
func ingestOne(t *testing.T, ctx context.Context, st store.Store, path, hash string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	mtimeNs := info.ModTime().UnixNano()

	tx, err := st.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	spec := ingest.Spec{
		AbsPath:   path,
		SizeBytes: info.Size(),
		MtimeNs:   &mtimeNs,
		Name:      filepath.Base(path),
		OwnerID:   "u1",
		TagOrigin: model.TagOriginManual,
	}
	if hash != "" {
		spec.Hash = &hash
	}
	if _, err := ingest.Run(ctx, tx, nil, []ingest.Spec{spec}); err != nil {
		_ = tx.Rollback()
		t.Fatalf("Run() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
}

func TestRunTagsReferencesMissingWhenFileIsDeleted(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	path := filepath.Join(dir, "gone.safetensors")
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	ingestOne(t, ctx, st, path, "blake3:"+hex64("a"))

	asset, err := st.GetAssetByHash(ctx, "blake3:"+hex64("a"))
	if err != nil || asset == nil {
		t.Fatalf("GetAssetByHash() = %v, %v", asset, err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	tx := mustBegin(t, st)
	if _, err := Run(ctx, tx, []string{dir}, true); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	refs, err := st.GetReferencesByAsset(ctx, asset.ID)
	if err != nil {
		t.Fatalf("GetReferencesByAsset() error = %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("GetReferencesByAsset() returned %d refs, want 1", len(refs))
	}
	detail, err := st.GetAssetDetail(ctx, refs[0].ID)
	if err != nil {
		t.Fatalf("GetAssetDetail() error = %v", err)
	}
	if !hasTag(detail.Tags, "missing") {
		t.Errorf("tags = %v, want a missing tag after the backing file disappeared", detail.Tags)
	}
}

func TestRunClearsMissingTagWhenFileRestoredWithMatchingStat(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	path := filepath.Join(dir, "flaky.safetensors")
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	ingestOne(t, ctx, st, path, "blake3:"+hex64("b"))
	asset, err := st.GetAssetByHash(ctx, "blake3:"+hex64("b"))
	if err != nil || asset == nil {
		t.Fatalf("GetAssetByHash() = %v, %v", asset, err)
	}
	recordedInfo, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	recordedMtime := recordedInfo.ModTime()

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	tx := mustBegin(t, st)
	if _, err := Run(ctx, tx, []string{dir}, true); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	refs, err := st.GetReferencesByAsset(ctx, asset.ID)
	if err != nil {
		t.Fatalf("GetReferencesByAsset() error = %v", err)
	}
	detail, err := st.GetAssetDetail(ctx, refs[0].ID)
	if err != nil {
		t.Fatalf("GetAssetDetail() error = %v", err)
	}
	if !hasTag(detail.Tags, "missing") {
		t.Fatalf("tags = %v, want a missing tag after deletion, before testing restoration", detail.Tags)
	}

	// Recreate the file with the exact size and mtime recorded at ingest
	// time, so reconcile's stat comparison classifies it fastOK.
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatalf("re-writing file error = %v", err)
	}
	if err := os.Chtimes(path, recordedMtime, recordedMtime); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	tx2 := mustBegin(t, st)
	res, err := Run(ctx, tx2, []string{dir}, true)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if err := tx2.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if len(res.SurvivingPaths) != 1 {
		t.Errorf("SurvivingPaths = %v, want 1 entry for the restored file", res.SurvivingPaths)
	}

	detail, err = st.GetAssetDetail(ctx, refs[0].ID)
	if err != nil {
		t.Fatalf("GetAssetDetail() error = %v", err)
	}
	if hasTag(detail.Tags, "missing") {
		t.Errorf("tags = %v, want no missing tag once the file matches its recorded stat exactly", detail.Tags)
	}
}

func TestRunDeletesUnreachableStub(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()

	path := filepath.Join(dir, "stub.safetensors")
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	ingestOne(t, ctx, st, path, "") // no hash: stays a stub

	states, err := st.GetActiveCacheStatesUnderPrefixes(ctx, []string{dir})
	if err != nil {
		t.Fatalf("GetActiveCacheStatesUnderPrefixes() error = %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("GetActiveCacheStatesUnderPrefixes() returned %d states, want 1", len(states))
	}
	assetID := states[0].CacheState.AssetID

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	tx := mustBegin(t, st)
	if _, err := Run(ctx, tx, []string{dir}, true); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	asset, err := st.GetAssetByID(ctx, assetID)
	if err != nil {
		t.Fatalf("GetAssetByID() error = %v", err)
	}
	if asset != nil {
		t.Errorf("GetAssetByID() = %+v, want nil (unreachable stub should be deleted)", asset)
	}
}

func mustBegin(t *testing.T, st store.Store) store.Tx {
	t.Helper()
	tx, err := st.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	return tx
}

func hasTag(tags []model.ReferenceTag, name string) bool {
	for _, t := range tags {
		if t.TagName == name {
			return true
		}
	}
	return false
}

func hex64(seed string) string {
	b := make([]byte, 64)
	for i := range b {
		b[i] = seed[0]
	}
	return string(b)
}
