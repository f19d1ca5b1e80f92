package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

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

func mustBegin(t *testing.T, st store.Store) store.Tx {
	t.Helper()
	tx, err := st.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	return tx
}

func TestRunInsertsOneReferencePerSpec(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	tx := mustBegin(t, st)

	specs := []Spec{
		{AbsPath: "/models/a.safetensors", SizeBytes: 100, Name: "a.safetensors", Tags: []string{"models"}, OwnerID: "u1", TagOrigin: model.TagOriginManual},
		{AbsPath: "/models/b.safetensors", SizeBytes: 200, Name: "b.safetensors", Tags: []string{"models"}, OwnerID: "u1", TagOrigin: model.TagOriginManual},
	}
	res, err := Run(ctx, tx, nil, specs)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if res.InsertedReferences != 2 || res.WonPaths != 2 || res.LostPaths != 0 {
		t.Errorf("Run() result = %+v, want 2 inserted/won, 0 lost", res)
	}
}

func TestRunSamePathTwiceOnlyOneWinner(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	tx := mustBegin(t, st)
	first := Spec{AbsPath: "/models/dup.safetensors", SizeBytes: 100, Name: "dup.safetensors", OwnerID: "u1", TagOrigin: model.TagOriginManual}
	if _, err := Run(ctx, tx, nil, []Spec{first}); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	tx2 := mustBegin(t, st)
	res, err := Run(ctx, tx2, nil, []Spec{first})
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if err := tx2.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if res.WonPaths != 0 || res.LostPaths != 1 {
		t.Errorf("second Run() on the same path = %+v, want 0 won / 1 lost", res)
	}
}

func TestRunProjectsTagsAndMetadataForLandedReferences(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	tx := mustBegin(t, st)

	spec := Spec{
		AbsPath:   "/models/tagged.safetensors",
		SizeBytes: 100,
		Name:      "tagged",
		Tags:      []string{"models", "checkpoints"},
		Metadata:  []byte(`{"steps": 20}`),
		OwnerID:   "u1",
		TagOrigin: model.TagOriginManual,
	}
	if _, err := Run(ctx, tx, nil, []Spec{spec}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	ref, err := st.GetReferenceByAssetOwnerName(ctx, assetIDForPath(t, ctx, st, spec.AbsPath), "u1", "tagged")
	if err != nil {
		t.Fatalf("GetReferenceByAssetOwnerName() error = %v", err)
	}
	if ref == nil {
		t.Fatal("GetReferenceByAssetOwnerName() returned nil, want the landed reference")
	}

	detail, err := st.GetAssetDetail(ctx, ref.ID)
	if err != nil {
		t.Fatalf("GetAssetDetail() error = %v", err)
	}
	if len(detail.Tags) != 2 {
		t.Errorf("GetAssetDetail().Tags = %v, want 2 entries", detail.Tags)
	}
}

func assetIDForPath(t *testing.T, ctx context.Context, st store.Store, path string) uuid.UUID {
	t.Helper()
	states, err := st.GetActiveCacheStatesUnderPrefixes(ctx, []string{filepath.Dir(path)})
	if err != nil {
		t.Fatalf("GetActiveCacheStatesUnderPrefixes() error = %v", err)
	}
	for _, s := range states {
		if s.CacheState.FilePath == path {
			return s.CacheState.AssetID
		}
	}
	t.Fatalf("no cache state found for path %q", path)
	return uuid.UUID{}
}
