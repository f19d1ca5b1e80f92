package sqlstore_test

import (
	"context"
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

func ingestSpecs(t *testing.T, ctx context.Context, st store.Store, specs []ingest.Spec) {
	t.Helper()
	tx, err := st.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := ingest.Run(ctx, tx, nil, specs); err != nil {
		_ = tx.Rollback()
		t.Fatalf("Run() error = %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
}

func hexHash(b byte) string {
	buf := make([]byte, 64)
	for i := range buf {
		buf[i] = b
	}
	return "blake3:" + string(buf)
}

func TestListAssetsPageOwnerVisibility(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	hA, hB, hC := hexHash('a'), hexHash('b'), hexHash('c')
	ingestSpecs(t, ctx, st, []ingest.Spec{
		{AbsPath: "/models/mine.safetensors", SizeBytes: 1, Name: "mine", OwnerID: "u1", Hash: &hA, TagOrigin: model.TagOriginManual},
		{AbsPath: "/models/shared.safetensors", SizeBytes: 1, Name: "shared", OwnerID: "", Hash: &hB, TagOrigin: model.TagOriginManual},
		{AbsPath: "/models/theirs.safetensors", SizeBytes: 1, Name: "theirs", OwnerID: "u2", Hash: &hC, TagOrigin: model.TagOriginManual},
	})

	page, err := st.ListAssetsPage(ctx, store.ListFilter{OwnerID: "u1", Limit: 50})
	if err != nil {
		t.Fatalf("ListAssetsPage() error = %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("Total = %d, want 2 (owned + globally visible)", page.Total)
	}
	names := map[string]bool{}
	for _, item := range page.Items {
		names[item.Reference.Name] = true
	}
	if !names["mine"] || !names["shared"] {
		t.Errorf("items = %v, want mine and shared visible to u1", names)
	}
	if names["theirs"] {
		t.Error("u2's private reference leaked into u1's listing")
	}
}

func TestListAssetsPageFiltersByNameAndTags(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	hA, hB := hexHash('d'), hexHash('e')
	ingestSpecs(t, ctx, st, []ingest.Spec{
		{AbsPath: "/models/checkpoint-a.safetensors", SizeBytes: 1, Name: "checkpoint-a", OwnerID: "u1", Hash: &hA, Tags: []string{"sdxl"}, TagOrigin: model.TagOriginManual},
		{AbsPath: "/models/lora-b.safetensors", SizeBytes: 1, Name: "lora-b", OwnerID: "u1", Hash: &hB, Tags: []string{"sd15"}, TagOrigin: model.TagOriginManual},
	})

	byName, err := st.ListAssetsPage(ctx, store.ListFilter{OwnerID: "u1", NameContains: "checkpoint", Limit: 50})
	if err != nil {
		t.Fatalf("ListAssetsPage() error = %v", err)
	}
	if len(byName.Items) != 1 || byName.Items[0].Reference.Name != "checkpoint-a" {
		t.Errorf("NameContains filter = %+v, want only checkpoint-a", byName.Items)
	}

	byTag, err := st.ListAssetsPage(ctx, store.ListFilter{OwnerID: "u1", IncludeTags: []string{"sdxl"}, Limit: 50})
	if err != nil {
		t.Fatalf("ListAssetsPage() error = %v", err)
	}
	if len(byTag.Items) != 1 || byTag.Items[0].Reference.Name != "checkpoint-a" {
		t.Errorf("IncludeTags filter = %+v, want only checkpoint-a", byTag.Items)
	}

	excludingTag, err := st.ListAssetsPage(ctx, store.ListFilter{OwnerID: "u1", ExcludeTags: []string{"sdxl"}, Limit: 50})
	if err != nil {
		t.Fatalf("ListAssetsPage() error = %v", err)
	}
	if len(excludingTag.Items) != 1 || excludingTag.Items[0].Reference.Name != "lora-b" {
		t.Errorf("ExcludeTags filter = %+v, want only lora-b", excludingTag.Items)
	}
}

func TestListAssetsPageMetadataFilter(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	hA, hB := hexHash('f'), hexHash('1')
	ingestSpecs(t, ctx, st, []ingest.Spec{
		{AbsPath: "/models/sampler-euler.safetensors", SizeBytes: 1, Name: "euler-asset", OwnerID: "u1", Hash: &hA,
			Metadata: []byte(`{"sampler": "euler"}`), TagOrigin: model.TagOriginManual},
		{AbsPath: "/models/sampler-ddim.safetensors", SizeBytes: 1, Name: "ddim-asset", OwnerID: "u1", Hash: &hB,
			Metadata: []byte(`{"sampler": "ddim"}`), TagOrigin: model.TagOriginManual},
	})

	page, err := st.ListAssetsPage(ctx, store.ListFilter{
		OwnerID: "u1",
		MetadataFilter: map[string][]model.MetaValue{
			"sampler": {{Kind: model.MetaStr, Str: "euler"}},
		},
		Limit: 50,
	})
	if err != nil {
		t.Fatalf("ListAssetsPage() error = %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Reference.Name != "euler-asset" {
		t.Errorf("metadata filter = %+v, want only euler-asset", page.Items)
	}
}

func TestListAssetsPageSortOrder(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	hA, hB := hexHash('2'), hexHash('3')
	ingestSpecs(t, ctx, st, []ingest.Spec{
		{AbsPath: "/models/banana.safetensors", SizeBytes: 1, Name: "banana", OwnerID: "u1", Hash: &hA, TagOrigin: model.TagOriginManual},
		{AbsPath: "/models/apple.safetensors", SizeBytes: 1, Name: "apple", OwnerID: "u1", Hash: &hB, TagOrigin: model.TagOriginManual},
	})

	page, err := st.ListAssetsPage(ctx, store.ListFilter{OwnerID: "u1", Sort: store.SortName, Order: store.OrderAsc, Limit: 50})
	if err != nil {
		t.Fatalf("ListAssetsPage() error = %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].Reference.Name != "apple" || page.Items[1].Reference.Name != "banana" {
		t.Errorf("sorted items = %+v, want [apple banana]", page.Items)
	}
}

func TestListTagsCountsReferences(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	hA, hB := hexHash('4'), hexHash('5')
	ingestSpecs(t, ctx, st, []ingest.Spec{
		{AbsPath: "/models/a.safetensors", SizeBytes: 1, Name: "a", OwnerID: "u1", Hash: &hA, Tags: []string{"sdxl", "nsfw"}, TagOrigin: model.TagOriginManual},
		{AbsPath: "/models/b.safetensors", SizeBytes: 1, Name: "b", OwnerID: "u1", Hash: &hB, Tags: []string{"sdxl"}, TagOrigin: model.TagOriginManual},
	})

	tags, total, err := st.ListTags(ctx, store.TagFilter{Limit: 50})
	if err != nil {
		t.Fatalf("ListTags() error = %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2 distinct tags", total)
	}
	counts := map[string]int64{}
	for _, tc := range tags {
		counts[tc.Name] = tc.Count
	}
	if counts["sdxl"] != 2 {
		t.Errorf("sdxl count = %d, want 2", counts["sdxl"])
	}
	if counts["nsfw"] != 1 {
		t.Errorf("nsfw count = %d, want 1", counts["nsfw"])
	}
}

func TestGetAssetDetailIncludesTagsAndCacheStates(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	hA := hexHash('6')
	ingestSpecs(t, ctx, st, []ingest.Spec{
		{AbsPath: "/models/detail.safetensors", SizeBytes: 42, Name: "detail", OwnerID: "u1", Hash: &hA, Tags: []string{"models"}, TagOrigin: model.TagOriginManual},
	})

	asset, err := st.GetAssetByHash(ctx, hA)
	if err != nil || asset == nil {
		t.Fatalf("GetAssetByHash() = %v, %v", asset, err)
	}
	ref, err := st.GetReferenceByAssetOwnerName(ctx, asset.ID, "u1", "detail")
	if err != nil || ref == nil {
		t.Fatalf("GetReferenceByAssetOwnerName() = %v, %v", ref, err)
	}

	detail, err := st.GetAssetDetail(ctx, ref.ID)
	if err != nil {
		t.Fatalf("GetAssetDetail() error = %v", err)
	}
	if len(detail.Tags) != 1 || detail.Tags[0].TagName != "models" {
		t.Errorf("detail.Tags = %+v, want [models]", detail.Tags)
	}
	if len(detail.CacheStates) != 1 || detail.CacheStates[0].FilePath != "/models/detail.safetensors" {
		t.Errorf("detail.CacheStates = %+v, want one entry for the ingested path", detail.CacheStates)
	}
}
