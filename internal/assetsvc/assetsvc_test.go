package assetsvc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/djhieudonald74-stack/asset-registry/internal/apierr"
	"github.com/djhieudonald74-stack/asset-registry/internal/folders"
	"github.com/djhieudonald74-stack/asset-registry/internal/model"
	"github.com/djhieudonald74-stack/asset-registry/internal/store"
	"github.com/djhieudonald74-stack/asset-registry/internal/store/sqlstore"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	st, err := sqlstore.OpenSQLite(context.Background(), ":memory:", 800)
	if err != nil {
		t.Fatalf("opening in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	modelsDir := filepath.Join(t.TempDir(), "models")
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		t.Fatalf("creating models dir: %v", err)
	}
	resolver := folders.New(map[model.Root][]string{model.RootModels: {modelsDir}})
	return New(st, resolver, 4, nil), modelsDir
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "upload-*")
	if err != nil {
		t.Fatalf("creating temp file: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return f.Name()
}

func TestUploadFromTempPathCreatesNewAsset(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tmp := writeTempFile(t, "checkpoint bytes v1")
	res, err := svc.UploadFromTempPath(ctx, tmp, "checkpoint.safetensors", []string{"models", "checkpoints"}, nil, "checkpoint.safetensors", "u1", nil)
	if err != nil {
		t.Fatalf("UploadFromTempPath() error = %v", err)
	}
	if !res.Created {
		t.Error("Created = false, want true for a brand new asset")
	}
	if res.Asset.SizeBytes != int64(len("checkpoint bytes v1")) {
		t.Errorf("SizeBytes = %d, want %d", res.Asset.SizeBytes, len("checkpoint bytes v1"))
	}
}

func TestUploadFromTempPathDedupesByHash(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tmp1 := writeTempFile(t, "same bytes")
	first, err := svc.UploadFromTempPath(ctx, tmp1, "first.safetensors", []string{"models"}, nil, "first.safetensors", "u1", nil)
	if err != nil {
		t.Fatalf("first UploadFromTempPath() error = %v", err)
	}

	tmp2 := writeTempFile(t, "same bytes")
	second, err := svc.UploadFromTempPath(ctx, tmp2, "second.safetensors", []string{"models"}, nil, "second.safetensors", "u1", nil)
	if err != nil {
		t.Fatalf("second UploadFromTempPath() error = %v", err)
	}
	if second.Created {
		t.Error("Created = true on the second upload of identical content, want false (deduped)")
	}
	if second.Asset.ID != first.Asset.ID {
		t.Errorf("second upload's Asset.ID = %s, want %s (same content)", second.Asset.ID, first.Asset.ID)
	}
	if second.Reference.ID == first.Reference.ID {
		t.Error("second upload's Reference.ID equals the first, want a distinct reference (different name)")
	}
}

func TestUploadFromTempPathHashMismatchIsRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tmp := writeTempFile(t, "checkpoint bytes")
	wrong := "blake3:" + fixedHexDigest()
	_, err := svc.UploadFromTempPath(ctx, tmp, "checkpoint.safetensors", []string{"models"}, nil, "checkpoint.safetensors", "u1", &wrong)
	if err == nil {
		t.Fatal("UploadFromTempPath() with a mismatched expected hash returned nil error")
	}
	apiErr, ok := apierr.As(err)
	if !ok || apiErr.Kind != apierr.KindValidation || apiErr.Code != apierr.CodeHashMismatch {
		t.Errorf("error = %v, want a Validation/HASH_MISMATCH apierr.Error", err)
	}
	if _, statErr := os.Stat(tmp); !os.IsNotExist(statErr) {
		t.Error("temp file still exists after a hash-mismatch rejection, want it removed")
	}
}

func TestGetAssetDetailEnforcesOwnership(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tmp := writeTempFile(t, "owned content")
	res, err := svc.UploadFromTempPath(ctx, tmp, "owned.safetensors", []string{"models"}, nil, "owned.safetensors", "owner-a", nil)
	if err != nil {
		t.Fatalf("UploadFromTempPath() error = %v", err)
	}

	if _, err := svc.GetAssetDetail(ctx, res.Reference.ID, "owner-b"); err == nil {
		t.Fatal("GetAssetDetail() for a non-owning caller returned nil error, want NotFound")
	} else if apiErr, ok := apierr.As(err); !ok || apiErr.Kind != apierr.KindNotFound {
		t.Errorf("error = %v, want a NotFound apierr.Error (ownership must not leak existence)", err)
	}

	detail, err := svc.GetAssetDetail(ctx, res.Reference.ID, "owner-a")
	if err != nil {
		t.Fatalf("GetAssetDetail() for the owning caller error = %v", err)
	}
	if detail.Reference.ID != res.Reference.ID {
		t.Errorf("detail.Reference.ID = %s, want %s", detail.Reference.ID, res.Reference.ID)
	}
}

func TestApplyAndRemoveTags(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tmp := writeTempFile(t, "tag target")
	res, err := svc.UploadFromTempPath(ctx, tmp, "tagged.safetensors", []string{"models"}, nil, "tagged.safetensors", "u1", nil)
	if err != nil {
		t.Fatalf("UploadFromTempPath() error = %v", err)
	}

	applied, err := svc.ApplyTags(ctx, res.Reference.ID, "u1", []string{"nsfw", "sdxl"})
	if err != nil {
		t.Fatalf("ApplyTags() error = %v", err)
	}
	if len(applied.Changed) != 2 {
		t.Errorf("ApplyTags() Changed = %v, want 2 new tags", applied.Changed)
	}

	reapplied, err := svc.ApplyTags(ctx, res.Reference.ID, "u1", []string{"nsfw"})
	if err != nil {
		t.Fatalf("second ApplyTags() error = %v", err)
	}
	if len(reapplied.Changed) != 0 {
		t.Errorf("re-applying an existing tag reported Changed = %v, want none", reapplied.Changed)
	}

	removed, err := svc.RemoveTags(ctx, res.Reference.ID, "u1", []string{"nsfw"})
	if err != nil {
		t.Fatalf("RemoveTags() error = %v", err)
	}
	if len(removed.Changed) != 1 {
		t.Errorf("RemoveTags() Changed = %v, want 1 removed tag", removed.Changed)
	}
}

func TestListAssetsPage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tmp := writeTempFile(t, "distinct content "+string(rune('a'+i)))
		if _, err := svc.UploadFromTempPath(ctx, tmp, "asset.safetensors", []string{"models"}, nil, "asset.safetensors", "u1", nil); err != nil {
			t.Fatalf("UploadFromTempPath() error = %v", err)
		}
	}

	page, err := svc.ListAssetsPage(ctx, store.ListFilter{OwnerID: "u1", Limit: 50})
	if err != nil {
		t.Fatalf("ListAssetsPage() error = %v", err)
	}
	if page.Total != 3 {
		t.Errorf("ListAssetsPage().Total = %d, want 3", page.Total)
	}
	if len(page.Items) != 3 {
		t.Errorf("ListAssetsPage() returned %d items, want 3", len(page.Items))
	}
}

func fixedHexDigest() string {
	b := make([]byte, 64)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}
