package folders

import (
	"testing"

	"github.com/djhieudonald74-stack/asset-registry/internal/apierr"
	"github.com/djhieudonald74-stack/asset-registry/internal/model"
)

func TestResolveUploadDestination(t *testing.T) {
	r := New(map[model.Root][]string{
		model.RootModels: {"/data/models"},
		model.RootInput:  {"/data/input"},
	})

	tests := []struct {
		name    string
		tags    []string
		want    string
		wantErr bool
	}{
		{name: "root and subfolder", tags: []string{"models", "checkpoints"}, want: "/data/models/checkpoints"},
		{name: "root only defaults to uncategorized", tags: []string{"models"}, want: "/data/models/uncategorized"},
		{name: "unconfigured root", tags: []string{"output"}, wantErr: true},
		{name: "no tags", tags: nil, wantErr: true},
		{name: "escaping subfolder", tags: []string{"models", "../../etc"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ResolveUploadDestination(tt.tags)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveUploadDestination(%v) error = %v, wantErr %v", tt.tags, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ResolveUploadDestination(%v) = %q, want %q", tt.tags, got, tt.want)
			}
			if err != nil {
				if _, ok := apierr.As(err); !ok {
					t.Errorf("error is not an *apierr.Error: %v", err)
				}
			}
		})
	}
}

func TestUnderAnyRoot(t *testing.T) {
	r := New(map[model.Root][]string{
		model.RootModels: {"/data/models"},
	})

	if !r.UnderAnyRoot("/data/models/checkpoints/a.safetensors") {
		t.Error("UnderAnyRoot() = false for a path under the configured root")
	}
	if r.UnderAnyRoot("/data/modelsx/a.safetensors") {
		t.Error("UnderAnyRoot() = true for a sibling directory sharing a prefix")
	}
	if r.UnderAnyRoot("/other/place") {
		t.Error("UnderAnyRoot() = true for an unrelated path")
	}
	if !r.UnderAnyRoot("/data/models") {
		t.Error("UnderAnyRoot() = false for the root directory itself")
	}
}

func TestAllPrefixes(t *testing.T) {
	r := New(map[model.Root][]string{
		model.RootModels: {"/data/models"},
		model.RootInput:  {"/data/input-a", "/data/input-b"},
	})
	got := r.AllPrefixes()
	if len(got) != 3 {
		t.Errorf("AllPrefixes() returned %d entries, want 3", len(got))
	}
}
