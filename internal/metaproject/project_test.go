package metaproject

import (
	"testing"

	"github.com/google/uuid"

	"github.com/djhieudonald74-stack/asset-registry/internal/model"
)

func TestProjectScalars(t *testing.T) {
	refID := uuid.New()
	raw := []byte(`{"steps": 20, "sampler": "euler", "enabled": true, "seed": null}`)

	rows, err := Project(refID, raw)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("Project() returned %d rows, want 4", len(rows))
	}

	byKey := make(map[string]model.ReferenceMeta, len(rows))
	for _, r := range rows {
		if r.ReferenceID != refID {
			t.Errorf("row %q has ReferenceID %s, want %s", r.Key, r.ReferenceID, refID)
		}
		byKey[r.Key] = r
	}

	if byKey["steps"].Value.Kind != model.MetaNum {
		t.Errorf("steps kind = %v, want MetaNum", byKey["steps"].Value.Kind)
	}
	if byKey["sampler"].Value.Kind != model.MetaStr || byKey["sampler"].Value.Str != "euler" {
		t.Errorf("sampler = %+v, want Str=euler", byKey["sampler"].Value)
	}
	if byKey["enabled"].Value.Kind != model.MetaBool || !byKey["enabled"].Value.Bool {
		t.Errorf("enabled = %+v, want Bool=true", byKey["enabled"].Value)
	}
	if byKey["seed"].Value.Kind != model.MetaNull {
		t.Errorf("seed kind = %v, want MetaNull", byKey["seed"].Value.Kind)
	}
}

func TestProjectScalarList(t *testing.T) {
	refID := uuid.New()
	raw := []byte(`{"tags": ["a", "b", "c"]}`)

	rows, err := Project(refID, raw)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Project() returned %d rows, want 3", len(rows))
	}
	for i, r := range rows {
		if r.Ordinal != i {
			t.Errorf("row %d has Ordinal %d, want %d", i, r.Ordinal, i)
		}
		if r.Value.Kind != model.MetaStr {
			t.Errorf("row %d kind = %v, want MetaStr", i, r.Value.Kind)
		}
	}
}

func TestProjectNestedObjectFallsBackToJSON(t *testing.T) {
	refID := uuid.New()
	raw := []byte(`{"workflow": {"nodes": [1, 2, 3]}}`)

	rows, err := Project(refID, raw)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Project() returned %d rows, want 1", len(rows))
	}
	if rows[0].Value.Kind != model.MetaJSON {
		t.Errorf("workflow kind = %v, want MetaJSON", rows[0].Value.Kind)
	}
}

func TestProjectMixedListDemotesElementsToJSON(t *testing.T) {
	refID := uuid.New()
	raw := []byte(`{"mixed": [1, {"nested": true}, "three"]}`)

	rows, err := Project(refID, raw)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Project() returned %d rows, want 3", len(rows))
	}
	if rows[0].Value.Kind != model.MetaNum {
		t.Errorf("element 0 kind = %v, want MetaNum", rows[0].Value.Kind)
	}
	if rows[1].Value.Kind != model.MetaJSON {
		t.Errorf("element 1 kind = %v, want MetaJSON (object demoted)", rows[1].Value.Kind)
	}
	if rows[2].Value.Kind != model.MetaStr {
		t.Errorf("element 2 kind = %v, want MetaStr", rows[2].Value.Kind)
	}
}

func TestProjectEmptyInput(t *testing.T) {
	rows, err := Project(uuid.New(), nil)
	if err != nil {
		t.Fatalf("Project(nil) error = %v", err)
	}
	if rows != nil {
		t.Errorf("Project(nil) = %v, want nil", rows)
	}
}

func TestProjectRejectsNonObject(t *testing.T) {
	if _, err := Project(uuid.New(), []byte(`[1, 2, 3]`)); err == nil {
		t.Error("Project() on a top-level array returned nil error, want error")
	}
}
