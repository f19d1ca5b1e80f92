package apierr

import (
	"errors"
	"fmt"
	"testing"
)

func TestAsUnwrapsWrappedErrors(t *testing.T) {
	base := NotFound("asset not found")
	wrapped := fmt.Errorf("loading asset: %w", base)

	got, ok := As(wrapped)
	if !ok {
		t.Fatal("As() on a wrapped *Error returned ok = false")
	}
	if got.Kind != KindNotFound || got.Code != CodeAssetNotFound {
		t.Errorf("As() = %+v, want Kind=%s Code=%s", got, KindNotFound, CodeAssetNotFound)
	}
}

func TestAsRejectsPlainErrors(t *testing.T) {
	if _, ok := As(errors.New("plain")); ok {
		t.Error("As() on a plain error returned ok = true")
	}
}

func TestWithDetailsMutatesInPlace(t *testing.T) {
	e := New(KindValidation, CodeInvalidBody, "bad body")
	e.WithDetails(map[string]any{"field": "name"})
	if e.Details["field"] != "name" {
		t.Errorf("Details = %+v, want field=name", e.Details)
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("disk full")
	e := Wrap(KindTransient, CodeInternal, "writing file", inner)
	if !errors.Is(e, inner) {
		t.Error("errors.Is(e, inner) = false, want true")
	}
	if e.Error() == "" {
		t.Error("Error() returned empty string")
	}
}
